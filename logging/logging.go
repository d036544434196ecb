// Package logging configures the global zerolog logger for the command-line tools.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global level and a console writer on stderr tagged with
// the service name. Command results go to stdout, so logs stay on stderr.
func Init(levelString, service string) {
	InitWriter(os.Stderr, levelString, service)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, levelString, service string) {
	logLevel := zerolog.InfoLevel
	parsedLevel, err := zerolog.ParseLevel(levelString)
	if err != nil {
		log.Warn().Str("provided_level", levelString).Err(err).Msg("Invalid log level, defaulting to 'info'")
	} else if parsedLevel != zerolog.NoLevel {
		logLevel = parsedLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	// Colour only for debug and trace, which are interactive by nature
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    logLevel > zerolog.DebugLevel,
		TimeFormat: time.RFC3339,
	}).With().Str("service", service).Logger()

	log.Debug().Str("log_level", logLevel.String()).Msg("Logger initialized")
}
