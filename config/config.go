// Package config holds the settings shared by every command: AWS session
// parameters, output format and logging. Values come from an optional .env
// file and the environment, then from command-line flags.
package config

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Output formats accepted by Validate.
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Config holds the configuration common to all commands.
type Config struct {
	Region      string        // AWS region; empty defers to the SDK's resolution chain
	Profile     string        // Shared config profile
	Endpoint    string        // Optional endpoint override (LocalStack, MinIO)
	Output      string        // "json"|"yaml"
	LogLevel    string        // zerolog level name
	WaitTimeout time.Duration // Upper bound for SDK waiters
}

// Load returns a Config populated from the environment. A .env file in the
// working directory is read first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Region:      os.Getenv("AWS_REGION"),
		Profile:     os.Getenv("AWS_PROFILE"),
		Endpoint:    os.Getenv("AWS_ENDPOINT_URL"),
		Output:      getEnv("OUTPUT", OutputJSON),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		WaitTimeout: 5 * time.Minute,
	}

	if v := os.Getenv("WAIT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid WAIT_TIMEOUT: %w", err)
		}
		cfg.WaitTimeout = d
	}

	return cfg, nil
}

// RegisterFlags binds the shared flags to fs, using the current values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Region, "region", c.Region, "AWS region (defaults to AWS_REGION env)")
	fs.StringVar(&c.Profile, "profile", c.Profile, "Shared config profile")
	fs.StringVar(&c.Endpoint, "endpoint", c.Endpoint, "Endpoint URL override")
	fs.StringVar(&c.Output, "output", c.Output, "Output format (json|yaml)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.DurationVar(&c.WaitTimeout, "wait-timeout", c.WaitTimeout, "Maximum time to wait for resources")
}

// Validate ensures all fields have usable values.
func (c *Config) Validate() error {
	if c.Output != OutputJSON && c.Output != OutputYAML {
		return fmt.Errorf("output must be json or yaml")
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	if c.WaitTimeout < time.Second {
		return fmt.Errorf("wait timeout must be at least 1 second")
	}

	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil {
			return fmt.Errorf("invalid endpoint: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("endpoint must use http or https scheme")
		}
		if u.Host == "" {
			return fmt.Errorf("endpoint must include a host")
		}
	}

	return nil
}

// AWS loads the SDK configuration once for the whole process. The endpoint
// override, when set, applies to every service client built from it.
func (c *Config) AWS(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if c.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if c.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(c.Endpoint)
	}
	return awsCfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
