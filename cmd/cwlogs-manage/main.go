// Command cwlogs-manage lists CloudWatch Logs groups and searches their
// events.
//
// Usage:
//
//	cwlogs-manage <command> [flags] [args]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"

	"github.com/gurre/aws-manage/config"
	"github.com/gurre/aws-manage/logging"
	"github.com/gurre/aws-manage/logs"
	"github.com/gurre/aws-manage/output"
)

const service = "cwlogs-manage"

const usage = `Usage: cwlogs-manage <command> [flags] [args]

Commands:
  groups [-prefix]                                List log groups
  filter [-streams a,b] [-pattern] [-since] [-start] [-end] [-limit] <group>
                                                  Search events in a group

Times are RFC 3339; -since is a duration before now and overrides -start.
Flags must precede positional arguments.
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	reader *logs.Reader
	out    *output.Printer
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	name, args := args[0], args[1:]

	commands := map[string]func(context.Context, *app, []string) error{
		"groups": cmdGroups,
		"filter": cmdFilter,
	}
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, name)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return cmd(ctx, &app{cfg: cfg}, args)
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	a.cfg.RegisterFlags(fs)
	return fs
}

func (a *app) parse(ctx context.Context, fs *flag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	if fs.NArg() != want {
		return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d", errUsage, fs.Name(), want, fs.NArg())
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Init(a.cfg.LogLevel, service)

	awsCfg, err := a.cfg.AWS(ctx)
	if err != nil {
		return nil, err
	}
	a.reader = logs.New(cloudwatchlogs.NewFromConfig(awsCfg))

	a.out, err = output.NewPrinter(os.Stdout, a.cfg.Output)
	if err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

func cmdGroups(ctx context.Context, a *app, args []string) error {
	fs := a.flags("groups")
	prefix := fs.String("prefix", "", "Log group name prefix")
	if _, err := a.parse(ctx, fs, args, 0); err != nil {
		return err
	}
	groups, err := a.reader.Groups(ctx, *prefix)
	if err != nil {
		return err
	}
	return a.out.Print(groups)
}

func cmdFilter(ctx context.Context, a *app, args []string) error {
	fs := a.flags("filter")
	streams := fs.String("streams", "", "Comma separated log stream names")
	pattern := fs.String("pattern", "", "CloudWatch Logs filter pattern")
	since := fs.Duration("since", 0, "Only events newer than this, e.g. 1h")
	start := fs.String("start", "", "Start time (RFC 3339)")
	end := fs.String("end", "", "End time (RFC 3339)")
	limit := fs.Int("limit", 100, "Maximum number of events (0 for all)")
	rest, err := a.parse(ctx, fs, args, 1)
	if err != nil {
		return err
	}

	req := logs.FilterRequest{Group: rest[0], Pattern: *pattern, Limit: *limit}
	if *streams != "" {
		req.Streams = strings.Split(*streams, ",")
	}
	if *start != "" {
		if req.Start, err = time.Parse(time.RFC3339, *start); err != nil {
			return fmt.Errorf("invalid -start: %w", err)
		}
	}
	if *since > 0 {
		req.Start = time.Now().Add(-*since)
	}
	if *end != "" {
		if req.End, err = time.Parse(time.RFC3339, *end); err != nil {
			return fmt.Errorf("invalid -end: %w", err)
		}
	}

	events, err := a.reader.Filter(ctx, req)
	if err != nil {
		return err
	}
	return a.out.Print(events)
}
