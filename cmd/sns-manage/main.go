// Command sns-manage manages SNS topics and SMS subscriptions.
//
// Usage:
//
//	sns-manage <command> [flags] [args]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog/log"

	"github.com/gurre/aws-manage/config"
	"github.com/gurre/aws-manage/logging"
	"github.com/gurre/aws-manage/notify"
	"github.com/gurre/aws-manage/output"
)

const service = "sns-manage"

const usage = `Usage: sns-manage <command> [flags] [args]

Commands:
  create <topicname>                Create a topic
  list_topics [-nexttoken] [-all]   List topic ARNs
  list_subs [-nexttoken]            List subscriptions
  sub <topicarn> <mobilenum>        Subscribe an E.164 number by SMS
  send <topicarn> <msg>             Publish a message
  unsub <subarn>                    Remove a subscription
  delete <topicarn>                 Delete a topic and its subscriptions

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
	cfg      *config.Config
	notifier *notify.Notifier
	out      *output.Printer
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	name, args := args[0], args[1:]

	commands := map[string]func(context.Context, *app, []string) error{
		"create":      cmdCreate,
		"list_topics": cmdListTopics,
		"list_subs":   cmdListSubscriptions,
		"sub":         cmdSubscribe,
		"send":        cmdSend,
		"unsub":       cmdUnsubscribe,
		"delete":      cmdDelete,
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
	a.notifier = notify.New(sns.NewFromConfig(awsCfg), notify.WithLogger(log.Logger))

	a.out, err = output.NewPrinter(os.Stdout, a.cfg.Output)
	if err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

func cmdCreate(ctx context.Context, a *app, args []string) error {
	rest, err := a.parse(ctx, a.flags("create"), args, 1)
	if err != nil {
		return err
	}
	arn, err := a.notifier.CreateTopic(ctx, rest[0])
	if err != nil {
		return err
	}
	return a.out.Print(map[string]any{"topicArn": arn})
}

func cmdListTopics(ctx context.Context, a *app, args []string) error {
	fs := a.flags("list_topics")
	nextToken := fs.String("nexttoken", "", "Token from a previous page")
	all := fs.Bool("all", false, "Follow every page")
	if _, err := a.parse(ctx, fs, args, 0); err != nil {
		return err
	}

	if *all {
		arns, err := a.notifier.AllTopics(ctx)
		if err != nil {
			return err
		}
		return a.out.Print(map[string]any{"topics": arns})
	}

	arns, next, err := a.notifier.ListTopics(ctx, *nextToken)
	if err != nil {
		return err
	}
	return a.out.Print(map[string]any{"topics": arns, "nextToken": next})
}

func cmdListSubscriptions(ctx context.Context, a *app, args []string) error {
	fs := a.flags("list_subs")
	nextToken := fs.String("nexttoken", "", "Token from a previous page")
	if _, err := a.parse(ctx, fs, args, 0); err != nil {
		return err
	}
	subs, next, err := a.notifier.ListSubscriptions(ctx, *nextToken)
	if err != nil {
		return err
	}
	return a.out.Print(map[string]any{"subscriptions": subs, "nextToken": next})
}

func cmdSubscribe(ctx context.Context, a *app, args []string) error {
	rest, err := a.parse(ctx, a.flags("sub"), args, 2)
	if err != nil {
		return err
	}
	arn, err := a.notifier.Subscribe(ctx, rest[0], rest[1])
	if err != nil {
		return err
	}
	return a.out.Print(map[string]any{"subscriptionArn": arn})
}

func cmdSend(ctx context.Context, a *app, args []string) error {
	rest, err := a.parse(ctx, a.flags("send"), args, 2)
	if err != nil {
		return err
	}
	id, err := a.notifier.Publish(ctx, rest[0], rest[1])
	if err != nil {
		return err
	}
	return a.out.Print(map[string]any{"messageId": id})
}

func cmdUnsubscribe(ctx context.Context, a *app, args []string) error {
	rest, err := a.parse(ctx, a.flags("unsub"), args, 1)
	if err != nil {
		return err
	}
	if err := a.notifier.Unsubscribe(ctx, rest[0]); err != nil {
		return err
	}
	return a.out.Print(map[string]any{"subscriptionArn": rest[0], "unsubscribed": true})
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	rest, err := a.parse(ctx, a.flags("delete"), args, 1)
	if err != nil {
		return err
	}
	if err := a.notifier.DeleteTopic(ctx, rest[0]); err != nil {
		return err
	}
	return a.out.Print(map[string]any{"topicArn": rest[0], "deleted": true})
}
