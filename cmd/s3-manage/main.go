// Command s3-manage manages S3 buckets and objects: bucket lifecycle,
// uploads, downloads, versioning and purging every version under a prefix.
//
// Usage:
//
//	s3-manage <command> [flags] [args]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/gurre/s3streamer"
	"github.com/rs/zerolog/log"

	"github.com/gurre/aws-manage/bucket"
	"github.com/gurre/aws-manage/config"
	"github.com/gurre/aws-manage/logging"
	"github.com/gurre/aws-manage/metrics"
	"github.com/gurre/aws-manage/output"
	"github.com/gurre/aws-manage/preflight"
	"github.com/gurre/aws-manage/purge"
	"github.com/gurre/aws-manage/report"
)

const service = "s3-manage"

const usage = `Usage: s3-manage <command> [flags] [args]

Commands:
  list                                          List buckets
  create <name>                                 Create a bucket in -region
  get [-create] <name>                          Show a bucket, optionally creating it
  create_tempf [-filename] [-content] [-size]   Write a local text file
  create_bucket_obj [-keyprefix] <bucket> <file>
                                                Upload a file
  get_bucket_obj [-dest] [-version] <bucket> <key>
                                                Download an object
  cat <bucket> <key>                            Print an object line by line
  enable_bucket_vrsng <bucket>                  Enable versioning
  delete_bucket_obj [-keyprefix] [-report] [-preflight] <bucket>
                                                Delete every version under a prefix
  delete [-name]                                Delete one bucket, or all buckets

Flags must precede positional arguments. Run 's3-manage <command> -h' for
the flags of a command.
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

// app carries what every command needs once flags are parsed.
type app struct {
	cfg     *config.Config
	awsCfg  aws.Config
	s3      *s3.Client
	buckets *bucket.Manager
	out     *output.Printer
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	name, args := args[0], args[1:]

	commands := map[string]func(context.Context, *app, []string) error{
		"list":                cmdList,
		"create":              cmdCreate,
		"get":                 cmdGet,
		"create_tempf":        cmdCreateTempFile,
		"create_bucket_obj":   cmdUpload,
		"get_bucket_obj":      cmdDownload,
		"cat":                 cmdCat,
		"enable_bucket_vrsng": cmdEnableVersioning,
		"delete_bucket_obj":   cmdPurge,
		"delete":              cmdDelete,
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

// flags returns a flag set for the command with the shared flags registered.
func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	a.cfg.RegisterFlags(fs)
	return fs
}

// parse parses args, initializes logging and builds the clients. It returns
// the positional arguments, requiring exactly want of them.
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
	a.awsCfg = awsCfg
	a.s3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Local S3 emulators rarely resolve virtual-hosted bucket names
		o.UsePathStyle = a.cfg.Endpoint != ""
	})
	a.buckets = bucket.New(a.s3,
		bucket.WithStreamer(s3streamer.NewS3Streamer(a.s3)),
		bucket.WithWaitTimeout(a.cfg.WaitTimeout),
		bucket.WithLogger(log.Logger),
	)

	a.out, err = output.NewPrinter(os.Stdout, a.cfg.Output)
	if err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

func cmdList(ctx context.Context, a *app, args []string) error {
	if _, err := a.parse(ctx, a.flags("list"), args, 0); err != nil {
		return err
	}
	buckets, err := a.buckets.List(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("count", len(buckets)).Msg("Found buckets")
	return a.out.Print(buckets)
}

func cmdCreate(ctx context.Context, a *app, args []string) error {
	rest, err := a.parse(ctx, a.flags("create"), args, 1)
	if err != nil {
		return err
	}
	if err := a.buckets.Create(ctx, rest[0], a.cfg.Region); err != nil {
		return err
	}
	return a.out.Print(map[string]any{"bucket": rest[0], "created": true})
}

func cmdGet(ctx context.Context, a *app, args []string) error {
	fs := a.flags("get")
	create := fs.Bool("create", false, "Create the bucket in -region when missing")
	rest, err := a.parse(ctx, fs, args, 1)
	if err != nil {
		return err
	}
	info, err := a.buckets.Get(ctx, rest[0], *create, a.cfg.Region)
	if err != nil {
		return err
	}
	return a.out.Print(info)
}

func cmdCreateTempFile(ctx context.Context, a *app, args []string) error {
	fs := a.flags("create_tempf")
	filename := fs.String("filename", "", "File name without extension (random when empty)")
	content := fs.String("content", "", "Content to repeat (defaults to \"0\")")
	size := fs.Int("size", 300, "Number of times the content is repeated")
	dir := fs.String("dir", ".", "Directory to write the file to")
	if _, err := a.parse(ctx, fs, args, 0); err != nil {
		return err
	}
	path, err := bucket.CreateTempFile(*dir, *filename, *content, *size)
	if err != nil {
		return err
	}
	return a.out.Print(map[string]any{"path": path})
}

func cmdUpload(ctx context.Context, a *app, args []string) error {
	fs := a.flags("create_bucket_obj")
	keyPrefix := fs.String("keyprefix", "", "Prefix for the object key")
	rest, err := a.parse(ctx, fs, args, 2)
	if err != nil {
		return err
	}
	if _, err := a.buckets.Get(ctx, rest[0], false, ""); err != nil {
		return err
	}
	key, err := a.buckets.Upload(ctx, rest[0], rest[1], *keyPrefix)
	if err != nil {
		return err
	}
	return a.out.Print(map[string]any{"bucket": rest[0], "key": key})
}

func cmdDownload(ctx context.Context, a *app, args []string) error {
	fs := a.flags("get_bucket_obj")
	dest := fs.String("dest", ".", "Directory to store the downloaded file in")
	version := fs.String("version", "", "Object version ID")
	rest, err := a.parse(ctx, fs, args, 2)
	if err != nil {
		return err
	}
	path, err := a.buckets.Download(ctx, rest[0], rest[1], *dest, *version)
	if err != nil {
		return err
	}
	return a.out.Print(map[string]any{"bucket": rest[0], "key": rest[1], "path": path})
}

func cmdCat(ctx context.Context, a *app, args []string) error {
	rest, err := a.parse(ctx, a.flags("cat"), args, 2)
	if err != nil {
		return err
	}
	return a.buckets.Cat(ctx, os.Stdout, rest[0], rest[1])
}

func cmdEnableVersioning(ctx context.Context, a *app, args []string) error {
	rest, err := a.parse(ctx, a.flags("enable_bucket_vrsng"), args, 1)
	if err != nil {
		return err
	}
	status, err := a.buckets.EnableVersioning(ctx, rest[0])
	if err != nil {
		return err
	}
	return a.out.Print(map[string]any{"bucket": rest[0], "versioning": status})
}

func cmdPurge(ctx context.Context, a *app, args []string) error {
	fs := a.flags("delete_bucket_obj")
	keyPrefix := fs.String("keyprefix", "", "Only delete versions of keys with this prefix")
	batchSize := fs.Int("batch", purge.MaxBatchSize, "Versions per DeleteObjects request (max 1000)")
	reportURI := fs.String("report", "", "S3 or file URI for the final report")
	check := fs.Bool("preflight", false, "Check IAM permissions before deleting")
	rest, err := a.parse(ctx, fs, args, 1)
	if err != nil {
		return err
	}
	name := rest[0]

	if _, err := a.buckets.Get(ctx, name, false, ""); err != nil {
		return err
	}

	if *check {
		checker := preflight.New(iam.NewFromConfig(a.awsCfg), sts.NewFromConfig(a.awsCfg))
		if err := checker.Check(ctx, "", []string{"s3:ListBucketVersions"}, []string{"arn:aws:s3:::" + name}); err != nil {
			return fmt.Errorf("preflight failed: %w", err)
		}
		if err := checker.Check(ctx, "", []string{"s3:DeleteObjectVersion"}, []string{"arn:aws:s3:::" + name + "/" + *keyPrefix + "*"}); err != nil {
			return fmt.Errorf("preflight failed: %w", err)
		}
		log.Info().Str("bucket", name).Msg("Preflight passed")
	}

	var store report.Store
	if *reportURI != "" {
		if store, err = report.NewStore(a.s3, *reportURI); err != nil {
			return err
		}
	}

	m := metrics.NewMetrics("purge")
	purger := purge.New(a.s3,
		purge.WithBatchSize(*batchSize),
		purge.WithMetrics(m),
		purge.WithLogger(log.Logger),
	)

	log.Info().Str("bucket", name).Str("prefix", *keyPrefix).Msg("Deleting object versions")
	deleted, purgeErr := purger.Purge(ctx, name, *keyPrefix)

	rep := m.GenerateReport()
	log.Info().Msg(rep.String())
	if store != nil {
		if err := store.Save(ctx, rep); err != nil {
			log.Error().Err(err).Msg("Failed to save report")
		}
	}

	var batchErr *purge.BatchError
	if errors.As(purgeErr, &batchErr) {
		log.Error().
			Int("batch", batchErr.Batch).
			Int("committed", batchErr.Committed).
			Msg("Purge stopped; earlier batches were already deleted")
	}
	if purgeErr != nil {
		return purgeErr
	}
	return a.out.Print(map[string]any{"bucket": name, "prefix": *keyPrefix, "deleted": deleted})
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	fs := a.flags("delete")
	name := fs.String("name", "", "Bucket to delete; every bucket when empty")
	if _, err := a.parse(ctx, fs, args, 0); err != nil {
		return err
	}
	count, err := a.buckets.Delete(ctx, *name)
	if err != nil {
		return err
	}
	return a.out.Print(map[string]any{"deleted": count})
}
