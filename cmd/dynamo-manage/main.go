// Command dynamo-manage manages a DynamoDB product table: table lifecycle,
// single products, batch loads, queries and scans.
//
// Usage:
//
//	dynamo-manage <command> [flags] [args]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/gurre/aws-manage/catalog"
	"github.com/gurre/aws-manage/config"
	"github.com/gurre/aws-manage/logging"
	"github.com/gurre/aws-manage/metrics"
	"github.com/gurre/aws-manage/output"
	"github.com/gurre/aws-manage/preflight"
	"github.com/gurre/aws-manage/report"
	"github.com/gurre/aws-manage/update"
)

const service = "dynamo-manage"

const usage = `Usage: dynamo-manage <command> [flags] [args]

Commands:
  create [<keyschema.json> <attrdefs.json>]     Create the table and wait for it
  get                                           Describe the table
  create_product <pk> <sk> name=value...        Put a product and read it back
  get_product <pk> <sk>                         Read a product
  update_product [-preflight] <pk> <sk> name=value...
                                                Set attributes on a product
  delete <pk> <sk>                              Delete a product
  create_items [-keys a,b] [-report] <items.json>
                                                Batch write a JSON array of items
  query [-filterexpr] [-values] [-index] [-limit] <key_expr>
                                                Query by key condition
  scan [-values] [-limit] <filter_expr>         Scan with a filter
  delete_table                                  Delete the table and wait

Every command takes -table (default "products"), -pk/-sk naming the key
attributes and -pktype/-sktype giving their types (S or N, default S).
Values in name=value are parsed as booleans, numbers or
strings; wrap a value in double quotes ('"42"') to force a string. Flags
must precede positional arguments.
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
	table  string
	pk, sk string
	pkType string
	skType string
	awsCfg aws.Config
	store  *catalog.Store
	out    *output.Printer
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	name, args := args[0], args[1:]

	commands := map[string]func(context.Context, *app, []string) error{
		"create":         cmdCreateTable,
		"get":            cmdDescribe,
		"create_product": cmdCreateProduct,
		"get_product":    cmdGetProduct,
		"update_product": cmdUpdateProduct,
		"delete":         cmdDeleteProduct,
		"create_items":   cmdCreateItems,
		"query":          cmdQuery,
		"scan":           cmdScan,
		"delete_table":   cmdDeleteTable,
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
	fs.StringVar(&a.table, "table", "products", "DynamoDB table name")
	fs.StringVar(&a.pk, "pk", catalog.DefaultPartitionKey, "Partition key attribute name")
	fs.StringVar(&a.sk, "sk", catalog.DefaultSortKey, "Sort key attribute name")
	fs.StringVar(&a.pkType, "pktype", string(types.ScalarAttributeTypeS), "Partition key type (S or N)")
	fs.StringVar(&a.skType, "sktype", string(types.ScalarAttributeTypeS), "Sort key type (S or N)")
	return fs
}

// parse parses args, initializes logging and builds the store. It returns
// the positional arguments, of which there must be between lo and hi; hi < 0
// means no upper bound.
func (a *app) parse(ctx context.Context, fs *flag.FlagSet, args []string, lo, hi int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	if n := fs.NArg(); n < lo || (hi >= 0 && n > hi) {
		return nil, fmt.Errorf("%w: wrong number of arguments for %s", errUsage, fs.Name())
	}
	if a.table == "" {
		return nil, fmt.Errorf("table name is required")
	}
	for _, t := range []string{a.pkType, a.skType} {
		switch types.ScalarAttributeType(t) {
		case types.ScalarAttributeTypeS, types.ScalarAttributeTypeN:
		default:
			return nil, fmt.Errorf("unsupported key type %q (want S or N)", t)
		}
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
	a.store = catalog.New(dynamodb.NewFromConfig(awsCfg), a.table,
		catalog.WithWaitTimeout(a.cfg.WaitTimeout),
		catalog.WithLogger(log.Logger),
	)

	a.out, err = output.NewPrinter(os.Stdout, a.cfg.Output)
	if err != nil {
		return nil, err
	}
	return fs.Args(), nil
}

// key builds the item key, typing each value by -pktype and -sktype.
func (a *app) key(pk, sk string) (update.ItemKey, error) {
	pv, err := update.KeyValue(types.ScalarAttributeType(a.pkType), pk)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", a.pk, err)
	}
	sv, err := update.KeyValue(types.ScalarAttributeType(a.skType), sk)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", a.sk, err)
	}
	return update.ItemKey{{Name: a.pk, Value: pv}, {Name: a.sk, Value: sv}}, nil
}

func (a *app) printItem(item catalog.Item) error {
	plain, err := catalog.Plain(item)
	if err != nil {
		return err
	}
	return a.out.Print(plain)
}

func (a *app) printItems(items []catalog.Item) error {
	plain, err := catalog.PlainAll(items)
	if err != nil {
		return err
	}
	return a.out.Print(plain)
}

func cmdCreateTable(ctx context.Context, a *app, args []string) error {
	rest, err := a.parse(ctx, a.flags("create"), args, 0, 2)
	if err != nil {
		return err
	}

	keySchema := []types.KeySchemaElement{
		{AttributeName: aws.String(a.pk), KeyType: types.KeyTypeHash},
		{AttributeName: aws.String(a.sk), KeyType: types.KeyTypeRange},
	}
	attrDefs := []types.AttributeDefinition{
		{AttributeName: aws.String(a.pk), AttributeType: types.ScalarAttributeType(a.pkType)},
		{AttributeName: aws.String(a.sk), AttributeType: types.ScalarAttributeType(a.skType)},
	}
	switch len(rest) {
	case 2:
		if err := decodeFile(rest[0], &keySchema); err != nil {
			return err
		}
		if err := decodeFile(rest[1], &attrDefs); err != nil {
			return err
		}
	case 1:
		return fmt.Errorf("%w: key schema and attribute definitions go together", errUsage)
	}

	desc, err := a.store.CreateTable(ctx, keySchema, attrDefs)
	if err != nil {
		return err
	}
	return a.out.Print(tableSummary(desc))
}

func cmdDescribe(ctx context.Context, a *app, args []string) error {
	if _, err := a.parse(ctx, a.flags("get"), args, 0, 0); err != nil {
		return err
	}
	desc, err := a.store.Describe(ctx)
	if err != nil {
		return err
	}
	return a.out.Print(tableSummary(desc))
}

func cmdCreateProduct(ctx context.Context, a *app, args []string) error {
	rest, err := a.parse(ctx, a.flags("create_product"), args, 3, -1)
	if err != nil {
		return err
	}
	attrs, err := update.ParseAssignments(rest[2:])
	if err != nil {
		return err
	}
	key, err := a.key(rest[0], rest[1])
	if err != nil {
		return err
	}
	item, err := a.store.CreateProduct(ctx, key, attrs)
	if err != nil {
		return err
	}
	return a.printItem(item)
}

func cmdGetProduct(ctx context.Context, a *app, args []string) error {
	rest, err := a.parse(ctx, a.flags("get_product"), args, 2, 2)
	if err != nil {
		return err
	}
	key, err := a.key(rest[0], rest[1])
	if err != nil {
		return err
	}
	item, err := a.store.GetProduct(ctx, key)
	if err != nil {
		return err
	}
	return a.printItem(item)
}

func cmdUpdateProduct(ctx context.Context, a *app, args []string) error {
	fs := a.flags("update_product")
	check := fs.Bool("preflight", false, "Check IAM permissions before updating")
	rest, err := a.parse(ctx, fs, args, 3, -1)
	if err != nil {
		return err
	}
	attrs, err := update.ParseAssignments(rest[2:])
	if err != nil {
		return err
	}
	key, err := a.key(rest[0], rest[1])
	if err != nil {
		return err
	}

	if *check {
		desc, err := a.store.Describe(ctx)
		if err != nil {
			return err
		}
		checker := preflight.New(iam.NewFromConfig(a.awsCfg), sts.NewFromConfig(a.awsCfg))
		if err := checker.Check(ctx, "", []string{"dynamodb:UpdateItem"}, []string{aws.ToString(desc.TableArn)}); err != nil {
			return fmt.Errorf("preflight failed: %w", err)
		}
		log.Info().Str("table", a.store.Table()).Msg("Preflight passed")
	}

	item, err := a.store.UpdateProduct(ctx, key, attrs)
	if err != nil {
		return err
	}
	return a.printItem(item)
}

func cmdDeleteProduct(ctx context.Context, a *app, args []string) error {
	rest, err := a.parse(ctx, a.flags("delete"), args, 2, 2)
	if err != nil {
		return err
	}
	key, err := a.key(rest[0], rest[1])
	if err != nil {
		return err
	}
	if err := a.store.DeleteProduct(ctx, key); err != nil {
		return err
	}
	return a.out.Print(map[string]any{a.pk: rest[0], a.sk: rest[1], "deleted": true})
}

func cmdCreateItems(ctx context.Context, a *app, args []string) error {
	fs := a.flags("create_items")
	keys := fs.String("keys", "", "Comma separated key attributes; later duplicates overwrite earlier ones")
	reportURI := fs.String("report", "", "S3 or file URI for the final report")
	rest, err := a.parse(ctx, fs, args, 1, 1)
	if err != nil {
		return err
	}

	f, err := os.Open(rest[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", rest[0], err)
	}
	defer f.Close()

	items, err := catalog.DecodeItems(f)
	if err != nil {
		return err
	}

	var overwrite []string
	if *keys != "" {
		overwrite = strings.Split(*keys, ",")
	}

	m := metrics.NewMetrics("create_items")
	written, err := a.store.PutItems(ctx, items, overwrite, m)
	rep := m.GenerateReport()
	log.Info().Msg(rep.String())
	if *reportURI != "" {
		store, serr := report.NewStore(s3.NewFromConfig(a.awsCfg), *reportURI)
		if serr == nil {
			serr = store.Save(ctx, rep)
		}
		if serr != nil {
			log.Error().Err(serr).Msg("Failed to save report")
		}
	}
	if err != nil {
		// Items also counts what the failed batch got through before stopping
		return fmt.Errorf("stopped after writing %d items: %w", m.Items(), err)
	}
	return a.out.Print(map[string]any{"table": a.store.Table(), "written": written})
}

func cmdQuery(ctx context.Context, a *app, args []string) error {
	fs := a.flags("query")
	filter := fs.String("filterexpr", "", "Filter expression")
	values := fs.String("values", "", "Expression values as a JSON object, or @file")
	index := fs.String("index", "", "Secondary index name")
	limit := fs.Int("limit", 0, "Maximum number of items (0 for all)")
	rest, err := a.parse(ctx, fs, args, 1, 1)
	if err != nil {
		return err
	}
	vals, err := expressionValues(*values)
	if err != nil {
		return err
	}

	items, err := a.store.Query(ctx, catalog.QueryRequest{
		KeyCondition: rest[0],
		Filter:       *filter,
		Values:       vals,
		Index:        *index,
		Limit:        *limit,
	})
	if err != nil {
		return err
	}
	return a.printItems(items)
}

func cmdScan(ctx context.Context, a *app, args []string) error {
	fs := a.flags("scan")
	values := fs.String("values", "", "Expression values as a JSON object, or @file")
	limit := fs.Int("limit", 0, "Maximum number of items (0 for all)")
	rest, err := a.parse(ctx, fs, args, 1, 1)
	if err != nil {
		return err
	}
	vals, err := expressionValues(*values)
	if err != nil {
		return err
	}

	log.Warn().Str("table", a.store.Table()).Msg("Scan reads every item in the table")
	items, err := a.store.Scan(ctx, catalog.ScanRequest{Filter: rest[0], Values: vals, Limit: *limit})
	if err != nil {
		return err
	}
	return a.printItems(items)
}

func cmdDeleteTable(ctx context.Context, a *app, args []string) error {
	if _, err := a.parse(ctx, a.flags("delete_table"), args, 0, 0); err != nil {
		return err
	}
	if err := a.store.DeleteTable(ctx); err != nil {
		return err
	}
	return a.out.Print(map[string]any{"table": a.store.Table(), "deleted": true})
}

func tableSummary(desc *types.TableDescription) map[string]any {
	return map[string]any{
		"table":     aws.ToString(desc.TableName),
		"arn":       aws.ToString(desc.TableArn),
		"status":    desc.TableStatus,
		"itemCount": aws.ToInt64(desc.ItemCount),
		"created":   aws.ToTime(desc.CreationDateTime),
	}
}

func decodeFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// expressionValues decodes -values, read from a file when prefixed with @.
func expressionValues(s string) (map[string]types.AttributeValue, error) {
	if s == "" {
		return nil, nil
	}
	var r io.Reader = strings.NewReader(s)
	if path, ok := strings.CutPrefix(s, "@"); ok {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	return catalog.DecodeValues(r)
}
