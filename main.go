package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bsaid97/go-polygon-overlap/config"
	"github.com/bsaid97/go-polygon-overlap/logger"
	"github.com/bsaid97/go-polygon-overlap/store"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	envFile    string
	storeURI   string
	database   string
	collection string
	logLevel   string
	logFormat  string

	overlapThreshold float64
	concurrency      int
	fieldCount       int
	skipSelf         bool
	useIndex         bool
	precision        int

	ingestLimit int
	ingestPath  string
	serveAddr   string

	rootCmd = &cobra.Command{
		Use:   "overlap",
		Short: "Find overlapping polygons in a record store",
		Long: `overlap compares every stored polygon against every other one and
writes an overlap or invalid log back onto each record. Run without a
subcommand it behaves like "overlap detect".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDetect,
	}
	detectCmd = &cobra.Command{
		Use:   "detect",
		Short: "Run overlap detection over the whole store",
		Args:  cobra.NoArgs,
		RunE:  runDetect,
	}
	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Report unparseable fields and invalid polygons without writing",
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	}
	ingestCmd = &cobra.Command{
		Use:   "ingest FILE",
		Short: "Load polygons from a JSON array into the store",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}
	exportCmd = &cobra.Command{
		Use:   "export OUT.zip",
		Short: "Write stored polygons and their logs as GeoJSON and shapefile",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve detection over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file")
	pf.StringVar(&envFile, "env-file", ".env", "env file loaded before the environment is read")
	pf.StringVar(&storeURI, "store", "", "store URI (mongodb://, bolt://path, memory://)")
	pf.StringVar(&database, "database", "", "database name")
	pf.StringVar(&collection, "collection", "", "collection or bucket name")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&logFormat, "log-format", "", "text or json")

	addDetectFlags(rootCmd)
	addDetectFlags(detectCmd)
	addDetectFlags(serveCmd)
	checkCmd.Flags().IntVar(&fieldCount, "fields", config.DefaultFieldCount, "number of geometry fields per record")
	checkCmd.Flags().IntVar(&precision, "precision", -1, "round coordinates to this many decimals, negative disables")
	exportCmd.Flags().IntVar(&fieldCount, "fields", config.DefaultFieldCount, "number of geometry fields per record")

	ingestCmd.Flags().IntVar(&ingestLimit, "limit", config.DefaultIngestLimit, "maximum number of entries to read, 0 reads all")
	ingestCmd.Flags().StringVar(&ingestPath, "path", config.DefaultIngestPath, "dotted path of the coordinates inside an entry")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")

	rootCmd.AddCommand(detectCmd, checkCmd, ingestCmd, exportCmd, serveCmd)
}

func addDetectFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64Var(&overlapThreshold, "overlap_threshold", config.DefaultThreshold, "minimum intersection/union ratio reported, in (0,1]")
	f.IntVar(&concurrency, "concurrency", config.DefaultConcurrency, "number of chunk workers")
	f.IntVar(&fieldCount, "fields", config.DefaultFieldCount, "number of geometry fields per record")
	f.BoolVar(&skipSelf, "skip-self", false, "do not compare a record with itself")
	f.BoolVar(&useIndex, "use-index", false, "skip targets whose bounding boxes cannot intersect")
	f.IntVar(&precision, "precision", -1, "round coordinates to this many decimals, negative disables")
}

// loadConfig layers defaults, the config file, the environment and finally
// any flag set on cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store.URI = storeURI
	}
	if flags.Changed("database") {
		cfg.Store.Database = database
	}
	if flags.Changed("collection") {
		cfg.Store.Collection = collection
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if flags.Changed("overlap_threshold") {
		cfg.Detect.OverlapThreshold = overlapThreshold
	}
	if flags.Changed("concurrency") {
		cfg.Detect.Concurrency = concurrency
	}
	if flags.Changed("fields") {
		cfg.Detect.FieldCount = fieldCount
	}
	if flags.Changed("skip-self") {
		cfg.Detect.SkipSelf = skipSelf
	}
	if flags.Changed("use-index") {
		cfg.Detect.UseIndex = useIndex
	}
	if flags.Changed("precision") {
		cfg.Detect.Precision = precision
	}
	if flags.Changed("limit") {
		cfg.Ingest.Limit = ingestLimit
	}
	if flags.Changed("path") {
		cfg.Ingest.Path = ingestPath
	}
	if flags.Changed("addr") {
		cfg.Addr = serveAddr
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	return cfg, cfg.Validate()
}

// setup loads the config and opens the backend it names. The caller closes
// the backend.
func setup(cmd *cobra.Command) (config.Config, store.Backend, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return cfg, nil, err
	}
	backend, err := store.Open(cfg.Store)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, backend, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
