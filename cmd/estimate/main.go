// Command estimate runs the PM2.5 estimation pipeline once, or on a schedule
// with -interval.
//
//	estimate [flags] [rows cols start end]
//
// start and end use the layout 2006-01-02T15:04:05Z. With no positional
// arguments the configured grid and the default window are used.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/airquality.report/internal/config"
	"github.com/banshee-data/airquality.report/internal/db"
	"github.com/banshee-data/airquality.report/internal/estimator"
	"github.com/banshee-data/airquality.report/internal/pgstore"
	"github.com/banshee-data/airquality.report/internal/pipeline"
	"github.com/banshee-data/airquality.report/internal/training"
	"github.com/banshee-data/airquality.report/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to the estimate config JSON (default: config/estimate.defaults.json)")
	dbPath     = flag.String("db", "", "SQLite database path (overrides config and AIRQ_DB_PATH)")
	envFile    = flag.String("env-file", ".env", "Environment file loaded before the config")
	logFile    = flag.String("log-file", "", "Append log output to this file")
	interval   = flag.Duration("interval", 0, "Run on this schedule instead of once (0 = run once)")
	window     = flag.Duration("window", 0, "Lookback window of scheduled runs (0 = config value)")
)

const timeLayout = "2006-01-02T15:04:05Z"

var (
	defaultStart = time.Date(2018, 1, 7, 0, 0, 0, 0, time.UTC)
	defaultEnd   = time.Date(2018, 1, 11, 0, 0, 0, 0, time.UTC)
)

// runArgs are the positional arguments of a one-shot run.
type runArgs struct {
	rows   int
	cols   int
	window training.Window
}

// parseArgs reads rows, cols, start and end. All four are required when any
// is given.
func parseArgs(args []string, rows, cols int) (runArgs, error) {
	out := runArgs{rows: rows, cols: cols, window: training.Window{Start: defaultStart, End: defaultEnd}}
	if len(args) == 0 {
		return out, nil
	}
	if len(args) != 4 {
		return out, fmt.Errorf("expected 4 positional arguments (rows cols start end), got %d", len(args))
	}
	var err error
	if out.rows, err = strconv.Atoi(args[0]); err != nil {
		return out, fmt.Errorf("invalid rows %q: %w", args[0], err)
	}
	if out.cols, err = strconv.Atoi(args[1]); err != nil {
		return out, fmt.Errorf("invalid cols %q: %w", args[1], err)
	}
	if out.window.Start, err = time.Parse(timeLayout, args[2]); err != nil {
		return out, fmt.Errorf("invalid start %q: %w", args[2], err)
	}
	if out.window.End, err = time.Parse(timeLayout, args[3]); err != nil {
		return out, fmt.Errorf("invalid end %q: %w", args[3], err)
	}
	return out, nil
}

func loadConfig(path string) (*config.EstimateConfig, error) {
	var cfg *config.EstimateConfig
	if path == "" {
		cfg = config.MustLoadDefaultConfig()
	} else {
		var err error
		if cfg, err = config.LoadEstimateConfig(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if *dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, cfg.Validate()
}

func newEstimator(cfg *config.EstimateConfig) estimator.Estimator {
	if url := cfg.GetEstimatorURL(); url != "" {
		log.Printf("using remote estimator at %s", url)
		return estimator.NewRemoteEstimator(url)
	}
	return estimator.NewGaussianProcess()
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [rows cols start end]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("failed to load %s: %v", *envFile, err)
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}
	log.Printf("estimate %s", version.Current())

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	args, err := parseArgs(flag.Args(), cfg.GetRows(), cfg.GetCols())
	if err != nil {
		flag.Usage()
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.OpenDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	sinks := []pipeline.Sink{store}
	if cfg.GetStorage() == config.StoragePostgres {
		pg, err := pgstore.Open(ctx, cfg.GetPostgresDSN())
		if err != nil {
			log.Fatalf("failed to open postgres: %v", err)
		}
		defer pg.Close()
		sinks = append(sinks, pg)
	}

	p := &pipeline.Pipeline{
		Source:    store,
		Estimator: newEstimator(cfg),
		Sinks:     sinks,
		Locker:    store,
		Settings:  pipeline.SettingsFromConfig(cfg),
	}

	if *interval <= 0 {
		res, err := p.Run(ctx, args.rows, args.cols, args.window)
		if err != nil {
			log.Fatalf("estimate run failed: %v", err)
		}
		log.Printf("stored estimate %s for %s (%d contours)", res.Record.ID, res.Run.Timestamp.Format(timeLayout), len(res.Record.Contours))
		if res.SVGPath != "" {
			log.Printf("wrote %s", res.SVGPath)
		}
		return
	}

	lookback := *window
	if lookback <= 0 {
		lookback = cfg.GetWindow()
	}
	w := pipeline.NewWorker(p, args.rows, args.cols, *interval, lookback)
	w.Start()
	log.Printf("running every %s over the trailing %s", *interval, lookback)
	<-ctx.Done()
	log.Printf("shutting down estimate worker...")
	w.Stop()
}
