package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/yegors/runway-sim/internal/api"
	"github.com/yegors/runway-sim/internal/config"
	"github.com/yegors/runway-sim/internal/simulation"
	"github.com/yegors/runway-sim/internal/storage/sqlite"
	"github.com/yegors/runway-sim/internal/trials"
	"github.com/yegors/runway-sim/pkg/logger"
)

var (
	configPath       = flag.String("config", "", "Path to a TOML configuration file")
	trialCount       = flag.Int("trials", 0, "Number of trials (overrides config)")
	frames           = flag.Int("frames", 0, "Frames per trial (overrides config)")
	runways          = flag.Int("runways", 0, "Number of runways (overrides config)")
	spawnProbability = flag.Float64("spawn-probability", 0, "Per-frame arrival probability (overrides config)")
	seed             = flag.Int64("seed", 0, "Base seed (overrides config)")
	workers          = flag.Int("workers", 0, "Worker goroutines, 0 for one per CPU (overrides config)")
	store            = flag.Bool("store", false, "Persist the batch to the configured sqlite database")
	logLevel         = flag.String("log-level", "", "Log level (overrides config)")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: runway-sim [flags] [run|serve]\nwhere [flags] may be:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	command := "run"
	switch flag.NArg() {
	case 0:
	case 1:
		command = flag.Arg(0)
	default:
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(setFlags())
	errorExit("configuration", err)

	log, err := logger.New(cfg.Logging)
	errorExit("logger", err)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "run":
		err = runBatch(ctx, cfg, log, os.Stdout)
	case "serve":
		err = serve(ctx, cfg, log)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.WithError(err).Error("Command failed", logger.String("command", command))
		os.Exit(1)
	}
}

func errorExit(msg string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "runway-sim: %s: %v\n", msg, err)
	os.Exit(1)
}

// setFlags returns the names of the flags given on the command line
func setFlags() map[string]bool {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// loadConfig reads the config file and applies the explicitly set command
// line overrides, so zero values still reach validation
func loadConfig(set map[string]bool) (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	if set["trials"] {
		cfg.Trials.Count = *trialCount
	}
	if set["frames"] {
		cfg.Simulation.Frames = *frames
	}
	if set["runways"] {
		cfg.Simulation.RunwayCount = *runways
	}
	if set["spawn-probability"] {
		cfg.Simulation.SpawnProbability = *spawnProbability
	}
	if set["seed"] {
		cfg.Trials.Seed = *seed
	}
	if set["workers"] {
		cfg.Trials.Workers = *workers
	}
	if set["store"] {
		cfg.Storage.Enabled = *store
	}
	if set["log-level"] {
		cfg.Logging.Level = *logLevel
	}

	return cfg, cfg.Validate()
}

func openStorage(cfg *config.Config, log *logger.Logger) (*sqlite.RunStorage, func(), error) {
	if !cfg.Storage.Enabled {
		return nil, func() {}, nil
	}
	db, err := sqlite.Open(cfg.Storage.Path)
	if err != nil {
		return nil, nil, err
	}
	storage, err := sqlite.NewRunStorage(db, log)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return storage, func() { db.Close() }, nil
}

// newRunner wires per-trial event logging when debug output is requested
func newRunner(cfg *config.Config, log *logger.Logger) *trials.Runner {
	var sinks trials.SinkFactory
	if cfg.Logging.Level == "debug" {
		sinks = func(i int, control bool) simulation.EventSink {
			return simulation.NewLoggerSink(log.WithTrial(i, control))
		}
	}
	return trials.NewRunner(sinks, log)
}

func runBatch(ctx context.Context, cfg *config.Config, log *logger.Logger, out io.Writer) error {
	storage, closeStorage, err := openStorage(cfg, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	batch, err := newRunner(cfg, log).Run(ctx, cfg.Batch())
	if err != nil {
		return err
	}

	if storage != nil {
		if err := storage.StoreBatch(ctx, batch); err != nil {
			return err
		}
		log.Info("Stored trial batch", logger.String("id", batch.ID), logger.String("path", cfg.Storage.Path))
	}

	printSummary(out, batch)
	return nil
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	storage, closeStorage, err := openStorage(cfg, log)
	if err != nil {
		return err
	}
	defer closeStorage()

	router := api.NewRouter(newRunner(cfg, log), storage, cfg, log)
	return api.NewServer(cfg.Server, router.Routes(), log).ListenAndServe(ctx)
}

func printSummary(out io.Writer, batch *trials.Batch) {
	s := batch.Summary
	c := batch.Config

	fmt.Fprintf(out, "Batch %s: %s trials, %s frames each, %d runway(s), spawn probability %s\n",
		batch.ID, humanize.Comma(int64(c.Trials)), humanize.Comma(int64(c.Frames)), c.RunwayCount,
		humanize.FtoaWithDigits(c.SpawnProbability, 4))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "group\ttrials\tspawned\tlanded\tcrashed\tpreemptions\tcrash rate\t\n")
	for _, row := range []struct {
		name string
		g    trials.GroupSummary
	}{
		{"control", s.Control},
		{"test", s.Test},
	} {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s%%\t\n", row.name,
			humanize.Comma(int64(row.g.Trials)),
			humanize.Comma(int64(row.g.Spawned)),
			humanize.Comma(int64(row.g.Landed)),
			humanize.Comma(int64(row.g.Crashes)),
			humanize.Comma(int64(row.g.Preemptions)),
			humanize.FtoaWithDigits(row.g.CrashRate*100, 3))
	}
	tw.Flush()

	fmt.Fprintf(out, "Reprioritization changed crashes by %s (test - control)\n", humanize.Comma(int64(s.CrashDelta)))
}
