// Package trials runs batches of independent simulation trials, alternating
// between the control and test groups, and merges their results.
package trials

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yegors/runway-sim/internal/rand"
	"github.com/yegors/runway-sim/internal/runway"
	"github.com/yegors/runway-sim/internal/simulation"
	"github.com/yegors/runway-sim/pkg/logger"
)

var (
	ErrInvalidTrialCount = errors.New("trial count must be positive")
	ErrInvalidWorkers    = errors.New("worker count must not be negative")
)

// Config describes a batch of trials
type Config struct {
	Trials           int     `json:"trials"`
	Workers          int     `json:"workers"` // 0 means one per CPU
	Seed             int64   `json:"seed"`
	Frames           int     `json:"frames"`
	SpawnProbability float64 `json:"spawn_probability"`
	RunwayCount      int     `json:"runway_count"`
}

// TrialConfig returns the configuration of trial i. Even-indexed trials form
// the control group; odd-indexed trials enable reprioritization.
func (c Config) TrialConfig(i int) simulation.Config {
	control := i%2 == 0
	return simulation.Config{
		Frames:           c.Frames,
		SpawnProbability: c.SpawnProbability,
		Policy: runway.Policy{
			RunwayCount:      c.RunwayCount,
			Reprioritization: !control,
		},
		Control: control,
	}
}

// TrialSeed returns the seed of trial i. Trials 2k and 2k+1 share a seed, so
// each control trial sees the same arrivals as its test partner.
func (c Config) TrialSeed(i int) int64 {
	return c.Seed + int64(i/2)
}

// Validate checks the batch for configuration misuse
func (c Config) Validate() error {
	if c.Trials <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidTrialCount, c.Trials)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.Workers)
	}
	// both groups share everything but the policy flag
	return c.TrialConfig(1).Validate()
}

// Batch is a finished set of trials
type Batch struct {
	ID         string              `json:"id"`
	Config     Config              `json:"config"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Summary    Summary             `json:"summary"`
	Results    []simulation.Result `json:"results,omitempty"`
}

// SinkFactory returns the event sink for trial i; nil means discard
type SinkFactory func(i int, control bool) simulation.EventSink

// Runner executes trial batches on a bounded worker pool
type Runner struct {
	logger *logger.Logger
	sinks  SinkFactory
}

// NewRunner creates a runner. sinks may be nil.
func NewRunner(sinks SinkFactory, logger *logger.Logger) *Runner {
	return &Runner{
		logger: logger.Named("trials"),
		sinks:  sinks,
	}
}

// Run executes every trial of the batch and returns the merged results.
// Cancelling ctx stops new trials from starting; trials already running
// always finish their horizon.
func (r *Runner) Run(ctx context.Context, config Config) (*Batch, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch config: %w", err)
	}

	workers := config.Workers
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	batch := &Batch{
		ID:        uuid.NewString(),
		Config:    config,
		StartedAt: time.Now().UTC(),
	}
	lg := r.logger.With(logger.String("batch", batch.ID))
	lg.Info("Starting trial batch",
		logger.Int("trials", config.Trials),
		logger.Int("workers", workers),
		logger.Int("frames", config.Frames),
		logger.Int("runways", config.RunwayCount),
		logger.Float64("spawn_probability", config.SpawnProbability),
		logger.Int64("seed", config.Seed))

	// each worker owns its slot; merged after Wait
	results := make([]simulation.Result, config.Trials)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < config.Trials; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i // per-iteration copy; go directive is 1.21 (pre-1.22 loopvar semantics)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.runTrial(config, i)
			if err != nil {
				return err
			}
			results[i] = res
			lg.Debug("Trial complete",
				logger.Int("trial", i),
				logger.Bool("control", res.Control),
				logger.Int("crashes", res.Crashes),
				logger.Int("spawned", res.Spawned))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		lg.Warn("Trial batch aborted", logger.Error(err))
		return nil, fmt.Errorf("trial batch aborted: %w", err)
	}
	// the loop may have stopped early without any trial reporting an error
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("trial batch aborted: %w", err)
	}

	batch.FinishedAt = time.Now().UTC()
	batch.Results = results
	batch.Summary = Aggregate(results)

	lg.Info("Trial batch complete",
		logger.Int("control_crashes", batch.Summary.Control.Crashes),
		logger.Int("test_crashes", batch.Summary.Test.Crashes),
		logger.Int("crash_delta", batch.Summary.CrashDelta),
		logger.Duration("elapsed", batch.FinishedAt.Sub(batch.StartedAt)))

	return batch, nil
}

func (r *Runner) runTrial(config Config, i int) (simulation.Result, error) {
	tc := config.TrialConfig(i)

	var sink simulation.EventSink
	if r.sinks != nil {
		sink = r.sinks(i, tc.Control)
	}

	sim, err := simulation.New(tc, rand.NewPCG(config.TrialSeed(i)), sink)
	if err != nil {
		return simulation.Result{}, fmt.Errorf("trial %d: %w", i, err)
	}
	res := sim.Run()
	res.Trial = i
	return res, nil
}
