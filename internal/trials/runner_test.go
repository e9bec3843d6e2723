package trials

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/yegors/runway-sim/internal/runway"
	"github.com/yegors/runway-sim/internal/simulation"
	"github.com/yegors/runway-sim/pkg/logger"
)

func batchConfig(trials, frames int) Config {
	return Config{
		Trials:           trials,
		Workers:          2,
		Seed:             100,
		Frames:           frames,
		SpawnProbability: simulation.DefaultSpawnProbability,
		RunwayCount:      1,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"no trials", func(c *Config) { c.Trials = 0 }, ErrInvalidTrialCount},
		{"negative workers", func(c *Config) { c.Workers = -1 }, ErrInvalidWorkers},
		{"no runways", func(c *Config) { c.RunwayCount = 0 }, runway.ErrInvalidRunwayCount},
		{"bad probability", func(c *Config) { c.SpawnProbability = 2 }, simulation.ErrInvalidSpawnProbability},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := batchConfig(10, 100)
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if _, err := NewRunner(nil, logger.NewNop()).Run(context.Background(), cfg); !errors.Is(err, tt.want) {
				t.Fatalf("Run: expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestTrialGroupsAndSeeds(t *testing.T) {
	cfg := batchConfig(4, 100)
	for i := 0; i < 4; i++ {
		tc := cfg.TrialConfig(i)
		control := i%2 == 0
		if tc.Control != control || tc.Policy.Reprioritization == control {
			t.Errorf("trial %d: control=%v reprioritization=%v", i, tc.Control, tc.Policy.Reprioritization)
		}
	}
	if cfg.TrialSeed(0) != cfg.TrialSeed(1) || cfg.TrialSeed(1) == cfg.TrialSeed(2) {
		t.Errorf("unexpected seed pairing: %d %d %d", cfg.TrialSeed(0), cfg.TrialSeed(1), cfg.TrialSeed(2))
	}
}

func TestRunIsIndependentOfWorkerCount(t *testing.T) {
	cfg := batchConfig(12, 2000)

	cfg.Workers = 1
	serial, err := NewRunner(nil, logger.NewNop()).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("serial run: %v", err)
	}
	cfg.Workers = 6
	parallel, err := NewRunner(nil, logger.NewNop()).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("parallel run: %v", err)
	}

	if serial.Summary != parallel.Summary {
		t.Fatalf("summaries differ: %+v vs %+v", serial.Summary, parallel.Summary)
	}
	for i := range serial.Results {
		if serial.Results[i] != parallel.Results[i] {
			t.Errorf("trial %d differs: %+v vs %+v", i, serial.Results[i], parallel.Results[i])
		}
		if serial.Results[i].Trial != i {
			t.Errorf("trial index %d recorded as %d", i, serial.Results[i].Trial)
		}
	}
	if serial.Summary.Control.Trials != 6 || serial.Summary.Test.Trials != 6 {
		t.Errorf("unexpected group sizes: %+v", serial.Summary)
	}
	if serial.ID == "" || serial.ID == parallel.ID {
		t.Errorf("batch IDs not unique: %q %q", serial.ID, parallel.ID)
	}
}

func TestRunUsesSinkFactory(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}
	factory := func(i int, control bool) simulation.EventSink {
		mu.Lock()
		seen[i] = control
		mu.Unlock()
		return &simulation.Recorder{}
	}

	if _, err := NewRunner(factory, logger.NewNop()).Run(context.Background(), batchConfig(4, 10)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(seen) != 4 || !seen[0] || seen[1] {
		t.Errorf("sink factory calls: %v", seen)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(nil, logger.NewNop()).Run(ctx, batchConfig(8, 100))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestReprioritizationReducesCrashes(t *testing.T) {
	if testing.Short() {
		t.Skip("full-horizon batch")
	}
	cfg := batchConfig(60, simulation.DefaultFrames)
	cfg.Workers = 0

	batch, err := NewRunner(nil, logger.NewNop()).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	s := batch.Summary
	if s.Control.Crashes == 0 {
		t.Fatalf("control group never crashed; scenario too easy: %+v", s)
	}
	if s.Test.Crashes > s.Control.Crashes {
		t.Errorf("reprioritization crashed more: test=%d control=%d", s.Test.Crashes, s.Control.Crashes)
	}
	if s.Test.Preemptions == 0 || s.Control.Preemptions != 0 {
		t.Errorf("unexpected preemption totals: %+v", s)
	}
}
