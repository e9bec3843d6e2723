package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yegors/runway-sim/internal/config"
	"github.com/yegors/runway-sim/internal/runway"
	"github.com/yegors/runway-sim/internal/storage/sqlite"
	"github.com/yegors/runway-sim/internal/trials"
	"github.com/yegors/runway-sim/pkg/logger"
)

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "runway-sim.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Batch() != config.Default().Batch() {
		t.Errorf("sample config %+v differs from defaults %+v", cfg.Batch(), config.Default().Batch())
	}
}

func TestRunBatchStoresAndPrints(t *testing.T) {
	cfg := config.Default()
	cfg.Trials.Count = 4
	cfg.Simulation.Frames = 1000
	cfg.Storage.Enabled = true
	cfg.Storage.Path = filepath.Join(t.TempDir(), "runs.db")

	var out bytes.Buffer
	if err := runBatch(context.Background(), cfg, logger.NewNop(), &out); err != nil {
		t.Fatalf("runBatch: %v", err)
	}

	text := out.String()
	for _, want := range []string{"4 trials", "1,000 frames", "control", "test", "crash rate"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}

	db, err := sqlite.Open(cfg.Storage.Path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	storage, err := sqlite.NewRunStorage(db, logger.NewNop())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	runs, err := storage.GetRecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("GetRecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Config.Trials != 4 {
		t.Fatalf("stored runs = %+v", runs)
	}
}

func TestRunBatchCancelled(t *testing.T) {
	cfg := config.Default()
	cfg.Trials.Count = 8

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	if err := runBatch(ctx, cfg, logger.NewNop(), &out); err == nil {
		t.Fatalf("expected error for cancelled batch")
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output for cancelled batch: %s", out.String())
	}
}

func setFlag(t *testing.T, name, value, restore string) {
	t.Helper()
	if err := flag.Set(name, value); err != nil {
		t.Fatalf("set -%s: %v", name, err)
	}
	t.Cleanup(func() { _ = flag.Set(name, restore) })
}

func TestExplicitZeroFlagsOverrideConfig(t *testing.T) {
	defaults := config.Default()

	setFlag(t, "seed", "0", "1")
	cfg, err := loadConfig(setFlags())
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Trials.Seed != 0 {
		t.Errorf("seed = %d, want explicit 0 over configured %d", cfg.Trials.Seed, defaults.Trials.Seed)
	}

	setFlag(t, "runways", "0", "1")
	if _, err := loadConfig(setFlags()); !errors.Is(err, runway.ErrInvalidRunwayCount) {
		t.Errorf("-runways 0: expected ErrInvalidRunwayCount, got %v", err)
	}

	setFlag(t, "runways", "2", "1")
	setFlag(t, "trials", "0", "1000")
	if _, err := loadConfig(setFlags()); !errors.Is(err, trials.ErrInvalidTrialCount) {
		t.Errorf("-trials 0: expected ErrInvalidTrialCount, got %v", err)
	}
}
