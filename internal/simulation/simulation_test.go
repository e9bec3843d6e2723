package simulation

import (
	"errors"
	"math"
	"testing"

	"github.com/yegors/runway-sim/internal/airplane"
	"github.com/yegors/runway-sim/internal/rand"
	"github.com/yegors/runway-sim/internal/runway"
)

func testConfig(runways int, reprioritize bool) Config {
	return Config{
		Frames:           DefaultFrames,
		SpawnProbability: DefaultSpawnProbability,
		Policy:           runway.Policy{RunwayCount: runways, Reprioritization: reprioritize},
		Control:          !reprioritize,
	}
}

func mustSim(t *testing.T, cfg Config, src rand.Source, sink EventSink) *Simulation {
	t.Helper()
	s, err := New(cfg, src, sink)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return s
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"zero runways", func(c *Config) { c.Policy.RunwayCount = 0 }, runway.ErrInvalidRunwayCount},
		{"negative runways", func(c *Config) { c.Policy.RunwayCount = -2 }, runway.ErrInvalidRunwayCount},
		{"negative probability", func(c *Config) { c.SpawnProbability = -0.1 }, ErrInvalidSpawnProbability},
		{"probability above one", func(c *Config) { c.SpawnProbability = 1.5 }, ErrInvalidSpawnProbability},
		{"NaN probability", func(c *Config) { c.SpawnProbability = math.NaN() }, ErrInvalidSpawnProbability},
		{"negative frames", func(c *Config) { c.Frames = -1 }, ErrInvalidFrames},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(1, false)
			tt.mutate(&cfg)
			_, err := New(cfg, rand.NewPCG(1), nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestNewRequiresSource(t *testing.T) {
	if _, err := New(testConfig(1, false), nil, nil); err == nil {
		t.Fatalf("expected error for nil source")
	}
}

func TestSpawnAssignsSequentialIDs(t *testing.T) {
	cfg := testConfig(1, false)
	cfg.Frames = 5
	rec := &Recorder{}
	src := &rand.Script{Spawns: []bool{true, false, true, true}, Fuels: []int{400, 300, 200}}
	s := mustSim(t, cfg, src, rec)
	s.Run()

	planes := s.Airplanes()
	if len(planes) != 3 {
		t.Fatalf("expected 3 airplanes, got %d", len(planes))
	}
	for i, p := range planes {
		if p.ID != i+1 {
			t.Errorf("airplane %d has ID %d", i, p.ID)
		}
	}

	var entered []int
	for _, ev := range rec.Events() {
		if ev.Type == EventEntered {
			entered = append(entered, ev.Frame)
		}
	}
	if len(entered) != 3 || entered[0] != 0 || entered[1] != 2 || entered[2] != 3 {
		t.Errorf("entered frames = %v", entered)
	}
}

func TestMinimumFuelAirplaneLands(t *testing.T) {
	cfg := testConfig(1, false)
	cfg.SpawnProbability = 0
	s := mustSim(t, cfg, rand.NewPCG(1), nil)
	s.AddAirplane(airplane.MinInitialFuel)

	for i := 0; i < airplane.InitialAltitude+1; i++ {
		s.Step()
	}
	p := s.Airplanes()[0]
	if !p.Landed || p.Crashed || p.Fuel < 0 {
		t.Fatalf("expected safe landing, got %+v", p)
	}
}

func TestWaitingAirplaneCrashesOnExactFrame(t *testing.T) {
	cfg := testConfig(1, false)
	cfg.SpawnProbability = 0
	rec := &Recorder{}
	s := mustSim(t, cfg, rand.NewPCG(1), rec)
	s.AddAirplane(100) // takes the runway
	s.AddAirplane(100) // waits too long to still cover its descent

	for i := 0; i < 99; i++ {
		s.Step()
	}
	waiter := s.Airplanes()[1]
	if waiter.Crashed || waiter.Fuel != 1 {
		t.Fatalf("unexpected waiter after 99 frames: %+v", waiter)
	}

	s.Step()
	waiter = s.Airplanes()[1]
	if !waiter.Crashed || waiter.Fuel != 0 {
		t.Fatalf("expected crash at fuel 0, got %+v", waiter)
	}

	var crashFrames []int
	for _, ev := range rec.Events() {
		if ev.Type == EventCrashed {
			crashFrames = append(crashFrames, ev.Frame)
		}
	}
	if len(crashFrames) != 1 || crashFrames[0] != 99 {
		t.Errorf("crash frames = %v, want [99]", crashFrames)
	}
}

func TestDeterministicWithSeed(t *testing.T) {
	for _, reprioritize := range []bool{false, true} {
		a := mustSim(t, testConfig(1, reprioritize), rand.NewPCG(2024), nil).Run()
		b := mustSim(t, testConfig(1, reprioritize), rand.NewPCG(2024), nil).Run()
		if a != b {
			t.Errorf("reprioritize=%v: results differ: %+v vs %+v", reprioritize, a, b)
		}
		if a.Frames != DefaultFrames {
			t.Errorf("ran %d frames", a.Frames)
		}
	}
}

// checkFrameInvariants steps the trial to completion, checking the
// per-frame properties along the way.
func checkFrameInvariants(t *testing.T, s *Simulation, rec *Recorder) {
	t.Helper()
	// without reprioritization only one airplane lands at a time
	maxLanding := 1
	if policy := s.Config().Policy; policy.Reprioritization {
		maxLanding = policy.RunwayCount
	}

	for !s.Done() {
		before := s.Airplanes()
		frame := s.Frame()
		s.Step()
		after := s.Airplanes()

		landing := 0
		for i, p := range after {
			if p.Landed && p.Crashed {
				t.Fatalf("frame %d: airplane %d both landed and crashed", frame, p.ID)
			}
			if p.Landing && (p.Landed || p.Crashed) {
				t.Fatalf("frame %d: terminal airplane %d still landing", frame, p.ID)
			}
			if p.Landing {
				landing++
			}
			if i < len(before) && before[i].Terminal() && before[i] != p {
				t.Fatalf("frame %d: terminal airplane changed: %+v -> %+v", frame, before[i], p)
			}
		}
		if landing > maxLanding {
			t.Fatalf("frame %d: %d airplanes landing, limit %d", frame, landing, maxLanding)
		}

		halted := 0
		for _, ev := range rec.Events() {
			if ev.Frame != frame || ev.Type != EventLandingHalted {
				continue
			}
			halted++
			p := after[ev.AirplaneID-1]
			prev := before[ev.AirplaneID-1]
			// exactly one landing tick, no reset
			if p.Altitude != prev.Altitude-airplane.FuelRate {
				t.Fatalf("frame %d: halted airplane altitude %d -> %d", frame, prev.Altitude, p.Altitude)
			}
		}
		if halted > 1 {
			t.Fatalf("frame %d: %d preemptions", frame, halted)
		}
	}
}

func TestFrameInvariants(t *testing.T) {
	tests := []struct {
		name         string
		runways      int
		reprioritize bool
		seed         int64
	}{
		{"control single runway", 1, false, 11},
		{"reprioritized single runway", 1, true, 11},
		{"reprioritized multi runway", 3, true, 12},
		{"control multi runway", 6, false, 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(tt.runways, tt.reprioritize)
			cfg.Frames = 3000
			cfg.SpawnProbability = 0.02 * float64(tt.runways)
			rec := &Recorder{}
			s := mustSim(t, cfg, rand.NewPCG(tt.seed), rec)
			checkFrameInvariants(t, s, rec)
		})
	}
}

func TestResultCountsMatchEvents(t *testing.T) {
	rec := &Recorder{}
	s := mustSim(t, testConfig(1, true), rand.NewPCG(5), rec)
	r := s.Run()

	counts := map[EventType]int{}
	for _, ev := range rec.Events() {
		counts[ev.Type]++
	}
	if counts[EventCrashed] != r.Crashes {
		t.Errorf("crash events %d, result %d", counts[EventCrashed], r.Crashes)
	}
	if counts[EventLanded] != r.Landed {
		t.Errorf("landed events %d, result %d", counts[EventLanded], r.Landed)
	}
	if counts[EventEntered] != r.Spawned {
		t.Errorf("entered events %d, result %d", counts[EventEntered], r.Spawned)
	}
	if counts[EventLandingHalted] != r.Preemptions {
		t.Errorf("halted events %d, result %d", counts[EventLandingHalted], r.Preemptions)
	}
	if counts[EventLandingStarted] != r.Admissions {
		t.Errorf("started events %d, result %d", counts[EventLandingStarted], r.Admissions)
	}
	if r.Control {
		t.Errorf("reprioritized trial tagged as control")
	}
}

func TestStepAfterHorizonIsNoop(t *testing.T) {
	cfg := testConfig(1, false)
	cfg.Frames = 2
	s := mustSim(t, cfg, rand.NewPCG(1), nil)
	s.Run()
	s.Step()
	if s.Frame() != 2 {
		t.Fatalf("frame advanced past horizon: %d", s.Frame())
	}
}
