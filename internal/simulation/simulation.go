package simulation

import (
	"errors"
	"fmt"

	"github.com/yegors/runway-sim/internal/airplane"
	"github.com/yegors/runway-sim/internal/rand"
	"github.com/yegors/runway-sim/internal/runway"
)

const (
	DefaultFrames           = 10000
	DefaultSpawnProbability = 1.0 / 100
)

var (
	ErrInvalidSpawnProbability = errors.New("spawn probability must be within [0, 1]")
	ErrInvalidFrames           = errors.New("frame horizon must not be negative")
)

// Config describes a single trial
type Config struct {
	Frames           int           `json:"frames"`
	SpawnProbability float64       `json:"spawn_probability"`
	Policy           runway.Policy `json:"policy"`
	// Control tags the trial as a member of the control group. It only
	// labels the result; the admission behaviour comes from Policy.
	Control bool `json:"control"`
}

// Validate checks the trial configuration for misuse
func (c Config) Validate() error {
	if c.Frames < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidFrames, c.Frames)
	}
	// written so NaN is rejected too
	if !(c.SpawnProbability >= 0 && c.SpawnProbability <= 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidSpawnProbability, c.SpawnProbability)
	}
	return c.Policy.Validate()
}

// Result is what a finished trial reports to the aggregator
type Result struct {
	Trial       int  `json:"trial"`
	Control     bool `json:"control"`
	Crashes     int  `json:"crashes"`
	Landed      int  `json:"landed"`
	Spawned     int  `json:"spawned"`
	Admissions  int  `json:"admissions"`
	Preemptions int  `json:"preemptions"`
	Frames      int  `json:"frames"`
}

// Simulation is one trial: a growing set of airplanes advanced frame by
// frame until the horizon.
type Simulation struct {
	config    Config
	engine    *runway.Engine
	source    rand.Source
	sink      EventSink
	airplanes []airplane.Airplane
	frame     int

	admissions  int
	preemptions int
}

// New creates a trial. A nil sink discards events.
func New(config Config, source rand.Source, sink EventSink) (*Simulation, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trial config: %w", err)
	}
	engine, err := runway.NewEngine(config.Policy)
	if err != nil {
		return nil, fmt.Errorf("invalid trial config: %w", err)
	}
	if source == nil {
		return nil, errors.New("random source is required")
	}
	if sink == nil {
		sink = NopSink{}
	}

	return &Simulation{
		config: config,
		engine: engine,
		source: source,
		sink:   sink,
	}, nil
}

// Run advances the trial to its horizon and returns the result
func (s *Simulation) Run() Result {
	for !s.Done() {
		s.Step()
	}
	return s.Result()
}

// Done reports whether the frame horizon has been reached
func (s *Simulation) Done() bool {
	return s.frame >= s.config.Frames
}

// Step runs one frame: spawn, tick, arbitrate
func (s *Simulation) Step() {
	if s.Done() {
		return
	}

	if s.source.Bernoulli(s.config.SpawnProbability) {
		s.AddAirplane(s.source.IntRange(airplane.MinInitialFuel, airplane.MaxInitialFuel))
	}

	d := s.engine.Step(s.airplanes)

	for _, i := range d.Touchdowns {
		s.sink.Record(newEvent(s.frame, EventLanded, s.airplanes[i]))
	}
	for _, i := range d.Crashes {
		s.sink.Record(newEvent(s.frame, EventCrashed, s.airplanes[i]))
	}
	if d.Preempted.Valid {
		s.preemptions++
		s.sink.Record(newEvent(s.frame, EventLandingHalted, s.airplanes[d.Preempted.Index]))
	}
	if d.Admitted.Valid {
		s.admissions++
		s.sink.Record(newEvent(s.frame, EventLandingStarted, s.airplanes[d.Admitted.Index]))
	}

	s.frame++
}

// AddAirplane appends a new airplane with the given fuel and returns its ID.
// IDs are 1-based over every airplane ever created.
func (s *Simulation) AddAirplane(fuel int) int {
	a := airplane.New(len(s.airplanes)+1, fuel)
	s.airplanes = append(s.airplanes, a)
	s.sink.Record(newEvent(s.frame, EventEntered, a))
	return a.ID
}

// Frame returns the number of frames run so far
func (s *Simulation) Frame() int {
	return s.frame
}

// Config returns the trial configuration
func (s *Simulation) Config() Config {
	return s.config
}

// Airplanes returns a snapshot of every airplane, in arrival order
func (s *Simulation) Airplanes() []airplane.Airplane {
	return append([]airplane.Airplane(nil), s.airplanes...)
}

// Result tallies the airplanes as of the current frame
func (s *Simulation) Result() Result {
	r := Result{
		Control:     s.config.Control,
		Spawned:     len(s.airplanes),
		Admissions:  s.admissions,
		Preemptions: s.preemptions,
		Frames:      s.frame,
	}
	for i := range s.airplanes {
		switch {
		case s.airplanes[i].Crashed:
			r.Crashes++
		case s.airplanes[i].Landed:
			r.Landed++
		}
	}
	return r
}
