package simulation

import (
	"context"
	"sync"

	"github.com/yegors/runway-sim/internal/airplane"
	"github.com/yegors/runway-sim/pkg/logger"
)

// EventType names an observable airplane transition
type EventType string

const (
	EventEntered        EventType = "entered"
	EventLandingStarted EventType = "landing_started"
	EventLandingHalted  EventType = "landing_halted"
	EventLanded         EventType = "landed"
	EventCrashed        EventType = "crashed"
)

// Event is a single frame-level observation. Sinks never feed back into the
// simulation.
type Event struct {
	Frame      int       `json:"frame"`
	Type       EventType `json:"type"`
	AirplaneID int       `json:"airplane_id"`
	Fuel       int       `json:"fuel"`
	Altitude   int       `json:"altitude"`
}

func newEvent(frame int, t EventType, a airplane.Airplane) Event {
	return Event{
		Frame:      frame,
		Type:       t,
		AirplaneID: a.ID,
		Fuel:       a.Fuel,
		Altitude:   a.Altitude,
	}
}

// EventSink receives frame events
type EventSink interface {
	Record(Event)
}

// NopSink discards all events
type NopSink struct{}

func (NopSink) Record(Event) {}

// Recorder keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// LoggerSink writes events as debug log lines
type LoggerSink struct {
	logger *logger.Logger
}

// NewLoggerSink creates a sink logging through lg
func NewLoggerSink(lg *logger.Logger) *LoggerSink {
	return &LoggerSink{logger: lg.Named("events")}
}

func (s *LoggerSink) Record(ev Event) {
	s.logger.Debug(string(ev.Type),
		logger.Int("frame", ev.Frame),
		logger.Int("airplane", ev.AirplaneID),
		logger.Int("fuel", ev.Fuel),
		logger.Int("altitude", ev.Altitude))
}

// StreamSink forwards events to a channel until its context is done. A slow
// consumer slows the trial down but never changes its outcome.
type StreamSink struct {
	ctx    context.Context
	events chan<- Event
}

// NewStreamSink creates a sink sending to events
func NewStreamSink(ctx context.Context, events chan<- Event) *StreamSink {
	return &StreamSink{ctx: ctx, events: events}
}

func (s *StreamSink) Record(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

// Tee fans every event out to all sinks
func Tee(sinks ...EventSink) EventSink {
	return teeSink(sinks)
}

type teeSink []EventSink

func (t teeSink) Record(ev Event) {
	for _, s := range t {
		s.Record(ev)
	}
}
