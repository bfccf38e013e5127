package worker

import (
	"log/slog"
	"sync/atomic"

	"github.com/OCAP2/drone-tracker/internal/dispatcher"
	"github.com/OCAP2/drone-tracker/pkg/core"
)

// Publisher turns samples and flight events into record dispatches. It
// never blocks: a payload the record queue cannot take is counted and
// dropped.
type Publisher struct {
	d       *dispatcher.Dispatcher
	logger  *slog.Logger
	dropped atomic.Uint64
}

// NewPublisher creates a Publisher dispatching on d.
func NewPublisher(d *dispatcher.Dispatcher, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{d: d, logger: logger}
}

// Record dispatches one payload.
func (p *Publisher) Record(payload any) {
	if _, err := p.d.Dispatch(dispatcher.Event{Command: RecordCommand, Payload: payload}); err != nil {
		p.dropped.Add(1)
		p.logger.Debug("Record dropped", "payload", payloadName(payload), "error", err)
	}
}

// Publish records one update loop sample.
func (p *Publisher) Publish(state core.DroneState) {
	p.Record(&state)
}

// Dropped returns how many payloads were discarded.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

func payloadName(payload any) string {
	switch payload.(type) {
	case *core.SessionStart:
		return "session_start"
	case core.SessionEnd:
		return "session_end"
	case *core.DroneState:
		return "drone_state"
	case *core.FlightEvent:
		return "flight_event"
	}
	return "unknown"
}
