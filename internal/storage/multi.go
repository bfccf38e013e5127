package storage

import (
	"errors"
	"fmt"

	"github.com/OCAP2/drone-tracker/pkg/core"
)

// Multi fans every call out to a fixed list of backends. A failing backend
// does not stop the others; all errors are returned joined.
type Multi struct {
	backends []Backend
	names    []string
}

// NewMulti combines backends. names label errors and may be shorter than
// backends, in which case the index is used.
func NewMulti(backends []Backend, names []string) *Multi {
	return &Multi{backends: backends, names: names}
}

// Backends returns the wrapped backends in call order.
func (m *Multi) Backends() []Backend {
	return m.backends
}

// Uploadables returns every wrapped backend that produces an upload file.
func (m *Multi) Uploadables() []Uploadable {
	var out []Uploadable
	for _, b := range m.backends {
		if u, ok := b.(Uploadable); ok {
			out = append(out, u)
		}
	}
	return out
}

func (m *Multi) name(i int) string {
	if i < len(m.names) {
		return m.names[i]
	}
	return fmt.Sprintf("backend %d", i)
}

func (m *Multi) each(fn func(Backend) error) error {
	var errs []error
	for i, b := range m.backends {
		if err := fn(b); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.name(i), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Init() error {
	return m.each(func(b Backend) error { return b.Init() })
}

func (m *Multi) Close() error {
	return m.each(func(b Backend) error { return b.Close() })
}

func (m *Multi) StartSession(drone *core.Drone, session *core.FlightSession) error {
	return m.each(func(b Backend) error { return b.StartSession(drone, session) })
}

func (m *Multi) EndSession(end core.SessionEnd) error {
	return m.each(func(b Backend) error { return b.EndSession(end) })
}

func (m *Multi) RecordDroneState(s *core.DroneState) error {
	return m.each(func(b Backend) error { return b.RecordDroneState(s) })
}

func (m *Multi) RecordFlightEvent(e *core.FlightEvent) error {
	return m.each(func(b Backend) error { return b.RecordFlightEvent(e) })
}
