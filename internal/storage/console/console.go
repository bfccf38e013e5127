// Package console renders drone samples as status lines on a terminal.
package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/OCAP2/drone-tracker/pkg/core"
)

// Backend writes a human-readable line for every session boundary, sample
// and event.
type Backend struct {
	mu  sync.Mutex
	out io.Writer
}

// New creates a console backend writing to out.
func New(out io.Writer) *Backend {
	return &Backend{out: out}
}

func (b *Backend) Init() error  { return nil }
func (b *Backend) Close() error { return nil }

func (b *Backend) printf(format string, args ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := fmt.Fprintf(b.out, format, args...)
	return err
}

// StartSession announces the takeoff.
func (b *Backend) StartSession(drone *core.Drone, session *core.FlightSession) error {
	return b.printf("Drone %s started flying...\nStatus: Flying...\n", drone.ID)
}

// EndSession announces the landing.
func (b *Backend) EndSession(end core.SessionEnd) error {
	return b.printf("Status: Landed\nBattery: %.1f%%\nDrone landed safely.\n", end.EndBattery)
}

// RecordDroneState prints the latest battery and position.
func (b *Backend) RecordDroneState(s *core.DroneState) error {
	return b.printf("Battery: %.1f%% Position: (%d, %d)\n", s.BatteryPercent, s.Position.X, s.Position.Y)
}

// RecordFlightEvent prints events that have no session boundary of their own.
func (b *Backend) RecordFlightEvent(e *core.FlightEvent) error {
	switch e.Type {
	case core.EventBatteryDepleted:
		return b.printf("Warning: battery depleted at (%d, %d)\n", e.Position.X, e.Position.Y)
	case core.EventSensorToggled:
		return b.printf("%s\n", e.Message)
	}
	return nil
}
