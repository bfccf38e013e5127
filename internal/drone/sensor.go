package drone

import (
	"fmt"
	"sync/atomic"

	"github.com/OCAP2/drone-tracker/pkg/core"
)

// Sensor is a cosmetic payload with an on/off flag. Toggling it has no
// effect on flight.
type Sensor struct {
	name   string
	active atomic.Bool
}

// NewSensor returns an active sensor.
func NewSensor(name string) *Sensor {
	s := &Sensor{name: name}
	s.active.Store(true)
	return s
}

func (s *Sensor) Name() string { return s.name }

func (s *Sensor) IsActive() bool { return s.active.Load() }

func (s *Sensor) Activate() { s.active.Store(true) }

func (s *Sensor) Deactivate() { s.active.Store(false) }

// StatusLine formats the sensor as "Sensor <name> status: Active|Inactive".
func (s *Sensor) StatusLine() string {
	status := "Inactive"
	if s.IsActive() {
		status = "Active"
	}
	return fmt.Sprintf("Sensor %s status: %s", s.name, status)
}

// Core converts to the exported representation.
func (s *Sensor) Core() core.Sensor {
	return core.Sensor{Name: s.name, Active: s.IsActive()}
}
