// Package drone holds the state of a single simulated drone.
// All fields are guarded by one mutex; the update loop and the command
// handlers only ever reach them through the methods below.
package drone

import (
	"errors"
	"sync"
	"time"

	"github.com/OCAP2/drone-tracker/pkg/core"
)

const (
	// MinTakeoffBattery is the lowest battery percent a flight may start with.
	MinTakeoffBattery = 20.0

	fullBattery = 100.0
)

// ErrInsufficientBattery is returned by StartFlight when the battery is below MinTakeoffBattery.
var ErrInsufficientBattery = errors.New("battery too low to start flight")

// Option configures a Drone at construction.
type Option func(*Drone)

// WithBattery sets the initial battery percent, clamped to [0, 100].
func WithBattery(percent float64) Option {
	return func(d *Drone) {
		d.battery = clampBattery(percent)
	}
}

// WithSensors attaches sensors with the given names, all active.
func WithSensors(names ...string) Option {
	return func(d *Drone) {
		for _, n := range names {
			d.sensors = append(d.sensors, NewSensor(n))
		}
	}
}

// Drone is the simulated vehicle.
type Drone struct {
	mu      sync.RWMutex
	id      string
	battery float64
	flying  bool
	x, y    int
	sensors []*Sensor
}

// New creates a landed drone at (0, 0) with a full battery.
func New(id string, opts ...Option) *Drone {
	d := &Drone{
		id:      id,
		battery: fullBattery,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ID returns the immutable identifier.
func (d *Drone) ID() string {
	return d.id
}

// StartFlight marks the drone as flying. It fails without touching any
// state when the battery is below MinTakeoffBattery.
func (d *Drone) StartFlight() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.battery < MinTakeoffBattery {
		return ErrInsufficientBattery
	}
	d.flying = true
	return nil
}

// Land clears the flying flag. Safe to call when already landed.
func (d *Drone) Land() {
	d.mu.Lock()
	d.flying = false
	d.mu.Unlock()
}

// MoveTo sets the absolute position.
func (d *Drone) MoveTo(x, y int) {
	d.mu.Lock()
	d.x, d.y = x, y
	d.mu.Unlock()
}

// DrainBattery subtracts amount from the battery, never going below zero.
func (d *Drone) DrainBattery(amount float64) {
	d.mu.Lock()
	d.battery = clampBattery(d.battery - amount)
	d.mu.Unlock()
}

// IsFlying reports whether the drone is between a successful start and a land.
func (d *Drone) IsFlying() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.flying
}

// Position returns the current grid position.
func (d *Drone) Position() (x, y int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.x, d.y
}

// BatteryPercent returns the remaining battery in [0, 100].
func (d *Drone) BatteryPercent() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.battery
}

// Step applies one update-loop tick atomically: when flying, the drone is
// moved by (dx, dy) and drained by drain, and the resulting sample is
// returned with ok set. When landed nothing changes and ok is false.
func (d *Drone) Step(dx, dy int, drain float64) (state core.DroneState, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.flying {
		return core.DroneState{}, false
	}
	d.x += dx
	d.y += dy
	d.battery = clampBattery(d.battery - drain)
	return d.snapshotLocked(), true
}

// Snapshot returns the current state as a sample.
func (d *Drone) Snapshot() core.DroneState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked()
}

func (d *Drone) snapshotLocked() core.DroneState {
	return core.DroneState{
		DroneID:        d.id,
		Time:           time.Now(),
		Position:       core.Position2D{X: d.x, Y: d.y},
		BatteryPercent: d.battery,
		Flying:         d.flying,
	}
}

// AddSensor attaches a sensor.
func (d *Drone) AddSensor(s *Sensor) {
	d.mu.Lock()
	d.sensors = append(d.sensors, s)
	d.mu.Unlock()
}

// Sensors returns the attached sensors in attachment order.
func (d *Drone) Sensors() []*Sensor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Sensor, len(d.sensors))
	copy(out, d.sensors)
	return out
}

// Sensor looks up an attached sensor by name.
func (d *Drone) Sensor(name string) (*Sensor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.sensors {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Describe returns the core description of the drone and its sensors.
func (d *Drone) Describe() core.Drone {
	sensors := d.Sensors()
	desc := core.Drone{ID: d.id, Sensors: make([]core.Sensor, 0, len(sensors))}
	for _, s := range sensors {
		desc.Sensors = append(desc.Sensors, s.Core())
	}
	return desc
}

func clampBattery(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > fullBattery {
		return fullBattery
	}
	return v
}
