package session

import (
	"sync"
	"time"

	"github.com/OCAP2/drone-tracker/pkg/core"
	"github.com/google/uuid"
)

// Context holds the flight session that is currently open, if any.
type Context struct {
	mu      sync.RWMutex
	current *core.FlightSession
	count   int
}

// NewContext creates a Context with no open session.
func NewContext() *Context {
	return &Context{}
}

// Begin opens a new session for a drone taking off in the given state.
// Any session still open is replaced.
func (c *Context) Begin(state core.DroneState, activeSensors []string) *core.FlightSession {
	s := &core.FlightSession{
		ID:            uuid.NewString(),
		DroneID:       state.DroneID,
		StartTime:     state.Time,
		StartBattery:  state.BatteryPercent,
		StartPosition: state.Position,
		ActiveSensors: activeSensors,
	}
	if s.StartTime.IsZero() {
		s.StartTime = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = s
	c.count++
	return s
}

// End closes the open session and returns its summary. ok is false when no
// session was open.
func (c *Context) End(state core.DroneState, ticks uint64) (core.SessionEnd, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return core.SessionEnd{}, false
	}

	end := core.SessionEnd{
		SessionID:   c.current.ID,
		EndTime:     state.Time,
		EndBattery:  state.BatteryPercent,
		EndPosition: state.Position,
		Ticks:       ticks,
	}
	if end.EndTime.IsZero() {
		end.EndTime = time.Now()
	}
	c.current = nil
	return end, true
}

// Current returns the open session, or nil when the drone is landed.
func (c *Context) Current() *core.FlightSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Count returns how many sessions have been opened since start-up.
func (c *Context) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}
