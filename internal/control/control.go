// Package control applies operator commands to the drone. The Controller
// owns the drone and the update loop of the current flight, and reports
// flight boundaries and events to the recorder.
package control

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/OCAP2/drone-tracker/internal/dispatcher"
	"github.com/OCAP2/drone-tracker/internal/drone"
	"github.com/OCAP2/drone-tracker/internal/session"
	"github.com/OCAP2/drone-tracker/internal/tracker"
	"github.com/OCAP2/drone-tracker/pkg/core"
)

// Command names registered by RegisterHandlers.
const (
	CmdStartFlight = ":START:FLIGHT:"
	CmdLand        = ":LAND:"
	CmdExit        = ":EXIT:"
	CmdStatus      = ":STATUS:"
	CmdSensors     = ":SENSORS:"
	CmdSensorSet   = ":SENSOR:SET:"
)

// ErrUnknownSensor is returned when a sensor name is not attached to the drone.
var ErrUnknownSensor = errors.New("unknown sensor")

// Recorder accepts samples from the update loop and any other record payload.
// Neither method may block.
type Recorder interface {
	tracker.Publisher
	Record(payload any)
}

// Dependencies holds all dependencies for the controller
type Dependencies struct {
	Drone    *drone.Drone
	Sessions *session.Context
	Recorder Recorder
	Logger   *slog.Logger

	// Exit ends the process; os.Exit when nil.
	Exit func(code int)
}

// Controller is the single owner of the drone's update loop.
type Controller struct {
	deps Dependencies

	mu      sync.Mutex
	tracker *tracker.Tracker
}

// New creates a controller for a landed drone.
func New(deps Dependencies) *Controller {
	if deps.Sessions == nil {
		deps.Sessions = session.NewContext()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Exit == nil {
		deps.Exit = os.Exit
	}
	if deps.Recorder == nil {
		deps.Recorder = discard{}
	}
	return &Controller{deps: deps}
}

// StartFlight takes off and starts a new update loop. It fails with
// drone.ErrInsufficientBattery below the takeoff threshold, in which case
// nothing moves and no loop is created. Starting while already flying does
// nothing.
func (c *Controller) StartFlight() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.deps.Drone
	if d.IsFlying() {
		c.deps.Logger.Info("Drone already flying", "drone", d.ID())
		return nil
	}

	if err := d.StartFlight(); err != nil {
		c.deps.Logger.Warn("Takeoff denied", "drone", d.ID(), "battery", d.BatteryPercent(), "error", err)
		c.event(core.EventDenied, "", fmt.Sprintf("Takeoff denied: %v", err))
		return err
	}

	desc := d.Describe()
	s := c.deps.Sessions.Begin(d.Snapshot(), activeSensors(desc.Sensors))
	c.deps.Recorder.Record(&core.SessionStart{Drone: &desc, Session: s})

	msg := fmt.Sprintf("Drone %s started flying...", d.ID())
	c.event(core.EventTakeoff, s.ID, msg)
	c.deps.Logger.Info(msg, "session", s.ID, "battery", s.StartBattery)

	t := tracker.New(d, c.deps.Recorder, c.deps.Logger, s.ID)
	t.OnDepleted(func(state core.DroneState) {
		c.deps.Recorder.Record(&core.FlightEvent{
			DroneID:        state.DroneID,
			SessionID:      state.SessionID,
			Time:           state.Time,
			Type:           core.EventBatteryDepleted,
			Message:        fmt.Sprintf("Battery depleted at (%d, %d)", state.Position.X, state.Position.Y),
			BatteryPercent: state.BatteryPercent,
			Position:       state.Position,
		})
	})
	c.tracker = t
	t.Start()
	return nil
}

// Land stops the update loop and closes the flight. Landing a landed drone
// changes nothing.
func (c *Controller) Land() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deps.Drone.Land()

	var ticks uint64
	if c.tracker != nil {
		c.tracker.Stop()
		ticks = c.tracker.Ticks()
		c.tracker = nil
	}

	end, ok := c.deps.Sessions.End(c.deps.Drone.Snapshot(), ticks)
	if !ok {
		return
	}
	c.event(core.EventLanded, end.SessionID, "Drone landed safely.")
	c.deps.Recorder.Record(end)
	c.deps.Logger.Info("Drone landed safely.", "session", end.SessionID, "ticks", ticks, "battery", end.EndBattery)
}

// Exit terminates the program with status 0.
func (c *Controller) Exit() {
	c.deps.Logger.Info("Exiting", "drone", c.deps.Drone.ID())
	c.deps.Exit(0)
}

// Tracker returns the loop of the current flight, nil when landed.
func (c *Controller) Tracker() *tracker.Tracker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker
}

// Status returns the current state, stamped with the open session.
func (c *Controller) Status() core.DroneState {
	st := c.deps.Drone.Snapshot()
	if s := c.deps.Sessions.Current(); s != nil {
		st.SessionID = s.ID
	}
	return st
}

// Sensors lists the attached sensors.
func (c *Controller) Sensors() []core.Sensor {
	return c.deps.Drone.Describe().Sensors
}

// SetSensor switches a sensor on or off.
func (c *Controller) SetSensor(name string, active bool) error {
	s, ok := c.deps.Drone.Sensor(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSensor, name)
	}
	if active {
		s.Activate()
	} else {
		s.Deactivate()
	}

	sessionID := ""
	if cur := c.deps.Sessions.Current(); cur != nil {
		sessionID = cur.ID
	}
	c.event(core.EventSensorToggled, sessionID, s.StatusLine())
	c.deps.Logger.Info(s.StatusLine())
	return nil
}

// ShowSensors prints one status line per sensor.
func (c *Controller) ShowSensors(w io.Writer) {
	for _, s := range c.deps.Drone.Sensors() {
		fmt.Fprintln(w, s.StatusLine())
	}
}

func (c *Controller) event(typ core.FlightEventType, sessionID, msg string) {
	st := c.deps.Drone.Snapshot()
	c.deps.Recorder.Record(&core.FlightEvent{
		DroneID:        st.DroneID,
		SessionID:      sessionID,
		Time:           st.Time,
		Type:           typ,
		Message:        msg,
		BatteryPercent: st.BatteryPercent,
		Position:       st.Position,
	})
}

// RegisterHandlers exposes the commands on d.
func (c *Controller) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(CmdStartFlight, func(dispatcher.Event) (any, error) {
		return nil, c.StartFlight()
	}, dispatcher.Logged())

	d.Register(CmdLand, func(dispatcher.Event) (any, error) {
		c.Land()
		return nil, nil
	}, dispatcher.Logged())

	d.Register(CmdExit, func(dispatcher.Event) (any, error) {
		c.Exit()
		return nil, nil
	}, dispatcher.Logged())

	d.Register(CmdStatus, func(dispatcher.Event) (any, error) {
		return c.Status(), nil
	}, dispatcher.Logged())

	d.Register(CmdSensors, func(dispatcher.Event) (any, error) {
		return c.Sensors(), nil
	}, dispatcher.Logged())

	d.Register(CmdSensorSet, func(e dispatcher.Event) (any, error) {
		if len(e.Args) != 2 {
			return nil, fmt.Errorf("usage: sensor <name> on|off")
		}
		active, err := parseSwitch(e.Args[1])
		if err != nil {
			return nil, err
		}
		return nil, c.SetSensor(e.Args[0], active)
	}, dispatcher.Logged())
}

func parseSwitch(v string) (bool, error) {
	switch v {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid sensor state %q, want on or off", v)
}

func activeSensors(sensors []core.Sensor) []string {
	out := make([]string, 0, len(sensors))
	for _, s := range sensors {
		if s.Active {
			out = append(out, s.Name)
		}
	}
	return out
}

type discard struct{}

func (discard) Publish(core.DroneState) {}
func (discard) Record(any)              {}
