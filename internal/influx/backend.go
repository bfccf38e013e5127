package influx

import (
	"context"
	"sync"

	"github.com/OCAP2/drone-tracker/internal/geo"
	"github.com/OCAP2/drone-tracker/pkg/core"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementDroneState = "drone_state"
	MeasurementEvent      = "flight_event"
	MeasurementSession    = "flight_session"
)

// Backend writes telemetry points through a Manager.
type Backend struct {
	manager   *Manager
	projector *geo.Projector

	mu      sync.Mutex
	session string
}

// NewBackend creates a telemetry backend. projector may be nil, in which
// case points carry only grid coordinates.
func NewBackend(manager *Manager, projector *geo.Projector) *Backend {
	return &Backend{manager: manager, projector: projector}
}

func (b *Backend) Init() error {
	return b.manager.Connect(context.Background())
}

func (b *Backend) Close() error {
	return b.manager.Close()
}

func (b *Backend) StartSession(drone *core.Drone, session *core.FlightSession) error {
	b.mu.Lock()
	b.session = session.ID
	b.mu.Unlock()

	p := influxdb2.NewPointWithMeasurement(MeasurementSession).
		AddTag("drone", session.DroneID).
		AddTag("session", session.ID).
		AddTag("phase", "start").
		AddField("battery", session.StartBattery).
		AddField("activeSensors", len(session.ActiveSensors)).
		SetTime(session.StartTime).
		SortTags()
	return b.manager.WritePoint(p)
}

func (b *Backend) EndSession(end core.SessionEnd) error {
	b.mu.Lock()
	if b.session != end.SessionID {
		b.mu.Unlock()
		return nil
	}
	b.session = ""
	b.mu.Unlock()

	p := influxdb2.NewPointWithMeasurement(MeasurementSession).
		AddTag("session", end.SessionID).
		AddTag("phase", "end").
		AddField("battery", end.EndBattery).
		AddField("ticks", end.Ticks).
		AddField("x", end.EndPosition.X).
		AddField("y", end.EndPosition.Y).
		SetTime(end.EndTime).
		SortTags()
	if err := b.manager.WritePoint(p); err != nil {
		return err
	}
	return b.manager.Flush()
}

func (b *Backend) RecordDroneState(s *core.DroneState) error {
	b.mu.Lock()
	current := b.session
	b.mu.Unlock()
	if s.SessionID != "" && s.SessionID != current {
		return nil
	}
	return b.manager.WritePoint(DroneStatePoint(s, b.projector))
}

func (b *Backend) RecordFlightEvent(e *core.FlightEvent) error {
	return b.manager.WritePoint(FlightEventPoint(e))
}

// DroneStatePoint converts a sample into a point. Latitude and longitude
// fields are added when a projector is given.
func DroneStatePoint(s *core.DroneState, projector *geo.Projector) *influxdb2_write.Point {
	p := influxdb2.NewPointWithMeasurement(MeasurementDroneState).
		AddTag("drone", s.DroneID).
		AddField("tick", s.Tick).
		AddField("x", s.Position.X).
		AddField("y", s.Position.Y).
		AddField("battery", s.BatteryPercent).
		SetTime(s.Time)
	if s.SessionID != "" {
		p.AddTag("session", s.SessionID)
	}
	if projector != nil {
		lon, lat := projector.LonLat(s.Position)
		p.AddField("lon", lon).AddField("lat", lat)
	}
	return p.SortTags()
}

// FlightEventPoint converts an event into a point.
func FlightEventPoint(e *core.FlightEvent) *influxdb2_write.Point {
	p := influxdb2.NewPointWithMeasurement(MeasurementEvent).
		AddTag("drone", e.DroneID).
		AddTag("type", string(e.Type)).
		AddField("message", e.Message).
		AddField("battery", e.BatteryPercent).
		AddField("x", e.Position.X).
		AddField("y", e.Position.Y).
		SetTime(e.Time)
	if e.SessionID != "" {
		p.AddTag("session", e.SessionID)
	}
	return p.SortTags()
}
