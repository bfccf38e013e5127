// pkg/core/events.go
package core

import "time"

// FlightEventType classifies operator-visible flight events.
type FlightEventType string

const (
	EventTakeoff         FlightEventType = "takeoff"
	EventLanded          FlightEventType = "landed"
	EventDenied          FlightEventType = "denied"
	EventBatteryDepleted FlightEventType = "battery_depleted"
	EventSensorToggled   FlightEventType = "sensor_toggled"
)

// FlightEvent is a discrete event raised by the controller or the update loop.
type FlightEvent struct {
	DroneID        string          `json:"droneId"`
	SessionID      string          `json:"sessionId,omitempty"`
	Time           time.Time       `json:"time"`
	Type           FlightEventType `json:"type"`
	Message        string          `json:"message"`
	BatteryPercent float64         `json:"batteryPercent"`
	Position       Position2D      `json:"position"`
}
