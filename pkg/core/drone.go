// pkg/core/drone.go
package core

import "time"

// Drone describes the simulated vehicle being tracked.
type Drone struct {
	ID      string   `json:"id"`
	Sensors []Sensor `json:"sensors"`
}

// Sensor is a named, independently togglable payload flag.
type Sensor struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Position2D is a position on the local integer grid, origin at the launch point.
type Position2D struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DroneState is one published sample of the drone.
// Tick is zero for samples taken outside the update loop (status requests).
type DroneState struct {
	DroneID        string     `json:"droneId"`
	SessionID      string     `json:"sessionId,omitempty"`
	Time           time.Time  `json:"time"`
	Tick           uint64     `json:"tick"`
	Position       Position2D `json:"position"`
	BatteryPercent float64    `json:"batteryPercent"`
	Flying         bool       `json:"flying"`
}
