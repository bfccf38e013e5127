// pkg/core/session.go
package core

import "time"

// FlightSession spans one successful takeoff up to the following landing.
type FlightSession struct {
	ID            string     `json:"id"`
	DroneID       string     `json:"droneId"`
	StartTime     time.Time  `json:"startTime"`
	StartBattery  float64    `json:"startBattery"`
	StartPosition Position2D `json:"startPosition"`
	ActiveSensors []string   `json:"activeSensors"`
}

// SessionEnd closes the session with the given ID.
type SessionEnd struct {
	SessionID   string     `json:"sessionId"`
	EndTime     time.Time  `json:"endTime"`
	EndBattery  float64    `json:"endBattery"`
	EndPosition Position2D `json:"endPosition"`
	Ticks       uint64     `json:"ticks"`
}

// UploadMetadata contains metadata for uploading a flight recording.
type UploadMetadata struct {
	DroneID        string
	SessionID      string
	FlightDuration float64
	Tag            string
}

// SessionStart announces a new session together with the drone flying it.
type SessionStart struct {
	Drone   *Drone         `json:"drone"`
	Session *FlightSession `json:"session"`
}
