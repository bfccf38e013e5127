package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&TrackerInfo{},
	&Drone{},
	&FlightSession{},
	&DroneState{},
	&FlightEvent{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// TrackerInfo identifies the installation that produced the recordings
type TrackerInfo struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	CreatedAt   time.Time `json:"createdAt"`
	Name        string    `json:"name" gorm:"size:127"`
	Description string    `json:"description" gorm:"size:255"`
}

func (*TrackerInfo) TableName() string {
	return "tracker_infos"
}

////////////////////////
// FLIGHT MODELS
////////////////////////

// Drone is the tracked vehicle. Sensors holds the names attached at start-up.
type Drone struct {
	ID        string         `json:"id" gorm:"primarykey;size:64"`
	CreatedAt time.Time      `json:"createdAt"`
	Sensors   datatypes.JSON `json:"sensors"`
}

func (*Drone) TableName() string {
	return "drones"
}

// FlightSession spans one takeoff to the following landing
type FlightSession struct {
	ID            string         `json:"id" gorm:"primarykey;size:36"`
	DroneID       string         `json:"droneId" gorm:"size:64;index:idx_flightsession_drone_id"`
	Drone         Drone          `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:DroneID;"`
	StartTime     time.Time      `json:"startTime"`
	EndTime       *time.Time     `json:"endTime"` // nil while in flight
	StartBattery  float64        `json:"startBattery"`
	EndBattery    float64        `json:"endBattery"`
	Home          geom.Point     `json:"home"`                     // launch point, EPSG:3857
	Path          geom.Geometry  `json:"-"`                        // LineString of every sample, written on landing
	Distance      float64        `json:"distance" gorm:"default:0"` // metres along the local grid
	Ticks         uint64         `json:"ticks" gorm:"default:0"`
	ActiveSensors datatypes.JSON `json:"activeSensors"`
}

func (*FlightSession) TableName() string {
	return "flight_sessions"
}

// DroneState is one update loop sample
type DroneState struct {
	ID              uint          `json:"id" gorm:"primarykey;autoIncrement;"`
	Time            time.Time     `json:"time"`
	FlightSessionID string        `json:"flightSessionId" gorm:"size:36;index:idx_dronestate_session_id"`
	FlightSession   FlightSession `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:FlightSessionID;"`
	Tick            uint64        `json:"tick" gorm:"index:idx_dronestate_tick"`
	X               int           `json:"x"`
	Y               int           `json:"y"`
	Position        geom.Point    `json:"position"` // X/Y projected around the home point, EPSG:3857
	BatteryPercent  float64       `json:"batteryPercent"`
}

func (*DroneState) TableName() string {
	return "drone_states"
}

// FlightEvent is a discrete event. FlightSessionID is nil for events raised
// on the ground, such as a denied takeoff.
type FlightEvent struct {
	ID              uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	Time            time.Time `json:"time"`
	DroneID         string    `json:"droneId" gorm:"size:64;index:idx_flightevent_drone_id"`
	FlightSessionID *string   `json:"flightSessionId" gorm:"size:36;index:idx_flightevent_session_id"`
	Type            string    `json:"type" gorm:"size:32"`
	Message         string    `json:"message"`
	BatteryPercent  float64   `json:"batteryPercent"`
	X               int       `json:"x"`
	Y               int       `json:"y"`
}

func (*FlightEvent) TableName() string {
	return "flight_events"
}
