// Package storage defines the contract every display collaborator implements.
// Backends receive one call per session boundary, published sample and event.
package storage

import "github.com/OCAP2/drone-tracker/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(drone *core.Drone, session *core.FlightSession) error
	EndSession(end core.SessionEnd) error

	// State recording
	RecordDroneState(s *core.DroneState) error

	// Event recording
	RecordFlightEvent(e *core.FlightEvent) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload to the recordings server.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.UploadMetadata
}
