// internal/storage/memory/memory.go
package memory

import (
	"sync"

	"github.com/OCAP2/drone-tracker/internal/config"
	"github.com/OCAP2/drone-tracker/pkg/core"
)

// FlightRecord groups a session with all the samples and events recorded
// while it was open.
type FlightRecord struct {
	Drone   core.Drone
	Session core.FlightSession
	States  []core.DroneState
	Events  []core.FlightEvent
	End     *core.SessionEnd
}

// Backend stores flight data in memory and exports each finished session
// to JSON.
type Backend struct {
	cfg config.MemoryConfig

	current  *FlightRecord
	finished []*FlightRecord

	// events raised while landed (denied takeoffs, sensor toggles)
	groundEvents []core.FlightEvent

	lastExportPath string
	lastExport     *FlightRecord
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new flight. A session left open is
// discarded without export.
func (b *Backend) StartSession(drone *core.Drone, session *core.FlightSession) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = &FlightRecord{
		Drone:   *drone,
		Session: *session,
		States:  make([]core.DroneState, 0),
	}
	return nil
}

// EndSession finalizes and exports the open session.
func (b *Backend) EndSession(end core.SessionEnd) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil || b.current.Session.ID != end.SessionID {
		return nil
	}

	rec := b.current
	rec.End = &end
	b.current = nil
	b.finished = append(b.finished, rec)

	return b.exportJSON(rec)
}

// RecordDroneState appends a sample to the open session. Samples for any
// other session are ignored.
func (b *Backend) RecordDroneState(s *core.DroneState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil || b.current.Session.ID != s.SessionID {
		return nil
	}
	b.current.States = append(b.current.States, *s)
	return nil
}

// RecordFlightEvent records an event against the open session, or as a
// ground event when none is open.
func (b *Backend) RecordFlightEvent(e *core.FlightEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current != nil && (e.SessionID == "" || e.SessionID == b.current.Session.ID) {
		b.current.Events = append(b.current.Events, *e)
		return nil
	}
	b.groundEvents = append(b.groundEvents, *e)
	return nil
}

// Current returns a copy of the open session's record.
func (b *Backend) Current() (FlightRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.current == nil {
		return FlightRecord{}, false
	}
	return copyRecord(b.current), true
}

// Finished returns copies of every ended session, oldest first.
func (b *Backend) Finished() []FlightRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]FlightRecord, 0, len(b.finished))
	for _, rec := range b.finished {
		out = append(out, copyRecord(rec))
	}
	return out
}

// GroundEvents returns events recorded while no session was open.
func (b *Backend) GroundEvents() []core.FlightEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]core.FlightEvent(nil), b.groundEvents...)
}

func copyRecord(r *FlightRecord) FlightRecord {
	c := *r
	c.States = append([]core.DroneState(nil), r.States...)
	c.Events = append([]core.FlightEvent(nil), r.Events...)
	return c
}

// GetExportedFilePath returns the path of the last exported session file.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// GetExportMetadata describes the last exported session for upload.
func (b *Backend) GetExportMetadata() core.UploadMetadata {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.lastExport == nil {
		return core.UploadMetadata{}
	}

	rec := b.lastExport
	meta := core.UploadMetadata{
		DroneID:   rec.Drone.ID,
		SessionID: rec.Session.ID,
		Tag:       "flight",
	}
	if rec.End != nil {
		meta.FlightDuration = rec.End.EndTime.Sub(rec.Session.StartTime).Seconds()
	}
	return meta
}
