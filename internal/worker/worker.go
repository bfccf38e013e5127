// Package worker connects the dispatcher to the storage backends. All
// recording goes through one buffered command so backends observe session
// start, samples, events and session end in the order they happened.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/drone-tracker/internal/api"
	"github.com/OCAP2/drone-tracker/internal/dispatcher"
	"github.com/OCAP2/drone-tracker/internal/logging"
	"github.com/OCAP2/drone-tracker/internal/storage"
	"github.com/OCAP2/drone-tracker/pkg/core"
)

// RecordCommand carries every payload bound for the backends.
const RecordCommand = ":RECORD:"

// DefaultQueueSize is the capacity of the record queue.
const DefaultQueueSize = 10000

// uploadTimeout bounds a single recording upload.
const uploadTimeout = 2 * time.Minute

// Uploader sends an exported recording to the recordings server.
type Uploader interface {
	Upload(ctx context.Context, filePath string, meta core.UploadMetadata) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	LogManager *logging.SlogManager
	Uploader   Uploader // nil disables uploads
	QueueSize  int
}

// Stats counts the payloads handed to the backend.
type Stats struct {
	Sessions uint64
	States   uint64
	Events   uint64
	Errors   uint64
	Uploads  uint64
}

// Manager feeds recorded payloads to a storage backend.
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	sessions atomic.Uint64
	states   atomic.Uint64
	events   atomic.Uint64
	errors   atomic.Uint64
	uploads  atomic.Uint64

	uploadWG sync.WaitGroup
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.QueueSize <= 0 {
		deps.QueueSize = DefaultQueueSize
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// RegisterHandlers registers the record handler with the dispatcher.
// Enqueueing never blocks the update loop; payloads are dropped when the
// queue is full.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(RecordCommand, m.handleRecord, dispatcher.Buffered(m.deps.QueueSize))
}

func (m *Manager) handleRecord(e dispatcher.Event) (any, error) {
	var err error
	switch p := e.Payload.(type) {
	case *core.SessionStart:
		m.sessions.Add(1)
		err = m.backend.StartSession(p.Drone, p.Session)
	case core.SessionEnd:
		err = m.backend.EndSession(p)
		m.uploadExports(p.SessionID)
	case *core.DroneState:
		m.states.Add(1)
		err = m.backend.RecordDroneState(p)
	case *core.FlightEvent:
		m.events.Add(1)
		err = m.backend.RecordFlightEvent(p)
	default:
		err = fmt.Errorf("unsupported record payload %T", e.Payload)
	}
	if err != nil {
		m.errors.Add(1)
		return nil, err
	}
	return nil, nil
}

// uploadables lists the backends producing upload files.
func (m *Manager) uploadables() []storage.Uploadable {
	switch b := m.backend.(type) {
	case *storage.Multi:
		return b.Uploadables()
	case storage.Uploadable:
		return []storage.Uploadable{b}
	}
	return nil
}

// uploadExports sends every export of sessionID in the background.
func (m *Manager) uploadExports(sessionID string) {
	if m.deps.Uploader == nil {
		return
	}
	log := m.deps.LogManager.Logger()

	for _, u := range m.uploadables() {
		path := u.GetExportedFilePath()
		meta := u.GetExportMetadata()
		if path == "" || meta.SessionID != sessionID {
			continue
		}

		m.uploadWG.Add(1)
		go func() {
			defer m.uploadWG.Done()
			ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
			defer cancel()

			if err := m.deps.Uploader.Upload(ctx, path, meta); err != nil {
				m.errors.Add(1)
				log.Error("Failed to upload recording", "path", path, "session", sessionID,
					"rejected", api.IsRejected(err), "error", err)
				return
			}
			m.uploads.Add(1)
			log.Info("Recording uploaded", "path", path, "session", sessionID)
		}()
	}
}

// WaitUploads blocks until uploads started so far have finished.
func (m *Manager) WaitUploads() {
	m.uploadWG.Wait()
}

// Stats returns the counters since start-up.
func (m *Manager) Stats() Stats {
	return Stats{
		Sessions: m.sessions.Load(),
		States:   m.states.Load(),
		Events:   m.events.Load(),
		Errors:   m.errors.Load(),
		Uploads:  m.uploads.Load(),
	}
}
