// Package websocket streams flight telemetry to a remote viewer over a
// WebSocket. Samples and events are fire-and-forget; session boundaries
// wait for the server's ack.
package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/OCAP2/drone-tracker/pkg/core"
	"github.com/OCAP2/drone-tracker/pkg/streaming"
)

// drainTimeout bounds how long Close waits for queued messages.
const drainTimeout = 2 * time.Second

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn *connection
	cfg  Config

	mu      sync.Mutex
	session string
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger.With("backend", "websocket")),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close flushes queued messages and disconnects.
func (b *Backend) Close() error {
	b.conn.drain(drainTimeout)
	return b.conn.close()
}

// Connected reports whether a connection is currently up.
func (b *Backend) Connected() bool {
	return b.conn.connected.Load()
}

// Dropped returns the number of messages discarded because the send queue was full.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped.Load()
}

func (b *Backend) send(msgType string, payload any) error {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

func (b *Backend) currentSession() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// StartSession announces the flight and waits for the server ack.
func (b *Backend) StartSession(drone *core.Drone, session *core.FlightSession) error {
	data, err := streaming.Marshal(streaming.TypeStartSession, streaming.StartSessionPayload{Drone: drone, Session: session})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.session = session.ID
	b.mu.Unlock()
	b.conn.setReplay(data)

	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession closes the flight and waits for the server ack.
func (b *Backend) EndSession(end core.SessionEnd) error {
	b.mu.Lock()
	if b.session != end.SessionID {
		b.mu.Unlock()
		return nil
	}
	b.session = ""
	b.mu.Unlock()

	data, err := streaming.Marshal(streaming.TypeEndSession, end)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)

	// no replay once landed, regardless of the ack
	b.conn.setReplay(nil)
	return err
}

func (b *Backend) RecordDroneState(s *core.DroneState) error {
	if s.SessionID != b.currentSession() {
		return nil
	}
	return b.send(streaming.TypeDroneState, s)
}

func (b *Backend) RecordFlightEvent(e *core.FlightEvent) error {
	return b.send(streaming.TypeFlightEvent, e)
}
