// Package monitor writes a status file once a second while the program runs.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/OCAP2/drone-tracker/internal/dispatcher"
	"github.com/OCAP2/drone-tracker/internal/logging"
	"github.com/OCAP2/drone-tracker/internal/session"
	"github.com/OCAP2/drone-tracker/internal/worker"
	"github.com/OCAP2/drone-tracker/pkg/core"
)

// StatusFileName is created inside Dependencies.Dir.
const StatusFileName = "status.json"

// DefaultInterval is the refresh period of the status file.
const DefaultInterval = time.Second

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager *logging.SlogManager
	Snapshot   func() core.DroneState
	Sessions   *session.Context
	Worker     *worker.Manager
	Dispatcher *dispatcher.Dispatcher
	Publisher  *worker.Publisher
	Dir        string
	Interval   time.Duration
}

// Status is one snapshot of the program.
type Status struct {
	Time          time.Time       `json:"time"`
	Drone         core.DroneState `json:"drone"`
	SessionID     string          `json:"sessionId,omitempty"`
	SessionsFlown int             `json:"sessionsFlown"`
	RecordQueue   int             `json:"recordQueue"`
	Dropped       uint64          `json:"dropped"`
	Recorded      worker.Stats    `json:"recorded"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Path is the location of the status file.
func (s *Service) Path() string {
	return filepath.Join(s.deps.Dir, StatusFileName)
}

// GetStatus collects the current status. Missing dependencies leave their
// fields zero.
func (s *Service) GetStatus() Status {
	st := Status{Time: time.Now()}
	if s.deps.Snapshot != nil {
		st.Drone = s.deps.Snapshot()
	}
	if s.deps.Sessions != nil {
		if cur := s.deps.Sessions.Current(); cur != nil {
			st.SessionID = cur.ID
		}
		st.SessionsFlown = s.deps.Sessions.Count()
	}
	if s.deps.Dispatcher != nil {
		st.RecordQueue = s.deps.Dispatcher.QueueLen(worker.RecordCommand)
	}
	if s.deps.Publisher != nil {
		st.Dropped = s.deps.Publisher.Dropped()
	}
	if s.deps.Worker != nil {
		st.Recorded = s.deps.Worker.Stats()
	}
	return st
}

// WriteStatus replaces the status file with the current status.
func (s *Service) WriteStatus() error {
	data, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	if err := os.WriteFile(s.Path(), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(s.deps.Dir, 0755); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create status directory: %w", err)
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.LogManager.Logger()
		logger.Debug("Starting status monitor goroutine", "path", s.Path())

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.isRunning = false
	s.mu.Unlock()
	<-done
}
