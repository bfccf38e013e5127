// Package sqlitestorage implements the storage.Backend interface using an
// in-memory SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend; the SQLite-specific parts are creating the
// database and keeping a file snapshot of it up to date.
package sqlitestorage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/drone-tracker/internal/database"
	"github.com/OCAP2/drone-tracker/internal/geo"
	"github.com/OCAP2/drone-tracker/internal/logging"
	gormstorage "github.com/OCAP2/drone-tracker/internal/storage/gorm"
	"github.com/OCAP2/drone-tracker/pkg/core"

	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	// Path of the working database. Empty means shared in-memory.
	Path         string
	DumpInterval time.Duration
	DumpPath     string // target of VACUUM INTO snapshots
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	log      *logging.SlogManager
	stopChan chan struct{}
	dumpDone chan struct{}
	dumping  bool // dumpLoop was started

	dumpMu    sync.Mutex
	closeOnce sync.Once
}

// New creates a new SQLite storage backend.
func New(cfg Config, logManager *logging.SlogManager, projector *geo.Projector) (*Backend, error) {
	db, err := database.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite DB: %w", err)
	}
	if logManager == nil {
		logManager = logging.NewSlogManager()
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:         db,
		LogManager: logManager,
		Projector:  projector,
	})

	return &Backend{
		Backend:  gormBackend,
		db:       db,
		cfg:      cfg,
		log:      logManager,
		stopChan: make(chan struct{}),
		dumpDone: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.dumping = true
		go b.dumpLoop()
	}
	return nil
}

// EndSession closes the session and refreshes the snapshot so a finished
// flight is on disk right away.
func (b *Backend) EndSession(end core.SessionEnd) error {
	if err := b.Backend.EndSession(end); err != nil {
		return err
	}
	if b.cfg.DumpPath == "" {
		return nil
	}
	return b.Dump()
}

// Close stops the dump goroutine, writes the final snapshot and releases
// the database.
func (b *Backend) Close() error {
	var errs []error
	b.closeOnce.Do(func() {
		close(b.stopChan)
		if b.dumping {
			<-b.dumpDone
		}

		errs = append(errs, b.Backend.Close())
		if b.cfg.DumpPath != "" {
			errs = append(errs, b.Dump())
		}
		if sqlDB, err := b.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	})
	return errors.Join(errs...)
}

// Dump writes a point-in-time copy of the database to DumpPath.
func (b *Backend) Dump() error {
	b.dumpMu.Lock()
	defer b.dumpMu.Unlock()

	start := time.Now()
	if err := database.DumpMemoryDBToDisk(b.db, b.cfg.DumpPath); err != nil {
		b.log.WriteLog("sqlite:dump", fmt.Sprintf("Error dumping to disk: %v", err), "ERROR")
		return err
	}
	b.log.WriteLog("sqlite:dump", fmt.Sprintf("Dumped to disk in %s", time.Since(start)), "DEBUG")
	return nil
}

// dumpLoop periodically dumps the database to disk. VACUUM INTO creates a
// point-in-time snapshot, so writers are not paused.
func (b *Backend) dumpLoop() {
	defer close(b.dumpDone)

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.Flush()
			_ = b.Dump()
		}
	}
}
