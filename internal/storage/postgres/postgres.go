// Package postgres implements the storage.Backend interface on a
// PostgreSQL database, reusing the GORM backend's queues and writer. When
// the server cannot be reached the recording continues in an in-memory
// SQLite database that is dumped to disk on close.
package postgres

import (
	"fmt"

	"github.com/OCAP2/drone-tracker/internal/config"
	"github.com/OCAP2/drone-tracker/internal/database"
	"github.com/OCAP2/drone-tracker/internal/geo"
	"github.com/OCAP2/drone-tracker/internal/logging"
	gormstorage "github.com/OCAP2/drone-tracker/internal/storage/gorm"
)

// Dependencies holds all dependencies for the PostgreSQL storage backend.
type Dependencies struct {
	Manager    *database.Manager
	LogManager *logging.SlogManager
	Projector  *geo.Projector

	// FallbackDumpPath receives the SQLite fallback database on Close.
	FallbackDumpPath string
}

// Backend implements storage.Backend on top of a database.Manager.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// FallbackDSN is the in-memory database used while Postgres is unreachable,
// kept apart from the sqlite backend's shared memory database.
const FallbackDSN = "file:postgres_fallback?mode=memory&cache=shared"

// New creates a new PostgreSQL storage backend.
func New(deps Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{deps: deps}
}

// NewFromConfig builds the manager from connection settings.
func NewFromConfig(cfg config.DBConfig, logManager *logging.SlogManager, projector *geo.Projector, fallbackDumpPath string) *Backend {
	if logManager == nil {
		logManager = logging.NewSlogManager()
	}
	manager := database.NewManager(cfg, logging.NewZerolog(logManager.Logger(), "database"))
	manager.FallbackDSN = FallbackDSN
	return New(Dependencies{
		Manager:          manager,
		LogManager:       logManager,
		Projector:        projector,
		FallbackDumpPath: fallbackDumpPath,
	})
}

// Init connects, migrates the schema and starts the writer.
func (b *Backend) Init() error {
	if err := b.deps.Manager.Connect(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if b.deps.Manager.ShouldSaveLocal {
		b.deps.LogManager.WriteLog("postgres:Init", "Postgres unreachable, recording to in-memory SQLite", "WARN")
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:         b.deps.Manager.DB,
		LogManager: b.deps.LogManager,
		Projector:  b.deps.Projector,
	})
	return b.Backend.Init()
}

// Fallback reports whether recording went to SQLite instead of Postgres.
func (b *Backend) Fallback() bool {
	return b.deps.Manager.ShouldSaveLocal
}

// Close stops the writer, dumps the SQLite fallback if used and closes the
// connection pool.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}

	if b.Fallback() && b.deps.FallbackDumpPath != "" {
		if err := database.DumpMemoryDBToDisk(b.deps.Manager.DB, b.deps.FallbackDumpPath); err != nil {
			b.deps.LogManager.WriteLog("postgres:Close", fmt.Sprintf("Error dumping fallback DB: %v", err), "ERROR")
			return err
		}
		b.deps.LogManager.WriteLog("postgres:Close", "Fallback DB dumped to "+b.deps.FallbackDumpPath, "INFO")
	}
	return b.deps.Manager.Close()
}
