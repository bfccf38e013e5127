package main

import (
	"fmt"
	"strings"

	"github.com/OCAP2/drone-tracker/internal/config"
	"github.com/OCAP2/drone-tracker/internal/influx"
	"github.com/OCAP2/drone-tracker/internal/logging"
	"github.com/OCAP2/drone-tracker/internal/storage"
	"github.com/OCAP2/drone-tracker/internal/storage/console"
	"github.com/OCAP2/drone-tracker/internal/storage/memory"
	pgstorage "github.com/OCAP2/drone-tracker/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/drone-tracker/internal/storage/sqlite"
	wsstorage "github.com/OCAP2/drone-tracker/internal/storage/websocket"
)

// initStorage creates and initializes every configured backend. Backends
// that fail to initialize are skipped with a warning; at least one must
// survive.
func (a *app) initStorage(cfg config.StorageConfig) (storage.Backend, error) {
	a.logger.Debug("Initializing storage", "backends", cfg.Backends)

	var backends []storage.Backend
	var names []string
	for _, name := range cfg.Backends {
		name = strings.ToLower(strings.TrimSpace(name))
		b, err := a.createStorageBackend(name, cfg)
		if err != nil {
			return nil, err
		}
		if err := b.Init(); err != nil {
			a.logger.Warn("Failed to initialize storage backend, skipping", "backend", name, "error", err)
			continue
		}
		a.logger.Info("Storage backend initialized", "backend", name)
		backends = append(backends, b)
		names = append(names, name)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no storage backend available (configured: %v)", cfg.Backends)
	}
	return storage.NewMulti(backends, names), nil
}

func (a *app) createStorageBackend(name string, cfg config.StorageConfig) (storage.Backend, error) {
	switch name {
	case "console":
		return console.New(a.out), nil

	case "memory":
		return memory.New(cfg.Memory), nil

	case "sqlite":
		dumpPath := cfg.SQLite.DumpPath
		if dumpPath == "" {
			dumpPath = a.exportPath(ProgramName) + ".db"
		}
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     dumpPath,
		}, a.logManager, a.projector)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		return backend, nil

	case "postgres":
		return pgstorage.NewFromConfig(cfg.DB, a.logManager, a.projector, a.exportPath(ProgramName+"_fallback")+".db"), nil

	case "influx":
		manager := influx.NewManager(
			config.GetInfluxConfig(),
			logging.NewZerolog(a.logger, "influx"),
			a.exportPath("influx_backup")+".log.gz",
		)
		return influx.NewBackend(manager, a.projector), nil

	case "websocket":
		wsCfg := config.GetWebSocketConfig()
		return wsstorage.New(wsstorage.Config{
			URL:    wsCfg.URL,
			Secret: wsCfg.Secret,
		}, a.logger), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", name)
	}
}
