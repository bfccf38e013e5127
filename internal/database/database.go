package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OCAP2/drone-tracker/internal/config"
	"github.com/OCAP2/drone-tracker/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN is the shared in-memory SQLite database used when no path is given.
const MemoryDSN = "file::memory:?cache=shared"

// pingTimeout bounds the reachability check of the Postgres server.
const pingTimeout = 5 * time.Second

// Manager owns the recording database: Postgres when reachable, otherwise
// an in-memory SQLite database that is dumped to disk later.
type Manager struct {
	DB              *gorm.DB
	SqlDB           *sql.DB
	IsValid         bool
	ShouldSaveLocal bool
	Logger          zerolog.Logger

	// FallbackDSN is opened when Postgres is unreachable. Empty means MemoryDSN.
	FallbackDSN string

	cfg config.DBConfig
}

// NewManager creates a new database manager.
func NewManager(cfg config.DBConfig, log zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, Logger: log}
}

// Connect opens Postgres and falls back to SQLite when it cannot be reached.
// An error means neither database is usable.
func (m *Manager) Connect() error {
	m.IsValid = false

	db, sqlDB, err := connectPostgres(m.cfg)
	if err == nil {
		sqlDB.SetMaxOpenConns(10)
		m.DB, m.SqlDB, m.ShouldSaveLocal = db, sqlDB, false
		m.IsValid = true
		m.Logger.Info().Str("host", m.cfg.Host).Int("port", m.cfg.Port).Msg("Connected to database")
		return nil
	}
	m.Logger.Error().Err(err).Str("host", m.cfg.Host).Msg("Failed to connect to Postgres DB, trying SQLite")

	db, err = OpenSQLite(m.FallbackDSN)
	if err != nil {
		return fmt.Errorf("failed to get local SQLite DB: %w", err)
	}
	sqlDB, err = db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	m.DB, m.SqlDB, m.ShouldSaveLocal = db, sqlDB, true
	m.IsValid = true
	m.Logger.Warn().Msg("Using local SQLite DB in memory")
	return nil
}

func connectPostgres(cfg config.DBConfig) (*gorm.DB, *sql.DB, error) {
	db, err := OpenPostgres(cfg)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("postgres unreachable: %w", err)
	}
	return db, sqlDB, nil
}

// Close releases the underlying connection pool.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	return m.SqlDB.Close()
}

// PostgresDSN renders the connection string for cfg.
func PostgresDSN(cfg config.DBConfig) string {
	return fmt.Sprintf(`host=%s port=%d user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
	)
}

// OpenPostgres returns a connection to the Postgres database.
func OpenPostgres(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  PostgresDSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite returns a connection to a SQLite database.
// If path is empty, uses the shared in-memory database.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = MemoryDSN
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	return db, nil
}

// OpenSQLiteReadOnly opens an existing recording without touching it: no
// pragmas are applied and writes fail.
func OpenSQLiteReadOnly(path string) (*gorm.DB, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	abs = filepath.ToSlash(abs)
	if !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}
	dsn := (&url.URL{Scheme: "file", Path: abs, RawQuery: "mode=ro"}).String()
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
}

// Setup migrates tables and creates the info row if it doesn't exist.
func Setup(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	var count int64
	if err := db.Model(&model.TrackerInfo{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to read tracker_infos: %w", err)
	}
	if count == 0 {
		err := db.Create(&model.TrackerInfo{
			Name:        "drone-tracker",
			Description: "Simulated drone flight recordings",
		}).Error
		if err != nil {
			return fmt.Errorf("failed to create tracker_info entry: %w", err)
		}
	}

	return nil
}

// DumpMemoryDBToDisk vacuums the in-memory database to a disk file.
func DumpMemoryDBToDisk(db *gorm.DB, sqliteFilePath string) error {
	if sqliteFilePath == "" {
		return fmt.Errorf("sqlite file path not set")
	}

	if err := os.MkdirAll(filepath.Dir(sqliteFilePath), 0755); err != nil {
		return fmt.Errorf("error creating dump directory: %w", err)
	}

	// VACUUM INTO refuses to overwrite
	if _, err := os.Stat(sqliteFilePath); err == nil {
		if err := os.Remove(sqliteFilePath); err != nil {
			return fmt.Errorf("error removing existing DB file: %w", err)
		}
	}

	escaped := strings.ReplaceAll(sqliteFilePath, "'", "''")
	err := db.Exec("VACUUM INTO 'file:" + escaped + "';").Error
	if err != nil {
		return fmt.Errorf("error dumping memory DB to disk: %w", err)
	}

	return nil
}

// GetBackupDBPaths returns paths to all .db files in the given directory.
func GetBackupDBPaths(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var dbPaths []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".db") {
			dbPaths = append(dbPaths, filepath.Join(dir, file.Name()))
		}
	}
	return dbPaths, nil
}

// SessionSummary is one row of ListSessions.
type SessionSummary struct {
	ID        string
	DroneID   string
	StartTime time.Time
	EndTime   *time.Time
	Ticks     uint64
	Distance  float64
	Samples   int64
}

// ListSessions returns every recorded flight session, newest first, with
// the number of stored samples.
func ListSessions(db *gorm.DB) ([]SessionSummary, error) {
	var sessions []model.FlightSession
	err := db.Omit("Path", "Home").Order("start_time desc").Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query flight sessions: %w", err)
	}

	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		var samples int64
		err := db.Model(&model.DroneState{}).Where("flight_session_id = ?", s.ID).Count(&samples).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count samples for %s: %w", s.ID, err)
		}
		out = append(out, SessionSummary{
			ID:        s.ID,
			DroneID:   s.DroneID,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			Ticks:     s.Ticks,
			Distance:  s.Distance,
			Samples:   samples,
		})
	}
	return out, nil
}
