// Package gormstorage implements the storage.Backend interface on top of
// GORM. Drones and sessions are written synchronously so foreign keys hold;
// samples and events go through internal queues drained by a background
// writer goroutine.
package gormstorage

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/OCAP2/drone-tracker/internal/database"
	"github.com/OCAP2/drone-tracker/internal/geo"
	"github.com/OCAP2/drone-tracker/internal/logging"
	"github.com/OCAP2/drone-tracker/internal/model"
	"github.com/OCAP2/drone-tracker/internal/queue"
	"github.com/OCAP2/drone-tracker/pkg/core"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultWriteInterval is how often the writer drains the queues.
const DefaultWriteInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	Projector     *geo.Projector
	WriteInterval time.Duration
}

// maxQueuedRows caps each write queue while the database is unavailable.
const maxQueuedRows = 100000

// queues holds the write queues for batch DB insertion.
type queues struct {
	States *queue.Queue[model.DroneState]
	Events *queue.Queue[model.FlightEvent]
}

func newQueues() *queues {
	return &queues{
		States: queue.New[model.DroneState](maxQueuedRows),
		Events: queue.New[model.FlightEvent](maxQueuedRows),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps       Dependencies
	queues     *queues
	stopChan   chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	flushMu    sync.Mutex

	mu        sync.Mutex
	session   *model.FlightSession
	positions []core.Position2D
}

// New creates a new GORM storage backend. A nil DB leaves the backend in
// queue-only mode.
func New(deps Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.Projector == nil {
		deps.Projector = geo.NewProjector(0, 0)
	}
	if deps.WriteInterval <= 0 {
		deps.WriteInterval = DefaultWriteInterval
	}
	return &Backend{deps: deps}
}

// DB returns the underlying connection, nil in queue-only mode.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init creates internal queues, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})
	b.writerDone = make(chan struct{})

	if b.deps.DB == nil {
		close(b.writerDone)
		return nil
	}

	b.deps.LogManager.WriteLog("setupDB", "Migrating schema", "INFO")
	if err := database.Setup(b.deps.DB); err != nil {
		b.deps.LogManager.WriteLog("setupDB", fmt.Sprintf("Failed to set up database: %v", err), "ERROR")
		close(b.writerDone)
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	go b.writeLoop()
	return nil
}

// Close stops the writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		if b.stopChan != nil {
			close(b.stopChan)
			<-b.writerDone
		}
	})
	b.Flush()
	return nil
}

// StartSession stores the drone and opens a session row.
func (b *Backend) StartSession(drone *core.Drone, session *core.FlightSession) error {
	start := session.StartPosition

	row := model.FlightSession{
		ID:            session.ID,
		DroneID:       session.DroneID,
		StartTime:     session.StartTime,
		StartBattery:  session.StartBattery,
		Home:          b.point(start),
		ActiveSensors: jsonOf(session.ActiveSensors),
	}

	b.mu.Lock()
	b.session = &row
	b.positions = []core.Position2D{start}
	b.mu.Unlock()

	db := b.deps.DB
	if db == nil {
		return nil
	}

	names := make([]string, 0, len(drone.Sensors))
	for _, s := range drone.Sensors {
		names = append(names, s.Name)
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sensors"}),
	}).Create(&model.Drone{ID: drone.ID, Sensors: jsonOf(names)}).Error
	if err != nil {
		return fmt.Errorf("failed to upsert drone %s: %w", drone.ID, err)
	}

	if err := db.Omit(clause.Associations).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert flight session: %w", err)
	}
	return nil
}

// EndSession writes the remaining samples and closes the session row with
// its flight path.
func (b *Backend) EndSession(end core.SessionEnd) error {
	b.mu.Lock()
	if b.session == nil || b.session.ID != end.SessionID {
		b.mu.Unlock()
		return nil
	}
	positions := b.positions
	if n := len(positions); n == 0 || positions[n-1] != end.EndPosition {
		positions = append(positions, end.EndPosition)
	}
	b.session = nil
	b.positions = nil
	b.mu.Unlock()

	if b.deps.DB == nil {
		return nil
	}
	b.Flush()

	path, err := b.deps.Projector.FlightPath(positions)
	if err != nil {
		b.deps.LogManager.WriteLog(":DB:WRITER:", fmt.Sprintf("Storing empty path for %s: %v", end.SessionID, err), "WARN")
	}
	err = b.deps.DB.Model(&model.FlightSession{ID: end.SessionID}).Updates(map[string]any{
		"end_time":    end.EndTime,
		"end_battery": end.EndBattery,
		"path":        path.AsGeometry(),
		"distance":    geo.GridDistance(positions),
		"ticks":       end.Ticks,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to close flight session %s: %w", end.SessionID, err)
	}
	return nil
}

// RecordDroneState converts and queues a sample of the open session.
func (b *Backend) RecordDroneState(s *core.DroneState) error {
	b.mu.Lock()
	if b.session == nil || b.session.ID != s.SessionID {
		b.mu.Unlock()
		return nil
	}
	b.positions = append(b.positions, s.Position)
	b.mu.Unlock()

	b.queues.States.Push(model.DroneState{
		Time:            s.Time,
		FlightSessionID: s.SessionID,
		Tick:            s.Tick,
		X:               s.Position.X,
		Y:               s.Position.Y,
		Position:        b.point(s.Position),
		BatteryPercent:  s.BatteryPercent,
	})
	return nil
}

// point projects pos, storing an empty point when it cannot be represented.
func (b *Backend) point(pos core.Position2D) geom.Point {
	p, err := b.deps.Projector.Point(pos)
	if err != nil {
		b.deps.LogManager.WriteLog(":DB:WRITER:", fmt.Sprintf("Storing empty position: %v", err), "WARN")
	}
	return p
}

// RecordFlightEvent converts and queues an event.
func (b *Backend) RecordFlightEvent(e *core.FlightEvent) error {
	row := model.FlightEvent{
		Time:           e.Time,
		DroneID:        e.DroneID,
		Type:           string(e.Type),
		Message:        e.Message,
		BatteryPercent: e.BatteryPercent,
		X:              e.Position.X,
		Y:              e.Position.Y,
	}
	if e.SessionID != "" {
		id := e.SessionID
		row.FlightSessionID = &id
	}
	b.queues.Events.Push(row)
	return nil
}

// Flush drains both queues into the database.
func (b *Backend) Flush() {
	if b.deps.DB == nil || b.queues == nil {
		return
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	log := b.deps.LogManager.WriteLog
	writeQueue(b.deps.DB, b.queues.States, "drone states", log)
	writeQueue(b.deps.DB, b.queues.Events, "flight events", log)
}

// QueueLens reports the number of queued samples and events.
func (b *Backend) QueueLens() (states, events int) {
	if b.queues == nil {
		return 0, 0
	}
	return b.queues.States.Len(), b.queues.Events.Len()
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items go back to the front of the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string)) {
	items := q.Take()
	if len(items) == 0 {
		return
	}

	retry := func(err error) {
		log(":DB:WRITER:", fmt.Sprintf("Error writing %d %s: %v", len(items), name, err), "ERROR")
		if n := q.Requeue(items); n > 0 {
			log(":DB:WRITER:", fmt.Sprintf("Discarded %d oldest %s", n, name), "WARN")
		}
	}

	tx := db.Begin()
	if err := tx.Omit(clause.Associations).Create(&items).Error; err != nil {
		tx.Rollback()
		retry(err)
		return
	}
	if err := tx.Commit().Error; err != nil {
		retry(err)
	}
}

func (b *Backend) writeLoop() {
	defer close(b.writerDone)

	ticker := time.NewTicker(b.deps.WriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}

func jsonOf(v any) datatypes.JSON {
	data, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(data)
}
