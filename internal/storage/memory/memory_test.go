// internal/storage/memory/memory_test.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OCAP2/drone-tracker/internal/config"
	"github.com/OCAP2/drone-tracker/internal/storage"
	"github.com/OCAP2/drone-tracker/pkg/core"
)

// Verify Backend implements storage.Backend interface
var _ storage.Backend = (*Backend)(nil)

// Verify Backend implements storage.Uploadable interface
var _ storage.Uploadable = (*Backend)(nil)

var takeoff = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func testDrone() *core.Drone {
	return &core.Drone{
		ID: "DRN-01",
		Sensors: []core.Sensor{
			{Name: "Camera", Active: true},
			{Name: "GPS", Active: true},
			{Name: "Infrared", Active: false},
		},
	}
}

func testSession(id string) *core.FlightSession {
	return &core.FlightSession{
		ID:            id,
		DroneID:       "DRN-01",
		StartTime:     takeoff,
		StartBattery:  100,
		ActiveSensors: []string{"Camera", "GPS"},
	}
}

func sample(session string, tick uint64, x, y int, battery float64) *core.DroneState {
	return &core.DroneState{
		DroneID:        "DRN-01",
		SessionID:      session,
		Tick:           tick,
		Position:       core.Position2D{X: x, Y: y},
		BatteryPercent: battery,
		Flying:         true,
	}
}

func TestInitAndClose(t *testing.T) {
	b := New(config.MemoryConfig{})

	if err := b.Init(); err != nil {
		t.Errorf("Init failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestStartSession(t *testing.T) {
	b := New(config.MemoryConfig{})

	if err := b.StartSession(testDrone(), testSession("s1")); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	rec, ok := b.Current()
	if !ok {
		t.Fatal("expected an open session")
	}
	if rec.Session.ID != "s1" {
		t.Errorf("expected session s1, got %s", rec.Session.ID)
	}
	if rec.Drone.ID != "DRN-01" {
		t.Errorf("expected drone DRN-01, got %s", rec.Drone.ID)
	}
	if len(rec.States) != 0 {
		t.Errorf("expected no states, got %d", len(rec.States))
	}
}

func TestRecordDroneState(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(testDrone(), testSession("s1"))

	_ = b.RecordDroneState(sample("s1", 1, 3, -7, 99.5))
	_ = b.RecordDroneState(sample("s1", 2, 1, -2, 99.0))

	rec, _ := b.Current()
	if len(rec.States) != 2 {
		t.Fatalf("expected 2 states, got %d", len(rec.States))
	}
	if rec.States[1].Position != (core.Position2D{X: 1, Y: -2}) {
		t.Errorf("unexpected position %+v", rec.States[1].Position)
	}
}

func TestRecordDroneState_IgnoresOtherSessions(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})

	// no session open
	_ = b.RecordDroneState(sample("s0", 1, 0, 0, 99.5))

	_ = b.StartSession(testDrone(), testSession("s1"))
	_ = b.RecordDroneState(sample("stale", 9, 0, 0, 90))
	_ = b.RecordDroneState(sample("s1", 1, 0, 0, 99.5))
	_ = b.EndSession(core.SessionEnd{SessionID: "s1", EndTime: takeoff.Add(time.Second)})

	// late sample from the stopped loop
	_ = b.RecordDroneState(sample("s1", 2, 0, 0, 99))

	finished := b.Finished()
	if len(finished) != 1 {
		t.Fatalf("expected 1 finished session, got %d", len(finished))
	}
	if len(finished[0].States) != 1 {
		t.Errorf("expected 1 state, got %d", len(finished[0].States))
	}
}

func TestRecordFlightEvent(t *testing.T) {
	b := New(config.MemoryConfig{})

	_ = b.RecordFlightEvent(&core.FlightEvent{Type: core.EventDenied, Message: "battery too low"})
	_ = b.StartSession(testDrone(), testSession("s1"))
	_ = b.RecordFlightEvent(&core.FlightEvent{SessionID: "s1", Type: core.EventTakeoff})
	_ = b.RecordFlightEvent(&core.FlightEvent{Type: core.EventSensorToggled, Message: "GPS off"})

	ground := b.GroundEvents()
	if len(ground) != 1 || ground[0].Type != core.EventDenied {
		t.Errorf("expected one denied ground event, got %+v", ground)
	}

	rec, _ := b.Current()
	if len(rec.Events) != 2 {
		t.Fatalf("expected 2 session events, got %d", len(rec.Events))
	}
	if rec.Events[0].Type != core.EventTakeoff {
		t.Errorf("expected takeoff first, got %s", rec.Events[0].Type)
	}
}

func TestEndSession_WrongIDIsIgnored(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})
	_ = b.StartSession(testDrone(), testSession("s1"))

	if err := b.EndSession(core.SessionEnd{SessionID: "other"}); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	if _, ok := b.Current(); !ok {
		t.Error("session s1 should still be open")
	}
	if b.GetExportedFilePath() != "" {
		t.Error("nothing should have been exported")
	}
}

func TestConcurrentAccess(t *testing.T) {
	b := New(config.MemoryConfig{})
	_ = b.StartSession(testDrone(), testSession("s1"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = b.RecordDroneState(sample("s1", uint64(i*100+j), i, j, 50))
				_, _ = b.Current()
			}
		}(i)
	}
	wg.Wait()

	rec, _ := b.Current()
	if len(rec.States) != 1000 {
		t.Errorf("expected 1000 states, got %d", len(rec.States))
	}
}

func TestGetExportedFilePath(t *testing.T) {
	b := New(config.MemoryConfig{
		OutputDir:      t.TempDir(),
		CompressOutput: true,
	})

	if path := b.GetExportedFilePath(); path != "" {
		t.Errorf("expected empty path before export, got %s", path)
	}
}

func TestExport_Compressed(t *testing.T) {
	tmpDir := t.TempDir()
	b := New(config.MemoryConfig{
		OutputDir:      tmpDir,
		CompressOutput: true,
	})

	_ = b.StartSession(testDrone(), testSession("s1"))
	_ = b.RecordFlightEvent(&core.FlightEvent{SessionID: "s1", Type: core.EventTakeoff, Time: takeoff, BatteryPercent: 100})
	_ = b.RecordDroneState(sample("s1", 1, 5, -3, 99.5))
	_ = b.RecordDroneState(sample("s1", 2, -4, 6, 99.0))
	err := b.EndSession(core.SessionEnd{
		SessionID:   "s1",
		EndTime:     takeoff.Add(90 * time.Second),
		EndBattery:  99.0,
		EndPosition: core.Position2D{X: -4, Y: 6},
		Ticks:       2,
	})
	if err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	path := b.GetExportedFilePath()
	if !strings.HasPrefix(path, tmpDir) {
		t.Errorf("expected path to start with %s, got %s", tmpDir, path)
	}
	if !strings.HasSuffix(path, "DRN-01_20260314_150926.json.gz") {
		t.Errorf("unexpected export name %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}

	var export FlightExport
	if err := json.NewDecoder(gz).Decode(&export); err != nil {
		t.Fatalf("decode export: %v", err)
	}

	if export.SessionID != "s1" {
		t.Errorf("expected session s1, got %s", export.SessionID)
	}
	if export.Duration != 90 {
		t.Errorf("expected duration 90, got %f", export.Duration)
	}
	if export.Ticks != 2 {
		t.Errorf("expected 2 ticks, got %d", export.Ticks)
	}
	if len(export.Positions) != 3 {
		t.Fatalf("expected takeoff + 2 positions, got %d", len(export.Positions))
	}
	// [tick, x, y, battery]
	last := export.Positions[2]
	if last[0].(float64) != 2 || last[1].(float64) != -4 || last[2].(float64) != 6 || last[3].(float64) != 99 {
		t.Errorf("unexpected last position %v", last)
	}
	if len(export.Events) != 1 || export.Events[0].Type != "takeoff" {
		t.Errorf("unexpected events %+v", export.Events)
	}
	if len(export.Sensors) != 3 {
		t.Errorf("expected 3 sensors, got %v", export.Sensors)
	}
}

func TestExport_Uncompressed(t *testing.T) {
	b := New(config.MemoryConfig{
		OutputDir:      t.TempDir(),
		CompressOutput: false,
	})

	_ = b.StartSession(testDrone(), testSession("s1"))
	_ = b.EndSession(core.SessionEnd{SessionID: "s1", EndTime: takeoff})

	path := b.GetExportedFilePath()
	if !strings.HasSuffix(path, ".json") {
		t.Errorf("expected path to end with .json, got %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var export FlightExport
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if export.DroneID != "DRN-01" {
		t.Errorf("expected drone DRN-01, got %s", export.DroneID)
	}
}

func TestGetExportMetadata(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()})

	if meta := b.GetExportMetadata(); meta.SessionID != "" {
		t.Errorf("expected empty metadata before export, got %+v", meta)
	}

	_ = b.StartSession(testDrone(), testSession("s1"))
	_ = b.EndSession(core.SessionEnd{SessionID: "s1", EndTime: takeoff.Add(2 * time.Minute)})

	meta := b.GetExportMetadata()
	if meta.DroneID != "DRN-01" {
		t.Errorf("expected DroneID=DRN-01, got %s", meta.DroneID)
	}
	if meta.SessionID != "s1" {
		t.Errorf("expected SessionID=s1, got %s", meta.SessionID)
	}
	if meta.FlightDuration != 120 {
		t.Errorf("expected FlightDuration=120, got %f", meta.FlightDuration)
	}
	if meta.Tag != "flight" {
		t.Errorf("expected Tag=flight, got %s", meta.Tag)
	}
}

func TestExport_BadOutputDir(t *testing.T) {
	dir := t.TempDir()
	blocker := dir + "/file"
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	b := New(config.MemoryConfig{OutputDir: blocker + "/sub"})
	_ = b.StartSession(testDrone(), testSession("s1"))

	if err := b.EndSession(core.SessionEnd{SessionID: "s1"}); err == nil {
		t.Error("expected error when output directory cannot be created")
	}
}
