package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OCAP2/drone-tracker/internal/config"
	"github.com/OCAP2/drone-tracker/internal/database"
	"github.com/OCAP2/drone-tracker/internal/model"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is written by the console backend goroutine and read by tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func setupConfig(t *testing.T) string {
	t.Helper()
	t.Cleanup(viper.Reset)
	config.UseDefaults()

	dir := t.TempDir()
	viper.Set("logsDir", filepath.Join(dir, "logs"))
	viper.Set("storage.memory.outputDir", filepath.Join(dir, "recordings"))
	viper.Set("monitor.enabled", false)
	return dir
}

func newTestApp(t *testing.T) (*app, *syncBuffer, *int) {
	t.Helper()
	out := &syncBuffer{}
	exitCode := -1
	a := &app{start: time.Now(), out: out, logsDir: config.GetString("logsDir")}
	require.NoError(t, a.setup(runOptions{}, func(code int) { exitCode = code }))
	t.Cleanup(a.shutdown)
	return a, out, &exitCode
}

func TestExecute_StatusWhenLanded(t *testing.T) {
	setupConfig(t)
	a, out, _ := newTestApp(t)

	assert.False(t, a.execute("status"))

	assert.Contains(t, out.String(), "Status: Landed\nBattery: 100.0%\nPosition: (0, 0)\n")
}

func TestExecute_StartAndLand(t *testing.T) {
	setupConfig(t)
	a, out, _ := newTestApp(t)

	a.execute("start")
	assert.True(t, a.drone.IsFlying())
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Drone DRN-01 started flying...")
	}, time.Second, 10*time.Millisecond)

	a.execute("land")
	assert.False(t, a.drone.IsFlying())
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Drone landed safely.")
	}, time.Second, 10*time.Millisecond)
}

func TestExecute_StartDeniedOnLowBattery(t *testing.T) {
	setupConfig(t)
	viper.Set("drone.initialBattery", 19.0)
	a, out, _ := newTestApp(t)

	a.execute("start")

	assert.False(t, a.drone.IsFlying())
	assert.Contains(t, out.String(), "Error: battery too low to start flight")
	x, y := a.drone.Position()
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)
}

func TestExecute_Sensors(t *testing.T) {
	setupConfig(t)
	a, out, _ := newTestApp(t)

	a.execute("sensor GPS off")
	assert.Contains(t, out.String(), "Sensor GPS status: Inactive")

	a.execute("sensor")
	assert.Contains(t, out.String(), "Error: usage: sensor <name> on|off")

	a.execute("sensor Lidar on")
	assert.Contains(t, out.String(), "Error: unknown sensor: Lidar")
}

func TestExecute_HelpUnknownAndBlank(t *testing.T) {
	setupConfig(t)
	a, out, _ := newTestApp(t)

	assert.False(t, a.execute(""))
	assert.False(t, a.execute("help"))
	assert.False(t, a.execute("teleport"))

	assert.Contains(t, out.String(), "exit | quit")
	assert.Contains(t, out.String(), `Unknown command "teleport"`)
}

func TestExecute_Exit(t *testing.T) {
	setupConfig(t)
	a, _, exitCode := newTestApp(t)

	assert.True(t, a.execute("QUIT"))
	assert.Equal(t, 0, *exitCode)
}

func TestRepl_ReadsUntilQuit(t *testing.T) {
	setupConfig(t)
	a, out, exitCode := newTestApp(t)

	err := a.repl(context.Background(), strings.NewReader("status\nquit\nstart\n"))

	require.NoError(t, err)
	assert.Equal(t, 0, *exitCode)
	assert.False(t, a.drone.IsFlying(), "lines after quit are not executed")
	assert.Contains(t, out.String(), "Sensor Camera status: Active")
	assert.Contains(t, out.String(), "Status: Landed")
}

func TestRepl_CancelledContextExits(t *testing.T) {
	setupConfig(t)
	a, _, exitCode := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	block, release := newBlockingReader()
	t.Cleanup(release)

	require.NoError(t, a.repl(ctx, block))
	assert.Equal(t, 0, *exitCode)
}

func TestInitStorage_UnknownBackend(t *testing.T) {
	setupConfig(t)
	viper.Set("storage.backends", []string{"console", "carrier-pigeon"})
	out := &syncBuffer{}
	a := &app{start: time.Now(), out: out, logsDir: config.GetString("logsDir")}

	err := a.setup(runOptions{}, func(int) {})
	t.Cleanup(a.shutdown)

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown storage backend "carrier-pigeon"`)
}

func TestInitStorage_NoBackendSurvives(t *testing.T) {
	setupConfig(t)
	viper.Set("storage.backends", []string{"websocket"})
	a := &app{start: time.Now(), out: &syncBuffer{}, logsDir: config.GetString("logsDir")}

	err := a.setup(runOptions{}, func(int) {})
	t.Cleanup(a.shutdown)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no storage backend available")
}

func TestSessionsCmd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flights.db")
	db, err := database.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, database.Setup(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"sessions", "--db", path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "ID")
	assert.Contains(t, out.String(), "SAMPLES")
}

func TestSessionsCmd_Dir(t *testing.T) {
	dir := t.TempDir()
	db, err := database.OpenSQLite(filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	require.NoError(t, database.Setup(db))
	require.NoError(t, db.Save(&model.Drone{ID: "DRN-07"}).Error)
	require.NoError(t, db.Omit("Drone").Create(&model.FlightSession{
		ID:        "s-9",
		DroneID:   "DRN-07",
		StartTime: time.Now(),
		Ticks:     3,
		Distance:  4.5,
	}).Error)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"sessions", "--dir", dir})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "a.db")
	assert.Contains(t, out.String(), "s-9")
	assert.Contains(t, out.String(), "DRN-07")
	assert.Contains(t, out.String(), "4.5m")
}

func TestSessionsCmd_MissingFlag(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"sessions"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--db or --dir is required")
}

// newBlockingReader returns a reader that never yields data until closed.
func newBlockingReader() (*blockingReader, func()) {
	r := &blockingReader{done: make(chan struct{})}
	return r, func() { close(r.done) }
}

type blockingReader struct {
	done chan struct{}
}

func (r *blockingReader) Read(p []byte) (int, error) {
	<-r.done
	return 0, io.EOF
}

func TestSessionsCmd_ListsRecordedFlight(t *testing.T) {
	dir := setupConfig(t)
	dump := filepath.Join(dir, "flights.db")
	viper.Set("storage.backends", []string{"sqlite"})
	viper.Set("storage.sqlite.dumpPath", dump)

	a, _, _ := newTestApp(t)
	a.execute("start")
	tr := a.controller.Tracker()
	require.NotNil(t, tr)
	require.Eventually(t, func() bool { return tr.Ticks() >= 1 }, time.Second, 5*time.Millisecond)
	sessionID := a.controller.Status().SessionID
	require.NotEmpty(t, sessionID)

	a.execute("land")
	a.shutdown()
	require.FileExists(t, dump)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"sessions", "--db", dump})
	require.NoError(t, cmd.Execute())

	var row []string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.Contains(line, sessionID) {
			row = strings.Fields(line)
		}
	}
	require.Len(t, row, 8, out.String())
	assert.Equal(t, "flights.db", row[0])
	assert.Equal(t, "DRN-01", row[2])
	assert.NotEqual(t, "-", row[4], "session was not closed")
	assert.NotEqual(t, "0", row[5])
	assert.NotEqual(t, "0", row[7])
}
