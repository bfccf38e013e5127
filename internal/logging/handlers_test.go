package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textHandler(buf *bytes.Buffer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})
}

func TestFanout_EveryOutputGetsRecord(t *testing.T) {
	var file, gelf bytes.Buffer

	slog.New(newFanout(textHandler(&file, slog.LevelInfo), nil, textHandler(&gelf, slog.LevelInfo))).
		Info("Drone landed safely.")

	assert.Contains(t, file.String(), "Drone landed safely.")
	assert.Contains(t, gelf.String(), "Drone landed safely.")
}

func TestFanout_NilHandlersDropped(t *testing.T) {
	f := newFanout(nil, textHandler(&bytes.Buffer{}, slog.LevelInfo), nil)
	assert.Len(t, f, 1)
	assert.Empty(t, newFanout(nil))
}

func TestFanout_EnabledByAnyOutput(t *testing.T) {
	ctx := context.Background()
	info := textHandler(&bytes.Buffer{}, slog.LevelInfo)
	debug := textHandler(&bytes.Buffer{}, slog.LevelDebug)

	assert.False(t, newFanout(info).Enabled(ctx, slog.LevelDebug))
	assert.True(t, newFanout(info, debug).Enabled(ctx, slog.LevelDebug))
	assert.False(t, newFanout().Enabled(ctx, slog.LevelError))
}

func TestFanout_LevelPerOutput(t *testing.T) {
	var info, debug bytes.Buffer
	logger := slog.New(newFanout(textHandler(&info, slog.LevelInfo), textHandler(&debug, slog.LevelDebug)))

	logger.Debug("Drone moved to coordinates: (1, 2)")

	assert.Empty(t, info.String())
	assert.Contains(t, debug.String(), "(1, 2)")
}

func TestFanout_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	f := newFanout(textHandler(&buf, slog.LevelInfo))

	slog.New(f.WithAttrs([]slog.Attr{slog.String("component", "tracker")})).Info("with attrs")
	slog.New(f.WithGroup("drone")).Info("grouped", "id", "DRN-01")

	assert.Contains(t, buf.String(), "component=tracker")
	assert.Contains(t, buf.String(), "drone.id=DRN-01")
	assert.Equal(t, f, f.WithGroup(""))
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("graylog unreachable")
}

func TestFanout_FailureDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	f := newFanout(failingHandler{}, textHandler(&buf, slog.LevelInfo))

	err := f.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "still written", 0))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "graylog unreachable")
	assert.Contains(t, buf.String(), "still written")
}

func TestStateHandler_AddsProviderAttrs(t *testing.T) {
	var buf bytes.Buffer
	calls := 0
	h := withState(textHandler(&buf, slog.LevelInfo), func() []slog.Attr {
		calls++
		return []slog.Attr{slog.Float64("battery", 87.5), slog.String("drone", "DRN-01")}
	})

	slog.New(h).With("session", "s1").Info("tick", "n", 1)

	assert.Equal(t, 1, calls)
	out := buf.String()
	assert.Contains(t, out, "session=s1")
	assert.Contains(t, out, "n=1")
	assert.Contains(t, out, "battery=87.5")
	assert.Contains(t, out, "drone=DRN-01")
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestStateHandler_RecordKeysWin(t *testing.T) {
	var buf bytes.Buffer
	h := withState(textHandler(&buf, slog.LevelInfo), func() []slog.Attr {
		return []slog.Attr{slog.String("drone", "DRN-01")}
	})

	slog.New(h).Info("handover", "drone", "DRN-02")

	assert.Equal(t, 1, strings.Count(buf.String(), "drone="))
	assert.Contains(t, buf.String(), "drone=DRN-02")
}

func TestStateHandler_NilProvider(t *testing.T) {
	inner := textHandler(&bytes.Buffer{}, slog.LevelInfo)
	assert.Equal(t, inner, withState(inner, nil))
}

func TestStateHandler_EmptyGroup(t *testing.T) {
	h := withState(textHandler(&bytes.Buffer{}, slog.LevelInfo), func() []slog.Attr { return nil })
	assert.Same(t, h, h.WithGroup(""))
}
