package logging

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rs/zerolog"
)

// slogWriter receives zerolog's JSON events and re-emits them through slog
// so components logging with zerolog share the configured outputs.
type slogWriter struct {
	logger *slog.Logger
}

// NewZerolog returns a zerolog.Logger whose events end up in logger.
func NewZerolog(logger *slog.Logger, component string) zerolog.Logger {
	return zerolog.New(&slogWriter{logger: logger}).With().Str("component", component).Logger()
}

func (w *slogWriter) Write(p []byte) (int, error) {
	var event map[string]any
	if err := json.Unmarshal(p, &event); err != nil {
		w.logger.Info(string(p))
		return len(p), nil
	}

	level := slog.LevelInfo
	if lv, ok := event[zerolog.LevelFieldName].(string); ok {
		level = zerologToSlog(lv)
	}
	msg, _ := event[zerolog.MessageFieldName].(string)

	delete(event, zerolog.LevelFieldName)
	delete(event, zerolog.MessageFieldName)

	args := make([]any, 0, len(event)*2)
	for k, v := range event {
		args = append(args, k, v)
	}
	w.logger.Log(context.Background(), level, msg, args...)
	return len(p), nil
}

func zerologToSlog(level string) slog.Level {
	lv, err := zerolog.ParseLevel(level)
	if err != nil {
		return slog.LevelInfo
	}
	switch {
	case lv <= zerolog.DebugLevel:
		return slog.LevelDebug
	case lv == zerolog.InfoLevel:
		return slog.LevelInfo
	case lv == zerolog.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
