// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FlightExport is the root JSON structure of an exported session.
type FlightExport struct {
	DroneID       string      `json:"droneId"`
	SessionID     string      `json:"sessionId"`
	StartTime     time.Time   `json:"startTime"`
	EndTime       time.Time   `json:"endTime"`
	Duration      float64     `json:"duration"`
	StartBattery  float64     `json:"startBattery"`
	EndBattery    float64     `json:"endBattery"`
	Ticks         uint64      `json:"ticks"`
	Sensors       []string    `json:"sensors"`
	ActiveSensors []string    `json:"activeSensors"`
	Positions     [][]any     `json:"positions"`
	Events        []EventJSON `json:"events"`
}

// EventJSON is one flight event in the export.
type EventJSON struct {
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	Message string    `json:"message,omitempty"`
	Battery float64   `json:"battery"`
	X       int       `json:"x"`
	Y       int       `json:"y"`
}

// exportJSON writes a finished session to a (optionally gzipped) JSON file.
func (b *Backend) exportJSON(rec *FlightRecord) error {
	export := buildExport(rec)

	droneID := strings.ReplaceAll(rec.Drone.ID, " ", "_")
	droneID = strings.ReplaceAll(droneID, ":", "_")
	timestamp := rec.Session.StartTime.Format("20060102_150405")

	var filename string
	if b.cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", droneID, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", droneID, timestamp)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if b.cfg.CompressOutput {
		if err := writeGzipJSON(outputPath, export); err != nil {
			return err
		}
	} else {
		if err := writeJSON(outputPath, export); err != nil {
			return err
		}
	}

	b.lastExportPath = outputPath
	b.lastExport = rec
	return nil
}

func buildExport(rec *FlightRecord) FlightExport {
	export := FlightExport{
		DroneID:       rec.Drone.ID,
		SessionID:     rec.Session.ID,
		StartTime:     rec.Session.StartTime,
		StartBattery:  rec.Session.StartBattery,
		ActiveSensors: rec.Session.ActiveSensors,
		Sensors:       make([]string, 0, len(rec.Drone.Sensors)),
		Positions:     make([][]any, 0, len(rec.States)+1),
		Events:        make([]EventJSON, 0, len(rec.Events)),
	}

	for _, s := range rec.Drone.Sensors {
		export.Sensors = append(export.Sensors, s.Name)
	}

	// Format: [tick, x, y, battery]; tick 0 is the takeoff position
	export.Positions = append(export.Positions, []any{
		0,
		rec.Session.StartPosition.X,
		rec.Session.StartPosition.Y,
		rec.Session.StartBattery,
	})
	for _, s := range rec.States {
		export.Positions = append(export.Positions, []any{
			s.Tick,
			s.Position.X,
			s.Position.Y,
			s.BatteryPercent,
		})
	}

	for _, e := range rec.Events {
		export.Events = append(export.Events, EventJSON{
			Time:    e.Time,
			Type:    string(e.Type),
			Message: e.Message,
			Battery: e.BatteryPercent,
			X:       e.Position.X,
			Y:       e.Position.Y,
		})
	}

	if rec.End != nil {
		export.EndTime = rec.End.EndTime
		export.EndBattery = rec.End.EndBattery
		export.Ticks = rec.End.Ticks
		export.Duration = rec.End.EndTime.Sub(rec.Session.StartTime).Seconds()
	}

	return export
}

func writeJSON(path string, data FlightExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data FlightExport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
