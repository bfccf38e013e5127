package console

import (
	"bytes"
	"testing"

	"github.com/OCAP2/drone-tracker/internal/storage"
	"github.com/OCAP2/drone-tracker/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ storage.Backend = (*Backend)(nil)

func TestConsole_FlightLines(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf)

	require.NoError(t, b.Init())
	require.NoError(t, b.StartSession(&core.Drone{ID: "DRN-01"}, &core.FlightSession{ID: "s1"}))
	require.NoError(t, b.RecordDroneState(&core.DroneState{
		Position:       core.Position2D{X: 3, Y: -7},
		BatteryPercent: 99.5,
	}))
	require.NoError(t, b.EndSession(core.SessionEnd{SessionID: "s1", EndBattery: 99.5}))
	require.NoError(t, b.Close())

	assert.Equal(t,
		"Drone DRN-01 started flying...\n"+
			"Status: Flying...\n"+
			"Battery: 99.5% Position: (3, -7)\n"+
			"Status: Landed\n"+
			"Battery: 99.5%\n"+
			"Drone landed safely.\n",
		buf.String())
}

func TestConsole_Events(t *testing.T) {
	tests := []struct {
		name  string
		event core.FlightEvent
		want  string
	}{
		{"depleted", core.FlightEvent{Type: core.EventBatteryDepleted, Position: core.Position2D{X: 1, Y: 2}}, "Warning: battery depleted at (1, 2)\n"},
		{"sensor", core.FlightEvent{Type: core.EventSensorToggled, Message: "Sensor GPS status: Inactive"}, "Sensor GPS status: Inactive\n"},
		{"takeoff is silent", core.FlightEvent{Type: core.EventTakeoff}, ""},
		{"denied is silent", core.FlightEvent{Type: core.EventDenied}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, New(&buf).RecordFlightEvent(&tt.event))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
