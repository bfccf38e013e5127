// Package streaming defines the telemetry stream protocol: JSON envelopes
// carrying a type and a payload, with acks for session boundaries.
package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/drone-tracker/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeStartSession = "start_session"
	TypeEndSession   = "end_session"
	TypeDroneState   = "drone_state"
	TypeFlightEvent  = "flight_event"

	TypeAck = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// StartSessionPayload announces a flight.
type StartSessionPayload struct {
	Drone   *core.Drone         `json:"drone"`
	Session *core.FlightSession `json:"session"`
}

// NeedsAck reports whether the server acknowledges msgType.
func NeedsAck(msgType string) bool {
	return msgType == TypeStartSession || msgType == TypeEndSession
}

// Marshal builds a JSON-encoded Envelope from a message type and payload.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// Ack builds the acknowledgement for msgType.
func Ack(msgType string) []byte {
	data, _ := json.Marshal(AckMessage{Type: TypeAck, For: msgType})
	return data
}
