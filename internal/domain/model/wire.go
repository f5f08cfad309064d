package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Priority int32

const (
	PriorityLow    Priority = 10
	PriorityNormal Priority = 20
	PriorityHigh   Priority = 30
)

// WireMessage is the outbound envelope written to a socket, independent of
// transport framing. Immutable once built; a retry builds a new delivery
// attempt but reuses MessageID.
type WireMessage struct {
	MessageID  string          `json:"message_id"`
	Topic      string          `json:"topic"`
	EventType  string          `json:"event_type"`
	Priority   Priority        `json:"priority"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  int64           `json:"timestamp"`
	RequireAck bool            `json:"require_ack,omitempty"`
}

// NewWireMessage stamps a fresh envelope. The id is shared across every
// destination of one dispatch so receivers can deduplicate.
func NewWireMessage(topic, eventType string, priority Priority, payload json.RawMessage, requireAck bool) *WireMessage {
	return &WireMessage{
		MessageID:  uuid.NewString(),
		Topic:      topic,
		EventType:  eventType,
		Priority:   priority,
		Payload:    payload,
		Timestamp:  time.Now().UnixMilli(),
		RequireAck: requireAck,
	}
}

func (m *WireMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}
