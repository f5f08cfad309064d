package model

import (
	"encoding/json"
	"fmt"
)

// TargetKind is the closed set of destinations a business event can address.
// Destination resolution switches over it exhaustively; there is no
// name-based handler table.
type TargetKind int16

const (
	TargetDevice TargetKind = iota + 1
	TargetUser
	TargetUsers
	TargetOrgBroadcast
)

var targetKindNames = map[TargetKind]string{
	TargetDevice:       "DEVICE",
	TargetUser:         "USER",
	TargetUsers:        "USERS",
	TargetOrgBroadcast: "ORGANIZATION_BROADCAST",
}

func (k TargetKind) String() string {
	if s, ok := targetKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("TargetKind(%d)", int16(k))
}

func (k TargetKind) MarshalJSON() ([]byte, error) {
	s, ok := targetKindNames[k]
	if !ok {
		return nil, fmt.Errorf("model: unknown target kind %d", int16(k))
	}
	return json.Marshal(s)
}

func (k *TargetKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for kind, name := range targetKindNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("model: unknown target kind %q", s)
}

// Class separates fire-and-forget status events from business-critical ones
// that must reach the dead-letter sink when undeliverable.
type Class int16

const (
	ClassEphemeral Class = iota + 1
	ClassPersistent
)

func (c Class) String() string {
	switch c {
	case ClassEphemeral:
		return "EPHEMERAL"
	case ClassPersistent:
		return "PERSISTENT"
	default:
		return fmt.Sprintf("Class(%d)", int16(c))
	}
}

func (c Class) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

func (c *Class) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "EPHEMERAL", "":
		*c = ClassEphemeral
	case "PERSISTENT":
		*c = ClassPersistent
	default:
		return fmt.Errorf("model: unknown event class %q", s)
	}
	return nil
}

// BusEvent is an inbound business event consumed from the internal bus.
type BusEvent struct {
	EventType  string          `json:"event_type"`
	TargetKind TargetKind      `json:"target_kind"`
	TargetIDs  []string        `json:"target_ids,omitempty"`
	OrgID      string          `json:"org_id,omitempty"`
	Class      Class           `json:"class,omitempty"`
	Priority   Priority        `json:"priority,omitempty"`
	RequireAck bool            `json:"require_ack,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt int64           `json:"occurred_at,omitempty"`
}

// Persistent reports whether the event must survive an unreachable target.
func (e *BusEvent) Persistent() bool {
	return e.Class == ClassPersistent || e.RequireAck
}

// Topic address helpers. One scheme for the whole gateway so the dispatcher
// and the subscription layer never disagree on naming.

func DeviceTopic(deviceID string) string { return "device:" + deviceID }
func UserTopic(userID string) string     { return "user:" + userID }
func OrgTopic(orgID string) string       { return "org:" + orgID }
