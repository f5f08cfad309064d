package model

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ServerVersion is reported to operator sessions in the connected handshake frame.
const ServerVersion = "1.4.0"

type PrincipalKind int16

const (
	PrincipalDevice PrincipalKind = iota + 1
	PrincipalOperator
)

func (k PrincipalKind) String() string {
	switch k {
	case PrincipalDevice:
		return "device"
	case PrincipalOperator:
		return "operator"
	default:
		return "unknown"
	}
}

// Sink is the writable side of one physical socket.
// Implementations must serialize writes internally; every component above the
// transport treats a Sink as single-writer.
type Sink interface {
	WriteMessage(data []byte) error
	Close() error
	IsOpen() bool
}

// ConnectionHandle represents one live registered socket.
//
// The handle is owned by the shard that holds it. Liveness is mutated only
// through the session controller's register/unregister path; the heartbeat
// monitor never touches fields directly.
type ConnectionHandle struct {
	SessionID   uuid.UUID
	PrincipalID string
	OrgID       string
	Kind        PrincipalKind
	ClientAddr  string
	ConnectedAt time.Time

	sink Sink

	// lastHeartbeatAt holds unix nanos. Atomic because the read loop and the
	// monitor sweep touch it concurrently.
	lastHeartbeatAt atomic.Int64

	closeOnce sync.Once
}

func NewConnectionHandle(principalID, orgID string, kind PrincipalKind, clientAddr string, sink Sink) *ConnectionHandle {
	h := &ConnectionHandle{
		SessionID:   uuid.New(),
		PrincipalID: principalID,
		OrgID:       orgID,
		Kind:        kind,
		ClientAddr:  clientAddr,
		ConnectedAt: time.Now(),
		sink:        sink,
	}
	h.lastHeartbeatAt.Store(time.Now().UnixNano())
	return h
}

// Touch refreshes the heartbeat timestamp. Called on any inbound activity,
// not only explicit ping frames.
func (h *ConnectionHandle) Touch() {
	h.lastHeartbeatAt.Store(time.Now().UnixNano())
}

func (h *ConnectionHandle) LastHeartbeatAt() time.Time {
	return time.Unix(0, h.lastHeartbeatAt.Load())
}

// SetLastHeartbeatAt overrides the heartbeat timestamp. Exists for timeout
// tests; production code refreshes through Touch.
func (h *ConnectionHandle) SetLastHeartbeatAt(t time.Time) {
	h.lastHeartbeatAt.Store(t.UnixNano())
}

func (h *ConnectionHandle) IsOpen() bool {
	return h.sink.IsOpen()
}

// Write pushes an encoded frame to the underlying sink.
func (h *ConnectionHandle) Write(data []byte) error {
	return h.sink.WriteMessage(data)
}

// CloseSink tears down the transport exactly once. Safe to call from the
// read loop, the monitor and the shutdown path concurrently.
func (h *ConnectionHandle) CloseSink() {
	h.closeOnce.Do(func() {
		_ = h.sink.Close()
	})
}
