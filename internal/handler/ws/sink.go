package ws

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/visioncast/fleet-gateway/internal/domain/model"
)

const writeWait = 10 * time.Second

var errSinkClosed = errors.New("ws: sink closed")

var _ model.Sink = (*wsSink)(nil)

// wsSink adapts a gorilla connection to the model.Sink contract. gorilla
// allows at most one concurrent writer, so every outbound frame is
// serialized through the sink's mutex regardless of which goroutine sends.
type wsSink struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn}
}

func (s *wsSink) WriteMessage(data []byte) error {
	if s.closed.Load() {
		return errSinkClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSink) writeControl(messageType int, data []byte) error {
	return s.conn.WriteControl(messageType, data, time.Now().Add(writeWait))
}

func (s *wsSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close()
}

func (s *wsSink) IsOpen() bool {
	return !s.closed.Load()
}
