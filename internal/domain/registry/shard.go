package registry

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/visioncast/fleet-gateway/internal/domain/model"
)

// shard is one partition of the registry: principalID -> session set,
// guarded by its own reader/writer lock.
type shard struct {
	mu         sync.RWMutex
	principals map[string]map[uuid.UUID]*model.ConnectionHandle
}

func newShard() *shard {
	return &shard{
		principals: make(map[string]map[uuid.UUID]*model.ConnectionHandle),
	}
}

// connCounter is the lock-free global connection count. reserve claims a
// slot with a CAS loop so a capacity check and its increment are one
// atomic step.
type connCounter struct {
	n atomic.Int64
}

func (c *connCounter) reserve(max int64) bool {
	for {
		cur := c.n.Load()
		if cur >= max {
			return false
		}
		if c.n.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (c *connCounter) release() { c.n.Add(-1) }

func (c *connCounter) load() int64 { return c.n.Load() }
