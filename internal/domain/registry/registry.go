/*
Package registry implements the in-process connection table of the gateway.

Key architectural concepts:
  - Sharding: principals are partitioned across a power-of-two number of
    shards by FNV hash, so lock contention is bounded to 1/shardCount of
    traffic instead of a single global mutex.
  - Per-shard RWMutex: heartbeat refreshes and lookups for different
    principals proceed in parallel; mutations for one principal stay
    serialized by its shard.
  - Lock-free accounting: the global connection counter is atomic and moves
    together with the shard insert/delete that it accounts for.
*/
package registry

import (
	"errors"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"

	"github.com/visioncast/fleet-gateway/internal/domain/model"
)

var (
	// ErrCapacityExceeded rejects a registration once the configured
	// connection ceiling is reached.
	ErrCapacityExceeded = errors.New("registry: connection capacity exceeded")

	// ErrDuplicateSession signals an insert of an already-registered session.
	// Callers treat it as an idempotent no-op, not a failure.
	ErrDuplicateSession = errors.New("registry: duplicate session")
)

// Registry is the sharded table mapping principal id to its live handles.
// It is the single source of truth for "is this principal reachable from
// this node"; the presence store answers the cross-node question.
type Registry struct {
	shards []*shard
	mask   uint32

	count connCounter
	max   int64

	// sessions indexes sessionID -> principalID so operator fan-out can
	// resolve a handle from a subscription entry without scanning shards.
	sessions sync.Map
}

func New(opts ...Option) *Registry {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Registry{
		shards: make([]*shard, cfg.shardCount),
		mask:   uint32(cfg.shardCount - 1),
		max:    cfg.maxConnections,
	}
	for i := range r.shards {
		r.shards[i] = newShard()
	}
	return r
}

// shardFor is stable per principal: the same id always lands in the same
// shard, and a handle lives in exactly one shard's set.
func (r *Registry) shardFor(principalID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(principalID))
	return r.shards[h.Sum32()&r.mask]
}

// Add inserts a handle under its principal. It reserves a counter slot
// before taking the shard lock so a full registry never blocks writers of
// other shards, and rolls the reservation back on duplicates.
func (r *Registry) Add(h *model.ConnectionHandle) error {
	if !r.count.reserve(r.max) {
		return ErrCapacityExceeded
	}

	s := r.shardFor(h.PrincipalID)
	s.mu.Lock()
	set, ok := s.principals[h.PrincipalID]
	if !ok {
		set = make(map[uuid.UUID]*model.ConnectionHandle, 1)
		s.principals[h.PrincipalID] = set
	}
	if _, exists := set[h.SessionID]; exists {
		s.mu.Unlock()
		r.count.release()
		return ErrDuplicateSession
	}
	set[h.SessionID] = h
	s.mu.Unlock()

	r.sessions.Store(h.SessionID, h.PrincipalID)
	return nil
}

// Remove deletes the matching handle. Removing an absent entry returns
// false and mutates nothing, so disconnect cleanup may race or repeat.
func (r *Registry) Remove(principalID string, sessionID uuid.UUID) bool {
	s := r.shardFor(principalID)
	s.mu.Lock()
	set, ok := s.principals[principalID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if _, exists := set[sessionID]; !exists {
		s.mu.Unlock()
		return false
	}
	delete(set, sessionID)
	// Drop the principal entry when its set empties to bound memory.
	if len(set) == 0 {
		delete(s.principals, principalID)
	}
	s.mu.Unlock()

	r.sessions.Delete(sessionID)
	r.count.release()
	return true
}

// Get returns a snapshot copy of the principal's handles. Callers never
// iterate a live shard structure.
func (r *Registry) Get(principalID string) []*model.ConnectionHandle {
	s := r.shardFor(principalID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.principals[principalID]
	if !ok {
		return nil
	}
	out := make([]*model.ConnectionHandle, 0, len(set))
	for _, h := range set {
		out = append(out, h)
	}
	return out
}

// GetBySession resolves one handle from its session id.
func (r *Registry) GetBySession(sessionID uuid.UUID) (*model.ConnectionHandle, bool) {
	val, ok := r.sessions.Load(sessionID)
	if !ok {
		return nil, false
	}
	principalID := val.(string)

	s := r.shardFor(principalID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.principals[principalID]
	if !ok {
		return nil, false
	}
	h, ok := set[sessionID]
	return h, ok
}

// IsOnline is true iff at least one open handle exists for the principal.
func (r *Registry) IsOnline(principalID string) bool {
	for _, h := range r.Get(principalID) {
		if h.IsOpen() {
			return true
		}
	}
	return false
}

func (r *Registry) Len() int { return int(r.count.load()) }

func (r *Registry) ShardCount() int { return len(r.shards) }

// ScanShard visits a snapshot of one shard's handles. The lock is held only
// while copying, never while fn runs, so a sweep cannot block the
// read/write path.
func (r *Registry) ScanShard(i int, fn func(h *model.ConnectionHandle)) {
	s := r.shards[i]
	s.mu.RLock()
	snapshot := make([]*model.ConnectionHandle, 0, len(s.principals))
	for _, set := range s.principals {
		for _, h := range set {
			snapshot = append(snapshot, h)
		}
	}
	s.mu.RUnlock()

	for _, h := range snapshot {
		fn(h)
	}
}

func (r *Registry) Stats() model.RegistryStats {
	stats := model.RegistryStats{
		MaxConnections: int(r.max),
		Shards:         make([]model.ShardStats, len(r.shards)),
	}
	for i, s := range r.shards {
		s.mu.RLock()
		ss := model.ShardStats{ShardID: i, Principals: len(s.principals)}
		for _, set := range s.principals {
			ss.Connections += len(set)
		}
		s.mu.RUnlock()

		stats.Shards[i] = ss
		stats.TotalPrincipals += ss.Principals
		stats.TotalConnections += ss.Connections
	}
	return stats
}
