// Package subscription tracks which operator sessions listen on which
// topics. Membership is kept bidirectionally so both "topics of a session"
// and "subscribers of a topic" resolve in O(1) amortized time.
package subscription

import (
	"sync"

	"github.com/google/uuid"
)

// Manager holds (sessionID, topic) membership. A subscription must never
// outlive its owning session: CleanupSession is wired to the transport
// disconnect path, not only to explicit unsubscribe frames, so abrupt
// network failures cannot leave dangling entries behind.
type Manager struct {
	mu        sync.RWMutex
	byTopic   map[string]map[uuid.UUID]struct{}
	bySession map[uuid.UUID]map[string]struct{}
}

func NewManager() *Manager {
	return &Manager{
		byTopic:   make(map[string]map[uuid.UUID]struct{}),
		bySession: make(map[uuid.UUID]map[string]struct{}),
	}
}

// Subscribe is an idempotent add.
func (m *Manager) Subscribe(sessionID uuid.UUID, topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byTopic[topic] == nil {
		m.byTopic[topic] = make(map[uuid.UUID]struct{})
	}
	m.byTopic[topic][sessionID] = struct{}{}

	if m.bySession[sessionID] == nil {
		m.bySession[sessionID] = make(map[string]struct{})
	}
	m.bySession[sessionID][topic] = struct{}{}
}

// Unsubscribe is an idempotent remove.
func (m *Manager) Unsubscribe(sessionID uuid.UUID, topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(sessionID, topic)
}

func (m *Manager) removeLocked(sessionID uuid.UUID, topic string) {
	if sessions, ok := m.byTopic[topic]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(m.byTopic, topic)
		}
	}
	if topics, ok := m.bySession[sessionID]; ok {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(m.bySession, sessionID)
		}
	}
}

// SubscribersOf returns a snapshot of session ids listening on topic.
func (m *Manager) SubscribersOf(topic string) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions, ok := m.byTopic[topic]
	if !ok {
		return nil
	}
	out := make([]uuid.UUID, 0, len(sessions))
	for id := range sessions {
		out = append(out, id)
	}
	return out
}

// TopicsOf returns a snapshot of the session's topics.
func (m *Manager) TopicsOf(sessionID uuid.UUID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	topics, ok := m.bySession[sessionID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(topics))
	for t := range topics {
		out = append(out, t)
	}
	return out
}

// CleanupSession removes every subscription owned by the session. Called
// from the disconnect path; calling it again is a no-op.
func (m *Manager) CleanupSession(sessionID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for topic := range m.bySession[sessionID] {
		m.removeLocked(sessionID, topic)
	}
	delete(m.bySession, sessionID)
}

// Len reports the total number of live (session, topic) pairs.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, topics := range m.bySession {
		n += len(topics)
	}
	return n
}
