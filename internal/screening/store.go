package screening

import (
	"sync"
	"time"
)

// SessionStore holds live sessions keyed by call id.
type SessionStore interface {
	Get(callID string) (*Session, bool)
	// GetOrCreate returns the existing session for callID or atomically
	// inserts a new one. created reports whether this call inserted it.
	GetOrCreate(callID string, now time.Time) (s *Session, created bool)
	Delete(callID string)
	// Sweep removes sessions whose last activity is before cutoff. A
	// concluded session counts its conclusion as activity, so it stays
	// answerable as terminal for a full ttl. It returns the evicted call ids.
	Sweep(cutoff time.Time) []string
	Len() int
}

// MemoryStore is a mutex guarded in-process SessionStore.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Get(callID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	return s, ok
}

func (m *MemoryStore) GetOrCreate(callID string, now time.Time) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[callID]; ok {
		return s, false
	}
	s := newSession(callID, now)
	m.sessions[callID] = s
	return s, true
}

func (m *MemoryStore) Delete(callID string) {
	m.mu.Lock()
	delete(m.sessions, callID)
	m.mu.Unlock()
}

func (m *MemoryStore) Sweep(cutoff time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var evicted []string
	for id, s := range m.sessions {
		if s.LastActivity().Before(cutoff) {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
