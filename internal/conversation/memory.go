package conversation

import (
	"context"
	"sync"
	"time"
)

type memorySession struct {
	mu       sync.Mutex
	stack    *Stack
	lastSeen time.Time
}

// MemoryStore keeps stacks in process memory. Turns on one session run one
// at a time; distinct sessions never block each other.
type MemoryStore struct {
	limits      Limits
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*memorySession
}

func NewMemoryStore(limits Limits, idleTimeout time.Duration) *MemoryStore {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &MemoryStore{
		limits:      limits.withDefaults(),
		idleTimeout: idleTimeout,
		now:         time.Now,
		sessions:    map[string]*memorySession{},
	}
}

func (m *MemoryStore) session(id string) *memorySession {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		session = &memorySession{stack: NewStack(m.limits)}
		m.sessions[id] = session
	}
	return session
}

// lock returns the locked session for id. A session swept between lookup
// and locking is looked up again.
func (m *MemoryStore) lock(id string) *memorySession {
	for {
		session := m.session(id)
		session.mu.Lock()
		m.mu.Lock()
		current := m.sessions[id]
		m.mu.Unlock()
		if current == session {
			return session
		}
		session.mu.Unlock()
	}
}

func (m *MemoryStore) Update(ctx context.Context, sessionID string, fn func(*Stack) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	session := m.lock(sessionID)
	defer session.mu.Unlock()

	now := m.now()
	if !session.lastSeen.IsZero() && now.Sub(session.lastSeen) > m.idleTimeout {
		session.stack = NewStack(m.limits)
	}
	session.lastSeen = now

	working := session.stack.Clone()
	if err := fn(working); err != nil {
		return err
	}
	session.stack = working
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// Sweep forgets sessions idle for longer than the idle timeout and returns
// how many were removed. Sessions in the middle of a turn are skipped.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, session := range m.sessions {
		if !session.mu.TryLock() {
			continue
		}
		if now.Sub(session.lastSeen) > m.idleTimeout {
			delete(m.sessions, id)
			removed++
		}
		session.mu.Unlock()
	}
	return removed
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
