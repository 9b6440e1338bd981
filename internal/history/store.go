package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"imagechain/internal/domain"
)

// Session owns one History. Version increases on every committed change and
// guards against concurrent writers.
type Session struct {
	ID        uuid.UUID
	History   History
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, s *Session) error
	// Get may return entries without their image bytes; see Load.
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	// Load returns e with Image.Data present.
	Load(ctx context.Context, id uuid.UUID, e Entry) (Entry, error)
	// Replace swaps the history when the stored version still equals
	// expectedVersion and returns the updated session. A version mismatch is
	// domain.ErrTransformationInFlight.
	Replace(ctx context.Context, id uuid.UUID, expectedVersion int64, h History) (*Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// MemoryStore keeps sessions in process memory. With an idle TTL, sessions
// untouched for longer than the TTL are dropped; sweeps run lazily on access.
type MemoryStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*memorySession
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type memorySession struct {
	session Session
	touched time.Time
}

// NewMemoryStore returns a store whose sessions never expire.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreTTL(0)
}

// NewMemoryStoreTTL returns a store that forgets sessions idle for longer
// than ttl. ttl <= 0 disables expiry.
func NewMemoryStoreTTL(ttl time.Duration) *MemoryStore {
	return &MemoryStore{sessions: make(map[uuid.UUID]*memorySession), ttl: ttl, now: time.Now}
}

func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sweep(now)
	m.sessions[s.ID] = &memorySession{session: *s, touched: now}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	cp := ms.session
	return &cp, nil
}

// Load returns e unchanged; memory entries always carry their bytes.
func (m *MemoryStore) Load(ctx context.Context, id uuid.UUID, e Entry) (Entry, error) {
	return e, nil
}

func (m *MemoryStore) Replace(ctx context.Context, id uuid.UUID, expectedVersion int64, h History) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if ms.session.Version != expectedVersion {
		return nil, domain.ErrTransformationInFlight
	}
	ms.session.History = h
	ms.session.Version++
	ms.session.UpdatedAt = ms.touched
	cp := ms.session
	return &cp, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(id); err != nil {
		return err
	}
	delete(m.sessions, id)
	return nil
}

// lookup returns a live session and marks it used. Callers hold m.mu.
func (m *MemoryStore) lookup(id uuid.UUID) (*memorySession, error) {
	now := m.now()
	m.sweep(now)
	ms, ok := m.sessions[id]
	if !ok || m.expired(ms, now) {
		delete(m.sessions, id)
		return nil, domain.ErrNotFound
	}
	ms.touched = now
	return ms, nil
}

func (m *MemoryStore) expired(ms *memorySession, now time.Time) bool {
	return m.ttl > 0 && now.Sub(ms.touched) > m.ttl
}

// sweep drops idle sessions at most once per minute. Callers hold m.mu.
func (m *MemoryStore) sweep(now time.Time) {
	if m.ttl <= 0 || now.Sub(m.lastSweep) < min(m.ttl, time.Minute) {
		return
	}
	m.lastSweep = now
	for id, ms := range m.sessions {
		if m.expired(ms, now) {
			delete(m.sessions, id)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
