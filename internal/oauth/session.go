package oauth

import (
	"context"
	"log"
	"sync"
	"time"
)

// SessionTTL bounds how long a PKCE session may wait for its callback.
const SessionTTL = 10 * time.Minute

// Session holds the PKCE verifier for one in-flight authorization attempt,
// keyed by the state token's random id.
type Session struct {
	Verifier  string    `json:"verifier"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionStore maps state ids to PKCE sessions with a bounded lifetime. A
// production deployment can swap the in-memory store for the Redis one
// without touching the flow logic.
type SessionStore interface {
	Put(ctx context.Context, id string, s Session) error
	// Take returns and deletes the session: callbacks consume it exactly once.
	Take(ctx context.Context, id string) (Session, bool, error)
	// SweepExpired removes entries older than the TTL and reports how many.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore is the default process-local session store. A process restart
// loses in-flight authorization attempts, which is accepted.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	ttl      time.Duration
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &MemoryStore{sessions: make(map[string]Session), ttl: ttl}
}

func (m *MemoryStore) Put(_ context.Context, id string, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = s
	return nil
}

func (m *MemoryStore) Take(_ context.Context, id string) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	return s, ok, nil
}

func (m *MemoryStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if now.Sub(s.CreatedAt) > m.ttl {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// RunSweeper drives periodic expiry sweeps until the context is cancelled.
// The interval is a parameter so tests can drive sweeps synchronously via
// SweepExpired instead of waiting on timers.
func RunSweeper(ctx context.Context, store SessionStore, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.SweepExpired(ctx, time.Now())
			if err != nil {
				logger.Printf("session sweep error: %v", err)
				continue
			}
			if n > 0 {
				logger.Printf("swept %d expired oauth sessions", n)
			}
		}
	}
}
