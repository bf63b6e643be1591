package app

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"planner.commuteway.org/internal/metrics"
	"planner.commuteway.org/internal/planner"
)

const minCleanupInterval = time.Minute

// Session is one planner owned by one client.
type Session struct {
	ID        uuid.UUID
	Planner   *planner.Planner
	CreatedAt time.Time
}

// SessionRegistry holds sessions in memory. A session expires after ttl
// without being looked up.
type SessionRegistry struct {
	sessions   *cache.Cache
	newPlanner func() *planner.Planner
}

func NewSessionRegistry(ttl time.Duration, newPlanner func() *planner.Planner) *SessionRegistry {
	cleanup := max(ttl/2, minCleanupInterval)
	r := &SessionRegistry{
		sessions:   cache.New(ttl, cleanup),
		newPlanner: newPlanner,
	}
	r.sessions.OnEvicted(func(string, interface{}) { r.recordCount() })
	return r
}

func (r *SessionRegistry) Create() *Session {
	s := &Session{
		ID:        uuid.New(),
		Planner:   r.newPlanner(),
		CreatedAt: time.Now().UTC(),
	}
	r.sessions.Set(s.ID.String(), s, cache.DefaultExpiration)
	r.recordCount()
	return s
}

// Get returns the session and extends its lifetime.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	v, found := r.sessions.Get(id)
	if !found {
		return nil, false
	}
	s := v.(*Session)
	r.sessions.Set(id, s, cache.DefaultExpiration)
	return s, true
}

// Delete removes the session and reports whether it existed.
func (r *SessionRegistry) Delete(id string) bool {
	if _, found := r.sessions.Get(id); !found {
		return false
	}
	r.sessions.Delete(id)
	return true
}

// Count includes sessions that expired but were not cleaned up yet.
func (r *SessionRegistry) Count() int {
	return r.sessions.ItemCount()
}

func (r *SessionRegistry) recordCount() {
	metrics.ActiveSessions.Set(float64(r.sessions.ItemCount()))
}
