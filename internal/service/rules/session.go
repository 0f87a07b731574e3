package rules

import (
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
)

// Session records which dedup keys already fired. It lives in memory only,
// so a restart or an expired session lets every condition fire again.
type Session struct {
	mu    sync.Mutex
	fired map[string]struct{}
}

func NewSession() *Session {
	return &Session{fired: make(map[string]struct{})}
}

// Claim marks key as fired and reports whether this call was the first.
func (s *Session) Claim(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fired[key]; ok {
		return false
	}
	s.fired[key] = struct{}{}
	return true
}

func (s *Session) Fired(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fired[key]
	return ok
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fired)
}

// SessionRegistry hands out one Session per patient. Idle sessions expire
// after ttl and are recreated empty on next use.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions *gocache.Cache
	ttl      time.Duration
}

func NewSessionRegistry(ttl time.Duration) *SessionRegistry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionRegistry{
		sessions: gocache.New(ttl, 2*ttl),
		ttl:      ttl,
	}
}

// For returns the live session for patientID, creating it if needed. Each
// access extends the session's lifetime.
func (r *SessionRegistry) For(patientID uuid.UUID) *Session {
	key := patientID.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions.Get(key)
	if !ok {
		session = NewSession()
	}
	r.sessions.Set(key, session, r.ttl)
	return session.(*Session)
}

// Reset drops the patient's session so the next evaluation starts fresh.
func (r *SessionRegistry) Reset(patientID uuid.UUID) {
	r.sessions.Delete(patientID.String())
}

func (r *SessionRegistry) Len() int {
	return r.sessions.ItemCount()
}
