package session

import (
	"time"

	"github.com/google/uuid"

	"tally/internal/cache"
)

// Store holds live sessions in a bounded cache with an idle timeout.
// An evicted or expired session is gone; the browser starts anonymous again.
type Store struct {
	sessions *cache.LRUCache[*Session]
	now      func() time.Time
}

// NewStore creates a store keeping at most maxEntries sessions, each expiring
// after idleTTL without requests.
func NewStore(maxEntries int, idleTTL time.Duration) *Store {
	return &Store{
		sessions: cache.NewLRUCache[*Session](maxEntries, idleTTL),
		now:      time.Now,
	}
}

// Load returns the session for id, creating and storing a fresh one when id
// is unknown or expired. created reports whether a new session was made.
func (s *Store) Load(id string) (sess *Session, created bool) {
	if existing, ok := s.Get(id); ok {
		return existing, false
	}
	sess = newSession(uuid.NewString(), s.now())
	s.sessions.Set(sess.ID, sess)
	return sess, true
}

// Get returns a live session without creating one and extends its idle
// timeout.
func (s *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	sess, ok := s.sessions.Get(id)
	if ok {
		s.sessions.Touch(id)
	}
	return sess, ok
}

// Anonymous returns a fresh session that is not stored and has no id.
// Pages rendered for browsers without a session use it, so reads never
// take room from stored sessions.
func (s *Store) Anonymous() *Session {
	return newSession("", s.now())
}

// Len is the number of live sessions.
func (s *Store) Len() int {
	return s.sessions.Size()
}

// Cleaner exposes the underlying cache for periodic cleanup.
func (s *Store) Cleaner() cache.Cleaner {
	return s.sessions
}
