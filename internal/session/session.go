// Package session keeps the per-browser UI state on the server.
package session

import (
	"sync"
	"time"

	"tally/internal/core"
)

// Session is the state of one browser session. Fields must only be read or
// written while the session is locked.
type Session struct {
	mu sync.Mutex

	ID        string
	CreatedAt time.Time

	// AccessToken is empty while the session is anonymous.
	AccessToken string
	// Email is what was last typed in the auth panel.
	Email string

	Form     core.Form
	Snapshot core.Snapshot

	flash []core.Notification
	fresh bool
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		Form:      core.NewForm(),
	}
}

// Lock serializes requests of the same session.
func (s *Session) Lock() { s.mu.Lock() }

func (s *Session) Unlock() { s.mu.Unlock() }

// Authenticated reports whether a login succeeded in this session.
func (s *Session) Authenticated() bool {
	return s.AccessToken != ""
}

// EditOpen reports whether the edit modal is shown.
func (s *Session) EditOpen() bool {
	return s.Form.IsEditing()
}

// AddFlash queues a notification for the next full page render.
func (s *Session) AddFlash(n core.Notification) {
	s.flash = append(s.flash, n)
}

// TakeFlash returns and clears the queued notifications.
func (s *Session) TakeFlash() []core.Notification {
	out := s.flash
	s.flash = nil
	return out
}

// MarkFresh notes that the snapshot was just fetched, so the page load that
// follows a redirect can skip its own fetch.
func (s *Session) MarkFresh() {
	s.fresh = true
}

// TakeFresh reports and clears the mark set by MarkFresh.
func (s *Session) TakeFresh() bool {
	fresh := s.fresh
	s.fresh = false
	return fresh
}

// ShortID is a log-safe prefix of the session id.
func (s *Session) ShortID() string {
	if len(s.ID) > 8 {
		return s.ID[:8]
	}
	return s.ID
}
