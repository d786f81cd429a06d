// Package memory implements session-scoped stores that live only in process
// memory.
package memory

import (
	"sync"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
	"github.com/ericfisherdev/orgvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SessionStore = (*SessionStore)(nil)

// SessionStore keeps the unlocked vault session for the lifetime of the
// process. Nothing it holds is ever written to disk.
type SessionStore struct {
	mu      sync.RWMutex
	session *model.Session
}

// NewSessionStore returns an empty (locked) SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// Get returns the current session and whether one exists.
func (s *SessionStore) Get() (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return model.Session{}, false
	}
	return *s.session, true
}

// Set replaces the current session.
func (s *SessionStore) Set(session model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &session
}

// Clear drops the current session.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
}
