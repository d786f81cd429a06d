package driven

import "github.com/ericfisherdev/orgvault/internal/domain/model"

// SessionStore holds the unlocked vault session in session-scoped memory.
// Implementations must never write it to durable storage.
type SessionStore interface {
	Get() (model.Session, bool)
	Set(s model.Session)
	Clear()
}
