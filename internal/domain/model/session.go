package model

import "time"

// Session is the unlocked vault state. It exists only in session-scoped
// memory and is never persisted.
type Session struct {
	Password   string
	Digest     string
	UnlockedAt time.Time
}

// MinPasswordLength is the shortest accepted master password.
const MinPasswordLength = 6
