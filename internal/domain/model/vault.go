package model

import "time"

// VaultRecord is the durable vault state: the encrypted org list, the
// password digest used as an unlock hint, and a version stamp bumped on
// every write. Version 0 means nothing has been persisted yet.
type VaultRecord struct {
	Ciphertext string
	MasterHash string
	Version    int64
	UpdatedAt  time.Time
}

// Empty reports whether no org list has been persisted.
func (r VaultRecord) Empty() bool {
	return r.Ciphertext == ""
}
