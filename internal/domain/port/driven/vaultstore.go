package driven

import (
	"context"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
)

// VaultStore defines the driven port for durable vault persistence. The
// store never sees plaintext; encryption happens before Save.
type VaultStore interface {
	// Load returns the persisted record. When nothing has been written it
	// returns a zero record (Version 0) and no error.
	Load(ctx context.Context) (model.VaultRecord, error)

	// Save replaces the record if the persisted version still equals
	// rec.Version and returns the new version. A stale rec.Version yields
	// model.ErrVersionConflict and leaves storage untouched.
	Save(ctx context.Context, rec model.VaultRecord) (int64, error)

	// Clear removes the record entirely.
	Clear(ctx context.Context) error
}
