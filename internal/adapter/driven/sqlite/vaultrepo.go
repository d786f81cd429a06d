package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
	"github.com/ericfisherdev/orgvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.VaultStore = (*VaultRepo)(nil)

// VaultRepo is the SQLite implementation of the VaultStore port. The vault is
// a single row whose version column guards every write.
type VaultRepo struct {
	db  *DB
	now func() time.Time
}

// NewVaultRepo creates a new VaultRepo backed by the given DB.
func NewVaultRepo(db *DB) *VaultRepo {
	return &VaultRepo{db: db, now: time.Now}
}

// Load returns the persisted vault record, or a zero record if none exists.
func (r *VaultRepo) Load(ctx context.Context) (model.VaultRecord, error) {
	const query = `SELECT ciphertext, master_hash, version, updated_at FROM vault WHERE id = 1`

	var rec model.VaultRecord
	var updatedAt string
	err := r.db.Reader.QueryRowContext(ctx, query).Scan(&rec.Ciphertext, &rec.MasterHash, &rec.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.VaultRecord{}, nil
	}
	if err != nil {
		return model.VaultRecord{}, fmt.Errorf("load vault: %w", err)
	}

	rec.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return model.VaultRecord{}, fmt.Errorf("parse vault updated_at: %w", err)
	}
	return rec, nil
}

// Save writes rec if the stored version still equals rec.Version.
func (r *VaultRepo) Save(ctx context.Context, rec model.VaultRecord) (int64, error) {
	updatedAt := formatTime(r.now())

	var (
		result sql.Result
		err    error
	)
	if rec.Version == 0 {
		const insert = `INSERT INTO vault (id, ciphertext, master_hash, version, updated_at)
			VALUES (1, ?, ?, 1, ?)
			ON CONFLICT(id) DO NOTHING`
		result, err = r.db.Writer.ExecContext(ctx, insert, rec.Ciphertext, rec.MasterHash, updatedAt)
	} else {
		const update = `UPDATE vault
			SET ciphertext = ?, master_hash = ?, version = version + 1, updated_at = ?
			WHERE id = 1 AND version = ?`
		result, err = r.db.Writer.ExecContext(ctx, update, rec.Ciphertext, rec.MasterHash, updatedAt, rec.Version)
	}
	if err != nil {
		return 0, fmt.Errorf("save vault: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return 0, fmt.Errorf("save vault at version %d: %w", rec.Version, model.ErrVersionConflict)
	}

	return rec.Version + 1, nil
}

// Clear empties the vault row. The version keeps increasing so writers
// holding a stale version still conflict.
func (r *VaultRepo) Clear(ctx context.Context) error {
	const query = `UPDATE vault SET ciphertext = '', master_hash = '', version = version + 1, updated_at = ? WHERE id = 1`
	if _, err := r.db.Writer.ExecContext(ctx, query, formatTime(r.now())); err != nil {
		return fmt.Errorf("clear vault: %w", err)
	}
	return nil
}
