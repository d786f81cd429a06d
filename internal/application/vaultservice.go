// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
	"github.com/ericfisherdev/orgvault/internal/domain/port/driven"
)

// maxCommitAttempts bounds how often a mutation is reapplied after another
// process wrote the vault in between our read and our write.
const maxCommitAttempts = 3

// VaultService owns the vault session and every read and write of the
// encrypted org list. It is Locked until Unlock succeeds and Unlocked while
// a session is held in the SessionStore.
//
// Writes in this process go through a single writer lock; writes racing
// from other processes are caught by the store's version check.
type VaultService struct {
	store    driven.VaultStore
	configs  driven.OAuthConfigStore
	sessions driven.SessionStore
	codec    driven.VaultCodec
	now      func() time.Time
	logger   *slog.Logger

	writeMu sync.Mutex
}

// NewVaultService creates a VaultService with all required dependencies.
func NewVaultService(
	store driven.VaultStore,
	configs driven.OAuthConfigStore,
	sessions driven.SessionStore,
	codec driven.VaultCodec,
	logger *slog.Logger,
) *VaultService {
	if logger == nil {
		logger = slog.Default()
	}
	return &VaultService{
		store:    store,
		configs:  configs,
		sessions: sessions,
		codec:    codec,
		now:      time.Now,
		logger:   logger,
	}
}

// Unlock validates password against the persisted vault and opens a session.
//
// A vault with nothing persisted accepts any valid password and adopts it as
// the master password. Otherwise the stored digest and the ciphertext's
// authentication tag must both accept it, so a wrong password is reported
// as model.ErrWrongPassword instead of showing an empty vault.
func (s *VaultService) Unlock(ctx context.Context, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("unlock: %w", err)
	}

	if rec.MasterHash != "" && !s.codec.VerifyPassword(rec.MasterHash, password) {
		return model.ErrWrongPassword
	}

	orgs := []model.Org{}
	if !rec.Empty() {
		if orgs, err = s.codec.Open(rec.Ciphertext, password); err != nil {
			return fmt.Errorf("unlock: %w", err)
		}
	}

	digest := rec.MasterHash
	if digest == "" || rec.Empty() {
		// First unlock, or a blob written before digests existed: persist
		// both so later unlocks can verify.
		if digest == "" {
			if digest, err = s.codec.HashPassword(password); err != nil {
				return fmt.Errorf("unlock: %w", err)
			}
		}
		ciphertext, err := s.codec.Encrypt(orgs, password)
		if err != nil {
			return fmt.Errorf("unlock: %w", err)
		}
		if _, err := s.store.Save(ctx, model.VaultRecord{Ciphertext: ciphertext, MasterHash: digest, Version: rec.Version}); err != nil {
			return fmt.Errorf("unlock: initialize vault: %w", err)
		}
	}

	s.sessions.Set(model.Session{Password: password, Digest: digest, UnlockedAt: s.now().UTC()})
	s.logger.Info("vault unlocked", "orgs", len(orgs))
	return nil
}

// IsUnlocked reports whether a session is held.
func (s *VaultService) IsUnlocked() bool {
	_, ok := s.sessions.Get()
	return ok
}

// Lock ends the session.
func (s *VaultService) Lock() {
	s.sessions.Clear()
	s.logger.Info("vault locked")
}

// WithUnlocked runs fn with the current session, or fails with
// model.ErrNotUnlocked without calling fn.
func (s *VaultService) WithUnlocked(fn func(model.Session) error) error {
	sess, ok := s.sessions.Get()
	if !ok {
		return model.ErrNotUnlocked
	}
	return fn(sess)
}

// ListOrgs decrypts and returns the org list.
func (s *VaultService) ListOrgs(ctx context.Context) ([]model.Org, error) {
	var orgs []model.Org
	err := s.WithUnlocked(func(sess model.Session) error {
		rec, err := s.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("load vault: %w", err)
		}
		orgs, err = s.open(rec, sess.Password)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orgs, nil
}

// Mutate applies fn to the current org list and persists the result,
// re-encrypting the whole list. fn may run more than once if another
// process writes concurrently, so it must only depend on its argument.
// An error from fn aborts the mutation with nothing written.
func (s *VaultService) Mutate(ctx context.Context, fn func([]model.Org) ([]model.Org, error)) error {
	return s.withWriteLock(func(sess model.Session) error {
		return s.commit(ctx, sess.Password, sess.Password, "", fn)
	})
}

// ChangePassword re-encrypts the org list under newPassword. The session
// switches to the new password only after the new ciphertext is persisted.
func (s *VaultService) ChangePassword(ctx context.Context, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	digest, err := s.codec.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	return s.withWriteLock(func(sess model.Session) error {
		if err := s.commit(ctx, sess.Password, newPassword, digest, keepOrgs); err != nil {
			return fmt.Errorf("change password: %w", err)
		}

		s.sessions.Set(model.Session{Password: newPassword, Digest: digest, UnlockedAt: sess.UnlockedAt})
		s.logger.Info("master password changed")
		return nil
	})
}

// withWriteLock runs fn under writeMu with the session as it stands once the
// lock is held. A write queued behind a password change therefore sees the
// new password.
func (s *VaultService) withWriteLock(fn func(model.Session) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sess, ok := s.sessions.Get()
	if !ok {
		return model.ErrNotUnlocked
	}
	return fn(sess)
}

// Reset deletes every persisted org and OAuth config and locks the vault.
// It does not require an unlocked session so a forgotten master password
// can be recovered from by starting over.
func (s *VaultService) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("reset vault: %w", err)
	}
	if err := s.configs.Clear(ctx); err != nil {
		return fmt.Errorf("reset oauth configs: %w", err)
	}
	s.sessions.Clear()
	s.logger.Warn("all vault data deleted")
	return nil
}

// commit is the read-decrypt-apply-encrypt-write cycle. Callers hold
// writeMu. An empty newDigest keeps the stored digest.
func (s *VaultService) commit(
	ctx context.Context,
	password, newPassword, newDigest string,
	fn func([]model.Org) ([]model.Org, error),
) error {
	for attempt := 1; attempt <= maxCommitAttempts; attempt++ {
		rec, err := s.store.Load(ctx)
		if err != nil {
			return fmt.Errorf("load vault: %w", err)
		}

		orgs, err := s.open(rec, password)
		if err != nil {
			return err
		}

		next, err := fn(orgs)
		if err != nil {
			return err
		}

		ciphertext, err := s.codec.Encrypt(next, newPassword)
		if err != nil {
			return fmt.Errorf("encrypt vault: %w", err)
		}

		digest := newDigest
		if digest == "" {
			digest = rec.MasterHash
		}

		_, err = s.store.Save(ctx, model.VaultRecord{Ciphertext: ciphertext, MasterHash: digest, Version: rec.Version})
		if errors.Is(err, model.ErrVersionConflict) {
			s.logger.Warn("vault changed during write, retrying", "attempt", attempt, "version", rec.Version)
			continue
		}
		if err != nil {
			return fmt.Errorf("save vault: %w", err)
		}
		return nil
	}

	return fmt.Errorf("save vault after %d attempts: %w", maxCommitAttempts, model.ErrVersionConflict)
}

// open decrypts rec strictly. A missing blob is an empty list; a blob the
// session password cannot open is an error, never an empty list, so that a
// following write cannot overwrite data it failed to read.
func (s *VaultService) open(rec model.VaultRecord, password string) ([]model.Org, error) {
	if rec.Empty() {
		return []model.Org{}, nil
	}
	orgs, err := s.codec.Open(rec.Ciphertext, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt vault: %w", err)
	}
	return slices.Clone(orgs), nil
}

func keepOrgs(orgs []model.Org) ([]model.Org, error) {
	return orgs, nil
}

func validatePassword(password string) error {
	if len(password) < model.MinPasswordLength {
		return &model.ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("master password must be at least %d characters", model.MinPasswordLength),
		}
	}
	return nil
}
