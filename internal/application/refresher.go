package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
)

// TokenRefresher keeps OAuth access tokens of an unlocked vault fresh in the
// background, so opening an org rarely has to wait on the token endpoint.
type TokenRefresher struct {
	orgs     *OrgService
	vault    *VaultService
	interval time.Duration
	kick     chan struct{}
	logger   *slog.Logger
}

// NewTokenRefresher creates a TokenRefresher sweeping every interval.
func NewTokenRefresher(orgs *OrgService, vault *VaultService, interval time.Duration, logger *slog.Logger) *TokenRefresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenRefresher{
		orgs:     orgs,
		vault:    vault,
		interval: interval,
		kick:     make(chan struct{}, 1),
		logger:   logger,
	}
}

// Start runs sweeps on the configured interval and whenever Trigger is
// called. It blocks until the context is canceled. A non-positive interval
// leaves only triggered sweeps.
func (r *TokenRefresher) Start(ctx context.Context) {
	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("token refresher stopped")
			return
		case <-tick:
			r.Sweep(ctx)
		case <-r.kick:
			r.Sweep(ctx)
		}
	}
}

// Trigger requests a sweep without waiting for it. Calls made while a sweep
// is already pending are coalesced.
func (r *TokenRefresher) Trigger() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Sweep refreshes every org whose token is due and returns how many were
// refreshed. A locked vault is skipped silently.
func (r *TokenRefresher) Sweep(ctx context.Context) int {
	if !r.vault.IsUnlocked() {
		return 0
	}

	orgs, err := r.orgs.ListOrgs(ctx, OrgFilter{})
	if err != nil {
		r.logger.Error("token sweep could not list orgs", "error", err)
		return 0
	}

	start := time.Now()
	refreshed := 0
	for _, org := range orgs {
		if !NeedsRefresh(org, r.orgs.now()) {
			continue
		}
		if _, err := r.orgs.RefreshToken(ctx, org.ID); err != nil {
			level := slog.LevelWarn
			if model.IsTokenRefreshError(err) {
				// The refresh token itself was rejected; only a reconnect helps.
				level = slog.LevelError
			}
			r.logger.Log(ctx, level, "background token refresh failed", "org_id", org.ID, "error", err)
			continue
		}
		refreshed++
	}

	if refreshed > 0 {
		r.logger.Info("token sweep complete", "refreshed", refreshed, "duration", time.Since(start).Round(time.Millisecond))
	}
	return refreshed
}
