package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
	"github.com/ericfisherdev/orgvault/internal/domain/port/driven"
)

// RetryPolicy bounds how often an injection is attempted.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy tries twice, one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, Delay: time.Second}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1))
	return backoff.WithContext(b, ctx)
}

// LoginDispatcher opens a login tab for an org and injects the session
// navigation or the password form fill into it.
type LoginDispatcher struct {
	browser   driven.Browser
	selectors model.SelectorSet
	settle    time.Duration
	retry     RetryPolicy
	logger    *slog.Logger
}

// NewLoginDispatcher creates a LoginDispatcher. settle is waited after the
// tab reports ready, before the first injection attempt.
func NewLoginDispatcher(
	browser driven.Browser,
	selectors model.SelectorSet,
	settle time.Duration,
	retry RetryPolicy,
	logger *slog.Logger,
) *LoginDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginDispatcher{
		browser:   browser,
		selectors: selectors,
		settle:    settle,
		retry:     retry,
		logger:    logger,
	}
}

// Dispatch opens the org's login entry page and injects into it. Failing to
// open the tab is returned. Injection failures are retried per the policy
// and then dropped: the login simply does not complete.
func (d *LoginDispatcher) Dispatch(ctx context.Context, org model.Org) error {
	tabID, err := d.browser.OpenTab(ctx, org.LoginEntryURL())
	if err != nil {
		return fmt.Errorf("open login tab for org %s: %w", org.ID, err)
	}

	inj, ok := d.injectionFor(org)
	if !ok {
		d.logger.Warn("org has no usable credentials, tab opened without login", "org_id", org.ID, "auth_method", org.AuthMethod)
		return nil
	}

	if err := d.browser.WaitReady(ctx, tabID); err != nil {
		// The retry below still covers a page that was slow to load.
		d.logger.Warn("tab did not report ready", "org_id", org.ID, "tab_id", tabID, "error", err)
	}
	if err := sleepContext(ctx, d.settle); err != nil {
		return err
	}

	attempt := 0
	err = backoff.RetryNotify(
		func() error {
			attempt++
			return d.browser.Inject(ctx, tabID, inj)
		},
		d.retry.backOff(ctx),
		func(err error, wait time.Duration) {
			d.logger.Warn("login injection failed, retrying",
				"org_id", org.ID, "tab_id", tabID, "attempt", attempt, "retry_in", wait, "error", err)
		},
	)
	if err != nil {
		d.logger.Error("login injection gave up",
			"org_id", org.ID, "tab_id", tabID, "attempts", attempt, "error", err)
		return nil
	}

	d.logger.Info("login injected", "org_id", org.ID, "kind", inj.Kind, "attempts", attempt)
	return nil
}

func (d *LoginDispatcher) injectionFor(org model.Org) (model.Injection, bool) {
	switch org.AuthMethod {
	case model.AuthMethodOAuth:
		if org.AccessToken == "" || org.InstanceURL == "" {
			return model.Injection{}, false
		}
		return model.FrontdoorInjection(org), true
	case model.AuthMethodPassword:
		if org.Username == "" {
			return model.Injection{}, false
		}
		return model.PasswordInjection(org, d.selectors), true
	default:
		return model.Injection{}, false
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
