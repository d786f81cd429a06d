// Package loopback implements the interactive OAuth step for a desktop
// process: the consent page opens in the system browser and the redirect is
// caught by a short-lived HTTP listener on the loopback redirect URI.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/cli/browser"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
	"github.com/ericfisherdev/orgvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AuthFlow = (*AuthFlow)(nil)

// Opener shows a URL to the user.
type Opener func(url string) error

const callbackPage = "Authorization complete. You can close this window."

// AuthFlow waits for a single authorization redirect on the loopback
// interface. If none arrives within timeout the flow counts as cancelled.
type AuthFlow struct {
	open    Opener
	timeout time.Duration
	logger  *slog.Logger
}

// NewAuthFlow returns an AuthFlow that opens the system browser.
func NewAuthFlow(timeout time.Duration, logger *slog.Logger) *AuthFlow {
	return NewAuthFlowWithOpener(browser.OpenURL, timeout, logger)
}

// NewAuthFlowWithOpener returns an AuthFlow using a custom opener. It is
// intended for tests.
func NewAuthFlowWithOpener(open Opener, timeout time.Duration, logger *slog.Logger) *AuthFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthFlow{open: open, timeout: timeout, logger: logger}
}

// Authorize opens authURL and returns the redirect URL received on
// redirectURI.
func (f *AuthFlow) Authorize(ctx context.Context, authURL, redirectURI string) (string, error) {
	callback, err := parseLoopbackURI(redirectURI)
	if err != nil {
		return "", err
	}

	ln, err := net.Listen("tcp", callback.Host)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", callback.Host, err)
	}

	result := make(chan string, 1)
	path := callback.Path
	if path == "" {
		path = "/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
		redirect := url.URL{
			Scheme:   callback.Scheme,
			Host:     callback.Host,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
		}
		select {
		case result <- redirect.String():
		default:
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(callbackPage))
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.logger.Error("oauth callback listener failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := f.open(authURL); err != nil {
		return "", fmt.Errorf("open authorization page: %w", err)
	}
	f.logger.Info("waiting for oauth redirect", "callback", callback.Host+path, "timeout", f.timeout)

	waitCtx := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	select {
	case redirect := <-result:
		return redirect, nil
	case <-waitCtx.Done():
		return "", fmt.Errorf("%w: %v", model.ErrOAuthCancelled, waitCtx.Err())
	}
}

// parseLoopbackURI accepts only plain-HTTP redirect URIs on a loopback host
// with an explicit port.
func parseLoopbackURI(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse redirect uri: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect uri %q: scheme must be http", raw)
	}
	if u.Port() == "" {
		return nil, fmt.Errorf("redirect uri %q: port is required", raw)
	}

	host := u.Hostname()
	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return nil, fmt.Errorf("redirect uri %q: host must be loopback", raw)
		}
	}
	return u, nil
}
