package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ericfisherdev/orgvault/internal/application"
	"github.com/ericfisherdev/orgvault/internal/domain/model"
)

// DefaultPollWait is how long a bridge long-poll is held open before the
// handler answers 204 and the extension polls again.
const DefaultPollWait = 25 * time.Second

// Handler is the HTTP driving adapter that serves the local REST API used by
// the browser extension.
type Handler struct {
	base      context.Context
	vault     *application.VaultService
	orgs      *application.OrgService
	refresher *application.TokenRefresher
	commands  CommandQueue
	pollWait  time.Duration
	logger    *slog.Logger

	logins sync.WaitGroup
}

// NewHandler creates a Handler with all required dependencies. Background
// work started by requests runs under base and stops when it is cancelled.
// refresher may be nil. A zero pollWait selects DefaultPollWait.
func NewHandler(
	base context.Context,
	vault *application.VaultService,
	orgs *application.OrgService,
	refresher *application.TokenRefresher,
	commands CommandQueue,
	pollWait time.Duration,
	logger *slog.Logger,
) *Handler {
	if pollWait <= 0 {
		pollWait = DefaultPollWait
	}
	if base == nil {
		base = context.Background()
	}
	return &Handler{
		base:      base,
		vault:     vault,
		orgs:      orgs,
		refresher: refresher,
		commands:  commands,
		pollWait:  pollWait,
		logger:    logger,
	}
}

// Wait blocks until background logins started by Login have returned.
func (h *Handler) Wait() {
	h.logins.Wait()
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging, recovery and origin checking middleware. allowedOrigins
// lists the extension origins permitted to call the API; empty accepts any
// browser extension.
func NewServeMux(h *Handler, logger *slog.Logger, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/session", h.SessionStatus)
	mux.HandleFunc("POST /api/v1/session/unlock", h.Unlock)
	mux.HandleFunc("POST /api/v1/session/lock", h.Lock)
	mux.HandleFunc("POST /api/v1/session/password", h.ChangePassword)
	mux.HandleFunc("DELETE /api/v1/data", h.DeleteAllData)

	mux.HandleFunc("GET /api/v1/orgs", h.ListOrgs)
	mux.HandleFunc("POST /api/v1/orgs", h.CreateOrg)
	mux.HandleFunc("PUT /api/v1/orgs/{id}", h.UpdateOrg)
	mux.HandleFunc("DELETE /api/v1/orgs/{id}", h.DeleteOrg)
	mux.HandleFunc("POST /api/v1/orgs/{id}/login", h.Login)
	mux.HandleFunc("POST /api/v1/orgs/{id}/refresh", h.RefreshToken)
	mux.HandleFunc("POST /api/v1/orgs/{id}/revoke", h.RevokeToken)

	mux.HandleFunc("POST /api/v1/oauth/{loginType}/connect", h.ConnectOAuth)
	mux.HandleFunc("GET /api/v1/oauth/configs", h.ListOAuthConfigs)
	mux.HandleFunc("PUT /api/v1/oauth/configs/{loginType}", h.SaveOAuthConfig)

	mux.HandleFunc("GET /api/v1/bridge/commands", h.NextCommand)
	mux.HandleFunc("POST /api/v1/bridge/commands/{id}/result", h.ReportResult)

	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = originGuard(logger, allowedOrigins, wrapped)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// SessionStatus reports whether the vault is unlocked.
func (h *Handler) SessionStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SessionResponse{Unlocked: h.vault.IsUnlocked()})
}

// Unlock opens a vault session with the master password.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.vault.Unlock(r.Context(), req.Password); err != nil {
		h.writeServiceError(w, err, "failed to unlock vault")
		return
	}

	// Tokens may have gone stale while the vault was locked.
	if h.refresher != nil {
		h.refresher.Trigger()
	}

	writeJSON(w, http.StatusOK, SessionResponse{Unlocked: true})
}

// Lock ends the vault session.
func (h *Handler) Lock(w http.ResponseWriter, _ *http.Request) {
	h.vault.Lock()
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword re-encrypts the vault under a new master password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.vault.ChangePassword(r.Context(), req.NewPassword); err != nil {
		h.writeServiceError(w, err, "failed to change master password")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteAllData wipes every org and OAuth config and locks the vault.
func (h *Handler) DeleteAllData(w http.ResponseWriter, r *http.Request) {
	if err := h.vault.Reset(r.Context()); err != nil {
		h.writeServiceError(w, err, "failed to delete data")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Unlocked: h.vault.IsUnlocked(),
		Time:     time.Now().UTC().Format(time.RFC3339),
	})
}

// writeServiceError maps application errors to status codes. Anything
// unrecognised is logged with msg and reported as a 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, msg string, args ...any) {
	var (
		verr         *model.ValidationError
		missing      *model.MissingCredentialError
		authErr      *model.AuthorizationError
		tokenErr     *model.TokenError
		transportErr *model.TransportError
	)

	switch {
	case errors.Is(err, model.ErrNotUnlocked):
		writeError(w, http.StatusLocked, "vault is locked")
	case errors.Is(err, model.ErrWrongPassword):
		writeError(w, http.StatusUnauthorized, "wrong master password")
	case errors.Is(err, model.ErrOrgNotFound), errors.Is(err, model.ErrOAuthConfigNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &missing):
		writeError(w, http.StatusBadRequest, missing.Error())
	case errors.Is(err, model.ErrOAuthCancelled), errors.Is(err, model.ErrNoAuthorizationCode),
		errors.Is(err, model.ErrStateMismatch), errors.As(err, &authErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &tokenErr):
		writeError(w, http.StatusBadGateway, tokenErr.Error())
	case errors.As(err, &transportErr):
		h.logger.Warn(msg, append(args, "error", err)...)
		writeError(w, http.StatusBadGateway, transportErr.Error())
	case errors.Is(err, model.ErrVersionConflict):
		writeError(w, http.StatusConflict, "vault was modified concurrently, try again")
	default:
		h.logger.Error(msg, append(args, "error", err)...)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
