package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
	"github.com/ericfisherdev/orgvault/internal/domain/port/driven"
)

// OrgFilter narrows ListOrgs. Zero fields match everything.
type OrgFilter struct {
	LoginType model.LoginType
	Group     string
}

func (f OrgFilter) match(org model.Org) bool {
	if f.LoginType != "" && org.LoginType != f.LoginType {
		return false
	}
	if f.Group != "" && org.Group != f.Group {
		return false
	}
	return true
}

// NeedsRefresh reports whether org's access token should be refreshed at
// now: it is an OAuth org with a refresh token and a recorded expiry that
// falls within model.RefreshLeadTime.
func NeedsRefresh(org model.Org, now time.Time) bool {
	if org.AuthMethod != model.AuthMethodOAuth || org.RefreshToken == "" || org.TokenExpiry == 0 {
		return false
	}
	return now.UnixMilli() >= org.TokenExpiry-model.RefreshLeadTime.Milliseconds()
}

// OrgService is the org lifecycle controller: it creates, updates and
// deletes org records, keeps OAuth tokens fresh and dispatches logins.
type OrgService struct {
	vault       *VaultService
	configs     driven.OAuthConfigStore
	oauth       driven.OAuthClient
	authFlow    driven.AuthFlow
	login       *LoginDispatcher
	redirectURI string
	now         func() time.Time
	newID       func() string
	logger      *slog.Logger
}

// NewOrgService creates a new OrgService with all required dependencies.
// redirectURI is recorded in OAuth configs saved through SaveOAuthConfig.
func NewOrgService(
	vault *VaultService,
	configs driven.OAuthConfigStore,
	oauth driven.OAuthClient,
	authFlow driven.AuthFlow,
	login *LoginDispatcher,
	redirectURI string,
	logger *slog.Logger,
) *OrgService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrgService{
		vault:       vault,
		configs:     configs,
		oauth:       oauth,
		authFlow:    authFlow,
		login:       login,
		redirectURI: redirectURI,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      logger,
	}
}

// ListOrgs returns the orgs matching filter in stored order.
func (s *OrgService) ListOrgs(ctx context.Context, filter OrgFilter) ([]model.Org, error) {
	orgs, err := s.vault.ListOrgs(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]model.Org, 0, len(orgs))
	for _, org := range orgs {
		if filter.match(org) {
			matched = append(matched, org)
		}
	}
	return matched, nil
}

// GetOrg returns the org with the given id.
func (s *OrgService) GetOrg(ctx context.Context, id string) (model.Org, error) {
	orgs, err := s.vault.ListOrgs(ctx)
	if err != nil {
		return model.Org{}, err
	}
	i := model.FindOrg(orgs, id)
	if i < 0 {
		return model.Org{}, fmt.Errorf("org %s: %w", id, model.ErrOrgNotFound)
	}
	return orgs[i], nil
}

// SaveOrg creates org when it has no id and updates the stored record
// otherwise. Only the credential group matching AuthMethod is kept.
func (s *OrgService) SaveOrg(ctx context.Context, org model.Org) (model.Org, error) {
	if err := validateOrg(org); err != nil {
		return model.Org{}, err
	}
	org.Normalize()

	creating := org.ID == ""
	if creating {
		org.ID = s.newID()
		org.CreatedAt = s.now().UTC()
	}

	var saved model.Org
	err := s.vault.Mutate(ctx, func(orgs []model.Org) ([]model.Org, error) {
		if creating {
			saved = org
			return append(orgs, org), nil
		}

		i := model.FindOrg(orgs, org.ID)
		if i < 0 {
			return nil, fmt.Errorf("org %s: %w", org.ID, model.ErrOrgNotFound)
		}
		saved = org
		saved.CreatedAt = orgs[i].CreatedAt
		if saved.LastUsed.IsZero() {
			saved.LastUsed = orgs[i].LastUsed
		}
		orgs[i] = saved
		return orgs, nil
	})
	if err != nil {
		return model.Org{}, err
	}

	s.logger.Info("org saved", "org_id", saved.ID, "created", creating, "auth_method", saved.AuthMethod)
	return saved, nil
}

// DeleteOrg removes the org with the given id.
func (s *OrgService) DeleteOrg(ctx context.Context, id string) error {
	err := s.vault.Mutate(ctx, func(orgs []model.Org) ([]model.Org, error) {
		i := model.FindOrg(orgs, id)
		if i < 0 {
			return nil, fmt.Errorf("org %s: %w", id, model.ErrOrgNotFound)
		}
		return append(orgs[:i], orgs[i+1:]...), nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("org deleted", "org_id", id)
	return nil
}

// ConnectOAuth runs the authorization-code flow for loginType and stores the
// resulting org.
func (s *OrgService) ConnectOAuth(ctx context.Context, loginType model.LoginType) (model.Org, error) {
	if !loginType.Valid() {
		return model.Org{}, &model.ValidationError{Field: "loginType", Message: fmt.Sprintf("unknown login type %q", loginType)}
	}
	if !s.vault.IsUnlocked() {
		return model.Org{}, model.ErrNotUnlocked
	}

	cfg, err := s.oauthConfig(ctx, loginType)
	if err != nil {
		return model.Org{}, err
	}

	state := uuid.NewString()
	redirect, err := s.authFlow.Authorize(ctx, s.oauth.AuthorizationURL(cfg, state), cfg.RedirectURI)
	if err != nil {
		return model.Org{}, err
	}

	code, err := authorizationCode(redirect, state)
	if err != nil {
		return model.Org{}, err
	}

	tok, err := s.oauth.ExchangeCode(ctx, code, cfg)
	if err != nil {
		return model.Org{}, upstreamError(model.TokenOpExchange, err)
	}
	if strings.TrimSpace(tok.InstanceURL) == "" {
		// Without an instance there is nothing to open a session on.
		return model.Org{}, &model.TokenError{Op: model.TokenOpExchange, StatusText: "response has no instance_url"}
	}

	now := s.now().UTC()
	org := model.Org{
		ID:           s.newID(),
		Name:         loginType.DisplayName() + " Org",
		InstanceURL:  tok.InstanceURL,
		LoginType:    loginType,
		AuthMethod:   model.AuthMethodOAuth,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenExpiry:  tok.Expiry(now).UnixMilli(),
		CreatedAt:    now,
	}

	err = s.vault.Mutate(ctx, func(orgs []model.Org) ([]model.Org, error) {
		return append(orgs, org), nil
	})
	if err != nil {
		return model.Org{}, err
	}

	s.logger.Info("org connected via oauth", "org_id", org.ID, "login_type", loginType, "instance_url", org.InstanceURL)
	return org, nil
}

// RefreshToken refreshes the org's access token and persists the new token
// fields. Every failure is returned to the caller.
func (s *OrgService) RefreshToken(ctx context.Context, id string) (model.Org, error) {
	org, err := s.GetOrg(ctx, id)
	if err != nil {
		return model.Org{}, err
	}
	if org.AuthMethod != model.AuthMethodOAuth || org.RefreshToken == "" {
		return model.Org{}, &model.MissingCredentialError{OrgID: id, Credential: "refresh token"}
	}

	cfg, err := s.oauthConfig(ctx, org.LoginType)
	if err != nil {
		return model.Org{}, err
	}

	tok, err := s.oauth.Refresh(ctx, org.RefreshToken, cfg)
	if err != nil {
		return model.Org{}, upstreamError(model.TokenOpRefresh, err)
	}

	expiry := tok.Expiry(s.now()).UnixMilli()
	var updated model.Org
	err = s.vault.Mutate(ctx, func(orgs []model.Org) ([]model.Org, error) {
		i := model.FindOrg(orgs, id)
		if i < 0 {
			return nil, fmt.Errorf("org %s: %w", id, model.ErrOrgNotFound)
		}
		orgs[i].AccessToken = tok.AccessToken
		if tok.RefreshToken != "" {
			orgs[i].RefreshToken = tok.RefreshToken
		}
		if tok.InstanceURL != "" {
			orgs[i].InstanceURL = tok.InstanceURL
		}
		orgs[i].TokenExpiry = expiry
		updated = orgs[i]
		return orgs, nil
	})
	if err != nil {
		return model.Org{}, err
	}

	s.logger.Info("org token refreshed", "org_id", id, "expires_at", updated.TokenExpiresAt())
	return updated, nil
}

// RevokeToken revokes the org's access token and removes the org. The org
// is removed even when the revoke endpoint could not be reached.
func (s *OrgService) RevokeToken(ctx context.Context, id string) error {
	org, err := s.GetOrg(ctx, id)
	if err != nil {
		return err
	}
	if org.AccessToken == "" {
		return &model.MissingCredentialError{OrgID: id, Credential: "access token"}
	}

	if err := s.oauth.Revoke(ctx, org.AccessToken, org.LoginType.LoginURL()); err != nil {
		s.logger.Warn("token revoke failed, removing org anyway", "org_id", id, "error", err)
	}

	err = s.vault.Mutate(ctx, func(orgs []model.Org) ([]model.Org, error) {
		if i := model.FindOrg(orgs, id); i >= 0 {
			return append(orgs[:i], orgs[i+1:]...), nil
		}
		return orgs, nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("org token revoked and org removed", "org_id", id)
	return nil
}

// OpenAndLogin records the org as used, refreshes its token when close to
// expiry, and dispatches the login. A failed refresh is logged and the login
// proceeds with the current token.
func (s *OrgService) OpenAndLogin(ctx context.Context, id string) error {
	org, err := s.GetOrg(ctx, id)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	err = s.vault.Mutate(ctx, func(orgs []model.Org) ([]model.Org, error) {
		if i := model.FindOrg(orgs, id); i >= 0 {
			orgs[i].LastUsed = now
		}
		return orgs, nil
	})
	if err != nil {
		s.logger.Warn("could not record last use", "org_id", id, "error", err)
	}

	if NeedsRefresh(org, now) {
		refreshed, err := s.RefreshToken(ctx, id)
		if err != nil {
			s.logger.Warn("token refresh before login failed, using current token", "org_id", id, "error", err)
		} else {
			org = refreshed
		}
	}

	return s.login.Dispatch(ctx, org)
}

// SaveOAuthConfig stores the connected-app config for loginType. The login
// URL follows from the login type and the redirect URI from configuration.
func (s *OrgService) SaveOAuthConfig(ctx context.Context, loginType model.LoginType, clientID, clientSecret string) (model.OAuthConfig, error) {
	if !loginType.Valid() {
		return model.OAuthConfig{}, &model.ValidationError{Field: "loginType", Message: fmt.Sprintf("unknown login type %q", loginType)}
	}
	if strings.TrimSpace(clientID) == "" {
		return model.OAuthConfig{}, &model.ValidationError{Field: "clientId", Message: "client id is required"}
	}

	cfg := model.OAuthConfig{
		ClientID:     strings.TrimSpace(clientID),
		ClientSecret: clientSecret,
		RedirectURI:  s.redirectURI,
		LoginURL:     loginType.LoginURL(),
	}
	if err := s.configs.Set(ctx, loginType, cfg); err != nil {
		return model.OAuthConfig{}, err
	}

	s.logger.Info("oauth config saved", "login_type", loginType)
	return cfg, nil
}

// OAuthConfigs returns all stored connected-app configs.
func (s *OrgService) OAuthConfigs(ctx context.Context) (map[model.LoginType]model.OAuthConfig, error) {
	return s.configs.ListAll(ctx)
}

func (s *OrgService) oauthConfig(ctx context.Context, loginType model.LoginType) (model.OAuthConfig, error) {
	cfg, err := s.configs.Get(ctx, loginType)
	if err != nil {
		return model.OAuthConfig{}, err
	}
	if cfg == nil {
		return model.OAuthConfig{}, fmt.Errorf("%w for %s", model.ErrOAuthConfigNotFound, loginType)
	}
	return *cfg, nil
}

// authorizationCode extracts the code from the authorization redirect after
// checking state and any error the authorization server reported.
func authorizationCode(redirect, state string) (string, error) {
	u, err := url.Parse(redirect)
	if err != nil {
		return "", fmt.Errorf("parse authorization redirect: %w", err)
	}
	q := u.Query()

	if e := q.Get("error"); e != "" {
		if e == "access_denied" {
			return "", fmt.Errorf("%w: %s", model.ErrOAuthCancelled, q.Get("error_description"))
		}
		return "", &model.AuthorizationError{Code: e, Description: q.Get("error_description")}
	}
	if got := q.Get("state"); got != state {
		return "", model.ErrStateMismatch
	}

	code := q.Get("code")
	if code == "" {
		return "", model.ErrNoAuthorizationCode
	}
	return code, nil
}

// upstreamError passes token endpoint rejections through and classifies
// anything else as a transport failure of op.
func upstreamError(op model.TokenOp, err error) error {
	var (
		tokenErr     *model.TokenError
		transportErr *model.TransportError
	)
	if errors.As(err, &tokenErr) || errors.As(err, &transportErr) {
		return err
	}
	return &model.TransportError{Op: op, Err: err}
}

func validateOrg(org model.Org) error {
	if strings.TrimSpace(org.Name) == "" {
		return &model.ValidationError{Field: "name", Message: "name is required"}
	}
	if strings.TrimSpace(org.InstanceURL) == "" {
		return &model.ValidationError{Field: "instanceUrl", Message: "instance URL is required"}
	}
	if !org.LoginType.Valid() {
		return &model.ValidationError{Field: "loginType", Message: fmt.Sprintf("unknown login type %q", org.LoginType)}
	}
	if !org.AuthMethod.Valid() {
		return &model.ValidationError{Field: "authMethod", Message: fmt.Sprintf("unknown auth method %q", org.AuthMethod)}
	}
	if org.AuthMethod == model.AuthMethodPassword {
		if org.Username == "" {
			return &model.ValidationError{Field: "username", Message: "username is required for password login"}
		}
		if org.Password == "" {
			return &model.ValidationError{Field: "password", Message: "password is required for password login"}
		}
	}
	return nil
}
