// Package salesforce implements the OAuthClient port against the Salesforce
// OAuth 2.0 endpoints using golang.org/x/oauth2.
package salesforce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
	"github.com/ericfisherdev/orgvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.OAuthClient = (*Client)(nil)

// Scopes requested on every authorization: API access, web session
// bridging, and offline refresh.
var Scopes = []string{"api", "web", "refresh_token"}

const (
	authorizePath = "/services/oauth2/authorize"
	tokenPath     = "/services/oauth2/token"
	revokePath    = "/services/oauth2/revoke"
)

// Client talks to a Salesforce login host's OAuth endpoints.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. A nil httpClient gets a 30 second timeout
// client; a nil logger uses slog.Default().
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{httpClient: httpClient, logger: logger}
}

// AuthorizationURL builds the consent URL. prompt=login forces the user to
// re-authenticate so a different org can be picked each time.
func (c *Client) AuthorizationURL(cfg model.OAuthConfig, state string) string {
	return oauthConfig(cfg).AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "login"))
}

// ExchangeCode trades an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string, cfg model.OAuthConfig) (model.TokenResponse, error) {
	tok, err := oauthConfig(cfg).Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return model.TokenResponse{}, tokenError(model.TokenOpExchange, err)
	}
	return toTokenResponse(tok), nil
}

// Refresh runs a refresh-token grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string, cfg model.OAuthConfig) (model.TokenResponse, error) {
	// An empty access token is never valid, so the source always hits the
	// token endpoint.
	src := oauthConfig(cfg).TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return model.TokenResponse{}, tokenError(model.TokenOpRefresh, err)
	}
	return toTokenResponse(tok), nil
}

// Revoke posts token to the revoke endpoint. The response status is logged
// but not treated as an error.
func (c *Client) Revoke(ctx context.Context, token, loginURL string) error {
	form := url.Values{"token": {token}}
	endpoint := strings.TrimRight(loginURL, "/") + revokePath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("token revoke returned non-success status",
			"login_url", loginURL,
			"status", resp.StatusCode,
		)
	}
	return nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func oauthConfig(cfg model.OAuthConfig) *oauth2.Config {
	base := strings.TrimRight(cfg.LoginURL, "/")
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + authorizePath,
			TokenURL:  base + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// tokenError maps a token endpoint rejection to *model.TokenError and any
// other failure to *model.TransportError.
func tokenError(op model.TokenOp, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return &model.TransportError{Op: op, Err: err}
	}
	return &model.TokenError{
		Op:         op,
		Status:     re.Response.StatusCode,
		StatusText: http.StatusText(re.Response.StatusCode),
		Code:       re.ErrorCode,
	}
}

func toTokenResponse(tok *oauth2.Token) model.TokenResponse {
	return model.TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		InstanceURL:  extraString(tok, "instance_url"),
		ID:           extraString(tok, "id"),
		IssuedAt:     extraString(tok, "issued_at"),
		Signature:    extraString(tok, "signature"),
		ExpiresIn:    expiresIn(tok),
	}
}

func extraString(tok *oauth2.Token, key string) string {
	if s, ok := tok.Extra(key).(string); ok {
		return s
	}
	return ""
}

// expiresIn reads the raw expires_in field. Salesforce usually omits it.
func expiresIn(tok *oauth2.Token) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return time.Duration(v) * time.Second
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return 0
}
