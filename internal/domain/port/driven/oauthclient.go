package driven

import (
	"context"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
)

// OAuthClient defines the driven port for the Salesforce OAuth endpoints.
type OAuthClient interface {
	// AuthorizationURL builds the interactive consent URL for cfg. state is
	// echoed back on the redirect.
	AuthorizationURL(cfg model.OAuthConfig, state string) string

	// ExchangeCode trades an authorization code for tokens. Non-success
	// responses return a *model.TokenError with Op exchange.
	ExchangeCode(ctx context.Context, code string, cfg model.OAuthConfig) (model.TokenResponse, error)

	// Refresh obtains a new access token. Non-success responses return a
	// *model.TokenError with Op refresh. When the endpoint does not rotate
	// the refresh token, RefreshToken in the result is either empty or the
	// token that was passed in; callers keep their stored one in that case.
	Refresh(ctx context.Context, refreshToken string, cfg model.OAuthConfig) (model.TokenResponse, error)

	// Revoke invalidates token at loginURL. Only transport failures are
	// returned; the endpoint's status code is not checked.
	Revoke(ctx context.Context, token, loginURL string) error
}
