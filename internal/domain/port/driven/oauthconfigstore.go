package driven

import (
	"context"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
)

// OAuthConfigStore defines the driven port for the unencrypted per-login-type
// connected-app configuration.
type OAuthConfigStore interface {
	// Get returns the config for loginType, or (nil, nil) when none is stored.
	Get(ctx context.Context, loginType model.LoginType) (*model.OAuthConfig, error)

	// Set stores or replaces the config for loginType.
	Set(ctx context.Context, loginType model.LoginType, cfg model.OAuthConfig) error

	// ListAll returns every stored config keyed by login type.
	ListAll(ctx context.Context) (map[model.LoginType]model.OAuthConfig, error)

	// Clear removes all configs.
	Clear(ctx context.Context) error
}
