package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
	"github.com/ericfisherdev/orgvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.OAuthConfigStore = (*OAuthConfigRepo)(nil)

// OAuthConfigRepo is the SQLite implementation of the OAuthConfigStore port.
// The client secret is encrypted with AES-256-GCM when a key is configured;
// the other columns are not secret.
type OAuthConfigRepo struct {
	db  *DB
	box *secretBox
}

// NewOAuthConfigRepo creates a new OAuthConfigRepo backed by the given DB.
// key must be 32 bytes, or empty to store client secrets as plain text.
func NewOAuthConfigRepo(db *DB, key []byte) (*OAuthConfigRepo, error) {
	box, err := newSecretBox(key)
	if err != nil {
		return nil, fmt.Errorf("oauth config repo: %w", err)
	}
	return &OAuthConfigRepo{db: db, box: box}, nil
}

// Get returns the config for loginType, or (nil, nil) if none is stored.
func (r *OAuthConfigRepo) Get(ctx context.Context, loginType model.LoginType) (*model.OAuthConfig, error) {
	const query = `SELECT client_id, client_secret, redirect_uri, login_url FROM oauth_configs WHERE login_type = ?`

	var cfg model.OAuthConfig
	err := r.db.Reader.QueryRowContext(ctx, query, string(loginType)).
		Scan(&cfg.ClientID, &cfg.ClientSecret, &cfg.RedirectURI, &cfg.LoginURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get oauth config %q: %w", loginType, err)
	}
	if cfg.ClientSecret, err = r.box.open(cfg.ClientSecret); err != nil {
		return nil, fmt.Errorf("decrypt client secret for %q: %w", loginType, err)
	}
	return &cfg, nil
}

// Set stores or replaces the config for loginType.
func (r *OAuthConfigRepo) Set(ctx context.Context, loginType model.LoginType, cfg model.OAuthConfig) error {
	const query = `INSERT INTO oauth_configs (login_type, client_id, client_secret, redirect_uri, login_url, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(login_type) DO UPDATE SET
			client_id = excluded.client_id,
			client_secret = excluded.client_secret,
			redirect_uri = excluded.redirect_uri,
			login_url = excluded.login_url,
			updated_at = excluded.updated_at`

	secret, err := r.box.seal(cfg.ClientSecret)
	if err != nil {
		return fmt.Errorf("encrypt client secret for %q: %w", loginType, err)
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		string(loginType), cfg.ClientID, secret, cfg.RedirectURI, cfg.LoginURL)
	if err != nil {
		return fmt.Errorf("set oauth config %q: %w", loginType, err)
	}
	return nil
}

// ListAll returns every stored config keyed by login type.
func (r *OAuthConfigRepo) ListAll(ctx context.Context) (map[model.LoginType]model.OAuthConfig, error) {
	const query = `SELECT login_type, client_id, client_secret, redirect_uri, login_url FROM oauth_configs ORDER BY login_type`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list oauth configs: %w", err)
	}
	defer rows.Close()

	configs := make(map[model.LoginType]model.OAuthConfig)
	for rows.Next() {
		var loginType string
		var cfg model.OAuthConfig
		if err := rows.Scan(&loginType, &cfg.ClientID, &cfg.ClientSecret, &cfg.RedirectURI, &cfg.LoginURL); err != nil {
			return nil, fmt.Errorf("scan oauth config: %w", err)
		}
		var err error
		if cfg.ClientSecret, err = r.box.open(cfg.ClientSecret); err != nil {
			return nil, fmt.Errorf("decrypt client secret for %q: %w", loginType, err)
		}
		configs[model.LoginType(loginType)] = cfg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate oauth configs: %w", err)
	}

	return configs, nil
}

// Clear removes all configs.
func (r *OAuthConfigRepo) Clear(ctx context.Context) error {
	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM oauth_configs`); err != nil {
		return fmt.Errorf("clear oauth configs: %w", err)
	}
	return nil
}
