package sqlite

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
)

func TestOAuthConfigRepo_SetAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := newTestOAuthConfigRepo(t, db, nil)
	ctx := context.Background()

	cfg := model.OAuthConfig{
		ClientID:     "abc",
		ClientSecret: "shh",
		RedirectURI:  "https://ext/redirect",
		LoginURL:     model.ProductionLoginURL,
	}
	require.NoError(t, repo.Set(ctx, model.LoginTypeProduction, cfg))

	got, err := repo.Get(ctx, model.LoginTypeProduction)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cfg, *got)
}

func TestOAuthConfigRepo_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := newTestOAuthConfigRepo(t, db, nil)

	got, err := repo.Get(context.Background(), model.LoginTypeSandbox)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOAuthConfigRepo_UpsertOverwrites(t *testing.T) {
	db := setupTestDB(t)
	repo := newTestOAuthConfigRepo(t, db, nil)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, model.LoginTypeSandbox, model.OAuthConfig{ClientID: "old", RedirectURI: "r", LoginURL: model.SandboxLoginURL}))
	require.NoError(t, repo.Set(ctx, model.LoginTypeSandbox, model.OAuthConfig{ClientID: "new", RedirectURI: "r", LoginURL: model.SandboxLoginURL}))

	got, err := repo.Get(ctx, model.LoginTypeSandbox)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.ClientID)
	assert.Empty(t, got.ClientSecret)
}

func TestOAuthConfigRepo_ListAllAndClear(t *testing.T) {
	db := setupTestDB(t)
	repo := newTestOAuthConfigRepo(t, db, nil)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, model.LoginTypeProduction, model.OAuthConfig{ClientID: "p", RedirectURI: "r", LoginURL: model.ProductionLoginURL}))
	require.NoError(t, repo.Set(ctx, model.LoginTypeSandbox, model.OAuthConfig{ClientID: "s", RedirectURI: "r", LoginURL: model.SandboxLoginURL}))

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "p", all[model.LoginTypeProduction].ClientID)
	assert.Equal(t, "s", all[model.LoginTypeSandbox].ClientID)

	require.NoError(t, repo.Clear(ctx))

	all, err = repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestOAuthConfigRepo_RejectsUnknownLoginType(t *testing.T) {
	db := setupTestDB(t)
	repo := newTestOAuthConfigRepo(t, db, nil)

	err := repo.Set(context.Background(), model.LoginType("dev"), model.OAuthConfig{ClientID: "x", RedirectURI: "r", LoginURL: "u"})
	assert.Error(t, err, "CHECK constraint limits login types")
}

func newTestOAuthConfigRepo(t *testing.T, db *DB, key []byte) *OAuthConfigRepo {
	t.Helper()
	repo, err := NewOAuthConfigRepo(db, key)
	require.NoError(t, err)
	return repo
}

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestOAuthConfigRepo_EncryptsClientSecret(t *testing.T) {
	db := setupTestDB(t)
	repo := newTestOAuthConfigRepo(t, db, testKey())
	ctx := context.Background()

	cfg := model.OAuthConfig{ClientID: "abc", ClientSecret: "shh", RedirectURI: "r", LoginURL: model.ProductionLoginURL}
	require.NoError(t, repo.Set(ctx, model.LoginTypeProduction, cfg))

	var stored string
	err := db.Reader.QueryRowContext(ctx, `SELECT client_secret FROM oauth_configs WHERE login_type = 'prod'`).Scan(&stored)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored, sealedPrefix))
	assert.NotContains(t, stored, "shh")

	got, err := repo.Get(ctx, model.LoginTypeProduction)
	require.NoError(t, err)
	assert.Equal(t, cfg, *got)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shh", all[model.LoginTypeProduction].ClientSecret)
}

func TestOAuthConfigRepo_SealedSecretNeedsKey(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	keyed := newTestOAuthConfigRepo(t, db, testKey())
	require.NoError(t, keyed.Set(ctx, model.LoginTypeSandbox, model.OAuthConfig{ClientID: "abc", ClientSecret: "shh", RedirectURI: "r", LoginURL: model.SandboxLoginURL}))

	unkeyed := newTestOAuthConfigRepo(t, db, nil)
	_, err := unkeyed.Get(ctx, model.LoginTypeSandbox)
	require.ErrorIs(t, err, ErrSecretKeyRequired)

	otherKey := newTestOAuthConfigRepo(t, db, bytes.Repeat([]byte{0x07}, 32))
	_, err = otherKey.Get(ctx, model.LoginTypeSandbox)
	assert.Error(t, err)
}

func TestOAuthConfigRepo_PlainSecretReadableWithKey(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	plain := newTestOAuthConfigRepo(t, db, nil)
	require.NoError(t, plain.Set(ctx, model.LoginTypeProduction, model.OAuthConfig{ClientID: "abc", ClientSecret: "shh", RedirectURI: "r", LoginURL: model.ProductionLoginURL}))

	keyed := newTestOAuthConfigRepo(t, db, testKey())
	got, err := keyed.Get(ctx, model.LoginTypeProduction)
	require.NoError(t, err)
	assert.Equal(t, "shh", got.ClientSecret)
}

func TestNewOAuthConfigRepo_RejectsShortKey(t *testing.T) {
	db := setupTestDB(t)

	_, err := NewOAuthConfigRepo(db, []byte("too short"))
	assert.Error(t, err)
}
