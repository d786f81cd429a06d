package salesforce_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/orgvault/internal/adapter/driven/salesforce"
	"github.com/ericfisherdev/orgvault/internal/domain/model"
)

// newTestServer starts an httptest server and returns a config pointing at it.
func newTestServer(t *testing.T, handler http.Handler) (*salesforce.Client, model.OAuthConfig, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := model.OAuthConfig{
		ClientID:     "abc",
		ClientSecret: "shh",
		RedirectURI:  "https://ext/redirect",
		LoginURL:     server.URL,
	}
	return salesforce.NewClient(server.Client(), slog.Default()), cfg, server
}

func writeTokenJSON(t *testing.T, w http.ResponseWriter, status int, body map[string]any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestAuthorizationURL(t *testing.T) {
	client := salesforce.NewClient(nil, nil)
	cfg := model.OAuthConfig{
		ClientID:    "abc",
		RedirectURI: "https://ext/redirect",
		LoginURL:    "https://login.salesforce.com",
	}

	raw := client.AuthorizationURL(cfg, "st4te")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "login.salesforce.com", u.Host)
	assert.Equal(t, "/services/oauth2/authorize", u.Path)

	q := u.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "abc", q.Get("client_id"))
	assert.Equal(t, "https://ext/redirect", q.Get("redirect_uri"))
	assert.Equal(t, "api web refresh_token", q.Get("scope"))
	assert.Equal(t, "login", q.Get("prompt"))
	assert.Equal(t, "st4te", q.Get("state"))
}

func TestExchangeCode_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "abc", r.PostForm.Get("client_id"))
		assert.Equal(t, "shh", r.PostForm.Get("client_secret"))
		assert.Equal(t, "https://ext/redirect", r.PostForm.Get("redirect_uri"))

		writeTokenJSON(t, w, http.StatusOK, map[string]any{
			"access_token":  "tok1",
			"refresh_token": "ref1",
			"instance_url":  "https://org.my.salesforce.com",
			"id":            "https://login.salesforce.com/id/00D/005",
			"issued_at":     "1767323045000",
			"signature":     "sig",
			"token_type":    "Bearer",
		})
	})
	client, cfg, _ := newTestServer(t, mux)

	resp, err := client.ExchangeCode(context.Background(), "the-code", cfg)
	require.NoError(t, err)
	assert.Equal(t, "tok1", resp.AccessToken)
	assert.Equal(t, "ref1", resp.RefreshToken)
	assert.Equal(t, "https://org.my.salesforce.com", resp.InstanceURL)
	assert.Equal(t, "https://login.salesforce.com/id/00D/005", resp.ID)
	assert.Equal(t, "1767323045000", resp.IssuedAt)
	assert.Equal(t, "sig", resp.Signature)
	assert.Zero(t, resp.ExpiresIn, "salesforce omits expires_in")
}

func TestExchangeCode_Failure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /services/oauth2/token", func(w http.ResponseWriter, _ *http.Request) {
		writeTokenJSON(t, w, http.StatusBadRequest, map[string]any{
			"error":             "invalid_grant",
			"error_description": "authentication failure",
		})
	})
	client, cfg, _ := newTestServer(t, mux)

	_, err := client.ExchangeCode(context.Background(), "bad", cfg)
	require.Error(t, err)
	assert.True(t, model.IsTokenExchangeError(err))

	var te *model.TokenError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadRequest, te.Status)
	assert.Equal(t, "Bad Request", te.StatusText)
	assert.Equal(t, "invalid_grant", te.Code)
}

func TestRefresh_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /services/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "ref1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "abc", r.PostForm.Get("client_id"))

		writeTokenJSON(t, w, http.StatusOK, map[string]any{
			"access_token": "tok2",
			"instance_url": "https://org.my.salesforce.com",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	client, cfg, _ := newTestServer(t, mux)

	resp, err := client.Refresh(context.Background(), "ref1", cfg)
	require.NoError(t, err)
	assert.Equal(t, "tok2", resp.AccessToken)
	assert.Contains(t, []string{"", "ref1"}, resp.RefreshToken, "refresh token is not rotated")
	assert.Equal(t, time.Hour, resp.ExpiresIn)
}

func TestRefresh_Failure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /services/oauth2/token", func(w http.ResponseWriter, _ *http.Request) {
		writeTokenJSON(t, w, http.StatusUnauthorized, map[string]any{"error": "invalid_client"})
	})
	client, cfg, _ := newTestServer(t, mux)

	_, err := client.Refresh(context.Background(), "ref1", cfg)
	require.Error(t, err)
	assert.True(t, model.IsTokenRefreshError(err))
	assert.False(t, model.IsTokenExchangeError(err))
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestRevoke_PostsToken(t *testing.T) {
	var gotToken string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /services/oauth2/revoke", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		gotToken = r.PostForm.Get("token")
		w.WriteHeader(http.StatusOK)
	})
	client, cfg, _ := newTestServer(t, mux)

	err := client.Revoke(context.Background(), "tok1", cfg.LoginURL)
	require.NoError(t, err)
	assert.Equal(t, "tok1", gotToken)
}

func TestRevoke_NonSuccessStatusIsNotAnError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /services/oauth2/revoke", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	client, cfg, _ := newTestServer(t, mux)

	assert.NoError(t, client.Revoke(context.Background(), "expired", cfg.LoginURL))
}

func TestRevoke_TransportFailure(t *testing.T) {
	client, cfg, server := newTestServer(t, http.NewServeMux())
	server.Close()

	assert.Error(t, client.Revoke(context.Background(), "tok1", cfg.LoginURL))
}

func TestExchangeCode_TransportFailure(t *testing.T) {
	client, cfg, server := newTestServer(t, http.NewServeMux())
	server.Close()

	_, err := client.ExchangeCode(context.Background(), "code", cfg)

	var transportErr *model.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, model.TokenOpExchange, transportErr.Op)
	assert.False(t, model.IsTokenExchangeError(err))
}
