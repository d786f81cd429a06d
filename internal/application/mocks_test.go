package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
)

// --- Mock implementations shared by the application tests ---

type mockVaultStore struct {
	mu  sync.Mutex
	rec model.VaultRecord
	err error

	// conflicts makes the next N saves lose a race against another writer.
	conflicts int

	// When gate is set, Save signals entered and then blocks until gate is
	// closed.
	gate    chan struct{}
	entered chan struct{}

	loads  int
	saves  int
	clears int
}

func (m *mockVaultStore) Load(_ context.Context) (model.VaultRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.err != nil {
		return model.VaultRecord{}, m.err
	}
	return m.rec, nil
}

func (m *mockVaultStore) Save(_ context.Context, rec model.VaultRecord) (int64, error) {
	if m.gate != nil {
		m.entered <- struct{}{}
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if m.conflicts > 0 {
		m.conflicts--
		m.rec.Version++
	}
	if rec.Version != m.rec.Version {
		return 0, fmt.Errorf("save vault: %w", model.ErrVersionConflict)
	}
	m.saves++
	rec.Version++
	m.rec = rec
	return rec.Version, nil
}

func (m *mockVaultStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.rec = model.VaultRecord{Version: m.rec.Version + 1}
	return nil
}

func (m *mockVaultStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// fakeCodec stores the org list as JSON tagged with the password so tests
// can tell which password sealed a blob.
type fakeCodec struct {
	encryptErr error
}

func (c *fakeCodec) Encrypt(orgs []model.Org, password string) (string, error) {
	if c.encryptErr != nil {
		return "", c.encryptErr
	}
	if orgs == nil {
		orgs = []model.Org{}
	}
	data, err := json.Marshal(orgs)
	if err != nil {
		return "", err
	}
	return password + "|" + string(data), nil
}

func (c *fakeCodec) Open(ciphertext, password string) ([]model.Org, error) {
	prefix, body, ok := strings.Cut(ciphertext, "|")
	if !ok {
		return nil, model.ErrVaultCorrupt
	}
	if prefix != password {
		return nil, model.ErrWrongPassword
	}
	var orgs []model.Org
	if err := json.Unmarshal([]byte(body), &orgs); err != nil {
		return nil, model.ErrVaultCorrupt
	}
	return orgs, nil
}

func (c *fakeCodec) HashPassword(password string) (string, error) {
	return "h:" + password, nil
}

func (c *fakeCodec) VerifyPassword(digest, password string) bool {
	return digest == "h:"+password
}

type mockSessionStore struct {
	mu   sync.Mutex
	sess *model.Session
}

func (m *mockSessionStore) Get() (model.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return model.Session{}, false
	}
	return *m.sess, true
}

func (m *mockSessionStore) Set(s model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = &s
}

func (m *mockSessionStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sess = nil
}

type mockOAuthConfigStore struct {
	configs map[model.LoginType]model.OAuthConfig
	clears  int
}

func (m *mockOAuthConfigStore) Get(_ context.Context, lt model.LoginType) (*model.OAuthConfig, error) {
	cfg, ok := m.configs[lt]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (m *mockOAuthConfigStore) Set(_ context.Context, lt model.LoginType, cfg model.OAuthConfig) error {
	if m.configs == nil {
		m.configs = make(map[model.LoginType]model.OAuthConfig)
	}
	m.configs[lt] = cfg
	return nil
}

func (m *mockOAuthConfigStore) ListAll(_ context.Context) (map[model.LoginType]model.OAuthConfig, error) {
	out := make(map[model.LoginType]model.OAuthConfig, len(m.configs))
	for k, v := range m.configs {
		out[k] = v
	}
	return out, nil
}

func (m *mockOAuthConfigStore) Clear(_ context.Context) error {
	m.clears++
	m.configs = nil
	return nil
}

type mockOAuthClient struct {
	exchangeResp model.TokenResponse
	exchangeErr  error
	refreshResp  model.TokenResponse
	refreshErr   error
	revokeErr    error

	exchangedCodes []string
	refreshedWith  []string
	revoked        []string
	revokedAt      []string
}

func (m *mockOAuthClient) AuthorizationURL(cfg model.OAuthConfig, state string) string {
	return cfg.LoginURL + "/services/oauth2/authorize?client_id=" + url.QueryEscape(cfg.ClientID) + "&state=" + url.QueryEscape(state)
}

func (m *mockOAuthClient) ExchangeCode(_ context.Context, code string, _ model.OAuthConfig) (model.TokenResponse, error) {
	m.exchangedCodes = append(m.exchangedCodes, code)
	return m.exchangeResp, m.exchangeErr
}

func (m *mockOAuthClient) Refresh(_ context.Context, refreshToken string, _ model.OAuthConfig) (model.TokenResponse, error) {
	m.refreshedWith = append(m.refreshedWith, refreshToken)
	return m.refreshResp, m.refreshErr
}

func (m *mockOAuthClient) Revoke(_ context.Context, token, loginURL string) error {
	m.revoked = append(m.revoked, token)
	m.revokedAt = append(m.revokedAt, loginURL)
	return m.revokeErr
}

// mockAuthFlow answers the authorization URL with a redirect. By default it
// approves, echoing the state and returning code "the-code".
type mockAuthFlow struct {
	query func(state string) url.Values
	err   error

	authURLs []string
}

func (m *mockAuthFlow) Authorize(_ context.Context, authURL, redirectURI string) (string, error) {
	m.authURLs = append(m.authURLs, authURL)
	if m.err != nil {
		return "", m.err
	}
	u, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	state := u.Query().Get("state")

	q := url.Values{"code": {"the-code"}, "state": {state}}
	if m.query != nil {
		q = m.query(state)
	}
	return redirectURI + "?" + q.Encode(), nil
}

type mockBrowser struct {
	mu       sync.Mutex
	openErr  error
	readyErr error

	// injectFailures makes the first N Inject calls fail.
	injectFailures int

	opened     []string
	injections []model.Injection
}

func (m *mockBrowser) OpenTab(_ context.Context, u string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return "", m.openErr
	}
	m.opened = append(m.opened, u)
	return fmt.Sprintf("tab-%d", len(m.opened)), nil
}

func (m *mockBrowser) WaitReady(_ context.Context, _ string) error {
	return m.readyErr
}

func (m *mockBrowser) Inject(_ context.Context, _ string, inj model.Injection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injections = append(m.injections, inj)
	if len(m.injections) <= m.injectFailures {
		return errors.New("content script not ready")
	}
	return nil
}

func (m *mockBrowser) injectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.injections)
}
