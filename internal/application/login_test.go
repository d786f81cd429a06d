package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
)

func newTestDispatcher(b *mockBrowser, attempts int) *LoginDispatcher {
	return NewLoginDispatcher(b, model.DefaultSelectors(), 0, RetryPolicy{MaxAttempts: attempts}, nil)
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 2, p.MaxAttempts)
	assert.Equal(t, time.Second, p.Delay)
}

func TestDispatch_RetriesExactlyMaxAttempts(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		failures int
		want     int
	}{
		{"succeeds first time", 2, 0, 1},
		{"succeeds on retry", 2, 1, 2},
		{"gives up after two", 2, 10, 2},
		{"gives up after five", 5, 10, 5},
		{"zero attempts still tries once", 0, 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &mockBrowser{injectFailures: tt.failures}
			d := newTestDispatcher(b, tt.attempts)

			err := d.Dispatch(context.Background(), passwordOrg("p"))

			require.NoError(t, err, "injection failures are not surfaced")
			assert.Equal(t, tt.want, b.injectCalls())
		})
	}
}

func TestDispatch_OpenTabFailure(t *testing.T) {
	b := &mockBrowser{openErr: errors.New("no browser attached")}
	d := newTestDispatcher(b, 2)

	err := d.Dispatch(context.Background(), passwordOrg("p"))

	require.Error(t, err)
	assert.Zero(t, b.injectCalls())
}

func TestDispatch_NotReadyStillInjects(t *testing.T) {
	b := &mockBrowser{readyErr: context.DeadlineExceeded}
	d := newTestDispatcher(b, 2)

	require.NoError(t, d.Dispatch(context.Background(), oauthOrg("a", testNow)))
	assert.Equal(t, 1, b.injectCalls())
}

func TestDispatch_NoCredentialsOpensTabOnly(t *testing.T) {
	tests := []struct {
		name string
		org  model.Org
	}{
		{"oauth without token", func() model.Org { o := oauthOrg("a", testNow); o.AccessToken = ""; return o }()},
		{"password without username", func() model.Org { o := passwordOrg("p"); o.Username = ""; return o }()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &mockBrowser{}
			d := newTestDispatcher(b, 2)

			require.NoError(t, d.Dispatch(context.Background(), tt.org))
			assert.Len(t, b.opened, 1)
			assert.Zero(t, b.injectCalls())
		})
	}
}

func TestDispatch_PasswordWithoutToken(t *testing.T) {
	b := &mockBrowser{}
	d := newTestDispatcher(b, 1)
	org := passwordOrg("p")
	org.LoginWithToken = false

	require.NoError(t, d.Dispatch(context.Background(), org))

	require.Len(t, b.injections, 1)
	assert.Equal(t, "p", b.injections[0].Password)
}

func TestDispatch_CustomSelectors(t *testing.T) {
	b := &mockBrowser{}
	sel := model.SelectorSet{Username: []string{"#u"}, Password: []string{"#p"}, Submit: []string{"#go"}}
	d := NewLoginDispatcher(b, sel, 0, RetryPolicy{MaxAttempts: 1}, nil)

	require.NoError(t, d.Dispatch(context.Background(), passwordOrg("p")))

	require.Len(t, b.injections, 1)
	assert.Equal(t, sel, *b.injections[0].Selectors)
}

func TestDispatch_CancelledDuringSettle(t *testing.T) {
	b := &mockBrowser{}
	d := NewLoginDispatcher(b, model.DefaultSelectors(), time.Hour, RetryPolicy{MaxAttempts: 2}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Dispatch(ctx, passwordOrg("p"))

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, b.injectCalls())
}
