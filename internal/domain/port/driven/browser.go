package driven

import (
	"context"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
)

// Browser is the host that owns browser tabs.
type Browser interface {
	// OpenTab opens url in a new tab and returns a host-specific tab id.
	OpenTab(ctx context.Context, url string) (string, error)

	// WaitReady blocks until the tab's page can be manipulated or ctx ends.
	WaitReady(ctx context.Context, tabID string) error

	// Inject runs inj inside the tab.
	Inject(ctx context.Context, tabID string, inj model.Injection) error
}
