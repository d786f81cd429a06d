// Package bridge implements the Browser port by handing tab commands to the
// browser extension. The extension long-polls Next, performs each command
// with its own tab and scripting APIs, and reports back through Resolve.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/orgvault/internal/domain/model"
	"github.com/ericfisherdev/orgvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Browser = (*Bridge)(nil)

// ErrUnknownCommand is returned by Resolve for a command that is not
// awaiting a result, either because it never existed or it timed out.
var ErrUnknownCommand = errors.New("unknown or expired bridge command")

// CommandType names what the extension should do.
type CommandType string

const (
	CommandOpenTab   CommandType = "open_tab"
	CommandWaitReady CommandType = "wait_ready"
	CommandInject    CommandType = "inject"
)

// Command is one unit of work for the extension.
type Command struct {
	ID        string           `json:"id"`
	Type      CommandType      `json:"type"`
	TabID     string           `json:"tabId,omitempty"`
	URL       string           `json:"url,omitempty"`
	Injection *model.Injection `json:"injection,omitempty"`
}

// Result is the extension's report for a Command. A non-empty Error marks
// the command as failed.
type Result struct {
	TabID string `json:"tabId,omitempty"`
	Error string `json:"error,omitempty"`
}

const queueSize = 64

// Bridge queues commands for the extension and waits for their results.
type Bridge struct {
	queue   chan Command
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]chan Result
}

// New creates a Bridge. Commands without a result after timeout fail.
func New(timeout time.Duration, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		queue:   make(chan Command, queueSize),
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]chan Result),
	}
}

// OpenTab asks the extension to open url in a new tab.
func (b *Bridge) OpenTab(ctx context.Context, url string) (string, error) {
	res, err := b.send(ctx, Command{Type: CommandOpenTab, URL: url})
	if err != nil {
		return "", fmt.Errorf("open tab: %w", err)
	}
	if res.Error != "" {
		return "", fmt.Errorf("open tab: %s", res.Error)
	}
	if res.TabID == "" {
		return "", errors.New("open tab: extension returned no tab id")
	}
	return res.TabID, nil
}

// WaitReady asks the extension to report once the tab finished loading.
func (b *Bridge) WaitReady(ctx context.Context, tabID string) error {
	res, err := b.send(ctx, Command{Type: CommandWaitReady, TabID: tabID})
	if err != nil {
		return fmt.Errorf("wait for tab %s: %w", tabID, err)
	}
	if res.Error != "" {
		return fmt.Errorf("wait for tab %s: %s", tabID, res.Error)
	}
	return nil
}

// Inject asks the extension to run inj in the tab.
func (b *Bridge) Inject(ctx context.Context, tabID string, inj model.Injection) error {
	res, err := b.send(ctx, Command{Type: CommandInject, TabID: tabID, Injection: &inj})
	if err != nil {
		return fmt.Errorf("%w: tab %s: %w", model.ErrInjectionFailed, tabID, err)
	}
	if res.Error != "" {
		return fmt.Errorf("%w: tab %s: %s", model.ErrInjectionFailed, tabID, res.Error)
	}
	return nil
}

// Next returns the next live command, blocking until one is queued or ctx
// ends. Commands whose caller already gave up are skipped.
func (b *Bridge) Next(ctx context.Context) (Command, error) {
	for {
		select {
		case cmd := <-b.queue:
			if b.isPending(cmd.ID) {
				return cmd, nil
			}
			b.logger.Debug("dropping expired bridge command", "id", cmd.ID, "type", cmd.Type)
		case <-ctx.Done():
			return Command{}, ctx.Err()
		}
	}
}

// Resolve delivers the extension's result for command id.
func (b *Bridge) Resolve(id string, res Result) error {
	b.mu.Lock()
	ch, ok := b.pending[id]
	delete(b.pending, id)
	b.mu.Unlock()

	if !ok {
		return ErrUnknownCommand
	}
	ch <- res
	return nil
}

func (b *Bridge) send(ctx context.Context, cmd Command) (Result, error) {
	cmd.ID = uuid.NewString()
	done := make(chan Result, 1)

	b.mu.Lock()
	b.pending[cmd.ID] = done
	b.mu.Unlock()

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	select {
	case b.queue <- cmd:
	case <-ctx.Done():
		b.forget(cmd.ID)
		return Result{}, fmt.Errorf("enqueue %s: %w", cmd.Type, ctx.Err())
	}

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		b.forget(cmd.ID)
		return Result{}, fmt.Errorf("await %s: %w", cmd.Type, ctx.Err())
	}
}

func (b *Bridge) isPending(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[id]
	return ok
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, id)
}
