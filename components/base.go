// Package components holds the concrete window components the shell
// registers at construction: accounts, applications, environments,
// notifications and what's-new. Each one consumes its slice of the fetched
// backend payload and keeps its previous state when a refresh fails.
package components

import (
	"log/slog"
	"sync"
	"time"

	"github.com/envdesk/envdesk/component"
	"github.com/envdesk/envdesk/styles"
)

// Registration aliases, in the order the shell registers them
const (
	AliasNotifications = "notifications"
	AliasWhatsNew      = "whats_new"
	AliasAccounts      = "accounts"
	AliasApplications  = "applications"
	AliasEnvironments  = "environments"
)

// base carries the state every component shares: its dependencies, the
// current palette and a pausable refresh timer.
type base struct {
	alias  string
	logger *slog.Logger

	mu      sync.Mutex
	palette styles.Palette
	stopCh  chan struct{}

	interval time.Duration
	onTick   func()
}

func newBase(alias string, deps component.Deps, interval time.Duration) base {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		alias:    alias,
		logger:   logger.With("component", alias),
		palette:  styles.Default().Palette(),
		interval: interval,
	}
}

// UpdateStyleSheet stores the active palette for the component's rendering
func (b *base) UpdateStyleSheet(palette styles.Palette) {
	b.mu.Lock()
	b.palette = palette
	b.mu.Unlock()
}

// Palette returns the palette currently applied to the component
func (b *base) Palette() styles.Palette {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.palette
}

// StartTimers begins the periodic refresh loop. Starting an already running
// component is a no-op.
func (b *base) StartTimers() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopCh != nil || b.interval <= 0 || b.onTick == nil {
		return
	}

	stopCh := make(chan struct{})
	b.stopCh = stopCh

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.onTick()
			case <-stopCh:
				return
			}
		}
	}()
}

// StopTimers pauses the periodic refresh loop. Stopping a stopped component
// is a no-op.
func (b *base) StopTimers() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopCh == nil {
		return
	}
	close(b.stopCh)
	b.stopCh = nil
}

// Teardown stops timers; components with extra resources override this
func (b *base) Teardown() error {
	b.StopTimers()
	return nil
}

// stringSlice extracts a list of strings from a payload value that may
// arrive as []string or as []any of strings
func stringSlice(v any) []string {
	switch items := v.(type) {
	case []string:
		return items
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// mapSlice extracts a list of objects from a payload value
func mapSlice(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
