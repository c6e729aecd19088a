// Package featureflags loads remote feature toggles with safe local defaults.
//
// Flags are fetched once at startup from the daemon. When the fetch fails the
// manager keeps its defaults so the shell never blocks on flag availability.
package featureflags

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/envdesk/envdesk/errors"
)

// SubjectFlags is the daemon subject serving feature flag state
const SubjectFlags = "envdesk.daemon.flags"

// Known flag names
const (
	FlagWhatsNew      = "whats_new"
	FlagNotifications = "notifications"
	FlagCloudAccounts = "cloud_accounts"
	FlagUpdateDialog  = "update_dialog"
)

// Requester is the slice of the NATS connection the manager needs
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// Defaults returns the flag values used until a remote load succeeds
func Defaults() map[string]bool {
	return map[string]bool{
		FlagWhatsNew:      true,
		FlagNotifications: true,
		FlagCloudAccounts: true,
		FlagUpdateDialog:  true,
	}
}

// Manager caches feature flag state behind a read lock
type Manager struct {
	conn    Requester
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	flags  map[string]bool
	loaded bool
}

// NewManager creates a flag manager seeded with Defaults
func NewManager(conn Requester, timeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{
		conn:    conn,
		timeout: timeout,
		logger:  logger.With("subsystem", "featureflags"),
		flags:   Defaults(),
	}
}

// Load fetches remote flag state, merging it over the defaults.
// A failed load keeps the current values and returns a transient error; the
// caller is expected to proceed either way.
func (m *Manager) Load(ctx context.Context) error {
	if m.conn == nil {
		return errors.WrapTransient(errors.ErrNoConnection, "Manager", "Load", "flag fetch")
	}

	reqCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	msg, err := m.conn.RequestWithContext(reqCtx, SubjectFlags, nil)
	if err != nil {
		m.logger.Warn("feature flag fetch failed, keeping defaults", "error", err)
		return errors.WrapTransient(err, "Manager", "Load", "flag fetch")
	}

	var remote map[string]bool
	if err := json.Unmarshal(msg.Data, &remote); err != nil {
		m.logger.Warn("feature flag payload malformed, keeping defaults", "error", err)
		return errors.WrapInvalid(err, "Manager", "Load", "flag decode")
	}

	m.mu.Lock()
	for name, value := range remote {
		m.flags[name] = value
	}
	m.loaded = true
	m.mu.Unlock()

	m.logger.Debug("feature flags loaded", "count", len(remote))
	return nil
}

// Enabled reports whether a flag is on. Unknown flags are off.
func (m *Manager) Enabled(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags[name]
}

// Loaded reports whether a remote load has succeeded
func (m *Manager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// All returns a copy of the current flag state
func (m *Manager) All() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.flags))
	for name, value := range m.flags {
		out[name] = value
	}
	return out
}
