// Package component provides the window component registry.
//
// A component is a self-contained unit of window behavior (accounts,
// applications, environments, notifications, what's-new) that the shell
// creates once at construction and reconfigures on every data refresh. The
// registry keys components by alias, preserves registration order for
// deterministic broadcasts, and never installs implicit defaults: every
// component is explicitly registered before any broadcast can reach it.
package component

import (
	"log/slog"

	"github.com/envdesk/envdesk/config"
	"github.com/envdesk/envdesk/metric"
	"github.com/envdesk/envdesk/styles"
)

// Data is the payload broadcast to components on every data refresh.
// Err carries the backend's result-value error contract: an empty Err means
// the fetch succeeded and Output is usable.
type Data struct {
	WorkerID string         // Id of the worker that produced the payload
	Output   map[string]any // Fetched backend data
	Err      string         // Backend error text, empty on success
	Initial  bool           // True only for the first setup after construction
}

// Succeeded reports whether the fetch behind this payload completed cleanly
func (d Data) Succeeded() bool {
	return d.Err == ""
}

// Component is the capability set every window component implements
type Component interface {
	// Setup configures the component from freshly fetched backend data.
	// Called once with Initial=true after construction and again on every
	// refresh with Initial=false.
	Setup(data Data) error

	// UpdateStyleSheet applies the current theme palette
	UpdateStyleSheet(palette styles.Palette)

	// StartTimers resumes the component's periodic background refreshes
	StartTimers()

	// StopTimers pauses the component's periodic background refreshes
	StopTimers()

	// Teardown releases component resources at window destruction
	Teardown() error
}

// Deps carries the shell-owned collaborators handed to component factories.
// This replaces hidden globals: everything a component needs arrives here.
type Deps struct {
	Config  *config.Store
	Logger  *slog.Logger
	Metrics *metric.MetricsRegistry
}

// Factory creates a component bound to the owning shell.
// The alias is the registry key and must be unique and non-empty.
type Factory interface {
	Alias() string
	New(deps Deps) (Component, error)
}

// funcFactory adapts a plain constructor function to the Factory interface
type funcFactory struct {
	alias string
	fn    func(deps Deps) (Component, error)
}

func (f funcFactory) Alias() string { return f.alias }

func (f funcFactory) New(deps Deps) (Component, error) { return f.fn(deps) }

// NewFactory wraps a constructor function as a Factory
func NewFactory(alias string, fn func(deps Deps) (Component, error)) Factory {
	return funcFactory{alias: alias, fn: fn}
}
