package components

import (
	"sync"

	"github.com/envdesk/envdesk/component"
	"github.com/envdesk/envdesk/config"
)

// Environments lists the known environment prefixes and tracks the selected
// default. It is the last component registered: the shell only adds it once
// the first data payload has settled, when the tab row is built.
type Environments struct {
	base
	cfg *config.Store

	stateMu  sync.RWMutex
	prefixes []string
	selected string
}

// NewEnvironmentsFactory returns the factory for the environments component
func NewEnvironmentsFactory() component.Factory {
	return component.NewFactory(AliasEnvironments, func(deps component.Deps) (component.Component, error) {
		e := &Environments{
			base: newBase(AliasEnvironments, deps, 0),
			cfg:  deps.Config,
		}
		return e, nil
	})
}

// Setup replaces the environment list from the payload and re-resolves the
// selected default. Failed refreshes keep the previous list.
func (e *Environments) Setup(data component.Data) error {
	if !data.Succeeded() {
		e.logger.Debug("refresh failed, keeping environment list", "error", data.Err)
		return nil
	}

	prefixes := stringSlice(data.Output["environments"])
	selected := e.cfg.GetString(config.SectionMain, config.KeyDefaultEnv, "")

	e.stateMu.Lock()
	e.prefixes = prefixes
	e.selected = selected
	e.stateMu.Unlock()

	e.logger.Debug("environments configured",
		"count", len(prefixes), "selected", selected, "initial", data.Initial)
	return nil
}

// List returns the known environment prefixes
func (e *Environments) List() []string {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	out := make([]string, len(e.prefixes))
	copy(out, e.prefixes)
	return out
}

// Selected returns the currently selected default environment prefix
func (e *Environments) Selected() string {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.selected
}

// Has reports whether prefix is in the known environment list
func (e *Environments) Has(prefix string) bool {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	for _, p := range e.prefixes {
		if p == prefix {
			return true
		}
	}
	return false
}

var _ component.Component = (*Environments)(nil)
