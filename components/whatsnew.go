package components

import (
	"sync"

	"github.com/envdesk/envdesk/component"
	"github.com/envdesk/envdesk/config"
)

// WhatsNew holds the release announcement content shown after an update.
// The dialog is suppressed when the user has opted out via configuration.
type WhatsNew struct {
	base
	cfg *config.Store

	stateMu sync.RWMutex
	content string
	version string
}

// NewWhatsNewFactory returns the factory for the what's-new component
func NewWhatsNewFactory() component.Factory {
	return component.NewFactory(AliasWhatsNew, func(deps component.Deps) (component.Component, error) {
		w := &WhatsNew{
			base: newBase(AliasWhatsNew, deps, 0),
			cfg:  deps.Config,
		}
		return w, nil
	})
}

// Setup stores the announcement content from the payload
func (w *WhatsNew) Setup(data component.Data) error {
	if !data.Succeeded() {
		w.logger.Debug("refresh failed, keeping announcement", "error", data.Err)
		return nil
	}

	entry, _ := data.Output["whats_new"].(map[string]any)

	w.stateMu.Lock()
	w.content = asString(entry["content"])
	w.version = asString(entry["version"])
	w.stateMu.Unlock()

	return nil
}

// Content returns the current announcement body, empty when none is set
func (w *WhatsNew) Content() string {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.content
}

// Version returns the release the announcement belongs to
func (w *WhatsNew) Version() string {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return w.version
}

// ShouldShow reports whether the announcement dialog should appear: there is
// content and the user has not hidden update dialogs
func (w *WhatsNew) ShouldShow() bool {
	if w.cfg.GetBool(config.SectionMain, config.KeyHideUpdateDialog, false) {
		return false
	}
	return w.Content() != ""
}

var _ component.Component = (*WhatsNew)(nil)
