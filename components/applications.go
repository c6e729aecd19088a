package components

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/envdesk/envdesk/component"
)

// Application is one launchable entry on the home tab
type Application struct {
	Name             string
	Version          string // Latest version known to the index
	InstalledVersion string // Empty when not installed
	Description      string
}

// Installed reports whether the application is present locally
func (a Application) Installed() bool {
	return a.InstalledVersion != ""
}

// UpdateAvailable reports whether the index carries a newer version than the
// installed one
func (a Application) UpdateAvailable() bool {
	return a.Installed() && compareVersions(a.Version, a.InstalledVersion) > 0
}

// Applications renders the launchable application tiles and flags the ones
// with pending updates.
type Applications struct {
	base

	stateMu sync.RWMutex
	apps    []Application
}

// NewApplicationsFactory returns the factory for the applications component
func NewApplicationsFactory() component.Factory {
	return component.NewFactory(AliasApplications, func(deps component.Deps) (component.Component, error) {
		a := &Applications{
			base: newBase(AliasApplications, deps, 30*time.Minute),
		}
		a.onTick = a.refreshTick
		return a, nil
	})
}

// Setup rebuilds the application list from the payload
func (a *Applications) Setup(data component.Data) error {
	if !data.Succeeded() {
		a.logger.Debug("refresh failed, keeping application list", "error", data.Err)
		return nil
	}

	var apps []Application
	for _, entry := range mapSlice(data.Output["applications"]) {
		app := Application{
			Name:             asString(entry["name"]),
			Version:          asString(entry["version"]),
			InstalledVersion: asString(entry["installed_version"]),
			Description:      asString(entry["description"]),
		}
		if app.Name == "" {
			continue
		}
		apps = append(apps, app)
	}

	a.stateMu.Lock()
	a.apps = apps
	a.stateMu.Unlock()

	a.logger.Debug("applications configured", "count", len(apps), "initial", data.Initial)
	return nil
}

// List returns the current application entries
func (a *Applications) List() []Application {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	out := make([]Application, len(a.apps))
	copy(out, a.apps)
	return out
}

// Updatable returns the applications with a pending update
func (a *Applications) Updatable() []Application {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	var out []Application
	for _, app := range a.apps {
		if app.UpdateAvailable() {
			out = append(out, app)
		}
	}
	return out
}

func (a *Applications) refreshTick() {
	a.stateMu.RLock()
	pending := 0
	for _, app := range a.apps {
		if app.UpdateAvailable() {
			pending++
		}
	}
	a.stateMu.RUnlock()

	if pending > 0 {
		a.logger.Info("application updates available", "count", pending)
	}
}

// compareVersions orders dotted numeric version strings. Non-numeric
// segments compare lexically. Returns -1, 0 or 1.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		// A missing segment counts as zero, so 1.0 equals 1.0.0
		av, bv := "0", "0"
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		an, aerr := strconv.Atoi(av)
		bn, berr := strconv.Atoi(bv)
		switch {
		case aerr == nil && berr == nil:
			if an != bn {
				if an < bn {
					return -1
				}
				return 1
			}
		default:
			if av != bv {
				if av < bv {
					return -1
				}
				return 1
			}
		}
	}
	return 0
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

var _ component.Component = (*Applications)(nil)
