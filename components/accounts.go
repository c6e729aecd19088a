package components

import (
	"sync"
	"time"

	"github.com/envdesk/envdesk/component"
	"github.com/envdesk/envdesk/config"
)

// Accounts tracks the signed-in account state shown in the window header.
// Login state arrives in the data payload; the component also honors the
// first-run flag to decide whether the sign-in prompt should be offered.
type Accounts struct {
	base
	cfg *config.Store

	stateMu  sync.RWMutex
	username string
	firstRun bool
}

// NewAccountsFactory returns the factory for the accounts component
func NewAccountsFactory() component.Factory {
	return component.NewFactory(AliasAccounts, func(deps component.Deps) (component.Component, error) {
		a := &Accounts{
			base: newBase(AliasAccounts, deps, time.Hour),
			cfg:  deps.Config,
		}
		a.onTick = a.refreshTick
		return a, nil
	})
}

// Setup refreshes the signed-in state from the payload
func (a *Accounts) Setup(data component.Data) error {
	if !data.Succeeded() {
		a.logger.Debug("refresh failed, keeping account state", "error", data.Err)
		return nil
	}

	username := asString(data.Output["logged_in_user"])
	firstRun := a.cfg.GetBool(config.SectionMain, config.KeyFirstRun, false)

	a.stateMu.Lock()
	a.username = username
	a.firstRun = firstRun
	a.stateMu.Unlock()

	if data.Initial && firstRun {
		a.logger.Info("first run, sign-in prompt enabled")
	}
	return nil
}

// Username returns the signed-in account name, empty when anonymous
func (a *Accounts) Username() string {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.username
}

// SignedIn reports whether an account is active
func (a *Accounts) SignedIn() bool {
	return a.Username() != ""
}

// OfferSignIn reports whether the sign-in prompt should be shown
func (a *Accounts) OfferSignIn() bool {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.firstRun && a.username == ""
}

func (a *Accounts) refreshTick() {
	if a.SignedIn() {
		a.logger.Debug("account session check", "user", a.Username())
	}
}

var _ component.Component = (*Accounts)(nil)
