package component

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/envdesk/envdesk/errors"
	"github.com/envdesk/envdesk/styles"
)

// Registry manages window components keyed by alias.
// Registration order is preserved so broadcasts are deterministic. The
// registry is owned by the shell goroutine; the mutex makes reads from tests
// and metrics collectors safe, not concurrent mutation a supported pattern.
type Registry struct {
	mu      sync.RWMutex
	deps    Deps
	order   []string
	content map[string]Component
}

// NewRegistry creates an empty component registry bound to the given deps
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:    deps,
		content: make(map[string]Component),
	}
}

// Register constructs the factory's component and adds it under its alias.
// A missing alias fails with ErrInvalidComponent; a duplicate alias fails with
// ErrDuplicateComponent and leaves the first registration intact.
func (r *Registry) Register(factory Factory) error {
	if factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidComponent, "Registry", "Register", "factory validation")
	}

	alias := factory.Alias()
	if alias == "" {
		return errors.WrapInvalid(errors.ErrInvalidComponent, "Registry", "Register", "alias validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.content[alias]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrDuplicateComponent, alias),
			"Registry", "Register", "duplicate alias check")
	}

	comp, err := factory.New(r.deps)
	if err != nil {
		return errors.Wrap(err, "Registry", "Register", fmt.Sprintf("component %q construction", alias))
	}

	r.content[alias] = comp
	r.order = append(r.order, alias)

	if r.deps.Metrics != nil {
		r.deps.Metrics.CoreMetrics().ComponentCount.Set(float64(len(r.order)))
	}

	return nil
}

// Get returns the component registered under alias.
// Lookup fails fast with ErrUnknownComponent rather than returning nil.
func (r *Registry) Get(alias string) (Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	comp, exists := r.content[alias]
	if !exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrUnknownComponent, alias),
			"Registry", "Get", "alias lookup")
	}
	return comp, nil
}

// Has reports whether a component is registered under alias
func (r *Registry) Has(alias string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.content[alias]
	return exists
}

// Aliases returns the registered aliases in registration order
func (r *Registry) Aliases() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered components
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// Broadcast applies op to every component in registration order.
// A failure in one component never prevents later components from receiving
// the broadcast; failures are collected and returned as one aggregate error.
func (r *Registry) Broadcast(operation string, op func(alias string, c Component) error) error {
	r.mu.RLock()
	aliases := make([]string, len(r.order))
	copy(aliases, r.order)
	components := make([]Component, 0, len(aliases))
	for _, alias := range aliases {
		components = append(components, r.content[alias])
	}
	r.mu.RUnlock()

	var failures []error
	for i, comp := range components {
		if err := safeApply(op, aliases[i], comp); err != nil {
			failures = append(failures,
				errors.Wrap(err, "Registry", "Broadcast", fmt.Sprintf("%s on %q", operation, aliases[i])))
			if r.deps.Metrics != nil {
				r.deps.Metrics.CoreMetrics().BroadcastErrors.WithLabelValues(aliases[i], operation).Inc()
			}
		}
	}

	return stderrors.Join(failures...)
}

// safeApply runs op and converts a component panic into an error so the
// broadcast continues past a misbehaving component
func safeApply(op func(string, Component) error, alias string, c Component) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("component panicked: %v", rec)
		}
	}()
	return op(alias, c)
}

// Common proxy operations

// Setup broadcasts a Setup call with the given data to all components
func (r *Registry) Setup(data Data) error {
	return r.Broadcast("setup", func(_ string, c Component) error {
		return c.Setup(data)
	})
}

// UpdateStyleSheet broadcasts a theme palette update to all components
func (r *Registry) UpdateStyleSheet(palette styles.Palette) error {
	return r.Broadcast("update_style_sheet", func(_ string, c Component) error {
		c.UpdateStyleSheet(palette)
		return nil
	})
}

// StartTimers resumes periodic refreshes on all components
func (r *Registry) StartTimers() error {
	return r.Broadcast("start_timers", func(_ string, c Component) error {
		c.StartTimers()
		return nil
	})
}

// StopTimers pauses periodic refreshes on all components
func (r *Registry) StopTimers() error {
	return r.Broadcast("stop_timers", func(_ string, c Component) error {
		c.StopTimers()
		return nil
	})
}

// Teardown releases all components in registration order
func (r *Registry) Teardown() error {
	return r.Broadcast("teardown", func(_ string, c Component) error {
		return c.Teardown()
	})
}
