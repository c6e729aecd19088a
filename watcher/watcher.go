// Package watcher provides a join barrier over a fixed set of named
// asynchronous completions.
//
// A SignalWatcher is created per awaited operation: the caller registers the
// signal names it expects up front, wires each asynchronous completion to
// Received, and the stored callback fires exactly once after every registered
// name has arrived at least once. Completions may be delivered concurrently
// and in any order; the "last one fires" decision is a single check under one
// mutex, never a race where two completions each believe they are last.
package watcher

import (
	"log/slog"
	"sync"
	"time"

	"github.com/envdesk/envdesk/errors"
)

// Payloads carries the values accumulated per signal name for the callback
type Payloads struct {
	last map[string]any
	all  map[string][]any
}

// Last returns the most recent payload delivered for name
func (p Payloads) Last(name string) (any, bool) {
	v, ok := p.last[name]
	return v, ok
}

// All returns every payload delivered for name, in arrival order.
// Empty unless the watcher was created with PropagateAll.
func (p Payloads) All(name string) []any {
	return p.all[name]
}

// Callback receives the accumulated payloads when the barrier completes
type Callback func(payloads Payloads)

// Option configures a SignalWatcher
type Option func(*SignalWatcher)

// PropagateAll keeps every payload per name instead of only the last writer
func PropagateAll() Option {
	return func(w *SignalWatcher) {
		w.propagateAll = true
	}
}

// WithDeadline arms a timeout: if the barrier has not completed within d, the
// onTimeout callback runs instead of the normal one. The two callbacks are
// mutually exclusive and the watcher counts as fired either way.
func WithDeadline(d time.Duration, onTimeout func()) Option {
	return func(w *SignalWatcher) {
		w.deadline = d
		w.onTimeout = onTimeout
	}
}

// WithLogger sets the logger used for flagged deliveries
func WithLogger(logger *slog.Logger) Option {
	return func(w *SignalWatcher) {
		w.logger = logger
	}
}

// SignalWatcher waits for a set of named signals before firing one callback
type SignalWatcher struct {
	mu       sync.Mutex
	pending  map[string]struct{}
	received map[string]struct{}
	last     map[string]any
	all      map[string][]any
	callback Callback
	fired    bool

	propagateAll bool
	deadline     time.Duration
	onTimeout    func()
	timer        *time.Timer
	logger       *slog.Logger

	// Flagged delivery counts, readable after the fact for diagnostics
	duplicates   int
	unregistered int
}

// New creates a watcher that invokes callback once all registered signals
// have been received
func New(callback Callback, opts ...Option) *SignalWatcher {
	w := &SignalWatcher{
		pending:  make(map[string]struct{}),
		received: make(map[string]struct{}),
		last:     make(map[string]any),
		all:      make(map[string][]any),
		callback: callback,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.deadline > 0 {
		w.timer = time.AfterFunc(w.deadline, w.timedOut)
	}

	return w
}

// Register adds name to the set of awaited signals.
// Must be called before the corresponding completion can be reported;
// registering after the watcher has fired is a programming error.
func (w *SignalWatcher) Register(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fired {
		return errors.WrapInvalid(errors.ErrWatcherFired, "SignalWatcher", "Register", "late registration")
	}
	if _, ok := w.received[name]; ok {
		// Completion arrived for a previous registration of the same name;
		// keep the barrier semantics simple and treat it as still pending.
		delete(w.received, name)
	}
	w.pending[name] = struct{}{}
	return nil
}

// Received records the completion of name, with an optional payload.
// The last outstanding name fires the callback exactly once; deliveries after
// firing, repeated deliveries, and unregistered names never re-invoke it.
func (w *SignalWatcher) Received(name string, payload ...any) {
	w.mu.Lock()

	if w.fired {
		w.mu.Unlock()
		return
	}

	if _, ok := w.pending[name]; !ok {
		if _, seen := w.received[name]; seen {
			w.duplicates++
			w.logger.Debug("duplicate signal before completion", "signal", name)
			w.storePayloadLocked(name, payload)
		} else {
			w.unregistered++
			w.logger.Warn("unregistered signal received", "signal", name)
		}
		w.mu.Unlock()
		return
	}

	delete(w.pending, name)
	w.received[name] = struct{}{}
	w.storePayloadLocked(name, payload)

	if len(w.pending) > 0 {
		w.mu.Unlock()
		return
	}

	// Last outstanding signal: claim the fire while still holding the lock
	w.fired = true
	if w.timer != nil {
		w.timer.Stop()
	}
	callback := w.callback
	payloads := Payloads{last: w.last, all: w.all}
	w.mu.Unlock()

	if callback != nil {
		callback(payloads)
	}
}

// storePayloadLocked records a payload under name. Caller holds w.mu.
func (w *SignalWatcher) storePayloadLocked(name string, payload []any) {
	if len(payload) == 0 {
		return
	}
	w.last[name] = payload[len(payload)-1]
	if w.propagateAll {
		w.all[name] = append(w.all[name], payload...)
	}
}

// timedOut fires the error callback when the deadline expires first
func (w *SignalWatcher) timedOut() {
	w.mu.Lock()
	if w.fired {
		w.mu.Unlock()
		return
	}
	w.fired = true
	outstanding := make([]string, 0, len(w.pending))
	for name := range w.pending {
		outstanding = append(outstanding, name)
	}
	onTimeout := w.onTimeout
	w.mu.Unlock()

	w.logger.Warn("signal watcher deadline exceeded", "outstanding", outstanding)
	if onTimeout != nil {
		onTimeout()
	}
}

// Fired reports whether the watcher has fired (normally or by deadline)
func (w *SignalWatcher) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

// Pending returns the signals still outstanding
func (w *SignalWatcher) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]string, 0, len(w.pending))
	for name := range w.pending {
		out = append(out, name)
	}
	return out
}

// Flagged returns counts of duplicate and unregistered deliveries seen so far
func (w *SignalWatcher) Flagged() (duplicates, unregistered int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.duplicates, w.unregistered
}
