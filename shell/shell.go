// Package shell drives application startup: it owns the component registry,
// issues the two initial asynchronous fetches (backend data and feature
// flags), joins them with a signal watcher, runs the conflict pool over the
// fetched data, and walks the window through its startup states until it is
// visible or has failed.
package shell

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/envdesk/envdesk/backend"
	"github.com/envdesk/envdesk/component"
	"github.com/envdesk/envdesk/components"
	"github.com/envdesk/envdesk/config"
	"github.com/envdesk/envdesk/errors"
	"github.com/envdesk/envdesk/featureflags"
	"github.com/envdesk/envdesk/metric"
	"github.com/envdesk/envdesk/pkg/retry"
	"github.com/envdesk/envdesk/solver"
	"github.com/envdesk/envdesk/styles"
)

// Names of the startup signals joined by the watcher
const (
	SignalData  = "data"
	SignalFlags = "flags"
)

// State is the shell's position in the startup sequence
type State int32

const (
	StateConstructed State = iota
	StateAwaitingInitialData
	StateReselectingDefaultEnvironment
	StateDataStable
	StateTabsBuilt
	StateVisible
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateAwaitingInitialData:
		return "awaiting_initial_data"
	case StateReselectingDefaultEnvironment:
		return "reselecting_default_environment"
	case StateDataStable:
		return "data_stable"
	case StateTabsBuilt:
		return "tabs_built"
	case StateVisible:
		return "visible"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Shell owns startup orchestration for the main window
type Shell struct {
	cfg     *config.Store
	client  *backend.Client
	flags   *featureflags.Manager
	logger  *slog.Logger
	metrics *metric.MetricsRegistry

	registry     *component.Registry
	confPool     *solver.Pool
	conflictPool *solver.Pool
	styleTable   *styles.Table

	deadline time.Duration
	retryCfg retry.Config

	// lifeCtx spans the shell's whole lifetime, Run through Stop. The backend
	// pool runs under it so refreshes keep working after startup returns.
	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	stateMu sync.RWMutex
	state   State

	doneOnce sync.Once
	done     chan struct{}
	runErrMu sync.Mutex
	runErr   error

	refreshMu sync.Mutex
}

// Option configures a Shell
type Option func(*Shell)

// WithMetrics enables shell metrics
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Shell) {
		s.metrics = registry
	}
}

// WithDeadline bounds how long the shell waits for the initial fetches
func WithDeadline(d time.Duration) Option {
	return func(s *Shell) {
		s.deadline = d
	}
}

// WithStyles sets the style variable table applied to components
func WithStyles(table *styles.Table) Option {
	return func(s *Shell) {
		s.styleTable = table
	}
}

// WithRetryConfig bounds the corrective re-fetch loop
func WithRetryConfig(cfg retry.Config) Option {
	return func(s *Shell) {
		s.retryCfg = cfg
	}
}

// New constructs the shell: it stabilizes persisted settings through the
// configuration pool and registers the startup components. No fetch is
// issued until Run.
func New(cfg *config.Store, client *backend.Client, flags *featureflags.Manager, logger *slog.Logger, opts ...Option) (*Shell, error) {
	if cfg == nil || client == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Shell", "New", "dependency validation")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Shell{
		cfg:        cfg,
		client:     client,
		flags:      flags,
		logger:     logger.With("subsystem", "shell"),
		styleTable: styles.Default(),
		deadline:   60 * time.Second,
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
		state: StateConstructed,
		done:  make(chan struct{}),
	}
	s.lifeCtx, s.lifeCancel = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(s)
	}

	var poolOpts []solver.PoolOption
	poolOpts = append(poolOpts, solver.WithLogger(s.logger))
	if s.metrics != nil {
		poolOpts = append(poolOpts, solver.WithMetrics(s.metrics))
	}
	s.confPool = solver.NewConfigurationPool(poolOpts...)
	s.conflictPool = solver.NewConflictPool(poolOpts...)

	// Settings must be stable before anything reads them
	if err := s.runConfigurationPool(); err != nil {
		return nil, err
	}

	s.registry = component.NewRegistry(component.Deps{
		Config:  cfg,
		Logger:  s.logger,
		Metrics: s.metrics,
	})

	for _, factory := range []component.Factory{
		components.NewNotificationsFactory(),
		components.NewWhatsNewFactory(),
		components.NewAccountsFactory(),
		components.NewApplicationsFactory(),
	} {
		if err := s.registry.Register(factory); err != nil {
			return nil, errors.Wrap(err, "Shell", "New", "component registration")
		}
	}

	return s, nil
}

// State returns the current startup state
func (s *Shell) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Registry exposes the component registry
func (s *Shell) Registry() *component.Registry {
	return s.registry
}

// Done is closed once the shell reaches StateVisible or StateFailed
func (s *Shell) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, nil unless the shell failed
func (s *Shell) Err() error {
	s.runErrMu.Lock()
	defer s.runErrMu.Unlock()
	return s.runErr
}

func (s *Shell) setState(next State) {
	s.stateMu.Lock()
	prev := s.state
	s.state = next
	s.stateMu.Unlock()

	if s.metrics != nil {
		s.metrics.CoreMetrics().ShellState.Set(float64(next))
	}
	s.logger.Info("state transition", "from", prev.String(), "to", next.String())
}

func (s *Shell) fail(err error) {
	s.runErrMu.Lock()
	s.runErr = err
	s.runErrMu.Unlock()

	s.setState(StateFailed)
	s.logger.Error("startup failed", "error", err)
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Shell) finish() {
	s.setState(StateVisible)
	s.doneOnce.Do(func() { close(s.done) })
}

// runConfigurationPool stabilizes persisted settings once at construction
func (s *Shell) runConfigurationPool() error {
	sc := &solver.Context{
		API:    s.client,
		Config: s.cfg,
		Logger: s.logger,
	}
	issues, err := s.confPool.Solve(context.Background(), sc)
	if err != nil {
		return errors.Wrap(err, "Shell", "New", "configuration pool run")
	}
	for _, issue := range issues {
		s.logger.Info("setting stabilized", "kind", issue.Kind, "message", issue.Message)
	}
	return nil
}
