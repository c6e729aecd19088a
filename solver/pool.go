package solver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/envdesk/envdesk/config"
	"github.com/envdesk/envdesk/errors"
	"github.com/envdesk/envdesk/metric"
)

// API is the read-only backend surface handlers may consult
type API interface {
	// RootPrefix returns the base environment prefix
	RootPrefix() string
	// Offline reports whether the backend considers itself disconnected
	Offline() bool
}

// Context carries the shared state of one pool run.
// A context instance is exclusively owned by its run; concurrent runs must
// not share one.
type Context struct {
	API    API
	Config *config.Store
	Logger *slog.Logger

	// Data is the backend payload under validation; nil for pools that run
	// before any fetch (configuration stabilization).
	Data map[string]any

	// FetchErr is the backend's result-value error for the payload, empty on
	// success.
	FetchErr string

	// Issues accumulates findings as handlers run; later handlers may read
	// what earlier ones raised.
	Issues Collection
}

// Handler is one rule in a pool.
// Handlers read the context and return issues; they must not touch UI state.
type Handler struct {
	Name  string
	Solve func(ctx context.Context, sc *Context) (Collection, error)
}

// Pool is an ordered, fixed chain of handlers
type Pool struct {
	name     string
	handlers []Handler
	logger   *slog.Logger
	metrics  *metric.MetricsRegistry
}

// PoolOption configures a Pool
type PoolOption func(*Pool)

// WithLogger sets the pool's logger
func WithLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithMetrics enables solver metrics on the pool
func WithMetrics(registry *metric.MetricsRegistry) PoolOption {
	return func(p *Pool) {
		p.metrics = registry
	}
}

// NewPool creates a pool with the given handler chain.
// The chain is fixed for the pool's lifetime: no handler may be skipped,
// added, or reordered after construction.
func NewPool(name string, handlers []Handler, opts ...PoolOption) *Pool {
	pool := &Pool{
		name:     name,
		handlers: append([]Handler(nil), handlers...),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(pool)
	}
	pool.logger = pool.logger.With("pool", name)
	return pool
}

// Name returns the pool's name
func (p *Pool) Name() string {
	return p.name
}

// Handlers returns the names of the handler chain in run order
func (p *Pool) Handlers() []string {
	out := make([]string, len(p.handlers))
	for i, h := range p.handlers {
		out[i] = h.Name
	}
	return out
}

// Solve runs every handler in order against sc and returns the accumulated
// issue collection. A handler error (or panic) aborts the remaining handlers:
// the context may be inconsistent after a failure, so the run fails fast and
// the error surfaces to the caller.
func (p *Pool) Solve(ctx context.Context, sc *Context) (Collection, error) {
	if sc == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Pool", "Solve", "context validation")
	}
	if sc.Logger == nil {
		sc.Logger = p.logger
	}

	for _, handler := range p.handlers {
		issues, err := p.runHandler(ctx, handler, sc)
		if err != nil {
			p.recordRun("aborted")
			return sc.Issues, errors.Wrap(
				fmt.Errorf("%w: handler %q: %w", errors.ErrSolverAborted, handler.Name, err),
				"Pool", "Solve", p.name)
		}

		for _, issue := range issues {
			p.logger.Debug("issue raised",
				"handler", handler.Name,
				"kind", issue.Kind,
				"tags", issue.Tags,
				"severity", issue.Severity.String())
			if p.metrics != nil {
				p.metrics.CoreMetrics().SolverIssues.WithLabelValues(p.name, issue.Kind).Inc()
			}
		}
		sc.Issues = append(sc.Issues, issues...)
	}

	p.recordRun("ok")
	return sc.Issues, nil
}

// runHandler executes one handler, converting a panic into a fail-fast error
func (p *Pool) runHandler(ctx context.Context, handler Handler, sc *Context) (issues Collection, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			issues = nil
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return handler.Solve(ctx, sc)
}

func (p *Pool) recordRun(status string) {
	if p.metrics != nil {
		p.metrics.CoreMetrics().SolverRuns.WithLabelValues(p.name, status).Inc()
	}
}
