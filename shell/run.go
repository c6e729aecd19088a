package shell

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/envdesk/envdesk/backend"
	"github.com/envdesk/envdesk/component"
	"github.com/envdesk/envdesk/components"
	"github.com/envdesk/envdesk/config"
	"github.com/envdesk/envdesk/errors"
	"github.com/envdesk/envdesk/pkg/retry"
	"github.com/envdesk/envdesk/solver"
	"github.com/envdesk/envdesk/watcher"
)

// Run executes the startup sequence and blocks until the window is visible,
// startup has failed, or ctx is cancelled. It may be called once.
func (s *Shell) Run(ctx context.Context) error {
	if s.State() != StateConstructed {
		return errors.ErrAlreadyStarted
	}
	s.setState(StateAwaitingInitialData)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.client.Start(s.lifeCtx); err != nil {
		s.fail(err)
		return s.Err()
	}

	watch := watcher.New(
		func(p watcher.Payloads) { s.onInitialData(runCtx, p) },
		watcher.WithDeadline(s.deadline, s.onDeadline),
		watcher.WithLogger(s.logger),
	)
	for _, name := range []string{SignalData, SignalFlags} {
		if err := watch.Register(name); err != nil {
			s.fail(err)
			return s.Err()
		}
	}

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		if s.flags != nil {
			if err := s.flags.Load(gctx); err != nil {
				s.logger.Warn("feature flags unavailable", "error", err)
			}
			watch.Received(SignalFlags, s.flags.All())
		} else {
			watch.Received(SignalFlags)
		}
		return nil
	})

	g.Go(func() error {
		res := s.fetchOnce(gctx, s.defaultPrefix())
		watch.Received(SignalData, res)
		return nil
	})

	g.Go(func() error {
		s.consumeProgress(gctx)
		return nil
	})

	select {
	case <-s.done:
	case <-ctx.Done():
		s.fail(errors.WrapTransient(ctx.Err(), "Shell", "Run", "startup wait"))
	}

	// Unblock any still-pending fetch before waiting the group out
	cancel()
	_ = g.Wait()
	return s.Err()
}

// Stop tears the shell down: timers pause, components release resources and
// the backend client drains its fetch pool.
func (s *Shell) Stop(timeout time.Duration) error {
	if err := s.registry.StopTimers(); err != nil {
		s.logger.Warn("timer stop reported errors", "error", err)
	}
	if err := s.registry.Teardown(); err != nil {
		s.logger.Warn("component teardown reported errors", "error", err)
	}
	s.lifeCancel()
	return s.client.Stop(timeout)
}

func (s *Shell) defaultPrefix() string {
	return s.cfg.GetString(config.SectionMain, config.KeyDefaultEnv, s.client.RootPrefix())
}

// fetchOnce issues one data fetch and folds every failure mode into the
// result-value contract
func (s *Shell) fetchOnce(ctx context.Context, prefix string) backend.Result {
	w, err := s.client.FetchData(prefix)
	if err != nil {
		return backend.Result{Err: err.Error()}
	}

	select {
	case res := <-w.Done():
		if s.client.IsStale(w) {
			return backend.Result{Err: "fetch superseded"}
		}
		return res
	case <-ctx.Done():
		return backend.Result{Err: ctx.Err().Error()}
	}
}

// consumeProgress logs daemon progress events until ctx is cancelled
func (s *Shell) consumeProgress(ctx context.Context) {
	for {
		select {
		case event, ok := <-s.client.Progress():
			if !ok {
				return
			}
			s.logger.Debug("backend progress",
				"worker", event.WorkerID, "action", event.Action,
				"progress", event.Progress, "max", event.MaxValue)
		case <-ctx.Done():
			return
		}
	}
}

// onInitialData runs once the data and flags signals have both arrived. It
// decides between normal setup and the corrective default-environment branch.
func (s *Shell) onInitialData(ctx context.Context, payloads watcher.Payloads) {
	res := dataResult(payloads)

	issues, err := s.runConflictPool(ctx, res)
	if err != nil {
		s.fail(err)
		return
	}

	if len(issues.Only(solver.TagDefaultEnv)) > 0 {
		res, err = s.reselectDefaultEnvironment(ctx)
		if err != nil {
			s.fail(err)
			return
		}
	}

	s.setState(StateDataStable)
	s.completeStartup(res)
}

// onDeadline fires when the initial fetches do not settle in time
func (s *Shell) onDeadline() {
	s.fail(errors.WrapTransient(errors.ErrWatcherTimeout, "Shell", "Run", "initial data wait"))
}

// runConflictPool validates one fetch result and returns the issue collection
func (s *Shell) runConflictPool(ctx context.Context, res backend.Result) (solver.Collection, error) {
	sc := &solver.Context{
		API:      s.client,
		Config:   s.cfg,
		Logger:   s.logger,
		Data:     res.Output,
		FetchErr: res.Err,
	}
	issues, err := s.conflictPool.Solve(ctx, sc)
	if err != nil {
		return nil, errors.Wrap(err, "Shell", "Run", "conflict pool run")
	}
	return issues, nil
}

// reselectDefaultEnvironment resets the configured default to the root
// prefix and re-fetches until the conflict pool stops flagging it. Attempts
// are bounded; running out of them is a terminal startup failure.
func (s *Shell) reselectDefaultEnvironment(ctx context.Context) (backend.Result, error) {
	s.setState(StateReselectingDefaultEnvironment)

	root := s.client.RootPrefix()
	if err := s.cfg.Set(config.SectionMain, config.KeyDefaultEnv, root); err != nil {
		return backend.Result{}, errors.Wrap(err, "Shell", "Run", "default environment reset")
	}
	s.logger.Warn("default environment re-selected", "prefix", root)

	res, err := s.correctiveFetch(ctx, root)
	if err != nil {
		return backend.Result{}, errors.WrapFatal(errors.ErrMaxRetriesExceeded,
			"Shell", "Run", "default environment re-selection")
	}
	return res, nil
}

// correctiveFetch re-fetches root until the conflict pool stops flagging the
// default environment, bounded by the retry config
func (s *Shell) correctiveFetch(ctx context.Context, root string) (backend.Result, error) {
	return retry.DoWithResult(ctx, s.retryCfg, func() (backend.Result, error) {
		// Supersede the previous fetch so its late completion is discarded
		s.client.Advance()

		res := s.fetchOnce(ctx, root)
		issues, err := s.runConflictPool(ctx, res)
		if err != nil {
			return backend.Result{}, retry.NonRetryable(err)
		}
		if len(issues.Only(solver.TagFetch)) > 0 {
			return backend.Result{}, fmt.Errorf("re-fetch failed: %s", res.Err)
		}
		if len(issues.Only(solver.TagDefaultEnv)) > 0 {
			return backend.Result{}, fmt.Errorf("default environment %q still unresolved", root)
		}
		return res, nil
	})
}

// completeStartup configures components, builds the tab row and makes the
// window visible
func (s *Shell) completeStartup(res backend.Result) {
	data := component.Data{
		Output:  res.Output,
		Err:     res.Err,
		Initial: true,
	}

	// Broadcast failures are logged, not fatal: a single misbehaving
	// component must not keep the window from appearing
	if err := s.registry.Setup(data); err != nil {
		s.logger.Error("component setup reported errors", "error", err)
	}

	if err := s.buildTabs(data); err != nil {
		s.fail(err)
		return
	}
	s.setState(StateTabsBuilt)

	if err := s.registry.UpdateStyleSheet(s.styleTable.Palette()); err != nil {
		s.logger.Error("stylesheet broadcast reported errors", "error", err)
	}
	if err := s.registry.StartTimers(); err != nil {
		s.logger.Error("timer start reported errors", "error", err)
	}

	s.finish()
}

// buildTabs registers the environments component once data has settled and
// configures it with the same payload the earlier components received
func (s *Shell) buildTabs(data component.Data) error {
	if err := s.registry.Register(components.NewEnvironmentsFactory()); err != nil {
		return errors.Wrap(err, "Shell", "Run", "environments registration")
	}

	envs, err := s.registry.Get(components.AliasEnvironments)
	if err != nil {
		return errors.Wrap(err, "Shell", "Run", "environments lookup")
	}
	if err := envs.Setup(data); err != nil {
		return errors.Wrap(err, "Shell", "Run", "environments setup")
	}
	return nil
}

// dataResult extracts the backend result delivered under the data signal
func dataResult(payloads watcher.Payloads) backend.Result {
	v, ok := payloads.Last(SignalData)
	if !ok {
		return backend.Result{Err: "no data payload delivered"}
	}
	res, ok := v.(backend.Result)
	if !ok {
		return backend.Result{Err: fmt.Sprintf("unexpected data payload type %T", v)}
	}
	return res
}
