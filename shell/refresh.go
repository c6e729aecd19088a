package shell

import (
	"context"

	"github.com/envdesk/envdesk/backend"
	"github.com/envdesk/envdesk/component"
	"github.com/envdesk/envdesk/config"
	"github.com/envdesk/envdesk/errors"
	"github.com/envdesk/envdesk/solver"
)

// SelectEnvironment switches the active environment to prefix, persists the
// choice and refreshes component state from a fresh fetch. Only valid once
// the window is visible.
func (s *Shell) SelectEnvironment(ctx context.Context, prefix string) error {
	if s.State() != StateVisible {
		return errors.WrapInvalid(errors.ErrNotStarted, "Shell", "SelectEnvironment", "state check")
	}
	if prefix == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Shell", "SelectEnvironment", "prefix validation")
	}

	if err := s.cfg.Set(config.SectionMain, config.KeyDefaultEnv, prefix); err != nil {
		return errors.Wrap(err, "Shell", "SelectEnvironment", "default environment persist")
	}
	s.logger.Info("environment selected", "prefix", prefix)

	return s.refresh(ctx, prefix)
}

// ResetData discards component state derived from the last fetch and rebuilds
// it from a fresh one for the current environment.
func (s *Shell) ResetData(ctx context.Context) error {
	if s.State() != StateVisible {
		return errors.WrapInvalid(errors.ErrNotStarted, "Shell", "ResetData", "state check")
	}
	return s.refresh(ctx, s.defaultPrefix())
}

// RefreshIndex asks the daemon to rebuild its package index, then refreshes
// component state from the updated data. A rate-limited refusal is returned
// to the caller and leaves current state untouched.
func (s *Shell) RefreshIndex(ctx context.Context) error {
	if s.State() != StateVisible {
		return errors.WrapInvalid(errors.ErrNotStarted, "Shell", "RefreshIndex", "state check")
	}

	w, err := s.client.UpdateIndex(s.defaultPrefix())
	if err != nil {
		return err
	}
	select {
	case res := <-w.Done():
		if !res.Succeeded() {
			return errors.WrapTransient(errors.ErrFetchFailed, "Shell", "RefreshIndex", "index update")
		}
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Shell", "RefreshIndex", "index wait")
	}

	return s.refresh(ctx, s.defaultPrefix())
}

// refresh re-runs the fetch/validate/broadcast cycle that startup performed,
// with the same corrective default-environment branching. One refresh runs at
// a time; callers serialize on refreshMu.
func (s *Shell) refresh(ctx context.Context, prefix string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Supersede any fetch still in flight from an earlier refresh
	s.client.Advance()

	res := s.fetchOnce(ctx, prefix)
	issues, err := s.runConflictPool(ctx, res)
	if err != nil {
		return err
	}

	if len(issues.Only(solver.TagDefaultEnv)) > 0 {
		res, err = s.reselectForRefresh(ctx)
		if err != nil {
			return err
		}
	}

	data := component.Data{Output: res.Output, Err: res.Err, Initial: false}
	if err := s.registry.Setup(data); err != nil {
		s.logger.Error("component refresh reported errors", "error", err)
	}
	return nil
}

// reselectForRefresh runs the corrective branch without touching the startup
// state machine; a refresh that exhausts its attempts reports the error but
// leaves the window visible with its previous state.
func (s *Shell) reselectForRefresh(ctx context.Context) (backend.Result, error) {
	root := s.client.RootPrefix()
	if err := s.cfg.Set(config.SectionMain, config.KeyDefaultEnv, root); err != nil {
		return backend.Result{}, errors.Wrap(err, "Shell", "refresh", "default environment reset")
	}
	s.logger.Warn("default environment re-selected during refresh", "prefix", root)

	res, err := s.correctiveFetch(ctx, root)
	if err != nil {
		return backend.Result{}, errors.WrapTransient(errors.ErrMaxRetriesExceeded,
			"Shell", "refresh", "default environment re-selection")
	}
	return res, nil
}
