package solver

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/envdesk/envdesk/config"
)

// NewConfigurationPool builds the pool that stabilizes persisted settings.
// It runs once, early, before any network fetch, so every later consumer of
// the config store sees sane values.
func NewConfigurationPool(opts ...PoolOption) *Pool {
	return NewPool("configuration", []Handler{
		{Name: "default-environment-setting", Solve: solveDefaultEnvironmentSetting},
		{Name: "offline-status-reset", Solve: solveOfflineStatusReset},
		{Name: "window-geometry-setting", Solve: solveWindowGeometrySetting},
	}, opts...)
}

// NewConflictPool builds the pool that detects conflicts between the desired
// and actual environment state. It runs on every fetch of backend data.
func NewConflictPool(opts ...PoolOption) *Pool {
	return NewPool("conflict", []Handler{
		{Name: "fetch-result", Solve: solveFetchResult},
		{Name: "default-environment", Solve: solveDefaultEnvironment},
		{Name: "terms-of-service", Solve: solveTermsOfService},
	}, opts...)
}

// Configuration handlers
// ---------------------------------------------------------------------------

// solveDefaultEnvironmentSetting seeds main.default_env with the root prefix
// when the setting is empty or missing
func solveDefaultEnvironmentSetting(_ context.Context, sc *Context) (Collection, error) {
	defaultEnv := sc.Config.GetString(config.SectionMain, config.KeyDefaultEnv, "")
	if defaultEnv != "" {
		return nil, nil
	}

	root := sc.API.RootPrefix()
	if err := sc.Config.Set(config.SectionMain, config.KeyDefaultEnv, root); err != nil {
		return nil, err
	}

	return Collection{{
		Kind:     "settings",
		Tags:     []string{TagConfiguration},
		Message:  fmt.Sprintf("default environment was unset, now %q", root),
		Severity: SeverityInfo,
	}}, nil
}

// solveOfflineStatusReset clears the cached offline flag so the first
// connectivity check after startup always records a fresh status
func solveOfflineStatusReset(_ context.Context, sc *Context) (Collection, error) {
	if sc.Config.Get(config.SectionMain, config.KeyLastStatusIsOffline, nil) == nil {
		return nil, nil
	}
	if err := sc.Config.Set(config.SectionMain, config.KeyLastStatusIsOffline, nil); err != nil {
		return nil, err
	}
	return Collection{{
		Kind:     "settings",
		Tags:     []string{TagConfiguration},
		Message:  "stale offline status cleared",
		Severity: SeverityInfo,
	}}, nil
}

// solveWindowGeometrySetting drops an undecodable persisted window geometry
// rather than letting window restore fail later
func solveWindowGeometrySetting(_ context.Context, sc *Context) (Collection, error) {
	geo := sc.Config.GetString(config.SectionMain, config.KeyGeo, "")
	if geo == "" {
		return nil, nil
	}
	if _, err := base64.StdEncoding.DecodeString(geo); err == nil {
		return nil, nil
	}

	if err := sc.Config.Set(config.SectionMain, config.KeyGeo, ""); err != nil {
		return nil, err
	}
	return Collection{{
		Kind:     "settings",
		Tags:     []string{TagConfiguration},
		Message:  "persisted window geometry was malformed and has been cleared",
		Severity: SeverityWarning,
	}}, nil
}

// Conflict handlers
// ---------------------------------------------------------------------------

// solveFetchResult converts a backend result-value error into an issue so the
// shell can choose between retry, corrective action, or an error display
func solveFetchResult(_ context.Context, sc *Context) (Collection, error) {
	if sc.FetchErr == "" && sc.Data != nil {
		return nil, nil
	}

	message := sc.FetchErr
	if message == "" {
		message = "backend returned no data"
	}

	return Collection{{
		Kind:     "fetch",
		Tags:     []string{TagFetch},
		Message:  message,
		Severity: SeverityError,
	}}, nil
}

// solveDefaultEnvironment flags a configured default environment that the
// backend no longer knows about. The resulting default_env tag makes the
// shell re-select the default environment instead of proceeding with setup.
func solveDefaultEnvironment(_ context.Context, sc *Context) (Collection, error) {
	// A failed fetch already aborts normal setup; no point second-guessing
	// an environment list we did not receive.
	if len(sc.Issues.Only(TagFetch)) > 0 {
		return nil, nil
	}

	defaultEnv := sc.Config.GetString(config.SectionMain, config.KeyDefaultEnv, sc.API.RootPrefix())
	for _, prefix := range environmentsFromData(sc.Data) {
		if prefix == defaultEnv {
			return nil, nil
		}
	}

	return Collection{{
		Kind:     "environment",
		Tags:     []string{TagDefaultEnv},
		Message:  fmt.Sprintf("default environment %q does not exist", defaultEnv),
		Severity: SeverityWarning,
	}}, nil
}

// solveTermsOfService flags fetched data reporting unaccepted terms of service
func solveTermsOfService(_ context.Context, sc *Context) (Collection, error) {
	if len(sc.Issues.Only(TagFetch)) > 0 {
		return nil, nil
	}

	// Absent field means accepted; only an explicit false is a finding
	accepted, ok := sc.Data["tos_accepted"].(bool)
	if !ok || accepted {
		return nil, nil
	}

	return Collection{{
		Kind:     "policy",
		Tags:     []string{TagTOS},
		Message:  "terms of service have not been accepted",
		Severity: SeverityWarning,
	}}, nil
}

// environmentsFromData extracts the environment prefix list from a payload,
// tolerating both decoded-JSON ([]any) and native ([]string) shapes
func environmentsFromData(data map[string]any) []string {
	if data == nil {
		return nil
	}

	switch envs := data["environments"].(type) {
	case []string:
		return envs
	case []any:
		out := make([]string, 0, len(envs))
		for _, e := range envs {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
