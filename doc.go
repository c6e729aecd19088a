// Package envdesk is the non-GUI core of a desktop environment and package
// manager shell. It owns everything between process start and a visible,
// periodically refreshing main window: talking to the package daemon,
// assembling the window from registered components, and reconciling fetched
// environment data with persisted user settings.
//
// # Architecture
//
// Startup is a small state machine driven by the shell package:
//
//	Constructed → AwaitingInitialData → {ReselectingDefaultEnvironment | DataStable}
//	            → TabsBuilt → Visible         (or Failed, terminally)
//
// Two asynchronous operations run at startup and are joined by a signal
// watcher before the window may appear:
//
//	┌───────────────┐      envdesk.daemon.data       ┌───────────────┐
//	│ backend.Client├──────────────────────────────► │ package daemon│
//	│  (worker pool)│ ◄──────────────────────────────┤  (NATS r/r)   │
//	└──────┬────────┘      envdesk.daemon.progress   └───────────────┘
//	       │ Result{Output, Err}
//	       ▼
//	┌───────────────┐   fires once both signals land
//	│ SignalWatcher │ ─────────────────────────────►  shell.onInitialData
//	└───────────────┘          ▲
//	                           │ flag map (or defaults)
//	                  ┌────────┴──────┐
//	                  │ featureflags  │
//	                  └───────────────┘
//
// Fetched data then passes through the conflict solver pool. Issues tagged
// for the default environment trigger the corrective branch: the configured
// default is reset to the root prefix and re-fetched under a bounded retry,
// with fetch generations guaranteeing that completions from superseded
// fetches are discarded.
//
// # Packages
//
// Orchestration:
//   - shell: startup state machine, refresh operations, shutdown
//   - watcher: signal join barrier with deadline
//   - solver: issue solver pools (configuration and conflict)
//
// Window model:
//   - component: alias-keyed ordered registry, factories, broadcast
//   - components: accounts, applications, environments, notifications,
//     whats-new state holders
//   - styles: declared style variable table and palette extraction
//
// Daemon access:
//   - backend: NATS request/reply client, schema validation, offline cache,
//     progress events
//   - featureflags: remote flags over compiled-in defaults
//
// Infrastructure:
//   - config: YAML-persisted section/key preference store
//   - errors: error classification and sentinel errors
//   - metric: Prometheus registry and core metrics
//   - pkg/worker: bounded generic worker pool
//   - pkg/retry: exponential backoff
//   - pkg/cache: TTL cache for last-known-good daemon payloads
//
// # Error contract
//
// Daemon exchanges use a result-value contract: a Result whose Err field is
// empty succeeded, anything else carries the failure as data. Transport
// failures additionally flip the client into offline mode, where data fetches
// are answered from the last cached payload when one exists. Go errors are
// reserved for conditions in the caller's control (bad arguments, lifecycle
// misuse, queue overflow).
//
// # Binary
//
// cmd/envdesk wires the pieces together:
//
//	envdesk --nats-url nats://localhost:4222 --log-level debug
//	envdesk --reset          # reset configuration and exit
//	envdesk --remove-lock    # clear a stale single-instance lock
package envdesk
