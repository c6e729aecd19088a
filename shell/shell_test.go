package shell

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/envdesk/envdesk/backend"
	"github.com/envdesk/envdesk/components"
	"github.com/envdesk/envdesk/config"
	"github.com/envdesk/envdesk/errors"
	"github.com/envdesk/envdesk/featureflags"
	"github.com/envdesk/envdesk/pkg/retry"
)

const testRoot = "/opt/envdesk"

// fakeDaemon answers daemon subjects in-process
type fakeDaemon struct {
	mu        sync.Mutex
	responses map[string][]byte
	block     map[string]bool
	requests  map[string]int
}

func newFakeDaemon() *fakeDaemon {
	d := &fakeDaemon{
		responses: make(map[string][]byte),
		block:     make(map[string]bool),
		requests:  make(map[string]int),
	}
	d.setFlags(map[string]bool{"whats_new": true})
	d.setData(map[string]any{"environments": []string{testRoot}})
	return d
}

func (d *fakeDaemon) setData(payload map[string]any) {
	raw, _ := json.Marshal(payload)
	d.mu.Lock()
	d.responses[backend.SubjectData] = raw
	d.mu.Unlock()
}

func (d *fakeDaemon) setFlags(flags map[string]bool) {
	raw, _ := json.Marshal(flags)
	d.mu.Lock()
	d.responses[featureflags.SubjectFlags] = raw
	d.mu.Unlock()
}

func (d *fakeDaemon) blockSubject(subj string) {
	d.mu.Lock()
	d.block[subj] = true
	d.mu.Unlock()
}

func (d *fakeDaemon) requestCount(subj string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[subj]
}

func (d *fakeDaemon) RequestWithContext(ctx context.Context, subj string, _ []byte) (*nats.Msg, error) {
	d.mu.Lock()
	d.requests[subj]++
	blocked := d.block[subj]
	raw := d.responses[subj]
	d.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &nats.Msg{Subject: subj, Data: raw}, nil
}

func (d *fakeDaemon) Subscribe(string, nats.MsgHandler) (*nats.Subscription, error) {
	return &nats.Subscription{}, nil
}

func newTestShell(t *testing.T, daemon *fakeDaemon, opts ...Option) *Shell {
	t.Helper()

	cfg := config.InMemory(config.Defaults(testRoot))

	clientCfg := backend.DefaultConfig(testRoot)
	clientCfg.RequestTimeout = 2 * time.Second
	client, err := backend.NewClient(daemon, clientCfg, nil)
	require.NoError(t, err)

	flags := featureflags.NewManager(daemon, time.Second, nil)

	quick := retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}
	opts = append([]Option{WithRetryConfig(quick), WithDeadline(5 * time.Second)}, opts...)

	sh, err := New(cfg, client, flags, nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sh.Stop(time.Second) })
	return sh
}

func TestStartupHappyPath(t *testing.T) {
	daemon := newFakeDaemon()
	sh := newTestShell(t, daemon)

	assert.Equal(t, StateConstructed, sh.State())
	require.NoError(t, sh.Run(context.Background()))

	assert.Equal(t, StateVisible, sh.State())
	assert.NoError(t, sh.Err())

	// Environments joins last, once tabs are built
	assert.Equal(t, []string{
		components.AliasNotifications,
		components.AliasWhatsNew,
		components.AliasAccounts,
		components.AliasApplications,
		components.AliasEnvironments,
	}, sh.Registry().Aliases())

	env, err := sh.Registry().Get(components.AliasEnvironments)
	require.NoError(t, err)
	assert.Equal(t, []string{testRoot}, env.(*components.Environments).List())

	select {
	case <-sh.Done():
	default:
		t.Fatal("Done must be closed after a completed startup")
	}
}

func TestStartupCorrectiveBranchResolves(t *testing.T) {
	daemon := newFakeDaemon()
	sh := newTestShell(t, daemon)

	// Point the configured default at an environment the daemon doesn't know
	require.NoError(t, sh.cfg.Set(config.SectionMain, config.KeyDefaultEnv, "/gone"))

	require.NoError(t, sh.Run(context.Background()))

	assert.Equal(t, StateVisible, sh.State())
	assert.Equal(t, testRoot, sh.cfg.GetString(config.SectionMain, config.KeyDefaultEnv, ""))
	assert.GreaterOrEqual(t, daemon.requestCount(backend.SubjectData), 2, "corrective branch must re-fetch")
}

func TestStartupCorrectiveBranchExhaustsRetries(t *testing.T) {
	daemon := newFakeDaemon()
	// The daemon never reports the root prefix, so re-selection cannot settle
	daemon.setData(map[string]any{"environments": []string{"/somewhere/else"}})
	sh := newTestShell(t, daemon)

	err := sh.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMaxRetriesExceeded)
	assert.Equal(t, StateFailed, sh.State())
}

func TestStartupProceedsOfflineOnFetchError(t *testing.T) {
	daemon := newFakeDaemon()
	daemon.setData(map[string]any{"error": "daemon unavailable"})
	sh := newTestShell(t, daemon)

	// A failed fetch is not a default-environment conflict: the window still
	// opens and components keep their empty prior state
	require.NoError(t, sh.Run(context.Background()))
	assert.Equal(t, StateVisible, sh.State())

	env, err := sh.Registry().Get(components.AliasEnvironments)
	require.NoError(t, err)
	assert.Empty(t, env.(*components.Environments).List())
}

func TestStartupDeadlineFails(t *testing.T) {
	daemon := newFakeDaemon()
	daemon.blockSubject(backend.SubjectData)
	sh := newTestShell(t, daemon, WithDeadline(50*time.Millisecond))

	err := sh.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrWatcherTimeout)
	assert.Equal(t, StateFailed, sh.State())
}

func TestStartupFlagsFailureIsNotFatal(t *testing.T) {
	daemon := newFakeDaemon()
	daemon.responses[featureflags.SubjectFlags] = []byte("garbage")
	sh := newTestShell(t, daemon)

	require.NoError(t, sh.Run(context.Background()))
	assert.Equal(t, StateVisible, sh.State())
}

func TestRunTwiceFails(t *testing.T) {
	daemon := newFakeDaemon()
	sh := newTestShell(t, daemon)

	require.NoError(t, sh.Run(context.Background()))
	assert.ErrorIs(t, sh.Run(context.Background()), errors.ErrAlreadyStarted)
}

func TestRunCancelledContextFails(t *testing.T) {
	daemon := newFakeDaemon()
	daemon.blockSubject(backend.SubjectData)
	sh := newTestShell(t, daemon)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := sh.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, StateFailed, sh.State())
}

func TestSelectEnvironmentRefreshesComponents(t *testing.T) {
	daemon := newFakeDaemon()
	work := testRoot + "/envs/work"
	daemon.setData(map[string]any{"environments": []string{testRoot, work}})
	sh := newTestShell(t, daemon)
	require.NoError(t, sh.Run(context.Background()))

	require.NoError(t, sh.SelectEnvironment(context.Background(), work))

	assert.Equal(t, work, sh.cfg.GetString(config.SectionMain, config.KeyDefaultEnv, ""))
	env, err := sh.Registry().Get(components.AliasEnvironments)
	require.NoError(t, err)
	assert.Contains(t, env.(*components.Environments).List(), work)
}

func TestSelectEnvironmentBeforeVisibleFails(t *testing.T) {
	daemon := newFakeDaemon()
	sh := newTestShell(t, daemon)

	err := sh.SelectEnvironment(context.Background(), testRoot)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotStarted)
}

func TestSelectEnvironmentGoneFallsBackToRoot(t *testing.T) {
	daemon := newFakeDaemon()
	sh := newTestShell(t, daemon)
	require.NoError(t, sh.Run(context.Background()))

	// The chosen environment is unknown to the daemon; the corrective branch
	// re-selects the root and the window stays visible
	require.NoError(t, sh.SelectEnvironment(context.Background(), "/gone"))
	assert.Equal(t, StateVisible, sh.State())
	assert.Equal(t, testRoot, sh.cfg.GetString(config.SectionMain, config.KeyDefaultEnv, ""))
}

func TestResetDataPicksUpNewEnvironments(t *testing.T) {
	daemon := newFakeDaemon()
	sh := newTestShell(t, daemon)
	require.NoError(t, sh.Run(context.Background()))

	fresh := testRoot + "/envs/fresh"
	daemon.setData(map[string]any{"environments": []string{testRoot, fresh}})
	require.NoError(t, sh.ResetData(context.Background()))

	env, err := sh.Registry().Get(components.AliasEnvironments)
	require.NoError(t, err)
	assert.Contains(t, env.(*components.Environments).List(), fresh)
}

func TestBackendOutlivesStartup(t *testing.T) {
	daemon := newFakeDaemon()
	sh := newTestShell(t, daemon)
	require.NoError(t, sh.Run(context.Background()))

	// The fetch pool must keep serving after Run has returned: repeated
	// refreshes all complete instead of queueing onto dead workers
	for i := 0; i < 3; i++ {
		require.NoError(t, sh.ResetData(context.Background()))
	}
	assert.GreaterOrEqual(t, daemon.requestCount(backend.SubjectData), 4)
	assert.Equal(t, StateVisible, sh.State())
}

func TestRefreshIndexRoundTrip(t *testing.T) {
	daemon := newFakeDaemon()
	raw, _ := json.Marshal(map[string]any{"status": "ok"})
	daemon.mu.Lock()
	daemon.responses[backend.SubjectIndex] = raw
	daemon.mu.Unlock()
	sh := newTestShell(t, daemon)
	require.NoError(t, sh.Run(context.Background()))

	before := daemon.requestCount(backend.SubjectData)
	require.NoError(t, sh.RefreshIndex(context.Background()))

	assert.Equal(t, 1, daemon.requestCount(backend.SubjectIndex))
	assert.Greater(t, daemon.requestCount(backend.SubjectData), before,
		"index refresh must be followed by a data refresh")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "constructed", StateConstructed.String())
	assert.Equal(t, "visible", StateVisible.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(42)", State(42).String())
}
