package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu         sync.Mutex
	responses  map[string][]byte
	errs       map[string]error
	progressCb nats.MsgHandler
	requests   []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		responses: make(map[string][]byte),
		errs:      make(map[string]error),
	}
}

func (f *fakeConn) RequestWithContext(_ context.Context, subj string, _ []byte) (*nats.Msg, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, subj)
	if err := f.errs[subj]; err != nil {
		return nil, err
	}
	return &nats.Msg{Subject: subj, Data: f.responses[subj]}, nil
}

func (f *fakeConn) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if subj == SubjectProgress {
		f.progressCb = cb
	}
	return &nats.Subscription{}, nil
}

func (f *fakeConn) setResponse(subj string, payload map[string]any) {
	raw, _ := json.Marshal(payload)
	f.mu.Lock()
	f.responses[subj] = raw
	delete(f.errs, subj)
	f.mu.Unlock()
}

func (f *fakeConn) setError(subj string, err error) {
	f.mu.Lock()
	f.errs[subj] = err
	f.mu.Unlock()
}

func validData() map[string]any {
	return map[string]any{
		"environments": []string{"/opt/envdesk", "/opt/envdesk/envs/work"},
	}
}

func newTestClient(t *testing.T, conn *fakeConn) *Client {
	t.Helper()
	cfg := DefaultConfig("/opt/envdesk")
	cfg.RequestTimeout = time.Second
	client, err := NewClient(conn, cfg, nil)
	require.NoError(t, err)
	require.NoError(t, client.Start(context.Background()))
	t.Cleanup(func() { _ = client.Stop(time.Second) })
	return client
}

func awaitResult(t *testing.T, w *Worker) Result {
	t.Helper()
	select {
	case res := <-w.Done():
		return res
	case <-time.After(5 * time.Second):
		t.Fatalf("worker %s did not complete", w.ID)
		return Result{}
	}
}

func TestFetchDataSuccess(t *testing.T) {
	conn := newFakeConn()
	conn.setResponse(SubjectData, validData())
	client := newTestClient(t, conn)

	w, err := client.FetchData("/opt/envdesk")
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.Equal(t, KindData, w.Kind)

	res := awaitResult(t, w)
	require.True(t, res.Succeeded(), "unexpected error: %s", res.Err)
	assert.Contains(t, res.Output, "environments")
	assert.False(t, client.Offline())
}

func TestFetchDataDaemonErrorField(t *testing.T) {
	conn := newFakeConn()
	conn.setResponse(SubjectData, map[string]any{"error": "prefix not found"})
	client := newTestClient(t, conn)

	w, err := client.FetchData("/bad/prefix")
	require.NoError(t, err)

	res := awaitResult(t, w)
	assert.False(t, res.Succeeded())
	assert.Equal(t, "prefix not found", res.Err)
	// A daemon-reported error is not a transport failure
	assert.False(t, client.Offline())
}

func TestFetchDataTransportErrorGoesOffline(t *testing.T) {
	conn := newFakeConn()
	conn.setError(SubjectData, fmt.Errorf("no responders"))
	client := newTestClient(t, conn)

	w, err := client.FetchData("/opt/envdesk")
	require.NoError(t, err)

	res := awaitResult(t, w)
	assert.False(t, res.Succeeded())
	assert.Contains(t, res.Err, "no responders")
	assert.True(t, client.Offline())

	// A later success brings the client back online
	conn.setResponse(SubjectData, validData())
	w, err = client.FetchData("/opt/envdesk")
	require.NoError(t, err)
	res = awaitResult(t, w)
	require.True(t, res.Succeeded())
	assert.False(t, client.Offline())
}

func TestFetchDataServesCachedPayloadWhileOffline(t *testing.T) {
	conn := newFakeConn()
	conn.setResponse(SubjectData, validData())
	client := newTestClient(t, conn)

	w, err := client.FetchData("/opt/envdesk")
	require.NoError(t, err)
	require.True(t, awaitResult(t, w).Succeeded())

	// The daemon goes away; the last good payload still answers the fetch
	conn.setError(SubjectData, fmt.Errorf("no responders"))
	w, err = client.FetchData("/opt/envdesk")
	require.NoError(t, err)

	res := awaitResult(t, w)
	require.True(t, res.Succeeded(), "unexpected error: %s", res.Err)
	assert.Contains(t, res.Output, "environments")
	assert.True(t, client.Offline())

	// A prefix never fetched successfully has nothing cached
	w, err = client.FetchData("/opt/envdesk/envs/other")
	require.NoError(t, err)
	res = awaitResult(t, w)
	assert.False(t, res.Succeeded())
}

func TestFetchDataInvalidPayload(t *testing.T) {
	conn := newFakeConn()
	conn.setResponse(SubjectData, map[string]any{"environments": "not-a-list"})
	client := newTestClient(t, conn)

	w, err := client.FetchData("/opt/envdesk")
	require.NoError(t, err)

	res := awaitResult(t, w)
	assert.False(t, res.Succeeded())
	assert.Contains(t, res.Err, "payload")
}

func TestUpdateIndexRateLimited(t *testing.T) {
	conn := newFakeConn()
	conn.setResponse(SubjectIndex, map[string]any{"status": "ok"})
	client := newTestClient(t, conn)

	w, err := client.UpdateIndex("/opt/envdesk")
	require.NoError(t, err)
	res := awaitResult(t, w)
	assert.True(t, res.Succeeded())

	// Second refresh inside the interval is refused
	_, err = client.UpdateIndex("/opt/envdesk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGenerationTaggingDiscardsStaleWorkers(t *testing.T) {
	conn := newFakeConn()
	conn.setResponse(SubjectData, validData())
	client := newTestClient(t, conn)

	stale, err := client.FetchData("/opt/envdesk")
	require.NoError(t, err)
	awaitResult(t, stale)

	client.Advance()
	fresh, err := client.FetchData("/opt/envdesk")
	require.NoError(t, err)
	awaitResult(t, fresh)

	assert.True(t, client.IsStale(stale), "pre-advance worker must be discarded")
	assert.False(t, client.IsStale(fresh))
}

func TestWorkerDeliversExactlyOnce(t *testing.T) {
	w := newWorker(KindData, "/opt/envdesk", 0)
	w.deliver(Result{Err: "first"})
	w.deliver(Result{Err: "second"})

	res := <-w.Done()
	assert.Equal(t, "first", res.Err)

	select {
	case extra := <-w.Done():
		t.Fatalf("unexpected second delivery: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProgressEventsFlow(t *testing.T) {
	conn := newFakeConn()
	client := newTestClient(t, conn)
	require.NotNil(t, conn.progressCb)

	raw, _ := json.Marshal(ProgressEvent{
		WorkerID: "w1", Action: "install", Progress: 3, MaxValue: 10,
	})
	conn.progressCb(&nats.Msg{Subject: SubjectProgress, Data: raw})

	select {
	case event := <-client.Progress():
		assert.Equal(t, "w1", event.WorkerID)
		assert.Equal(t, "install", event.Action)
		assert.Equal(t, 3.0, event.Progress)
	case <-time.After(time.Second):
		t.Fatal("progress event not delivered")
	}

	// Malformed events are dropped, not fatal
	conn.progressCb(&nats.Msg{Subject: SubjectProgress, Data: []byte("junk")})
}

func TestNewClientNilConnectionFails(t *testing.T) {
	_, err := NewClient(nil, DefaultConfig("/opt/envdesk"), nil)
	require.Error(t, err)
}

func TestStartTwiceFails(t *testing.T) {
	conn := newFakeConn()
	client := newTestClient(t, conn)
	assert.Error(t, client.Start(context.Background()))
}
