package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/time/rate"

	"github.com/envdesk/envdesk/errors"
	"github.com/envdesk/envdesk/metric"
	"github.com/envdesk/envdesk/pkg/cache"
	"github.com/envdesk/envdesk/pkg/worker"
)

// Subjects the daemon listens and publishes on
const (
	SubjectData     = "envdesk.daemon.data"
	SubjectIndex    = "envdesk.daemon.index"
	SubjectProgress = "envdesk.daemon.progress"
)

// Conn is the slice of the NATS connection the client uses.
// *nats.Conn satisfies it; tests substitute a fake.
type Conn interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Config holds backend client settings
type Config struct {
	RootPrefix     string        // Base environment prefix reported by the daemon
	RequestTimeout time.Duration // Per-request deadline
	Workers        int           // Fetch pool size
	QueueSize      int           // Fetch pool queue capacity
	IndexInterval  time.Duration // Minimum spacing between index refreshes
}

// DefaultConfig returns sensible defaults for the backend client
func DefaultConfig(rootPrefix string) Config {
	return Config{
		RootPrefix:     rootPrefix,
		RequestTimeout: 30 * time.Second,
		Workers:        2,
		QueueSize:      16,
		IndexInterval:  15 * time.Minute,
	}
}

// fetchTask pairs a worker with the request it executes
type fetchTask struct {
	worker  *Worker
	subject string
}

// Client talks to the package-manager daemon over NATS request/reply
type Client struct {
	conn    Conn
	cfg     Config
	logger  *slog.Logger
	metrics *metric.MetricsRegistry

	schema   *gojsonschema.Schema
	pool     *worker.Pool[fetchTask]
	lastGood *cache.TTLCache[map[string]any]

	generation atomic.Uint64
	offline    atomic.Bool

	progressCh  chan ProgressEvent
	progressSub *nats.Subscription

	limiter *rate.Limiter

	lifecycleMu sync.Mutex
	started     bool
}

// Option configures a Client
type Option func(*Client)

// WithMetrics enables backend metrics
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(c *Client) {
		c.metrics = registry
	}
}

// NewClient creates a backend client over an established NATS connection
func NewClient(conn Conn, cfg Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if conn == nil {
		return nil, errors.WrapInvalid(errors.ErrNoConnection, "Client", "NewClient", "connection validation")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.IndexInterval <= 0 {
		cfg.IndexInterval = 15 * time.Minute
	}

	schema, err := compileDataSchema()
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:       conn,
		cfg:        cfg,
		logger:     logger.With("subsystem", "backend"),
		schema:     schema,
		progressCh: make(chan ProgressEvent, 64),
		limiter:    rate.NewLimiter(rate.Every(cfg.IndexInterval), 1),
		lastGood:   cache.NewTTL[map[string]any](24*time.Hour, time.Hour),
	}

	for _, opt := range opts {
		opt(c)
	}

	var poolOpts []worker.Option[fetchTask]
	if c.metrics != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[fetchTask](c.metrics, "backend"))
	}
	c.pool = worker.NewPool[fetchTask](cfg.Workers, cfg.QueueSize, c.process, poolOpts...)

	return c, nil
}

// Start starts the fetch pool and subscribes to daemon progress events
func (c *Client) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.started {
		return errors.ErrAlreadyStarted
	}

	if err := c.pool.Start(ctx); err != nil {
		return errors.Wrap(err, "Client", "Start", "fetch pool start")
	}

	sub, err := c.conn.Subscribe(SubjectProgress, c.onProgress)
	if err != nil {
		return errors.WrapTransient(err, "Client", "Start", "progress subscription")
	}
	c.progressSub = sub

	c.started = true
	return nil
}

// Stop drains the fetch pool and releases the progress subscription
func (c *Client) Stop(timeout time.Duration) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if !c.started {
		return nil
	}
	c.started = false

	if c.progressSub != nil {
		_ = c.progressSub.Unsubscribe()
		c.progressSub = nil
	}
	c.lastGood.Close()

	return c.pool.Stop(timeout)
}

// RootPrefix returns the base environment prefix
func (c *Client) RootPrefix() string {
	return c.cfg.RootPrefix
}

// Offline reports whether the last daemon exchange failed at transport level
func (c *Client) Offline() bool {
	return c.offline.Load()
}

// Generation returns the current fetch generation
func (c *Client) Generation() uint64 {
	return c.generation.Load()
}

// Advance bumps the fetch generation, superseding all in-flight workers.
// Called when the shell issues a corrective re-fetch so late completions of
// the replaced fetch can be recognized and discarded.
func (c *Client) Advance() uint64 {
	return c.generation.Add(1)
}

// IsStale reports whether a worker's completion belongs to a superseded
// generation and should be discarded
func (c *Client) IsStale(w *Worker) bool {
	if w.Generation >= c.generation.Load() {
		return false
	}
	if c.metrics != nil {
		c.metrics.CoreMetrics().StaleCompletions.Inc()
	}
	c.logger.Debug("discarding stale completion",
		"worker", w.ID, "generation", w.Generation, "current", c.generation.Load())
	return true
}

// Progress returns the channel of daemon progress events
func (c *Client) Progress() <-chan ProgressEvent {
	return c.progressCh
}

// FetchData starts an asynchronous environment/package data fetch for prefix.
// The returned worker delivers exactly one Result on Done().
func (c *Client) FetchData(prefix string) (*Worker, error) {
	return c.submit(KindData, prefix, SubjectData)
}

// UpdateIndex starts an asynchronous package index refresh for prefix.
// Refreshes are rate limited; a refused refresh is reported as an error so
// the caller can skip quietly.
func (c *Client) UpdateIndex(prefix string) (*Worker, error) {
	if !c.limiter.Allow() {
		return nil, errors.WrapTransient(
			fmt.Errorf("index refresh rate limited (interval %s)", c.cfg.IndexInterval),
			"Client", "UpdateIndex", "rate limit")
	}
	return c.submit(KindIndex, prefix, SubjectIndex)
}

// submit creates a worker for the operation and queues it on the fetch pool
func (c *Client) submit(kind Kind, prefix, subject string) (*Worker, error) {
	w := newWorker(kind, prefix, c.generation.Load())

	if err := c.pool.Submit(fetchTask{worker: w, subject: subject}); err != nil {
		return nil, errors.WrapTransient(err, "Client", "submit", "fetch pool submit")
	}

	c.logger.Debug("worker submitted",
		"worker", w.ID, "kind", kind, "prefix", prefix, "generation", w.Generation)
	return w, nil
}

// process executes one task on a pool worker goroutine.
// All failure modes collapse into the Result's Err field; process itself only
// returns an error for pool statistics.
func (c *Client) process(ctx context.Context, task fetchTask) error {
	w := task.worker
	res := c.exchange(ctx, w, task.subject)

	status := "success"
	if !res.Succeeded() {
		status = "error"
	}
	if c.metrics != nil {
		m := c.metrics.CoreMetrics()
		m.FetchesTotal.WithLabelValues(string(w.Kind), status).Inc()
		m.FetchDuration.WithLabelValues(string(w.Kind)).Observe(time.Since(w.Started).Seconds())
	}

	w.deliver(res)
	if !res.Succeeded() {
		return errors.ErrFetchFailed
	}
	return nil
}

// exchange performs the request/reply round trip and payload validation
func (c *Client) exchange(ctx context.Context, w *Worker, subject string) Result {
	request, err := json.Marshal(map[string]string{
		"prefix":    w.Prefix,
		"worker_id": w.ID,
	})
	if err != nil {
		return Result{Err: fmt.Sprintf("request encode: %v", err)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	sent := time.Now()
	msg, err := c.conn.RequestWithContext(reqCtx, subject, request)
	if err != nil {
		c.setOffline(true)
		if w.Kind == KindData {
			if cached, ok := c.lastGood.Get(w.Prefix); ok {
				c.logger.Warn("serving cached data while offline",
					"prefix", w.Prefix, "worker", w.ID)
				return Result{Output: cached}
			}
		}
		return Result{Err: fmt.Sprintf("daemon request: %v", err)}
	}
	c.setOffline(false)
	if c.metrics != nil {
		c.metrics.CoreMetrics().BackendRTT.Set(time.Since(sent).Seconds())
	}

	var output map[string]any
	if err := json.Unmarshal(msg.Data, &output); err != nil {
		return Result{Err: fmt.Sprintf("daemon response decode: %v", err)}
	}

	// Daemon-reported failure travels inside the payload
	if daemonErr, _ := output["error"].(string); daemonErr != "" {
		return Result{Output: output, Err: daemonErr}
	}

	if w.Kind == KindData {
		if err := validateData(c.schema, output); err != nil {
			return Result{Output: output, Err: err.Error()}
		}
		c.lastGood.Set(w.Prefix, output)
	}

	return Result{Output: output}
}

// setOffline updates the offline flag and connection gauge
func (c *Client) setOffline(offline bool) {
	was := c.offline.Swap(offline)
	if was != offline {
		if offline {
			c.logger.Warn("backend unreachable, switching to offline mode")
		} else {
			c.logger.Info("backend reachable")
		}
	}
	if c.metrics != nil {
		v := 1.0
		if offline {
			v = 0.0
		}
		c.metrics.CoreMetrics().BackendConnected.Set(v)
	}
}

// onProgress decodes a daemon progress message onto the progress channel.
// Events are dropped rather than blocking the NATS callback.
func (c *Client) onProgress(msg *nats.Msg) {
	var event ProgressEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logger.Debug("malformed progress event dropped", "error", err)
		return
	}

	select {
	case c.progressCh <- event:
	default:
		c.logger.Debug("progress channel full, event dropped", "worker", event.WorkerID)
	}
}
