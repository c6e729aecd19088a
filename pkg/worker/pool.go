// Package worker provides a bounded generic worker pool.
//
// The backend uses it to keep daemon I/O off the shell goroutine. Submit
// never blocks; when the queue is saturated the item is dropped with
// ErrQueueFull and the caller decides whether that matters. Stop drains
// whatever is queued, bounded by a timeout.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/envdesk/envdesk/metric"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 64
)

// Pool runs a fixed set of goroutines over a bounded queue of T
type Pool[T any] struct {
	workers   int
	queueSize int
	process   func(context.Context, T) error

	queue chan T
	wg    sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	registry *metric.MetricsRegistry
	prefix   string
	gauges   *poolGauges
}

// poolGauges holds the optional Prometheus instrumentation
type poolGauges struct {
	depth     prometheus.Gauge
	submitted prometheus.Counter
	processed prometheus.Counter
	failed    prometheus.Counter
	dropped   prometheus.Counter
	duration  *prometheus.HistogramVec
}

// Option configures a Pool
type Option[T any] func(*Pool[T])

// WithMetricsRegistry registers pool metrics under prefix
func WithMetricsRegistry[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(p *Pool[T]) {
		p.registry = registry
		p.prefix = prefix
	}
}

// NewPool creates a pool of workers goroutines over a queue of queueSize.
// Non-positive values fall back to defaults. A nil process function is a
// programming error and panics.
func NewPool[T any](workers, queueSize int, process func(context.Context, T) error, opts ...Option[T]) *Pool[T] {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if process == nil {
		panic(ErrNilProcessor)
	}

	p := &Pool[T]{
		workers:   workers,
		queueSize: queueSize,
		process:   process,
		queue:     make(chan T, queueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry != nil && p.prefix != "" {
		p.registerGauges()
	}
	return p
}

func (p *Pool[T]) registerGauges() {
	g := &poolGauges{
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: p.prefix + "_queue_depth",
			Help: "Items waiting in the pool queue",
		}),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: p.prefix + "_submitted_total",
			Help: "Items accepted by Submit",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: p.prefix + "_processed_total",
			Help: "Items handed to the process function",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: p.prefix + "_failed_total",
			Help: "Items whose process function returned an error",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: p.prefix + "_dropped_total",
			Help: "Items refused because the queue was full",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    p.prefix + "_processing_duration_seconds",
			Help:    "Process function latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"status"}),
	}

	const subsystem = "worker_pool"
	_ = p.registry.RegisterGauge(subsystem, p.prefix+"_queue_depth", g.depth)
	_ = p.registry.RegisterCounter(subsystem, p.prefix+"_submitted_total", g.submitted)
	_ = p.registry.RegisterCounter(subsystem, p.prefix+"_processed_total", g.processed)
	_ = p.registry.RegisterCounter(subsystem, p.prefix+"_failed_total", g.failed)
	_ = p.registry.RegisterCounter(subsystem, p.prefix+"_dropped_total", g.dropped)
	_ = p.registry.RegisterHistogramVec(subsystem, p.prefix+"_processing_duration_seconds", g.duration)
	p.gauges = g
}

// Start launches the worker goroutines. They run until ctx is cancelled or
// the queue is closed by Stop.
func (p *Pool[T]) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrPoolAlreadyStarted
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	p.started = true
	return nil
}

// Submit queues one item without blocking
func (p *Pool[T]) Submit(item T) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrPoolNotStarted
	}
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- item:
		p.submitted.Add(1)
		if p.gauges != nil {
			p.gauges.submitted.Inc()
			p.gauges.depth.Set(float64(len(p.queue)))
		}
		return nil
	default:
		p.dropped.Add(1)
		if p.gauges != nil {
			p.gauges.dropped.Inc()
		}
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for the workers to drain it, up to timeout
func (p *Pool[T]) Stop(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started || p.stopped {
		return nil
	}
	close(p.queue)

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-drained:
		p.stopped = true
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

// PoolStats is a snapshot of pool counters
type PoolStats struct {
	Workers    int
	QueueSize  int
	QueueDepth int
	Submitted  int64
	Processed  int64
	Failed     int64
	Dropped    int64
}

// Stats returns a snapshot of the pool counters
func (p *Pool[T]) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		QueueSize:  p.queueSize,
		QueueDepth: len(p.queue),
		Submitted:  p.submitted.Load(),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
	}
}

// run is one worker goroutine
func (p *Pool[T]) run(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.queue:
			if !ok {
				return
			}
			p.handle(ctx, item)
		}
	}
}

func (p *Pool[T]) handle(ctx context.Context, item T) {
	start := time.Now()
	err := p.process(ctx, item)

	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
	}

	if p.gauges != nil {
		p.gauges.processed.Inc()
		status := "success"
		if err != nil {
			p.gauges.failed.Inc()
			status = "error"
		}
		p.gauges.duration.WithLabelValues(status).Observe(time.Since(start).Seconds())
		p.gauges.depth.Set(float64(len(p.queue)))
	}
}
