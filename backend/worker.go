// Package backend provides the client for the package-manager daemon.
//
// The daemon is reached over NATS request/reply. Every operation is wrapped
// in a Worker that reports completion as a result value: the Result carries
// the decoded output mapping plus an error string, and an empty error string
// means success. Fetch I/O runs on a bounded worker pool so it never blocks
// the shell goroutine, and workers are tagged with a monotonically increasing
// generation so completions of superseded fetches can be discarded.
package backend

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the operation a worker performs
type Kind string

// Worker kinds
const (
	KindData  Kind = "data"  // Full environment/package data fetch
	KindIndex Kind = "index" // Package index and metadata refresh
)

// Result is the completion payload of a worker.
// Err carries the result-value error contract: empty means success and Output
// is usable. Transport failures and payload validation failures are folded
// into Err the same way as daemon-reported errors.
type Result struct {
	Output map[string]any
	Err    string
}

// Succeeded reports whether the operation completed cleanly
func (r Result) Succeeded() bool {
	return r.Err == ""
}

// Worker is one asynchronous backend operation
type Worker struct {
	ID         string
	Kind       Kind
	Prefix     string
	Generation uint64
	Started    time.Time

	done     chan Result
	deliver1 sync.Once
}

func newWorker(kind Kind, prefix string, generation uint64) *Worker {
	return &Worker{
		ID:         uuid.NewString(),
		Kind:       kind,
		Prefix:     prefix,
		Generation: generation,
		Started:    time.Now(),
		done:       make(chan Result, 1),
	}
}

// Done returns the channel on which the single completion Result is delivered
func (w *Worker) Done() <-chan Result {
	return w.done
}

// deliver hands the result to the consumer, at most once. The channel stays
// open: a closed channel would hand later receivers a zero Result, which the
// result-value contract reads as success.
func (w *Worker) deliver(res Result) {
	w.deliver1.Do(func() {
		w.done <- res
	})
}

// ProgressEvent mirrors the daemon's partial output during long operations
// (package fetch/install progress)
type ProgressEvent struct {
	WorkerID string  `json:"worker_id"`
	Action   string  `json:"action"`
	Fetch    string  `json:"fetch"`
	Progress float64 `json:"progress"`
	MaxValue float64 `json:"maxval"`
}
