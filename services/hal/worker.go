// services/hal/worker.go
package hal

import (
	"context"
	"time"

	"github.com/ftrias/MCP4551/bus"
	"github.com/ftrias/MCP4551/errcode"
	"github.com/ftrias/MCP4551/types"
)

// ErrUnsupported is returned by adaptors for verbs they do not implement.
var ErrUnsupported error = errcode.Unsupported

type jobKind uint8

const (
	jobInit jobKind = iota
	jobCollect
	jobControl
)

// job is one unit of bus work. Jobs on the same bus never overlap.
type job struct {
	kind    jobKind
	id      string
	adaptor Adaptor

	// control only
	capKind types.Kind
	verb    string
	payload any
	req     *bus.Message
}

// Result carries a finished job back to the service loop.
type Result struct {
	ID     string
	Kind   jobKind
	Sample Sample
	Value  any
	Verb   string
	Req    *bus.Message
	Err    error
}

type busWorker struct {
	cfg  WorkerConfig
	jobs chan job
	sink chan<- Result
}

func newBusWorker(cfg WorkerConfig, sink chan<- Result) *busWorker {
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 250 * time.Millisecond
	}
	if cfg.InputQueueSize <= 0 {
		cfg.InputQueueSize = 16
	}
	return &busWorker{
		cfg:  cfg,
		jobs: make(chan job, cfg.InputQueueSize),
		sink: sink,
	}
}

// Submit queues j without blocking. Control and init jobs get a short grace
// period when the queue is full; polls are simply dropped.
func (w *busWorker) Submit(j job) bool {
	select {
	case w.jobs <- j:
		return true
	default:
		if j.kind != jobCollect {
			select {
			case w.jobs <- j:
				return true
			case <-time.After(5 * time.Millisecond):
			}
		}
		return false
	}
}

func (w *busWorker) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case j := <-w.jobs:
				w.emit(ctx, w.run(ctx, j))
			}
		}
	}()
}

func (w *busWorker) run(ctx context.Context, j job) Result {
	jctx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	r := Result{ID: j.id, Kind: j.kind, Verb: j.verb, Req: j.req}
	switch j.kind {
	case jobInit:
		r.Err = j.adaptor.Init(jctx)
	case jobCollect:
		r.Sample, r.Err = j.adaptor.Collect(jctx)
	case jobControl:
		r.Value, r.Err = j.adaptor.Control(j.capKind, j.verb, j.payload)
	}
	return r
}

func (w *busWorker) emit(ctx context.Context, r Result) {
	select {
	case w.sink <- r:
	case <-ctx.Done():
	}
}
