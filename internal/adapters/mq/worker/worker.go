package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/dashboard-api/internal/domain/model"
	"github.com/okian/dashboard-api/pkg/logger"
	"github.com/okian/dashboard-api/pkg/metrics"
)

const defaultWorkerMultiplier = 2

// Event is what workers read off the queue.
type Event = model.UserEvent

// Recorder persists a single event.
type Recorder interface {
	Record(ctx context.Context, e model.UserEvent) (bool, error)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue() <-chan Event
	Close() error
}

// InMemoryWorker records events read from a queue until the queue is
// closed and drained or its context is cancelled.
type InMemoryWorker struct {
	queue     Queue
	recorder  Recorder
	name      string
	onFailure FailureHook
	onSuccess SuccessHook

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		recorder: recorder,
		name:     "worker",
		done:     make(chan struct{}),
		logger:   logger.Get(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes events until the queue channel closes or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := w.process(ctx, e); err != nil {
				w.logger.Error(ctx, "error recording event", logger.String("event_id", e.EventID), logger.Error(err))
				if w.onFailure != nil {
					w.onFailure(ctx, e, err)
				}
				continue
			}
			if w.onSuccess != nil {
				w.onSuccess(ctx, e)
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker) process(ctx context.Context, e Event) error { //nolint:gocritic // events travel by value
	start := time.Now()
	defer func() {
		metrics.RecordRecordLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	created, err := w.recorder.Record(ctx, e)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "record_error")
		return fmt.Errorf("record event %s: %w", e.EventID, err)
	}
	if created {
		metrics.RecordEventRecorded(string(e.Type))
	} else {
		metrics.RecordEventDuplicate()
	}
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one selects a
// multiple of the CPU count.
func NewPool(workerCount int, queue Queue, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(queue, recorder, workerOpts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for workers to drain it. It returns an
// error if ctx expires first.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
