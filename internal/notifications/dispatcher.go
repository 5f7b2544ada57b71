package notifications

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"inkwell/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultQueueSize = 256
	defaultWorkers   = 2
	jobTimeout       = 30 * time.Second
)

// ErrDispatcherClosed is returned by Shutdown when called twice.
var ErrDispatcherClosed = errors.New("dispatcher already shut down")

// Job is a unit of notification work. Kind labels logs and metrics; PostID,
// when set, is attached to the job's span and log lines.
type Job struct {
	Kind   string
	PostID uint
	Run    func(ctx context.Context) error
}

// Dispatcher runs notification jobs on a fixed worker pool fed by a bounded
// queue. Enqueue never blocks: when the queue is full the job is dropped.
type Dispatcher struct {
	queue   chan Job
	workers int

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewDispatcher creates a dispatcher. Non-positive sizes fall back to defaults.
func NewDispatcher(queueSize, workers int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		queue:   make(chan Job, queueSize),
		workers: workers,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(i)
	}
}

// Enqueue offers a job to the queue and reports whether it was accepted.
func (d *Dispatcher) Enqueue(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		observability.NotificationJobsDropped.WithLabelValues(job.Kind, "closed").Inc()
		observability.GlobalLogger.Warn("notification job dropped", "kind", job.Kind, "reason", "closed")
		return false
	}

	select {
	case d.queue <- job:
		observability.NotificationJobsEnqueued.WithLabelValues(job.Kind).Inc()
		return true
	default:
		observability.NotificationJobsDropped.WithLabelValues(job.Kind, "queue_full").Inc()
		observability.GlobalLogger.Warn("notification job dropped", "kind", job.Kind, "reason", "queue_full")
		return false
	}
}

// Pending returns the number of queued jobs not yet picked up by a worker.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) work(id int) {
	defer d.wg.Done()
	for job := range d.queue {
		d.run(id, job)
	}
}

func (d *Dispatcher) run(worker int, job Job) {
	ctx, cancel := context.WithTimeout(d.baseCtx, jobTimeout)
	defer cancel()

	attrs := []attribute.KeyValue{attribute.Int("worker", worker)}
	if job.PostID != 0 {
		attrs = append(attrs, observability.PostID(job.PostID))
	}
	ctx, finish := observability.StartJob(ctx, job.Kind, attrs...)
	log := observability.NewJobLog(job.Kind, worker, job.PostID)

	var err error
	defer func() {
		var stack []byte
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			stack = debug.Stack()
		}
		if err != nil {
			observability.NotificationJobsFailed.WithLabelValues(job.Kind).Inc()
			log.Failed(ctx, err, stack)
		}
		finish(err)
	}()

	start := time.Now()
	log.Started(ctx)
	if err = job.Run(ctx); err != nil {
		return
	}
	log.Finished(ctx, time.Since(start))
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When ctx
// expires first, in-flight and remaining jobs see a cancelled context.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	started := d.started
	close(d.queue)
	d.mu.Unlock()

	if !started {
		d.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return fmt.Errorf("dispatcher drain: %w", ctx.Err())
	}
}
