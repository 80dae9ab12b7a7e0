// Package worker implements the bounded goroutine pool the server uses
// to dispatch one job per received datagram, so a burst of client
// queries cannot spawn an unbounded number of goroutines.
package worker

import (
	"context"
	"errors"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrel-dns/resolverd/internal/metrics"
)

var (
	// ErrPoolClosed indicates the pool has been shut down.
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrJobTimeout indicates a job timed out waiting for queue space.
	ErrJobTimeout = errors.New("job timed out waiting in queue")

	// ErrQueueFull indicates the job queue has no room and no
	// QueueTimeout is configured to wait for some to open up.
	ErrQueueFull = errors.New("job queue is full")
)

// Job is a unit of work the pool executes on a worker goroutine.
type Job interface {
	Execute(ctx context.Context) error
}

// JobFunc adapts a plain function to Job.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Execute(ctx context.Context) error { return f(ctx) }

// QueryJob is the concrete job the server's accept loop submits: run
// one received datagram through Handle (the server's resolve-and-reply
// pipeline) and, once that's done, give the datagram's pooled buffer
// back via Release. Bundling the datagram and client address into a
// struct rather than closing over them in a JobFunc means the pool
// never needs to care that the payload is network bytes, but the job
// the server actually submits is still a named, inspectable type
// instead of an anonymous closure.
type QueryJob struct {
	Datagram   []byte
	ClientAddr *net.UDPAddr
	Handle     func(ctx context.Context, datagram []byte, clientAddr *net.UDPAddr)
	Release    func()
}

// Execute runs Handle over Datagram/ClientAddr and then Release, if set.
func (j QueryJob) Execute(ctx context.Context) error {
	if j.Release != nil {
		defer j.Release()
	}
	j.Handle(ctx, j.Datagram, j.ClientAddr)
	return nil
}

// Config holds worker pool configuration.
type Config struct {
	// Workers is the number of goroutines draining the queue. Defaults
	// to runtime.NumCPU() * 4.
	Workers int

	// QueueSize bounds how many jobs may wait for a free worker.
	// Defaults to Workers * 100.
	QueueSize int

	// QueueTimeout bounds how long SubmitAsync waits for queue space
	// before giving up with ErrJobTimeout. Zero means SubmitAsync never
	// waits: a full queue is rejected immediately with ErrQueueFull.
	QueueTimeout time.Duration

	// PanicHandler, if set, is called with the recovered value whenever
	// a job panics instead of letting the panic kill a worker goroutine.
	PanicHandler func(interface{})
}

// Pool is a bounded worker pool that prevents goroutine exhaustion
// under a burst of client queries.
type Pool struct {
	workers      int
	queue        chan *jobWrapper
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	closed       atomic.Bool
	queueSize    int
	queueTimeout time.Duration
	panicHandler func(interface{})
}

type jobWrapper struct {
	job Job
	ctx context.Context
}

// NewPool starts cfg.Workers goroutines draining a queue of size
// cfg.QueueSize and returns the running pool.
func NewPool(cfg Config) *Pool {
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU() * 4
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = cfg.Workers * 100
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		workers:      cfg.Workers,
		queue:        make(chan *jobWrapper, cfg.QueueSize),
		ctx:          ctx,
		cancel:       cancel,
		queueSize:    cfg.QueueSize,
		queueTimeout: cfg.QueueTimeout,
		panicHandler: cfg.PanicHandler,
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return

		case wrapper, ok := <-p.queue:
			if !ok {
				return
			}
			p.executeJob(wrapper)
		}
	}
}

// executeJob runs one job with panic recovery and reports its outcome
// to Prometheus; nothing in this package polls its own counters, so
// there is no separate Stats snapshot to keep in sync with reality.
func (p *Pool) executeJob(wrapper *jobWrapper) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			metrics.WorkerJobsTotal.WithLabelValues("panic").Inc()
		}
	}()

	if err := wrapper.job.Execute(wrapper.ctx); err != nil {
		metrics.WorkerJobsTotal.WithLabelValues("failed").Inc()
		return
	}
	metrics.WorkerJobsTotal.WithLabelValues("completed").Inc()
}

// SubmitAsync enqueues job and returns without waiting for it to run.
// With QueueTimeout configured it waits up to that long for room in
// the queue before giving up with ErrJobTimeout; otherwise a full
// queue is rejected immediately with ErrQueueFull.
func (p *Pool) SubmitAsync(ctx context.Context, job Job) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	wrapper := &jobWrapper{job: job, ctx: ctx}

	if p.queueTimeout > 0 {
		timeoutCtx, cancel := context.WithTimeout(ctx, p.queueTimeout)
		defer cancel()

		select {
		case p.queue <- wrapper:
			return nil
		case <-timeoutCtx.Done():
			metrics.WorkerJobsTotal.WithLabelValues("timeout").Inc()
			return ErrJobTimeout
		case <-p.ctx.Done():
			return ErrPoolClosed
		}
	}

	select {
	case p.queue <- wrapper:
		return nil
	default:
		metrics.WorkerJobsTotal.WithLabelValues("rejected").Inc()
		return ErrQueueFull
	}
}

// Close stops accepting new jobs and waits for in-flight ones to
// finish before returning.
func (p *Pool) Close() error {
	if p.closed.Swap(true) {
		return ErrPoolClosed
	}

	close(p.queue)
	p.wg.Wait()
	p.cancel()
	return nil
}

// CloseTimeout behaves like Close but gives up and returns an error if
// in-flight jobs haven't drained within timeout. Workers are still
// signaled to stop via context cancellation either way.
func (p *Pool) CloseTimeout(timeout time.Duration) error {
	if p.closed.Swap(true) {
		return ErrPoolClosed
	}

	close(p.queue)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return errors.New("worker pool: shutdown timeout exceeded")
	}
}

// QueueDepth returns the current number of jobs waiting for a worker,
// sampled by the server into the resolverd_worker_queue_depth gauge.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}
