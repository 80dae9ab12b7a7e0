package worker

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool(t *testing.T) {
	pool := NewPool(Config{Workers: 4, QueueSize: 100})
	defer pool.Close()

	if pool.workers != 4 {
		t.Errorf("workers = %d, want 4", pool.workers)
	}
	if pool.queueSize != 100 {
		t.Errorf("queueSize = %d, want 100", pool.queueSize)
	}
}

func TestNewPool_Defaults(t *testing.T) {
	pool := NewPool(Config{})
	defer pool.Close()

	if pool.workers == 0 {
		t.Error("should have default workers")
	}
	if pool.queueSize == 0 {
		t.Error("should have default queue size")
	}
}

func TestSubmitAsync(t *testing.T) {
	pool := NewPool(Config{Workers: 2, QueueSize: 10})
	defer pool.Close()

	var executed atomic.Bool
	job := JobFunc(func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})

	if err := pool.SubmitAsync(context.Background(), job); err != nil {
		t.Fatalf("SubmitAsync() error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if !executed.Load() {
		t.Error("async job was not executed")
	}
}

func TestSubmitAsync_JobErrorDoesNotPropagate(t *testing.T) {
	pool := NewPool(Config{Workers: 2, QueueSize: 10})
	defer pool.Close()

	job := JobFunc(func(ctx context.Context) error {
		return errors.New("job failed")
	})

	// SubmitAsync only reports enqueue failures; the job's own error is
	// observed through resolverd_worker_jobs_total, not a return value.
	if err := pool.SubmitAsync(context.Background(), job); err != nil {
		t.Fatalf("SubmitAsync() error: %v", err)
	}
}

func TestSubmitAsync_Panic(t *testing.T) {
	panicCaught := make(chan interface{}, 1)
	pool := NewPool(Config{
		Workers:   2,
		QueueSize: 10,
		PanicHandler: func(r interface{}) {
			panicCaught <- r
		},
	})
	defer pool.Close()

	job := JobFunc(func(ctx context.Context) error {
		panic("test panic")
	})

	if err := pool.SubmitAsync(context.Background(), job); err != nil {
		t.Fatalf("SubmitAsync() error: %v", err)
	}

	select {
	case r := <-panicCaught:
		if r != "test panic" {
			t.Errorf("panic value = %v, want %q", r, "test panic")
		}
	case <-time.After(time.Second):
		t.Error("panic handler was not called")
	}
}

func TestSubmitAsync_QueueFullWithoutTimeout(t *testing.T) {
	pool := NewPool(Config{Workers: 1, QueueSize: 1})
	defer pool.Close()

	block := make(chan struct{})
	blocker := JobFunc(func(ctx context.Context) error {
		<-block
		return nil
	})
	if err := pool.SubmitAsync(context.Background(), blocker); err != nil {
		t.Fatalf("SubmitAsync() error: %v", err)
	}

	filler := JobFunc(func(ctx context.Context) error {
		<-block
		return nil
	})
	if err := pool.SubmitAsync(context.Background(), filler); err != nil {
		t.Fatalf("SubmitAsync() error: %v", err)
	}

	err := pool.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error { return nil }))
	if err != ErrQueueFull {
		t.Errorf("SubmitAsync() error = %v, want ErrQueueFull", err)
	}
	close(block)
}

func TestSubmitAsync_QueueTimeout(t *testing.T) {
	pool := NewPool(Config{
		Workers:      1,
		QueueSize:    1,
		QueueTimeout: 30 * time.Millisecond,
	})
	defer pool.Close()

	block := make(chan struct{})
	defer close(block)

	blocker := JobFunc(func(ctx context.Context) error { <-block; return nil })
	pool.SubmitAsync(context.Background(), blocker)
	pool.SubmitAsync(context.Background(), blocker)

	err := pool.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error { return nil }))
	if err != ErrJobTimeout {
		t.Errorf("SubmitAsync() error = %v, want ErrJobTimeout", err)
	}
}

func TestSubmitAsync_AfterClose(t *testing.T) {
	pool := NewPool(Config{Workers: 2, QueueSize: 10})
	if err := pool.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	err := pool.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error { return nil }))
	if err != ErrPoolClosed {
		t.Errorf("SubmitAsync() after close error = %v, want ErrPoolClosed", err)
	}
}

func TestClose(t *testing.T) {
	pool := NewPool(Config{Workers: 2, QueueSize: 10})

	var completed atomic.Int64
	for i := 0; i < 5; i++ {
		pool.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			completed.Add(1)
			return nil
		}))
	}

	if err := pool.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if completed.Load() != 5 {
		t.Errorf("completed = %d, want 5", completed.Load())
	}
}

func TestCloseTimeout(t *testing.T) {
	pool := NewPool(Config{Workers: 1, QueueSize: 10})

	pool.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	}))

	if err := pool.CloseTimeout(10 * time.Millisecond); err == nil {
		t.Error("CloseTimeout() should return error on timeout")
	}
}

func TestConcurrency(t *testing.T) {
	pool := NewPool(Config{Workers: 4, QueueSize: 100})
	defer pool.Close()

	const jobs = 100
	var completed atomic.Uint64

	var wg sync.WaitGroup
	wg.Add(jobs)
	for i := 0; i < jobs; i++ {
		go func() {
			defer wg.Done()
			job := JobFunc(func(ctx context.Context) error {
				time.Sleep(time.Millisecond)
				completed.Add(1)
				return nil
			})
			if err := pool.SubmitAsync(context.Background(), job); err != nil {
				t.Errorf("SubmitAsync() error: %v", err)
			}
		}()
	}
	wg.Wait()

	time.Sleep(50 * time.Millisecond)
	if completed.Load() != jobs {
		t.Errorf("completed = %d, want %d", completed.Load(), jobs)
	}
}

func TestQueueDepth(t *testing.T) {
	pool := NewPool(Config{Workers: 1, QueueSize: 100})
	defer pool.Close()

	block := make(chan struct{})
	defer close(block)
	pool.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error { <-block; return nil }))

	for i := 0; i < 10; i++ {
		pool.SubmitAsync(context.Background(), JobFunc(func(ctx context.Context) error { return nil }))
	}

	depth := pool.QueueDepth()
	if depth == 0 {
		t.Error("queue depth should be non-zero")
	}
	if depth > 10 {
		t.Errorf("queue depth = %d, seems too high", depth)
	}
}

func TestQueryJob_ExecuteRunsHandleAndRelease(t *testing.T) {
	datagram := []byte{1, 2, 3}
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5353}

	var gotDatagram []byte
	var gotAddr *net.UDPAddr
	released := false

	job := QueryJob{
		Datagram:   datagram,
		ClientAddr: addr,
		Handle: func(ctx context.Context, d []byte, a *net.UDPAddr) {
			gotDatagram = d
			gotAddr = a
		},
		Release: func() { released = true },
	}

	if err := job.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if string(gotDatagram) != string(datagram) {
		t.Errorf("Handle saw datagram %v, want %v", gotDatagram, datagram)
	}
	if gotAddr != addr {
		t.Error("Handle saw wrong client address")
	}
	if !released {
		t.Error("Release was not called")
	}
}

func TestQueryJob_ExecuteWithoutRelease(t *testing.T) {
	job := QueryJob{
		Datagram: []byte{9},
		Handle:   func(ctx context.Context, d []byte, a *net.UDPAddr) {},
	}
	if err := job.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
}

func BenchmarkSubmitAsync(b *testing.B) {
	pool := NewPool(Config{Workers: 4, QueueSize: 1000})
	defer pool.Close()

	job := JobFunc(func(ctx context.Context) error { return nil })

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.SubmitAsync(context.Background(), job)
	}
}

func BenchmarkSubmitAsyncConcurrent(b *testing.B) {
	pool := NewPool(Config{Workers: 4, QueueSize: 10000})
	defer pool.Close()

	job := JobFunc(func(ctx context.Context) error { return nil })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			pool.SubmitAsync(context.Background(), job)
		}
	})
}
