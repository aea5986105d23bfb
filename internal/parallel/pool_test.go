package parallel

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/raypipe"
)

var _ raypipe.Scheduler = (*WorkerPool)(nil)

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestWorkerPool_CreateZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	expected := runtime.GOMAXPROCS(0)
	if pool.Workers() != expected {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", pool.Workers(), expected)
	}
}

func TestWorkerPool_CreateNegativeWorkers(t *testing.T) {
	pool := NewWorkerPool(-5)
	defer pool.Close()

	if pool.Workers() != runtime.GOMAXPROCS(0) {
		t.Errorf("Workers() = %d, want GOMAXPROCS", pool.Workers())
	}
}

// =============================================================================
// Submit Tests
// =============================================================================

func TestWorkerPool_Submit(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	numTasks := 20
	done := make(chan struct{})

	for i := 0; i < numTasks; i++ {
		err := pool.Submit(func() {
			if counter.Add(1) == int64(numTasks) {
				close(done)
			}
		})
		if err != nil {
			t.Fatalf("Submit() = %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Errorf("timeout waiting for submitted work, counter = %d", counter.Load())
	}
}

func TestWorkerPool_Submit_Nil(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if err := pool.Submit(nil); err != nil {
		t.Errorf("Submit(nil) = %v, want nil", err)
	}
}

// Submit must return immediately even when every worker is busy and the
// queues are far longer than the worker count.
func TestWorkerPool_SubmitNeverBlocks(t *testing.T) {
	pool := NewWorkerPool(2)
	release := make(chan struct{})
	var ran atomic.Int64

	start := time.Now()
	for i := 0; i < 1000; i++ {
		if err := pool.Submit(func() {
			<-release
			ran.Add(1)
		}); err != nil {
			t.Fatalf("Submit() = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("1000 submits took %v", elapsed)
	}
	if q := pool.QueuedWork(); q < 998 {
		t.Errorf("QueuedWork() = %d, want at least 998", q)
	}

	close(release)
	pool.Close()
	if ran.Load() != 1000 {
		t.Errorf("ran %d items, want 1000", ran.Load())
	}
}

func TestWorkerPool_FIFOPerWorker(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	var (
		mu    sync.Mutex
		order []int
	)
	block := make(chan struct{})
	_ = pool.Submit(func() { <-block })
	for i := 0; i < 10; i++ {
		_ = pool.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	close(block)
	waitFor(t, "queued work", func() bool { return pool.Completed() == 11 })

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want submission order", order)
		}
	}
}

func TestWorkerPool_PanicRecovered(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Close()

	_ = pool.Submit(func() { panic("compile crashed") })
	var ran atomic.Bool
	_ = pool.Submit(func() { ran.Store(true) })

	waitFor(t, "work after panic", ran.Load)
	if pool.Panics() != 1 {
		t.Errorf("Panics() = %d, want 1", pool.Panics())
	}
}

// =============================================================================
// ExecuteAll Tests
// =============================================================================

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	numTasks := 100

	work := make([]func(), numTasks)
	for i := range work {
		work[i] = func() {
			counter.Add(1)
		}
	}

	pool.ExecuteAll(work)

	if counter.Load() != int64(numTasks) {
		t.Errorf("counter = %d, want %d", counter.Load(), numTasks)
	}
}

func TestWorkerPool_ExecuteAll_Empty(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	// Should not panic or block
	pool.ExecuteAll(nil)
	pool.ExecuteAll([]func(){nil})
}

// =============================================================================
// Close Tests
// =============================================================================

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(4)

	pool.Close()
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("Pool should not be running after close")
	}
}

func TestWorkerPool_CloseDrainsQueuedWork(t *testing.T) {
	pool := NewWorkerPool(2)

	var counter atomic.Int64
	for i := 0; i < 100; i++ {
		_ = pool.Submit(func() { counter.Add(1) })
	}
	pool.Close()

	if counter.Load() != 100 {
		t.Errorf("Close returned with %d of 100 items run", counter.Load())
	}
	if pool.QueuedWork() != 0 {
		t.Errorf("QueuedWork() = %d after Close", pool.QueuedWork())
	}
}

func TestWorkerPool_OperationsAfterClose(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Close()

	var executed atomic.Bool

	if err := pool.Submit(func() { executed.Store(true) }); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after Close = %v, want ErrPoolClosed", err)
	}
	pool.ExecuteAll([]func(){
		func() { executed.Store(true) },
	})

	time.Sleep(50 * time.Millisecond)
	if executed.Load() {
		t.Error("Work was executed on closed pool")
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestWorkerPool_Concurrent(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	numGoroutines := 10
	numTasksPerGoroutine := 50

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for g := 0; g < numGoroutines; g++ {
		go func() {
			defer wg.Done()
			work := make([]func(), numTasksPerGoroutine)
			for i := range work {
				work[i] = func() {
					counter.Add(1)
				}
			}
			pool.ExecuteAll(work)
		}()
	}
	wg.Wait()

	expected := int64(numGoroutines * numTasksPerGoroutine)
	if counter.Load() != expected {
		t.Errorf("counter = %d, want %d", counter.Load(), expected)
	}
}

func TestWorkerPool_WorkStealing(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	// One long build in front of many short ones: idle workers must steal
	// the short ones instead of waiting behind the long one.
	release := make(chan struct{})
	_ = pool.Submit(func() { <-release })

	var fast atomic.Int64
	for i := 0; i < 40; i++ {
		_ = pool.Submit(func() { fast.Add(1) })
	}
	waitFor(t, "short work", func() bool { return fast.Load() == 40 })
	close(release)
}

func TestWorkerPool_NoGoroutineLeak(t *testing.T) {
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	baseline := runtime.NumGoroutine()

	for i := 0; i < 5; i++ {
		pool := NewWorkerPool(4)
		work := make([]func(), 100)
		for j := range work {
			work[j] = func() {}
		}
		pool.ExecuteAll(work)
		pool.Close()
	}

	runtime.GC()
	time.Sleep(100 * time.Millisecond)

	final := runtime.NumGoroutine()
	if final > baseline+2 {
		t.Errorf("goroutine count: baseline=%d, final=%d (leak detected)", baseline, final)
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkWorkerPool_Submit(b *testing.B) {
	pool := NewWorkerPool(runtime.GOMAXPROCS(0))
	defer pool.Close()

	b.ReportAllocs()
	for b.Loop() {
		done := make(chan struct{})
		_ = pool.Submit(func() {
			close(done)
		})
		<-done
	}
}

func BenchmarkWorkerPool_ExecuteAll(b *testing.B) {
	pool := NewWorkerPool(runtime.GOMAXPROCS(0))
	defer pool.Close()

	work := make([]func(), 100)
	for i := range work {
		work[i] = func() {}
	}

	b.ReportAllocs()
	for b.Loop() {
		pool.ExecuteAll(work)
	}
}
