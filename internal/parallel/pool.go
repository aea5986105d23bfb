package parallel

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("parallel: pool is closed")

// WorkerPool runs background build work on a fixed set of goroutines.
//
// Each worker owns a FIFO queue. Submit appends to the shortest queue and
// never blocks on a full one; pipeline builds are submitted from the frame
// thread, which must not stall. A worker whose queue is empty steals from
// the back of the other queues, so one slow compile does not hold up the
// work queued behind it.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	queues [][]func()
	queued int
	closed bool

	wg sync.WaitGroup

	// running indicates whether the pool is accepting work.
	running atomic.Bool

	completed atomic.Int64
	panics    atomic.Int64
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
// The pool starts immediately and workers begin waiting for work.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &WorkerPool{
		workers: workers,
		queues:  make([][]func(), workers),
	}
	p.cond = sync.NewCond(&p.mu)
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for {
		work, ok := p.next(id)
		if !ok {
			return
		}
		p.run(work)
	}
}

// next blocks until work is available or the pool is closed and drained.
func (p *WorkerPool) next(id int) (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if work := p.pop(id); work != nil {
			return work, true
		}
		if p.closed {
			return nil, false
		}
		p.cond.Wait()
	}
}

// pop takes the oldest item of the worker's own queue, or steals the
// newest item of another queue. p.mu must be held.
func (p *WorkerPool) pop(id int) func() {
	if q := p.queues[id]; len(q) > 0 {
		work := q[0]
		q[0] = nil
		p.queues[id] = q[1:]
		p.queued--
		return work
	}
	for i := range p.workers {
		q := p.queues[i]
		if len(q) == 0 {
			continue
		}
		work := q[len(q)-1]
		q[len(q)-1] = nil
		p.queues[i] = q[:len(q)-1]
		p.queued--
		return work
	}
	return nil
}

func (p *WorkerPool) run(work func()) {
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
		}
		p.completed.Add(1)
	}()
	work()
}

// Submit queues fn on the worker with the shortest queue and returns
// without waiting. A nil fn is ignored. After Close, Submit returns
// ErrPoolClosed and fn never runs.
func (p *WorkerPool) Submit(fn func()) error {
	if fn == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	minIdx := 0
	for i := 1; i < p.workers; i++ {
		if len(p.queues[i]) < len(p.queues[minIdx]) {
			minIdx = i
		}
	}
	p.queues[minIdx] = append(p.queues[minIdx], fn)
	p.queued++
	p.cond.Signal()
	return nil
}

// ExecuteAll submits every work item and waits for all of them to finish.
// Items that cannot be submitted because the pool is closed are skipped.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, fn := range work {
		if fn == nil {
			continue
		}
		wg.Add(1)
		err := p.Submit(func() {
			defer wg.Done()
			fn()
		})
		if err != nil {
			wg.Done()
		}
	}
	wg.Wait()
}

// Close stops accepting work, waits for every queued item to run and then
// stops the workers. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}

	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

// QueuedWork returns the number of work items waiting for a worker.
func (p *WorkerPool) QueuedWork() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queued
}

// Completed returns the number of work items that have finished running,
// including those that panicked.
func (p *WorkerPool) Completed() int64 {
	return p.completed.Load()
}

// Panics returns the number of work items that panicked. The panic is
// recovered so the worker keeps running.
func (p *WorkerPool) Panics() int64 {
	return p.panics.Load()
}
