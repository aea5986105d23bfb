package raypipe

import (
	"context"
	"fmt"
	"sync"
)

// DeferredState is the observable state of a Deferred value.
type DeferredState uint8

const (
	// Pending means the work has not finished.
	Pending DeferredState = iota

	// Ready means the work finished and produced a value.
	Ready

	// Failed means the work finished with an error.
	Failed
)

// String returns the state name.
func (s DeferredState) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Ready:
		return "Ready"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Scheduler runs work in the background. Submit must not block the
// caller; it returns an error when the work cannot be accepted.
type Scheduler interface {
	Submit(fn func()) error
}

// GoScheduler runs every submitted function on its own goroutine.
type GoScheduler struct{}

// Submit starts fn on a new goroutine.
func (GoScheduler) Submit(fn func()) error {
	go fn()
	return nil
}

// Deferred is a handle to background work. Poll never blocks; once the
// value is Ready or Failed it never changes.
type Deferred[T any] struct {
	mu      sync.Mutex
	state   DeferredState
	value   T
	err     error
	done    chan struct{}
	release func(T)
}

// Spawn submits fn to s and returns a handle to its result. A panic in fn
// is recovered and reported as a failure. If s rejects the work the
// returned value is already Failed.
func Spawn[T any](s Scheduler, fn func() (T, error)) *Deferred[T] {
	d := &Deferred[T]{done: make(chan struct{})}
	err := s.Submit(func() {
		var (
			v   T
			err error
		)
		defer func() {
			if r := recover(); r != nil {
				var zero T
				d.complete(zero, fmt.Errorf("raypipe: build task panicked: %v", r))
				return
			}
			d.complete(v, err)
		}()
		v, err = fn()
	})
	if err != nil {
		var zero T
		d.complete(zero, fmt.Errorf("%w: %w", ErrSchedulerClosed, err))
	}
	return d
}

// Resolved returns a Deferred that is already Ready with v.
func Resolved[T any](v T) *Deferred[T] {
	d := &Deferred[T]{done: make(chan struct{})}
	d.complete(v, nil)
	return d
}

// Rejected returns a Deferred that is already Failed with err.
func Rejected[T any](err error) *Deferred[T] {
	d := &Deferred[T]{done: make(chan struct{})}
	var zero T
	d.complete(zero, err)
	return d
}

func (d *Deferred[T]) complete(v T, err error) {
	d.mu.Lock()
	if d.state != Pending {
		d.mu.Unlock()
		return
	}
	if err != nil {
		d.state = Failed
		d.err = err
	} else {
		d.state = Ready
		d.value = v
	}
	release := d.release
	d.release = nil
	close(d.done)
	d.mu.Unlock()

	if release != nil && err == nil {
		release(v)
	}
}

// Poll returns the current state together with the value or error.
func (d *Deferred[T]) Poll() (T, DeferredState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.state, d.err
}

// State returns the current state.
func (d *Deferred[T]) State() DeferredState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// TryGet returns the value if the work finished successfully.
func (d *Deferred[T]) TryGet() (T, bool) {
	v, state, _ := d.Poll()
	return v, state == Ready
}

// Err returns the failure, or nil while pending or after success.
func (d *Deferred[T]) Err() error {
	_, _, err := d.Poll()
	return err
}

// Done returns a channel that is closed once the work finishes.
func (d *Deferred[T]) Done() <-chan struct{} { return d.done }

// Wait blocks until the work finishes or ctx is done. It exists for tools
// and tests; the frame path only ever polls.
func (d *Deferred[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		v, _, err := d.Poll()
		return v, err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// discard hands the value to release once it is available. A value that
// is already Ready is released immediately; a failure releases nothing.
// discard is used when the owner drops a handle whose work may still be
// running.
func (d *Deferred[T]) discard(release func(T)) {
	d.mu.Lock()
	switch d.state {
	case Pending:
		d.release = release
		d.mu.Unlock()
	case Ready:
		v := d.value
		d.mu.Unlock()
		release(v)
	default:
		d.mu.Unlock()
	}
}
