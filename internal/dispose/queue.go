// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package dispose defers destruction of GPU objects until the frames that
// may still reference them have retired.
package dispose

import (
	"sync"

	"github.com/gogpu/raypipe"
)

// DefaultFramesInFlight matches a triple-buffered swapchain.
const DefaultFramesInFlight = 3

type garbage struct {
	res   raypipe.Resource
	death uint64
}

// Queue is a frame-serial deferred destruction queue. A resource handed to
// DisposeWhenSafe during frame N is destroyed by the first Advance that
// moves past frame N+framesInFlight.
//
// Build tasks dispose from worker goroutines, so Queue is safe for
// concurrent use. Resources are destroyed on the goroutine that calls
// Advance or Flush.
type Queue struct {
	mu             sync.Mutex
	frame          uint64
	framesInFlight uint64
	items          []garbage
	destroyed      uint64
}

var _ raypipe.Disposer = (*Queue)(nil)

// New creates a queue that keeps resources alive for framesInFlight
// frames. Values below 1 use DefaultFramesInFlight.
func New(framesInFlight int) *Queue {
	if framesInFlight < 1 {
		framesInFlight = DefaultFramesInFlight
	}
	return &Queue{framesInFlight: uint64(framesInFlight)}
}

// DisposeWhenSafe schedules r for destruction. A nil resource is ignored.
func (q *Queue) DisposeWhenSafe(r raypipe.Resource) {
	if r == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, garbage{res: r, death: q.frame})
	q.mu.Unlock()
}

// Advance ends the current frame and destroys every resource whose frames
// have retired. It returns the number of resources destroyed.
func (q *Queue) Advance() int {
	q.mu.Lock()
	q.frame++
	var dead []raypipe.Resource
	n := 0
	for _, g := range q.items {
		if q.frame > g.death+q.framesInFlight {
			dead = append(dead, g.res)
			continue
		}
		q.items[n] = g
		n++
	}
	clear(q.items[n:])
	q.items = q.items[:n]
	q.destroyed += uint64(len(dead))
	frame := q.frame
	q.mu.Unlock()

	for _, r := range dead {
		r.Destroy()
	}
	if len(dead) > 0 {
		raypipe.Logger().Debug("disposed retired pipeline objects", "count", len(dead), "frame", frame)
	}
	return len(dead)
}

// Flush destroys every queued resource regardless of age. Call it once the
// device is idle, e.g. at shutdown.
func (q *Queue) Flush() int {
	q.mu.Lock()
	dead := q.items
	q.items = nil
	q.destroyed += uint64(len(dead))
	q.mu.Unlock()

	for _, g := range dead {
		g.res.Destroy()
	}
	return len(dead)
}

// Pending returns the number of resources waiting for destruction.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Frame returns the current frame serial.
func (q *Queue) Frame() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.frame
}

// Destroyed returns the total number of resources destroyed so far.
func (q *Queue) Destroyed() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.destroyed
}
