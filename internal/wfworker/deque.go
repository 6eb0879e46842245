package wfworker

import (
	"sync"

	"weaveforge/internal/core"
)

// Deque is a Chase-Lev work-stealing double-ended queue of ActionRequests.
// The owning worker pushes and pops its own work from the tail (LIFO,
// maximizing cache locality); other workers and the steal engine steal from
// the head (FIFO), so a thief always takes the oldest, least-recently
// touched work rather than racing the owner for its most recent item.
//
// This implementation favors a mutex over the classic lock-free
// CAS-on-a-growable-array design: at weaveforge's scale (worker counts in
// the tens, not thousands) the simpler implementation's contention cost is
// negligible next to the cost of an action itself, and a mutex-guarded
// slice is far easier to reason about for correctness.
type Deque struct {
	mu    sync.Mutex
	items []*core.ActionRequest
}

// NewDeque creates an empty deque.
func NewDeque() *Deque { return &Deque{} }

// PushBottom adds work at the tail, for use by the owning worker only.
func (d *Deque) PushBottom(req *core.ActionRequest) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, req)
}

// PopBottom removes and returns the most recently pushed item, or nil if
// the deque is empty. Owner-only.
func (d *Deque) PopBottom() *core.ActionRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.items)
	if n == 0 {
		return nil
	}
	item := d.items[n-1]
	d.items = d.items[:n-1]
	return item
}

// StealTop removes and returns the oldest item, or nil if the deque is
// empty. Safe for any goroutine, including thieves on other workers.
func (d *Deque) StealTop() *core.ActionRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return nil
	}
	item := d.items[0]
	d.items = d.items[1:]
	return item
}

// Len reports the current queue depth, used by load-aware victim strategies.
func (d *Deque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}
