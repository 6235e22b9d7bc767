// Package debounce collapses bursts of calls into one trailing call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs fn with the arguments of the last Call once delay has passed
// without another Call. At most one execution is scheduled at any time.
//
// The debouncer does not wait for fn to return before accepting new calls;
// overlapping work downstream is the caller's concern.
type Debouncer[T any] struct {
	mu      sync.Mutex
	delay   time.Duration
	fn      func(T)
	timer   *time.Timer
	pending bool
	value   T
	gen     uint64

	// OnCollapse, if set, is called when a pending call is superseded.
	OnCollapse func()
}

// New returns a Debouncer that calls fn after delay of quiet.
func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Delay returns the configured quiet period.
func (d *Debouncer[T]) Delay() time.Duration {
	return d.delay
}

// Call schedules fn(v), replacing any pending schedule.
func (d *Debouncer[T]) Call(v T) {
	d.mu.Lock()
	collapsed := d.stopLocked()
	d.gen++
	gen := d.gen
	d.value = v
	d.pending = true
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
	onCollapse := d.OnCollapse
	d.mu.Unlock()

	if collapsed && onCollapse != nil {
		onCollapse()
	}
}

// Flush runs the pending call immediately on the calling goroutine.
// Returns false when nothing was pending.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		return false
	}
	d.stopLocked()
	v := d.value
	d.clearLocked()
	d.mu.Unlock()

	d.fn(v)
	return true
}

// Cancel drops the pending call. Returns false when nothing was pending.
func (d *Debouncer[T]) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.pending {
		return false
	}
	d.stopLocked()
	d.clearLocked()
	return true
}

// Pending reports whether a call is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	// A timer that lost the race with Call/Cancel/Flush must not run.
	if gen != d.gen || !d.pending {
		d.mu.Unlock()
		return
	}
	v := d.value
	d.clearLocked()
	d.mu.Unlock()

	d.fn(v)
}

// stopLocked stops the timer and reports whether a call was pending.
func (d *Debouncer[T]) stopLocked() bool {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return d.pending
}

func (d *Debouncer[T]) clearLocked() {
	var zero T
	d.value = zero
	d.pending = false
	d.gen++
}
