// Package traffic keeps sliding windows of control-surface admissions and
// rate-limit denials, used to report an overloaded health status.
package traffic

import (
	"sync"
	"time"
)

// maxAge bounds how long timestamps are retained.
const maxAge = 5 * time.Minute

// Tracker maintains sliding windows of outcome timestamps. The zero value is
// ready to use and reads the wall clock.
type Tracker struct {
	mu          sync.Mutex
	now         func() time.Time
	admitted    []time.Time
	deniedTimes []time.Time
}

// NewTracker returns a Tracker reading time from now. A nil now uses time.Now.
func NewTracker(now func() time.Time) *Tracker {
	return &Tracker{now: now}
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// RecordAdmitted records a request that passed the rate limiter.
func (t *Tracker) RecordAdmitted() {
	t.recordOutcome(&t.admitted)
}

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.recordOutcome(&t.deniedTimes)
}

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// RequestCount returns admitted plus denied requests within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	return countInWindow(t.admitted, cutoff) + countInWindow(t.deniedTimes, cutoff)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.deniedTimes, t.clock().Add(-window))
}

// Overloaded reports whether requests in window exceed pct percent of the
// capacity rps allows over that window.
func (t *Tracker) Overloaded(window time.Duration, rps, pct int) bool {
	if window <= 0 || rps <= 0 || pct <= 0 {
		return false
	}
	threshold := float64(rps) * window.Seconds() * float64(pct) / 100
	return float64(t.RequestCount(window)) > threshold
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.admitted = nil
	t.deniedTimes = nil
}

func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than maxAge. Caller holds t.mu.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.admitted)
	prune(&t.deniedTimes)
}
