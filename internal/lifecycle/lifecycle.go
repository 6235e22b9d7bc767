// Package lifecycle records process-wide drain state so the health endpoint
// can report it while the server shuts down.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// drainStart holds the UnixNano time BeginDrain was first called; zero while serving.
var drainStart atomic.Int64

// BeginDrain marks the process as draining. Only the first call records the
// time; later calls return false.
func BeginDrain(now time.Time) bool {
	return drainStart.CompareAndSwap(0, now.UnixNano())
}

// Draining reports whether BeginDrain has been called.
func Draining() bool {
	return drainStart.Load() != 0
}

// DrainingSince returns when draining began, or the zero time.
func DrainingSince() time.Time {
	ns := drainStart.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Reset clears the drain state. Tests only.
func Reset() {
	drainStart.Store(0)
}
