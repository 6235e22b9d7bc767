// Package escalation counts consecutive failed fetches and decides when a
// failure escalates to the fallback state.
package escalation

import "sync"

// DefaultThreshold is the number of consecutive failures tolerated before
// escalation: the failure that pushes the count above it escalates.
const DefaultThreshold = 2

// Level tells the caller whether to surface the specific error or the fallback.
type Level int

const (
	LevelTransient Level = iota
	LevelEscalated
)

func (l Level) String() string {
	switch l {
	case LevelTransient:
		return "transient"
	case LevelEscalated:
		return "escalated"
	default:
		return "unknown"
	}
}

// Counter counts consecutive non-aborted failures. A success or an explicit
// Reset clears the streak.
type Counter struct {
	mu         sync.Mutex
	count      int
	threshold  int
	onEscalate func(count int) // optional, for metrics
}

// Config holds counter parameters.
type Config struct {
	Threshold  int
	OnEscalate func(count int)
}

// New creates a Counter. A non-positive threshold uses DefaultThreshold.
func New(cfg Config) *Counter {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Counter{threshold: cfg.Threshold, onEscalate: cfg.OnEscalate}
}

// RecordFailure increments the streak and reports whether it now exceeds the threshold.
func (c *Counter) RecordFailure() Level {
	c.mu.Lock()
	c.count++
	count := c.count
	escalated := count > c.threshold
	c.mu.Unlock()

	if !escalated {
		return LevelTransient
	}
	if c.onEscalate != nil {
		c.onEscalate(count)
	}
	return LevelEscalated
}

// RecordSuccess clears the streak.
func (c *Counter) RecordSuccess() {
	c.Reset()
}

// Reset clears the streak.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count = 0
}

// Count returns the current streak length.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Threshold returns the configured threshold.
func (c *Counter) Threshold() int {
	return c.threshold
}
