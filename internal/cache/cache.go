// Package cache stores fetched weather records by normalized location key,
// in memory, memcached or redis.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-fetcher/internal/models"
)

// Store maps a normalized location key to the last fetched record.
// Get never evicts: staleness is judged by the caller via Entry.Fresh.
// Set overwrites any prior entry and stamps it with the store's clock.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, data models.WeatherRecord) error
	Clear(ctx context.Context) error
}

// Entry is a cached record and the time it was stored.
type Entry struct {
	Data      models.WeatherRecord `json:"data"`
	Timestamp time.Time            `json:"timestamp"`
}

// Fresh reports whether the entry is younger than ttl at now.
func (e Entry) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.Timestamp) < ttl
}

// InMemoryStore implements Store with a map. Entries are never purged;
// growth is bounded only by the number of distinct locations queried.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]Entry
	now  func() time.Time
}

// NewInMemoryStore creates an empty in-memory store using the wall clock.
func NewInMemoryStore() *InMemoryStore {
	return NewInMemoryStoreWithClock(time.Now)
}

// NewInMemoryStoreWithClock creates an empty in-memory store stamping entries with now.
func NewInMemoryStoreWithClock(now func() time.Time) *InMemoryStore {
	if now == nil {
		now = time.Now
	}
	return &InMemoryStore{
		data: make(map[string]Entry),
		now:  now,
	}
}

// Get returns the entry for key regardless of age.
func (c *InMemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.data[key]
	return entry, ok, nil
}

// Set stores data under key with the current timestamp.
func (c *InMemoryStore) Set(ctx context.Context, key string, data models.WeatherRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = Entry{Data: data, Timestamp: c.now()}
	return nil
}

// Clear drops every entry.
func (c *InMemoryStore) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]Entry)
	return nil
}

// Len returns the number of stored entries, fresh or stale.
func (c *InMemoryStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
