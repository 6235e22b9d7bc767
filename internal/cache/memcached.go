package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-fetcher/internal/models"
)

const keyPrefix = "weather:"

// maxKeyLength is memcached's key limit in bytes.
const maxKeyLength = 250

// MemcachedStore implements Store using memcached. Entries carry their own
// timestamp; the item expiration only bounds how long memcached keeps them.
type MemcachedStore struct {
	client    *memcache.Client
	retention time.Duration
	now       func() time.Time
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero. retention is how long
// memcached may keep an entry.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int, retention time.Duration) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client, retention: retention, now: time.Now}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// memcached keys may not contain spaces or control characters and are limited
// to 250 bytes. Longer keys are replaced by their sha1.
func (c *MemcachedStore) key(k string) string {
	full := keyPrefix + strings.ReplaceAll(k, " ", "_")
	if len(full) <= maxKeyLength {
		return full
	}
	sum := sha1.Sum([]byte(k))
	return keyPrefix + "sha1:" + hex.EncodeToString(sum[:])
}

// Get implements Store.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	if ctx.Err() != nil {
		return Entry{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// Set implements Store.Set.
func (c *MemcachedStore) Set(ctx context.Context, key string, data models.WeatherRecord) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(Entry{Data: data, Timestamp: c.now()})
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expirationSeconds(c.retention),
	})
}

// Clear implements Store.Clear by flushing every item on the servers.
func (c *MemcachedStore) Clear(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return c.client.FlushAll()
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedStore) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedStore) Close() error {
	return c.client.Close()
}

// expirationSeconds converts retention to a memcached relative expiration.
func expirationSeconds(retention time.Duration) int32 {
	expSec := int32(retention.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600 // fallback 1h if invalid
	}
	return expSec
}
