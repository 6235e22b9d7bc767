package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kjstillabower/weather-fetcher/internal/models"
)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string // defaults to "weather:"
	Retention    time.Duration
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore implements Store on Redis so several engines can share one cache.
// Clear only removes keys under the configured prefix.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	now       func() time.Time
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = keyPrefix
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = time.Hour
	}
	return &RedisStore{
		client:    client,
		prefix:    prefix,
		retention: retention,
		now:       time.Now,
	}, nil
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

// Get implements Store.Get.
func (r *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("redis decode %s: %w", key, err)
	}
	return entry, true, nil
}

// Set implements Store.Set.
func (r *RedisStore) Set(ctx context.Context, key string, data models.WeatherRecord) error {
	raw, err := json.Marshal(Entry{Data: data, Timestamp: r.now()})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(key), raw, r.retention).Err()
}

// Clear implements Store.Clear by scanning and deleting prefixed keys.
func (r *RedisStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping checks if Redis is reachable. Used for health checks.
func (r *RedisStore) Ping() error {
	return r.client.Ping(context.Background()).Err()
}

// Close closes the Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
