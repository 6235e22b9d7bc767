//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-fetcher/internal/cache"
	"github.com/kjstillabower/weather-fetcher/internal/client"
	"github.com/kjstillabower/weather-fetcher/internal/engine"
	"github.com/kjstillabower/weather-fetcher/internal/observability"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory", "memcached" or "redis"
	MemcachedAddr string
	RedisAddr     string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}

	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = client.DefaultAPIURL
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
		RedisAddr:     redisAddr,
	}
}

// SetupIntegrationStore returns the cache store selected by cfg, falling back
// to in-memory when the remote backend is unreachable.
func SetupIntegrationStore(t *testing.T, cfg IntegrationTestConfig) cache.Store {
	switch cfg.CacheBackend {
	case "memcached":
		store, err := cache.NewMemcachedStore(cfg.MemcachedAddr, 500*time.Millisecond, 2, time.Hour)
		if err == nil && store.Ping() == nil {
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
			t.Cleanup(func() { store.Close() })
			return store
		}
		t.Logf("Memcached not available, using in-memory cache")
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:      cfg.RedisAddr,
			KeyPrefix: "weather-it:",
			Retention: time.Hour,
		})
		if err == nil {
			t.Logf("Using Redis cache at %s", cfg.RedisAddr)
			t.Cleanup(func() { store.Close() })
			return store
		}
		t.Logf("Redis not available (%v), using in-memory cache", err)
	}
	return cache.NewInMemoryStore()
}

// SetupIntegrationEngine builds an engine against the real provider. The
// engine is closed and its cache cleared on test cleanup.
func SetupIntegrationEngine(t *testing.T, cfg IntegrationTestConfig) (*engine.Engine, cache.Store) {
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	store := SetupIntegrationStore(t, cfg)
	e := engine.New(SetupIntegrationClient(t, cfg), store, engine.WithLogger(logger))
	t.Cleanup(func() {
		_ = store.Clear(context.Background())
		_ = e.Close()
	})
	return e, store
}

// SetupIntegrationClient creates a weather client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) client.WeatherClient {
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}
