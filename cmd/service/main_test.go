package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-fetcher/internal/cache"
	"github.com/kjstillabower/weather-fetcher/internal/config"
)

func TestOpenStore_InMemory(t *testing.T) {
	store, closer, err := openStore(&config.Config{CacheBackend: config.BackendInMemory, CacheRetention: 10 * time.Minute}, zap.NewNop())
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	if closer != nil {
		t.Errorf("closer = %T, want nil for in-memory store", closer)
	}
	if _, ok := store.(*cache.InMemoryStore); !ok {
		t.Errorf("store = %T, want *cache.InMemoryStore", store)
	}
}

func TestOpenStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		CacheBackend:   config.BackendRedis,
		RedisAddr:      mr.Addr(),
		RedisPrefix:    "test:",
		CacheRetention: 10 * time.Minute,
	}

	store, closer, err := openStore(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	if closer == nil {
		t.Fatal("closer = nil for redis store")
	}
	defer closer.Close()

	if _, ok := store.(pinger); !ok {
		t.Errorf("store = %T, want a pinger for health checks", store)
	}
	if err := store.Clear(context.Background()); err != nil {
		t.Errorf("Clear() error = %v", err)
	}
}

func TestOpenStore_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, _, err := openStore(&config.Config{CacheBackend: config.BackendRedis, RedisAddr: addr, CacheRetention: time.Minute}, zap.NewNop())
	if err == nil {
		t.Fatal("openStore() error = nil for unreachable redis")
	}
}
