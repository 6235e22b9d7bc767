package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/weather-fetcher/internal/models"
)

type mockLoader struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (m *mockLoader) GetCurrentWeather(ctx context.Context, location string) (models.WeatherRecord, error) {
	m.mu.Lock()
	m.calls = append(m.calls, location)
	m.mu.Unlock()
	if err, ok := m.fail[location]; ok {
		return nil, err
	}
	return models.WeatherRecord(`{"name":"` + location + `"}`), nil
}

func TestWarmer_Warm_Success(t *testing.T) {
	loader := &mockLoader{}
	store := NewInMemoryStore()
	warmer := NewWarmer(loader, store, nil)
	ctx := context.Background()

	if err := warmer.Warm(ctx, []string{"Seattle", "  New York "}); err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}

	for _, key := range []string{"seattle", "new york"} {
		if _, ok, _ := store.Get(ctx, key); !ok {
			t.Errorf("store missing key %q after warm", key)
		}
	}
	if len(loader.calls) != 2 {
		t.Errorf("loader calls = %d, want 2", len(loader.calls))
	}
}

func TestWarmer_Warm_EmptyLocations(t *testing.T) {
	warmer := NewWarmer(&mockLoader{}, NewInMemoryStore(), nil)
	ctx := context.Background()

	if err := warmer.Warm(ctx, nil); err != nil {
		t.Fatalf("Warm() with nil locations error = %v, want nil", err)
	}
	if err := warmer.Warm(ctx, []string{}); err != nil {
		t.Fatalf("Warm() with empty locations error = %v, want nil", err)
	}
}

func TestWarmer_Warm_PartialFailure(t *testing.T) {
	apiDown := errors.New("api down")
	loader := &mockLoader{fail: map[string]error{"boston": apiDown}}
	store := NewInMemoryStore()
	warmer := NewWarmer(loader, store, nil)
	ctx := context.Background()

	err := warmer.Warm(ctx, []string{"seattle", "boston", "   "})
	if err == nil {
		t.Fatal("Warm() error = nil, want non-nil")
	}
	if !errors.Is(err, apiDown) {
		t.Errorf("Warm() error = %v, want wrapping api down", err)
	}
	if !strings.Contains(err.Error(), "warm boston") {
		t.Errorf("Warm() error = %q, want location named", err)
	}
	if _, ok, _ := store.Get(ctx, "seattle"); !ok {
		t.Error("successful location should still be cached")
	}
}

func TestWarmer_WarmPeriodic_StopsOnCancel(t *testing.T) {
	loader := &mockLoader{}
	warmer := NewWarmer(loader, NewInMemoryStore(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- warmer.WarmPeriodic(ctx, []string{"seattle"}, 10*time.Millisecond) }()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WarmPeriodic() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WarmPeriodic did not stop after cancel")
	}

	loader.mu.Lock()
	n := len(loader.calls)
	loader.mu.Unlock()
	if n < 2 {
		t.Errorf("loader calls = %d, want initial warm plus at least one tick", n)
	}
}
