package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/weather-fetcher/internal/models"
	"github.com/kjstillabower/weather-fetcher/internal/observability"
	"github.com/kjstillabower/weather-fetcher/internal/validation"
)

// defaultWarmConcurrency bounds parallel provider calls during a warm.
const defaultWarmConcurrency = 4

// Loader fetches a record from the provider. Implemented by the weather client;
// declared here to avoid a dependency from cache on client.
type Loader interface {
	GetCurrentWeather(ctx context.Context, location string) (models.WeatherRecord, error)
}

// Warmer prefetches records for a list of locations straight into a Store.
// It never touches engine state, so warming cannot cancel or overwrite a
// user-initiated fetch.
type Warmer struct {
	loader      Loader
	store       Store
	logger      *zap.Logger
	concurrency int
}

// NewWarmer creates a Warmer writing into store. logger may be nil.
func NewWarmer(loader Loader, store Store, logger *zap.Logger) *Warmer {
	return &Warmer{loader: loader, store: store, logger: logger, concurrency: defaultWarmConcurrency}
}

// Warm fetches each location with bounded concurrency and stores the results
// under their normalized keys. Returns the joined errors of failed locations.
func (w *Warmer) Warm(ctx context.Context, locations []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("locations", len(locations)))
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, loc := range locations {
		g.Go(func() error {
			if err := w.warmOne(gctx, loc); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", loc, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("locations", len(locations)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

func (w *Warmer) warmOne(ctx context.Context, location string) error {
	loc, err := validation.ValidateLocation(location, 0, 0)
	if err != nil {
		return err
	}
	data, err := w.loader.GetCurrentWeather(ctx, loc)
	if err != nil {
		return err
	}
	return w.store.Set(ctx, validation.NormalizeKey(loc), data)
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, locations []string, interval time.Duration) error {
	if err := w.Warm(ctx, locations); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, locations); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
