package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-fetcher/internal/cache"
	"github.com/kjstillabower/weather-fetcher/internal/client"
	"github.com/kjstillabower/weather-fetcher/internal/config"
	"github.com/kjstillabower/weather-fetcher/internal/engine"
	httphandler "github.com/kjstillabower/weather-fetcher/internal/http"
	"github.com/kjstillabower/weather-fetcher/internal/lifecycle"
	"github.com/kjstillabower/weather-fetcher/internal/observability"
	"github.com/kjstillabower/weather-fetcher/internal/traffic"
)

const inFlightCheckInterval = 100 * time.Millisecond

// pinger is implemented by the remote cache backends.
type pinger interface {
	Ping() error
}

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	checkCtx, cancelCheck := context.WithTimeout(context.Background(), cfg.WeatherAPITimeout)
	if err := weatherClient.ValidateAPIKey(checkCtx); err != nil {
		logger.Warn("weather API key check failed", zap.Error(err), zap.String("category", string(client.CategorizeError(err))))
	}
	cancelCheck()

	store, storeCloser, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("cache store", zap.Error(err))
	}

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithDebounceDelay(cfg.DebounceDelay),
		engine.WithLocationBounds(cfg.LocationMinLength, cfg.LocationMaxLength),
	}
	if cfg.InitialLocation != "" {
		opts = append(opts, engine.WithInitialLocation(cfg.InitialLocation))
	}
	eng := engine.New(weatherClient, store, opts...)

	tracker := traffic.NewTracker(nil)
	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
	}
	if p, ok := store.(pinger); ok {
		healthConfig.CachePing = func(ctx context.Context) error { return p.Ping() }
	}

	handler := httphandler.NewHandler(eng, healthConfig, tracker, logger)
	handler.SetLocationBounds(cfg.LocationMinLength, cfg.LocationMaxLength)
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		Logger:         logger,
		Limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		Traffic:        tracker,
		RequestTimeout: cfg.RequestTimeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.WarmLocations) > 0 {
		startWarming(ctx, cfg, weatherClient, store, logger)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("cache_backend", cfg.CacheBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.BeginDrain(time.Now())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger, eng, storeCloser); err != nil {
		logger.Error("shutdown flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// openStore builds the configured cache backend. The closer is nil for the
// in-memory store.
func openStore(cfg *config.Config, logger *zap.Logger) (cache.Store, io.Closer, error) {
	switch cfg.CacheBackend {
	case config.BackendMemcached:
		mc, err := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.CacheRetention)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc, nil
	case config.BackendRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisPrefix,
			Retention: cfg.CacheRetention,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
		return rs, rs, nil
	default:
		logger.Info("cache backend: in_memory")
		return cache.NewInMemoryStore(), nil, nil
	}
}

// startWarming runs one warm pass in the background and, when an interval is
// configured, keeps warming until ctx is done.
func startWarming(ctx context.Context, cfg *config.Config, loader cache.Loader, store cache.Store, logger *zap.Logger) {
	warmer := cache.NewWarmer(loader, store, logger)
	go func() {
		if cfg.WarmInterval > 0 {
			if err := warmer.WarmPeriodic(ctx, cfg.WarmLocations, cfg.WarmInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("periodic cache warming stopped", zap.Error(err))
			}
			return
		}
		if err := warmer.Warm(ctx, cfg.WarmLocations); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
	}()
}
