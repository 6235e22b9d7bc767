// Package engine fetches weather records for a tracked location. It serves
// fresh cache entries without a loading phase, cancels superseded calls,
// debounces location changes and escalates repeated failures to a fallback
// state. All observable state lives in a state.Store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-fetcher/internal/cache"
	"github.com/kjstillabower/weather-fetcher/internal/client"
	"github.com/kjstillabower/weather-fetcher/internal/debounce"
	"github.com/kjstillabower/weather-fetcher/internal/escalation"
	"github.com/kjstillabower/weather-fetcher/internal/inflight"
	"github.com/kjstillabower/weather-fetcher/internal/models"
	"github.com/kjstillabower/weather-fetcher/internal/observability"
	"github.com/kjstillabower/weather-fetcher/internal/state"
	"github.com/kjstillabower/weather-fetcher/internal/validation"
)

const (
	// CacheDuration is how long a cached record is served without a network call.
	CacheDuration = 5 * time.Minute

	// DefaultDebounceDelay is the quiet period before a location change is fetched.
	DefaultDebounceDelay = 500 * time.Millisecond
)

var (
	// ErrSuperseded is returned by a call that was cancelled by a newer call
	// or by Close. It never reaches the state store.
	ErrSuperseded = errors.New("fetch superseded")

	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")
)

// Engine coordinates the cache, the provider client and the state store.
//
// One mutex orders token issuance, liveness checks and dispatches; cache and
// network I/O run outside it. A call publishes its result only if its token
// is still live at that moment.
type Engine struct {
	client   client.WeatherClient
	cache    cache.Store
	store    *state.Store
	failures *escalation.Counter
	calls    inflight.Canceller
	debounce *debounce.Debouncer[string]
	logger   *zap.Logger
	now      func() time.Time

	debounceDelay   time.Duration
	minLen, maxLen  int
	initialLocation string

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu       sync.Mutex
	location string
	closed   bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for cache freshness. When the engine
// creates its own in-memory cache, the cache uses the same clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithDebounceDelay overrides DefaultDebounceDelay.
func WithDebounceDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.debounceDelay = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLocationBounds sets the accepted location length in runes.
func WithLocationBounds(minLen, maxLen int) Option {
	return func(e *Engine) {
		e.minLen, e.maxLen = minLen, maxLen
	}
}

// WithInitialLocation tracks location from construction and schedules a
// debounced fetch for it.
func WithInitialLocation(location string) Option {
	return func(e *Engine) {
		e.initialLocation = location
	}
}

// New creates an Engine. A nil store gets an in-memory cache on the engine clock.
func New(c client.WeatherClient, store cache.Store, opts ...Option) *Engine {
	e := &Engine{
		client:        c,
		cache:         store,
		store:         state.NewStore(),
		logger:        zap.NewNop(),
		now:           time.Now,
		debounceDelay: DefaultDebounceDelay,
		minLen:        validation.DefaultMinLength,
		maxLen:        validation.DefaultMaxLength,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = cache.NewInMemoryStoreWithClock(e.now)
	}

	e.failures = escalation.New(escalation.Config{
		Threshold: escalation.DefaultThreshold,
		OnEscalate: func(count int) {
			observability.FallbackEscalationsTotal.Inc()
		},
	})
	e.baseCtx, e.cancelBase = context.WithCancel(context.Background())
	e.debounce = debounce.New(e.debounceDelay, e.fireDebounced)
	e.debounce.OnCollapse = observability.DebounceCollapsedTotal.Inc

	logger := e.logger
	e.store.OnTransition = func(tr state.Transition) {
		logger.Debug("state transition",
			zap.Stringer("event", tr.Event.Kind),
			zap.Stringer("from", tr.From.Phase()),
			zap.Stringer("to", tr.To.Phase()),
		)
	}

	if e.initialLocation != "" {
		e.location = e.initialLocation
		e.debounce.Call(e.initialLocation)
	}
	return e
}

// FetchWeather resolves location from the cache or the provider and publishes
// the outcome to the state store. It blocks until the call resolves.
//
// Invalid or empty input is rejected with a validation error and no state
// change. A call overtaken by a newer call returns ErrSuperseded without
// touching state or the failure count. ctx supplies request-scoped values;
// cancellation of the in-flight request is owned by the engine.
func (e *Engine) FetchWeather(ctx context.Context, location string) (models.WeatherRecord, error) {
	return e.fetch(ctx, location, false)
}

// fetch runs one call. With resetStreak the failure count is cleared under
// the same lock that issues the token.
func (e *Engine) fetch(ctx context.Context, location string, resetStreak bool) (models.WeatherRecord, error) {
	loc, err := validation.ValidateLocation(location, e.minLen, e.maxLen)
	if err != nil {
		observability.FetchesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	key := validation.NormalizeKey(loc)
	valCtx := context.WithoutCancel(ctx)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	tok := e.calls.Begin(valCtx)
	if resetStreak {
		e.failures.Reset()
		observability.ConsecutiveFailures.Set(0)
	}
	e.mu.Unlock()

	logger := e.logger.With(zap.String("location", key), zap.String("fetch_id", tok.ID()))

	if rec, ok := e.lookup(tok.Context(), key, logger); ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.calls.Finish(tok) {
			return nil, e.supersededLocked(logger)
		}
		e.store.Dispatch(state.FetchSuccess(rec))
		observability.FetchesTotal.WithLabelValues("cache_hit").Inc()
		logger.Debug("served from cache")
		return rec, nil
	}

	e.mu.Lock()
	if !e.calls.IsLive(tok) {
		err := e.supersededLocked(logger)
		e.mu.Unlock()
		return nil, err
	}
	e.store.Dispatch(state.FetchStart())
	e.mu.Unlock()

	start := time.Now()
	rec, fetchErr := e.client.GetCurrentWeather(tok.Context(), loc)

	e.mu.Lock()
	aborted := tok.Aborted()
	if !e.calls.Finish(tok) || (fetchErr != nil && aborted) {
		err := e.supersededLocked(logger)
		e.mu.Unlock()
		return nil, err
	}

	if fetchErr != nil {
		err := e.failLocked(fetchErr, logger)
		e.mu.Unlock()
		return nil, fmt.Errorf("fetch weather for %s: %w", loc, err)
	}

	e.failures.RecordSuccess()
	observability.ConsecutiveFailures.Set(0)
	e.store.Dispatch(state.FetchSuccess(rec))
	observability.FetchesTotal.WithLabelValues("success").Inc()
	e.mu.Unlock()

	if err := e.cache.Set(valCtx, key, rec); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		logger.Warn("cache set failed", zap.Error(err))
	}
	logger.Debug("fetched from provider", zap.Duration("duration", time.Since(start)))
	return rec, nil
}

// lookup returns a fresh cached record. Cache errors are logged and treated as a miss.
func (e *Engine) lookup(ctx context.Context, key string, logger *zap.Logger) (models.WeatherRecord, bool) {
	entry, ok, err := e.cache.Get(ctx, key)
	switch {
	case err != nil:
		observability.CacheLookupsTotal.WithLabelValues("error").Inc()
		if ctx.Err() == nil {
			logger.Warn("cache get failed", zap.Error(err))
		}
		return nil, false
	case !ok:
		observability.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	case !entry.Fresh(e.now(), CacheDuration):
		observability.CacheLookupsTotal.WithLabelValues("stale").Inc()
		return nil, false
	}
	observability.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return entry.Data, true
}

// failLocked counts a non-aborted failure and dispatches the error or, past
// the threshold, the fallback. Caller holds e.mu.
func (e *Engine) failLocked(err error, logger *zap.Logger) error {
	level := e.failures.RecordFailure()
	count := e.failures.Count()
	observability.ConsecutiveFailures.Set(float64(count))
	observability.FetchErrorsTotal.WithLabelValues(string(client.CategorizeError(err))).Inc()

	if level == escalation.LevelEscalated {
		e.store.Dispatch(state.FetchFallback())
		observability.FetchesTotal.WithLabelValues("fallback").Inc()
		logger.Warn("fetch failed, fallback engaged", zap.Int("consecutive_failures", count), zap.Error(err))
		return err
	}
	e.store.Dispatch(state.FetchError(client.UserMessage(err)))
	observability.FetchesTotal.WithLabelValues("error").Inc()
	logger.Info("fetch failed", zap.Int("consecutive_failures", count), zap.Error(err))
	return err
}

func (e *Engine) supersededLocked(logger *zap.Logger) error {
	if e.closed {
		return ErrClosed
	}
	observability.FetchesTotal.WithLabelValues("superseded").Inc()
	logger.Debug("fetch superseded")
	return ErrSuperseded
}

// Refresh drops any pending debounced fetch, clears the failure streak and
// fetches the tracked location immediately. Cache freshness still applies.
func (e *Engine) Refresh(ctx context.Context) (models.WeatherRecord, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	loc := e.location
	e.mu.Unlock()

	e.debounce.Cancel()
	return e.fetch(ctx, loc, true)
}

// SetLocation records location as tracked and schedules a debounced fetch.
// It never fetches synchronously.
func (e *Engine) SetLocation(location string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.location = location
	e.mu.Unlock()

	e.debounce.Call(location)
	return nil
}

func (e *Engine) fireDebounced(location string) {
	if _, err := e.FetchWeather(e.baseCtx, location); err != nil {
		e.logger.Debug("debounced fetch ended", zap.String("location", location), zap.Error(err))
	}
}

// FlushPending runs a pending debounced fetch now. Returns false when none was pending.
func (e *Engine) FlushPending() bool {
	return e.debounce.Flush()
}

// ClearCache removes every cached record. Engine state is unchanged.
func (e *Engine) ClearCache(ctx context.Context) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := e.cache.Clear(ctx); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("clear").Inc()
		return fmt.Errorf("clear cache: %w", err)
	}
	e.logger.Info("cache cleared")
	return nil
}

// State returns the current state snapshot.
func (e *Engine) State() state.FetchState {
	return e.store.Snapshot()
}

// Subscribe returns a channel holding the latest state after each change.
func (e *Engine) Subscribe() (<-chan state.FetchState, func()) {
	return e.store.Subscribe()
}

// Location returns the tracked location as last set.
func (e *Engine) Location() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.location
}

// FailureCount returns the current consecutive failure streak.
func (e *Engine) FailureCount() int {
	return e.failures.Count()
}

// Close drops any pending debounced fetch and aborts the in-flight call.
// Later operations return ErrClosed. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.debounce.Cancel()
	e.calls.Abort()
	e.mu.Unlock()

	e.cancelBase()
	e.logger.Debug("engine closed")
	return nil
}
