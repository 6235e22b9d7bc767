package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-fetcher/internal/observability"
	"github.com/kjstillabower/weather-fetcher/internal/traffic"
)

// RouterConfig carries the middleware settings for NewRouter.
type RouterConfig struct {
	Logger         *zap.Logger
	Limiter        *rate.Limiter // nil disables rate limiting
	Traffic        *traffic.Tracker
	RequestTimeout time.Duration
}

// NewRouter wires the control surface. Read routes are never rate limited;
// mutating routes get the rate limiter and request timeout.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.HandleFunc("/state", h.GetState).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	mutating := router.NewRoute().Subrouter()
	mutating.Use(RateLimitMiddleware(cfg.Limiter, cfg.Traffic))
	if cfg.RequestTimeout > 0 {
		mutating.Use(TimeoutMiddleware(cfg.RequestTimeout))
	}
	mutating.HandleFunc("/location", h.PutLocation).Methods(http.MethodPut)
	mutating.HandleFunc("/refresh", h.PostRefresh).Methods(http.MethodPost)
	mutating.HandleFunc("/cache", h.DeleteCache).Methods(http.MethodDelete)

	return router
}
