package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-fetcher/internal/client"
	"github.com/kjstillabower/weather-fetcher/internal/engine"
	"github.com/kjstillabower/weather-fetcher/internal/lifecycle"
	"github.com/kjstillabower/weather-fetcher/internal/models"
	"github.com/kjstillabower/weather-fetcher/internal/state"
	"github.com/kjstillabower/weather-fetcher/internal/traffic"
	"github.com/kjstillabower/weather-fetcher/internal/validation"
)

// Engine is the fetch engine surface the handlers drive.
type Engine interface {
	State() state.FetchState
	Location() string
	FailureCount() int
	SetLocation(location string) error
	Refresh(ctx context.Context) (models.WeatherRecord, error)
	ClearCache(ctx context.Context) error
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	// CachePing, when set, is called to check cache reachability (remote backends).
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	engine           Engine
	healthConfig     *HealthConfig
	traffic          *traffic.Tracker
	logger           *zap.Logger
	minLen, maxLen   int
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig and tracker may be nil.
func NewHandler(e Engine, healthConfig *HealthConfig, tracker *traffic.Tracker, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		engine:       e,
		healthConfig: healthConfig,
		traffic:      tracker,
		logger:       logger,
		minLen:       validation.DefaultMinLength,
		maxLen:       validation.DefaultMaxLength,
	}
}

// SetLocationBounds overrides the rune-length bounds PUT /location enforces.
// Keep them in line with the engine's bounds.
func (h *Handler) SetLocationBounds(minLen, maxLen int) {
	h.minLen, h.maxLen = minLen, maxLen
}

type stateResponse struct {
	Data     models.WeatherRecord   `json:"data"`
	Summary  *models.WeatherSummary `json:"summary,omitempty"`
	Loading  bool                   `json:"loading"`
	Error    string                 `json:"error,omitempty"`
	Fallback bool                   `json:"fallback"`
	Phase    string                 `json:"phase"`
	Location string                 `json:"location"`
	Failures int                    `json:"failures"`
}

func (h *Handler) snapshot() stateResponse {
	s := h.engine.State()
	resp := stateResponse{
		Data:     s.Data,
		Loading:  s.Loading,
		Error:    s.Error,
		Fallback: s.Fallback,
		Phase:    s.Phase().String(),
		Location: h.engine.Location(),
		Failures: h.engine.FailureCount(),
	}
	if len(s.Data) > 0 {
		if sum, err := s.Data.Summary(); err == nil {
			resp.Summary = &sum
		}
	}
	return resp
}

// GetState handles GET /state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

// PutLocation handles PUT /location. The fetch is debounced, so the response
// only acknowledges the new tracked location.
func (h *Handler) PutLocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Location string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "body must be {\"location\": \"...\"}")
		return
	}
	if _, err := validation.ValidateLocation(body.Location, h.minLen, h.maxLen); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
		return
	}
	if err := h.engine.SetLocation(body.Location); err != nil {
		writeEngineError(w, r, err)
		return
	}
	loggerFrom(r).Debug("location scheduled", zap.String("location", body.Location))
	writeJSON(w, http.StatusAccepted, map[string]string{
		"location": body.Location,
		"status":   "scheduled",
	})
}

// PostRefresh handles POST /refresh. Fetch failures still return the
// resulting state, with 502 so callers can tell the refresh did not succeed.
func (h *Handler) PostRefresh(w http.ResponseWriter, r *http.Request) {
	_, err := h.engine.Refresh(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h.snapshot())
	case isRequestError(err):
		writeEngineError(w, r, err)
	default:
		loggerFrom(r).Debug("refresh failed", zap.Error(err), zap.String("category", string(client.CategorizeError(err))))
		writeJSON(w, http.StatusBadGateway, h.snapshot())
	}
}

// DeleteCache handles DELETE /cache.
func (h *Handler) DeleteCache(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ClearCache(r.Context()); err != nil {
		if errors.Is(err, engine.ErrClosed) {
			writeEngineError(w, r, err)
			return
		}
		loggerFrom(r).Warn("cache clear failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", "Unable to clear cache")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isRequestError(err error) bool {
	return errors.Is(err, engine.ErrSuperseded) || errors.Is(err, engine.ErrClosed) ||
		errors.Is(err, validation.ErrLocationEmpty) || errors.Is(err, validation.ErrLocationTooShort) ||
		errors.Is(err, validation.ErrLocationTooLong) || errors.Is(err, validation.ErrLocationInvalidChars)
}

// writeEngineError maps engine and validation errors to a status and code.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrClosed):
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Engine is shutting down")
	case errors.Is(err, engine.ErrSuperseded):
		writeError(w, r, http.StatusConflict, "SUPERSEDED", "Request superseded by a newer fetch")
	case errors.Is(err, validation.ErrLocationEmpty):
		writeError(w, r, http.StatusBadRequest, "NO_LOCATION", "No location set")
	default:
		writeError(w, r, http.StatusBadRequest, "INVALID_LOCATION", err.Error())
	}
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result, checks := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	body := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-fetcher",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if since := lifecycle.DrainingSince(); !since.IsZero() {
		body["drainingSince"] = since.UTC().Format(time.RFC3339)
	}
	writeJSON(w, result.statusCode, body)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > overloaded > degraded (fallback or cache unreachable) > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) (healthResult, map[string]string) {
	checks := map[string]string{"weatherApi": "healthy"}
	if lifecycle.Draining() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}, checks
	}

	if h.healthConfig != nil && h.traffic != nil &&
		h.traffic.Overloaded(h.healthConfig.OverloadWindow, h.healthConfig.RateLimitRPS, h.healthConfig.OverloadThresholdPct) {
		return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}, checks
	}

	degraded := ""
	if h.engine.State().Fallback {
		checks["weatherApi"] = "unhealthy"
		degraded = "fallback"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(ctx); err != nil {
			checks["cache"] = "unhealthy"
			if degraded == "" {
				degraded = "cache_unreachable"
			}
		} else {
			checks["cache"] = "healthy"
		}
	}
	if degraded != "" {
		return healthResult{"degraded", http.StatusOK, degraded}, checks
	}
	return healthResult{"healthy", http.StatusOK, ""}, checks
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationID(r),
		},
	})
}
