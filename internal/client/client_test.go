package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const seattleJSON = `{"name":"Seattle","sys":{"country":"US"},"main":{"temp":15.5,"humidity":65},"weather":[{"main":"Clouds","description":"scattered clouds"}],"wind":{"speed":3.2}}`

func newTestClient(t *testing.T, url string) *OpenWeatherClient {
	t.Helper()
	c, err := NewOpenWeatherClient("test-api-key-12345", url, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

func TestNewOpenWeatherClient_InvalidAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		apiKey  string
		wantErr error
	}{
		{name: "empty API key", apiKey: "", wantErr: ErrInvalidAPIKey},
		{name: "too short API key", apiKey: "short", wantErr: ErrInvalidAPIKey},
		{name: "valid API key", apiKey: "valid-api-key-12345", wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewOpenWeatherClient(tt.apiKey, "https://api.test.com", 2*time.Second)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("NewOpenWeatherClient() error = %v, want %v", err, tt.wantErr)
				}
				if client != nil {
					t.Errorf("NewOpenWeatherClient() expected nil client on error")
				}
				return
			}
			if err != nil || client == nil {
				t.Fatalf("NewOpenWeatherClient() = %v, %v", client, err)
			}
		})
	}
}

func TestNewOpenWeatherClient_DefaultURL(t *testing.T) {
	c, err := NewOpenWeatherClient("valid-api-key-12345", "", time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	if c.apiURL != DefaultAPIURL {
		t.Errorf("apiURL = %q, want %q", c.apiURL, DefaultAPIURL)
	}
}

func TestOpenWeatherClient_GetCurrentWeather_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		q := r.URL.Query()
		if q.Get("q") != "New York" {
			t.Errorf("q = %q, want location as typed", q.Get("q"))
		}
		if q.Get("appid") != "test-api-key-12345" {
			t.Errorf("appid = %q", q.Get("appid"))
		}
		if q.Get("units") != "metric" {
			t.Errorf("units = %q, want metric", q.Get("units"))
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		if r.Header.Get("X-Correlation-ID") != "corr-1" {
			t.Errorf("X-Correlation-ID = %q, want corr-1", r.Header.Get("X-Correlation-ID"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(seattleJSON))
	}))
	defer server.Close()

	ctx := WithCorrelationID(context.Background(), "corr-1")
	got, err := newTestClient(t, server.URL).GetCurrentWeather(ctx, "New York")
	if err != nil {
		t.Fatalf("GetCurrentWeather() error = %v", err)
	}
	if string(got) != seattleJSON {
		t.Errorf("record = %s, want payload verbatim", got)
	}
	sum, err := got.Summary()
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.Location != "Seattle" || sum.Conditions != "scattered clouds" {
		t.Errorf("Summary() = %+v", sum)
	}
}

// TestOpenWeatherClient_GetCurrentWeather_Status verifies the status code
// classification and the user message each class maps to.
func TestOpenWeatherClient_GetCurrentWeather_Status(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantErr     error
		wantMessage string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"cod":401}`, ErrInvalidAPIKey, "Invalid API key"},
		{"not found", http.StatusNotFound, `{"cod":"404","message":"city not found"}`, ErrLocationNotFound, "Location not found"},
		{"rate limited", http.StatusTooManyRequests, ``, ErrRateLimited, "Too many requests"},
		{"server error", http.StatusInternalServerError, ``, ErrServerError, "Server error"},
		{"bad gateway", http.StatusBadGateway, ``, ErrUnexpectedStatus, "Failed to fetch weather data"},
		{"teapot", http.StatusTeapot, ``, ErrUnexpectedStatus, "Failed to fetch weather data"},
		{"invalid JSON", http.StatusOK, `{not json`, ErrInvalidPayload, "Failed to fetch weather data"},
		{"empty body", http.StatusOK, ``, ErrInvalidPayload, "Failed to fetch weather data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL).GetCurrentWeather(context.Background(), "somewhere")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("GetCurrentWeather() error = %v, want %v", err, tt.wantErr)
			}
			if got := UserMessage(err); got != tt.wantMessage {
				t.Errorf("UserMessage() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

// TestOpenWeatherClient_GetCurrentWeather_NoRetry verifies that a failure is
// reported after exactly one provider call.
func TestOpenWeatherClient_GetCurrentWeather_NoRetry(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).GetCurrentWeather(context.Background(), "seattle")
	if !errors.Is(err, ErrServerError) {
		t.Fatalf("error = %v, want ErrServerError", err)
	}
	if calls != 1 {
		t.Errorf("provider calls = %d, want 1", calls)
	}
}

// TestOpenWeatherClient_GetCurrentWeather_Cancelled verifies that cancelling
// the context aborts the request and the error carries context.Canceled.
func TestOpenWeatherClient_GetCurrentWeather_Cancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := newTestClient(t, server.URL).GetCurrentWeather(ctx, "seattle")
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
		if CategorizeError(err) != ErrorCategoryAborted {
			t.Errorf("CategorizeError() = %v, want aborted", CategorizeError(err))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("GetCurrentWeather did not return after cancel")
	}
}

func TestOpenWeatherClient_GetCurrentWeather_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(t, url).GetCurrentWeather(context.Background(), "seattle")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if got := UserMessage(err); got != MessageGeneric {
		t.Errorf("UserMessage() = %q, want %q", got, MessageGeneric)
	}
	if got := CategorizeError(err); got != ErrorCategoryNetwork {
		t.Errorf("CategorizeError() = %v, want network", got)
	}
}

func TestOpenWeatherClient_ValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
		ok      bool
	}{
		{"accepted", http.StatusOK, nil, true},
		{"rejected", http.StatusUnauthorized, ErrInvalidAPIKey, false},
		{"other", http.StatusServiceUnavailable, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{}`))
			}))
			defer server.Close()

			err := newTestClient(t, server.URL).ValidateAPIKey(context.Background())
			if tt.ok {
				if err != nil {
					t.Errorf("ValidateAPIKey() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateAPIKey() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateAPIKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
