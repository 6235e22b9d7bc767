package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-fetcher/internal/cache"
	"github.com/kjstillabower/weather-fetcher/internal/client"
	"github.com/kjstillabower/weather-fetcher/internal/config"
	"github.com/kjstillabower/weather-fetcher/internal/engine"
	"github.com/kjstillabower/weather-fetcher/internal/observability"
	"github.com/kjstillabower/weather-fetcher/internal/tui"
)

func main() {
	os.Exit(run())
}

func run() int {
	location := flag.String("location", "", "location to fetch on start (optional, overrides config)")
	flag.Parse()

	// The terminal belongs to the UI, so logs go to LOG_FILE or nowhere.
	logger, err := observability.NewFileLogger(os.Getenv("LOG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "weather: logger: %v\n", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "weather: %v\n", err)
		return 1
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weather: %v\n", err)
		return 1
	}

	initial := cfg.InitialLocation
	if *location != "" {
		initial = *location
	}
	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithDebounceDelay(cfg.DebounceDelay),
		engine.WithLocationBounds(cfg.LocationMinLength, cfg.LocationMaxLength),
	}
	if initial != "" {
		opts = append(opts, engine.WithInitialLocation(initial))
	}
	eng := engine.New(weatherClient, cache.NewInMemoryStore(), opts...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	model := tui.New(tui.Options{
		Context:   ctx,
		Engine:    eng,
		Logger:    logger,
		MinLength: cfg.LocationMinLength,
		MaxLength: cfg.LocationMaxLength,
	})
	_, runErr := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()

	if err := observability.FlushTelemetry(context.Background(), logger, eng); err != nil {
		logger.Warn("shutdown flush", zap.Error(err))
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		fmt.Fprintf(os.Stderr, "weather: %v\n", runErr)
		return 1
	}
	return 0
}
