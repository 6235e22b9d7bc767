package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Cache backends accepted by cache.backend.
const (
	BackendInMemory  = "in_memory"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// minCacheRetention keeps remote entries alive at least as long as the engine
// treats them as fresh.
const minCacheRetention = 5 * time.Minute

// Config holds fetcher configuration loaded from YAML, secrets and env.
type Config struct {
	ServerPort string `validate:"required,numeric"`

	WeatherAPIKey     string        `validate:"required,min=10"`
	WeatherAPIURL     string        `validate:"required,url"`
	WeatherAPITimeout time.Duration `validate:"gt=0"`

	RequestTimeout time.Duration `validate:"gt=0"`

	CacheBackend   string        `validate:"oneof=in_memory memcached redis"`
	CacheRetention time.Duration `validate:"gt=0"`

	MemcachedAddrs        string        `validate:"required_if=CacheBackend memcached"`
	MemcachedTimeout      time.Duration `validate:"gt=0"`
	MemcachedMaxIdleConns int           `validate:"gt=0"`

	RedisAddr     string `validate:"required_if=CacheBackend redis"`
	RedisPassword string
	RedisDB       int    `validate:"gte=0"`
	RedisPrefix   string `validate:"required"`

	DebounceDelay     time.Duration `validate:"gt=0"`
	InitialLocation   string
	LocationMinLength int `validate:"gte=1"`
	LocationMaxLength int `validate:"gtefield=LocationMinLength"`

	WarmLocations []string `validate:"dive,required"`
	WarmInterval  time.Duration

	RateLimitRPS         int           `validate:"gt=0"`
	RateLimitBurst       int           `validate:"gt=0"`
	OverloadWindow       time.Duration `validate:"gt=0"`
	OverloadThresholdPct int           `validate:"gte=1,lte=200"`

	ShutdownTimeout time.Duration `validate:"gt=0"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Retention string `yaml:"retention"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Warm struct {
			Locations []string `yaml:"locations"`
			Interval  string   `yaml:"interval"`
		} `yaml:"warm"`
	} `yaml:"cache"`

	Engine struct {
		DebounceDelay     string `yaml:"debounce_delay"`
		InitialLocation   string `yaml:"initial_location"`
		LocationMinLength int    `yaml:"location_min_length"`
		LocationMaxLength int    `yaml:"location_max_length"`
	} `yaml:"engine"`

	Reliability struct {
		RateLimitRPS         int    `yaml:"rate_limit_rps"`
		RateLimitBurst       int    `yaml:"rate_limit_burst"`
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// envOverrides are applied after the YAML file. Unset variables leave the
// file value in place.
type envOverrides struct {
	ServerPort        string        `envconfig:"SERVER_PORT"`
	WeatherAPIURL     string        `envconfig:"WEATHER_API_URL"`
	WeatherAPITimeout time.Duration `envconfig:"WEATHER_API_TIMEOUT"`
	CacheBackend      string        `envconfig:"CACHE_BACKEND"`
	MemcachedAddrs    string        `envconfig:"MEMCACHED_ADDRS"`
	RedisAddr         string        `envconfig:"REDIS_ADDR"`
	RedisPassword     string        `envconfig:"REDIS_PASSWORD"`
	RedisDB           *int          `envconfig:"REDIS_DB"`
	DebounceDelay     time.Duration `envconfig:"DEBOUNCE_DELAY"`
	InitialLocation   string        `envconfig:"INITIAL_LOCATION"`
	WarmLocations     []string      `envconfig:"WARM_LOCATIONS"`
}

// Load reads configuration relative to the working directory. See LoadFrom.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom reads root/.env (optional), root/config/{ENV_NAME}.yaml (default dev)
// and root/config/secrets.yaml, then applies env overrides and validates.
// The API key comes from WEATHER_API_KEY or the secrets file.
func LoadFrom(root string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(root, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := fromFile(fc)

	cfg.WeatherAPIKey = os.Getenv("WEATHER_API_KEY")
	if cfg.WeatherAPIKey == "" {
		key, err := readSecrets(filepath.Join(root, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.WeatherAPIKey = key
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}

	var ov envOverrides
	if err := envconfig.Process("", &ov); err != nil {
		return nil, fmt.Errorf("process env overrides: %w", err)
	}
	applyOverrides(cfg, ov)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromFile(fc fileConfig) *Config {
	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.openweathermap.org/data/2.5/weather"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 2*time.Second)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = BackendInMemory
	}
	cfg.CacheRetention = parseDuration(fc.Cache.Retention, time.Hour)
	cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = strings.TrimSpace(fc.Cache.Redis.Addr)
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisPrefix = fc.Cache.Redis.Prefix
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = "weather:"
	}
	cfg.WarmLocations = fc.Cache.Warm.Locations
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.Warm.Interval, 0)

	cfg.DebounceDelay = parseDuration(fc.Engine.DebounceDelay, 500*time.Millisecond)
	cfg.InitialLocation = strings.TrimSpace(fc.Engine.InitialLocation)
	cfg.LocationMinLength = fc.Engine.LocationMinLength
	if cfg.LocationMinLength <= 0 {
		cfg.LocationMinLength = 1
	}
	cfg.LocationMaxLength = fc.Engine.LocationMaxLength
	if cfg.LocationMaxLength <= 0 {
		cfg.LocationMaxLength = 100
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 10
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	cfg.OverloadWindow = parseDuration(fc.Reliability.OverloadWindow, time.Minute)
	cfg.OverloadThresholdPct = fc.Reliability.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 10*time.Second)
	return cfg
}

func readSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return sec.WeatherAPIKey, nil
}

func applyOverrides(cfg *Config, ov envOverrides) {
	if ov.ServerPort != "" {
		cfg.ServerPort = ov.ServerPort
	}
	if ov.WeatherAPIURL != "" {
		cfg.WeatherAPIURL = ov.WeatherAPIURL
	}
	if ov.WeatherAPITimeout != 0 {
		cfg.WeatherAPITimeout = ov.WeatherAPITimeout
	}
	if b := strings.TrimSpace(strings.ToLower(ov.CacheBackend)); b != "" {
		cfg.CacheBackend = b
	}
	if ov.MemcachedAddrs != "" {
		cfg.MemcachedAddrs = strings.TrimSpace(ov.MemcachedAddrs)
	}
	if ov.RedisAddr != "" {
		cfg.RedisAddr = strings.TrimSpace(ov.RedisAddr)
	}
	if ov.RedisPassword != "" {
		cfg.RedisPassword = ov.RedisPassword
	}
	if ov.RedisDB != nil {
		cfg.RedisDB = *ov.RedisDB
	}
	if ov.DebounceDelay != 0 {
		cfg.DebounceDelay = ov.DebounceDelay
	}
	if ov.InitialLocation != "" {
		cfg.InitialLocation = strings.TrimSpace(ov.InitialLocation)
	}
	if len(ov.WarmLocations) > 0 {
		cfg.WarmLocations = ov.WarmLocations
	}
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

var structValidator = validator.New()

// validate checks struct rules, then adjusts dependent values: RequestTimeout
// is raised above WeatherAPITimeout and CacheRetention is never shorter than
// the freshness window.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("WEATHER_API_TIMEOUT must be positive")
	}
	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q validation", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	if cfg.CacheRetention < minCacheRetention {
		cfg.CacheRetention = minCacheRetention
	}
	return nil
}
