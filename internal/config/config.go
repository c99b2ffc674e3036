package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/dropzone-weather-service/internal/validation"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort      string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	StaticDir       string
	LogLevel        string

	Timezone string
	Location *time.Location

	FMIURL     string
	FMITimeout time.Duration

	BreakerFailures    uint32
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration

	// Station inputs for the refresh cycle.
	FMISID           string
	ICAOCode         string
	ForecastDay      int
	ObservationRange int
	ForecastRange    int

	RefreshInterval   time.Duration
	CacheBustWindow   time.Duration
	ObservationMaxAge time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	DegradedWindow     time.Duration
	DegradedErrorPct   int
	DegradedMinSamples int
}

type fileConfig struct {
	Server struct {
		Port            string `yaml:"port"`
		RequestTimeout  string `yaml:"request_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Static struct {
		Dir string `yaml:"dir"`
	} `yaml:"static"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Timezone string `yaml:"timezone"`

	FMI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
		Breaker struct {
			ConsecutiveFailures uint32 `yaml:"consecutive_failures"`
			MaxRequests         uint32 `yaml:"max_requests"`
			Interval            string `yaml:"interval"`
			Timeout             string `yaml:"timeout"`
		} `yaml:"breaker"`
	} `yaml:"fmi"`

	Station struct {
		FMISID           string `yaml:"fmisid"`
		ICAOCode         string `yaml:"icao_code"`
		ForecastDay      int    `yaml:"forecast_day"`
		ObservationRange int    `yaml:"observation_range"`
		ForecastRange    int    `yaml:"forecast_range"`
	} `yaml:"station"`

	Refresh struct {
		Interval        string `yaml:"interval"`
		CacheBustWindow string `yaml:"cache_bust_window"`
	} `yaml:"refresh"`

	Observations struct {
		MaxAge string `yaml:"max_age"`
	} `yaml:"observations"`

	RateLimit struct {
		RPS   int `yaml:"rps"`
		Burst int `yaml:"burst"`
	} `yaml:"rate_limit"`

	Health struct {
		DegradedWindow     string `yaml:"degraded_window"`
		DegradedErrorPct   int    `yaml:"degraded_error_pct"`
		DegradedMinSamples int    `yaml:"degraded_min_samples"`
	} `yaml:"health"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev). A .env file
// in the working directory is loaded first; existing environment variables win.
// Station inputs and FMI_URL can be overridden from the environment. Call from project root.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
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

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.RequestTimeout = parseDuration(fc.Server.RequestTimeout, 15*time.Second)
	cfg.ShutdownTimeout = parseDuration(fc.Server.ShutdownTimeout, 30*time.Second)
	cfg.StaticDir = strings.TrimSpace(fc.Static.Dir)
	cfg.LogLevel = strings.TrimSpace(fc.Log.Level)

	cfg.Timezone = strings.TrimSpace(fc.Timezone)
	if cfg.Timezone == "" {
		cfg.Timezone = "Europe/Helsinki"
	}

	cfg.FMIURL = fc.FMI.URL
	cfg.FMITimeout = parseDurationOrZero(fc.FMI.Timeout, 10*time.Second)
	cfg.BreakerFailures = fc.FMI.Breaker.ConsecutiveFailures
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	cfg.BreakerMaxRequests = fc.FMI.Breaker.MaxRequests
	if cfg.BreakerMaxRequests == 0 {
		cfg.BreakerMaxRequests = 1
	}
	cfg.BreakerInterval = parseDuration(fc.FMI.Breaker.Interval, 60*time.Second)
	cfg.BreakerTimeout = parseDuration(fc.FMI.Breaker.Timeout, 30*time.Second)

	cfg.FMISID = fc.Station.FMISID
	cfg.ICAOCode = fc.Station.ICAOCode
	cfg.ForecastDay = fc.Station.ForecastDay
	cfg.ObservationRange = fc.Station.ObservationRange
	if cfg.ObservationRange == 0 {
		cfg.ObservationRange = 12
	}
	cfg.ForecastRange = fc.Station.ForecastRange
	if cfg.ForecastRange == 0 {
		cfg.ForecastRange = 8
	}

	cfg.RefreshInterval = parseDuration(fc.Refresh.Interval, 60*time.Second)
	cfg.CacheBustWindow = parseDuration(fc.Refresh.CacheBustWindow, 30*time.Second)
	cfg.ObservationMaxAge = parseDuration(fc.Observations.MaxAge, 15*time.Minute)

	cfg.RateLimitRPS = fc.RateLimit.RPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.RateLimit.Burst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 10*time.Minute)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.DegradedMinSamples = fc.Health.DegradedMinSamples
	if cfg.DegradedMinSamples <= 0 {
		cfg.DegradedMinSamples = 3
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides station inputs and the FMI endpoint from the environment.
func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("FMISID"); ok {
		cfg.FMISID = v
	}
	if v, ok := os.LookupEnv("ICAOCODE"); ok {
		cfg.ICAOCode = v
	}
	if v := os.Getenv("FMI_URL"); v != "" {
		cfg.FMIURL = v
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		cfg.Timezone = v
	}
	ints := []struct {
		name string
		dst  *int
	}{
		{"FORECAST_DAY", &cfg.ForecastDay},
		{"OBSERVATION_RANGE", &cfg.ObservationRange},
		{"FORECAST_RANGE", &cfg.ForecastRange},
	}
	for _, e := range ints {
		v := strings.TrimSpace(os.Getenv(e.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", e.name, err)
		}
		*e.dst = n
	}
	return nil
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

// validate performs post-load validation. It normalizes the station inputs,
// resolves the timezone and raises RequestTimeout above FMITimeout if needed.
// Empty station ids are allowed; the refresh cycle reports them as missing.
func validate(cfg *Config) error {
	if cfg.FMITimeout <= 0 {
		return fmt.Errorf("fmi.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.FMITimeout {
		cfg.RequestTimeout = cfg.FMITimeout + time.Second
	}
	if cfg.FMISID != "" {
		id, err := validation.ValidateStation(cfg.FMISID)
		if err != nil {
			return fmt.Errorf("station.fmisid %q: %w", cfg.FMISID, err)
		}
		cfg.FMISID = id
	}
	code, err := validation.ValidateAirport(cfg.ICAOCode)
	if err != nil {
		return fmt.Errorf("station.icao_code %q: %w", cfg.ICAOCode, err)
	}
	cfg.ICAOCode = code
	if cfg.ForecastDay < 0 || cfg.ForecastDay > validation.MaxForecastDay {
		return fmt.Errorf("station.forecast_day must be 0..%d, got %d", validation.MaxForecastDay, cfg.ForecastDay)
	}
	if cfg.ObservationRange <= 0 {
		return fmt.Errorf("station.observation_range must be positive, got %d", cfg.ObservationRange)
	}
	if cfg.ForecastRange <= 0 {
		return fmt.Errorf("station.forecast_range must be positive, got %d", cfg.ForecastRange)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc
	return nil
}
