package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything needed to boot the console.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Auth    AuthConfig    `yaml:"auth"`
	Cache   CacheConfig   `yaml:"cache"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Server  ServerConfig  `yaml:"server"`
	Uploads UploadsConfig `yaml:"uploads"`
}

// BackendConfig points the gateway at the flight-analytics API.
type BackendConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
	Paths   PathsConfig   `yaml:"paths"`
}

// PathsConfig lists the backend routes. RegionDetail and Download contain a
// single %s placeholder for the escaped path segment.
type PathsConfig struct {
	Flights        string `yaml:"flights"`
	Statistics     string `yaml:"statistics"`
	RegionRating   string `yaml:"regionRating"`
	RegionDetail   string `yaml:"regionDetail"`
	UploadExcel    string `yaml:"uploadExcel"`
	UploadSHR      string `yaml:"uploadSHR"`
	GenerateReport string `yaml:"generateReport"`
	Download       string `yaml:"download"`
	Health         string `yaml:"health"`
}

// AuthConfig selects where the bearer token comes from. The first non-empty source wins:
// Token, then TokenFile, then TokenEnv.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"tokenFile"`
	TokenEnv  string `yaml:"tokenEnv"`
}

// CacheConfig controls query freshness windows.
type CacheConfig struct {
	FlightsFresh       time.Duration `yaml:"flightsFresh"`
	StatisticsFresh    time.Duration `yaml:"statisticsFresh"`
	RegionRatingFresh  time.Duration `yaml:"regionRatingFresh"`
	RegionDetailsFresh time.Duration `yaml:"regionDetailsFresh"`
	Retain             time.Duration `yaml:"retain"`
	SweepInterval      time.Duration `yaml:"sweepInterval"`
}

// StorageConfig selects the durable store for the persisted client record.
type StorageConfig struct {
	Driver     string       `yaml:"driver"`
	Path       string       `yaml:"path"`
	RecordName string       `yaml:"recordName"`
	Valkey     ValkeyConfig `yaml:"valkey"`
}

// ValkeyConfig configures the optional shared storage driver.
type ValkeyConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Namespace    string        `yaml:"namespace"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ServerConfig controls the long-running serve mode.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// UploadsConfig bounds client-side upload preflight.
type UploadsConfig struct {
	MaxBytes int64 `yaml:"maxBytes"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("BAS_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the console cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "file", "memory":
	case "valkey":
		if c.Storage.Valkey.Addr == "" {
			return errors.New("storage.valkey.addr is required for the valkey driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Backend.Timeout <= 0 {
		return errors.New("backend.timeout must be positive")
	}
	if c.Uploads.MaxBytes <= 0 {
		return errors.New("uploads.maxBytes must be positive")
	}
	for name, d := range map[string]time.Duration{
		"flightsFresh":       c.Cache.FlightsFresh,
		"statisticsFresh":    c.Cache.StatisticsFresh,
		"regionRatingFresh":  c.Cache.RegionRatingFresh,
		"regionDetailsFresh": c.Cache.RegionDetailsFresh,
		"retain":             c.Cache.Retain,
		"sweepInterval":      c.Cache.SweepInterval,
	} {
		if d < 0 {
			return fmt.Errorf("cache.%s must not be negative, got %s", name, d)
		}
	}
	return nil
}

// Default returns the built-in configuration without reading files or environment.
func Default() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
			Paths: PathsConfig{
				Flights:        "/flights",
				Statistics:     "/flights/statistics",
				RegionRating:   "/regions/rating",
				RegionDetail:   "/regions/%s/statistics",
				UploadExcel:    "/flights/upload/excel",
				UploadSHR:      "/flights/upload/shr",
				GenerateReport: "/reports/generate",
				Download:       "/reports/download/%s",
				Health:         "/health",
			},
		},
		Auth: AuthConfig{TokenEnv: "BAS_TOKEN"},
		Cache: CacheConfig{
			FlightsFresh:       5 * time.Minute,
			StatisticsFresh:    10 * time.Minute,
			RegionRatingFresh:  10 * time.Minute,
			RegionDetailsFresh: 10 * time.Minute,
			Retain:             30 * time.Minute,
			SweepInterval:      time.Minute,
		},
		Storage: StorageConfig{
			Driver:     "file",
			Path:       defaultStoragePath(),
			RecordName: "bas-storage",
			Valkey: ValkeyConfig{
				Namespace:    "bas",
				DialTimeout:  2 * time.Second,
				ReadTimeout:  500 * time.Millisecond,
				WriteTimeout: 500 * time.Millisecond,
				MaxRetries:   2,
			},
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			RefreshInterval: time.Minute,
			GracefulTimeout: 10 * time.Second,
		},
		Uploads: UploadsConfig{MaxBytes: 100 << 20},
	}
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".bas-console"
	}
	return dir + string(os.PathSeparator) + "bas-console"
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BAS_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("BAS_BACKEND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backend.Timeout = d
		}
	}
	if v := os.Getenv("BAS_AUTH_TOKEN_FILE"); v != "" {
		cfg.Auth.TokenFile = v
	}
	if v := os.Getenv("BAS_AUTH_TOKEN_ENV"); v != "" {
		cfg.Auth.TokenEnv = v
	}
	if v := os.Getenv("BAS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BAS_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("BAS_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("BAS_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("BAS_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.RefreshInterval = d
		}
	}
	if v := os.Getenv("BAS_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("BAS_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("BAS_VALKEY_ADDR"); v != "" {
		cfg.Storage.Valkey.Addr = v
	}
	if v := os.Getenv("BAS_VALKEY_USERNAME"); v != "" {
		cfg.Storage.Valkey.Username = v
	}
	if v := os.Getenv("BAS_VALKEY_PASSWORD"); v != "" {
		cfg.Storage.Valkey.Password = v
	}
	if v := os.Getenv("BAS_VALKEY_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Storage.Valkey.DB = db
		}
	}
	if v := os.Getenv("BAS_VALKEY_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Storage.Valkey.TLS = true
	}
	for name, target := range map[string]*time.Duration{
		"BAS_CACHE_FLIGHTS_FRESH":        &cfg.Cache.FlightsFresh,
		"BAS_CACHE_STATISTICS_FRESH":     &cfg.Cache.StatisticsFresh,
		"BAS_CACHE_REGION_RATING_FRESH":  &cfg.Cache.RegionRatingFresh,
		"BAS_CACHE_REGION_DETAILS_FRESH": &cfg.Cache.RegionDetailsFresh,
		"BAS_CACHE_RETAIN":               &cfg.Cache.Retain,
		"BAS_CACHE_SWEEP_INTERVAL":       &cfg.Cache.SweepInterval,
	} {
		if v := os.Getenv(name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*target = d
			}
		}
	}
	if v := os.Getenv("BAS_UPLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Uploads.MaxBytes = n
		}
	}
}
