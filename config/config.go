package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	ModelCache ModelCacheConfig `yaml:"model_cache"`
	Redis      RedisConfig      `yaml:"redis"`
	CORS       CORSConfig       `yaml:"cors"`
	Training   TrainingConfig   `yaml:"training"`
	Insights   InsightsConfig   `yaml:"insights"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// GetURL is the connection string form pgxpool expects.
func (d DatabaseConfig) GetURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

const (
	SourceFile     = "file"
	SourcePostgres = "postgres"

	CacheDir      = "dir"
	CachePostgres = "postgres"
)

type DatasetConfig struct {
	Source            string `yaml:"source"`
	Path              string `yaml:"path"`
	SpreadsheetPath   string `yaml:"spreadsheet_path"`
	Table             string `yaml:"table"`
	CurrentSchoolYear int    `yaml:"current_school_year"`
}

type ModelCacheConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

type RedisConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	ConnectAttempts int    `yaml:"connect_attempts"`
	CacheTTLSec     int    `yaml:"cache_ttl_sec"`
}

// Enabled is false when no redis host is configured.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

func (r RedisConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLSec) * time.Second
}

type CORSConfig struct {
	AllowedOrigins string `yaml:"allowed_origins"`
}

type TrainingConfig struct {
	TimeoutSec int `yaml:"timeout_sec"`
}

func (t TrainingConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutSec) * time.Second
}

type InsightsConfig struct {
	UnexcusedPercentile float64 `yaml:"unexcused_percentile"`
	ResourceTopN        int     `yaml:"resource_top_n"`
	TierBoundaryMargin  float64 `yaml:"tier_boundary_margin"`
}

type WebSocketConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

func (w WebSocketConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMS) * time.Millisecond
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, MetricsAddr: ":9090"},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "attendance",
			Name:    "attendance",
			SSLMode: "disable",
		},
		Dataset: DatasetConfig{
			Source:            SourceFile,
			Path:              "data/alerts.csv",
			SpreadsheetPath:   "data/predictions.xlsx",
			Table:             "student_attendance",
			CurrentSchoolYear: 2024,
		},
		ModelCache: ModelCacheConfig{Backend: CacheDir, Dir: "model_cache"},
		Redis:      RedisConfig{Port: 6379, ConnectAttempts: 3, CacheTTLSec: 300},
		CORS:       CORSConfig{AllowedOrigins: "*"},
		Training:   TrainingConfig{TimeoutSec: 300},
		Insights: InsightsConfig{
			UnexcusedPercentile: 90,
			ResourceTopN:        3,
			TierBoundaryMargin:  2.0,
		},
		WebSocket: WebSocketConfig{PollIntervalMS: 1000},
	}
}

// LoadConfig layers defaults, an optional YAML file (CONFIG_PATH, default
// config.yaml) and environment variables, in that order.
func LoadConfig() (*Config, error) {
	cfg := defaults()

	path := getEnv("CONFIG_PATH", "config.yaml")
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error
	if cfg.Server.Port, err = getIntEnv("SERVER_PORT", cfg.Server.Port); err != nil {
		return fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	cfg.Server.MetricsAddr = getEnv("METRICS_ADDR", cfg.Server.MetricsAddr)

	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	if cfg.Database.Port, err = getIntEnv("DB_PORT", cfg.Database.Port); err != nil {
		return fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Dataset.Source = getEnv("DATASET_SOURCE", cfg.Dataset.Source)
	cfg.Dataset.Path = getEnv("DATASET_PATH", cfg.Dataset.Path)
	cfg.Dataset.SpreadsheetPath = getEnv("DATASET_SPREADSHEET_PATH", cfg.Dataset.SpreadsheetPath)
	cfg.Dataset.Table = getEnv("DATASET_TABLE", cfg.Dataset.Table)
	if cfg.Dataset.CurrentSchoolYear, err = getIntEnv("CURRENT_SCHOOL_YEAR", cfg.Dataset.CurrentSchoolYear); err != nil {
		return fmt.Errorf("invalid CURRENT_SCHOOL_YEAR: %w", err)
	}

	cfg.ModelCache.Backend = getEnv("MODEL_CACHE", cfg.ModelCache.Backend)
	cfg.ModelCache.Dir = getEnv("MODEL_CACHE_DIR", cfg.ModelCache.Dir)

	cfg.Redis.Host = getEnv("REDIS_HOST", cfg.Redis.Host)
	if cfg.Redis.Port, err = getIntEnv("REDIS_PORT", cfg.Redis.Port); err != nil {
		return fmt.Errorf("invalid REDIS_PORT: %w", err)
	}
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	if cfg.Redis.DB, err = getIntEnv("REDIS_DB", cfg.Redis.DB); err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.Redis.ConnectAttempts, err = getIntEnv("REDIS_CONNECT_ATTEMPTS", cfg.Redis.ConnectAttempts); err != nil {
		return fmt.Errorf("invalid REDIS_CONNECT_ATTEMPTS: %w", err)
	}
	if cfg.Redis.CacheTTLSec, err = getIntEnv("CACHE_TTL_SEC", cfg.Redis.CacheTTLSec); err != nil {
		return fmt.Errorf("invalid CACHE_TTL_SEC: %w", err)
	}

	cfg.CORS.AllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", cfg.CORS.AllowedOrigins)

	if cfg.Training.TimeoutSec, err = getIntEnv("TRAINER_TIMEOUT_SEC", cfg.Training.TimeoutSec); err != nil {
		return fmt.Errorf("invalid TRAINER_TIMEOUT_SEC: %w", err)
	}

	if cfg.Insights.UnexcusedPercentile, err = getFloatEnv("UNEXCUSED_PERCENTILE", cfg.Insights.UnexcusedPercentile); err != nil {
		return fmt.Errorf("invalid UNEXCUSED_PERCENTILE: %w", err)
	}
	if cfg.Insights.ResourceTopN, err = getIntEnv("RESOURCE_TOP_N", cfg.Insights.ResourceTopN); err != nil {
		return fmt.Errorf("invalid RESOURCE_TOP_N: %w", err)
	}
	if cfg.Insights.TierBoundaryMargin, err = getFloatEnv("TIER_BOUNDARY_MARGIN", cfg.Insights.TierBoundaryMargin); err != nil {
		return fmt.Errorf("invalid TIER_BOUNDARY_MARGIN: %w", err)
	}

	if cfg.WebSocket.PollIntervalMS, err = getIntEnv("WS_POLL_INTERVAL_MS", cfg.WebSocket.PollIntervalMS); err != nil {
		return fmt.Errorf("invalid WS_POLL_INTERVAL_MS: %w", err)
	}
	return nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var problems []string
	switch c.Dataset.Source {
	case SourceFile:
		if c.Dataset.Path == "" && c.Dataset.SpreadsheetPath == "" {
			problems = append(problems, "dataset.path or dataset.spreadsheet_path is required")
		}
	case SourcePostgres:
		if c.Dataset.Table == "" {
			problems = append(problems, "dataset.table is required for the postgres source")
		}
	default:
		problems = append(problems, fmt.Sprintf("dataset.source %q must be %q or %q", c.Dataset.Source, SourceFile, SourcePostgres))
	}
	switch c.ModelCache.Backend {
	case CacheDir:
		if c.ModelCache.Dir == "" {
			problems = append(problems, "model_cache.dir is required")
		}
	case CachePostgres:
	default:
		problems = append(problems, fmt.Sprintf("model_cache.backend %q must be %q or %q", c.ModelCache.Backend, CacheDir, CachePostgres))
	}
	if c.Insights.UnexcusedPercentile <= 0 || c.Insights.UnexcusedPercentile >= 100 {
		problems = append(problems, "insights.unexcused_percentile must be between 0 and 100")
	}
	if c.Insights.ResourceTopN < 1 {
		problems = append(problems, "insights.resource_top_n must be positive")
	}
	if c.Training.TimeoutSec < 1 {
		problems = append(problems, "training.timeout_sec must be positive")
	}
	if c.WebSocket.PollIntervalMS < 1 {
		problems = append(problems, "websocket.poll_interval_ms must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}
