package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "attendance",
		Password: "secret",
		Name:     "attendance",
		SSLMode:  "disable",
	}
	dsn := db.GetDSN()

	expected := "host=localhost port=5432 user=attendance password=secret dbname=attendance sslmode=disable"
	if dsn != expected {
		t.Errorf("GetDSN() = %q, want %q", dsn, expected)
	}
}

func TestGetURL(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "n", SSLMode: "require"}
	want := "postgres://u:p@db:5433/n?sslmode=require"
	if got := db.GetURL(); got != want {
		t.Errorf("GetURL() = %q, want %q", got, want)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_CONFIG_VAR", "")
	if got := getEnv("TEST_CONFIG_VAR", "default"); got != "default" {
		t.Errorf("getEnv() = %q, want %q", got, "default")
	}

	t.Setenv("TEST_CONFIG_VAR", "custom")
	if got := getEnv("TEST_CONFIG_VAR", "default"); got != "custom" {
		t.Errorf("getEnv() = %q, want %q", got, "custom")
	}
}

func TestGetIntEnv(t *testing.T) {
	t.Run("fallback when unset", func(t *testing.T) {
		t.Setenv("TEST_INT_VAR", "")
		got, err := getIntEnv("TEST_INT_VAR", 8080)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 8080 {
			t.Errorf("getIntEnv() = %d, want %d", got, 8080)
		}
	})

	t.Run("parses valid int", func(t *testing.T) {
		t.Setenv("TEST_INT_VAR", "9090")
		got, err := getIntEnv("TEST_INT_VAR", 8080)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 9090 {
			t.Errorf("getIntEnv() = %d, want %d", got, 9090)
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		t.Setenv("TEST_INT_VAR", "abc")
		if _, err := getIntEnv("TEST_INT_VAR", 8080); err == nil {
			t.Error("expected error for non-numeric value")
		}
	})
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Dataset.CurrentSchoolYear != 2024 {
		t.Errorf("CurrentSchoolYear = %d, want 2024", cfg.Dataset.CurrentSchoolYear)
	}
	if cfg.Redis.Enabled() {
		t.Error("redis should be disabled without REDIS_HOST")
	}
	if cfg.Training.Timeout() != 300*time.Second {
		t.Errorf("Training.Timeout() = %v, want 5m", cfg.Training.Timeout())
	}
}

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
dataset:
  path: /data/2025.csv
  current_school_year: 2025
insights:
  resource_top_n: 5
redis:
  host: cache
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("RESOURCE_TOP_N", "7")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Dataset.Path != "/data/2025.csv" {
		t.Errorf("Dataset.Path = %q", cfg.Dataset.Path)
	}
	if cfg.Dataset.CurrentSchoolYear != 2025 {
		t.Errorf("CurrentSchoolYear = %d, want 2025", cfg.Dataset.CurrentSchoolYear)
	}
	if cfg.Insights.ResourceTopN != 7 {
		t.Errorf("ResourceTopN = %d, want env override 7", cfg.Insights.ResourceTopN)
	}
	if cfg.Dataset.SpreadsheetPath != "data/predictions.xlsx" {
		t.Errorf("SpreadsheetPath default lost: %q", cfg.Dataset.SpreadsheetPath)
	}
	if !cfg.Redis.Enabled() || cfg.Redis.Port != 6379 {
		t.Errorf("redis = %+v", cfg.Redis)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"bad port", "SERVER_PORT", "http", "SERVER_PORT"},
		{"bad source", "DATASET_SOURCE", "s3", "dataset.source"},
		{"bad cache", "MODEL_CACHE", "memory", "model_cache.backend"},
		{"bad percentile", "UNEXCUSED_PERCENTILE", "100", "unexcused_percentile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
			t.Setenv(tt.key, tt.val)
			_, err := LoadConfig()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
