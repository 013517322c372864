package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/dexview/internal/catalog"
)

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return newFileBackend(path)
}

// TestDefaults verifies all default values are applied when no file exists.
func TestDefaults(t *testing.T) {
	cfg, err := loadWith(writeTempConfig(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "127.0.0.1:4100" {
		t.Errorf("Server.Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Catalog.BaseURL != "https://pokeapi.co/api/v2" {
		t.Errorf("Catalog.BaseURL = %q", cfg.Catalog.BaseURL)
	}
	if cfg.Catalog.PageSize != 150 {
		t.Errorf("Catalog.PageSize = %d, want 150", cfg.Catalog.PageSize)
	}
	if cfg.Catalog.Concurrency != 32 {
		t.Errorf("Catalog.Concurrency = %d, want 32", cfg.Catalog.Concurrency)
	}
	if cfg.Catalog.Timeout() != 10*time.Second {
		t.Errorf("Catalog.Timeout() = %v, want 10s", cfg.Catalog.Timeout())
	}
	if cfg.Catalog.RateLimit != 0 {
		t.Errorf("Catalog.RateLimit = %v, want 0", cfg.Catalog.RateLimit)
	}
	if cfg.Catalog.Policy() != catalog.PolicyExclude {
		t.Errorf("Catalog.Policy() = %q, want exclude", cfg.Catalog.Policy())
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

// TestFileParsing verifies that fields are read from the JSON file.
func TestFileParsing(t *testing.T) {
	b := writeTempConfig(t, `{
		"server.port": 5000,
		"catalog.base_url": "http://localhost:9000/api/v2",
		"catalog.page_size": "20",
		"catalog.rate_limit": 12.5,
		"catalog.malformed_policy": "unknown",
		"log.level": "debug"
	}`)

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Catalog.BaseURL != "http://localhost:9000/api/v2" {
		t.Errorf("Catalog.BaseURL = %q", cfg.Catalog.BaseURL)
	}
	if cfg.Catalog.PageSize != 20 {
		t.Errorf("Catalog.PageSize = %d, want 20", cfg.Catalog.PageSize)
	}
	if cfg.Catalog.RateLimit != 12.5 {
		t.Errorf("Catalog.RateLimit = %v, want 12.5", cfg.Catalog.RateLimit)
	}
	if cfg.Catalog.Policy() != catalog.PolicyUnknown {
		t.Errorf("Catalog.Policy() = %q, want unknown", cfg.Catalog.Policy())
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

// TestEnvOverride verifies that environment variables override file values.
func TestEnvOverride(t *testing.T) {
	b := writeTempConfig(t, `{"catalog.page_size": 20, "catalog.concurrency": 8}`)

	t.Setenv("DEXVIEW_CATALOG_PAGE_SIZE", "30")
	t.Setenv("DEXVIEW_CATALOG_REQUEST_TIMEOUT", "3s")
	t.Setenv("DEXVIEW_CATALOG_RATE_LIMIT", "5")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Catalog.PageSize != 30 {
		t.Errorf("Catalog.PageSize = %d, want 30", cfg.Catalog.PageSize)
	}
	if cfg.Catalog.Concurrency != 8 {
		t.Errorf("Catalog.Concurrency = %d, want 8 from file", cfg.Catalog.Concurrency)
	}
	if cfg.Catalog.Timeout() != 3*time.Second {
		t.Errorf("Catalog.Timeout() = %v, want 3s", cfg.Catalog.Timeout())
	}
	if cfg.Catalog.RateLimit != 5 {
		t.Errorf("Catalog.RateLimit = %v, want 5", cfg.Catalog.RateLimit)
	}
}

// TestEnvOverride_BadIntKeepsValue verifies an unparsable env var is ignored.
func TestEnvOverride_BadIntKeepsValue(t *testing.T) {
	t.Setenv("DEXVIEW_SERVER_PORT", "not-a-port")

	cfg, err := loadWith(writeTempConfig(t, ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default 4100", cfg.Server.Port)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		file string
		want string
	}{
		{"relative base url", `{"catalog.base_url": "pokeapi.co"}`, "catalog.base_url"},
		{"page size zero", `{"catalog.page_size": 0}`, "catalog.page_size"},
		{"page size huge", `{"catalog.page_size": 5000}`, "catalog.page_size"},
		{"concurrency", `{"catalog.concurrency": 0}`, "catalog.concurrency"},
		{"timeout", `{"catalog.request_timeout": "soon"}`, "catalog.request_timeout"},
		{"policy", `{"catalog.malformed_policy": "drop"}`, "catalog.malformed_policy"},
		{"port", `{"server.port": 70000}`, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadWith(writeTempConfig(t, tt.file))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestFileBackend_BadIntIsError(t *testing.T) {
	_, err := loadWith(writeTempConfig(t, `{"catalog.page_size": 1.5}`))
	if err == nil {
		t.Fatal("expected error for non-integer page size")
	}
}

func TestSetKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")
	b := newFileBackend(path)

	if err := setKeyWith(b, "catalog.page_size", "42"); err != nil {
		t.Fatalf("setKeyWith(page_size): %v", err)
	}
	if err := setKeyWith(b, "catalog.rate_limit", "2.5"); err != nil {
		t.Fatalf("setKeyWith(rate_limit): %v", err)
	}
	if err := setKeyWith(b, "log.level", "debug"); err != nil {
		t.Fatalf("setKeyWith(log.level): %v", err)
	}
	if err := setKeyWith(b, "catalog.page_size", "many"); err == nil {
		t.Error("expected error for non-integer value")
	}
	if err := setKeyWith(b, "nope", "x"); err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Errorf("err = %v, want unknown config key", err)
	}

	// Reload from disk.
	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Catalog.PageSize != 42 || cfg.Catalog.RateLimit != 2.5 || cfg.Log.Level != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestShowAll(t *testing.T) {
	keys := ShowAll(defaults())
	if len(keys) != len(ValidKeys()) {
		t.Fatalf("ShowAll returned %d keys, ValidKeys %d", len(keys), len(ValidKeys()))
	}
	found := false
	for _, k := range keys {
		if k.Key == "catalog.page_size" {
			found = true
			if k.Value != "150" || k.EnvVar != "DEXVIEW_CATALOG_PAGE_SIZE" {
				t.Errorf("page_size = %+v", k)
			}
		}
	}
	if !found {
		t.Error("catalog.page_size missing from ShowAll")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("DEXVIEW_LOG_LEVEL=debug\nDEXVIEW_SERVER_PORT=4555\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Already-set variables win over the .env file.
	t.Setenv("DEXVIEW_SERVER_PORT", "4999")
	t.Setenv("DEXVIEW_LOG_LEVEL", "")
	os.Unsetenv("DEXVIEW_LOG_LEVEL")

	loadDotEnv(path)
	loadDotEnv(filepath.Join(dir, "missing.env"))

	cfg, err := loadWith(writeTempConfig(t, ""))
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug from .env", cfg.Log.Level)
	}
	if cfg.Server.Port != 4999 {
		t.Errorf("Server.Port = %d, want 4999 from environment", cfg.Server.Port)
	}
}
