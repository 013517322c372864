package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kalambet/dexview/internal/catalog"
)

type Config struct {
	Server  ServerConfig
	Catalog CatalogConfig
	Log     LogConfig
}

type ServerConfig struct {
	Bind string
	Port int
}

type CatalogConfig struct {
	BaseURL         string
	PageSize        int
	Concurrency     int
	RequestTimeout  string
	RateLimit       float64
	Burst           int
	MalformedPolicy string
}

type LogConfig struct {
	Level string
}

// Timeout parses RequestTimeout. Load has already validated it.
func (c CatalogConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// Policy parses MalformedPolicy. Load has already validated it.
func (c CatalogConfig) Policy() catalog.MalformedPolicy {
	p, err := catalog.ParseMalformedPolicy(c.MalformedPolicy)
	if err != nil {
		return catalog.PolicyExclude
	}
	return p
}

// Addr is the listen address of the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 4100,
		},
		Catalog: CatalogConfig{
			BaseURL:         "https://pokeapi.co/api/v2",
			PageSize:        150,
			Concurrency:     32,
			RequestTimeout:  "10s",
			Burst:           32,
			MalformedPolicy: string(catalog.PolicyExclude),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from defaults, the JSON config file at
// $XDG_CONFIG_HOME/dexview/config.json, a .env file in the working
// directory, and environment variables, in increasing precedence.
//
// The .env file never overrides variables already set in the environment.
// Environment variables (DEXVIEW_*) override file values.
func Load() (Config, error) {
	loadDotEnv(".env")
	return loadWith(newPlatformBackend())
}

func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "[WARN] could not load %s: %v\n", path, err)
	}
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	var problems []string

	u, err := url.Parse(cfg.Catalog.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("catalog.base_url %q is not an absolute http(s) URL", cfg.Catalog.BaseURL))
	}
	if cfg.Catalog.PageSize < 1 || cfg.Catalog.PageSize > 1000 {
		problems = append(problems, fmt.Sprintf("catalog.page_size %d out of range [1, 1000]", cfg.Catalog.PageSize))
	}
	if cfg.Catalog.Concurrency < 1 {
		problems = append(problems, fmt.Sprintf("catalog.concurrency %d must be >= 1", cfg.Catalog.Concurrency))
	}
	if d, err := time.ParseDuration(cfg.Catalog.RequestTimeout); err != nil || d <= 0 {
		problems = append(problems, fmt.Sprintf("catalog.request_timeout %q is not a positive duration", cfg.Catalog.RequestTimeout))
	}
	if cfg.Catalog.RateLimit < 0 {
		problems = append(problems, "catalog.rate_limit must be >= 0")
	}
	if _, err := catalog.ParseMalformedPolicy(cfg.Catalog.MalformedPolicy); err != nil {
		problems = append(problems, "catalog.malformed_policy: "+err.Error())
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", cfg.Server.Port))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
