package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.bind", typ: kString, env: "DEXVIEW_SERVER_BIND",
		apply:   func(cfg *Config, v any) { cfg.Server.Bind = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Bind },
	},
	{
		key: "server.port", typ: kInt, env: "DEXVIEW_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "catalog.base_url", typ: kString, env: "DEXVIEW_CATALOG_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Catalog.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.BaseURL },
	},
	{
		key: "catalog.page_size", typ: kInt, env: "DEXVIEW_CATALOG_PAGE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Catalog.PageSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Catalog.PageSize },
	},
	{
		key: "catalog.concurrency", typ: kInt, env: "DEXVIEW_CATALOG_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Catalog.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Catalog.Concurrency },
	},
	{
		key: "catalog.request_timeout", typ: kString, env: "DEXVIEW_CATALOG_REQUEST_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Catalog.RequestTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.RequestTimeout },
	},
	{
		key: "catalog.rate_limit", typ: kFloat, env: "DEXVIEW_CATALOG_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Catalog.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.Catalog.RateLimit },
	},
	{
		key: "catalog.burst", typ: kInt, env: "DEXVIEW_CATALOG_BURST",
		apply:   func(cfg *Config, v any) { cfg.Catalog.Burst = v.(int) },
		extract: func(cfg Config) any { return cfg.Catalog.Burst },
	},
	{
		key: "catalog.malformed_policy", typ: kString, env: "DEXVIEW_CATALOG_MALFORMED_POLICY",
		apply:   func(cfg *Config, v any) { cfg.Catalog.MalformedPolicy = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalog.MalformedPolicy },
	},
	{
		key: "log.level", typ: kString, env: "DEXVIEW_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
