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
	kBool
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
		key: "server.port", typ: kInt, env: "PORTAL_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "backend.base_url", typ: kString, env: "PORTAL_BACKEND_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Backend.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Backend.BaseURL },
	},
	{
		key: "backend.timeout_seconds", typ: kInt, env: "PORTAL_BACKEND_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Backend.TimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Backend.TimeoutSeconds },
	},
	{
		key: "backend.upload_timeout_seconds", typ: kInt, env: "PORTAL_BACKEND_UPLOAD_TIMEOUT_SECONDS",
		apply:   func(cfg *Config, v any) { cfg.Backend.UploadTimeoutSeconds = v.(int) },
		extract: func(cfg Config) any { return cfg.Backend.UploadTimeoutSeconds },
	},
	{
		key: "backend.mock_mode", typ: kBool, env: "PORTAL_BACKEND_MOCK_MODE",
		apply:   func(cfg *Config, v any) { cfg.Backend.MockMode = v.(bool) },
		extract: func(cfg Config) any { return cfg.Backend.MockMode },
	},
	{
		key: "cache.enabled", typ: kBool, env: "PORTAL_CACHE_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Cache.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Cache.Enabled },
	},
	{
		key: "cache.ttl_minutes", typ: kInt, env: "PORTAL_CACHE_TTL_MINUTES",
		apply:   func(cfg *Config, v any) { cfg.Cache.TTLMinutes = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.TTLMinutes },
	},
	{
		key: "geocode.base_url", typ: kString, env: "PORTAL_GEOCODE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Geocode.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Geocode.BaseURL },
	},
	{
		key: "geocode.user_agent", typ: kString, env: "PORTAL_GEOCODE_USER_AGENT",
		apply:   func(cfg *Config, v any) { cfg.Geocode.UserAgent = v.(string) },
		extract: func(cfg Config) any { return cfg.Geocode.UserAgent },
	},
	{
		key: "geocode.country_codes", typ: kString, env: "PORTAL_GEOCODE_COUNTRY_CODES",
		apply:   func(cfg *Config, v any) { cfg.Geocode.CountryCodes = v.(string) },
		extract: func(cfg Config) any { return cfg.Geocode.CountryCodes },
	},
	{
		key: "campus.lat", typ: kFloat, env: "PORTAL_CAMPUS_LAT",
		apply:   func(cfg *Config, v any) { cfg.Campus.Lat = v.(float64) },
		extract: func(cfg Config) any { return cfg.Campus.Lat },
	},
	{
		key: "campus.lon", typ: kFloat, env: "PORTAL_CAMPUS_LON",
		apply:   func(cfg *Config, v any) { cfg.Campus.Lon = v.(float64) },
		extract: func(cfg Config) any { return cfg.Campus.Lon },
	},
	{
		key: "storage.data_dir", typ: kString, env: "PORTAL_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "PORTAL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "environment", typ: kString, env: "PORTAL_ENVIRONMENT",
		apply:   func(cfg *Config, v any) { cfg.Environment = v.(string) },
		extract: func(cfg Config) any { return cfg.Environment },
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
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
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
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
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
