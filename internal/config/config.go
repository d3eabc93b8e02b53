package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server      ServerConfig
	Backend     BackendConfig
	Cache       CacheConfig
	Geocode     GeocodeConfig
	Campus      CampusConfig
	Storage     StorageConfig
	Log         LogConfig
	Environment string // "development" or "production"
}

type ServerConfig struct {
	Port int
}

type BackendConfig struct {
	BaseURL              string
	TimeoutSeconds       int
	UploadTimeoutSeconds int
	MockMode             bool
}

// Timeout returns the default per-call budget.
func (c BackendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// UploadTimeout returns the budget for upload-shaped calls.
func (c BackendConfig) UploadTimeout() time.Duration {
	return time.Duration(c.UploadTimeoutSeconds) * time.Second
}

type CacheConfig struct {
	Enabled    bool
	TTLMinutes int
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

type GeocodeConfig struct {
	BaseURL      string
	UserAgent    string
	CountryCodes string
}

type CampusConfig struct {
	Lat float64
	Lon float64
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// IsProduction reports whether the deployment runs in production mode.
// In production, read failures surface as errors instead of sample data.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Backend: BackendConfig{
			BaseURL:              "http://localhost:8080/api/v1",
			TimeoutSeconds:       15,
			UploadTimeoutSeconds: 60,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTLMinutes: 60,
		},
		Geocode: GeocodeConfig{
			BaseURL:      "https://nominatim.openstreetmap.org",
			UserAgent:    "mietwerk-portal/1.0 (housing portal; contact: ops@mietwerk.example)",
			CountryCodes: "nl",
		},
		Campus: CampusConfig{
			// TU Delft campus center.
			Lat: 51.9981,
			Lon: 4.3731,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Environment: "development",
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.mietwerk.portal).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/portal/config.json.
//
// Environment variables (PORTAL_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Backend.BaseURL == "" {
		return Config{}, fmt.Errorf("missing required config: backend.base_url (env PORTAL_BACKEND_BASE_URL)")
	}
	if cfg.Environment != "development" && cfg.Environment != "production" {
		return Config{}, fmt.Errorf("invalid environment %q: must be development or production", cfg.Environment)
	}

	return cfg, nil
}
