package config

import (
	"strconv"
	"testing"
)

// mapBackend is an in-memory ConfigBackend for tests.
type mapBackend struct {
	data map[string]string
}

func (b *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	return v, ok, nil
}

func (b *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, true, err
	}
	return i, true, nil
}

func (b *mapBackend) SetString(key, val string) error {
	b.data[key] = val
	return nil
}

func (b *mapBackend) SetInt(key string, val int) error {
	b.data[key] = strconv.Itoa(val)
	return nil
}

func (b *mapBackend) Delete(key string) error {
	delete(b.data, key)
	return nil
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWith(&mapBackend{data: map[string]string{}})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Backend.TimeoutSeconds != 15 {
		t.Errorf("Backend.TimeoutSeconds = %d, want 15", cfg.Backend.TimeoutSeconds)
	}
	if cfg.Backend.UploadTimeoutSeconds != 60 {
		t.Errorf("Backend.UploadTimeoutSeconds = %d, want 60", cfg.Backend.UploadTimeoutSeconds)
	}
	if !cfg.Cache.Enabled {
		t.Error("Cache.Enabled = false, want true")
	}
	if cfg.Cache.TTLMinutes != 60 {
		t.Errorf("Cache.TTLMinutes = %d, want 60", cfg.Cache.TTLMinutes)
	}
	if cfg.Geocode.UserAgent == "" {
		t.Error("Geocode.UserAgent is empty")
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.IsProduction() {
		t.Error("IsProduction() = true for development default")
	}
}

func TestLoadBackendOverride(t *testing.T) {
	b := &mapBackend{data: map[string]string{
		"server.port":      "9000",
		"backend.base_url": "https://housing.example/api/v2",
		"cache.enabled":    "false",
		"campus.lat":       "52.01",
		"environment":      "production",
	}}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Backend.BaseURL != "https://housing.example/api/v2" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Cache.Enabled {
		t.Error("Cache.Enabled = true, want false")
	}
	if cfg.Campus.Lat != 52.01 {
		t.Errorf("Campus.Lat = %v, want 52.01", cfg.Campus.Lat)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction() = false, want true")
	}
}

func TestLoadEnvOverridesBackend(t *testing.T) {
	t.Setenv("PORTAL_SERVER_PORT", "4700")
	t.Setenv("PORTAL_BACKEND_MOCK_MODE", "true")

	b := &mapBackend{data: map[string]string{
		"server.port": "9000",
	}}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4700 {
		t.Errorf("Server.Port = %d, want env override 4700", cfg.Server.Port)
	}
	if !cfg.Backend.MockMode {
		t.Error("Backend.MockMode = false, want true from env")
	}
}

func TestLoadInvalidEnvironment(t *testing.T) {
	b := &mapBackend{data: map[string]string{
		"environment": "staging",
	}}
	if _, err := loadWith(b); err == nil {
		t.Fatal("expected error for invalid environment")
	}
}

func TestLoadInvalidBoolFallsBack(t *testing.T) {
	b := &mapBackend{data: map[string]string{
		"cache.enabled": "maybe",
	}}
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if !cfg.Cache.Enabled {
		t.Error("Cache.Enabled should keep default true on unparseable value")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg, err := loadWith(&mapBackend{data: map[string]string{}})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if got := cfg.Backend.Timeout().Seconds(); got != 15 {
		t.Errorf("Timeout() = %vs, want 15s", got)
	}
	if got := cfg.Backend.UploadTimeout().Seconds(); got != 60 {
		t.Errorf("UploadTimeout() = %vs, want 60s", got)
	}
	if got := cfg.Cache.TTL().Minutes(); got != 60 {
		t.Errorf("TTL() = %vm, want 60m", got)
	}
}

func TestShowAllCoversEveryKey(t *testing.T) {
	cfg, err := loadWith(&mapBackend{data: map[string]string{}})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	infos := ShowAll(cfg)
	if len(infos) != len(specs) {
		t.Fatalf("ShowAll returned %d entries, want %d", len(infos), len(specs))
	}
	for _, info := range infos {
		if info.Key == "" || info.EnvVar == "" {
			t.Errorf("incomplete key info: %+v", info)
		}
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	want := map[string]bool{
		"server.port":      false,
		"backend.base_url": false,
		"cache.ttl_minutes": false,
	}
	for _, k := range keys {
		if _, ok := want[k]; ok {
			want[k] = true
		}
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("ValidKeys missing %q", k)
		}
	}
}
