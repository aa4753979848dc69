package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != defaultListen || cfg.WeekStart != "sunday" || cfg.TimeFormat != "12h" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm = %o, want 600", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
listen: "0.0.0.0:9000"
week_start: "friday"
time_format: "24h"
map:
  zoom: 16
grid:
  hour_height: 48
ics:
  - id: uni
    url: ./testdata/uni.ics
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Fatalf("Listen = %q", cfg.Listen)
	}
	if cfg.WeekStart != "sunday" {
		t.Fatalf("unknown week_start should normalize to sunday, got %q", cfg.WeekStart)
	}
	if cfg.TimeFormat != "24h" {
		t.Fatalf("TimeFormat = %q", cfg.TimeFormat)
	}
	if cfg.Map.Zoom != 16 || cfg.Map.MaxZoom != 15 || cfg.Map.Padding != 100 {
		t.Fatalf("Map = %+v", cfg.Map)
	}
	if cfg.Grid.HourHeight != 48 || cfg.Grid.MinEventHeight != 20 {
		t.Fatalf("Grid = %+v", cfg.Grid)
	}
	if len(cfg.ICS) != 1 || cfg.ICS[0].ID != "uni" {
		t.Fatalf("ICS = %+v", cfg.ICS)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Timezone = "America/Toronto"
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Timezone != "America/Toronto" || got.BasicAuth == nil || got.BasicAuth.Username != "u" {
		t.Fatalf("round trip lost fields: %+v", got)
	}
}

func TestSaveRejectsEmpty(t *testing.T) {
	t.Parallel()
	if err := Save("", DefaultConfig()); err == nil {
		t.Fatal("expected error for empty path")
	}
	if err := Save(filepath.Join(t.TempDir(), "c.yaml"), nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"seconds cron", func(c *Config) { c.RefreshCron = "0 */5 * * * *" }, true},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, false},
		{"bad cron", func(c *Config) { c.RefreshCron = "every minute" }, false},
		{"missing url", func(c *Config) { c.ICS = []ICSConfig{{ID: "a"}} }, false},
		{"duplicate id", func(c *Config) {
			c.ICS = []ICSConfig{{ID: "a", URL: "a.ics"}, {ID: "a", URL: "b.ics"}}
		}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := DefaultConfig()
			tt.mutate(c)
			if err := c.Validate(); (err == nil) != tt.ok {
				t.Fatalf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("timezone: Nowhere/City\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestNormalizeNonFiniteFloats(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
map:
  zoom: .nan
  max_zoom: .inf
  padding: -.inf
grid:
  hour_height: .nan
  min_event_height: .inf
  column_gutter: .nan
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Map.Zoom != 14 || cfg.Map.MaxZoom != 15 || cfg.Map.Padding != 0 {
		t.Fatalf("map = %+v", cfg.Map)
	}
	if cfg.Grid.HourHeight != 60 || cfg.Grid.MinEventHeight != 20 || cfg.Grid.ColumnGutter != 0 {
		t.Fatalf("grid = %+v", cfg.Grid)
	}
}
