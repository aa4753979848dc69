package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"
	// Timezone names resolve even on hosts without zoneinfo.
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single calendar source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint, or a local .ics path
	// (plain path or file:// URL).
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// MapConfig controls marker layout and the default map view.
type MapConfig struct {
	// Width / Height are the assumed map size in pixels when a client does
	// not send its own.
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
	// Zoom is the zoom level marker offsets are computed at when a client
	// does not send the current one.
	Zoom float64 `yaml:"zoom" json:"zoom"`
	// MaxZoom caps fit-to-markers zoom.
	MaxZoom float64 `yaml:"max_zoom" json:"max_zoom"`
	// Padding is the inset (pixels) around fitted markers.
	Padding float64 `yaml:"padding" json:"padding"`
}

// GridConfig controls week grid geometry.
type GridConfig struct {
	HourHeight     float64 `yaml:"hour_height" json:"hour_height"`
	MinEventHeight float64 `yaml:"min_event_height" json:"min_event_height"`
	ColumnGutter   float64 `yaml:"column_gutter" json:"column_gutter"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as canonical display zone (e.g. "America/Toronto").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday is treated as the first day of the week
	// in calendar views. Supported values:
	//   - "sunday" (default)
	//   - "monday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// TimeFormat is "12h" (default) or "24h".
	TimeFormat string `yaml:"time_format" json:"time_format"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic refresh of all sources.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is the number of future days to expand recurring events into.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// BackfillDays is the number of past days to keep.
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	// CacheDir holds the HTTP cache for remote ICS feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// FetchRatePerSec throttles outgoing ICS requests across all sources.
	FetchRatePerSec float64 `yaml:"fetch_rate_per_sec" json:"fetch_rate_per_sec"`

	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	Map  MapConfig  `yaml:"map" json:"map"`
	Grid GridConfig `yaml:"grid" json:"grid"`

	// ICS is the list of subscribed calendar sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultListen       = "127.0.0.1:8080"
	defaultTimezone     = "UTC"
	defaultWeekStart    = "sunday"
	defaultTimeFormat   = "12h"
	defaultRefreshCron  = "*/15 * * * *"
	defaultHorizonDays  = 120
	defaultBackfillDays = 14
	defaultCacheDir     = "./cache/ics-cache"
	defaultFetchRate    = 2
	defaultLogLevel     = "info"
	defaultColumnGutter = 2
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		ICS:       []ICSConfig{},
		BasicAuth: nil,
		Grid:      GridConfig{ColumnGutter: defaultColumnGutter},
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch c.WeekStart {
	case "sunday", "monday":
		// ok
	default:
		// Unknown value; fall back to sunday to avoid surprising layouts.
		c.WeekStart = defaultWeekStart
	}
	switch c.TimeFormat {
	case "12h", "24h":
	default:
		c.TimeFormat = defaultTimeFormat
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.FetchRatePerSec <= 0 {
		c.FetchRatePerSec = defaultFetchRate
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	if c.Map.Width <= 0 {
		c.Map.Width = 1024
	}
	if c.Map.Height <= 0 {
		c.Map.Height = 768
	}
	// YAML accepts .nan and .inf, so float fields are checked with
	// positive() rather than a plain comparison.
	if !positive(c.Map.Zoom) {
		c.Map.Zoom = 14
	}
	if !positive(c.Map.MaxZoom) {
		c.Map.MaxZoom = 15
	}
	if c.Map.Padding < 0 {
		c.Map.Padding = 0
	} else if !positive(c.Map.Padding) {
		c.Map.Padding = 100
	}

	if !positive(c.Grid.HourHeight) {
		c.Grid.HourHeight = 60
	}
	if !positive(c.Grid.MinEventHeight) {
		c.Grid.MinEventHeight = 20
	}
	if c.Grid.ColumnGutter != 0 && !positive(c.Grid.ColumnGutter) {
		c.Grid.ColumnGutter = 0
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// positive reports a finite value > 0.
func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 1)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	// Fields absent from the file keep their defaults.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// refreshParser accepts 5-field and 6-field (with seconds) specs plus
// descriptors such as "@hourly".
var refreshParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate reports settings Normalize cannot repair: an unknown timezone,
// a malformed refresh schedule, or two calendars sharing an ID.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("config: timezone %q: %w", c.Timezone, err))
	}
	if _, err := refreshParser.Parse(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("config: refresh %q: %w", c.RefreshCron, err))
	}
	seen := make(map[string]bool, len(c.ICS))
	for i, src := range c.ICS {
		if src.URL == "" {
			errs = append(errs, fmt.Errorf("config: ics[%d] has no url", i))
		}
		if src.ID == "" {
			continue
		}
		if seen[src.ID] {
			errs = append(errs, fmt.Errorf("config: duplicate ics id %q", src.ID))
		}
		seen[src.ID] = true
	}
	return errors.Join(errs...)
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calview-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
