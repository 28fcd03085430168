package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"schooldays/internal/dateutil"
)

// SourcesConfig locates the calendar's JSON data sources. Each entry is a
// local file path (resolved against DataDir when relative) or an http(s)
// URL. An empty entry disables that source; the feature degrades to an
// empty default.
type SourcesConfig struct {
	Schedules           string `yaml:"schedules" json:"schedules"`
	NonAttendance       string `yaml:"non_attendance" json:"non_attendance"`
	LateStartWednesdays string `yaml:"late_start_wednesdays" json:"late_start_wednesdays"`
	LateArrival         string `yaml:"late_arrival" json:"late_arrival"`
	EarlyRelease        string `yaml:"early_release" json:"early_release"`
	MarkingPeriods      string `yaml:"marking_periods" json:"marking_periods"`
	Events              string `yaml:"events" json:"events"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// SnapshotConfig controls the optional headless-browser capture of the
// dashboard to a PNG on each refresh.
type SnapshotConfig struct {
	// URL to capture. If empty, the server's own dashboard URL is used.
	URL string `yaml:"url" json:"url"`
	// Output is the PNG path, e.g. "/var/lib/schooldays/preview.png".
	Output string `yaml:"output" json:"output"`
	Width  int    `yaml:"width" json:"width"`
	Height int    `yaml:"height" json:"height"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone of the school (e.g. "America/New_York").
	// Dates in data files are interpreted in this zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// FirstDay / LastDay are the inclusive term bounds as YYYY-MM-DD.
	FirstDay string `yaml:"first_day" json:"first_day"`
	LastDay  string `yaml:"last_day" json:"last_day"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for reloading data sources and re-running the snapshot capture.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// DataDir is the base directory relative source paths resolve against.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	Sources SourcesConfig `yaml:"sources" json:"sources"`

	// CacheDir holds the disk cache for remote sources.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// OverridesPath is the JSON file backing the per-date override store.
	OverridesPath string `yaml:"overrides_path" json:"overrides_path"`

	// IncludeOnly, when non-empty, is an allow-list of period ids that
	// count toward period totals, replacing the per-period include flag.
	IncludeOnly []string `yaml:"include_only" json:"include_only"`

	// LateStartRule / LateArrivalRule are optional RRULE strings (e.g.
	// "FREQ=WEEKLY;BYDAY=WE") expanded over the term window and unioned
	// with the corresponding explicit date lists.
	LateStartRule   string `yaml:"late_start_rule" json:"late_start_rule"`
	LateArrivalRule string `yaml:"late_arrival_rule" json:"late_arrival_rule"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// Snapshot, if non-nil, enables the PNG dashboard capture.
	Snapshot *SnapshotConfig `yaml:"snapshot,omitempty" json:"snapshot,omitempty"`
}

// DefaultConfig returns an in-memory default configuration covering the
// 2025-26 school year with sources under ./data.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "America/New_York",
		FirstDay:    "2025-08-12",
		LastDay:     "2026-05-21",
		RefreshCron: "*/15 * * * *",
		DataDir:     "./data",
		Sources: SourcesConfig{
			Schedules:           "schedules.json",
			NonAttendance:       "non_attendance.json",
			LateStartWednesdays: "late_start_wednesdays.json",
			LateArrival:         "late_arrival_1010.json",
			EarlyRelease:        "early_release_days.json",
			MarkingPeriods:      "marking_periods.json",
			Events:              "pt_events.json",
		},
		CacheDir:      "./var/data-cache",
		OverridesPath: "./var/overrides.json",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.FirstDay == "" {
		c.FirstDay = def.FirstDay
	}
	if c.LastDay == "" {
		c.LastDay = def.LastDay
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.OverridesPath == "" {
		c.OverridesPath = def.OverridesPath
	}
	if c.Snapshot != nil {
		if c.Snapshot.Width <= 0 {
			c.Snapshot.Width = 800
		}
		if c.Snapshot.Height <= 0 {
			c.Snapshot.Height = 480
		}
		if c.Snapshot.Output == "" {
			c.Snapshot.Output = "./var/preview.png"
		}
		if c.Snapshot.URL == "" {
			c.Snapshot.URL = dashboardURL(c.Listen)
		}
	}
}

// dashboardURL turns a listen address into a URL the capture browser can
// reach. A bare-port listen (":8080") gets a loopback host.
func dashboardURL(listen string) string {
	host := listen
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	return "http://" + host + "/"
}

// Validate checks the fields that cannot be defaulted away.
func (c *Config) Validate() error {
	first, err := dateutil.ParseDateKey(c.FirstDay)
	if err != nil {
		return fmt.Errorf("first_day: %w", err)
	}
	last, err := dateutil.ParseDateKey(c.LastDay)
	if err != nil {
		return fmt.Errorf("last_day: %w", err)
	}
	if last.Before(first) {
		return fmt.Errorf("last_day %s precedes first_day %s", c.LastDay, c.FirstDay)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

// Location returns the configured timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// SourceLocation resolves a source entry to a fetchable location.
// URLs pass through; relative paths resolve against DataDir.
func (c *Config) SourceLocation(entry string) string {
	if entry == "" {
		return ""
	}
	if strings.HasPrefix(entry, "http://") || strings.HasPrefix(entry, "https://") {
		return entry
	}
	if filepath.IsAbs(entry) {
		return entry
	}
	return filepath.Join(c.DataDir, entry)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there
//     (0600, parent directory created) and returned.
//   - Otherwise the YAML is unmarshaled, normalized, and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with
// 0600 permissions, creating the parent directory as needed.
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

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".schooldays-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
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
