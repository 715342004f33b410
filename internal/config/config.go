package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"calgrid/internal/calendar"
	"calgrid/internal/ics"
	"calgrid/internal/interaction"
	appLog "calgrid/internal/log"
	"calgrid/internal/timegrid"
)

// EnvPrefix prefixes environment overrides, e.g. CALGRID_STORE_TOKEN.
const EnvPrefix = "CALGRID"

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// StoreConfig selects the event store.
type StoreConfig struct {
	// BaseURL is the remote event store, e.g. "https://cal.example.com/api".
	// Ignored when Memory is set.
	BaseURL        string `yaml:"base_url" json:"base_url"`
	// Token is sent as a bearer token to the remote store.
	Token          string `yaml:"token" json:"-"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	// Memory keeps events in process and serves them under /store.
	Memory         bool   `yaml:"memory" json:"memory"`
}

// GridConfig tunes the pointer grid and recurrence expansion.
type GridConfig struct {
	CellMinutes       int     `yaml:"cell_minutes" json:"cell_minutes"`
	ResizeSnapMinutes int     `yaml:"resize_snap_minutes" json:"resize_snap_minutes"`
	HandlePixels      float64 `yaml:"handle_pixels" json:"handle_pixels"`
	ClickSuppressMs   int     `yaml:"click_suppress_ms" json:"click_suppress_ms"`
	MaxOccurrences    int     `yaml:"max_occurrences" json:"max_occurrences"`
	// Monthly is "approx30" (default) or "calendar".
	Monthly           string  `yaml:"monthly" json:"monthly"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used for days and grid rows (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron schedule for re-fetching the windows of all
	// open sessions. Empty disables the refresh job.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Store StoreConfig `yaml:"store" json:"store"`
	Grid  GridConfig  `yaml:"grid" json:"grid"`
	Log   LogConfig   `yaml:"log" json:"log"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "UTC",
		WeekStart:   "monday",
		RefreshCron: "*/5 * * * *",
		Store: StoreConfig{
			TimeoutSeconds: 10,
			Memory:         true,
		},
		Grid: GridConfig{
			CellMinutes:       timegrid.CellMinutes,
			ResizeSnapMinutes: timegrid.ResizeGranularity,
			HandlePixels:      6,
			ClickSuppressMs:   int(interaction.DefaultClickSuppress / time.Millisecond),
			MaxOccurrences:    ics.DefaultMaxOccurrences,
			Monthly:           string(ics.MonthlyApprox30),
		},
		Log: LogConfig{Level: "INFO"},
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
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "monday"
	}

	if c.Store.TimeoutSeconds <= 0 {
		c.Store.TimeoutSeconds = def.Store.TimeoutSeconds
	}
	if c.Store.BaseURL == "" {
		c.Store.Memory = true
	}

	if c.Grid.CellMinutes <= 0 {
		c.Grid.CellMinutes = def.Grid.CellMinutes
	}
	if c.Grid.ResizeSnapMinutes <= 0 {
		c.Grid.ResizeSnapMinutes = def.Grid.ResizeSnapMinutes
	}
	if c.Grid.HandlePixels <= 0 {
		c.Grid.HandlePixels = def.Grid.HandlePixels
	}
	if c.Grid.ClickSuppressMs <= 0 {
		c.Grid.ClickSuppressMs = def.Grid.ClickSuppressMs
	}
	if c.Grid.MaxOccurrences <= 0 {
		c.Grid.MaxOccurrences = def.Grid.MaxOccurrences
	}
	c.Grid.Monthly = string(ics.ParseMonthlyMode(c.Grid.Monthly))

	c.Log.Level = string(appLog.ParseLevel(c.Log.Level))
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
			return fmt.Errorf("refresh %q: %w", c.RefreshCron, err)
		}
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		return errors.New("basic_auth.username is empty")
	}
	return nil
}

// Location loads the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Warn("config: unknown timezone, using UTC", "timezone", c.Timezone)
		return time.UTC
	}
	return loc
}

// StoreTimeout is the per-request timeout of the remote store.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Store.TimeoutSeconds) * time.Second
}

// CalendarOptions builds the engine options for one calendar session.
func (c *Config) CalendarOptions() calendar.Options {
	loc := c.Location()
	return calendar.Options{
		Location:  loc,
		WeekStart: timegrid.ParseWeekStart(c.WeekStart),
		Grid: interaction.Config{
			CellMinutes:       c.Grid.CellMinutes,
			ResizeSnapMinutes: c.Grid.ResizeSnapMinutes,
			HandlePixels:      c.Grid.HandlePixels,
			ClickSuppress:     time.Duration(c.Grid.ClickSuppressMs) * time.Millisecond,
		},
		Expand: c.ExpandOptions(),
	}
}

func (c *Config) ExpandOptions() ics.ExpandOptions {
	return ics.ExpandOptions{
		Location:       c.Location(),
		MaxOccurrences: c.Grid.MaxOccurrences,
		Monthly:        ics.ParseMonthlyMode(c.Grid.Monthly),
	}
}

// envKeys are the settings that may be overridden from the environment.
var envKeys = []string{
	"listen", "timezone", "week_start", "refresh",
	"store.base_url", "store.token", "store.timeout_seconds", "store.memory",
	"grid.max_occurrences", "grid.monthly",
	"log.level",
	"basic_auth.username", "basic_auth.password",
}

// ApplyEnv overlays CALGRID_* environment variables on cfg, e.g.
// CALGRID_STORE_BASE_URL for store.base_url.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	set := func(key string, apply func()) {
		if v.IsSet(key) {
			appLog.Debug("config: environment override", "key", key)
			apply()
		}
	}
	set("listen", func() { cfg.Listen = v.GetString("listen") })
	set("timezone", func() { cfg.Timezone = v.GetString("timezone") })
	set("week_start", func() { cfg.WeekStart = strings.ToLower(v.GetString("week_start")) })
	set("refresh", func() { cfg.RefreshCron = v.GetString("refresh") })
	set("store.base_url", func() {
		cfg.Store.BaseURL = v.GetString("store.base_url")
		cfg.Store.Memory = cfg.Store.BaseURL == ""
	})
	set("store.token", func() { cfg.Store.Token = v.GetString("store.token") })
	set("store.timeout_seconds", func() { cfg.Store.TimeoutSeconds = v.GetInt("store.timeout_seconds") })
	set("store.memory", func() { cfg.Store.Memory = v.GetBool("store.memory") })
	set("grid.max_occurrences", func() { cfg.Grid.MaxOccurrences = v.GetInt("grid.max_occurrences") })
	set("grid.monthly", func() { cfg.Grid.Monthly = v.GetString("grid.monthly") })
	set("log.level", func() { cfg.Log.Level = v.GetString("log.level") })
	set("basic_auth.username", func() {
		if cfg.BasicAuth == nil {
			cfg.BasicAuth = &BasicAuthConfig{}
		}
		cfg.BasicAuth.Username = v.GetString("basic_auth.username")
	})
	set("basic_auth.password", func() {
		if cfg.BasicAuth == nil {
			cfg.BasicAuth = &BasicAuthConfig{}
		}
		cfg.BasicAuth.Password = v.GetString("basic_auth.password")
	})
	cfg.Normalize()
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is read and normalized.
//
// Environment overrides are not applied; see ApplyEnv.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			appLog.Info("config: wrote default config", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically via a temp file + rename, creating
// the parent directory (0700) and leaving the file at 0600.
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

	tmp, err := os.CreateTemp(dir, ".calgrid-config-*.tmp")
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

// Save is a convenience method on Config that delegates to Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
