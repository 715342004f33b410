package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calgrid/internal/ics"
)

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadNormalizesPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9000"
week_start: friday
store:
  base_url: https://cal.example.com/api
grid:
  monthly: calendar
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "monday", cfg.WeekStart)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.False(t, cfg.Store.Memory)
	assert.Equal(t, 10*time.Second, cfg.StoreTimeout())
	assert.Equal(t, 15, cfg.Grid.ResizeSnapMinutes)
	assert.Equal(t, ics.DefaultMaxOccurrences, cfg.Grid.MaxOccurrences)
	assert.Equal(t, "calendar", cfg.Grid.Monthly)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Timezone = "Asia/Seoul"
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RefreshCron = "every now and then"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{}
	assert.Error(t, cfg.Validate())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CALGRID_LISTEN", ":7000")
	t.Setenv("CALGRID_STORE_BASE_URL", "https://cal.example.com/api")
	t.Setenv("CALGRID_STORE_TOKEN", "tok")
	t.Setenv("CALGRID_GRID_MAX_OCCURRENCES", "50")
	t.Setenv("CALGRID_BASIC_AUTH_USERNAME", "ops")

	cfg := DefaultConfig()
	ApplyEnv(cfg)

	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, "https://cal.example.com/api", cfg.Store.BaseURL)
	assert.False(t, cfg.Store.Memory)
	assert.Equal(t, "tok", cfg.Store.Token)
	assert.Equal(t, 50, cfg.Grid.MaxOccurrences)
	require.NotNil(t, cfg.BasicAuth)
	assert.Equal(t, "ops", cfg.BasicAuth.Username)
	assert.Equal(t, "UTC", cfg.Timezone)
}

func TestCalendarOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Asia/Seoul"
	cfg.WeekStart = "sunday"
	cfg.Grid.ClickSuppressMs = 300

	opts := cfg.CalendarOptions()
	assert.Equal(t, "Asia/Seoul", opts.Location.String())
	assert.Equal(t, time.Sunday, opts.WeekStart)
	assert.Equal(t, 300*time.Millisecond, opts.Grid.ClickSuppress)
	assert.Equal(t, 15, opts.Grid.ResizeSnapMinutes)
	assert.Equal(t, ics.MonthlyApprox30, opts.Expand.Monthly)
	assert.Equal(t, opts.Location, opts.Expand.Location)
}
