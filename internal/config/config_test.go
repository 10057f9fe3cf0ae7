package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "histsess.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100, cfg.Server.PageSize)
	assert.Equal(t, Duration(time.Second), cfg.Server.AdviseInterval)
	assert.Equal(t, time.Sunday, cfg.Weekday())
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database: plant.db
log_level: debug
week_start: monday
browse:
  page_size: 25
read:
  max_values: 500
server:
  advise_interval: 250ms
metrics:
  enabled: true
  addr: 0.0.0.0:9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "plant.db", cfg.Database)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, time.Monday, cfg.Weekday())
	assert.Equal(t, 25, cfg.Browse.PageSize)
	assert.Equal(t, 500, cfg.Read.MaxValues)
	assert.Equal(t, 100, cfg.Server.PageSize, "unset keys keep defaults")
	assert.Equal(t, Duration(250*time.Millisecond), cfg.Server.AdviseInterval)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "0.0.0.0:9000", cfg.Metrics.Addr)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "colour: blue\n"},
		{"unknown nested key", "server:\n  port: 80\n"},
		{"bad log level", "log_level: loud\n"},
		{"bad weekday", "week_start: someday\n"},
		{"negative page size", "browse:\n  page_size: -1\n"},
		{"zero server page", "server:\n  page_size: 0\n"},
		{"wrong type", "read:\n  max_values: lots\n"},
		{"empty database", "database: \"\"\n"},
		{"empty metrics addr", "metrics:\n  addr: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			_, err := Load(path)
			require.Error(t, err)

			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, path, ce.Source)
			assert.Contains(t, err.Error(), path)
		})
	}
}

func TestParse_BadDuration(t *testing.T) {
	_, err := Parse([]byte("server:\n  advise_interval: soon\n"))
	require.Error(t, err)
}

func TestValidate_AfterOverride(t *testing.T) {
	cfg := Default()
	cfg.WeekStart = "Funday"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.AdviseInterval = 0
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Browse.PageSize = 10
	require.NoError(t, cfg.Validate())
}

func TestLevel_FallsBackToInfo(t *testing.T) {
	cfg := Config{LogLevel: "chatty"}
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}
