package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/agrisim/internal/engine"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agrisim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsMatchCalendarYear(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	ec, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ec.Start)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), ec.End)
	assert.Equal(t, engine.Day, ec.Step)
	assert.Equal(t, 366, ec.Steps())
	assert.Equal(t, 1000, cfg.Entities.Counts.Farmers)
	assert.Len(t, cfg.Entities.Districts, 10)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeFile(t, `
simulation:
  start_date: "2024-03-01"
  end_date: "2024-03-10"
  time_step_days: 2
  seed: 7
entities:
  districts: [Dhaka, Khulna]
  farmers: 50
climate:
  temp_change_mean: 1.5
market:
  base_price: 2000
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	ec, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, 2*engine.Day, ec.Step)
	assert.Equal(t, int64(7), ec.Seed)
	assert.Equal(t, 1.5, ec.Climate.TempChangeMean)
	assert.Equal(t, 0.2, ec.Climate.TempChangeStd, "unset keys keep defaults")
	assert.Equal(t, 2000.0, ec.Market.BasePrice)
	assert.Equal(t, 1.1, ec.Market.DemandFactor)
	assert.Equal(t, []string{"Dhaka", "Khulna"}, cfg.Entities.Districts)
	assert.Equal(t, 50, cfg.Entities.Counts.Farmers)
	assert.Equal(t, 5, cfg.Entities.Counts.InfrastructurePerDistrict)

	lvl, err := ParseLevel(cfg.Log.Level)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGRISIM_DB_DSN", "postgres://localhost/agrisim")
	t.Setenv("AGRISIM_DB_DRIVER", "postgres")
	t.Setenv("AGRISIM_ADMIN_KEY", "secret")
	t.Setenv("AGRISIM_PORT", "9090")
	t.Setenv("AGRISIM_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "postgres://localhost/agrisim", cfg.Storage.DSN)
	assert.Equal(t, "secret", cfg.API.AdminKey)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestBadPortEnvIsIgnored(t *testing.T) {
	t.Setenv("AGRISIM_PORT", "eighty")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.API.Port)
}

func TestInvalidFiles(t *testing.T) {
	cases := map[string]string{
		"end before start": "simulation:\n  start_date: \"2024-02-01\"\n  end_date: \"2024-01-01\"\n",
		"bad date":         "simulation:\n  start_date: \"01/01/2024\"\n",
		"zero step":        "simulation:\n  time_step_days: 0\n",
		"no districts":     "entities:\n  districts: []\n",
		"unknown district": "entities:\n  districts: [Dhaka, Atlantis]\n",
		"bad driver":       "storage:\n  driver: oracle\n",
		"bad level":        "log:\n  level: chatty\n",
		"malformed":        "simulation: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body))
			assert.Error(t, err)
		})
	}
}

func TestEngineErrorIsTyped(t *testing.T) {
	_, err := Load(writeFile(t, "simulation:\n  time_step_days: -1\n"))
	var cfgErr *engine.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "time_step", cfgErr.Field)
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
