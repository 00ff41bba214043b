package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/timeclock.db", cfg.Database.DSN)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 7, cfg.Bot.HistoryDays)
	assert.Equal(t, 3, cfg.Bot.PunchCooldown)
	assert.Empty(t, cfg.Bot.Token)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TIMECLOCK_BOT_TOKEN", "secret-token")
	t.Setenv("TIMECLOCK_DATABASE_DRIVER", "postgres")
	t.Setenv("TIMECLOCK_DATABASE_DSN", "host=localhost dbname=timeclock")
	t.Setenv("TIMECLOCK_API_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "secret-token", cfg.Bot.Token)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=localhost dbname=timeclock", cfg.Database.DSN)
	assert.Equal(t, 9090, cfg.API.Port)
}

func TestLoadCapsHistoryDays(t *testing.T) {
	t.Setenv("TIMECLOCK_BOT_HISTORY_DAYS", "90")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 31, cfg.Bot.HistoryDays)
}
