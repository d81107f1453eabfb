package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ":9000", cfg.Server.TCPAddr)
	assert.Equal(t, 5, cfg.Server.MaxConnsPerIP)
	assert.Equal(t, 256, cfg.Server.SendBuffer)
	assert.Equal(t, "planetfall.db", cfg.Database.Path)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, time.Minute, cfg.Auth.LoginWindow)
	assert.Equal(t, 60, cfg.Sim.TickRate)
	assert.Equal(t, 3*time.Second, cfg.Sim.RespawnDelay)
	assert.Equal(t, 16, cfg.Game.Capacity)
	assert.Equal(t, 2, cfg.AI.Patrols)
	assert.Equal(t, 30*time.Second, cfg.AI.RespawnDelay)
	assert.True(t, cfg.AI.Guardians)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_WithConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	path := filepath.Join(dir, "planetfall.json")
	body := `{
		"server": { "addr": ":7000" },
		"game": { "capacity": 4 },
		"ai": { "patrols": 0, "guardians": false },
		"log": { "level": "debug", "pretty": true }
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, ":9000", cfg.Server.TCPAddr, "unset keys keep defaults")
	assert.Equal(t, 4, cfg.Game.Capacity)
	assert.Equal(t, 0, cfg.AI.Patrols)
	assert.False(t, cfg.AI.Guardians)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoad_Env(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("PLANETFALL_SIM_TICKRATE", "30")
	t.Setenv("PLANETFALL_DATABASE_PATH", "/tmp/x.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Sim.TickRate)
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("PLANETFALL_GAME_CAPACITY", "0")

	_, err := Load("")
	assert.ErrorContains(t, err, "game.capacity")
}
