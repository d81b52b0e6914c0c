package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = os.Stat(path)
	assert.NoError(t, err)

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
	  "game": {"max_chain_passes": 3, "world_state_scope": "shared"},
	  "server": {"port": "9090"}
	}`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Game.MaxChainPasses)
	assert.Equal(t, "shared", cfg.Game.WorldStateScope)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel, "unset fields keep defaults")
}

func TestLoadConfigRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"game":`), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("STORYWEAVE_PORT", "7070")
	t.Setenv("STORYWEAVE_DATABASE_DRIVER", "file")
	t.Setenv("STORYWEAVE_GAME_RNG_SEED", "99")
	t.Setenv("STORYWEAVE_GAME_DEFAULT_ATTRIBUTES", "strength:10,wits:4")

	cfg := DefaultConfig()
	require.NoError(t, ApplyEnv(&cfg))

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "file", cfg.Database.Driver)
	assert.Equal(t, int64(99), cfg.Game.RNGSeed)
	assert.Equal(t, map[string]int{"strength": 10, "wits": 4}, cfg.Game.DefaultAttributes)
	assert.Equal(t, "./stories", cfg.Stories.Dir)
}

func TestApplyEnvRejectsBadValue(t *testing.T) {
	t.Setenv("STORYWEAVE_GAME_MAX_CHAIN_PASSES", "many")

	cfg := DefaultConfig()
	assert.Error(t, ApplyEnv(&cfg))
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Database.Driver = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Game.WorldStateScope = "galaxy"
	assert.Error(t, cfg.Validate())
}
