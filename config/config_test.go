package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.VerifyPrologues)
	assert.False(t, cfg.Debug)
	assert.Empty(t, cfg.EnableHooks)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENGINEHOOK_GAME_DIR", "/games/tf2")
	t.Setenv("ENGINEHOOK_ENABLE_HOOKS", "process_usercmds,other")
	t.Setenv("ENGINEHOOK_VERIFY_PROLOGUES", "false")
	t.Setenv("ENGINEHOOK_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/games/tf2", cfg.GameDir)
	assert.Equal(t, []string{"process_usercmds", "other"}, cfg.EnableHooks)
	assert.False(t, cfg.VerifyPrologues)
	assert.True(t, cfg.Debug)
}

func TestLoadError(t *testing.T) {
	t.Setenv("ENGINEHOOK_DEBUG", "sometimes")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestHookEnabled(t *testing.T) {
	cfg := Config{EnableHooks: []string{"process_usercmds"}, DisableHooks: []string{"debug_overlay"}}

	assert.True(t, cfg.HookEnabled("process_usercmds", false, false))
	assert.False(t, cfg.HookEnabled("debug_overlay", true, false))
	assert.True(t, cfg.HookEnabled("connect_subfunc", true, true))
	assert.False(t, cfg.HookEnabled("unknown", false, false))
}

func TestHookEnabledKeepsRequiredHooks(t *testing.T) {
	cfg := Config{DisableHooks: []string{"run_usercmd", "connect_subfunc"}}

	assert.True(t, cfg.HookEnabled("run_usercmd", true, true))
	assert.True(t, cfg.HookEnabled("connect_subfunc", false, true))
}

func TestOffsetsFile(t *testing.T) {
	cfg := Config{}
	table, err := cfg.Offsets()
	require.NoError(t, err)
	assert.Equal(t, "titanfall2-retail", table.Build)

	path := filepath.Join(t.TempDir(), "offsets.yaml")
	require.NoError(t, os.WriteFile(path, []byte("build: patched\n"), 0o644))
	cfg.OffsetsFile = path

	table, err = cfg.Offsets()
	require.NoError(t, err)
	assert.Equal(t, "patched", table.Build)
}
