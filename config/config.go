// Package config reads the plugin's environment configuration.
package config

import (
	"fmt"
	"slices"

	"enginehook/offsets"

	"github.com/caarlos0/env/v11"
)

// Config is read once when the plugin initializes.
type Config struct {
	// GameDir overrides the host executable directory modules are
	// resolved against.
	GameDir string `env:"ENGINEHOOK_GAME_DIR"`

	// OffsetsFile is a YAML file overlaid on the built-in offsets.
	OffsetsFile string `env:"ENGINEHOOK_OFFSETS_FILE"`

	// EnableHooks turns on hooks that are installed disabled by default.
	EnableHooks []string `env:"ENGINEHOOK_ENABLE_HOOKS" envSeparator:","`

	// DisableHooks keeps optional hooks installed but disabled. Required
	// hooks ignore it.
	DisableHooks []string `env:"ENGINEHOOK_DISABLE_HOOKS" envSeparator:","`

	// VerifyPrologues checks hook prologue patterns before patching.
	VerifyPrologues bool `env:"ENGINEHOOK_VERIFY_PROLOGUES" envDefault:"true"`

	// Debug dumps hook patches after install.
	Debug bool `env:"ENGINEHOOK_DEBUG"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Offsets returns the built-in offsets overlaid with OffsetsFile.
func (c Config) Offsets() (offsets.Table, error) {
	if c.OffsetsFile == "" {
		return offsets.Default(), nil
	}
	return offsets.Load(c.OffsetsFile)
}

// HookEnabled decides whether a hook is enabled after install. Explicit
// lists win over the hook's default. Required hooks are always enabled.
func (c Config) HookEnabled(name string, byDefault, required bool) bool {
	if required {
		return true
	}
	if slices.Contains(c.DisableHooks, name) {
		return false
	}
	if slices.Contains(c.EnableHooks, name) {
		return true
	}
	return byDefault
}
