package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join("."+AppName, "config.yml")
	}
	return filepath.Join(dir, AppName, "config.yml")
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (QMK_KEYMAP_PREVIEW_*) and finally each of
// overrides in order. A missing file is not an error.
func Load(path string, overrides ...koanf.Provider) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	for _, p := range overrides {
		if err := k.Load(p, nil); err != nil {
			return nil, fmt.Errorf("loading config overrides: %w", err)
		}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.AssetDir = expandHome(cfg.AssetDir)
	return cfg, nil
}

// Validate checks that the configuration can serve a preview.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.AssetDir == "" {
		return fmt.Errorf("asset_dir is required: point it at the built keymap editor bundle")
	}
	info, err := os.Stat(c.AssetDir)
	if err != nil {
		return fmt.Errorf("asset_dir %s: %w", c.AssetDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("asset_dir %s is not a directory", c.AssetDir)
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive")
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
