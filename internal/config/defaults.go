package config

import "time"

const (
	// EnvPrefix marks environment overrides, e.g. QMK_KEYMAP_PREVIEW_ASSET_DIR.
	EnvPrefix = "QMK_KEYMAP_PREVIEW_"
	// AppName names the per-user config directory.
	AppName = "qmk-keymap-preview"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:                "127.0.0.1:7778",
		AssetBaseURL:        "/assets/",
		Debounce:            time.Second,
		ReloadOnAssetChange: true,
		AllowedOrigins:      []string{"http://localhost:*", "http://127.0.0.1:*"},
		SourceStyle:         "github",
	}
}
