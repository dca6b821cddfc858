package config

import "time"

// Config is the preview configuration, corresponding to config.yml.
type Config struct {
	Addr                string        `yaml:"addr" koanf:"addr"`
	AssetDir            string        `yaml:"asset_dir" koanf:"asset_dir"`
	AssetBaseURL        string        `yaml:"asset_base_url" koanf:"asset_base_url"`
	Debounce            time.Duration `yaml:"debounce" koanf:"debounce"`
	OpenBrowser         bool          `yaml:"open_browser" koanf:"open_browser"`
	BrowserCommand      string        `yaml:"browser_command" koanf:"browser_command"`
	ReloadOnAssetChange bool          `yaml:"reload_on_asset_change" koanf:"reload_on_asset_change"`
	AllowedOrigins      []string      `yaml:"allowed_origins" koanf:"allowed_origins"`
	SourceStyle         string        `yaml:"source_style" koanf:"source_style"`
}
