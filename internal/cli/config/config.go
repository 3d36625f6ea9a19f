// Package config loads the rpckit workspace configuration. Unlike most
// tools' optional config files, the workspace file is required for
// generation: without it there is nothing to scan and nowhere to write, so
// its absence is a fatal configuration error naming the searched path.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultFile is the workspace file name commands search for.
const DefaultFile = "rpckit.yml"

// Config is the rpckit workspace configuration.
type Config struct {
	// Roots lists the package-root patterns to scan. Each may contain one
	// wildcard segment expanded against the filesystem.
	Roots []string `mapstructure:"roots"`
	// Output is the directory generated artifacts are written into.
	Output string `mapstructure:"output"`
	// Package names the aggregate artifact's package. Defaults to the base
	// name of the output directory.
	Package string `mapstructure:"package"`

	Watch  WatchConfig  `mapstructure:"watch"`
	Bridge BridgeConfig `mapstructure:"bridge"`

	// BaseDir is the directory the config file was found in; root patterns
	// and the output path resolve against it.
	BaseDir string `mapstructure:"-"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	// DebounceMS coalesces change bursts; milliseconds.
	DebounceMS int `mapstructure:"debounce_ms"`
	// ReloadAddr, when set, serves regeneration notifications over
	// websocket at this address.
	ReloadAddr string `mapstructure:"reload_addr"`
}

// BridgeConfig configures the HTTP bridge.
type BridgeConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads the workspace configuration. With an explicit path the file
// must exist there; otherwise rpckit.yml is searched in the working
// directory. Either way a missing file is fatal.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("watch.debounce_ms", 300)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rpckit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RPCKIT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		searched := path
		if searched == "" {
			wd, _ := os.Getwd()
			searched = filepath.Join(wd, DefaultFile)
		}
		return nil, fmt.Errorf("workspace config not found: %s (run rpckit new to create one): %w", searched, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.BaseDir = filepath.Dir(v.ConfigFileUsed())

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", v.ConfigFileUsed(), err)
	}

	if cfg.Package == "" {
		cfg.Package = filepath.Base(cfg.Output)
	}
	return &cfg, nil
}

// OutputDir returns the output directory resolved against the config's
// location.
func (c *Config) OutputDir() string {
	if filepath.IsAbs(c.Output) {
		return c.Output
	}
	return filepath.Join(c.BaseDir, c.Output)
}

// validateConfig checks the required fields.
func validateConfig(cfg *Config) error {
	if len(cfg.Roots) == 0 {
		return fmt.Errorf("roots must list at least one package root")
	}
	if cfg.Output == "" {
		return fmt.Errorf("output directory is required")
	}
	if cfg.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch.debounce_ms must not be negative, got: %d", cfg.Watch.DebounceMS)
	}
	return nil
}
