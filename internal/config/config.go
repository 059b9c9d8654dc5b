// Package config resolves run settings from defaults, an optional config
// file and MAILCORPUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/avivsinai/mailcorpus/internal/durable"
)

// EnvPrefix prefixes every environment override, e.g. MAILCORPUS_OUT_DIR.
const EnvPrefix = "MAILCORPUS"

const (
	DefaultOutDir       = "user_data"
	DefaultDebounce     = 2 * time.Second
	DefaultPollInterval = 5 * time.Second
)

// WatchConfig tunes the watch command.
type WatchConfig struct {
	Debounce     time.Duration `mapstructure:"debounce" yaml:"debounce"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

// Config is the effective configuration of one invocation.
type Config struct {
	// OutDir is the snapshot directory.
	OutDir string `mapstructure:"out_dir" yaml:"out_dir"`
	// SQLite, when set, also mirrors each snapshot into this database.
	SQLite string `mapstructure:"sqlite" yaml:"sqlite"`
	// Workers <= 0 means one per CPU.
	Workers  int         `mapstructure:"workers" yaml:"workers"`
	MaxFiles int         `mapstructure:"max_files" yaml:"max_files"`
	Progress bool        `mapstructure:"progress" yaml:"progress"`
	Watch    WatchConfig `mapstructure:"watch" yaml:"watch"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		OutDir:   DefaultOutDir,
		Progress: true,
		Watch: WatchConfig{
			Debounce:     DefaultDebounce,
			PollInterval: DefaultPollInterval,
		},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("out_dir", d.OutDir)
	v.SetDefault("sqlite", d.SQLite)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("max_files", d.MaxFiles)
	v.SetDefault("progress", d.Progress)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("watch.poll_interval", d.Watch.PollInterval)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads path (YAML, JSON or TOML by extension) over the
// defaults and applies environment overrides. An empty path or a missing
// file yields defaults plus environment.
func LoadConfig(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Watch.Debounce < 0 || cfg.Watch.PollInterval <= 0 {
		return Config{}, fmt.Errorf("config %s: watch intervals must be positive", path)
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// WriteConfig writes cfg as YAML to path atomically. An existing file is
// only replaced when force is set.
func WriteConfig(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
		}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if _, err := durable.WriteFile(dir, filepath.Base(path), data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
