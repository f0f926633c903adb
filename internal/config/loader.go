package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/smbcore/smbd/internal/serrors"
)

const envPrefix = "SMBCORED"

// Load reads configuration from defaults, file, and environment, in that
// ascending order of precedence, and validates the result. An environment
// variable only takes effect for a key that the config file sets.
//
// configPath, if non-empty, names an explicit YAML file; otherwise the
// default search path is used and a missing file is not an error — the
// package defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal runs whether or not a file was found. AutomaticEnv only
	// overrides keys viper already knows from the file: with no file, or
	// for a key the file leaves out, the env var is not applied.
	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, serrors.New(serrors.ErrInvalidConfiguration, fmt.Sprintf("decoding config: %v", err))
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad behaves like Load but rewords a missing explicit config file
// into an actionable error instead of propagating os.Stat's.
func MustLoad(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, serrors.NewWithPath(serrors.ErrInvalidConfiguration, "configuration file not found", configPath)
		}
	}
	return Load(configPath)
}

// SaveConfig writes cfg to path as YAML, creating parent directories as
// needed. Used by init-style tooling to materialize a starting config.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, serrors.New(serrors.ErrInvalidConfiguration, fmt.Sprintf("reading config file: %v", err))
	}
	return true, nil
}

// decodeHooks lets bind_addresses / server_list style fields be written
// as a comma-separated string (common for env var overrides) in addition
// to a native YAML list.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToSliceHookFunc(","),
	)
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "smbcored")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "smbcored")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(DefaultConfigPath())
	return err == nil
}
