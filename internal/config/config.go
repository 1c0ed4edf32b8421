// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the stowaway configuration with a layered merge:
// built-in defaults, then the TOML config file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/autobrr/stowaway/internal/domain"
)

const envPrefix = "STOWAWAY_"

// AppConfig wraps the merged configuration.
type AppConfig struct {
	Config *domain.Config

	v *viper.Viper
}

// New loads configuration from configPath. A directory gets "config.toml"
// appended; an empty path searches the working directory and the user config
// dir. A missing file in search mode falls back to defaults, a missing
// explicit file is an error. Environment variables override the file, e.g.
// STOWAWAY__LOGLEVEL=DEBUG.
func New(configPath string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)

	explicit := configPath != ""
	if explicit {
		if info, err := os.Stat(configPath); err == nil && info.IsDir() {
			configPath = filepath.Join(configPath, "config.toml")
		}
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if userDir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(userDir, "stowaway"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			if explicit && os.IsNotExist(underlying(err)) {
				if werr := writeDefaultConfig(configPath); werr != nil {
					return nil, werr
				}
				return nil, fmt.Errorf("no config found at %s; a template was written there, edit it and run again", configPath)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := new(domain.Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &AppConfig{Config: cfg, v: v}, nil
}

// FileUsed returns the path of the loaded config file, empty when running
// on defaults.
func (c *AppConfig) FileUsed() string {
	return c.v.ConfigFileUsed()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "INFO")
	v.SetDefault("logPath", "")
	v.SetDefault("reportPath", "")
	v.SetDefault("lockStaleAgeMinutes", 120)
	v.SetDefault("set.name", "default")
	v.SetDefault("set.onError", "stop")
}

func underlying(err error) error {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return pathErr
	}
	return err
}

// writeDefaultConfig drops a commented template so a first run produces
// something editable instead of an opaque error.
func writeDefaultConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigTemplate), 0o644)
}

const defaultConfigTemplate = `# config.toml - Auto-generated on first run

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "INFO"

# Log file path
# If not defined, logs to stderr only
# Optional
#logPath = "log/stowaway.log"

# Report file path, one JSON line per finished job
# Optional
#reportPath = "log/reports.jsonl"

# Age in minutes after which a stale destination lock may be broken
# Default: 120
#lockStaleAgeMinutes = 120

[set]
name = "default"
# What to do when a job fails: "stop" or "continue"
onError = "stop"

#[[jobs]]
#name = "documents"
#destinationDir = "/backups/documents"
#baseName = "Documents"
#dateFormat = "yyyy-MM-dd HHmmss"
#extension = ".7z"
#targets = ["offsite"]
#
#[[jobs.sources]]
#path = "/home/user/documents"
#
#[jobs.localRetention]
#keepCount = 5

#[[targets]]
#name = "offsite"
#type = "sftp"
#
#[targets.settings]
#host = "backup.example.com"
#username = "backup"
#remoteDir = "/srv/backups"
#
#[targets.remoteRetention]
#keepCount = 10
`
