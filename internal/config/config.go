// Package config loads tool configuration: defaults, an optional TOML file,
// then SESSIONREPAIR_* environment overrides. The resulting Config is passed
// explicitly to every component so nothing reads paths ad hoc.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config carries the store locations the tool operates on.
type Config struct {
	Storage struct {
		// Dir is the host application's storage root (the directory holding
		// message/, part/ and session/).
		Dir string `koanf:"dir"`
		// BackupDir is where pre-repair snapshots are written.
		BackupDir string `koanf:"backup_dir"`
	} `koanf:"storage"`
}

// LoadConfig loads the configuration from a file, falling back to default
// locations and then to built-in defaults when no file exists.
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(defaultValues(), "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./session-repair.toml", "$HOME/.session-repair.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix SESSIONREPAIR_. Config keys
	// are section.field where the field keeps its snake_case name, so only
	// the first underscore becomes the key separator: STORAGE_BACKUP_DIR maps
	// to storage.backup_dir.
	k.Load(env.Provider("SESSIONREPAIR_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "SESSIONREPAIR_")), "_", ".", 1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration.
func Validate(config *Config) error {
	if config.Storage.Dir == "" {
		return fmt.Errorf("storage dir is required")
	}
	if config.Storage.BackupDir == "" {
		return fmt.Errorf("backup dir is required")
	}
	return nil
}

func defaultValues() map[string]interface{} {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	share := filepath.Join(home, ".local", "share", "opencode")
	return map[string]interface{}{
		"storage.dir":        filepath.Join(share, "storage"),
		"storage.backup_dir": filepath.Join(share, "repair-backups"),
	}
}
