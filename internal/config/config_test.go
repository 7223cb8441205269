package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".local", "share", "opencode", "storage"), cfg.Storage.Dir)
	assert.Equal(t, filepath.Join(home, ".local", "share", "opencode", "repair-backups"), cfg.Storage.BackupDir)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session-repair.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[storage]
dir = "/srv/opencode/storage"
backup_dir = "/srv/opencode/backups"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/opencode/storage", cfg.Storage.Dir)
	assert.Equal(t, "/srv/opencode/backups", cfg.Storage.BackupDir)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("SESSIONREPAIR_STORAGE_DIR", "/env/storage")
	t.Setenv("SESSIONREPAIR_STORAGE_BACKUP_DIR", "/env/backups")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "/env/storage", cfg.Storage.Dir)
	assert.Equal(t, "/env/backups", cfg.Storage.BackupDir)
}

func TestValidate(t *testing.T) {
	var cfg Config
	assert.Error(t, Validate(&cfg))

	cfg.Storage.Dir = "/some/dir"
	assert.Error(t, Validate(&cfg))

	cfg.Storage.BackupDir = "/some/backups"
	assert.NoError(t, Validate(&cfg))
}
