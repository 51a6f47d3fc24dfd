package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withUserConfigDir(t *testing.T) string {
	t.Helper()
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	return filepath.Join(xdg, "retriever")
}

func TestBackupUserConfigNoFileIsNoop(t *testing.T) {
	withUserConfigDir(t)
	path, err := BackupUserConfig()
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestBackupAndRestoreUserConfig(t *testing.T) {
	configDir := withUserConfigDir(t)
	require.NoError(t, os.MkdirAll(configDir, 0755))

	cfg := NewConfig()
	cfg.Search.TopK = 77
	require.NoError(t, cfg.WriteYAML(GetUserConfigPath()))

	backupPath, err := BackupUserConfig()
	require.NoError(t, err)
	require.NotEmpty(t, backupPath)

	// Mutate the live config, then restore from backup.
	cfg.Search.TopK = 1
	require.NoError(t, cfg.WriteYAML(GetUserConfigPath()))

	require.NoError(t, RestoreUserConfig(backupPath))

	restored := NewConfig()
	require.NoError(t, restored.loadYAML(GetUserConfigPath()))
	assert.Equal(t, 77, restored.Search.TopK)
}

func TestCleanupKeepsOnlyMaxBackups(t *testing.T) {
	withUserConfigDir(t)
	require.NoError(t, os.MkdirAll(GetUserConfigDir(), 0755))
	require.NoError(t, NewConfig().WriteYAML(GetUserConfigPath()))

	for i := 0; i < MaxBackups+2; i++ {
		_, err := BackupUserConfig()
		require.NoError(t, err)
	}

	backups, err := ListUserConfigBackups()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(backups), MaxBackups)
}
