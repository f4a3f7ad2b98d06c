package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amandrive/internal/config"
)

func TestConfigInit_WritesDefaults(t *testing.T) {
	// Given: a config path that does not exist yet
	path := filepath.Join(t.TempDir(), "conf", config.FileName)
	root := t.TempDir()

	// When: running config init with a storage root
	out, err := execute(t, "--config", path, "config", "init", "--root", root)

	// Then: the file holds the defaults and the root
	require.NoError(t, err)
	assert.Contains(t, out, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, root, cfg.Storage.Root)
	assert.Equal(t, config.NewConfig().Search.DefaultPageSize, cfg.Search.DefaultPageSize)
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	// Given: an existing config file
	path := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	// When: running config init without --force
	_, err := execute(t, "--config", path, "config", "init")

	// Then: the file is kept
	require.Error(t, err)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestConfigInit_ForceBacksUp(t *testing.T) {
	// Given: an existing config file
	path := filepath.Join(t.TempDir(), config.FileName)
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	// When: running config init --force
	_, err := execute(t, "--config", path, "config", "init", "--force")

	// Then: the new file is written and the old one backed up
	require.NoError(t, err)
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestConfigShow_AppliesEnvOverrides(t *testing.T) {
	// Given: a config file and an environment override
	cfgPath := testDrive(t, nil)
	root := t.TempDir()
	t.Setenv("AMANDRIVE_ROOT", root)

	// When: showing the effective config
	out, err := execute(t, "--config", cfgPath, "config", "show")

	// Then: the override wins
	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, root, cfg.Storage.Root)
	assert.False(t, cfg.Watch.Enabled)
}
