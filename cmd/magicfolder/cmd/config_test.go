package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicfolder/magicfolder/internal/config"
)

func TestConfigInit_WritesLoadableTemplate(t *testing.T) {
	// Given: an empty project directory
	e := newTestEnv(t)
	e.dir = t.TempDir()

	// When: initializing the project config
	out, err := e.run(t, "config", "init")
	require.NoError(t, err)

	// Then: the template loads with the documented defaults
	path := filepath.Join(e.dir, config.ProjectConfigName)
	assert.Contains(t, out, "[ok] Created configuration")
	assert.FileExists(t, path)

	cfg, err := config.Load(e.dir)
	require.NoError(t, err)
	def := config.NewConfig()
	assert.Equal(t, def.Embeddings, cfg.Embeddings)
	assert.Equal(t, def.Index, cfg.Index)
	assert.Equal(t, def.Watch, cfg.Watch)
	assert.Equal(t, def.Extract.Extensions, cfg.Extract.Extensions)
}

func TestConfigInit_KeepsExistingWithoutForce(t *testing.T) {
	e := newTestEnv(t)
	path := filepath.Join(e.dir, config.ProjectConfigName)

	out, err := e.run(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testProjectConfig, string(data))
}

func TestConfigInit_ForceBacksUp(t *testing.T) {
	e := newTestEnv(t)
	path := filepath.Join(e.dir, config.ProjectConfigName)

	out, err := e.run(t, "config", "init", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Backup:")

	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, testProjectConfig, string(data))
}

func TestConfigInit_User(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.run(t, "config", "init", "--user")

	require.NoError(t, err)
	assert.FileExists(t, config.GetUserConfigPath())
}

func TestConfigShow(t *testing.T) {
	e := newTestEnv(t)

	out, err := e.run(t, "config", "show", "--json")
	require.NoError(t, err)

	shown := decodeJSON[map[string]any](t, out)
	embeddings, ok := shown["embeddings"].(map[string]any)
	require.True(t, ok)
	storage, ok := shown["storage"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "static", embeddings["provider"])
	assert.EqualValues(t, 32, embeddings["dimensions"])
	assert.Equal(t, e.dataDir, storage["data_dir"])

	out, err = e.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "provider: static")
}

func TestConfigShow_InvalidProjectConfig(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, config.ProjectConfigName),
		[]byte("index:\n  metric: dot\n"), 0o644))

	_, err := e.run(t, "config", "show")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "index.metric")
}
