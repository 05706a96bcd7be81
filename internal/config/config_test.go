package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFilesPresent(t *testing.T) {
	workDir := t.TempDir()

	cfg, sources, err := Load(workDir, "", Config{DataPath: workDir}, true, nil)
	require.NoError(t, err)
	assert.Empty(t, sources.Global)
	assert.Empty(t, sources.Project)
	assert.Equal(t, "_null_", cfg.NullSentinelToken)
	assert.True(t, cfg.AutoFacetEnabled)
	assert.Equal(t, "fast-streaming", cfg.StorageCompression)
	assert.Equal(t, workDir, cfg.DataPath)
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	workDir := t.TempDir()
	projectFile := filepath.Join(workDir, ConfigFileName)
	require.NoError(t, os.WriteFile(projectFile, []byte(`{
		// project overrides
		"null_sentinel_token": "NULL",
		"storage_compression": "none",
	}`), 0o644))

	cfg, sources, err := Load(workDir, "", Config{DataPath: workDir}, true, nil)
	require.NoError(t, err)
	assert.Equal(t, projectFile, sources.Project)
	assert.Equal(t, "NULL", cfg.NullSentinelToken)
	assert.Equal(t, "none", cfg.StorageCompression)
}

func TestLoad_CLIOverrideTakesPrecedenceOverFile(t *testing.T) {
	workDir := t.TempDir()
	projectFile := filepath.Join(workDir, ConfigFileName)
	require.NoError(t, os.WriteFile(projectFile, []byte(`{"data_path": "/from/file"}`), 0o644))

	cfg, _, err := Load(workDir, "", Config{DataPath: "/from/cli"}, true, nil)
	require.NoError(t, err)
	assert.Equal(t, "/from/cli", cfg.DataPath)
}

func TestLoad_ExplicitConfigPathMustExist(t *testing.T) {
	workDir := t.TempDir()
	_, _, err := Load(workDir, "missing.json", Config{}, false, nil)
	assert.ErrorIs(t, err, errConfigFileNotFound)
}

func TestLoad_InvalidCompressionFailsValidation(t *testing.T) {
	workDir := t.TempDir()
	projectFile := filepath.Join(workDir, ConfigFileName)
	require.NoError(t, os.WriteFile(projectFile, []byte(`{"storage_compression": "bogus"}`), 0o644))

	_, _, err := Load(workDir, "", Config{DataPath: workDir}, true, nil)
	assert.ErrorIs(t, err, errConfigInvalid)
}

func TestLoad_EmptyDataPathFailsValidation(t *testing.T) {
	workDir := t.TempDir()
	_, _, err := Load(workDir, "", Config{}, false, nil)
	assert.ErrorIs(t, err, errDataPathEmpty)
}

func TestFormat_RoundTripsJSON(t *testing.T) {
	cfg := Default()
	cfg.DataPath = "/tmp/data"
	out, err := Format(cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `"data_path": "/tmp/data"`)
}
