package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/akhenakh/rrf/internal/config"
	"github.com/akhenakh/rrf/internal/rrf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestEnv isolates HOME and DATABASE_URL so Load never sees the user's files.
func setupTestEnv(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("DATABASE_URL", "")
	return dir
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := setupTestEnv(t)

	cfg, err := config.Load(filepath.Join(dir, "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, int64(rrf.DefaultK), cfg.K)
}

func TestLoad_DefaultPath(t *testing.T) {
	dir := setupTestEnv(t)

	path, err := config.GetConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".config", "rrf.yml"), path)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.OutputTable, cfg.Output)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := setupTestEnv(t)
	path := filepath.Join(dir, "rrf.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
k: 20
output: json
limit: 5
postgres:
  schema: search
`), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(20), cfg.K)
	assert.Equal(t, config.OutputJSON, cfg.Output)
	assert.Equal(t, 5, cfg.Limit)
	assert.Equal(t, "search", cfg.Postgres.Schema)
	// Untouched sections keep their defaults.
	assert.True(t, cfg.SQLite.LoadVec)
	assert.Equal(t, config.Default().SQLite.DSN, cfg.SQLite.DSN)
}

func TestLoad_InvalidK(t *testing.T) {
	dir := setupTestEnv(t)
	path := filepath.Join(dir, "rrf.yml")
	require.NoError(t, os.WriteFile(path, []byte("k: 0\n"), 0644))

	_, err := config.Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, rrf.ErrInvalidConstant)
}

func TestLoad_DatabaseURLFallback(t *testing.T) {
	dir := setupTestEnv(t)
	t.Setenv("DATABASE_URL", "postgres://rrf@localhost/rrf?sslmode=disable")

	cfg, err := config.Load(filepath.Join(dir, "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://rrf@localhost/rrf?sslmode=disable", cfg.Postgres.DSN)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	cfg.Output = "xml"
	assert.Error(t, cfg.Validate())

	cfg = config.Default()
	cfg.Limit = -1
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := setupTestEnv(t)
	path := filepath.Join(dir, "nested", "rrf.yml")

	cfg := config.Default()
	cfg.K = 10
	cfg.Output = config.OutputJSON
	require.NoError(t, config.Save(path, cfg))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
