package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, "db.sqlite3", cfg.Sqlite.Dsn)
	assert.Equal(t, "netlens_", cfg.Sqlite.Prefix)
	assert.Equal(t, "http://127.0.0.1:9222", cfg.DevTools.URL)
	assert.Equal(t, "gemini", cfg.Provider.Name)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "netlens_", cfg.Sqlite.Prefix)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netlens.yaml")
	data := `
sqlite:
  dsn: /tmp/other.sqlite3
log:
  level: debug
  writer: [console, file]
provider:
  name: openai
  model: gpt-4o-mini
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.sqlite3", cfg.Sqlite.Dsn)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"console", "file"}, cfg.Log.Writer)
	assert.Equal(t, "openai", cfg.Provider.Name)
	// 未覆盖的字段保留默认值
	assert.Equal(t, "netlens_", cfg.Sqlite.Prefix)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sqlite: [not a map"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
