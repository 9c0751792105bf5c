package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "gumdl/pkg/errors"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Gumroad.AppSession = "session-token"
	cfg.Gumroad.Guid = "guid-token"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1, cfg.Download.ConcurrentDownloads)
	assert.Equal(t, 3, cfg.Download.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.Download.PoliteDelay)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NotEmpty(t, cfg.Gumroad.UserAgent)
	assert.NotEmpty(t, cfg.Cache.Path)
	assert.Equal(t, "{purchase_date} {product_name}", cfg.Output.ProductFolderTemplate)
}

func TestValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("MissingAuthIsConfigError", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.Validate()
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrorTypeConfig, apperrors.TypeOf(err))
		assert.Contains(t, err.Error(), "app_session")
		assert.Contains(t, err.Error(), "guid")
	})

	t.Run("TooManyConcurrentDownloads", func(t *testing.T) {
		cfg := validConfig()
		cfg.Download.ConcurrentDownloads = 8
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "concurrent")
	})

	t.Run("InvalidLogLevel", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Level = "chatty"
		assert.Error(t, cfg.Validate())
	})
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
gumroad:
  app_session: file-session
  guid: file-guid
output:
  root_folder: /data/gumroad
cache:
  path: /data/gumroad.cache
download:
  concurrent_downloads: 2
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "file-session", cfg.Gumroad.AppSession)
	assert.Equal(t, "file-guid", cfg.Gumroad.Guid)
	assert.Equal(t, "/data/gumroad", cfg.Output.RootFolder)
	assert.Equal(t, "/data/gumroad.cache", cfg.Cache.Path)
	assert.Equal(t, 2, cfg.Download.ConcurrentDownloads)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Untouched fields keep their defaults
	assert.Equal(t, "{purchase_date} {product_name}", cfg.Output.ProductFolderTemplate)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GUMDL_APP_SESSION", "env-session")
	t.Setenv("GUMDL_GUID", "env-guid")
	t.Setenv("GUMDL_ROOT_FOLDER", "/env/root")
	t.Setenv("GUMDL_CONCURRENT_DOWNLOADS", "3")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, "env-session", cfg.Gumroad.AppSession)
	assert.Equal(t, "env-guid", cfg.Gumroad.Guid)
	assert.Equal(t, "/env/root", cfg.Output.RootFolder)
	assert.Equal(t, 3, cfg.Download.ConcurrentDownloads)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("GUMDL_APP_SESSION", "env-session")
	t.Setenv("GUMDL_GUID", "env-guid")

	cfg, err := Load("", map[string]interface{}{
		"app-session": "flag-session",
		"output":      "/flag/root",
	})
	require.NoError(t, err)

	assert.Equal(t, "flag-session", cfg.Gumroad.AppSession)
	assert.Equal(t, "env-guid", cfg.Gumroad.Guid)
	assert.Equal(t, "/flag/root", cfg.Output.RootFolder)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := validConfig()
	cfg.Output.RootFolder = "/saved/root"
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "/saved/root", loaded.Output.RootFolder)
	assert.Equal(t, cfg.Gumroad.AppSession, loaded.Gumroad.AppSession)
}
