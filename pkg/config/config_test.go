package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "system.js", cfg.Store.Collection)
	assert.Equal(t, 10*time.Second, cfg.Store.ConnectTimeout)
	assert.True(t, cfg.Script.ReportError)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	t.Run("default is valid", func(t *testing.T) {
		require.NoError(t, Default().Validate())
	})

	t.Run("uri requires database", func(t *testing.T) {
		cfg := Default()
		cfg.Store.URI = "mongodb://localhost:27017"
		assert.Error(t, cfg.Validate())

		cfg.Store.Database = "app"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("negative timeout rejected", func(t *testing.T) {
		cfg := Default()
		cfg.Script.Timeout = -time.Second
		assert.Error(t, cfg.Validate())
	})

	t.Run("empty collection restored", func(t *testing.T) {
		cfg := Default()
		cfg.Store.Collection = ""
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "system.js", cfg.Store.Collection)
	})
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
store:
  uri: mongodb://localhost:27017
  database: app
script:
  print_result: true
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := Default()
	require.NoError(t, Load(path, cfg))

	assert.Equal(t, "mongodb://localhost:27017", cfg.Store.URI)
	assert.Equal(t, "app", cfg.Store.Database)
	assert.True(t, cfg.Script.PrintResult)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"store": {"database": "app"}, "logging": {"level": "warn"}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := Default()
	require.NoError(t, Load(path, cfg))

	assert.Equal(t, "app", cfg.Store.Database)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	cfg := Default()
	assert.Error(t, Load(filepath.Join(t.TempDir(), "absent.yaml"), cfg))
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("SCRIPTPOOL_TEST_DB", "staging")

	out := substituteEnvVars("database: ${SCRIPTPOOL_TEST_DB}")
	assert.Equal(t, "database: staging", out)

	out = substituteEnvVars("database: ${SCRIPTPOOL_TEST_UNSET_VAR}")
	assert.Equal(t, "database: ", out)

	out = substituteEnvVars("no placeholders here")
	assert.Equal(t, "no placeholders here", out)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")

	cfg := Default()
	cfg.Store.Database = "app"
	require.NoError(t, Save(path, cfg))

	loaded := &Config{}
	require.NoError(t, Load(path, loaded))
	assert.Equal(t, "app", loaded.Store.Database)
	assert.Equal(t, "system.js", loaded.Store.Collection)
}
