package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-apns-service/apnsservice/config"
)

func TestLoad(t *testing.T) {
	logger := newTestLogger()
	raw := []byte(`
listen_addr: ":8082"
apns:
  key_id: "YAMLKEY"
  team_id: "YAMLTEAM"
  bundle_id: "com.example.app"
  key_path: "/keys/AuthKey.p8"
`)

	t.Run("Success - yaml then env", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("APNS_KEY_ID", "ENVKEY")

		cfg, err := config.Load(raw, logger)
		require.NoError(t, err)
		assert.Equal(t, ":8082", cfg.ListenAddr)
		assert.Equal(t, "ENVKEY", cfg.APNS.KeyID)
		assert.Equal(t, "YAMLTEAM", cfg.APNS.TeamID)
	})

	t.Run("Success - .env file is read", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APNS_TEAM_ID=DOTENVTEAM\n"), 0o600))
		// godotenv never overwrites, so register cleanup for the variable it sets.
		t.Setenv("APNS_TEAM_ID", "")
		require.NoError(t, os.Unsetenv("APNS_TEAM_ID"))

		cfg, err := config.Load(raw, logger)
		require.NoError(t, err)
		assert.Equal(t, "DOTENVTEAM", cfg.APNS.TeamID)
	})

	t.Run("Failure - bad yaml", func(t *testing.T) {
		t.Chdir(t.TempDir())
		_, err := config.Load([]byte("listen_addr: [unterminated"), logger)
		assert.Error(t, err)
	})
}
