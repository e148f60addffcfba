package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "postgres"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Store.Driver = "mongo"
	cfg.Store.MongoURI = ""
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Push.Provider = "fcm"
	require.Error(t, cfg.Validate(), "fcm needs a credentials file")

	cfg = Default()
	cfg.JWT.Secret = "short"
	require.Error(t, cfg.Validate())
}

func TestLoadWritesDefaultFileAndAppliesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("MYCONNECT_DISPATCH_WORKERS", "9")
	t.Setenv("MYCONNECT_CHAT_PUBLIC_FALLBACK_NAME", "Community")

	cfg, resolved, err := Load(nil, path)
	require.NoError(t, err)
	require.Equal(t, path, resolved)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written on first run")

	require.Equal(t, 9, cfg.Dispatch.Workers)
	require.Equal(t, "Community", cfg.Chat.PublicFallbackName)
	require.Equal(t, 256, cfg.Dispatch.QueueSize)
	require.Equal(t, 10*time.Second, cfg.Push.Timeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  addr: ":9090"
store:
  driver: mongo
  mongo_uri: mongodb://localhost:27017
  mongo_db: test
push:
  timeout: 3s
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, "mongo", cfg.Store.Driver)
	require.Equal(t, 3*time.Second, cfg.Push.Timeout)
	require.Equal(t, 4, cfg.Dispatch.Workers)
	require.NoError(t, cfg.Validate())
}
