package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	n, err := cfg.SizeLimitBytes()
	require.NoError(t, err)
	require.Equal(t, uint64(DefaultSizeLimit), n)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpc:
  listen: 0.0.0.0:5001
  dialect: apache
  size_limit: 8 MiB
scheduler:
  max_active: 3
startup:
  - method.insert = hello,simple,"print=hello"
  - hello=
`), 0644))

	t.Setenv("TORRENTRPC_RPC_READONLY", "true")
	t.Setenv("TORRENTRPC_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:5001", cfg.RPC.Listen)
	require.Equal(t, DialectApache, cfg.RPC.Dialect)
	require.True(t, cfg.RPC.Readonly)
	require.Equal(t, int64(3), cfg.Scheduler.MaxActive)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Startup, 2)

	n, err := cfg.SizeLimitBytes()
	require.NoError(t, err)
	require.Equal(t, uint64(8<<20), n)
}

func TestLoadRejectsBadSizeLimit(t *testing.T) {
	for _, limit := range []string{"lots", "0", "1 GiB"} {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("rpc:\n  size_limit: "+limit+"\n"), 0644))
		_, err := Load(path)
		require.Error(t, err, limit)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Startup = []string{"print=ready"}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}
