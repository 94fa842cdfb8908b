package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/config"
	"github.com/funvibe/torrentrpc/internal/rpc"
)

func TestNewDaemonAppliesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = ""
	cfg.Scheduler.MaxActive = 2
	cfg.RPC.Dialect = config.DialectGeneric
	cfg.RPC.SizeLimit = "1 MiB"
	cfg.Startup = []string{`method.insert=greeting,string,hello`}

	d, err := newDaemon(cfg, true)
	require.NoError(t, err)
	defer d.close()

	require.Nil(t, d.store)
	require.Equal(t, rpc.DialectGeneric, d.bridge.Dialect())
	require.Equal(t, int64(1<<20), d.bridge.SizeLimit())

	v, err := d.engine.Eval(config.MaxActiveCommand+"=", command.NoTarget())
	require.NoError(t, err)
	require.Equal(t, int64(2), v.AsValue())

	v, err = d.engine.Eval("greeting=", command.NoTarget())
	require.NoError(t, err)
	require.Equal(t, "hello", v.AsString())
}

func TestNewDaemonStartupFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = ""
	cfg.Startup = []string{"no.such.command="}

	_, err := newDaemon(cfg, false)
	require.Error(t, err)
}

func TestDaemonRestoresMethods(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "state", "methods.db")
	cfg.Startup = []string{`method.insert=counter,value,5`, config.SaveMethodsCommand + "="}

	d, err := newDaemon(cfg, true)
	require.NoError(t, err)
	_, err = d.engine.Eval(`method.insert=greeting,string,hello`, command.NoTarget())
	require.NoError(t, err)
	_, err = d.engine.Eval(config.SaveMethodsCommand+"=", command.NoTarget())
	require.NoError(t, err)
	d.close()

	// Same startup commands on every boot.
	for i := 0; i < 2; i++ {
		d, err = newDaemon(cfg, true)
		require.NoError(t, err)

		var out bytes.Buffer
		d.engine.Out = &out
		_, err = d.engine.Eval(`print=$counter=,$greeting=`, command.NoTarget())
		require.NoError(t, err)
		require.Equal(t, "5hello\n", out.String())
		d.close()
	}
}
