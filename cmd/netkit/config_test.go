package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/netkit/netkit"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netkit.yaml")
	data := []byte(`
log:
  level: debug
session:
  max_message_size: 65536
  idle_timeout: 30s
  write_timeout: 1500ms
  max_conns: 100
  protocols: [chat, superchat]
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 65536, cfg.Session.MaxMessageSize)
	require.Equal(t, 30*time.Second, cfg.Session.IdleTimeout)
	require.Equal(t, 1500*time.Millisecond, cfg.Session.WriteTimeout)
	require.Equal(t, 100, cfg.Session.MaxConns)
	require.Equal(t, []string{"chat", "superchat"}, cfg.Session.Protocols)
	require.Zero(t, cfg.Session.ReadBufferSize)
}

func TestLoadConfigDefault(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, netkit.Config{}, cfg.Session)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  idle_timeout: forever\n"), 0o600))
	_, err = LoadConfig(path)
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger("warn")
	require.NoError(t, err)
	require.Equal(t, zerolog.WarnLevel, l.GetLevel())

	_, err = newLogger("loud")
	require.Error(t, err)
}

func TestSendCommand(t *testing.T) {
	log = zerolog.Nop()
	cfg = &Config{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv, err := newServer(netkit.KindTCP, &cfg.Session, false)
	require.NoError(t, err)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	defer srv.Shutdown(ctx)

	var out bytes.Buffer
	sendCount = 2
	defer func() { sendCount = 0 }()
	sendCmd.SetOut(&out)
	sendCmd.SetContext(ctx)
	err = sendCmd.RunE(sendCmd, []string{"tcp://" + srv.Addr().String(), "hello", "world"})
	require.NoError(t, err)
	require.Equal(t, "hello\nworld\n", out.String())
}
