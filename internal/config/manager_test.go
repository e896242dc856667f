package config

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Get(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9191
`)

	m, err := NewManager(path, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	assert.Equal(t, 9191, m.Get().Server.Port)
}

func TestManager_BadFile(t *testing.T) {
	path := writeConfig(t, `server: {port: -1}`)

	_, err := NewManager(path, slog.Default())
	require.Error(t, err)
}

func TestManager_Reload(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9191
`)

	m, err := NewManager(path, slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	changed := make(chan *Config, 1)
	m.OnChange(func(c *Config) { changed <- c })
	require.NoError(t, m.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9292
`), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, 9292, cfg.Server.Port)
		assert.Equal(t, 9292, m.Get().Server.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestManager_SubscribeAfterWatch(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
`)

	m, err := NewManager(path, slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, m.Watch(ctx))

	// Collaborators built after the watch starts still get notified.
	changed := make(chan *Config, 1)
	m.OnChange(func(c *Config) { changed <- c })

	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
`), 0o644))

	select {
	case cfg := <-changed:
		assert.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestManager_ReloadKeepsCurrentOnError(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9191
`)

	m, err := NewManager(path, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	m.reload()
	assert.Equal(t, 9191, m.Get().Server.Port)

	require.NoError(t, os.WriteFile(path, []byte(`server: {port: 70000}`), 0o644))
	m.reload()

	// Invalid file is rejected; the last good config stays in place.
	assert.Equal(t, 9191, m.Get().Server.Port)
}
