package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBridgeCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := LoadBridge(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.Port)
	assert.Equal(t, "/rpc", cfg.RPCPath)
	assert.Equal(t, 5*time.Second, cfg.TickInterval())
	assert.Equal(t, 5*time.Second, cfg.HostTimeout())

	_, err = os.Stat(path)
	require.NoError(t, err, "defaults must be written back")
}

func TestLoadBridgeFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port":8080,"log_level":"FINE"}`), 0o644))

	cfg, err := LoadBridge(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Port)
	assert.Equal(t, 8080, *cfg.Port)
	assert.Equal(t, "FINE", cfg.LogLevel)
	assert.Equal(t, StoreBackendFile, cfg.Store.Backend)
	assert.Equal(t, "commands.json", cfg.Store.File)
}

func TestLoadBridgeEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("BRIDGE_PORT", "9090")
	t.Setenv("BRIDGE_LOG_LEVEL", "debug")

	cfg, err := LoadBridge(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Port)
	assert.Equal(t, 9090, *cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	cfg := DefaultBridgeConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg.WithPort(70000)
	require.Error(t, bad.Validate())

	redis := DefaultBridgeConfig()
	redis.Store.Backend = StoreBackendRedis
	require.Error(t, redis.Validate())
	redis.Store.Redis.Addr = "127.0.0.1:6379"
	require.NoError(t, redis.Validate())

	unknown := DefaultBridgeConfig()
	unknown.Store.Backend = "s3"
	require.Error(t, unknown.Validate())
}

func TestResetDiscardsPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	withPort := DefaultBridgeConfig().WithPort(8080)
	require.NoError(t, withPort.Save(path))

	cfg, err := Reset(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.Port)

	var reloaded BridgeConfig
	require.NoError(t, Load(path, &reloaded))
	assert.Nil(t, reloaded.Port)
}

func TestLoadReportsParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))
	_, err := LoadBridge(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestWatchAppliesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := DefaultBridgeConfig()
	require.NoError(t, cfg.Save(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got *BridgeConfig
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(c *BridgeConfig) {
			mu.Lock()
			got = c
			mu.Unlock()
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	updated := cfg.WithPort(8181)
	require.NoError(t, updated.Save(path))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.Port != nil && *got.Port == 8181
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWatchKeepsEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("BRIDGE_PORT", "9090")
	cfg := DefaultBridgeConfig()
	require.NoError(t, cfg.Save(path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *BridgeConfig, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, nil, func(c *BridgeConfig) { reloaded <- c })
	}()

	time.Sleep(100 * time.Millisecond)
	cfg.LogLevel = "debug"
	require.NoError(t, cfg.Save(path))

	select {
	case got := <-reloaded:
		assert.Equal(t, "debug", got.LogLevel)
		require.NotNil(t, got.Port)
		assert.Equal(t, 9090, *got.Port)
	case <-time.After(5 * time.Second):
		t.Fatal("config not reloaded")
	}

	cancel()
	require.NoError(t, <-done)
}
