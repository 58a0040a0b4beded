package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StoreBackendFile  = "file"
	StoreBackendRedis = "redis"

	defaultRPCPath      = "/rpc"
	defaultPathPrefix   = "/"
	defaultHostTimeout  = 5000
	defaultTickInterval = 5
	defaultStoreFile    = "commands.json"
	defaultRedisKey     = "bridge:scheduled"
)

type RedisConfig struct {
	Addr         string `json:"addr"`
	Password     string `json:"password"`
	DB           int    `json:"db"`
	Key          string `json:"key"`
	PoolSize     int    `json:"pool_size"`
	MinIdleConns int    `json:"min_idle_conns"`
}

type StoreConfig struct {
	Backend string      `json:"backend"`
	File    string      `json:"file"`
	Redis   RedisConfig `json:"redis"`
}

// BridgeConfig is persisted as config.json in the bridge data directory.
// A nil Port selects shared-port mode.
type BridgeConfig struct {
	Port            *int        `json:"port"`
	LogLevel        string      `json:"log_level"`
	PathPrefix      string      `json:"path_prefix"`
	RPCPath         string      `json:"rpc_path"`
	HostTimeoutMs   int         `json:"host_timeout_ms"`
	TickIntervalSec int         `json:"tick_interval_sec"`
	Store           StoreConfig `json:"store"`
}

type HostConfig struct {
	ListenAddr    string `json:"listen_addr"`
	// WebSocketAddr serves browser clients on /play; empty disables it.
	WebSocketAddr string `json:"websocket_addr"`
	DataDir       string `json:"data_dir"`
	MaxPlayers    int    `json:"max_players"`
	MOTD          string `json:"motd"`
	Version       string `json:"version"`

	// HeartbeatTimeoutSec kicks players silent for longer; 0 disables it.
	HeartbeatTimeoutSec int `json:"heartbeat_timeout_sec"`
}

// envOverrides are read with the BRIDGE_ prefix, e.g. BRIDGE_PORT=8080.
type envOverrides struct {
	Port         *int   `envconfig:"PORT"`
	LogLevel     string `envconfig:"LOG_LEVEL"`
	StoreBackend string `envconfig:"STORE_BACKEND"`
	RedisAddr    string `envconfig:"REDIS_ADDR"`
}

func Load(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		LogLevel:        "info",
		PathPrefix:      defaultPathPrefix,
		RPCPath:         defaultRPCPath,
		HostTimeoutMs:   defaultHostTimeout,
		TickIntervalSec: defaultTickInterval,
		Store: StoreConfig{
			Backend: StoreBackendFile,
			File:    defaultStoreFile,
			Redis:   RedisConfig{Key: defaultRedisKey},
		},
	}
}

func DefaultHostConfig() HostConfig {
	return HostConfig{
		ListenAddr:    ":25565",
		WebSocketAddr: ":25566",
		DataDir:       "data",
		MaxPlayers:    20,
		MOTD:          "A Go game server",
		Version:       "1.0.0",

		HeartbeatTimeoutSec: 60,
	}
}

// LoadBridge reads the bridge config. A missing file is created from the
// defaults, matching a first start of the host.
func LoadBridge(path string) (*BridgeConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		def := DefaultBridgeConfig()
		if err := def.Save(path); err != nil {
			return nil, err
		}
	}
	return readBridge(path)
}

// readBridge loads path over the defaults and applies BRIDGE_* overrides.
// Startup and live reloads both go through it.
func readBridge(path string) (*BridgeConfig, error) {
	cfg := DefaultBridgeConfig()
	if err := Load(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return &cfg, nil
}

// Reset overwrites path with the defaults and returns them.
func Reset(path string) (*BridgeConfig, error) {
	cfg := DefaultBridgeConfig()
	if err := cfg.Save(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *BridgeConfig) ApplyEnv() error {
	var env envOverrides
	if err := envconfig.Process("BRIDGE", &env); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	if env.Port != nil {
		port := *env.Port
		c.Port = &port
	}
	if env.LogLevel != "" {
		c.LogLevel = env.LogLevel
	}
	if env.StoreBackend != "" {
		c.Store.Backend = env.StoreBackend
	}
	if env.RedisAddr != "" {
		c.Store.Redis.Addr = env.RedisAddr
	}
	return nil
}

func (c *BridgeConfig) applyDefaults() {
	def := DefaultBridgeConfig()
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = def.LogLevel
	}
	if strings.TrimSpace(c.PathPrefix) == "" {
		c.PathPrefix = def.PathPrefix
	}
	if strings.TrimSpace(c.RPCPath) == "" {
		c.RPCPath = def.RPCPath
	}
	if c.HostTimeoutMs <= 0 {
		c.HostTimeoutMs = def.HostTimeoutMs
	}
	if c.TickIntervalSec <= 0 {
		c.TickIntervalSec = def.TickIntervalSec
	}
	if strings.TrimSpace(c.Store.Backend) == "" {
		c.Store.Backend = def.Store.Backend
	}
	if strings.TrimSpace(c.Store.File) == "" {
		c.Store.File = def.Store.File
	}
	if strings.TrimSpace(c.Store.Redis.Key) == "" {
		c.Store.Redis.Key = def.Store.Redis.Key
	}
}

func (c *BridgeConfig) Validate() error {
	if c.Port != nil && (*c.Port <= 0 || *c.Port > 65535) {
		return fmt.Errorf("port %d out of range", *c.Port)
	}
	if !strings.HasPrefix(c.RPCPath, "/") {
		return fmt.Errorf("rpc_path %q must start with /", c.RPCPath)
	}
	if !strings.HasPrefix(c.PathPrefix, "/") {
		return fmt.Errorf("path_prefix %q must start with /", c.PathPrefix)
	}
	switch c.Store.Backend {
	case StoreBackendFile:
	case StoreBackendRedis:
		if strings.TrimSpace(c.Store.Redis.Addr) == "" {
			return fmt.Errorf("store.redis.addr required for redis backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q (use: file|redis)", c.Store.Backend)
	}
	return nil
}

func (c *BridgeConfig) HostTimeout() time.Duration {
	return time.Duration(c.HostTimeoutMs) * time.Millisecond
}

func (c *BridgeConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSec) * time.Second
}

// WithPort returns a copy with the dedicated port set.
func (c BridgeConfig) WithPort(port int) BridgeConfig {
	c.Port = &port
	return c
}

func (c *BridgeConfig) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return WriteFileAtomic(path, append(data, '\n'))
}

// WriteFileAtomic replaces path via a temp file + rename in the same
// directory so readers never observe a partial document.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
