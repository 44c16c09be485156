package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SUBGRAPH_STORE_BACKEND.
const EnvPrefix = "SUBGRAPH"

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

type RunnerConfig struct {
	SubgraphPaths []string    `mapstructure:"subgraph_paths"`
	LogLevel      string      `mapstructure:"log_level"`
	Network       string      `mapstructure:"network"`
	Wasm          WasmConfig  `mapstructure:"wasm"`
	Store         StoreConfig `mapstructure:"store"`
	IPFS          IPFSConfig  `mapstructure:"ipfs"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Enable debug logging.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances"`
	// Upper bound on one handler invocation.
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`
	// Minimum region requested from the guest allocator.
	ArenaChunkSize uint32 `mapstructure:"arena_chunk_size"`
}

// StoreConfig selects the entity store.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	// Database file for the sqlite backend.
	Path string `mapstructure:"path"`
}

// IPFSConfig configures the gateway behind ipfs.cat and ipfs.getBlock.
type IPFSConfig struct {
	Gateway string        `mapstructure:"gateway"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":     "log_level",
	"network":       "network",
	"store":         "store.backend",
	"store-path":    "store.path",
	"ipfs-gateway":  "ipfs.gateway",
	"timeout":       "wasm.execution_timeout",
	"wasm-cache":    "wasm.cache_dir",
	"subgraph-path": "subgraph_paths",
}

// LoadRunnerConfig reads the configuration file at configPath, if any, and
// applies SUBGRAPH_* environment overrides and the flags of fs that were set.
func LoadRunnerConfig(configPath string, fs *pflag.FlagSet) (*RunnerConfig, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("subgraph_paths", []string{"./subgraphs"})
	v.SetDefault("log_level", "info")
	v.SetDefault("network", "mainnet")

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.execution_timeout", 30*time.Second)
	v.SetDefault("wasm.arena_chunk_size", 64*1024)

	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.path", "./data/entities.db")

	v.SetDefault("ipfs.gateway", "http://127.0.0.1:8080")
	v.SetDefault("ipfs.timeout", 30*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg RunnerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values viper cannot type-check.
func (c *RunnerConfig) Validate() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the %s backend", StoreSQLite)
		}
	default:
		return fmt.Errorf("unknown store backend %q (must be one of: %s, %s)", c.Store.Backend, StoreMemory, StoreSQLite)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.Wasm.MemoryPages == 0 || c.Wasm.MemoryPages > 65536 {
		return fmt.Errorf("wasm.memory_pages must be between 1 and 65536, got %d", c.Wasm.MemoryPages)
	}
	if c.Wasm.ExecutionTimeout < 0 {
		return fmt.Errorf("wasm.execution_timeout must not be negative")
	}
	return nil
}
