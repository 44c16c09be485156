package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRunnerConfigDefaults(t *testing.T) {
	cfg, err := LoadRunnerConfig("", nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	want := &RunnerConfig{
		SubgraphPaths: []string{"./subgraphs"},
		LogLevel:      "info",
		Network:       "mainnet",
		Wasm: WasmConfig{
			MemoryPages:      256,
			MaxInstances:     100,
			ExecutionTimeout: 30 * time.Second,
			ArenaChunkSize:   64 * 1024,
		},
		Store: StoreConfig{Backend: StoreMemory, Path: "./data/entities.db"},
		IPFS:  IPFSConfig{Gateway: "http://127.0.0.1:8080", Timeout: 30 * time.Second},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Default config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRunnerConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
network: goerli
subgraph_paths: [./a, ./b]
wasm:
  execution_timeout: 5s
  memory_pages: 512
store:
  backend: sqlite
  path: /tmp/entities.db
ipfs:
  gateway: https://ipfs.io
`)

	cfg, err := LoadRunnerConfig(path, nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("Log level mismatch: got %s, want debug", cfg.LogLevel)
	}
	if cfg.Network != "goerli" {
		t.Errorf("Network mismatch: got %s, want goerli", cfg.Network)
	}
	if diff := cmp.Diff([]string{"./a", "./b"}, cfg.SubgraphPaths); diff != "" {
		t.Errorf("Subgraph paths mismatch (-want +got):\n%s", diff)
	}
	if cfg.Wasm.ExecutionTimeout != 5*time.Second {
		t.Errorf("Execution timeout mismatch: got %v, want 5s", cfg.Wasm.ExecutionTimeout)
	}
	if cfg.Wasm.MemoryPages != 512 {
		t.Errorf("Memory pages mismatch: got %d, want 512", cfg.Wasm.MemoryPages)
	}
	if cfg.Store.Backend != StoreSQLite || cfg.Store.Path != "/tmp/entities.db" {
		t.Errorf("Store mismatch: got %+v", cfg.Store)
	}
	if cfg.IPFS.Gateway != "https://ipfs.io" {
		t.Errorf("IPFS gateway mismatch: got %s", cfg.IPFS.Gateway)
	}
}

func TestLoadRunnerConfigEnvOverride(t *testing.T) {
	t.Setenv("SUBGRAPH_NETWORK", "sepolia")
	t.Setenv("SUBGRAPH_STORE_BACKEND", "sqlite")

	cfg, err := LoadRunnerConfig("", nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Network != "sepolia" {
		t.Errorf("Network mismatch: got %s, want sepolia", cfg.Network)
	}
	if cfg.Store.Backend != StoreSQLite {
		t.Errorf("Store backend mismatch: got %s, want sqlite", cfg.Store.Backend)
	}
}

func TestLoadRunnerConfigFlags(t *testing.T) {
	path := writeConfig(t, "log_level: warn\nnetwork: goerli\n")

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	fs.String("log-level", "info", "")
	fs.String("network", "", "")
	fs.Duration("timeout", 0, "")
	if err := fs.Parse([]string{"--network", "gnosis", "--timeout", "2s"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadRunnerConfig(path, fs)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Network != "gnosis" {
		t.Errorf("Network mismatch: got %s, want gnosis", cfg.Network)
	}
	// Unset flags do not shadow the file.
	if cfg.LogLevel != "warn" {
		t.Errorf("Log level mismatch: got %s, want warn", cfg.LogLevel)
	}
	if cfg.Wasm.ExecutionTimeout != 2*time.Second {
		t.Errorf("Execution timeout mismatch: got %v, want 2s", cfg.Wasm.ExecutionTimeout)
	}
}

func TestLoadRunnerConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown backend", "store:\n  backend: postgres\n"},
		{"unknown log level", "log_level: loud\n"},
		{"zero memory", "wasm:\n  memory_pages: 0\n"},
		{"sqlite without path", "store:\n  backend: sqlite\n  path: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadRunnerConfig(writeConfig(t, tt.content), nil); err == nil {
				t.Error("LoadRunnerConfig succeeded, want error")
			}
		})
	}

	if _, err := LoadRunnerConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("LoadRunnerConfig of a missing file succeeded")
	}
}
