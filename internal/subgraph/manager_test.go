package subgraph

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/subgraph-abi/internal/config"
	"github.com/woxQAQ/subgraph-abi/internal/store"
	"github.com/woxQAQ/subgraph-abi/internal/wasm"
	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

func newTestManager(t *testing.T, paths ...string) *Manager {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := &config.RunnerConfig{SubgraphPaths: paths}
	return NewManager(cfg, newTestRuntime(t), wasm.NewHostFunctions(logger), logger)
}

func TestManager_NewManager(t *testing.T) {
	manager := newTestManager(t, "/tmp/subgraphs")

	if manager == nil {
		t.Fatal("NewManager() returned nil")
	}
	if manager.IsLoaded() {
		t.Error("Manager should not be loaded initially")
	}
	if manager.Registry().Count() != 0 {
		t.Error("Registry should be empty initially")
	}
}

func TestManager_LoadAll(t *testing.T) {
	dir := newTokenSubgraph(t)
	manager := newTestManager(t, filepath.Dir(dir))
	ctx := context.Background()

	if err := manager.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll() failed: %v", err)
	}
	if !manager.IsLoaded() {
		t.Error("Manager should be loaded")
	}
	if manager.Registry().Count() != 1 {
		t.Errorf("expected 1 subgraph, got %d", manager.Registry().Count())
	}

	if err := manager.LoadAll(ctx); err == nil {
		t.Error("second LoadAll() should fail")
	}

	subgraphs, err := manager.FindSubgraphsForNetwork("mainnet")
	if err != nil || len(subgraphs) != 1 {
		t.Errorf("FindSubgraphsForNetwork(mainnet) = %d, %v", len(subgraphs), err)
	}
	if _, err := manager.FindSubgraphsForNetwork("goerli"); err == nil {
		t.Error("FindSubgraphsForNetwork(goerli) should fail")
	}
}

func TestManager_LoadAll_Empty(t *testing.T) {
	manager := newTestManager(t, t.TempDir())

	if err := manager.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll() should tolerate empty paths: %v", err)
	}
	if !manager.IsLoaded() {
		t.Error("Manager should be loaded")
	}
}

func TestManager_GetSubgraph_NotFound(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.GetSubgraph("nonexistent")
	if err == nil {
		t.Fatal("GetSubgraph() should fail for non-existent subgraph")
	}
	if _, ok := err.(*SubgraphNotFoundError); !ok {
		t.Errorf("expected SubgraphNotFoundError, got %T", err)
	}
}

func TestManager_InstantiateDataSource(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	sg, err := manager.Load(ctx, newTokenSubgraph(t))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got, err := manager.GetSubgraph("token"); err != nil || got != sg {
		t.Fatalf("GetSubgraph(token) = %v, %v", got, err)
	}

	st := store.NewMemoryStore()
	inst, err := manager.InstantiateDataSource(ctx, sg, "Token", wasm.Environment{Store: st})
	if err != nil {
		t.Fatalf("InstantiateDataSource() failed: %v", err)
	}
	defer inst.Close(ctx)

	env := inst.Env()
	if env.Store != st {
		t.Error("store should be passed through")
	}
	if env.DataSource.Name != "Token" || env.DataSource.Network != "mainnet" {
		t.Errorf("unexpected data source %+v", env.DataSource)
	}
	if env.DataSource.Address.Hex() != tokenAddress {
		t.Errorf("expected address %s, got %s", tokenAddress, env.DataSource.Address)
	}
	symbol, ok := env.DataSource.Context.Get("symbol")
	if !ok || symbol != graph.String("TKN") {
		t.Errorf("expected context symbol TKN, got %v", symbol)
	}
	if inst.Version() != asc.V0_0_7 {
		t.Errorf("expected apiVersion 0.0.7, got %s", inst.Version())
	}

	if _, err := manager.InstantiateDataSource(ctx, sg, "Pair", wasm.Environment{}); err == nil {
		t.Error("templates should not instantiate as data sources")
	} else if _, ok := err.(*DataSourceNotFoundError); !ok {
		t.Errorf("expected DataSourceNotFoundError, got %T", err)
	}
}

func TestManager_InstantiateTemplate(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	sg, err := manager.Load(ctx, newTokenSubgraph(t))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	pairCtx := graph.NewEntity(graph.Field{Name: "fee", Value: graph.Int(30)})
	created := wasm.CreatedDataSource{
		Template: "Pair",
		Params:   []string{"0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc"},
		Context:  pairCtx,
	}
	inst, err := manager.InstantiateTemplate(ctx, sg, created, wasm.Environment{})
	if err != nil {
		t.Fatalf("InstantiateTemplate() failed: %v", err)
	}
	defer inst.Close(ctx)

	ds := inst.Env().DataSource
	if ds.Name != "Pair" || ds.Address.Hex() != created.Params[0] {
		t.Errorf("unexpected data source %+v", ds)
	}
	if ds.Context != pairCtx {
		t.Error("created context should be passed through")
	}
	if inst.Version() != asc.V0_0_6 {
		t.Errorf("expected apiVersion 0.0.6, got %s", inst.Version())
	}

	bad := []wasm.CreatedDataSource{
		{Template: "Missing", Params: created.Params},
		{Template: "Pair"},
		{Template: "Pair", Params: []string{"not-an-address"}},
	}
	for _, c := range bad {
		if _, err := manager.InstantiateTemplate(ctx, sg, c, wasm.Environment{}); err == nil {
			t.Errorf("InstantiateTemplate(%+v) should fail", c)
		}
	}
}

func TestManager_Shutdown(t *testing.T) {
	manager := newTestManager(t)

	if err := manager.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() failed: %v", err)
	}
}
