package subgraph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/woxQAQ/subgraph-abi/internal/config"
	"github.com/woxQAQ/subgraph-abi/internal/wasm"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

// Manager manages subgraph lifecycle.
type Manager struct {
	cfg         *config.RunnerConfig
	runtime     *wasm.Runtime
	loader      *Loader
	registry    *Registry
	instanceMgr *wasm.InstanceManager
	logger      *zap.Logger

	mu     sync.RWMutex
	loaded bool
}

// NewManager creates a new subgraph manager.
func NewManager(
	cfg *config.RunnerConfig,
	runtime *wasm.Runtime,
	hostFuncs *wasm.HostFunctions,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		cfg:         cfg,
		runtime:     runtime,
		loader:      NewLoader(runtime, logger),
		registry:    NewRegistry(logger),
		instanceMgr: wasm.NewInstanceManager(runtime, hostFuncs, logger),
		logger:      logger.With(zap.String("component", "subgraph-manager")),
	}
}

// LoadAll discovers and loads all subgraphs from configured paths.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("subgraphs already loaded")
	}

	m.logger.Info("Loading subgraphs",
		zap.Strings("paths", m.cfg.SubgraphPaths),
	)

	// Discover subgraphs
	subgraphs, err := m.loader.DiscoverSubgraphs(ctx, m.cfg.SubgraphPaths)
	if err != nil {
		var notFound *NoSubgraphsFoundError
		if errors.As(err, &notFound) {
			m.logger.Warn("No subgraphs found in configured paths",
				zap.Strings("paths", m.cfg.SubgraphPaths),
			)
			m.loaded = true
			return nil
		}
		return err
	}

	// Register all subgraphs
	for _, sg := range subgraphs {
		if err := m.registry.Register(sg); err != nil {
			m.logger.Error("Failed to register subgraph",
				zap.String("name", sg.Name()),
				zap.Error(err),
			)
			continue
		}
	}

	m.loaded = true

	m.logger.Info("Subgraphs loaded successfully",
		zap.Int("count", len(subgraphs)),
	)

	return nil
}

// Load loads the subgraph in dir and registers it.
func (m *Manager) Load(ctx context.Context, dir string) (*Subgraph, error) {
	sg, err := m.loader.LoadSubgraph(ctx, dir)
	if err != nil {
		return nil, err
	}
	if err := m.registry.Register(sg); err != nil {
		return nil, err
	}
	return sg, nil
}

// GetSubgraph retrieves a subgraph by name.
func (m *Manager) GetSubgraph(name string) (*Subgraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sg, ok := m.registry.Get(name)
	if !ok {
		return nil, &SubgraphNotFoundError{SubgraphName: name}
	}

	return sg, nil
}

// FindSubgraphsForNetwork returns the subgraphs indexing network.
func (m *Manager) FindSubgraphsForNetwork(network string) ([]*Subgraph, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subgraphs := m.registry.LookupByNetwork(network)
	if len(subgraphs) == 0 {
		return nil, fmt.Errorf("no subgraph found for network '%s'", network)
	}
	return subgraphs, nil
}

// InstantiateDataSource creates an instance of a data source mapping. The
// data source fields of env are filled from the manifest.
func (m *Manager) InstantiateDataSource(ctx context.Context, sg *Subgraph, name string, env wasm.Environment) (*wasm.Instance, error) {
	ds, ok := sg.DataSource(name)
	if !ok {
		return nil, &DataSourceNotFoundError{SubgraphName: sg.Name(), Name: name}
	}
	addr, _ := ds.Address()
	dsCtx, err := ds.ContextEntity()
	if err != nil {
		return nil, err
	}
	env.DataSource = wasm.DataSource{Name: ds.Name, Address: addr, Network: ds.Network, Context: dsCtx}
	return m.instantiate(ctx, sg, ds, env)
}

// InstantiateTemplate creates an instance for a data source created from a
// template by dataSource.create. The first parameter is the contract
// address.
func (m *Manager) InstantiateTemplate(ctx context.Context, sg *Subgraph, created wasm.CreatedDataSource, env wasm.Environment) (*wasm.Instance, error) {
	tmpl, ok := sg.Template(created.Template)
	if !ok {
		return nil, &DataSourceNotFoundError{SubgraphName: sg.Name(), Name: created.Template}
	}
	if len(created.Params) == 0 {
		return nil, fmt.Errorf("template %s: no address parameter", created.Template)
	}
	addr, err := graph.ParseAddress(created.Params[0])
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", created.Template, err)
	}
	env.DataSource = wasm.DataSource{Name: tmpl.Name, Address: addr, Network: tmpl.Network, Context: created.Context}
	return m.instantiate(ctx, sg, tmpl, env)
}

func (m *Manager) instantiate(ctx context.Context, sg *Subgraph, ds *DataSource, env wasm.Environment) (*wasm.Instance, error) {
	compiled, ok := sg.Modules[ds.Name]
	if !ok {
		return nil, &DataSourceNotFoundError{SubgraphName: sg.Name(), Name: ds.Name}
	}

	config := &wasm.InstanceConfig{
		ModuleName: compiled.Name,
		// InstanceID will be auto-generated
		Version: ds.Version(),
		Env:     env,
	}

	return m.instanceMgr.Instantiate(ctx, config)
}

// Shutdown gracefully shuts down all subgraph instances.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down subgraph manager")

	// Runtime close handles instance cleanup
	if err := m.runtime.Close(ctx); err != nil {
		m.logger.Error("Failed to shutdown runtime", zap.Error(err))
		return err
	}

	m.logger.Info("Subgraph manager shutdown complete")
	return nil
}

// Registry returns the subgraph registry (for testing/inspection).
func (m *Manager) Registry() *Registry {
	return m.registry
}

// IsLoaded returns whether subgraphs have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}
