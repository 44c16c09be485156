package wasm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/woxQAQ/subgraph-abi/internal/ipfs"
	"github.com/woxQAQ/subgraph-abi/internal/store"
	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/codec"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
	"github.com/woxQAQ/subgraph-abi/pkg/host"
)

// InstanceManager creates and manages mapping instances.
type InstanceManager struct {
	runtime   *Runtime
	logger    *zap.Logger
	hostFuncs *HostFunctions
}

// NewInstanceManager creates a new instance manager.
func NewInstanceManager(runtime *Runtime, hostFuncs *HostFunctions, logger *zap.Logger) *InstanceManager {
	return &InstanceManager{
		runtime:   runtime,
		hostFuncs: hostFuncs,
		logger:    logger.With(zap.String("component", "wasm-instance")),
	}
}

// DataSource describes the data source a mapping instance serves. It backs
// the dataSource.* imports.
type DataSource struct {
	Name    string
	Address graph.Address
	Network string
	Context *graph.Entity
}

// EthCallFunc answers ethereum.call. ok is false when the call reverts.
type EthCallFunc func(ctx context.Context, call *graph.SmartContractCall) (tokens []graph.Token, ok bool, err error)

// Environment is what the host imports of one instance act on.
type Environment struct {
	Store      store.Store
	IPFS       ipfs.Client
	DataSource DataSource
	EthCall    EthCallFunc
	ENS        map[string]string
}

// CreatedDataSource records a dataSource.create call.
type CreatedDataSource struct {
	Template string
	Params   []string
	Context  *graph.Entity
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate.
	ModuleName string

	// Instance ID (if empty, generates UUID).
	InstanceID string

	// ABI version of the mapping (apiVersion in the manifest).
	Version asc.Version

	Env Environment
}

// Instance is an instantiated mapping module. Export calls are serialized:
// Invoke and the Encode methods may be used from several goroutines.
type Instance struct {
	module  api.Module
	runtime *Runtime
	manager *InstanceManager
	logger  *zap.Logger

	ID        string
	Name      string
	CreatedAt int64

	version asc.Version
	arena   *asc.Arena
	env     Environment
	timeout time.Duration

	// callMu is held for a whole export call or encode. ctx and aborted
	// belong to the holder; host functions and the allocator run on the same
	// goroutine as that call.
	callMu  sync.Mutex
	ctx     context.Context
	aborted *GuestAbortError

	mu      sync.Mutex
	created []CreatedDataSource
}

// Instantiate creates a new instance from a compiled module.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}
	if limit := m.runtime.config.MaxInstances; limit > 0 && m.runtime.InstanceCount() >= limit {
		return nil, &InstanceLimitError{Limit: limit}
	}

	version := config.Version
	if version.IsZero() {
		version = asc.Latest
	}
	if err := ValidateImports(compiled, version); err != nil {
		return nil, err
	}
	if err := ValidateExports(compiled); err != nil {
		return nil, err
	}
	if err := m.instantiateHostModules(ctx); err != nil {
		return nil, err
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	m.logger.Info("Instantiating Wasm module",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
		zap.Stringer("api_version", version),
	)

	// Start functions are run below, once the instance is tracked and host
	// functions can find it.
	moduleConfig := wazero.NewModuleConfig().
		WithName(instanceID).
		WithStartFunctions()

	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, moduleConfig)
	if err != nil {
		return nil, &InstantiationError{ModuleName: config.ModuleName, InstanceID: instanceID, Err: err}
	}

	inst := &Instance{
		module:    module,
		runtime:   m.runtime,
		manager:   m,
		logger:    m.logger.With(zap.String("instance_id", instanceID)),
		ID:        instanceID,
		Name:      config.ModuleName,
		CreatedAt: time.Now().Unix(),
		version:   version,
		env:       config.Env,
		timeout:   m.runtime.config.ExecutionTimeout,
	}
	m.runtime.StoreInstance(inst)

	if err := inst.start(ctx, m.runtime.config.ArenaChunkSize); err != nil {
		inst.Close(ctx)
		return nil, &InstantiationError{ModuleName: config.ModuleName, InstanceID: instanceID, Err: err}
	}

	m.logger.Info("Module instantiated successfully",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", len(compiled.Module.ExportedFunctions())),
	)
	return inst, nil
}

// start runs the Go runtime initializer, learns the runtime type ids, sets up
// the host arena and then runs _start, which may already call imports.
func (i *Instance) start(ctx context.Context, chunk uint32) error {
	i.callMu.Lock()
	defer i.callMu.Unlock()
	i.ctx = ctx
	defer func() { i.ctx = nil }()

	if err := i.callLifecycle(ctx, ExportInitialize); err != nil {
		return err
	}

	idOf := i.module.ExportedFunction(ExportIDOfType)
	registry, err := asc.NewTypeRegistry(func(idx asc.TypeIndex) (uint32, error) {
		res, err := idOf.Call(ctx, uint64(idx))
		if err != nil {
			return 0, err
		}
		return uint32(res[0]), nil
	})
	if err != nil {
		return err
	}

	opts := []asc.ArenaOption{
		asc.WithVersion(i.version),
		asc.WithRegistry(registry),
		asc.WithSource(&allocator{inst: i, fn: i.module.ExportedFunction(ExportAllocate)}),
	}
	if chunk > 0 {
		opts = append(opts, asc.WithChunkSize(chunk))
	}
	if i.arena, err = asc.NewArena(NewMemory(i.module), opts...); err != nil {
		return err
	}

	return i.callLifecycle(ctx, ExportStart)
}

func (i *Instance) callLifecycle(ctx context.Context, name string) error {
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return nil
	}
	if _, err := fn.Call(ctx); err != nil {
		return i.callError(ctx, name, err)
	}
	return nil
}

// Version returns the ABI version of the instance.
func (i *Instance) Version() asc.Version { return i.version }

// Arena returns the host side arena over guest memory.
func (i *Instance) Arena() *asc.Arena { return i.arena }

// Env returns the environment the host imports act on.
func (i *Instance) Env() Environment { return i.env }

// CreatedDataSources returns the data sources created by the mapping so far.
func (i *Instance) CreatedDataSources() []CreatedDataSource {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]CreatedDataSource(nil), i.created...)
}

func (i *Instance) recordCreated(ds CreatedDataSource) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.created = append(i.created, ds)
}

// exclusive runs fn holding the call lock with ctx as the current context.
func (i *Instance) exclusive(ctx context.Context, fn func() error) error {
	i.callMu.Lock()
	defer i.callMu.Unlock()
	i.ctx = ctx
	defer func() { i.ctx = nil }()
	return fn()
}

func (i *Instance) encode(ctx context.Context, fn func(a *asc.Arena) (asc.Ptr, error)) (uint32, error) {
	var p asc.Ptr
	err := i.exclusive(ctx, func() (err error) {
		p, err = fn(i.arena)
		return err
	})
	return uint32(p), err
}

// EncodeEvent writes ev into guest memory and returns its pointer.
func (i *Instance) EncodeEvent(ctx context.Context, ev *graph.Event) (uint32, error) {
	return i.encode(ctx, func(a *asc.Arena) (asc.Ptr, error) {
		h, err := codec.EncodeEvent(a, ev)
		return h.Ptr(), err
	})
}

// EncodeCall writes c into guest memory and returns its pointer.
func (i *Instance) EncodeCall(ctx context.Context, c *graph.Call) (uint32, error) {
	return i.encode(ctx, func(a *asc.Arena) (asc.Ptr, error) {
		h, err := codec.EncodeCall(a, c)
		return h.Ptr(), err
	})
}

// EncodeBlock writes b into guest memory and returns its pointer.
func (i *Instance) EncodeBlock(ctx context.Context, b *graph.Block) (uint32, error) {
	return i.encode(ctx, func(a *asc.Arena) (asc.Ptr, error) {
		h, err := codec.EncodeBlock(a, b)
		return h.Ptr(), err
	})
}

// Invoke calls the handler export with the object at ptr.
func (i *Instance) Invoke(ctx context.Context, handler string, ptr uint32) error {
	return i.exclusive(ctx, func() error {
		return i.call(ctx, handler, uint64(ptr))
	})
}

// call runs one export. The caller holds callMu.
func (i *Instance) call(ctx context.Context, name string, args ...uint64) error {
	fn := i.module.ExportedFunction(name)
	if fn == nil {
		return &FunctionNotFoundError{ModuleName: i.Name, FunctionName: name}
	}
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	outer := i.ctx
	i.ctx, i.aborted = ctx, nil
	defer func() { i.ctx = outer }()

	start := time.Now()
	if _, err := fn.Call(ctx, args...); err != nil {
		return i.callError(ctx, name, err)
	}
	i.logger.Debug("Handler finished",
		zap.String("handler", name),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// spawn instantiates a fresh instance of the same module with the same
// environment. ipfs.map runs its callbacks in one.
func (i *Instance) spawn(ctx context.Context) (*Instance, error) {
	if i.manager == nil {
		return nil, errors.New("instance was not created by an instance manager")
	}
	return i.manager.Instantiate(ctx, &InstanceConfig{
		ModuleName: i.Name,
		Version:    i.version,
		Env:        i.env,
	})
}

// callError turns a failed export call into the most specific error.
func (i *Instance) callError(ctx context.Context, name string, err error) error {
	if i.aborted != nil {
		return i.aborted
	}
	var abort *GuestAbortError
	if errors.As(err, &abort) {
		return abort
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Handler: name, Duration: i.timeout}
	}
	var herr *HostFunctionError
	if errors.As(err, &herr) {
		return herr
	}
	return fmt.Errorf("call %s: %w", name, err)
}

// Close closes the instance and releases resources.
func (i *Instance) Close(ctx context.Context) error {
	if i.runtime != nil {
		i.runtime.DeleteInstance(i.ID)
	}
	if i.module == nil {
		return nil
	}
	return i.module.Close(ctx)
}

// instantiateHostModules builds the env and index host modules from the
// import table. It runs once per runtime.
func (m *InstanceManager) instantiateHostModules(ctx context.Context) error {
	m.runtime.hostOnce.Do(func() {
		builders := map[string]wazero.HostModuleBuilder{
			host.ModuleEnv:   m.runtime.runtime.NewHostModuleBuilder(host.ModuleEnv),
			host.ModuleIndex: m.runtime.runtime.NewHostModuleBuilder(host.ModuleIndex),
		}
		for _, desc := range host.Table(asc.Latest) {
			builders[desc.Module].NewFunctionBuilder().
				WithGoModuleFunction(m.hostFunction(desc), valueTypes(desc.Params), resultTypes(desc.Result)).
				WithName(desc.Name).
				Export(desc.Name)
		}
		for _, name := range []string{host.ModuleEnv, host.ModuleIndex} {
			if _, err := builders[name].Instantiate(ctx); err != nil {
				m.runtime.hostErr = fmt.Errorf("failed to instantiate host module %s: %w", name, err)
				return
			}
		}
	})
	return m.runtime.hostErr
}

// hostFunction adapts one import to wazero. A failing import panics, which
// wazero turns into a trap of the calling export.
func (m *InstanceManager) hostFunction(desc host.Descriptor) api.GoModuleFunction {
	return api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
		inst, ok := m.runtime.GetInstance(mod.Name())
		if !ok {
			panic(&HostFunctionError{FunctionName: desc.QualifiedName(), Err: errors.New("caller is not a mapping instance")})
		}
		if err := desc.Check(inst.version); err != nil {
			panic(&HostFunctionError{FunctionName: desc.QualifiedName(), Err: err})
		}

		args := append([]uint64(nil), stack[:len(desc.Params)]...)
		f := &frame{ctx: ctx, arena: inst.arena, inst: inst}
		ret, err := m.hostFuncs.Call(f, desc.Import, args)
		if err != nil {
			var abort *GuestAbortError
			if errors.As(err, &abort) {
				inst.aborted = abort
				panic(abort)
			}
			panic(&HostFunctionError{FunctionName: desc.QualifiedName(), Err: err})
		}
		if desc.Result != host.KindNone {
			stack[0] = ret
		}
	})
}
