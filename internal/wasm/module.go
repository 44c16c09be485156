package wasm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/host"
)

// Exports every mapping module provides besides its handlers.
const (
	ExportAllocate   = "allocate"
	ExportIDOfType   = "id_of_type"
	ExportStart      = "_start"
	ExportInitialize = "_initialize"
)

// ModuleLoader handles loading and compiling Wasm modules.
type ModuleLoader struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewModuleLoader creates a new module loader.
func NewModuleLoader(runtime *Runtime, logger *zap.Logger) *ModuleLoader {
	return &ModuleLoader{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-loader")),
	}
}

// ModuleSource represents a source for Wasm bytecode.
type ModuleSource interface {
	// Bytes returns the Wasm bytecode.
	Bytes() ([]byte, error)

	// Name returns a name/identifier for this module.
	Name() string

	// Size returns the size in bytes.
	Size() int64
}

// FileModuleSource loads Wasm from a file.
type FileModuleSource struct {
	Path string
}

// Bytes reads the Wasm file.
func (f *FileModuleSource) Bytes() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// Name returns the file path as the module name.
func (f *FileModuleSource) Name() string {
	return f.Path
}

// Size returns the file size.
func (f *FileModuleSource) Size() int64 {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// MemoryModuleSource loads Wasm from memory.
type MemoryModuleSource struct {
	ModuleName string
	Data       []byte
}

// Bytes returns the Wasm bytecode.
func (m *MemoryModuleSource) Bytes() ([]byte, error) {
	return m.Data, nil
}

// Name returns the module name.
func (m *MemoryModuleSource) Name() string {
	return m.ModuleName
}

// Size returns the data size.
func (m *MemoryModuleSource) Size() int64 {
	return int64(len(m.Data))
}

// LoadModule loads a Wasm module from a source.
// Compiles it if not already cached.
func (l *ModuleLoader) LoadModule(ctx context.Context, source ModuleSource) (*CompiledModule, error) {
	// Check cache first
	if cached, ok := l.runtime.GetCompiledModule(source.Name()); ok {
		l.logger.Debug("Module cache hit",
			zap.String("module", source.Name()),
		)
		return cached, nil
	}

	// Load Wasm bytes
	wasmBytes, err := source.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read module %s: %w", source.Name(), err)
	}

	// Compile the module
	l.logger.Info("Compiling Wasm module",
		zap.String("module", source.Name()),
		zap.Int64("size_bytes", source.Size()),
	)

	startTime := time.Now()

	compiled, err := l.runtime.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, &CompilationError{
			ModuleName: source.Name(),
			Err:        err,
		}
	}

	duration := time.Since(startTime)

	// Wrap with metadata
	compiledModule := &CompiledModule{
		Module:     compiled,
		Name:       source.Name(),
		Source:     source.Name(),
		SizeBytes:  source.Size(),
		CompiledAt: time.Now().Unix(),
	}

	// Cache the compiled module
	l.runtime.StoreCompiledModule(compiledModule)

	l.logger.Info("Module compiled successfully",
		zap.String("module", source.Name()),
		zap.Duration("duration", duration),
	)

	return compiledModule, nil
}

// LoadModuleFromFile is a convenience function for loading from a file path.
func (l *ModuleLoader) LoadModuleFromFile(ctx context.Context, path string) (*CompiledModule, error) {
	source := &FileModuleSource{Path: path}
	return l.LoadModule(ctx, source)
}

// LoadModuleFromMemory loads from a byte slice.
func (l *ModuleLoader) LoadModuleFromMemory(ctx context.Context, name string, data []byte) (*CompiledModule, error) {
	source := &MemoryModuleSource{ModuleName: name, Data: data}
	return l.LoadModule(ctx, source)
}

// ValidateImports checks every function the module imports from env or index
// against the import table at version v. Imports from other modules, such as
// WASI, are left to the runtime.
func ValidateImports(m *CompiledModule, v asc.Version) error {
	var problems []string
	for _, def := range m.Module.ImportedFunctions() {
		module, name, _ := def.Import()
		if module != host.ModuleEnv && module != host.ModuleIndex {
			continue
		}
		imp, ok := host.Lookup(module, name)
		if !ok {
			problems = append(problems, fmt.Sprintf("unknown import %s.%s", module, name))
			continue
		}
		desc := imp.Descriptor()
		if err := desc.Check(v); err != nil {
			problems = append(problems, fmt.Sprintf("%s is not available", desc.QualifiedName()))
			continue
		}
		if !signatureMatches(desc, def) {
			problems = append(problems, fmt.Sprintf("%s has signature %s, want %s",
				desc.QualifiedName(), formatSignature(def), desc.Signature()))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return &asc.VersionMismatchError{Version: v, Detail: strings.Join(problems, "; ")}
}

// ValidateExports checks that the lifecycle exports and every named handler
// are present.
func ValidateExports(m *CompiledModule, handlers ...string) error {
	exports := m.Module.ExportedFunctions()
	for _, name := range append([]string{ExportAllocate, ExportIDOfType}, handlers...) {
		if _, ok := exports[name]; !ok {
			return &FunctionNotFoundError{ModuleName: m.Name, FunctionName: name}
		}
	}
	if len(m.Module.ExportedMemories()) == 0 {
		return fmt.Errorf("module '%s' does not export its memory", m.Name)
	}
	return nil
}

func valueType(k host.Kind) api.ValueType {
	switch k {
	case host.KindI64:
		return api.ValueTypeI64
	case host.KindF64:
		return api.ValueTypeF64
	}
	return api.ValueTypeI32
}

func valueTypes(ks []host.Kind) []api.ValueType {
	out := make([]api.ValueType, len(ks))
	for i, k := range ks {
		out[i] = valueType(k)
	}
	return out
}

func resultTypes(k host.Kind) []api.ValueType {
	if k == host.KindNone {
		return nil
	}
	return []api.ValueType{valueType(k)}
}

func signatureMatches(desc host.Descriptor, def api.FunctionDefinition) bool {
	return equalTypes(def.ParamTypes(), valueTypes(desc.Params)) &&
		equalTypes(def.ResultTypes(), resultTypes(desc.Result))
}

func equalTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatSignature(def api.FunctionDefinition) string {
	names := func(ts []api.ValueType) string {
		out := make([]string, len(ts))
		for i, t := range ts {
			out[i] = api.ValueTypeName(t)
		}
		return strings.Join(out, ", ")
	}
	sig := "(" + names(def.ParamTypes()) + ")"
	if rs := def.ResultTypes(); len(rs) > 0 {
		sig += " -> " + names(rs)
	}
	return sig
}
