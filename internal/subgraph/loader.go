package subgraph

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/subgraph-abi/internal/wasm"
)

// Loader handles loading subgraphs from disk.
type Loader struct {
	runtime      *wasm.Runtime
	moduleLoader *wasm.ModuleLoader
	logger       *zap.Logger
}

// NewLoader creates a new subgraph loader.
func NewLoader(runtime *wasm.Runtime, logger *zap.Logger) *Loader {
	return &Loader{
		runtime:      runtime,
		moduleLoader: wasm.NewModuleLoader(runtime, logger),
		logger:       logger.With(zap.String("component", "subgraph-loader")),
	}
}

// LoadSubgraph loads a single subgraph from a directory. Every mapping is
// compiled and checked against the import table of its apiVersion and the
// handlers the manifest names.
func (l *Loader) LoadSubgraph(ctx context.Context, dir string) (*Subgraph, error) {
	l.logger.Debug("Loading subgraph", zap.String("dir", dir))

	// Parse manifest
	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(dir)
	if abs, err := filepath.Abs(dir); err == nil {
		name = filepath.Base(abs)
	}

	l.logger.Info("Loading subgraph",
		zap.String("name", name),
		zap.String("spec_version", manifest.SpecVersion),
		zap.Int("data_sources", len(manifest.DataSources)),
		zap.Int("templates", len(manifest.Templates)),
	)

	sg := &Subgraph{
		Manifest: manifest,
		Modules:  make(map[string]*wasm.CompiledModule),
		LoadedAt: time.Now(),
		name:     name,
	}

	all := append(append([]DataSource(nil), manifest.DataSources...), manifest.Templates...)
	for i := range all {
		ds := &all[i]
		compiled, err := l.compile(ctx, manifest, ds)
		if err != nil {
			return nil, &SubgraphLoadError{
				SubgraphName: name,
				Err:          fmt.Errorf("data source %s: %w", ds.Name, err),
			}
		}
		sg.Modules[ds.Name] = compiled
	}

	l.logger.Info("Subgraph loaded successfully",
		zap.String("name", name),
		zap.Int("modules", len(sg.Modules)),
	)

	return sg, nil
}

func (l *Loader) compile(ctx context.Context, manifest *Manifest, ds *DataSource) (*wasm.CompiledModule, error) {
	// Compile Wasm module (uses internal caching)
	compiled, err := l.moduleLoader.LoadModuleFromFile(ctx, manifest.WasmPath(ds))
	if err != nil {
		return nil, err
	}
	if err := wasm.ValidateImports(compiled, ds.Version()); err != nil {
		return nil, err
	}
	if err := wasm.ValidateExports(compiled, ds.Handlers()...); err != nil {
		return nil, err
	}
	return compiled, nil
}

// DiscoverSubgraphs scans directories for subgraphs. A path holding a
// subgraph.yaml is loaded itself, otherwise each of its subdirectories is
// tried.
func (l *Loader) DiscoverSubgraphs(ctx context.Context, paths []string) ([]*Subgraph, error) {
	var subgraphs []*Subgraph
	var errs []error

	load := func(dir string) {
		sg, err := l.LoadSubgraph(ctx, dir)
		if err != nil {
			l.logger.Error("Failed to load subgraph",
				zap.String("dir", dir),
				zap.Error(err),
			)
			errs = append(errs, err)
			return
		}
		subgraphs = append(subgraphs, sg)
	}

	for _, basePath := range paths {
		l.logger.Debug("Scanning subgraph directory", zap.String("path", basePath))

		if _, err := os.Stat(filepath.Join(basePath, ManifestFile)); err == nil {
			load(basePath)
			continue
		}

		// Read subdirectories
		entries, err := os.ReadDir(basePath)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Warn("Subgraph path does not exist", zap.String("path", basePath))
				continue
			}
			return nil, fmt.Errorf("failed to read directory '%s': %w", basePath, err)
		}

		// Try to load each subdirectory as a subgraph
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(basePath, entry.Name())
			if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err != nil {
				continue
			}
			load(dir)
		}
	}

	// If we found some subgraphs but had errors, log warning but continue
	if len(subgraphs) > 0 && len(errs) > 0 {
		l.logger.Warn("Some subgraphs failed to load",
			zap.Int("loaded", len(subgraphs)),
			zap.Int("failed", len(errs)),
		)
	}

	if len(subgraphs) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, &NoSubgraphsFoundError{Paths: paths}
	}

	return subgraphs, nil
}
