package subgraph

import (
	"fmt"
)

// ManifestNotFoundError occurs when subgraph.yaml is not found in a directory.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found at '%s': %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when subgraph.yaml cannot be parsed as valid YAML.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest at '%s': %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError occurs when subgraph.yaml fails validation.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest validation failed at '%s': %s", e.Path, e.Message)
}

// WasmNotFoundError occurs when a mapping file referenced in the manifest
// doesn't exist.
type WasmNotFoundError struct {
	ManifestPath string
	WasmFile     string
}

func (e *WasmNotFoundError) Error() string {
	return fmt.Sprintf("Wasm file '%s' not found (referenced in manifest '%s')",
		e.WasmFile, e.ManifestPath)
}

// SubgraphLoadError occurs when subgraph loading fails.
type SubgraphLoadError struct {
	SubgraphName string
	Err          error
}

func (e *SubgraphLoadError) Error() string {
	return fmt.Sprintf("failed to load subgraph '%s': %v", e.SubgraphName, e.Err)
}

func (e *SubgraphLoadError) Unwrap() error {
	return e.Err
}

// SubgraphNotFoundError occurs when a subgraph is not found in the registry.
type SubgraphNotFoundError struct {
	SubgraphName string
}

func (e *SubgraphNotFoundError) Error() string {
	return fmt.Sprintf("subgraph '%s' not found", e.SubgraphName)
}

// SubgraphAlreadyRegisteredError occurs when attempting to register a
// duplicate subgraph.
type SubgraphAlreadyRegisteredError struct {
	SubgraphName string
}

func (e *SubgraphAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("subgraph '%s' is already registered", e.SubgraphName)
}

// DataSourceNotFoundError occurs when a subgraph has no data source or
// template of the requested name.
type DataSourceNotFoundError struct {
	SubgraphName string
	Name         string
}

func (e *DataSourceNotFoundError) Error() string {
	return fmt.Sprintf("data source '%s' not found in subgraph '%s'", e.Name, e.SubgraphName)
}

// NoSubgraphsFoundError occurs when no subgraphs are found in the configured
// paths.
type NoSubgraphsFoundError struct {
	Paths []string
}

func (e *NoSubgraphsFoundError) Error() string {
	return fmt.Sprintf("no subgraphs found in paths: %v", e.Paths)
}
