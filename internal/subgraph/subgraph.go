package subgraph

import (
	"time"

	"github.com/woxQAQ/subgraph-abi/internal/wasm"
)

// Subgraph represents a loaded subgraph with its manifest and compiled
// mapping modules.
type Subgraph struct {
	// Manifest is the parsed subgraph.yaml
	Manifest *Manifest

	// Modules holds the compiled mapping of every data source and template,
	// keyed by data source name
	Modules map[string]*wasm.CompiledModule

	// LoadedAt is the timestamp when the subgraph was loaded
	LoadedAt time.Time

	name string
}

// Name returns the subgraph name, the base name of its directory.
func (s *Subgraph) Name() string {
	return s.name
}

// DataSource finds a data source by name.
func (s *Subgraph) DataSource(name string) (*DataSource, bool) {
	return find(s.Manifest.DataSources, name)
}

// Template finds a data source template by name.
func (s *Subgraph) Template(name string) (*DataSource, bool) {
	return find(s.Manifest.Templates, name)
}

// Networks returns the networks the data sources index, in manifest order.
func (s *Subgraph) Networks() []string {
	var out []string
	seen := make(map[string]bool)
	for _, ds := range s.Manifest.DataSources {
		if !seen[ds.Network] {
			seen[ds.Network] = true
			out = append(out, ds.Network)
		}
	}
	return out
}

func find(dss []DataSource, name string) (*DataSource, bool) {
	for i := range dss {
		if dss[i].Name == name {
			return &dss[i], true
		}
	}
	return nil, false
}
