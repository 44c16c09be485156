package subgraph

import (
	"slices"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Binding names one data source of a registered subgraph.
type Binding struct {
	Subgraph   *Subgraph
	DataSource *DataSource
}

// Registry holds the loaded subgraphs and indexes their data sources by the
// network each one reads from. Templates are not indexed: they bind to a
// network only once a handler instantiates them.
type Registry struct {
	sync.RWMutex
	subgraphs map[string]*Subgraph
	sources   map[string][]Binding
	logger    *zap.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		subgraphs: make(map[string]*Subgraph),
		sources:   make(map[string][]Binding),
		logger:    logger.With(zap.String("component", "subgraph-registry")),
	}
}

// Register adds sg and indexes every data source of its manifest. A second
// subgraph with the same name is rejected and leaves the index untouched.
func (r *Registry) Register(sg *Subgraph) error {
	r.Lock()
	defer r.Unlock()

	name := sg.Name()
	if _, exists := r.subgraphs[name]; exists {
		return &SubgraphAlreadyRegisteredError{SubgraphName: name}
	}
	r.subgraphs[name] = sg

	dss := sg.Manifest.DataSources
	for i := range dss {
		r.sources[dss[i].Network] = append(r.sources[dss[i].Network], Binding{Subgraph: sg, DataSource: &dss[i]})
	}

	r.logger.Info("Subgraph registered",
		zap.String("name", name),
		zap.Int("dataSources", len(dss)),
		zap.Strings("networks", sg.Networks()),
	)
	return nil
}

// Get retrieves a subgraph by name.
func (r *Registry) Get(name string) (*Subgraph, bool) {
	r.RLock()
	defer r.RUnlock()

	sg, ok := r.subgraphs[name]
	return sg, ok
}

// DataSources returns the data sources reading from network, in
// registration order. The result is a copy.
func (r *Registry) DataSources(network string) []Binding {
	r.RLock()
	defer r.RUnlock()

	return slices.Clone(r.sources[network])
}

// LookupByNetwork returns each subgraph with at least one data source on
// network, once, in registration order. It never returns nil.
func (r *Registry) LookupByNetwork(network string) []*Subgraph {
	result := []*Subgraph{}
	for _, b := range r.DataSources(network) {
		if !slices.Contains(result, b.Subgraph) {
			result = append(result, b.Subgraph)
		}
	}
	return result
}

// List returns all registered subgraphs ordered by name.
func (r *Registry) List() []*Subgraph {
	r.RLock()
	defer r.RUnlock()

	result := make([]*Subgraph, 0, len(r.subgraphs))
	for _, sg := range r.subgraphs {
		result = append(result, sg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Unregister drops a subgraph and its data sources. Unknown names are
// ignored.
func (r *Registry) Unregister(name string) {
	r.Lock()
	defer r.Unlock()

	sg, ok := r.subgraphs[name]
	if !ok {
		return
	}
	for _, network := range sg.Networks() {
		r.sources[network] = slices.DeleteFunc(r.sources[network], func(b Binding) bool {
			return b.Subgraph == sg
		})
		if len(r.sources[network]) == 0 {
			delete(r.sources, network)
		}
	}
	delete(r.subgraphs, name)

	r.logger.Info("Subgraph unregistered", zap.String("name", name))
}

// Count returns the number of registered subgraphs.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.subgraphs)
}
