package subgraph

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

// ManifestFile is the manifest file name inside a subgraph directory.
const ManifestFile = "subgraph.yaml"

// Manifest represents the subgraph.yaml structure.
type Manifest struct {
	SpecVersion string       `yaml:"specVersion"`
	Description string       `yaml:"description"`
	Repository  string       `yaml:"repository"`
	Schema      Schema       `yaml:"schema"`
	DataSources []DataSource `yaml:"dataSources"`
	Templates   []DataSource `yaml:"templates"`

	// Internal fields
	dir string // Directory containing manifest
}

// Schema points at the GraphQL schema of the subgraph.
type Schema struct {
	File string `yaml:"file"`
}

// DataSource is one entry of dataSources or templates. Templates carry no
// source address.
type DataSource struct {
	Kind    string                  `yaml:"kind"`
	Name    string                  `yaml:"name"`
	Network string                  `yaml:"network"`
	Source  Source                  `yaml:"source"`
	Context map[string]ContextValue `yaml:"context"`
	Mapping Mapping                 `yaml:"mapping"`
}

// Source is the contract a data source follows.
type Source struct {
	Address    string `yaml:"address"`
	ABI        string `yaml:"abi"`
	StartBlock uint64 `yaml:"startBlock"`
}

// ContextValue is a typed entry of a data source context.
type ContextValue struct {
	Type string `yaml:"type"`
	Data string `yaml:"data"`
}

// Mapping describes the Wasm module serving a data source.
type Mapping struct {
	Kind          string         `yaml:"kind"`
	APIVersion    string         `yaml:"apiVersion"`
	Language      string         `yaml:"language"`
	File          string         `yaml:"file"`
	Entities      []string       `yaml:"entities"`
	ABIs          []ABI          `yaml:"abis"`
	EventHandlers []EventHandler `yaml:"eventHandlers"`
	CallHandlers  []CallHandler  `yaml:"callHandlers"`
	BlockHandlers []BlockHandler `yaml:"blockHandlers"`
}

// ABI names a contract ABI file.
type ABI struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

// EventHandler routes an event signature to a handler export.
type EventHandler struct {
	Event   string `yaml:"event"`
	Handler string `yaml:"handler"`
}

// Signature returns the event signature without indexed markers, the form
// used to match logs.
func (h EventHandler) Signature() string {
	return strings.ReplaceAll(strings.ReplaceAll(h.Event, "indexed ", ""), " ", "")
}

// CallHandler routes a contract function to a handler export.
type CallHandler struct {
	Function string `yaml:"function"`
	Handler  string `yaml:"handler"`
}

// BlockHandler runs a handler per block, or only for blocks that call the
// data source contract when Filter.Kind is "call".
type BlockHandler struct {
	Handler string      `yaml:"handler"`
	Filter  BlockFilter `yaml:"filter"`
}

// BlockFilter restricts a block handler.
type BlockFilter struct {
	Kind string `yaml:"kind"`
}

// Supported manifest values.
const (
	LanguageAssemblyScript = "wasm/assemblyscript"
	BlockFilterCall        = "call"
)

var validKinds = map[string]bool{
	"ethereum":          true,
	"ethereum/contract": true,
}

// ParseManifest reads and parses subgraph.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	// Validate manifest
	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

func (m *Manifest) invalid(field, format string, args ...any) error {
	return &ManifestValidationError{
		Path:    m.Path(),
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	if m.SpecVersion == "" {
		return m.invalid("specVersion", "specVersion is required")
	}

	if m.Schema.File == "" {
		return m.invalid("schema.file", "schema.file is required")
	}
	if _, err := os.Stat(m.resolve(m.Schema.File)); err != nil {
		return m.invalid("schema.file", "schema file %s not found", m.Schema.File)
	}

	if len(m.DataSources) == 0 {
		return m.invalid("dataSources", "at least one data source is required")
	}

	names := make(map[string]bool)
	for i := range m.DataSources {
		if err := m.validateDataSource(fmt.Sprintf("dataSources[%d]", i), &m.DataSources[i], false, names); err != nil {
			return err
		}
	}
	for i := range m.Templates {
		if err := m.validateDataSource(fmt.Sprintf("templates[%d]", i), &m.Templates[i], true, names); err != nil {
			return err
		}
	}

	return nil
}

func (m *Manifest) validateDataSource(field string, ds *DataSource, template bool, names map[string]bool) error {
	if ds.Name == "" {
		return m.invalid(field+".name", "name is required")
	}
	if names[ds.Name] {
		return m.invalid(field+".name", "duplicate data source name: %s", ds.Name)
	}
	names[ds.Name] = true

	if !validKinds[ds.Kind] {
		return m.invalid(field+".kind", "unsupported kind: %s (must be one of: ethereum, ethereum/contract)", ds.Kind)
	}
	if ds.Network == "" {
		return m.invalid(field+".network", "network is required")
	}

	if ds.Source.Address != "" {
		if template {
			return m.invalid(field+".source.address", "templates take their address at creation")
		}
		if _, err := graph.ParseAddress(ds.Source.Address); err != nil {
			return m.invalid(field+".source.address", "invalid address: %v", err)
		}
	}
	if ds.Source.ABI == "" {
		return m.invalid(field+".source.abi", "source.abi is required")
	}
	if _, err := ds.ContextEntity(); err != nil {
		return m.invalid(field+".context", "%v", err)
	}

	mp := &ds.Mapping
	if mp.APIVersion == "" {
		return m.invalid(field+".mapping.apiVersion", "apiVersion is required")
	}
	v, err := asc.ParseVersion(mp.APIVersion)
	if err != nil {
		return m.invalid(field+".mapping.apiVersion", "%v", err)
	}
	if !v.Supported() {
		return m.invalid(field+".mapping.apiVersion", "unsupported apiVersion: %s (must be one of: %s)", v, supportedVersions())
	}
	if mp.Language != LanguageAssemblyScript {
		return m.invalid(field+".mapping.language", "unsupported language: %s (must be %s)", mp.Language, LanguageAssemblyScript)
	}

	if mp.File == "" {
		return m.invalid(field+".mapping.file", "mapping.file is required")
	}
	if _, err := os.Stat(m.resolve(mp.File)); os.IsNotExist(err) {
		return &WasmNotFoundError{
			ManifestPath: m.Path(),
			WasmFile:     mp.File,
		}
	}

	abiFound := false
	for j, abi := range mp.ABIs {
		if abi.Name == "" || abi.File == "" {
			return m.invalid(fmt.Sprintf("%s.mapping.abis[%d]", field, j), "abi name and file are required")
		}
		if _, err := os.Stat(m.resolve(abi.File)); err != nil {
			return m.invalid(fmt.Sprintf("%s.mapping.abis[%d]", field, j), "abi file %s not found", abi.File)
		}
		abiFound = abiFound || abi.Name == ds.Source.ABI
	}
	if !abiFound {
		return m.invalid(field+".mapping.abis", "source abi %s is not listed in mapping.abis", ds.Source.ABI)
	}

	if len(mp.EventHandlers)+len(mp.CallHandlers)+len(mp.BlockHandlers) == 0 {
		return m.invalid(field+".mapping", "at least one event, call or block handler is required")
	}
	for j, h := range mp.EventHandlers {
		if h.Event == "" || h.Handler == "" {
			return m.invalid(fmt.Sprintf("%s.mapping.eventHandlers[%d]", field, j), "event and handler are required")
		}
	}
	for j, h := range mp.CallHandlers {
		if h.Function == "" || h.Handler == "" {
			return m.invalid(fmt.Sprintf("%s.mapping.callHandlers[%d]", field, j), "function and handler are required")
		}
	}
	for j, h := range mp.BlockHandlers {
		f := fmt.Sprintf("%s.mapping.blockHandlers[%d]", field, j)
		if h.Handler == "" {
			return m.invalid(f, "handler is required")
		}
		if h.Filter.Kind != "" && h.Filter.Kind != BlockFilterCall {
			return m.invalid(f+".filter.kind", "unsupported block filter: %s", h.Filter.Kind)
		}
	}
	return nil
}

func supportedVersions() string {
	var out []string
	for _, v := range asc.SupportedVersions() {
		out = append(out, v.String())
	}
	return strings.Join(out, ", ")
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}

func (m *Manifest) resolve(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(m.dir, file)
}

// WasmPath returns the path to the mapping file of ds.
func (m *Manifest) WasmPath(ds *DataSource) string {
	return m.resolve(ds.Mapping.File)
}

// SchemaPath returns the path to the GraphQL schema.
func (m *Manifest) SchemaPath() string {
	return m.resolve(m.Schema.File)
}

// Version returns the parsed apiVersion of the mapping.
func (ds *DataSource) Version() asc.Version {
	v, err := asc.ParseVersion(ds.Mapping.APIVersion)
	if err != nil {
		return asc.Version{}
	}
	return v
}

// Address returns the parsed source address, if any.
func (ds *DataSource) Address() (graph.Address, bool) {
	if ds.Source.Address == "" {
		return graph.Address{}, false
	}
	addr, err := graph.ParseAddress(ds.Source.Address)
	if err != nil {
		return graph.Address{}, false
	}
	return addr, true
}

// Handlers returns the names of every handler export of the mapping.
func (ds *DataSource) Handlers() []string {
	var out []string
	for _, h := range ds.Mapping.EventHandlers {
		out = append(out, h.Handler)
	}
	for _, h := range ds.Mapping.CallHandlers {
		out = append(out, h.Handler)
	}
	for _, h := range ds.Mapping.BlockHandlers {
		out = append(out, h.Handler)
	}
	return out
}

// ContextEntity converts the context table into the entity returned by
// dataSource.context(). Keys are sorted. A data source without context
// yields nil.
func (ds *DataSource) ContextEntity() (*graph.Entity, error) {
	if len(ds.Context) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(ds.Context))
	for k := range ds.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e := graph.NewEntity()
	for _, k := range keys {
		v, err := ds.Context[k].Value()
		if err != nil {
			return nil, fmt.Errorf("context key %s: %w", k, err)
		}
		e.Set(k, v)
	}
	return e, nil
}

// Value converts the entry to a store value.
func (c ContextValue) Value() (graph.Value, error) {
	switch c.Type {
	case "String":
		return graph.String(c.Data), nil
	case "Bool":
		b, err := strconv.ParseBool(c.Data)
		return graph.Bool(b), err
	case "Int":
		n, err := strconv.ParseInt(c.Data, 10, 32)
		return graph.Int(n), err
	case "Int8":
		n, err := strconv.ParseInt(c.Data, 10, 64)
		return graph.Int8(n), err
	case "BigInt":
		x, ok := new(big.Int).SetString(c.Data, 10)
		if !ok {
			return nil, fmt.Errorf("%q is not an integer", c.Data)
		}
		return graph.NewBigInt(x), nil
	case "BigDecimal":
		d, err := graph.ParseBigDecimal(c.Data)
		return graph.NewDecimal(d), err
	case "Bytes":
		b, err := graph.DecodeHex(c.Data)
		return graph.Bytes(b), err
	}
	return nil, fmt.Errorf("unsupported context type %q", c.Type)
}
