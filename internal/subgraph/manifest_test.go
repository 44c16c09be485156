package subgraph

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

func TestParseManifest(t *testing.T) {
	dir := newTokenSubgraph(t)

	m, err := ParseManifest(dir)
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}

	if m.SpecVersion != "0.0.5" {
		t.Errorf("expected specVersion 0.0.5, got %s", m.SpecVersion)
	}
	if m.Dir() != dir {
		t.Errorf("expected dir %s, got %s", dir, m.Dir())
	}
	if m.SchemaPath() != filepath.Join(dir, "schema.graphql") {
		t.Errorf("unexpected schema path %s", m.SchemaPath())
	}
	if len(m.DataSources) != 1 || len(m.Templates) != 1 {
		t.Fatalf("expected 1 data source and 1 template, got %d and %d", len(m.DataSources), len(m.Templates))
	}

	ds := &m.DataSources[0]
	if ds.Version() != asc.V0_0_7 {
		t.Errorf("expected apiVersion 0.0.7, got %s", ds.Version())
	}
	if m.Templates[0].Version() != asc.V0_0_6 {
		t.Errorf("expected template apiVersion 0.0.6, got %s", m.Templates[0].Version())
	}
	if ds.Source.StartBlock != 100 {
		t.Errorf("expected startBlock 100, got %d", ds.Source.StartBlock)
	}
	if got := m.WasmPath(ds); got != filepath.Join(dir, "mapping.wasm") {
		t.Errorf("unexpected wasm path %s", got)
	}

	addr, ok := ds.Address()
	if !ok || addr.Hex() != tokenAddress {
		t.Errorf("expected address %s, got %s (ok=%v)", tokenAddress, addr, ok)
	}
	if _, ok := m.Templates[0].Address(); ok {
		t.Error("template should not have an address")
	}

	if diff := cmp.Diff([]string{"handleTransfer", "handleBlock"}, ds.Handlers()); diff != "" {
		t.Errorf("handlers mismatch (-want +got):\n%s", diff)
	}
	if got := ds.Mapping.EventHandlers[0].Signature(); got != "Transfer(address,address,uint256)" {
		t.Errorf("unexpected event signature %s", got)
	}

	dsCtx, err := ds.ContextEntity()
	if err != nil {
		t.Fatalf("ContextEntity() failed: %v", err)
	}
	want := graph.NewEntity(
		graph.Field{Name: "decimals", Value: graph.Int(18)},
		graph.Field{Name: "symbol", Value: graph.String("TKN")},
	)
	if !dsCtx.Equal(want) {
		t.Errorf("context mismatch: got %v", dsCtx.Fields())
	}

	tmplCtx, err := m.Templates[0].ContextEntity()
	if err != nil || tmplCtx != nil {
		t.Errorf("expected nil template context, got %v (err=%v)", tmplCtx, err)
	}
}

func TestParseManifest_NotFound(t *testing.T) {
	_, err := ParseManifest(t.TempDir())
	if err == nil {
		t.Fatal("ParseManifest() should fail without subgraph.yaml")
	}
	if _, ok := err.(*ManifestNotFoundError); !ok {
		t.Errorf("expected ManifestNotFoundError, got %T", err)
	}
}

func TestParseManifest_InvalidYAML(t *testing.T) {
	dir := writeSubgraph(t, t.TempDir(), "dataSources: [unclosed", tokenGuest())

	_, err := ParseManifest(dir)
	if _, ok := err.(*ManifestParseError); !ok {
		t.Errorf("expected ManifestParseError, got %T (%v)", err, err)
	}
}

func TestParseManifest_MissingWasm(t *testing.T) {
	manifest := strings.ReplaceAll(tokenManifest, "./mapping.wasm", "./build/missing.wasm")
	dir := writeSubgraph(t, t.TempDir(), manifest, tokenGuest())

	_, err := ParseManifest(dir)
	var notFound *WasmNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected WasmNotFoundError, got %T (%v)", err, err)
	}
	if notFound.WasmFile != "./build/missing.wasm" {
		t.Errorf("unexpected wasm file %s", notFound.WasmFile)
	}
}

func TestManifestValidation(t *testing.T) {
	tests := []struct {
		name      string
		old, new  string
		wantField string
	}{
		{"missing spec version", "specVersion: 0.0.5", "specVersion: \"\"", "specVersion"},
		{"missing schema", "file: ./schema.graphql", "file: ./missing.graphql", "schema.file"},
		{"bad kind", "  - kind: ethereum/contract\n    name: Token", "  - kind: near\n    name: Token", "dataSources[0].kind"},
		{"missing network", "network: mainnet\n    source:\n      address", "network: \"\"\n    source:\n      address", "dataSources[0].network"},
		{"bad address", tokenAddress, "0x1234", "dataSources[0].source.address"},
		{"duplicate name", "name: Pair", "name: Token", "templates[0].name"},
		{"template address", "source:\n      abi: ERC20\n    mapping:\n      kind: ethereum/events\n      apiVersion: 0.0.6",
			"source:\n      address: \"" + tokenAddress + "\"\n      abi: ERC20\n    mapping:\n      kind: ethereum/events\n      apiVersion: 0.0.6",
			"templates[0].source.address"},
		{"unsupported api version", "apiVersion: 0.0.7", "apiVersion: 0.0.4", "dataSources[0].mapping.apiVersion"},
		{"malformed api version", "apiVersion: 0.0.7", "apiVersion: seven", "dataSources[0].mapping.apiVersion"},
		{"bad language", "language: wasm/assemblyscript\n      file: ./mapping.wasm\n      entities", "language: wasm/rust\n      file: ./mapping.wasm\n      entities", "dataSources[0].mapping.language"},
		{"bad context type", "type: Int", "type: Float", "dataSources[0].context"},
		{"bad context data", "data: \"18\"", "data: eighteen", "dataSources[0].context"},
		{"abi not listed", "abi: ERC20\n      startBlock", "abi: Pair\n      startBlock", "dataSources[0].mapping.abis"},
		{"missing abi file", "file: ./abis/ERC20.json\n      eventHandlers:\n        - event: Transfer", "file: ./abis/Other.json\n      eventHandlers:\n        - event: Transfer", "dataSources[0].mapping.abis[0]"},
		{"bad block filter", "- handler: handleBlock", "- handler: handleBlock\n          filter:\n            kind: polling", "dataSources[0].mapping.blockHandlers[0].filter.kind"},
		{"missing handler", "handler: handleSync", "handler: \"\"", "templates[0].mapping.eventHandlers[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manifest := strings.Replace(tokenManifest, tt.old, tt.new, 1)
			if manifest == tokenManifest {
				t.Fatalf("replacement %q did not apply", tt.old)
			}
			dir := writeSubgraph(t, t.TempDir(), manifest, tokenGuest())

			_, err := ParseManifest(dir)
			var verr *ManifestValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ManifestValidationError, got %T (%v)", err, err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("expected field %s, got %s (%s)", tt.wantField, verr.Field, verr.Message)
			}
		})
	}
}

func TestContextValue(t *testing.T) {
	tests := []struct {
		value ContextValue
		want  graph.Value
	}{
		{ContextValue{Type: "String", Data: "abc"}, graph.String("abc")},
		{ContextValue{Type: "Bool", Data: "true"}, graph.Bool(true)},
		{ContextValue{Type: "Int", Data: "-5"}, graph.Int(-5)},
		{ContextValue{Type: "Int8", Data: "9000000000"}, graph.Int8(9000000000)},
		{ContextValue{Type: "Bytes", Data: "0x0102"}, graph.Bytes{1, 2}},
	}
	for _, tt := range tests {
		got, err := tt.value.Value()
		if err != nil {
			t.Errorf("Value(%+v) failed: %v", tt.value, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Value(%+v) mismatch (-want +got):\n%s", tt.value, diff)
		}
	}

	big, err := ContextValue{Type: "BigInt", Data: "123456789012345678901234567890"}.Value()
	if err != nil {
		t.Fatalf("BigInt context failed: %v", err)
	}
	if big.Kind() != graph.KindBigInt {
		t.Errorf("expected BigInt kind, got %s", big.Kind())
	}

	for _, bad := range []ContextValue{
		{Type: "Int", Data: "99999999999"},
		{Type: "BigInt", Data: "1.5"},
		{Type: "Bytes", Data: "zz"},
		{Type: "Float", Data: "1"},
	} {
		if _, err := bad.Value(); err == nil {
			t.Errorf("Value(%+v) should fail", bad)
		}
	}
}
