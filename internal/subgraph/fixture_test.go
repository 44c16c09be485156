package subgraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/woxQAQ/subgraph-abi/internal/wasm/wasmtest"
)

const tokenAddress = "0x5c69bee701ef814a2b6a3edd4b1652cb9cc5aa6f"

const tokenManifest = `specVersion: 0.0.5
description: ERC20 transfers
schema:
  file: ./schema.graphql
dataSources:
  - kind: ethereum/contract
    name: Token
    network: mainnet
    source:
      address: "` + tokenAddress + `"
      abi: ERC20
      startBlock: 100
    context:
      symbol:
        type: String
        data: TKN
      decimals:
        type: Int
        data: "18"
    mapping:
      kind: ethereum/events
      apiVersion: 0.0.7
      language: wasm/assemblyscript
      file: ./mapping.wasm
      entities:
        - Transfer
      abis:
        - name: ERC20
          file: ./abis/ERC20.json
      eventHandlers:
        - event: Transfer(indexed address,indexed address,uint256)
          handler: handleTransfer
      blockHandlers:
        - handler: handleBlock
templates:
  - kind: ethereum/contract
    name: Pair
    network: mainnet
    source:
      abi: ERC20
    mapping:
      kind: ethereum/events
      apiVersion: 0.0.6
      language: wasm/assemblyscript
      file: ./mapping.wasm
      abis:
        - name: ERC20
          file: ./abis/ERC20.json
      eventHandlers:
        - event: Sync(uint112,uint112)
          handler: handleSync
`

// tokenGuest exports every handler tokenManifest names.
func tokenGuest() []byte {
	return wasmtest.Guest(
		wasmtest.Handler{Name: "handleTransfer", Kind: wasmtest.LogArg},
		wasmtest.Handler{Name: "handleBlock", Kind: wasmtest.Noop},
		wasmtest.Handler{Name: "handleSync", Kind: wasmtest.Noop},
	)
}

// writeSubgraph lays out a subgraph directory with manifest, schema, ABI and
// mapping files.
func writeSubgraph(t *testing.T, dir, manifest string, mapping []byte) string {
	t.Helper()
	files := map[string][]byte{
		ManifestFile:      []byte(manifest),
		"schema.graphql":  []byte("type Transfer @entity { id: ID! }\n"),
		"abis/ERC20.json": []byte("[]"),
		"mapping.wasm":    mapping,
	}
	for name, data := range files {
		if data == nil {
			continue
		}
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTokenSubgraph(t *testing.T) string {
	t.Helper()
	return writeSubgraph(t, filepath.Join(t.TempDir(), "token"), tokenManifest, tokenGuest())
}
