//go:build wasip1

package wasm

import (
	"sync"

	"github.com/woxQAQ/subgraph-abi/pkg/mapping"
)

var (
	once   sync.Once
	module *mapping.Module
)

// Module returns the module of this instance, creating it on first use.
// Mappings register their handlers on it from init functions.
func Module() *mapping.Module {
	once.Do(func() {
		m, err := mapping.New(&heap{}, Transport{})
		if err != nil {
			panic(err)
		}
		module = m
	})
	return module
}

// trap ends the current export. The host has already seen the failure through
// env.abort and normally does not return from it.
func trap(err error) {
	if err != nil {
		panic(err)
	}
}

// InvokeEvent runs the event handler name on the event at p.
func InvokeEvent(name string, p uint32) { trap(Module().InvokeEvent(name, p)) }

// InvokeCall runs the call handler name on the call at p.
func InvokeCall(name string, p uint32) { trap(Module().InvokeCall(name, p)) }

// InvokeBlock runs the block handler name on the block at p.
func InvokeBlock(name string, p uint32) { trap(Module().InvokeBlock(name, p)) }

// InvokeJSON runs the ipfs.map callback name on the JSON value at p with the
// userData at userData.
func InvokeJSON(name string, p, userData uint32) { trap(Module().InvokeJSON(name, p, userData)) }

//go:wasmexport _start
func start() { trap(Module().Start()) }

//go:wasmexport allocate
func allocate(size uint32) uint32 {
	p, err := Module().Allocate(size)
	trap(err)
	return p
}

//go:wasmexport id_of_type
func idOfType(index uint32) uint32 {
	id, err := Module().IDOfType(index)
	trap(err)
	return id
}
