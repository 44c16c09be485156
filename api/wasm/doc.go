// Package wasm is the guest side of the bridge for mapping modules built with
// GOOS=wasip1 -buildmode=c-shared. It provides the host import transport, the
// arena heap and the lifecycle exports (_start, allocate, id_of_type).
//
// Handler exports are declared by the mapping itself:
//
//	//go:wasmexport handleTransfer
//	func handleTransfer(p uint32) { wasm.InvokeEvent("handleTransfer", p) }
//
// and registered once from an init function:
//
//	func init() { wasm.Module().HandleEvent("handleTransfer", onTransfer) }
//
// NOTE: uint32 is used for pointers and lengths because WebAssembly uses a
// 32-bit linear memory model.
// See: https://github.com/golang/go/issues/59156
package wasm
