// Package wasmtest assembles small mapping guests for tests. The guests speak
// the same export contract as mappings built with api/wasm: a bump allocator
// behind allocate, id_of_type with the default id assignment, an empty _start
// and one export per handler.
//
// Static strings and arrays are laid out as AssemblyScript objects in data
// segments, so handlers can pass them to imports without allocating.
package wasmtest

import (
	"encoding/binary"
	"unicode/utf16"
)

// HandlerKind selects the body of a generated handler.
type HandlerKind int

const (
	// LogArg passes its argument, a string pointer, to log.log at info.
	LogArg HandlerKind = iota
	// LogStatic logs Message at info.
	LogStatic
	// AbortArg calls abort(arg, null, 7, 3).
	AbortArg
	// AbortStatic calls abort(Message, null, 7, 3).
	AbortStatic
	// Spin loops forever.
	Spin
	// Save reads three words at its argument and passes them to store.set.
	Save
	// Noop returns immediately.
	Noop
	// Create calls dataSource.create(Message, Params).
	Create
	// MapIPFS calls ipfs.map(arg, Message, null, ["json"]).
	MapIPFS
	// SaveJSON is an ipfs.map callback taking (value, userData). The value
	// must be a JSON string; it becomes the id of an entity of type Message
	// whose string fields are the key, value pairs in Params.
	SaveJSON
)

// AbortLine and AbortColumn are the position reported by abort handlers.
const (
	AbortLine   = 7
	AbortColumn = 3
)

// Handler is one exported handler of a generated guest.
type Handler struct {
	Name    string
	Kind    HandlerKind
	Message string
	Params  []string
}

const (
	importAbort = iota
	importLog
	importStoreSet
	importCreate
	importIPFSMap
	funcAllocate
	funcIDOfType
	funcStart
	firstHandler
)

const (
	typeAbort = iota
	typeLog
	typeAlloc
	typeStart
	typeHandler
	typeStoreSet
	typeIPFSMap
	typeCallback
)

// Runtime ids under the default registry.
const (
	arrayBufferID = 1
	stringID      = 2
	arrayStringID = 20
	entryArrayID  = 23
	storeValueID  = 33
	entryID       = 36
	entityID      = 38
)

// Guest assembles a guest module exporting handlers. It imports env.abort,
// index.log.log, index.store.set, index.dataSource.create and
// index.ipfs.map.
func Guest(handlers ...Handler) []byte {
	data, heap := staticObjects(handlers)

	types := vec(
		funcType(4, 0),
		funcType(2, 0),
		funcType(1, 1),
		funcType(0, 0),
		funcType(1, 0),
		funcType(3, 0),
		funcType(4, 0),
		funcType(2, 0),
	)
	imports := vec(
		funcImport("env", "abort", typeAbort),
		funcImport("index", "log.log", typeLog),
		funcImport("index", "store.set", typeStoreSet),
		funcImport("index", "dataSource.create", typeLog),
		funcImport("index", "ipfs.map", typeIPFSMap),
	)

	funcs := [][]byte{{typeAlloc}, {typeAlloc}, {typeStart}}
	exports := [][]byte{
		append(name("memory"), 0x02, 0x00),
		funcExport("allocate", funcAllocate),
		funcExport("id_of_type", funcIDOfType),
		funcExport("_start", funcStart),
	}
	code := [][]byte{allocateBody, idOfTypeBody, body(0x0b)}
	for i, h := range handlers {
		typ := byte(typeHandler)
		if h.Kind == SaveJSON {
			typ = typeCallback
		}
		funcs = append(funcs, []byte{typ})
		exports = append(exports, funcExport(h.Name, uint32(firstHandler+i)))
		code = append(code, handlerBody(h, data.args[i]))
	}

	globals := vec(append(append([]byte{0x7f, 0x01, 0x41}, sleb(int32(heap))...), 0x0b))

	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, types)...)
	out = append(out, section(2, imports)...)
	out = append(out, section(3, vec(funcs...))...)
	out = append(out, section(5, vec([]byte{0x00, 0x01}))...)
	out = append(out, section(6, globals)...)
	out = append(out, section(7, vec(exports...))...)
	out = append(out, section(10, vec(code...))...)
	if len(data.segments) > 0 {
		out = append(out, section(11, vec(data.segments...))...)
	}
	return out
}

// Import names one function import of a module built by Imports.
type Import struct {
	Module, Name string
}

// Imports assembles a module that only imports fns, each typed () -> ().
func Imports(fns ...Import) []byte {
	imports := make([][]byte, len(fns))
	for i, fn := range fns {
		imports[i] = funcImport(fn.Module, fn.Name, 0)
	}
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	out = append(out, section(1, vec(funcType(0, 0)))...)
	out = append(out, section(2, vec(imports...))...)
	return out
}

type staticData struct {
	segments [][]byte
	// args holds the static arguments of each handler.
	args [][]uint32
	next uint32
}

// staticObjects lays out the static arguments of handlers from address 32 on
// and returns the first free heap address.
func staticObjects(handlers []Handler) (staticData, uint32) {
	d := staticData{next: 32}
	for _, h := range handlers {
		var args []uint32
		switch h.Kind {
		case LogStatic, AbortStatic:
			args = []uint32{d.str(h.Message)}
		case Create:
			args = []uint32{d.str(h.Message), d.strArray(h.Params)}
		case MapIPFS:
			args = []uint32{d.str(h.Message), d.strArray([]string{"json"})}
		case SaveJSON:
			args = []uint32{d.str(h.Message), d.entity(h.Params)}
		}
		d.args = append(d.args, args)
	}
	if d.next < 1024 {
		d.next = 1024
	}
	return d, d.next
}

// object adds a data segment holding an object of class rtID and returns its
// payload address.
func (d *staticData) object(rtID uint32, payload []byte) uint32 {
	ptr := d.next
	size := uint32(len(payload))
	obj := make([]byte, 20, 20+len(payload))
	binary.LittleEndian.PutUint32(obj[0:], 16+alignUp(size))
	binary.LittleEndian.PutUint32(obj[12:], rtID)
	binary.LittleEndian.PutUint32(obj[16:], size)
	obj = append(obj, payload...)

	seg := append([]byte{0x00, 0x41}, sleb(int32(ptr-20))...)
	seg = append(seg, 0x0b)
	seg = append(seg, uleb(uint32(len(obj)))...)
	d.segments = append(d.segments, append(seg, obj...))
	d.next += alignUp(size) + 32
	return ptr
}

func (d *staticData) str(s string) uint32 {
	return d.object(stringID, encodeUTF16(s))
}

func (d *staticData) strArray(ss []string) uint32 {
	ptrs := make([]uint32, len(ss))
	for i, s := range ss {
		ptrs[i] = d.str(s)
	}
	return d.array(arrayStringID, ptrs)
}

// array lays out an array of class rtID holding ptrs.
func (d *staticData) array(rtID uint32, ptrs []uint32) uint32 {
	elems := make([]byte, 4*len(ptrs))
	for i, p := range ptrs {
		binary.LittleEndian.PutUint32(elems[4*i:], p)
	}
	buf := d.object(arrayBufferID, elems)
	fields := make([]byte, 16)
	binary.LittleEndian.PutUint32(fields[0:], buf)
	binary.LittleEndian.PutUint32(fields[4:], buf)
	binary.LittleEndian.PutUint32(fields[8:], uint32(len(elems)))
	binary.LittleEndian.PutUint32(fields[12:], uint32(len(ptrs)))
	return d.object(rtID, fields)
}

// entity lays out a TypedMap<string, StoreValue> from key, value pairs. All
// values are strings.
func (d *staticData) entity(kv []string) uint32 {
	var entries []uint32
	for i := 0; i+1 < len(kv); i += 2 {
		value := make([]byte, 16)
		binary.LittleEndian.PutUint32(value[8:], d.str(kv[i+1]))
		entry := make([]byte, 8)
		binary.LittleEndian.PutUint32(entry[0:], d.str(kv[i]))
		binary.LittleEndian.PutUint32(entry[4:], d.object(storeValueID, value))
		entries = append(entries, d.object(entryID, entry))
	}
	fields := make([]byte, 4)
	binary.LittleEndian.PutUint32(fields, d.array(entryArrayID, entries))
	return d.object(entityID, fields)
}

func encodeUTF16(s string) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[2*i:], u)
	}
	return b
}

func alignUp(n uint32) uint32 { return (n + 15) &^ 15 }

func handlerBody(h Handler, static []uint32) []byte {
	arg := []byte{0x20, 0x00}
	if len(static) > 0 {
		arg = append([]byte{0x41}, sleb(int32(static[0]))...)
	}
	switch h.Kind {
	case LogArg, LogStatic:
		code := []byte{0x41, 0x03}
		code = append(code, arg...)
		return body(append(code, 0x10, importLog, 0x0b)...)
	case AbortArg, AbortStatic:
		code := append([]byte{}, arg...)
		code = append(code, 0x41, 0x00, 0x41, AbortLine, 0x41, AbortColumn, 0x10, importAbort, 0x00, 0x0b)
		return body(code...)
	case Spin:
		return body(0x03, 0x40, 0x0c, 0x00, 0x0b, 0x0b)
	case Save:
		return body(
			0x20, 0x00, 0x28, 0x02, 0x00,
			0x20, 0x00, 0x28, 0x02, 0x04,
			0x20, 0x00, 0x28, 0x02, 0x08,
			0x10, importStoreSet, 0x0b,
		)
	case Create:
		code := append([]byte{}, arg...)
		code = append(code, 0x41)
		code = append(code, sleb(int32(static[1]))...)
		return body(append(code, 0x10, importCreate, 0x0b)...)
	case MapIPFS:
		code := []byte{0x20, 0x00, 0x41}
		code = append(code, sleb(int32(static[0]))...)
		code = append(code, 0x41, 0x00, 0x41)
		code = append(code, sleb(int32(static[1]))...)
		return body(append(code, 0x10, importIPFSMap, 0x0b)...)
	case SaveJSON:
		code := append([]byte{0x41}, sleb(int32(static[0]))...)
		code = append(code, 0x20, 0x00, 0x28, 0x02, 0x08, 0x41)
		code = append(code, sleb(int32(static[1]))...)
		return body(append(code, 0x10, importStoreSet, 0x0b)...)
	}
	return body(0x0b)
}

// allocateBody bumps the heap global by size, aligned to 16, growing memory
// one page at a time. It returns 0 when memory cannot grow.
var allocateBody = sized(
	0x01, 0x01, 0x7f, // one i32 local
	0x23, 0x00, 0x41, 0x0f, 0x6a, 0x41, 0x70, 0x71, 0x21, 0x01,
	0x20, 0x01, 0x20, 0x00, 0x6a, 0x24, 0x00,
	0x02, 0x40, 0x03, 0x40,
	0x23, 0x00, 0x3f, 0x00, 0x41, 0x10, 0x74, 0x4d, 0x0d, 0x01,
	0x41, 0x01, 0x40, 0x00, 0x41, 0x7f, 0x46,
	0x04, 0x40, 0x41, 0x00, 0x0f, 0x0b,
	0x0c, 0x00, 0x0b, 0x0b,
	0x20, 0x01, 0x0b,
)

// idOfTypeBody maps String to 2, ArrayBuffer to 1 and every other index i
// to i+2.
var idOfTypeBody = body(
	0x20, 0x00, 0x45, 0x04, 0x7f, 0x41, 0x02, 0x05,
	0x20, 0x00, 0x41, 0x01, 0x46, 0x04, 0x7f, 0x41, 0x01, 0x05,
	0x20, 0x00, 0x41, 0x02, 0x6a,
	0x0b, 0x0b, 0x0b,
)

// body prefixes code, which must end in 0x0b, with an empty local list and
// the size.
func body(code ...byte) []byte {
	return sized(append([]byte{0x00}, code...)...)
}

func sized(b ...byte) []byte {
	return append(uleb(uint32(len(b))), b...)
}

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func name(s string) []byte {
	return append(uleb(uint32(len(s))), s...)
}

func vec(items ...[]byte) []byte {
	out := uleb(uint32(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func section(id byte, payload []byte) []byte {
	return append(append([]byte{id}, uleb(uint32(len(payload)))...), payload...)
}

func funcType(params, results int) []byte {
	out := append([]byte{0x60}, uleb(uint32(params))...)
	for range params {
		out = append(out, 0x7f)
	}
	out = append(out, uleb(uint32(results))...)
	for range results {
		out = append(out, 0x7f)
	}
	return out
}

func funcImport(module, fn string, typ uint32) []byte {
	return append(append(append(name(module), name(fn)...), 0x00), uleb(typ)...)
}

func funcExport(n string, idx uint32) []byte {
	return append(append(name(n), 0x00), uleb(idx)...)
}
