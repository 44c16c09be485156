package host

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync/atomic"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/codec"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

// ErrReentrantCall is returned when an import is invoked while another import
// call of the same dispatcher is still in flight.
var ErrReentrantCall = errors.New("re-entrant host import call")

// Level is a log.log severity.
type Level uint32

const (
	LevelCritical Level = iota
	LevelError
	LevelWarning
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelCritical:
		return "critical"
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	}
	return fmt.Sprintf("level(%d)", uint32(l))
}

// Dispatcher exposes every host import as a typed call. Arguments are encoded
// into the module arena, results are decoded from it. Imports marked nullable
// report a null result as absent (ok == false) rather than as an error.
//
// A Dispatcher belongs to one module instance and is not safe for concurrent
// use.
type Dispatcher struct {
	arena *asc.Arena
	t     Transport
	busy  atomic.Bool
}

// NewDispatcher returns a dispatcher that encodes into a and calls through t.
func NewDispatcher(a *asc.Arena, t Transport) *Dispatcher {
	if b, ok := t.(Binder); ok {
		b.Bind(a)
	}
	return &Dispatcher{arena: a, t: t}
}

// Arena returns the arena arguments are encoded into.
func (d *Dispatcher) Arena() *asc.Arena { return d.arena }

// Version returns the ABI version calls are checked against.
func (d *Dispatcher) Version() asc.Version { return d.arena.Version() }

// Invoke performs a raw import call after checking the version, the arity and
// re-entrance. Transport failures are wrapped in *asc.HostImportError.
func (d *Dispatcher) Invoke(imp Import, args ...uint64) (uint64, error) {
	if imp >= numImports {
		return 0, fmt.Errorf("unknown host import %d", uint16(imp))
	}
	desc := imp.Descriptor()
	if err := desc.Check(d.Version()); err != nil {
		return 0, err
	}
	if len(args) != len(desc.Params) {
		return 0, fmt.Errorf("%s: got %d arguments, want %d", desc.QualifiedName(), len(args), len(desc.Params))
	}
	if !d.busy.CompareAndSwap(false, true) {
		return 0, fmt.Errorf("%s: %w", desc.QualifiedName(), ErrReentrantCall)
	}
	defer d.busy.Store(false)

	ret, err := d.t.Invoke(imp, args...)
	if err != nil {
		return 0, &asc.HostImportError{Import: desc.QualifiedName(), Err: err}
	}
	return ret, nil
}

// encoder collects call arguments, keeping the first encoding failure.
type encoder struct {
	a    *asc.Arena
	args []uint64
	err  error
}

func (e *encoder) put(fn func() (asc.Ptr, error)) {
	if e.err != nil {
		return
	}
	p, err := fn()
	if err != nil {
		e.err = err
		return
	}
	e.args = append(e.args, uint64(p))
}

func (e *encoder) raw(v uint64) {
	if e.err == nil {
		e.args = append(e.args, v)
	}
}

func (e *encoder) str(s string) {
	e.put(func() (asc.Ptr, error) {
		h, err := codec.EncodeString(e.a, s)
		return h.Ptr(), err
	})
}

func (e *encoder) optStr(s *string) {
	e.put(func() (asc.Ptr, error) { return codec.WriteOptionalString(e.a, s) })
}

func (e *encoder) strs(ss []string) {
	e.put(func() (asc.Ptr, error) {
		h, err := codec.EncodeStringArray(e.a, ss)
		return h.Ptr(), err
	})
}

func (e *encoder) bytes(b []byte) {
	e.put(func() (asc.Ptr, error) { return codec.WriteBytes(e.a, b) })
}

func (e *encoder) bigInt(x *big.Int) {
	e.put(func() (asc.Ptr, error) {
		if x == nil {
			x = new(big.Int)
		}
		return codec.WriteBigInt(e.a, x)
	})
}

func (e *encoder) bigDecimal(x graph.BigDecimal) {
	e.put(func() (asc.Ptr, error) { return codec.WriteBigDecimal(e.a, x) })
}

func (e *encoder) entity(ent *graph.Entity) {
	e.put(func() (asc.Ptr, error) { return codec.WriteEntity(e.a, ent) })
}

func (d *Dispatcher) call(imp Import, build func(e *encoder)) (uint64, error) {
	e := &encoder{a: d.arena}
	if build != nil {
		build(e)
	}
	if e.err != nil {
		return 0, fmt.Errorf("%s: encoding arguments: %w", imp.Descriptor().QualifiedName(), e.err)
	}
	return d.Invoke(imp, e.args...)
}

func ptrOf(ret uint64) asc.Ptr { return asc.Ptr(uint32(ret)) }

// nullableResult decodes a nullable pointer result.
func nullableResult[T any](d *Dispatcher, ret uint64, read func(*asc.Arena, asc.Ptr) (T, error)) (T, bool, error) {
	var zero T
	if ptrOf(ret) == 0 {
		return zero, false, nil
	}
	v, err := read(d.arena, ptrOf(ret))
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Abort reports a fatal guest failure. On a real host the call does not
// return.
func (d *Dispatcher) Abort(message string, file *string, line, column uint32) error {
	_, err := d.call(Abort, func(e *encoder) {
		e.str(message)
		e.optStr(file)
		e.raw(uint64(line))
		e.raw(uint64(column))
	})
	return err
}

// Log writes msg to the host log at level.
func (d *Dispatcher) Log(level Level, msg string) error {
	_, err := d.call(LogLog, func(e *encoder) {
		e.raw(uint64(level))
		e.str(msg)
	})
	return err
}

// StoreGet loads an entity. ok is false when it does not exist.
func (d *Dispatcher) StoreGet(entityType, id string) (*graph.Entity, bool, error) {
	ret, err := d.call(StoreGet, func(e *encoder) {
		e.str(entityType)
		e.str(id)
	})
	if err != nil {
		return nil, false, err
	}
	return nullableResult(d, ret, codec.ReadEntity)
}

// StoreSet writes an entity.
func (d *Dispatcher) StoreSet(entityType, id string, data *graph.Entity) error {
	_, err := d.call(StoreSet, func(e *encoder) {
		e.str(entityType)
		e.str(id)
		e.entity(data)
	})
	return err
}

// StoreRemove deletes an entity.
func (d *Dispatcher) StoreRemove(entityType, id string) error {
	_, err := d.call(StoreRemove, func(e *encoder) {
		e.str(entityType)
		e.str(id)
	})
	return err
}

// EthereumCall performs an eth_call. ok is false when the call reverted.
func (d *Dispatcher) EthereumCall(c *graph.SmartContractCall) ([]graph.Token, bool, error) {
	ret, err := d.call(EthereumCall, func(e *encoder) {
		e.put(func() (asc.Ptr, error) {
			h, err := codec.EncodeSmartContractCall(e.a, c)
			return h.Ptr(), err
		})
	})
	if err != nil {
		return nil, false, err
	}
	return nullableResult(d, ret, func(a *asc.Arena, p asc.Ptr) ([]graph.Token, error) {
		return codec.ReadArray(a, p, asc.IndexArrayEthereumValue, codec.ReadToken)
	})
}

// EthereumEncode ABI-encodes t.
func (d *Dispatcher) EthereumEncode(t graph.Token) ([]byte, bool, error) {
	ret, err := d.call(EthereumEncode, func(e *encoder) {
		e.put(func() (asc.Ptr, error) { return codec.WriteToken(e.a, t) })
	})
	if err != nil {
		return nil, false, err
	}
	return nullableResult(d, ret, codec.ReadBytes)
}

// EthereumDecode ABI-decodes data as types, e.g. "(address,uint256)".
func (d *Dispatcher) EthereumDecode(types string, data []byte) (graph.Token, bool, error) {
	ret, err := d.call(EthereumDecode, func(e *encoder) {
		e.str(types)
		e.bytes(data)
	})
	if err != nil {
		return nil, false, err
	}
	return nullableResult(d, ret, codec.ReadToken)
}

// IPFSCat fetches a file. ok is false when it could not be found.
func (d *Dispatcher) IPFSCat(hash string) ([]byte, bool, error) {
	ret, err := d.call(IPFSCat, func(e *encoder) { e.str(hash) })
	if err != nil {
		return nil, false, err
	}
	return nullableResult(d, ret, codec.ReadBytes)
}

// IPFSGetBlock fetches a raw block.
func (d *Dispatcher) IPFSGetBlock(hash string) ([]byte, bool, error) {
	ret, err := d.call(IPFSGetBlock, func(e *encoder) { e.str(hash) })
	if err != nil {
		return nil, false, err
	}
	return nullableResult(d, ret, codec.ReadBytes)
}

// IPFSMap asks the host to stream the JSON values in link to the exported
// callback. The host runs callback in a fresh instance of the module, so the
// dispatcher of this instance stays busy until every value is handled.
func (d *Dispatcher) IPFSMap(link, callback string, userData graph.Value, flags []string) error {
	_, err := d.call(IPFSMap, func(e *encoder) {
		e.str(link)
		e.str(callback)
		e.put(func() (asc.Ptr, error) { return codec.WriteValue(e.a, userData) })
		e.strs(flags)
	})
	return err
}

// JSONFromBytes parses a JSON document.
func (d *Dispatcher) JSONFromBytes(data []byte) (graph.JSON, error) {
	ret, err := d.call(JSONFromBytes, func(e *encoder) { e.bytes(data) })
	if err != nil {
		return nil, err
	}
	return codec.ReadJSON(d.arena, ptrOf(ret))
}

// JSONTryFromBytes parses a JSON document. ok is false when it is malformed.
func (d *Dispatcher) JSONTryFromBytes(data []byte) (graph.JSON, bool, error) {
	ret, err := d.call(JSONTryFromBytes, func(e *encoder) { e.bytes(data) })
	if err != nil {
		return nil, false, err
	}
	return codec.ReadJSONResult(d.arena, ptrOf(ret))
}

// JSONToI64 converts a JSON number literal.
func (d *Dispatcher) JSONToI64(number string) (int64, error) {
	ret, err := d.call(JSONToI64, func(e *encoder) { e.str(number) })
	return int64(ret), err
}

// JSONToU64 converts a JSON number literal.
func (d *Dispatcher) JSONToU64(number string) (uint64, error) {
	return d.call(JSONToU64, func(e *encoder) { e.str(number) })
}

// JSONToF64 converts a JSON number literal.
func (d *Dispatcher) JSONToF64(number string) (float64, error) {
	ret, err := d.call(JSONToF64, func(e *encoder) { e.str(number) })
	return math.Float64frombits(ret), err
}

// JSONToBigInt converts a JSON number literal.
func (d *Dispatcher) JSONToBigInt(number string) (*big.Int, error) {
	ret, err := d.call(JSONToBigInt, func(e *encoder) { e.str(number) })
	if err != nil {
		return nil, err
	}
	return codec.ReadBigInt(d.arena, ptrOf(ret))
}

// Keccak256 hashes data.
func (d *Dispatcher) Keccak256(data []byte) ([]byte, error) {
	ret, err := d.call(CryptoKeccak256, func(e *encoder) { e.bytes(data) })
	if err != nil {
		return nil, err
	}
	return codec.ReadBytes(d.arena, ptrOf(ret))
}

func (d *Dispatcher) bigIntOp(imp Import, x, y *big.Int) (*big.Int, error) {
	ret, err := d.call(imp, func(e *encoder) {
		e.bigInt(x)
		e.bigInt(y)
	})
	if err != nil {
		return nil, err
	}
	return codec.ReadBigInt(d.arena, ptrOf(ret))
}

func (d *Dispatcher) BigIntPlus(x, y *big.Int) (*big.Int, error) {
	return d.bigIntOp(BigIntPlus, x, y)
}

func (d *Dispatcher) BigIntMinus(x, y *big.Int) (*big.Int, error) {
	return d.bigIntOp(BigIntMinus, x, y)
}

func (d *Dispatcher) BigIntTimes(x, y *big.Int) (*big.Int, error) {
	return d.bigIntOp(BigIntTimes, x, y)
}

func (d *Dispatcher) BigIntMod(x, y *big.Int) (*big.Int, error) {
	return d.bigIntOp(BigIntMod, x, y)
}

func (d *Dispatcher) BigIntBitOr(x, y *big.Int) (*big.Int, error) {
	return d.bigIntOp(BigIntBitOr, x, y)
}

func (d *Dispatcher) BigIntBitAnd(x, y *big.Int) (*big.Int, error) {
	return d.bigIntOp(BigIntBitAnd, x, y)
}

func (d *Dispatcher) BigIntDividedBy(x, y *big.Int) (*big.Int, error) {
	return d.bigIntOp(BigIntDividedBy, x, y)
}

// BigIntDividedByDecimal divides x by a decimal y.
func (d *Dispatcher) BigIntDividedByDecimal(x *big.Int, y graph.BigDecimal) (graph.BigDecimal, error) {
	ret, err := d.call(BigIntDividedByDecimal, func(e *encoder) {
		e.bigInt(x)
		e.bigDecimal(y)
	})
	if err != nil {
		return graph.BigDecimal{}, err
	}
	return codec.ReadBigDecimal(d.arena, ptrOf(ret))
}

func (d *Dispatcher) bigIntShift(imp Import, x *big.Int, n uint8) (*big.Int, error) {
	ret, err := d.call(imp, func(e *encoder) {
		e.bigInt(x)
		e.raw(uint64(n))
	})
	if err != nil {
		return nil, err
	}
	return codec.ReadBigInt(d.arena, ptrOf(ret))
}

// BigIntPow raises x to exp.
func (d *Dispatcher) BigIntPow(x *big.Int, exp uint8) (*big.Int, error) {
	return d.bigIntShift(BigIntPow, x, exp)
}

func (d *Dispatcher) BigIntLeftShift(x *big.Int, bits uint8) (*big.Int, error) {
	return d.bigIntShift(BigIntLeftShift, x, bits)
}

func (d *Dispatcher) BigIntRightShift(x *big.Int, bits uint8) (*big.Int, error) {
	return d.bigIntShift(BigIntRightShift, x, bits)
}

// BigIntFromString parses a decimal integer.
func (d *Dispatcher) BigIntFromString(s string) (*big.Int, error) {
	ret, err := d.call(BigIntFromString, func(e *encoder) { e.str(s) })
	if err != nil {
		return nil, err
	}
	return codec.ReadBigInt(d.arena, ptrOf(ret))
}

func (d *Dispatcher) bigDecimalOp(imp Import, x, y graph.BigDecimal) (graph.BigDecimal, error) {
	ret, err := d.call(imp, func(e *encoder) {
		e.bigDecimal(x)
		e.bigDecimal(y)
	})
	if err != nil {
		return graph.BigDecimal{}, err
	}
	return codec.ReadBigDecimal(d.arena, ptrOf(ret))
}

func (d *Dispatcher) BigDecimalPlus(x, y graph.BigDecimal) (graph.BigDecimal, error) {
	return d.bigDecimalOp(BigDecimalPlus, x, y)
}

func (d *Dispatcher) BigDecimalMinus(x, y graph.BigDecimal) (graph.BigDecimal, error) {
	return d.bigDecimalOp(BigDecimalMinus, x, y)
}

func (d *Dispatcher) BigDecimalTimes(x, y graph.BigDecimal) (graph.BigDecimal, error) {
	return d.bigDecimalOp(BigDecimalTimes, x, y)
}

func (d *Dispatcher) BigDecimalDividedBy(x, y graph.BigDecimal) (graph.BigDecimal, error) {
	return d.bigDecimalOp(BigDecimalDividedBy, x, y)
}

// BigDecimalEquals compares two decimals numerically.
func (d *Dispatcher) BigDecimalEquals(x, y graph.BigDecimal) (bool, error) {
	ret, err := d.call(BigDecimalEquals, func(e *encoder) {
		e.bigDecimal(x)
		e.bigDecimal(y)
	})
	return err == nil && uint32(ret) != 0, err
}

// BigDecimalToString renders x in plain notation.
func (d *Dispatcher) BigDecimalToString(x graph.BigDecimal) (string, error) {
	ret, err := d.call(BigDecimalToString, func(e *encoder) { e.bigDecimal(x) })
	if err != nil {
		return "", err
	}
	return codec.ReadString(d.arena, ptrOf(ret))
}

// BigDecimalFromString parses a decimal literal.
func (d *Dispatcher) BigDecimalFromString(s string) (graph.BigDecimal, error) {
	ret, err := d.call(BigDecimalFromString, func(e *encoder) { e.str(s) })
	if err != nil {
		return graph.BigDecimal{}, err
	}
	return codec.ReadBigDecimal(d.arena, ptrOf(ret))
}

func (d *Dispatcher) toString(imp Import, build func(e *encoder)) (string, error) {
	ret, err := d.call(imp, build)
	if err != nil {
		return "", err
	}
	return codec.ReadString(d.arena, ptrOf(ret))
}

// BytesToString decodes UTF-8 bytes.
func (d *Dispatcher) BytesToString(b []byte) (string, error) {
	return d.toString(TypeConversionBytesToString, func(e *encoder) { e.bytes(b) })
}

// BytesToHex renders b as 0x-prefixed hex.
func (d *Dispatcher) BytesToHex(b []byte) (string, error) {
	return d.toString(TypeConversionBytesToHex, func(e *encoder) { e.bytes(b) })
}

// BigIntToString renders x in decimal.
func (d *Dispatcher) BigIntToString(x *big.Int) (string, error) {
	return d.toString(TypeConversionBigIntToString, func(e *encoder) { e.bigInt(x) })
}

// BigIntToHex renders x as 0x-prefixed hex.
func (d *Dispatcher) BigIntToHex(x *big.Int) (string, error) {
	return d.toString(TypeConversionBigIntToHex, func(e *encoder) { e.bigInt(x) })
}

// BytesToBase58 renders b in base58.
func (d *Dispatcher) BytesToBase58(b []byte) (string, error) {
	return d.toString(TypeConversionBytesToBase58, func(e *encoder) { e.bytes(b) })
}

// StringToH160 parses a hex address.
func (d *Dispatcher) StringToH160(s string) (graph.Address, error) {
	ret, err := d.call(TypeConversionStringToH160, func(e *encoder) { e.str(s) })
	if err != nil {
		return graph.Address{}, err
	}
	return codec.ReadAddress(d.arena, ptrOf(ret))
}

// DataSourceCreate instantiates the template name with params.
func (d *Dispatcher) DataSourceCreate(name string, params []string) error {
	_, err := d.call(DataSourceCreate, func(e *encoder) {
		e.str(name)
		e.strs(params)
	})
	return err
}

// DataSourceCreateWithContext instantiates the template name with params and
// a context entity.
func (d *Dispatcher) DataSourceCreateWithContext(name string, params []string, ctx *graph.Entity) error {
	_, err := d.call(DataSourceCreateWithContext, func(e *encoder) {
		e.str(name)
		e.strs(params)
		e.entity(ctx)
	})
	return err
}

// DataSourceAddress returns the address of the current data source.
func (d *Dispatcher) DataSourceAddress() (graph.Address, error) {
	ret, err := d.call(DataSourceAddress, nil)
	if err != nil {
		return graph.Address{}, err
	}
	return codec.ReadAddress(d.arena, ptrOf(ret))
}

// DataSourceNetwork returns the network of the current data source.
func (d *Dispatcher) DataSourceNetwork() (string, error) {
	return d.toString(DataSourceNetwork, nil)
}

// DataSourceContext returns the context entity of the current data source.
func (d *Dispatcher) DataSourceContext() (*graph.Entity, error) {
	ret, err := d.call(DataSourceContext, nil)
	if err != nil {
		return nil, err
	}
	return codec.ReadEntity(d.arena, ptrOf(ret))
}

// ENSNameByHash resolves an ENS name hash. ok is false when it is unknown.
func (d *Dispatcher) ENSNameByHash(hash string) (string, bool, error) {
	ret, err := d.call(ENSNameByHash, func(e *encoder) { e.str(hash) })
	if err != nil {
		return "", false, err
	}
	return nullableResult(d, ret, codec.ReadString)
}
