// Package host describes the graph-node host import table and exposes it to
// mapping code as typed calls.
package host

import (
	"fmt"
	"strings"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
)

// Kind is the WebAssembly value type of an import parameter or result.
// Object handles travel as I32.
type Kind uint8

const (
	KindNone Kind = iota
	KindI32
	KindI64
	KindF64
)

func (k Kind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF64:
		return "f64"
	}
	return "none"
}

// Import identifies one host import.
type Import uint16

const (
	Abort Import = iota
	LogLog

	StoreGet
	StoreSet
	StoreRemove

	EthereumCall
	EthereumEncode
	EthereumDecode

	IPFSCat
	IPFSGetBlock
	IPFSMap

	JSONFromBytes
	JSONTryFromBytes
	JSONToI64
	JSONToU64
	JSONToF64
	JSONToBigInt

	CryptoKeccak256

	BigIntPlus
	BigIntMinus
	BigIntTimes
	BigIntDividedBy
	BigIntDividedByDecimal
	BigIntMod
	BigIntPow
	BigIntFromString
	BigIntBitOr
	BigIntBitAnd
	BigIntLeftShift
	BigIntRightShift

	BigDecimalPlus
	BigDecimalMinus
	BigDecimalTimes
	BigDecimalDividedBy
	BigDecimalEquals
	BigDecimalToString
	BigDecimalFromString

	TypeConversionBytesToString
	TypeConversionBytesToHex
	TypeConversionBigIntToString
	TypeConversionBigIntToHex
	TypeConversionStringToH160
	TypeConversionBytesToBase58

	DataSourceCreate
	DataSourceCreateWithContext
	DataSourceAddress
	DataSourceNetwork
	DataSourceContext

	ENSNameByHash

	numImports
)

// Import module names.
const (
	ModuleEnv   = "env"
	ModuleIndex = "index"
)

// Scalar is the class of a parameter or result that is a plain number.
const Scalar = asc.TypeIndex(^uint32(0))

// Param is one parameter or the result of an import: its wasm value kind and,
// for pointers, the class of the object it refers to.
type Param struct {
	Kind  Kind
	Class asc.TypeIndex
}

// Shape renders p as the handle shape and class it carries, e.g.
// "record EthereumEvent", or as its value kind for scalars.
func (p Param) Shape() string {
	if p.Class == Scalar {
		return p.Kind.String()
	}
	return asc.ShapeName(p.Class) + " " + p.Class.String()
}

// Descriptor is the static signature of a host import. A Nullable import
// may return the null pointer to mean "absent". Params and Result are the
// wasm value kinds of Args and Ret.
type Descriptor struct {
	Import   Import
	Module   string
	Name     string
	Params   []Kind
	Result   Kind
	Args     []Param
	Ret      Param
	Nullable bool
	Since    asc.Version
}

// QualifiedName returns "module.name".
func (d Descriptor) QualifiedName() string {
	return d.Module + "." + d.Name
}

// Available reports whether the import exists at v.
func (d Descriptor) Available(v asc.Version) bool {
	return v.AtLeast(d.Since)
}

// Check returns a *asc.VersionMismatchError if the import does not exist at v.
func (d Descriptor) Check(v asc.Version) error {
	if d.Available(v) {
		return nil
	}
	return &asc.VersionMismatchError{
		Version: v,
		Detail:  fmt.Sprintf("import %s requires API version %s", d.Name, d.Since),
	}
}

// Signature renders the descriptor as "name(i32, i32) -> i32".
func (d Descriptor) Signature() string {
	params := make([]string, len(d.Params))
	for i, p := range d.Params {
		params[i] = p.String()
	}
	sig := fmt.Sprintf("%s(%s)", d.Name, strings.Join(params, ", "))
	if d.Result != KindNone {
		sig += " -> " + d.Result.String()
	}
	return sig
}

// Shapes renders the object shapes of the descriptor, e.g.
// "store.get(string String, string String) -> record TypedMapStringStoreValue".
func (d Descriptor) Shapes() string {
	args := make([]string, len(d.Args))
	for i, p := range d.Args {
		args[i] = p.Shape()
	}
	sig := fmt.Sprintf("%s(%s)", d.Name, strings.Join(args, ", "))
	if d.Ret.Kind != KindNone {
		sig += " -> " + d.Ret.Shape()
	}
	return sig
}

func ptr(class asc.TypeIndex) Param { return Param{Kind: KindI32, Class: class} }

var (
	none = Param{Kind: KindNone, Class: Scalar}
	i32  = Param{Kind: KindI32, Class: Scalar}
	i64  = Param{Kind: KindI64, Class: Scalar}
	f64  = Param{Kind: KindF64, Class: Scalar}

	str      = ptr(asc.IndexString)
	bytes    = ptr(asc.IndexUint8Array)
	bigInt   = bytes
	decimal  = ptr(asc.IndexBigDecimal)
	entity   = ptr(asc.IndexTypedMapStringStoreValue)
	strArray = ptr(asc.IndexArrayString)
)

func args(ps ...Param) []Param { return ps }

func describe(imp Import, module, name string, params []Param, result Param) Descriptor {
	d := Descriptor{Import: imp, Module: module, Name: name, Args: params, Ret: result, Result: result.Kind, Since: asc.V0_0_5}
	for _, p := range params {
		d.Params = append(d.Params, p.Kind)
	}
	return d
}

func index(imp Import, name string, params []Param, result Param) Descriptor {
	return describe(imp, ModuleIndex, name, params, result)
}

func nullable(d Descriptor) Descriptor {
	d.Nullable = true
	return d
}

var descriptors = [numImports]Descriptor{
	Abort:  describe(Abort, ModuleEnv, "abort", args(str, str, i32, i32), none),
	LogLog: index(LogLog, "log.log", args(i32, str), none),

	StoreGet:    nullable(index(StoreGet, "store.get", args(str, str), entity)),
	StoreSet:    index(StoreSet, "store.set", args(str, str, entity), none),
	StoreRemove: index(StoreRemove, "store.remove", args(str, str), none),

	EthereumCall:   nullable(index(EthereumCall, "ethereum.call", args(ptr(asc.IndexSmartContractCall)), ptr(asc.IndexArrayEthereumValue))),
	EthereumEncode: nullable(index(EthereumEncode, "ethereum.encode", args(ptr(asc.IndexEthereumValue)), bytes)),
	EthereumDecode: nullable(index(EthereumDecode, "ethereum.decode", args(str, bytes), ptr(asc.IndexEthereumValue))),

	IPFSCat:      nullable(index(IPFSCat, "ipfs.cat", args(str), bytes)),
	IPFSGetBlock: nullable(index(IPFSGetBlock, "ipfs.getBlock", args(str), bytes)),
	IPFSMap:      index(IPFSMap, "ipfs.map", args(str, str, ptr(asc.IndexStoreValue), strArray), none),

	JSONFromBytes:    index(JSONFromBytes, "json.fromBytes", args(bytes), ptr(asc.IndexJSONValue)),
	JSONTryFromBytes: index(JSONTryFromBytes, "json.try_fromBytes", args(bytes), ptr(asc.IndexResultJSONValueBool)),
	JSONToI64:        index(JSONToI64, "json.toI64", args(str), i64),
	JSONToU64:        index(JSONToU64, "json.toU64", args(str), i64),
	JSONToF64:        index(JSONToF64, "json.toF64", args(str), f64),
	JSONToBigInt:     index(JSONToBigInt, "json.toBigInt", args(str), bigInt),

	CryptoKeccak256: index(CryptoKeccak256, "crypto.keccak256", args(bytes), bytes),

	BigIntPlus:             index(BigIntPlus, "bigInt.plus", args(bigInt, bigInt), bigInt),
	BigIntMinus:            index(BigIntMinus, "bigInt.minus", args(bigInt, bigInt), bigInt),
	BigIntTimes:            index(BigIntTimes, "bigInt.times", args(bigInt, bigInt), bigInt),
	BigIntDividedBy:        index(BigIntDividedBy, "bigInt.dividedBy", args(bigInt, bigInt), bigInt),
	BigIntDividedByDecimal: index(BigIntDividedByDecimal, "bigInt.dividedByDecimal", args(bigInt, decimal), decimal),
	BigIntMod:              index(BigIntMod, "bigInt.mod", args(bigInt, bigInt), bigInt),
	BigIntPow:              index(BigIntPow, "bigInt.pow", args(bigInt, i32), bigInt),
	BigIntFromString:       index(BigIntFromString, "bigInt.fromString", args(str), bigInt),
	BigIntBitOr:            index(BigIntBitOr, "bigInt.bitOr", args(bigInt, bigInt), bigInt),
	BigIntBitAnd:           index(BigIntBitAnd, "bigInt.bitAnd", args(bigInt, bigInt), bigInt),
	BigIntLeftShift:        index(BigIntLeftShift, "bigInt.leftShift", args(bigInt, i32), bigInt),
	BigIntRightShift:       index(BigIntRightShift, "bigInt.rightShift", args(bigInt, i32), bigInt),

	BigDecimalPlus:       index(BigDecimalPlus, "bigDecimal.plus", args(decimal, decimal), decimal),
	BigDecimalMinus:      index(BigDecimalMinus, "bigDecimal.minus", args(decimal, decimal), decimal),
	BigDecimalTimes:      index(BigDecimalTimes, "bigDecimal.times", args(decimal, decimal), decimal),
	BigDecimalDividedBy:  index(BigDecimalDividedBy, "bigDecimal.dividedBy", args(decimal, decimal), decimal),
	BigDecimalEquals:     index(BigDecimalEquals, "bigDecimal.equals", args(decimal, decimal), i32),
	BigDecimalToString:   index(BigDecimalToString, "bigDecimal.toString", args(decimal), str),
	BigDecimalFromString: index(BigDecimalFromString, "bigDecimal.fromString", args(str), decimal),

	TypeConversionBytesToString:  index(TypeConversionBytesToString, "typeConversion.bytesToString", args(bytes), str),
	TypeConversionBytesToHex:     index(TypeConversionBytesToHex, "typeConversion.bytesToHex", args(bytes), str),
	TypeConversionBigIntToString: index(TypeConversionBigIntToString, "typeConversion.bigIntToString", args(bigInt), str),
	TypeConversionBigIntToHex:    index(TypeConversionBigIntToHex, "typeConversion.bigIntToHex", args(bigInt), str),
	TypeConversionStringToH160:   index(TypeConversionStringToH160, "typeConversion.stringToH160", args(str), bytes),
	TypeConversionBytesToBase58:  index(TypeConversionBytesToBase58, "typeConversion.bytesToBase58", args(bytes), str),

	DataSourceCreate:            index(DataSourceCreate, "dataSource.create", args(str, strArray), none),
	DataSourceCreateWithContext: index(DataSourceCreateWithContext, "dataSource.createWithContext", args(str, strArray, entity), none),
	DataSourceAddress:           index(DataSourceAddress, "dataSource.address", nil, bytes),
	DataSourceNetwork:           index(DataSourceNetwork, "dataSource.network", nil, str),
	DataSourceContext:           index(DataSourceContext, "dataSource.context", nil, entity),

	ENSNameByHash: nullable(index(ENSNameByHash, "ens.nameByHash", args(str), str)),
}

var byName = func() map[string]Import {
	m := make(map[string]Import, len(descriptors))
	for _, d := range descriptors {
		m[d.QualifiedName()] = d.Import
	}
	return m
}()

// Descriptor returns the static descriptor of imp.
func (imp Import) Descriptor() Descriptor {
	if imp >= numImports {
		return Descriptor{Import: imp, Name: fmt.Sprintf("import(%d)", uint16(imp))}
	}
	return descriptors[imp]
}

func (imp Import) String() string {
	return imp.Descriptor().Name
}

// Lookup finds the import named name in module.
func Lookup(module, name string) (Import, bool) {
	imp, ok := byName[module+"."+name]
	return imp, ok
}

// Table returns the descriptors available at v, in declaration order.
func Table(v asc.Version) []Descriptor {
	var out []Descriptor
	for _, d := range descriptors {
		if d.Available(v) {
			out = append(out, d)
		}
	}
	return out
}
