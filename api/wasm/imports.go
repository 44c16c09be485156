//go:build wasip1

package wasm

//go:wasmimport env abort
func hostAbort(message, file, line, column uint32)

//go:wasmimport index log.log
func hostLog(level, message uint32)

//go:wasmimport index store.get
func hostStoreGet(entity, id uint32) uint32

//go:wasmimport index store.set
func hostStoreSet(entity, id, data uint32)

//go:wasmimport index store.remove
func hostStoreRemove(entity, id uint32)

//go:wasmimport index ethereum.call
func hostEthereumCall(call uint32) uint32

//go:wasmimport index ethereum.encode
func hostEthereumEncode(token uint32) uint32

//go:wasmimport index ethereum.decode
func hostEthereumDecode(types, data uint32) uint32

//go:wasmimport index ipfs.cat
func hostIPFSCat(hash uint32) uint32

//go:wasmimport index ipfs.getBlock
func hostIPFSGetBlock(hash uint32) uint32

//go:wasmimport index ipfs.map
func hostIPFSMap(link, callback, userData, flags uint32)

//go:wasmimport index json.fromBytes
func hostJSONFromBytes(data uint32) uint32

//go:wasmimport index json.try_fromBytes
func hostJSONTryFromBytes(data uint32) uint32

//go:wasmimport index json.toI64
func hostJSONToI64(number uint32) int64

//go:wasmimport index json.toU64
func hostJSONToU64(number uint32) uint64

//go:wasmimport index json.toF64
func hostJSONToF64(number uint32) float64

//go:wasmimport index json.toBigInt
func hostJSONToBigInt(number uint32) uint32

//go:wasmimport index crypto.keccak256
func hostKeccak256(data uint32) uint32

//go:wasmimport index bigInt.plus
func hostBigIntPlus(x, y uint32) uint32

//go:wasmimport index bigInt.minus
func hostBigIntMinus(x, y uint32) uint32

//go:wasmimport index bigInt.times
func hostBigIntTimes(x, y uint32) uint32

//go:wasmimport index bigInt.dividedBy
func hostBigIntDividedBy(x, y uint32) uint32

//go:wasmimport index bigInt.dividedByDecimal
func hostBigIntDividedByDecimal(x, y uint32) uint32

//go:wasmimport index bigInt.mod
func hostBigIntMod(x, y uint32) uint32

//go:wasmimport index bigInt.pow
func hostBigIntPow(x, exp uint32) uint32

//go:wasmimport index bigInt.fromString
func hostBigIntFromString(s uint32) uint32

//go:wasmimport index bigInt.bitOr
func hostBigIntBitOr(x, y uint32) uint32

//go:wasmimport index bigInt.bitAnd
func hostBigIntBitAnd(x, y uint32) uint32

//go:wasmimport index bigInt.leftShift
func hostBigIntLeftShift(x, bits uint32) uint32

//go:wasmimport index bigInt.rightShift
func hostBigIntRightShift(x, bits uint32) uint32

//go:wasmimport index bigDecimal.plus
func hostBigDecimalPlus(x, y uint32) uint32

//go:wasmimport index bigDecimal.minus
func hostBigDecimalMinus(x, y uint32) uint32

//go:wasmimport index bigDecimal.times
func hostBigDecimalTimes(x, y uint32) uint32

//go:wasmimport index bigDecimal.dividedBy
func hostBigDecimalDividedBy(x, y uint32) uint32

//go:wasmimport index bigDecimal.equals
func hostBigDecimalEquals(x, y uint32) uint32

//go:wasmimport index bigDecimal.toString
func hostBigDecimalToString(x uint32) uint32

//go:wasmimport index bigDecimal.fromString
func hostBigDecimalFromString(s uint32) uint32

//go:wasmimport index typeConversion.bytesToString
func hostBytesToString(b uint32) uint32

//go:wasmimport index typeConversion.bytesToHex
func hostBytesToHex(b uint32) uint32

//go:wasmimport index typeConversion.bigIntToString
func hostBigIntToString(x uint32) uint32

//go:wasmimport index typeConversion.bigIntToHex
func hostBigIntToHex(x uint32) uint32

//go:wasmimport index typeConversion.stringToH160
func hostStringToH160(s uint32) uint32

//go:wasmimport index typeConversion.bytesToBase58
func hostBytesToBase58(b uint32) uint32

//go:wasmimport index dataSource.create
func hostDataSourceCreate(name, params uint32)

//go:wasmimport index dataSource.createWithContext
func hostDataSourceCreateWithContext(name, params, context uint32)

//go:wasmimport index dataSource.address
func hostDataSourceAddress() uint32

//go:wasmimport index dataSource.network
func hostDataSourceNetwork() uint32

//go:wasmimport index dataSource.context
func hostDataSourceContext() uint32

//go:wasmimport index ens.nameByHash
func hostENSNameByHash(hash uint32) uint32
