//go:build wasip1

package wasm

import (
	"fmt"
	"math"

	"github.com/woxQAQ/subgraph-abi/pkg/host"
)

// Transport calls the imports the module was linked against. Arguments are
// truncated to the widths the import table declares.
type Transport struct{}

func u32(v uint64) uint32 { return uint32(v) }

func ret(v uint32) (uint64, error) { return uint64(v), nil }

// Invoke implements host.Transport.
func (Transport) Invoke(imp host.Import, args ...uint64) (uint64, error) {
	a := func(i int) uint32 {
		if i < len(args) {
			return u32(args[i])
		}
		return 0
	}
	switch imp {
	case host.Abort:
		hostAbort(a(0), a(1), a(2), a(3))
	case host.LogLog:
		hostLog(a(0), a(1))
	case host.StoreGet:
		return ret(hostStoreGet(a(0), a(1)))
	case host.StoreSet:
		hostStoreSet(a(0), a(1), a(2))
	case host.StoreRemove:
		hostStoreRemove(a(0), a(1))
	case host.EthereumCall:
		return ret(hostEthereumCall(a(0)))
	case host.EthereumEncode:
		return ret(hostEthereumEncode(a(0)))
	case host.EthereumDecode:
		return ret(hostEthereumDecode(a(0), a(1)))
	case host.IPFSCat:
		return ret(hostIPFSCat(a(0)))
	case host.IPFSGetBlock:
		return ret(hostIPFSGetBlock(a(0)))
	case host.IPFSMap:
		hostIPFSMap(a(0), a(1), a(2), a(3))
	case host.JSONFromBytes:
		return ret(hostJSONFromBytes(a(0)))
	case host.JSONTryFromBytes:
		return ret(hostJSONTryFromBytes(a(0)))
	case host.JSONToI64:
		return uint64(hostJSONToI64(a(0))), nil
	case host.JSONToU64:
		return hostJSONToU64(a(0)), nil
	case host.JSONToF64:
		return math.Float64bits(hostJSONToF64(a(0))), nil
	case host.JSONToBigInt:
		return ret(hostJSONToBigInt(a(0)))
	case host.CryptoKeccak256:
		return ret(hostKeccak256(a(0)))
	case host.BigIntPlus:
		return ret(hostBigIntPlus(a(0), a(1)))
	case host.BigIntMinus:
		return ret(hostBigIntMinus(a(0), a(1)))
	case host.BigIntTimes:
		return ret(hostBigIntTimes(a(0), a(1)))
	case host.BigIntDividedBy:
		return ret(hostBigIntDividedBy(a(0), a(1)))
	case host.BigIntDividedByDecimal:
		return ret(hostBigIntDividedByDecimal(a(0), a(1)))
	case host.BigIntMod:
		return ret(hostBigIntMod(a(0), a(1)))
	case host.BigIntPow:
		return ret(hostBigIntPow(a(0), a(1)))
	case host.BigIntFromString:
		return ret(hostBigIntFromString(a(0)))
	case host.BigIntBitOr:
		return ret(hostBigIntBitOr(a(0), a(1)))
	case host.BigIntBitAnd:
		return ret(hostBigIntBitAnd(a(0), a(1)))
	case host.BigIntLeftShift:
		return ret(hostBigIntLeftShift(a(0), a(1)))
	case host.BigIntRightShift:
		return ret(hostBigIntRightShift(a(0), a(1)))
	case host.BigDecimalPlus:
		return ret(hostBigDecimalPlus(a(0), a(1)))
	case host.BigDecimalMinus:
		return ret(hostBigDecimalMinus(a(0), a(1)))
	case host.BigDecimalTimes:
		return ret(hostBigDecimalTimes(a(0), a(1)))
	case host.BigDecimalDividedBy:
		return ret(hostBigDecimalDividedBy(a(0), a(1)))
	case host.BigDecimalEquals:
		return ret(hostBigDecimalEquals(a(0), a(1)))
	case host.BigDecimalToString:
		return ret(hostBigDecimalToString(a(0)))
	case host.BigDecimalFromString:
		return ret(hostBigDecimalFromString(a(0)))
	case host.TypeConversionBytesToString:
		return ret(hostBytesToString(a(0)))
	case host.TypeConversionBytesToHex:
		return ret(hostBytesToHex(a(0)))
	case host.TypeConversionBigIntToString:
		return ret(hostBigIntToString(a(0)))
	case host.TypeConversionBigIntToHex:
		return ret(hostBigIntToHex(a(0)))
	case host.TypeConversionStringToH160:
		return ret(hostStringToH160(a(0)))
	case host.TypeConversionBytesToBase58:
		return ret(hostBytesToBase58(a(0)))
	case host.DataSourceCreate:
		hostDataSourceCreate(a(0), a(1))
	case host.DataSourceCreateWithContext:
		hostDataSourceCreateWithContext(a(0), a(1), a(2))
	case host.DataSourceAddress:
		return ret(hostDataSourceAddress())
	case host.DataSourceNetwork:
		return ret(hostDataSourceNetwork())
	case host.DataSourceContext:
		return ret(hostDataSourceContext())
	case host.ENSNameByHash:
		return ret(hostENSNameByHash(a(0)))
	default:
		return 0, fmt.Errorf("%s: %w", imp, host.ErrNotImplemented)
	}
	return 0, nil
}
