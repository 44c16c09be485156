package wasm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/woxQAQ/subgraph-abi/internal/ethabi"
	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/codec"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
	"github.com/woxQAQ/subgraph-abi/pkg/host"
)

// frame is the state one host import call works on.
type frame struct {
	ctx   context.Context
	arena *asc.Arena
	inst  *Instance
}

func (f *frame) env() Environment {
	if f.inst == nil {
		return Environment{}
	}
	return f.inst.env
}

func (f *frame) str(arg uint64) (string, error) {
	return codec.ReadString(f.arena, asc.Ptr(uint32(arg)))
}

func (f *frame) bytes(arg uint64) ([]byte, error) {
	return codec.ReadBytes(f.arena, asc.Ptr(uint32(arg)))
}

func (f *frame) bigInt(arg uint64) (*big.Int, error) {
	return codec.ReadBigInt(f.arena, asc.Ptr(uint32(arg)))
}

func (f *frame) bigDecimal(arg uint64) (graph.BigDecimal, error) {
	return codec.ReadBigDecimal(f.arena, asc.Ptr(uint32(arg)))
}

func (f *frame) strs(arg uint64) ([]string, error) {
	return codec.ReadArray(f.arena, asc.Ptr(uint32(arg)), asc.IndexArrayString, codec.ReadString)
}

func ptr(p asc.Ptr, err error) (uint64, error) {
	return uint64(p), err
}

func (f *frame) writeString(s string) (uint64, error) {
	h, err := codec.EncodeString(f.arena, s)
	return ptr(h.Ptr(), err)
}

func (f *frame) writeBytes(b []byte) (uint64, error) {
	return ptr(codec.WriteBytes(f.arena, b))
}

func (f *frame) writeBigInt(x *big.Int) (uint64, error) {
	return ptr(codec.WriteBigInt(f.arena, x))
}

func (f *frame) writeBigDecimal(d graph.BigDecimal) (uint64, error) {
	return ptr(codec.WriteBigDecimal(f.arena, d))
}

type hostFunc func(f *frame, args []uint64) (uint64, error)

// HostFunctions implements the graph-node host imports on top of the
// instance environment.
type HostFunctions struct {
	logger   *zap.Logger
	handlers map[host.Import]hostFunc
}

// NewHostFunctions creates a new host functions implementation.
func NewHostFunctions(logger *zap.Logger) *HostFunctions {
	h := &HostFunctions{logger: logger.With(zap.String("component", "wasm-host"))}
	h.handlers = map[host.Import]hostFunc{
		host.Abort:  h.abort,
		host.LogLog: h.log,

		host.StoreGet:    h.storeGet,
		host.StoreSet:    h.storeSet,
		host.StoreRemove: h.storeRemove,

		host.EthereumCall:   h.ethereumCall,
		host.EthereumEncode: h.ethereumEncode,
		host.EthereumDecode: h.ethereumDecode,

		host.IPFSCat:      h.ipfsFetch(false),
		host.IPFSGetBlock: h.ipfsFetch(true),
		host.IPFSMap:      h.ipfsMap,

		host.JSONFromBytes:    h.jsonFromBytes,
		host.JSONTryFromBytes: h.jsonTryFromBytes,
		host.JSONToI64:        h.jsonToI64,
		host.JSONToU64:        h.jsonToU64,
		host.JSONToF64:        h.jsonToF64,
		host.JSONToBigInt:     h.jsonToBigInt,

		host.CryptoKeccak256: h.keccak256,

		host.BigIntPlus:             bigIntOp(func(z, x, y *big.Int) error { z.Add(x, y); return nil }),
		host.BigIntMinus:            bigIntOp(func(z, x, y *big.Int) error { z.Sub(x, y); return nil }),
		host.BigIntTimes:            bigIntOp(func(z, x, y *big.Int) error { z.Mul(x, y); return nil }),
		host.BigIntDividedBy:        bigIntOp(divide((*big.Int).Quo)),
		host.BigIntMod:              bigIntOp(divide((*big.Int).Rem)),
		host.BigIntBitOr:            bigIntOp(func(z, x, y *big.Int) error { z.Or(x, y); return nil }),
		host.BigIntBitAnd:           bigIntOp(func(z, x, y *big.Int) error { z.And(x, y); return nil }),
		host.BigIntPow:              bigIntByU8(func(z, x *big.Int, n uint) { z.Exp(x, big.NewInt(int64(n)), nil) }),
		host.BigIntLeftShift:        bigIntByU8(func(z, x *big.Int, n uint) { z.Lsh(x, n) }),
		host.BigIntRightShift:       bigIntByU8(func(z, x *big.Int, n uint) { z.Rsh(x, n) }),
		host.BigIntDividedByDecimal: h.bigIntDividedByDecimal,
		host.BigIntFromString:       h.bigIntFromString,

		host.BigDecimalPlus:       bigDecimalOp(func(x, y graph.BigDecimal) (graph.BigDecimal, error) { return x.Add(y), nil }),
		host.BigDecimalMinus:      bigDecimalOp(func(x, y graph.BigDecimal) (graph.BigDecimal, error) { return x.Sub(y), nil }),
		host.BigDecimalTimes:      bigDecimalOp(func(x, y graph.BigDecimal) (graph.BigDecimal, error) { return x.Mul(y), nil }),
		host.BigDecimalDividedBy:  bigDecimalOp(graph.BigDecimal.Quo),
		host.BigDecimalEquals:     h.bigDecimalEquals,
		host.BigDecimalToString:   h.bigDecimalToString,
		host.BigDecimalFromString: h.bigDecimalFromString,

		host.TypeConversionBytesToString:  bytesToString(utf8String),
		host.TypeConversionBytesToHex:     bytesToString(func(b []byte) string { return "0x" + hex.EncodeToString(b) }),
		host.TypeConversionBytesToBase58:  bytesToString(base58.Encode),
		host.TypeConversionBigIntToString: bigIntToString(func(x *big.Int) string { return x.String() }),
		host.TypeConversionBigIntToHex:    bigIntToString(bigIntHex),
		host.TypeConversionStringToH160:   h.stringToH160,

		host.DataSourceCreate:            h.dataSourceCreate(false),
		host.DataSourceCreateWithContext: h.dataSourceCreate(true),
		host.DataSourceAddress:           h.dataSourceAddress,
		host.DataSourceNetwork:           h.dataSourceNetwork,
		host.DataSourceContext:           h.dataSourceContext,

		host.ENSNameByHash: h.ensNameByHash,
	}
	return h
}

// Call runs the implementation of imp.
func (h *HostFunctions) Call(f *frame, imp host.Import, args []uint64) (uint64, error) {
	fn, ok := h.handlers[imp]
	if !ok {
		return 0, fmt.Errorf("%s: %w", imp, host.ErrNotImplemented)
	}
	if len(args) != len(imp.Descriptor().Params) {
		return 0, fmt.Errorf("%s: got %d arguments, want %d", imp, len(args), len(imp.Descriptor().Params))
	}
	if f.arena == nil {
		return 0, errors.New("instance has no arena yet")
	}
	return fn(f, args)
}

func (h *HostFunctions) loggerFor(f *frame) *zap.Logger {
	if f.inst != nil {
		return f.inst.logger
	}
	return h.logger
}

// abort implements env.abort(message, fileName, line, column).
func (h *HostFunctions) abort(f *frame, args []uint64) (uint64, error) {
	abort := &GuestAbortError{Line: uint32(args[2]), Column: uint32(args[3])}
	msg, err := codec.ReadOptionalString(f.arena, asc.Ptr(uint32(args[0])))
	if err != nil {
		return 0, err
	}
	if msg != nil {
		abort.Message = *msg
	}
	file, err := codec.ReadOptionalString(f.arena, asc.Ptr(uint32(args[1])))
	if err != nil {
		return 0, err
	}
	if file != nil {
		abort.File = *file
	}
	h.loggerFor(f).Error("Mapping aborted",
		zap.String("message", abort.Message),
		zap.String("file", abort.File),
		zap.Uint32("line", abort.Line),
		zap.Uint32("column", abort.Column),
	)
	return 0, abort
}

// log implements log.log(level, message). A critical message aborts the
// handler.
func (h *HostFunctions) log(f *frame, args []uint64) (uint64, error) {
	msg, err := f.str(args[1])
	if err != nil {
		return 0, err
	}
	logger := h.loggerFor(f)
	switch host.Level(args[0]) {
	case host.LevelCritical:
		logger.Error(msg, zap.String("level", "critical"))
		return 0, &GuestAbortError{Message: msg}
	case host.LevelError:
		logger.Error(msg)
	case host.LevelWarning:
		logger.Warn(msg)
	case host.LevelInfo:
		logger.Info(msg)
	case host.LevelDebug:
		logger.Debug(msg)
	default:
		return 0, fmt.Errorf("invalid log level %d", args[0])
	}
	return 0, nil
}

func (h *HostFunctions) storeGet(f *frame, args []uint64) (uint64, error) {
	st := f.env().Store
	if st == nil {
		return 0, errors.New("no entity store configured")
	}
	entityType, err := f.str(args[0])
	if err != nil {
		return 0, err
	}
	id, err := f.str(args[1])
	if err != nil {
		return 0, err
	}
	e, ok, err := st.Get(f.ctx, entityType, id)
	if err != nil || !ok {
		return 0, err
	}
	return ptr(codec.WriteEntity(f.arena, e))
}

func (h *HostFunctions) storeSet(f *frame, args []uint64) (uint64, error) {
	st := f.env().Store
	if st == nil {
		return 0, errors.New("no entity store configured")
	}
	entityType, err := f.str(args[0])
	if err != nil {
		return 0, err
	}
	id, err := f.str(args[1])
	if err != nil {
		return 0, err
	}
	e, err := codec.ReadEntity(f.arena, asc.Ptr(uint32(args[2])))
	if err != nil {
		return 0, err
	}
	h.loggerFor(f).Debug("store.set", zap.String("entity", entityType), zap.String("id", id))
	return 0, st.Set(f.ctx, entityType, id, e)
}

func (h *HostFunctions) storeRemove(f *frame, args []uint64) (uint64, error) {
	st := f.env().Store
	if st == nil {
		return 0, errors.New("no entity store configured")
	}
	entityType, err := f.str(args[0])
	if err != nil {
		return 0, err
	}
	id, err := f.str(args[1])
	if err != nil {
		return 0, err
	}
	return 0, st.Remove(f.ctx, entityType, id)
}

func (h *HostFunctions) ethereumCall(f *frame, args []uint64) (uint64, error) {
	call, err := codec.ReadSmartContractCall(f.arena, asc.Ptr(uint32(args[0])))
	if err != nil {
		return 0, err
	}
	resolve := f.env().EthCall
	if resolve == nil {
		h.loggerFor(f).Debug("ethereum.call has no resolver, treating as reverted",
			zap.String("function", call.FunctionSignature))
		return 0, nil
	}
	tokens, ok, err := resolve(f.ctx, call)
	if err != nil || !ok {
		return 0, err
	}
	arr, err := codec.EncodeArrayOf(f.arena, asc.IndexArrayEthereumValue, tokens, codec.WriteToken)
	return ptr(arr.Ptr(), err)
}

func (h *HostFunctions) ethereumEncode(f *frame, args []uint64) (uint64, error) {
	tok, err := codec.ReadToken(f.arena, asc.Ptr(uint32(args[0])))
	if err != nil {
		return 0, err
	}
	data, err := ethabi.Encode(tok)
	if err != nil {
		h.loggerFor(f).Debug("ethereum.encode failed", zap.Error(err))
		return 0, nil
	}
	return f.writeBytes(data)
}

func (h *HostFunctions) ethereumDecode(f *frame, args []uint64) (uint64, error) {
	types, err := f.str(args[0])
	if err != nil {
		return 0, err
	}
	data, err := f.bytes(args[1])
	if err != nil {
		return 0, err
	}
	tok, err := ethabi.Decode(types, data)
	if err != nil {
		h.loggerFor(f).Debug("ethereum.decode failed", zap.String("types", types), zap.Error(err))
		return 0, nil
	}
	return ptr(codec.WriteToken(f.arena, tok))
}

func (h *HostFunctions) ipfsFetch(block bool) hostFunc {
	return func(f *frame, args []uint64) (uint64, error) {
		hash, err := f.str(args[0])
		if err != nil {
			return 0, err
		}
		client := f.env().IPFS
		if client == nil {
			return 0, nil
		}
		fetch := client.Cat
		if block {
			fetch = client.GetBlock
		}
		data, ok, err := fetch(f.ctx, hash)
		if err != nil {
			h.loggerFor(f).Warn("IPFS fetch failed", zap.String("hash", hash), zap.Error(err))
			return 0, nil
		}
		if !ok {
			return 0, nil
		}
		return f.writeBytes(data)
	}
}

// ipfsMap implements ipfs.map(link, callback, userData, flags). The file is
// read as newline separated JSON values. callback runs once per value, with
// the value and userData, in a fresh instance of the calling module; data
// sources it creates are credited to the caller.
func (h *HostFunctions) ipfsMap(f *frame, args []uint64) (uint64, error) {
	link, err := f.str(args[0])
	if err != nil {
		return 0, err
	}
	callback, err := f.str(args[1])
	if err != nil {
		return 0, err
	}
	var userData graph.Value = graph.Null{}
	if p := asc.Ptr(uint32(args[2])); p != 0 {
		if userData, err = codec.ReadValue(f.arena, p); err != nil {
			return 0, err
		}
	}
	flags, err := f.strs(args[3])
	if err != nil {
		return 0, err
	}
	if len(flags) != 1 || flags[0] != "json" {
		return 0, fmt.Errorf("ipfs.map: unsupported flags %v", flags)
	}
	if f.inst == nil {
		return 0, errors.New("ipfs.map: no mapping instance to call back")
	}
	client := f.env().IPFS
	if client == nil {
		return 0, errors.New("ipfs.map: no IPFS client configured")
	}
	data, ok, err := client.Cat(f.ctx, link)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("ipfs.map: %s not found", link)
	}

	child, err := f.inst.spawn(f.ctx)
	if err != nil {
		return 0, fmt.Errorf("ipfs.map: %w", err)
	}
	defer child.Close(f.ctx)

	var n int
	err = child.exclusive(f.ctx, func() error {
		up, err := codec.WriteValue(child.arena, userData)
		if err != nil {
			return err
		}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 64*1024), len(data)+1)
		for line := 1; scanner.Scan(); line++ {
			text := bytes.TrimSpace(scanner.Bytes())
			if len(text) == 0 {
				continue
			}
			v, err := graph.ParseJSON(text)
			if err != nil {
				return fmt.Errorf("%s line %d: %w", link, line, err)
			}
			p, err := codec.WriteJSON(child.arena, v)
			if err != nil {
				return err
			}
			if err := child.call(f.ctx, callback, uint64(p), uint64(up)); err != nil {
				return fmt.Errorf("callback %s: %w", callback, err)
			}
			n++
		}
		return scanner.Err()
	})
	for _, ds := range child.CreatedDataSources() {
		f.inst.recordCreated(ds)
	}
	if err != nil {
		return 0, fmt.Errorf("ipfs.map: %w", err)
	}
	h.loggerFor(f).Debug("ipfs.map finished", zap.String("link", link), zap.String("callback", callback), zap.Int("values", n))
	return 0, nil
}

func (h *HostFunctions) jsonFromBytes(f *frame, args []uint64) (uint64, error) {
	data, err := f.bytes(args[0])
	if err != nil {
		return 0, err
	}
	v, err := graph.ParseJSON(data)
	if err != nil {
		return 0, err
	}
	return ptr(codec.WriteJSON(f.arena, v))
}

func (h *HostFunctions) jsonTryFromBytes(f *frame, args []uint64) (uint64, error) {
	data, err := f.bytes(args[0])
	if err != nil {
		return 0, err
	}
	v, perr := graph.ParseJSON(data)
	res, err := codec.EncodeJSONResult(f.arena, v, perr == nil)
	return ptr(res.Ptr(), err)
}

func (h *HostFunctions) jsonToI64(f *frame, args []uint64) (uint64, error) {
	s, err := f.str(args[0])
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	return uint64(v), err
}

func (h *HostFunctions) jsonToU64(f *frame, args []uint64) (uint64, error) {
	s, err := f.str(args[0])
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(s, 10, 64)
}

func (h *HostFunctions) jsonToF64(f *frame, args []uint64) (uint64, error) {
	s, err := f.str(args[0])
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	return math.Float64bits(v), err
}

func (h *HostFunctions) jsonToBigInt(f *frame, args []uint64) (uint64, error) {
	s, err := f.str(args[0])
	if err != nil {
		return 0, err
	}
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return f.writeBigInt(x)
}

func (h *HostFunctions) keccak256(f *frame, args []uint64) (uint64, error) {
	data, err := f.bytes(args[0])
	if err != nil {
		return 0, err
	}
	d := sha3.NewLegacyKeccak256()
	d.Write(data)
	return f.writeBytes(d.Sum(nil))
}

func bigIntOp(op func(z, x, y *big.Int) error) hostFunc {
	return func(f *frame, args []uint64) (uint64, error) {
		x, err := f.bigInt(args[0])
		if err != nil {
			return 0, err
		}
		y, err := f.bigInt(args[1])
		if err != nil {
			return 0, err
		}
		z := new(big.Int)
		if err := op(z, x, y); err != nil {
			return 0, err
		}
		return f.writeBigInt(z)
	}
}

func divide(op func(z, x, y *big.Int) *big.Int) func(z, x, y *big.Int) error {
	return func(z, x, y *big.Int) error {
		if y.Sign() == 0 {
			return errors.New("division by zero")
		}
		op(z, x, y)
		return nil
	}
}

func bigIntByU8(op func(z, x *big.Int, n uint)) hostFunc {
	return func(f *frame, args []uint64) (uint64, error) {
		x, err := f.bigInt(args[0])
		if err != nil {
			return 0, err
		}
		z := new(big.Int)
		op(z, x, uint(uint8(args[1])))
		return f.writeBigInt(z)
	}
}

func (h *HostFunctions) bigIntDividedByDecimal(f *frame, args []uint64) (uint64, error) {
	x, err := f.bigInt(args[0])
	if err != nil {
		return 0, err
	}
	y, err := f.bigDecimal(args[1])
	if err != nil {
		return 0, err
	}
	q, err := graph.BigDecimalFromInt(x).Quo(y)
	if err != nil {
		return 0, err
	}
	return f.writeBigDecimal(q)
}

func (h *HostFunctions) bigIntFromString(f *frame, args []uint64) (uint64, error) {
	s, err := f.str(args[0])
	if err != nil {
		return 0, err
	}
	x, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, fmt.Errorf("%q is not a decimal integer", s)
	}
	return f.writeBigInt(x)
}

func bigDecimalOp(op func(x, y graph.BigDecimal) (graph.BigDecimal, error)) hostFunc {
	return func(f *frame, args []uint64) (uint64, error) {
		x, err := f.bigDecimal(args[0])
		if err != nil {
			return 0, err
		}
		y, err := f.bigDecimal(args[1])
		if err != nil {
			return 0, err
		}
		z, err := op(x, y)
		if err != nil {
			return 0, err
		}
		return f.writeBigDecimal(z)
	}
}

func (h *HostFunctions) bigDecimalEquals(f *frame, args []uint64) (uint64, error) {
	x, err := f.bigDecimal(args[0])
	if err != nil {
		return 0, err
	}
	y, err := f.bigDecimal(args[1])
	if err != nil {
		return 0, err
	}
	if x.Equal(y) {
		return 1, nil
	}
	return 0, nil
}

func (h *HostFunctions) bigDecimalToString(f *frame, args []uint64) (uint64, error) {
	x, err := f.bigDecimal(args[0])
	if err != nil {
		return 0, err
	}
	return f.writeString(x.String())
}

func (h *HostFunctions) bigDecimalFromString(f *frame, args []uint64) (uint64, error) {
	s, err := f.str(args[0])
	if err != nil {
		return 0, err
	}
	d, err := graph.ParseBigDecimal(s)
	if err != nil {
		return 0, err
	}
	return f.writeBigDecimal(d)
}

func bytesToString(conv func([]byte) string) hostFunc {
	return func(f *frame, args []uint64) (uint64, error) {
		b, err := f.bytes(args[0])
		if err != nil {
			return 0, err
		}
		return f.writeString(conv(b))
	}
}

func bigIntToString(conv func(*big.Int) string) hostFunc {
	return func(f *frame, args []uint64) (uint64, error) {
		x, err := f.bigInt(args[0])
		if err != nil {
			return 0, err
		}
		return f.writeString(conv(x))
	}
}

// utf8String decodes b lossily and drops trailing NUL padding.
func utf8String(b []byte) string {
	return strings.TrimRight(strings.ToValidUTF8(string(b), "\uFFFD"), "\x00")
}

// bigIntHex renders x as 0x-prefixed hex of its magnitude, with a leading
// minus for negative values.
func bigIntHex(x *big.Int) string {
	if x.Sign() < 0 {
		return "-0x" + new(big.Int).Neg(x).Text(16)
	}
	return "0x" + x.Text(16)
}

func (h *HostFunctions) stringToH160(f *frame, args []uint64) (uint64, error) {
	s, err := f.str(args[0])
	if err != nil {
		return 0, err
	}
	addr, err := graph.ParseAddress(s)
	if err != nil {
		return 0, err
	}
	return ptr(codec.WriteAddress(f.arena, addr))
}

func (h *HostFunctions) dataSourceCreate(withContext bool) hostFunc {
	return func(f *frame, args []uint64) (uint64, error) {
		name, err := f.str(args[0])
		if err != nil {
			return 0, err
		}
		params, err := f.strs(args[1])
		if err != nil {
			return 0, err
		}
		ds := CreatedDataSource{Template: name, Params: params}
		if withContext {
			if ds.Context, err = codec.ReadEntity(f.arena, asc.Ptr(uint32(args[2]))); err != nil {
				return 0, err
			}
		}
		h.loggerFor(f).Info("Data source created from template",
			zap.String("template", name),
			zap.Strings("params", params),
		)
		if f.inst != nil {
			f.inst.recordCreated(ds)
		}
		return 0, nil
	}
}

func (h *HostFunctions) dataSourceAddress(f *frame, _ []uint64) (uint64, error) {
	return ptr(codec.WriteAddress(f.arena, f.env().DataSource.Address))
}

func (h *HostFunctions) dataSourceNetwork(f *frame, _ []uint64) (uint64, error) {
	return f.writeString(f.env().DataSource.Network)
}

func (h *HostFunctions) dataSourceContext(f *frame, _ []uint64) (uint64, error) {
	ctx := f.env().DataSource.Context
	if ctx == nil {
		ctx = graph.NewEntity()
	}
	return ptr(codec.WriteEntity(f.arena, ctx))
}

func (h *HostFunctions) ensNameByHash(f *frame, args []uint64) (uint64, error) {
	hash, err := f.str(args[0])
	if err != nil {
		return 0, err
	}
	name, ok := f.env().ENS[hash]
	if !ok {
		return 0, nil
	}
	return f.writeString(name)
}
