package wasm

import (
	"context"
	"encoding/hex"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/subgraph-abi/internal/ipfs"
	"github.com/woxQAQ/subgraph-abi/internal/store"
	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/codec"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
	"github.com/woxQAQ/subgraph-abi/pkg/host"
)

type hostFixture struct {
	t     *testing.T
	h     *HostFunctions
	f     *frame
	store *store.MemoryStore
}

func newHostFixture(t *testing.T, env Environment) *hostFixture {
	t.Helper()
	a, err := asc.NewArena(asc.NewLinearMemory(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	st := store.NewMemoryStore()
	if env.Store == nil {
		env.Store = st
	}
	logger := zaptest.NewLogger(t)
	inst := &Instance{ID: "test", logger: logger, env: env, version: asc.Latest, arena: a}
	return &hostFixture{
		t:     t,
		h:     NewHostFunctions(logger),
		f:     &frame{ctx: context.Background(), arena: a, inst: inst},
		store: st,
	}
}

func (fx *hostFixture) call(imp host.Import, args ...uint64) (uint64, error) {
	return fx.h.Call(fx.f, imp, args)
}

func (fx *hostFixture) mustCall(imp host.Import, args ...uint64) uint64 {
	fx.t.Helper()
	ret, err := fx.call(imp, args...)
	if err != nil {
		fx.t.Fatalf("%s failed: %v", imp, err)
	}
	return ret
}

func (fx *hostFixture) str(s string) uint64 {
	fx.t.Helper()
	h, err := codec.EncodeString(fx.f.arena, s)
	if err != nil {
		fx.t.Fatal(err)
	}
	return uint64(h.Ptr())
}

func (fx *hostFixture) bytes(b []byte) uint64 {
	fx.t.Helper()
	p, err := codec.WriteBytes(fx.f.arena, b)
	if err != nil {
		fx.t.Fatal(err)
	}
	return uint64(p)
}

func (fx *hostFixture) bigInt(x int64) uint64 {
	fx.t.Helper()
	p, err := codec.WriteBigInt(fx.f.arena, big.NewInt(x))
	if err != nil {
		fx.t.Fatal(err)
	}
	return uint64(p)
}

func (fx *hostFixture) readString(ret uint64) string {
	fx.t.Helper()
	s, err := codec.ReadString(fx.f.arena, asc.Ptr(uint32(ret)))
	if err != nil {
		fx.t.Fatal(err)
	}
	return s
}

func (fx *hostFixture) readBigInt(ret uint64) *big.Int {
	fx.t.Helper()
	x, err := codec.ReadBigInt(fx.f.arena, asc.Ptr(uint32(ret)))
	if err != nil {
		fx.t.Fatal(err)
	}
	return x
}

func TestHostStore(t *testing.T) {
	fx := newHostFixture(t, Environment{})
	entity := graph.NewEntity(
		graph.Field{Name: "id", Value: graph.String("0x1")},
		graph.Field{Name: "count", Value: graph.Int(3)},
	)
	ep, err := codec.WriteEntity(fx.f.arena, entity)
	if err != nil {
		t.Fatal(err)
	}

	if ret := fx.mustCall(host.StoreGet, fx.str("Counter"), fx.str("0x1")); ret != 0 {
		t.Fatalf("store.get before set = %#x, want null", ret)
	}
	fx.mustCall(host.StoreSet, fx.str("Counter"), fx.str("0x1"), uint64(ep))

	ret := fx.mustCall(host.StoreGet, fx.str("Counter"), fx.str("0x1"))
	got, err := codec.ReadEntity(fx.f.arena, asc.Ptr(uint32(ret)))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(entity) {
		t.Errorf("store.get returned a different entity")
	}

	fx.mustCall(host.StoreRemove, fx.str("Counter"), fx.str("0x1"))
	if _, ok, _ := fx.store.Get(context.Background(), "Counter", "0x1"); ok {
		t.Error("entity still stored after store.remove")
	}
}

func TestHostAbort(t *testing.T) {
	fx := newHostFixture(t, Environment{})
	_, err := fx.call(host.Abort, fx.str("boom"), fx.str("mapping.go"), 12, 4)

	var abort *GuestAbortError
	if !errors.As(err, &abort) {
		t.Fatalf("abort returned %v, want GuestAbortError", err)
	}
	want := &GuestAbortError{Message: "boom", File: "mapping.go", Line: 12, Column: 4}
	if diff := cmp.Diff(want, abort); diff != "" {
		t.Errorf("abort mismatch (-want +got):\n%s", diff)
	}
	if abort.Error() != "mapping aborted at mapping.go:12:4: boom" {
		t.Errorf("Error() = %q", abort.Error())
	}

	_, err = fx.call(host.Abort, fx.str("no file"), 0, 0, 0)
	if !errors.As(err, &abort) || abort.File != "" || abort.Error() != "mapping aborted: no file" {
		t.Errorf("abort with null file = %v", err)
	}
}

func TestHostLog(t *testing.T) {
	fx := newHostFixture(t, Environment{})
	for _, level := range []host.Level{host.LevelError, host.LevelWarning, host.LevelInfo, host.LevelDebug} {
		if _, err := fx.call(host.LogLog, uint64(level), fx.str("hello")); err != nil {
			t.Errorf("log.log at %s failed: %v", level, err)
		}
	}

	_, err := fx.call(host.LogLog, uint64(host.LevelCritical), fx.str("fatal"))
	var abort *GuestAbortError
	if !errors.As(err, &abort) || abort.Message != "fatal" {
		t.Errorf("critical log = %v, want abort", err)
	}

	if _, err := fx.call(host.LogLog, 9, fx.str("x")); err == nil {
		t.Error("log.log accepted level 9")
	}
}

func TestHostBigInt(t *testing.T) {
	fx := newHostFixture(t, Environment{})
	tests := []struct {
		imp  host.Import
		x, y int64
		want int64
	}{
		{host.BigIntPlus, 2, 3, 5},
		{host.BigIntMinus, 2, 3, -1},
		{host.BigIntTimes, -4, 3, -12},
		{host.BigIntDividedBy, -7, 2, -3},
		{host.BigIntMod, -7, 2, -1},
		{host.BigIntBitOr, 12, 3, 15},
		{host.BigIntBitAnd, 12, 6, 4},
	}
	for _, tt := range tests {
		ret := fx.mustCall(tt.imp, fx.bigInt(tt.x), fx.bigInt(tt.y))
		if got := fx.readBigInt(ret); got.Int64() != tt.want {
			t.Errorf("%s(%d, %d) = %v, want %d", tt.imp, tt.x, tt.y, got, tt.want)
		}
	}

	if got := fx.readBigInt(fx.mustCall(host.BigIntPow, fx.bigInt(3), 4)); got.Int64() != 81 {
		t.Errorf("pow(3, 4) = %v", got)
	}
	if got := fx.readBigInt(fx.mustCall(host.BigIntLeftShift, fx.bigInt(1), 10)); got.Int64() != 1024 {
		t.Errorf("leftShift(1, 10) = %v", got)
	}
	if got := fx.readBigInt(fx.mustCall(host.BigIntRightShift, fx.bigInt(-5), 1)); got.Int64() != -3 {
		t.Errorf("rightShift(-5, 1) = %v, want -3", got)
	}
	if got := fx.readBigInt(fx.mustCall(host.BigIntFromString, fx.str("-123456789012345678901234567890"))); got.String() != "-123456789012345678901234567890" {
		t.Errorf("fromString = %v", got)
	}

	if _, err := fx.call(host.BigIntDividedBy, fx.bigInt(1), fx.bigInt(0)); err == nil {
		t.Error("dividedBy zero succeeded")
	}
	if _, err := fx.call(host.BigIntFromString, fx.str("12a")); err == nil {
		t.Error("fromString accepted 12a")
	}
}

func TestHostBigDecimal(t *testing.T) {
	fx := newHostFixture(t, Environment{})
	dec := func(s string) uint64 {
		p, err := codec.WriteBigDecimal(fx.f.arena, graph.MustParseBigDecimal(s))
		if err != nil {
			t.Fatal(err)
		}
		return uint64(p)
	}
	read := func(ret uint64) string {
		d, err := codec.ReadBigDecimal(fx.f.arena, asc.Ptr(uint32(ret)))
		if err != nil {
			t.Fatal(err)
		}
		return d.String()
	}

	if got := read(fx.mustCall(host.BigDecimalPlus, dec("1.5"), dec("2.25"))); got != "3.75" {
		t.Errorf("plus = %s", got)
	}
	if got := read(fx.mustCall(host.BigDecimalDividedBy, dec("1"), dec("4"))); got != "0.25" {
		t.Errorf("dividedBy = %s", got)
	}
	if got := fx.mustCall(host.BigDecimalEquals, dec("1.50"), dec("1.5")); got != 1 {
		t.Errorf("equals(1.50, 1.5) = %d", got)
	}
	if got := fx.readString(fx.mustCall(host.BigDecimalToString, dec("0.125"))); got != "0.125" {
		t.Errorf("toString = %s", got)
	}
	if got := read(fx.mustCall(host.BigDecimalFromString, fx.str("-2.5"))); got != "-2.5" {
		t.Errorf("fromString = %s", got)
	}

	ret := fx.mustCall(host.BigIntDividedByDecimal, fx.bigInt(3), dec("2"))
	if got := read(ret); got != "1.5" {
		t.Errorf("dividedByDecimal = %s", got)
	}
}

func TestHostBigDecimalExponentRange(t *testing.T) {
	fx := newHostFixture(t, Environment{})

	if _, err := fx.call(host.BigDecimalFromString, fx.str("1e1000000000000")); !errors.Is(err, graph.ErrExponentRange) {
		t.Errorf("fromString(1e1000000000000) error = %v, want ErrExponentRange", err)
	}

	far := graph.MustParseBigDecimal("1e6000")
	p, err := codec.WriteBigDecimal(fx.f.arena, far)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.call(host.BigDecimalTimes, uint64(p), uint64(p)); !errors.Is(err, asc.ErrEncoding) {
		t.Errorf("times(1e6000, 1e6000) error = %v, want an encoding error", err)
	}
	if got := fx.mustCall(host.BigDecimalEquals, uint64(p), uint64(p)); got != 1 {
		t.Errorf("equals(1e6000, 1e6000) = %d", got)
	}
}

func TestHostTypeConversion(t *testing.T) {
	fx := newHostFixture(t, Environment{})

	if got := fx.readString(fx.mustCall(host.TypeConversionBytesToHex, fx.bytes([]byte{0xde, 0xad}))); got != "0xdead" {
		t.Errorf("bytesToHex = %s", got)
	}
	if got := fx.readString(fx.mustCall(host.TypeConversionBytesToString, fx.bytes([]byte("abc\x00\x00")))); got != "abc" {
		t.Errorf("bytesToString = %q", got)
	}
	if got := fx.readString(fx.mustCall(host.TypeConversionBytesToBase58, fx.bytes([]byte("hello")))); got != "Cn8eVZg" {
		t.Errorf("bytesToBase58 = %s", got)
	}
	if got := fx.readString(fx.mustCall(host.TypeConversionBigIntToString, fx.bigInt(-42))); got != "-42" {
		t.Errorf("bigIntToString = %s", got)
	}
	if got := fx.readString(fx.mustCall(host.TypeConversionBigIntToHex, fx.bigInt(255))); got != "0xff" {
		t.Errorf("bigIntToHex = %s", got)
	}

	const addr = "0x2e645469f354bb4f5c8a05b3b30a929361cf77ec"
	ret := fx.mustCall(host.TypeConversionStringToH160, fx.str(addr))
	got, err := codec.ReadAddress(fx.f.arena, asc.Ptr(uint32(ret)))
	if err != nil {
		t.Fatal(err)
	}
	if got.Hex() != addr {
		t.Errorf("stringToH160 = %s", got.Hex())
	}
	if _, err := fx.call(host.TypeConversionStringToH160, fx.str("0x12")); err == nil {
		t.Error("stringToH160 accepted a short address")
	}
}

func TestHostKeccak256(t *testing.T) {
	fx := newHostFixture(t, Environment{})
	ret := fx.mustCall(host.CryptoKeccak256, fx.bytes(nil))
	got, err := codec.ReadBytes(fx.f.arena, asc.Ptr(uint32(ret)))
	if err != nil {
		t.Fatal(err)
	}
	const want = "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"
	if hex.EncodeToString(got) != want {
		t.Errorf("keccak256(\"\") = %x", got)
	}
}

func TestHostJSON(t *testing.T) {
	fx := newHostFixture(t, Environment{})

	ret := fx.mustCall(host.JSONTryFromBytes, fx.bytes([]byte(`{"a":[1,"x"]}`)))
	v, ok, err := codec.ReadJSONResult(fx.f.arena, asc.Ptr(uint32(ret)))
	if err != nil || !ok {
		t.Fatalf("try_fromBytes = %v, %v", ok, err)
	}
	want := graph.JSONObject{{Key: "a", Value: graph.JSONArray{graph.JSONNumber("1"), graph.JSONString("x")}}}
	if !graph.JSONEqual(v, want) {
		t.Errorf("try_fromBytes value = %v", v)
	}

	ret = fx.mustCall(host.JSONTryFromBytes, fx.bytes([]byte(`{"a":`)))
	if _, ok, err := codec.ReadJSONResult(fx.f.arena, asc.Ptr(uint32(ret))); err != nil || ok {
		t.Errorf("try_fromBytes of malformed input = %v, %v, want error side", ok, err)
	}
	if _, err := fx.call(host.JSONFromBytes, fx.bytes([]byte(`nope`))); err == nil {
		t.Error("fromBytes accepted malformed input")
	}

	if got := fx.mustCall(host.JSONToI64, fx.str("-9")); int64(got) != -9 {
		t.Errorf("toI64 = %d", int64(got))
	}
	if got := fx.mustCall(host.JSONToU64, fx.str("18446744073709551615")); got != math.MaxUint64 {
		t.Errorf("toU64 = %d", got)
	}
	if got := fx.mustCall(host.JSONToF64, fx.str("1.5")); math.Float64frombits(got) != 1.5 {
		t.Errorf("toF64 = %v", math.Float64frombits(got))
	}
	big := fx.readBigInt(fx.mustCall(host.JSONToBigInt, fx.str("100000000000000000000")))
	if big.String() != "100000000000000000000" {
		t.Errorf("toBigInt = %v", big)
	}
	if _, err := fx.call(host.JSONToI64, fx.str("1.5")); err == nil {
		t.Error("toI64 accepted 1.5")
	}
}

func TestHostEthereum(t *testing.T) {
	reverted := graph.MustParseAddress("0x0000000000000000000000000000000000000bad")
	fx := newHostFixture(t, Environment{
		EthCall: func(_ context.Context, c *graph.SmartContractCall) ([]graph.Token, bool, error) {
			if c.ContractAddress == reverted {
				return nil, false, nil
			}
			return []graph.Token{graph.UintToken{Int: big.NewInt(1000)}}, true, nil
		},
	})
	call := func(addr graph.Address) uint64 {
		h, err := codec.EncodeSmartContractCall(fx.f.arena, &graph.SmartContractCall{
			ContractName:      "ERC20",
			ContractAddress:   addr,
			FunctionName:      "totalSupply",
			FunctionSignature: "totalSupply():(uint256)",
		})
		if err != nil {
			t.Fatal(err)
		}
		return uint64(h.Ptr())
	}

	ret := fx.mustCall(host.EthereumCall, call(graph.MustParseAddress("0x0000000000000000000000000000000000000001")))
	tokens, err := codec.ReadArray(fx.f.arena, asc.Ptr(uint32(ret)), asc.IndexArrayEthereumValue, codec.ReadToken)
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 1 || !graph.TokensEqual(tokens[0], graph.UintToken{Int: big.NewInt(1000)}) {
		t.Errorf("ethereum.call = %v", tokens)
	}
	if ret := fx.mustCall(host.EthereumCall, call(reverted)); ret != 0 {
		t.Errorf("reverted ethereum.call = %#x, want null", ret)
	}

	tok := graph.TupleToken{graph.BoolToken(true), graph.StringToken("x")}
	tp, err := codec.WriteToken(fx.f.arena, tok)
	if err != nil {
		t.Fatal(err)
	}
	enc := fx.mustCall(host.EthereumEncode, uint64(tp))
	if enc == 0 {
		t.Fatal("ethereum.encode returned null")
	}
	dec := fx.mustCall(host.EthereumDecode, fx.str("(bool,string)"), enc)
	got, err := codec.ReadToken(fx.f.arena, asc.Ptr(uint32(dec)))
	if err != nil {
		t.Fatal(err)
	}
	if !graph.TokensEqual(got, tok) {
		t.Errorf("decode(encode(x)) = %s", graph.FormatToken(got))
	}
	if ret := fx.mustCall(host.EthereumDecode, fx.str("uint256"), fx.bytes([]byte{1})); ret != 0 {
		t.Errorf("decode of short data = %#x, want null", ret)
	}
}

func TestHostEthereumCallWithoutResolver(t *testing.T) {
	fx := newHostFixture(t, Environment{})
	h, err := codec.EncodeSmartContractCall(fx.f.arena, &graph.SmartContractCall{FunctionName: "f", FunctionSignature: "f()"})
	if err != nil {
		t.Fatal(err)
	}
	if ret := fx.mustCall(host.EthereumCall, uint64(h.Ptr())); ret != 0 {
		t.Errorf("ethereum.call without resolver = %#x, want null", ret)
	}
}

func TestHostIPFS(t *testing.T) {
	fx := newHostFixture(t, Environment{IPFS: ipfs.Static{"QmA": []byte("content")}})

	ret := fx.mustCall(host.IPFSCat, fx.str("QmA"))
	got, err := codec.ReadBytes(fx.f.arena, asc.Ptr(uint32(ret)))
	if err != nil || string(got) != "content" {
		t.Errorf("ipfs.cat = %q, %v", got, err)
	}
	if ret := fx.mustCall(host.IPFSGetBlock, fx.str("QmMissing")); ret != 0 {
		t.Errorf("ipfs.getBlock of missing block = %#x, want null", ret)
	}

	noIPFS := newHostFixture(t, Environment{})
	if ret := noIPFS.mustCall(host.IPFSCat, noIPFS.str("QmA")); ret != 0 {
		t.Errorf("ipfs.cat without client = %#x, want null", ret)
	}
}

func TestHostDataSource(t *testing.T) {
	addr := graph.MustParseAddress("0x2e645469f354bb4f5c8a05b3b30a929361cf77ec")
	ctxEntity := graph.NewEntity(graph.Field{Name: "pool", Value: graph.String("a")})
	fx := newHostFixture(t, Environment{
		DataSource: DataSource{Name: "Factory", Address: addr, Network: "mainnet", Context: ctxEntity},
	})

	got, err := codec.ReadAddress(fx.f.arena, asc.Ptr(uint32(fx.mustCall(host.DataSourceAddress))))
	if err != nil || got != addr {
		t.Errorf("dataSource.address = %s, %v", got, err)
	}
	if net := fx.readString(fx.mustCall(host.DataSourceNetwork)); net != "mainnet" {
		t.Errorf("dataSource.network = %s", net)
	}
	ent, err := codec.ReadEntity(fx.f.arena, asc.Ptr(uint32(fx.mustCall(host.DataSourceContext))))
	if err != nil || !ent.Equal(ctxEntity) {
		t.Errorf("dataSource.context = %v, %v", ent, err)
	}

	params, err := codec.EncodeStringArray(fx.f.arena, []string{"0xabc"})
	if err != nil {
		t.Fatal(err)
	}
	ep, err := codec.WriteEntity(fx.f.arena, ctxEntity)
	if err != nil {
		t.Fatal(err)
	}
	fx.mustCall(host.DataSourceCreate, fx.str("Pool"), uint64(params.Ptr()))
	fx.mustCall(host.DataSourceCreateWithContext, fx.str("Pool"), uint64(params.Ptr()), uint64(ep))

	created := fx.f.inst.CreatedDataSources()
	if len(created) != 2 {
		t.Fatalf("created %d data sources, want 2", len(created))
	}
	if created[0].Template != "Pool" || created[0].Params[0] != "0xabc" || created[0].Context != nil {
		t.Errorf("created[0] = %+v", created[0])
	}
	if !created[1].Context.Equal(ctxEntity) {
		t.Errorf("created[1] context = %v", created[1].Context)
	}
}

func TestHostENS(t *testing.T) {
	fx := newHostFixture(t, Environment{ENS: map[string]string{"0xhash": "vitalik.eth"}})
	if got := fx.readString(fx.mustCall(host.ENSNameByHash, fx.str("0xhash"))); got != "vitalik.eth" {
		t.Errorf("ens.nameByHash = %s", got)
	}
	if ret := fx.mustCall(host.ENSNameByHash, fx.str("0xother")); ret != 0 {
		t.Errorf("unknown hash = %#x, want null", ret)
	}
}

func TestHostCallArity(t *testing.T) {
	fx := newHostFixture(t, Environment{})
	if _, err := fx.call(host.StoreGet, 1); err == nil {
		t.Error("store.get with one argument succeeded")
	}
}
