package codec

import (
	"errors"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

var ethOpts = cmp.Options{
	bigIntComparer,
	cmpopts.EquateEmpty(),
	cmp.Comparer(graph.TokensEqual),
}

func sampleBlock() graph.Block {
	return graph.Block{
		Hash:             graph.Hash{1},
		ParentHash:       graph.Hash{2},
		UnclesHash:       graph.Hash{3},
		Author:           graph.MustParseAddress("0x1111111111111111111111111111111111111111"),
		StateRoot:        graph.Hash{4},
		TransactionsRoot: graph.Hash{5},
		ReceiptsRoot:     graph.Hash{6},
		Number:           big.NewInt(15_000_000),
		GasUsed:          big.NewInt(21_000),
		GasLimit:         big.NewInt(30_000_000),
		Timestamp:        big.NewInt(1_660_000_000),
		Difficulty:       big.NewInt(0),
		TotalDifficulty:  new(big.Int).Lsh(big.NewInt(1), 70),
		Size:             big.NewInt(1024),
		BaseFeePerGas:    big.NewInt(7),
	}
}

func sampleTransaction() graph.Transaction {
	to := graph.MustParseAddress("0x2222222222222222222222222222222222222222")
	return graph.Transaction{
		Hash:     graph.Hash{0xAA},
		Index:    big.NewInt(3),
		From:     graph.MustParseAddress("0x3333333333333333333333333333333333333333"),
		To:       &to,
		Value:    big.NewInt(1e18),
		GasLimit: big.NewInt(100_000),
		GasPrice: big.NewInt(20_000_000_000),
		Input:    []byte{0xA9, 0x05, 0x9C, 0xBB},
		Nonce:    big.NewInt(12),
	}
}

func sampleEvent() *graph.Event {
	logType := "mined"
	return &graph.Event{
		Address:             graph.MustParseAddress("0x4444444444444444444444444444444444444444"),
		LogIndex:            big.NewInt(0),
		TransactionLogIndex: big.NewInt(1),
		LogType:             &logType,
		Block:               sampleBlock(),
		Transaction:         sampleTransaction(),
		Params: []graph.EventParam{
			{Name: "from", Value: graph.AddressToken(graph.MustParseAddress("0x3333333333333333333333333333333333333333"))},
			{Name: "to", Value: graph.AddressToken(graph.MustParseAddress("0x2222222222222222222222222222222222222222"))},
			{Name: "value", Value: graph.UintToken{Int: big.NewInt(500)}},
		},
	}
}

func TestEventRoundTrip(t *testing.T) {
	for _, v := range []asc.Version{asc.V0_0_6, asc.V0_0_7} {
		t.Run(v.String(), func(t *testing.T) {
			a := newArena(t, v)
			ev := sampleEvent()

			h, err := EncodeEvent(a, ev)
			if err != nil {
				t.Fatalf("EncodeEvent() error = %v", err)
			}
			got, err := DecodeEvent(a, h)
			if err != nil {
				t.Fatalf("DecodeEvent() error = %v", err)
			}
			if diff := cmp.Diff(ev, got, ethOpts); diff != "" {
				t.Errorf("event mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEventLayoutByVersion(t *testing.T) {
	old := EventSchema(asc.V0_0_5)
	cur := EventSchema(asc.V0_0_7)
	if old.Has("receipt") || !cur.Has("receipt") {
		t.Fatalf("receipt present: 0.0.5=%v 0.0.7=%v", old.Has("receipt"), cur.Has("receipt"))
	}
	if cur.Size() != old.Size()+4 {
		t.Errorf("0.0.7 event size = %d, want %d", cur.Size(), old.Size()+4)
	}

	a := newArena(t, asc.V0_0_7)
	h, err := EncodeEvent(a, sampleEvent())
	if err != nil {
		t.Fatal(err)
	}
	off, _ := cur.Offset("receipt")
	receipt, err := a.ReadU32(h.Ptr(), off)
	if err != nil {
		t.Fatal(err)
	}
	if receipt != 0 {
		t.Errorf("receipt = %#x, want null", receipt)
	}
}

func TestBlockFieldsDroppedBeforeV006(t *testing.T) {
	a := newArena(t, asc.V0_0_5)

	b := sampleBlock()
	h, err := EncodeBlock(a, &b)
	if err != nil {
		t.Fatal(err)
	}
	hdr, err := a.HeaderOf(h.Ptr())
	if err != nil {
		t.Fatal(err)
	}
	if hdr.RTSize != 14*4 {
		t.Errorf("0.0.5 block size = %d, want %d", hdr.RTSize, 14*4)
	}
	got, err := DecodeBlock(a, h)
	if err != nil {
		t.Fatal(err)
	}
	want := b
	want.BaseFeePerGas = nil
	if diff := cmp.Diff(&want, got, ethOpts); diff != "" {
		t.Errorf("block mismatch (-want +got):\n%s", diff)
	}

	tx := sampleTransaction()
	th, err := EncodeTransaction(a, &tx)
	if err != nil {
		t.Fatal(err)
	}
	gotTx, err := DecodeTransaction(a, th)
	if err != nil {
		t.Fatal(err)
	}
	if gotTx.Nonce != nil {
		t.Errorf("nonce = %s, want nil at 0.0.5", gotTx.Nonce)
	}
}

func TestBlockOptionalFields(t *testing.T) {
	a := newArena(t, asc.Latest)

	b := sampleBlock()
	b.Size = nil
	b.BaseFeePerGas = nil
	h, err := EncodeBlock(a, &b)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeBlock(a, h)
	if err != nil {
		t.Fatal(err)
	}
	if got.Size != nil || got.BaseFeePerGas != nil {
		t.Errorf("optional fields = %v, %v, want nil", got.Size, got.BaseFeePerGas)
	}
}

func TestTransactionContractCreation(t *testing.T) {
	a := newArena(t, asc.Latest)

	tx := sampleTransaction()
	tx.To = nil
	h, err := EncodeTransaction(a, &tx)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeTransaction(a, h)
	if err != nil {
		t.Fatal(err)
	}
	if got.To != nil {
		t.Errorf("to = %v, want nil", got.To)
	}
}

func TestReadBlockRequiresHash(t *testing.T) {
	a := newArena(t, asc.Latest)

	b := sampleBlock()
	h, err := EncodeBlock(a, &b)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.WriteU32(h.Ptr(), 0, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := DecodeBlock(a, h); !errors.Is(err, asc.ErrEncoding) {
		t.Errorf("DecodeBlock() error = %v, want ErrEncoding", err)
	}
}

func TestCallRoundTrip(t *testing.T) {
	a := newArena(t, asc.Latest)

	c := &graph.Call{
		To:          graph.MustParseAddress("0x5555555555555555555555555555555555555555"),
		From:        graph.MustParseAddress("0x6666666666666666666666666666666666666666"),
		Block:       sampleBlock(),
		Transaction: sampleTransaction(),
		InputValues: []graph.EventParam{
			{Name: "amount", Value: graph.UintToken{Int: big.NewInt(10)}},
		},
	}
	h, err := EncodeCall(a, c)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeCall(a, h)
	if err != nil {
		t.Fatalf("DecodeCall() error = %v", err)
	}
	if diff := cmp.Diff(c, got, ethOpts); diff != "" {
		t.Errorf("call mismatch (-want +got):\n%s", diff)
	}
}

func TestSmartContractCallRoundTrip(t *testing.T) {
	a := newArena(t, asc.Latest)

	c := &graph.SmartContractCall{
		ContractName:      "ERC20",
		ContractAddress:   graph.MustParseAddress("0x7777777777777777777777777777777777777777"),
		FunctionName:      "balanceOf",
		FunctionSignature: "balanceOf(address):(uint256)",
		FunctionParams:    []graph.Token{graph.AddressToken{0x01}},
	}
	h, err := EncodeSmartContractCall(a, c)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeSmartContractCall(a, h)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c, got, ethOpts); diff != "" {
		t.Errorf("call mismatch (-want +got):\n%s", diff)
	}
}
