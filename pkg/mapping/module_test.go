package mapping

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/codec"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
	"github.com/woxQAQ/subgraph-abi/pkg/host"
)

// guestSource lets a host-side arena place objects through the allocate
// export, the way graph-node does.
type guestSource struct{ m *Module }

func (g guestSource) Reserve(n uint32) (uint32, error) { return g.m.Allocate(n) }

type abortCall struct {
	message string
	file    *string
	line    uint32
}

type fixture struct {
	m        *Module
	mock     *host.Mock
	host     *asc.Arena
	aborts   []abortCall
	logs     []string
	entities map[string]*graph.Entity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{mock: host.NewMock(), entities: map[string]*graph.Entity{}}
	mem := asc.NewLinearMemory(1, 256)

	m, err := New(mem, f.mock)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.m = m
	f.host, err = asc.NewArena(mem, asc.WithSource(guestSource{m}), asc.WithChunkSize(4096))
	if err != nil {
		t.Fatalf("NewArena() error = %v", err)
	}

	f.mock.Handle(host.Abort, func(a *asc.Arena, args []uint64) (uint64, error) {
		msg, err := codec.ReadString(a, asc.Ptr(args[0]))
		if err != nil {
			return 0, err
		}
		file, err := codec.ReadOptionalString(a, asc.Ptr(args[1]))
		if err != nil {
			return 0, err
		}
		f.aborts = append(f.aborts, abortCall{message: msg, file: file, line: uint32(args[2])})
		return 0, nil
	})
	f.mock.Handle(host.LogLog, func(a *asc.Arena, args []uint64) (uint64, error) {
		msg, err := codec.ReadString(a, asc.Ptr(args[1]))
		f.logs = append(f.logs, msg)
		return 0, err
	})
	f.mock.Handle(host.StoreSet, func(a *asc.Arena, args []uint64) (uint64, error) {
		typ, err := codec.ReadString(a, asc.Ptr(args[0]))
		if err != nil {
			return 0, err
		}
		id, err := codec.ReadString(a, asc.Ptr(args[1]))
		if err != nil {
			return 0, err
		}
		e, err := codec.ReadEntity(a, asc.Ptr(args[2]))
		f.entities[typ+"/"+id] = e
		return 0, err
	})
	return f
}

func (f *fixture) event(t *testing.T, ev *graph.Event) uint32 {
	t.Helper()
	h, err := codec.EncodeEvent(f.host, ev)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	return uint32(h.Ptr())
}

func transferEvent() *graph.Event {
	from := graph.MustParseAddress("0x00000000000000000000000000000000000000aa")
	return &graph.Event{
		Address:             graph.MustParseAddress("0x00000000000000000000000000000000000000cc"),
		LogIndex:            big.NewInt(2),
		TransactionLogIndex: big.NewInt(0),
		Block: graph.Block{
			Number:          big.NewInt(100),
			GasUsed:         big.NewInt(0),
			GasLimit:        big.NewInt(0),
			Timestamp:       big.NewInt(1_700_000_000),
			Difficulty:      big.NewInt(0),
			TotalDifficulty: big.NewInt(0),
		},
		Transaction: graph.Transaction{
			Index:    big.NewInt(0),
			Value:    big.NewInt(0),
			GasLimit: big.NewInt(21000),
			GasPrice: big.NewInt(1),
			Nonce:    big.NewInt(0),
		},
		Params: []graph.EventParam{
			{Name: "from", Value: graph.AddressToken(from)},
			{Name: "value", Value: graph.UintToken{Int: big.NewInt(42)}},
		},
	}
}

func TestInvokeEvent(t *testing.T) {
	f := newFixture(t)
	want := transferEvent()

	var got *graph.Event
	f.m.HandleEvent("handleTransfer", func(ctx *Context, ev *graph.Event) error {
		got = ev
		value, _ := ev.Param("value")
		ctx.Logger().Info("transfer")
		return ctx.Save("Transfer", graph.NewEntity(
			graph.Field{Name: "id", Value: graph.String("tx-1")},
			graph.Field{Name: "value", Value: graph.NewBigInt(value.(graph.UintToken).Int)},
		))
	})

	if err := f.m.InvokeEvent("handleTransfer", f.event(t, want)); err != nil {
		t.Fatalf("InvokeEvent() error = %v", err)
	}

	opts := cmp.Options{
		cmp.Comparer(func(x, y *big.Int) bool {
			if x == nil || y == nil {
				return x == nil && y == nil
			}
			return x.Cmp(y) == 0
		}),
		cmp.Comparer(graph.TokensEqual),
		cmpopts.EquateEmpty(),
	}
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("decoded event mismatch (-want +got):\n%s", diff)
	}

	saved, ok := f.entities["Transfer/tx-1"]
	if !ok {
		t.Fatalf("entity not saved, have %v", f.entities)
	}
	if v, _ := saved.Get("value"); !graph.ValuesEqual(v, graph.NewBigInt(big.NewInt(42))) {
		t.Errorf("saved value = %s", graph.FormatValue(v))
	}
	if len(f.logs) != 1 || !strings.HasPrefix(f.logs[0], "transfer") || !strings.Contains(f.logs[0], "handleTransfer") {
		t.Errorf("logs = %q", f.logs)
	}
	if len(f.aborts) != 0 {
		t.Errorf("unexpected aborts %v", f.aborts)
	}
}

func TestHandlerErrorAborts(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("balance underflow")
	f.m.HandleEvent("handleTransfer", func(*Context, *graph.Event) error { return boom })

	err := f.m.InvokeEvent("handleTransfer", f.event(t, transferEvent()))
	var herr *HandlerError
	if !errors.As(err, &herr) || herr.Panic {
		t.Fatalf("InvokeEvent() error = %v, want a non-panic *HandlerError", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("error chain lost: %v", err)
	}
	if len(f.aborts) != 1 || !strings.Contains(f.aborts[0].message, "balance underflow") {
		t.Fatalf("aborts = %+v", f.aborts)
	}
	if f.aborts[0].file != nil {
		t.Errorf("file = %q, want null for a returned error", *f.aborts[0].file)
	}
}

func TestHandlerPanicAborts(t *testing.T) {
	f := newFixture(t)
	f.m.HandleEvent("handleTransfer", func(_ *Context, ev *graph.Event) error {
		var params []graph.EventParam
		_ = params[len(ev.Params)]
		return nil
	})

	err := f.m.InvokeEvent("handleTransfer", f.event(t, transferEvent()))
	var herr *HandlerError
	if !errors.As(err, &herr) || !herr.Panic {
		t.Fatalf("InvokeEvent() error = %v, want a panic *HandlerError", err)
	}
	if len(f.aborts) != 1 {
		t.Fatalf("aborts = %+v", f.aborts)
	}
	a := f.aborts[0]
	if a.file == nil || !strings.HasSuffix(*a.file, "module_test.go") || a.line == 0 {
		t.Errorf("abort location = %v:%d, want this file", a.file, a.line)
	}
	if !strings.Contains(a.message, "index out of range") {
		t.Errorf("abort message = %q", a.message)
	}
}

func TestUnknownHandler(t *testing.T) {
	f := newFixture(t)
	err := f.m.InvokeEvent("handleMissing", f.event(t, transferEvent()))
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("InvokeEvent() error = %v, want ErrNoHandler", err)
	}
	if len(f.aborts) != 1 {
		t.Errorf("aborts = %d, want 1", len(f.aborts))
	}
}

func TestInvokeRejectsWrongClass(t *testing.T) {
	f := newFixture(t)
	called := false
	f.m.HandleEvent("handleTransfer", func(*Context, *graph.Event) error {
		called = true
		return nil
	})

	s, err := codec.EncodeString(f.host, "not an event")
	if err != nil {
		t.Fatal(err)
	}
	err = f.m.InvokeEvent("handleTransfer", uint32(s.Ptr()))
	if !errors.Is(err, asc.ErrTagMismatch) || !asc.IsFatal(err) {
		t.Errorf("InvokeEvent() error = %v, want a fatal tag mismatch", err)
	}
	if called {
		t.Error("handler ran on a mistyped argument")
	}
}

// corruptParamName overwrites the first code unit of the name of the first
// param of the event at p with an unpaired high surrogate.
func (f *fixture) corruptParamName(t *testing.T, p uint32) {
	t.Helper()
	ev := codec.OpenRecord(f.host, asc.Ptr(p), codec.EventSchema(f.host.Version()))
	params, err := asc.Validate[asc.ArrayShape](f.host, ev.Ptr("params"))
	if err != nil {
		t.Fatal(err)
	}
	seq, err := codec.DecodeArray(f.host, params, codec.ReadEventParam)
	if err != nil {
		t.Fatal(err)
	}
	first, err := seq.Ptr(0)
	if err != nil {
		t.Fatal(err)
	}
	name := codec.OpenRecord(f.host, first, codec.EventParamSchema).Ptr("name")
	if err := f.host.Write(name, 0, []byte{0x00, 0xd8}); err != nil {
		t.Fatal(err)
	}
}

func TestMalformedEventSkippedByHandler(t *testing.T) {
	f := newFixture(t)
	var (
		called bool
		got    *graph.Event
		reason error
	)
	f.m.HandleEvent("handleTransfer", func(ctx *Context, ev *graph.Event) error {
		called, got, reason = true, ev, ctx.DecodeError()
		return nil
	})

	p := f.event(t, transferEvent())
	f.corruptParamName(t, p)

	if err := f.m.InvokeEvent("handleTransfer", p); err != nil {
		t.Fatalf("InvokeEvent() error = %v, want the handler to skip the record", err)
	}
	if !called || got != nil {
		t.Fatalf("handler called = %v with event %v, want a call with a nil event", called, got)
	}
	var encErr *asc.EncodingError
	if !errors.As(reason, &encErr) || encErr.Kind != "string" {
		t.Errorf("DecodeError() = %v, want a string *asc.EncodingError", reason)
	}
	if len(f.aborts) != 0 {
		t.Errorf("unexpected aborts %v", f.aborts)
	}
}

func TestMalformedEventAbortsWhenReturned(t *testing.T) {
	f := newFixture(t)
	f.m.HandleEvent("handleTransfer", func(ctx *Context, ev *graph.Event) error {
		if err := ctx.DecodeError(); err != nil {
			return err
		}
		return nil
	})

	p := f.event(t, transferEvent())
	f.corruptParamName(t, p)

	err := f.m.InvokeEvent("handleTransfer", p)
	if !errors.Is(err, asc.ErrEncoding) || asc.IsFatal(err) {
		t.Fatalf("InvokeEvent() error = %v, want a recoverable encoding error", err)
	}
	if len(f.aborts) != 1 || !strings.Contains(f.aborts[0].message, "unpaired surrogate") {
		t.Errorf("aborts = %+v", f.aborts)
	}
}

func TestContextInvalidatedAfterReturn(t *testing.T) {
	f := newFixture(t)
	var kept *Context
	f.m.HandleBlock("handleBlock", func(ctx *Context, b *graph.Block) error {
		kept = ctx
		if b.Number.Int64() != 100 {
			t.Errorf("block number = %s", b.Number)
		}
		return nil
	})

	b := transferEvent().Block
	h, err := codec.EncodeBlock(f.host, &b)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.m.InvokeBlock("handleBlock", uint32(h.Ptr())); err != nil {
		t.Fatalf("InvokeBlock() error = %v", err)
	}

	defer func() {
		if r := recover(); r != ErrContextDone {
			t.Errorf("recover() = %v, want ErrContextDone", r)
		}
	}()
	kept.Host()
}

func TestInvokeCall(t *testing.T) {
	f := newFixture(t)
	var to graph.Address
	f.m.HandleCall("handleApprove", func(_ *Context, c *graph.Call) error {
		to = c.To
		return nil
	})

	ev := transferEvent()
	c := &graph.Call{
		To:          graph.MustParseAddress("0x00000000000000000000000000000000000000dd"),
		Block:       ev.Block,
		Transaction: ev.Transaction,
	}
	h, err := codec.EncodeCall(f.host, c)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.m.InvokeCall("handleApprove", uint32(h.Ptr())); err != nil {
		t.Fatalf("InvokeCall() error = %v", err)
	}
	if to != c.To {
		t.Errorf("to = %s, want %s", to, c.To)
	}
}

func TestInvokeJSON(t *testing.T) {
	f := newFixture(t)
	f.m.HandleJSON("saveHolder", func(ctx *Context, value graph.JSON, userData graph.Value) error {
		id, ok := value.(graph.JSONString)
		if !ok {
			return fmt.Errorf("holder id is %T", value)
		}
		return ctx.Save("Holder", graph.NewEntity(
			graph.Field{Name: "id", Value: graph.String(id)},
			graph.Field{Name: "source", Value: userData},
		))
	})

	value, err := codec.WriteJSON(f.host, graph.JSONString("alice"))
	if err != nil {
		t.Fatal(err)
	}
	userData, err := codec.WriteValue(f.host, graph.String("airdrop"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.m.InvokeJSON("saveHolder", uint32(value), uint32(userData)); err != nil {
		t.Fatalf("InvokeJSON() error = %v", err)
	}
	if err := f.m.InvokeJSON("saveHolder", uint32(value), 0); err != nil {
		t.Fatalf("InvokeJSON() without userData error = %v", err)
	}

	got := f.entities["Holder/alice"]
	if got == nil {
		t.Fatal("Holder/alice was not saved")
	}
	if source, _ := got.Get("source"); source != (graph.Null{}) {
		t.Errorf("source without userData = %v, want null", source)
	}
	if len(f.aborts) != 0 {
		t.Errorf("aborts = %v", f.aborts)
	}

	number, err := codec.WriteJSON(f.host, graph.JSONNumber("7"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.m.InvokeJSON("saveHolder", uint32(number), 0); err == nil {
		t.Error("InvokeJSON() with a number id should fail")
	}
	if len(f.aborts) != 1 || !strings.Contains(f.aborts[0].message, "holder id is graph.JSONNumber") {
		t.Errorf("aborts = %v", f.aborts)
	}
}

func TestIDOfType(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		idx  asc.TypeIndex
		want uint32
	}{
		{asc.IndexArrayBuffer, 1},
		{asc.IndexString, 2},
		{asc.IndexUint8Array, uint32(asc.IndexUint8Array) + 2},
	}
	for _, tt := range tests {
		got, err := f.m.IDOfType(uint32(tt.idx))
		if err != nil || got != tt.want {
			t.Errorf("IDOfType(%s) = %d, %v, want %d", tt.idx, got, err, tt.want)
		}
	}
	if _, err := f.m.IDOfType(9999); err == nil {
		t.Error("IDOfType(9999) succeeded")
	}
}

func TestAllocateIsAligned(t *testing.T) {
	f := newFixture(t)
	p1, err := f.m.Allocate(10)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := f.m.Allocate(10)
	if err != nil {
		t.Fatal(err)
	}
	if p1%asc.PayloadAlign != 0 || p2%asc.PayloadAlign != 0 {
		t.Errorf("allocations %#x, %#x are not aligned", p1, p2)
	}
	if p2 < p1+10 {
		t.Errorf("allocations overlap: %#x, %#x", p1, p2)
	}
}

func TestStartRunsOnce(t *testing.T) {
	f := newFixture(t)
	n := 0
	f.m.OnStart(func(*Module) error {
		n++
		return nil
	})
	f.m.HandleEvent("handleTransfer", func(*Context, *graph.Event) error { return nil })

	if err := f.m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := f.m.InvokeEvent("handleTransfer", f.event(t, transferEvent())); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("start hook ran %d times, want 1", n)
	}
}

func TestDuplicateHandlerPanics(t *testing.T) {
	f := newFixture(t)
	f.m.HandleEvent("handleTransfer", func(*Context, *graph.Event) error { return nil })
	defer func() {
		if recover() == nil {
			t.Error("duplicate registration did not panic")
		}
	}()
	f.m.HandleEvent("handleTransfer", func(*Context, *graph.Event) error { return nil })
}
