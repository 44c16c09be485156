package runner

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/woxQAQ/subgraph-abi/internal/ethabi"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

// Fixture is a recorded chain segment fed to a subgraph. Blocks are processed
// in ascending number order.
type Fixture struct {
	Network  string            `yaml:"network"`
	Blocks   []BlockFixture    `yaml:"blocks"`
	EthCalls []EthCallFixture  `yaml:"ethCalls"`
	ENS      map[string]string `yaml:"ens"`
	IPFS     map[string]string `yaml:"ipfs"`
}

// BlockFixture is one block with the triggers it carries.
type BlockFixture struct {
	Number        uint64         `yaml:"number"`
	Hash          string         `yaml:"hash"`
	ParentHash    string         `yaml:"parentHash"`
	Author        string         `yaml:"author"`
	Timestamp     uint64         `yaml:"timestamp"`
	GasUsed       uint64         `yaml:"gasUsed"`
	GasLimit      uint64         `yaml:"gasLimit"`
	BaseFeePerGas string         `yaml:"baseFeePerGas"`
	Events        []EventFixture `yaml:"events"`
	Calls         []CallFixture  `yaml:"calls"`
}

// TransactionFixture describes the transaction of an event or call.
type TransactionFixture struct {
	Hash  string `yaml:"hash"`
	Index uint64 `yaml:"index"`
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Value string `yaml:"value"`
	Input string `yaml:"input"`
	Nonce uint64 `yaml:"nonce"`
}

// EventFixture is one log. Event is the signature matched against event
// handlers, with or without indexed markers.
type EventFixture struct {
	Address     string             `yaml:"address"`
	Event       string             `yaml:"event"`
	LogIndex    uint64             `yaml:"logIndex"`
	Transaction TransactionFixture `yaml:"transaction"`
	Params      []Param            `yaml:"params"`
}

// CallFixture is one contract call. Function is matched against call
// handlers.
type CallFixture struct {
	From        string             `yaml:"from"`
	To          string             `yaml:"to"`
	Function    string             `yaml:"function"`
	Transaction TransactionFixture `yaml:"transaction"`
	Inputs      []Param            `yaml:"inputs"`
	Outputs     []Param            `yaml:"outputs"`
}

// EthCallFixture answers ethereum.call. Function matches the function name,
// the signature before the output list, or the full signature. When Params
// is set the call arguments must match too.
type EthCallFixture struct {
	Address  string  `yaml:"address"`
	Function string  `yaml:"function"`
	Params   []Param `yaml:"params"`
	Result   []Param `yaml:"result"`
	Reverts  bool    `yaml:"reverts"`
}

// Param is a typed ABI value. Value is a scalar for elementary types and a
// sequence for arrays and tuples.
type Param struct {
	Name  string    `yaml:"name"`
	Type  string    `yaml:"type"`
	Value yaml.Node `yaml:"value"`
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	fx, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return fx, nil
}

// ParseFixture decodes and checks a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if _, err := fx.compile(); err != nil {
		return nil, err
	}
	return &fx, nil
}

type trace struct {
	blocks   []*block
	ethCalls []*ethCall
}

type block struct {
	header graph.Block
	events []*event
	calls  []*call
}

type event struct {
	signature string
	ev        *graph.Event
}

type call struct {
	signature string
	c         *graph.Call
}

type ethCall struct {
	address  graph.Address
	function string
	params   []graph.Token
	result   []graph.Token
	reverts  bool
}

// hasCallTo reports whether the block holds a call to addr.
func (b *block) hasCallTo(addr graph.Address) bool {
	for _, c := range b.calls {
		if c.c.To == addr {
			return true
		}
	}
	return false
}

func (f *Fixture) compile() (*trace, error) {
	tr := &trace{}
	for i := range f.Blocks {
		b, err := f.Blocks[i].compile()
		if err != nil {
			return nil, fmt.Errorf("blocks[%d]: %w", i, err)
		}
		tr.blocks = append(tr.blocks, b)
	}
	sort.SliceStable(tr.blocks, func(i, j int) bool {
		return tr.blocks[i].header.Number.Cmp(tr.blocks[j].header.Number) < 0
	})

	for i, c := range f.EthCalls {
		ec, err := c.compile()
		if err != nil {
			return nil, fmt.Errorf("ethCalls[%d]: %w", i, err)
		}
		tr.ethCalls = append(tr.ethCalls, ec)
	}
	return tr, nil
}

func (bf *BlockFixture) compile() (*block, error) {
	number := new(big.Int).SetUint64(bf.Number)
	header := graph.Block{
		Number:    number,
		Timestamp: new(big.Int).SetUint64(bf.Timestamp),
		GasUsed:   new(big.Int).SetUint64(bf.GasUsed),
		GasLimit:  new(big.Int).SetUint64(bf.GasLimit),
	}

	var err error
	if header.Hash, err = hashOrDefault(bf.Hash, bf.Number); err != nil {
		return nil, fmt.Errorf("hash: %w", err)
	}
	parent := bf.Number
	if parent > 0 {
		parent--
	}
	if header.ParentHash, err = hashOrDefault(bf.ParentHash, parent); err != nil {
		return nil, fmt.Errorf("parentHash: %w", err)
	}
	if bf.Author != "" {
		if header.Author, err = graph.ParseAddress(bf.Author); err != nil {
			return nil, fmt.Errorf("author: %w", err)
		}
	}
	if bf.BaseFeePerGas != "" {
		if header.BaseFeePerGas, err = parseInt(bf.BaseFeePerGas); err != nil {
			return nil, fmt.Errorf("baseFeePerGas: %w", err)
		}
	}

	b := &block{header: header}
	for i := range bf.Events {
		ev, err := bf.Events[i].compile(header)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		b.events = append(b.events, ev)
	}
	for i := range bf.Calls {
		c, err := bf.Calls[i].compile(header)
		if err != nil {
			return nil, fmt.Errorf("calls[%d]: %w", i, err)
		}
		b.calls = append(b.calls, c)
	}
	return b, nil
}

// hashOrDefault parses s, or derives a hash holding the block number when s
// is empty.
func hashOrDefault(s string, number uint64) (graph.Hash, error) {
	if s != "" {
		return graph.ParseHash(s)
	}
	var h graph.Hash
	binary.BigEndian.PutUint64(h[len(h)-8:], number)
	return h, nil
}

func (ef *EventFixture) compile(header graph.Block) (*event, error) {
	if ef.Event == "" {
		return nil, fmt.Errorf("event signature is required")
	}
	addr, err := graph.ParseAddress(ef.Address)
	if err != nil {
		return nil, fmt.Errorf("address: %w", err)
	}
	tx, err := ef.Transaction.compile()
	if err != nil {
		return nil, fmt.Errorf("transaction: %w", err)
	}
	params, err := compileParams(ef.Params)
	if err != nil {
		return nil, err
	}
	logIndex := new(big.Int).SetUint64(ef.LogIndex)
	return &event{
		signature: NormalizeSignature(ef.Event),
		ev: &graph.Event{
			Address:             addr,
			LogIndex:            logIndex,
			TransactionLogIndex: logIndex,
			Block:               header,
			Transaction:         tx,
			Params:              params,
		},
	}, nil
}

func (cf *CallFixture) compile(header graph.Block) (*call, error) {
	if cf.Function == "" {
		return nil, fmt.Errorf("call function is required")
	}
	to, err := graph.ParseAddress(cf.To)
	if err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	var from graph.Address
	if cf.From != "" {
		if from, err = graph.ParseAddress(cf.From); err != nil {
			return nil, fmt.Errorf("from: %w", err)
		}
	}
	tx, err := cf.Transaction.compile()
	if err != nil {
		return nil, fmt.Errorf("transaction: %w", err)
	}
	inputs, err := compileParams(cf.Inputs)
	if err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	outputs, err := compileParams(cf.Outputs)
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	return &call{
		signature: NormalizeSignature(cf.Function),
		c: &graph.Call{
			To:           to,
			From:         from,
			Block:        header,
			Transaction:  tx,
			InputValues:  inputs,
			OutputValues: outputs,
		},
	}, nil
}

func (tf *TransactionFixture) compile() (graph.Transaction, error) {
	tx := graph.Transaction{
		Index:    new(big.Int).SetUint64(tf.Index),
		Value:    new(big.Int),
		GasLimit: new(big.Int),
		GasPrice: new(big.Int),
		Nonce:    new(big.Int).SetUint64(tf.Nonce),
	}
	var err error
	if tf.Hash != "" {
		if tx.Hash, err = graph.ParseHash(tf.Hash); err != nil {
			return tx, fmt.Errorf("hash: %w", err)
		}
	}
	if tf.From != "" {
		if tx.From, err = graph.ParseAddress(tf.From); err != nil {
			return tx, fmt.Errorf("from: %w", err)
		}
	}
	if tf.To != "" {
		to, err := graph.ParseAddress(tf.To)
		if err != nil {
			return tx, fmt.Errorf("to: %w", err)
		}
		tx.To = &to
	}
	if tf.Value != "" {
		if tx.Value, err = parseInt(tf.Value); err != nil {
			return tx, fmt.Errorf("value: %w", err)
		}
	}
	if tf.Input != "" {
		if tx.Input, err = graph.DecodeHex(tf.Input); err != nil {
			return tx, fmt.Errorf("input: %w", err)
		}
	}
	return tx, nil
}

func (cf *EthCallFixture) compile() (*ethCall, error) {
	addr, err := graph.ParseAddress(cf.Address)
	if err != nil {
		return nil, fmt.Errorf("address: %w", err)
	}
	if cf.Function == "" {
		return nil, fmt.Errorf("function is required")
	}
	ec := &ethCall{address: addr, function: NormalizeSignature(cf.Function), reverts: cf.Reverts}
	if ec.params, err = compileTokens(cf.Params); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	if ec.result, err = compileTokens(cf.Result); err != nil {
		return nil, fmt.Errorf("result: %w", err)
	}
	return ec, nil
}

func (ec *ethCall) matches(c *graph.SmartContractCall) bool {
	if c.ContractAddress != ec.address {
		return false
	}
	sig := NormalizeSignature(c.FunctionSignature)
	inputs, _, _ := strings.Cut(sig, ":")
	if ec.function != c.FunctionName && ec.function != sig && ec.function != inputs {
		return false
	}
	if ec.params == nil {
		return true
	}
	if len(ec.params) != len(c.FunctionParams) {
		return false
	}
	for i := range ec.params {
		if !graph.TokensEqual(ec.params[i], c.FunctionParams[i]) {
			return false
		}
	}
	return true
}

// resolve answers ethereum.call from the first matching entry. Unmatched
// calls revert.
func (tr *trace) resolve(_ context.Context, c *graph.SmartContractCall) ([]graph.Token, bool, error) {
	for _, ec := range tr.ethCalls {
		if ec.matches(c) {
			return ec.result, !ec.reverts, nil
		}
	}
	return nil, false, nil
}

// NormalizeSignature drops indexed markers and whitespace from an event or
// function signature.
func NormalizeSignature(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "indexed ", "")), "")
}

func compileParams(ps []Param) ([]graph.EventParam, error) {
	var out []graph.EventParam
	for i := range ps {
		tok, err := ps[i].Token()
		if err != nil {
			return nil, fmt.Errorf("params[%d]: %w", i, err)
		}
		out = append(out, graph.EventParam{Name: ps[i].Name, Value: tok})
	}
	return out, nil
}

func compileTokens(ps []Param) ([]graph.Token, error) {
	var out []graph.Token
	for i := range ps {
		tok, err := ps[i].Token()
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out = append(out, tok)
	}
	return out, nil
}

// Token converts the value to an ABI token of the declared type.
func (p *Param) Token() (graph.Token, error) {
	t, err := ethabi.ParseType(p.Type)
	if err != nil {
		return nil, err
	}
	return tokenFromNode(t, &p.Value)
}

func tokenFromNode(t ethabi.Type, n *yaml.Node) (graph.Token, error) {
	switch t.Kind {
	case graph.TokenArray, graph.TokenFixedArray, graph.TokenTuple:
		if n.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("%s value must be a list", t)
		}
		want := len(n.Content)
		if t.Kind == graph.TokenFixedArray {
			want = t.Size
		} else if t.Kind == graph.TokenTuple {
			want = len(t.Fields)
		}
		if len(n.Content) != want {
			return nil, fmt.Errorf("%s value has %d elements, want %d", t, len(n.Content), want)
		}
		items := make([]graph.Token, len(n.Content))
		for i, child := range n.Content {
			elem := t.Elem
			if t.Kind == graph.TokenTuple {
				elem = &t.Fields[i]
			}
			tok, err := tokenFromNode(*elem, child)
			if err != nil {
				return nil, err
			}
			items[i] = tok
		}
		switch t.Kind {
		case graph.TokenArray:
			return graph.ArrayToken(items), nil
		case graph.TokenFixedArray:
			return graph.FixedArrayToken(items), nil
		}
		return graph.TupleToken(items), nil
	}

	if n.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("%s value must be a scalar", t)
	}
	v := n.Value
	switch t.Kind {
	case graph.TokenAddress:
		addr, err := graph.ParseAddress(v)
		return graph.AddressToken(addr), err
	case graph.TokenBool:
		b, err := strconv.ParseBool(v)
		return graph.BoolToken(b), err
	case graph.TokenString:
		return graph.StringToken(v), nil
	case graph.TokenBytes:
		b, err := graph.DecodeHex(v)
		return graph.BytesToken(b), err
	case graph.TokenFixedBytes:
		b, err := graph.DecodeHex(v)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("%s value has %d bytes", t, len(b))
		}
		return graph.FixedBytesToken(b), nil
	case graph.TokenInt:
		x, err := parseInt(v)
		return graph.IntToken{Int: x}, err
	case graph.TokenUint:
		x, err := parseInt(v)
		if err == nil && x.Sign() < 0 {
			err = fmt.Errorf("%s value %s is negative", t, v)
		}
		return graph.UintToken{Int: x}, err
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}

// parseInt accepts decimal and 0x-prefixed hex integers.
func parseInt(s string) (*big.Int, error) {
	x, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("%q is not an integer", s)
	}
	return x, nil
}
