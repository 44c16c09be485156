package codec

import (
	"github.com/woxQAQ/subgraph-abi/pkg/asc"
	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

// EncodeBlock stores b using the layout of the arena's ABI version.
func EncodeBlock(a *asc.Arena, b *graph.Block) (asc.Handle[asc.RecordShape], error) {
	schema := BlockSchema(a.Version())
	w := NewRecord(a, schema)
	hashes := []struct {
		name string
		h    graph.Hash
	}{
		{"hash", b.Hash},
		{"parentHash", b.ParentHash},
		{"unclesHash", b.UnclesHash},
		{"stateRoot", b.StateRoot},
		{"transactionsRoot", b.TransactionsRoot},
		{"receiptsRoot", b.ReceiptsRoot},
	}
	for _, f := range hashes {
		w.Encode(f.name, func() (asc.Ptr, error) { return WriteHash(a, f.h) })
	}
	w.Encode("author", func() (asc.Ptr, error) { return WriteAddress(a, b.Author) })
	w.Encode("number", func() (asc.Ptr, error) { return WriteBigInt(a, bigOrZero(b.Number)) })
	w.Encode("gasUsed", func() (asc.Ptr, error) { return WriteBigInt(a, bigOrZero(b.GasUsed)) })
	w.Encode("gasLimit", func() (asc.Ptr, error) { return WriteBigInt(a, bigOrZero(b.GasLimit)) })
	w.Encode("timestamp", func() (asc.Ptr, error) { return WriteBigInt(a, bigOrZero(b.Timestamp)) })
	w.Encode("difficulty", func() (asc.Ptr, error) { return WriteBigInt(a, bigOrZero(b.Difficulty)) })
	w.Encode("totalDifficulty", func() (asc.Ptr, error) { return WriteBigInt(a, bigOrZero(b.TotalDifficulty)) })
	w.Encode("size", func() (asc.Ptr, error) { return WriteOptionalBigInt(a, b.Size) })
	if schema.Has("baseFeePerGas") {
		w.Encode("baseFeePerGas", func() (asc.Ptr, error) { return WriteOptionalBigInt(a, b.BaseFeePerGas) })
	}
	return w.Finish()
}

// DecodeBlock reads an EthereumBlock.
func DecodeBlock(a *asc.Arena, h asc.Handle[asc.RecordShape]) (*graph.Block, error) {
	return ReadBlock(a, h.Ptr())
}

// ReadBlock validates p as an EthereumBlock and decodes it.
func ReadBlock(a *asc.Arena, p asc.Ptr) (*graph.Block, error) {
	schema := BlockSchema(a.Version())
	b := &graph.Block{}
	r := OpenRecord(a, p, schema)
	hashes := []struct {
		name string
		dst  *graph.Hash
	}{
		{"hash", &b.Hash},
		{"parentHash", &b.ParentHash},
		{"unclesHash", &b.UnclesHash},
		{"stateRoot", &b.StateRoot},
		{"transactionsRoot", &b.TransactionsRoot},
		{"receiptsRoot", &b.ReceiptsRoot},
	}
	for _, f := range hashes {
		r.Decode(f.name, func(p asc.Ptr) (err error) { *f.dst, err = ReadHash(a, p); return })
	}
	r.Decode("author", func(p asc.Ptr) (err error) { b.Author, err = ReadAddress(a, p); return })
	r.Decode("number", func(p asc.Ptr) (err error) { b.Number, err = ReadBigInt(a, p); return })
	r.Decode("gasUsed", func(p asc.Ptr) (err error) { b.GasUsed, err = ReadBigInt(a, p); return })
	r.Decode("gasLimit", func(p asc.Ptr) (err error) { b.GasLimit, err = ReadBigInt(a, p); return })
	r.Decode("timestamp", func(p asc.Ptr) (err error) { b.Timestamp, err = ReadBigInt(a, p); return })
	r.Decode("difficulty", func(p asc.Ptr) (err error) { b.Difficulty, err = ReadBigInt(a, p); return })
	r.Decode("totalDifficulty", func(p asc.Ptr) (err error) { b.TotalDifficulty, err = ReadBigInt(a, p); return })
	r.Decode("size", func(p asc.Ptr) (err error) { b.Size, err = ReadOptionalBigInt(a, p); return })
	if schema.Has("baseFeePerGas") {
		r.Decode("baseFeePerGas", func(p asc.Ptr) (err error) { b.BaseFeePerGas, err = ReadOptionalBigInt(a, p); return })
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeTransaction stores tx using the layout of the arena's ABI version.
func EncodeTransaction(a *asc.Arena, tx *graph.Transaction) (asc.Handle[asc.RecordShape], error) {
	schema := TransactionSchema(a.Version())
	w := NewRecord(a, schema)
	w.Encode("hash", func() (asc.Ptr, error) { return WriteHash(a, tx.Hash) })
	w.Encode("index", func() (asc.Ptr, error) { return WriteBigInt(a, bigOrZero(tx.Index)) })
	w.Encode("from", func() (asc.Ptr, error) { return WriteAddress(a, tx.From) })
	w.Encode("to", func() (asc.Ptr, error) {
		if tx.To == nil {
			return 0, nil
		}
		return WriteAddress(a, *tx.To)
	})
	w.Encode("value", func() (asc.Ptr, error) { return WriteBigInt(a, bigOrZero(tx.Value)) })
	w.Encode("gasLimit", func() (asc.Ptr, error) { return WriteBigInt(a, bigOrZero(tx.GasLimit)) })
	w.Encode("gasPrice", func() (asc.Ptr, error) { return WriteBigInt(a, bigOrZero(tx.GasPrice)) })
	w.Encode("input", func() (asc.Ptr, error) { return WriteBytes(a, tx.Input) })
	if schema.Has("nonce") {
		w.Encode("nonce", func() (asc.Ptr, error) { return WriteBigInt(a, bigOrZero(tx.Nonce)) })
	}
	return w.Finish()
}

// DecodeTransaction reads an EthereumTransaction.
func DecodeTransaction(a *asc.Arena, h asc.Handle[asc.RecordShape]) (*graph.Transaction, error) {
	return ReadTransaction(a, h.Ptr())
}

// ReadTransaction validates p as an EthereumTransaction and decodes it.
func ReadTransaction(a *asc.Arena, p asc.Ptr) (*graph.Transaction, error) {
	schema := TransactionSchema(a.Version())
	tx := &graph.Transaction{}
	r := OpenRecord(a, p, schema)
	r.Decode("hash", func(p asc.Ptr) (err error) { tx.Hash, err = ReadHash(a, p); return })
	r.Decode("index", func(p asc.Ptr) (err error) { tx.Index, err = ReadBigInt(a, p); return })
	r.Decode("from", func(p asc.Ptr) (err error) { tx.From, err = ReadAddress(a, p); return })
	r.Decode("to", func(p asc.Ptr) error {
		if p == 0 {
			return nil
		}
		to, err := ReadAddress(a, p)
		tx.To = &to
		return err
	})
	r.Decode("value", func(p asc.Ptr) (err error) { tx.Value, err = ReadBigInt(a, p); return })
	r.Decode("gasLimit", func(p asc.Ptr) (err error) { tx.GasLimit, err = ReadBigInt(a, p); return })
	r.Decode("gasPrice", func(p asc.Ptr) (err error) { tx.GasPrice, err = ReadBigInt(a, p); return })
	r.Decode("input", func(p asc.Ptr) (err error) { tx.Input, err = ReadBytes(a, p); return })
	if schema.Has("nonce") {
		r.Decode("nonce", func(p asc.Ptr) (err error) { tx.Nonce, err = ReadBigInt(a, p); return })
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return tx, nil
}

// EncodeEventParam stores one named parameter.
func EncodeEventParam(a *asc.Arena, param graph.EventParam) (asc.Handle[asc.RecordShape], error) {
	w := NewRecord(a, EventParamSchema)
	w.Encode("name", func() (asc.Ptr, error) {
		h, err := EncodeString(a, param.Name)
		return h.Ptr(), err
	})
	w.Encode("value", func() (asc.Ptr, error) { return WriteToken(a, param.Value) })
	return w.Finish()
}

// ReadEventParam validates p as an EventParam and decodes it.
func ReadEventParam(a *asc.Arena, p asc.Ptr) (graph.EventParam, error) {
	var param graph.EventParam
	r := OpenRecord(a, p, EventParamSchema)
	r.Decode("name", func(p asc.Ptr) (err error) { param.Name, err = ReadString(a, p); return })
	r.Decode("value", func(p asc.Ptr) (err error) { param.Value, err = ReadToken(a, p); return })
	return param, r.Err()
}

func writeEventParam(a *asc.Arena, param graph.EventParam) (asc.Ptr, error) {
	h, err := EncodeEventParam(a, param)
	return h.Ptr(), err
}

func writeParams(a *asc.Arena, params []graph.EventParam) (asc.Ptr, error) {
	h, err := EncodeArrayOf(a, asc.IndexArrayEventParam, params, writeEventParam)
	return h.Ptr(), err
}

func readParams(a *asc.Arena, p asc.Ptr) ([]graph.EventParam, error) {
	return ReadArray(a, p, asc.IndexArrayEventParam, ReadEventParam)
}

func writeBlock(a *asc.Arena, b *graph.Block) (asc.Ptr, error) {
	h, err := EncodeBlock(a, b)
	return h.Ptr(), err
}

func writeTransaction(a *asc.Arena, tx *graph.Transaction) (asc.Ptr, error) {
	h, err := EncodeTransaction(a, tx)
	return h.Ptr(), err
}

// EncodeEvent stores ev with its block, transaction and parameters. From ABI
// 0.0.7 the receipt slot is present and written as null.
func EncodeEvent(a *asc.Arena, ev *graph.Event) (asc.Handle[asc.RecordShape], error) {
	schema := EventSchema(a.Version())
	w := NewRecord(a, schema)
	w.Encode("address", func() (asc.Ptr, error) { return WriteAddress(a, ev.Address) })
	w.Encode("logIndex", func() (asc.Ptr, error) { return WriteBigInt(a, bigOrZero(ev.LogIndex)) })
	w.Encode("transactionLogIndex", func() (asc.Ptr, error) { return WriteBigInt(a, bigOrZero(ev.TransactionLogIndex)) })
	w.Encode("logType", func() (asc.Ptr, error) { return WriteOptionalString(a, ev.LogType) })
	w.Encode("block", func() (asc.Ptr, error) { return writeBlock(a, &ev.Block) })
	w.Encode("transaction", func() (asc.Ptr, error) { return writeTransaction(a, &ev.Transaction) })
	w.Encode("params", func() (asc.Ptr, error) { return writeParams(a, ev.Params) })
	if schema.Has("receipt") {
		w.SetPtr("receipt", 0)
	}
	return w.Finish()
}

// DecodeEvent reads an EthereumEvent. A receipt, if the host sent one, is not
// decoded.
func DecodeEvent(a *asc.Arena, h asc.Handle[asc.RecordShape]) (*graph.Event, error) {
	return ReadEvent(a, h.Ptr())
}

// ReadEvent validates p as an EthereumEvent and decodes it.
func ReadEvent(a *asc.Arena, p asc.Ptr) (*graph.Event, error) {
	ev := &graph.Event{}
	r := OpenRecord(a, p, EventSchema(a.Version()))
	r.Decode("address", func(p asc.Ptr) (err error) { ev.Address, err = ReadAddress(a, p); return })
	r.Decode("logIndex", func(p asc.Ptr) (err error) { ev.LogIndex, err = ReadBigInt(a, p); return })
	r.Decode("transactionLogIndex", func(p asc.Ptr) (err error) { ev.TransactionLogIndex, err = ReadBigInt(a, p); return })
	r.Decode("logType", func(p asc.Ptr) (err error) { ev.LogType, err = ReadOptionalString(a, p); return })
	r.Decode("block", func(p asc.Ptr) error {
		b, err := ReadBlock(a, p)
		if err == nil {
			ev.Block = *b
		}
		return err
	})
	r.Decode("transaction", func(p asc.Ptr) error {
		tx, err := ReadTransaction(a, p)
		if err == nil {
			ev.Transaction = *tx
		}
		return err
	})
	r.Decode("params", func(p asc.Ptr) (err error) { ev.Params, err = readParams(a, p); return })
	if err := r.Err(); err != nil {
		return nil, err
	}
	return ev, nil
}

// EncodeCall stores a contract call.
func EncodeCall(a *asc.Arena, c *graph.Call) (asc.Handle[asc.RecordShape], error) {
	w := NewRecord(a, CallSchema)
	w.Encode("to", func() (asc.Ptr, error) { return WriteAddress(a, c.To) })
	w.Encode("from", func() (asc.Ptr, error) { return WriteAddress(a, c.From) })
	w.Encode("block", func() (asc.Ptr, error) { return writeBlock(a, &c.Block) })
	w.Encode("transaction", func() (asc.Ptr, error) { return writeTransaction(a, &c.Transaction) })
	w.Encode("inputValues", func() (asc.Ptr, error) { return writeParams(a, c.InputValues) })
	w.Encode("outputValues", func() (asc.Ptr, error) { return writeParams(a, c.OutputValues) })
	return w.Finish()
}

// DecodeCall reads an EthereumCall.
func DecodeCall(a *asc.Arena, h asc.Handle[asc.RecordShape]) (*graph.Call, error) {
	return ReadCall(a, h.Ptr())
}

// ReadCall validates p as an EthereumCall and decodes it.
func ReadCall(a *asc.Arena, p asc.Ptr) (*graph.Call, error) {
	c := &graph.Call{}
	r := OpenRecord(a, p, CallSchema)
	r.Decode("to", func(p asc.Ptr) (err error) { c.To, err = ReadAddress(a, p); return })
	r.Decode("from", func(p asc.Ptr) (err error) { c.From, err = ReadAddress(a, p); return })
	r.Decode("block", func(p asc.Ptr) error {
		b, err := ReadBlock(a, p)
		if err == nil {
			c.Block = *b
		}
		return err
	})
	r.Decode("transaction", func(p asc.Ptr) error {
		tx, err := ReadTransaction(a, p)
		if err == nil {
			c.Transaction = *tx
		}
		return err
	})
	r.Decode("inputValues", func(p asc.Ptr) (err error) { c.InputValues, err = readParams(a, p); return })
	r.Decode("outputValues", func(p asc.Ptr) (err error) { c.OutputValues, err = readParams(a, p); return })
	if err := r.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// EncodeSmartContractCall stores the description of an eth_call.
func EncodeSmartContractCall(a *asc.Arena, c *graph.SmartContractCall) (asc.Handle[asc.RecordShape], error) {
	w := NewRecord(a, SmartContractCallSchema)
	str := func(s string) func() (asc.Ptr, error) {
		return func() (asc.Ptr, error) {
			h, err := EncodeString(a, s)
			return h.Ptr(), err
		}
	}
	w.Encode("contractName", str(c.ContractName))
	w.Encode("contractAddress", func() (asc.Ptr, error) { return WriteAddress(a, c.ContractAddress) })
	w.Encode("functionName", str(c.FunctionName))
	w.Encode("functionSignature", str(c.FunctionSignature))
	w.Encode("functionParams", func() (asc.Ptr, error) { return writeTokens(a, c.FunctionParams) })
	return w.Finish()
}

// DecodeSmartContractCall reads a SmartContractCall.
func DecodeSmartContractCall(a *asc.Arena, h asc.Handle[asc.RecordShape]) (*graph.SmartContractCall, error) {
	return ReadSmartContractCall(a, h.Ptr())
}

// ReadSmartContractCall validates p as a SmartContractCall and decodes it.
func ReadSmartContractCall(a *asc.Arena, p asc.Ptr) (*graph.SmartContractCall, error) {
	c := &graph.SmartContractCall{}
	r := OpenRecord(a, p, SmartContractCallSchema)
	r.Decode("contractName", func(p asc.Ptr) (err error) { c.ContractName, err = ReadString(a, p); return })
	r.Decode("contractAddress", func(p asc.Ptr) (err error) { c.ContractAddress, err = ReadAddress(a, p); return })
	r.Decode("functionName", func(p asc.Ptr) (err error) { c.FunctionName, err = ReadString(a, p); return })
	r.Decode("functionSignature", func(p asc.Ptr) (err error) { c.FunctionSignature, err = ReadString(a, p); return })
	r.Decode("functionParams", func(p asc.Ptr) (err error) {
		c.FunctionParams, err = ReadArray(a, p, asc.IndexArrayEthereumValue, ReadToken)
		return
	})
	if err := r.Err(); err != nil {
		return nil, err
	}
	return c, nil
}
