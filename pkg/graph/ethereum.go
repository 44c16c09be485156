package graph

import "math/big"

// Block is the block header passed to handlers. Size and BaseFeePerGas are
// nil when unknown; BaseFeePerGas only crosses the boundary from ABI 0.0.6.
type Block struct {
	Hash             Hash
	ParentHash       Hash
	UnclesHash       Hash
	Author           Address
	StateRoot        Hash
	TransactionsRoot Hash
	ReceiptsRoot     Hash
	Number           *big.Int
	GasUsed          *big.Int
	GasLimit         *big.Int
	Timestamp        *big.Int
	Difficulty       *big.Int
	TotalDifficulty  *big.Int
	Size             *big.Int
	BaseFeePerGas    *big.Int
}

// Transaction is the transaction that emitted an event or call. To is nil for
// contract creation. Nonce only crosses the boundary from ABI 0.0.6.
type Transaction struct {
	Hash     Hash
	Index    *big.Int
	From     Address
	To       *Address
	Value    *big.Int
	GasLimit *big.Int
	GasPrice *big.Int
	Input    []byte
	Nonce    *big.Int
}

// EventParam is one decoded log parameter.
type EventParam struct {
	Name  string
	Value Token
}

// Event is a contract log routed to an event handler.
type Event struct {
	Address             Address
	LogIndex            *big.Int
	TransactionLogIndex *big.Int
	LogType             *string
	Block               Block
	Transaction         Transaction
	Params              []EventParam
}

// Param returns the parameter called name.
func (e *Event) Param(name string) (Token, bool) {
	for _, p := range e.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Call is a contract call routed to a call handler.
type Call struct {
	To           Address
	From         Address
	Block        Block
	Transaction  Transaction
	InputValues  []EventParam
	OutputValues []EventParam
}

// SmartContractCall describes an eth_call issued by a mapping.
type SmartContractCall struct {
	ContractName      string
	ContractAddress   Address
	FunctionName      string
	FunctionSignature string
	FunctionParams    []Token
}
