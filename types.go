package txpipe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// RawTransaction carries the semantic fields of an unsent transaction. It is
// the pipeline's own wire-agnostic representation; ToGethTx converts to
// go-ethereum's *types.Transaction when a component needs to sign, hash, or
// submit one.
type RawTransaction struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
	ChainID  *big.Int
	Nonce    *uint64 // nil means "let the node assign"
	Data     []byte

	// NonceAcquired records whether Nonce was reserved from a NonceManager
	// (true) versus supplied via TxOverrides.Nonce or left for the node to
	// assign (false). Only a manager-acquired nonce may be released back to
	// the pool on failure; an override nonce was never in the manager's
	// reserved set and releasing it could clobber a concurrent caller's
	// legitimate reservation for the same value.
	NonceAcquired bool
}

// NativeTransferGas is the fixed gas limit for a plain native-coin transfer
// on every EVM chain.
const NativeTransferGas = 21000

// ToGethTx converts r into a go-ethereum legacy transaction suitable for
// signing or RLP encoding. r.Nonce must be set; callers resolve nonce
// assignment before reaching this conversion.
func (r *RawTransaction) ToGethTx() *types.Transaction {
	var nonce uint64
	if r.Nonce != nil {
		nonce = *r.Nonce
	}
	to := r.To
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    r.Value,
		Gas:      r.Gas,
		GasPrice: r.GasPrice,
		Data:     r.Data,
	})
}

// MempoolView is the per-address slice of a node's mempool, split into the
// pending (dispatch-ready) and queued (gap-blocked) sublists.
type MempoolView struct {
	Pending map[uint64]*RawTransaction
	Queued  map[uint64]*RawTransaction
}

// MempoolSnapshot is the "inspect" shape of a node's mempool: addresses to
// the set of nonces the node is holding for them, without full tx bodies.
type MempoolSnapshot struct {
	// Pending maps checksummed address -> set of pending nonces.
	Pending map[string]map[uint64]bool
	// Queued maps checksummed address -> set of queued nonces.
	Queued map[string]map[uint64]bool
}

// MempoolTx pairs a mempool-listed transaction with the hash the node
// itself reports for it. RawTransaction alone can't stand in for the hash:
// it carries no signature, so its own derived hash is the unsigned form and
// never matches the signed transaction's real hash.
type MempoolTx struct {
	Tx   *RawTransaction
	Hash common.Hash
}

// MempoolContentSnapshot is the "content" shape of a node's mempool: full
// transaction bodies instead of bare nonces.
type MempoolContentSnapshot struct {
	Pending map[string]map[uint64]*MempoolTx
	Queued  map[string]map[uint64]*MempoolTx
}

// TransactionStatus is the closed status enumeration TransactionDetails
// resolves a hash or (address, nonce) pair to.
type TransactionStatus int

const (
	StatusUnknown TransactionStatus = iota
	StatusPending
	StatusQueued
	StatusMined
	StatusUnsupported
)

func (s TransactionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusQueued:
		return "queued"
	case StatusMined:
		return "mined"
	case StatusUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// TransactionInfo is the result of TransactionDetails.ByHash.
type TransactionInfo struct {
	Status  TransactionStatus
	Receipt *types.Receipt
	Tx      *RawTransaction
}

// TxOverrides are per-call overrides a caller may supply to bypass pipeline
// defaults. Supplying Nonce bypasses NonceManager entirely: neither Acquire
// nor Release happens for that call.
type TxOverrides struct {
	Nonce              *uint64
	Gas                *uint64
	GasPrice           *big.Int
	ChainID            *big.Int
	WaitForMineTimeout *int64 // seconds; not read by Sender, which always waits Config.TxMiningTimeout
}

// Contract is the minimal shape the pipeline needs from an ABI-aware
// binding. ABI encoding itself is explicitly out of scope; production
// callers supply a Contract backed by generated bindings or a dynamic ABI
// encoder.
type Contract interface {
	Address() common.Address
	EncodeCall(method string, args ...any) ([]byte, error)
}

// ContractCatalog resolves contract names to Contract bindings, memoizing
// lookups so repeated calls are cheap. Implementations must be safe for
// concurrent use.
type ContractCatalog interface {
	Get(name string) (Contract, error)
}

// CallParams describes a single contract-call transaction to build.
type CallParams struct {
	From          common.Address
	Contract      string
	Method        string
	Args          []any
	AssignedNonce bool
	Overrides     TxOverrides
}

// TransferParams describes a single native-coin-transfer transaction to
// build.
type TransferParams struct {
	From          common.Address
	To            common.Address
	Value         *big.Int
	AssignedNonce bool
	Overrides     TxOverrides
}

// ChainParams describes an ordered list of contract-call transactions to
// build together, sharing From and (if AssignedNonce) a contiguous nonce
// run.
type ChainParams struct {
	From          common.Address
	Transactions  []CallParams
	AssignedNonce bool
	Overrides     TxOverrides
}
