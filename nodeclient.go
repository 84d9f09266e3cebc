package txpipe

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// NodeClient is the minimal capability the pipeline requires from a
// connected node. Concrete implementations talk JSON-RPC, GraphQL, or
// whatever the host chain exposes; the pipeline only ever sees this
// interface so it can be driven against test doubles.
//
// Every operation takes a context and may suspend; implementations must
// honor cancellation.
type NodeClient interface {
	// SendRaw submits an already-signed transaction and returns its hash.
	SendRaw(ctx context.Context, raw []byte) (common.Hash, error)

	// SendTx asks the node to sign (with its own key management) and
	// submit tx, returning its hash. Used when no SignCallback is given.
	SendTx(ctx context.Context, tx *RawTransaction) (common.Hash, error)

	// GetReceipt returns the mined receipt for hash, or (nil, nil) if the
	// transaction is not yet mined.
	GetReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// ConfirmedCount returns the number of confirmed (mined) transactions
	// sent from address, i.e. the lowest nonce not yet used.
	ConfirmedCount(ctx context.Context, address common.Address) (uint64, error)

	// MempoolInspect returns the bare-nonce view of the node's mempool.
	// Implementations must return an error matched by IsMethodNotSupported
	// when the node doesn't implement the underlying RPC method; callers
	// translate that into an explicit unsupported state rather than a
	// failure.
	MempoolInspect(ctx context.Context) (*MempoolSnapshot, error)

	// MempoolContent is MempoolInspect's full-transaction-body counterpart.
	MempoolContent(ctx context.Context) (*MempoolContentSnapshot, error)

	// GetCode returns the bytecode deployed at address, or an empty slice
	// for an address with no code.
	GetCode(ctx context.Context, address common.Address) ([]byte, error)
}

// SignCallback signs one or more raw transactions out of process (e.g. a
// hardware wallet, a remote signing service, or a key the caller doesn't
// want the pipeline to ever hold). It must return signed transaction blobs
// of the same length as txs, each of which recovers to from when decoded.
type SignCallback func(ctx context.Context, from common.Address, txs []*RawTransaction) ([][]byte, error)
