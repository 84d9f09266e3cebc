package txpipe

import (
	"context"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
)

// AccountInspector answers node-side questions about an account that the
// nonce manager and transaction-details resolver need but don't want to ask
// the node client directly: how many transactions have actually mined, and
// what the mempool currently holds for that address.
//
// It never trusts a node-reported "pending tx count"; ConfirmedCount is
// always the latest-block confirmed count.
type AccountInspector struct {
	node NodeClient
}

// NewAccountInspector wraps node with the inspector's normalization and
// degraded-mempool handling.
func NewAccountInspector(node NodeClient) *AccountInspector {
	return &AccountInspector{node: node}
}

// ConfirmedCount returns the number of confirmed transactions sent from
// address, i.e. the lowest nonce not yet consumed by a mined transaction.
func (a *AccountInspector) ConfirmedCount(ctx context.Context, address common.Address) (uint64, error) {
	return a.node.ConfirmedCount(ctx, address)
}

// InspectMempool returns address's pending/queued nonce sets. If the node
// doesn't implement the underlying txpool RPC method, InspectMempool
// returns empty sets rather than an error: absent mempool support is a
// distinct observable state, not a failure. Callers that need to
// distinguish "empty" from "unsupported" (TransactionDetails.ByNonce) use
// InspectMempoolStrict instead.
func (a *AccountInspector) InspectMempool(ctx context.Context, address common.Address) (*MempoolView, error) {
	view, err := a.InspectMempoolStrict(ctx, address)
	if err != nil {
		if IsMethodNotSupported(err) {
			logger.WithFields(logger.Fields{
				"address": address.Hex(),
			}).Debug("txpipe: mempool inspect not supported by node, returning empty view")
			return &MempoolView{
				Pending: map[uint64]*RawTransaction{},
				Queued:  map[uint64]*RawTransaction{},
			}, nil
		}
		return nil, err
	}
	return view, nil
}

// InspectMempoolStrict is InspectMempool without the unsupported-to-empty
// translation: a node that doesn't implement the RPC method surfaces an
// error matched by IsMethodNotSupported.
func (a *AccountInspector) InspectMempoolStrict(ctx context.Context, address common.Address) (*MempoolView, error) {
	snapshot, err := a.node.MempoolInspect(ctx)
	if err != nil {
		return nil, err
	}

	checksummed := address.Hex()
	view := &MempoolView{
		Pending: map[uint64]*RawTransaction{},
		Queued:  map[uint64]*RawTransaction{},
	}
	for nonce := range snapshot.Pending[checksummed] {
		view.Pending[nonce] = nil
	}
	for nonce := range snapshot.Queued[checksummed] {
		view.Queued[nonce] = nil
	}
	return view, nil
}
