package txpipe

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// TransactionDetails resolves the status of a hash or (address, nonce) pair
// by combining receipt lookup, mempool inspection, and confirmed count.
type TransactionDetails struct {
	node      NodeClient
	inspector *AccountInspector
}

// NewTransactionDetails wires a TransactionDetails resolver.
func NewTransactionDetails(node NodeClient, inspector *AccountInspector) *TransactionDetails {
	return &TransactionDetails{node: node, inspector: inspector}
}

// ByHash resolves hash: mined if it has a receipt, else searched in the
// mempool's content view under from's checksummed address, else unknown.
// Degrades to StatusUnsupported if the node's content RPC isn't
// implemented.
func (d *TransactionDetails) ByHash(ctx context.Context, from common.Address, hash common.Hash) (*TransactionInfo, error) {
	receipt, err := d.node.GetReceipt(ctx, hash)
	if err != nil {
		return nil, Classify(err)
	}
	if receipt != nil {
		return &TransactionInfo{Status: StatusMined, Receipt: receipt}, nil
	}

	content, err := d.node.MempoolContent(ctx)
	if err != nil {
		if IsMethodNotSupported(err) {
			return &TransactionInfo{Status: StatusUnsupported}, nil
		}
		return nil, Classify(err)
	}

	checksummed := from.Hex()
	for _, mt := range content.Pending[checksummed] {
		if mt != nil && mt.Hash == hash {
			return &TransactionInfo{Status: StatusPending, Tx: mt.Tx}, nil
		}
	}
	for _, mt := range content.Queued[checksummed] {
		if mt != nil && mt.Hash == hash {
			return &TransactionInfo{Status: StatusQueued, Tx: mt.Tx}, nil
		}
	}

	return &TransactionInfo{Status: StatusUnknown}, nil
}

// ByNonce resolves (from, nonce) against the mempool's inspect view, falling
// back to ConfirmedCount when the nonce isn't in either sub-pool.
func (d *TransactionDetails) ByNonce(ctx context.Context, from common.Address, nonce uint64) (TransactionStatus, error) {
	view, err := d.inspector.InspectMempoolStrict(ctx, from)
	if err != nil {
		if IsMethodNotSupported(err) {
			return StatusUnsupported, nil
		}
		return StatusUnknown, Classify(err)
	}

	if _, ok := view.Pending[nonce]; ok {
		return StatusPending, nil
	}
	if _, ok := view.Queued[nonce]; ok {
		return StatusQueued, nil
	}

	confirmed, err := d.inspector.ConfirmedCount(ctx, from)
	if err != nil {
		return StatusUnknown, Classify(err)
	}
	if nonce < confirmed {
		return StatusMined, nil
	}
	return StatusUnknown, nil
}
