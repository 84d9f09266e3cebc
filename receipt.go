package txpipe

import (
	"context"
	"errors"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// receiptPollInterval is the fixed interval between receipt polls.
const receiptPollInterval = 500 * time.Millisecond

// ReceiptWaiter polls a NodeClient for a transaction receipt until it mines,
// times out, or the node reports a failure status.
type ReceiptWaiter struct {
	node NodeClient
}

// NewReceiptWaiter wraps node for receipt polling.
func NewReceiptWaiter(node NodeClient) *ReceiptWaiter {
	return &ReceiptWaiter{node: node}
}

// Wait polls for hash's receipt every 500ms until it mines, timeout
// elapses, or ctx is cancelled. A mined-but-reverted receipt fails with
// KindGeneric; exceeding timeout fails with KindTimeout.
func (w *ReceiptWaiter) Wait(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.node.GetReceipt(ctx, hash)
		if err != nil {
			return nil, Classify(err)
		}
		if receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				logger.WithFields(logger.Fields{
					"hash": hash.Hex(),
				}).Warn("txpipe: transaction mined with failure status")
				return nil, Classify(errors.New("tx failed"))
			}
			return receipt, nil
		}

		if time.Now().After(deadline) {
			return nil, newTimeout(errors.New("receipt wait timed out"))
		}

		select {
		case <-ctx.Done():
			return nil, newTimeout(ctx.Err())
		case <-ticker.C:
		}
	}
}

// WaitAll waits for every hash in hashes in parallel, returning receipts in
// the same order. The first error encountered (by completion order, not
// index order) is returned; remaining waits are not cancelled but their
// results are discarded.
func (w *ReceiptWaiter) WaitAll(ctx context.Context, hashes []common.Hash, timeout time.Duration) ([]*types.Receipt, error) {
	type outcome struct {
		index   int
		receipt *types.Receipt
		err     error
	}

	results := make(chan outcome, len(hashes))
	for i, h := range hashes {
		go func(i int, h common.Hash) {
			receipt, err := w.Wait(ctx, h, timeout)
			results <- outcome{i, receipt, err}
		}(i, h)
	}

	receipts := make([]*types.Receipt, len(hashes))
	var firstErr error
	for range hashes {
		out := <-results
		if out.err != nil {
			if firstErr == nil {
				firstErr = out.err
			}
			continue
		}
		receipts[out.index] = out.receipt
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return receipts, nil
}

// WaitReceipt is a pass-through for an already-resolved receipt: it
// validates the success status without polling.
func (w *ReceiptWaiter) WaitReceipt(receipt *types.Receipt) (*types.Receipt, error) {
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, Classify(errors.New("tx failed"))
	}
	return receipt, nil
}
