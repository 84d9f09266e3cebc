package txpipe

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/KyberNetwork/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SendParams describes a single externally- or node-signed call send.
type SendParams struct {
	From         common.Address
	SignCallback SignCallback
	Contract     string
	Method       string
	Args         []any
	Value        *big.Int
	Overrides    TxOverrides
}

// ChainSendParams describes an ordered chain send.
type ChainSendParams struct {
	From         common.Address
	SignCallback SignCallback
	Transactions []CallParams
	Overrides    TxOverrides
}

// Sender drives single and chained submissions through an optional
// external signer, polls for mining, and releases nonces on failure
// according to the pipeline's nonce-release policy.
type Sender struct {
	builder *TransactionBuilder
	nonces  *NonceManager
	waiter  *ReceiptWaiter
	node    NodeClient
	config  *Config
}

// NewSender wires a Sender to its collaborators.
func NewSender(builder *TransactionBuilder, nonces *NonceManager, waiter *ReceiptWaiter, node NodeClient, config *Config) *Sender {
	return &Sender{builder: builder, nonces: nonces, waiter: waiter, node: node, config: config}
}

// signedSender signs raw transactions via SignCallback, decoding each
// returned blob and asserting its recovered sender equals from.
func (s *Sender) signedSender(ctx context.Context, from common.Address, cb SignCallback, txs []*RawTransaction) ([]*types.Transaction, error) {
	type result struct {
		blobs [][]byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		blobs, err := cb(ctx, from, txs)
		done <- result{blobs, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-time.After(s.config.TxSigningTimeout):
		return nil, newTimeout(fmt.Errorf("signer callback exceeded %s", s.config.TxSigningTimeout))
	case <-ctx.Done():
		return nil, newTimeout(ctx.Err())
	}
	if res.err != nil {
		return nil, Classify(res.err)
	}
	if len(res.blobs) != len(txs) {
		return nil, Classify(fmt.Errorf("signer returned %d signatures for %d transactions", len(res.blobs), len(txs)))
	}

	signed := make([]*types.Transaction, len(res.blobs))
	for i, blob := range res.blobs {
		tx := new(types.Transaction)
		if err := tx.UnmarshalBinary(blob); err != nil {
			return nil, Classify(fmt.Errorf("decoding signed transaction %d: %w", i, err))
		}
		signer := types.LatestSignerForChainID(tx.ChainId())
		recovered, err := types.Sender(signer, tx)
		if err != nil {
			return nil, newSignerMismatch(err)
		}
		if recovered != from {
			return nil, newSignerMismatch(fmt.Errorf("recovered %s, expected %s", recovered.Hex(), from.Hex()))
		}
		signed[i] = tx
	}
	return signed, nil
}

// Send submits a single contract call.
func (s *Sender) Send(ctx context.Context, p SendParams) (*types.Receipt, error) {
	assignedNonce := p.SignCallback != nil

	tx, err := s.builder.BuildCall(ctx, CallParams{
		From:          p.From,
		Contract:      p.Contract,
		Method:        p.Method,
		Args:          p.Args,
		AssignedNonce: assignedNonce,
		Overrides:     p.Overrides,
	})
	if err != nil {
		return nil, Classify(err)
	}
	if p.Value != nil {
		tx.Value = p.Value
	}

	hash, err := s.submit(ctx, p.From, p.SignCallback, tx)
	if err != nil {
		s.releaseOnFailure(ctx, p.From, tx, err)
		return nil, Classify(err)
	}

	return s.waitForReceipt(ctx, p.From, tx, hash)
}

// SendTransfer is Send with BuildTransfer instead of BuildCall.
func (s *Sender) SendTransfer(ctx context.Context, from common.Address, cb SignCallback, to common.Address, value *big.Int, overrides TxOverrides) (*types.Receipt, error) {
	assignedNonce := cb != nil

	tx, err := s.builder.BuildTransfer(ctx, TransferParams{
		From:          from,
		To:            to,
		Value:         value,
		AssignedNonce: assignedNonce,
		Overrides:     overrides,
	})
	if err != nil {
		return nil, Classify(err)
	}

	hash, err := s.submit(ctx, from, cb, tx)
	if err != nil {
		s.releaseOnFailure(ctx, from, tx, err)
		return nil, Classify(err)
	}

	return s.waitForReceipt(ctx, from, tx, hash)
}

// submit signs (if cb given) and broadcasts tx, returning its hash.
func (s *Sender) submit(ctx context.Context, from common.Address, cb SignCallback, tx *RawTransaction) (common.Hash, error) {
	if cb != nil {
		signed, err := s.signedSender(ctx, from, cb, []*RawTransaction{tx})
		if err != nil {
			return common.Hash{}, err
		}
		raw, err := signed[0].MarshalBinary()
		if err != nil {
			return common.Hash{}, Classify(err)
		}
		hash, err := s.node.SendRaw(ctx, raw)
		if err != nil {
			return common.Hash{}, Classify(err)
		}
		return hash, nil
	}

	hash, err := s.node.SendTx(ctx, tx)
	if err != nil {
		return common.Hash{}, Classify(err)
	}
	return hash, nil
}

// releaseOnFailure releases the assigned nonce on send or mining failure,
// unless the classified error is KindInvalidNonce: the node rejected this
// very nonce, so handing it back to the pool would only let the next
// acquisition repeat the failure; it stays reserved instead.
func (s *Sender) releaseOnFailure(ctx context.Context, from common.Address, tx *RawTransaction, err error) {
	if !tx.NonceAcquired {
		return
	}
	classified := Classify(err)
	if classified.Kind == KindInvalidNonce {
		logger.WithFields(logger.Fields{
			"address": from.Hex(),
			"nonce":   *tx.Nonce,
		}).Warn("txpipe: invalid-nonce error, retaining reserved nonce")
		return
	}
	if releaseErr := s.nonces.Release(ctx, from, *tx.Nonce); releaseErr != nil {
		logger.WithFields(logger.Fields{
			"address": from.Hex(),
			"nonce":   *tx.Nonce,
			"error":   releaseErr,
		}).Error("txpipe: failed to release nonce after send failure")
	}
}

func (s *Sender) waitForReceipt(ctx context.Context, from common.Address, tx *RawTransaction, hash common.Hash) (*types.Receipt, error) {
	receipt, err := s.waiter.Wait(ctx, hash, s.config.TxMiningTimeout)
	if err != nil {
		s.releaseOnFailure(ctx, from, tx, err)
		return nil, Classify(err)
	}
	return receipt, nil
}

// SendChain drives an ordered chain of transactions through an optional
// single batch external signer.
func (s *Sender) SendChain(ctx context.Context, p ChainSendParams) (*types.Receipt, error) {
	assignedNonce := p.SignCallback != nil

	txs, err := s.builder.BuildChain(ctx, ChainParams{
		From:          p.From,
		Transactions:  p.Transactions,
		AssignedNonce: assignedNonce,
		Overrides:     p.Overrides,
	})
	if err != nil {
		return nil, Classify(err)
	}

	var signed []*types.Transaction
	if p.SignCallback != nil {
		signed, err = s.signedSender(ctx, p.From, p.SignCallback, txs)
		if err != nil {
			return nil, s.failChain(ctx, p.From, txs, 0, err)
		}
	}

	var lastReceipt *types.Receipt
	for i, tx := range txs {
		var hash common.Hash
		if p.SignCallback != nil {
			raw, marshalErr := signed[i].MarshalBinary()
			if marshalErr != nil {
				return nil, s.failChain(ctx, p.From, txs, i, marshalErr)
			}
			hash, err = s.node.SendRaw(ctx, raw)
		} else {
			hash, err = s.node.SendTx(ctx, tx)
		}
		if err != nil {
			return nil, s.failChain(ctx, p.From, txs, i, err)
		}

		receipt, waitErr := s.waiter.Wait(ctx, hash, s.config.TxMiningTimeout)
		if waitErr != nil {
			return nil, s.failChain(ctx, p.From, txs, i, waitErr)
		}
		lastReceipt = receipt
	}

	return lastReceipt, nil
}

// failChain implements the chain-failure release policy: the remainder from
// the failing step onward is the unsent list; its nonces are released
// unless the failure is KindInvalidNonce, in which case the failing
// transaction's own nonce is retained.
func (s *Sender) failChain(ctx context.Context, from common.Address, txs []*RawTransaction, failedIdx int, cause error) error {
	unsent := txs[failedIdx:]
	classified := Classify(cause)

	var toRelease []uint64
	for i, tx := range unsent {
		if !tx.NonceAcquired {
			continue
		}
		if i == 0 && classified.Kind == KindInvalidNonce {
			// the failing transaction's own nonce is retained
			continue
		}
		toRelease = append(toRelease, *tx.Nonce)
	}
	if len(toRelease) > 0 {
		if err := s.nonces.ReleaseMany(ctx, from, toRelease); err != nil {
			logger.WithFields(logger.Fields{
				"address": from.Hex(),
				"nonces":  toRelease,
				"error":   err,
			}).Error("txpipe: failed to release chain nonces after failure")
		}
	}

	return newFailedTxChain(cause, unsent)
}
