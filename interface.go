package txpipe

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Pipeline is the public contract of the transaction dispatch pipeline:
// the composed NonceManager, TransactionBuilder, Sender, and
// ErrorClassifier.
//
// This interface exists so callers can mock the whole pipeline in tests;
// the concrete implementation is *TxPipeline.
type Pipeline interface {
	// Send submits a single contract call.
	Send(ctx context.Context, p SendParams) (*types.Receipt, error)
	// SendChain submits an ordered chain of contract calls.
	SendChain(ctx context.Context, p ChainSendParams) (*types.Receipt, error)
	// SendTransfer submits a native-coin transfer.
	SendTransfer(ctx context.Context, from common.Address, cb SignCallback, to common.Address, value *big.Int, overrides TxOverrides) (*types.Receipt, error)

	// AcquireNonce and ReleaseNonce expose the nonce manager directly for
	// callers that build and submit transactions themselves.
	AcquireNonce(ctx context.Context, address common.Address) (uint64, error)
	ReleaseNonce(ctx context.Context, address common.Address, nonce uint64) error
	ClearAccounts()

	// Details resolves the status of a hash or (address, nonce) pair.
	Details() *TransactionDetails

	Config() *Config
}

var _ Pipeline = (*TxPipeline)(nil)
