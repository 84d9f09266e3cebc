package txpipe

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TransactionBuilder assembles RawTransactions with correct nonce, gas, and
// data fields. It never signs or submits anything; that's Sender's job.
type TransactionBuilder struct {
	catalog ContractCatalog
	nonces  *NonceManager
	config  *Config
}

// NewTransactionBuilder wires a builder to its contract catalog, nonce
// manager, and the pipeline's default configuration.
func NewTransactionBuilder(catalog ContractCatalog, nonces *NonceManager, config *Config) *TransactionBuilder {
	return &TransactionBuilder{catalog: catalog, nonces: nonces, config: config}
}

func (b *TransactionBuilder) resolveGas(overrides TxOverrides) uint64 {
	if overrides.Gas != nil {
		return *overrides.Gas
	}
	return b.config.GasLimit
}

func (b *TransactionBuilder) resolveGasPrice(overrides TxOverrides) *big.Int {
	if overrides.GasPrice != nil {
		return overrides.GasPrice
	}
	return new(big.Int).Set(b.config.GasPrice)
}

func (b *TransactionBuilder) resolveChainID(overrides TxOverrides) *big.Int {
	if overrides.ChainID != nil {
		return overrides.ChainID
	}
	return new(big.Int).Set(b.config.ChainID)
}

// resolveNonce implements the three nonce modes: explicit override,
// manager-assigned, or node-assigned (nil, left unset). If it acquires a
// nonce from the manager, the caller must release it on any subsequent
// failure (nonce-release compensation is the builder's responsibility).
func (b *TransactionBuilder) resolveNonce(ctx context.Context, from common.Address, assignedNonce bool, overrides TxOverrides) (*uint64, bool, error) {
	if overrides.Nonce != nil {
		return overrides.Nonce, false, nil
	}
	if !assignedNonce {
		return nil, false, nil
	}
	nonce, err := b.nonces.Acquire(ctx, from)
	if err != nil {
		return nil, false, err
	}
	return &nonce, true, nil
}

// BuildCall resolves p.Contract via the catalog, encodes the call, and
// produces a RawTransaction.
func (b *TransactionBuilder) BuildCall(ctx context.Context, p CallParams) (*RawTransaction, error) {
	contract, err := b.catalog.Get(p.Contract)
	if err != nil {
		return nil, Classify(err)
	}

	nonce, acquired, err := b.resolveNonce(ctx, p.From, p.AssignedNonce, p.Overrides)
	if err != nil {
		return nil, Classify(err)
	}

	data, err := contract.EncodeCall(p.Method, p.Args...)
	if err != nil {
		if acquired {
			b.nonces.Release(ctx, p.From, *nonce)
		}
		return nil, Classify(err)
	}

	return &RawTransaction{
		From:          p.From,
		To:            contract.Address(),
		Value:         big.NewInt(0),
		Gas:           b.resolveGas(p.Overrides),
		GasPrice:      b.resolveGasPrice(p.Overrides),
		ChainID:       b.resolveChainID(p.Overrides),
		Nonce:         nonce,
		Data:          data,
		NonceAcquired: acquired,
	}, nil
}

// BuildTransfer builds a native-coin-transfer RawTransaction: empty data,
// gas hard-fixed to NativeTransferGas unless overridden.
func (b *TransactionBuilder) BuildTransfer(ctx context.Context, p TransferParams) (*RawTransaction, error) {
	nonce, acquired, err := b.resolveNonce(ctx, p.From, p.AssignedNonce, p.Overrides)
	if err != nil {
		return nil, Classify(err)
	}

	gas := uint64(NativeTransferGas)
	if p.Overrides.Gas != nil {
		gas = *p.Overrides.Gas
	}

	value := p.Value
	if value == nil {
		value = big.NewInt(0)
	}

	return &RawTransaction{
		From:          p.From,
		To:            p.To,
		Value:         value,
		Gas:           gas,
		GasPrice:      b.resolveGasPrice(p.Overrides),
		ChainID:       b.resolveChainID(p.Overrides),
		Nonce:         nonce,
		Data:          nil,
		NonceAcquired: acquired,
	}, nil
}

// BuildChain applies BuildCall to each entry in order, producing a
// contiguous nonce run when p.AssignedNonce is true. If any build step
// fails, every nonce already acquired in the chain is released before the
// error propagates.
func (b *TransactionBuilder) BuildChain(ctx context.Context, p ChainParams) ([]*RawTransaction, error) {
	txs := make([]*RawTransaction, 0, len(p.Transactions))
	var acquiredNonces []uint64

	for _, call := range p.Transactions {
		call.From = p.From
		call.AssignedNonce = p.AssignedNonce
		if call.Overrides == (TxOverrides{}) {
			call.Overrides = p.Overrides
		}

		tx, err := b.BuildCall(ctx, call)
		if err != nil {
			b.nonces.ReleaseMany(ctx, p.From, acquiredNonces)
			return nil, Classify(err)
		}
		if tx.NonceAcquired {
			acquiredNonces = append(acquiredNonces, *tx.Nonce)
		}
		txs = append(txs, tx)
	}

	return txs, nil
}
