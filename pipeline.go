package txpipe

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxPipeline composes the core components into the single object an
// application holds for its lifetime: one NonceManager and one Sender per
// address space, shared across every Send/SendChain/SendTransfer call.
type TxPipeline struct {
	config    *Config
	node      NodeClient
	catalog   ContractCatalog
	inspector *AccountInspector
	nonces    *NonceManager
	builder   *TransactionBuilder
	waiter    *ReceiptWaiter
	sender    *Sender
	details   *TransactionDetails
}

// PipelineOption configures a TxPipeline at construction time.
type PipelineOption func(*pipelineSettings)

type pipelineSettings struct {
	config  *Config
	store   KVStore
	catalog ContractCatalog
}

// WithConfig overrides the default configuration.
func WithConfig(config *Config) PipelineOption {
	return func(s *pipelineSettings) { s.config = config }
}

// WithStore overrides the default in-memory nonce store, e.g. with
// persistence/redis.Store for durability across restarts.
func WithStore(store KVStore) PipelineOption {
	return func(s *pipelineSettings) { s.store = store }
}

// WithContractCatalog supplies the ABI-aware catalog used to resolve
// contract names in Send/BuildCall. Required for any call that isn't a
// plain transfer.
func WithContractCatalog(catalog ContractCatalog) PipelineOption {
	return func(s *pipelineSettings) { s.catalog = catalog }
}

// NewPipeline builds a TxPipeline wired to node, with the given options.
// If PreloadContracts is set in the resolved config (default true) and a
// catalog is provided, the catalog's Get is not proactively called here —
// preloading is the responsibility of the ContractCatalog implementation,
// since the pipeline has no way to enumerate "every known contract" on a
// generic catalog; PreloadContracts documents the contract, callers that
// want eager validation call catalog.Get for each known name before
// constructing the pipeline.
func NewPipeline(node NodeClient, opts ...PipelineOption) *TxPipeline {
	settings := &pipelineSettings{
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(settings)
	}
	if settings.store == nil {
		settings.store = NewInMemoryStore(
			WithStoreLockAcquireTimeout(settings.config.LockAcquireTimeout),
			WithStoreLockTimeout(settings.config.LockTimeout),
		)
	}

	inspector := NewAccountInspector(node)
	nonces := NewNonceManager(settings.store, inspector)
	builder := NewTransactionBuilder(settings.catalog, nonces, settings.config)
	waiter := NewReceiptWaiter(node)
	sender := NewSender(builder, nonces, waiter, node, settings.config)
	details := NewTransactionDetails(node, inspector)

	return &TxPipeline{
		config:    settings.config,
		node:      node,
		catalog:   settings.catalog,
		inspector: inspector,
		nonces:    nonces,
		builder:   builder,
		waiter:    waiter,
		sender:    sender,
		details:   details,
	}
}

func (p *TxPipeline) Send(ctx context.Context, sp SendParams) (*types.Receipt, error) {
	return p.sender.Send(ctx, sp)
}

func (p *TxPipeline) SendChain(ctx context.Context, cp ChainSendParams) (*types.Receipt, error) {
	return p.sender.SendChain(ctx, cp)
}

func (p *TxPipeline) SendTransfer(ctx context.Context, from common.Address, cb SignCallback, to common.Address, value *big.Int, overrides TxOverrides) (*types.Receipt, error) {
	return p.sender.SendTransfer(ctx, from, cb, to, value, overrides)
}

func (p *TxPipeline) AcquireNonce(ctx context.Context, address common.Address) (uint64, error) {
	return p.nonces.Acquire(ctx, address)
}

func (p *TxPipeline) ReleaseNonce(ctx context.Context, address common.Address, nonce uint64) error {
	return p.nonces.Release(ctx, address, nonce)
}

func (p *TxPipeline) ClearAccounts() {
	p.nonces.ClearAccounts()
}

func (p *TxPipeline) Details() *TransactionDetails {
	return p.details
}

func (p *TxPipeline) Config() *Config {
	return p.config
}

var (
	defaultPipelineOnce sync.Once
	defaultPipeline     *TxPipeline
)

// NewDefaultPipeline returns a process-wide singleton TxPipeline, built on
// first call with node and opts and reused on every subsequent call
// (subsequent node/opts arguments are ignored). This is a thin convenience
// constructor: most of the library is the constructed object, but
// applications that don't want to thread a *TxPipeline through their call
// graph can use this instead.
func NewDefaultPipeline(node NodeClient, opts ...PipelineOption) *TxPipeline {
	defaultPipelineOnce.Do(func() {
		defaultPipeline = NewPipeline(node, opts...)
	})
	return defaultPipeline
}
