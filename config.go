package txpipe

import (
	"math/big"
	"time"
)

// Config holds the pipeline's default configuration, inherited by every
// Send/SendChain/SendTransfer call unless overridden per-call via
// TxOverrides.
type Config struct {
	GasPrice *big.Int
	GasLimit uint64
	ChainID  *big.Int

	TxMiningTimeout    time.Duration
	TxSigningTimeout   time.Duration
	LockAcquireTimeout time.Duration
	LockCheckInterval  time.Duration
	LockTimeout        time.Duration

	// PreloadContracts is carried in the configuration, but NewPipeline
	// does not act on it: no ContractCatalog.Get call is made at pipeline
	// construction time, whatever its value.
	PreloadContracts bool

	// ContractsSource names a directory or URL the catalog should load
	// artifacts from. Opaque to the pipeline; forwarded to whatever
	// ContractCatalog implementation the caller supplies.
	ContractsSource string
}

// DefaultConfig returns the pipeline's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		GasPrice:           big.NewInt(0),
		GasLimit:           300000,
		ChainID:            big.NewInt(0),
		TxMiningTimeout:    120 * time.Second,
		TxSigningTimeout:   60 * time.Second,
		LockAcquireTimeout: 45 * time.Second,
		LockCheckInterval:  100 * time.Millisecond,
		LockTimeout:        5 * time.Second,
		PreloadContracts:   true,
	}
}

// ConfigOption is a functional option over Config, in the same style as the
// pipeline's PipelineOption.
type ConfigOption func(*Config)

func WithGasPrice(gasPrice *big.Int) ConfigOption {
	return func(c *Config) { c.GasPrice = gasPrice }
}

func WithGasLimit(gasLimit uint64) ConfigOption {
	return func(c *Config) { c.GasLimit = gasLimit }
}

func WithChainID(chainID *big.Int) ConfigOption {
	return func(c *Config) { c.ChainID = chainID }
}

func WithTxMiningTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.TxMiningTimeout = d }
}

func WithTxSigningTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.TxSigningTimeout = d }
}

func WithLockAcquireTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.LockAcquireTimeout = d }
}

func WithLockCheckInterval(d time.Duration) ConfigOption {
	return func(c *Config) { c.LockCheckInterval = d }
}

func WithLockTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.LockTimeout = d }
}

func WithPreloadContracts(preload bool) ConfigOption {
	return func(c *Config) { c.PreloadContracts = preload }
}

func WithContractsSource(source string) ConfigOption {
	return func(c *Config) { c.ContractsSource = source }
}
