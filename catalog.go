package txpipe

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// staticContract is a Contract whose EncodeCall is supplied by the caller
// as a plain function, for tests and for callers with a simple
// hand-written encoder.
type staticContract struct {
	address common.Address
	encode  func(method string, args ...any) ([]byte, error)
}

func (c *staticContract) Address() common.Address { return c.address }

func (c *staticContract) EncodeCall(method string, args ...any) ([]byte, error) {
	return c.encode(method, args...)
}

// NewStaticContract builds a Contract around a fixed address and encoder
// function, suitable for registering into an InMemoryCatalog.
func NewStaticContract(address common.Address, encode func(method string, args ...any) ([]byte, error)) Contract {
	return &staticContract{address: address, encode: encode}
}

// InMemoryCatalog is a minimal ContractCatalog backed by a name-to-Contract
// map, memoizing nothing beyond the map lookup itself (construction is the
// caller's job via Register). Safe for concurrent use.
type InMemoryCatalog struct {
	mu        sync.RWMutex
	contracts map[string]Contract
}

// NewInMemoryCatalog builds an empty catalog.
func NewInMemoryCatalog() *InMemoryCatalog {
	return &InMemoryCatalog{contracts: make(map[string]Contract)}
}

// Register adds or replaces the binding for name.
func (c *InMemoryCatalog) Register(name string, contract Contract) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contracts[name] = contract
}

// Get resolves name to its registered Contract, or KindNoNetworkInContract
// if name was never registered (the catalog has no artifact binding for
// the active network).
func (c *InMemoryCatalog) Get(name string) (Contract, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	contract, ok := c.contracts[name]
	if !ok {
		return nil, &ClassifiedError{
			Kind:  KindNoNetworkInContract,
			Cause: fmt.Errorf("no contract binding registered for %q", name),
		}
	}
	return contract, nil
}

var _ ContractCatalog = (*InMemoryCatalog)(nil)
