package txpipe

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// mockNodeClient implements NodeClient for testing, in the Fn-field style:
// set the Fn field you care about, leave the rest at their zero-value
// defaults.
type mockNodeClient struct {
	mu sync.Mutex

	SendRawFn        func(ctx context.Context, raw []byte) (common.Hash, error)
	SendTxFn         func(ctx context.Context, tx *RawTransaction) (common.Hash, error)
	GetReceiptFn     func(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	ConfirmedCountFn func(ctx context.Context, address common.Address) (uint64, error)
	MempoolInspectFn func(ctx context.Context) (*MempoolSnapshot, error)
	MempoolContentFn func(ctx context.Context) (*MempoolContentSnapshot, error)
	GetCodeFn        func(ctx context.Context, address common.Address) ([]byte, error)

	SendRawCalls [][]byte
}

func (m *mockNodeClient) SendRaw(ctx context.Context, raw []byte) (common.Hash, error) {
	m.mu.Lock()
	m.SendRawCalls = append(m.SendRawCalls, raw)
	m.mu.Unlock()
	if m.SendRawFn != nil {
		return m.SendRawFn(ctx, raw)
	}
	return common.Hash{}, nil
}

func (m *mockNodeClient) SendTx(ctx context.Context, tx *RawTransaction) (common.Hash, error) {
	if m.SendTxFn != nil {
		return m.SendTxFn(ctx, tx)
	}
	return common.Hash{}, nil
}

func (m *mockNodeClient) GetReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if m.GetReceiptFn != nil {
		return m.GetReceiptFn(ctx, hash)
	}
	return nil, nil
}

func (m *mockNodeClient) ConfirmedCount(ctx context.Context, address common.Address) (uint64, error) {
	if m.ConfirmedCountFn != nil {
		return m.ConfirmedCountFn(ctx, address)
	}
	return 0, nil
}

func (m *mockNodeClient) MempoolInspect(ctx context.Context) (*MempoolSnapshot, error) {
	if m.MempoolInspectFn != nil {
		return m.MempoolInspectFn(ctx)
	}
	return &MempoolSnapshot{Pending: map[string]map[uint64]bool{}, Queued: map[string]map[uint64]bool{}}, nil
}

func (m *mockNodeClient) MempoolContent(ctx context.Context) (*MempoolContentSnapshot, error) {
	if m.MempoolContentFn != nil {
		return m.MempoolContentFn(ctx)
	}
	return &MempoolContentSnapshot{Pending: map[string]map[uint64]*MempoolTx{}, Queued: map[string]map[uint64]*MempoolTx{}}, nil
}

func (m *mockNodeClient) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	if m.GetCodeFn != nil {
		return m.GetCodeFn(ctx, address)
	}
	return nil, nil
}

var _ NodeClient = (*mockNodeClient)(nil)

// mockContractCatalog is a ContractCatalog test double keyed by name.
type mockContractCatalog struct {
	contracts map[string]Contract
}

func newMockContractCatalog() *mockContractCatalog {
	return &mockContractCatalog{contracts: map[string]Contract{}}
}

func (c *mockContractCatalog) Get(name string) (Contract, error) {
	contract, ok := c.contracts[name]
	if !ok {
		return nil, &ClassifiedError{Kind: KindNoNetworkInContract}
	}
	return contract, nil
}
