package txpipe

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionDetails_ByHash_Mined(t *testing.T) {
	hash := common.HexToHash("0x01")
	node := &mockNodeClient{
		GetReceiptFn: func(ctx context.Context, h common.Hash) (*types.Receipt, error) {
			return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
		},
	}
	details := NewTransactionDetails(node, NewAccountInspector(node))

	info, err := details.ByHash(context.Background(), testAddr, hash)
	require.NoError(t, err)
	assert.Equal(t, StatusMined, info.Status)
}

func TestTransactionDetails_ByHash_PendingInContent(t *testing.T) {
	tx := &RawTransaction{From: testAddr, To: testAddr, Value: big.NewInt(0), ChainID: big.NewInt(1), GasPrice: big.NewInt(0), Nonce: ptrUint64(3)}
	// The node's own reported hash is the signed transaction's hash, which
	// never equals tx.ToGethTx().Hash() (the unsigned form RawTransaction
	// alone can produce). Use a distinct value to prove matching goes
	// through the node-supplied hash, not a recomputed one.
	signedHash := common.HexToHash("0xdeadbeef")
	node := &mockNodeClient{
		GetReceiptFn: func(ctx context.Context, h common.Hash) (*types.Receipt, error) { return nil, nil },
		MempoolContentFn: func(ctx context.Context) (*MempoolContentSnapshot, error) {
			return &MempoolContentSnapshot{
				Pending: map[string]map[uint64]*MempoolTx{testAddr.Hex(): {3: {Tx: tx, Hash: signedHash}}},
				Queued:  map[string]map[uint64]*MempoolTx{},
			}, nil
		},
	}
	details := NewTransactionDetails(node, NewAccountInspector(node))

	info, err := details.ByHash(context.Background(), testAddr, signedHash)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, info.Status)
	assert.Same(t, tx, info.Tx)
}

func TestTransactionDetails_ByHash_DegradesToUnsupported(t *testing.T) {
	node := &mockNodeClient{
		GetReceiptFn: func(ctx context.Context, h common.Hash) (*types.Receipt, error) { return nil, nil },
		MempoolContentFn: func(ctx context.Context) (*MempoolContentSnapshot, error) {
			return nil, errors.New("method not supported")
		},
	}
	details := NewTransactionDetails(node, NewAccountInspector(node))

	info, err := details.ByHash(context.Background(), testAddr, common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.Equal(t, StatusUnsupported, info.Status)
}

func TestTransactionDetails_ByNonce_PendingAndQueuedNeverMapToMined(t *testing.T) {
	node := &mockNodeClient{
		ConfirmedCountFn: func(ctx context.Context, a common.Address) (uint64, error) { return 10, nil },
		MempoolInspectFn: func(ctx context.Context) (*MempoolSnapshot, error) {
			return &MempoolSnapshot{
				Pending: map[string]map[uint64]bool{testAddr.Hex(): {10: true}},
				Queued:  map[string]map[uint64]bool{testAddr.Hex(): {11: true}},
			}, nil
		},
	}
	details := NewTransactionDetails(node, NewAccountInspector(node))

	status, err := details.ByNonce(context.Background(), testAddr, 10)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, status)

	status, err = details.ByNonce(context.Background(), testAddr, 11)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, status)
}

func TestTransactionDetails_ByNonce_FallsBackToConfirmedCount(t *testing.T) {
	node := &mockNodeClient{
		ConfirmedCountFn: func(ctx context.Context, a common.Address) (uint64, error) { return 5, nil },
	}
	details := NewTransactionDetails(node, NewAccountInspector(node))

	status, err := details.ByNonce(context.Background(), testAddr, 3)
	require.NoError(t, err)
	assert.Equal(t, StatusMined, status)

	status, err = details.ByNonce(context.Background(), testAddr, 9)
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, status)
}

func TestTransactionDetails_ByNonce_DegradesToUnsupported(t *testing.T) {
	node := &mockNodeClient{
		MempoolInspectFn: func(ctx context.Context) (*MempoolSnapshot, error) {
			return nil, errors.New("method not supported")
		},
	}
	details := NewTransactionDetails(node, NewAccountInspector(node))

	status, err := details.ByNonce(context.Background(), testAddr, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusUnsupported, status)
}

func ptrUint64(v uint64) *uint64 { return &v }
