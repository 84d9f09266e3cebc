package txpipe

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/tranvictor/jarvis/networks"
	"github.com/tranvictor/jarvis/util"
	"github.com/tranvictor/jarvis/util/broadcaster"
	"github.com/tranvictor/jarvis/util/reader"
)

// JarvisNodeClient implements NodeClient on top of jarvis's ready-made
// JSON-RPC reader and broadcaster, the same way adapters wrap concrete
// jarvis types elsewhere in this ecosystem.
//
// jarvis's reader/broadcaster don't expose txpool_inspect, txpool_content,
// eth_getCode, or node-side signing (eth_sendTransaction); the mempool
// methods and GetCode return an error matched by IsMethodNotSupported (the
// pipeline degrades gracefully on the mempool ones — see AccountInspector
// and TransactionDetails), while SendTx returns a plain error.
type JarvisNodeClient struct {
	reader      *reader.EthReader
	broadcaster *broadcaster.Broadcaster
}

// NewJarvisNodeClient builds a JarvisNodeClient for network.
func NewJarvisNodeClient(network networks.Network) (*JarvisNodeClient, error) {
	r, err := util.EthReader(network)
	if err != nil {
		return nil, fmt.Errorf("building jarvis reader: %w", err)
	}
	b, err := util.EthBroadcaster(network)
	if err != nil {
		return nil, fmt.Errorf("building jarvis broadcaster: %w", err)
	}
	return &JarvisNodeClient{reader: r, broadcaster: b}, nil
}

// SendRaw decodes raw and broadcasts it via jarvis's broadcaster.
func (c *JarvisNodeClient) SendRaw(ctx context.Context, raw []byte) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, fmt.Errorf("decoding raw transaction: %w", err)
	}
	hashStr, broadcasted, err := c.broadcaster.BroadcastTx(tx)
	if err != nil {
		return common.Hash{}, err
	}
	if !broadcasted {
		return common.Hash{}, fmt.Errorf("broadcast rejected for %s", hashStr)
	}
	return common.HexToHash(hashStr), nil
}

// SendTx always fails: jarvis has no node-side signing capability, so
// "let the node assign and sign" mode requires a SignCallback instead.
func (c *JarvisNodeClient) SendTx(ctx context.Context, tx *RawTransaction) (common.Hash, error) {
	return common.Hash{}, fmt.Errorf("jarvis node client has no node-side signing; supply a SignCallback")
}

// GetReceipt asks jarvis's reader for the transaction's current info and
// returns its receipt field, which is nil until mined.
func (c *JarvisNodeClient) GetReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	info, err := c.reader.TxInfoFromHash(hash.Hex())
	if err != nil {
		return nil, err
	}
	return info.Receipt, nil
}

// ConfirmedCount uses jarvis's mined-nonce lookup, which reports the
// latest-block transaction count for address: the next unused nonce, and
// exactly the count of confirmed sends.
func (c *JarvisNodeClient) ConfirmedCount(ctx context.Context, address common.Address) (uint64, error) {
	return c.reader.GetMinedNonce(address.Hex())
}

func (c *JarvisNodeClient) MempoolInspect(ctx context.Context) (*MempoolSnapshot, error) {
	return nil, fmt.Errorf("method not supported: jarvis reader exposes no txpool_inspect binding")
}

func (c *JarvisNodeClient) MempoolContent(ctx context.Context) (*MempoolContentSnapshot, error) {
	return nil, fmt.Errorf("method not supported: jarvis reader exposes no txpool_content binding")
}

func (c *JarvisNodeClient) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	return nil, fmt.Errorf("method not supported: jarvis reader exposes no eth_getCode binding")
}

var _ NodeClient = (*JarvisNodeClient)(nil)
