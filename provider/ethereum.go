package provider

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// EthereumProvider implements Provider on a go-ethereum RPC connection. Head
// subscriptions require a websocket endpoint.
type EthereumProvider struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// Dial connects to an Ethereum node.
func Dial(ctx context.Context, rawURL string) (*EthereumProvider, error) {
	rpcClient, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	return &EthereumProvider{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close tears down the underlying RPC connection.
func (p *EthereumProvider) Close() {
	if p.rpcClient != nil {
		p.rpcClient.Close()
	}
}

func (p *EthereumProvider) SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return p.ethClient.SubscribeNewHead(ctx, ch)
}

func (p *EthereumProvider) HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error) {
	if number == 0 {
		return p.ethClient.HeaderByNumber(ctx, nil)
	}
	return p.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
}

func (p *EthereumProvider) FilterLogs(ctx context.Context, addresses []common.Address, topics []common.Hash, fromBlock, toBlock uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topics) > 0 {
		query.Topics = [][]common.Hash{topics}
	}
	return p.ethClient.FilterLogs(ctx, query)
}

// BatchCall packs every call into one eth_call batch request. Per-call
// failures land in Call.Err; only transport-level failures error the whole
// batch.
func (p *EthereumProvider) BatchCall(ctx context.Context, calls []Call, blockNumber uint64) ([]Call, error) {
	if len(calls) == 0 {
		return calls, nil
	}

	block := "latest"
	if blockNumber > 0 {
		block = hexutil.EncodeUint64(blockNumber)
	}

	elems := make([]rpc.BatchElem, len(calls))
	results := make([]hexutil.Bytes, len(calls))
	for i, call := range calls {
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []any{
				map[string]any{
					"to":   call.To,
					"data": hexutil.Bytes(call.Data),
				},
				block,
			},
			Result: &results[i],
		}
	}

	if err := p.rpcClient.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("batch call: %w", err)
	}

	for i := range calls {
		calls[i].Err = elems[i].Error
		calls[i].Result = results[i]
	}
	return calls, nil
}
