package provider

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Call is one eth_call in a seeding batch: calldata for a target contract
// and the slot the result lands in.
type Call struct {
	To   common.Address
	Data []byte

	// Result and Err are populated by BatchCall.
	Result []byte
	Err    error
}

// Provider is the read-only chain surface the mirror consumes. Implementations
// wrap a real node connection; tests substitute fakes.
type Provider interface {
	// SubscribeNewHeads delivers new chain heads to ch until the context is
	// cancelled or the subscription errors.
	SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)

	// HeaderByNumber fetches a single header; 0 means latest.
	HeaderByNumber(ctx context.Context, number uint64) (*types.Header, error)

	// FilterLogs returns the logs emitted by the given addresses in
	// [fromBlock, toBlock], restricted to the given topic0 set.
	FilterLogs(ctx context.Context, addresses []common.Address, topics []common.Hash, fromBlock, toBlock uint64) ([]types.Log, error)

	// BatchCall performs the calls in a single RPC round trip at the given
	// block, writing results and per-call errors in place.
	BatchCall(ctx context.Context, calls []Call, blockNumber uint64) ([]Call, error)
}
