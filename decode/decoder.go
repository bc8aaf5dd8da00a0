package decode

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/poolmirror/poolmirror-go/amm"
	"github.com/poolmirror/poolmirror-go/delta"
)

// DecodeError records why a log addressed to a tracked pool could not be
// turned into a delta. The raw log is identified precisely so the failure
// can be replayed against the node.
type DecodeError struct {
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Address     common.Address
	Topic0      common.Hash
	Err         error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode log %s[%d] at block %d (topic %s): %v",
		e.Address.Hex(), e.LogIndex, e.BlockNumber, e.Topic0.Hex(), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func failed(log *types.Log, err error) *DecodeError {
	var topic0 common.Hash
	if len(log.Topics) > 0 {
		topic0 = log.Topics[0]
	}
	return &DecodeError{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		Address:     log.Address,
		Topic0:      topic0,
		Err:         err,
	}
}

// Decode turns a raw log from a tracked pool into a state delta. Logs whose
// topic is not a state-changing event for the pool's variant decode to
// (nil, nil); malformed payloads for a recognized topic return a
// *DecodeError.
func Decode(log *types.Log, variant amm.Variant) (*delta.Delta, error) {
	if len(log.Topics) == 0 {
		return nil, nil
	}

	var (
		change delta.Change
		err    error
	)
	switch {
	case variant == amm.ConstantProduct && log.Topics[0] == SyncTopic:
		change, err = decodeSync(log)
	case variant == amm.ConcentratedLiquidity && log.Topics[0] == SwapTopic:
		change, err = decodeSwap(log)
	case variant == amm.ConcentratedLiquidity && log.Topics[0] == MintTopic:
		change, err = decodeMint(log)
	case variant == amm.ConcentratedLiquidity && log.Topics[0] == BurnTopic:
		change, err = decodeBurn(log)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, failed(log, err)
	}

	return &delta.Delta{
		PoolAddress: log.Address,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
		Change:      change,
	}, nil
}

func decodeSync(log *types.Log) (delta.Change, error) {
	pair, err := PairABI()
	if err != nil {
		return nil, err
	}
	values, err := pair.Events["Sync"].Inputs.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack Sync: %w", err)
	}
	if len(values) != 2 {
		return nil, fmt.Errorf("unexpected Sync values: %d", len(values))
	}

	reserve0, err := asBigInt(values[0])
	if err != nil {
		return nil, err
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return nil, err
	}
	return &delta.ReserveSync{Reserve0: reserve0, Reserve1: reserve1}, nil
}

func decodeSwap(log *types.Log) (delta.Change, error) {
	pool, err := PoolABI()
	if err != nil {
		return nil, err
	}
	if len(log.Topics) != 3 {
		return nil, fmt.Errorf("expected 3 topics for Swap, got %d", len(log.Topics))
	}
	values, err := pool.Events["Swap"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack Swap: %w", err)
	}
	if len(values) != 5 {
		return nil, fmt.Errorf("unexpected Swap values: %d", len(values))
	}

	sqrtPrice, err := asBigInt(values[2])
	if err != nil {
		return nil, err
	}
	liquidity, err := asBigInt(values[3])
	if err != nil {
		return nil, err
	}
	tickInt, err := asBigInt(values[4])
	if err != nil {
		return nil, err
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return nil, err
	}

	return &delta.Swap{
		SqrtPriceX96: sqrtPrice,
		Tick:         tick,
		Liquidity:    liquidity,
	}, nil
}

func decodeMint(log *types.Log) (delta.Change, error) {
	pool, err := PoolABI()
	if err != nil {
		return nil, err
	}
	if len(log.Topics) != 4 {
		return nil, fmt.Errorf("expected 4 topics for Mint, got %d", len(log.Topics))
	}
	values, err := pool.Events["Mint"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack Mint: %w", err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected Mint values: %d", len(values))
	}

	amount, err := asBigInt(values[1])
	if err != nil {
		return nil, err
	}
	tickLower, err := int24FromTopic(log.Topics[2])
	if err != nil {
		return nil, err
	}
	tickUpper, err := int24FromTopic(log.Topics[3])
	if err != nil {
		return nil, err
	}

	return &delta.Liquidity{
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount:    amount,
	}, nil
}

func decodeBurn(log *types.Log) (delta.Change, error) {
	pool, err := PoolABI()
	if err != nil {
		return nil, err
	}
	if len(log.Topics) != 4 {
		return nil, fmt.Errorf("expected 4 topics for Burn, got %d", len(log.Topics))
	}
	values, err := pool.Events["Burn"].Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpack Burn: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("unexpected Burn values: %d", len(values))
	}

	amount, err := asBigInt(values[0])
	if err != nil {
		return nil, err
	}
	tickLower, err := int24FromTopic(log.Topics[2])
	if err != nil {
		return nil, err
	}
	tickUpper, err := int24FromTopic(log.Topics[3])
	if err != nil {
		return nil, err
	}

	return &delta.Liquidity{
		TickLower: tickLower,
		TickUpper: tickUpper,
		Amount:    amount,
		Burn:      true,
	}, nil
}

const (
	minInt24 = -1 << 23
	maxInt24 = 1<<23 - 1
)

var twoPow256 = new(big.Int).Lsh(big.NewInt(1), 256)

func asBigInt(value any) (*big.Int, error) {
	v, ok := value.(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("expected *big.Int, got %T", value)
	}
	return v, nil
}

// int24FromBig narrows an already sign-interpreted value into the int24
// domain.
func int24FromBig(v *big.Int) (int64, error) {
	if !v.IsInt64() {
		return 0, fmt.Errorf("value %s out of int24 range", v)
	}
	n := v.Int64()
	if n < minInt24 || n > maxInt24 {
		return 0, fmt.Errorf("value %d out of int24 range", n)
	}
	return n, nil
}

// int24FromTopic interprets an indexed int24 topic, which arrives as a
// 32-byte two's-complement word.
func int24FromTopic(topic common.Hash) (int64, error) {
	v := new(big.Int).SetBytes(topic[:])
	if v.Bit(255) == 1 {
		v.Sub(v, twoPow256)
	}
	return int24FromBig(v)
}
