package decode

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Reserves is the unpacked result of the pair contract's getReserves call.
type Reserves struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// Slot0 is the unpacked price state from the pool contract's slot0 call.
type Slot0 struct {
	SqrtPriceX96 *big.Int
	Tick         int64
}

// PackGetReserves returns the calldata for the pair's getReserves().
func PackGetReserves() ([]byte, error) {
	pair, err := PairABI()
	if err != nil {
		return nil, err
	}
	return pair.Pack("getReserves")
}

// UnpackGetReserves decodes a getReserves() return payload.
func UnpackGetReserves(data []byte) (Reserves, error) {
	pair, err := PairABI()
	if err != nil {
		return Reserves{}, err
	}
	values, err := pair.Unpack("getReserves", data)
	if err != nil {
		return Reserves{}, fmt.Errorf("unpack getReserves: %w", err)
	}
	if len(values) != 3 {
		return Reserves{}, fmt.Errorf("unexpected getReserves values: %d", len(values))
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return Reserves{}, err
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return Reserves{}, err
	}
	return Reserves{Reserve0: reserve0, Reserve1: reserve1}, nil
}

// PackSlot0 returns the calldata for the pool's slot0().
func PackSlot0() ([]byte, error) {
	pool, err := PoolABI()
	if err != nil {
		return nil, err
	}
	return pool.Pack("slot0")
}

// UnpackSlot0 decodes a slot0() return payload. Only the price fields are
// kept; the oracle bookkeeping is irrelevant to the mirror.
func UnpackSlot0(data []byte) (Slot0, error) {
	pool, err := PoolABI()
	if err != nil {
		return Slot0{}, err
	}
	values, err := pool.Unpack("slot0", data)
	if err != nil {
		return Slot0{}, fmt.Errorf("unpack slot0: %w", err)
	}
	if len(values) < 2 {
		return Slot0{}, fmt.Errorf("unexpected slot0 values: %d", len(values))
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return Slot0{}, err
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return Slot0{}, err
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return Slot0{}, err
	}
	return Slot0{SqrtPriceX96: sqrtPrice, Tick: tick}, nil
}

// PackLiquidity returns the calldata for the pool's liquidity().
func PackLiquidity() ([]byte, error) {
	pool, err := PoolABI()
	if err != nil {
		return nil, err
	}
	return pool.Pack("liquidity")
}

// UnpackLiquidity decodes a liquidity() return payload.
func UnpackLiquidity(data []byte) (*big.Int, error) {
	pool, err := PoolABI()
	if err != nil {
		return nil, err
	}
	values, err := pool.Unpack("liquidity", data)
	if err != nil {
		return nil, fmt.Errorf("unpack liquidity: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected liquidity values: %d", len(values))
	}
	return asBigInt(values[0])
}

// PackFee returns the calldata for the pool's fee().
func PackFee() ([]byte, error) {
	pool, err := PoolABI()
	if err != nil {
		return nil, err
	}
	return pool.Pack("fee")
}

// UnpackFee decodes a fee() return payload into fee pips.
func UnpackFee(data []byte) (uint64, error) {
	pool, err := PoolABI()
	if err != nil {
		return 0, err
	}
	values, err := pool.Unpack("fee", data)
	if err != nil {
		return 0, fmt.Errorf("unpack fee: %w", err)
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("unexpected fee values: %d", len(values))
	}
	fee, err := asBigInt(values[0])
	if err != nil {
		return 0, err
	}
	return fee.Uint64(), nil
}

// PackToken0 returns the calldata for token0(), shared by both pool kinds.
func PackToken0() ([]byte, error) {
	pair, err := PairABI()
	if err != nil {
		return nil, err
	}
	return pair.Pack("token0")
}

// PackToken1 returns the calldata for token1().
func PackToken1() ([]byte, error) {
	pair, err := PairABI()
	if err != nil {
		return nil, err
	}
	return pair.Pack("token1")
}

// UnpackAddress decodes a single-address return payload such as token0().
func UnpackAddress(data []byte) (common.Address, error) {
	pair, err := PairABI()
	if err != nil {
		return common.Address{}, err
	}
	values, err := pair.Unpack("token0", data)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack address: %w", err)
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("unexpected address values: %d", len(values))
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("expected common.Address, got %T", values[0])
	}
	return addr, nil
}
