package delta

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind tags the concrete change carried by a Delta.
type Kind uint8

const (
	// KindReserveSync replaces both reserves of a constant-product pool.
	KindReserveSync Kind = iota + 1
	// KindSwap replaces price, tick and active liquidity of a
	// concentrated-liquidity pool.
	KindSwap
	// KindLiquidity adds or removes liquidity in a tick range of a
	// concentrated-liquidity pool.
	KindLiquidity
)

// Change is one decoded state transition for a single pool. The concrete
// types below form a tagged union dispatched by Kind.
type Change interface {
	Kind() Kind
}

// ReserveSync carries the absolute post-event reserves of a constant-product
// pool. It replaces, never adjusts.
type ReserveSync struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
}

func (ReserveSync) Kind() Kind { return KindReserveSync }

// Swap carries the post-swap price state of a concentrated-liquidity pool,
// exactly as the pool contract emits it.
type Swap struct {
	SqrtPriceX96 *big.Int
	Tick         int64
	Liquidity    *big.Int
}

func (Swap) Kind() Kind { return KindSwap }

// Liquidity carries a mint or burn over [TickLower, TickUpper). Amount is
// always positive; Burn selects the sign.
type Liquidity struct {
	TickLower int64
	TickUpper int64
	Amount    *big.Int
	Burn      bool
}

func (Liquidity) Kind() Kind { return KindLiquidity }

// Delta is a single decoded pool state transition. Deltas are totally
// ordered by (BlockNumber, LogIndex) and applied in that order.
type Delta struct {
	PoolAddress common.Address
	BlockNumber uint64
	LogIndex    uint
	Change      Change
}

// Before reports whether d precedes other in apply order.
func (d *Delta) Before(other *Delta) bool {
	if d.BlockNumber != other.BlockNumber {
		return d.BlockNumber < other.BlockNumber
	}
	return d.LogIndex < other.LogIndex
}

// Prior captures the exact field values a change overwrote. Restoring a
// prior inverts the corresponding change bit-for-bit.
type Prior interface {
	Kind() Kind
}

// ReserveSyncPrior holds the reserves a ReserveSync replaced.
type ReserveSyncPrior struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
}

func (ReserveSyncPrior) Kind() Kind { return KindReserveSync }

// SwapPrior holds the price state a Swap replaced.
type SwapPrior struct {
	SqrtPriceX96 *big.Int
	Tick         int64
	Liquidity    *big.Int
}

func (SwapPrior) Kind() Kind { return KindSwap }

// TickSnapshot records a single tick entry before a liquidity change.
// Existed distinguishes "entry was absent" from "entry was zero", so a
// restore can delete entries the change created.
type TickSnapshot struct {
	Index          int64
	Existed        bool
	LiquidityGross *big.Int
	LiquidityNet   *big.Int
}

// LiquidityPrior holds everything a Liquidity change touched: the pool's
// active liquidity and the two boundary tick entries.
type LiquidityPrior struct {
	Liquidity *big.Int
	Lower     TickSnapshot
	Upper     TickSnapshot
}

func (LiquidityPrior) Kind() Kind { return KindLiquidity }

// PreImage pairs a prior with the pool it belongs to. CreatedPool marks
// deltas whose application created the registry entry, so restoring removes
// the entry again.
type PreImage struct {
	PoolAddress common.Address
	BlockNumber uint64
	LogIndex    uint
	CreatedPool bool
	Prior       Prior
}
