package amm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Variant tags the pricing model a tracked pool follows. All polymorphic
// dispatch in the registry and the math engine keys off this tag.
type Variant uint8

const (
	ConstantProduct Variant = iota + 1
	ConcentratedLiquidity
)

// String returns the wire name of the variant, as used in exported records.
func (v Variant) String() string {
	switch v {
	case ConstantProduct:
		return "constant_product"
	case ConcentratedLiquidity:
		return "concentrated_liquidity"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(v))
	}
}

// ParseVariant is the inverse of Variant.String.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "constant_product":
		return ConstantProduct, nil
	case "concentrated_liquidity":
		return ConcentratedLiquidity, nil
	default:
		return 0, fmt.Errorf("unknown pool variant %q", s)
	}
}

var (
	// ErrInvariantViolation signals that applying a delta produced a state no
	// on-chain pool can be in (negative reserve, variant mismatch). The local
	// mirror is corrupt; the only remedy is a full reseed from the chain.
	ErrInvariantViolation = errors.New("pool invariant violation")
)

// Pool is the fixed capability set shared by all tracked pool variants.
// Implementations are plain data holders; all mutation goes through the
// registry, all pricing through the per-variant calculators.
type Pool interface {
	PoolAddress() common.Address
	PoolVariant() Variant

	// Clone returns a deep copy. The registry clones before mutating so
	// committed views stay immutable under concurrent reads.
	Clone() Pool

	// Record renders the pool in the exported snapshot format.
	Record() Record
}

// TickRecord is one initialized tick in an exported concentrated-liquidity
// snapshot record.
type TickRecord struct {
	Index          int64    `json:"index"`
	LiquidityGross *big.Int `json:"liquidity_gross,omitempty"`
	LiquidityNet   *big.Int `json:"liquidity_net"`
}

// Record is the persisted/exported snapshot form of a single pool, one JSON
// object per tracked pool. Fields not applicable to the variant are omitted.
type Record struct {
	Address string `json:"address"`
	Variant string `json:"variant"`

	// constant_product
	Reserve0 *big.Int `json:"reserve0,omitempty"`
	Reserve1 *big.Int `json:"reserve1,omitempty"`
	FeeBps   uint16   `json:"fee_bps"`

	// concentrated_liquidity
	SqrtPriceX96 *big.Int     `json:"sqrt_price_x96,omitempty"`
	Tick         int64        `json:"tick"`
	Liquidity    *big.Int     `json:"liquidity,omitempty"`
	Ticks        []TickRecord `json:"ticks,omitempty"`
}
