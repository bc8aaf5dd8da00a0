package uniswapv3

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolmirror/poolmirror-go/amm"
	"github.com/poolmirror/poolmirror-go/delta"
)

// TickInfo is one initialized tick of a concentrated-liquidity pool. The
// presence of an entry implicitly means the tick is initialized; entries are
// removed when their gross liquidity drops to zero.
type TickInfo struct {
	Index          int64    `json:"index"`
	LiquidityGross *big.Int `json:"liquidityGross"`
	LiquidityNet   *big.Int `json:"liquidityNet"`
}

// Pool is the mirrored state of a single concentrated-liquidity pool.
// Ticks is kept sorted by index at all times.
type Pool struct {
	Address      common.Address `json:"address"`
	Token0       common.Address `json:"token0"`
	Token1       common.Address `json:"token1"`
	FeePips      uint64         `json:"fee"` // i.e 3000 for 0.3%
	TickSpacing  int64          `json:"tickSpacing"`
	Tick         int64          `json:"tick"`
	Liquidity    *big.Int       `json:"liquidity"`
	SqrtPriceX96 *big.Int       `json:"sqrtPriceX96"`
	Ticks        []TickInfo     `json:"ticks"`
}

func (p *Pool) PoolAddress() common.Address { return p.Address }
func (p *Pool) PoolVariant() amm.Variant    { return amm.ConcentratedLiquidity }

// Clone returns a deep copy with its own memory for every big.Int and the
// tick slice.
func (p *Pool) Clone() amm.Pool {
	clone := *p
	if p.Liquidity != nil {
		clone.Liquidity = new(big.Int).Set(p.Liquidity)
	}
	if p.SqrtPriceX96 != nil {
		clone.SqrtPriceX96 = new(big.Int).Set(p.SqrtPriceX96)
	}
	if p.Ticks != nil {
		clone.Ticks = make([]TickInfo, len(p.Ticks))
		for i, t := range p.Ticks {
			clone.Ticks[i] = TickInfo{
				Index:          t.Index,
				LiquidityGross: new(big.Int).Set(t.LiquidityGross),
				LiquidityNet:   new(big.Int).Set(t.LiquidityNet),
			}
		}
	}
	return &clone
}

// Record renders the pool in the exported snapshot format.
func (p *Pool) Record() amm.Record {
	ticks := make([]amm.TickRecord, len(p.Ticks))
	for i, t := range p.Ticks {
		ticks[i] = amm.TickRecord{
			Index:          t.Index,
			LiquidityGross: new(big.Int).Set(t.LiquidityGross),
			LiquidityNet:   new(big.Int).Set(t.LiquidityNet),
		}
	}
	return amm.Record{
		Address:      p.Address.Hex(),
		Variant:      amm.ConcentratedLiquidity.String(),
		SqrtPriceX96: new(big.Int).Set(p.SqrtPriceX96),
		Tick:         p.Tick,
		Liquidity:    new(big.Int).Set(p.Liquidity),
		Ticks:        ticks,
	}
}

// FromRecord reconstructs a pool from an exported snapshot record.
func FromRecord(r amm.Record) (*Pool, error) {
	if r.Variant != amm.ConcentratedLiquidity.String() {
		return nil, fmt.Errorf("record variant %q is not %s", r.Variant, amm.ConcentratedLiquidity)
	}
	if r.SqrtPriceX96 == nil || r.Liquidity == nil {
		return nil, fmt.Errorf("record for %s is missing price state", r.Address)
	}
	if !common.IsHexAddress(r.Address) {
		return nil, fmt.Errorf("record address %q is not a hex address", r.Address)
	}

	pool := &Pool{
		Address:      common.HexToAddress(r.Address),
		Tick:         r.Tick,
		Liquidity:    new(big.Int).Set(r.Liquidity),
		SqrtPriceX96: new(big.Int).Set(r.SqrtPriceX96),
	}
	for _, t := range r.Ticks {
		gross := t.LiquidityGross
		if gross == nil {
			gross = new(big.Int).Abs(t.LiquidityNet)
		}
		pool.Ticks = append(pool.Ticks, TickInfo{
			Index:          t.Index,
			LiquidityGross: new(big.Int).Set(gross),
			LiquidityNet:   new(big.Int).Set(t.LiquidityNet),
		})
	}
	sort.Slice(pool.Ticks, func(i, j int) bool { return pool.Ticks[i].Index < pool.Ticks[j].Index })
	return pool, nil
}

// NewFromSwap creates a skeleton pool from the first swap observed for an
// address that was never seeded. Tick data accrues from subsequent
// mint/burn events.
func NewFromSwap(addr common.Address, c *delta.Swap) *Pool {
	return &Pool{
		Address:      addr,
		Tick:         c.Tick,
		Liquidity:    new(big.Int).Set(c.Liquidity),
		SqrtPriceX96: new(big.Int).Set(c.SqrtPriceX96),
	}
}

// tickIndexOf returns the position of index in the sorted tick slice and
// whether it is present.
func (p *Pool) tickIndexOf(index int64) (int, bool) {
	i := sort.Search(len(p.Ticks), func(i int) bool { return p.Ticks[i].Index >= index })
	return i, i < len(p.Ticks) && p.Ticks[i].Index == index
}

// TickAt returns the initialized tick entry at index, if any.
func (p *Pool) TickAt(index int64) (TickInfo, bool) {
	i, ok := p.tickIndexOf(index)
	if !ok {
		return TickInfo{}, false
	}
	return p.Ticks[i], true
}

// setTick inserts or replaces the entry for t.Index, preserving sort order.
func (p *Pool) setTick(t TickInfo) {
	i, ok := p.tickIndexOf(t.Index)
	if ok {
		p.Ticks[i] = t
		return
	}
	p.Ticks = append(p.Ticks, TickInfo{})
	copy(p.Ticks[i+1:], p.Ticks[i:])
	p.Ticks[i] = t
}

// removeTick drops the entry at index if present.
func (p *Pool) removeTick(index int64) {
	i, ok := p.tickIndexOf(index)
	if !ok {
		return
	}
	p.Ticks = append(p.Ticks[:i], p.Ticks[i+1:]...)
}

// snapshotTick captures the pre-change state of the entry at index.
func (p *Pool) snapshotTick(index int64) delta.TickSnapshot {
	t, ok := p.TickAt(index)
	if !ok {
		return delta.TickSnapshot{Index: index}
	}
	return delta.TickSnapshot{
		Index:          index,
		Existed:        true,
		LiquidityGross: new(big.Int).Set(t.LiquidityGross),
		LiquidityNet:   new(big.Int).Set(t.LiquidityNet),
	}
}

// restoreTick puts the entry described by snap back exactly, deleting the
// entry if it did not exist before the change.
func (p *Pool) restoreTick(snap delta.TickSnapshot) {
	if !snap.Existed {
		p.removeTick(snap.Index)
		return
	}
	p.setTick(TickInfo{
		Index:          snap.Index,
		LiquidityGross: new(big.Int).Set(snap.LiquidityGross),
		LiquidityNet:   new(big.Int).Set(snap.LiquidityNet),
	})
}

// ApplySwap replaces the pool's price state with the post-swap values
// emitted by the contract and returns the prior values.
func ApplySwap(p *Pool, c *delta.Swap) (*delta.SwapPrior, error) {
	if c.SqrtPriceX96 == nil || c.Liquidity == nil {
		return nil, fmt.Errorf("%w: nil price state in swap for %s", amm.ErrInvariantViolation, p.Address.Hex())
	}
	if c.SqrtPriceX96.Sign() <= 0 || c.Liquidity.Sign() < 0 {
		return nil, fmt.Errorf("%w: non-positive sqrt price or negative liquidity for %s", amm.ErrInvariantViolation, p.Address.Hex())
	}

	prior := &delta.SwapPrior{
		SqrtPriceX96: new(big.Int).Set(p.SqrtPriceX96),
		Tick:         p.Tick,
		Liquidity:    new(big.Int).Set(p.Liquidity),
	}
	p.SqrtPriceX96.Set(c.SqrtPriceX96)
	p.Tick = c.Tick
	p.Liquidity.Set(c.Liquidity)
	return prior, nil
}

// RestoreSwap is the exact inverse of ApplySwap.
func RestoreSwap(p *Pool, prior *delta.SwapPrior) {
	p.SqrtPriceX96.Set(prior.SqrtPriceX96)
	p.Tick = prior.Tick
	p.Liquidity.Set(prior.Liquidity)
}

// ApplyLiquidity applies a mint or burn over [TickLower, TickUpper). The
// pool's active liquidity changes only when the current tick lies inside the
// range; the boundary tick entries change unconditionally, and entries whose
// gross liquidity reaches zero are removed.
func ApplyLiquidity(p *Pool, c *delta.Liquidity) (*delta.LiquidityPrior, error) {
	if c.Amount == nil || c.Amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: liquidity amount must be non-negative for %s", amm.ErrInvariantViolation, p.Address.Hex())
	}
	if c.TickLower >= c.TickUpper {
		return nil, fmt.Errorf("%w: tick range [%d, %d) is empty for %s", amm.ErrInvariantViolation, c.TickLower, c.TickUpper, p.Address.Hex())
	}

	prior := &delta.LiquidityPrior{
		Liquidity: new(big.Int).Set(p.Liquidity),
		Lower:     p.snapshotTick(c.TickLower),
		Upper:     p.snapshotTick(c.TickUpper),
	}

	signed := new(big.Int).Set(c.Amount)
	if c.Burn {
		signed.Neg(signed)
	}

	if c.TickLower <= p.Tick && p.Tick < c.TickUpper {
		next := new(big.Int).Add(p.Liquidity, signed)
		if next.Sign() < 0 {
			return nil, fmt.Errorf("%w: active liquidity underflow for %s", amm.ErrInvariantViolation, p.Address.Hex())
		}
		p.Liquidity.Set(next)
	}

	if err := p.updateTick(c.TickLower, signed, false); err != nil {
		return nil, err
	}
	if err := p.updateTick(c.TickUpper, signed, true); err != nil {
		return nil, err
	}
	return prior, nil
}

// updateTick adjusts one boundary entry: gross moves with the signed amount,
// net moves with it at the lower boundary and against it at the upper.
func (p *Pool) updateTick(index int64, signed *big.Int, upper bool) error {
	entry, ok := p.TickAt(index)
	if !ok {
		entry = TickInfo{
			Index:          index,
			LiquidityGross: new(big.Int),
			LiquidityNet:   new(big.Int),
		}
	}

	gross := new(big.Int).Add(entry.LiquidityGross, signed)
	if gross.Sign() < 0 {
		return fmt.Errorf("%w: tick %d gross liquidity underflow for %s", amm.ErrInvariantViolation, index, p.Address.Hex())
	}

	net := new(big.Int).Set(entry.LiquidityNet)
	if upper {
		net.Sub(net, signed)
	} else {
		net.Add(net, signed)
	}

	if gross.Sign() == 0 {
		p.removeTick(index)
		return nil
	}
	p.setTick(TickInfo{Index: index, LiquidityGross: gross, LiquidityNet: net})
	return nil
}

// RestoreLiquidity is the exact inverse of ApplyLiquidity.
func RestoreLiquidity(p *Pool, prior *delta.LiquidityPrior) {
	p.Liquidity.Set(prior.Liquidity)
	p.restoreTick(prior.Lower)
	p.restoreTick(prior.Upper)
}
