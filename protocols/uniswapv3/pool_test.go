package uniswapv3

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolmirror/poolmirror-go/amm"
	"github.com/poolmirror/poolmirror-go/delta"
)

func newTestPool() *Pool {
	sqrtPrice, _ := new(big.Int).SetString("79228162514264337593543950336", 10)
	return &Pool{
		Address:      common.HexToAddress("0x00000000000000000000000000000000000000f3"),
		Token0:       common.HexToAddress("0x0000000000000000000000000000000000000a00"),
		Token1:       common.HexToAddress("0x0000000000000000000000000000000000000b00"),
		FeePips:      3000,
		TickSpacing:  60,
		Tick:         0,
		Liquidity:    big.NewInt(1_000_000),
		SqrtPriceX96: sqrtPrice,
	}
}

func TestApplySwap_RoundTrip(t *testing.T) {
	pool := newTestPool()
	newPrice, _ := new(big.Int).SetString("79623317895830914510639640423", 10)

	prior, err := ApplySwap(pool, &delta.Swap{
		SqrtPriceX96: newPrice,
		Tick:         99,
		Liquidity:    big.NewInt(2_000_000),
	})
	require.NoError(t, err)

	assert.Zero(t, pool.SqrtPriceX96.Cmp(newPrice))
	assert.Equal(t, int64(99), pool.Tick)
	assert.Equal(t, int64(2_000_000), pool.Liquidity.Int64())

	RestoreSwap(pool, prior)
	fresh := newTestPool()
	assert.Zero(t, pool.SqrtPriceX96.Cmp(fresh.SqrtPriceX96))
	assert.Equal(t, fresh.Tick, pool.Tick)
	assert.Zero(t, pool.Liquidity.Cmp(fresh.Liquidity))
}

func TestApplySwap_RejectsInvalid(t *testing.T) {
	pool := newTestPool()

	_, err := ApplySwap(pool, &delta.Swap{SqrtPriceX96: nil, Liquidity: big.NewInt(1)})
	assert.ErrorIs(t, err, amm.ErrInvariantViolation)

	_, err = ApplySwap(pool, &delta.Swap{SqrtPriceX96: big.NewInt(0), Liquidity: big.NewInt(1)})
	assert.ErrorIs(t, err, amm.ErrInvariantViolation)

	_, err = ApplySwap(pool, &delta.Swap{SqrtPriceX96: big.NewInt(1), Liquidity: big.NewInt(-1)})
	assert.ErrorIs(t, err, amm.ErrInvariantViolation)
}

// TestApplyLiquidity_InRangeMint mints around the current tick and verifies
// active liquidity, both boundary entries, and the exact rollback.
func TestApplyLiquidity_InRangeMint(t *testing.T) {
	pool := newTestPool()

	prior, err := ApplyLiquidity(pool, &delta.Liquidity{
		TickLower: -120,
		TickUpper: 120,
		Amount:    big.NewInt(500),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1_000_500), pool.Liquidity.Int64())

	lower, ok := pool.TickAt(-120)
	require.True(t, ok)
	assert.Equal(t, int64(500), lower.LiquidityGross.Int64())
	assert.Equal(t, int64(500), lower.LiquidityNet.Int64())

	upper, ok := pool.TickAt(120)
	require.True(t, ok)
	assert.Equal(t, int64(500), upper.LiquidityGross.Int64())
	assert.Equal(t, int64(-500), upper.LiquidityNet.Int64())

	RestoreLiquidity(pool, prior)
	assert.Equal(t, int64(1_000_000), pool.Liquidity.Int64())
	_, ok = pool.TickAt(-120)
	assert.False(t, ok)
	_, ok = pool.TickAt(120)
	assert.False(t, ok)
}

// TestApplyLiquidity_OutOfRange mints entirely above the current tick; the
// boundary entries change but the active liquidity does not.
func TestApplyLiquidity_OutOfRange(t *testing.T) {
	pool := newTestPool()

	_, err := ApplyLiquidity(pool, &delta.Liquidity{
		TickLower: 600,
		TickUpper: 1200,
		Amount:    big.NewInt(500),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1_000_000), pool.Liquidity.Int64())
	_, ok := pool.TickAt(600)
	assert.True(t, ok)
}

// TestApplyLiquidity_BurnRemovesEmptyTicks burns a full position and checks
// the boundary entries disappear once their gross liquidity hits zero.
func TestApplyLiquidity_BurnRemovesEmptyTicks(t *testing.T) {
	pool := newTestPool()

	mint := &delta.Liquidity{TickLower: -120, TickUpper: 120, Amount: big.NewInt(500)}
	_, err := ApplyLiquidity(pool, mint)
	require.NoError(t, err)

	burnPrior, err := ApplyLiquidity(pool, &delta.Liquidity{
		TickLower: -120,
		TickUpper: 120,
		Amount:    big.NewInt(500),
		Burn:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1_000_000), pool.Liquidity.Int64())
	_, ok := pool.TickAt(-120)
	assert.False(t, ok)
	_, ok = pool.TickAt(120)
	assert.False(t, ok)

	// Rolling the burn back resurrects the entries exactly.
	RestoreLiquidity(pool, burnPrior)
	lower, ok := pool.TickAt(-120)
	require.True(t, ok)
	assert.Equal(t, int64(500), lower.LiquidityGross.Int64())
	assert.Equal(t, int64(1_000_500), pool.Liquidity.Int64())
}

func TestApplyLiquidity_RejectsInvalid(t *testing.T) {
	pool := newTestPool()

	_, err := ApplyLiquidity(pool, &delta.Liquidity{TickLower: 10, TickUpper: 10, Amount: big.NewInt(1)})
	assert.ErrorIs(t, err, amm.ErrInvariantViolation)

	_, err = ApplyLiquidity(pool, &delta.Liquidity{TickLower: -10, TickUpper: 10, Amount: big.NewInt(-1)})
	assert.ErrorIs(t, err, amm.ErrInvariantViolation)

	// Burning more than the active liquidity underflows.
	_, err = ApplyLiquidity(pool, &delta.Liquidity{
		TickLower: -10,
		TickUpper: 10,
		Amount:    big.NewInt(2_000_000),
		Burn:      true,
	})
	assert.ErrorIs(t, err, amm.ErrInvariantViolation)
}

func TestTicksStaySorted(t *testing.T) {
	pool := newTestPool()

	for _, r := range []struct{ lo, hi int64 }{{600, 1200}, {-1200, -600}, {-60, 60}, {0, 600}} {
		_, err := ApplyLiquidity(pool, &delta.Liquidity{
			TickLower: r.lo,
			TickUpper: r.hi,
			Amount:    big.NewInt(100),
		})
		require.NoError(t, err)
	}

	for i := 1; i < len(pool.Ticks); i++ {
		assert.True(t, pool.Ticks[i-1].Index < pool.Ticks[i].Index)
	}
}

func TestClone_SharesNoMemory(t *testing.T) {
	pool := newTestPool()
	_, err := ApplyLiquidity(pool, &delta.Liquidity{TickLower: -60, TickUpper: 60, Amount: big.NewInt(100)})
	require.NoError(t, err)

	clone := pool.Clone().(*Pool)
	clone.Liquidity.SetInt64(1)
	clone.Ticks[0].LiquidityGross.SetInt64(42)

	assert.Equal(t, int64(1_000_100), pool.Liquidity.Int64())
	assert.Equal(t, int64(100), pool.Ticks[0].LiquidityGross.Int64())
}

// A pool sitting exactly at tick 0 must still export its tick; a JSON
// round trip through the snapshot format may not drop the field.
func TestRecord_TickZeroSurvivesJSON(t *testing.T) {
	pool := newTestPool()
	require.Equal(t, int64(0), pool.Tick)

	data, err := json.Marshal(pool.Record())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tick":0`)

	var rec amm.Record
	require.NoError(t, json.Unmarshal(data, &rec))
	restored, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, int64(0), restored.Tick)
}

func TestRecordRoundTrip(t *testing.T) {
	pool := newTestPool()
	_, err := ApplyLiquidity(pool, &delta.Liquidity{TickLower: -60, TickUpper: 60, Amount: big.NewInt(100)})
	require.NoError(t, err)

	rec := pool.Record()
	assert.Equal(t, amm.ConcentratedLiquidity.String(), rec.Variant)

	restored, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, pool.Address, restored.Address)
	assert.Zero(t, pool.SqrtPriceX96.Cmp(restored.SqrtPriceX96))
	assert.Equal(t, pool.Tick, restored.Tick)
	assert.Zero(t, pool.Liquidity.Cmp(restored.Liquidity))
	require.Len(t, restored.Ticks, len(pool.Ticks))
	for i := range pool.Ticks {
		assert.Equal(t, pool.Ticks[i].Index, restored.Ticks[i].Index)
		assert.Zero(t, pool.Ticks[i].LiquidityNet.Cmp(restored.Ticks[i].LiquidityNet))
	}
}
