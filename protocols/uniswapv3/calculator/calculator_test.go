package uniswapv3

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uniswapv3 "github.com/poolmirror/poolmirror-go/protocols/uniswapv3"
	"github.com/poolmirror/poolmirror-go/protocols/uniswapv3/calculator/tickmath"
)

var (
	token0 = common.HexToAddress("0x0000000000000000000000000000000000000a00")
	token1 = common.HexToAddress("0x0000000000000000000000000000000000000b00")
	other  = common.HexToAddress("0x0000000000000000000000000000000000000c00")
)

// testPool returns a 0.3% pool at the 1:1 price with liquidity concentrated
// in the [-1000, 1000) range.
func testPool() *uniswapv3.Pool {
	liquidity, _ := new(big.Int).SetString("1000000000000000000", 10) // 1e18

	pool := &uniswapv3.Pool{
		Address:      common.HexToAddress("0x00000000000000000000000000000000000000f3"),
		Token0:       token0,
		Token1:       token1,
		FeePips:      3000,
		TickSpacing:  60,
		Tick:         0,
		Liquidity:    new(big.Int).Set(liquidity),
		SqrtPriceX96: new(big.Int).Set(Q96),
		Ticks: []uniswapv3.TickInfo{
			{Index: -1000, LiquidityGross: new(big.Int).Set(liquidity), LiquidityNet: new(big.Int).Set(liquidity)},
			{Index: 1000, LiquidityGross: new(big.Int).Set(liquidity), LiquidityNet: new(big.Int).Neg(liquidity)},
		},
	}
	return pool
}

func TestGetAmountOut_InputValidation(t *testing.T) {
	pool := testPool()

	_, err := GetAmountOut(nil, nil, token0, pool)
	assert.ErrorIs(t, err, ErrInvalidAmountIn)

	_, err = GetAmountOut(big.NewInt(0), nil, token0, pool)
	assert.ErrorIs(t, err, ErrInvalidAmountIn)

	_, err = GetAmountOut(big.NewInt(1000), nil, other, pool)
	assert.ErrorIs(t, err, ErrTokenMismatch)
}

func TestGetAmountOut_ZeroLiquidity(t *testing.T) {
	pool := testPool()
	pool.Liquidity.SetInt64(0)
	pool.Ticks = nil

	_, err := GetAmountOut(big.NewInt(1000), nil, token0, pool)
	assert.ErrorIs(t, err, ErrZeroLiquidity)
}

// TestGetAmountOut_WithinRange swaps an amount small enough to stay inside
// the initialized range. At a 1:1 price the output must be the input less
// the fee and a small amount of slippage.
func TestGetAmountOut_WithinRange(t *testing.T) {
	pool := testPool()
	amountIn, _ := new(big.Int).SetString("1000000000000000", 10) // 1e15

	out, err := GetAmountOut(amountIn, nil, token0, pool)
	require.NoError(t, err)

	assert.True(t, out.Sign() > 0)
	assert.True(t, out.Cmp(amountIn) < 0)

	// The 0.3% fee dominates for a small swap; output stays above 99% of input.
	floor := new(big.Int).Mul(amountIn, big.NewInt(99))
	floor.Div(floor, big.NewInt(100))
	assert.True(t, out.Cmp(floor) > 0)
}

// TestGetAmountOut_SymmetricPool checks that at a 1:1 price both directions
// quote the same output for the same input.
func TestGetAmountOut_SymmetricPool(t *testing.T) {
	pool := testPool()
	amountIn, _ := new(big.Int).SetString("1000000000000000", 10)

	out0, err := GetAmountOut(amountIn, nil, token0, pool)
	require.NoError(t, err)
	out1, err := GetAmountOut(amountIn, nil, token1, pool)
	require.NoError(t, err)

	// Rounding may differ by a wei or two between directions.
	diff := new(big.Int).Sub(out0, out1)
	assert.True(t, diff.CmpAbs(big.NewInt(2)) <= 0)
}

// TestGetAmountOut_Monotonic verifies that a strictly larger input never
// produces a smaller output.
func TestGetAmountOut_Monotonic(t *testing.T) {
	pool := testPool()

	prev := new(big.Int)
	amountIn := new(big.Int)
	for _, in := range []int64{1_000, 10_000, 100_000, 1_000_000, 10_000_000} {
		amountIn.SetInt64(in)
		out, err := GetAmountOut(amountIn, nil, token0, pool)
		require.NoError(t, err)
		assert.True(t, out.Cmp(prev) >= 0, "output decreased at amountIn=%d", in)
		prev.Set(out)
	}
}

// TestGetAmountOut_CrossesTick drains the initialized range. Once the price
// crosses the lower boundary tick the active liquidity drops to zero, the
// price runs to the implicit limit, and the caller gets the partial output
// together with ErrPriceLimitReached.
func TestGetAmountOut_CrossesTick(t *testing.T) {
	pool := testPool()

	// Far more input than the [-1000, 1000) range can absorb.
	amountIn, _ := new(big.Int).SetString("1000000000000000000000000", 10) // 1e24

	out, err := GetAmountOut(amountIn, nil, token0, pool)
	assert.ErrorIs(t, err, ErrPriceLimitReached)
	require.NotNil(t, out)
	assert.True(t, out.Sign() > 0)

	// The range holds roughly liquidity * (1 - sqrt(0.9048)) of token1;
	// the partial fill cannot exceed the pool's one-sided depth.
	assert.True(t, out.Cmp(pool.Liquidity) < 0)
}

func TestGetAmountIn_RoundTrip(t *testing.T) {
	pool := testPool()
	wantOut, _ := new(big.Int).SetString("1000000000000000", 10)

	in, err := GetAmountIn(wantOut, nil, token0, pool)
	require.NoError(t, err)
	assert.True(t, in.Cmp(wantOut) > 0)

	// Spending the quoted input must yield at least the requested output.
	out, err := GetAmountOut(in, nil, token0, pool)
	require.NoError(t, err)
	assert.True(t, out.Cmp(wantOut) >= 0)
}

func TestGetAmountIn_InputValidation(t *testing.T) {
	pool := testPool()

	_, err := GetAmountIn(nil, nil, token0, pool)
	assert.ErrorIs(t, err, ErrInvalidAmountOut)

	_, err = GetAmountIn(big.NewInt(-5), nil, token0, pool)
	assert.ErrorIs(t, err, ErrInvalidAmountOut)
}

// TestSimulateSwap verifies the post-swap pool moves while the input pool is
// untouched.
func TestSimulateSwap(t *testing.T) {
	pool := testPool()
	before := pool.Clone().(*uniswapv3.Pool)
	amountIn, _ := new(big.Int).SetString("1000000000000000", 10)

	out, next, err := SimulateSwap(amountIn, nil, token0, pool)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, out.Sign() > 0)

	// Selling token0 pushes the sqrt price down.
	assert.True(t, next.SqrtPriceX96.Cmp(pool.SqrtPriceX96) < 0)
	assert.NotSame(t, pool, next)

	assert.Zero(t, pool.SqrtPriceX96.Cmp(before.SqrtPriceX96))
	assert.Zero(t, pool.Liquidity.Cmp(before.Liquidity))
	assert.Equal(t, before.Tick, pool.Tick)
}

// TestSimulateSwap_NoInitializedTicks exercises the common post-seeding
// shape: in-range liquidity with an empty tick map. The returned pool's tick
// must agree with its moved sqrt price.
func TestSimulateSwap_NoInitializedTicks(t *testing.T) {
	pool := testPool()
	pool.Ticks = nil

	// Large enough to move the price several ticks down.
	amountIn, _ := new(big.Int).SetString("10000000000000000", 10) // 1e16

	out, next, err := SimulateSwap(amountIn, nil, token0, pool)
	require.NoError(t, err)
	assert.True(t, out.Sign() > 0)

	require.True(t, next.SqrtPriceX96.Cmp(pool.SqrtPriceX96) < 0)
	wantTick, err := tickmath.GetTickAtSqrtRatio(next.SqrtPriceX96)
	require.NoError(t, err)
	assert.Equal(t, wantTick, next.Tick)
	assert.Less(t, next.Tick, pool.Tick)
}

func TestSpotPrice(t *testing.T) {
	pool := testPool()

	price, err := SpotPrice(token0, pool)
	require.NoError(t, err)

	// At sqrtPriceX96 == Q96 the pool trades 1:1.
	f, _ := price.Float64()
	assert.InDelta(t, 1.0, f, 1e-12)

	_, err = SpotPrice(other, pool)
	assert.ErrorIs(t, err, ErrTokenMismatch)
}

func TestPriceImpact(t *testing.T) {
	pool := testPool()

	small, _ := new(big.Int).SetString("1000000000000", 10)    // 1e12
	large, _ := new(big.Int).SetString("100000000000000000", 10) // 1e17

	smallImpact, err := PriceImpact(small, token0, pool)
	require.NoError(t, err)
	largeImpact, err := PriceImpact(large, token0, pool)
	require.NoError(t, err)

	assert.True(t, smallImpact.Sign() > 0)
	assert.True(t, largeImpact.Cmp(smallImpact) > 0)
}
