package uniswapv3

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	uniswapv3 "github.com/poolmirror/poolmirror-go/protocols/uniswapv3"
	"github.com/poolmirror/poolmirror-go/protocols/uniswapv3/calculator/liquiditymath"
	"github.com/poolmirror/poolmirror-go/protocols/uniswapv3/calculator/swapmath"
	"github.com/poolmirror/poolmirror-go/protocols/uniswapv3/calculator/ticklist"
	"github.com/poolmirror/poolmirror-go/protocols/uniswapv3/calculator/tickmath"
)

var (
	ErrInvalidAmountIn       = errors.New("amountIn must be greater than zero")
	ErrInvalidAmountOut      = errors.New("amountOut must be greater than zero")
	ErrTokenMismatch         = errors.New("token mismatch")
	ErrInvalidState          = errors.New("invalid pool state")
	ErrZeroLiquidity         = errors.New("pool has no liquidity")
	ErrPriceLimitReached     = errors.New("price limit reached before amount was filled")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity to fill amount")

	Q96, _ = new(big.Int).SetString("79228162514264337593543950336", 10)
	q96F   = new(big.Float).SetInt(Q96)
)

// swapState carries a swap simulation through the tick-crossing loop. All
// temporaries live here so the loop allocates nothing.
type swapState struct {
	amountSpecifiedRemaining *big.Int
	amountCalculated         *big.Int
	sqrtPriceX96             *big.Int
	tick                     int64
	liquidity                *big.Int

	sqrtPriceStartX96 *big.Int
	sqrtPriceNextX96  *big.Int
	targetPrice       *big.Int
	stepAmountIn      *big.Int
	stepAmountOut     *big.Int
	stepFeeAmount     *big.Int
	tempAmount        *big.Int
	liquidityNet      *big.Int
}

var swapStatePool = sync.Pool{
	New: func() any {
		return &swapState{
			amountSpecifiedRemaining: new(big.Int),
			amountCalculated:         new(big.Int),
			sqrtPriceX96:             new(big.Int),
			liquidity:                new(big.Int),
			sqrtPriceStartX96:        new(big.Int),
			sqrtPriceNextX96:         new(big.Int),
			targetPrice:              new(big.Int),
			stepAmountIn:             new(big.Int),
			stepAmountOut:            new(big.Int),
			stepFeeAmount:            new(big.Int),
			tempAmount:               new(big.Int),
			liquidityNet:             new(big.Int),
		}
	},
}

func (s *swapState) load(pool *uniswapv3.Pool, amountSpecified *big.Int) {
	s.amountSpecifiedRemaining.Set(amountSpecified)
	s.amountCalculated.SetInt64(0)
	s.sqrtPriceX96.Set(pool.SqrtPriceX96)
	s.tick = pool.Tick
	s.liquidity.Set(pool.Liquidity)
}

// validateSwap checks the pool and direction before a simulation touches any
// math. direction is resolved from tokenIn against the pool's token pair.
func validateSwap(tokenIn common.Address, pool *uniswapv3.Pool) (zeroForOne bool, err error) {
	if pool.SqrtPriceX96 == nil || pool.SqrtPriceX96.Sign() <= 0 || pool.Liquidity == nil {
		return false, fmt.Errorf("%w: pool %s has no price state", ErrInvalidState, pool.Address.Hex())
	}
	if pool.Liquidity.Sign() == 0 && len(pool.Ticks) == 0 {
		return false, fmt.Errorf("%w: pool %s", ErrZeroLiquidity, pool.Address.Hex())
	}

	zeroForOne = tokenIn == pool.Token0
	if !zeroForOne && tokenIn != pool.Token1 {
		return false, fmt.Errorf("%w: token %s is not in pool %s", ErrTokenMismatch, tokenIn.Hex(), pool.Address.Hex())
	}
	return zeroForOne, nil
}

// swap is the core tick-crossing loop. It mirrors the pool contract's swap
// function: each iteration steps to the nearer of the next initialized tick
// and the price limit, crossing the tick's net liquidity when the step lands
// exactly on it. When no initialized tick remains in the swap direction the
// current in-range liquidity is used for one final step to the limit.
func swap(
	state *swapState,
	pool *uniswapv3.Pool,
	sqrtPriceLimitX96 *big.Int,
	zeroForOne bool,
) error {
	if sqrtPriceLimitX96 == nil {
		if zeroForOne {
			sqrtPriceLimitX96 = tickmath.MinSqrtRatio
		} else {
			sqrtPriceLimitX96 = tickmath.MaxSqrtRatio
		}
	}
	if zeroForOne {
		if sqrtPriceLimitX96.Cmp(state.sqrtPriceX96) >= 0 || sqrtPriceLimitX96.Cmp(tickmath.MinSqrtRatio) < 0 {
			return fmt.Errorf("%w: price limit out of range", ErrInvalidState)
		}
	} else {
		if sqrtPriceLimitX96.Cmp(state.sqrtPriceX96) <= 0 || sqrtPriceLimitX96.Cmp(tickmath.MaxSqrtRatio) > 0 {
			return fmt.Errorf("%w: price limit out of range", ErrInvalidState)
		}
	}

	exactInput := state.amountSpecifiedRemaining.Sign() > 0

	for state.amountSpecifiedRemaining.Sign() != 0 && state.sqrtPriceX96.Cmp(sqrtPriceLimitX96) != 0 {
		state.sqrtPriceStartX96.Set(state.sqrtPriceX96)

		tickNext, initialized := ticklist.NextInitializedTick(pool.Ticks, state.tick, zeroForOne)
		if initialized {
			if tickNext < tickmath.MinTick {
				tickNext = tickmath.MinTick
			} else if tickNext > tickmath.MaxTick {
				tickNext = tickmath.MaxTick
			}
			if err := tickmath.GetSqrtRatioAtTick(state.sqrtPriceNextX96, tickNext); err != nil {
				return err
			}
			if (zeroForOne && state.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) < 0) ||
				(!zeroForOne && state.sqrtPriceNextX96.Cmp(sqrtPriceLimitX96) > 0) {
				state.targetPrice.Set(sqrtPriceLimitX96)
			} else {
				state.targetPrice.Set(state.sqrtPriceNextX96)
			}
		} else {
			// No more initialized ticks in this direction; the in-range
			// liquidity carries the rest of the swap to the limit.
			state.sqrtPriceNextX96.Set(sqrtPriceLimitX96)
			state.targetPrice.Set(sqrtPriceLimitX96)
		}

		err := swapmath.ComputeSwapStep(
			state.sqrtPriceX96, state.stepAmountIn, state.stepAmountOut, state.stepFeeAmount,
			state.sqrtPriceStartX96,
			state.targetPrice,
			state.liquidity,
			state.amountSpecifiedRemaining,
			state.tempAmount.SetUint64(pool.FeePips),
		)
		if err != nil {
			// Zero in-range liquidity cannot move the price.
			break
		}

		if exactInput {
			state.amountSpecifiedRemaining.Sub(state.amountSpecifiedRemaining, state.tempAmount.Add(state.stepAmountIn, state.stepFeeAmount))
			state.amountCalculated.Add(state.amountCalculated, state.stepAmountOut)
		} else {
			state.amountSpecifiedRemaining.Add(state.amountSpecifiedRemaining, state.stepAmountOut)
			state.amountCalculated.Add(state.amountCalculated, state.tempAmount.Add(state.stepAmountIn, state.stepFeeAmount))
		}

		if !initialized {
			// The step ran on in-range liquidity alone; the tick must still
			// track the price it stopped at.
			if state.sqrtPriceX96.Cmp(state.sqrtPriceStartX96) != 0 {
				tick, err := tickmath.GetTickAtSqrtRatio(state.sqrtPriceX96)
				if err != nil {
					return err
				}
				state.tick = tick
			}
			break
		}

		if state.sqrtPriceX96.Cmp(state.sqrtPriceNextX96) == 0 {
			if t, ok := pool.TickAt(tickNext); ok {
				state.liquidityNet.Set(t.LiquidityNet)
				if zeroForOne {
					state.liquidityNet.Neg(state.liquidityNet)
				}
				if err := liquiditymath.AddDelta(state.liquidity, state.liquidity, state.liquidityNet); err != nil {
					if errors.Is(err, liquiditymath.ErrLiquidityUnderflow) {
						break
					}
					return err
				}
			}
			if zeroForOne {
				state.tick = tickNext - 1
			} else {
				state.tick = tickNext
			}
		} else if state.sqrtPriceX96.Cmp(state.sqrtPriceStartX96) != 0 {
			tick, err := tickmath.GetTickAtSqrtRatio(state.sqrtPriceX96)
			if err != nil {
				return err
			}
			state.tick = tick
		}
	}

	if state.amountSpecifiedRemaining.Sign() != 0 {
		if state.sqrtPriceX96.Cmp(sqrtPriceLimitX96) == 0 {
			return ErrPriceLimitReached
		}
		return ErrInsufficientLiquidity
	}
	return nil
}

// GetAmountOut returns the exact output amount the pool contract would pay
// for amountIn of tokenIn against the pool's current state. A nil
// sqrtPriceLimitX96 means no limit. When the limit is hit first, the partial
// output is returned together with ErrPriceLimitReached.
func GetAmountOut(
	amountIn *big.Int,
	sqrtPriceLimitX96 *big.Int,
	tokenIn common.Address,
	pool *uniswapv3.Pool,
) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmountIn
	}
	zeroForOne, err := validateSwap(tokenIn, pool)
	if err != nil {
		return nil, err
	}

	state := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(state)
	state.load(pool, amountIn)

	err = swap(state, pool, sqrtPriceLimitX96, zeroForOne)
	if err != nil && !errors.Is(err, ErrPriceLimitReached) {
		return nil, err
	}
	return new(big.Int).Set(state.amountCalculated), err
}

// GetAmountIn returns the exact input amount of tokenIn required for the
// pool contract to pay amountOut. The result includes the fee.
func GetAmountIn(
	amountOut *big.Int,
	sqrtPriceLimitX96 *big.Int,
	tokenIn common.Address,
	pool *uniswapv3.Pool,
) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() <= 0 {
		return nil, ErrInvalidAmountOut
	}
	zeroForOne, err := validateSwap(tokenIn, pool)
	if err != nil {
		return nil, err
	}

	state := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(state)

	// A negative specified amount selects the exact-output branch.
	state.load(pool, new(big.Int).Neg(amountOut))

	err = swap(state, pool, sqrtPriceLimitX96, zeroForOne)
	if err != nil && !errors.Is(err, ErrPriceLimitReached) {
		return nil, err
	}
	return new(big.Int).Set(state.amountCalculated), err
}

// SimulateSwap returns the output amount and a post-swap copy of the pool,
// leaving the input pool untouched. The copy shares no memory with the
// original.
func SimulateSwap(
	amountIn *big.Int,
	sqrtPriceLimitX96 *big.Int,
	tokenIn common.Address,
	pool *uniswapv3.Pool,
) (*big.Int, *uniswapv3.Pool, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, nil, ErrInvalidAmountIn
	}
	zeroForOne, err := validateSwap(tokenIn, pool)
	if err != nil {
		return nil, nil, err
	}

	state := swapStatePool.Get().(*swapState)
	defer swapStatePool.Put(state)
	state.load(pool, amountIn)

	err = swap(state, pool, sqrtPriceLimitX96, zeroForOne)
	if err != nil && !errors.Is(err, ErrPriceLimitReached) {
		return nil, nil, err
	}

	next := pool.Clone().(*uniswapv3.Pool)
	next.SqrtPriceX96.Set(state.sqrtPriceX96)
	next.Tick = state.tick
	next.Liquidity.Set(state.liquidity)
	return new(big.Int).Set(state.amountCalculated), next, err
}

// SpotPrice returns the marginal price of tokenIn denominated in the other
// token of the pair, derived from the pool's sqrtPriceX96. No decimal
// adjustment is applied.
func SpotPrice(tokenIn common.Address, pool *uniswapv3.Pool) (*big.Float, error) {
	if pool.SqrtPriceX96 == nil || pool.SqrtPriceX96.Sign() <= 0 {
		return nil, fmt.Errorf("%w: pool %s has no price state", ErrInvalidState, pool.Address.Hex())
	}
	zeroForOne := tokenIn == pool.Token0
	if !zeroForOne && tokenIn != pool.Token1 {
		return nil, fmt.Errorf("%w: token %s is not in pool %s", ErrTokenMismatch, tokenIn.Hex(), pool.Address.Hex())
	}

	// price of token0 in token1 = (sqrtPriceX96 / 2^96)^2
	ratio := new(big.Float).SetInt(pool.SqrtPriceX96)
	ratio.Quo(ratio, q96F)
	price := new(big.Float).Mul(ratio, ratio)
	if zeroForOne {
		return price, nil
	}
	return price.Quo(big.NewFloat(1), price), nil
}

// PriceImpact returns the relative difference between the spot price and the
// execution price of a hypothetical swap of amountIn, as a fraction in
// [0, 1).
func PriceImpact(
	amountIn *big.Int,
	tokenIn common.Address,
	pool *uniswapv3.Pool,
) (*big.Float, error) {
	spot, err := SpotPrice(tokenIn, pool)
	if err != nil {
		return nil, err
	}
	amountOut, err := GetAmountOut(amountIn, nil, tokenIn, pool)
	if err != nil && !errors.Is(err, ErrPriceLimitReached) {
		return nil, err
	}
	if amountOut.Sign() == 0 {
		return big.NewFloat(1), nil
	}

	exec := new(big.Float).SetInt(amountOut)
	exec.Quo(exec, new(big.Float).SetInt(amountIn))
	impact := new(big.Float).Sub(spot, exec)
	return impact.Quo(impact, spot), nil
}
