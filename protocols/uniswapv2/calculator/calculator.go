package uniswapv2

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	uniswapv2 "github.com/poolmirror/poolmirror-go/protocols/uniswapv2"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// basisPointDivisor is a constant representing 100% in basis points (10000).
	basisPointDivisor = big.NewInt(10000)

	one = big.NewInt(1)

	// ErrInvalidAmount is returned when an input/output amount is nil or negative.
	ErrInvalidAmount = errors.New("amount must be non-nil and non-negative")
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrTokenMismatch is returned when the specified input/output tokens do not match the pool's tokens.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrInvalidState is returned for internal calculation errors, like division by zero.
	ErrInvalidState = errors.New("invalid internal state")
	// ErrZeroLiquidity is returned when a pool has an empty reserve and cannot price a trade.
	ErrZeroLiquidity = errors.New("zero liquidity, cannot price swap")
	// ErrInsufficientLiquidity is returned when an amountOut is requested that is greater than or equal to the available reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
)

// Calculator holds reusable big.Int objects to avoid memory allocations during
// calculations. Instances are NOT safe for concurrent use by themselves; they
// are managed by the sync.Pool below.
type Calculator struct {
	feeMultiplier   *big.Int
	amountInWithFee *big.Int
	numerator       *big.Int
	denominator     *big.Int

	numeratorIn   *big.Int
	denominatorIn *big.Int
}

var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			feeMultiplier:   new(big.Int),
			amountInWithFee: new(big.Int),
			numerator:       new(big.Int),
			denominator:     new(big.Int),
			numeratorIn:     new(big.Int),
			denominatorIn:   new(big.Int),
		}
	},
}

// GetAmountOut calculates the output amount for an exact-input swap. The fee
// is applied as a multiplicative haircut on the input before the
// constant-product formula; all divisions truncate toward zero, matching the
// pair contract exactly.
func GetAmountOut(
	amountIn *big.Int,
	tokenIn common.Address,
	pool *uniswapv2.Pool,
) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountIn, tokenIn, pool)
}

// GetAmountIn calculates the required input amount for a desired exact output.
func GetAmountIn(
	amountOut *big.Int,
	tokenIn common.Address,
	pool *uniswapv2.Pool,
) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountIn(amountOut, tokenIn, pool)
}

// SimulateSwap calculates the output of an exact-input swap along with the
// pool state the swap would leave behind. The input pool is not mutated.
func SimulateSwap(
	amountIn *big.Int,
	tokenIn common.Address,
	pool *uniswapv2.Pool,
) (*big.Int, *uniswapv2.Pool, error) {
	amountOut, err := GetAmountOut(amountIn, tokenIn, pool)
	if err != nil {
		return nil, nil, err
	}

	newPool := pool.Clone().(*uniswapv2.Pool)
	if tokenIn == pool.Token0 {
		newPool.Reserve0.Add(newPool.Reserve0, amountIn)
		newPool.Reserve1.Sub(newPool.Reserve1, amountOut)
	} else {
		newPool.Reserve1.Add(newPool.Reserve1, amountIn)
		newPool.Reserve0.Sub(newPool.Reserve0, amountOut)
	}

	return amountOut, newPool, nil
}

// SpotPrice returns the marginal price of tokenIn denominated in the other
// token, ignoring fees: reserveOut / reserveIn.
func SpotPrice(tokenIn common.Address, pool *uniswapv2.Pool) (*big.Float, error) {
	reserveIn, reserveOut, err := GetReserves(tokenIn, pool)
	if err != nil {
		return nil, err
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrZeroLiquidity
	}
	return new(big.Float).Quo(new(big.Float).SetInt(reserveOut), new(big.Float).SetInt(reserveIn)), nil
}

// PriceImpact returns the fractional deviation of the execution price from
// the spot price for an exact-input swap: (spot - exec) / spot, in [0, 1).
// The fee haircut is part of the execution price, so the impact of even a
// dust-sized trade is bounded below by the fee.
func PriceImpact(amountIn *big.Int, tokenIn common.Address, pool *uniswapv2.Pool) (*big.Float, error) {
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	if amountIn.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	spot, err := SpotPrice(tokenIn, pool)
	if err != nil {
		return nil, err
	}
	amountOut, err := GetAmountOut(amountIn, tokenIn, pool)
	if err != nil {
		return nil, err
	}

	exec := new(big.Float).Quo(new(big.Float).SetInt(amountOut), new(big.Float).SetInt(amountIn))
	return new(big.Float).Quo(new(big.Float).Sub(spot, exec), spot), nil
}

func (c *Calculator) getAmountOut(
	amountIn *big.Int,
	tokenIn common.Address,
	pool *uniswapv2.Pool,
) (*big.Int, error) {
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	if amountIn.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, pool)
	if err != nil {
		return nil, err
	}

	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrZeroLiquidity
	}

	// amountOut = reserveOut*amountIn*(10000-feeBps) / (reserveIn*10000 + amountIn*(10000-feeBps))
	c.feeMultiplier.Sub(basisPointDivisor, big.NewInt(int64(pool.FeeBps)))
	c.amountInWithFee.Mul(amountIn, c.feeMultiplier)
	c.numerator.Mul(reserveOut, c.amountInWithFee)
	c.denominator.Mul(reserveIn, basisPointDivisor)
	c.denominator.Add(c.denominator, c.amountInWithFee)

	if c.denominator.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool denominator is zero", ErrInvalidState)
	}

	return new(big.Int).Div(c.numerator, c.denominator), nil
}

func (c *Calculator) getAmountIn(
	amountOut *big.Int,
	tokenIn common.Address,
	pool *uniswapv2.Pool,
) (*big.Int, error) {
	if amountOut == nil {
		return nil, ErrNilAmount
	}
	if amountOut.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, pool)
	if err != nil {
		return nil, err
	}

	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)", ErrInsufficientLiquidity, amountOut.String(), reserveOut.String())
	}

	c.numeratorIn.Mul(reserveIn, amountOut)
	c.numeratorIn.Mul(c.numeratorIn, basisPointDivisor)

	c.feeMultiplier.Sub(basisPointDivisor, big.NewInt(int64(pool.FeeBps)))
	c.denominatorIn.Sub(reserveOut, amountOut)
	c.denominatorIn.Mul(c.denominatorIn, c.feeMultiplier)

	if c.denominatorIn.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool denominator is zero", ErrInvalidState)
	}

	// amountIn = (reserveIn * amountOut * 10000) / ((reserveOut - amountOut) * (10000 - feeBps)) + 1
	amountIn := new(big.Int).Div(c.numeratorIn, c.denominatorIn)
	return amountIn.Add(amountIn, one), nil
}

// GetReserves orients the pool's reserves from tokenIn's perspective.
func GetReserves(tokenIn common.Address, pool *uniswapv2.Pool) (reserveIn, reserveOut *big.Int, err error) {
	switch tokenIn {
	case pool.Token0:
		return pool.Reserve0, pool.Reserve1, nil
	case pool.Token1:
		return pool.Reserve1, pool.Reserve0, nil
	}
	return nil, nil, fmt.Errorf("%w: pool %s does not contain token %s", ErrTokenMismatch, pool.Address.Hex(), tokenIn.Hex())
}
