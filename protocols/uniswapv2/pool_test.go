package uniswapv2

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolmirror/poolmirror-go/amm"
	"github.com/poolmirror/poolmirror-go/delta"
)

func newTestPool() *Pool {
	return &Pool{
		Address:  common.HexToAddress("0x00000000000000000000000000000000000000f2"),
		Token0:   common.HexToAddress("0x0000000000000000000000000000000000000a00"),
		Token1:   common.HexToAddress("0x0000000000000000000000000000000000000b00"),
		Reserve0: big.NewInt(1000),
		Reserve1: big.NewInt(2000),
		FeeBps:   DefaultFeeBps,
	}
}

func TestApplyReserveSync_RoundTrip(t *testing.T) {
	pool := newTestPool()

	prior, err := ApplyReserveSync(pool, &delta.ReserveSync{
		Reserve0: big.NewInt(1500),
		Reserve1: big.NewInt(1400),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1500), pool.Reserve0.Int64())
	assert.Equal(t, int64(1400), pool.Reserve1.Int64())
	assert.Equal(t, int64(1000), prior.Reserve0.Int64())
	assert.Equal(t, int64(2000), prior.Reserve1.Int64())

	RestoreReserveSync(pool, prior)
	assert.Equal(t, int64(1000), pool.Reserve0.Int64())
	assert.Equal(t, int64(2000), pool.Reserve1.Int64())
}

func TestApplyReserveSync_RejectsInvalid(t *testing.T) {
	pool := newTestPool()

	_, err := ApplyReserveSync(pool, &delta.ReserveSync{Reserve0: nil, Reserve1: big.NewInt(1)})
	assert.ErrorIs(t, err, amm.ErrInvariantViolation)

	_, err = ApplyReserveSync(pool, &delta.ReserveSync{Reserve0: big.NewInt(-1), Reserve1: big.NewInt(1)})
	assert.ErrorIs(t, err, amm.ErrInvariantViolation)

	// Failed applies leave the pool untouched.
	assert.Equal(t, int64(1000), pool.Reserve0.Int64())
	assert.Equal(t, int64(2000), pool.Reserve1.Int64())
}

func TestClone_SharesNoMemory(t *testing.T) {
	pool := newTestPool()
	clone := pool.Clone().(*Pool)

	clone.Reserve0.SetInt64(9999)
	assert.Equal(t, int64(1000), pool.Reserve0.Int64())
	assert.Equal(t, pool.Address, clone.Address)
	assert.Equal(t, pool.FeeBps, clone.FeeBps)
}

func TestRecordRoundTrip(t *testing.T) {
	pool := newTestPool()

	rec := pool.Record()
	assert.Equal(t, amm.ConstantProduct.String(), rec.Variant)

	restored, err := FromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, pool.Address, restored.Address)
	assert.Zero(t, pool.Reserve0.Cmp(restored.Reserve0))
	assert.Zero(t, pool.Reserve1.Cmp(restored.Reserve1))
	assert.Equal(t, pool.FeeBps, restored.FeeBps)
}

func TestFromRecord_RejectsWrongVariant(t *testing.T) {
	_, err := FromRecord(amm.Record{
		Address:  "0x00000000000000000000000000000000000000f2",
		Variant:  amm.ConcentratedLiquidity.String(),
		Reserve0: big.NewInt(1),
		Reserve1: big.NewInt(1),
	})
	assert.Error(t, err)
}

func TestNewFromSync(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	pool := NewFromSync(addr, &delta.ReserveSync{
		Reserve0: big.NewInt(7),
		Reserve1: big.NewInt(11),
	})

	assert.Equal(t, addr, pool.Address)
	assert.Equal(t, int64(7), pool.Reserve0.Int64())
	assert.Equal(t, int64(11), pool.Reserve1.Int64())
	assert.Equal(t, DefaultFeeBps, pool.FeeBps)
}
