package decode

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolmirror/poolmirror-go/amm"
	"github.com/poolmirror/poolmirror-go/delta"
)

var (
	poolAddr = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	sender   = common.HexToAddress("0x0000000000000000000000000000000000001111")
	owner    = common.HexToAddress("0x0000000000000000000000000000000000002222")
)

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func tickTopic(tick int64) common.Hash {
	v := big.NewInt(tick)
	if v.Sign() < 0 {
		v.Add(v, twoPow256)
	}
	return common.BigToHash(v)
}

func syncLog(t *testing.T, reserve0, reserve1 int64) *types.Log {
	t.Helper()
	pair, err := PairABI()
	require.NoError(t, err)
	data, err := pair.Events["Sync"].Inputs.Pack(big.NewInt(reserve0), big.NewInt(reserve1))
	require.NoError(t, err)
	return &types.Log{
		Address:     poolAddr,
		Topics:      []common.Hash{SyncTopic},
		Data:        data,
		BlockNumber: 100,
		Index:       3,
	}
}

func swapLog(t *testing.T, sqrtPrice *big.Int, tick int64, liquidity *big.Int) *types.Log {
	t.Helper()
	pool, err := PoolABI()
	require.NoError(t, err)
	data, err := pool.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(-500), big.NewInt(480), sqrtPrice, liquidity, big.NewInt(tick),
	)
	require.NoError(t, err)
	return &types.Log{
		Address:     poolAddr,
		Topics:      []common.Hash{SwapTopic, addressTopic(sender), addressTopic(owner)},
		Data:        data,
		BlockNumber: 100,
		Index:       7,
	}
}

func mintLog(t *testing.T, tickLower, tickUpper int64, amount *big.Int) *types.Log {
	t.Helper()
	pool, err := PoolABI()
	require.NoError(t, err)
	data, err := pool.Events["Mint"].Inputs.NonIndexed().Pack(
		sender, amount, big.NewInt(1), big.NewInt(2),
	)
	require.NoError(t, err)
	return &types.Log{
		Address:     poolAddr,
		Topics:      []common.Hash{MintTopic, addressTopic(owner), tickTopic(tickLower), tickTopic(tickUpper)},
		Data:        data,
		BlockNumber: 101,
		Index:       1,
	}
}

func burnLog(t *testing.T, tickLower, tickUpper int64, amount *big.Int) *types.Log {
	t.Helper()
	pool, err := PoolABI()
	require.NoError(t, err)
	data, err := pool.Events["Burn"].Inputs.NonIndexed().Pack(
		amount, big.NewInt(1), big.NewInt(2),
	)
	require.NoError(t, err)
	return &types.Log{
		Address:     poolAddr,
		Topics:      []common.Hash{BurnTopic, addressTopic(owner), tickTopic(tickLower), tickTopic(tickUpper)},
		Data:        data,
		BlockNumber: 102,
		Index:       2,
	}
}

func TestDecode_Sync(t *testing.T) {
	log := syncLog(t, 1500, 2500)

	d, err := Decode(log, amm.ConstantProduct)
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, poolAddr, d.PoolAddress)
	assert.Equal(t, uint64(100), d.BlockNumber)
	assert.Equal(t, uint(3), d.LogIndex)

	sync, ok := d.Change.(*delta.ReserveSync)
	require.True(t, ok)
	assert.Equal(t, int64(1500), sync.Reserve0.Int64())
	assert.Equal(t, int64(2500), sync.Reserve1.Int64())
}

func TestDecode_Swap_NegativeTick(t *testing.T) {
	sqrtPrice, _ := new(big.Int).SetString("79228162514264337593543950336", 10)
	log := swapLog(t, sqrtPrice, -887123, big.NewInt(42_000))

	d, err := Decode(log, amm.ConcentratedLiquidity)
	require.NoError(t, err)
	require.NotNil(t, d)

	swap, ok := d.Change.(*delta.Swap)
	require.True(t, ok)
	assert.Zero(t, swap.SqrtPriceX96.Cmp(sqrtPrice))
	assert.Equal(t, int64(-887123), swap.Tick)
	assert.Equal(t, int64(42_000), swap.Liquidity.Int64())
}

func TestDecode_Mint(t *testing.T) {
	log := mintLog(t, -120, 60, big.NewInt(777))

	d, err := Decode(log, amm.ConcentratedLiquidity)
	require.NoError(t, err)
	require.NotNil(t, d)

	liq, ok := d.Change.(*delta.Liquidity)
	require.True(t, ok)
	assert.Equal(t, int64(-120), liq.TickLower)
	assert.Equal(t, int64(60), liq.TickUpper)
	assert.Equal(t, int64(777), liq.Amount.Int64())
	assert.False(t, liq.Burn)
}

func TestDecode_Burn(t *testing.T) {
	log := burnLog(t, -60, 60, big.NewInt(333))

	d, err := Decode(log, amm.ConcentratedLiquidity)
	require.NoError(t, err)
	require.NotNil(t, d)

	liq, ok := d.Change.(*delta.Liquidity)
	require.True(t, ok)
	assert.Equal(t, int64(333), liq.Amount.Int64())
	assert.True(t, liq.Burn)
}

// TestDecode_IrrelevantTopics checks that unrecognized events, and events
// from the other pool variant, are skipped silently rather than failing.
func TestDecode_IrrelevantTopics(t *testing.T) {
	unknown := &types.Log{
		Address: poolAddr,
		Topics:  []common.Hash{common.HexToHash("0xdeadbeef")},
	}
	d, err := Decode(unknown, amm.ConstantProduct)
	assert.NoError(t, err)
	assert.Nil(t, d)

	// A Sync on a concentrated-liquidity pool is not a state change for it.
	d, err = Decode(syncLog(t, 1, 1), amm.ConcentratedLiquidity)
	assert.NoError(t, err)
	assert.Nil(t, d)

	// No topics at all.
	d, err = Decode(&types.Log{Address: poolAddr}, amm.ConstantProduct)
	assert.NoError(t, err)
	assert.Nil(t, d)
}

func TestDecode_MalformedData(t *testing.T) {
	log := syncLog(t, 1500, 2500)
	log.Data = log.Data[:16] // truncated payload

	d, err := Decode(log, amm.ConstantProduct)
	assert.Nil(t, d)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, poolAddr, decodeErr.Address)
	assert.Equal(t, uint64(100), decodeErr.BlockNumber)
	assert.Equal(t, SyncTopic, decodeErr.Topic0)
}

func TestDecode_MissingIndexedTopics(t *testing.T) {
	log := mintLog(t, -60, 60, big.NewInt(1))
	log.Topics = log.Topics[:2]

	_, err := Decode(log, amm.ConcentratedLiquidity)
	var decodeErr *DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestInt24FromTopic(t *testing.T) {
	n, err := int24FromTopic(tickTopic(-887272))
	require.NoError(t, err)
	assert.Equal(t, int64(-887272), n)

	n, err = int24FromTopic(tickTopic(887272))
	require.NoError(t, err)
	assert.Equal(t, int64(887272), n)

	_, err = int24FromTopic(common.BigToHash(big.NewInt(1 << 24)))
	assert.Error(t, err)
}

func TestUnpackGetReserves(t *testing.T) {
	pair, err := PairABI()
	require.NoError(t, err)

	data, err := pair.Methods["getReserves"].Outputs.Pack(
		big.NewInt(123), big.NewInt(456), uint32(1_700_000_000),
	)
	require.NoError(t, err)

	reserves, err := UnpackGetReserves(data)
	require.NoError(t, err)
	assert.Equal(t, int64(123), reserves.Reserve0.Int64())
	assert.Equal(t, int64(456), reserves.Reserve1.Int64())
}

func TestUnpackSlot0(t *testing.T) {
	pool, err := PoolABI()
	require.NoError(t, err)

	sqrtPrice, _ := new(big.Int).SetString("79228162514264337593543950336", 10)
	data, err := pool.Methods["slot0"].Outputs.Pack(
		sqrtPrice, big.NewInt(-42), uint16(0), uint16(1), uint16(1), uint8(0), true,
	)
	require.NoError(t, err)

	slot0, err := UnpackSlot0(data)
	require.NoError(t, err)
	assert.Zero(t, slot0.SqrtPriceX96.Cmp(sqrtPrice))
	assert.Equal(t, int64(-42), slot0.Tick)
}

func TestUnpackFee(t *testing.T) {
	pool, err := PoolABI()
	require.NoError(t, err)

	data, err := pool.Methods["fee"].Outputs.Pack(big.NewInt(500))
	require.NoError(t, err)

	fee, err := UnpackFee(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), fee)
}
