package statespace

import (
	"context"
	"fmt"
	"runtime"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/poolmirror/poolmirror-go/amm"
	"github.com/poolmirror/poolmirror-go/decode"
	"github.com/poolmirror/poolmirror-go/provider"
	"github.com/poolmirror/poolmirror-go/protocols/uniswapv2"
	"github.com/poolmirror/poolmirror-go/protocols/uniswapv3"
)

// Per-pool call counts in a seeding batch. Calls for one pool are packed
// contiguously so a slice of results can be parsed without bookkeeping.
const (
	v2CallCount = 3 // getReserves, token0, token1
	v3CallCount = 5 // slot0, liquidity, fee, token0, token1
)

type seedTarget struct {
	addr    common.Address
	variant amm.Variant
	calls   []provider.Call
}

// Seed bootstraps the registry by reading every tracked pool's state at a
// single block via batched eth_call, then commits the result as the block
// it was read at. Pools whose calls fail are logged and skipped; the next
// head they emit an event in recreates them as skeletons.
func (m *Manager) Seed(ctx context.Context, blockNumber uint64) error {
	m.setState(StateSyncing)
	defer m.setState(StateIdle)

	header, err := m.headerByNumber(ctx, blockNumber)
	if err != nil {
		return err
	}
	number := header.Number.Uint64()

	targets, err := m.buildSeedTargets()
	if err != nil {
		return err
	}

	// Flatten into one call slice, chunk it, and fan the chunks out. Each
	// target's calls index directly into the flat slice.
	var flat []provider.Call
	offsets := make([]int, len(targets))
	for i, t := range targets {
		offsets[i] = len(flat)
		flat = append(flat, t.calls...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for start := 0; start < len(flat); start += m.cfg.SeedBatchSize {
		end := start + m.cfg.SeedBatchSize
		if end > len(flat) {
			end = len(flat)
		}
		chunk := flat[start:end]
		g.Go(func() error {
			return withRetry(gctx, m.cfg.Retry, func(ctx context.Context) error {
				_, err := m.provider.BatchCall(ctx, chunk, number)
				return err
			})
		})
	}
	if err := g.Wait(); err != nil {
		return &ProviderError{Op: "seed batch call", Err: err}
	}

	seeded := 0
	for i := range targets {
		t := &targets[i]
		results := flat[offsets[i] : offsets[i]+len(t.calls)]
		pool, err := m.parseSeedResults(t, results)
		if err != nil {
			m.logger.Warn("pool seeding skipped",
				"pool", t.addr.Hex(), "variant", t.variant.String(), "err", err)
			continue
		}
		if m.cfg.PoolFilter != nil && !m.cfg.PoolFilter(pool) {
			m.logger.Info("pool rejected by filter", "pool", t.addr.Hex())
			continue
		}
		m.mergeWarmTicks(pool)
		m.registry.Upsert(pool)
		seeded++
	}
	if seeded == 0 {
		m.registry.Discard()
		return fmt.Errorf("no tracked pool could be seeded at block %d", number)
	}
	if err := m.registry.Commit(); err != nil {
		return err
	}

	m.ring.Clear()
	m.lastNumber = number
	m.lastHash = header.Hash()
	m.metrics.LastProcessedBlock.Set(float64(number))
	m.metrics.PoolsTracked.Set(float64(m.registry.Len()))
	m.logger.Info("registry seeded", "block", number,
		"pools", seeded, "skipped", len(targets)-seeded)
	return nil
}

// Resync discards all retained history and reseeds at the given block. It is
// the recovery path after an invariant violation or an exceeded reorg depth.
func (m *Manager) Resync(ctx context.Context, blockNumber uint64) error {
	m.ring.Clear()
	m.registry.Discard()
	m.lastNumber = 0
	m.lastHash = common.Hash{}
	m.fatalStall = false
	m.setState(StateIdle)
	return m.Seed(ctx, blockNumber)
}

// mergeWarmTicks carries tick data from a warm-started registry entry into a
// freshly seeded pool. Tick maps accrue only from live mint/burn events;
// reseeding refreshes the price state but must not wipe them.
func (m *Manager) mergeWarmTicks(pool amm.Pool) {
	seeded, ok := pool.(*uniswapv3.Pool)
	if !ok {
		return
	}
	prev, ok := m.registry.Get(seeded.Address)
	if !ok {
		return
	}
	imported, ok := prev.(*uniswapv3.Pool)
	if !ok || len(imported.Ticks) == 0 {
		return
	}
	seeded.Ticks = imported.Clone().(*uniswapv3.Pool).Ticks
}

func (m *Manager) buildSeedTargets() ([]seedTarget, error) {
	reservesData, err := decode.PackGetReserves()
	if err != nil {
		return nil, err
	}
	slot0Data, err := decode.PackSlot0()
	if err != nil {
		return nil, err
	}
	liquidityData, err := decode.PackLiquidity()
	if err != nil {
		return nil, err
	}
	feeData, err := decode.PackFee()
	if err != nil {
		return nil, err
	}
	token0Data, err := decode.PackToken0()
	if err != nil {
		return nil, err
	}
	token1Data, err := decode.PackToken1()
	if err != nil {
		return nil, err
	}

	targets := make([]seedTarget, 0, len(m.addresses))
	for _, addr := range m.addresses {
		variant := m.tracked[addr]
		t := seedTarget{addr: addr, variant: variant}
		switch variant {
		case amm.ConstantProduct:
			t.calls = []provider.Call{
				{To: addr, Data: reservesData},
				{To: addr, Data: token0Data},
				{To: addr, Data: token1Data},
			}
		case amm.ConcentratedLiquidity:
			t.calls = []provider.Call{
				{To: addr, Data: slot0Data},
				{To: addr, Data: liquidityData},
				{To: addr, Data: feeData},
				{To: addr, Data: token0Data},
				{To: addr, Data: token1Data},
			}
		default:
			return nil, fmt.Errorf("pool %s has unsupported variant %d", addr.Hex(), variant)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func (m *Manager) parseSeedResults(t *seedTarget, results []provider.Call) (amm.Pool, error) {
	for i := range results {
		if results[i].Err != nil {
			return nil, fmt.Errorf("call %d: %w", i, results[i].Err)
		}
	}

	switch t.variant {
	case amm.ConstantProduct:
		if len(results) != v2CallCount {
			return nil, fmt.Errorf("expected %d results, got %d", v2CallCount, len(results))
		}
		reserves, err := decode.UnpackGetReserves(results[0].Result)
		if err != nil {
			return nil, err
		}
		token0, err := decode.UnpackAddress(results[1].Result)
		if err != nil {
			return nil, err
		}
		token1, err := decode.UnpackAddress(results[2].Result)
		if err != nil {
			return nil, err
		}
		return &uniswapv2.Pool{
			Address:  t.addr,
			Token0:   token0,
			Token1:   token1,
			Reserve0: reserves.Reserve0,
			Reserve1: reserves.Reserve1,
			FeeBps:   uniswapv2.DefaultFeeBps,
		}, nil

	case amm.ConcentratedLiquidity:
		if len(results) != v3CallCount {
			return nil, fmt.Errorf("expected %d results, got %d", v3CallCount, len(results))
		}
		slot0, err := decode.UnpackSlot0(results[0].Result)
		if err != nil {
			return nil, err
		}
		liquidity, err := decode.UnpackLiquidity(results[1].Result)
		if err != nil {
			return nil, err
		}
		feePips, err := decode.UnpackFee(results[2].Result)
		if err != nil {
			return nil, err
		}
		token0, err := decode.UnpackAddress(results[3].Result)
		if err != nil {
			return nil, err
		}
		token1, err := decode.UnpackAddress(results[4].Result)
		if err != nil {
			return nil, err
		}
		return &uniswapv3.Pool{
			Address:      t.addr,
			Token0:       token0,
			Token1:       token1,
			FeePips:      feePips,
			Tick:         slot0.Tick,
			Liquidity:    liquidity,
			SqrtPriceX96: slot0.SqrtPriceX96,
		}, nil
	}
	return nil, fmt.Errorf("unsupported variant %d", t.variant)
}
