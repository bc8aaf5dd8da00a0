package registry

import (
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolmirror/poolmirror-go/amm"
	"github.com/poolmirror/poolmirror-go/delta"
	uniswapv2 "github.com/poolmirror/poolmirror-go/protocols/uniswapv2"
	uniswapv3 "github.com/poolmirror/poolmirror-go/protocols/uniswapv3"
)

var (
	// ErrPoolNotFound is returned when accessing a pool the registry does
	// not hold.
	ErrPoolNotFound = errors.New("pool not found in registry")
	// ErrVariantMismatch is returned when a delta's change kind does not fit
	// the pool's variant.
	ErrVariantMismatch = errors.New("delta kind does not match pool variant")
	// ErrNoPendingBlock is returned when Commit or Discard is called with no
	// staged changes.
	ErrNoPendingBlock = errors.New("no pending block to commit or discard")
)

// Registry holds the mirrored pool set. Reads go through an atomically
// published immutable map and never block; all mutation belongs to a single
// writer goroutine that stages per-block changes and publishes them with
// Commit. Readers therefore observe block boundaries, never a half-applied
// block.
type Registry struct {
	committed atomic.Pointer[map[common.Address]amm.Pool]

	// pending is the writer's staging area for the block being applied.
	// Keys map to the dirty clone, or to nil for entries the rollback of a
	// created pool removes.
	pending map[common.Address]amm.Pool
}

// New returns an empty registry.
func New() *Registry {
	r := &Registry{
		pending: make(map[common.Address]amm.Pool),
	}
	empty := make(map[common.Address]amm.Pool)
	r.committed.Store(&empty)
	return r
}

// Get returns the committed state of a pool. The returned pool is shared
// with other readers and must not be mutated; Clone it before writing.
func (r *Registry) Get(addr common.Address) (amm.Pool, bool) {
	m := *r.committed.Load()
	p, ok := m[addr]
	return p, ok
}

// Len returns the number of committed pools.
func (r *Registry) Len() int {
	return len(*r.committed.Load())
}

// Addresses returns the committed pool addresses in no particular order.
func (r *Registry) Addresses() []common.Address {
	m := *r.committed.Load()
	addrs := make([]common.Address, 0, len(m))
	for addr := range m {
		addrs = append(addrs, addr)
	}
	return addrs
}

// Upsert stages a pool wholesale, replacing any committed entry at the same
// address on the next Commit. Writer-only; used for seeding and warm
// restarts.
func (r *Registry) Upsert(p amm.Pool) {
	r.pending[p.PoolAddress()] = p
}

// dirty returns the writer's working copy of a pool, cloning the committed
// entry on first touch within the pending block.
func (r *Registry) dirty(addr common.Address) (amm.Pool, bool) {
	if p, ok := r.pending[addr]; ok {
		return p, p != nil
	}
	committed, ok := (*r.committed.Load())[addr]
	if !ok {
		return nil, false
	}
	clone := committed.Clone()
	r.pending[addr] = clone
	return clone, true
}

// ApplyDelta stages one decoded change and returns the pre-image required to
// invert it. Sync and Swap deltas for unknown addresses create skeleton
// pools; a Liquidity delta for an unknown address is an error, because tick
// bookkeeping without a price anchor is meaningless.
func (r *Registry) ApplyDelta(d *delta.Delta) (*delta.PreImage, error) {
	pre := &delta.PreImage{
		PoolAddress: d.PoolAddress,
		BlockNumber: d.BlockNumber,
		LogIndex:    d.LogIndex,
	}

	pool, exists := r.dirty(d.PoolAddress)

	switch c := d.Change.(type) {
	case *delta.ReserveSync:
		if !exists {
			created := uniswapv2.NewFromSync(d.PoolAddress, c)
			r.pending[d.PoolAddress] = created
			pre.CreatedPool = true
			pre.Prior = &delta.ReserveSyncPrior{
				Reserve0: new(big.Int).Set(created.Reserve0),
				Reserve1: new(big.Int).Set(created.Reserve1),
			}
			return pre, nil
		}
		v2, ok := pool.(*uniswapv2.Pool)
		if !ok {
			return nil, fmt.Errorf("%w: reserve sync on %s pool %s", ErrVariantMismatch, pool.PoolVariant(), d.PoolAddress.Hex())
		}
		prior, err := uniswapv2.ApplyReserveSync(v2, c)
		if err != nil {
			return nil, err
		}
		pre.Prior = prior
		return pre, nil

	case *delta.Swap:
		if !exists {
			created := uniswapv3.NewFromSwap(d.PoolAddress, c)
			r.pending[d.PoolAddress] = created
			pre.CreatedPool = true
			pre.Prior = &delta.SwapPrior{
				SqrtPriceX96: new(big.Int).Set(created.SqrtPriceX96),
				Tick:         created.Tick,
				Liquidity:    new(big.Int).Set(created.Liquidity),
			}
			return pre, nil
		}
		v3, ok := pool.(*uniswapv3.Pool)
		if !ok {
			return nil, fmt.Errorf("%w: swap on %s pool %s", ErrVariantMismatch, pool.PoolVariant(), d.PoolAddress.Hex())
		}
		prior, err := uniswapv3.ApplySwap(v3, c)
		if err != nil {
			return nil, err
		}
		pre.Prior = prior
		return pre, nil

	case *delta.Liquidity:
		if !exists {
			return nil, fmt.Errorf("%w: liquidity change for unseeded pool %s", ErrPoolNotFound, d.PoolAddress.Hex())
		}
		v3, ok := pool.(*uniswapv3.Pool)
		if !ok {
			return nil, fmt.Errorf("%w: liquidity change on %s pool %s", ErrVariantMismatch, pool.PoolVariant(), d.PoolAddress.Hex())
		}
		prior, err := uniswapv3.ApplyLiquidity(v3, c)
		if err != nil {
			return nil, err
		}
		pre.Prior = prior
		return pre, nil

	default:
		return nil, fmt.Errorf("unknown change kind %d for pool %s", d.Change.Kind(), d.PoolAddress.Hex())
	}
}

// Restore stages the exact inverse of a previously applied delta. Pre-images
// are restored newest-first; a pre-image whose delta created the pool
// removes the entry again.
func (r *Registry) Restore(pre *delta.PreImage) error {
	if pre.CreatedPool {
		r.pending[pre.PoolAddress] = nil
		return nil
	}

	pool, exists := r.dirty(pre.PoolAddress)
	if !exists {
		return fmt.Errorf("%w: restore targets missing pool %s", ErrPoolNotFound, pre.PoolAddress.Hex())
	}

	switch prior := pre.Prior.(type) {
	case *delta.ReserveSyncPrior:
		v2, ok := pool.(*uniswapv2.Pool)
		if !ok {
			return fmt.Errorf("%w: reserve restore on %s pool %s", ErrVariantMismatch, pool.PoolVariant(), pre.PoolAddress.Hex())
		}
		uniswapv2.RestoreReserveSync(v2, prior)
	case *delta.SwapPrior:
		v3, ok := pool.(*uniswapv3.Pool)
		if !ok {
			return fmt.Errorf("%w: swap restore on %s pool %s", ErrVariantMismatch, pool.PoolVariant(), pre.PoolAddress.Hex())
		}
		uniswapv3.RestoreSwap(v3, prior)
	case *delta.LiquidityPrior:
		v3, ok := pool.(*uniswapv3.Pool)
		if !ok {
			return fmt.Errorf("%w: liquidity restore on %s pool %s", ErrVariantMismatch, pool.PoolVariant(), pre.PoolAddress.Hex())
		}
		uniswapv3.RestoreLiquidity(v3, prior)
	default:
		return fmt.Errorf("unknown prior kind for pool %s", pre.PoolAddress.Hex())
	}
	return nil
}

// Commit publishes every staged change as one new immutable map. Readers
// switch from the old map to the new one in a single pointer store.
func (r *Registry) Commit() error {
	if len(r.pending) == 0 {
		return ErrNoPendingBlock
	}

	old := *r.committed.Load()
	next := make(map[common.Address]amm.Pool, len(old)+len(r.pending))
	for addr, p := range old {
		next[addr] = p
	}
	for addr, p := range r.pending {
		if p == nil {
			delete(next, addr)
			continue
		}
		next[addr] = p
	}

	r.committed.Store(&next)
	r.pending = make(map[common.Address]amm.Pool)
	return nil
}

// Discard drops every staged change, leaving the committed map untouched.
func (r *Registry) Discard() {
	if len(r.pending) == 0 {
		return
	}
	r.pending = make(map[common.Address]amm.Pool)
}

// PendingLen returns the number of staged entries, for instrumentation.
func (r *Registry) PendingLen() int {
	return len(r.pending)
}
