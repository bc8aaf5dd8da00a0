package uniswapv2

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolmirror/poolmirror-go/amm"
	"github.com/poolmirror/poolmirror-go/delta"
)

// DefaultFeeBps is assumed for pools whose fee is not known at creation
// time, matching the canonical 0.3% pair contract.
const DefaultFeeBps uint16 = 30

// Pool is the mirrored state of a single constant-product pair.
type Pool struct {
	Address  common.Address `json:"address"`
	Token0   common.Address `json:"token0"`
	Token1   common.Address `json:"token1"`
	Reserve0 *big.Int       `json:"reserve0"`
	Reserve1 *big.Int       `json:"reserve1"`
	FeeBps   uint16         `json:"feeBps"` // i.e 30 for 0.3%
}

func (p *Pool) PoolAddress() common.Address { return p.Address }
func (p *Pool) PoolVariant() amm.Variant    { return amm.ConstantProduct }

// Clone returns a deep copy with its own memory for the reserves.
func (p *Pool) Clone() amm.Pool {
	clone := *p
	if p.Reserve0 != nil {
		clone.Reserve0 = new(big.Int).Set(p.Reserve0)
	}
	if p.Reserve1 != nil {
		clone.Reserve1 = new(big.Int).Set(p.Reserve1)
	}
	return &clone
}

// Record renders the pool in the exported snapshot format.
func (p *Pool) Record() amm.Record {
	return amm.Record{
		Address:  p.Address.Hex(),
		Variant:  amm.ConstantProduct.String(),
		Reserve0: new(big.Int).Set(p.Reserve0),
		Reserve1: new(big.Int).Set(p.Reserve1),
		FeeBps:   p.FeeBps,
	}
}

// FromRecord reconstructs a pool from an exported snapshot record.
func FromRecord(r amm.Record) (*Pool, error) {
	if r.Variant != amm.ConstantProduct.String() {
		return nil, fmt.Errorf("record variant %q is not %s", r.Variant, amm.ConstantProduct)
	}
	if r.Reserve0 == nil || r.Reserve1 == nil {
		return nil, fmt.Errorf("record for %s is missing reserves", r.Address)
	}
	if !common.IsHexAddress(r.Address) {
		return nil, fmt.Errorf("record address %q is not a hex address", r.Address)
	}
	fee := r.FeeBps
	if fee == 0 {
		fee = DefaultFeeBps
	}
	return &Pool{
		Address:  common.HexToAddress(r.Address),
		Reserve0: new(big.Int).Set(r.Reserve0),
		Reserve1: new(big.Int).Set(r.Reserve1),
		FeeBps:   fee,
	}, nil
}

// NewFromSync creates a skeleton pool from the first reserve sync observed
// for an address that was never seeded. Token addresses stay zero until an
// external initializer fills them in.
func NewFromSync(addr common.Address, c *delta.ReserveSync) *Pool {
	return &Pool{
		Address:  addr,
		Reserve0: new(big.Int).Set(c.Reserve0),
		Reserve1: new(big.Int).Set(c.Reserve1),
		FeeBps:   DefaultFeeBps,
	}
}

// ApplyReserveSync replaces the pool's reserves with the synced values and
// returns the prior reserves for snapshot capture.
func ApplyReserveSync(p *Pool, c *delta.ReserveSync) (*delta.ReserveSyncPrior, error) {
	if c.Reserve0 == nil || c.Reserve1 == nil {
		return nil, fmt.Errorf("%w: nil reserve in sync for %s", amm.ErrInvariantViolation, p.Address.Hex())
	}
	if c.Reserve0.Sign() < 0 || c.Reserve1.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative reserve for %s", amm.ErrInvariantViolation, p.Address.Hex())
	}

	prior := &delta.ReserveSyncPrior{
		Reserve0: new(big.Int).Set(p.Reserve0),
		Reserve1: new(big.Int).Set(p.Reserve1),
	}
	p.Reserve0.Set(c.Reserve0)
	p.Reserve1.Set(c.Reserve1)
	return prior, nil
}

// RestoreReserveSync is the exact inverse of ApplyReserveSync.
func RestoreReserveSync(p *Pool, prior *delta.ReserveSyncPrior) {
	p.Reserve0.Set(prior.Reserve0)
	p.Reserve1.Set(prior.Reserve1)
}
