package registry

import (
	"fmt"
	"sort"

	"github.com/poolmirror/poolmirror-go/amm"
	uniswapv2 "github.com/poolmirror/poolmirror-go/protocols/uniswapv2"
	uniswapv3 "github.com/poolmirror/poolmirror-go/protocols/uniswapv3"
)

// Document is the on-disk snapshot: every exported pool record plus the
// identity of the block the state was committed at.
type Document struct {
	BlockNumber uint64       `json:"block_number"`
	BlockHash   string       `json:"block_hash"`
	Pools       []amm.Record `json:"pools"`
}

// Export renders every committed pool as a snapshot record, sorted by
// address for deterministic output. The records own their memory; mutating
// them does not touch the registry.
func (r *Registry) Export() []amm.Record {
	m := *r.committed.Load()
	records := make([]amm.Record, 0, len(m))
	for _, p := range m {
		records = append(records, p.Record())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Address < records[j].Address })
	return records
}

// Import stages pools reconstructed from exported records, for warm
// restarts. The caller commits afterwards. Records with an unknown variant
// fail the whole import; nothing is published.
func (r *Registry) Import(records []amm.Record) error {
	for _, rec := range records {
		variant, err := amm.ParseVariant(rec.Variant)
		if err != nil {
			return fmt.Errorf("import record %s: %w", rec.Address, err)
		}

		var pool amm.Pool
		switch variant {
		case amm.ConstantProduct:
			pool, err = uniswapv2.FromRecord(rec)
		case amm.ConcentratedLiquidity:
			pool, err = uniswapv3.FromRecord(rec)
		}
		if err != nil {
			return fmt.Errorf("import record %s: %w", rec.Address, err)
		}
		r.Upsert(pool)
	}
	return nil
}
