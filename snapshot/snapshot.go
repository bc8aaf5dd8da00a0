package snapshot

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/poolmirror/poolmirror-go/delta"
)

// ErrInvalidCapacity is returned when a ring is created with a non-positive
// capacity.
var ErrInvalidCapacity = errors.New("snapshot ring capacity must be positive")

// Applied pairs a delta with the pre-image its application produced. Kept
// together so a block can be replayed forward or inverted without any
// lookup.
type Applied struct {
	Delta *delta.Delta
	Pre   *delta.PreImage
}

// Snapshot is the rollback unit for one committed block: its identity in the
// chain plus every state change it carried, in apply order.
type Snapshot struct {
	BlockNumber uint64
	BlockHash   common.Hash
	ParentHash  common.Hash
	Deltas      []Applied
}

// Ring is a fixed-capacity buffer of the most recent block snapshots. Push
// evicts the oldest entry once full; PopNewest serves reorg rollback, which
// unwinds blocks newest-first. The ring bounds both memory and the deepest
// recoverable reorg.
type Ring struct {
	buf   []Snapshot
	start int
	count int
}

// NewRing returns an empty ring holding at most capacity snapshots.
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Ring{buf: make([]Snapshot, capacity)}, nil
}

// Len returns the number of stored snapshots.
func (r *Ring) Len() int { return r.count }

// Cap returns the ring's fixed capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Push appends the snapshot as the newest entry, evicting the oldest when
// the ring is full.
func (r *Ring) Push(s Snapshot) {
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = s
		r.count++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

// Newest returns the most recent snapshot without removing it.
func (r *Ring) Newest() (Snapshot, bool) {
	if r.count == 0 {
		return Snapshot{}, false
	}
	return r.buf[(r.start+r.count-1)%len(r.buf)], true
}

// Find returns the retained snapshot for the given block number, if any.
func (r *Ring) Find(blockNumber uint64) (Snapshot, bool) {
	for i := 0; i < r.count; i++ {
		s := r.buf[(r.start+i)%len(r.buf)]
		if s.BlockNumber == blockNumber {
			return s, true
		}
	}
	return Snapshot{}, false
}

// PopNewest removes and returns the most recent snapshot.
func (r *Ring) PopNewest() (Snapshot, bool) {
	if r.count == 0 {
		return Snapshot{}, false
	}
	i := (r.start + r.count - 1) % len(r.buf)
	s := r.buf[i]
	r.buf[i] = Snapshot{}
	r.count--
	return s, true
}

// Clear drops every snapshot, e.g. after a full reseed makes the history
// meaningless.
func (r *Ring) Clear() {
	for i := range r.buf {
		r.buf[i] = Snapshot{}
	}
	r.start = 0
	r.count = 0
}
