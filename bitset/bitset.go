// Package bitset provides a fixed-size bit set used by the routing graph to
// mark pools already traversed on a path.
package bitset

import (
	"fmt"
	"math/bits"
)

// BitSet is a fixed-capacity set of bit indices. The zero value is unusable;
// create one with NewBitSet.
type BitSet []uint64

func NewBitSet(size uint64) BitSet {
	words := (size + 63) / 64
	return make(BitSet, words)
}

func (b BitSet) IsSet(index uint64) bool {
	return b[index/64]&(uint64(1)<<(index%64)) != 0
}

func (b BitSet) Set(index uint64) {
	b[index/64] |= uint64(1) << (index % 64)
}

func (b BitSet) Unset(index uint64) {
	b[index/64] &^= uint64(1) << (index % 64)
}

// Count returns the number of set bits.
func (b BitSet) Count() int {
	n := 0
	for _, word := range b {
		n += bits.OnesCount64(word)
	}
	return n
}

func (b BitSet) Clear() {
	for i := range b {
		b[i] = 0
	}
}

// SetFrom copies the contents of o. Both sets must have the same capacity.
func (b BitSet) SetFrom(o BitSet) {
	if len(b) != len(o) {
		panic(fmt.Sprintf("bitsets must be same size: got %d vs %d", len(b), len(o)))
	}
	copy(b, o)
}
