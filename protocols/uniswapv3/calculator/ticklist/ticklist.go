package ticklist

import (
	"sort"

	uniswapv3 "github.com/poolmirror/poolmirror-go/protocols/uniswapv3"
)

// NextInitializedTick finds the next initialized tick in a sorted tick slice.
// It serves the role of the pool contract's TickBitmap library, adapted to a
// sorted slice of initialized ticks instead of a packed bitmap, and uses
// binary search for lookups.
//
// When lte is true it returns the largest initialized tick <= tick (the
// search direction for zero-for-one swaps); otherwise the smallest
// initialized tick > tick. initialized is false when no tick exists in that
// direction.
func NextInitializedTick(
	ticks []uniswapv3.TickInfo,
	tick int64,
	lte bool,
) (next int64, initialized bool) {
	if len(ticks) == 0 {
		return 0, false
	}

	if lte {
		// Smallest index with ticks[i].Index >= tick.
		i := sort.Search(len(ticks), func(i int) bool {
			return ticks[i].Index >= tick
		})
		if i < len(ticks) && ticks[i].Index == tick {
			return tick, true
		}
		if i == 0 {
			// tick is below every initialized tick.
			return 0, false
		}
		return ticks[i-1].Index, true
	}

	// Smallest index with ticks[i].Index > tick.
	i := sort.Search(len(ticks), func(i int) bool {
		return ticks[i].Index > tick
	})
	if i >= len(ticks) {
		return 0, false
	}
	return ticks[i].Index, true
}
