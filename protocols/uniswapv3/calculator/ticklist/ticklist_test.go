package ticklist

import (
	"testing"

	uniswapv3 "github.com/poolmirror/poolmirror-go/protocols/uniswapv3"

	"github.com/stretchr/testify/assert"
)

func makeTicks(indices []int64) []uniswapv3.TickInfo {
	ticks := make([]uniswapv3.TickInfo, len(indices))
	for i, idx := range indices {
		ticks[i] = uniswapv3.TickInfo{Index: idx}
	}
	return ticks
}

func TestNextInitializedTick(t *testing.T) {
	initialized := []int64{-200, -100, -50, 0, 50, 100, 200}

	testCases := []struct {
		name                string
		ticks               []int64
		startTick           int64
		lte                 bool
		expectedNext        int64
		expectedInitialized bool
	}{
		{"LTE: exact match", initialized, 50, true, 50, true},
		{"LTE: between ticks", initialized, 40, true, 0, true},
		{"LTE: just above a tick", initialized, 51, true, 50, true},
		{"LTE: at first tick", initialized, -200, true, -200, true},
		{"LTE: before first tick", initialized, -250, true, 0, false},
		{"LTE: at last tick", initialized, 200, true, 200, true},

		{"GT: on an existing tick", initialized, 50, false, 100, true},
		{"GT: between ticks", initialized, 40, false, 50, true},
		{"GT: just below a tick", initialized, 49, false, 50, true},
		{"GT: at first tick", initialized, -200, false, -100, true},
		{"GT: at last tick", initialized, 200, false, 0, false},
		{"GT: after last tick", initialized, 250, false, 0, false},

		{"empty slice (LTE)", []int64{}, 100, true, 0, false},
		{"empty slice (GT)", []int64{}, 100, false, 0, false},
		{"single element match (LTE)", []int64{100}, 100, true, 100, true},
		{"single element no match (GT)", []int64{100}, 100, false, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			next, ok := NextInitializedTick(makeTicks(tc.ticks), tc.startTick, tc.lte)
			assert.Equal(t, tc.expectedNext, next)
			assert.Equal(t, tc.expectedInitialized, ok)
		})
	}
}
