package snapshot

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blockSnapshot(n uint64) Snapshot {
	return Snapshot{
		BlockNumber: n,
		BlockHash:   common.BigToHash(common.Big1),
	}
}

func TestNewRing_RejectsBadCapacity(t *testing.T) {
	_, err := NewRing(0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = NewRing(-3)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

// TestRing_EvictsOldest fills a capacity-5 ring past its limit and checks
// only the newest five blocks remain, in LIFO pop order.
func TestRing_EvictsOldest(t *testing.T) {
	r, err := NewRing(5)
	require.NoError(t, err)

	for n := uint64(100); n <= 107; n++ {
		r.Push(blockSnapshot(n))
	}
	assert.Equal(t, 5, r.Len())

	for want := uint64(107); want >= 103; want-- {
		s, ok := r.PopNewest()
		require.True(t, ok)
		assert.Equal(t, want, s.BlockNumber)
	}

	// Block 102 and older were evicted.
	_, ok := r.PopNewest()
	assert.False(t, ok)
}

func TestRing_NewestDoesNotRemove(t *testing.T) {
	r, err := NewRing(3)
	require.NoError(t, err)

	_, ok := r.Newest()
	assert.False(t, ok)

	r.Push(blockSnapshot(100))
	r.Push(blockSnapshot(101))

	s, ok := r.Newest()
	require.True(t, ok)
	assert.Equal(t, uint64(101), s.BlockNumber)
	assert.Equal(t, 2, r.Len())
}

func TestRing_Find(t *testing.T) {
	r, err := NewRing(3)
	require.NoError(t, err)

	for n := uint64(100); n <= 104; n++ {
		r.Push(blockSnapshot(n))
	}

	s, ok := r.Find(103)
	require.True(t, ok)
	assert.Equal(t, uint64(103), s.BlockNumber)

	// Evicted and never-seen blocks are not found.
	_, ok = r.Find(100)
	assert.False(t, ok)
	_, ok = r.Find(999)
	assert.False(t, ok)
}

func TestRing_Clear(t *testing.T) {
	r, err := NewRing(3)
	require.NoError(t, err)

	r.Push(blockSnapshot(100))
	r.Push(blockSnapshot(101))
	r.Clear()

	assert.Equal(t, 0, r.Len())
	_, ok := r.PopNewest()
	assert.False(t, ok)

	// The ring is reusable after a clear.
	r.Push(blockSnapshot(200))
	s, ok := r.Newest()
	require.True(t, ok)
	assert.Equal(t, uint64(200), s.BlockNumber)
}

func TestRing_WrapAroundAfterPops(t *testing.T) {
	r, err := NewRing(3)
	require.NoError(t, err)

	r.Push(blockSnapshot(1))
	r.Push(blockSnapshot(2))
	r.PopNewest()
	r.Push(blockSnapshot(3))
	r.Push(blockSnapshot(4))
	r.Push(blockSnapshot(5)) // evicts 1

	var got []uint64
	for {
		s, ok := r.PopNewest()
		if !ok {
			break
		}
		got = append(got, s.BlockNumber)
	}
	assert.Equal(t, []uint64{5, 4, 3}, got)
}
