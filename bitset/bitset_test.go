package bitset

import (
	"testing"
)

func TestBitSet_SetAndIsSet(t *testing.T) {
	bs := NewBitSet(100)

	// Bits around a word boundary plus both ends.
	bs.Set(0)
	bs.Set(63)
	bs.Set(64)
	bs.Set(99)

	for _, idx := range []uint64{0, 63, 64, 99} {
		if !bs.IsSet(idx) {
			t.Errorf("expected bit %d to be set", idx)
		}
	}
	if bs.IsSet(1) {
		t.Error("expected bit 1 to be not set")
	}
	if got := bs.Count(); got != 4 {
		t.Errorf("Count() = %d, want 4", got)
	}
}

func TestBitSet_Unset(t *testing.T) {
	bs := NewBitSet(100)
	bs.Set(10)
	bs.Set(20)
	bs.Set(30)

	bs.Unset(20)

	if bs.IsSet(20) {
		t.Error("expected bit 20 to be unset")
	}
	if !bs.IsSet(10) || !bs.IsSet(30) {
		t.Error("expected bits 10 and 30 to remain set")
	}
}

func TestBitSet_Clear(t *testing.T) {
	bs := NewBitSet(128)
	bs.Set(5)
	bs.Set(127)

	bs.Clear()

	if got := bs.Count(); got != 0 {
		t.Errorf("Count() after Clear = %d, want 0", got)
	}
}

func TestBitSet_SetFrom(t *testing.T) {
	src := BitSet{0b1010, 0b1111}
	dst := BitSet{0, 0}

	dst.SetFrom(src)

	for i := range src {
		if dst[i] != src[i] {
			t.Errorf("SetFrom: dst[%d]=%b, want %b", i, dst[i], src[i])
		}
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("SetFrom did not panic on mismatched lengths")
		}
	}()

	shortDst := BitSet{0}
	shortDst.SetFrom(src) // should panic
}
