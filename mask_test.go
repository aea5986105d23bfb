package raypipe

import (
	"slices"
	"testing"
)

func TestFullMask(t *testing.T) {
	tests := []struct {
		n    int
		want Mask
	}{
		{-1, 0},
		{0, 0},
		{1, 0b1},
		{3, 0b111},
		{63, 1<<63 - 1},
		{64, ^Mask(0)},
		{100, ^Mask(0)},
	}
	for _, tt := range tests {
		if got := FullMask(tt.n); got != tt.want {
			t.Errorf("FullMask(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestMaskSetOps(t *testing.T) {
	var m Mask
	m = m.With(0).With(5).With(63)
	for _, slot := range []int{0, 5, 63} {
		if !m.Has(slot) {
			t.Errorf("Has(%d) = false after With", slot)
		}
	}
	if m.Has(1) || m.Has(-1) || m.Has(64) {
		t.Error("Has reported a slot that was never added")
	}
	if got := m.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
	m = m.Without(5)
	if m.Has(5) {
		t.Error("Has(5) = true after Without")
	}
	if got, want := m.Slots(), []int{0, 63}; !slices.Equal(got, want) {
		t.Errorf("Slots() = %v, want %v", got, want)
	}
}

func TestMaskSlotsAscending(t *testing.T) {
	m := Mask(0b1011_0010)
	if got, want := m.Slots(), []int{1, 4, 5, 7}; !slices.Equal(got, want) {
		t.Errorf("Slots() = %v, want %v", got, want)
	}
	if got := Mask(0).Slots(); len(got) != 0 {
		t.Errorf("empty mask Slots() = %v", got)
	}
}

func TestMaskString(t *testing.T) {
	if got := Mask(0b101).String(); got != "0b101" {
		t.Errorf("String() = %q, want 0b101", got)
	}
	if got := Mask(0).String(); got != "0b0" {
		t.Errorf("String() = %q, want 0b0", got)
	}
}
