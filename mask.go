package raypipe

import (
	"fmt"
	"math/bits"
)

// MaxMaterials is the number of material slots a single manager can track.
const MaxMaterials = 64

// Mask is a set of material slots. Bit i is set when slot i is included.
// Masks key the specialized pipeline cache, so their numeric order is the
// cache iteration order.
type Mask uint64

// FullMask returns the mask with the low n bits set.
func FullMask(n int) Mask {
	if n >= MaxMaterials {
		return ^Mask(0)
	}
	if n <= 0 {
		return 0
	}
	return Mask(1)<<uint(n) - 1
}

// Has reports whether slot is in the mask.
func (m Mask) Has(slot int) bool {
	return slot >= 0 && slot < MaxMaterials && m&(1<<uint(slot)) != 0
}

// With returns m with slot added.
func (m Mask) With(slot int) Mask { return m | 1<<uint(slot) }

// Without returns m with slot removed.
func (m Mask) Without(slot int) Mask { return m &^ (1 << uint(slot)) }

// Count returns the number of slots in the mask.
func (m Mask) Count() int { return bits.OnesCount64(uint64(m)) }

// Slots returns the slots in the mask in ascending order.
func (m Mask) Slots() []int {
	slots := make([]int, 0, m.Count())
	for v := uint64(m); v != 0; v &= v - 1 {
		slots = append(slots, bits.TrailingZeros64(v))
	}
	return slots
}

// String formats the mask as a binary literal, e.g. "0b101".
func (m Mask) String() string {
	return fmt.Sprintf("0b%b", uint64(m))
}
