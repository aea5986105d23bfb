package raypipe

import "fmt"

// activation tracks live instances per material slot and keeps the
// activation mask in sync with the counts.
type activation struct {
	counts []int
	mask   Mask
}

func newActivation(materials int) activation {
	return activation{counts: make([]int, materials)}
}

func (a *activation) checkSlot(slot int) {
	if slot < 0 || slot >= len(a.counts) {
		panic(fmt.Sprintf("raypipe: material slot %d out of range [0, %d)", slot, len(a.counts)))
	}
}

func (a *activation) add(slot int) {
	a.checkSlot(slot)
	if a.counts[slot] == 0 {
		a.mask = a.mask.With(slot)
	}
	a.counts[slot]++
}

func (a *activation) remove(slot int) {
	a.checkSlot(slot)
	if a.counts[slot] == 0 {
		panic(fmt.Sprintf("raypipe: material slot %d removed with no live instances", slot))
	}
	a.counts[slot]--
	if a.counts[slot] == 0 {
		a.mask = a.mask.Without(slot)
	}
}

func (a *activation) count(slot int) int {
	a.checkSlot(slot)
	return a.counts[slot]
}
