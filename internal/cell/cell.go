package cell

import (
	"fmt"
	"slices"
)

// Cell is a single-owner container of a T. Its value is reachable only from
// the body of an operation scheduled against it.
type Cell[T any] struct {
	slot  *slot
	sched *Scheduler
	value T
}

// New allocates a cell owned by s with the given initial state.
func New[T any](s *Scheduler, initial T) *Cell[T] {
	return &Cell[T]{
		slot:  s.newSlot(),
		sched: s,
		value: initial,
	}
}

// ID returns the cell's identity. Identities are unique per scheduler and
// define the acquisition order of multi-cell operations.
func (c *Cell[T]) ID() uint64 {
	return c.slot.id
}

// When schedules fn with exclusive access to c.
func When[T any](c *Cell[T], fn func(v *T)) {
	c.sched.schedule([]*slot{c.slot}, func() {
		fn(&c.value)
	})
}

// When2 schedules fn with joint exclusive access to a and b. Both cells must
// belong to the same scheduler. If a and b are the same cell fn receives the
// same value twice.
func When2[A, B any](a *Cell[A], b *Cell[B], fn func(a *A, b *B)) {
	if a.sched != b.sched {
		panic(fmt.Sprintf("cell: When2 across schedulers (cells %d and %d)", a.slot.id, b.slot.id))
	}
	a.sched.schedule([]*slot{a.slot, b.slot}, func() {
		fn(&a.value, &b.value)
	})
}

// WhenAll schedules fn with joint exclusive access to every cell in cs. The
// values are passed in the order of cs.
func WhenAll[T any](cs []*Cell[T], fn func(vs []*T)) {
	if len(cs) == 0 {
		panic("cell: WhenAll with no cells")
	}
	s := cs[0].sched
	slots := make([]*slot, len(cs))
	for i, c := range cs {
		if c.sched != s {
			panic(fmt.Sprintf("cell: WhenAll across schedulers (cell %d)", c.slot.id))
		}
		slots[i] = c.slot
	}
	s.schedule(slots, func() {
		vs := make([]*T, len(cs))
		for i, c := range cs {
			vs[i] = &c.value
		}
		fn(vs)
	})
}

// orderSlots sorts slots by identity and drops duplicates.
func orderSlots(slots []*slot) []*slot {
	if len(slots) == 1 {
		return slots
	}
	ordered := slices.Clone(slots)
	slices.SortFunc(ordered, func(a, b *slot) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		default:
			return 0
		}
	})
	return slices.CompactFunc(ordered, func(a, b *slot) bool { return a == b })
}
