// Package slab provides a generation-checked slot allocator. Callers hold
// a Ref (index + generation) instead of a pointer, so a slot can be
// recycled while stale refs to its previous occupant become harmless
// no-ops.
package slab

import (
	"fortio.org/safecast"
)

// Nil marks the end of the free list.
const Nil = ^uint32(0)

// Ref identifies one allocation. It stays position-independent across
// later slab mutation and is invalidated by Free.
type Ref struct {
	Idx uint32
	Gen uint64
}

type slot[T any] struct {
	data T
	gen  uint64
	next uint32 // free-list link, Nil while occupied
	used bool
}

type Slab[T any] struct {
	slots []slot[T]
	free  uint32
	used  int
}

func New[T any](capHint int) *Slab[T] {
	s := &Slab[T]{free: Nil}
	if capHint > 0 {
		s.slots = make([]slot[T], 0, capHint)
	}
	return s
}

// Alloc takes a slot from the free list, growing the backing array when
// none is available, and returns a fresh Ref plus a pointer for the
// caller to fill in. The pointer is only valid until the next Alloc.
func (s *Slab[T]) Alloc() (Ref, *T, error) {
	var idx uint32
	if s.free != Nil {
		idx = s.free
		s.free = s.slots[idx].next
	} else {
		s.slots = append(s.slots, slot[T]{gen: 1})
		i, err := safecast.Conv[uint32](len(s.slots) - 1)
		if err != nil {
			return Ref{}, nil, err
		}
		idx = i
	}
	sl := &s.slots[idx]
	sl.used = true
	sl.next = Nil
	s.used++
	return Ref{Idx: idx, Gen: sl.gen}, &sl.data, nil
}

// Get resolves a Ref, returning nil when the ref is stale (freed or
// superseded by a newer generation of the same slot).
func (s *Slab[T]) Get(ref Ref) *T {
	if int(ref.Idx) >= len(s.slots) {
		return nil
	}
	sl := &s.slots[ref.Idx]
	if !sl.used || sl.gen != ref.Gen {
		return nil
	}
	return &sl.data
}

// Free releases the slot behind ref and bumps its generation so every
// outstanding copy of ref goes stale. Freeing a stale ref is a no-op.
func (s *Slab[T]) Free(ref Ref) bool {
	if s.Get(ref) == nil {
		return false
	}
	sl := &s.slots[ref.Idx]
	var zero T
	sl.data = zero
	sl.gen++
	sl.used = false
	sl.next = s.free
	s.free = ref.Idx
	s.used--
	return true
}

// Len reports the number of live slots.
func (s *Slab[T]) Len() int {
	return s.used
}
