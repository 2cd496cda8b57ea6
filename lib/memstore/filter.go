package memstore

import (
	"maps"
	"slices"
)

// IDSet is a set of record ids.
type IDSet map[uint64]struct{}

// NewIDSet returns a set holding ids.
func NewIDSet(ids ...uint64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Contains(id uint64) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []uint64 {
	return slices.Sorted(maps.Keys(s))
}

// Filter is the intersection of any number of id sets. The zero Filter has no
// constraint and matches everything, which is different from a constrained
// Filter that matched nothing.
type Filter struct {
	ids         IDSet
	constrained bool
}

// And returns the intersection of f and ids.
func (f Filter) And(ids IDSet) Filter {
	if !f.constrained {
		return Filter{ids: maps.Clone(ids), constrained: true}
	}
	out := make(IDSet, min(len(f.ids), len(ids)))
	small, large := f.ids, ids
	if len(large) < len(small) {
		small, large = large, small
	}
	for id := range small {
		if large.Contains(id) {
			out[id] = struct{}{}
		}
	}
	return Filter{ids: out, constrained: true}
}

// Constrained reports whether And was called at least once.
func (f Filter) Constrained() bool {
	return f.constrained
}

// Empty reports whether f is constrained and matched nothing.
func (f Filter) Empty() bool {
	return f.constrained && len(f.ids) == 0
}

// IDs returns the matched ids; ok is false for an unconstrained filter.
func (f Filter) IDs() (ids IDSet, ok bool) {
	return f.ids, f.constrained
}

// Resolve returns the matched ids, or all if f is unconstrained.
func (f Filter) Resolve(all IDSet) IDSet {
	if !f.constrained {
		return all
	}
	return f.ids
}
