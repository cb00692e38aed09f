// Package randset provides a set with amortized O(1) insertion, removal and
// uniform random draws. Members live in a dense slice; an index map locates
// them so removal can swap the last element into the freed slot.
package randset

import "math/rand/v2"

// Set is an unordered collection supporting constant-time uniform sampling.
// The zero value is not usable; create sets with New.
type Set[T comparable] struct {
	items []T
	index map[T]int
}

// New creates a set holding the given items. Duplicates are ignored.
func New[T comparable](items ...T) *Set[T] {
	s := &Set[T]{
		items: make([]T, 0, len(items)),
		index: make(map[T]int, len(items)),
	}
	for _, v := range items {
		s.Add(v)
	}
	return s
}

// Add inserts v. It reports false if v was already present.
func (s *Set[T]) Add(v T) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = len(s.items)
	s.items = append(s.items, v)
	return true
}

// Remove deletes v by swapping the last member into its slot.
// It reports false if v was not present.
func (s *Set[T]) Remove(v T) bool {
	i, ok := s.index[v]
	if !ok {
		return false
	}
	last := len(s.items) - 1
	moved := s.items[last]
	s.items[i] = moved
	s.index[moved] = i
	var zero T
	s.items[last] = zero
	s.items = s.items[:last]
	delete(s.index, v)
	return true
}

// Contains reports whether v is a member.
func (s *Set[T]) Contains(v T) bool {
	_, ok := s.index[v]
	return ok
}

// Len returns the number of members.
func (s *Set[T]) Len() int { return len(s.items) }

// At returns the member stored in dense slot i.
func (s *Set[T]) At(i int) T { return s.items[i] }

// Items returns a copy of the members in dense order. The copy is safe to
// iterate while the set is being mutated.
func (s *Set[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Random returns a uniformly drawn member. ok is false for an empty set.
func (s *Set[T]) Random(r *rand.Rand) (v T, ok bool) {
	if len(s.items) == 0 {
		return v, false
	}
	return s.items[r.IntN(len(s.items))], true
}

// RandomPair draws two distinct members uniformly without replacement.
// ok is false when the set holds fewer than two members.
func (s *Set[T]) RandomPair(r *rand.Rand) (a, b T, ok bool) {
	n := len(s.items)
	if n < 2 {
		return a, b, false
	}
	i := r.IntN(n)
	j := r.IntN(n - 1)
	if j >= i {
		j++
	}
	return s.items[i], s.items[j], true
}

// RandomExcept draws a member uniformly among all members other than v.
// ok is false when no such member exists.
func (s *Set[T]) RandomExcept(r *rand.Rand, v T) (out T, ok bool) {
	i, present := s.index[v]
	if !present {
		return s.Random(r)
	}
	n := len(s.items)
	if n < 2 {
		return out, false
	}
	j := r.IntN(n - 1)
	if j >= i {
		j++
	}
	return s.items[j], true
}

// Pairs shuffles a copy of the members and groups them into consecutive
// disjoint pairs. With an odd member count the last shuffled member is left
// out.
func (s *Set[T]) Pairs(r *rand.Rand) [][2]T {
	shuffled := s.Items()
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	pairs := make([][2]T, 0, len(shuffled)/2)
	for i := 0; i+1 < len(shuffled); i += 2 {
		pairs = append(pairs, [2]T{shuffled[i], shuffled[i+1]})
	}
	return pairs
}
