package datastructures

import "golang.org/x/exp/slices"

// An unbounded ordered list where every item appears at most once.
//
// Items are compared with ==, so pointer types give identity semantics.
type OrderedList[T comparable] struct {
	items []T
}

// Create a new ordered list with room for capacity items.
func NewOrderedList[T comparable](capacity int) OrderedList[T] {
	return OrderedList[T]{
		items: make([]T, 0, capacity),
	}
}

func (l *OrderedList[T]) Len() int {
	return len(l.items)
}

func (l *OrderedList[T]) IsEmpty() bool {
	return len(l.items) == 0
}

func (l *OrderedList[T]) First() (val T, ok bool) {
	if len(l.items) == 0 {
		ok = false
		return
	}

	val = l.items[0]
	ok = true
	return
}

func (l *OrderedList[T]) Index(item T) int {
	return slices.Index(l.items, item)
}

func (l *OrderedList[T]) Contains(item T) bool {
	return slices.Contains(l.items, item)
}

// Insert the items at index, skipping the ones already present (and repeats
// within items).
//
// Returns the inserted items in order, or ok=false if index is not within
// [0, Len()]. The list is untouched when ok is false.
func (l *OrderedList[T]) Insert(index int, items ...T) (inserted []T, ok bool) {
	if index < 0 || index > len(l.items) {
		return nil, false
	}

	inserted = make([]T, 0, len(items))
	for _, item := range items {
		if l.Contains(item) || slices.Contains(inserted, item) {
			continue
		}
		inserted = append(inserted, item)
	}

	l.items = slices.Insert(l.items, index, inserted...)
	return inserted, true
}

// Append the items at the end of the list. See Insert.
func (l *OrderedList[T]) Append(items ...T) []T {
	inserted, _ := l.Insert(len(l.items), items...)
	return inserted
}

// Remove the item, returning the index it was at or -1 if it was not present.
func (l *OrderedList[T]) Remove(item T) int {
	i := l.Index(item)
	if i < 0 {
		return -1
	}

	var zero T
	copy(l.items[i:], l.items[i+1:])
	l.items[len(l.items)-1] = zero // avoid memory leak
	l.items = l.items[:len(l.items)-1]
	return i
}

// Remove every item, returning them in order.
func (l *OrderedList[T]) Clear() []T {
	removed := l.items
	l.items = make([]T, 0, cap(removed))
	return removed
}

// Returns a copy of the items in order.
func (l *OrderedList[T]) Items() []T {
	return slices.Clone(l.items)
}
