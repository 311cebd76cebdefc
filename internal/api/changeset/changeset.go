// Package changeset keeps the local current/removed bookkeeping of an edited
// collection so that a commit issues only the remote mutations it needs.
package changeset

import "slices"

// Entity is a record that may or may not exist remotely yet
type Entity interface {
	// Key is the stable identity used to match records across Add and Remove
	Key() string
	// IsCreated returns true when the record already exists remotely
	IsCreated() bool
}

// ChangeSet holds an ordered current list and the list of records that must be
// deleted remotely. Both lists are disjoint by key.
type ChangeSet[T Entity] struct {
	current []T
	removed []T
}

// New returns a change-set whose current list is seeded with items
func New[T Entity](items ...T) *ChangeSet[T] {
	cs := &ChangeSet[T]{}
	for _, item := range items {
		cs.Add(item)
	}
	return cs
}

// Add appends e to the current list. A pending removal of the same key is undone.
func (cs *ChangeSet[T]) Add(e T) {
	cs.Insert(len(cs.current), e)
}

// Insert places e at index i of the current list, clamped to the list bounds
func (cs *ChangeSet[T]) Insert(i int, e T) {
	key := e.Key()
	cs.removed = slices.DeleteFunc(cs.removed, func(r T) bool { return r.Key() == key })
	if cs.indexOf(key) >= 0 {
		return
	}
	i = max(0, min(i, len(cs.current)))
	cs.current = slices.Insert(cs.current, i, e)
}

// Remove takes e out of the current list. Records that exist remotely move to
// the removed list; the others are dropped.
func (cs *ChangeSet[T]) Remove(e T) bool {
	idx := cs.indexOf(e.Key())
	if idx < 0 {
		return false
	}
	item := cs.current[idx]
	cs.current = slices.Delete(cs.current, idx, idx+1)
	if item.IsCreated() {
		cs.removed = append(cs.removed, item)
	}
	return true
}

// MarkRemoved records a remote record as removed without it being current.
// Used when a session starts with removals already pending.
func (cs *ChangeSet[T]) MarkRemoved(e T) {
	if !e.IsCreated() {
		return
	}
	if idx := cs.indexOf(e.Key()); idx >= 0 {
		cs.current = slices.Delete(cs.current, idx, idx+1)
	}
	if !slices.ContainsFunc(cs.removed, func(r T) bool { return r.Key() == e.Key() }) {
		cs.removed = append(cs.removed, e)
	}
}

// Move relocates the current item at index from to index to
func (cs *ChangeSet[T]) Move(from, to int) bool {
	if from < 0 || from >= len(cs.current) || to < 0 || to >= len(cs.current) {
		return false
	}
	item := cs.current[from]
	cs.current = slices.Delete(cs.current, from, from+1)
	cs.current = slices.Insert(cs.current, to, item)
	return true
}

// Get returns the current item with the given key
func (cs *ChangeSet[T]) Get(key string) (T, bool) {
	if idx := cs.indexOf(key); idx >= 0 {
		return cs.current[idx], true
	}
	var zero T
	return zero, false
}

// At returns the current item at index i
func (cs *ChangeSet[T]) At(i int) T {
	return cs.current[i]
}

// IndexOf returns the position of key in the current list, or -1
func (cs *ChangeSet[T]) IndexOf(key string) int {
	return cs.indexOf(key)
}

// GetRemoved returns the pending removal with the given key
func (cs *ChangeSet[T]) GetRemoved(key string) (T, bool) {
	for _, r := range cs.removed {
		if r.Key() == key {
			return r, true
		}
	}
	var zero T
	return zero, false
}

// IsRemoved reports whether key is pending remote deletion
func (cs *ChangeSet[T]) IsRemoved(key string) bool {
	return slices.ContainsFunc(cs.removed, func(r T) bool { return r.Key() == key })
}

// Current returns a copy of the current list
func (cs *ChangeSet[T]) Current() []T {
	return slices.Clone(cs.current)
}

// Removed returns a copy of the removed list
func (cs *ChangeSet[T]) Removed() []T {
	return slices.Clone(cs.removed)
}

// Forget drops a pending removal once it has been applied remotely
func (cs *ChangeSet[T]) Forget(key string) {
	cs.removed = slices.DeleteFunc(cs.removed, func(r T) bool { return r.Key() == key })
}

// ClearRemoved forgets pending removals once they have been applied
func (cs *ChangeSet[T]) ClearRemoved() {
	cs.removed = nil
}

func (cs *ChangeSet[T]) Len() int {
	return len(cs.current)
}

func (cs *ChangeSet[T]) indexOf(key string) int {
	return slices.IndexFunc(cs.current, func(c T) bool { return c.Key() == key })
}
