// Package store holds the published acquisition state as observable values.
package store

import (
	"slices"
	"sync"
)

// Source is anything whose changes can be observed without knowing its type.
type Source interface {
	OnChange(fn func()) (cancel func())
}

// Signal is an observable value. Set notifies subscribers synchronously, in the
// order they subscribed. Values are treated as immutable: callers replace slices
// and maps, they never mutate them in place.
type Signal[T any] struct {
	mu    sync.RWMutex
	value T
	equal func(a, b T) bool
	subs  map[uint64]func(T)
	next  uint64
}

// NewSignal returns a signal that notifies on every write.
func NewSignal[T any](initial T) *Signal[T] {
	return &Signal[T]{value: initial, subs: make(map[uint64]func(T))}
}

// NewComparableSignal returns a signal that skips writes equal to the current value.
func NewComparableSignal[T comparable](initial T) *Signal[T] {
	s := NewSignal(initial)
	s.equal = func(a, b T) bool { return a == b }
	return s
}

func (s *Signal[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *Signal[T]) Set(v T) {
	s.Update(func(T) T { return v })
}

// Update replaces the value with fn(current) atomically with respect to other writers.
func (s *Signal[T]) Update(fn func(T) T) {
	s.mu.Lock()
	next := fn(s.value)
	if s.equal != nil && s.equal(s.value, next) {
		s.mu.Unlock()
		return
	}
	s.value = next
	subs := s.snapshotSubsLocked()
	s.mu.Unlock()

	for _, sub := range subs {
		sub(next)
	}
}

// Subscribe registers fn for future changes and returns a function that removes it.
func (s *Signal[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Signal[T]) OnChange(fn func()) (cancel func()) {
	return s.Subscribe(func(T) { fn() })
}

func (s *Signal[T]) snapshotSubsLocked() []func(T) {
	if len(s.subs) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(T), len(ids))
	for i, id := range ids {
		out[i] = s.subs[id]
	}
	return out
}
