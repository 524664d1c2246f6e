// Package observer provides an ordered, synchronous observer list.
package observer

import (
	"sort"
	"sync"
)

// Handle identifies a subscription.
type Handle uint64

// Subject fans a value out to its subscribers. Notify calls every current
// subscriber synchronously, in subscription order, on the caller's
// goroutine. A subscriber added or removed during Notify takes effect from
// the next Notify.
type Subject[T any] struct {
	mu   sync.Mutex
	next Handle
	subs map[Handle]func(T)
}

func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{subs: make(map[Handle]func(T))}
}

func (s *Subject[T]) Subscribe(fn func(T)) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[Handle]func(T))
	}
	s.next++
	s.subs[s.next] = fn
	return s.next
}

// Unsubscribe removes h. Unknown handles are ignored.
func (s *Subject[T]) Unsubscribe(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, h)
}

func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Subject[T]) Notify(v T) {
	for _, fn := range s.snapshot() {
		fn(v)
	}
}

func (s *Subject[T]) snapshot() []func(T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles := make([]Handle, 0, len(s.subs))
	for h := range s.subs {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })

	fns := make([]func(T), 0, len(handles))
	for _, h := range handles {
		fns = append(fns, s.subs[h])
	}
	return fns
}
