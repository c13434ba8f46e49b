package backend

import (
	"sync"

	"github.com/google/uuid"
)

// Feed fans events out to subscribers. Callbacks run synchronously on the
// publishing goroutine and must not block.
type Feed[T any] struct {
	mu   sync.RWMutex
	subs map[string]func(T)
}

// NewFeed creates an empty feed
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[string]func(T))}
}

// Subscribe registers fn until the returned function is called.
// Calling the unsubscribe function more than once is harmless.
func (f *Feed[T]) Subscribe(fn func(T)) func() {
	id := uuid.NewString()

	f.mu.Lock()
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Publish delivers ev to every current subscriber
func (f *Feed[T]) Publish(ev T) {
	f.mu.RLock()
	fns := make([]func(T), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Len returns the number of subscribers
func (f *Feed[T]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
