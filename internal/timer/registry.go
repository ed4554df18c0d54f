package timer

import "sync"

// registry is an ordered list of callbacks with per-registration removal.
// The same value may be registered more than once.
type registry[T any] struct {
	mu    sync.Mutex
	seq   uint64
	items []entry[T]
}

type entry[T any] struct {
	id uint64
	v  T
}

func (r *registry[T]) add(v T) (remove func()) {
	r.mu.Lock()
	r.seq++
	id := r.seq
	r.items = append(r.items, entry[T]{id: id, v: v})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, e := range r.items {
				if e.id == id {
					// Copy so snapshots handed out earlier stay intact.
					r.items = append(r.items[:i:i], r.items[i+1:]...)
					return
				}
			}
		})
	}
}

func (r *registry[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.items))
	for i, e := range r.items {
		out[i] = e.v
	}
	return out
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
