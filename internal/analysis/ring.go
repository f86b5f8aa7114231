package analysis

// Ring is a fixed-capacity FIFO buffer. Pushing into a full ring overwrites the oldest entry.
// It allocates once at construction.
type Ring[T any] struct {
	items []T
	head  int // next write position
	count int
}

// NewRing creates a ring holding at most capacity items (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v, evicting the oldest entry when full.
func (r *Ring[T]) Push(v T) {
	r.items[r.head] = v
	r.head = (r.head + 1) % len(r.items)
	if r.count < len(r.items) {
		r.count++
	}
}

// Len returns the number of stored items.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.items) }

// Each calls fn for every stored item, oldest first.
func (r *Ring[T]) Each(fn func(T)) {
	// head points to the oldest entry once the ring is full
	start := 0
	if r.count == len(r.items) {
		start = r.head
	}
	for i := 0; i < r.count; i++ {
		fn(r.items[(start+i)%len(r.items)])
	}
}

// Values returns a copy of the stored items, oldest first.
func (r *Ring[T]) Values() []T {
	out := make([]T, 0, r.count)
	r.Each(func(v T) { out = append(out, v) })
	return out
}
