package hal

// Ring is a fixed-length buffer written by a single handler. The write
// position wraps to zero when it reaches the end.
type Ring[T any] struct {
	buf   []T
	pos   int
	wraps int
}

func NewRing[T any](length int) *Ring[T] {
	if length <= 0 {
		length = 1
	}
	return &Ring[T]{buf: make([]T, length)}
}

// Put stores v at the current position and reports whether the position
// wrapped back to zero.
func (r *Ring[T]) Put(v T) bool {
	r.buf[r.pos] = v
	r.pos++
	if r.pos == len(r.buf) {
		r.pos = 0
		r.wraps++
		return true
	}
	return false
}

// Pos is the index the next Put writes to.
func (r *Ring[T]) Pos() int {
	return r.pos
}

func (r *Ring[T]) Len() int {
	return len(r.buf)
}

// Wraps counts how many times the buffer has been filled.
func (r *Ring[T]) Wraps() int {
	return r.wraps
}

// Snapshot copies the buffer in index order.
func (r *Ring[T]) Snapshot() []T {
	ret := make([]T, len(r.buf))
	copy(ret, r.buf)
	return ret
}

// Reset zeroes the buffer and rewinds the position.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.pos = 0
	r.wraps = 0
}
