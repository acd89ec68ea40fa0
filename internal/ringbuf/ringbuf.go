// Package ringbuf implements a growable double ended queue.
package ringbuf

type RingBuf[T any] struct {
	buf        []T
	head, tail int
}

// New returns a RingBuf with room for n elements before it has to grow.
func New[T any](n int) RingBuf[T] {
	return RingBuf[T]{buf: make([]T, max(n, 1))}
}

func (rb *RingBuf[T]) MaxLen() int {
	return len(rb.buf)
}

func (rb *RingBuf[T]) Len() int {
	return rb.tail - rb.head
}

func (rb *RingBuf[T]) PushBack(val T) {
	rb.reserve(1)
	rb.buf[rb.index(rb.Len())] = val
	rb.tail++
}

// Extend appends vals in order.
func (rb *RingBuf[T]) Extend(vals ...T) {
	rb.reserve(len(vals))
	for _, val := range vals {
		rb.buf[rb.index(rb.Len())] = val
		rb.tail++
	}
}

func (rb *RingBuf[T]) PushFront(val T) {
	rb.reserve(1)
	rb.head--
	rb.buf[rb.index(0)] = val
}

func (rb *RingBuf[T]) PopFront() T {
	val := rb.At(0)
	var zero T
	rb.buf[rb.index(0)] = zero
	rb.head++
	return val
}

func (rb *RingBuf[T]) PopBack() T {
	val := rb.At(rb.Len() - 1)
	var zero T
	rb.buf[rb.index(rb.Len()-1)] = zero
	rb.tail--
	return val
}

func (rb *RingBuf[T]) At(i int) T {
	if i < 0 || i >= rb.Len() {
		panic(i)
	}
	return rb.buf[rb.index(i)]
}

// Clear removes all elements, keeping the allocated space.
func (rb *RingBuf[T]) Clear() {
	clear(rb.buf)
	rb.head, rb.tail = 0, 0
}

func (rb *RingBuf[T]) index(i int) int {
	n := len(rb.buf)
	return ((rb.head+i)%n + n) % n
}

func (rb *RingBuf[T]) reserve(extra int) {
	l := rb.Len()
	if l+extra <= len(rb.buf) {
		return
	}
	size := max(len(rb.buf), 1)
	for size < l+extra {
		size *= 2
	}
	buf := make([]T, size)
	for i := 0; i < l; i++ {
		buf[i] = rb.buf[rb.index(i)]
	}
	rb.buf = buf
	rb.head, rb.tail = 0, l
}
