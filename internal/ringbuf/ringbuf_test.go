package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFIFO(t *testing.T) {
	t.Parallel()
	rb := New[int](2)
	for i := 0; i < 10; i++ {
		rb.PushBack(i)
	}
	require.Equal(t, 10, rb.Len())
	require.GreaterOrEqual(t, rb.MaxLen(), 10)
	for i := 0; i < 10; i++ {
		require.Equal(t, i, rb.PopFront())
	}
	require.Equal(t, 0, rb.Len())
}

func TestWrapAround(t *testing.T) {
	t.Parallel()
	rb := New[int](4)
	rb.Extend(1, 2, 3)
	require.Equal(t, 1, rb.PopFront())
	require.Equal(t, 2, rb.PopFront())
	rb.Extend(4, 5, 6)
	rb.PushFront(2)
	var out []int
	for rb.Len() > 0 {
		out = append(out, rb.PopFront())
	}
	require.Equal(t, []int{2, 3, 4, 5, 6}, out)
}

func TestPushFrontEmpty(t *testing.T) {
	t.Parallel()
	rb := New[string](1)
	rb.PushFront("b")
	rb.PushFront("a")
	rb.PushBack("c")
	require.Equal(t, "a", rb.At(0))
	require.Equal(t, "c", rb.PopBack())
	require.Equal(t, 2, rb.Len())
	rb.Clear()
	require.Equal(t, 0, rb.Len())
	require.Panics(t, func() { rb.At(0) })
}
