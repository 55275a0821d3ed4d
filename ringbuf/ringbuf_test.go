// ============================================================================
// SAMPLE RING CORRECTNESS VALIDATION SUITE
// ============================================================================
//
// Test categories:
//   - Constructor validation
//   - Fill, wraparound and overwrite-oldest semantics
//   - Iteration order and restartability
//   - Numeric summation

package ringbuf

import (
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// TEST UTILITIES AND HELPERS
// ============================================================================

func collect[T any](r *Ring[T]) []T {
	out := make([]T, 0, r.Len())
	for v := range r.All() {
		out = append(out, v)
	}
	return out
}

// ============================================================================
// CONSTRUCTOR VALIDATION
// ============================================================================

func TestNewPanicsOnInvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -1, -100} {
		t.Run(fmt.Sprintf("cap_%d", c), func(t *testing.T) {
			assert.Panics(t, func() { New[int](c) })
		})
	}
}

func TestNewIsEmpty(t *testing.T) {
	r := New[int32](8)
	assert.True(t, r.IsEmpty())
	assert.False(t, r.Full())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 8, r.Cap())
	assert.Empty(t, collect(r))
}

// ============================================================================
// PUSH SEMANTICS
// ============================================================================

func TestPushBelowCapacityKeepsInsertionOrder(t *testing.T) {
	r := New[int](5)
	r.Push(1)
	r.Push(2)
	r.Push(3)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{1, 2, 3}, collect(r))
	assert.Equal(t, 1, r.At(0))
	assert.Equal(t, 3, r.At(2))
}

func TestPushOverwritesOldest(t *testing.T) {
	r := New[int](3)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}

	assert.True(t, r.Full())
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{3, 4, 5}, collect(r))
	assert.Equal(t, 3, r.At(0))
}

func TestCapacityOne(t *testing.T) {
	r := New[string](1)
	r.Push("a")
	r.Push("b")
	assert.Equal(t, []string{"b"}, collect(r))
}

// TestHoldsMostRecentN pushes random-length sequences and checks the ring
// always holds exactly the newest min(pushes, N) values in order.
func TestHoldsMostRecentN(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(16)
		pushes := rng.Intn(64)

		r := New[int](n)
		var all []int
		for i := 0; i < pushes; i++ {
			v := rng.Int()
			all = append(all, v)
			r.Push(v)
			require.LessOrEqual(t, r.Len(), n)
		}

		want := all
		if len(want) > n {
			want = want[len(want)-n:]
		}
		if len(want) == 0 {
			assert.Empty(t, collect(r))
			continue
		}
		assert.Equal(t, want, collect(r), "n=%d pushes=%d", n, pushes)
	}
}

func TestAtOutOfRangePanics(t *testing.T) {
	r := New[int](4)
	r.Push(1)
	assert.Panics(t, func() { r.At(1) })
	assert.Panics(t, func() { r.At(-1) })
}

// ============================================================================
// ITERATION
// ============================================================================

func TestAllIsRestartable(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 6; i++ {
		r.Push(i)
	}
	first := collect(r)
	second := collect(r)
	assert.Equal(t, first, second)
	assert.Equal(t, []int{2, 3, 4, 5}, first)
}

func TestAllEarlyBreak(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 4; i++ {
		r.Push(i)
	}
	var seen []int
	for v := range r.All() {
		seen = append(seen, v)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []int{0, 1}, seen)
}

func TestCopyTo(t *testing.T) {
	r := New[int32](4)
	for i := int32(1); i <= 6; i++ {
		r.Push(i)
	}

	dst := make([]int32, 6)
	n := r.CopyTo(dst)
	assert.Equal(t, 4, n)
	assert.Equal(t, []int32{3, 4, 5, 6, 0, 0}, dst)

	short := make([]int32, 2)
	assert.Equal(t, 2, r.CopyTo(short))
	assert.Equal(t, []int32{3, 4}, short)
}

func TestReset(t *testing.T) {
	r := New[int](3)
	r.Push(7)
	r.Push(8)
	r.Reset()
	assert.True(t, r.IsEmpty())
	r.Push(9)
	assert.Equal(t, []int{9}, collect(r))
}

// ============================================================================
// SUMMATION
// ============================================================================

func TestSum(t *testing.T) {
	r := New[int32](3)
	assert.Equal(t, int32(0), Sum(r))

	r.Push(10)
	r.Push(-4)
	assert.Equal(t, int32(6), Sum(r))

	r.Push(5)
	r.Push(100) // evicts 10
	assert.Equal(t, int32(101), Sum(r))
}

func TestSumFloat(t *testing.T) {
	r := New[float64](2)
	r.Push(0.5)
	r.Push(1.25)
	assert.InDelta(t, 1.75, Sum(r), 1e-12)
}

func TestAllMatchesSlicesCollect(t *testing.T) {
	r := New[int](5)
	for i := 0; i < 12; i++ {
		r.Push(i * i)
	}
	assert.Equal(t, collect(r), slices.Collect(r.All()))
}

// ============================================================================
// BENCHMARKS
// ============================================================================

func BenchmarkPush(b *testing.B) {
	r := New[int32](100)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r.Push(int32(i))
	}
}
