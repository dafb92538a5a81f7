package queue

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopOrder(t *testing.T) {
	q := New[int](3)
	assert.Equal(t, 3, q.Cap())

	for i := 1; i <= 3; i++ {
		require.True(t, q.TryPush(i))
	}
	assert.False(t, q.TryPush(4), "push into a full queue must fail")
	assert.Equal(t, 3, q.Len())

	for want := 1; want <= 3; want++ {
		got, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := q.TryPop()
	assert.False(t, ok)
	assert.Zero(t, q.Len())
}

func TestMinimumCapacity(t *testing.T) {
	q := New[string](0)
	assert.Equal(t, 1, q.Cap())
	assert.True(t, q.TryPush("a"))
	assert.False(t, q.TryPush("b"))
}

func TestSingleProducerSingleConsumer(t *testing.T) {
	const n = 2000
	q := New[int](16)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; {
			if q.TryPush(i) {
				i++
				continue
			}
			runtime.Gosched()
		}
	}()

	got := make([]int, 0, n)
	for len(got) < n {
		if v, ok := q.TryPop(); ok {
			got = append(got, v)
			continue
		}
		runtime.Gosched()
	}
	wg.Wait()

	for i, v := range got {
		if v != i {
			t.Fatalf("item %d out of order: got %d", i, v)
		}
	}
}
