package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, ch <-chan []string) []string {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok)
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
	return nil
}

func TestCacheStartsEmpty(t *testing.T) {
	c := New[string]()
	assert.Equal(t, 0, c.Count())
	assert.Empty(t, c.FirstN(3).Current())
}

func TestCacheAppendPreservesOrder(t *testing.T) {
	c := New[string]()
	c.Append([]string{"a", "b"})
	c.Append([]string{"c"})

	assert.Equal(t, 3, c.Count())
	assert.Equal(t, []string{"a", "b", "c"}, c.Snapshot())
}

func TestCacheFirstNTruncates(t *testing.T) {
	c := New[string]()
	c.Append([]string{"a", "b", "c", "d"})

	assert.Equal(t, []string{"a", "b"}, c.FirstN(2).Current())
	assert.Equal(t, []string{"a", "b", "c", "d"}, c.FirstN(10).Current())
	assert.Empty(t, c.FirstN(-1).Current())
}

func TestCacheFirstNReemitsOnMutation(t *testing.T) {
	c := New[string]()
	c.Append([]string{"a"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := c.FirstN(2).Watch(ctx)
	assert.Equal(t, []string{"a"}, next(t, ch))

	c.Append([]string{"b", "c"})
	assert.Equal(t, []string{"a", "b"}, next(t, ch))

	c.Replace([]string{"z"})
	assert.Equal(t, []string{"z"}, next(t, ch))

	c.Clear()
	assert.Empty(t, next(t, ch))
}

func TestCacheNewWatcherSeesCurrentTruncation(t *testing.T) {
	c := New[string]()
	c.Append([]string{"a", "b", "c"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Equal(t, []string{"a", "b"}, next(t, c.FirstN(2).Watch(ctx)))
}

func TestCacheReplaceCopiesInput(t *testing.T) {
	c := New[string]()
	in := []string{"a", "b"}
	c.Replace(in)
	in[0] = "mutated"

	assert.Equal(t, []string{"a", "b"}, c.Snapshot())
}

func TestCacheViewsAreIsolatedFromLaterAppends(t *testing.T) {
	c := New[string]()
	c.Append([]string{"a", "b"})
	got := c.FirstN(2).Current()
	c.Append([]string{"c"})
	got[0] = "changed"

	assert.Equal(t, []string{"a", "b", "c"}, c.Snapshot())
}

func TestCacheConcurrentAppends(t *testing.T) {
	c := New[int]()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Append([]int{i})
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, c.Count())
	assert.ElementsMatch(t, func() []int {
		out := make([]int, 50)
		for i := range out {
			out[i] = i
		}
		return out
	}(), c.Snapshot())
}
