package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrag/internal/domain"
)

func results(indices ...int) []domain.ScoredRecord {
	out := make([]domain.ScoredRecord, len(indices))
	for i, idx := range indices {
		out[i] = domain.ScoredRecord{Index: idx}
	}
	return out
}

func TestKey_RoleOrderInsensitive(t *testing.T) {
	assert.Equal(t, Key("q", []string{"hr", "eng"}, 5), Key("q", []string{"eng", "hr"}, 5))
	assert.Equal(t, Key("q", nil, 5), Key("q", []string{"all"}, 5))
	assert.NotEqual(t, Key("q", []string{"hr"}, 5), Key("q", []string{"eng"}, 5))
	assert.NotEqual(t, Key("q", nil, 5), Key("q", nil, 6))
}

func TestQueryCache_PutGet(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	key := Key("vacation", nil, 3)

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, c.Generation(), results(2, 0))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, results(2, 0), got)

	// callers get their own copy
	got[0].Index = 99
	again, _ := c.Get(key)
	assert.Equal(t, 2, again[0].Index)
}

func TestQueryCache_InvalidateDropsStaleGeneration(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	key := Key("q", nil, 1)

	gen := c.Generation()
	c.Put(key, gen, results(1))
	c.Invalidate()

	_, ok := c.Get(key)
	assert.False(t, ok)

	// a result computed before the invalidation is not stored
	c.Put(key, gen, results(1))
	_, ok = c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestQueryCache_TTL(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := Key("q", nil, 1)
	c.Put(key, c.Generation(), results(0))

	now = now.Add(2 * time.Minute)
	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestQueryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	a, b, d := Key("a", nil, 1), Key("b", nil, 1), Key("d", nil, 1)

	c.Put(a, 0, results(0))
	c.Put(b, 0, results(1))
	_, _ = c.Get(a)
	c.Put(d, 0, results(2))

	_, okA := c.Get(a)
	_, okB := c.Get(b)
	_, okD := c.Get(d)
	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okD)
}

func TestQueryCache_GetOrComputeCoalesces(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	key := Key("q", nil, 2)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() ([]domain.ScoredRecord, error) {
		calls.Add(1)
		<-release
		return results(3, 1), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, _, err := c.GetOrCompute(key, compute)
			assert.NoError(t, err)
			assert.Equal(t, results(3, 1), got)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(8))
	got, hit, err := c.GetOrCompute(key, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, results(3, 1), got)
}

func TestQueryCache_GetOrComputeError(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	key := Key("q", nil, 2)

	_, _, err := c.GetOrCompute(key, func() ([]domain.ScoredRecord, error) {
		return nil, errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, c.Size())
}
