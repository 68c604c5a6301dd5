package storage

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(value string) *CacheRecord {
	return &CacheRecord{Data: TranslationSet{"k": value}}
}

func TestNewMemoryCache_InvalidCapacity(t *testing.T) {
	_, err := NewMemoryCache(0)
	require.Error(t, err)

	_, err = NewMemoryCache(-3)
	require.Error(t, err)
}

func TestMemoryCache_GetPut(t *testing.T) {
	mc, err := NewMemoryCache(2)
	require.NoError(t, err)

	_, ok := mc.Get("de")
	assert.False(t, ok)

	mc.Put("de", record("hallo"))
	rec, ok := mc.Get("de")
	require.True(t, ok)
	assert.Equal(t, "hallo", rec.Data["k"])

	mc.Put("de", record("servus"))
	rec, _ = mc.Get("de")
	assert.Equal(t, "servus", rec.Data["k"])
	assert.Equal(t, 1, mc.Len())
}

func TestMemoryCache_PutNilIgnored(t *testing.T) {
	mc, err := NewMemoryCache(1)
	require.NoError(t, err)

	mc.Put("de", nil)
	assert.False(t, mc.Contains("de"))
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mc, err := NewMemoryCache(3)
	require.NoError(t, err)

	mc.Put("a", record("1"))
	mc.Put("b", record("2"))
	mc.Put("c", record("3"))

	// Touch a so b becomes the oldest.
	_, ok := mc.Get("a")
	require.True(t, ok)

	mc.Put("d", record("4"))

	assert.True(t, mc.Contains("a"))
	assert.False(t, mc.Contains("b"), "b should have been evicted")
	assert.True(t, mc.Contains("c"))
	assert.True(t, mc.Contains("d"))

	// Overwriting counts as a use too.
	mc.Put("c", record("33"))
	mc.Put("e", record("5"))
	assert.False(t, mc.Contains("a"), "a should have been evicted")
	assert.Equal(t, []string{"d", "c", "e"}, mc.Keys())
}

func TestMemoryCache_ContainsDoesNotTouchRecency(t *testing.T) {
	mc, err := NewMemoryCache(2)
	require.NoError(t, err)

	mc.Put("a", record("1"))
	mc.Put("b", record("2"))
	require.True(t, mc.Contains("a"))
	mc.Put("c", record("3"))

	assert.False(t, mc.Contains("a"))
}

func TestMemoryCache_PeekDoesNotTouchRecency(t *testing.T) {
	mc, err := NewMemoryCache(2)
	require.NoError(t, err)

	mc.Put("a", record("1"))
	mc.Put("b", record("2"))
	rec, ok := mc.Peek("a")
	require.True(t, ok)
	assert.Equal(t, "1", rec.Data["k"])
	mc.Put("c", record("3"))

	_, ok = mc.Peek("a")
	assert.False(t, ok)
}

// Replays random get/put sequences against a reference model of recency.
func TestMemoryCache_EvictionMatchesModel(t *testing.T) {
	const capacity = 4
	rnd := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		mc, err := NewMemoryCache(capacity)
		require.NoError(t, err)
		var order []string // least recent first

		touch := func(key string) {
			for i, k := range order {
				if k == key {
					order = append(order[:i], order[i+1:]...)
					break
				}
			}
			order = append(order, key)
		}

		for step := 0; step < 200; step++ {
			key := fmt.Sprintf("l%d", rnd.Intn(8))
			if rnd.Intn(2) == 0 {
				_, ok := mc.Get(key)
				inModel := false
				for _, k := range order {
					if k == key {
						inModel = true
					}
				}
				require.Equal(t, inModel, ok)
				if ok {
					touch(key)
				}
				continue
			}
			mc.Put(key, record(key))
			touch(key)
			if len(order) > capacity {
				evicted := order[0]
				order = order[1:]
				require.False(t, mc.Contains(evicted), "expected %s evicted", evicted)
			}
			require.LessOrEqual(t, mc.Len(), capacity)
		}
		require.Equal(t, order, mc.Keys())
	}
}

func TestMemoryCache_OnEvict(t *testing.T) {
	mc, err := NewMemoryCache(2)
	require.NoError(t, err)

	var evicted []string
	mc.OnEvict(func(locale string) { evicted = append(evicted, locale) })

	mc.Put("a", record("1"))
	mc.Put("b", record("2"))
	mc.Put("a", record("3"))
	assert.Empty(t, evicted, "replacing a resident locale is not an eviction")

	mc.Put("c", record("4"))
	assert.Equal(t, []string{"b"}, evicted)

	mc.Purge()
	assert.ElementsMatch(t, []string{"b", "a", "c"}, evicted)
}

func TestMemoryCache_Purge(t *testing.T) {
	mc, err := NewMemoryCache(2)
	require.NoError(t, err)

	mc.Put("a", record("1"))
	mc.Purge()
	assert.Equal(t, 0, mc.Len())
	assert.Empty(t, mc.Keys())
}

func TestMemoryCache_Concurrent(t *testing.T) {
	mc, err := NewMemoryCache(5)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			mc.Put(fmt.Sprintf("l%d", i%10), record("v"))
		}(i)
		go func(i int) {
			defer wg.Done()
			mc.Get(fmt.Sprintf("l%d", i%10))
			mc.Keys()
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, mc.Len(), 5)
}
