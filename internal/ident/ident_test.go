package ident

import (
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_Format(t *testing.T) {
	id := UUIDv7Generator{}.Generate()

	require.Len(t, id, 36)
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestUUIDv7Generator_UniqueInTightLoop(t *testing.T) {
	const n = 10000
	gen := UUIDv7Generator{}

	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		seen[gen.Generate()] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestUUIDv7Generator_TimeOrdered(t *testing.T) {
	const n = 1000
	ids := make([]string, n)
	for i := range ids {
		ids[i] = NewID()
	}

	// Generated in sequence, so lexical order equals generation order.
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestUUIDv7Generator_Concurrent(t *testing.T) {
	const workers, perWorker = 8, 2000

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, perWorker)
			for i := range local {
				local[i] = NewID()
			}
			mu.Lock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("p1", "a1")

	assert.Equal(t, "p1", gen.Generate())
	assert.Equal(t, "a1", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}
