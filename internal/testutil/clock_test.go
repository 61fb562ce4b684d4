package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_Advances(t *testing.T) {
	clock := NewDeterministicClock(Epoch, time.Second)

	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), clock.Current())
}

func TestFrozenClock(t *testing.T) {
	clock := FrozenClock(Epoch)
	for i := 0; i < 3; i++ {
		assert.Equal(t, Epoch, clock.Now())
	}
}

func TestDeterministicClock_Set(t *testing.T) {
	clock := FrozenClock(Epoch)
	later := Epoch.AddDate(0, 0, 1)
	clock.Set(later)
	assert.Equal(t, later, clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock(Epoch, time.Millisecond)
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	seen := make(chan time.Time, numGoroutines*callsPerGoroutine)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				seen <- clock.Now()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[time.Time]bool)
	for ts := range seen {
		require.False(t, unique[ts], "duplicate time %v", ts)
		unique[ts] = true
	}
	assert.Len(t, unique, numGoroutines*callsPerGoroutine)
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("p")
	assert.Equal(t, "p-0001", g.Generate())
	assert.Equal(t, "p-0002", g.Generate())

	g.Reset()
	assert.Equal(t, "p-0001", g.Generate())
}

func TestSequenceGenerator_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "id-0001", NewSequenceGenerator("").Generate())
}
