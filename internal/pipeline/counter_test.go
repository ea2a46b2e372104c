package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntryCounter_SequentialIDs(t *testing.T) {
	counter := NewEntryCounter(0)

	assert.Equal(t, "index1", counter.Next())
	assert.Equal(t, "index2", counter.Next())
	assert.Equal(t, "index3", counter.Next())
	assert.Equal(t, int64(3), counter.Last())
}

func TestEntryCounter_ContinuesFromStart(t *testing.T) {
	counter := NewEntryCounter(41)

	assert.Equal(t, "index42", counter.Next())
	assert.Equal(t, int64(42), counter.Last())
}

func TestEntryCounter_ConcurrentIDsAreUnique(t *testing.T) {
	counter := NewEntryCounter(0)

	const workers = 8
	const perWorker = 50

	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := counter.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, int64(workers*perWorker), counter.Last())
}

func TestEntryID(t *testing.T) {
	assert.Equal(t, "index1", EntryID(1))
	assert.Equal(t, "index120", EntryID(120))
}
