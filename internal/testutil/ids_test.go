package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDGenerator(t *testing.T) {
	gen := NewSequentialIDGenerator("human")
	assert.Equal(t, "human-1", gen.Generate())
	assert.Equal(t, "human-2", gen.Generate())

	assert.Equal(t, "doc-1", NewSequentialIDGenerator("").Generate())
}

func TestSequentialIDGenerator_Concurrent(t *testing.T) {
	gen := NewSequentialIDGenerator("x")
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

func TestFixtures(t *testing.T) {
	s := CompileHuman(t)
	assert.Equal(t, "passportId", s.PrimaryKey)
	assert.NotNil(t, OpenStore(t))
}
