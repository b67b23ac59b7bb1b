package raceguard

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTryEnterOnce(t *testing.T) {
	g := New()
	id := uuid.New()

	assert.False(t, g.Entered(id))
	assert.True(t, g.TryEnter(id))
	assert.False(t, g.TryEnter(id))
	assert.False(t, g.TryEnter(id))
	assert.True(t, g.Entered(id))
}

func TestTryEnterIndependentIDs(t *testing.T) {
	g := New()
	a, b := uuid.New(), uuid.New()

	assert.True(t, g.TryEnter(a))
	assert.True(t, g.TryEnter(b))
	assert.False(t, g.TryEnter(a))
}

func TestTryEnterConcurrent(t *testing.T) {
	g := New()
	id := uuid.New()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryEnter(id) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestForgetReleasesLatch(t *testing.T) {
	g := New()
	a, b := uuid.New(), uuid.New()

	g.TryEnter(a)
	g.TryEnter(b)
	assert.Equal(t, 2, g.Len())

	g.Forget(a)
	g.Forget(uuid.New())
	assert.Equal(t, 1, g.Len())
	assert.False(t, g.Entered(a))
	assert.True(t, g.Entered(b))
}
