package checkpoint

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocksSerializeSameID(t *testing.T) {
	locks := NewLocks()

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("thread_1")
			defer unlock()

			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, 0, locks.Len(), "entries are released when unused")
}

func TestLocksIndependentIDs(t *testing.T) {
	locks := NewLocks()

	unlockA := locks.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := locks.Lock("b")
		unlock()
		close(done)
	}()
	<-done
	unlockA()
	unlockA() // idempotent
	assert.Equal(t, 0, locks.Len())
}
