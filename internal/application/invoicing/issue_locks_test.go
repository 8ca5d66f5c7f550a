package invoicing

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIssueKey(t *testing.T) {
	tenantID := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	assert.Equal(t, "11111111-2222-3333-4444-555555555555/A/2025", issueKey(tenantID, "A", 2025))
}

func TestIssueLocks_MutualExclusion(t *testing.T) {
	locks := newIssueLocks()
	key := issueKey(uuid.New(), "A", 2025)

	const n = 50
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(key)
			defer unlock()
			// unsynchronized increment, the lock is the only guard
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, n, counter)
}

func TestIssueLocks_IndependentKeys(t *testing.T) {
	locks := newIssueLocks()

	unlockA := locks.Lock("a")

	acquired := make(chan struct{})
	go func() {
		unlockB := locks.Lock("b")
		close(acquired)
		unlockB()
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock for an unrelated key blocked")
	}

	unlockA()
}

func TestIssueLocks_EntriesReleased(t *testing.T) {
	locks := newIssueLocks()

	unlock1 := locks.Lock("k")

	done := make(chan struct{})
	go func() {
		unlock2 := locks.Lock("k")
		unlock2()
		close(done)
	}()

	// the waiter is registered before we release
	assert.Eventually(t, func() bool {
		locks.mu.Lock()
		defer locks.mu.Unlock()
		return locks.entries["k"] != nil && locks.entries["k"].refs == 2
	}, time.Second, time.Millisecond)

	unlock1()
	<-done

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.entries)
}
