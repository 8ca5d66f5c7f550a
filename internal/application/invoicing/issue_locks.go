package invoicing

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// issueLocks is an arena of lightweight per-(tenant, series, year) locks.
// Sequential numbering inherently serializes issuance within one key, but
// different tenants and series must never block each other, so a single
// global lock is not acceptable. Entries are reference-counted and removed
// when the last holder releases, keeping the arena bounded by the number of
// keys currently issuing.
type issueLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newIssueLocks() *issueLocks {
	return &issueLocks{
		entries: make(map[string]*lockEntry),
	}
}

// issueKey builds the serialization key for one numbering stream
func issueKey(tenantID uuid.UUID, series string, year int) string {
	return fmt.Sprintf("%s/%s/%d", tenantID, series, year)
}

// Lock acquires the lock for the given key and returns its release func
func (l *issueLocks) Lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}
