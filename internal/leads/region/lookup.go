package region

import (
	"context"
	"sync"

	"leadflow_backend/internal/leads/domain"
)

type memoEntry struct {
	rec   domain.AreaCodeRecord
	found bool
}

// BatchLookup memoizes area code results, misses included, for the lifetime
// of one normalization batch. Errors are not cached.
type BatchLookup struct {
	next Lookup

	mu    sync.Mutex
	cache map[int]memoEntry
}

// NewBatchLookup wraps next with a per-batch memo.
func NewBatchLookup(next Lookup) *BatchLookup {
	return &BatchLookup{next: next, cache: make(map[int]memoEntry)}
}

// LookupAreaCode implements Lookup.
func (b *BatchLookup) LookupAreaCode(ctx context.Context, areaCode int) (domain.AreaCodeRecord, bool, error) {
	b.mu.Lock()
	entry, ok := b.cache[areaCode]
	b.mu.Unlock()
	if ok {
		return entry.rec, entry.found, nil
	}

	rec, found, err := b.next.LookupAreaCode(ctx, areaCode)
	if err != nil {
		return domain.AreaCodeRecord{}, false, err
	}

	b.mu.Lock()
	b.cache[areaCode] = memoEntry{rec: rec, found: found}
	b.mu.Unlock()
	return rec, found, nil
}
