package repository

import (
	"context"
	"sync"
	"time"

	"messbook/internal/models"
)

type memoryEntry struct {
	entry
	expiresAt time.Time
}

// MemoryLedger keeps the last notified status per record in process memory.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (r *MemoryLedger) load(recordID string, now time.Time) (memoryEntry, bool) {
	e, ok := r.entries[recordID]
	if ok && r.ttl > 0 && now.After(e.expiresAt) {
		delete(r.entries, recordID)
		return memoryEntry{}, false
	}
	return e, ok
}

func (r *MemoryLedger) Advance(_ context.Context, recordID string, status models.Status, terminal bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	prev, had := r.load(recordID, now)
	if !accept(prev.entry, had, status) {
		return false, nil
	}
	r.entries[recordID] = memoryEntry{
		entry:     entry{status: status, terminal: terminal},
		expiresAt: now.Add(r.ttl),
	}
	return true, nil
}

func (r *MemoryLedger) LastSeen(_ context.Context, recordID string) (models.Status, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.load(recordID, r.now())
	if !ok {
		return "", false, nil
	}
	return e.status, true, nil
}

func (r *MemoryLedger) Forget(_ context.Context, recordID string) error {
	r.mu.Lock()
	delete(r.entries, recordID)
	r.mu.Unlock()
	return nil
}

// Len returns the number of tracked records, expired ones included.
func (r *MemoryLedger) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
