package realtime

import (
	"sync"

	"messbook/internal/models"
)

// Tracker remembers the status of every record in the previous snapshot
// of one subscription.
type Tracker struct {
	mu     sync.Mutex
	seen   map[string]models.Status
	primed bool
}

func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]models.Status)}
}

// NewlyPending returns the pending records that were absent from, or had a
// different status in, the previous snapshot. The first snapshot only
// primes the tracker and yields nothing.
func (t *Tracker) NewlyPending(records []*models.Record) []*models.Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := make(map[string]models.Status, len(records))
	var out []*models.Record
	for _, r := range records {
		next[r.ID] = r.Status
		if !t.primed || r.Status != models.StatusPending {
			continue
		}
		if prev, ok := t.seen[r.ID]; !ok || prev != models.StatusPending {
			out = append(out, r)
		}
	}

	t.seen = next
	t.primed = true
	return out
}

// Reset forgets everything; the next snapshot is treated as a cold start.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.seen = make(map[string]models.Status)
	t.primed = false
	t.mu.Unlock()
}
