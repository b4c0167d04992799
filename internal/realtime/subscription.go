package realtime

import (
	"sync"

	"messbook/internal/models"
)

// Snapshot is the full matching record set at one point in time, newest first.
type Snapshot struct {
	Kind    models.Kind
	Seq     uint64
	Cold    bool
	Records []*models.Record
}

// Subscription is one live view. Updates holds at most one pending snapshot;
// a newer snapshot replaces an unread older one.
type Subscription struct {
	id     uint64
	hub    *Hub
	actor  models.Actor
	kind   models.Kind
	filter models.RecordFilter

	mu      sync.Mutex
	closed  bool
	seq     uint64
	updates chan Snapshot
	done    chan struct{}
	once    sync.Once
}

func newSubscription(h *Hub, id uint64, actor models.Actor, kind models.Kind, filter models.RecordFilter) *Subscription {
	return &Subscription{
		id:      id,
		hub:     h,
		actor:   actor,
		kind:    kind,
		filter:  filter,
		updates: make(chan Snapshot, 1),
		done:    make(chan struct{}),
	}
}

// Updates is closed after Unsubscribe.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.updates
}

// Done is closed after Unsubscribe.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Actor() models.Actor {
	return s.actor
}

func (s *Subscription) Kind() models.Kind {
	return s.kind
}

// Unsubscribe ends the subscription. Safe to call any number of times.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.id)
		s.mu.Lock()
		s.closed = true
		close(s.updates)
		close(s.done)
		s.mu.Unlock()
	})
}

// deliverLocked replaces any unread snapshot with records. Caller holds s.mu.
func (s *Subscription) deliverLocked(records []*models.Record) {
	if s.closed {
		return
	}
	s.seq++
	snap := Snapshot{Kind: s.kind, Seq: s.seq, Cold: s.seq == 1, Records: records}

	select {
	case <-s.updates:
	default:
	}
	s.updates <- snap
}
