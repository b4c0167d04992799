// Package realtime keeps live record subscriptions up to date. Every store
// write marks its kind dirty; the hub then re-queries each affected
// subscription and hands it the full current snapshot.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"messbook/internal/domain"
	"messbook/internal/events"
	"messbook/internal/metrics"
	"messbook/internal/models"
	"messbook/internal/policy"

	"github.com/rs/zerolog"
)

// Hub owns all live subscriptions of one process.
type Hub struct {
	store  domain.RecordQuerier
	policy *policy.Policy
	logger *zerolog.Logger

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	dirty  map[models.Kind]bool
	wake   chan struct{}
}

func NewHub(store domain.RecordQuerier, pol *policy.Policy, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		store:  store,
		policy: pol,
		logger: logger,
		subs:   make(map[uint64]*Subscription),
		dirty:  make(map[models.Kind]bool),
		wake:   make(chan struct{}, 1),
	}
}

// Attach listens for store change events on bus.
func (h *Hub) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventRecordChanged, func(e *events.Event) error {
		var p events.RecordChangedPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		h.MarkDirty(p.Kind)
		return nil
	})
}

// MarkDirty schedules a refresh of every subscription on kind. It never blocks.
func (h *Hub) MarkDirty(kind models.Kind) {
	if !kind.Valid() {
		return
	}
	h.mu.Lock()
	h.dirty[kind] = true
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Subscribe opens a live subscription for actor on kind. The first snapshot
// is queued before Subscribe returns; it is the cold start. The
// subscription ends on Unsubscribe or when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, actor models.Actor, kind models.Kind) (*Subscription, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, kind)
	}

	h.mu.Lock()
	h.nextID++
	sub := newSubscription(h, h.nextID, actor, kind, h.policy.Scope(actor, kind))
	h.subs[sub.id] = sub
	h.mu.Unlock()
	metrics.SubscriptionOpened()

	if err := h.refresh(ctx, sub); err != nil {
		sub.Unsubscribe()
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.done:
		}
	}()

	h.logger.Debug().
		Uint64("subscription", sub.id).
		Str("kind", string(kind)).
		Str("role", string(actor.Role)).
		Msg("subscription opened")
	return sub, nil
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	_, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok {
		metrics.SubscriptionClosed()
	}
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Run delivers refreshed snapshots until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info().Msg("realtime hub started")
	defer h.logger.Info().Msg("realtime hub stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.wake:
			h.flush(ctx)
		}
	}
}

func (h *Hub) flush(ctx context.Context) {
	h.mu.Lock()
	dirty := h.dirty
	h.dirty = make(map[models.Kind]bool)
	var targets []*Subscription
	for _, s := range h.subs {
		if dirty[s.kind] {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		if err := h.refresh(ctx, s); err != nil {
			h.logger.Warn().Err(err).
				Uint64("subscription", s.id).
				Str("kind", string(s.kind)).
				Msg("snapshot refresh failed")
		}
	}
}

// refresh queries and delivers under the subscription's lock so that a
// later query is never overtaken by an earlier one.
func (h *Hub) refresh(ctx context.Context, s *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	records, err := h.store.QueryRecords(ctx, s.filter)
	if err != nil {
		return err
	}
	s.deliverLocked(records)
	return nil
}
