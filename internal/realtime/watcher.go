package realtime

import (
	"context"
	"sync"

	"messbook/internal/models"

	"github.com/rs/zerolog"
)

// PendingHandler receives newly pending records. It must not block.
type PendingHandler func(rec *models.Record)

// Watcher subscribes as the system operator to each kind and reports newly
// pending records, one Tracker per kind.
type Watcher struct {
	hub     *Hub
	kinds   []models.Kind
	handler PendingHandler
	logger  *zerolog.Logger
}

func NewWatcher(hub *Hub, handler PendingHandler, logger *zerolog.Logger, kinds ...models.Kind) *Watcher {
	if len(kinds) == 0 {
		kinds = models.AllKinds
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Watcher{hub: hub, kinds: kinds, handler: handler, logger: logger}
}

// Run blocks until ctx is done. It fails only if a subscription cannot be
// opened.
func (w *Watcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	subs := make([]*Subscription, 0, len(w.kinds))
	for _, kind := range w.kinds {
		sub, err := w.hub.Subscribe(ctx, models.SystemActor, kind)
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			tracker := NewTracker()
			for snap := range sub.Updates() {
				for _, rec := range tracker.NewlyPending(snap.Records) {
					w.logger.Debug().Str("record_id", rec.ID).Str("kind", string(rec.Kind)).Msg("new pending record")
					w.handler(rec)
				}
			}
		}(sub)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}
