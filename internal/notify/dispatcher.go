// Package notify turns record creations and committed transitions into chat
// messages. Delivery is best-effort: at most once per (record, status), a
// fixed timeout per attempt, no retries.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"messbook/internal/domain"
	"messbook/internal/events"
	"messbook/internal/metrics"
	"messbook/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Type distinguishes the two notification sources.
type Type string

const (
	RecordCreated       Type = "record_created"
	TransitionCommitted Type = "transition_committed"
)

// Notification is a unit of outbound work. Record is a snapshot owned by the
// dispatcher once enqueued.
type Notification struct {
	Type   Type
	Record *models.Record
	From   models.Status
}

// status is the ledger key for this notification.
func (n Notification) status() models.Status {
	if n.Type == RecordCreated {
		return models.StatusPending
	}
	return n.Record.Status
}

type TerminalFunc func(kind models.Kind, status models.Status) bool

type Options struct {
	Timeout   time.Duration
	QueueSize int
	// SendRate limits messages per second; zero disables pacing.
	SendRate float64
}

// Dispatcher owns a bounded queue drained by Start.
type Dispatcher struct {
	channel  domain.Channel
	ledger   domain.StatusLedger
	listings domain.ListingReader
	terminal TerminalFunc
	timeout  time.Duration
	limiter  *rate.Limiter
	queue    chan Notification
	logger   *zerolog.Logger

	mu       sync.Mutex // guards stopped and inflight.Add against the final drain
	stopped  bool
	inflight sync.WaitGroup
}

func New(channel domain.Channel, ledger domain.StatusLedger, listings domain.ListingReader, terminal TerminalFunc, opts Options, logger *zerolog.Logger) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = models.DefaultNotifyTimeout * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = models.DefaultNotifyQueueSize
	}
	var limiter *rate.Limiter
	if opts.SendRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.SendRate), 1)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Dispatcher{
		channel:  channel,
		ledger:   ledger,
		listings: listings,
		terminal: terminal,
		timeout:  opts.Timeout,
		limiter:  limiter,
		queue:    make(chan Notification, opts.QueueSize),
		logger:   logger,
	}
}

// Notify enqueues n without blocking. It reports false when the queue is
// full, the dispatcher has stopped or n is malformed; the notification is
// then dropped.
func (d *Dispatcher) Notify(n Notification) bool {
	if n.Record == nil || n.Record.ID == "" {
		return false
	}
	n.Record = n.Record.Clone()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		metrics.IncNotification(string(n.Record.Kind), "dropped")
		d.logger.Debug().Str("record_id", n.Record.ID).Msg("dispatcher stopped, notification dropped")
		return false
	}

	d.inflight.Add(1)
	select {
	case d.queue <- n:
		return true
	default:
		d.inflight.Done()
		metrics.IncNotification(string(n.Record.Kind), "dropped")
		d.logger.Warn().
			Str("record_id", n.Record.ID).
			Str("type", string(n.Type)).
			Msg("notification queue full, dropped")
		return false
	}
}

// Subscribe feeds committed transitions from the bus into the queue.
func (d *Dispatcher) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventTransitionCommitted, func(e *events.Event) error {
		var p events.TransitionPayload
		if err := e.Decode(&p); err != nil {
			d.logger.Error().Err(err).Msg("bad transition event")
			return err
		}
		if p.Record == nil {
			return nil
		}
		d.Notify(Notification{Type: TransitionCommitted, Record: p.Record, From: p.From})
		return nil
	})
}

// Start drains the queue until ctx is done. A dispatcher runs once: after
// Start returns, queued and later notifications are dropped.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info().Msg("notification dispatcher started")
	defer d.logger.Info().Msg("notification dispatcher stopped")
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			d.process(ctx, n)
			d.inflight.Done()
		}
	}
}

// stop refuses new notifications and drops whatever is still queued.
func (d *Dispatcher) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for {
		select {
		case n := <-d.queue:
			metrics.IncNotification(string(n.Record.Kind), "dropped")
			d.inflight.Done()
		default:
			return
		}
	}
}

// Wait blocks until every enqueued notification has been processed or
// dropped. Before Start is called it waits for Start to run.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) process(ctx context.Context, n Notification) {
	rec := n.Record
	kind := string(rec.Kind)
	status := n.status()
	log := d.logger.With().
		Str("record_id", rec.ID).
		Str("kind", kind).
		Str("status", string(status)).
		Logger()

	terminal := d.terminal != nil && d.terminal(rec.Kind, status)
	fresh, err := d.ledger.Advance(ctx, rec.ID, status, terminal)
	if err != nil {
		// без отметки в журнале не отправляем: лучше пропустить, чем задвоить
		metrics.IncNotification(kind, "failed")
		log.Error().Err(err).Msg("ledger unavailable, notification skipped")
		return
	}
	if !fresh {
		metrics.IncNotification(kind, "duplicate")
		log.Debug().Msg("notification already sent")
		return
	}

	message := d.format(ctx, n)

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if !d.channel.Send(sendCtx, message) {
		err := fmt.Errorf("%w: %s %s", domain.ErrDeliveryFailed, rec.Kind, rec.ID)
		metrics.IncNotification(kind, "failed")
		log.Warn().Err(err).Msg("notification not delivered")
		return
	}

	metrics.IncNotification(kind, "sent")
	log.Info().Msg("notification sent")
}

func (d *Dispatcher) listingName(ctx context.Context, id string) string {
	if id == "" || d.listings == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	l, err := d.listings.GetListing(ctx, id)
	if err != nil {
		d.logger.Debug().Err(err).Str("listing_id", id).Msg("listing lookup failed")
		return ""
	}
	return l.Name
}
