package realtime

import (
	"context"
	"encoding/json"
	"time"

	"messbook/internal/events"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const relayPublishTimeout = 2 * time.Second

// Relay forwards local record_changed events to a Redis channel and
// re-publishes events of other instances on the local bus, so every
// instance's hub refreshes on every write.
type Relay struct {
	client   *redis.Client
	channel  string
	instance string
	bus      *events.EventBus
	outbound chan events.RecordChangedPayload
	logger   *zerolog.Logger
}

func NewRelay(client *redis.Client, channel string, bus *events.EventBus, logger *zerolog.Logger) *Relay {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Relay{
		client:   client,
		channel:  channel,
		instance: uuid.NewString(),
		bus:      bus,
		outbound: make(chan events.RecordChangedPayload, 256),
		logger:   logger,
	}
}

// Instance is the id stamped on events this process publishes.
func (r *Relay) Instance() string {
	return r.instance
}

// Attach queues local change events for publishing. Events that already
// carry an origin came from Redis and are not sent back.
func (r *Relay) Attach() {
	r.bus.Subscribe(events.EventRecordChanged, func(e *events.Event) error {
		var p events.RecordChangedPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		if p.Origin != "" {
			return nil
		}
		p.Origin = r.instance
		select {
		case r.outbound <- p:
		default:
			r.logger.Warn().Str("record_id", p.RecordID).Msg("relay queue full, change not forwarded")
		}
		return nil
	})
}

// Run publishes queued local events and consumes remote ones until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// ждём подтверждения подписки, иначе первые сообщения теряются
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	incoming := pubsub.Channel()

	r.logger.Info().Str("channel", r.channel).Str("instance", r.instance).Msg("redis relay started")
	defer r.logger.Info().Msg("redis relay stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-r.outbound:
			r.publish(ctx, p)
		case msg, ok := <-incoming:
			if !ok {
				return nil
			}
			r.receive(msg.Payload)
		}
	}
}

func (r *Relay) publish(ctx context.Context, p events.RecordChangedPayload) {
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, raw).Err(); err != nil {
		r.logger.Warn().Err(err).Str("record_id", p.RecordID).Msg("relay publish failed")
	}
}

func (r *Relay) receive(payload string) {
	var p events.RecordChangedPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		r.logger.Warn().Err(err).Msg("bad relay message")
		return
	}
	if p.Origin == "" || p.Origin == r.instance {
		return
	}
	if err := r.bus.PublishJSON(events.EventRecordChanged, p); err != nil {
		r.logger.Warn().Err(err).Msg("relay republish failed")
	}
}
