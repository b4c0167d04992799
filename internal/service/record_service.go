package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"messbook/internal/domain"
	"messbook/internal/events"
	"messbook/internal/lifecycle"
	"messbook/internal/metrics"
	"messbook/internal/models"
	"messbook/internal/policy"

	"github.com/rs/zerolog"
)

type RecordOptions struct {
	// ReserveCapacityOnConfirm takes one place from the booked listing when
	// a booking is confirmed.
	ReserveCapacityOnConfirm bool
}

// RecordService runs every record operation through the policy, the
// lifecycle machine and the store, in that order, and announces committed
// transitions on the event bus.
type RecordService struct {
	store    domain.RecordStore
	listings domain.ListingCatalog
	machine  *lifecycle.Machine
	policy   *policy.Policy
	bus      domain.EventPublisher
	ledger   domain.StatusLedger
	opts     RecordOptions
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewRecordService(
	store domain.RecordStore,
	listings domain.ListingCatalog,
	machine *lifecycle.Machine,
	pol *policy.Policy,
	bus domain.EventPublisher,
	ledger domain.StatusLedger,
	opts RecordOptions,
	logger *zerolog.Logger,
) *RecordService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RecordService{
		store:    store,
		listings: listings,
		machine:  machine,
		policy:   pol,
		bus:      bus,
		ledger:   ledger,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Create stores a new record in its kind's initial status. Students own
// what they create; anonymous visitors may only leave inquiries and feedback.
func (s *RecordService) Create(ctx context.Context, actor models.Actor, in models.NewRecord) (*models.Record, error) {
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, in.Kind)
	}
	in.Name = strings.TrimSpace(in.Name)
	in.TargetRef = strings.TrimSpace(in.TargetRef)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if in.TargetRef == "" && in.Kind != models.KindFeedback {
		return nil, fmt.Errorf("%w: target_ref is required for %s", domain.ErrInvalidInput, in.Kind)
	}
	if len(in.Message) > models.MaxRemarkLength {
		return nil, fmt.Errorf("%w: message too long", domain.ErrInvalidInput)
	}

	status, err := s.machine.Initial(in.Kind)
	if err != nil {
		return nil, err
	}

	rec := &models.Record{
		Kind:      in.Kind,
		Status:    status,
		TargetRef: in.TargetRef,
		UnitRef:   strings.TrimSpace(in.UnitRef),
		Name:      in.Name,
		Phone:     strings.TrimSpace(in.Phone),
		Email:     strings.TrimSpace(in.Email),
		Message:   strings.TrimSpace(in.Message),
		Details:   in.Details,
	}
	if actor.Role == models.RoleStudent {
		rec.OwnerRef = actor.ID
	}

	if !s.policy.CanWrite(actor, rec, policy.ActionCreate) {
		return nil, s.denied(actor, policy.ActionCreate, rec)
	}
	if err := s.checkTarget(ctx, actor, rec); err != nil {
		return nil, err
	}

	if err := s.store.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}
	metrics.IncRecordCreated(string(rec.Kind))

	s.logger.Info().
		Str("record_id", rec.ID).
		Str("kind", string(rec.Kind)).
		Str("target_ref", rec.TargetRef).
		Msg("record created")

	return s.policy.Redact(actor, rec), nil
}

// checkTarget makes sure the record points at a listing the actor can see
// and, when a unit is given, at one of that listing's units.
func (s *RecordService) checkTarget(ctx context.Context, actor models.Actor, rec *models.Record) error {
	if rec.TargetRef == "" {
		if rec.UnitRef != "" {
			return fmt.Errorf("%w: unit_ref needs a target_ref", domain.ErrInvalidInput)
		}
		return nil
	}

	l, err := s.listings.GetListing(ctx, rec.TargetRef)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: unknown listing %q", domain.ErrInvalidInput, rec.TargetRef)
	}
	if err != nil {
		return err
	}
	if l.Hidden && !s.policy.CanManageListing(actor, l, policy.ListingHide) {
		return fmt.Errorf("listing %s: %w", rec.TargetRef, domain.ErrNotFound)
	}

	if rec.UnitRef == "" {
		return nil
	}
	units, err := s.listings.ListUnits(ctx, rec.TargetRef)
	if err != nil {
		return err
	}
	for _, u := range units {
		if u.ID == rec.UnitRef {
			return nil
		}
	}
	return fmt.Errorf("%w: unit %q is not in listing %q", domain.ErrInvalidInput, rec.UnitRef, rec.TargetRef)
}

// List returns every record of kind the actor may see, newest first.
func (s *RecordService) List(ctx context.Context, actor models.Actor, kind models.Kind) ([]*models.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, kind)
	}
	recs, err := s.store.QueryRecords(ctx, s.policy.Scope(actor, kind))
	if err != nil {
		return nil, err
	}
	return s.policy.RedactAll(actor, recs), nil
}

func (s *RecordService) Get(ctx context.Context, actor models.Actor, id string) (*models.Record, error) {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanRead(actor, rec) {
		return nil, s.denied(actor, "read", rec)
	}
	return s.policy.Redact(actor, rec), nil
}

// Transition moves a record to status `to`. The store write is a
// compare-and-set on the status read here, so of two concurrent transitions
// from the same status only one commits; the other gets ErrInvalidTransition.
// The event is published only after the write has committed.
func (s *RecordService) Transition(ctx context.Context, actor models.Actor, id string, to models.Status, remark string) (*models.Record, error) {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.policy.CanWrite(actor, rec, policy.ActionTransition) {
		return nil, s.denied(actor, policy.ActionTransition, rec)
	}

	patch, err := s.machine.Plan(rec, to, remark, s.now())
	if err != nil {
		return nil, err
	}
	if s.opts.ReserveCapacityOnConfirm && rec.Kind == models.KindBooking && to == models.StatusConfirmed {
		patch.ReserveListing = rec.TargetRef
	}

	updated, err := s.store.UpdateRecord(ctx, id, patch)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			s.logger.Info().Str("record_id", id).Str("to", string(to)).Msg("transition lost to a concurrent write")
		}
		return nil, err
	}
	metrics.IncTransition(string(updated.Kind), string(updated.Status))

	s.logger.Info().
		Str("record_id", id).
		Str("kind", string(updated.Kind)).
		Str("from", string(rec.Status)).
		Str("to", string(updated.Status)).
		Str("actor_role", string(actor.Role)).
		Str("actor_id", actor.ID).
		Msg("transition committed")

	s.publish(events.EventTransitionCommitted, events.TransitionPayload{
		RecordID:  id,
		Kind:      updated.Kind,
		From:      rec.Status,
		To:        updated.Status,
		TargetRef: updated.TargetRef,
		Remark:    updated.Remark,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		At:        s.now().UTC(),
		Record:    updated.Clone(),
	})

	return s.policy.Redact(actor, updated), nil
}

// Delete removes a terminal record. Pending records cannot be deleted, even
// by an operator.
func (s *RecordService) Delete(ctx context.Context, actor models.Actor, id string) error {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if !s.policy.CanWrite(actor, rec, policy.ActionDelete) {
		if s.policy.CanWrite(actor, rec, policy.ActionTransition) {
			return fmt.Errorf("%w: %s is %s", domain.ErrNotTerminal, id, rec.Status)
		}
		return s.denied(actor, policy.ActionDelete, rec)
	}

	if err := s.store.DeleteRecord(ctx, id); err != nil {
		return err
	}

	if s.ledger != nil {
		if err := s.ledger.Forget(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("record_id", id).Msg("ledger forget failed")
		}
	}

	s.logger.Info().
		Str("record_id", id).
		Str("kind", string(rec.Kind)).
		Str("actor_role", string(actor.Role)).
		Str("actor_id", actor.ID).
		Msg("record deleted")
	return nil
}

// Reveal returns the unmasked phone of a record. It never writes; every
// reveal is logged and announced.
func (s *RecordService) Reveal(ctx context.Context, actor models.Actor, id string) (string, error) {
	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return "", err
	}
	if !s.policy.CanWrite(actor, rec, policy.ActionReveal) {
		return "", s.denied(actor, policy.ActionReveal, rec)
	}

	s.logger.Info().
		Str("record_id", id).
		Str("kind", string(rec.Kind)).
		Str("actor_role", string(actor.Role)).
		Str("actor_id", actor.ID).
		Msg("phone revealed")

	s.publish(events.EventRecordRevealed, events.RevealPayload{
		RecordID:  id,
		ActorRole: actor.Role,
		ActorID:   actor.ID,
		At:        s.now().UTC(),
	})
	return rec.Phone, nil
}

func (s *RecordService) denied(actor models.Actor, action policy.Action, rec *models.Record) error {
	s.logger.Warn().
		Str("action", string(action)).
		Str("record_id", rec.ID).
		Str("kind", string(rec.Kind)).
		Str("actor_role", string(actor.Role)).
		Str("actor_id", actor.ID).
		Msg("unauthorized")
	return fmt.Errorf("%w: %s %s", domain.ErrUnauthorized, action, rec.Kind)
}

func (s *RecordService) publish(eventType string, payload interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
