// Package policy decides who may read, create, transition, delete and reveal
// records, and how phone numbers are shown to each role.
package policy

import (
	"messbook/internal/models"
)

// Action is a write-side operation checked by CanWrite.
type Action string

const (
	ActionCreate     Action = "create"
	ActionTransition Action = "transition"
	ActionDelete     Action = "delete"
	ActionReveal     Action = "reveal"
)

// ListingAction is an operation on a listing profile.
type ListingAction string

const (
	ListingHide         ListingAction = "hide"
	ListingAvailability ListingAction = "availability"
	ListingGallery      ListingAction = "gallery"
)

// TerminalFunc reports whether a record's status is terminal.
type TerminalFunc func(kind models.Kind, status models.Status) bool

// Policy evaluates visibility rules. It is stateless apart from the terminal
// check borrowed from the lifecycle machine.
type Policy struct {
	terminal TerminalFunc
}

func New(terminal TerminalFunc) *Policy {
	return &Policy{terminal: terminal}
}

// CanRead reports whether actor may see rec.
func (p *Policy) CanRead(actor models.Actor, rec *models.Record) bool {
	if rec == nil {
		return false
	}
	switch actor.Role {
	case models.RoleOperator:
		return true
	case models.RolePartner:
		return actor.OwnsListing(rec.TargetRef)
	case models.RoleStudent:
		return actor.ID != "" && rec.OwnerRef == actor.ID
	default:
		return false
	}
}

// CanWrite reports whether actor may perform action on rec. For create,
// rec is the record about to be stored (kind and ownerRef filled in).
func (p *Policy) CanWrite(actor models.Actor, rec *models.Record, action Action) bool {
	if rec == nil {
		return false
	}

	switch action {
	case ActionCreate:
		return p.canCreate(actor, rec)
	case ActionTransition, ActionReveal:
		return p.privileged(actor, rec)
	case ActionDelete:
		if !p.privileged(actor, rec) {
			return false
		}
		return p.terminal == nil || p.terminal(rec.Kind, rec.Status)
	default:
		return false
	}
}

func (p *Policy) canCreate(actor models.Actor, rec *models.Record) bool {
	switch actor.Role {
	case models.RoleStudent:
		return actor.ID != "" && rec.OwnerRef == actor.ID
	case models.RoleAnonymous:
		// анонимно можно только спросить или оставить отзыв
		return rec.OwnerRef == "" && (rec.Kind == models.KindInquiry || rec.Kind == models.KindFeedback)
	default:
		return false
	}
}

func (p *Policy) privileged(actor models.Actor, rec *models.Record) bool {
	switch actor.Role {
	case models.RoleOperator:
		return true
	case models.RolePartner:
		return actor.OwnsListing(rec.TargetRef)
	default:
		return false
	}
}

// CanManageListing reports whether actor may change the listing's hidden
// flag, availability or gallery.
func (p *Policy) CanManageListing(actor models.Actor, listing *models.Listing, _ ListingAction) bool {
	if listing == nil {
		return false
	}
	switch actor.Role {
	case models.RoleOperator:
		return true
	case models.RolePartner:
		// та же принадлежность, что и в CanRead/Scope: partner_id листинга не учитывается
		return actor.OwnsListing(listing.ID)
	default:
		return false
	}
}

// Scope expresses CanRead as a store filter for kind. A filter with
// MatchNone set must return no rows.
func (p *Policy) Scope(actor models.Actor, kind models.Kind) models.RecordFilter {
	f := models.RecordFilter{Kind: kind}
	switch actor.Role {
	case models.RoleOperator:
	case models.RolePartner:
		if len(actor.OwnedListingIDs) == 0 {
			f.MatchNone = true
			break
		}
		f.TargetIn = append([]string(nil), actor.OwnedListingIDs...)
	case models.RoleStudent:
		if actor.ID == "" {
			f.MatchNone = true
			break
		}
		f.OwnerRef = actor.ID
	default:
		f.MatchNone = true
	}
	return f
}

// Redact returns a copy of rec as actor should see it. Operators and
// partners get a masked phone; a student reading their own record sees it
// in full.
func (p *Policy) Redact(actor models.Actor, rec *models.Record) *models.Record {
	out := rec.Clone()
	if out == nil {
		return nil
	}
	if actor.Role == models.RoleStudent && actor.ID != "" && out.OwnerRef == actor.ID {
		return out
	}
	out.Phone = MaskPhone(out.Phone)
	return out
}

// RedactAll applies Redact to every record.
func (p *Policy) RedactAll(actor models.Actor, recs []*models.Record) []*models.Record {
	out := make([]*models.Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, p.Redact(actor, r))
	}
	return out
}
