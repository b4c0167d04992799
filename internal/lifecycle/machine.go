// Package lifecycle holds the status state machine shared by every record kind.
// Each kind is a row in one transition table. A terminal status has no
// successors, and respondedAt is set by the same write that reaches it.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"messbook/internal/domain"
	"messbook/internal/models"
)

type table struct {
	initial models.Status
	edges   map[models.Status][]models.Status
	// remarkRequired lists target statuses that can only be reached with a remark.
	remarkRequired map[models.Status]bool
}

// Machine validates and plans status transitions for all record kinds.
type Machine struct {
	tables map[models.Kind]table
}

// New returns the machine with the built-in per-kind tables.
func New() *Machine {
	return &Machine{tables: map[models.Kind]table{
		models.KindBooking: {
			initial: models.StatusPending,
			edges: map[models.Status][]models.Status{
				models.StatusPending: {models.StatusConfirmed, models.StatusRejected},
			},
		},
		models.KindRegistration: {
			initial: models.StatusPending,
			edges: map[models.Status][]models.Status{
				models.StatusPending: {models.StatusApproved, models.StatusRejected},
			},
		},
		models.KindClaim: {
			initial: models.StatusPending,
			edges: map[models.Status][]models.Status{
				models.StatusPending: {models.StatusResolved},
			},
		},
		models.KindInquiry: {
			initial: models.StatusPending,
			edges: map[models.Status][]models.Status{
				models.StatusPending: {models.StatusResolved},
			},
		},
		models.KindFeedback: {
			initial: models.StatusPending,
			edges: map[models.Status][]models.Status{
				models.StatusPending: {models.StatusReplied},
			},
			remarkRequired: map[models.Status]bool{models.StatusReplied: true},
		},
	}}
}

func (m *Machine) table(kind models.Kind) (table, error) {
	t, ok := m.tables[kind]
	if !ok {
		return table{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidInput, kind)
	}
	return t, nil
}

// Initial returns the start status for kind.
func (m *Machine) Initial(kind models.Kind) (models.Status, error) {
	t, err := m.table(kind)
	if err != nil {
		return "", err
	}
	return t.initial, nil
}

// IsTerminal reports whether no transition leaves status for kind.
// Unknown kinds and statuses outside the table are treated as terminal.
func (m *Machine) IsTerminal(kind models.Kind, status models.Status) bool {
	t, ok := m.tables[kind]
	if !ok {
		return true
	}
	return len(t.edges[status]) == 0
}

// Successors returns the statuses reachable from status in one step.
func (m *Machine) Successors(kind models.Kind, status models.Status) []models.Status {
	t, ok := m.tables[kind]
	if !ok {
		return nil
	}
	return append([]models.Status(nil), t.edges[status]...)
}

// Known reports whether status appears anywhere in kind's table.
func (m *Machine) Known(kind models.Kind, status models.Status) bool {
	t, ok := m.tables[kind]
	if !ok {
		return false
	}
	if status == t.initial {
		return true
	}
	for _, targets := range t.edges {
		for _, s := range targets {
			if s == status {
				return true
			}
		}
	}
	return false
}

// Validate checks a transition from -> to for kind.
func (m *Machine) Validate(kind models.Kind, from, to models.Status, remark string) error {
	t, err := m.table(kind)
	if err != nil {
		return err
	}

	targets := t.edges[from]
	if len(targets) == 0 {
		return fmt.Errorf("%w: %s is terminal for %s", domain.ErrInvalidTransition, from, kind)
	}

	allowed := false
	for _, s := range targets {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s not allowed for %s", domain.ErrInvalidTransition, from, to, kind)
	}

	if t.remarkRequired[to] && strings.TrimSpace(remark) == "" {
		return fmt.Errorf("%w: %s requires a reply", domain.ErrInvalidTransition, to)
	}
	if len(remark) > models.MaxRemarkLength {
		return fmt.Errorf("%w: remark longer than %d characters", domain.ErrInvalidInput, models.MaxRemarkLength)
	}
	return nil
}

// Plan validates the transition and builds the single atomic patch that
// applies it: status, respondedAt and remark together, guarded by the
// record's current status.
func (m *Machine) Plan(rec *models.Record, to models.Status, remark string, now time.Time) (models.RecordPatch, error) {
	if rec == nil {
		return models.RecordPatch{}, fmt.Errorf("%w: nil record", domain.ErrInvalidInput)
	}
	if err := m.Validate(rec.Kind, rec.Status, to, remark); err != nil {
		return models.RecordPatch{}, err
	}

	from := rec.Status
	target := to
	patch := models.RecordPatch{
		ExpectStatus: &from,
		Status:       &target,
	}
	// every table is one step deep, so a valid target is always terminal
	if m.IsTerminal(rec.Kind, to) && rec.RespondedAt == nil {
		ts := now.UTC()
		patch.RespondedAt = &ts
	}
	if remark = strings.TrimSpace(remark); remark != "" {
		patch.Remark = &remark
	}
	return patch, nil
}
