package models

import "time"

// Record is any request flowing through the lifecycle: booking, claim,
// inquiry, registration or feedback.
type Record struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"kind"`
	Status      Status            `json:"status"`
	OwnerRef    string            `json:"owner_ref,omitempty"`  // пусто для анонимных заявок
	TargetRef   string            `json:"target_ref,omitempty"` // пусто только для отзывов
	UnitRef     string            `json:"unit_ref,omitempty"`
	Name        string            `json:"name"`
	Phone       string            `json:"phone,omitempty"`
	Email       string            `json:"email,omitempty"`
	Message     string            `json:"message,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	Remark      string            `json:"remark,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	RespondedAt *time.Time        `json:"responded_at,omitempty"`
	Version     int64             `json:"version"`
}

// Clone returns a deep copy so callers can redact without touching shared state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Details != nil {
		out.Details = make(map[string]string, len(r.Details))
		for k, v := range r.Details {
			out.Details[k] = v
		}
	}
	if r.RespondedAt != nil {
		t := *r.RespondedAt
		out.RespondedAt = &t
	}
	return &out
}

// NewRecord carries the caller-supplied part of a record at creation.
type NewRecord struct {
	Kind      Kind              `json:"kind"`
	TargetRef string            `json:"target_ref"`
	UnitRef   string            `json:"unit_ref"`
	Name      string            `json:"name"`
	Phone     string            `json:"phone"`
	Email     string            `json:"email"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details"`
}

// RecordPatch is applied by the store as a single atomic UPDATE.
// ExpectStatus turns the update into a compare-and-set on the current status.
type RecordPatch struct {
	ExpectStatus *Status
	Status       *Status
	RespondedAt  *time.Time
	Remark       *string

	// ReserveListing, when set, decrements that listing's available count in
	// the same transaction; the whole write fails if no capacity is left.
	ReserveListing string
}

// Empty reports whether the patch changes nothing.
func (p RecordPatch) Empty() bool {
	return p.Status == nil && p.RespondedAt == nil && p.Remark == nil
}

// RecordFilter selects records at the store boundary.
// Zero-valued fields do not constrain the query.
type RecordFilter struct {
	Kind      Kind
	OwnerRef  string
	TargetIn  []string
	Status    Status
	MatchNone bool
}
