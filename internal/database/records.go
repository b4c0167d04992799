package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"messbook/internal/domain"
	"messbook/internal/events"
	"messbook/internal/models"

	"github.com/google/uuid"
)

const recordColumns = `id, kind, status, owner_ref, target_ref, unit_ref, name, phone, email,
	message, details, remark, created_at, responded_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		r           models.Record
		details     string
		createdAt   int64
		respondedAt sql.NullInt64
	)
	err := row.Scan(
		&r.ID, &r.Kind, &r.Status, &r.OwnerRef, &r.TargetRef, &r.UnitRef,
		&r.Name, &r.Phone, &r.Email, &r.Message, &details, &r.Remark,
		&createdAt, &respondedAt, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	if details != "" && details != "{}" {
		if err := json.Unmarshal([]byte(details), &r.Details); err != nil {
			return nil, fmt.Errorf("failed to decode details of %s: %w", r.ID, err)
		}
	}
	r.CreatedAt = fromNanos(createdAt)
	if respondedAt.Valid {
		t := fromNanos(respondedAt.Int64)
		r.RespondedAt = &t
	}
	return &r, nil
}

// nextCreatedAt keeps createdAt strictly increasing per kind so that
// createdAt-desc ordering is total.
func (db *DB) nextCreatedAt(kind models.Kind) int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	ts := toNanos(db.now())
	if last := db.lastCreated[string(kind)]; ts <= last {
		ts = last + 1
	}
	db.lastCreated[string(kind)] = ts
	return ts
}

// CreateRecord stores rec, assigning its id, createdAt and version.
// The caller sets kind, status and payload.
func (db *DB) CreateRecord(ctx context.Context, rec *models.Record) error {
	if rec == nil || !rec.Kind.Valid() {
		return fmt.Errorf("create record: %w", domain.ErrInvalidInput)
	}

	details := "{}"
	if len(rec.Details) > 0 {
		raw, err := json.Marshal(rec.Details)
		if err != nil {
			return fmt.Errorf("create record: %w: %v", domain.ErrInvalidInput, err)
		}
		details = string(raw)
	}

	id := uuid.NewString()
	createdAt := db.nextCreatedAt(rec.Kind)

	query := `INSERT INTO records (` + recordColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 1)`
	_, err := db.ExecContext(ctx, query,
		id, rec.Kind, rec.Status, rec.OwnerRef, rec.TargetRef, rec.UnitRef,
		rec.Name, rec.Phone, rec.Email, rec.Message, details, rec.Remark,
		createdAt,
	)
	if err != nil {
		return storeErr("create record", err)
	}

	rec.ID = id
	rec.CreatedAt = fromNanos(createdAt)
	rec.RespondedAt = nil
	rec.Version = 1

	db.logger.Debug().Str("record_id", id).Str("kind", string(rec.Kind)).Msg("record created")
	db.publish(events.EventRecordChanged, events.RecordChangedPayload{RecordID: id, Kind: rec.Kind, Op: events.OpCreate})
	return nil
}

func (db *DB) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = ?`
	rec, err := scanRecord(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, storeErr("get record", err)
	}
	return rec, nil
}

// QueryRecords returns records matching filter, newest first.
func (db *DB) QueryRecords(ctx context.Context, filter models.RecordFilter) ([]*models.Record, error) {
	if filter.MatchNone {
		return []*models.Record{}, nil
	}

	var (
		where []string
		args  []any
	)
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.OwnerRef != "" {
		where = append(where, "owner_ref = ?")
		args = append(args, filter.OwnerRef)
	}
	if len(filter.TargetIn) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.TargetIn)), ",")
		where = append(where, "target_ref IN ("+placeholders+")")
		for _, t := range filter.TargetIn {
			args = append(args, t)
		}
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + recordColumns + ` FROM records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("query records", err)
	}
	defer rows.Close()

	out := []*models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storeErr("scan record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query records", err)
	}
	return out, nil
}

// checkPatch enforces the record rules the store owns: every kind has one
// non-terminal start state, so a status write is the single terminal
// transition and carries respondedAt with it. Remark and respondedAt never
// travel without a status.
func checkPatch(patch models.RecordPatch) error {
	switch {
	case patch.Empty():
		return fmt.Errorf("update record: empty patch: %w", domain.ErrInvalidInput)
	case patch.Status == nil:
		return fmt.Errorf("update record: remark or responded_at without status: %w", domain.ErrInvalidInput)
	case patch.ExpectStatus == nil:
		return fmt.Errorf("update record: status without expected status: %w", domain.ErrInvalidInput)
	case *patch.Status == models.StatusPending:
		return fmt.Errorf("update record: status cannot return to pending: %w", domain.ErrInvalidInput)
	case patch.RespondedAt == nil:
		return fmt.Errorf("update record: terminal status without responded_at: %w", domain.ErrInvalidInput)
	}
	return nil
}

// UpdateRecord applies patch in one transaction as a compare-and-set on
// ExpectStatus: if the stored status differs, or the record already has a
// respondedAt, nothing is written and ErrInvalidTransition is returned.
// With ReserveListing set the listing's available count is decremented in
// the same transaction.
func (db *DB) UpdateRecord(ctx context.Context, id string, patch models.RecordPatch) (*models.Record, error) {
	if err := checkPatch(patch); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin update", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	sets := []string{"status = ?", "responded_at = ?"}
	args := []any{*patch.Status, toNanos(*patch.RespondedAt)}
	if patch.Remark != nil {
		sets = append(sets, "remark = ?")
		args = append(args, *patch.Remark)
	}
	sets = append(sets, "version = version + 1")

	query := `UPDATE records SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND status = ? AND responded_at IS NULL`
	args = append(args, id, *patch.ExpectStatus)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("update record", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, storeErr("update record", err)
	}
	if affected == 0 {
		var current models.Status
		err := tx.QueryRowContext(ctx, `SELECT status FROM records WHERE id = ?`, id).Scan(&current)
		if err != nil {
			return nil, storeErr("update record", err)
		}
		return nil, fmt.Errorf("%w: record %s is %s", domain.ErrInvalidTransition, id, current)
	}

	if patch.ReserveListing != "" {
		if err := reserveInTx(ctx, tx, patch.ReserveListing, db.now()); err != nil {
			return nil, err
		}
	}

	rec, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id))
	if err != nil {
		return nil, storeErr("reload record", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit update", err)
	}

	db.publish(events.EventRecordChanged, events.RecordChangedPayload{RecordID: id, Kind: rec.Kind, Op: events.OpUpdate})
	if patch.ReserveListing != "" {
		db.publish(events.EventListingUpdated, events.ListingPayload{ListingID: patch.ReserveListing, Field: "available_count"})
	}
	return rec, nil
}

func (db *DB) DeleteRecord(ctx context.Context, id string) error {
	var kind models.Kind
	if err := db.QueryRowContext(ctx, `SELECT kind FROM records WHERE id = ?`, id).Scan(&kind); err != nil {
		return storeErr("delete record", err)
	}

	res, err := db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete record: %w", domain.ErrNotFound)
	}

	db.logger.Info().Str("record_id", id).Str("kind", string(kind)).Msg("record deleted")
	db.publish(events.EventRecordChanged, events.RecordChangedPayload{RecordID: id, Kind: kind, Op: events.OpDelete})
	return nil
}
