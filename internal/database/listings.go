package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"messbook/internal/domain"
	"messbook/internal/events"
	"messbook/internal/models"

	"github.com/google/uuid"
)

const listingColumns = `id, partner_id, name, address, hidden, available_count, gallery, created_at, updated_at`

func scanListing(row rowScanner) (*models.Listing, error) {
	var (
		l                    models.Listing
		gallery              string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&l.ID, &l.PartnerID, &l.Name, &l.Address, &l.Hidden,
		&l.AvailableCount, &gallery, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(gallery), &l.GalleryURLs); err != nil {
		return nil, fmt.Errorf("failed to decode gallery of %s: %w", l.ID, err)
	}
	if l.GalleryURLs == nil {
		l.GalleryURLs = []string{}
	}
	l.CreatedAt = fromNanos(createdAt)
	l.UpdatedAt = fromNanos(updatedAt)
	return &l, nil
}

// UpsertListing inserts a listing profile or refreshes its name, partner
// and address. Hidden flag, available count and gallery are set only on
// insert; after that they belong to the running service. An empty id gets a
// fresh uuid.
func (db *DB) UpsertListing(ctx context.Context, l *models.Listing) error {
	if l == nil || l.Name == "" || l.AvailableCount < 0 {
		return fmt.Errorf("upsert listing: %w", domain.ErrInvalidInput)
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	gallery, err := json.Marshal(nonNil(l.GalleryURLs))
	if err != nil {
		return fmt.Errorf("upsert listing: %w", err)
	}

	now := toNanos(db.now())
	query := `INSERT INTO listings (` + listingColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  partner_id = excluded.partner_id,
                  name = excluded.name,
                  address = excluded.address,
                  updated_at = excluded.updated_at`
	_, err = db.ExecContext(ctx, query, l.ID, l.PartnerID, l.Name, l.Address, l.Hidden,
		l.AvailableCount, string(gallery), now, now)
	if err != nil {
		return storeErr("upsert listing", err)
	}
	return nil
}

// UpsertUnit inserts or replaces a room type of a listing.
func (db *DB) UpsertUnit(ctx context.Context, u *models.Unit) error {
	if u == nil || u.ListingID == "" || u.Title == "" {
		return fmt.Errorf("upsert unit: %w", domain.ErrInvalidInput)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	query := `INSERT INTO units (id, listing_id, title, capacity, monthly_rent)
              VALUES (?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  listing_id = excluded.listing_id,
                  title = excluded.title,
                  capacity = excluded.capacity,
                  monthly_rent = excluded.monthly_rent`
	if _, err := db.ExecContext(ctx, query, u.ID, u.ListingID, u.Title, u.Capacity, u.MonthlyRent); err != nil {
		return storeErr("upsert unit", err)
	}
	return nil
}

func (db *DB) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	l, err := scanListing(db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id))
	if err != nil {
		return nil, storeErr("get listing", err)
	}
	return l, nil
}

// ListListings returns listings ordered by name; hidden ones only when asked.
func (db *DB) ListListings(ctx context.Context, includeHidden bool) ([]*models.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings`
	if !includeHidden {
		query += ` WHERE hidden = 0`
	}
	query += ` ORDER BY name, id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr("list listings", err)
	}
	defer rows.Close()

	out := []*models.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, storeErr("scan listing", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list listings", err)
	}
	return out, nil
}

func (db *DB) SetListingHidden(ctx context.Context, id string, hidden bool) error {
	res, err := db.ExecContext(ctx, `UPDATE listings SET hidden = ?, updated_at = ? WHERE id = ?`,
		hidden, toNanos(db.now()), id)
	if err != nil {
		return storeErr("set listing hidden", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set listing hidden: %w", domain.ErrNotFound)
	}
	db.publish(events.EventListingUpdated, events.ListingPayload{ListingID: id, Field: "hidden"})
	return nil
}

// AdjustAvailableCount adds delta to the listing's available count in one
// conditional statement and returns the new value. A change that would go
// below zero fails with ErrNoCapacity.
func (db *DB) AdjustAvailableCount(ctx context.Context, id string, delta int64) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr("begin adjust", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := adjustInTx(ctx, tx, id, delta, db.now()); err != nil {
		return 0, err
	}

	var count int64
	if err := tx.QueryRowContext(ctx, `SELECT available_count FROM listings WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, storeErr("adjust available count", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, storeErr("commit adjust", err)
	}

	db.publish(events.EventListingUpdated, events.ListingPayload{ListingID: id, Field: "available_count"})
	return count, nil
}

func reserveInTx(ctx context.Context, tx *sql.Tx, listingID string, now time.Time) error {
	return adjustInTx(ctx, tx, listingID, -1, now)
}

func adjustInTx(ctx context.Context, tx *sql.Tx, id string, delta int64, now time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE listings SET available_count = available_count + ?, updated_at = ?
         WHERE id = ? AND available_count + ? >= 0`,
		delta, toNanos(now), id, delta)
	if err != nil {
		return storeErr("adjust available count", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM listings WHERE id = ?`, id).Scan(&exists); err != nil {
		return storeErr("adjust available count", err)
	}
	return fmt.Errorf("listing %s: %w", id, domain.ErrNoCapacity)
}

// SetGallery overwrites the whole gallery array.
func (db *DB) SetGallery(ctx context.Context, id string, urls []string) error {
	raw, err := json.Marshal(nonNil(urls))
	if err != nil {
		return fmt.Errorf("set gallery: %w", err)
	}
	res, err := db.ExecContext(ctx, `UPDATE listings SET gallery = ?, updated_at = ? WHERE id = ?`,
		string(raw), toNanos(db.now()), id)
	if err != nil {
		return storeErr("set gallery", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set gallery: %w", domain.ErrNotFound)
	}
	db.publish(events.EventListingUpdated, events.ListingPayload{ListingID: id, Field: "gallery"})
	return nil
}

func (db *DB) ListUnits(ctx context.Context, listingID string) ([]*models.Unit, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, listing_id, title, capacity, monthly_rent FROM units WHERE listing_id = ? ORDER BY title, id`,
		listingID)
	if err != nil {
		return nil, storeErr("list units", err)
	}
	defer rows.Close()

	out := []*models.Unit{}
	for rows.Next() {
		var u models.Unit
		if err := rows.Scan(&u.ID, &u.ListingID, &u.Title, &u.Capacity, &u.MonthlyRent); err != nil {
			return nil, storeErr("scan unit", err)
		}
		out = append(out, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list units", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
