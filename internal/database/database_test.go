package database

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"messbook/internal/domain"
	"messbook/internal/events"
	"messbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedListing(t *testing.T, db *DB, id string, available int64) *models.Listing {
	l := &models.Listing{ID: id, PartnerID: "p-" + id, Name: "Mess " + id, Address: "Street 1", AvailableCount: available}
	require.NoError(t, db.UpsertListing(context.Background(), l))
	return l
}

func newBooking(owner, target string) *models.Record {
	return &models.Record{
		Kind:      models.KindBooking,
		Status:    models.StatusPending,
		OwnerRef:  owner,
		TargetRef: target,
		Name:      "Asha",
		Phone:     "9812345610",
		Details:   map[string]string{"move_in": "2025-09-01"},
	}
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "db_test_dir")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestCreateAndGetRecord(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec := newBooking("s1", "l1")
	require.NoError(t, db.CreateRecord(ctx, rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, int64(1), rec.Version)

	got, err := db.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, models.KindBooking, got.Kind)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, "9812345610", got.Phone)
	assert.Equal(t, "2025-09-01", got.Details["move_in"])
	assert.Nil(t, got.RespondedAt)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	_, err = db.GetRecord(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = db.CreateRecord(ctx, &models.Record{Kind: "payment"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCreatedAtMonotonicPerKind(t *testing.T) {
	db := setupTestDB(t)
	fixed := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return fixed }
	ctx := context.Background()

	var prev time.Time
	for i := 0; i < 5; i++ {
		rec := newBooking("s1", "l1")
		require.NoError(t, db.CreateRecord(ctx, rec))
		if i > 0 {
			assert.True(t, rec.CreatedAt.After(prev))
		}
		prev = rec.CreatedAt
	}
}

func TestCreatedAtMonotonicAcrossReopen(t *testing.T) {
	logger := zerolog.New(io.Discard)
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	late := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return late }
	first := newBooking("s1", "l1")
	require.NoError(t, db.CreateRecord(ctx, first))
	require.NoError(t, db.Close())

	// часы после перезапуска отстают
	db, err = NewDB(path, &logger)
	require.NoError(t, err)
	defer db.Close()
	db.now = func() time.Time { return late.Add(-time.Hour) }

	second := newBooking("s2", "l1")
	require.NoError(t, db.CreateRecord(ctx, second))
	assert.True(t, second.CreatedAt.After(first.CreatedAt))

	// другой вид своей истории не имеет
	inq := &models.Record{Kind: models.KindInquiry, Status: models.StatusPending, TargetRef: "l1"}
	require.NoError(t, db.CreateRecord(ctx, inq))
	assert.True(t, late.Add(-time.Hour).Equal(inq.CreatedAt))

	recs, err := db.QueryRecords(ctx, models.RecordFilter{Kind: models.KindBooking})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, second.ID, recs[0].ID)
}

func TestQueryRecords(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := newBooking("s1", "l1")
	b := newBooking("s2", "l2")
	c := newBooking("s1", "l2")
	inq := &models.Record{Kind: models.KindInquiry, Status: models.StatusPending, TargetRef: "l1"}
	for _, r := range []*models.Record{a, b, c, inq} {
		require.NoError(t, db.CreateRecord(ctx, r))
	}

	t.Run("KindNewestFirst", func(t *testing.T) {
		recs, err := db.QueryRecords(ctx, models.RecordFilter{Kind: models.KindBooking})
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{recs[0].ID, recs[1].ID, recs[2].ID})
	})

	t.Run("Owner", func(t *testing.T) {
		recs, err := db.QueryRecords(ctx, models.RecordFilter{Kind: models.KindBooking, OwnerRef: "s1"})
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("TargetIn", func(t *testing.T) {
		recs, err := db.QueryRecords(ctx, models.RecordFilter{TargetIn: []string{"l1"}})
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("MatchNone", func(t *testing.T) {
		recs, err := db.QueryRecords(ctx, models.RecordFilter{MatchNone: true})
		require.NoError(t, err)
		assert.NotNil(t, recs)
		assert.Empty(t, recs)
	})

	t.Run("Status", func(t *testing.T) {
		recs, err := db.QueryRecords(ctx, models.RecordFilter{Status: models.StatusConfirmed})
		require.NoError(t, err)
		assert.Empty(t, recs)
	})
}

func TestUpdateRecordCompareAndSet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec := newBooking("s1", "l1")
	require.NoError(t, db.CreateRecord(ctx, rec))

	pending, confirmed := models.StatusPending, models.StatusConfirmed
	now := time.Date(2025, 9, 2, 8, 0, 0, 0, time.UTC)
	remark := "See you Monday"

	updated, err := db.UpdateRecord(ctx, rec.ID, models.RecordPatch{
		ExpectStatus: &pending, Status: &confirmed, RespondedAt: &now, Remark: &remark,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, updated.Status)
	require.NotNil(t, updated.RespondedAt)
	assert.True(t, now.Equal(*updated.RespondedAt))
	assert.Equal(t, remark, updated.Remark)
	assert.Equal(t, int64(2), updated.Version)

	t.Run("StaleExpectation", func(t *testing.T) {
		rejected := models.StatusRejected
		later := now.Add(time.Hour)
		_, err := db.UpdateRecord(ctx, rec.ID, models.RecordPatch{ExpectStatus: &pending, Status: &rejected, RespondedAt: &later})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		got, err := db.GetRecord(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, got.Status)
		assert.True(t, now.Equal(*got.RespondedAt), "respondedAt must not move")
	})

	t.Run("TerminalIsFinal", func(t *testing.T) {
		rejected := models.StatusRejected
		later := now.Add(2 * time.Hour)
		_, err := db.UpdateRecord(ctx, rec.ID, models.RecordPatch{ExpectStatus: &confirmed, Status: &rejected, RespondedAt: &later})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		got, err := db.GetRecord(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, got.Status)
		assert.True(t, now.Equal(*got.RespondedAt))
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := db.UpdateRecord(ctx, "missing", models.RecordPatch{ExpectStatus: &pending, Status: &confirmed, RespondedAt: &now})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("EmptyPatch", func(t *testing.T) {
		_, err := db.UpdateRecord(ctx, rec.ID, models.RecordPatch{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestUpdateRecordRejectsBrokenPatches(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec := newBooking("s1", "l1")
	require.NoError(t, db.CreateRecord(ctx, rec))

	pending, confirmed := models.StatusPending, models.StatusConfirmed
	now := time.Now()
	note := "note on pending"

	tests := []struct {
		name  string
		patch models.RecordPatch
	}{
		{"RemarkWithoutStatus", models.RecordPatch{Remark: &note}},
		{"RespondedAtWithoutStatus", models.RecordPatch{RespondedAt: &now}},
		{"StatusWithoutExpectation", models.RecordPatch{Status: &confirmed, RespondedAt: &now}},
		{"TerminalWithoutRespondedAt", models.RecordPatch{ExpectStatus: &pending, Status: &confirmed}},
		{"BackToPending", models.RecordPatch{ExpectStatus: &pending, Status: &pending, RespondedAt: &now}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := db.UpdateRecord(ctx, rec.ID, tt.patch)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}

	got, err := db.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.RespondedAt)
	assert.Empty(t, got.Remark)
	assert.Equal(t, int64(1), got.Version)

	t.Run("NoRevival", func(t *testing.T) {
		_, err := db.UpdateRecord(ctx, rec.ID, models.RecordPatch{ExpectStatus: &pending, Status: &confirmed, RespondedAt: &now})
		require.NoError(t, err)

		back := models.StatusPending
		_, err = db.UpdateRecord(ctx, rec.ID, models.RecordPatch{ExpectStatus: &confirmed, Status: &back, RespondedAt: &now})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		got, err := db.GetRecord(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, got.Status)
	})
}

func TestConcurrentTransitionsSingleWinner(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "concurrency.db"), &logger)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	rec := newBooking("s1", "l1")
	require.NoError(t, db.CreateRecord(ctx, rec))

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			pending := models.StatusPending
			target := models.StatusConfirmed
			if i%2 == 1 {
				target = models.StatusRejected
			}
			now := time.Now()
			_, err := db.UpdateRecord(ctx, rec.ID, models.RecordPatch{ExpectStatus: &pending, Status: &target, RespondedAt: &now})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
		} else {
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		}
	}
	assert.Equal(t, 1, success)
}

func TestUpdateRecordReserveListing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedListing(t, db, "l1", 1)

	pending, confirmed := models.StatusPending, models.StatusConfirmed
	now := time.Now()

	first := newBooking("s1", "l1")
	second := newBooking("s2", "l1")
	require.NoError(t, db.CreateRecord(ctx, first))
	require.NoError(t, db.CreateRecord(ctx, second))

	_, err := db.UpdateRecord(ctx, first.ID, models.RecordPatch{ExpectStatus: &pending, Status: &confirmed, RespondedAt: &now, ReserveListing: "l1"})
	require.NoError(t, err)

	_, err = db.UpdateRecord(ctx, second.ID, models.RecordPatch{ExpectStatus: &pending, Status: &confirmed, RespondedAt: &now, ReserveListing: "l1"})
	assert.ErrorIs(t, err, domain.ErrNoCapacity)

	// откат: статус второй заявки не изменился
	got, err := db.GetRecord(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	l, err := db.GetListing(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), l.AvailableCount)
}

func TestDeleteRecord(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	rec := newBooking("s1", "l1")
	require.NoError(t, db.CreateRecord(ctx, rec))
	require.NoError(t, db.DeleteRecord(ctx, rec.ID))

	_, err := db.GetRecord(ctx, rec.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, db.DeleteRecord(ctx, rec.ID), domain.ErrNotFound)
}

func TestChangeEvents(t *testing.T) {
	db := setupTestDB(t)
	bus := events.NewEventBus()
	db.SetEventPublisher(bus)
	ctx := context.Background()

	var got []events.RecordChangedPayload
	bus.Subscribe(events.EventRecordChanged, func(e *events.Event) error {
		var p events.RecordChangedPayload
		require.NoError(t, e.Decode(&p))
		got = append(got, p)
		return nil
	})

	rec := newBooking("s1", "l1")
	require.NoError(t, db.CreateRecord(ctx, rec))
	pending, confirmed := models.StatusPending, models.StatusConfirmed
	now := time.Now()
	patch := models.RecordPatch{ExpectStatus: &pending, Status: &confirmed, RespondedAt: &now}
	_, err := db.UpdateRecord(ctx, rec.ID, patch)
	require.NoError(t, err)
	require.NoError(t, db.DeleteRecord(ctx, rec.ID))

	// неудачная запись события не порождает
	_, err = db.UpdateRecord(ctx, rec.ID, patch)
	require.Error(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, events.OpCreate, got[0].Op)
	assert.Equal(t, events.OpUpdate, got[1].Op)
	assert.Equal(t, events.OpDelete, got[2].Op)
	for _, p := range got {
		assert.Equal(t, rec.ID, p.RecordID)
		assert.Equal(t, models.KindBooking, p.Kind)
	}
}

func TestStoreUnavailable(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	db.Close() // Close the DB to trigger errors

	ctx := context.Background()

	err = db.CreateRecord(ctx, newBooking("s1", "l1"))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = db.QueryRecords(ctx, models.RecordFilter{Kind: models.KindBooking})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	pending, confirmed := models.StatusPending, models.StatusConfirmed
	now := time.Now()
	_, err = db.UpdateRecord(ctx, "x", models.RecordPatch{ExpectStatus: &pending, Status: &confirmed, RespondedAt: &now})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = db.ListListings(ctx, true)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
