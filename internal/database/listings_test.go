package database

import (
	"context"
	"sync"
	"testing"

	"messbook/internal/domain"
	"messbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seedListing(t, db, "b", 3)
	seedListing(t, db, "a", 0)

	all, err := db.ListListings(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Empty(t, all[0].GalleryURLs)

	require.NoError(t, db.SetListingHidden(ctx, "a", true))
	visible, err := db.ListListings(ctx, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "b", visible[0].ID)

	withHidden, err := db.ListListings(ctx, true)
	require.NoError(t, err)
	assert.Len(t, withHidden, 2)

	assert.ErrorIs(t, db.SetListingHidden(ctx, "zzz", true), domain.ErrNotFound)
	_, err = db.GetListing(ctx, "zzz")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, db.UpsertListing(ctx, &models.Listing{}), domain.ErrInvalidInput)
}

func TestAdjustAvailableCount(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedListing(t, db, "l1", 2)

	n, err := db.AdjustAvailableCount(ctx, "l1", -2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = db.AdjustAvailableCount(ctx, "l1", -1)
	assert.ErrorIs(t, err, domain.ErrNoCapacity)

	n, err = db.AdjustAvailableCount(ctx, "l1", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	_, err = db.AdjustAvailableCount(ctx, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdjustAvailableCountConcurrent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedListing(t, db, "l1", 3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.AdjustAvailableCount(ctx, "l1", -1); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, success)
	l, err := db.GetListing(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), l.AvailableCount)
}

func TestGalleryAndUnits(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedListing(t, db, "l1", 1)

	require.NoError(t, db.SetGallery(ctx, "l1", []string{"https://img/1.jpg", "https://img/2.jpg"}))
	l, err := db.GetListing(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img/1.jpg", "https://img/2.jpg"}, l.GalleryURLs)

	require.NoError(t, db.SetGallery(ctx, "l1", nil))
	l, err = db.GetListing(ctx, "l1")
	require.NoError(t, err)
	assert.Empty(t, l.GalleryURLs)
	assert.ErrorIs(t, db.SetGallery(ctx, "missing", nil), domain.ErrNotFound)

	require.NoError(t, db.UpsertUnit(ctx, &models.Unit{ID: "u2", ListingID: "l1", Title: "Single", Capacity: 1, MonthlyRent: 9000}))
	require.NoError(t, db.UpsertUnit(ctx, &models.Unit{ID: "u1", ListingID: "l1", Title: "Double", Capacity: 2, MonthlyRent: 6000}))

	units, err := db.ListUnits(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "Double", units[0].Title)
	assert.Equal(t, int64(9000), units[1].MonthlyRent)

	none, err := db.ListUnits(ctx, "l2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpsertListingKeepsRuntimeFields(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedListing(t, db, "l1", 3)

	require.NoError(t, db.SetListingHidden(ctx, "l1", true))
	_, err := db.AdjustAvailableCount(ctx, "l1", -1)
	require.NoError(t, err)
	require.NoError(t, db.SetGallery(ctx, "l1", []string{"https://img/1.jpg"}))

	require.NoError(t, db.UpsertListing(ctx, &models.Listing{ID: "l1", Name: "Renamed", Address: "New St", AvailableCount: 10}))

	l, err := db.GetListing(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", l.Name)
	assert.Equal(t, "New St", l.Address)
	assert.True(t, l.Hidden)
	assert.Equal(t, int64(2), l.AvailableCount)
	assert.Equal(t, []string{"https://img/1.jpg"}, l.GalleryURLs)
}
