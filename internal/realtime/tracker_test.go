package realtime

import (
	"testing"

	"messbook/internal/models"

	"github.com/stretchr/testify/assert"
)

func rec(id string, status models.Status) *models.Record {
	return &models.Record{ID: id, Kind: models.KindBooking, Status: status}
}

func TestTrackerColdStart(t *testing.T) {
	tr := NewTracker()
	assert.Empty(t, tr.NewlyPending([]*models.Record{rec("a", models.StatusPending), rec("b", models.StatusPending)}))
}

func TestTrackerNewlyPending(t *testing.T) {
	tr := NewTracker()
	tr.NewlyPending([]*models.Record{rec("a", models.StatusPending)})

	t.Run("SameSnapshotTwice", func(t *testing.T) {
		assert.Empty(t, tr.NewlyPending([]*models.Record{rec("a", models.StatusPending)}))
		assert.Empty(t, tr.NewlyPending([]*models.Record{rec("a", models.StatusPending)}))
	})

	t.Run("NewRecord", func(t *testing.T) {
		got := tr.NewlyPending([]*models.Record{rec("b", models.StatusPending), rec("a", models.StatusPending)})
		assert.Equal(t, []string{"b"}, ids(got))
	})

	t.Run("UnrelatedFieldChange", func(t *testing.T) {
		changed := rec("b", models.StatusPending)
		changed.Remark = "edited"
		assert.Empty(t, tr.NewlyPending([]*models.Record{changed, rec("a", models.StatusPending)}))
	})

	t.Run("TransitionIsNotPending", func(t *testing.T) {
		assert.Empty(t, tr.NewlyPending([]*models.Record{rec("b", models.StatusConfirmed), rec("a", models.StatusPending)}))
	})

	t.Run("DifferentlyStatusedBefore", func(t *testing.T) {
		got := tr.NewlyPending([]*models.Record{rec("b", models.StatusPending)})
		assert.Equal(t, []string{"b"}, ids(got))
	})

	t.Run("RemovedThenBack", func(t *testing.T) {
		assert.Empty(t, tr.NewlyPending(nil))
		got := tr.NewlyPending([]*models.Record{rec("a", models.StatusPending)})
		assert.Equal(t, []string{"a"}, ids(got))
	})
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker()
	tr.NewlyPending(nil)
	assert.Len(t, tr.NewlyPending([]*models.Record{rec("a", models.StatusPending)}), 1)

	tr.Reset()
	assert.Empty(t, tr.NewlyPending([]*models.Record{rec("z", models.StatusPending)}))
}
