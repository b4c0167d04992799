package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordClone(t *testing.T) {
	now := time.Now()
	rec := &Record{
		ID:          "r1",
		Phone:       "9812345610",
		Details:     map[string]string{"move_in": "2025-09-01"},
		RespondedAt: &now,
	}

	clone := rec.Clone()
	clone.Phone = "xx"
	clone.Details["move_in"] = "changed"
	*clone.RespondedAt = now.Add(time.Hour)

	assert.Equal(t, "9812345610", rec.Phone)
	assert.Equal(t, "2025-09-01", rec.Details["move_in"])
	assert.Equal(t, now, *rec.RespondedAt)

	var nilRec *Record
	assert.Nil(t, nilRec.Clone())
}

func TestKindValid(t *testing.T) {
	for _, k := range AllKinds {
		assert.True(t, k.Valid(), string(k))
	}
	assert.False(t, Kind("payment").Valid())
	assert.False(t, Kind("").Valid())
}

func TestActor(t *testing.T) {
	t.Run("Anonymous", func(t *testing.T) {
		assert.True(t, Actor{}.Anonymous())
		assert.True(t, Actor{Role: RoleStudent}.Anonymous())
		assert.False(t, Actor{Role: RoleStudent, ID: "s1"}.Anonymous())
	})

	t.Run("OwnsListing", func(t *testing.T) {
		a := Actor{Role: RolePartner, ID: "p1", OwnedListingIDs: []string{"l1", "l2"}}
		assert.True(t, a.OwnsListing("l2"))
		assert.False(t, a.OwnsListing("l3"))
		assert.False(t, a.OwnsListing(""))
	})
}

func TestRecordPatchEmpty(t *testing.T) {
	assert.True(t, RecordPatch{}.Empty())
	s := StatusConfirmed
	assert.True(t, RecordPatch{ExpectStatus: &s}.Empty())
	assert.False(t, RecordPatch{Status: &s}.Empty())
}
