package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"messbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pendingLog struct {
	mu  sync.Mutex
	ids []string
}

func (p *pendingLog) add(r *models.Record) {
	p.mu.Lock()
	p.ids = append(p.ids, r.ID)
	p.mu.Unlock()
}

func (p *pendingLog) get() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

func TestWatcherReportsOnlyNewPending(t *testing.T) {
	f := setup(t)
	f.run(t)

	old := f.create(t, models.KindClaim, "s1", "l1")

	seen := &pendingLog{}
	w := NewWatcher(f.hub, seen.add, nil, models.KindClaim, models.KindBooking)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return f.hub.Len() == 2 }, time.Second, 10*time.Millisecond)
	// даём холодному снимку дойти до трекера
	time.Sleep(50 * time.Millisecond)

	fresh := f.create(t, models.KindClaim, "s2", "l1")
	require.Eventually(t, func() bool { return len(seen.get()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{fresh.ID}, seen.get())

	// закрытие старой заявки и запись другого вида новыми не считаются
	pending, resolved := models.StatusPending, models.StatusResolved
	now := time.Now()
	_, err := f.db.UpdateRecord(context.Background(), old.ID, models.RecordPatch{
		ExpectStatus: &pending, Status: &resolved, RespondedAt: &now,
	})
	require.NoError(t, err)
	f.create(t, models.KindInquiry, "s1", "l1")
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, seen.get(), 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.Equal(t, 0, f.hub.Len())
}
