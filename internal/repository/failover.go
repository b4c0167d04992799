package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"messbook/internal/domain"
	"messbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverLedger uses the primary ledger until it errors, then the fallback
// for at least recoveryInterval before trying the primary again.
type FailoverLedger struct {
	primary  domain.StatusLedger
	fallback domain.StatusLedger
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverLedger(primary, fallback domain.StatusLedger, logger *zerolog.Logger) *FailoverLedger {
	return &FailoverLedger{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverLedger) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary ledger failed, falling back to memory")
	r.isDown.Store(true)
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// usePrimary reports whether the primary should be tried now.
func (r *FailoverLedger) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverLedger) Advance(ctx context.Context, recordID string, status models.Status, terminal bool) (bool, error) {
	if r.usePrimary() {
		ok, err := r.primary.Advance(ctx, recordID, status, terminal)
		if err == nil {
			if r.isDown.CompareAndSwap(true, false) {
				r.logger.Info().Msg("Primary ledger recovered")
			}
			return ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.Advance(ctx, recordID, status, terminal)
}

func (r *FailoverLedger) LastSeen(ctx context.Context, recordID string) (models.Status, bool, error) {
	if r.usePrimary() {
		status, ok, err := r.primary.LastSeen(ctx, recordID)
		if err == nil {
			r.isDown.Store(false)
			return status, ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.LastSeen(ctx, recordID)
}

func (r *FailoverLedger) Forget(ctx context.Context, recordID string) error {
	// fallback чистим всегда: там могли остаться записи с периода отказа
	_ = r.fallback.Forget(ctx, recordID)
	if r.usePrimary() {
		err := r.primary.Forget(ctx, recordID)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return nil
}
