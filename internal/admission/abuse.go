package admission

import (
	"context"
	"errors"
	"time"

	"imgvault/internal/store"
)

// AbuseConfig controls failed-read tracking and block escalation.
type AbuseConfig struct {
	MaxFailedReads   int
	InactivityWindow time.Duration
	BlockDuration    time.Duration
}

// AbuseGate escalates repeated failed lookups from one identity into a
// timed block. Store errors propagate to the caller, which decides
// whether to fail open or closed.
type AbuseGate struct {
	store store.Store
	cfg   AbuseConfig
	now   func() time.Time
}

func NewAbuseGate(st store.Store, cfg AbuseConfig) *AbuseGate {
	return &AbuseGate{
		store: st,
		cfg:   cfg,
		now:   time.Now,
	}
}

// IsBlocked reports whether the identity is currently blocked and, if so,
// how long until the block expires.
func (g *AbuseGate) IsBlocked(ctx context.Context, identity string) (bool, time.Duration, error) {
	rec, err := g.store.GetAbuseRecord(ctx, identity)
	if errors.Is(err, store.ErrNotFound) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}

	nowMs := g.now().UnixMilli()
	if nowMs < rec.BlockUntil {
		return true, time.Duration(rec.BlockUntil-nowMs) * time.Millisecond, nil
	}
	return false, 0, nil
}

// RecordFailure counts a failed read. The count resets to 1 when a prior
// block has expired or the identity has been inactive past the window;
// reaching the threshold sets a fixed-duration block.
func (g *AbuseGate) RecordFailure(ctx context.Context, identity string) error {
	nowMs := g.now().UnixMilli()

	rec, err := g.store.GetAbuseRecord(ctx, identity)
	newCount := 1
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	case rec.BlockUntil > 0 && nowMs > rec.BlockUntil:
		// Expired block: start over.
	case nowMs > rec.LastAttempt+g.cfg.InactivityWindow.Milliseconds():
		// Inactive past the window: start over.
	default:
		newCount = rec.FailedCount + 1
	}

	return g.store.PutAbuseRecord(ctx, &store.AbuseRecord{
		Identity:    identity,
		FailedCount: newCount,
		BlockUntil:  g.blockUntil(newCount, nowMs),
		LastAttempt: nowMs,
	})
}

// RecordBlockedAccess refreshes last_attempt without counting a failure,
// keeping the inactivity window sliding while the identity is blocked.
func (g *AbuseGate) RecordBlockedAccess(ctx context.Context, identity string) error {
	return g.store.TouchAbuse(ctx, identity, g.now().UnixMilli())
}

func (g *AbuseGate) blockUntil(failedCount int, nowMs int64) int64 {
	if failedCount >= g.cfg.MaxFailedReads {
		return nowMs + g.cfg.BlockDuration.Milliseconds()
	}
	return 0
}
