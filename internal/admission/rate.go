package admission

import (
	"context"
	"errors"
	"time"

	"imgvault/internal/logging"
	"imgvault/internal/store"
)

// RateConfig bounds admitted requests per identity per window.
type RateConfig struct {
	MaxRequests int
	Window      time.Duration
}

// admitStrategy is one way of deciding admission against the store. The
// gate tries strategies in order; a strategy error moves on to the next.
type admitStrategy interface {
	admit(ctx context.Context, identity string, now time.Time) (Decision, error)
}

// RateGate admits at most MaxRequests per identity per window. The
// primary strategy is a single conditional upsert on the store; if the
// store cannot express that (or the statement fails at runtime), a
// read-then-guarded-write fallback preserves availability at the cost of
// exactness.
type RateGate struct {
	store      store.Store
	cfg        RateConfig
	strategies []admitStrategy
	now        func() time.Time
}

func NewRateGate(st store.Store, cfg RateConfig) *RateGate {
	g := &RateGate{
		store: st,
		cfg:   cfg,
		now:   time.Now,
	}

	atomic := false
	if aa, ok := st.(store.AtomicAdmitter); ok {
		atomic = aa.SupportsAtomicAdmit()
	}
	if atomic {
		g.strategies = []admitStrategy{
			&primaryAdmission{store: st, cfg: cfg},
			&fallbackAdmission{store: st, cfg: cfg},
		}
	} else {
		logging.Store.Printf("store lacks atomic admission, rate limiting is best-effort")
		g.strategies = []admitStrategy{&fallbackAdmission{store: st, cfg: cfg}}
	}
	return g
}

// Admit decides whether to admit one request from the identity. It never
// returns an error: when every strategy fails the request is denied and
// the degradation is logged.
func (g *RateGate) Admit(ctx context.Context, identity string) Decision {
	now := g.now()
	for _, s := range g.strategies {
		dec, err := s.admit(ctx, identity, now)
		if err == nil {
			return dec
		}
		logging.Store.Printf("admission strategy failed for %s: %v", identity, err)
	}
	return Decision{Allowed: false, RetryAfter: g.cfg.Window}
}

// retryAfter estimates the wait until the identity's window resets.
func retryAfter(ctx context.Context, st store.Store, identity string, now time.Time, window time.Duration) time.Duration {
	rec, err := st.GetRateRecord(ctx, identity)
	if err != nil {
		return window
	}
	remaining := time.Duration(rec.ResetTime-now.UnixMilli()) * time.Millisecond
	if remaining < 0 {
		return 0
	}
	return remaining
}

// primaryAdmission is the correctness-bearing path: one conditional
// upsert decides insert, rollover, increment, or rejection atomically.
type primaryAdmission struct {
	store store.Store
	cfg   RateConfig
}

func (p *primaryAdmission) admit(ctx context.Context, identity string, now time.Time) (Decision, error) {
	nowMs := now.UnixMilli()
	resetMs := now.Add(p.cfg.Window).UnixMilli()

	_, err := p.store.AdmitRate(ctx, identity, nowMs, resetMs, p.cfg.MaxRequests)
	if errors.Is(err, store.ErrNotAdmitted) {
		return Decision{
			Allowed:    false,
			RetryAfter: retryAfter(ctx, p.store, identity, now, p.cfg.Window),
		}, nil
	}
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: true}, nil
}

// fallbackAdmission reads the record and applies a guarded update. The
// guard only catches same-count interleavings: two writers can both
// observe count < max before either commits, so this path can overadmit
// under true concurrency. It preserves availability, not exactness.
type fallbackAdmission struct {
	store store.Store
	cfg   RateConfig
}

func (f *fallbackAdmission) admit(ctx context.Context, identity string, now time.Time) (Decision, error) {
	nowMs := now.UnixMilli()
	resetMs := now.Add(f.cfg.Window).UnixMilli()

	rec, err := f.store.GetRateRecord(ctx, identity)
	if errors.Is(err, store.ErrNotFound) || (err == nil && nowMs > rec.ResetTime) {
		err := f.store.PutRateRecord(ctx, &store.RateRecord{
			Identity:  identity,
			Count:     1,
			ResetTime: resetMs,
		})
		if err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: true}, nil
	}
	if err != nil {
		return Decision{}, err
	}

	if rec.Count >= f.cfg.MaxRequests {
		return Decision{
			Allowed:    false,
			RetryAfter: time.Duration(rec.ResetTime-nowMs) * time.Millisecond,
		}, nil
	}

	changed, err := f.store.IncrementRateGuarded(ctx, identity, rec.Count, f.cfg.MaxRequests)
	if err != nil {
		return Decision{}, err
	}
	if !changed {
		return Decision{
			Allowed:    false,
			RetryAfter: retryAfter(ctx, f.store, identity, now, f.cfg.Window),
		}, nil
	}
	return Decision{Allowed: true}, nil
}
