package admission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"imgvault/internal/store"
)

func testRateConfig() RateConfig {
	return RateConfig{MaxRequests: 3, Window: 5 * time.Minute}
}

func TestRateGateSequentialAdmission(t *testing.T) {
	st := newGateStore(t)
	clock := newFakeClock()
	cfg := testRateConfig()
	gate := NewRateGate(st, cfg)
	gate.now = clock.Now
	ctx := context.Background()

	for i := 1; i <= cfg.MaxRequests; i++ {
		dec := gate.Admit(ctx, "1.1.1.1")
		if !dec.Allowed {
			t.Fatalf("request %d denied, want admitted", i)
		}
	}

	dec := gate.Admit(ctx, "1.1.1.1")
	if dec.Allowed {
		t.Fatal("request past limit admitted")
	}
	if dec.RetryAfter <= 0 || dec.RetryAfter > cfg.Window {
		t.Errorf("RetryAfter = %v, want in (0, %v]", dec.RetryAfter, cfg.Window)
	}
}

func TestRateGateWindowRollover(t *testing.T) {
	st := newGateStore(t)
	clock := newFakeClock()
	cfg := testRateConfig()
	gate := NewRateGate(st, cfg)
	gate.now = clock.Now
	ctx := context.Background()

	for i := 0; i < cfg.MaxRequests; i++ {
		gate.Admit(ctx, "2.2.2.2")
	}
	if gate.Admit(ctx, "2.2.2.2").Allowed {
		t.Fatal("admitted past limit")
	}

	clock.Advance(cfg.Window + time.Second)

	if !gate.Admit(ctx, "2.2.2.2").Allowed {
		t.Fatal("denied after window rollover")
	}
	rec, err := st.GetRateRecord(ctx, "2.2.2.2")
	if err != nil {
		t.Fatalf("failed to read record: %v", err)
	}
	if rec.Count != 1 {
		t.Errorf("count after rollover = %d, want 1", rec.Count)
	}
	wantReset := clock.Now().Add(cfg.Window).UnixMilli()
	if rec.ResetTime != wantReset {
		t.Errorf("reset_time = %d, want %d", rec.ResetTime, wantReset)
	}
}

func TestRateGateIdentitiesIndependent(t *testing.T) {
	gate := NewRateGate(newGateStore(t), testRateConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		gate.Admit(ctx, "3.3.3.3")
	}
	if gate.Admit(ctx, "3.3.3.3").Allowed {
		t.Fatal("admitted past limit")
	}
	if !gate.Admit(ctx, "4.4.4.4").Allowed {
		t.Fatal("other identity denied")
	}
}

// Concurrent callers racing on one identity within one window must never
// be admitted beyond the limit.
func TestRateGateConcurrentAdmission(t *testing.T) {
	st := newGateStore(t)
	cfg := RateConfig{MaxRequests: 20, Window: 5 * time.Minute}
	gate := NewRateGate(st, cfg)
	ctx := context.Background()

	const attempts = 50
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if gate.Admit(ctx, "5.5.5.5").Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got > int64(cfg.MaxRequests) {
		t.Errorf("admitted %d requests, limit is %d", got, cfg.MaxRequests)
	}
	if admitted.Load() == 0 {
		t.Error("no requests admitted at all")
	}
}

// noAtomicStore hides the store's conditional-upsert capability so the
// gate runs on the fallback strategy alone.
type noAtomicStore struct {
	store.Store
}

func (s *noAtomicStore) SupportsAtomicAdmit() bool { return false }

func TestRateGateFallbackOnly(t *testing.T) {
	st := newGateStore(t)
	cfg := testRateConfig()
	gate := NewRateGate(&noAtomicStore{Store: st}, cfg)
	ctx := context.Background()

	if len(gate.strategies) != 1 {
		t.Fatalf("expected a single fallback strategy, got %d", len(gate.strategies))
	}

	for i := 1; i <= cfg.MaxRequests; i++ {
		if !gate.Admit(ctx, "6.6.6.6").Allowed {
			t.Fatalf("fallback denied request %d", i)
		}
	}
	dec := gate.Admit(ctx, "6.6.6.6")
	if dec.Allowed {
		t.Fatal("fallback admitted past limit")
	}
	if dec.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", dec.RetryAfter)
	}
}

// flakyAdmitStore claims atomic support but fails the upsert, forcing
// per-request degradation to the fallback.
type flakyAdmitStore struct {
	store.Store
	admitCalls atomic.Int64
}

func (s *flakyAdmitStore) SupportsAtomicAdmit() bool { return true }

func (s *flakyAdmitStore) AdmitRate(ctx context.Context, identity string, now, resetTime int64, max int) (*store.RateRecord, error) {
	s.admitCalls.Add(1)
	return nil, errors.New("conflict semantics unavailable")
}

func TestRateGateDegradesToFallback(t *testing.T) {
	st := newGateStore(t)
	flaky := &flakyAdmitStore{Store: st}
	gate := NewRateGate(flaky, testRateConfig())
	ctx := context.Background()

	if !gate.Admit(ctx, "7.7.7.7").Allowed {
		t.Fatal("expected fallback admission after primary failure")
	}
	if flaky.admitCalls.Load() == 0 {
		t.Fatal("primary strategy was never tried")
	}
	rec, err := st.GetRateRecord(ctx, "7.7.7.7")
	if err != nil {
		t.Fatalf("failed to read record: %v", err)
	}
	if rec.Count != 1 {
		t.Errorf("count = %d, want 1", rec.Count)
	}
}

// deadStore fails every operation.
type deadStore struct{}

var errDead = errors.New("store unavailable")

func (deadStore) AdmitRate(context.Context, string, int64, int64, int) (*store.RateRecord, error) {
	return nil, errDead
}
func (deadStore) GetRateRecord(context.Context, string) (*store.RateRecord, error) {
	return nil, errDead
}
func (deadStore) PutRateRecord(context.Context, *store.RateRecord) error { return errDead }
func (deadStore) IncrementRateGuarded(context.Context, string, int, int) (bool, error) {
	return false, errDead
}
func (deadStore) GetAbuseRecord(context.Context, string) (*store.AbuseRecord, error) {
	return nil, errDead
}
func (deadStore) PutAbuseRecord(context.Context, *store.AbuseRecord) error { return errDead }
func (deadStore) TouchAbuse(context.Context, string, int64) error          { return errDead }
func (deadStore) SaveImage(context.Context, *store.Image) error            { return errDead }
func (deadStore) GetImage(context.Context, string, string) (*store.Image, error) {
	return nil, errDead
}
func (deadStore) AccountUsage(context.Context) ([]store.AccountUsage, error) { return nil, errDead }
func (deadStore) Close() error                                               { return nil }

func TestRateGateDeniesWhenStoreDown(t *testing.T) {
	gate := NewRateGate(deadStore{}, testRateConfig())

	dec := gate.Admit(context.Background(), "8.8.8.8")
	if dec.Allowed {
		t.Fatal("admitted with store unavailable")
	}
	if dec.RetryAfter != testRateConfig().Window {
		t.Errorf("RetryAfter = %v, want full window", dec.RetryAfter)
	}
}
