package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu   sync.Mutex
	errs map[string]error
}

func newCaptureSink() *captureSink {
	return &captureSink{errs: make(map[string]error)}
}

func (s *captureSink) sink(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[name] = err
}

func (s *captureSink) get(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs[name]
}

func TestRunnerReportsErrors(t *testing.T) {
	sink := newCaptureSink()
	r := NewRunner(context.Background(), sink.sink)

	boom := errors.New("boom")
	r.Go("failing", func(ctx context.Context) error { return boom })
	r.Go("ok", func(ctx context.Context) error { return nil })

	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if got := sink.get("failing"); !errors.Is(got, boom) {
		t.Errorf("sink got %v, want %v", got, boom)
	}
	if got := sink.get("ok"); got != nil {
		t.Errorf("sink got unexpected error for ok task: %v", got)
	}
}

func TestRunnerRecoversPanics(t *testing.T) {
	sink := newCaptureSink()
	r := NewRunner(context.Background(), sink.sink)

	r.Go("panicking", func(ctx context.Context) error { panic("oops") })

	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if sink.get("panicking") == nil {
		t.Error("expected panic to reach the sink")
	}
}

func TestRunnerWaitTimeout(t *testing.T) {
	r := NewRunner(context.Background(), nil)

	release := make(chan struct{})
	r.Go("slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Wait(ctx); err == nil {
		t.Error("expected Wait to give up on timeout")
	}

	close(release)
	if err := r.Wait(context.Background()); err != nil {
		t.Errorf("Wait after release: %v", err)
	}
}
