// Package tasks runs fire-and-forget work decoupled from request
// handling. Task failures go to an error sink and never reach the
// request that scheduled them.
package tasks

import (
	"context"
	"fmt"
	"sync"
)

// ErrorSink receives failures from background tasks.
type ErrorSink func(name string, err error)

// Runner schedules background tasks and tracks them for draining on
// shutdown.
type Runner struct {
	wg   sync.WaitGroup
	ctx  context.Context
	sink ErrorSink
}

// NewRunner creates a runner whose tasks run under ctx and report
// failures to sink. A nil sink drops errors.
func NewRunner(ctx context.Context, sink ErrorSink) *Runner {
	if sink == nil {
		sink = func(string, error) {}
	}
	return &Runner{ctx: ctx, sink: sink}
}

// Go schedules fn on its own goroutine. Panics are recovered and
// reported through the sink.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if v := recover(); v != nil {
				r.sink(name, fmt.Errorf("panic: %v", v))
			}
		}()
		if err := fn(r.ctx); err != nil {
			r.sink(name, err)
		}
	}()
}

// Wait blocks until all scheduled tasks finish or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
