package images

import (
	"context"
	"time"
)

// attemptWithRetry runs fn up to attempts times, giving each attempt its
// own timeout and sleeping a fixed delay between attempts. Earlier
// failures are swallowed; the last attempt's error is returned.
func attemptWithRetry(ctx context.Context, attempts int, delay, timeout time.Duration, sleep func(time.Duration), fn func(ctx context.Context) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			sleep(delay)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
	}
	return err
}
