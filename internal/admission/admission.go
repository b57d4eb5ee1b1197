// Package admission holds the two request gates: the sliding-window rate
// gate and the failed-read abuse gate. Neither keeps in-process state;
// every decision is made against the shared counter store.
package admission

import "time"

// Decision is the outcome of an admission check. RetryAfter is the
// recommended wait before retrying when not allowed; zero means no
// recommendation.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}
