// Package quota periodically aggregates stored bytes per backing
// account and raises an alert when an account exceeds its ceiling.
package quota

import (
	"context"
	"fmt"
	"strings"
	"time"

	"imgvault/internal/logging"
	"imgvault/internal/store"
)

// Notifier delivers alert messages.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Checker runs the scheduled quota check.
type Checker struct {
	store      store.Store
	limitBytes int64
	interval   time.Duration
	notifier   Notifier
}

func NewChecker(st store.Store, limitBytes int64, interval time.Duration, notifier Notifier) *Checker {
	return &Checker{
		store:      st,
		limitBytes: limitBytes,
		interval:   interval,
		notifier:   notifier,
	}
}

// Run checks on a fixed interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.CheckOnce(ctx); err != nil {
				logging.Quota.Printf("check error: %v", err)
			}
		}
	}
}

// CheckOnce aggregates usage and alerts on accounts over the ceiling.
// An aggregation failure is itself reported through the notifier.
func (c *Checker) CheckOnce(ctx context.Context) error {
	usage, err := c.store.AccountUsage(ctx)
	if err != nil {
		if nerr := c.notifier.Notify(ctx, fmt.Sprintf("Quota check failed: %v", err)); nerr != nil {
			logging.Quota.Printf("failed to send alert: %v", nerr)
		}
		return err
	}

	var over []string
	for _, u := range usage {
		if u.TotalBytes > c.limitBytes {
			over = append(over, fmt.Sprintf("%s: %.2fGB (%d files)", u.Account, gigabytes(u.TotalBytes), u.FileCount))
		}
	}

	if len(over) == 0 {
		logging.Quota.Printf("all %d accounts within quota", len(usage))
		return nil
	}

	message := fmt.Sprintf("Storage quota alert:\n\n%s\n\nLimit: %.0fGB per account",
		strings.Join(over, "\n"), gigabytes(c.limitBytes))
	if err := c.notifier.Notify(ctx, message); err != nil {
		logging.Quota.Printf("failed to send alert: %v", err)
		return err
	}
	return nil
}

func gigabytes(b int64) float64 {
	return float64(b) / (1 << 30)
}
