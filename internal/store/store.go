package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrNotAdmitted is returned by AdmitRate when the row existed, the
	// window had not expired, and the count was already at the limit.
	ErrNotAdmitted = errors.New("not admitted")
)

// RateRecord is the per-identity sliding-window counter.
// ResetTime is unix milliseconds.
type RateRecord struct {
	Identity  string
	Count     int
	ResetTime int64
}

// AbuseRecord tracks failed lookups per identity. BlockUntil and
// LastAttempt are unix milliseconds; BlockUntil of zero means not blocked.
type AbuseRecord struct {
	Identity    string
	FailedCount int
	BlockUntil  int64
	LastAttempt int64
}

// Image is the metadata row written once per successful upload.
type Image struct {
	Folder     string
	Filename   string
	BackingURL string
	Size       int64
	Account    string
	CreatedAt  time.Time
}

// AccountUsage aggregates stored bytes per backing account.
type AccountUsage struct {
	Account    string
	TotalBytes int64
	FileCount  int
}

// Store is the counter store adapter. All cross-request state lives here;
// no other component retains state across requests.
type Store interface {
	// AdmitRate performs the single-statement conditional admission:
	// insert count=1 if absent; on conflict reset to 1 if the window has
	// expired, else increment only while under max, else leave unchanged.
	// Returns ErrNotAdmitted when the write matched no row.
	AdmitRate(ctx context.Context, identity string, now, resetTime int64, max int) (*RateRecord, error)
	GetRateRecord(ctx context.Context, identity string) (*RateRecord, error)
	PutRateRecord(ctx context.Context, rec *RateRecord) error
	// IncrementRateGuarded increments only if the stored count still equals
	// seenCount and is under max. Reports whether a row changed.
	IncrementRateGuarded(ctx context.Context, identity string, seenCount, max int) (bool, error)

	GetAbuseRecord(ctx context.Context, identity string) (*AbuseRecord, error)
	PutAbuseRecord(ctx context.Context, rec *AbuseRecord) error
	// TouchAbuse refreshes last_attempt without counting a failure.
	TouchAbuse(ctx context.Context, identity string, at int64) error

	SaveImage(ctx context.Context, img *Image) error
	GetImage(ctx context.Context, folder, filename string) (*Image, error)
	AccountUsage(ctx context.Context) ([]AccountUsage, error)

	Close() error
}

// AtomicAdmitter is implemented by stores whose AdmitRate is a true
// single-statement conditional upsert. The rate gate probes for it to
// pick the primary admission strategy.
type AtomicAdmitter interface {
	SupportsAtomicAdmit() bool
}
