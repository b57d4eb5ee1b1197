package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"imgvault/internal/logging"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db          *sql.DB
	atomicAdmit bool
}

// NewSQLiteStore opens (or creates) a SQLite-backed store and probes
// whether the conditional-upsert admission statement is supported.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	s.atomicAdmit = s.probeAtomicAdmit()
	return s, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS images (
			folder TEXT NOT NULL,
			filename TEXT NOT NULL,
			backing_url TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			account TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (folder, filename)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rate_limits (
			ip TEXT PRIMARY KEY,
			count INTEGER NOT NULL,
			reset_time INTEGER NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS abuse_blocks (
			ip TEXT PRIMARY KEY,
			failed_count INTEGER NOT NULL,
			block_until INTEGER NOT NULL,
			last_attempt INTEGER NOT NULL
		)
	`)
	return err
}

// probeAtomicAdmit runs the conditional upsert once against a sentinel
// identity. RETURNING needs SQLite >= 3.35; older runtimes fall back to
// the read-then-guarded-write path.
func (s *SQLiteStore) probeAtomicAdmit() bool {
	const probeIdentity = "\x00admit-probe"
	_, err := s.AdmitRate(context.Background(), probeIdentity, 0, 1, 1)
	if _, cleanupErr := s.db.Exec(`DELETE FROM rate_limits WHERE ip = ?`, probeIdentity); cleanupErr != nil {
		logging.Store.Printf("failed to clean up admission sentinel row: %v", cleanupErr)
	}

	if err == nil || errors.Is(err, ErrNotAdmitted) {
		return true
	}
	if statementUnsupported(err) {
		logging.Store.Printf("conditional admission statement unsupported: %v", err)
		return false
	}
	// A transient failure here (a locked file, say) must not demote
	// admission for the life of the process; runtime errors on the
	// primary path already fall through to the fallback per call.
	logging.Store.Printf("admission capability check inconclusive, keeping atomic path: %v", err)
	return true
}

// statementUnsupported reports whether the error means the runtime could
// not compile the statement at all, as opposed to failing to execute it.
func statementUnsupported(err error) bool {
	return strings.Contains(err.Error(), "syntax error")
}

// SupportsAtomicAdmit implements AtomicAdmitter.
func (s *SQLiteStore) SupportsAtomicAdmit() bool {
	return s.atomicAdmit
}

func (s *SQLiteStore) AdmitRate(ctx context.Context, identity string, now, resetTime int64, max int) (*RateRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO rate_limits (ip, count, reset_time)
		VALUES (?, 1, ?)
		ON CONFLICT(ip) DO UPDATE SET
			count = CASE
				WHEN reset_time <= ? THEN 1
				WHEN count < ? THEN count + 1
				ELSE count
			END,
			reset_time = CASE
				WHEN reset_time <= ? THEN ?
				ELSE reset_time
			END
		WHERE rate_limits.reset_time <= ? OR rate_limits.count < ?
		RETURNING count, reset_time
	`,
		identity, resetTime,
		now, max,
		now, resetTime,
		now, max,
	)

	rec := &RateRecord{Identity: identity}
	err := row.Scan(&rec.Count, &rec.ResetTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotAdmitted
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) GetRateRecord(ctx context.Context, identity string) (*RateRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT count, reset_time FROM rate_limits WHERE ip = ?
	`, identity)

	rec := &RateRecord{Identity: identity}
	err := row.Scan(&rec.Count, &rec.ResetTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) PutRateRecord(ctx context.Context, rec *RateRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO rate_limits (ip, count, reset_time) VALUES (?, ?, ?)
	`, rec.Identity, rec.Count, rec.ResetTime)
	return err
}

func (s *SQLiteStore) IncrementRateGuarded(ctx context.Context, identity string, seenCount, max int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE rate_limits
		SET count = count + 1
		WHERE ip = ? AND count = ? AND count < ?
	`, identity, seenCount, max)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *SQLiteStore) GetAbuseRecord(ctx context.Context, identity string) (*AbuseRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT failed_count, block_until, last_attempt FROM abuse_blocks WHERE ip = ?
	`, identity)

	rec := &AbuseRecord{Identity: identity}
	err := row.Scan(&rec.FailedCount, &rec.BlockUntil, &rec.LastAttempt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) PutAbuseRecord(ctx context.Context, rec *AbuseRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO abuse_blocks (ip, failed_count, block_until, last_attempt)
		VALUES (?, ?, ?, ?)
	`, rec.Identity, rec.FailedCount, rec.BlockUntil, rec.LastAttempt)
	return err
}

func (s *SQLiteStore) TouchAbuse(ctx context.Context, identity string, at int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE abuse_blocks SET last_attempt = ? WHERE ip = ?
	`, at, identity)
	return err
}

func (s *SQLiteStore) SaveImage(ctx context.Context, img *Image) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO images (folder, filename, backing_url, file_size, account, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, img.Folder, img.Filename, img.BackingURL, img.Size, img.Account, img.CreatedAt)
	return err
}

func (s *SQLiteStore) GetImage(ctx context.Context, folder, filename string) (*Image, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT folder, filename, backing_url, file_size, account, created_at
		FROM images WHERE folder = ? AND filename = ?
	`, folder, filename)

	var img Image
	err := row.Scan(&img.Folder, &img.Filename, &img.BackingURL, &img.Size, &img.Account, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (s *SQLiteStore) AccountUsage(ctx context.Context) ([]AccountUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account, COALESCE(SUM(file_size), 0), COUNT(*)
		FROM images
		GROUP BY account
		ORDER BY SUM(file_size) DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var usage []AccountUsage
	for rows.Next() {
		var u AccountUsage
		if err := rows.Scan(&u.Account, &u.TotalBytes, &u.FileCount); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
