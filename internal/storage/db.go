package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3" // Register SQLite driver
	pkgerrors "github.com/rossigee/jobtracker/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const (
	defaultBusyTimeout  = 5 * time.Second
	defaultMaxOpenConns = 5
)

// Store provides SQLite-based persistence for applications and their logs
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
	mu     sync.RWMutex
}

type options struct {
	busyTimeout  time.Duration
	maxOpenConns int
	now          func() time.Time
}

// Option configures a Store
type Option func(*options)

// WithBusyTimeout sets how long a statement waits on a locked database
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// WithMaxOpenConns caps the connection pool. In-memory databases always use one connection.
func WithMaxOpenConns(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOpenConns = n
		}
	}
}

// WithClock overrides the time source used for created_at and timestamp columns
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// NewStore initializes a new SQLite store
func NewStore(dbPath string, opts ...Option) (*Store, error) {
	cfg := options{
		busyTimeout:  defaultBusyTimeout,
		maxOpenConns: defaultMaxOpenConns,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	inMemory := isInMemory(dbPath)
	if !inMemory {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	// Open or create database
	db, err := sql.Open("sqlite3", buildDSN(dbPath, cfg.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.PingContext(context.Background()); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to ping database: %w", err), db.Close())
	}

	// Configure connection pool. Every connection to ":memory:" is a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(cfg.maxOpenConns)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(time.Hour)
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
		now:    cfg.now,
	}

	// Initialize schema
	if err := store.initSchema(context.Background()); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close database connection after init error")
		}
		return nil, err
	}

	logrus.WithField("db_path", dbPath).Info("Initialized tracker storage database")
	return store, nil
}

func isInMemory(dbPath string) bool {
	return dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
}

// buildDSN enables foreign keys on every pooled connection and makes each
// transaction take the write lock up front, so a parent check and the
// dependent insert cannot interleave with another writer.
func buildDSN(dbPath string, busyTimeout time.Duration) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_foreign_keys=on&_busy_timeout=%d&_txlock=immediate",
		dbPath, sep, busyTimeout.Milliseconds())
}

// Path returns the database path the store was opened with
func (s *Store) Path() string {
	return s.dbPath
}

// Ping verifies the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to ping database")
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}
	return nil
}

// withTx runs fn inside one transaction and commits when fn succeeds
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				logrus.WithError(rollbackErr).Warn("Failed to rollback transaction")
				err = multierr.Append(err, rollbackErr)
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to commit transaction")
	}
	committed = true

	return nil
}

// withReadTx runs fn inside a deferred transaction on one pooled connection.
// It only takes a shared lock, so reads are not blocked by another writer's
// reserved lock the way an immediate transaction would be.
func (s *Store) withReadTx(ctx context.Context, fn func(conn *sql.Conn) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to acquire connection")
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && !errors.Is(closeErr, sql.ErrConnDone) {
			logrus.WithError(closeErr).Warn("Failed to release database connection")
		}
	}()

	if _, err := conn.ExecContext(ctx, "BEGIN DEFERRED"); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to begin read transaction")
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if _, rollbackErr := conn.ExecContext(context.Background(), "ROLLBACK"); rollbackErr != nil {
			logrus.WithError(rollbackErr).Warn("Failed to rollback read transaction")
			err = multierr.Append(err, rollbackErr)
			// Discard the connection instead of pooling it mid-transaction
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}()

	if err := fn(conn); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to commit read transaction")
	}
	committed = true

	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// requireApplication fails with NOT_FOUND unless the application exists
func requireApplication(ctx context.Context, q queryer, applicationID int64) error {
	var exists bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM applications WHERE application_id = ?)",
		applicationID,
	).Scan(&exists)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to check application existence")
	}
	if !exists {
		return applicationNotFound(applicationID)
	}
	return nil
}

func applicationNotFound(applicationID int64) error {
	return pkgerrors.Newf(pkgerrors.CodeNotFound, "application not found: %d", applicationID)
}

// nextTimestamp returns the current time in milliseconds, clamped so it is
// never earlier than the latest value returned by the given MAX() query.
func (s *Store) nextTimestamp(ctx context.Context, tx *sql.Tx, maxQuery string, args ...any) (int64, error) {
	now := s.now().UnixMilli()

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx, maxQuery, args...).Scan(&last); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "failed to read latest timestamp")
	}
	if last.Valid && last.Int64 > now {
		return last.Int64, nil
	}
	return now, nil
}

func fromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// requireText trims value and fails with VALIDATION_ERROR when nothing is left
func requireText(field, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s is required", field).
			WithDetails(map[string]string{field: "is required"})
	}
	return trimmed, nil
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// closeRows closes a result set, logging instead of failing the read
func closeRows(rows *sql.Rows) {
	if closeErr := rows.Close(); closeErr != nil {
		logrus.WithError(closeErr).Warn("Failed to close database rows")
	}
}

// IsTransient reports whether err comes from SQLite lock contention, which a
// later attempt can get past
func IsTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
