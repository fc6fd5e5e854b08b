package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/pkg/config"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

// DBTX is the query surface shared by *sqlx.DB and *sqlx.Tx.
type DBTX interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

type queryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// Store wraps the database handle with bounded timeouts, retry of transient
// failures and translation of constraint violations into typed errors.
type Store struct {
	db       *sqlx.DB
	cfg      config.StorageConfig
	observer queryObserver
	logger   *zap.Logger
}

// StoreOption configures the store.
type StoreOption func(*Store)

// WithQueryObserver records the duration of every storage call.
func WithQueryObserver(observer queryObserver) StoreOption {
	return func(s *Store) {
		if observer != nil {
			s.observer = observer
		}
	}
}

// WithStoreLogger overrides the logger.
func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore constructs a Store.
func NewStore(db *sqlx.DB, cfg config.StorageConfig, opts ...StoreOption) *Store {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	s := &Store{db: db, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Do runs fn against the pool.
func (s *Store) Do(ctx context.Context, label string, fn func(ctx context.Context, q DBTX) error) error {
	return s.run(ctx, label, func(ctx context.Context) error {
		return fn(ctx, s.db)
	})
}

// WithTx runs fn inside a transaction that is committed only when fn returns
// nil. A retried attempt starts a fresh transaction, so a failed or cancelled
// attempt never leaves partial state behind.
func (s *Store) WithTx(ctx context.Context, label string, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return s.run(ctx, label, func(ctx context.Context) error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if err := fn(ctx, tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
}

// Get loads a single row into dest.
func (s *Store) Get(ctx context.Context, label string, dest interface{}, query string, args ...interface{}) error {
	return s.Do(ctx, label, func(ctx context.Context, q DBTX) error {
		return q.GetContext(ctx, dest, query, args...)
	})
}

// Select loads all matching rows into dest.
func (s *Store) Select(ctx context.Context, label string, dest interface{}, query string, args ...interface{}) error {
	return s.Do(ctx, label, func(ctx context.Context, q DBTX) error {
		return q.SelectContext(ctx, dest, query, args...)
	})
}

// NamedExec runs a named insert or update and returns the affected row count.
func (s *Store) NamedExec(ctx context.Context, label, query string, arg interface{}) (int64, error) {
	var affected int64
	err := s.Do(ctx, label, func(ctx context.Context, q DBTX) error {
		res, err := q.NamedExecContext(ctx, query, arg)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func (s *Store) run(ctx context.Context, label string, attempt func(ctx context.Context) error) error {
	start := time.Now()
	defer func() {
		if s.observer != nil {
			s.observer.ObserveDBQuery(label, time.Since(start))
		}
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryBaseDelay
	b.MaxInterval = 10 * s.cfg.RetryBaseDelay

	tries := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		tries++
		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()

		err := attempt(attemptCtx)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			err = &attemptTimeoutError{timeout: s.cfg.Timeout, err: err}
		}
		if isTransient(err) {
			s.logger.Debug("transient storage failure", zap.String("op", label), zap.Int("attempt", tries), zap.Error(err))
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.cfg.MaxAttempts)))
	if err == nil {
		return nil
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", label, ctx.Err())
	}
	if isTransient(err) {
		s.logger.Warn("storage unavailable", zap.String("op", label), zap.Int("attempts", tries), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status,
			fmt.Sprintf("storage unavailable after %d attempts", tries))
	}
	return translate(err)
}

// attemptTimeoutError marks a failure caused by the per-attempt deadline,
// whatever the driver reported for the cancelled statement.
type attemptTimeoutError struct {
	timeout time.Duration
	err     error
}

func (e *attemptTimeoutError) Error() string {
	return fmt.Sprintf("attempt timed out after %s: %v", e.timeout, e.err)
}

func (e *attemptTimeoutError) Unwrap() error { return e.err }

// isTransient reports failures worth retrying: attempt timeouts, lost
// connections, serialization failures and deadlocks.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	var timeout *attemptTimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "57014", "57P01", "53300":
			return true
		}
		return pqErr.Code.Class() == "08"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// translate maps check, unique and foreign key violations raised by the
// database onto the typed error taxonomy. Other errors pass through unchanged.
func translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	details := map[string]interface{}{"constraint": pqErr.Constraint}
	switch pqErr.Code {
	case "23514":
		return appErrors.WithDetails(appErrors.ErrInvalidField, fmt.Sprintf("value rejected by %s", pqErr.Constraint), details)
	case "23505":
		if strings.HasPrefix(pqErr.Constraint, "registrations_active") {
			return appErrors.WithDetails(appErrors.ErrDuplicateReg, "", details)
		}
		return appErrors.WithDetails(appErrors.ErrConflict, "unique constraint violated", details)
	case "23503":
		return appErrors.WithDetails(appErrors.ErrNotFound, "referenced entity does not exist", details)
	case "22P02":
		return appErrors.Clone(appErrors.ErrValidation, "malformed identifier")
	}
	return err
}
