package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Custom errors for better error handling
var (
	ErrComputerNotFound  = errors.New("computer not found")
	ErrDuplicateComputer = errors.New("computer with this name already exists")
	ErrStudentNotFound   = errors.New("student not found")
	ErrDuplicateStudent  = errors.New("student ID or email already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUser     = errors.New("username or email already registered")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrBookingOverlap    = errors.New("booking overlaps an existing booking on this computer")
)

// PostgreSQL error codes the repositories translate.
const (
	pqUniqueViolation    pq.ErrorCode = "23505"
	pqExclusionViolation pq.ErrorCode = "23P01"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store groups the repositories over one connection or transaction.
type Store interface {
	Computers() ComputerRepository
	Students() StudentRepository
	Users() UserRepository
	Bookings() BookingRepository

	// WithTx runs fn inside a transaction. The Store passed to fn reads and
	// writes through that transaction. Nested calls reuse it.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type sqlStore struct {
	db   *sql.DB
	exec DBTX
	inTx bool
}

// NewStore creates a Store backed by db.
func NewStore(db *sql.DB) Store {
	return &sqlStore{db: db, exec: db}
}

func (s *sqlStore) Computers() ComputerRepository { return NewComputerRepository(s.exec) }
func (s *sqlStore) Students() StudentRepository   { return NewStudentRepository(s.exec) }
func (s *sqlStore) Users() UserRepository         { return NewUserRepository(s.exec) }
func (s *sqlStore) Bookings() BookingRepository   { return NewBookingRepository(s.exec) }

// WithTx commits when fn returns nil and rolls back otherwise.
func (s *sqlStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&sqlStore{db: s.db, exec: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if isExclusionViolation(err) {
			return fmt.Errorf("%w: %v", ErrBookingOverlap, err)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports a duplicate key error from PostgreSQL.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return strings.Contains(err.Error(), "duplicate key value violates unique constraint")
}

// isExclusionViolation reports a violated exclusion constraint, used for
// overlapping bookings.
func isExclusionViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqExclusionViolation
	}
	return strings.Contains(err.Error(), "violates exclusion constraint")
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timeFromNull(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
