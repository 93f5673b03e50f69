package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lab-scheduler-api/internal/model"
)

// PaginationParams holds pagination parameters for repository queries
type PaginationParams struct {
	Offset int
	Limit  int
}

// BookingFilter narrows ListBookings. Zero fields are ignored.
type BookingFilter struct {
	StudentID *int64
	// StartFrom and StartBefore bound start_time to [StartFrom, StartBefore).
	StartFrom   *time.Time
	StartBefore *time.Time
	// OverlapStart and OverlapEnd select bookings intersecting the window.
	OverlapStart *time.Time
	OverlapEnd   *time.Time
	OpenOnly     bool
	NewestFirst  bool
	Page         *PaginationParams
}

// BookingRepository is an interface for interacting with booking data.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking model.Booking) (*model.Booking, error)
	// CountOverlapping counts open bookings on a computer intersecting [start, end).
	CountOverlapping(ctx context.Context, computerID int64, start, end time.Time) (int, error)
	// FindStudentBookingInWindow returns the earliest-starting open booking of
	// the student intersecting [start, end).
	FindStudentBookingInWindow(ctx context.Context, studentID int64, start, end time.Time) (*model.Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]model.Booking, error)
	// ActivateCurrentBooking marks the scheduled booking covering at as active
	// and reports how many bookings changed.
	ActivateCurrentBooking(ctx context.Context, computerID int64, at time.Time) (int64, error)
	DeleteBooking(ctx context.Context, id int64) error
}

type bookingRepository struct {
	DB DBTX
}

// NewBookingRepository creates a new BookingRepository.
func NewBookingRepository(db DBTX) BookingRepository {
	return &bookingRepository{DB: db}
}

const bookingColumns = `id, computer_id, student_id, start_time, end_time, status, created_at`

const openStatusClause = `status IN ('scheduled', 'active')`

func scanBooking(row rowScanner) (*model.Booking, error) {
	var b model.Booking
	if err := row.Scan(&b.ID, &b.ComputerID, &b.StudentID, &b.StartTime, &b.EndTime, &b.Status, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

// CreateBooking inserts a booking. An overlap caught by the exclusion
// constraint is reported as ErrBookingOverlap.
func (r *bookingRepository) CreateBooking(ctx context.Context, b model.Booking) (*model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if b.Status == "" {
		b.Status = model.BookingScheduled
	}

	query := `
		INSERT INTO bookings (computer_id, student_id, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + bookingColumns

	created, err := scanBooking(r.DB.QueryRowContext(ctx, query,
		b.ComputerID, b.StudentID, b.StartTime.UTC(), b.EndTime.UTC(), b.Status))
	if err != nil {
		if isExclusionViolation(err) {
			return nil, fmt.Errorf("%w: computer %d", ErrBookingOverlap, b.ComputerID)
		}
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}
	return created, nil
}

// CountOverlapping uses the half-open test start_time < end AND end_time > start.
func (r *bookingRepository) CountOverlapping(ctx context.Context, computerID int64, start, end time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT COUNT(*)
		FROM bookings
		WHERE computer_id = $1 AND ` + openStatusClause + `
			AND start_time < $2 AND end_time > $3`

	var count int
	if err := r.DB.QueryRowContext(ctx, query, computerID, end.UTC(), start.UTC()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count overlapping bookings: %w", err)
	}
	return count, nil
}

// FindStudentBookingInWindow returns ErrBookingNotFound when nothing intersects.
func (r *bookingRepository) FindStudentBookingInWindow(ctx context.Context, studentID int64, start, end time.Time) (*model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE student_id = $1 AND ` + openStatusClause + `
			AND start_time < $2 AND end_time > $3
		ORDER BY start_time, id
		LIMIT 1`

	b, err := scanBooking(r.DB.QueryRowContext(ctx, query, studentID, end.UTC(), start.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to find student booking: %w", err)
	}
	return b, nil
}

// ListBookings returns bookings matching filter ordered by start time.
func (r *bookingRepository) ListBookings(ctx context.Context, filter BookingFilter) ([]model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var (
		conditions []string
		args       []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}

	if filter.StudentID != nil {
		add("student_id = $%d", *filter.StudentID)
	}
	if filter.StartFrom != nil {
		add("start_time >= $%d", filter.StartFrom.UTC())
	}
	if filter.StartBefore != nil {
		add("start_time < $%d", filter.StartBefore.UTC())
	}
	if filter.OverlapEnd != nil {
		add("start_time < $%d", filter.OverlapEnd.UTC())
	}
	if filter.OverlapStart != nil {
		add("end_time > $%d", filter.OverlapStart.UTC())
	}
	if filter.OpenOnly {
		conditions = append(conditions, openStatusClause)
	}

	var query strings.Builder
	query.WriteString(`SELECT ` + bookingColumns + ` FROM bookings`)
	if len(conditions) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(conditions, " AND "))
	}
	if filter.NewestFirst {
		query.WriteString(" ORDER BY start_time DESC, id DESC")
	} else {
		query.WriteString(" ORDER BY start_time, id")
	}
	if filter.Page != nil {
		args = append(args, filter.Page.Offset, filter.Page.Limit)
		fmt.Fprintf(&query, " OFFSET $%d LIMIT $%d", len(args)-1, len(args))
	}

	rows, err := r.DB.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	bookings := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return bookings, nil
}

// ActivateCurrentBooking promotes at most one scheduled booking whose
// interval contains at.
func (r *bookingRepository) ActivateCurrentBooking(ctx context.Context, computerID int64, at time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		UPDATE bookings SET status = 'active'
		WHERE id = (
			SELECT id FROM bookings
			WHERE computer_id = $1 AND status = 'scheduled'
				AND start_time <= $2 AND end_time > $2
			ORDER BY start_time
			LIMIT 1
		)`

	result, err := r.DB.ExecContext(ctx, query, computerID, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to activate booking: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// DeleteBooking removes a booking by ID.
func (r *bookingRepository) DeleteBooking(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.DB.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return requireAffected(result, ErrBookingNotFound)
}
