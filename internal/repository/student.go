package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lab-scheduler-api/internal/model"
)

// StudentRepository is an interface for interacting with student data.
type StudentRepository interface {
	CreateStudent(ctx context.Context, student model.Student) (*model.Student, error)
	// FindStudentByIdentity matches either identifier case-insensitively.
	FindStudentByIdentity(ctx context.Context, studentID, email string) (*model.Student, error)
	GetAllStudents(ctx context.Context) ([]model.Student, error)
	GetStudentByID(ctx context.Context, id int64) (*model.Student, error)
	LockStudent(ctx context.Context, id int64) (*model.Student, error)
	GetStudentByUserID(ctx context.Context, userID int64) (*model.Student, error)
	UpdateStudentQuota(ctx context.Context, id int64, quota *model.UsageQuota) error
	SetStudentActive(ctx context.Context, id int64, active bool) error
	DeleteStudent(ctx context.Context, id int64) error
}

type studentRepository struct {
	DB DBTX
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(db DBTX) StudentRepository {
	return &studentRepository{DB: db}
}

const studentColumns = `id, name, email, student_id, user_id, study, department, registered_at, active,
	usage_days_total, usage_days_remaining, usage_last_decrement_at`

func scanStudent(row rowScanner) (*model.Student, error) {
	var (
		s             model.Student
		userID        sql.NullInt64
		study, dept   sql.NullString
		registeredAt  sql.NullTime
		total, remain sql.NullInt32
		lastDecrement sql.NullTime
	)
	err := row.Scan(&s.ID, &s.Name, &s.Email, &s.StudentID, &userID, &study, &dept, &registeredAt, &s.Active,
		&total, &remain, &lastDecrement)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		id := userID.Int64
		s.UserID = &id
	}
	s.Study = stringPtr(study)
	s.Department = stringPtr(dept)
	s.RegisteredAt = timeFromNull(registeredAt)
	if total.Valid || remain.Valid {
		s.Quota = &model.UsageQuota{
			Total:           int(total.Int32),
			Remaining:       int(remain.Int32),
			LastDecrementAt: timeFromNull(lastDecrement),
		}
	}
	return &s, nil
}

func quotaArgs(q *model.UsageQuota) (total, remaining sql.NullInt32, lastDecrement sql.NullTime) {
	if q == nil {
		return
	}
	total = sql.NullInt32{Int32: int32(q.Total), Valid: true}
	remaining = sql.NullInt32{Int32: int32(q.Remaining), Valid: true}
	if q.LastDecrementAt != nil {
		lastDecrement = sql.NullTime{Time: q.LastDecrementAt.UTC(), Valid: true}
	}
	return
}

// CreateStudent inserts a student and returns the stored row.
func (r *studentRepository) CreateStudent(ctx context.Context, s model.Student) (*model.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var userID sql.NullInt64
	if s.UserID != nil {
		userID = sql.NullInt64{Int64: *s.UserID, Valid: true}
	}
	var registeredAt sql.NullTime
	if s.RegisteredAt != nil {
		registeredAt = sql.NullTime{Time: s.RegisteredAt.UTC(), Valid: true}
	}
	total, remaining, lastDecrement := quotaArgs(s.Quota)

	query := `
		INSERT INTO students (name, email, student_id, user_id, study, department, registered_at, active,
			usage_days_total, usage_days_remaining, usage_last_decrement_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + studentColumns

	created, err := scanStudent(r.DB.QueryRowContext(ctx, query,
		s.Name, s.Email, s.StudentID, userID, nullString(s.Study), nullString(s.Department), registeredAt, s.Active,
		total, remaining, lastDecrement,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStudent, s.StudentID)
		}
		return nil, fmt.Errorf("failed to create student: %w", err)
	}
	return created, nil
}

// FindStudentByIdentity returns the first student whose student ID or
// email matches, ignoring case and surrounding whitespace.
func (r *studentRepository) FindStudentByIdentity(ctx context.Context, studentID, email string) (*model.Student, error) {
	query := `
		SELECT ` + studentColumns + `
		FROM students
		WHERE lower(student_id) = lower(trim($1)) OR lower(email) = lower(trim($2))
		ORDER BY id
		LIMIT 1`
	return r.getStudent(ctx, query, studentID, email)
}

// GetAllStudents retrieves all students ordered by name.
func (r *studentRepository) GetAllStudents(ctx context.Context) ([]model.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rows, err := r.DB.QueryContext(ctx, `SELECT `+studentColumns+` FROM students ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	students := []model.Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		students = append(students, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return students, nil
}

// GetStudentByID retrieves a single student by its ID.
func (r *studentRepository) GetStudentByID(ctx context.Context, id int64) (*model.Student, error) {
	return r.getStudent(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
}

// LockStudent retrieves a student with SELECT ... FOR UPDATE.
func (r *studentRepository) LockStudent(ctx context.Context, id int64) (*model.Student, error) {
	return r.getStudent(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1 FOR UPDATE`, id)
}

// GetStudentByUserID retrieves the student linked to a login account.
func (r *studentRepository) GetStudentByUserID(ctx context.Context, userID int64) (*model.Student, error) {
	return r.getStudent(ctx, `SELECT `+studentColumns+` FROM students WHERE user_id = $1`, userID)
}

func (r *studentRepository) getStudent(ctx context.Context, query string, args ...interface{}) (*model.Student, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s, err := scanStudent(r.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return s, nil
}

// UpdateStudentQuota replaces the usage quota columns. A nil quota clears them.
func (r *studentRepository) UpdateStudentQuota(ctx context.Context, id int64, quota *model.UsageQuota) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	total, remaining, lastDecrement := quotaArgs(quota)
	query := `
		UPDATE students
		SET usage_days_total = $1, usage_days_remaining = $2, usage_last_decrement_at = $3
		WHERE id = $4`

	result, err := r.DB.ExecContext(ctx, query, total, remaining, lastDecrement, id)
	if err != nil {
		return fmt.Errorf("failed to update student quota: %w", err)
	}
	return requireAffected(result, ErrStudentNotFound)
}

// SetStudentActive flips the active flag.
func (r *studentRepository) SetStudentActive(ctx context.Context, id int64, active bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.DB.ExecContext(ctx, `UPDATE students SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("failed to update student: %w", err)
	}
	return requireAffected(result, ErrStudentNotFound)
}

// DeleteStudent removes a student. Its bookings are removed by cascade.
func (r *studentRepository) DeleteStudent(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.DB.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete student: %w", err)
	}
	return requireAffected(result, ErrStudentNotFound)
}
