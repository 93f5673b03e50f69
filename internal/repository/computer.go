package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lab-scheduler-api/internal/model"
)

// ComputerRepository is an interface for interacting with computer data.
type ComputerRepository interface {
	CreateComputer(ctx context.Context, name string) (*model.Computer, error)
	GetAllComputers(ctx context.Context) ([]model.Computer, error)
	GetComputerByID(ctx context.Context, id int64) (*model.Computer, error)
	// LockComputer reads the computer with a row lock held until the
	// surrounding transaction ends.
	LockComputer(ctx context.Context, id int64) (*model.Computer, error)
	UpdateComputerStatus(ctx context.Context, id int64, status model.ComputerStatus, currentUser *string, at time.Time) error
	DeleteComputer(ctx context.Context, id int64) error
}

// computerRepository is the concrete implementation of the ComputerRepository interface.
type computerRepository struct {
	DB DBTX
}

// NewComputerRepository creates a new ComputerRepository.
func NewComputerRepository(db DBTX) ComputerRepository {
	return &computerRepository{DB: db}
}

const computerColumns = `id, name, status, occupant, last_updated`

func scanComputer(row rowScanner) (*model.Computer, error) {
	var (
		c        model.Computer
		occupant sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Status, &occupant, &c.LastUpdated); err != nil {
		return nil, err
	}
	c.CurrentUser = stringPtr(occupant)
	c.LastUpdated = c.LastUpdated.UTC()
	return &c, nil
}

// CreateComputer adds a new available computer.
func (r *computerRepository) CreateComputer(ctx context.Context, name string) (*model.Computer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO computers (name, status)
		VALUES ($1, $2)
		RETURNING ` + computerColumns

	c, err := scanComputer(r.DB.QueryRowContext(ctx, query, name, model.ComputerAvailable))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateComputer, name)
		}
		return nil, fmt.Errorf("failed to create computer: %w", err)
	}
	return c, nil
}

// GetAllComputers retrieves all computers ordered by name.
func (r *computerRepository) GetAllComputers(ctx context.Context) ([]model.Computer, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `SELECT ` + computerColumns + ` FROM computers ORDER BY name, id`

	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query computers: %w", err)
	}
	defer rows.Close()

	computers := []model.Computer{}
	for rows.Next() {
		c, err := scanComputer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan computer: %w", err)
		}
		computers = append(computers, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return computers, nil
}

// GetComputerByID retrieves a single computer by its ID.
func (r *computerRepository) GetComputerByID(ctx context.Context, id int64) (*model.Computer, error) {
	return r.getComputer(ctx, `SELECT `+computerColumns+` FROM computers WHERE id = $1`, id)
}

// LockComputer retrieves a computer with SELECT ... FOR UPDATE.
func (r *computerRepository) LockComputer(ctx context.Context, id int64) (*model.Computer, error) {
	return r.getComputer(ctx, `SELECT `+computerColumns+` FROM computers WHERE id = $1 FOR UPDATE`, id)
}

func (r *computerRepository) getComputer(ctx context.Context, query string, id int64) (*model.Computer, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c, err := scanComputer(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrComputerNotFound
		}
		return nil, fmt.Errorf("failed to get computer by ID: %w", err)
	}
	return c, nil
}

// UpdateComputerStatus sets the status and occupant and stamps last_updated.
func (r *computerRepository) UpdateComputerStatus(ctx context.Context, id int64, status model.ComputerStatus, currentUser *string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		UPDATE computers
		SET status = $1, occupant = $2, last_updated = $3
		WHERE id = $4`

	result, err := r.DB.ExecContext(ctx, query, status, nullString(currentUser), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update computer status: %w", err)
	}

	return requireAffected(result, ErrComputerNotFound)
}

// DeleteComputer removes a computer. Its bookings are removed by cascade.
func (r *computerRepository) DeleteComputer(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := r.DB.ExecContext(ctx, `DELETE FROM computers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete computer: %w", err)
	}

	return requireAffected(result, ErrComputerNotFound)
}

// requireAffected returns notFound when the statement touched no rows.
func requireAffected(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
