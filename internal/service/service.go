package service

import (
	"context"
	"errors"
	"log"

	"lab-scheduler-api/internal/model"
	"lab-scheduler-api/internal/repository"
	apperrors "lab-scheduler-api/pkg/errors"
)

// StatusNotifier publishes computer status changes. Implementations must
// not block.
type StatusNotifier interface {
	ComputerStatusChanged(ctx context.Context, computer model.Computer) error
}

// mapStoreError translates repository errors into application errors.
// Errors that already are application errors pass through unchanged.
func mapStoreError(err error, operation string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.AsAppError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, repository.ErrComputerNotFound):
		return apperrors.NotFoundError("computer")
	case errors.Is(err, repository.ErrStudentNotFound):
		return apperrors.NotFoundError("student")
	case errors.Is(err, repository.ErrUserNotFound):
		return apperrors.NotFoundError("user")
	case errors.Is(err, repository.ErrBookingNotFound):
		return apperrors.NotFoundError("booking")
	case errors.Is(err, repository.ErrDuplicateComputer):
		return apperrors.ConflictError("Computer with this name already exists")
	case errors.Is(err, repository.ErrDuplicateStudent):
		return apperrors.ConflictError("Student ID or email already exists")
	case errors.Is(err, repository.ErrDuplicateUser):
		return apperrors.ConflictError("Username or email already registered")
	case errors.Is(err, repository.ErrBookingOverlap):
		return apperrors.ConflictError("Computer is not available for the requested time slot")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewAppErrorWithCause(apperrors.ErrorCodeTimeout, "Operation timed out", err)
	default:
		return apperrors.DatabaseError("failed to "+operation, err)
	}
}

// publish hands the computer's new state to the notifier. It runs after
// commit, so the caller's cancellation is dropped. Failures are logged only.
func publish(ctx context.Context, notifier StatusNotifier, logger *log.Logger, computer model.Computer) {
	if notifier == nil {
		return
	}
	if err := notifier.ComputerStatusChanged(context.WithoutCancel(ctx), computer); err != nil {
		logger.Printf("Failed to publish status of computer %d: %v", computer.ID, err)
	}
}
