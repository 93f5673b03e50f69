package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"lab-scheduler-api/internal/labtime"
	"lab-scheduler-api/internal/model"
	"lab-scheduler-api/internal/repository"
	apperrors "lab-scheduler-api/pkg/errors"
)

// Toggle outcomes.
const (
	ToggleAdded   = "added"
	ToggleRemoved = "removed"
)

// ToggleResult reports what ToggleDayBooking did.
type ToggleResult struct {
	Toggled   string `json:"toggled"`
	BookingID *int64 `json:"booking_id,omitempty"`
}

// AssignResult reports the quota left after a direct assignment. A nil
// remaining count means the student has no quota.
type AssignResult struct {
	Assigned           bool `json:"assigned"`
	UsageDaysRemaining *int `json:"usage_days_remaining"`
}

// UsageResult is the quota of a student after an adjustment.
type UsageResult struct {
	StudentID          int64 `json:"student_id"`
	UsageDaysTotal     *int  `json:"usage_days_total"`
	UsageDaysRemaining *int  `json:"usage_days_remaining"`
	Active             bool  `json:"active"`
}

// BookingService decides whether bookings and direct assignments are
// allowed and keeps usage quotas.
type BookingService struct {
	store    repository.Store
	zone     *labtime.Zone
	notifier StatusNotifier
	logger   *log.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(store repository.Store, zone *labtime.Zone, notifier StatusNotifier, logger *log.Logger) *BookingService {
	if logger == nil {
		logger = log.Default()
	}
	return &BookingService{
		store:    store,
		zone:     zone,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateBooking reserves a computer for a student over [startWall, endWall).
// Timestamps without a zone are read in the lab's zone.
func (s *BookingService) CreateBooking(ctx context.Context, computerID, studentID int64, startWall, endWall string) (*model.Booking, error) {
	start, end, err := s.parseInterval(startWall, endWall)
	if err != nil {
		return nil, err
	}

	var booking *model.Booking
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Computers().LockComputer(ctx, computerID); err != nil {
			return err
		}
		if _, err := tx.Students().GetStudentByID(ctx, studentID); err != nil {
			return err
		}

		booking, err = s.insertBooking(ctx, tx, computerID, studentID, start, end)
		return err
	})
	if err != nil {
		return nil, mapStoreError(err, "create booking")
	}

	s.logger.Printf("Booking created: ID=%d, Computer=%d, Student=%d, %s-%s",
		booking.ID, computerID, studentID, start.Format("2006-01-02T15:04Z"), end.Format("2006-01-02T15:04Z"))

	return booking, nil
}

// CreateStudentBooking books a computer for the student linked to userID,
// creating that student on first use.
func (s *BookingService) CreateStudentBooking(ctx context.Context, userID, computerID int64, startWall, endWall string) (*model.Booking, error) {
	start, end, err := s.parseInterval(startWall, endWall)
	if err != nil {
		return nil, err
	}

	var booking *model.Booking
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if _, err := tx.Computers().LockComputer(ctx, computerID); err != nil {
			return err
		}

		student, err := s.studentForUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		booking, err = s.insertBooking(ctx, tx, computerID, student.ID, start, end)
		return err
	})
	if err != nil {
		return nil, mapStoreError(err, "create booking")
	}

	s.logger.Printf("Self-service booking created: ID=%d, Computer=%d, User=%d", booking.ID, computerID, userID)

	return booking, nil
}

// studentForUser returns the student linked to userID, creating one named
// after the account when none exists.
func (s *BookingService) studentForUser(ctx context.Context, tx repository.Store, userID int64) (*model.Student, error) {
	student, err := tx.Students().GetStudentByUserID(ctx, userID)
	if err == nil {
		return student, nil
	}
	if !errors.Is(err, repository.ErrStudentNotFound) {
		return nil, err
	}

	user, err := tx.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.zone.Now()
	return tx.Students().CreateStudent(ctx, model.Student{
		Name:         user.Username,
		Email:        strings.ToLower(strings.TrimSpace(user.Email)),
		StudentID:    fmt.Sprintf("stu%03d", user.ID),
		UserID:       &user.ID,
		RegisteredAt: &now,
		Active:       true,
	})
}

// ToggleDayBooking adds or removes a student's booking for the working
// window of a local date. computerID is only needed when adding.
func (s *BookingService) ToggleDayBooking(ctx context.Context, studentID int64, date string, computerID *int64) (*ToggleResult, error) {
	day, err := s.zone.ParseDate(date)
	if err != nil {
		return nil, apperrors.ValidationError("Invalid date format, expected YYYY-MM-DD")
	}
	start, end := s.zone.WorkingWindow(day)

	var result *ToggleResult
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		// Lock the computer before the student, the same order AssignDirect uses.
		var computerErr error
		if computerID != nil {
			_, computerErr = tx.Computers().LockComputer(ctx, *computerID)
			if computerErr != nil && !errors.Is(computerErr, repository.ErrComputerNotFound) {
				return computerErr
			}
		}

		if _, err := tx.Students().LockStudent(ctx, studentID); err != nil {
			return err
		}

		existing, err := tx.Bookings().FindStudentBookingInWindow(ctx, studentID, start, end)
		switch {
		case err == nil:
			if err := tx.Bookings().DeleteBooking(ctx, existing.ID); err != nil {
				return err
			}
			result = &ToggleResult{Toggled: ToggleRemoved}
			return nil
		case !errors.Is(err, repository.ErrBookingNotFound):
			return err
		}

		if computerID == nil {
			return apperrors.ValidationError("computer_id is required to add a booking")
		}
		if computerErr != nil {
			return computerErr
		}

		booking, err := s.insertBooking(ctx, tx, *computerID, studentID, start, end)
		if err != nil {
			return err
		}
		result = &ToggleResult{Toggled: ToggleAdded, BookingID: &booking.ID}
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "toggle day booking")
	}

	s.logger.Printf("Day booking toggled: Student=%d, Date=%s, Result=%s", studentID, s.zone.FormatDate(day), result.Toggled)

	return result, nil
}

// insertBooking creates a scheduled booking unless an open booking on the
// computer intersects [start, end). The computer row must already be locked.
func (s *BookingService) insertBooking(ctx context.Context, tx repository.Store, computerID, studentID int64, start, end time.Time) (*model.Booking, error) {
	overlapping, err := tx.Bookings().CountOverlapping(ctx, computerID, start, end)
	if err != nil {
		return nil, err
	}
	if overlapping > 0 {
		return nil, apperrors.ConflictError("Computer is not available for the requested time slot")
	}

	return tx.Bookings().CreateBooking(ctx, model.Booking{
		ComputerID: computerID,
		StudentID:  studentID,
		StartTime:  start,
		EndTime:    end,
		Status:     model.BookingScheduled,
	})
}

func (s *BookingService) parseInterval(startWall, endWall string) (start, end time.Time, err error) {
	start, err = s.zone.ParseWall(startWall)
	if err != nil {
		return start, end, apperrors.ValidationError("Invalid start_time format")
	}
	end, err = s.zone.ParseWall(endWall)
	if err != nil {
		return start, end, apperrors.ValidationError("Invalid end_time format")
	}
	if !start.Before(end) {
		return start, end, apperrors.ValidationError("start_time must be before end_time")
	}
	return start, end, nil
}

// AssignDirect puts a student on a computer immediately, outside the
// booking calendar. At most one usage day is consumed per local day.
func (s *BookingService) AssignDirect(ctx context.Context, computerID, studentID int64) (*AssignResult, error) {
	var (
		computer *model.Computer
		result   *AssignResult
	)
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		computer, err = tx.Computers().LockComputer(ctx, computerID)
		if err != nil {
			return err
		}
		student, err := tx.Students().LockStudent(ctx, studentID)
		if err != nil {
			return err
		}

		if student.Quota.Exhausted() {
			return apperrors.ForbiddenError("Student's usage days have expired")
		}
		if student.UserID != nil {
			user, err := tx.Users().GetUserByID(ctx, *student.UserID)
			if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
				return err
			}
			if user != nil && !user.IsActive {
				return apperrors.ForbiddenError("Student's account is inactive and cannot be assigned")
			}
		}
		if !student.Active {
			return apperrors.ForbiddenError("Student is inactive and cannot be assigned")
		}
		if computer.Status == model.ComputerInUse {
			return apperrors.ConflictError("Computer already in use")
		}

		now := s.zone.Now()
		if err := tx.Computers().UpdateComputerStatus(ctx, computerID, model.ComputerInUse, &student.Name, now); err != nil {
			return err
		}
		computer.Status = model.ComputerInUse
		computer.CurrentUser = &student.Name
		computer.LastUpdated = now.UTC()

		result = &AssignResult{Assigned: true}
		quota := student.Quota
		if quota == nil {
			return nil
		}

		if quota.LastDecrementAt == nil || s.zone.IsLaterLocalDay(now, *quota.LastDecrementAt) {
			quota.Remaining--
			quota.LastDecrementAt = &now
			if err := tx.Students().UpdateStudentQuota(ctx, studentID, quota); err != nil {
				return err
			}
			if quota.Remaining <= 0 {
				if err := tx.Students().SetStudentActive(ctx, studentID, false); err != nil {
					return err
				}
				s.logger.Printf("Student %d used the last usage day and was deactivated", studentID)
			}
		}
		remaining := quota.Remaining
		result.UsageDaysRemaining = &remaining
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "assign computer")
	}

	s.logger.Printf("Computer %d assigned to student %d", computerID, studentID)
	publish(ctx, s.notifier, s.logger, *computer)

	return result, nil
}

// UnassignDirect frees a computer. Quotas are not touched.
func (s *BookingService) UnassignDirect(ctx context.Context, computerID int64) error {
	computer, err := s.setComputerStatus(ctx, computerID, model.ComputerAvailable, nil)
	if err != nil {
		return mapStoreError(err, "unassign computer")
	}

	s.logger.Printf("Computer %d unassigned", computerID)
	publish(ctx, s.notifier, s.logger, *computer)

	return nil
}

// UpdateComputerStatus sets a computer's status and occupant. Switching to
// in_use also activates the scheduled booking covering the current instant.
func (s *BookingService) UpdateComputerStatus(ctx context.Context, computerID int64, status model.ComputerStatus, currentUser *string) (*model.Computer, error) {
	if !status.Valid() {
		return nil, apperrors.ValidationErrorWithDetails("Invalid computer status", map[string]string{
			"status": "must be one of available, in_use, maintenance",
		})
	}
	if currentUser != nil {
		trimmed := strings.TrimSpace(*currentUser)
		if trimmed == "" {
			currentUser = nil
		} else {
			currentUser = &trimmed
		}
	}

	computer, err := s.setComputerStatus(ctx, computerID, status, currentUser)
	if err != nil {
		return nil, mapStoreError(err, "update computer status")
	}

	s.logger.Printf("Computer %d status changed to %s", computerID, status)
	publish(ctx, s.notifier, s.logger, *computer)

	return computer, nil
}

func (s *BookingService) setComputerStatus(ctx context.Context, computerID int64, status model.ComputerStatus, currentUser *string) (*model.Computer, error) {
	var computer *model.Computer
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		computer, err = tx.Computers().LockComputer(ctx, computerID)
		if err != nil {
			return err
		}

		now := s.zone.Now()
		if err := tx.Computers().UpdateComputerStatus(ctx, computerID, status, currentUser, now); err != nil {
			return err
		}
		computer.Status = status
		computer.CurrentUser = currentUser
		computer.LastUpdated = now.UTC()

		if status != model.ComputerInUse {
			return nil
		}
		activated, err := tx.Bookings().ActivateCurrentBooking(ctx, computerID, now)
		if err != nil {
			return err
		}
		if activated > 0 {
			s.logger.Printf("Activated current booking on computer %d", computerID)
		}
		return nil
	})
	return computer, err
}

// AdjustUsage adds days (negative to remove) to a student's quota. Both
// counters are clamped at zero and a positive remainder reactivates the
// student. Zero days only reports the current quota.
func (s *BookingService) AdjustUsage(ctx context.Context, studentID int64, days int) (*UsageResult, error) {
	var result *UsageResult
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		student, err := tx.Students().LockStudent(ctx, studentID)
		if err != nil {
			return err
		}

		if days == 0 {
			result = usageResult(student)
			return nil
		}

		quota := student.Quota
		if quota == nil {
			quota = &model.UsageQuota{}
		}
		quota.Total = max(0, quota.Total+days)
		quota.Remaining = max(0, quota.Remaining+days)
		if err := tx.Students().UpdateStudentQuota(ctx, studentID, quota); err != nil {
			return err
		}
		student.Quota = quota

		if quota.Remaining > 0 && !student.Active {
			if err := tx.Students().SetStudentActive(ctx, studentID, true); err != nil {
				return err
			}
			student.Active = true
		}

		result = usageResult(student)
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "adjust usage days")
	}

	if days != 0 {
		s.logger.Printf("Usage days of student %d adjusted by %d", studentID, days)
	}
	return result, nil
}

func usageResult(student *model.Student) *UsageResult {
	result := &UsageResult{StudentID: student.ID, Active: student.Active}
	if student.Quota != nil {
		total, remaining := student.Quota.Total, student.Quota.Remaining
		result.UsageDaysTotal = &total
		result.UsageDaysRemaining = &remaining
	}
	return result
}
