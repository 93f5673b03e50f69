package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"lab-scheduler-api/internal/auth"
	"lab-scheduler-api/internal/labtime"
	"lab-scheduler-api/internal/model"
	"lab-scheduler-api/internal/repository"
	apperrors "lab-scheduler-api/pkg/errors"
	"lab-scheduler-api/pkg/validation"
)

// maxUsernameAttempts bounds the search for a free generated username.
const maxUsernameAttempts = 100

// StudentInput is the payload for creating a student.
type StudentInput struct {
	Name       string  `json:"name" validate:"required,max=255"`
	Email      string  `json:"email" validate:"required,email,max=255"`
	StudentID  string  `json:"student_id" validate:"required,max=50"`
	Study      *string `json:"study" validate:"omitempty,max=255"`
	Department *string `json:"department" validate:"omitempty,max=255"`
	Date       *string `json:"date"`
	UsageDays  *int    `json:"usage_days" validate:"omitempty,min=0"`
}

// UserInput is the payload for creating a login account. Username and
// password are generated when empty.
type UserInput struct {
	Name     string     `json:"name" validate:"required,max=255"`
	Email    string     `json:"email" validate:"required,email,max=255"`
	Username string     `json:"username" validate:"omitempty,max=50"`
	Password string     `json:"password" validate:"omitempty,min=6"`
	Role     model.Role `json:"role" validate:"omitempty,oneof=admin student"`
}

// CreatedUser is returned once after account creation and carries the
// plain password.
type CreatedUser struct {
	User     model.User `json:"user"`
	Username string     `json:"username"`
	Password string     `json:"password"`
}

// ActiveToggle reports the new active flag after ToggleStudentActive.
type ActiveToggle struct {
	StudentID int64  `json:"student_id"`
	UserID    *int64 `json:"user_id"`
	IsActive  bool   `json:"is_active"`
}

// AdminService manages computers, students and accounts.
type AdminService struct {
	store  repository.Store
	zone   *labtime.Zone
	logger *log.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(store repository.Store, zone *labtime.Zone, logger *log.Logger) *AdminService {
	if logger == nil {
		logger = log.Default()
	}
	return &AdminService{store: store, zone: zone, logger: logger}
}

// ListComputers returns all computers ordered by name.
func (s *AdminService) ListComputers(ctx context.Context) ([]model.Computer, error) {
	computers, err := s.store.Computers().GetAllComputers(ctx)
	if err != nil {
		return nil, mapStoreError(err, "retrieve computers")
	}
	return computers, nil
}

// CreateComputer adds an available computer.
func (s *AdminService) CreateComputer(ctx context.Context, name string) (*model.Computer, error) {
	name, err := validation.ValidateComputerName(name)
	if err != nil {
		return nil, apperrors.ValidationErrorWithDetails("Invalid computer data", map[string]string{
			"name": err.Error(),
		})
	}

	computer, err := s.store.Computers().CreateComputer(ctx, name)
	if err != nil {
		return nil, mapStoreError(err, "create computer")
	}

	s.logger.Printf("Computer created: ID=%d, Name=%s", computer.ID, computer.Name)
	return computer, nil
}

// DeleteComputer removes a computer and its bookings.
func (s *AdminService) DeleteComputer(ctx context.Context, id int64) error {
	if err := s.store.Computers().DeleteComputer(ctx, id); err != nil {
		return mapStoreError(err, "delete computer")
	}
	s.logger.Printf("Computer deleted: ID=%d", id)
	return nil
}

// ListStudents returns all students ordered by name.
func (s *AdminService) ListStudents(ctx context.Context) ([]model.Student, error) {
	students, err := s.store.Students().GetAllStudents(ctx)
	if err != nil {
		return nil, mapStoreError(err, "retrieve students")
	}
	return students, nil
}

// CreateStudent registers a student. Email and student ID are stored
// trimmed and lowercased and must be unique ignoring case.
func (s *AdminService) CreateStudent(ctx context.Context, in StudentInput) (*model.Student, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = validation.NormalizeIdentifier(in.Email)
	in.StudentID = validation.NormalizeIdentifier(in.StudentID)
	if fields := validation.Struct(in); fields != nil {
		return nil, apperrors.ValidationErrorWithDetails("Invalid student data", fields)
	}

	student := model.Student{
		Name:       in.Name,
		Email:      in.Email,
		StudentID:  in.StudentID,
		Study:      trimmedOrNil(in.Study),
		Department: trimmedOrNil(in.Department),
		Active:     true,
	}
	if in.Date != nil && strings.TrimSpace(*in.Date) != "" {
		registered, err := s.parseRegistrationDate(*in.Date)
		if err != nil {
			return nil, err
		}
		student.RegisteredAt = &registered
	} else {
		now := s.zone.Now().UTC()
		student.RegisteredAt = &now
	}
	if in.UsageDays != nil && *in.UsageDays > 0 {
		student.Quota = &model.UsageQuota{Total: *in.UsageDays, Remaining: *in.UsageDays}
	}

	existing, err := s.store.Students().FindStudentByIdentity(ctx, student.StudentID, student.Email)
	switch {
	case err == nil:
		return nil, duplicateStudentError(existing, student)
	case !errors.Is(err, repository.ErrStudentNotFound):
		return nil, mapStoreError(err, "create student")
	}

	created, err := s.store.Students().CreateStudent(ctx, student)
	if err != nil {
		return nil, mapStoreError(err, "create student")
	}

	s.logger.Printf("Student created: ID=%d, StudentID=%s", created.ID, created.StudentID)
	return created, nil
}

func (s *AdminService) parseRegistrationDate(value string) (time.Time, error) {
	if day, err := s.zone.ParseDate(value); err == nil {
		return day.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(value)); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, apperrors.ValidationErrorWithDetails("Invalid student data", map[string]string{
		"date": "date must be YYYY-MM-DD or RFC 3339",
	})
}

func duplicateStudentError(existing *model.Student, candidate model.Student) error {
	sameID := strings.EqualFold(existing.StudentID, candidate.StudentID)
	sameEmail := strings.EqualFold(existing.Email, candidate.Email)
	switch {
	case sameID && sameEmail:
		return apperrors.ConflictError("Student ID and email already exist")
	case sameID:
		return apperrors.ConflictError("Student ID already exists")
	default:
		return apperrors.ConflictError("Email already exists")
	}
}

// DeleteStudent removes a student with its bookings and linked account.
func (s *AdminService) DeleteStudent(ctx context.Context, id int64) error {
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		student, err := tx.Students().LockStudent(ctx, id)
		if err != nil {
			return err
		}
		if student.UserID != nil {
			// Cascades to the student and its bookings.
			err := tx.Users().DeleteUser(ctx, *student.UserID)
			if err == nil || !errors.Is(err, repository.ErrUserNotFound) {
				return err
			}
		}
		return tx.Students().DeleteStudent(ctx, id)
	})
	if err != nil {
		return mapStoreError(err, "delete student")
	}

	s.logger.Printf("Student deleted: ID=%d", id)
	return nil
}

// ToggleStudentActive flips the active flag of the student's account, or
// of the student itself when no account is linked.
func (s *AdminService) ToggleStudentActive(ctx context.Context, id int64) (*ActiveToggle, error) {
	var result *ActiveToggle
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		student, err := tx.Students().LockStudent(ctx, id)
		if err != nil {
			return err
		}
		result = &ActiveToggle{StudentID: id, UserID: student.UserID}

		if student.UserID != nil {
			user, err := tx.Users().GetUserByID(ctx, *student.UserID)
			if err != nil {
				return err
			}
			result.IsActive = !user.IsActive
			return tx.Users().SetUserActive(ctx, user.ID, result.IsActive)
		}

		result.IsActive = !student.Active
		return tx.Students().SetStudentActive(ctx, id, result.IsActive)
	})
	if err != nil {
		return nil, mapStoreError(err, "toggle student status")
	}

	s.logger.Printf("Student %d active=%t", id, result.IsActive)
	return result, nil
}

// ListUsers returns all accounts ordered by username.
func (s *AdminService) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.store.Users().GetAllUsers(ctx)
	if err != nil {
		return nil, mapStoreError(err, "retrieve users")
	}
	return users, nil
}

// CreateUser creates an account, generating the username from the name and
// a random password when they are not given.
func (s *AdminService) CreateUser(ctx context.Context, in UserInput) (*CreatedUser, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = validation.NormalizeIdentifier(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if in.Role == "" {
		in.Role = model.RoleStudent
	}
	if fields := validation.Struct(in); fields != nil {
		return nil, apperrors.ValidationErrorWithDetails("Invalid user data", fields)
	}

	username := in.Username
	if username == "" {
		generated, err := s.uniqueUsername(ctx, in.Name)
		if err != nil {
			return nil, err
		}
		username = generated
	}

	password := in.Password
	if password == "" {
		generated, err := auth.GeneratePassword(auth.DefaultPasswordLength)
		if err != nil {
			return nil, apperrors.InternalError("Failed to generate password", err)
		}
		password = generated
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperrors.InternalError("Failed to hash password", err)
	}

	user, err := s.store.Users().CreateUser(ctx, model.User{
		Username:       username,
		Email:          in.Email,
		HashedPassword: hash,
		Role:           in.Role,
		IsActive:       true,
	})
	if err != nil {
		return nil, mapStoreError(err, "create user")
	}

	s.logger.Printf("User created: ID=%d, Username=%s, Role=%s", user.ID, user.Username, user.Role)
	return &CreatedUser{User: *user, Username: username, Password: password}, nil
}

func (s *AdminService) uniqueUsername(ctx context.Context, name string) (string, error) {
	base, err := auth.GenerateUsername(name)
	if err != nil {
		return "", apperrors.InternalError("Failed to generate username", err)
	}

	candidate := base
	for i := 1; i <= maxUsernameAttempts; i++ {
		exists, err := s.store.Users().UsernameExists(ctx, candidate)
		if err != nil {
			return "", mapStoreError(err, "check username")
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return "", apperrors.ConflictError("Could not generate a free username")
}

// DeleteUser removes an account with its student and bookings.
func (s *AdminService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.store.Users().DeleteUser(ctx, id); err != nil {
		return mapStoreError(err, "delete user")
	}
	s.logger.Printf("User deleted: ID=%d", id)
	return nil
}

// EnsureAdmin creates the bootstrap admin account unless the username is
// already taken. It reports whether an account was created.
func (s *AdminService) EnsureAdmin(ctx context.Context, username, email, password string) (bool, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return false, apperrors.ValidationError(err.Error())
	}

	exists, err := s.store.Users().UsernameExists(ctx, username)
	if err != nil {
		return false, mapStoreError(err, "check admin account")
	}
	if exists {
		return false, nil
	}

	_, err = s.CreateUser(ctx, UserInput{
		Name:     username,
		Email:    email,
		Username: username,
		Password: password,
		Role:     model.RoleAdmin,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
