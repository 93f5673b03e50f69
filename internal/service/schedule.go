package service

import (
	"context"
	"errors"
	"log"
	"time"

	"lab-scheduler-api/internal/labtime"
	"lab-scheduler-api/internal/model"
	"lab-scheduler-api/internal/repository"
	apperrors "lab-scheduler-api/pkg/errors"
)

// LabStatusHorizon is how far ahead LabStatus looks for open bookings.
const LabStatusHorizon = 24 * time.Hour

// ComputerRef is the short form of a computer used in the schedule grid.
type ComputerRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ScheduleCell is one student's state on one day of the week.
type ScheduleCell struct {
	Date       string `json:"date"`
	HasBooking bool   `json:"has_booking"`
	BookingID  *int64 `json:"booking_id"`
	ComputerID *int64 `json:"computer_id"`
}

// ScheduleRow holds one student's cells, Monday first.
type ScheduleRow struct {
	StudentID   int64          `json:"student_id"`
	StudentName string         `json:"student_name"`
	Days        []ScheduleCell `json:"days"`
}

// WeekSchedule is the student by day grid of the current work week.
type WeekSchedule struct {
	WeekStart string        `json:"week_start"`
	WeekEnd   string        `json:"week_end"`
	Days      []string      `json:"days"`
	Computers []ComputerRef `json:"computers"`
	Rows      []ScheduleRow `json:"rows"`
}

// UserStatus describes an account and its bookings for tomorrow.
type UserStatus struct {
	UserID             int64           `json:"user_id"`
	Username           string          `json:"username"`
	Email              string          `json:"email"`
	Role               model.Role      `json:"role"`
	StudentName        *string         `json:"student_name"`
	StudentID          *string         `json:"student_id"`
	HasTomorrowBooking bool            `json:"has_tomorrow_booking"`
	TomorrowBookings   []model.Booking `json:"tomorrow_bookings"`
}

// StudentSummary is the admin overview of a student.
type StudentSummary struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	Study              *string    `json:"study"`
	Department         *string    `json:"department"`
	Date               *time.Time `json:"date"`
	IsActive           bool       `json:"is_active"`
	UsageDaysTotal     *int       `json:"usage_days_total"`
	UsageDaysRemaining *int       `json:"usage_days_remaining"`
}

// LabStatus is the public snapshot of the lab.
type LabStatus struct {
	Computers        []model.Computer `json:"computers"`
	UpcomingBookings []model.Booking  `json:"upcoming_bookings"`
	Timestamp        time.Time        `json:"timestamp"`
}

// StudentProfile is the identifying part of a student shown on the dashboard.
type StudentProfile struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	StudentID string `json:"student_id"`
}

// StudentDashboard gathers everything the student page shows.
type StudentDashboard struct {
	Student             StudentProfile   `json:"student"`
	Computers           []model.Computer `json:"computers"`
	AllBookings         []model.Booking  `json:"all_bookings"`
	TomorrowBookings    []model.Booking  `json:"tomorrow_bookings"`
	HasTomorrowBookings bool             `json:"has_tomorrow_bookings"`
	TotalBookings       int              `json:"total_bookings"`
}

// ScheduleService answers read-only questions about bookings.
type ScheduleService struct {
	store  repository.Store
	zone   *labtime.Zone
	logger *log.Logger
}

// NewScheduleService creates a new schedule service
func NewScheduleService(store repository.Store, zone *labtime.Zone, logger *log.Logger) *ScheduleService {
	if logger == nil {
		logger = log.Default()
	}
	return &ScheduleService{store: store, zone: zone, logger: logger}
}

// GetWeekSchedule projects open bookings onto a Monday to Friday grid with
// one row per student, ordered by name.
func (s *ScheduleService) GetWeekSchedule(ctx context.Context) (*WeekSchedule, error) {
	days := s.zone.WeekDays(s.zone.Now())
	weekStart, _ := s.zone.WorkingWindow(days[0])
	_, weekEnd := s.zone.WorkingWindow(days[len(days)-1])

	students, err := s.store.Students().GetAllStudents(ctx)
	if err != nil {
		return nil, mapStoreError(err, "retrieve students")
	}
	computers, err := s.store.Computers().GetAllComputers(ctx)
	if err != nil {
		return nil, mapStoreError(err, "retrieve computers")
	}
	bookings, err := s.store.Bookings().ListBookings(ctx, repository.BookingFilter{
		OverlapStart: &weekStart,
		OverlapEnd:   &weekEnd,
		OpenOnly:     true,
	})
	if err != nil {
		return nil, mapStoreError(err, "retrieve bookings")
	}

	return s.projectWeek(days, students, computers, bookings), nil
}

// projectWeek builds the grid. bookings must be ordered by start time so the
// first match per cell is the earliest.
func (s *ScheduleService) projectWeek(days []time.Time, students []model.Student, computers []model.Computer, bookings []model.Booking) *WeekSchedule {
	type window struct{ start, end time.Time }
	windows := make([]window, len(days))
	labels := make([]string, len(days))
	for i, day := range days {
		windows[i].start, windows[i].end = s.zone.WorkingWindow(day)
		labels[i] = day.Weekday().String()
	}

	byStudent := make(map[int64][]model.Booking)
	for _, b := range bookings {
		if b.Status.IsOpen() {
			byStudent[b.StudentID] = append(byStudent[b.StudentID], b)
		}
	}

	refs := make([]ComputerRef, 0, len(computers))
	for _, c := range computers {
		refs = append(refs, ComputerRef{ID: c.ID, Name: c.Name})
	}

	rows := make([]ScheduleRow, 0, len(students))
	for _, student := range students {
		row := ScheduleRow{
			StudentID:   student.ID,
			StudentName: student.Name,
			Days:        make([]ScheduleCell, len(days)),
		}
		for i, day := range days {
			cell := ScheduleCell{Date: s.zone.FormatDate(day)}
			for _, b := range byStudent[student.ID] {
				if b.Overlaps(windows[i].start, windows[i].end) {
					id, computerID := b.ID, b.ComputerID
					cell.HasBooking = true
					cell.BookingID = &id
					cell.ComputerID = &computerID
					break
				}
			}
			row.Days[i] = cell
		}
		rows = append(rows, row)
	}

	return &WeekSchedule{
		WeekStart: s.zone.FormatDate(days[0]),
		WeekEnd:   s.zone.FormatDate(days[len(days)-1]),
		Days:      labels,
		Computers: refs,
		Rows:      rows,
	}
}

// ListBookings returns all bookings, newest first.
func (s *ScheduleService) ListBookings(ctx context.Context, page *repository.PaginationParams) ([]model.Booking, error) {
	bookings, err := s.store.Bookings().ListBookings(ctx, repository.BookingFilter{NewestFirst: true, Page: page})
	if err != nil {
		return nil, mapStoreError(err, "retrieve bookings")
	}
	return bookings, nil
}

// TomorrowBookings returns bookings starting on the next local day.
func (s *ScheduleService) TomorrowBookings(ctx context.Context) ([]model.Booking, error) {
	return s.tomorrowBookings(ctx, nil)
}

func (s *ScheduleService) tomorrowBookings(ctx context.Context, studentID *int64) ([]model.Booking, error) {
	from, before := s.zone.Tomorrow()
	bookings, err := s.store.Bookings().ListBookings(ctx, repository.BookingFilter{
		StudentID:   studentID,
		StartFrom:   &from,
		StartBefore: &before,
	})
	if err != nil {
		return nil, mapStoreError(err, "retrieve tomorrow's bookings")
	}
	return bookings, nil
}

// UsersStatus lists every account with its linked student and tomorrow's
// bookings.
func (s *ScheduleService) UsersStatus(ctx context.Context) ([]UserStatus, error) {
	users, err := s.store.Users().GetAllUsers(ctx)
	if err != nil {
		return nil, mapStoreError(err, "retrieve users")
	}
	students, err := s.store.Students().GetAllStudents(ctx)
	if err != nil {
		return nil, mapStoreError(err, "retrieve students")
	}
	tomorrow, err := s.TomorrowBookings(ctx)
	if err != nil {
		return nil, err
	}

	studentByUser := make(map[int64]model.Student)
	for _, st := range students {
		if st.UserID != nil {
			studentByUser[*st.UserID] = st
		}
	}
	bookingsByStudent := make(map[int64][]model.Booking)
	for _, b := range tomorrow {
		bookingsByStudent[b.StudentID] = append(bookingsByStudent[b.StudentID], b)
	}

	statuses := make([]UserStatus, 0, len(users))
	for _, u := range users {
		status := UserStatus{
			UserID:           u.ID,
			Username:         u.Username,
			Email:            u.Email,
			Role:             u.Role,
			TomorrowBookings: []model.Booking{},
		}
		if st, ok := studentByUser[u.ID]; ok {
			name, sid := st.Name, st.StudentID
			status.StudentName = &name
			status.StudentID = &sid
			if b := bookingsByStudent[st.ID]; len(b) > 0 {
				status.TomorrowBookings = b
			}
		}
		status.HasTomorrowBooking = len(status.TomorrowBookings) > 0
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// StudentsSummary lists students with the active flag and date of their
// linked account when they have one.
func (s *ScheduleService) StudentsSummary(ctx context.Context) ([]StudentSummary, error) {
	students, err := s.store.Students().GetAllStudents(ctx)
	if err != nil {
		return nil, mapStoreError(err, "retrieve students")
	}
	users, err := s.store.Users().GetAllUsers(ctx)
	if err != nil {
		return nil, mapStoreError(err, "retrieve users")
	}

	usersByID := make(map[int64]model.User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}

	summary := make([]StudentSummary, 0, len(students))
	for _, st := range students {
		item := StudentSummary{
			ID:         st.ID,
			Name:       st.Name,
			Email:      st.Email,
			Study:      st.Study,
			Department: st.Department,
			IsActive:   st.Active,
		}
		if st.UserID != nil {
			if u, ok := usersByID[*st.UserID]; ok {
				created := s.zone.ToLocal(u.CreatedAt)
				item.Date = &created
				item.IsActive = u.IsActive
			}
		}
		if item.Date == nil && st.RegisteredAt != nil {
			registered := s.zone.ToLocal(*st.RegisteredAt)
			item.Date = &registered
		}
		if st.Quota != nil {
			total, remaining := st.Quota.Total, st.Quota.Remaining
			item.UsageDaysTotal = &total
			item.UsageDaysRemaining = &remaining
		}
		summary = append(summary, item)
	}
	return summary, nil
}

// LabStatus returns all computers and the open bookings intersecting the
// next 24 hours.
func (s *ScheduleService) LabStatus(ctx context.Context) (*LabStatus, error) {
	computers, err := s.store.Computers().GetAllComputers(ctx)
	if err != nil {
		return nil, mapStoreError(err, "retrieve computers")
	}

	now := s.zone.Now()
	from, until := now.UTC(), now.Add(LabStatusHorizon).UTC()
	bookings, err := s.store.Bookings().ListBookings(ctx, repository.BookingFilter{
		OverlapStart: &from,
		OverlapEnd:   &until,
		OpenOnly:     true,
	})
	if err != nil {
		return nil, mapStoreError(err, "retrieve bookings")
	}

	return &LabStatus{Computers: computers, UpcomingBookings: bookings, Timestamp: now}, nil
}

// StudentBookings returns the bookings of the student linked to userID.
func (s *ScheduleService) StudentBookings(ctx context.Context, userID int64) ([]model.Booking, error) {
	student, err := s.studentProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	bookings, err := s.store.Bookings().ListBookings(ctx, repository.BookingFilter{StudentID: &student.ID})
	if err != nil {
		return nil, mapStoreError(err, "retrieve bookings")
	}
	return bookings, nil
}

// StudentTomorrowBookings returns tomorrow's bookings of the student linked
// to userID.
func (s *ScheduleService) StudentTomorrowBookings(ctx context.Context, userID int64) ([]model.Booking, error) {
	student, err := s.studentProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.tomorrowBookings(ctx, &student.ID)
}

// StudentDashboard collects the student page for userID.
func (s *ScheduleService) StudentDashboard(ctx context.Context, userID int64) (*StudentDashboard, error) {
	student, err := s.studentProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	all, err := s.store.Bookings().ListBookings(ctx, repository.BookingFilter{StudentID: &student.ID, NewestFirst: true})
	if err != nil {
		return nil, mapStoreError(err, "retrieve bookings")
	}
	tomorrow, err := s.tomorrowBookings(ctx, &student.ID)
	if err != nil {
		return nil, err
	}
	computers, err := s.store.Computers().GetAllComputers(ctx)
	if err != nil {
		return nil, mapStoreError(err, "retrieve computers")
	}

	return &StudentDashboard{
		Student: StudentProfile{
			ID:        student.ID,
			Name:      student.Name,
			Email:     student.Email,
			StudentID: student.StudentID,
		},
		Computers:           computers,
		AllBookings:         all,
		TomorrowBookings:    tomorrow,
		HasTomorrowBookings: len(tomorrow) > 0,
		TotalBookings:       len(all),
	}, nil
}

func (s *ScheduleService) studentProfile(ctx context.Context, userID int64) (*model.Student, error) {
	student, err := s.store.Students().GetStudentByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrStudentNotFound) {
			return nil, apperrors.NotFoundError("student profile")
		}
		return nil, mapStoreError(err, "retrieve student profile")
	}
	return student, nil
}
