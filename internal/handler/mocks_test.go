package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"lab-scheduler-api/internal/model"
	"lab-scheduler-api/internal/notification"
	"lab-scheduler-api/internal/repository"
	"lab-scheduler-api/internal/service"
)

// Mock implementations for testing

// MockBookingEngine is a mock implementation of BookingEngine
type MockBookingEngine struct {
	CreateBookingFunc        func(ctx context.Context, computerID, studentID int64, startWall, endWall string) (*model.Booking, error)
	CreateStudentBookingFunc func(ctx context.Context, userID, computerID int64, startWall, endWall string) (*model.Booking, error)
	ToggleDayBookingFunc     func(ctx context.Context, studentID int64, date string, computerID *int64) (*service.ToggleResult, error)
	AssignDirectFunc         func(ctx context.Context, computerID, studentID int64) (*service.AssignResult, error)
	UnassignDirectFunc       func(ctx context.Context, computerID int64) error
	UpdateComputerStatusFunc func(ctx context.Context, computerID int64, status model.ComputerStatus, currentUser *string) (*model.Computer, error)
	AdjustUsageFunc          func(ctx context.Context, studentID int64, days int) (*service.UsageResult, error)
}

func (m *MockBookingEngine) CreateBooking(ctx context.Context, computerID, studentID int64, startWall, endWall string) (*model.Booking, error) {
	if m.CreateBookingFunc != nil {
		return m.CreateBookingFunc(ctx, computerID, studentID, startWall, endWall)
	}
	return &model.Booking{ID: 1, ComputerID: computerID, StudentID: studentID, Status: model.BookingScheduled}, nil
}

func (m *MockBookingEngine) CreateStudentBooking(ctx context.Context, userID, computerID int64, startWall, endWall string) (*model.Booking, error) {
	if m.CreateStudentBookingFunc != nil {
		return m.CreateStudentBookingFunc(ctx, userID, computerID, startWall, endWall)
	}
	return &model.Booking{ID: 1, ComputerID: computerID, Status: model.BookingScheduled}, nil
}

func (m *MockBookingEngine) ToggleDayBooking(ctx context.Context, studentID int64, date string, computerID *int64) (*service.ToggleResult, error) {
	if m.ToggleDayBookingFunc != nil {
		return m.ToggleDayBookingFunc(ctx, studentID, date, computerID)
	}
	return &service.ToggleResult{Toggled: service.ToggleRemoved}, nil
}

func (m *MockBookingEngine) AssignDirect(ctx context.Context, computerID, studentID int64) (*service.AssignResult, error) {
	if m.AssignDirectFunc != nil {
		return m.AssignDirectFunc(ctx, computerID, studentID)
	}
	return &service.AssignResult{Assigned: true}, nil
}

func (m *MockBookingEngine) UnassignDirect(ctx context.Context, computerID int64) error {
	if m.UnassignDirectFunc != nil {
		return m.UnassignDirectFunc(ctx, computerID)
	}
	return nil
}

func (m *MockBookingEngine) UpdateComputerStatus(ctx context.Context, computerID int64, status model.ComputerStatus, currentUser *string) (*model.Computer, error) {
	if m.UpdateComputerStatusFunc != nil {
		return m.UpdateComputerStatusFunc(ctx, computerID, status, currentUser)
	}
	return &model.Computer{ID: computerID, Status: status, CurrentUser: currentUser}, nil
}

func (m *MockBookingEngine) AdjustUsage(ctx context.Context, studentID int64, days int) (*service.UsageResult, error) {
	if m.AdjustUsageFunc != nil {
		return m.AdjustUsageFunc(ctx, studentID, days)
	}
	return &service.UsageResult{StudentID: studentID}, nil
}

// MockScheduleReader is a mock implementation of ScheduleReader
type MockScheduleReader struct {
	GetWeekScheduleFunc         func(ctx context.Context) (*service.WeekSchedule, error)
	ListBookingsFunc            func(ctx context.Context, page *repository.PaginationParams) ([]model.Booking, error)
	TomorrowBookingsFunc        func(ctx context.Context) ([]model.Booking, error)
	UsersStatusFunc             func(ctx context.Context) ([]service.UserStatus, error)
	StudentsSummaryFunc         func(ctx context.Context) ([]service.StudentSummary, error)
	LabStatusFunc               func(ctx context.Context) (*service.LabStatus, error)
	StudentBookingsFunc         func(ctx context.Context, userID int64) ([]model.Booking, error)
	StudentTomorrowBookingsFunc func(ctx context.Context, userID int64) ([]model.Booking, error)
	StudentDashboardFunc        func(ctx context.Context, userID int64) (*service.StudentDashboard, error)
}

func (m *MockScheduleReader) GetWeekSchedule(ctx context.Context) (*service.WeekSchedule, error) {
	if m.GetWeekScheduleFunc != nil {
		return m.GetWeekScheduleFunc(ctx)
	}
	return &service.WeekSchedule{}, nil
}

func (m *MockScheduleReader) ListBookings(ctx context.Context, page *repository.PaginationParams) ([]model.Booking, error) {
	if m.ListBookingsFunc != nil {
		return m.ListBookingsFunc(ctx, page)
	}
	return []model.Booking{}, nil
}

func (m *MockScheduleReader) TomorrowBookings(ctx context.Context) ([]model.Booking, error) {
	if m.TomorrowBookingsFunc != nil {
		return m.TomorrowBookingsFunc(ctx)
	}
	return []model.Booking{}, nil
}

func (m *MockScheduleReader) UsersStatus(ctx context.Context) ([]service.UserStatus, error) {
	if m.UsersStatusFunc != nil {
		return m.UsersStatusFunc(ctx)
	}
	return []service.UserStatus{}, nil
}

func (m *MockScheduleReader) StudentsSummary(ctx context.Context) ([]service.StudentSummary, error) {
	if m.StudentsSummaryFunc != nil {
		return m.StudentsSummaryFunc(ctx)
	}
	return []service.StudentSummary{}, nil
}

func (m *MockScheduleReader) LabStatus(ctx context.Context) (*service.LabStatus, error) {
	if m.LabStatusFunc != nil {
		return m.LabStatusFunc(ctx)
	}
	return &service.LabStatus{}, nil
}

func (m *MockScheduleReader) StudentBookings(ctx context.Context, userID int64) ([]model.Booking, error) {
	if m.StudentBookingsFunc != nil {
		return m.StudentBookingsFunc(ctx, userID)
	}
	return []model.Booking{}, nil
}

func (m *MockScheduleReader) StudentTomorrowBookings(ctx context.Context, userID int64) ([]model.Booking, error) {
	if m.StudentTomorrowBookingsFunc != nil {
		return m.StudentTomorrowBookingsFunc(ctx, userID)
	}
	return []model.Booking{}, nil
}

func (m *MockScheduleReader) StudentDashboard(ctx context.Context, userID int64) (*service.StudentDashboard, error) {
	if m.StudentDashboardFunc != nil {
		return m.StudentDashboardFunc(ctx, userID)
	}
	return &service.StudentDashboard{}, nil
}

// MockAdminManager is a mock implementation of AdminManager
type MockAdminManager struct {
	ListComputersFunc       func(ctx context.Context) ([]model.Computer, error)
	CreateComputerFunc      func(ctx context.Context, name string) (*model.Computer, error)
	DeleteComputerFunc      func(ctx context.Context, id int64) error
	ListStudentsFunc        func(ctx context.Context) ([]model.Student, error)
	CreateStudentFunc       func(ctx context.Context, in service.StudentInput) (*model.Student, error)
	DeleteStudentFunc       func(ctx context.Context, id int64) error
	ToggleStudentActiveFunc func(ctx context.Context, id int64) (*service.ActiveToggle, error)
	ListUsersFunc           func(ctx context.Context) ([]model.User, error)
	CreateUserFunc          func(ctx context.Context, in service.UserInput) (*service.CreatedUser, error)
	DeleteUserFunc          func(ctx context.Context, id int64) error
}

func (m *MockAdminManager) ListComputers(ctx context.Context) ([]model.Computer, error) {
	if m.ListComputersFunc != nil {
		return m.ListComputersFunc(ctx)
	}
	return []model.Computer{}, nil
}

func (m *MockAdminManager) CreateComputer(ctx context.Context, name string) (*model.Computer, error) {
	if m.CreateComputerFunc != nil {
		return m.CreateComputerFunc(ctx, name)
	}
	return &model.Computer{ID: 1, Name: name, Status: model.ComputerAvailable}, nil
}

func (m *MockAdminManager) DeleteComputer(ctx context.Context, id int64) error {
	if m.DeleteComputerFunc != nil {
		return m.DeleteComputerFunc(ctx, id)
	}
	return nil
}

func (m *MockAdminManager) ListStudents(ctx context.Context) ([]model.Student, error) {
	if m.ListStudentsFunc != nil {
		return m.ListStudentsFunc(ctx)
	}
	return []model.Student{}, nil
}

func (m *MockAdminManager) CreateStudent(ctx context.Context, in service.StudentInput) (*model.Student, error) {
	if m.CreateStudentFunc != nil {
		return m.CreateStudentFunc(ctx, in)
	}
	return &model.Student{ID: 1, Name: in.Name, Email: in.Email, StudentID: in.StudentID, Active: true}, nil
}

func (m *MockAdminManager) DeleteStudent(ctx context.Context, id int64) error {
	if m.DeleteStudentFunc != nil {
		return m.DeleteStudentFunc(ctx, id)
	}
	return nil
}

func (m *MockAdminManager) ToggleStudentActive(ctx context.Context, id int64) (*service.ActiveToggle, error) {
	if m.ToggleStudentActiveFunc != nil {
		return m.ToggleStudentActiveFunc(ctx, id)
	}
	return &service.ActiveToggle{StudentID: id}, nil
}

func (m *MockAdminManager) ListUsers(ctx context.Context) ([]model.User, error) {
	if m.ListUsersFunc != nil {
		return m.ListUsersFunc(ctx)
	}
	return []model.User{}, nil
}

func (m *MockAdminManager) CreateUser(ctx context.Context, in service.UserInput) (*service.CreatedUser, error) {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(ctx, in)
	}
	return &service.CreatedUser{Username: in.Username, Password: in.Password}, nil
}

func (m *MockAdminManager) DeleteUser(ctx context.Context, id int64) error {
	if m.DeleteUserFunc != nil {
		return m.DeleteUserFunc(ctx, id)
	}
	return nil
}

// MockListenerRegistry records registered listeners
type MockListenerRegistry struct {
	mu        sync.Mutex
	listeners map[string]notification.Listener
}

func (m *MockListenerRegistry) Register(l notification.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listeners == nil {
		m.listeners = make(map[string]notification.Listener)
	}
	m.listeners[l.ID()] = l
}

func (m *MockListenerRegistry) Unregister(l notification.Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, l.ID())
}

func (m *MockListenerRegistry) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

func (m *MockListenerRegistry) snapshot() []notification.Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notification.Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		out = append(out, l)
	}
	return out
}

// MockPinger is a mock database pinger
type MockPinger struct {
	PingContextFunc func(ctx context.Context) error
}

func (m *MockPinger) PingContext(ctx context.Context) error {
	if m.PingContextFunc != nil {
		return m.PingContextFunc(ctx)
	}
	return nil
}

// Helper functions for tests

func silentLogger() *log.Logger {
	return log.New(bytes.NewBuffer([]byte{}), "", 0)
}

func createJSONRequest(method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}
