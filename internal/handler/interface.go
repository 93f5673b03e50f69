package handler

import (
	"context"
	"net/http"

	"lab-scheduler-api/internal/model"
	"lab-scheduler-api/internal/notification"
	"lab-scheduler-api/internal/repository"
	"lab-scheduler-api/internal/service"
)

// BookingEngine is the part of service.BookingService the handlers use.
type BookingEngine interface {
	CreateBooking(ctx context.Context, computerID, studentID int64, startWall, endWall string) (*model.Booking, error)
	CreateStudentBooking(ctx context.Context, userID, computerID int64, startWall, endWall string) (*model.Booking, error)
	ToggleDayBooking(ctx context.Context, studentID int64, date string, computerID *int64) (*service.ToggleResult, error)
	AssignDirect(ctx context.Context, computerID, studentID int64) (*service.AssignResult, error)
	UnassignDirect(ctx context.Context, computerID int64) error
	UpdateComputerStatus(ctx context.Context, computerID int64, status model.ComputerStatus, currentUser *string) (*model.Computer, error)
	AdjustUsage(ctx context.Context, studentID int64, days int) (*service.UsageResult, error)
}

// ScheduleReader is the part of service.ScheduleService the handlers use.
type ScheduleReader interface {
	GetWeekSchedule(ctx context.Context) (*service.WeekSchedule, error)
	ListBookings(ctx context.Context, page *repository.PaginationParams) ([]model.Booking, error)
	TomorrowBookings(ctx context.Context) ([]model.Booking, error)
	UsersStatus(ctx context.Context) ([]service.UserStatus, error)
	StudentsSummary(ctx context.Context) ([]service.StudentSummary, error)
	LabStatus(ctx context.Context) (*service.LabStatus, error)
	StudentBookings(ctx context.Context, userID int64) ([]model.Booking, error)
	StudentTomorrowBookings(ctx context.Context, userID int64) ([]model.Booking, error)
	StudentDashboard(ctx context.Context, userID int64) (*service.StudentDashboard, error)
}

// ComputerLister lists the lab's computers.
type ComputerLister interface {
	ListComputers(ctx context.Context) ([]model.Computer, error)
}

// AdminManager is the part of service.AdminService the handlers use.
type AdminManager interface {
	ComputerLister
	CreateComputer(ctx context.Context, name string) (*model.Computer, error)
	DeleteComputer(ctx context.Context, id int64) error
	ListStudents(ctx context.Context) ([]model.Student, error)
	CreateStudent(ctx context.Context, in service.StudentInput) (*model.Student, error)
	DeleteStudent(ctx context.Context, id int64) error
	ToggleStudentActive(ctx context.Context, id int64) (*service.ActiveToggle, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	CreateUser(ctx context.Context, in service.UserInput) (*service.CreatedUser, error)
	DeleteUser(ctx context.Context, id int64) error
}

// ListenerRegistry is the part of notification.Hub the WebSocket endpoint
// and health check use.
type ListenerRegistry interface {
	Register(l notification.Listener)
	Unregister(l notification.Listener)
	Count() int
}

// Pinger reports database reachability. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthProber reports whether an outbound dependency answers.
type HealthProber interface {
	IsHealthy(ctx context.Context) bool
}

// AdminHandlerInterface defines the contract for admin HTTP handlers.
type AdminHandlerInterface interface {
	// Computers
	ListComputersHandler(w http.ResponseWriter, r *http.Request)
	CreateComputerHandler(w http.ResponseWriter, r *http.Request)
	DeleteComputerHandler(w http.ResponseWriter, r *http.Request)
	UpdateComputerStatusHandler(w http.ResponseWriter, r *http.Request)

	// Students
	ListStudentsHandler(w http.ResponseWriter, r *http.Request)
	CreateStudentHandler(w http.ResponseWriter, r *http.Request)
	StudentsSummaryHandler(w http.ResponseWriter, r *http.Request)
	DeleteStudentHandler(w http.ResponseWriter, r *http.Request)
	ToggleStudentActiveHandler(w http.ResponseWriter, r *http.Request)
	AdjustUsageHandler(w http.ResponseWriter, r *http.Request)

	// Users
	ListUsersHandler(w http.ResponseWriter, r *http.Request)
	CreateUserHandler(w http.ResponseWriter, r *http.Request)
	DeleteUserHandler(w http.ResponseWriter, r *http.Request)
	UsersStatusHandler(w http.ResponseWriter, r *http.Request)

	// Bookings and schedule
	ListBookingsHandler(w http.ResponseWriter, r *http.Request)
	CreateBookingHandler(w http.ResponseWriter, r *http.Request)
	TomorrowBookingsHandler(w http.ResponseWriter, r *http.Request)
	WeekScheduleHandler(w http.ResponseWriter, r *http.Request)
	ToggleDayBookingHandler(w http.ResponseWriter, r *http.Request)
	AssignHandler(w http.ResponseWriter, r *http.Request)
	UnassignHandler(w http.ResponseWriter, r *http.Request)
}

// StudentHandlerInterface defines the contract for student HTTP handlers.
type StudentHandlerInterface interface {
	ComputersHandler(w http.ResponseWriter, r *http.Request)
	BookingsHandler(w http.ResponseWriter, r *http.Request)
	CreateBookingHandler(w http.ResponseWriter, r *http.Request)
	TomorrowBookingsHandler(w http.ResponseWriter, r *http.Request)
	DashboardHandler(w http.ResponseWriter, r *http.Request)
}

// PublicHandlerInterface defines the contract for unauthenticated and
// account-level HTTP handlers.
type PublicHandlerInterface interface {
	HealthHandler(w http.ResponseWriter, r *http.Request)
	ComputersHandler(w http.ResponseWriter, r *http.Request)
	LabStatusHandler(w http.ResponseWriter, r *http.Request)
	MeHandler(w http.ResponseWriter, r *http.Request)
	WebSocketHandler(w http.ResponseWriter, r *http.Request)
}

// Ensure handlers implement their interfaces at compile time
var (
	_ AdminHandlerInterface   = (*AdminHandler)(nil)
	_ StudentHandlerInterface = (*StudentHandler)(nil)
	_ PublicHandlerInterface  = (*PublicHandler)(nil)
)

// Ensure the services satisfy the contracts at compile time
var (
	_ BookingEngine  = (*service.BookingService)(nil)
	_ ScheduleReader = (*service.ScheduleService)(nil)
	_ AdminManager   = (*service.AdminService)(nil)
)
