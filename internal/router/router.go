package router

import (
	"github.com/gorilla/mux"

	"lab-scheduler-api/internal/auth"
	"lab-scheduler-api/internal/handler"
	"lab-scheduler-api/internal/middleware"
	"lab-scheduler-api/internal/model"
)

// Handlers groups the HTTP handlers served by the router.
type Handlers struct {
	Admin   handler.AdminHandlerInterface
	Student handler.StudentHandlerInterface
	Public  handler.PublicHandlerInterface
}

// NewRouter creates a new router and sets up the routes with security middleware.
// The event stream at /ws is outside the request timeout.
func NewRouter(h Handlers, authn *auth.Authenticator, securityMW *middleware.SecurityMiddleware) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware in order
	r.Use(securityMW.SecurityHeaders)
	r.Use(securityMW.CORS)
	r.Use(securityMW.RateLimit)

	r.HandleFunc("/ws", h.Public.WebSocketHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(securityMW.RequestTimeout)

	// Public
	api.HandleFunc("/health", h.Public.HealthHandler).Methods("GET")
	api.HandleFunc("/computers", h.Public.ComputersHandler).Methods("GET")
	api.HandleFunc("/lab-status", h.Public.LabStatusHandler).Methods("GET")

	// Any authenticated account
	account := api.PathPrefix("/auth").Subrouter()
	account.Use(authn.Middleware)
	account.HandleFunc("/me", h.Public.MeHandler).Methods("GET")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(authn.Middleware)
	admin.Use(auth.RequireRole(model.RoleAdmin))

	admin.HandleFunc("/computers", h.Admin.ListComputersHandler).Methods("GET")
	admin.HandleFunc("/computers", h.Admin.CreateComputerHandler).Methods("POST")
	admin.HandleFunc("/computers/{id}", h.Admin.DeleteComputerHandler).Methods("DELETE")
	admin.HandleFunc("/computers/{id}/status", h.Admin.UpdateComputerStatusHandler).Methods("PUT")

	admin.HandleFunc("/students", h.Admin.ListStudentsHandler).Methods("GET")
	admin.HandleFunc("/students", h.Admin.CreateStudentHandler).Methods("POST")
	admin.HandleFunc("/students/summary", h.Admin.StudentsSummaryHandler).Methods("GET")
	admin.HandleFunc("/students/{id}", h.Admin.DeleteStudentHandler).Methods("DELETE")
	admin.HandleFunc("/students/{id}/toggle-active", h.Admin.ToggleStudentActiveHandler).Methods("POST")
	admin.HandleFunc("/students/{id}/usage", h.Admin.AdjustUsageHandler).Methods("POST")

	admin.HandleFunc("/users", h.Admin.ListUsersHandler).Methods("GET")
	admin.HandleFunc("/users", h.Admin.CreateUserHandler).Methods("POST")
	admin.HandleFunc("/users/status", h.Admin.UsersStatusHandler).Methods("GET")
	admin.HandleFunc("/users/{id}", h.Admin.DeleteUserHandler).Methods("DELETE")

	admin.HandleFunc("/bookings", h.Admin.ListBookingsHandler).Methods("GET")
	admin.HandleFunc("/bookings", h.Admin.CreateBookingHandler).Methods("POST")
	admin.HandleFunc("/bookings/tomorrow", h.Admin.TomorrowBookingsHandler).Methods("GET")
	admin.HandleFunc("/schedule/week", h.Admin.WeekScheduleHandler).Methods("GET")
	admin.HandleFunc("/schedule/toggle", h.Admin.ToggleDayBookingHandler).Methods("POST")
	admin.HandleFunc("/assign", h.Admin.AssignHandler).Methods("POST")
	admin.HandleFunc("/unassign", h.Admin.UnassignHandler).Methods("POST")

	student := api.PathPrefix("/student").Subrouter()
	student.Use(authn.Middleware)
	student.Use(auth.RequireRole(model.RoleStudent))

	student.HandleFunc("/computers", h.Student.ComputersHandler).Methods("GET")
	student.HandleFunc("/bookings", h.Student.BookingsHandler).Methods("GET")
	student.HandleFunc("/bookings", h.Student.CreateBookingHandler).Methods("POST")
	student.HandleFunc("/bookings/tomorrow", h.Student.TomorrowBookingsHandler).Methods("GET")
	student.HandleFunc("/dashboard", h.Student.DashboardHandler).Methods("GET")

	return r
}
