package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"lab-scheduler-api/internal/model"
	"lab-scheduler-api/internal/service"
	"lab-scheduler-api/pkg/validation"
)

// Constants for timeouts
const (
	DefaultTimeout     = 10 * time.Second
	LongRunningTimeout = 15 * time.Second
)

// CreateComputerRequest is the body of POST /api/admin/computers.
type CreateComputerRequest struct {
	Name string `json:"name"`
}

// UpdateStatusRequest is the body of PUT /api/admin/computers/{id}/status.
type UpdateStatusRequest struct {
	Status      string  `json:"status" validate:"required,oneof=available in_use maintenance"`
	CurrentUser *string `json:"current_user" validate:"omitempty,max=255"`
}

// CreateBookingRequest is the body of POST /api/admin/bookings.
type CreateBookingRequest struct {
	ComputerID int64  `json:"computer_id" validate:"required,gt=0"`
	StudentID  int64  `json:"student_id" validate:"required,gt=0"`
	StartTime  string `json:"start_time" validate:"required"`
	EndTime    string `json:"end_time" validate:"required"`
}

// ToggleRequest is the body of POST /api/admin/schedule/toggle.
type ToggleRequest struct {
	StudentID  int64  `json:"student_id" validate:"required,gt=0"`
	Date       string `json:"date" validate:"required"`
	ComputerID *int64 `json:"computer_id" validate:"omitempty,gt=0"`
}

// AssignRequest is the body of POST /api/admin/assign.
type AssignRequest struct {
	ComputerID int64 `json:"computer_id" validate:"required,gt=0"`
	StudentID  int64 `json:"student_id" validate:"required,gt=0"`
}

// UnassignRequest is the body of POST /api/admin/unassign.
type UnassignRequest struct {
	ComputerID int64 `json:"computer_id" validate:"required,gt=0"`
}

// UsageRequest is the body of POST /api/admin/students/{id}/usage.
type UsageRequest struct {
	Days int `json:"days"`
}

// AdminHandler handles the HTTP requests of administrators.
type AdminHandler struct {
	Admin    AdminManager
	Bookings BookingEngine
	Schedule ScheduleReader
	Logger   *log.Logger

	ErrorHandler   *ErrorHandler
	ResponseHelper *ResponseHelper
}

// NewAdminHandler creates a new AdminHandler with dependencies and helpers
func NewAdminHandler(admin AdminManager, bookings BookingEngine, schedule ScheduleReader, logger *log.Logger) *AdminHandler {
	if logger == nil {
		logger = log.Default()
	}

	return &AdminHandler{
		Admin:          admin,
		Bookings:       bookings,
		Schedule:       schedule,
		Logger:         logger,
		ErrorHandler:   NewErrorHandler(logger),
		ResponseHelper: NewResponseHelper(),
	}
}

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure.
func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return decodeAndValidate(h.ErrorHandler, h.ResponseHelper, w, r, dst)
}

func decodeAndValidate(eh *ErrorHandler, rh *ResponseHelper, w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := rh.DecodeJSON(r, dst); err != nil {
		eh.HandleJSONDecodeError(w, err)
		return false
	}
	if fields := validation.Struct(dst); fields != nil {
		eh.HandleValidationErrors(w, fields)
		return false
	}
	return true
}

// ListComputersHandler lists all computers.
func (h *AdminHandler) ListComputersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	computers, err := h.Admin.ListComputers(ctx)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "retrieve computers")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("computers", computers, len(computers), nil))
}

// CreateComputerHandler adds a computer.
func (h *AdminHandler) CreateComputerHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	var req CreateComputerRequest
	if !h.decode(w, r, &req) {
		return
	}

	computer, err := h.Admin.CreateComputer(ctx, req.Name)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "create computer")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusCreated, "Computer created successfully", computer)
}

// DeleteComputerHandler removes a computer and its bookings.
func (h *AdminHandler) DeleteComputerHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	id, valid := h.ErrorHandler.ParseAndValidateID(w, mux.Vars(r)["id"])
	if !valid {
		return
	}

	if err := h.Admin.DeleteComputer(ctx, id); err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "delete computer")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Computer deleted successfully", map[string]interface{}{"id": id})
}

// UpdateComputerStatusHandler sets a computer's status and occupant.
func (h *AdminHandler) UpdateComputerStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	id, valid := h.ErrorHandler.ParseAndValidateID(w, mux.Vars(r)["id"])
	if !valid {
		return
	}

	var req UpdateStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	computer, err := h.Bookings.UpdateComputerStatus(ctx, id, model.ComputerStatus(req.Status), req.CurrentUser)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "update computer status")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Computer status updated successfully", computer)
}

// ListStudentsHandler lists all students.
func (h *AdminHandler) ListStudentsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	students, err := h.Admin.ListStudents(ctx)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "retrieve students")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("students", students, len(students), nil))
}

// CreateStudentHandler registers a student.
func (h *AdminHandler) CreateStudentHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	var req service.StudentInput
	if err := h.ResponseHelper.DecodeJSON(r, &req); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(w, err)
		return
	}

	student, err := h.Admin.CreateStudent(ctx, req)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "create student")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusCreated, "Student created successfully", student)
}

// StudentsSummaryHandler returns the per-student overview.
func (h *AdminHandler) StudentsSummaryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, LongRunningTimeout)
	defer cancel()

	summary, err := h.Schedule.StudentsSummary(ctx)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "retrieve students summary")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("students", summary, len(summary), nil))
}

// DeleteStudentHandler removes a student, its bookings and its account.
func (h *AdminHandler) DeleteStudentHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	id, valid := h.ErrorHandler.ParseAndValidateID(w, mux.Vars(r)["id"])
	if !valid {
		return
	}

	if err := h.Admin.DeleteStudent(ctx, id); err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "delete student")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Student deleted successfully", map[string]interface{}{"id": id})
}

// ToggleStudentActiveHandler flips a student's active flag.
func (h *AdminHandler) ToggleStudentActiveHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	id, valid := h.ErrorHandler.ParseAndValidateID(w, mux.Vars(r)["id"])
	if !valid {
		return
	}

	result, err := h.Admin.ToggleStudentActive(ctx, id)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "toggle student status")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Student status updated successfully", result)
}

// AdjustUsageHandler changes a student's usage days.
func (h *AdminHandler) AdjustUsageHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	id, valid := h.ErrorHandler.ParseAndValidateID(w, mux.Vars(r)["id"])
	if !valid {
		return
	}

	var req UsageRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.Bookings.AdjustUsage(ctx, id, req.Days)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "adjust usage days")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "Usage days updated successfully", result)
}

// ListUsersHandler lists all accounts.
func (h *AdminHandler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	users, err := h.Admin.ListUsers(ctx)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "retrieve users")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("users", users, len(users), nil))
}

// CreateUserHandler creates an account and returns its credentials once.
func (h *AdminHandler) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	var req service.UserInput
	if err := h.ResponseHelper.DecodeJSON(r, &req); err != nil {
		h.ErrorHandler.HandleJSONDecodeError(w, err)
		return
	}

	created, err := h.Admin.CreateUser(ctx, req)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "create user")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusCreated, "User created successfully", created)
}

// DeleteUserHandler removes an account with its student and bookings.
func (h *AdminHandler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	id, valid := h.ErrorHandler.ParseAndValidateID(w, mux.Vars(r)["id"])
	if !valid {
		return
	}

	if err := h.Admin.DeleteUser(ctx, id); err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "delete user")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusOK, "User deleted successfully", map[string]interface{}{"id": id})
}

// UsersStatusHandler lists accounts with tomorrow's bookings.
func (h *AdminHandler) UsersStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, LongRunningTimeout)
	defer cancel()

	statuses, err := h.Schedule.UsersStatus(ctx)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "retrieve users status")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("users", statuses, len(statuses), nil))
}

// ListBookingsHandler lists bookings newest first, paginated when page or
// page_size is given.
func (h *AdminHandler) ListBookingsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, LongRunningTimeout)
	defer cancel()

	params, paginated := h.ResponseHelper.ParsePaginationParams(r)
	if !paginated {
		bookings, err := h.Schedule.ListBookings(ctx, nil)
		if err != nil {
			h.ErrorHandler.HandleServiceError(ctx, w, err, "retrieve bookings")
			return
		}
		h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("bookings", bookings, len(bookings), nil))
		return
	}

	bookings, err := h.Schedule.ListBookings(ctx, h.ResponseHelper.RepositoryPage(params))
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "retrieve bookings")
		return
	}

	meta := h.ResponseHelper.CalculatePaginationMeta(params, len(bookings))
	bookings = bookings[:meta.Count]

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("bookings", bookings, meta.Count, map[string]interface{}{
		"pagination": meta,
	}))
}

// CreateBookingHandler books a computer for a student.
func (h *AdminHandler) CreateBookingHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	var req CreateBookingRequest
	if !h.decode(w, r, &req) {
		return
	}

	booking, err := h.Bookings.CreateBooking(ctx, req.ComputerID, req.StudentID, req.StartTime, req.EndTime)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "create booking")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusCreated, "Booking created successfully", booking)
}

// TomorrowBookingsHandler lists bookings starting tomorrow.
func (h *AdminHandler) TomorrowBookingsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	bookings, err := h.Schedule.TomorrowBookings(ctx)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "retrieve tomorrow's bookings")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("bookings", bookings, len(bookings), nil))
}

// WeekScheduleHandler returns the current week's student grid.
func (h *AdminHandler) WeekScheduleHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, LongRunningTimeout)
	defer cancel()

	week, err := h.Schedule.GetWeekSchedule(ctx)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "build week schedule")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, week)
}

// ToggleDayBookingHandler adds or removes a student's booking for a day.
func (h *AdminHandler) ToggleDayBookingHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	var req ToggleRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.Bookings.ToggleDayBooking(ctx, req.StudentID, req.Date, req.ComputerID)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "toggle day booking")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, result)
}

// AssignHandler puts a student on a computer immediately.
func (h *AdminHandler) AssignHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	var req AssignRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.Bookings.AssignDirect(ctx, req.ComputerID, req.StudentID)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "assign computer")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, result)
}

// UnassignHandler frees a computer.
func (h *AdminHandler) UnassignHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	var req UnassignRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.Bookings.UnassignDirect(ctx, req.ComputerID); err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "unassign computer")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, map[string]bool{"unassigned": true})
}
