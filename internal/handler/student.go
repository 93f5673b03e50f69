package handler

import (
	"context"
	"log"
	"net/http"

	"lab-scheduler-api/internal/auth"
	apperrors "lab-scheduler-api/pkg/errors"
)

// StudentBookingRequest is the body of POST /api/student/bookings.
type StudentBookingRequest struct {
	ComputerID int64  `json:"computer_id" validate:"required,gt=0"`
	StartTime  string `json:"start_time" validate:"required"`
	EndTime    string `json:"end_time" validate:"required"`
}

// StudentHandler handles the HTTP requests of students about themselves.
type StudentHandler struct {
	Computers ComputerLister
	Bookings  BookingEngine
	Schedule  ScheduleReader
	Logger    *log.Logger

	ErrorHandler   *ErrorHandler
	ResponseHelper *ResponseHelper
}

// NewStudentHandler creates a new StudentHandler
func NewStudentHandler(computers ComputerLister, bookings BookingEngine, schedule ScheduleReader, logger *log.Logger) *StudentHandler {
	if logger == nil {
		logger = log.Default()
	}

	return &StudentHandler{
		Computers:      computers,
		Bookings:       bookings,
		Schedule:       schedule,
		Logger:         logger,
		ErrorHandler:   NewErrorHandler(logger),
		ResponseHelper: NewResponseHelper(),
	}
}

// identity returns the caller set by the auth middleware, writing a 401
// when there is none.
func (h *StudentHandler) identity(ctx context.Context, w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		h.ErrorHandler.HandleServiceError(ctx, w, apperrors.UnauthorizedError("Authentication required"), "identify caller")
	}
	return id, ok
}

// ComputersHandler lists all computers.
func (h *StudentHandler) ComputersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	computers, err := h.Computers.ListComputers(ctx)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "retrieve computers")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("computers", computers, len(computers), nil))
}

// BookingsHandler lists the caller's bookings.
func (h *StudentHandler) BookingsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	id, ok := h.identity(ctx, w, r)
	if !ok {
		return
	}

	bookings, err := h.Schedule.StudentBookings(ctx, id.UserID)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "retrieve bookings")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("bookings", bookings, len(bookings), nil))
}

// CreateBookingHandler books a computer for the caller.
func (h *StudentHandler) CreateBookingHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	id, ok := h.identity(ctx, w, r)
	if !ok {
		return
	}

	var req StudentBookingRequest
	if !decodeAndValidate(h.ErrorHandler, h.ResponseHelper, w, r, &req) {
		return
	}

	booking, err := h.Bookings.CreateStudentBooking(ctx, id.UserID, req.ComputerID, req.StartTime, req.EndTime)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "create booking")
		return
	}

	h.ErrorHandler.SendSuccessResponse(w, http.StatusCreated, "Booking created successfully", booking)
}

// TomorrowBookingsHandler lists the caller's bookings starting tomorrow.
func (h *StudentHandler) TomorrowBookingsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	id, ok := h.identity(ctx, w, r)
	if !ok {
		return
	}

	bookings, err := h.Schedule.StudentTomorrowBookings(ctx, id.UserID)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "retrieve tomorrow's bookings")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("bookings", bookings, len(bookings), map[string]interface{}{
		"has_bookings": len(bookings) > 0,
	}))
}

// DashboardHandler returns the caller's dashboard.
func (h *StudentHandler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, LongRunningTimeout)
	defer cancel()

	id, ok := h.identity(ctx, w, r)
	if !ok {
		return
	}

	dashboard, err := h.Schedule.StudentDashboard(ctx, id.UserID)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "build dashboard")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, dashboard)
}
