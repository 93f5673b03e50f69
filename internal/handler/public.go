package handler

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"lab-scheduler-api/internal/auth"
	"lab-scheduler-api/internal/notification"
	apperrors "lab-scheduler-api/pkg/errors"
)

// HealthCheckTimeout bounds the database ping of the health check.
const HealthCheckTimeout = 2 * time.Second

// PublicHandler serves the endpoints that need no role: health, the public
// lab view, the caller's account and the status event stream.
type PublicHandler struct {
	Computers ComputerLister
	Schedule  ScheduleReader
	Hub       ListenerRegistry
	DB        Pinger
	Logger    *log.Logger

	// Webhook, when set, is checked by the health check. An unreachable
	// webhook is reported but does not fail the check.
	Webhook HealthProber

	// AllowedOrigins lists the browser origins that may open the event
	// stream in addition to the server's own. "*" allows any.
	AllowedOrigins []string

	ErrorHandler   *ErrorHandler
	ResponseHelper *ResponseHelper

	upgrader websocket.Upgrader
}

// NewPublicHandler creates a new PublicHandler
func NewPublicHandler(computers ComputerLister, schedule ScheduleReader, hub ListenerRegistry, db Pinger, logger *log.Logger) *PublicHandler {
	if logger == nil {
		logger = log.Default()
	}

	h := &PublicHandler{
		Computers:      computers,
		Schedule:       schedule,
		Hub:            hub,
		DB:             db,
		Logger:         logger,
		ErrorHandler:   NewErrorHandler(logger),
		ResponseHelper: NewResponseHelper(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// HealthHandler reports service and database health
func (h *PublicHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			h.Logger.Printf("Health check: database unreachable: %v", err)
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}

	listeners := 0
	if h.Hub != nil {
		listeners = h.Hub.Count()
	}

	data := h.ResponseHelper.CreateHealthCheckData(status, listeners)
	if h.Webhook != nil {
		ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
		defer cancel()
		data["webhook"] = "healthy"
		if !h.Webhook.IsHealthy(ctx) {
			data["webhook"] = "unreachable"
		}
	}

	h.ErrorHandler.SendSuccessResponse(w, code, "Service is "+status, data)
}

// ComputersHandler lists all computers with their status.
func (h *PublicHandler) ComputersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	computers, err := h.Computers.ListComputers(ctx)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "retrieve computers")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, h.ResponseHelper.CreateListResponseData("computers", computers, len(computers), nil))
}

// LabStatusHandler returns computers and the bookings of the next 24 hours.
func (h *PublicHandler) LabStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ResponseHelper.CreateRequestContext(w, r, DefaultTimeout)
	defer cancel()

	status, err := h.Schedule.LabStatus(ctx)
	if err != nil {
		h.ErrorHandler.HandleServiceError(ctx, w, err, "retrieve lab status")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, status)
}

// MeHandler returns the authenticated account.
func (h *PublicHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		h.ErrorHandler.HandleServiceError(r.Context(), w, apperrors.UnauthorizedError("Authentication required"), "identify caller")
		return
	}

	h.ErrorHandler.SendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"id":       id.UserID,
		"username": id.Username,
		"email":    id.Email,
		"role":     id.Role,
	})
}

// WebSocketHandler upgrades the connection and streams status events to it
// until the client disconnects.
func (h *PublicHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the error response.
		h.Logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	listener := notification.NewWebSocketListener(conn)
	h.Hub.Register(listener)
	defer h.Hub.Unregister(listener)

	h.Logger.Printf("WebSocket client connected: %s (%d listeners)", listener.ID(), h.Hub.Count())
	listener.Serve(r.Context())
	h.Logger.Printf("WebSocket client disconnected: %s", listener.ID())
}

func (h *PublicHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
