package handler

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"lab-scheduler-api/internal/repository"
)

// ResponseHelper provides common response utilities and context management
type ResponseHelper struct{}

// NewResponseHelper creates a new ResponseHelper instance
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// ContextKey type for context keys to avoid collisions
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"

	// RequestIDHeader carries the request ID in both directions.
	RequestIDHeader = "X-Request-ID"
)

// PaginationParams holds pagination parameters
type PaginationParams struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Offset   int `json:"offset"`
	Limit    int `json:"limit"`
}

// PaginationMeta holds pagination metadata for responses
type PaginationMeta struct {
	Page         int  `json:"page"`
	PageSize     int  `json:"page_size"`
	Count        int  `json:"count"`
	HasNext      bool `json:"has_next"`
	HasPrevious  bool `json:"has_previous"`
	NextPage     *int `json:"next_page,omitempty"`
	PreviousPage *int `json:"previous_page,omitempty"`
}

// Default pagination constants
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1
)

// ParsePaginationParams reads page and page_size. ok is false when the
// request asked for no pagination.
func (rh *ResponseHelper) ParsePaginationParams(r *http.Request) (PaginationParams, bool) {
	query := r.URL.Query()
	if query.Get("page") == "" && query.Get("page_size") == "" {
		return PaginationParams{}, false
	}

	page := queryInt(query.Get("page"), 1, math.MaxInt32, 1)
	pageSize := queryInt(query.Get("page_size"), MinPageSize, MaxPageSize, DefaultPageSize)

	return PaginationParams{
		Page:     page,
		PageSize: pageSize,
		Offset:   (page - 1) * pageSize,
		Limit:    pageSize,
	}, true
}

// queryInt parses raw, returning fallback when it is not a number in [min, max].
func queryInt(raw string, min, max, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return fallback
	}
	return n
}

// RepositoryPage asks for one row more than the page holds so that
// CalculatePaginationMeta can tell whether a next page exists.
func (rh *ResponseHelper) RepositoryPage(params PaginationParams) *repository.PaginationParams {
	return &repository.PaginationParams{Offset: params.Offset, Limit: params.Limit + 1}
}

// CalculatePaginationMeta calculates pagination metadata from the number of
// rows fetched with RepositoryPage.
func (rh *ResponseHelper) CalculatePaginationMeta(params PaginationParams, fetched int) PaginationMeta {
	hasNext := fetched > params.Limit
	hasPrevious := params.Page > 1

	count := fetched
	if hasNext {
		count = params.Limit
	}

	var nextPage, previousPage *int
	if hasNext {
		next := params.Page + 1
		nextPage = &next
	}
	if hasPrevious {
		prev := params.Page - 1
		previousPage = &prev
	}

	return PaginationMeta{
		Page:         params.Page,
		PageSize:     params.PageSize,
		Count:        count,
		HasNext:      hasNext,
		HasPrevious:  hasPrevious,
		NextPage:     nextPage,
		PreviousPage: previousPage,
	}
}

// CreateRequestContext creates a context with timeout carrying the caller's
// request ID, or a fresh one, which is echoed in the response headers.
func (rh *ResponseHelper) CreateRequestContext(w http.ResponseWriter, r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)

	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)
	ctx = context.WithValue(ctx, RequestIDKey, requestID)

	return ctx, cancel
}

func requestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// DecodeJSON decodes the request body into dst, rejecting unknown fields.
func (rh *ResponseHelper) DecodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// CreateListResponseData creates response data for list operations with metadata
func (rh *ResponseHelper) CreateListResponseData(key string, items interface{}, count int, additionalData map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		key:     items,
		"count": count,
	}

	for k, value := range additionalData {
		data[k] = value
	}

	return data
}

// CreateHealthCheckData creates health check response data
func (rh *ResponseHelper) CreateHealthCheckData(status string, listeners int) map[string]interface{} {
	return map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"service":   "lab-scheduler-api",
		"status":    status,
		"listeners": listeners,
	}
}
