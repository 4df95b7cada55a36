package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/linebroker/internal/api_gateway/middleware"
	"github.com/linebroker/internal/domain/shared"
)

// Error codes carried in ErrorInfo.Code
const (
	CodeBadRequest            = "BAD_REQUEST"
	CodeValidation            = "VALIDATION_ERROR"
	CodeInsufficientFunds     = "INSUFFICIENT_FUNDS"
	CodeNotFound              = "NOT_FOUND"
	CodeInvalidState          = "INVALID_STATE"
	CodeIdempotencyConflict   = "IDEMPOTENCY_CONFLICT"
	CodeConcurrentUpdate      = "CONCURRENT_MODIFICATION"
	CodeRemoteRejected        = "REMOTE_REJECTED"
	CodeDependencyUnavailable = "DEPENDENCY_UNAVAILABLE"
	CodeTransientProvider     = "TRANSIENT_PROVIDER_ERROR"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeInternal              = "INTERNAL_SERVER_ERROR"
)

// Response represents a standard API response
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Meta          *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo represents error information in a response. Reason refines Code
// for remote rejections and names the field of a validation error.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// MetaInfo represents metadata in a response
type MetaInfo struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
	TotalItems int `json:"total_items,omitempty"`
}

// NewResponse creates a new response with data
func NewResponse(data interface{}) *Response {
	return &Response{
		Data: data,
	}
}

// NewErrorResponse creates a new error response
func NewErrorResponse(code, message string) *Response {
	return &Response{
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// NewPaginatedResponse creates a new paginated response
func NewPaginatedResponse(data interface{}, page, perPage, totalItems int) *Response {
	totalPages := totalItems / perPage
	if totalItems%perPage > 0 {
		totalPages++
	}

	return &Response{
		Data: data,
		Meta: &MetaInfo{
			Page:       page,
			PerPage:    perPage,
			TotalPages: totalPages,
			TotalItems: totalItems,
		},
	}
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	response := NewResponse(data)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	response := NewErrorResponse(code, message)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithPaginatedData sends a JSON response with paginated data
func RespondWithPaginatedData(c *gin.Context, statusCode int, data interface{}, page, perPage, totalItems int) {
	response := NewPaginatedResponse(data, page, perPage, totalItems)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondOK sends a 200 OK response with data
func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

// RespondCreated sends a 201 Created response with data
func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

// RespondAccepted sends a 202 Accepted response with data.
func RespondAccepted(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusAccepted, data)
}

// RespondBadRequest sends a 400 Bad Request response with an error
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, CodeBadRequest, message)
}

// RespondUnauthorized sends a 401 Unauthorized response with an error
func RespondUnauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "Unauthorized"
	}
	RespondWithError(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// RespondNotFound sends a 404 Not Found response with an error
func RespondNotFound(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RespondWithError(c, http.StatusNotFound, CodeNotFound, message)
}

// RespondConflict sends a 409 Conflict response with an error
func RespondConflict(c *gin.Context, message string) {
	RespondWithError(c, http.StatusConflict, CodeIdempotencyConflict, message)
}

// RespondInternalError sends a 500 Internal Server Error response with an error
func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, CodeInternal, "An internal server error occurred")
}


// RespondWithServiceError maps an engine error onto its HTTP status and code.
// Unknown errors become a 500 without leaking their text.
func RespondWithServiceError(c *gin.Context, err error) {
	status, info := classify(err)
	if status == http.StatusServiceUnavailable {
		var unavailable *shared.DependencyUnavailableError
		if errors.As(err, &unavailable) {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(unavailable.RetryAfter.Seconds()))))
		}
	}
	response := &Response{Error: info, CorrelationID: middleware.GetCorrelationID(c)}
	c.JSON(status, response)
}

func classify(err error) (int, *ErrorInfo) {
	var (
		validation   *shared.ValidationError
		funds        *shared.InsufficientFundsError
		rejected     *shared.RemoteRejectedError
		unavailable  *shared.DependencyUnavailableError
		invalidState *shared.InvalidStateError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, &ErrorInfo{Code: CodeValidation, Message: validation.Error(), Reason: validation.Field}
	case errors.As(err, &funds):
		return http.StatusPaymentRequired, &ErrorInfo{Code: CodeInsufficientFunds, Message: funds.Error()}
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, &ErrorInfo{Code: CodeNotFound, Message: "Resource not found"}
	case errors.As(err, &invalidState):
		return http.StatusConflict, &ErrorInfo{Code: CodeInvalidState, Message: invalidState.Error(), Reason: invalidState.State}
	case errors.Is(err, shared.ErrIdempotencyConflict):
		return http.StatusConflict, &ErrorInfo{Code: CodeIdempotencyConflict, Message: err.Error()}
	case errors.Is(err, shared.ErrConcurrentModification):
		return http.StatusConflict, &ErrorInfo{Code: CodeConcurrentUpdate, Message: "The resource was modified concurrently, retry the request"}
	case errors.As(err, &rejected):
		message := rejected.Message
		if message == "" {
			message = rejected.Error()
		}
		return http.StatusUnprocessableEntity, &ErrorInfo{Code: CodeRemoteRejected, Message: message, Reason: rejected.Reason}
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, &ErrorInfo{Code: CodeDependencyUnavailable, Message: unavailable.Error(), Reason: unavailable.Dependency}
	case errors.Is(err, shared.ErrTransientProvider):
		return http.StatusBadGateway, &ErrorInfo{Code: CodeTransientProvider, Message: "The upstream provider failed, retry the request"}
	default:
		return http.StatusInternalServerError, &ErrorInfo{Code: CodeInternal, Message: "An internal server error occurred"}
	}
}
