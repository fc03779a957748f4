package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wanderly-travel/service-checkout/internal/platform/domainerr"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    any         `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Pagination `json:"meta,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Pagination describes a page of results.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Success writes 200 with data.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes 201 with data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Paginated writes 200 with data and page metadata.
func Paginated(c *gin.Context, data any, total int64, page, limit int) {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    data,
		Meta:    &Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages},
	})
}

// BadRequest writes 400 for malformed input.
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, "bad_request", message)
}

// Unauthorized writes 401.
func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, "unauthorized", message)
}

// Forbidden writes 403.
func Forbidden(c *gin.Context, message string) {
	Fail(c, http.StatusForbidden, "forbidden", message)
}

// Fail aborts the request with the given status and error body.
func Fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
	})
}

// Error maps a domain error onto an HTTP status. Errors outside the taxonomy
// are reported as 500 without leaking their text.
func Error(c *gin.Context, err error) {
	status := StatusFor(err)
	code := domainerr.Code(err)
	message := err.Error()

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		code, message = "internal_error", "internal server error"
	}
	if code == "" {
		code = http.StatusText(status)
	}
	Fail(c, status, code, message)
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domainerr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domainerr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainerr.ErrConflict), errors.Is(err, domainerr.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domainerr.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domainerr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domainerr.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
