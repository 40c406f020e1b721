package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/cadence/internal/engine"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	// Code is the engine error code, or BAD_REQUEST / INTERNAL.
	Code string `json:"code"`

	// Message is human-readable.
	Message string `json:"message"`

	// Details names the offending field, when known.
	Details string `json:"details,omitempty"`
}

const (
	codeBadRequest = "BAD_REQUEST"
	codeInternal   = "INTERNAL"
)

// statusOf maps an engine error code onto an HTTP status.
func statusOf(code engine.ErrorCode) int {
	switch code {
	case engine.ErrCodeValidation:
		return http.StatusUnprocessableEntity
	case engine.ErrCodeInvalidRule, engine.ErrCodeInvalidScope:
		return http.StatusBadRequest
	case engine.ErrCodeNotFound:
		return http.StatusNotFound
	case engine.ErrCodeConcurrencyConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes err as an ErrorResponse. Unclassified errors are logged and
// hidden behind a generic message.
func (s *Server) fail(c *gin.Context, err error) {
	var ee *engine.Error
	if !errors.As(err, &ee) {
		s.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Code:    codeInternal,
			Message: "internal error",
		})
		return
	}
	c.AbortWithStatusJSON(statusOf(ee.Code), ErrorResponse{
		Code:    string(ee.Code),
		Message: ee.Message,
		Details: ee.Field,
	})
}

// badRequest rejects input that could not be decoded at all.
func badRequest(c *gin.Context, message string, err error) {
	resp := ErrorResponse{Code: codeBadRequest, Message: message}
	if err != nil {
		resp.Details = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
}

// retryConflict runs op and, if it fails with a concurrency conflict, runs
// it once more.
func retryConflict[T any](op func() (T, error)) (T, error) {
	out, err := op()
	if engine.IsConflictError(err) {
		out, err = op()
	}
	return out, err
}
