package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/validator"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code      apperrors.ErrorCode    `json:"code"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   []validator.FieldError `json:"details,omitempty"`
}

func NewErrorResponse(c *gin.Context, appErr *apperrors.AppError) ErrorResponse {
	resp := ErrorResponse{
		Code:      appErr.Code,
		Message:   appErr.Message,
		RequestID: c.GetString(ContextRequestID),
		Details:   validator.FieldsOf(appErr),
	}
	return resp
}

// ErrorHandler renders the last error attached with c.Error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		lastErr := c.Errors.Last()
		appErr := apperrors.As(lastErr.Err)
		status := appErr.StatusCode()

		event := log.Warn()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Err(lastErr.Err).
			Str("request_id", c.GetString(ContextRequestID)).
			Str("code", string(appErr.Code)).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Msg("Request error")

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(status, NewErrorResponse(c, appErr))
	}
}

// Fail attaches err for ErrorHandler and stops the chain.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
