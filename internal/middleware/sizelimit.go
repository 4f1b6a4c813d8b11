package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

const DefaultMaxBodySize int64 = 1 << 20

// BodyLimit rejects declared oversize bodies up front and caps the rest
// while they are read.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			appErr := apperrors.NewBadRequest(fmt.Sprintf("request body exceeds %d bytes", maxBytes), nil)
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, NewErrorResponse(c, appErr))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
