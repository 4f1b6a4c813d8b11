package handler

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/middleware"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/validator"
)

type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

// Caller returns the authenticated request context. Routes using it sit
// behind middleware.Authenticate.
func Caller(c *gin.Context) (*middleware.RequestContext, bool) {
	rc, ok := middleware.GetRequestContext(c)
	if !ok {
		middleware.Fail(c, apperrors.Unauthorized(nil))
		return nil, false
	}
	return rc, true
}

// ParamUUID parses a path parameter. A malformed id is reported as not found.
func ParamUUID(c *gin.Context, name, resource string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		middleware.Fail(c, apperrors.NewNotFound(resource, err))
		return uuid.Nil, false
	}
	return id, true
}

// QueryUUID parses an optional query parameter.
func QueryUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		middleware.Fail(c, apperrors.NewBadRequest(fmt.Sprintf("invalid %s", name), err))
		return nil, false
	}
	return &id, true
}

// QueryTime parses an optional RFC 3339 query parameter.
func QueryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		middleware.Fail(c, apperrors.NewBadRequest(fmt.Sprintf("%s must be RFC 3339", name), err))
		return nil, false
	}
	return &t, true
}

// Bind decodes the JSON body and fails the request with INVALID_INPUT.
func Bind(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		middleware.Fail(c, validator.Translate(err))
		return false
	}
	return true
}

// BindQuery binds query parameters (pagination) into obj.
func BindQuery(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		middleware.Fail(c, validator.Translate(err))
		return false
	}
	return true
}
