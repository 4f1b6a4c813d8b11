package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/pkg/auth"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

const ContextRequestContext = "request_context"

// RequestContext is the authenticated caller, passed to every handler.
type RequestContext struct {
	TenantID  uuid.UUID
	ActorID   string
	Role      string
	RequestID string
}

func GetRequestContext(c *gin.Context) (*RequestContext, bool) {
	v, ok := c.Get(ContextRequestContext)
	if !ok {
		return nil, false
	}
	rc, ok := v.(*RequestContext)
	return rc, ok
}

// Authenticate verifies the bearer token and stores the RequestContext.
func Authenticate(jwtSvc auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			Fail(c, apperrors.Unauthorized(nil).WithMessage("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			Fail(c, apperrors.Unauthorized(nil).WithMessage("invalid authorization format"))
			return
		}

		claims, err := jwtSvc.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			Fail(c, apperrors.Unauthorized(err).WithMessage("invalid token"))
			return
		}

		c.Set(ContextRequestContext, &RequestContext{
			TenantID:  claims.TenantID,
			ActorID:   claims.Subject,
			Role:      claims.Role,
			RequestID: c.GetString(ContextRequestID),
		})
		c.Next()
	}
}

// RequireRole lets through callers holding one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc, ok := GetRequestContext(c)
		if !ok {
			Fail(c, apperrors.Unauthorized(nil))
			return
		}
		for _, r := range roles {
			if rc.Role == r {
				c.Next()
				return
			}
		}
		Fail(c, apperrors.Forbidden("insufficient role"))
	}
}
