package audit

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/handler"
	"github.com/jwalitptl/scheduling-api/internal/middleware"
	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/pkg/auth"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

type Service interface {
	History(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error)
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	audit := r.Group("/audit", middleware.RequireRole(auth.RoleAdmin))
	{
		audit.GET("/:type/:id", h.GetEntityLogs)
	}
}

func (h *Handler) GetEntityLogs(c *gin.Context) {
	rc, ok := handler.Caller(c)
	if !ok {
		return
	}

	entityType := c.Param("type")
	switch entityType {
	case model.AuditEntityAppointment, model.AuditEntityWaitlistEntry:
	default:
		middleware.Fail(c, apperrors.NewBadRequest("unknown entity type", nil))
		return
	}
	entityID, ok := handler.ParamUUID(c, "id", entityType)
	if !ok {
		return
	}

	logs, err := h.service.History(c.Request.Context(), rc.TenantID, entityType, entityID)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(logs))
}
