package waitlist

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/handler"
	"github.com/jwalitptl/scheduling-api/internal/middleware"
	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/service/audit"
	"github.com/jwalitptl/scheduling-api/pkg/auth"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

type Service interface {
	AddToWaitlist(ctx context.Context, tenantID uuid.UUID, req *model.AddToWaitlistRequest) (*model.WaitlistEntry, error)
	GetEntry(ctx context.Context, tenantID, id uuid.UUID) (*model.WaitlistEntry, error)
	ListEntries(ctx context.Context, tenantID uuid.UUID, filter *model.WaitlistFilter) ([]*model.WaitlistEntry, error)
	Claim(ctx context.Context, tenantID, id uuid.UUID) (*model.WaitlistEntry, error)
	Expire(ctx context.Context, tenantID, id uuid.UUID) (*model.WaitlistEntry, error)
	RemoveFromWaitlist(ctx context.Context, tenantID, id uuid.UUID) error
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry)
}

type Handler struct {
	service Service
	auditor Auditor
}

func NewHandler(service Service, auditor Auditor) *Handler {
	return &Handler{service: service, auditor: auditor}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	waitlist := r.Group("/waitlist")
	{
		waitlist.POST("", h.AddToWaitlist)
		waitlist.GET("", h.ListEntries)
		waitlist.GET("/:id", h.GetEntry)
		waitlist.POST("/:id/claim", h.Claim)
		waitlist.POST("/:id/expire", middleware.RequireRole(auth.RoleAdmin), h.Expire)
		waitlist.DELETE("/:id", h.RemoveFromWaitlist)
	}
}

func (h *Handler) AddToWaitlist(c *gin.Context) {
	rc, ok := handler.Caller(c)
	if !ok {
		return
	}
	var req model.AddToWaitlistRequest
	if !handler.Bind(c, &req) {
		return
	}

	entry, err := h.service.AddToWaitlist(c.Request.Context(), rc.TenantID, &req)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	h.record(c, rc, model.AuditActionAdd, entry.ID, nil, entry)
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(entry))
}

func (h *Handler) GetEntry(c *gin.Context) {
	rc, ok := handler.Caller(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id", "waitlist entry")
	if !ok {
		return
	}

	entry, err := h.service.GetEntry(c.Request.Context(), rc.TenantID, id)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) ListEntries(c *gin.Context) {
	rc, ok := handler.Caller(c)
	if !ok {
		return
	}

	var filter model.WaitlistFilter
	if !handler.BindQuery(c, &filter.Page) {
		return
	}
	if filter.PatientID, ok = handler.QueryUUID(c, "patient_id"); !ok {
		return
	}
	if filter.PractitionerID, ok = handler.QueryUUID(c, "practitioner_id"); !ok {
		return
	}
	if raw := c.Query("status"); raw != "" {
		status := model.WaitlistStatus(raw)
		if !status.Valid() {
			middleware.Fail(c, apperrors.NewBadRequest("invalid status", nil))
			return
		}
		filter.Status = &status
	}

	entries, err := h.service.ListEntries(c.Request.Context(), rc.TenantID, &filter)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}

func (h *Handler) Claim(c *gin.Context) {
	h.transition(c, model.AuditActionClaim, h.service.Claim)
}

func (h *Handler) Expire(c *gin.Context) {
	h.transition(c, model.AuditActionExpire, h.service.Expire)
}

func (h *Handler) transition(c *gin.Context, action string, fn func(ctx context.Context, tenantID, id uuid.UUID) (*model.WaitlistEntry, error)) {
	rc, ok := handler.Caller(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id", "waitlist entry")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	before, err := h.service.GetEntry(ctx, rc.TenantID, id)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	entry, err := fn(ctx, rc.TenantID, id)
	if err != nil {
		// A late claim still changed state; audit the expiry it caused.
		if apperrors.As(err).Code == apperrors.CodeClaimExpired {
			h.record(c, rc, model.AuditActionExpire, id, before, nil)
		}
		middleware.Fail(c, err)
		return
	}

	h.record(c, rc, action, id, before, entry)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) RemoveFromWaitlist(c *gin.Context) {
	rc, ok := handler.Caller(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id", "waitlist entry")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	before, err := h.service.GetEntry(ctx, rc.TenantID, id)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	if err := h.service.RemoveFromWaitlist(ctx, rc.TenantID, id); err != nil {
		middleware.Fail(c, err)
		return
	}

	h.record(c, rc, model.AuditActionRemove, id, before, nil)
	c.Status(http.StatusNoContent)
}

func (h *Handler) record(c *gin.Context, rc *middleware.RequestContext, action string, id uuid.UUID, before, after interface{}) {
	if h.auditor == nil {
		return
	}
	h.auditor.Record(c.Request.Context(), audit.Entry{
		TenantID:   rc.TenantID,
		ActorID:    rc.ActorID,
		Action:     action,
		EntityType: model.AuditEntityWaitlistEntry,
		EntityID:   id,
		Before:     before,
		After:      after,
		RequestID:  rc.RequestID,
	})
}
