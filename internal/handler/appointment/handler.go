package appointment

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/handler"
	"github.com/jwalitptl/scheduling-api/internal/middleware"
	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/service/audit"
	"github.com/jwalitptl/scheduling-api/pkg/auth"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

const dateLayout = "2006-01-02"

type Service interface {
	CreateAppointment(ctx context.Context, tenantID uuid.UUID, req *model.CreateAppointmentRequest) (*model.Appointment, error)
	GetAppointment(ctx context.Context, tenantID, id uuid.UUID) (*model.Appointment, error)
	ListAppointments(ctx context.Context, tenantID uuid.UUID, filter *model.AppointmentFilter) ([]*model.Appointment, error)
	UpdateAppointment(ctx context.Context, tenantID, id uuid.UUID, expectedVersion int, changes model.AppointmentChanges) (*model.Appointment, error)
	CancelAppointment(ctx context.Context, tenantID, id uuid.UUID, reason *string) (*model.Appointment, error)
	DeleteAppointment(ctx context.Context, tenantID, id uuid.UUID) error
	GetAvailability(ctx context.Context, tenantID, practitionerID uuid.UUID, startDate, endDate time.Time) ([]model.AvailabilitySlot, error)
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
	appointments := r.Group("/appointments")
	{
		appointments.POST("", h.CreateAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PATCH("/:id", h.UpdateAppointment)
		appointments.POST("/:id/cancel", h.CancelAppointment)
		appointments.DELETE("/:id", middleware.RequireRole(auth.RoleAdmin), h.DeleteAppointment)
	}
	r.GET("/practitioners/:id/availability", h.GetAvailability)
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	rc, ok := handler.Caller(c)
	if !ok {
		return
	}
	var req model.CreateAppointmentRequest
	if !handler.Bind(c, &req) {
		return
	}

	apt, err := h.service.CreateAppointment(c.Request.Context(), rc.TenantID, &req)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	h.record(c, rc, model.AuditActionCreate, apt.ID, nil, apt)
	setETag(c, apt)
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(apt))
}

func (h *Handler) GetAppointment(c *gin.Context) {
	rc, ok := handler.Caller(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id", "appointment")
	if !ok {
		return
	}

	apt, err := h.service.GetAppointment(c.Request.Context(), rc.TenantID, id)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	setETag(c, apt)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) ListAppointments(c *gin.Context) {
	rc, ok := handler.Caller(c)
	if !ok {
		return
	}

	var filter model.AppointmentFilter
	if !handler.BindQuery(c, &filter.Page) {
		return
	}
	if filter.PractitionerID, ok = handler.QueryUUID(c, "practitioner_id"); !ok {
		return
	}
	if filter.PatientID, ok = handler.QueryUUID(c, "patient_id"); !ok {
		return
	}
	if filter.From, ok = handler.QueryTime(c, "from"); !ok {
		return
	}
	if filter.To, ok = handler.QueryTime(c, "to"); !ok {
		return
	}
	if raw := c.Query("status"); raw != "" {
		status := model.AppointmentStatus(raw)
		if !status.Valid() {
			middleware.Fail(c, apperrors.NewBadRequest("invalid status", nil))
			return
		}
		filter.Status = &status
	}

	appointments, err := h.service.ListAppointments(c.Request.Context(), rc.TenantID, &filter)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(appointments))
}

// UpdateAppointment takes the expected version from the body or from an
// If-Match header carrying the ETag of a previous read.
func (h *Handler) UpdateAppointment(c *gin.Context) {
	rc, ok := handler.Caller(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id", "appointment")
	if !ok {
		return
	}
	var req model.UpdateAppointmentRequest
	if !handler.Bind(c, &req) {
		return
	}

	expected, err := expectedVersion(c, req.ExpectedVersion)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	ctx := c.Request.Context()
	before, err := h.service.GetAppointment(ctx, rc.TenantID, id)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	apt, err := h.service.UpdateAppointment(ctx, rc.TenantID, id, expected, req.Changes())
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	h.record(c, rc, model.AuditActionUpdate, apt.ID, before, apt)
	setETag(c, apt)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	rc, ok := handler.Caller(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id", "appointment")
	if !ok {
		return
	}
	var req model.CancelAppointmentRequest
	if c.Request.ContentLength != 0 && !handler.Bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	before, err := h.service.GetAppointment(ctx, rc.TenantID, id)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	apt, err := h.service.CancelAppointment(ctx, rc.TenantID, id, req.Reason)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	h.record(c, rc, model.AuditActionCancel, apt.ID, before, apt)
	setETag(c, apt)
	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) DeleteAppointment(c *gin.Context) {
	rc, ok := handler.Caller(c)
	if !ok {
		return
	}
	id, ok := handler.ParamUUID(c, "id", "appointment")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	before, err := h.service.GetAppointment(ctx, rc.TenantID, id)
	if err != nil {
		middleware.Fail(c, err)
		return
	}
	if err := h.service.DeleteAppointment(ctx, rc.TenantID, id); err != nil {
		middleware.Fail(c, err)
		return
	}

	h.record(c, rc, model.AuditActionDelete, id, before, nil)
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetAvailability(c *gin.Context) {
	rc, ok := handler.Caller(c)
	if !ok {
		return
	}
	practitionerID, ok := handler.ParamUUID(c, "id", "practitioner")
	if !ok {
		return
	}

	startDate, err := time.Parse(dateLayout, c.Query("start_date"))
	if err != nil {
		middleware.Fail(c, apperrors.NewBadRequest("start_date must be YYYY-MM-DD", err))
		return
	}
	endDate := startDate
	if raw := c.Query("end_date"); raw != "" {
		if endDate, err = time.Parse(dateLayout, raw); err != nil {
			middleware.Fail(c, apperrors.NewBadRequest("end_date must be YYYY-MM-DD", err))
			return
		}
	}

	slots, err := h.service.GetAvailability(c.Request.Context(), rc.TenantID, practitionerID, startDate, endDate)
	if err != nil {
		middleware.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(slots))
}

func (h *Handler) record(c *gin.Context, rc *middleware.RequestContext, action string, id uuid.UUID, before, after interface{}) {
	if h.auditor == nil {
		return
	}
	h.auditor.Record(c.Request.Context(), audit.Entry{
		TenantID:   rc.TenantID,
		ActorID:    rc.ActorID,
		Action:     action,
		EntityType: model.AuditEntityAppointment,
		EntityID:   id,
		Before:     before,
		After:      after,
		RequestID:  rc.RequestID,
	})
}

func setETag(c *gin.Context, apt *model.Appointment) {
	c.Header("ETag", FormatETag(apt.Version))
}

// FormatETag renders a version as a weak entity tag.
func FormatETag(version int) string {
	return fmt.Sprintf(`W/"%d"`, version)
}

// ParseETag accepts W/"n", "n" or a bare n.
func ParseETag(tag string) (int, error) {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "W/")
	tag = strings.Trim(tag, `"`)
	v, err := strconv.Atoi(tag)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("invalid entity tag %q", tag)
	}
	return v, nil
}

func expectedVersion(c *gin.Context, fromBody *int) (int, error) {
	if fromBody != nil {
		return *fromBody, nil
	}
	if ifMatch := c.GetHeader("If-Match"); ifMatch != "" {
		v, err := ParseETag(ifMatch)
		if err != nil {
			return 0, apperrors.NewBadRequest("If-Match must carry an appointment version", err)
		}
		return v, nil
	}
	return 0, apperrors.NewBadRequest("expected_version or If-Match is required", nil)
}
