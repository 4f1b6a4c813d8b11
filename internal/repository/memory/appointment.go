// Package memory provides in-process repositories with the same conflict
// and compare-and-set semantics as the postgres implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/optimistic"
)

type appointmentRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*model.Appointment
}

func NewAppointmentRepository() repository.AppointmentRepository {
	return &appointmentRepository{rows: make(map[uuid.UUID]*model.Appointment)}
}

func (r *appointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	if _, exists := r.rows[apt.ID]; exists {
		return apperrors.NewBadRequest("appointment id already exists", nil)
	}
	if apt.Status == model.AppointmentStatusScheduled && r.conflictLocked(apt, nil) {
		return apperrors.ErrSlotTaken
	}

	now := time.Now().UTC()
	if apt.CreatedAt.IsZero() {
		apt.CreatedAt = now
	}
	apt.UpdatedAt = apt.CreatedAt
	apt.Version = optimistic.InitialVersion

	r.rows[apt.ID] = apt.Clone()
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[id]
	if !ok || row.TenantID != tenantID {
		return nil, apperrors.NewNotFound("appointment", nil)
	}
	return row.Clone(), nil
}

func (r *appointmentRepository) UpdateIfVersion(ctx context.Context, apt *model.Appointment, expectedVersion int) (*model.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[apt.ID]
	if !ok || row.TenantID != apt.TenantID {
		return nil, apperrors.NewNotFound("appointment", nil)
	}
	if row.Version != expectedVersion {
		return nil, apperrors.ErrVersionConflict
	}
	if apt.Status == model.AppointmentStatusScheduled && r.conflictLocked(apt, &apt.ID) {
		return nil, apperrors.ErrSlotTaken
	}

	next := apt.Clone()
	next.CreatedAt = row.CreatedAt
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now().UTC()
	r.rows[next.ID] = next
	return next.Clone(), nil
}

func (r *appointmentRepository) FindOverlapping(ctx context.Context, tenantID, practitionerID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Appointment
	for _, row := range r.rows {
		if row.TenantID != tenantID || row.PractitionerID != practitionerID {
			continue
		}
		if row.Status != model.AppointmentStatusScheduled {
			continue
		}
		if excludeID != nil && row.ID == *excludeID {
			continue
		}
		if row.Overlaps(start, end) {
			out = append(out, row.Clone())
		}
	}
	sortAppointments(out)
	return out, nil
}

func (r *appointmentRepository) List(ctx context.Context, tenantID uuid.UUID, filter *model.AppointmentFilter) ([]*model.Appointment, error) {
	if filter == nil {
		filter = &model.AppointmentFilter{}
	}
	page := filter.Page.Normalize()

	r.mu.RLock()
	var out []*model.Appointment
	for _, row := range r.rows {
		if row.TenantID != tenantID {
			continue
		}
		if filter.PractitionerID != nil && row.PractitionerID != *filter.PractitionerID {
			continue
		}
		if filter.PatientID != nil && row.PatientID != *filter.PatientID {
			continue
		}
		if filter.Status != nil && row.Status != *filter.Status {
			continue
		}
		if filter.From != nil && row.EndTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !row.StartTime.Before(*filter.To) {
			continue
		}
		out = append(out, row.Clone())
	}
	r.mu.RUnlock()

	sortAppointments(out)
	return paginate(out, page), nil
}

func (r *appointmentRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok || row.TenantID != tenantID {
		return apperrors.NewNotFound("appointment", nil)
	}
	delete(r.rows, id)
	return nil
}

func (r *appointmentRepository) conflictLocked(apt *model.Appointment, excludeID *uuid.UUID) bool {
	for _, row := range r.rows {
		if excludeID != nil && row.ID == *excludeID {
			continue
		}
		if row.TenantID != apt.TenantID || row.PractitionerID != apt.PractitionerID {
			continue
		}
		if row.Status == model.AppointmentStatusScheduled && row.Overlaps(apt.StartTime, apt.EndTime) {
			return true
		}
	}
	return false
}

func sortAppointments(rows []*model.Appointment) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StartTime.Equal(rows[j].StartTime) {
			return rows[i].ID.String() < rows[j].ID.String()
		}
		return rows[i].StartTime.Before(rows[j].StartTime)
	})
}

func paginate[T any](rows []T, page model.Page) []T {
	if page.Offset >= len(rows) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[page.Offset:end]
}
