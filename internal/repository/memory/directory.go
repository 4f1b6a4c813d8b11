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
)

type patientRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]model.Patient
}

func NewPatientRepository() repository.PatientRepository {
	return &patientRepository{rows: make(map[uuid.UUID]model.Patient)}
}

func (r *patientRepository) Create(ctx context.Context, p *model.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	stamp(&p.Base)
	r.rows[p.ID] = *p
	return nil
}

func (r *patientRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.rows[id]
	if !ok || p.TenantID != tenantID {
		return nil, apperrors.NewNotFound("patient", nil)
	}
	return &p, nil
}

func (r *patientRepository) OwnerTenant(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.rows[id]
	if !ok {
		return uuid.Nil, apperrors.NewNotFound("patient", nil)
	}
	return p.TenantID, nil
}

type practitionerRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]model.Practitioner
}

func NewPractitionerRepository() repository.PractitionerRepository {
	return &practitionerRepository{rows: make(map[uuid.UUID]model.Practitioner)}
}

func (r *practitionerRepository) Create(ctx context.Context, p *model.Practitioner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	stamp(&p.Base)
	r.rows[p.ID] = *p
	return nil
}

func (r *practitionerRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Practitioner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.rows[id]
	if !ok || p.TenantID != tenantID {
		return nil, apperrors.NewNotFound("practitioner", nil)
	}
	return &p, nil
}

func (r *practitionerRepository) OwnerTenant(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.rows[id]
	if !ok {
		return uuid.Nil, apperrors.NewNotFound("practitioner", nil)
	}
	return p.TenantID, nil
}

type workingHoursRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]map[time.Weekday]model.WorkingHours
}

func NewWorkingHoursRepository() repository.WorkingHoursRepository {
	return &workingHoursRepository{rows: make(map[uuid.UUID]map[time.Weekday]model.WorkingHours)}
}

func (r *workingHoursRepository) Upsert(ctx context.Context, h *model.WorkingHours) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	days, ok := r.rows[h.PractitionerID]
	if !ok {
		days = make(map[time.Weekday]model.WorkingHours)
		r.rows[h.PractitionerID] = days
	}
	days[h.Weekday] = *h
	return nil
}

func (r *workingHoursRepository) ListForPractitioner(ctx context.Context, tenantID, practitionerID uuid.UUID) ([]*model.WorkingHours, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.WorkingHours
	for _, h := range r.rows[practitionerID] {
		if h.TenantID != tenantID {
			continue
		}
		h := h
		out = append(out, &h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

func stamp(b *model.Base) {
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}
