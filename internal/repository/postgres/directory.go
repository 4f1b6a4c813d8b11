package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (id, tenant_id, name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	patient.CreatedAt = time.Now().UTC()
	patient.UpdatedAt = patient.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		patient.ID, patient.TenantID, patient.Name, patient.Email, patient.Phone, patient.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Patient, error) {
	var patient model.Patient
	err := r.db.GetContext(ctx, &patient, `
		SELECT id, tenant_id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("patient", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) OwnerTenant(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	return ownerTenant(ctx, r.db, "patients", "patient", id)
}

func (r *practitionerRepository) Create(ctx context.Context, p *model.Practitioner) error {
	query := `
		INSERT INTO practitioners (id, tenant_id, name, email, specialty, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.TenantID, p.Name, p.Email, p.Specialty, p.Timezone, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create practitioner: %w", err)
	}
	return nil
}

func (r *practitionerRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Practitioner, error) {
	var p model.Practitioner
	err := r.db.GetContext(ctx, &p, `
		SELECT id, tenant_id, name, email, specialty, timezone, created_at, updated_at
		FROM practitioners
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("practitioner", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get practitioner: %w", err)
	}
	return &p, nil
}

func (r *practitionerRepository) OwnerTenant(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	return ownerTenant(ctx, r.db, "practitioners", "practitioner", id)
}

func (r *workingHoursRepository) Upsert(ctx context.Context, h *model.WorkingHours) error {
	query := `
		INSERT INTO working_hours (
			id, tenant_id, practitioner_id, weekday,
			start_time, end_time, break_start, break_end
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (practitioner_id, weekday) DO UPDATE
		SET start_time = EXCLUDED.start_time,
		    end_time = EXCLUDED.end_time,
		    break_start = EXCLUDED.break_start,
		    break_end = EXCLUDED.break_end
	`
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, query,
		h.ID, h.TenantID, h.PractitionerID, int(h.Weekday),
		h.StartTime, h.EndTime, h.BreakStart, h.BreakEnd)
	if err != nil {
		return fmt.Errorf("failed to upsert working hours: %w", err)
	}
	return nil
}

func (r *workingHoursRepository) ListForPractitioner(ctx context.Context, tenantID, practitionerID uuid.UUID) ([]*model.WorkingHours, error) {
	var hours []*model.WorkingHours
	err := r.db.SelectContext(ctx, &hours, `
		SELECT id, tenant_id, practitioner_id, weekday, start_time, end_time, break_start, break_end
		FROM working_hours
		WHERE tenant_id = $1 AND practitioner_id = $2
		ORDER BY weekday ASC
	`, tenantID, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list working hours: %w", err)
	}
	return hours, nil
}

func ownerTenant(ctx context.Context, db interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}, table, resource string, id uuid.UUID) (uuid.UUID, error) {
	var tenantID uuid.UUID
	err := db.GetContext(ctx, &tenantID, `SELECT tenant_id FROM `+table+` WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, apperrors.NewNotFound(resource, nil)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve %s tenant: %w", resource, err)
	}
	return tenantID, nil
}
