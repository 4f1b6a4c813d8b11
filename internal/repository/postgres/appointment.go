package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/optimistic"
)

const appointmentColumns = `
	id, tenant_id, patient_id, practitioner_id,
	start_time, end_time, status, version, notes, cancellation_reason,
	created_at, updated_at`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, tenant_id, patient_id, practitioner_id,
			start_time, end_time, status, version, notes, cancellation_reason,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = time.Now().UTC()
	}
	appointment.UpdatedAt = appointment.CreatedAt
	appointment.Version = optimistic.InitialVersion

	_, err := r.db.ExecContext(ctx, query,
		appointment.ID,
		appointment.TenantID,
		appointment.PatientID,
		appointment.PractitionerID,
		appointment.StartTime,
		appointment.EndTime,
		appointment.Status,
		appointment.Version,
		appointment.Notes,
		appointment.CancellationReason,
		appointment.CreatedAt,
	)
	if err != nil {
		if isSlotConflict(err) {
			return apperrors.ErrSlotTaken.Wrap(err)
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id = $1 AND tenant_id = $2
	`
	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("appointment", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

func (r *appointmentRepository) UpdateIfVersion(ctx context.Context, appointment *model.Appointment, expectedVersion int) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET practitioner_id = $1, start_time = $2, end_time = $3, status = $4,
		    notes = $5, cancellation_reason = $6,
		    version = version + 1, updated_at = $7
		WHERE id = $8 AND tenant_id = $9 AND version = $10
		RETURNING ` + appointmentColumns

	var updated model.Appointment
	err := r.db.GetContext(ctx, &updated, query,
		appointment.PractitionerID,
		appointment.StartTime,
		appointment.EndTime,
		appointment.Status,
		appointment.Notes,
		appointment.CancellationReason,
		time.Now().UTC(),
		appointment.ID,
		appointment.TenantID,
		expectedVersion,
	)
	switch {
	case err == nil:
		return &updated, nil
	case isSlotConflict(err):
		return nil, apperrors.ErrSlotTaken.Wrap(err)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to update appointment: %w", err)
	}

	// Zero rows: either the row is gone or its version moved on.
	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1 AND tenant_id = $2)`,
		appointment.ID, appointment.TenantID); err != nil {
		return nil, fmt.Errorf("failed to check appointment: %w", err)
	}
	if !exists {
		return nil, apperrors.NewNotFound("appointment", nil)
	}
	return nil, apperrors.ErrVersionConflict
}

func (r *appointmentRepository) FindOverlapping(ctx context.Context, tenantID, practitionerID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE tenant_id = $1
		AND practitioner_id = $2
		AND status = 'scheduled'
		AND start_time < $4
		AND end_time > $3
	`
	args := []interface{}{tenantID, practitionerID, start, end}
	if excludeID != nil {
		query += " AND id <> $5"
		args = append(args, *excludeID)
	}
	query += " ORDER BY start_time ASC"

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find overlapping appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) List(ctx context.Context, tenantID uuid.UUID, filter *model.AppointmentFilter) ([]*model.Appointment, error) {
	if filter == nil {
		filter = &model.AppointmentFilter{}
	}
	page := filter.Page.Normalize()

	conds := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.PractitionerID != nil {
		add("practitioner_id = $%d", *filter.PractitionerID)
	}
	if filter.PatientID != nil {
		add("patient_id = $%d", *filter.PatientID)
	}
	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if filter.From != nil {
		add("end_time >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("start_time < $%d", *filter.To)
	}

	args = append(args, page.Limit, page.Offset)
	query := fmt.Sprintf(`SELECT %s
		FROM appointments
		WHERE %s
		ORDER BY start_time ASC, id ASC
		LIMIT $%d OFFSET $%d`,
		appointmentColumns, strings.Join(conds, " AND "), len(args)-1, len(args))

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM appointments WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("appointment", nil)
	}
	return nil
}
