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
)

const waitlistColumns = `
	id, tenant_id, patient_id, practitioner_id,
	desired_date_start, desired_date_end, status,
	created_at, updated_at, notified_at, claimed_at,
	offered_practitioner_id, offered_start_time, offered_end_time`

func (r *waitlistRepository) Create(ctx context.Context, entry *model.WaitlistEntry) error {
	query := `
		INSERT INTO waitlist_entries (
			id, tenant_id, patient_id, practitioner_id,
			desired_date_start, desired_date_end, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.UpdatedAt = entry.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.PatientID,
		entry.PractitionerID,
		entry.DesiredDateStart,
		entry.DesiredDateEnd,
		entry.Status,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create waitlist entry: %w", err)
	}
	return nil
}

func (r *waitlistRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE id = $1 AND tenant_id = $2
	`
	var entry model.WaitlistEntry
	err := r.db.GetContext(ctx, &entry, query, id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("waitlist entry", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entry: %w", err)
	}
	return &entry, nil
}

func (r *waitlistRepository) List(ctx context.Context, tenantID uuid.UUID, filter *model.WaitlistFilter) ([]*model.WaitlistEntry, error) {
	if filter == nil {
		filter = &model.WaitlistFilter{}
	}
	page := filter.Page.Normalize()

	conds := []string{"tenant_id = $1"}
	args := []interface{}{tenantID}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.PatientID != nil {
		add("patient_id = $%d", *filter.PatientID)
	}
	if filter.PractitionerID != nil {
		add("practitioner_id = $%d", *filter.PractitionerID)
	}
	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}

	args = append(args, page.Limit, page.Offset)
	query := fmt.Sprintf(`SELECT %s
		FROM waitlist_entries
		WHERE %s
		ORDER BY created_at ASC, id ASC
		LIMIT $%d OFFSET $%d`,
		waitlistColumns, strings.Join(conds, " AND "), len(args)-1, len(args))

	var entries []*model.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list waitlist entries: %w", err)
	}
	return entries, nil
}

func (r *waitlistRepository) FindCandidates(ctx context.Context, slot model.FreedSlot, limit int) ([]*model.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE tenant_id = $1
		AND status = 'active'
		AND (practitioner_id IS NULL OR practitioner_id = $2)
		AND desired_date_start <= $3
		AND desired_date_end >= $4
		ORDER BY created_at ASC, id ASC
		LIMIT $5
	`
	var entries []*model.WaitlistEntry
	err := r.db.SelectContext(ctx, &entries, query,
		slot.TenantID, slot.PractitionerID, slot.StartTime, slot.EndTime, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find waitlist candidates: %w", err)
	}
	return entries, nil
}

func (r *waitlistRepository) MarkNotified(ctx context.Context, tenantID, id uuid.UUID, slot model.FreedSlot, at time.Time) (*model.WaitlistEntry, error) {
	query := `
		UPDATE waitlist_entries
		SET notified_at = $1, updated_at = $1,
		    offered_practitioner_id = $2, offered_start_time = $3, offered_end_time = $4
		WHERE id = $5 AND tenant_id = $6 AND status = 'active'
		RETURNING ` + waitlistColumns

	var entry model.WaitlistEntry
	err := r.db.GetContext(ctx, &entry, query,
		at, slot.PractitionerID, slot.StartTime, slot.EndTime, id, tenantID)
	if err == nil {
		return &entry, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to mark waitlist entry notified: %w", err)
	}
	return nil, r.missOrInvalidState(ctx, tenantID, id)
}

func (r *waitlistRepository) TransitionStatus(ctx context.Context, tenantID, id uuid.UUID, from, to model.WaitlistStatus, at time.Time) (*model.WaitlistEntry, error) {
	query := `
		UPDATE waitlist_entries
		SET status = $1,
		    updated_at = $2,
		    claimed_at = CASE WHEN $1 = 'claimed' THEN $2 ELSE claimed_at END
		WHERE id = $3 AND tenant_id = $4 AND status = $5
		RETURNING ` + waitlistColumns

	var entry model.WaitlistEntry
	err := r.db.GetContext(ctx, &entry, query, string(to), at, id, tenantID, string(from))
	if err == nil {
		return &entry, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to transition waitlist entry: %w", err)
	}
	return nil, r.missOrInvalidState(ctx, tenantID, id)
}

func (r *waitlistRepository) ResolveOffer(ctx context.Context, tenantID, id uuid.UUID, notifiedAt *time.Time, to model.WaitlistStatus, at time.Time) (*model.WaitlistEntry, error) {
	query := `
		UPDATE waitlist_entries
		SET status = $1,
		    updated_at = $2,
		    claimed_at = CASE WHEN $1 = 'claimed' THEN $2 ELSE claimed_at END
		WHERE id = $3 AND tenant_id = $4 AND status = 'active'
		AND notified_at IS NOT DISTINCT FROM $5
		RETURNING ` + waitlistColumns

	var entry model.WaitlistEntry
	err := r.db.GetContext(ctx, &entry, query, string(to), at, id, tenantID, notifiedAt)
	if err == nil {
		return &entry, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve waitlist offer: %w", err)
	}
	return nil, r.missOrInvalidState(ctx, tenantID, id)
}

func (r *waitlistRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM waitlist_entries WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete waitlist entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NewNotFound("waitlist entry", nil)
	}
	return nil
}

func (r *waitlistRepository) ListLapsedOffers(ctx context.Context, cutoff time.Time, limit int) ([]*model.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + `
		FROM waitlist_entries
		WHERE status = 'active'
		AND notified_at IS NOT NULL
		AND notified_at <= $1
		ORDER BY notified_at ASC
		LIMIT $2
	`
	var entries []*model.WaitlistEntry
	if err := r.db.SelectContext(ctx, &entries, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("failed to list lapsed offers: %w", err)
	}
	return entries, nil
}

// missOrInvalidState distinguishes a missing row from one whose status gate failed.
func (r *waitlistRepository) missOrInvalidState(ctx context.Context, tenantID, id uuid.UUID) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM waitlist_entries WHERE id = $1 AND tenant_id = $2)`,
		id, tenantID); err != nil {
		return fmt.Errorf("failed to check waitlist entry: %w", err)
	}
	if !exists {
		return apperrors.NewNotFound("waitlist entry", nil)
	}
	return apperrors.ErrInvalidState
}
