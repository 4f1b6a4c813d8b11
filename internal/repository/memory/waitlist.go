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

type waitlistRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*model.WaitlistEntry
}

func NewWaitlistRepository() repository.WaitlistRepository {
	return &waitlistRepository{rows: make(map[uuid.UUID]*model.WaitlistEntry)}
}

func (r *waitlistRepository) Create(ctx context.Context, entry *model.WaitlistEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.UpdatedAt = entry.CreatedAt
	r.rows[entry.ID] = entry.Clone()
	return nil
}

func (r *waitlistRepository) Get(ctx context.Context, tenantID, id uuid.UUID) (*model.WaitlistEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[id]
	if !ok || row.TenantID != tenantID {
		return nil, apperrors.NewNotFound("waitlist entry", nil)
	}
	return row.Clone(), nil
}

func (r *waitlistRepository) List(ctx context.Context, tenantID uuid.UUID, filter *model.WaitlistFilter) ([]*model.WaitlistEntry, error) {
	if filter == nil {
		filter = &model.WaitlistFilter{}
	}
	page := filter.Page.Normalize()

	r.mu.RLock()
	var out []*model.WaitlistEntry
	for _, row := range r.rows {
		if row.TenantID != tenantID {
			continue
		}
		if filter.PatientID != nil && row.PatientID != *filter.PatientID {
			continue
		}
		if filter.PractitionerID != nil && (row.PractitionerID == nil || *row.PractitionerID != *filter.PractitionerID) {
			continue
		}
		if filter.Status != nil && row.Status != *filter.Status {
			continue
		}
		out = append(out, row.Clone())
	}
	r.mu.RUnlock()

	sortFIFO(out)
	return paginate(out, page), nil
}

func (r *waitlistRepository) FindCandidates(ctx context.Context, slot model.FreedSlot, limit int) ([]*model.WaitlistEntry, error) {
	r.mu.RLock()
	var out []*model.WaitlistEntry
	for _, row := range r.rows {
		if row.Matches(slot) {
			out = append(out, row.Clone())
		}
	}
	r.mu.RUnlock()

	sortFIFO(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *waitlistRepository) MarkNotified(ctx context.Context, tenantID, id uuid.UUID, slot model.FreedSlot, at time.Time) (*model.WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok || row.TenantID != tenantID {
		return nil, apperrors.NewNotFound("waitlist entry", nil)
	}
	if row.Status != model.WaitlistStatusActive {
		return nil, apperrors.ErrInvalidState
	}

	next := row.Clone()
	notifiedAt := at
	start, end, practitionerID := slot.StartTime, slot.EndTime, slot.PractitionerID
	next.NotifiedAt = &notifiedAt
	next.OfferedStartTime = &start
	next.OfferedEndTime = &end
	next.OfferedPractitionerID = &practitionerID
	next.UpdatedAt = at
	r.rows[id] = next
	return next.Clone(), nil
}

func (r *waitlistRepository) TransitionStatus(ctx context.Context, tenantID, id uuid.UUID, from, to model.WaitlistStatus, at time.Time) (*model.WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(tenantID, id, func(row *model.WaitlistEntry) bool { return row.Status == from }, to, at)
}

func (r *waitlistRepository) ResolveOffer(ctx context.Context, tenantID, id uuid.UUID, notifiedAt *time.Time, to model.WaitlistStatus, at time.Time) (*model.WaitlistEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitionLocked(tenantID, id, func(row *model.WaitlistEntry) bool {
		return row.Status == model.WaitlistStatusActive && sameInstant(row.NotifiedAt, notifiedAt)
	}, to, at)
}

func (r *waitlistRepository) transitionLocked(tenantID, id uuid.UUID, allowed func(*model.WaitlistEntry) bool, to model.WaitlistStatus, at time.Time) (*model.WaitlistEntry, error) {
	row, ok := r.rows[id]
	if !ok || row.TenantID != tenantID {
		return nil, apperrors.NewNotFound("waitlist entry", nil)
	}
	if !allowed(row) {
		return nil, apperrors.ErrInvalidState
	}

	next := row.Clone()
	next.Status = to
	next.UpdatedAt = at
	if to == model.WaitlistStatusClaimed {
		claimedAt := at
		next.ClaimedAt = &claimedAt
	}
	r.rows[id] = next
	return next.Clone(), nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (r *waitlistRepository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok || row.TenantID != tenantID {
		return apperrors.NewNotFound("waitlist entry", nil)
	}
	delete(r.rows, id)
	return nil
}

func (r *waitlistRepository) ListLapsedOffers(ctx context.Context, cutoff time.Time, limit int) ([]*model.WaitlistEntry, error) {
	r.mu.RLock()
	var out []*model.WaitlistEntry
	for _, row := range r.rows {
		if row.Status == model.WaitlistStatusActive && row.NotifiedAt != nil && !row.NotifiedAt.After(cutoff) {
			out = append(out, row.Clone())
		}
	}
	r.mu.RUnlock()

	sortFIFO(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sortFIFO orders by created_at then id, matching the postgres ORDER BY.
func sortFIFO(rows []*model.WaitlistEntry) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID.String() < rows[j].ID.String()
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
}
