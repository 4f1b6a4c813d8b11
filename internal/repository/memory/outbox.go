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

type outboxRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*model.OutboxEvent
}

func NewOutboxRepository() repository.OutboxRepository {
	return &outboxRepository{rows: make(map[uuid.UUID]*model.OutboxEvent)}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Status = model.OutboxStatusPending
	cp := *event
	r.rows[event.ID] = &cp
	return nil
}

func (r *outboxRepository) ClaimPending(ctx context.Context, limit int, staleBefore time.Time) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.OutboxEvent
	for _, e := range r.rows {
		stale := e.Status == model.OutboxStatusProcessing && e.UpdatedAt.Before(staleBefore)
		if e.Status == model.OutboxStatusPending || stale {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	claimed := make([]*model.OutboxEvent, 0, len(out))
	for _, e := range out {
		e.Status = model.OutboxStatusProcessing
		e.UpdatedAt = time.Now().UTC()
		cp := *e
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.rows[id]
	if !ok {
		return apperrors.NewNotFound("outbox event", nil)
	}
	e.Status = model.OutboxStatusProcessed
	e.ProcessedAt = &at
	e.UpdatedAt = at
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.rows[id]
	if !ok {
		return apperrors.NewNotFound("outbox event", nil)
	}
	e.RetryCount++
	e.ErrorMessage = &errMsg
	e.UpdatedAt = time.Now().UTC()
	e.Status = model.OutboxStatusPending
	if e.RetryCount >= maxRetries {
		e.Status = model.OutboxStatusFailed
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, e := range r.rows {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}
