package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
)

type auditRepository struct {
	mu   sync.RWMutex
	logs []*model.AuditLog
}

func NewAuditRepository() repository.AuditRepository {
	return &auditRepository{}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	cp := *log
	r.logs = append(r.logs, &cp)
	return nil
}

func (r *auditRepository) ListForEntity(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.AuditLog
	for _, l := range r.logs {
		if l.TenantID == tenantID && l.EntityType == entityType && l.EntityID == entityID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}
