// Package audit records mutations to the audit repository and a JSON audit
// stream. Recording is fire-and-forget from the caller's point of view.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
)

const writeTimeout = 5 * time.Second

// Entry describes one mutation. Before and After are marshalled to JSON.
type Entry struct {
	TenantID   uuid.UUID
	ActorID    string
	Action     string
	EntityType string
	EntityID   uuid.UUID
	Before     interface{}
	After      interface{}
	RequestID  string
}

type Service struct {
	repo repository.AuditRepository
	sink *zap.Logger
	log  *logger.Logger
	now  func() time.Time
	wg   sync.WaitGroup
}

// NewService builds the recorder. sink may be nil to skip the JSON stream.
func NewService(repo repository.AuditRepository, sink *zap.Logger, log *logger.Logger) *Service {
	if sink == nil {
		sink = zap.NewNop()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{repo: repo, sink: sink, log: log, now: time.Now}
}

// NewSink opens the JSON audit stream at path; "" or "stdout" writes to stdout.
func NewSink(path string) (*zap.Logger, error) {
	var ws zapcore.WriteSyncer = zapcore.Lock(os.Stdout)
	if path != "" && path != "stdout" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		ws = zapcore.Lock(f)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, zapcore.InfoLevel)
	return zap.New(core).Named("audit"), nil
}

// Record writes e in the background. Failures are logged, never returned.
func (s *Service) Record(ctx context.Context, e Entry) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()
		if err := s.RecordSync(ctx, e); err != nil {
			s.log.Error(err, "failed to record audit log",
				"entity_type", e.EntityType,
				"entity_id", e.EntityID.String(),
				"action", e.Action)
		}
	}()
}

func (s *Service) RecordSync(ctx context.Context, e Entry) error {
	before, err := marshal(e.Before)
	if err != nil {
		return err
	}
	after, err := marshal(e.After)
	if err != nil {
		return err
	}

	log := &model.AuditLog{
		ID:         uuid.New(),
		TenantID:   e.TenantID,
		ActorID:    e.ActorID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Before:     before,
		After:      after,
		RequestID:  e.RequestID,
		CreatedAt:  s.now().UTC(),
	}

	s.sink.Info("audit",
		zap.String("audit_id", log.ID.String()),
		zap.String("tenant_id", log.TenantID.String()),
		zap.String("actor_id", log.ActorID),
		zap.String("action", log.Action),
		zap.String("entity_type", log.EntityType),
		zap.String("entity_id", log.EntityID.String()),
		zap.String("request_id", log.RequestID),
		zap.Reflect("before", before),
		zap.Reflect("after", after),
	)

	if err := s.repo.Create(ctx, log); err != nil {
		return fmt.Errorf("failed to persist audit log: %w", err)
	}
	return nil
}

func (s *Service) History(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	return s.repo.ListForEntity(ctx, tenantID, entityType, entityID)
}

// Wait blocks until background writes finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close flushes pending writes and the JSON stream.
func (s *Service) Close() {
	s.wg.Wait()
	// Sync on a terminal stdout returns EINVAL; nothing is lost.
	_ = s.sink.Sync()
}

func marshal(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit state: %w", err)
	}
	return b, nil
}
