package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/internal/repository/memory"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/messaging"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
)

type failingBroker struct {
	mu    sync.Mutex
	calls int
}

func (b *failingBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return errors.New("broker unavailable")
}

func (b *failingBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *failingBroker) Close() error { return nil }

var testConfig = OutboxProcessorConfig{
	BatchSize:       10,
	PollInterval:    10 * time.Millisecond,
	RetryAttempts:   3,
	RetryDelay:      time.Millisecond,
	MaxFailures:     2,
	ProcessingLease: time.Minute,
}

func newProcessor(t *testing.T, repo repository.OutboxRepository, broker messaging.Broker, cfg OutboxProcessorConfig) (*OutboxProcessor, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics(prometheus.NewRegistry(), "test", "worker")
	p, err := NewOutboxProcessor(repo, broker, cfg, logger.Nop(), m)
	require.NoError(t, err)
	return p, m
}

func addEvent(t *testing.T, repo repository.OutboxRepository, payload string) *model.OutboxEvent {
	t.Helper()
	e := &model.OutboxEvent{
		TenantID:  uuid.New(),
		EventType: model.EventWaitlistOffer,
		Payload:   json.RawMessage(payload),
	}
	require.NoError(t, repo.Create(context.Background(), e))
	return e
}

func TestProcessBatch_Publishes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := memory.NewOutboxRepository()
	broker := messaging.NewMemoryBroker()
	sub, err := broker.Subscribe(ctx, model.EventWaitlistOffer)
	require.NoError(t, err)

	addEvent(t, repo, `{"entry_id":"a"}`)
	addEvent(t, repo, `{"entry_id":"b"}`)

	p, m := newProcessor(t, repo, broker, testConfig)
	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboxEventsProcessed))

	got := []string{string(<-sub), string(<-sub)}
	assert.ElementsMatch(t, []string{`{"entry_id":"a"}`, `{"entry_id":"b"}`}, got)

	// Nothing left to claim.
	n, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessBatch_FailureMarksEvent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepository()
	broker := &failingBroker{}
	addEvent(t, repo, `{}`)

	cfg := testConfig
	cfg.RetryAttempts = 2
	p, m := newProcessor(t, repo, broker, cfg)

	// First batch: retried, then back to pending.
	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, broker.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxRetries.WithLabelValues(model.EventWaitlistOffer)))

	// Second batch exhausts the budget and the event is failed for good.
	_, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OutboxEventsFailed))

	pending, err := repo.ClaimPending(ctx, 10, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessBatch_FailureBudgetCountsBatches(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepository()
	broker := &failingBroker{}
	addEvent(t, repo, `{}`)

	cfg := testConfig
	cfg.RetryAttempts = 3
	cfg.MaxFailures = 1
	p, _ := newProcessor(t, repo, broker, cfg)

	for i := 0; i < 3; i++ {
		_, err := p.ProcessBatch(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, broker.calls, "one batch of retries, then the event is failed")
}

// cancelAwareOutbox fails writes made with a cancelled context, like a SQL
// driver does.
type cancelAwareOutbox struct {
	repository.OutboxRepository
}

func (r cancelAwareOutbox) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.OutboxRepository.MarkFailed(ctx, id, errMsg, maxRetries)
}

func TestProcessBatch_ReleasesClaimOnShutdown(t *testing.T) {
	inner := memory.NewOutboxRepository()
	repo := cancelAwareOutbox{inner}
	addEvent(t, repo, `{}`)

	cfg := testConfig
	cfg.RetryDelay = time.Hour
	cfg.MaxFailures = 5
	p, _ := newProcessor(t, repo, &failingBroker{}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ProcessBatch(ctx)
	require.NoError(t, err)

	// The event went back to PENDING instead of staying claimed.
	pending, err := inner.ClaimPending(context.Background(), 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
}

func TestProcessBatch_ReclaimsStaleProcessing(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepository()
	broker := messaging.NewMemoryBroker()
	sub, err := broker.Subscribe(ctx, model.EventWaitlistOffer)
	require.NoError(t, err)

	addEvent(t, repo, `{"entry_id":"stranded"}`)
	// A worker claims the event and dies before marking it.
	claimed, err := repo.ClaimPending(ctx, 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	p, _ := newProcessor(t, repo, broker, testConfig)

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "claim is still within its lease")

	p.now = func() time.Time { return time.Now().Add(testConfig.ProcessingLease + time.Second) }
	n, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.JSONEq(t, `{"entry_id":"stranded"}`, string(<-sub))

	// Processed events are never reclaimed.
	n, err = p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCleanup_KeepsRecent(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepository()
	e := addEvent(t, repo, `{}`)

	_, err := repo.ClaimPending(ctx, 10, time.Time{})
	require.NoError(t, err)
	processedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkProcessed(ctx, e.ID, processedAt))

	cfg := testConfig
	cfg.Retention = 24 * time.Hour
	p, _ := newProcessor(t, repo, messaging.NewMemoryBroker(), cfg)

	p.now = func() time.Time { return processedAt.Add(12 * time.Hour) }
	require.NoError(t, p.Cleanup(ctx))
	n, err := repo.DeleteProcessedBefore(ctx, processedAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "event inside retention must survive cleanup")
}

func TestCleanup_RemovesExpired(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepository()
	e := addEvent(t, repo, `{}`)
	_, err := repo.ClaimPending(ctx, 10, time.Time{})
	require.NoError(t, err)
	processedAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkProcessed(ctx, e.ID, processedAt))

	cfg := testConfig
	cfg.Retention = time.Hour
	p, _ := newProcessor(t, repo, messaging.NewMemoryBroker(), cfg)
	p.now = func() time.Time { return processedAt.Add(2 * time.Hour) }
	require.NoError(t, p.Cleanup(ctx))

	n, err := repo.DeleteProcessedBefore(ctx, processedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig.Validate())

	bad := testConfig
	bad.BatchSize = 0
	assert.Error(t, bad.Validate())

	_, err := NewOutboxProcessor(memory.NewOutboxRepository(), messaging.NewMemoryBroker(), bad, logger.Nop(), nil)
	assert.Error(t, err)
}

func TestPeriodic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runs := make(chan struct{}, 8)
	p := NewPeriodic("test", 5*time.Millisecond, func(ctx context.Context) error {
		runs <- struct{}{}
		return errors.New("ignored")
	}, nil)

	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	<-runs
	<-runs
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic job did not stop")
	}
}
