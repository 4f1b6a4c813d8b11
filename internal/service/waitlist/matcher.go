package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/logger"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
)

// candidateBatch bounds how many FIFO candidates are tried when earlier ones
// change state between the read and the notify.
const candidateBatch = 10

// NotificationDispatcher delivers an offer to the selected entry.
type NotificationDispatcher interface {
	Notify(ctx context.Context, entry *model.WaitlistEntry, slot model.FreedSlot) error
}

type Matcher struct {
	repo     repository.WaitlistRepository
	notifier NotificationDispatcher
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewMatcher(repo repository.WaitlistRepository, notifier NotificationDispatcher, log *logger.Logger, m *metrics.Metrics) *Matcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Matcher{
		repo:     repo,
		notifier: notifier,
		log:      log,
		metrics:  m,
		now:      time.Now,
	}
}

// WithClock overrides the matcher's clock.
func (m *Matcher) WithClock(now func() time.Time) *Matcher {
	m.now = now
	return m
}

// Match notifies the earliest active entry that accepts slot and returns it,
// or nil when nothing matches. Notification failures are logged only.
func (m *Matcher) Match(ctx context.Context, slot model.FreedSlot) (*model.WaitlistEntry, error) {
	candidates, err := m.repo.FindCandidates(ctx, slot, candidateBatch)
	if err != nil {
		m.metrics.MatchResult("error")
		return nil, fmt.Errorf("failed to find waitlist candidates: %w", err)
	}

	for _, candidate := range candidates {
		entry, err := m.repo.MarkNotified(ctx, candidate.TenantID, candidate.ID, slot, m.now().UTC())
		if err != nil {
			if errors.Is(err, apperrors.ErrInvalidState) || errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			m.metrics.MatchResult("error")
			return nil, fmt.Errorf("failed to mark entry notified: %w", err)
		}

		m.notify(ctx, entry, slot)
		m.metrics.MatchResult("notified")
		m.log.Info("waitlist entry notified",
			"tenant_id", entry.TenantID.String(),
			"entry_id", entry.ID.String(),
			"appointment_id", slot.AppointmentID.String())
		return entry, nil
	}

	m.metrics.MatchResult("no_candidate")
	return nil, nil
}

// HandleSlotFreed lets the matcher sit behind the event dispatcher.
func (m *Matcher) HandleSlotFreed(ctx context.Context, slot model.FreedSlot) error {
	_, err := m.Match(ctx, slot)
	return err
}

func (m *Matcher) notify(ctx context.Context, entry *model.WaitlistEntry, slot model.FreedSlot) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, entry, slot); err != nil {
		m.metrics.NotificationFailure()
		m.log.Error(err, "failed to dispatch waitlist notification",
			"tenant_id", entry.TenantID.String(),
			"entry_id", entry.ID.String())
	}
}
