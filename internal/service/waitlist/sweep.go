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

const DefaultSweepBatch = 100

// Sweeper expires active entries whose offer lapsed unclaimed. It never
// re-offers the slot.
type Sweeper struct {
	repo    repository.WaitlistRepository
	window  ClaimWindow
	batch   int
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewSweeper(repo repository.WaitlistRepository, window ClaimWindow, batch int, log *logger.Logger, m *metrics.Metrics) *Sweeper {
	if batch <= 0 {
		batch = DefaultSweepBatch
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{
		repo:    repo,
		window:  window,
		batch:   batch,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// SweepOnce expires one batch and returns how many entries it expired.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()
	lapsed, err := s.repo.ListLapsedOffers(ctx, now.Add(-s.window.Duration), s.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to list lapsed offers: %w", err)
	}

	expired := 0
	for _, entry := range lapsed {
		_, err := s.repo.ResolveOffer(ctx, entry.TenantID, entry.ID,
			entry.NotifiedAt, model.WaitlistStatusExpired, now)
		if err != nil {
			// Claimed, removed or offered a new slot since the read.
			if errors.Is(err, apperrors.ErrInvalidState) || errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return expired, fmt.Errorf("failed to expire entry %s: %w", entry.ID, err)
		}
		expired++
	}

	if expired > 0 {
		if s.metrics != nil {
			s.metrics.LapsedOffersExpired.Add(float64(expired))
		}
		s.log.Info("expired lapsed waitlist offers", "count", expired)
	}
	return expired, nil
}
