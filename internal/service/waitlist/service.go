package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
)

// MaxDesiredRange caps the span of a waitlist request.
const MaxDesiredRange = 30 * 24 * time.Hour

// claimAttempts bounds how often Claim re-reads an entry whose offer changed
// under it.
const claimAttempts = 2

var errOfferMoved = errors.New("waitlist offer changed during claim")

type TenantGuard interface {
	Check(ctx context.Context, tenantID, patientID uuid.UUID, practitionerID *uuid.UUID) error
}

type Service struct {
	repo    repository.WaitlistRepository
	guard   TenantGuard
	window  ClaimWindow
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClaimWindow(w ClaimWindow) Option {
	return func(s *Service) { s.window = w }
}

func NewService(repo repository.WaitlistRepository, guard TenantGuard, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		guard:  guard,
		window: NewClaimWindow(DefaultClaimWindow),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) AddToWaitlist(ctx context.Context, tenantID uuid.UUID, req *model.AddToWaitlistRequest) (entry *model.WaitlistEntry, err error) {
	defer func() { s.metrics.WaitlistOutcome("add", err) }()

	if err := s.guard.Check(ctx, tenantID, req.PatientID, req.PractitionerID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	start, end := req.DesiredDateStart.UTC(), req.DesiredDateEnd.UTC()
	switch {
	case start.Before(now):
		return nil, apperrors.ErrDesiredStartInPast
	case !end.After(start):
		return nil, apperrors.ErrInvalidRange.WithMessage("desired end must be after desired start")
	case end.Sub(start) > MaxDesiredRange:
		return nil, apperrors.ErrRangeTooWide.WithMessage("desired range cannot exceed 30 days")
	}

	entry = &model.WaitlistEntry{
		ID:               uuid.New(),
		TenantID:         tenantID,
		PatientID:        req.PatientID,
		PractitionerID:   req.PractitionerID,
		DesiredDateStart: start,
		DesiredDateEnd:   end,
		Status:           model.WaitlistStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) GetEntry(ctx context.Context, tenantID, id uuid.UUID) (*model.WaitlistEntry, error) {
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) ListEntries(ctx context.Context, tenantID uuid.UUID, filter *model.WaitlistFilter) ([]*model.WaitlistEntry, error) {
	return s.repo.List(ctx, tenantID, filter)
}

// Claim accepts the offer on an active entry. A late claim expires the entry
// and returns CLAIM_EXPIRED.
func (s *Service) Claim(ctx context.Context, tenantID, id uuid.UUID) (entry *model.WaitlistEntry, err error) {
	defer func() { s.metrics.WaitlistOutcome("claim", err) }()

	for attempt := 1; ; attempt++ {
		entry, err = s.claim(ctx, tenantID, id)
		if !errors.Is(err, errOfferMoved) {
			return entry, err
		}
		if attempt == claimAttempts {
			return nil, apperrors.ErrInvalidState.WithMessage("waitlist entry changed during claim")
		}
	}
}

// claim judges the window against the offer it read and resolves the entry
// only if that offer is still the current one.
func (s *Service) claim(ctx context.Context, tenantID, id uuid.UUID) (*model.WaitlistEntry, error) {
	current, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if current.Status != model.WaitlistStatusActive {
		return nil, apperrors.ErrInvalidState.WithMessage("waitlist entry is %s", current.Status)
	}

	now := s.now().UTC()
	open := s.window.IsOpen(current.NotifiedAt, now)
	to := model.WaitlistStatusClaimed
	if !open {
		to = model.WaitlistStatusExpired
	}

	entry, err := s.repo.ResolveOffer(ctx, tenantID, id, current.NotifiedAt, to, now)
	switch {
	case errors.Is(err, apperrors.ErrInvalidState):
		return nil, errOfferMoved
	case err != nil:
		return nil, err
	case !open:
		return nil, apperrors.ErrClaimExpired
	}
	return entry, nil
}

// Expire moves an active entry to expired regardless of its claim window.
func (s *Service) Expire(ctx context.Context, tenantID, id uuid.UUID) (entry *model.WaitlistEntry, err error) {
	defer func() { s.metrics.WaitlistOutcome("expire", err) }()

	current, err := s.load(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if current.Status != model.WaitlistStatusActive {
		return nil, apperrors.ErrInvalidState.WithMessage("waitlist entry is %s", current.Status)
	}
	return s.repo.TransitionStatus(ctx, tenantID, id, model.WaitlistStatusActive, model.WaitlistStatusExpired, s.now().UTC())
}

// RemoveFromWaitlist deletes the entry whatever its status.
func (s *Service) RemoveFromWaitlist(ctx context.Context, tenantID, id uuid.UUID) (err error) {
	defer func() { s.metrics.WaitlistOutcome("remove", err) }()

	if _, err := s.load(ctx, tenantID, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, tenantID, id)
}

func (s *Service) load(ctx context.Context, tenantID, id uuid.UUID) (*model.WaitlistEntry, error) {
	entry, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Check(ctx, tenantID, entry.PatientID, entry.PractitionerID); err != nil {
		return nil, err
	}
	return entry, nil
}
