package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
	"github.com/jwalitptl/scheduling-api/pkg/optimistic"
)

// TenantGuard rejects references to entities outside the acting tenant.
type TenantGuard interface {
	Check(ctx context.Context, tenantID, patientID uuid.UUID, practitionerID *uuid.UUID) error
}

// SlotFreedPublisher hands a freed slot to the waitlist. Publish must not
// block and has no failure path visible to the caller.
type SlotFreedPublisher interface {
	Publish(slot model.FreedSlot)
}

type Service struct {
	repo          repository.AppointmentRepository
	hours         repository.WorkingHoursRepository
	practitioners repository.PractitionerRepository
	guard         TenantGuard
	overlap       *OverlapDetector
	versions      *optimistic.Controller[*model.Appointment]
	slotFreed     SlotFreedPublisher
	metrics       *metrics.Metrics
	now           func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(
	repo repository.AppointmentRepository,
	hours repository.WorkingHoursRepository,
	practitioners repository.PractitionerRepository,
	guard TenantGuard,
	slotFreed SlotFreedPublisher,
	opts ...Option,
) *Service {
	s := &Service{
		repo:          repo,
		hours:         hours,
		practitioners: practitioners,
		guard:         guard,
		overlap:       NewOverlapDetector(repo),
		versions:      optimistic.NewController[*model.Appointment](repo),
		slotFreed:     slotFreed,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateAppointment(ctx context.Context, tenantID uuid.UUID, req *model.CreateAppointmentRequest) (apt *model.Appointment, err error) {
	defer func() { s.metrics.AppointmentOutcome("create", err) }()

	if err := s.guard.Check(ctx, tenantID, req.PatientID, &req.PractitionerID); err != nil {
		return nil, err
	}

	start, end := req.StartTime.UTC(), req.EndTime.UTC()
	now := s.now().UTC()
	if err := ValidateTimeRange(start, end, now); err != nil {
		return nil, err
	}
	if err := s.overlap.Check(ctx, tenantID, req.PractitionerID, start, end, nil); err != nil {
		return nil, err
	}

	apt = &model.Appointment{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		TenantID:       tenantID,
		PatientID:      req.PatientID,
		PractitionerID: req.PractitionerID,
		StartTime:      start,
		EndTime:        end,
		Status:         model.AppointmentStatusScheduled,
		Version:        optimistic.InitialVersion,
		Notes:          req.Notes,
	}

	// A concurrent booking that slipped past the overlap check surfaces
	// here as SLOT_TAKEN from the storage constraint.
	if err := s.repo.Create(ctx, apt); err != nil {
		return nil, err
	}
	return apt, nil
}

func (s *Service) GetAppointment(ctx context.Context, tenantID, id uuid.UUID) (*model.Appointment, error) {
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) ListAppointments(ctx context.Context, tenantID uuid.UUID, filter *model.AppointmentFilter) ([]*model.Appointment, error) {
	return s.repo.List(ctx, tenantID, filter)
}

// UpdateAppointment applies changes conditioned on expectedVersion.
func (s *Service) UpdateAppointment(ctx context.Context, tenantID, id uuid.UUID, expectedVersion int, changes model.AppointmentChanges) (apt *model.Appointment, err error) {
	defer func() { s.metrics.AppointmentOutcome("update", err) }()

	current, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	previous := current.Clone()

	practitionerID := current.PractitionerID
	if changes.PractitionerID != nil {
		practitionerID = *changes.PractitionerID
	}
	if err := s.guard.Check(ctx, tenantID, current.PatientID, &practitionerID); err != nil {
		return nil, err
	}

	start, end := current.StartTime, current.EndTime
	if changes.StartTime != nil {
		start = changes.StartTime.UTC()
	}
	if changes.EndTime != nil {
		end = changes.EndTime.UTC()
	}
	rescheduled := !start.Equal(current.StartTime) || !end.Equal(current.EndTime) ||
		practitionerID != current.PractitionerID

	status := current.Status
	if changes.Status != nil && *changes.Status != current.Status {
		if !current.Status.CanTransitionTo(*changes.Status) {
			return nil, apperrors.ErrInvalidTransition.WithMessage(
				"cannot change status from %s to %s", current.Status, *changes.Status)
		}
		status = *changes.Status
	}

	if rescheduled {
		if current.Status != model.AppointmentStatusScheduled {
			return nil, apperrors.ErrInvalidTransition.WithMessage(
				"cannot reschedule a %s appointment", current.Status)
		}
		if err := ValidateTimeRange(start, end, s.now().UTC()); err != nil {
			return nil, err
		}
		if status == model.AppointmentStatusScheduled {
			if err := s.overlap.Check(ctx, tenantID, practitionerID, start, end, &current.ID); err != nil {
				return nil, err
			}
		}
	}

	updated, err := s.versions.Apply(ctx, current, expectedVersion, func(a *model.Appointment) error {
		a.PractitionerID = practitionerID
		a.StartTime = start
		a.EndTime = end
		a.Status = status
		if changes.Notes != nil {
			a.Notes = *changes.Notes
		}
		if changes.CancellationReason != nil {
			a.CancellationReason = changes.CancellationReason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if previous.Status == model.AppointmentStatusScheduled && updated.Status == model.AppointmentStatusCancelled {
		s.releaseSlot(previous)
	}
	return updated, nil
}

// CancelAppointment cancels against the currently stored version and hands
// the freed slot to the waitlist without waiting on it.
func (s *Service) CancelAppointment(ctx context.Context, tenantID, id uuid.UUID, reason *string) (apt *model.Appointment, err error) {
	defer func() { s.metrics.AppointmentOutcome("cancel", err) }()

	current, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Check(ctx, tenantID, current.PatientID, &current.PractitionerID); err != nil {
		return nil, err
	}

	switch current.Status {
	case model.AppointmentStatusCancelled:
		return nil, apperrors.ErrAlreadyCancelled
	case model.AppointmentStatusCompleted:
		return nil, apperrors.ErrCannotCancelCompleted
	case model.AppointmentStatusNoShow:
		return nil, apperrors.ErrInvalidTransition.WithMessage("cannot cancel a no-show appointment")
	}
	previous := current.Clone()

	updated, err := s.versions.Apply(ctx, current, current.Version, func(a *model.Appointment) error {
		a.Status = model.AppointmentStatusCancelled
		a.CancellationReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.releaseSlot(previous)
	return updated, nil
}

// DeleteAppointment removes a finished appointment. Scheduled appointments
// must be cancelled first so the waitlist sees the freed slot.
func (s *Service) DeleteAppointment(ctx context.Context, tenantID, id uuid.UUID) (err error) {
	defer func() { s.metrics.AppointmentOutcome("delete", err) }()

	current, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.guard.Check(ctx, tenantID, current.PatientID, &current.PractitionerID); err != nil {
		return err
	}
	if current.Status == model.AppointmentStatusScheduled {
		return apperrors.ErrInvalidState.WithMessage("cancel the appointment before deleting it")
	}
	return s.repo.Delete(ctx, tenantID, id)
}

func (s *Service) releaseSlot(apt *model.Appointment) {
	if s.slotFreed == nil {
		return
	}
	s.slotFreed.Publish(model.FreedSlot{
		TenantID:       apt.TenantID,
		PractitionerID: apt.PractitionerID,
		StartTime:      apt.StartTime,
		EndTime:        apt.EndTime,
		AppointmentID:  apt.ID,
	})
}
