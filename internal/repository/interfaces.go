package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
)

// All repository interfaces in one file. Tenant-scoped lookups treat a row
// owned by another tenant exactly like a missing row and return
// apperrors.ErrNotFound.
type (
	AppointmentRepository interface {
		// Create inserts with version 1. A storage-level overlap or uniqueness
		// violation is reported as apperrors.ErrSlotTaken.
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Appointment, error)
		// UpdateIfVersion writes appointment only if the stored version equals
		// expectedVersion and returns the stored row at expectedVersion+1.
		UpdateIfVersion(ctx context.Context, appointment *model.Appointment, expectedVersion int) (*model.Appointment, error)
		// FindOverlapping returns scheduled appointments of the practitioner
		// intersecting [start, end).
		FindOverlapping(ctx context.Context, tenantID, practitionerID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*model.Appointment, error)
		List(ctx context.Context, tenantID uuid.UUID, filter *model.AppointmentFilter) ([]*model.Appointment, error)
		Delete(ctx context.Context, tenantID, id uuid.UUID) error
	}

	WaitlistRepository interface {
		Create(ctx context.Context, entry *model.WaitlistEntry) error
		Get(ctx context.Context, tenantID, id uuid.UUID) (*model.WaitlistEntry, error)
		List(ctx context.Context, tenantID uuid.UUID, filter *model.WaitlistFilter) ([]*model.WaitlistEntry, error)
		// FindCandidates returns active entries matching slot ordered by
		// created_at, id ascending.
		FindCandidates(ctx context.Context, slot model.FreedSlot, limit int) ([]*model.WaitlistEntry, error)
		// MarkNotified records an offer on an entry that is still active;
		// otherwise apperrors.ErrInvalidState.
		MarkNotified(ctx context.Context, tenantID, id uuid.UUID, slot model.FreedSlot, at time.Time) (*model.WaitlistEntry, error)
		// TransitionStatus moves an entry from one status to another only if
		// it is currently in from; otherwise apperrors.ErrInvalidState.
		TransitionStatus(ctx context.Context, tenantID, id uuid.UUID, from, to model.WaitlistStatus, at time.Time) (*model.WaitlistEntry, error)
		// ResolveOffer moves an active entry to to only while its notified_at
		// still equals notifiedAt (nil for never notified); otherwise
		// apperrors.ErrInvalidState.
		ResolveOffer(ctx context.Context, tenantID, id uuid.UUID, notifiedAt *time.Time, to model.WaitlistStatus, at time.Time) (*model.WaitlistEntry, error)
		Delete(ctx context.Context, tenantID, id uuid.UUID) error
		// ListLapsedOffers returns active entries notified before cutoff.
		ListLapsedOffers(ctx context.Context, cutoff time.Time, limit int) ([]*model.WaitlistEntry, error)
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Patient, error)
		// OwnerTenant resolves the tenant owning a patient, unscoped.
		OwnerTenant(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	}

	PractitionerRepository interface {
		Create(ctx context.Context, practitioner *model.Practitioner) error
		Get(ctx context.Context, tenantID, id uuid.UUID) (*model.Practitioner, error)
		OwnerTenant(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	}

	WorkingHoursRepository interface {
		Upsert(ctx context.Context, hours *model.WorkingHours) error
		ListForPractitioner(ctx context.Context, tenantID, practitionerID uuid.UUID) ([]*model.WorkingHours, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending locks up to limit pending events for this worker, plus
		// PROCESSING events last touched before staleBefore.
		ClaimPending(ctx context.Context, limit int, staleBefore time.Time) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		ListForEntity(ctx context.Context, tenantID uuid.UUID, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error)
	}
)

// Store bundles one instance of every repository.
type Store struct {
	Appointments  AppointmentRepository
	Waitlist      WaitlistRepository
	Patients      PatientRepository
	Practitioners PractitionerRepository
	WorkingHours  WorkingHoursRepository
	Outbox        OutboxRepository
	Audit         AuditRepository
}
