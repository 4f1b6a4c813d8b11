// Package notification turns waitlist matches into outbox events that the
// worker publishes and relays by email.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

type Service struct {
	outbox      repository.OutboxRepository
	patients    repository.PatientRepository
	claimWindow time.Duration
}

func NewService(outbox repository.OutboxRepository, patients repository.PatientRepository, claimWindow time.Duration) *Service {
	return &Service{
		outbox:      outbox,
		patients:    patients,
		claimWindow: claimWindow,
	}
}

// Notify records a waitlist.offer event for entry.
func (s *Service) Notify(ctx context.Context, entry *model.WaitlistEntry, slot model.FreedSlot) error {
	if entry.NotifiedAt == nil {
		return fmt.Errorf("entry %s has not been notified", entry.ID)
	}

	offer := model.WaitlistOffer{
		EntryID:        entry.ID,
		TenantID:       entry.TenantID,
		PatientID:      entry.PatientID,
		PractitionerID: slot.PractitionerID,
		StartTime:      slot.StartTime,
		EndTime:        slot.EndTime,
		NotifiedAt:     *entry.NotifiedAt,
		ClaimDeadline:  entry.NotifiedAt.Add(s.claimWindow),
	}

	patient, err := s.patients.Get(ctx, entry.TenantID, entry.PatientID)
	switch {
	case err == nil:
		offer.PatientName = patient.Name
		offer.PatientEmail = patient.Email
	case errors.Is(err, apperrors.ErrNotFound):
		// Still record the offer; the relay skips entries without a recipient.
	default:
		return fmt.Errorf("failed to load patient: %w", err)
	}

	payload, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &model.OutboxEvent{
		ID:        uuid.New(),
		TenantID:  entry.TenantID,
		EventType: model.EventWaitlistOffer,
		Payload:   payload,
		Status:    model.OutboxStatusPending,
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}
