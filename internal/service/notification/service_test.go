package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository/memory"
)

func TestNotify_WritesOfferToOutbox(t *testing.T) {
	ctx := context.Background()
	outbox := memory.NewOutboxRepository()
	patients := memory.NewPatientRepository()

	tenantID := uuid.New()
	patient := &model.Patient{TenantID: tenantID, Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, patients.Create(ctx, patient))

	notifiedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	entry := &model.WaitlistEntry{ID: uuid.New(), TenantID: tenantID, PatientID: patient.ID, NotifiedAt: &notifiedAt}
	slot := model.FreedSlot{
		TenantID:       tenantID,
		PractitionerID: uuid.New(),
		StartTime:      notifiedAt.Add(2 * time.Hour),
		EndTime:        notifiedAt.Add(150 * time.Minute),
	}

	svc := NewService(outbox, patients, time.Hour)
	require.NoError(t, svc.Notify(ctx, entry, slot))

	events, err := outbox.ClaimPending(ctx, 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventWaitlistOffer, events[0].EventType)
	assert.Equal(t, tenantID, events[0].TenantID)

	var offer model.WaitlistOffer
	require.NoError(t, json.Unmarshal(events[0].Payload, &offer))
	assert.Equal(t, entry.ID, offer.EntryID)
	assert.Equal(t, "ada@example.com", offer.PatientEmail)
	assert.Equal(t, slot.PractitionerID, offer.PractitionerID)
	assert.True(t, offer.ClaimDeadline.Equal(notifiedAt.Add(time.Hour)))
}

func TestNotify_MissingPatientStillRecordsOffer(t *testing.T) {
	ctx := context.Background()
	outbox := memory.NewOutboxRepository()

	notifiedAt := time.Now().UTC()
	entry := &model.WaitlistEntry{ID: uuid.New(), TenantID: uuid.New(), PatientID: uuid.New(), NotifiedAt: &notifiedAt}
	require.NoError(t, NewService(outbox, memory.NewPatientRepository(), time.Hour).Notify(ctx, entry, model.FreedSlot{}))

	events, err := outbox.ClaimPending(ctx, 10, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	var offer model.WaitlistOffer
	require.NoError(t, json.Unmarshal(events[0].Payload, &offer))
	assert.Empty(t, offer.PatientEmail)
}

func TestNotify_RequiresNotifiedEntry(t *testing.T) {
	svc := NewService(memory.NewOutboxRepository(), memory.NewPatientRepository(), time.Hour)
	err := svc.Notify(context.Background(), &model.WaitlistEntry{ID: uuid.New()}, model.FreedSlot{})
	assert.Error(t, err)
}
