package model

import (
	"time"

	"github.com/google/uuid"
)

const EventWaitlistOffer = "waitlist.offer"

// WaitlistOffer is the payload published when a waitlisted patient is offered a slot.
type WaitlistOffer struct {
	EntryID        uuid.UUID `json:"entry_id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	PatientName    string    `json:"patient_name"`
	PatientEmail   string    `json:"patient_email"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	NotifiedAt     time.Time `json:"notified_at"`
	ClaimDeadline  time.Time `json:"claim_deadline"`
}
