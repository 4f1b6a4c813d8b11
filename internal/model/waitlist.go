package model

import (
	"time"

	"github.com/google/uuid"
)

type WaitlistStatus string

const (
	WaitlistStatusActive  WaitlistStatus = "active"
	WaitlistStatusClaimed WaitlistStatus = "claimed"
	WaitlistStatusExpired WaitlistStatus = "expired"
)

func (s WaitlistStatus) Valid() bool {
	return s == WaitlistStatusActive || s == WaitlistStatusClaimed || s == WaitlistStatusExpired
}

type WaitlistEntry struct {
	ID        uuid.UUID `db:"id" json:"id"`
	TenantID  uuid.UUID `db:"tenant_id" json:"tenant_id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	// nil accepts any practitioner.
	PractitionerID   *uuid.UUID     `db:"practitioner_id" json:"practitioner_id,omitempty"`
	DesiredDateStart time.Time      `db:"desired_date_start" json:"desired_date_start"`
	DesiredDateEnd   time.Time      `db:"desired_date_end" json:"desired_date_end"`
	Status           WaitlistStatus `db:"status" json:"status"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
	NotifiedAt       *time.Time     `db:"notified_at" json:"notified_at,omitempty"`
	ClaimedAt        *time.Time     `db:"claimed_at" json:"claimed_at,omitempty"`

	// Slot most recently offered to this entry.
	OfferedPractitionerID *uuid.UUID `db:"offered_practitioner_id" json:"offered_practitioner_id,omitempty"`
	OfferedStartTime      *time.Time `db:"offered_start_time" json:"offered_start_time,omitempty"`
	OfferedEndTime        *time.Time `db:"offered_end_time" json:"offered_end_time,omitempty"`
}

// Matches reports whether a freed slot satisfies this entry's preferences.
func (e *WaitlistEntry) Matches(slot FreedSlot) bool {
	if e.Status != WaitlistStatusActive || e.TenantID != slot.TenantID {
		return false
	}
	if e.PractitionerID != nil && *e.PractitionerID != slot.PractitionerID {
		return false
	}
	return !slot.StartTime.Before(e.DesiredDateStart) && !slot.EndTime.After(e.DesiredDateEnd)
}

func (e *WaitlistEntry) Clone() *WaitlistEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.PractitionerID = cloneUUID(e.PractitionerID)
	c.OfferedPractitionerID = cloneUUID(e.OfferedPractitionerID)
	c.NotifiedAt = cloneTime(e.NotifiedAt)
	c.ClaimedAt = cloneTime(e.ClaimedAt)
	c.OfferedStartTime = cloneTime(e.OfferedStartTime)
	c.OfferedEndTime = cloneTime(e.OfferedEndTime)
	return &c
}

type AddToWaitlistRequest struct {
	PatientID        uuid.UUID  `json:"patient_id" binding:"required"`
	PractitionerID   *uuid.UUID `json:"practitioner_id"`
	DesiredDateStart time.Time  `json:"desired_date_start" binding:"required"`
	DesiredDateEnd   time.Time  `json:"desired_date_end" binding:"required"`
}

type WaitlistFilter struct {
	PatientID      *uuid.UUID
	PractitionerID *uuid.UUID
	Status         *WaitlistStatus
	Page
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
