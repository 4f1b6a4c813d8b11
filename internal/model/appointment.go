package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusNoShow    AppointmentStatus = "no_show"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusCompleted,
		AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s AppointmentStatus) IsTerminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled || s == AppointmentStatusNoShow
}

// CanTransitionTo only allows moves out of scheduled.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	return s == AppointmentStatusScheduled && next.IsTerminal()
}

type Appointment struct {
	Base
	TenantID           uuid.UUID         `db:"tenant_id" json:"tenant_id"`
	PatientID          uuid.UUID         `db:"patient_id" json:"patient_id"`
	PractitionerID     uuid.UUID         `db:"practitioner_id" json:"practitioner_id"`
	StartTime          time.Time         `db:"start_time" json:"start_time"`
	EndTime            time.Time         `db:"end_time" json:"end_time"`
	Status             AppointmentStatus `db:"status" json:"status"`
	Version            int               `db:"version" json:"version"`
	Notes              string            `db:"notes" json:"notes,omitempty"`
	CancellationReason *string           `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
}

func (a *Appointment) GetVersion() int {
	return a.Version
}

// Overlaps uses half-open semantics: touching intervals do not overlap.
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && start.Before(a.EndTime)
}

func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	c := *a
	if a.CancellationReason != nil {
		r := *a.CancellationReason
		c.CancellationReason = &r
	}
	return &c
}

type CreateAppointmentRequest struct {
	PatientID      uuid.UUID `json:"patient_id" binding:"required"`
	PractitionerID uuid.UUID `json:"practitioner_id" binding:"required"`
	StartTime      time.Time `json:"start_time" binding:"required"`
	EndTime        time.Time `json:"end_time" binding:"required"`
	Notes          string    `json:"notes" binding:"max=1000"`
}

type UpdateAppointmentRequest struct {
	ExpectedVersion    *int               `json:"expected_version" binding:"omitempty,min=1"`
	PractitionerID     *uuid.UUID         `json:"practitioner_id"`
	StartTime          *time.Time         `json:"start_time"`
	EndTime            *time.Time         `json:"end_time"`
	Status             *AppointmentStatus `json:"status" binding:"omitempty,appointment_status"`
	Notes              *string            `json:"notes" binding:"omitempty,max=1000"`
	CancellationReason *string            `json:"cancellation_reason" binding:"omitempty,max=500"`
}

// AppointmentChanges is the set of fields an update may touch; nil means unchanged.
type AppointmentChanges struct {
	PractitionerID     *uuid.UUID
	StartTime          *time.Time
	EndTime            *time.Time
	Status             *AppointmentStatus
	Notes              *string
	CancellationReason *string
}

func (r *UpdateAppointmentRequest) Changes() AppointmentChanges {
	return AppointmentChanges{
		PractitionerID:     r.PractitionerID,
		StartTime:          r.StartTime,
		EndTime:            r.EndTime,
		Status:             r.Status,
		Notes:              r.Notes,
		CancellationReason: r.CancellationReason,
	}
}

type CancelAppointmentRequest struct {
	Reason *string `json:"reason" binding:"omitempty,max=500"`
}

type AppointmentFilter struct {
	PractitionerID *uuid.UUID
	PatientID      *uuid.UUID
	Status         *AppointmentStatus
	From           *time.Time
	To             *time.Time
	Page
}

// AvailabilitySlot is one fixed-granularity slot of a practitioner's day.
type AvailabilitySlot struct {
	Date      string    `json:"date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Available bool      `json:"available"`
}

// FreedSlot is the interval released by a cancellation.
type FreedSlot struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	AppointmentID  uuid.UUID `json:"appointment_id"`
}
