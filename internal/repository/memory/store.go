package memory

import "github.com/jwalitptl/scheduling-api/internal/repository"

// NewStore returns a fresh set of in-memory repositories.
func NewStore() *repository.Store {
	return &repository.Store{
		Appointments:  NewAppointmentRepository(),
		Waitlist:      NewWaitlistRepository(),
		Patients:      NewPatientRepository(),
		Practitioners: NewPractitionerRepository(),
		WorkingHours:  NewWorkingHoursRepository(),
		Outbox:        NewOutboxRepository(),
		Audit:         NewAuditRepository(),
	}
}
