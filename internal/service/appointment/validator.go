package appointment

import (
	"time"

	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

const (
	MinLeadTime            = 2 * time.Hour
	MinAppointmentDuration = 15 * time.Minute
	MaxAppointmentDuration = 4 * time.Hour
)

// ValidateTimeRange applies the booking rules in a fixed order and reports
// the first one violated.
func ValidateTimeRange(start, end, now time.Time) error {
	switch {
	case !end.After(start):
		return apperrors.ErrInvalidRange
	case start.Before(now):
		return apperrors.ErrPastBooking
	case start.Before(now.Add(MinLeadTime)):
		return apperrors.ErrInsufficientLeadTime
	}

	duration := end.Sub(start)
	switch {
	case duration < MinAppointmentDuration:
		return apperrors.ErrTooShort
	case duration > MaxAppointmentDuration:
		return apperrors.ErrTooLong
	}
	return nil
}
