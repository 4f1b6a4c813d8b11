package appointment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

func TestValidateTimeRange(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	inLead := now.Add(MinLeadTime)

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  error
	}{
		{"end equals start", inLead, inLead, apperrors.ErrInvalidRange},
		{"end before start", inLead, inLead.Add(-time.Minute), apperrors.ErrInvalidRange},
		{"start in the past", now.Add(-time.Minute), now.Add(time.Hour), apperrors.ErrPastBooking},
		{"inside lead time", now.Add(MinLeadTime - time.Minute), now.Add(3 * time.Hour), apperrors.ErrInsufficientLeadTime},
		{"exactly at lead time", inLead, inLead.Add(30 * time.Minute), nil},
		{"one minute under minimum", inLead, inLead.Add(14 * time.Minute), apperrors.ErrTooShort},
		{"exactly minimum", inLead, inLead.Add(MinAppointmentDuration), nil},
		{"exactly maximum", inLead, inLead.Add(MaxAppointmentDuration), nil},
		{"one minute over maximum", inLead, inLead.Add(MaxAppointmentDuration + time.Minute), apperrors.ErrTooLong},
		// Range is checked before the clock.
		{"past and inverted", now.Add(-time.Hour), now.Add(-2 * time.Hour), apperrors.ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTimeRange(tt.start, tt.end, now)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}
