package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

const (
	SlotGranularity = 30 * time.Minute
	// MaxAvailabilityDays bounds a single availability query.
	MaxAvailabilityDays = 31

	dateLayout = "2006-01-02"
)

// GetAvailability lists the practitioner's working-hour slots between
// startDate and endDate inclusive, flagged unavailable where a scheduled
// appointment overlaps.
func (s *Service) GetAvailability(ctx context.Context, tenantID, practitionerID uuid.UUID, startDate, endDate time.Time) ([]model.AvailabilitySlot, error) {
	practitioner, err := s.practitioners.Get(ctx, tenantID, practitionerID)
	if err != nil {
		return nil, err
	}

	loc, err := practitioner.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid practitioner timezone %q: %w", practitioner.Timezone, err)
	}

	first := calendarDay(startDate, loc)
	last := calendarDay(endDate, loc)
	if last.Before(first) {
		return nil, apperrors.ErrInvalidRange.WithMessage("end date must not be before start date")
	}
	if days := daysBetween(first, last) + 1; days > MaxAvailabilityDays {
		return nil, apperrors.ErrRangeTooWide.WithMessage("availability range cannot exceed %d days", MaxAvailabilityDays)
	}

	hours, err := s.hours.ListForPractitioner(ctx, tenantID, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load working hours: %w", err)
	}
	byDay := make(map[time.Weekday]*model.WorkingHours, len(hours))
	for _, h := range hours {
		byDay[h.Weekday] = h
	}

	booked, err := s.repo.FindOverlapping(ctx, tenantID, practitionerID, first, last.AddDate(0, 0, 1), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments: %w", err)
	}

	slots := make([]model.AvailabilitySlot, 0)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		wh, ok := byDay[day.Weekday()]
		if !ok {
			continue
		}
		windows, err := wh.Windows(day, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid working hours for %s: %w", day.Weekday(), err)
		}
		for _, w := range windows {
			slots = append(slots, generateSlots(day.Format(dateLayout), w, booked)...)
		}
	}
	return slots, nil
}

func generateSlots(date string, w model.Window, booked []*model.Appointment) []model.AvailabilitySlot {
	var slots []model.AvailabilitySlot
	for start := w.Start; !start.Add(SlotGranularity).After(w.End); start = start.Add(SlotGranularity) {
		end := start.Add(SlotGranularity)
		slots = append(slots, model.AvailabilitySlot{
			Date:      date,
			StartTime: start.UTC(),
			EndTime:   end.UTC(),
			Available: !anyOverlap(booked, start, end),
		})
	}
	return slots
}

func anyOverlap(booked []*model.Appointment, start, end time.Time) bool {
	for _, apt := range booked {
		if apt.Status == model.AppointmentStatusScheduled && Overlaps(start, end, apt.StartTime, apt.EndTime) {
			return true
		}
	}
	return false
}

// calendarDay keeps the date components of t and anchors them at midnight in loc.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
