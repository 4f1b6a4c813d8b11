package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const clockLayout = "15:04"

// WorkingHours is one weekday's schedule for a practitioner, in the
// practitioner's local time.
type WorkingHours struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	TenantID       uuid.UUID    `db:"tenant_id" json:"tenant_id"`
	PractitionerID uuid.UUID    `db:"practitioner_id" json:"practitioner_id"`
	Weekday        time.Weekday `db:"weekday" json:"weekday"`
	StartTime      string       `db:"start_time" json:"start_time"`
	EndTime        string       `db:"end_time" json:"end_time"`
	BreakStart     *string      `db:"break_start" json:"break_start,omitempty"`
	BreakEnd       *string      `db:"break_end" json:"break_end,omitempty"`
}

// Window is a concrete [Start, End) interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Windows returns the bookable intervals of day in loc, split around the break.
func (w *WorkingHours) Windows(day time.Time, loc *time.Location) ([]Window, error) {
	start, err := atClock(day, w.StartTime, loc)
	if err != nil {
		return nil, err
	}
	end, err := atClock(day, w.EndTime, loc)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, fmt.Errorf("working hours end %s is not after start %s", w.EndTime, w.StartTime)
	}

	if w.BreakStart == nil || w.BreakEnd == nil {
		return []Window{{Start: start, End: end}}, nil
	}

	bStart, err := atClock(day, *w.BreakStart, loc)
	if err != nil {
		return nil, err
	}
	bEnd, err := atClock(day, *w.BreakEnd, loc)
	if err != nil {
		return nil, err
	}
	if !bEnd.After(bStart) {
		return nil, fmt.Errorf("break end %s is not after break start %s", *w.BreakEnd, *w.BreakStart)
	}

	var out []Window
	if bStart.After(start) {
		out = append(out, Window{Start: start, End: minTime(bStart, end)})
	}
	if bEnd.Before(end) {
		out = append(out, Window{Start: maxTime(bEnd, start), End: end})
	}
	return out, nil
}

func atClock(day time.Time, hm string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(clockLayout, hm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock time %q: %w", hm, err)
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
