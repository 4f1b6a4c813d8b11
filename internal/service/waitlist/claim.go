package waitlist

import "time"

// DefaultClaimWindow is how long a notified entry may claim its offer.
const DefaultClaimWindow = time.Hour

// ClaimWindow adjudicates whether an offer is still claimable.
type ClaimWindow struct {
	Duration time.Duration
}

func NewClaimWindow(d time.Duration) ClaimWindow {
	if d <= 0 {
		d = DefaultClaimWindow
	}
	return ClaimWindow{Duration: d}
}

// IsOpen reports whether a claim at now is within the window. The deadline
// itself is already closed. An entry never notified is always open.
func (w ClaimWindow) IsOpen(notifiedAt *time.Time, now time.Time) bool {
	if notifiedAt == nil {
		return true
	}
	return now.Before(w.Deadline(*notifiedAt))
}

func (w ClaimWindow) Deadline(notifiedAt time.Time) time.Time {
	return notifiedAt.Add(w.Duration)
}
