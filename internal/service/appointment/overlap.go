package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/scheduling-api/internal/model"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

// Overlaps reports whether [s1,e1) and [s2,e2) intersect.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

type overlapFinder interface {
	FindOverlapping(ctx context.Context, tenantID, practitionerID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) ([]*model.Appointment, error)
}

// OverlapDetector is a read-then-decide check. The storage constraint is
// what actually prevents two concurrent bookings of the same slot.
type OverlapDetector struct {
	finder overlapFinder
}

func NewOverlapDetector(finder overlapFinder) *OverlapDetector {
	return &OverlapDetector{finder: finder}
}

func (d *OverlapDetector) Check(ctx context.Context, tenantID, practitionerID uuid.UUID, start, end time.Time, excludeID *uuid.UUID) error {
	existing, err := d.finder.FindOverlapping(ctx, tenantID, practitionerID, start, end, excludeID)
	if err != nil {
		return fmt.Errorf("failed to check conflicts: %w", err)
	}
	for _, apt := range existing {
		if excludeID != nil && apt.ID == *excludeID {
			continue
		}
		if apt.Status == model.AppointmentStatusScheduled && Overlaps(start, end, apt.StartTime, apt.EndTime) {
			return apperrors.ErrSlotTaken
		}
	}
	return nil
}
