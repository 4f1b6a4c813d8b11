package postgres

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	pqUniqueViolation    pq.ErrorCode = "23505"
	pqExclusionViolation pq.ErrorCode = "23P01"

	constraintNoOverlap     = "appointments_no_overlap"
	constraintScheduledSlot = "appointments_scheduled_slot_key"
)

// withTx executes a function within a transaction
func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

// isSlotConflict reports whether err came from one of the constraints that
// guard against double booking.
func isSlotConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case pqUniqueViolation, pqExclusionViolation:
		return pqErr.Constraint == constraintNoOverlap || pqErr.Constraint == constraintScheduledSlot
	}
	return false
}
