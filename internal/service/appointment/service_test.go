package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/internal/repository/memory"
	"github.com/jwalitptl/scheduling-api/internal/service/event"
	"github.com/jwalitptl/scheduling-api/internal/service/tenant"
	"github.com/jwalitptl/scheduling-api/internal/service/waitlist"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
	"github.com/jwalitptl/scheduling-api/pkg/metrics"
)

// Monday 08:00 UTC.
var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type slotRecorder struct {
	mu    sync.Mutex
	slots []model.FreedSlot
}

func (r *slotRecorder) Publish(slot model.FreedSlot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = append(r.slots, slot)
}

func (r *slotRecorder) Slots() []model.FreedSlot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.FreedSlot(nil), r.slots...)
}

type fixture struct {
	store          *repository.Store
	svc            *Service
	freed          *slotRecorder
	metrics        *metrics.Metrics
	tenantID       uuid.UUID
	patientID      uuid.UUID
	practitionerID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewStore(),
		freed:    &slotRecorder{},
		metrics:  metrics.NewMetrics(prometheus.NewRegistry(), "test", "appointment"),
		tenantID: uuid.New(),
	}
	f.patientID = f.addPatient(t, f.tenantID)
	f.practitionerID = f.addPractitioner(t, f.tenantID)

	guard := tenant.NewGuard(f.store.Patients, f.store.Practitioners, nil)
	f.svc = NewService(f.store.Appointments, f.store.WorkingHours, f.store.Practitioners, guard, f.freed,
		WithClock(func() time.Time { return testNow }),
		WithMetrics(f.metrics),
	)
	return f
}

func (f *fixture) addPatient(t *testing.T, tenantID uuid.UUID) uuid.UUID {
	t.Helper()
	p := &model.Patient{TenantID: tenantID, Name: "Ada Patient", Email: "ada@example.com"}
	require.NoError(t, f.store.Patients.Create(context.Background(), p))
	return p.ID
}

func (f *fixture) addPractitioner(t *testing.T, tenantID uuid.UUID) uuid.UUID {
	t.Helper()
	p := &model.Practitioner{TenantID: tenantID, Name: "Dr. Grace", Timezone: "UTC"}
	require.NoError(t, f.store.Practitioners.Create(context.Background(), p))
	return p.ID
}

func (f *fixture) request(start time.Time, d time.Duration) *model.CreateAppointmentRequest {
	return &model.CreateAppointmentRequest{
		PatientID:      f.patientID,
		PractitionerID: f.practitionerID,
		StartTime:      start,
		EndTime:        start.Add(d),
	}
}

func (f *fixture) book(t *testing.T, start time.Time, d time.Duration) *model.Appointment {
	t.Helper()
	apt, err := f.svc.CreateAppointment(context.Background(), f.tenantID, f.request(start, d))
	require.NoError(t, err)
	return apt
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.As(err).Code, "unexpected error: %v", err)
}

func TestCreateAppointment(t *testing.T) {
	ctx := context.Background()
	ten := testNow.Add(2 * time.Hour)

	t.Run("books a free slot at version 1", func(t *testing.T) {
		f := newFixture(t)
		apt, err := f.svc.CreateAppointment(ctx, f.tenantID, f.request(ten, 30*time.Minute))
		require.NoError(t, err)

		assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)
		assert.Equal(t, 1, apt.Version)
		assert.Equal(t, f.tenantID, apt.TenantID)
		assert.Equal(t, time.UTC, apt.StartTime.Location())

		stored, err := f.svc.GetAppointment(ctx, f.tenantID, apt.ID)
		require.NoError(t, err)
		assert.Equal(t, apt.ID, stored.ID)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.AppointmentOperations.WithLabelValues("create", "ok")))
	})

	t.Run("overlapping slot is taken", func(t *testing.T) {
		f := newFixture(t)
		f.book(t, ten, 30*time.Minute)

		_, err := f.svc.CreateAppointment(ctx, f.tenantID, f.request(ten.Add(15*time.Minute), 30*time.Minute))
		assertCode(t, err, apperrors.CodeSlotTaken)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.AppointmentOperations.WithLabelValues("create", "slot_taken")))
	})

	t.Run("back to back slots both book", func(t *testing.T) {
		f := newFixture(t)
		f.book(t, ten, 30*time.Minute)
		f.book(t, ten.Add(30*time.Minute), 30*time.Minute)
	})

	t.Run("validation errors", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateAppointment(ctx, f.tenantID, f.request(testNow.Add(time.Hour), 30*time.Minute))
		assertCode(t, err, apperrors.CodeInsufficientLeadTime)

		_, err = f.svc.CreateAppointment(ctx, f.tenantID, f.request(ten, 10*time.Minute))
		assertCode(t, err, apperrors.CodeTooShort)

		_, err = f.svc.CreateAppointment(ctx, f.tenantID, f.request(ten, 5*time.Hour))
		assertCode(t, err, apperrors.CodeTooLong)
	})

	t.Run("patient from another tenant", func(t *testing.T) {
		f := newFixture(t)
		req := f.request(ten, 30*time.Minute)
		req.PatientID = f.addPatient(t, uuid.New())

		_, err := f.svc.CreateAppointment(ctx, f.tenantID, req)
		assertCode(t, err, apperrors.CodeTenantMismatch)
	})

	t.Run("practitioner from another tenant", func(t *testing.T) {
		f := newFixture(t)
		req := f.request(ten, 30*time.Minute)
		req.PractitionerID = f.addPractitioner(t, uuid.New())

		_, err := f.svc.CreateAppointment(ctx, f.tenantID, req)
		assertCode(t, err, apperrors.CodeTenantMismatch)
	})

	t.Run("tenant isolation on reads", func(t *testing.T) {
		f := newFixture(t)
		apt := f.book(t, ten, 30*time.Minute)

		_, err := f.svc.GetAppointment(ctx, uuid.New(), apt.ID)
		assertCode(t, err, apperrors.CodeNotFound)
	})
}

func TestCreateAppointment_ConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)
	start := testNow.Add(3 * time.Hour)

	const racers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		taken   int
		unknown []error
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateAppointment(context.Background(), f.tenantID, f.request(start, 30*time.Minute))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperrors.ErrSlotTaken):
				taken++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, unknown)
	assert.Equal(t, 1, ok)
	assert.Equal(t, racers-1, taken)
}

func TestUpdateAppointment(t *testing.T) {
	ctx := context.Background()
	ten := testNow.Add(2 * time.Hour)

	t.Run("reschedule bumps version", func(t *testing.T) {
		f := newFixture(t)
		apt := f.book(t, ten, 30*time.Minute)

		newStart, newEnd := ten.Add(time.Hour), ten.Add(90*time.Minute)
		updated, err := f.svc.UpdateAppointment(ctx, f.tenantID, apt.ID, 1, model.AppointmentChanges{
			StartTime: &newStart,
			EndTime:   &newEnd,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Version)
		assert.True(t, updated.StartTime.Equal(newStart))
		assert.Empty(t, f.freed.Slots(), "reschedule does not free a slot")
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		f := newFixture(t)
		apt := f.book(t, ten, 30*time.Minute)
		notes := "first"
		_, err := f.svc.UpdateAppointment(ctx, f.tenantID, apt.ID, 1, model.AppointmentChanges{Notes: &notes})
		require.NoError(t, err)

		again := "second"
		_, err = f.svc.UpdateAppointment(ctx, f.tenantID, apt.ID, 1, model.AppointmentChanges{Notes: &again})
		assertCode(t, err, apperrors.CodeVersionConflict)

		stored, err := f.svc.GetAppointment(ctx, f.tenantID, apt.ID)
		require.NoError(t, err)
		assert.Equal(t, "first", stored.Notes)
		assert.Equal(t, 2, stored.Version)
	})

	t.Run("concurrent writers at the same version", func(t *testing.T) {
		f := newFixture(t)
		apt := f.book(t, ten, 30*time.Minute)

		const writers = 6
		results := make(chan error, writers)
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				notes := string(rune('a' + i))
				_, err := f.svc.UpdateAppointment(ctx, f.tenantID, apt.ID, 1, model.AppointmentChanges{Notes: &notes})
				results <- err
			}(i)
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for err := range results {
			if err == nil {
				succeeded++
				continue
			}
			assertCode(t, err, apperrors.CodeVersionConflict)
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("reschedule onto a booked slot", func(t *testing.T) {
		f := newFixture(t)
		f.book(t, ten, 30*time.Minute)
		other := f.book(t, ten.Add(time.Hour), 30*time.Minute)

		newStart, newEnd := ten.Add(15*time.Minute), ten.Add(45*time.Minute)
		_, err := f.svc.UpdateAppointment(ctx, f.tenantID, other.ID, 1, model.AppointmentChanges{
			StartTime: &newStart,
			EndTime:   &newEnd,
		})
		assertCode(t, err, apperrors.CodeSlotTaken)
	})

	t.Run("reschedule overlapping its own slot", func(t *testing.T) {
		f := newFixture(t)
		apt := f.book(t, ten, 30*time.Minute)

		newStart, newEnd := ten.Add(15*time.Minute), ten.Add(45*time.Minute)
		_, err := f.svc.UpdateAppointment(ctx, f.tenantID, apt.ID, 1, model.AppointmentChanges{
			StartTime: &newStart,
			EndTime:   &newEnd,
		})
		assert.NoError(t, err)
	})

	t.Run("status transitions", func(t *testing.T) {
		f := newFixture(t)
		apt := f.book(t, ten, 30*time.Minute)

		completed := model.AppointmentStatusCompleted
		updated, err := f.svc.UpdateAppointment(ctx, f.tenantID, apt.ID, 1, model.AppointmentChanges{Status: &completed})
		require.NoError(t, err)
		assert.Equal(t, model.AppointmentStatusCompleted, updated.Status)

		scheduled := model.AppointmentStatusScheduled
		_, err = f.svc.UpdateAppointment(ctx, f.tenantID, apt.ID, 2, model.AppointmentChanges{Status: &scheduled})
		assertCode(t, err, apperrors.CodeInvalidTransition)

		newStart := ten.Add(time.Hour)
		_, err = f.svc.UpdateAppointment(ctx, f.tenantID, apt.ID, 2, model.AppointmentChanges{StartTime: &newStart})
		assertCode(t, err, apperrors.CodeInvalidTransition)
	})

	t.Run("cancelling through update frees the slot", func(t *testing.T) {
		f := newFixture(t)
		apt := f.book(t, ten, 30*time.Minute)

		cancelled := model.AppointmentStatusCancelled
		_, err := f.svc.UpdateAppointment(ctx, f.tenantID, apt.ID, 1, model.AppointmentChanges{Status: &cancelled})
		require.NoError(t, err)

		slots := f.freed.Slots()
		require.Len(t, slots, 1)
		assert.Equal(t, apt.ID, slots[0].AppointmentID)
	})
}

func TestCancelAppointment(t *testing.T) {
	ctx := context.Background()
	ten := testNow.Add(2 * time.Hour)

	t.Run("cancel frees the slot", func(t *testing.T) {
		f := newFixture(t)
		apt := f.book(t, ten, 30*time.Minute)
		reason := "patient request"

		cancelled, err := f.svc.CancelAppointment(ctx, f.tenantID, apt.ID, &reason)
		require.NoError(t, err)
		assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
		assert.Equal(t, 2, cancelled.Version)
		require.NotNil(t, cancelled.CancellationReason)
		assert.Equal(t, reason, *cancelled.CancellationReason)

		slots := f.freed.Slots()
		require.Len(t, slots, 1)
		assert.Equal(t, model.FreedSlot{
			TenantID:       f.tenantID,
			PractitionerID: f.practitionerID,
			StartTime:      apt.StartTime,
			EndTime:        apt.EndTime,
			AppointmentID:  apt.ID,
		}, slots[0])

		// The same slot is bookable again.
		f.book(t, ten, 30*time.Minute)
	})

	t.Run("already cancelled", func(t *testing.T) {
		f := newFixture(t)
		apt := f.book(t, ten, 30*time.Minute)
		_, err := f.svc.CancelAppointment(ctx, f.tenantID, apt.ID, nil)
		require.NoError(t, err)

		_, err = f.svc.CancelAppointment(ctx, f.tenantID, apt.ID, nil)
		assertCode(t, err, apperrors.CodeAlreadyCancelled)
		assert.Len(t, f.freed.Slots(), 1)
	})

	t.Run("completed cannot be cancelled", func(t *testing.T) {
		f := newFixture(t)
		apt := f.book(t, ten, 30*time.Minute)
		completed := model.AppointmentStatusCompleted
		_, err := f.svc.UpdateAppointment(ctx, f.tenantID, apt.ID, 1, model.AppointmentChanges{Status: &completed})
		require.NoError(t, err)

		_, err = f.svc.CancelAppointment(ctx, f.tenantID, apt.ID, nil)
		assertCode(t, err, apperrors.CodeCannotCancelCompleted)
	})

	t.Run("no show cannot be cancelled", func(t *testing.T) {
		f := newFixture(t)
		apt := f.book(t, ten, 30*time.Minute)
		noShow := model.AppointmentStatusNoShow
		_, err := f.svc.UpdateAppointment(ctx, f.tenantID, apt.ID, 1, model.AppointmentChanges{Status: &noShow})
		require.NoError(t, err)

		_, err = f.svc.CancelAppointment(ctx, f.tenantID, apt.ID, nil)
		assertCode(t, err, apperrors.CodeInvalidTransition)
	})

	t.Run("other tenant sees nothing", func(t *testing.T) {
		f := newFixture(t)
		apt := f.book(t, ten, 30*time.Minute)

		_, err := f.svc.CancelAppointment(ctx, uuid.New(), apt.ID, nil)
		assertCode(t, err, apperrors.CodeNotFound)
		assert.Empty(t, f.freed.Slots())
	})
}

func TestCancelAppointment_NotifiesEarliestWaitlistEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ten := testNow.Add(2 * time.Hour)
	apt := f.book(t, ten, 30*time.Minute)

	newEntry := func(createdAt time.Time) *model.WaitlistEntry {
		e := &model.WaitlistEntry{
			TenantID:         f.tenantID,
			PatientID:        f.addPatient(t, f.tenantID),
			DesiredDateStart: testNow,
			DesiredDateEnd:   testNow.Add(24 * time.Hour),
			Status:           model.WaitlistStatusActive,
			CreatedAt:        createdAt,
		}
		require.NoError(t, f.store.Waitlist.Create(ctx, e))
		return e
	}
	later := newEntry(testNow.Add(-time.Hour))
	earlier := newEntry(testNow.Add(-2 * time.Hour))

	matcher := waitlist.NewMatcher(f.store.Waitlist, nil, nil, nil).WithClock(func() time.Time { return testNow })
	guard := tenant.NewGuard(f.store.Patients, f.store.Practitioners, nil)
	svc := NewService(f.store.Appointments, f.store.WorkingHours, f.store.Practitioners, guard,
		event.Inline{Handler: matcher},
		WithClock(func() time.Time { return testNow }),
	)

	_, err := svc.CancelAppointment(ctx, f.tenantID, apt.ID, nil)
	require.NoError(t, err)

	got, err := f.store.Waitlist.Get(ctx, f.tenantID, earlier.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NotifiedAt)
	assert.True(t, got.NotifiedAt.Equal(testNow))
	assert.Equal(t, model.WaitlistStatusActive, got.Status)
	require.NotNil(t, got.OfferedStartTime)
	assert.True(t, got.OfferedStartTime.Equal(apt.StartTime))

	got, err = f.store.Waitlist.Get(ctx, f.tenantID, later.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NotifiedAt)
}

func TestCancelAppointment_MatcherFailureDoesNotFailCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	apt := f.book(t, testNow.Add(2*time.Hour), 30*time.Minute)

	failing := event.SlotFreedHandlerFunc(func(ctx context.Context, slot model.FreedSlot) error {
		return errors.New("matcher unavailable")
	})
	guard := tenant.NewGuard(f.store.Patients, f.store.Practitioners, nil)
	svc := NewService(f.store.Appointments, f.store.WorkingHours, f.store.Practitioners, guard,
		event.Inline{Handler: failing},
		WithClock(func() time.Time { return testNow }),
	)

	cancelled, err := svc.CancelAppointment(ctx, f.tenantID, apt.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, cancelled.Status)
}

func TestDeleteAppointment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	apt := f.book(t, testNow.Add(2*time.Hour), 30*time.Minute)

	err := f.svc.DeleteAppointment(ctx, f.tenantID, apt.ID)
	assertCode(t, err, apperrors.CodeInvalidState)

	_, err = f.svc.CancelAppointment(ctx, f.tenantID, apt.ID, nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteAppointment(ctx, f.tenantID, apt.ID))

	_, err = f.svc.GetAppointment(ctx, f.tenantID, apt.ID)
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestCancelAndDelete_RejectForeignParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// A row that slipped past the guard: tenant A's appointment naming
	// tenant B's patient.
	foreignPatient := f.addPatient(t, uuid.New())
	apt := &model.Appointment{
		TenantID:       f.tenantID,
		PatientID:      foreignPatient,
		PractitionerID: f.practitionerID,
		StartTime:      testNow.Add(3 * time.Hour),
		EndTime:        testNow.Add(3*time.Hour + 30*time.Minute),
		Status:         model.AppointmentStatusScheduled,
	}
	require.NoError(t, f.store.Appointments.Create(ctx, apt))

	_, err := f.svc.CancelAppointment(ctx, f.tenantID, apt.ID, nil)
	assertCode(t, err, apperrors.CodeTenantMismatch)
	assert.Empty(t, f.freed.Slots())

	err = f.svc.DeleteAppointment(ctx, f.tenantID, apt.ID)
	assertCode(t, err, apperrors.CodeTenantMismatch)

	got, err := f.svc.GetAppointment(ctx, f.tenantID, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, got.Status)
}

func TestListAppointments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.book(t, testNow.Add(2*time.Hour), 30*time.Minute)
	second := f.book(t, testNow.Add(4*time.Hour), 30*time.Minute)
	_, err := f.svc.CancelAppointment(ctx, f.tenantID, second.ID, nil)
	require.NoError(t, err)

	all, err := f.svc.ListAppointments(ctx, f.tenantID, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)

	scheduled := model.AppointmentStatusScheduled
	only, err := f.svc.ListAppointments(ctx, f.tenantID, &model.AppointmentFilter{Status: &scheduled})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, first.ID, only[0].ID)

	none, err := f.svc.ListAppointments(ctx, uuid.New(), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
