package waitlist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/scheduling-api/internal/model"
	"github.com/jwalitptl/scheduling-api/internal/repository"
	"github.com/jwalitptl/scheduling-api/internal/repository/memory"
	"github.com/jwalitptl/scheduling-api/internal/service/tenant"
	apperrors "github.com/jwalitptl/scheduling-api/pkg/errors"
)

var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixture struct {
	store          *repository.Store
	svc            *Service
	clock          *clock
	tenantID       uuid.UUID
	patientID      uuid.UUID
	practitionerID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:    memory.NewStore(),
		clock:    &clock{now: testNow},
		tenantID: uuid.New(),
	}

	patient := &model.Patient{TenantID: f.tenantID, Name: "Ada"}
	require.NoError(t, f.store.Patients.Create(ctx, patient))
	practitioner := &model.Practitioner{TenantID: f.tenantID, Name: "Dr. Grace"}
	require.NoError(t, f.store.Practitioners.Create(ctx, practitioner))
	f.patientID, f.practitionerID = patient.ID, practitioner.ID

	guard := tenant.NewGuard(f.store.Patients, f.store.Practitioners, nil)
	f.svc = NewService(f.store.Waitlist, guard, WithClock(f.clock.Now))
	return f
}

func (f *fixture) add(t *testing.T) *model.WaitlistEntry {
	t.Helper()
	entry, err := f.svc.AddToWaitlist(context.Background(), f.tenantID, &model.AddToWaitlistRequest{
		PatientID:        f.patientID,
		PractitionerID:   &f.practitionerID,
		DesiredDateStart: f.clock.Now().Add(time.Hour),
		DesiredDateEnd:   f.clock.Now().Add(48 * time.Hour),
	})
	require.NoError(t, err)
	return entry
}

func (f *fixture) notify(t *testing.T, entry *model.WaitlistEntry) {
	t.Helper()
	_, err := f.store.Waitlist.MarkNotified(context.Background(), f.tenantID, entry.ID, model.FreedSlot{
		TenantID:       f.tenantID,
		PractitionerID: f.practitionerID,
		StartTime:      testNow.Add(2 * time.Hour),
		EndTime:        testNow.Add(150 * time.Minute),
	}, f.clock.Now())
	require.NoError(t, err)
}

// renotifyingRepo lands a fresh offer on an entry just before the first
// conditional write, as a concurrent match would.
type renotifyingRepo struct {
	repository.WaitlistRepository
	f    *fixture
	once sync.Once
}

func (r *renotifyingRepo) ResolveOffer(ctx context.Context, tenantID, id uuid.UUID, notifiedAt *time.Time, to model.WaitlistStatus, at time.Time) (*model.WaitlistEntry, error) {
	r.once.Do(func() {
		_, _ = r.WaitlistRepository.MarkNotified(ctx, tenantID, id, model.FreedSlot{
			TenantID:       tenantID,
			PractitionerID: r.f.practitionerID,
			StartTime:      r.f.clock.Now().Add(3 * time.Hour),
			EndTime:        r.f.clock.Now().Add(210 * time.Minute),
		}, r.f.clock.Now())
	})
	return r.WaitlistRepository.ResolveOffer(ctx, tenantID, id, notifiedAt, to, at)
}

func assertCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.As(err).Code, "unexpected error: %v", err)
}

func TestAddToWaitlist(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an active entry", func(t *testing.T) {
		f := newFixture(t)
		entry := f.add(t)
		assert.Equal(t, model.WaitlistStatusActive, entry.Status)
		assert.True(t, entry.CreatedAt.Equal(testNow))
		assert.Nil(t, entry.NotifiedAt)
		assert.Nil(t, entry.ClaimedAt)
	})

	tests := []struct {
		name       string
		start, end time.Time
		code       apperrors.ErrorCode
	}{
		{"start in the past", testNow.Add(-time.Minute), testNow.Add(time.Hour), apperrors.CodeDesiredStartInPast},
		{"end before start", testNow.Add(2 * time.Hour), testNow.Add(time.Hour), apperrors.CodeInvalidRange},
		{"empty range", testNow.Add(time.Hour), testNow.Add(time.Hour), apperrors.CodeInvalidRange},
		{"wider than 30 days", testNow, testNow.Add(MaxDesiredRange + time.Second), apperrors.CodeRangeTooWide},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.AddToWaitlist(ctx, f.tenantID, &model.AddToWaitlistRequest{
				PatientID:        f.patientID,
				DesiredDateStart: tt.start,
				DesiredDateEnd:   tt.end,
			})
			assertCode(t, err, tt.code)
		})
	}

	t.Run("exactly 30 days is allowed", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.AddToWaitlist(ctx, f.tenantID, &model.AddToWaitlistRequest{
			PatientID:        f.patientID,
			DesiredDateStart: testNow,
			DesiredDateEnd:   testNow.Add(MaxDesiredRange),
		})
		assert.NoError(t, err)
	})

	t.Run("foreign patient", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.AddToWaitlist(ctx, uuid.New(), &model.AddToWaitlistRequest{
			PatientID:        f.patientID,
			DesiredDateStart: testNow.Add(time.Hour),
			DesiredDateEnd:   testNow.Add(2 * time.Hour),
		})
		assertCode(t, err, apperrors.CodeTenantMismatch)
	})
}

func TestClaim(t *testing.T) {
	ctx := context.Background()

	t.Run("within the window", func(t *testing.T) {
		f := newFixture(t)
		entry := f.add(t)
		f.notify(t, entry)
		f.clock.Advance(time.Hour - time.Millisecond)

		claimed, err := f.svc.Claim(ctx, f.tenantID, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, model.WaitlistStatusClaimed, claimed.Status)
		require.NotNil(t, claimed.ClaimedAt)
		assert.True(t, claimed.ClaimedAt.Equal(f.clock.Now()))
	})

	t.Run("exactly at the deadline expires", func(t *testing.T) {
		f := newFixture(t)
		entry := f.add(t)
		f.notify(t, entry)
		f.clock.Advance(time.Hour)

		_, err := f.svc.Claim(ctx, f.tenantID, entry.ID)
		assertCode(t, err, apperrors.CodeClaimExpired)

		stored, err := f.svc.GetEntry(ctx, f.tenantID, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, model.WaitlistStatusExpired, stored.Status)
		assert.Nil(t, stored.ClaimedAt)
	})

	t.Run("never notified", func(t *testing.T) {
		f := newFixture(t)
		entry := f.add(t)
		f.clock.Advance(72 * time.Hour)

		claimed, err := f.svc.Claim(ctx, f.tenantID, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, model.WaitlistStatusClaimed, claimed.Status)
	})

	t.Run("claimed entry cannot be claimed again", func(t *testing.T) {
		f := newFixture(t)
		entry := f.add(t)
		_, err := f.svc.Claim(ctx, f.tenantID, entry.ID)
		require.NoError(t, err)

		_, err = f.svc.Claim(ctx, f.tenantID, entry.ID)
		assertCode(t, err, apperrors.CodeInvalidState)
	})

	t.Run("expired entry cannot be claimed", func(t *testing.T) {
		f := newFixture(t)
		entry := f.add(t)
		_, err := f.svc.Expire(ctx, f.tenantID, entry.ID)
		require.NoError(t, err)

		_, err = f.svc.Claim(ctx, f.tenantID, entry.ID)
		assertCode(t, err, apperrors.CodeInvalidState)
	})

	t.Run("other tenant", func(t *testing.T) {
		f := newFixture(t)
		entry := f.add(t)

		_, err := f.svc.Claim(ctx, uuid.New(), entry.ID)
		assertCode(t, err, apperrors.CodeNotFound)
	})
}

func TestClaim_JudgedAgainstLatestOffer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	entry := f.add(t)
	f.notify(t, entry)

	// The first offer has lapsed, but a new one arrives mid-claim.
	f.clock.Advance(2 * time.Hour)
	repo := &renotifyingRepo{WaitlistRepository: f.store.Waitlist, f: f}
	svc := NewService(repo, tenant.NewGuard(f.store.Patients, f.store.Practitioners, nil), WithClock(f.clock.Now))

	claimed, err := svc.Claim(ctx, f.tenantID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusClaimed, claimed.Status)
	require.NotNil(t, claimed.NotifiedAt)
	assert.True(t, claimed.NotifiedAt.Equal(f.clock.Now()))
}

func TestClaim_CustomWindow(t *testing.T) {
	f := newFixture(t)
	guard := tenant.NewGuard(f.store.Patients, f.store.Practitioners, nil)
	svc := NewService(f.store.Waitlist, guard, WithClock(f.clock.Now), WithClaimWindow(NewClaimWindow(10*time.Minute)))

	entry := f.add(t)
	f.notify(t, entry)
	f.clock.Advance(10 * time.Minute)

	_, err := svc.Claim(context.Background(), f.tenantID, entry.ID)
	assertCode(t, err, apperrors.CodeClaimExpired)
}

func TestExpireAndRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	entry := f.add(t)
	expired, err := f.svc.Expire(ctx, f.tenantID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WaitlistStatusExpired, expired.Status)

	_, err = f.svc.Expire(ctx, f.tenantID, entry.ID)
	assertCode(t, err, apperrors.CodeInvalidState)

	// Removal works whatever the status.
	require.NoError(t, f.svc.RemoveFromWaitlist(ctx, f.tenantID, entry.ID))
	_, err = f.svc.GetEntry(ctx, f.tenantID, entry.ID)
	assertCode(t, err, apperrors.CodeNotFound)

	err = f.svc.RemoveFromWaitlist(ctx, f.tenantID, entry.ID)
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestListEntries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.add(t)
	f.clock.Advance(time.Minute)
	second := f.add(t)
	_, err := f.svc.Expire(ctx, f.tenantID, second.ID)
	require.NoError(t, err)

	all, err := f.svc.ListEntries(ctx, f.tenantID, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)

	active := model.WaitlistStatusActive
	only, err := f.svc.ListEntries(ctx, f.tenantID, &model.WaitlistFilter{Status: &active})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, first.ID, only[0].ID)
}
