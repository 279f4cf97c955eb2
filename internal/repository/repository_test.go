package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rondo-space/venue-reservations/internal/config"
	"github.com/rondo-space/venue-reservations/internal/database"
	"github.com/rondo-space/venue-reservations/internal/model"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	resources    *ResourceRepo
	reservations *ReservationRepo
	clock        *testClock
	court        model.Resource
}

func openFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DBConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "venue.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := &testClock{t: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	f := fixture{
		resources:    NewResourceRepo(db, WithClock(clock.Now)),
		reservations: NewReservationRepo(db, WithClock(clock.Now)),
		clock:        clock,
	}
	f.court, err = f.resources.Create(ctx, model.Resource{
		Kind:        model.KindCourt,
		Name:        "Court 1",
		Price:       decimal.NewFromInt(1500),
		IsAvailable: true,
	})
	require.NoError(t, err)
	return f
}

func (f fixture) slot(unit int) model.Slot {
	return model.Slot{ResourceID: f.court.ID, Date: model.Date{Year: 2026, Month: 10, Day: 17}, Unit: unit}
}

func TestInsertTemporaryClaimsSlotOnce(t *testing.T) {
	t.Parallel()
	f := openFixture(t)
	ctx := context.Background()

	res, err := f.reservations.InsertTemporary(ctx, NewHold{Slot: f.slot(10), UserID: "alice", TTL: 15 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, model.StateTemporary, res.State)
	require.NotNil(t, res.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), *res.ExpiresAt)

	_, err = f.reservations.InsertTemporary(ctx, NewHold{Slot: f.slot(10), UserID: "bob", TTL: 15 * time.Minute})
	assert.ErrorIs(t, err, ErrSlotClaimed)

	got, err := f.reservations.ActiveForSlot(ctx, f.slot(10))
	require.NoError(t, err)
	assert.Equal(t, res.ID, got.ID)
	assert.Equal(t, res.CreatedAt, got.CreatedAt)

	_, err = f.reservations.ActiveForSlot(ctx, f.slot(11))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertTemporaryUserScope(t *testing.T) {
	t.Parallel()
	f := openFixture(t)
	ctx := context.Background()
	hold := func(unit int) error {
		_, err := f.reservations.InsertTemporary(ctx, NewHold{
			Slot: f.slot(unit), UserID: "alice", TTL: time.Minute,
			UserScope: ScopeCourtHold, ReleaseScopeOnConfirm: true,
		})
		return err
	}

	require.NoError(t, hold(9))
	assert.ErrorIs(t, hold(10), ErrUserClaimed)

	// The failed insert must not leave its slot claim behind.
	_, err := f.reservations.ActiveForSlot(ctx, f.slot(10))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPromoteToConfirmedIsConditional(t *testing.T) {
	t.Parallel()
	f := openFixture(t)
	ctx := context.Background()

	res, err := f.reservations.InsertTemporary(ctx, NewHold{
		Slot: f.slot(12), UserID: "alice", TTL: time.Minute,
		UserScope: ScopeCourtHold, ReleaseScopeOnConfirm: true,
	})
	require.NoError(t, err)

	confirmed, err := f.reservations.PromoteToConfirmed(ctx, res.ID, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, model.StateConfirmed, confirmed.State)
	assert.Equal(t, "pay-1", confirmed.PaymentRef)
	assert.Nil(t, confirmed.ExpiresAt)
	require.NotNil(t, confirmed.ConfirmedAt)

	again, err := f.reservations.PromoteToConfirmed(ctx, res.ID, "pay-2")
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.Equal(t, "pay-1", again.PaymentRef)

	// The court-hold scope is released on confirm, so a new hold is allowed.
	_, err = f.reservations.InsertTemporary(ctx, NewHold{
		Slot: f.slot(13), UserID: "alice", TTL: time.Minute,
		UserScope: ScopeCourtHold, ReleaseScopeOnConfirm: true,
	})
	assert.NoError(t, err)

	_, err = f.reservations.PromoteToConfirmed(ctx, "missing", "pay-3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancelReleasesClaims(t *testing.T) {
	t.Parallel()
	f := openFixture(t)
	ctx := context.Background()

	res, err := f.reservations.InsertTemporary(ctx, NewHold{
		Slot: f.slot(15), UserID: "alice", TTL: time.Minute, UserScope: ScopeCourtHold,
	})
	require.NoError(t, err)

	cancelled, changed, err := f.reservations.Cancel(ctx, res.ID, model.ReasonUserCancel)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.StateCancelled, cancelled.State)
	assert.Equal(t, model.ReasonUserCancel, cancelled.CancelReason)
	assert.Nil(t, cancelled.ExpiresAt)

	_, changed, err = f.reservations.Cancel(ctx, res.ID, model.ReasonUserCancel)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = f.reservations.InsertTemporary(ctx, NewHold{
		Slot: f.slot(15), UserID: "alice", TTL: time.Minute, UserScope: ScopeCourtHold,
	})
	assert.NoError(t, err)

	_, _, err = f.reservations.Cancel(ctx, "missing", model.ReasonUserCancel)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpireTemporaryRespectsClock(t *testing.T) {
	t.Parallel()
	f := openFixture(t)
	ctx := context.Background()

	res, err := f.reservations.InsertTemporary(ctx, NewHold{Slot: f.slot(16), UserID: "alice", TTL: 15 * time.Minute})
	require.NoError(t, err)

	expired, err := f.reservations.ExpiredTemporary(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, expired)
	_, changed, err := f.reservations.ExpireTemporary(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	f.clock.Advance(15*time.Minute - time.Millisecond)
	expired, err = f.reservations.ExpiredTemporary(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, expired)

	// Expired from the millisecond expires_at is reached.
	f.clock.Advance(time.Millisecond)

	expired, err = f.reservations.ExpiredTemporary(ctx, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	got, changed, err := f.reservations.ExpireTemporary(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.ReasonExpired, got.CancelReason)

	// Confirm after expiry loses.
	_, err = f.reservations.PromoteToConfirmed(ctx, res.ID, "late")
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestCancelTemporaryLeavesConfirmed(t *testing.T) {
	t.Parallel()
	f := openFixture(t)
	ctx := context.Background()

	res, err := f.reservations.InsertTemporary(ctx, NewHold{Slot: f.slot(17), UserID: "alice", TTL: time.Minute})
	require.NoError(t, err)
	_, err = f.reservations.PromoteToConfirmed(ctx, res.ID, "pay")
	require.NoError(t, err)

	got, err := f.reservations.CancelTemporary(ctx, res.ID, model.ReasonPaymentFailed)
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.Equal(t, model.StateConfirmed, got.State)
}

func TestPromoteToSocialConflicts(t *testing.T) {
	t.Parallel()
	f := openFixture(t)
	ctx := context.Background()

	social, err := f.reservations.PromoteToSocial(ctx, f.slot(18), "admin")
	require.NoError(t, err)
	assert.Equal(t, model.StateSocial, social.State)

	_, err = f.reservations.PromoteToSocial(ctx, f.slot(18), "admin")
	assert.ErrorIs(t, err, ErrSlotClaimed)
	_, err = f.reservations.InsertTemporary(ctx, NewHold{Slot: f.slot(18), UserID: "alice", TTL: time.Minute})
	assert.ErrorIs(t, err, ErrSlotClaimed)
}

func TestListings(t *testing.T) {
	t.Parallel()
	f := openFixture(t)
	ctx := context.Background()

	a, err := f.reservations.InsertTemporary(ctx, NewHold{Slot: f.slot(9), UserID: "alice", TTL: time.Minute})
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	b, err := f.reservations.InsertTemporary(ctx, NewHold{Slot: f.slot(11), UserID: "alice", TTL: time.Minute})
	require.NoError(t, err)
	_, err = f.reservations.InsertTemporary(ctx, NewHold{Slot: f.slot(10), UserID: "bob", TTL: time.Minute})
	require.NoError(t, err)
	_, _, err = f.reservations.Cancel(ctx, b.ID, model.ReasonUserCancel)
	require.NoError(t, err)

	day, err := f.reservations.ListActiveForResourceAndDate(ctx, f.court.ID, f.slot(9).Date)
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, 9, day[0].Unit)
	assert.Equal(t, 10, day[1].Unit)

	active, err := f.reservations.ListActiveForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	history, err := f.reservations.ListForUser(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, b.ID, history[0].ID)
}

func TestResourceDeleteInUse(t *testing.T) {
	t.Parallel()
	f := openFixture(t)
	ctx := context.Background()

	res, err := f.reservations.InsertTemporary(ctx, NewHold{Slot: f.slot(9), UserID: "alice", TTL: time.Minute})
	require.NoError(t, err)

	assert.ErrorIs(t, f.resources.Delete(ctx, f.court.ID), ErrConflict)

	_, _, err = f.reservations.Cancel(ctx, res.ID, model.ReasonUserCancel)
	require.NoError(t, err)
	require.NoError(t, f.resources.Delete(ctx, f.court.ID))

	_, err = f.resources.Get(ctx, f.court.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.resources.Delete(ctx, f.court.ID), ErrNotFound)

	// Holds on a deleted resource fail on the foreign key.
	_, err = f.reservations.InsertTemporary(ctx, NewHold{Slot: f.slot(10), UserID: "alice", TTL: time.Minute})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResourceBlackoutAndUpdate(t *testing.T) {
	t.Parallel()
	f := openFixture(t)
	ctx := context.Background()
	day := model.Date{Year: 2026, Month: 12, Day: 31}

	require.NoError(t, f.resources.AddBlackoutDate(ctx, f.court.ID, day))
	require.NoError(t, f.resources.AddBlackoutDate(ctx, f.court.ID, day))
	assert.ErrorIs(t, f.resources.AddBlackoutDate(ctx, "missing", day), ErrNotFound)

	got, err := f.resources.Get(ctx, f.court.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.Date{day}, got.BlackoutDates)
	assert.True(t, got.BlackedOut(day))
	assert.True(t, got.Price.Equal(decimal.NewFromInt(1500)))

	got.IsAvailable = false
	got.Name = "Center court"
	updated, err := f.resources.Update(ctx, got)
	require.NoError(t, err)
	assert.False(t, updated.IsAvailable)
	assert.Equal(t, "Center court", updated.Name)

	_, err = f.resources.Update(ctx, model.Resource{ID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := f.resources.List(ctx, model.KindCoworking)
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = f.resources.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRetryReadStopsOnPermanentError(t *testing.T) {
	t.Parallel()
	calls := 0
	permanent := errors.New("boom")
	err := retryRead(context.Background(), func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}
