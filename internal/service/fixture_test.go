package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rondo-space/venue-reservations/internal/config"
	"github.com/rondo-space/venue-reservations/internal/database"
	"github.com/rondo-space/venue-reservations/internal/model"
	"github.com/rondo-space/venue-reservations/internal/payment"
	"github.com/rondo-space/venue-reservations/internal/repository"
	"github.com/rondo-space/venue-reservations/internal/slot"
)

var (
	alice = model.Actor{UserID: "alice", Role: model.RoleUser, FirstName: "Alice", LastName: "Moreau"}
	bob   = model.Actor{UserID: "bob", Role: model.RoleUser, FirstName: "Bob", LastName: "Ivanov"}
	staff = model.Actor{UserID: "staff", Role: model.RoleAdmin, FirstName: "Sam", LastName: "Keeper"}

	today    = model.Date{Year: 2026, Month: time.October, Day: 16}
	tomorrow = today.AddDays(1)
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

type fakeGateway struct {
	mu    sync.Mutex
	err   error
	calls []payment.Checkout
}

func (g *fakeGateway) Initiate(_ context.Context, c payment.Checkout) (payment.Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, c)
	if g.err != nil {
		return payment.Handle{}, g.err
	}
	return payment.Handle{RedirectURL: "https://pay.test/checkout/" + c.ReservationID, ProviderPaymentID: "pay-" + c.ReservationID}, nil
}

func (g *fakeGateway) fail(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []string
	cancelled []string
}

func (n *recordingNotifier) ReservationConfirmed(_ context.Context, r model.Reservation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, r.ID)
	return nil
}

func (n *recordingNotifier) ReservationCancelled(_ context.Context, r model.Reservation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, r.ID)
	return nil
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.confirmed), len(n.cancelled)
}

type env struct {
	engine       *Engine
	catalog      *Catalog
	sweeper      *Sweeper
	projection   *Projection
	resources    *repository.ResourceRepo
	reservations *repository.ReservationRepo
	clock        *testClock
	gateway      *fakeGateway
	notifier     *recordingNotifier

	court model.Resource // paid
	seat  model.Resource // free coworking seat
	desk  model.Resource // second free coworking seat
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DBConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "venue.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := &testClock{t: time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)}
	e := &env{
		resources:    repository.NewResourceRepo(db, repository.WithClock(clock.Now)),
		reservations: repository.NewReservationRepo(db, repository.WithClock(clock.Now)),
		clock:        clock,
		gateway:      &fakeGateway{},
		notifier:     &recordingNotifier{},
	}
	log := discardLogger()
	cal := Calendar{Policy: slot.DefaultPolicy(), Location: time.UTC, Now: clock.Now}
	e.projection = NewProjection(e.resources, e.reservations, nil, cal, log)
	e.engine = NewEngine(e.resources, e.reservations,
		WithCalendar(cal),
		WithPayments(e.gateway),
		WithNotifier(e.notifier),
		WithViewInvalidator(e.projection),
		WithLogger(log),
	)
	e.catalog = NewCatalog(e.resources, log)
	e.sweeper = NewSweeper(e.reservations, e.projection, time.Second, 2, log)

	e.court = e.mustCreate(t, model.Resource{Kind: model.KindCourt, Name: "Court 1", Price: decimal.NewFromInt(1500), IsAvailable: true})
	e.seat = e.mustCreate(t, model.Resource{Kind: model.KindCoworking, Name: "Seat A", IsAvailable: true})
	e.desk = e.mustCreate(t, model.Resource{Kind: model.KindCoworking, Name: "Seat B", IsAvailable: true})
	return e
}

func (e *env) mustCreate(t *testing.T, r model.Resource) model.Resource {
	t.Helper()
	out, err := e.catalog.Create(context.Background(), staff, r)
	require.NoError(t, err)
	return out
}

func (e *env) mustHold(t *testing.T, actor model.Actor, date model.Date, unit int) model.Reservation {
	t.Helper()
	out, err := e.engine.Hold(context.Background(), actor, e.court.ID, date, unit)
	require.NoError(t, err)
	return out.Reservation
}

func user(id string) model.Actor {
	return model.Actor{UserID: id, Role: model.RoleUser, FirstName: "Player", LastName: id}
}
