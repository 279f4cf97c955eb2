package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rondo-space/venue-reservations/internal/auth"
	"github.com/rondo-space/venue-reservations/internal/config"
	"github.com/rondo-space/venue-reservations/internal/database"
	"github.com/rondo-space/venue-reservations/internal/handler"
	"github.com/rondo-space/venue-reservations/internal/model"
	"github.com/rondo-space/venue-reservations/internal/payment"
	"github.com/rondo-space/venue-reservations/internal/repository"
	"github.com/rondo-space/venue-reservations/internal/service"
	"github.com/rondo-space/venue-reservations/internal/slot"
)

const jwtSecret = "router-test-secret"

var (
	now      = time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)
	today    = model.DateOf(now)
	tomorrow = today.AddDays(1)
)

type app struct {
	e      *echo.Echo
	signer *payment.Signer
	admin  string
	alice  string
	bob    string
	anon   string
}

func newApp(t *testing.T) *app {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DBConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "venue.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := func() time.Time { return now }
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	resources := repository.NewResourceRepo(db, repository.WithClock(clock))
	reservations := repository.NewReservationRepo(db, repository.WithClock(clock))
	signer := payment.NewSigner("signing-key")

	cal := service.Calendar{Policy: slot.DefaultPolicy(), Location: time.UTC, Now: clock}
	projection := service.NewProjection(resources, reservations, nil, cal, log)
	engine := service.NewEngine(resources, reservations,
		service.WithCalendar(cal),
		service.WithPayments(payment.NewLocalGateway("http://localhost/return", signer)),
		service.WithViewInvalidator(projection),
		service.WithLogger(log),
	)
	sweeper := service.NewSweeper(reservations, projection, time.Minute, 50, log)

	rh := handler.NewResourceHandler(service.NewCatalog(resources, log))
	ah := handler.NewAvailabilityHandler(projection)
	bh := handler.NewReservationHandler(engine, sweeper)

	e := echo.New()
	RegisterRoutes(e, db)
	RegisterPublic(e, rh, ah, jwtSecret)
	RegisterReservations(e, bh, jwtSecret, nil)
	RegisterPayments(e, handler.NewPaymentHandler(signer, engine))
	RegisterAdmin(e, rh, ah, bh, jwtSecret)

	return &app{
		e:      e,
		signer: signer,
		admin:  issue(t, model.Actor{UserID: "staff", Role: model.RoleAdmin, FirstName: "Sam", LastName: "Keeper"}),
		alice:  issue(t, model.Actor{UserID: "alice", Role: model.RoleUser, FirstName: "Alice", LastName: "Moreau"}),
		bob:    issue(t, model.Actor{UserID: "bob", Role: model.RoleUser, FirstName: "Bob", LastName: "Ivanov"}),
	}
}

func issue(t *testing.T, a model.Actor) string {
	t.Helper()
	tok, err := auth.IssueToken(jwtSecret, a, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func (a *app) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (a *app) createCourt(t *testing.T, price string) string {
	t.Helper()
	code, body := a.do(t, http.MethodPost, "/v1/admin/resources", a.admin,
		map[string]any{"kind": "court", "name": "Court 1", "price": price})
	require.Equal(t, http.StatusCreated, code, body)
	return body["id"].(string)
}

// slotStatus returns the status and visible reservation id of unit on date.
func (a *app) slotStatus(t *testing.T, token, resourceID string, date model.Date, unit int) (string, string) {
	t.Helper()
	code, body := a.do(t, http.MethodGet, "/v1/resources/"+resourceID+"/slots?date="+date.String(), token, nil)
	require.Equal(t, http.StatusOK, code, body)
	for _, s := range body["slots"].([]any) {
		sv := s.(map[string]any)
		if int(sv["unit"].(float64)) == unit {
			id, _ := sv["reservation_id"].(string)
			return sv["status"].(string), id
		}
	}
	t.Fatalf("unit %d not in grid", unit)
	return "", ""
}

func TestOperationalRoutes(t *testing.T) {
	a := newApp(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	a := newApp(t)
	body := map[string]any{"kind": "court", "name": "Court 9", "price": "100"}

	code, _ := a.do(t, http.MethodPost, "/v1/admin/resources", a.anon, body)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = a.do(t, http.MethodPost, "/v1/admin/resources", a.alice, body)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp := a.do(t, http.MethodPost, "/v1/admin/resources", a.admin, map[string]any{"kind": "pool", "name": "Pool"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_input", resp["error"])
}

func TestCatalogRoutes(t *testing.T) {
	a := newApp(t)
	id := a.createCourt(t, "1500")

	code, body := a.do(t, http.MethodGet, "/v1/resources?kind=court", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["resources"], 1)

	code, body = a.do(t, http.MethodPut, "/v1/admin/resources/"+id, a.admin, map[string]any{"is_available": false})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, false, body["is_available"])

	code, body = a.do(t, http.MethodPost, "/v1/admin/resources/"+id+"/blackout-dates", a.admin, map[string]any{"date": tomorrow.String()})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, []any{tomorrow.String()}, body["blackout_dates"])

	code, _ = a.do(t, http.MethodGet, "/v1/resources/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(t, http.MethodDelete, "/v1/admin/resources/"+id, a.admin, nil)
	assert.Equal(t, http.StatusNoContent, code)
}

// Two players race for the same court hour; the loser sees the slot taken,
// the winner pays, and staff can still close the slot afterwards.
func TestBookingFlow(t *testing.T) {
	a := newApp(t)
	court := a.createCourt(t, "1500")
	hold := map[string]any{"resource_id": court, "date": today.String(), "unit": 18}

	code, body := a.do(t, http.MethodPost, "/v1/reservations/hold", a.anon, hold)
	assert.Equal(t, http.StatusUnauthorized, code, body)

	code, body = a.do(t, http.MethodPost, "/v1/reservations/hold", a.alice, hold)
	require.Equal(t, http.StatusCreated, code, body)
	res := body["reservation"].(map[string]any)
	assert.Equal(t, "temporary", res["state"])
	id := res["id"].(string)
	assert.Contains(t, body["payment"].(map[string]any)["redirect_url"], id)

	code, body = a.do(t, http.MethodPost, "/v1/reservations/hold", a.bob, hold)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "slot_taken", body["error"])
	assert.Equal(t, "this slot was just taken, please pick another one", body["message"])

	status, visible := a.slotStatus(t, a.bob, court, today, 18)
	assert.Equal(t, "temporary", status)
	assert.Empty(t, visible)
	_, visible = a.slotStatus(t, a.alice, court, today, 18)
	assert.Equal(t, id, visible)

	n := a.signer.NewNotification(payment.EventSucceeded, id, "pay-"+id)
	code, body = a.do(t, http.MethodPost, "/v1/payments/callback", "", n)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "confirmed", body["status"])

	// Providers retry; the duplicate is acknowledged.
	code, _ = a.do(t, http.MethodPost, "/v1/payments/callback", "", n)
	assert.Equal(t, http.StatusOK, code)

	status, _ = a.slotStatus(t, "", court, today, 18)
	assert.Equal(t, "confirmed", status)

	code, body = a.do(t, http.MethodGet, "/v1/my/reservations", a.alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["reservations"], 1)

	code, body = a.do(t, http.MethodPost, "/v1/admin/slots/close", a.admin, hold)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "cancelled", body["state"])

	status, _ = a.slotStatus(t, "", court, today, 18)
	assert.Equal(t, "available", status)

	code, body = a.do(t, http.MethodPost, "/v1/reservations/hold", a.bob, hold)
	assert.Equal(t, http.StatusCreated, code, body)
}

func TestHoldRejections(t *testing.T) {
	a := newApp(t)
	court := a.createCourt(t, "1500")

	cases := []struct {
		name string
		body map[string]any
		code int
		err  string
	}{
		{"beyond horizon", map[string]any{"resource_id": court, "date": today.AddDays(8).String(), "unit": 10}, http.StatusUnprocessableEntity, "out_of_window"},
		{"yesterday", map[string]any{"resource_id": court, "date": today.AddDays(-1).String(), "unit": 10}, http.StatusUnprocessableEntity, "out_of_window"},
		{"no such hour", map[string]any{"resource_id": court, "date": today.String(), "unit": 23}, http.StatusBadRequest, "invalid_slot"},
		{"unknown resource", map[string]any{"resource_id": "nope", "date": today.String(), "unit": 10}, http.StatusNotFound, "not_found"},
		{"missing resource", map[string]any{"date": today.String(), "unit": 10}, http.StatusBadRequest, "invalid_input"},
		{"bad date", map[string]any{"resource_id": court, "date": "16/10/2026", "unit": 10}, http.StatusBadRequest, "invalid_input"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := a.do(t, http.MethodPost, "/v1/reservations/hold", a.alice, tc.body)
			assert.Equal(t, tc.code, code, body)
			assert.Equal(t, tc.err, body["error"])
		})
	}
}

func TestCancelAndSweepRoutes(t *testing.T) {
	a := newApp(t)
	court := a.createCourt(t, "1500")

	code, body := a.do(t, http.MethodPost, "/v1/reservations/hold", a.alice,
		map[string]any{"resource_id": court, "date": tomorrow.String(), "unit": 11})
	require.Equal(t, http.StatusCreated, code, body)
	id := body["reservation"].(map[string]any)["id"].(string)

	code, _ = a.do(t, http.MethodDelete, "/v1/reservations/"+id, a.bob, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = a.do(t, http.MethodDelete, "/v1/reservations/"+id, a.alice, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "cancelled", body["state"])

	code, _ = a.do(t, http.MethodDelete, "/v1/reservations/"+id, a.alice, nil)
	assert.Equal(t, http.StatusOK, code)

	code, body = a.do(t, http.MethodPost, "/v1/admin/sweep", a.admin, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(0), body["expired"])

	code, body = a.do(t, http.MethodGet, "/v1/admin/resources/"+court+"/reservations?date="+tomorrow.String(), a.admin, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Empty(t, body["reservations"])
}

func TestSocialRoute(t *testing.T) {
	a := newApp(t)
	court := a.createCourt(t, "1500")
	slotBody := map[string]any{"resource_id": court, "date": tomorrow.String(), "unit": 19}

	code, body := a.do(t, http.MethodPost, "/v1/admin/slots/social", a.admin, slotBody)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "social", body["state"])

	status, _ := a.slotStatus(t, "", court, tomorrow, 19)
	assert.Equal(t, "social", status)

	code, body = a.do(t, http.MethodPost, "/v1/reservations/hold", a.alice, slotBody)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "slot_taken", body["error"])
}

func TestWeekRoute(t *testing.T) {
	a := newApp(t)
	court := a.createCourt(t, "1500")

	code, body := a.do(t, http.MethodGet, "/v1/resources/"+court+"/week", "", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Len(t, body["days"], 8)

	code, _ = a.do(t, http.MethodGet, "/v1/resources/"+court+"/week?from=tomorrow", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
