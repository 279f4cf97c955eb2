// Package service holds the booking core: the engine that moves reservations
// through their lifecycle, the resource catalog, the hold expiry sweeper and
// the availability projection.  Handlers and queue consumers call into it;
// it never talks HTTP or AMQP itself.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rondo-space/venue-reservations/internal/model"
	"github.com/rondo-space/venue-reservations/internal/monitoring"
	"github.com/rondo-space/venue-reservations/internal/payment"
	"github.com/rondo-space/venue-reservations/internal/repository"
	"github.com/rondo-space/venue-reservations/internal/slot"
)

// DefaultHoldTTL is how long an unpaid hold keeps its slot.
const DefaultHoldTTL = 15 * time.Minute

const (
	notifyTimeout = 5 * time.Second
	historyLimit  = 100
)

// ResourceReader looks up resources.
type ResourceReader interface {
	Get(ctx context.Context, id string) (model.Resource, error)
}

// ReservationStore is the durable reservation ledger.  *repository.ReservationRepo
// implements it.
type ReservationStore interface {
	Now() time.Time
	InsertTemporary(ctx context.Context, h repository.NewHold) (model.Reservation, error)
	PromoteToConfirmed(ctx context.Context, id, paymentRef string) (model.Reservation, error)
	PromoteToSocial(ctx context.Context, s model.Slot, userID string) (model.Reservation, error)
	Cancel(ctx context.Context, id, reason string) (model.Reservation, bool, error)
	CancelTemporary(ctx context.Context, id, reason string) (model.Reservation, error)
	Get(ctx context.Context, id string) (model.Reservation, error)
	ActiveForSlot(ctx context.Context, s model.Slot) (model.Reservation, error)
	ListActiveForUser(ctx context.Context, userID string) ([]model.Reservation, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]model.Reservation, error)
}

// Notifier tells the outside world about reservation changes.  Failures are
// logged by the engine and never undo the change.
type Notifier interface {
	ReservationConfirmed(ctx context.Context, res model.Reservation) error
	ReservationCancelled(ctx context.Context, res model.Reservation) error
}

// ViewInvalidator drops cached availability for a resource-day.  date is the
// canonical (stored) date of the slot.
type ViewInvalidator interface {
	Invalidate(ctx context.Context, resourceID string, date model.Date)
}

// HoldResult is a fresh hold plus what the user needs to pay for it.  Payment
// is nil when the resource is free; the reservation is then already confirmed.
type HoldResult struct {
	Reservation model.Reservation `json:"reservation"`
	Payment     *payment.Handle   `json:"payment,omitempty"`
}

// Engine owns every reservation state transition.
type Engine struct {
	resources ResourceReader
	store     ReservationStore
	payments  payment.Gateway
	notifier  Notifier
	views     ViewInvalidator
	calendar  Calendar
	holdTTL   time.Duration
	log       *slog.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithHoldTTL sets how long holds stay unpaid before the sweeper expires them.
func WithHoldTTL(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.holdTTL = d
		}
	}
}

// WithCalendar sets the venue time zone, booking horizon and clock.  A nil
// Now keeps the store clock.
func WithCalendar(c Calendar) EngineOption {
	return func(e *Engine) {
		now := e.calendar.Now
		e.calendar = c
		if c.Now == nil {
			e.calendar.Now = now
		}
	}
}

// WithPayments sets the gateway used for paid resources.
func WithPayments(g payment.Gateway) EngineOption {
	return func(e *Engine) { e.payments = g }
}

// WithNotifier sets the reservation event sink.
func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

// WithViewInvalidator sets the projection whose cache is bumped on every
// transition.
func WithViewInvalidator(v ViewInvalidator) EngineOption {
	return func(e *Engine) { e.views = v }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEngine builds an Engine over the given stores.  Unless overridden, the
// clock is the store's so "today" and stored timestamps agree.
func NewEngine(resources ResourceReader, store ReservationStore, opts ...EngineOption) *Engine {
	e := &Engine{
		resources: resources,
		store:     store,
		calendar:  Calendar{Policy: slot.DefaultPolicy(), Location: time.UTC, Now: store.Now},
		holdTTL:   DefaultHoldTTL,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("component", "engine")
	return e
}

// Hold places a temporary reservation on (resourceID, date, unit) for the
// actor and starts a payment for it.  For coworking seats the zero date means
// today.
func (e *Engine) Hold(ctx context.Context, actor model.Actor, resourceID string, date model.Date, unit int) (out HoldResult, err error) {
	ctx, span := monitoring.Tracer().Start(ctx, "engine.Hold", trace.WithAttributes(
		attribute.String("resource.id", resourceID),
		attribute.String("slot.date", date.String()),
		attribute.Int("slot.unit", unit),
	))
	kind := "unknown"
	defer func() {
		monitoring.ObserveHold(kind, Code(err))
		monitoring.EndSpan(span, err)
	}()

	if !actor.Authenticated() {
		return HoldResult{}, ErrUnauthenticated
	}
	res, err := e.resources.Get(ctx, resourceID)
	if err != nil {
		return HoldResult{}, storeErr("hold", err)
	}
	kind = string(res.Kind)

	today := e.calendar.Today()
	if res.Kind == model.KindCoworking && date.IsZero() {
		date = today
	}
	if !res.IsAvailable || res.BlackedOut(date) {
		return HoldResult{}, ErrResourceUnavailable
	}
	s, err := slot.Canonical(res.ID, res.Kind, date, unit)
	if err != nil {
		return HoldResult{}, fmt.Errorf("%w: %w", ErrInvalidSlot, err)
	}
	if !e.calendar.Policy.Selectable(res.Kind, date, today) {
		return HoldResult{}, ErrOutOfWindow
	}
	if res.Kind == model.KindCourt && !actor.ProfileComplete() {
		return HoldResult{}, ErrProfileIncomplete
	}

	h := repository.NewHold{Slot: s, UserID: actor.UserID, TTL: e.holdTTL}
	switch res.Kind {
	case model.KindCourt:
		h.UserScope, h.ReleaseScopeOnConfirm = repository.ScopeCourtHold, true
	case model.KindCoworking:
		h.UserScope = repository.ScopeCoworkingSeat
	}
	r, err := e.store.InsertTemporary(ctx, h)
	if err != nil {
		return HoldResult{}, storeErr("hold", err)
	}
	e.invalidate(ctx, s)
	span.SetAttributes(attribute.String("reservation.id", r.ID))
	e.log.InfoContext(ctx, "hold placed",
		"reservation_id", r.ID, "resource_id", r.ResourceID,
		"date", r.Date.String(), "unit", r.Unit, "user_id", r.UserID)

	if res.Free() {
		confirmed, err := e.Confirm(ctx, r.ID, "free:"+r.ID)
		if err != nil {
			return HoldResult{}, err
		}
		return HoldResult{Reservation: confirmed}, nil
	}
	if e.payments == nil {
		return HoldResult{Reservation: r}, nil
	}

	handle, err := e.payments.Initiate(ctx, payment.Checkout{
		ReservationID: r.ID,
		Amount:        res.Price,
		Description:   fmt.Sprintf("%s, %s", res.Name, slotLabel(res.Kind, r.Date, r.Unit)),
	})
	if err != nil {
		e.log.ErrorContext(ctx, "payment initiation failed, releasing hold",
			"reservation_id", r.ID, "error", err)
		if _, cerr := e.store.CancelTemporary(ctx, r.ID, model.ReasonPaymentFailed); cerr != nil {
			e.log.ErrorContext(ctx, "release after payment failure", "reservation_id", r.ID, "error", cerr)
		} else {
			monitoring.ObserveCancel(model.ReasonPaymentFailed)
		}
		e.invalidate(ctx, s)
		return HoldResult{}, fmt.Errorf("initiate payment: %w: %w", ErrUnavailable, err)
	}
	return HoldResult{Reservation: r, Payment: &handle}, nil
}

// Confirm marks a temporary reservation paid.  Repeating a successful
// confirmation with the same payment reference succeeds without side
// effects; any other resolved state yields ErrAlreadyResolved.
func (e *Engine) Confirm(ctx context.Context, reservationID, paymentRef string) (out model.Reservation, err error) {
	ctx, span := monitoring.Tracer().Start(ctx, "engine.Confirm",
		trace.WithAttributes(attribute.String("reservation.id", reservationID)))
	outcome := "ok"
	defer func() {
		if err != nil {
			outcome = Code(err)
		}
		monitoring.ObserveConfirm(outcome)
		monitoring.EndSpan(span, err)
	}()

	r, err := e.store.PromoteToConfirmed(ctx, reservationID, paymentRef)
	if errors.Is(err, repository.ErrStateConflict) {
		if r.State == model.StateConfirmed && r.PaymentRef == paymentRef {
			outcome = "duplicate"
			return r, nil
		}
		e.log.WarnContext(ctx, "confirm on resolved reservation",
			"reservation_id", reservationID, "state", string(r.State))
		return r, fmt.Errorf("confirm %s: %w", reservationID, ErrAlreadyResolved)
	}
	if err != nil {
		return model.Reservation{}, storeErr("confirm", err)
	}

	e.invalidate(ctx, r.Slot())
	e.log.InfoContext(ctx, "reservation confirmed", "reservation_id", r.ID, "payment_ref", paymentRef)
	e.notify(ctx, r, "confirmed", func(nctx context.Context) error {
		return e.notifier.ReservationConfirmed(nctx, r)
	})
	return r, nil
}

// Release cancels a hold whose payment failed.  A hold already released for
// the same reason is a no-op; any other resolved state yields
// ErrAlreadyResolved.
func (e *Engine) Release(ctx context.Context, reservationID, paymentRef string) (out model.Reservation, err error) {
	ctx, span := monitoring.Tracer().Start(ctx, "engine.Release",
		trace.WithAttributes(attribute.String("reservation.id", reservationID)))
	defer func() { monitoring.EndSpan(span, err) }()

	r, err := e.store.CancelTemporary(ctx, reservationID, model.ReasonPaymentFailed)
	if errors.Is(err, repository.ErrStateConflict) {
		if r.State == model.StateCancelled && r.CancelReason == model.ReasonPaymentFailed {
			return r, nil
		}
		return r, fmt.Errorf("release %s: %w", reservationID, ErrAlreadyResolved)
	}
	if err != nil {
		return model.Reservation{}, storeErr("release", err)
	}
	monitoring.ObserveCancel(model.ReasonPaymentFailed)
	e.invalidate(ctx, r.Slot())
	e.log.InfoContext(ctx, "hold released after failed payment",
		"reservation_id", r.ID, "payment_ref", paymentRef)
	return r, nil
}

// ApplyPayment routes a verified provider outcome to Confirm or Release.
func (e *Engine) ApplyPayment(ctx context.Context, o payment.Outcome) (model.Reservation, error) {
	if o.Succeeded {
		return e.Confirm(ctx, o.ReservationID, o.PaymentReference)
	}
	return e.Release(ctx, o.ReservationID, o.PaymentReference)
}

// Cancel cancels a reservation on behalf of its owner or an admin.
// Cancelling an already cancelled reservation succeeds and changes nothing.
func (e *Engine) Cancel(ctx context.Context, actor model.Actor, reservationID string) (out model.Reservation, err error) {
	ctx, span := monitoring.Tracer().Start(ctx, "engine.Cancel",
		trace.WithAttributes(attribute.String("reservation.id", reservationID)))
	defer func() { monitoring.EndSpan(span, err) }()

	if !actor.Authenticated() {
		return model.Reservation{}, ErrUnauthenticated
	}
	r, err := e.store.Get(ctx, reservationID)
	if err != nil {
		return model.Reservation{}, storeErr("cancel", err)
	}
	owner := r.UserID == actor.UserID
	if !owner && !actor.IsAdmin() {
		return model.Reservation{}, ErrForbidden
	}
	if r.State == model.StateCancelled {
		return r, nil
	}

	reason := model.ReasonUserCancel
	if !owner {
		reason = model.ReasonAdminCancel
	}
	r, changed, err := e.store.Cancel(ctx, reservationID, reason)
	if err != nil {
		return model.Reservation{}, storeErr("cancel", err)
	}
	if !changed {
		return r, nil
	}
	monitoring.ObserveCancel(reason)
	e.invalidate(ctx, r.Slot())
	e.log.InfoContext(ctx, "reservation cancelled",
		"reservation_id", r.ID, "reason", reason, "by", actor.UserID)
	if !owner {
		e.notify(ctx, r, "cancelled", func(nctx context.Context) error {
			return e.notifier.ReservationCancelled(nctx, r)
		})
	}
	return r, nil
}

// AdminClose force-cancels whatever occupies the slot.  It returns
// ErrNotFound when the slot is already free.
func (e *Engine) AdminClose(ctx context.Context, actor model.Actor, resourceID string, date model.Date, unit int) (out model.Reservation, err error) {
	ctx, span := monitoring.Tracer().Start(ctx, "engine.AdminClose", trace.WithAttributes(
		attribute.String("resource.id", resourceID),
		attribute.String("slot.date", date.String()),
		attribute.Int("slot.unit", unit),
	))
	defer func() { monitoring.EndSpan(span, err) }()

	res, s, err := e.adminSlot(ctx, actor, resourceID, date, unit)
	if err != nil {
		return model.Reservation{}, err
	}
	occupant, err := e.store.ActiveForSlot(ctx, s)
	if err != nil {
		return model.Reservation{}, storeErr("close slot", err)
	}
	r, changed, err := e.store.Cancel(ctx, occupant.ID, model.ReasonAdminClose)
	if err != nil {
		return model.Reservation{}, storeErr("close slot", err)
	}
	e.invalidate(ctx, s)
	if !changed {
		return r, nil
	}
	monitoring.ObserveCancel(model.ReasonAdminClose)
	e.log.InfoContext(ctx, "slot closed by admin",
		"reservation_id", r.ID, "resource_id", res.ID, "date", s.DateKey(), "unit", s.Unit, "by", actor.UserID)
	if occupant.State != model.StateSocial && occupant.UserID != actor.UserID {
		e.notify(ctx, r, "cancelled", func(nctx context.Context) error {
			return e.notifier.ReservationCancelled(nctx, r)
		})
	}
	return r, nil
}

// MarkSocial blocks a free slot for a public activity.  The date may lie
// beyond the user horizon but not in the past.
func (e *Engine) MarkSocial(ctx context.Context, actor model.Actor, resourceID string, date model.Date, unit int) (out model.Reservation, err error) {
	ctx, span := monitoring.Tracer().Start(ctx, "engine.MarkSocial", trace.WithAttributes(
		attribute.String("resource.id", resourceID),
		attribute.String("slot.date", date.String()),
		attribute.Int("slot.unit", unit),
	))
	defer func() { monitoring.EndSpan(span, err) }()

	res, s, err := e.adminSlot(ctx, actor, resourceID, date, unit)
	if err != nil {
		return model.Reservation{}, err
	}
	if res.Kind == model.KindCourt && (date.IsZero() || date.Before(e.calendar.Today())) {
		return model.Reservation{}, ErrOutOfWindow
	}
	r, err := e.store.PromoteToSocial(ctx, s, actor.UserID)
	if err != nil {
		return model.Reservation{}, storeErr("mark social", err)
	}
	e.invalidate(ctx, s)
	e.log.InfoContext(ctx, "slot marked social",
		"reservation_id", r.ID, "resource_id", res.ID, "date", s.DateKey(), "unit", s.Unit, "by", actor.UserID)
	return r, nil
}

// MyReservations lists the actor's active reservations, or the most recent
// ones in any state when all is set.
func (e *Engine) MyReservations(ctx context.Context, actor model.Actor, all bool) ([]model.Reservation, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	var (
		rows []model.Reservation
		err  error
	)
	if all {
		rows, err = e.store.ListForUser(ctx, actor.UserID, historyLimit)
	} else {
		rows, err = e.store.ListActiveForUser(ctx, actor.UserID)
	}
	if err != nil {
		return nil, storeErr("list reservations", err)
	}
	return rows, nil
}

// adminSlot runs the checks shared by the admin slot overrides.
func (e *Engine) adminSlot(ctx context.Context, actor model.Actor, resourceID string, date model.Date, unit int) (model.Resource, model.Slot, error) {
	if err := requireAdmin(actor); err != nil {
		return model.Resource{}, model.Slot{}, err
	}
	res, err := e.resources.Get(ctx, resourceID)
	if err != nil {
		return model.Resource{}, model.Slot{}, storeErr("admin slot", err)
	}
	s, err := slot.Canonical(res.ID, res.Kind, date, unit)
	if err != nil {
		return model.Resource{}, model.Slot{}, fmt.Errorf("%w: %w", ErrInvalidSlot, err)
	}
	return res, s, nil
}

func (e *Engine) invalidate(ctx context.Context, s model.Slot) {
	if e.views != nil {
		e.views.Invalidate(ctx, s.ResourceID, s.Date)
	}
}

// notify runs fn detached from the request's cancellation, bounded by
// notifyTimeout.
func (e *Engine) notify(ctx context.Context, r model.Reservation, event string, fn func(context.Context) error) {
	if e.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := fn(nctx); err != nil {
		e.log.WarnContext(ctx, "notification failed",
			"event", event, "reservation_id", r.ID, "error", err)
	}
}

func slotLabel(kind model.ResourceKind, date model.Date, unit int) string {
	if kind == model.KindCoworking {
		return unitLabel(kind, unit)
	}
	return date.String() + " " + unitLabel(kind, unit)
}
