package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rondo-space/venue-reservations/internal/cache"
	"github.com/rondo-space/venue-reservations/internal/model"
	"github.com/rondo-space/venue-reservations/internal/monitoring"
	"github.com/rondo-space/venue-reservations/internal/slot"
)

// StatusAvailable marks a free slot in a DayView.  Occupied slots carry the
// occupying reservation's state.
const StatusAvailable = "available"

// ActiveLister reads the active reservations of a resource-day.
type ActiveLister interface {
	ListActiveForResourceAndDate(ctx context.Context, resourceID string, date model.Date) ([]model.Reservation, error)
}

// SlotView is one unit of a DayView.  The occupant fields are filled only for
// the occupying user and for admins.
type SlotView struct {
	Unit          int        `json:"unit"`
	Label         string     `json:"label"`
	Status        string     `json:"status"`
	ReservationID string     `json:"reservation_id,omitempty"`
	UserID        string     `json:"user_id,omitempty"`
	Mine          bool       `json:"mine,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// DayView is the availability of one resource on one day.  Bookable is false
// when the resource is switched off, blacked out or the day is outside the
// booking window; slot statuses are reported either way.
type DayView struct {
	ResourceID string     `json:"resource_id"`
	Date       model.Date `json:"date"`
	Bookable   bool       `json:"bookable"`
	Slots      []SlotView `json:"slots"`
}

// Projection renders availability from the ledger, through the slot cache
// when one is configured.
type Projection struct {
	resources ResourceReader
	store     ActiveLister
	cache     *cache.SlotCache
	calendar  Calendar
	log       *slog.Logger
}

// NewProjection returns a Projection.  c may be nil to read the store
// directly.
func NewProjection(resources ResourceReader, store ActiveLister, c *cache.SlotCache, cal Calendar, logger *slog.Logger) *Projection {
	if logger == nil {
		logger = slog.Default()
	}
	return &Projection{
		resources: resources,
		store:     store,
		cache:     c,
		calendar:  cal,
		log:       logger.With("component", "projection"),
	}
}

// SlotsFor returns the day view of a resource.  The zero date means today.
func (p *Projection) SlotsFor(ctx context.Context, viewer model.Actor, resourceID string, date model.Date) (DayView, error) {
	res, err := p.resources.Get(ctx, resourceID)
	if err != nil {
		return DayView{}, storeErr("slots", err)
	}
	today := p.calendar.Today()
	if date.IsZero() {
		date = today
	}
	return p.dayView(ctx, viewer, res, date, today)
}

// WeekFor returns the day views from from (today for the zero date) through
// the booking horizon.  A coworking seat has a single, open-ended day.
func (p *Projection) WeekFor(ctx context.Context, viewer model.Actor, resourceID string, from model.Date) ([]DayView, error) {
	res, err := p.resources.Get(ctx, resourceID)
	if err != nil {
		return nil, storeErr("week", err)
	}
	today := p.calendar.Today()
	if from.IsZero() {
		from = today
	}
	days := p.calendar.Policy.Days(res.Kind, from)
	out := make([]DayView, 0, len(days))
	for _, d := range days {
		v, err := p.dayView(ctx, viewer, res, d, today)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ListActive returns the active reservations of a resource-day with their
// owners.  Admin only.
func (p *Projection) ListActive(ctx context.Context, actor model.Actor, resourceID string, date model.Date) ([]model.Reservation, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	res, err := p.resources.Get(ctx, resourceID)
	if err != nil {
		return nil, storeErr("list active", err)
	}
	if date.IsZero() {
		date = p.calendar.Today()
	}
	rows, err := p.store.ListActiveForResourceAndDate(ctx, res.ID, slot.CanonicalDate(res.Kind, date))
	if err != nil {
		return nil, storeErr("list active", err)
	}
	return rows, nil
}

// Invalidate makes the cached view of a resource-day stale before the
// caller's transition is reported.  date is the canonical slot date.
func (p *Projection) Invalidate(ctx context.Context, resourceID string, date model.Date) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Invalidate(ctx, resourceID, date.String()); err != nil {
		p.log.WarnContext(ctx, "slot cache invalidation degraded, bypassing cache",
			"resource_id", resourceID, "date", date.String(), "error", err)
	}
}

func (p *Projection) dayView(ctx context.Context, viewer model.Actor, res model.Resource, date, today model.Date) (DayView, error) {
	rows, err := p.active(ctx, res.ID, slot.CanonicalDate(res.Kind, date))
	if err != nil {
		return DayView{}, storeErr("slots", err)
	}
	occupied := make(map[int]model.Reservation, len(rows))
	for _, r := range rows {
		occupied[r.Unit] = r
	}

	units := slot.Units(res.Kind)
	v := DayView{
		ResourceID: res.ID,
		Date:       date,
		Bookable:   res.IsAvailable && !res.BlackedOut(date) && p.calendar.Policy.Selectable(res.Kind, date, today),
		Slots:      make([]SlotView, 0, len(units)),
	}
	for _, u := range units {
		sv := SlotView{Unit: u, Label: unitLabel(res.Kind, u), Status: StatusAvailable}
		if r, ok := occupied[u]; ok {
			sv.Status = string(r.State)
			if viewer.IsAdmin() || (viewer.Authenticated() && viewer.UserID == r.UserID) {
				sv.ReservationID = r.ID
				sv.Mine = viewer.UserID == r.UserID
				sv.ExpiresAt = r.ExpiresAt
				if viewer.IsAdmin() {
					sv.UserID = r.UserID
				}
			}
		}
		v.Slots = append(v.Slots, sv)
	}
	return v, nil
}

// active reads a resource-day through the versioned cache.  The version is
// read before the store so a transition committed meanwhile lands under a
// newer version; cache failures fall back to the store.
func (p *Projection) active(ctx context.Context, resourceID string, date model.Date) ([]model.Reservation, error) {
	if p.cache == nil {
		return p.store.ListActiveForResourceAndDate(ctx, resourceID, date)
	}
	key := date.String()
	if p.cache.Bypassed(resourceID, key) {
		monitoring.ObserveProjectionLookup("bypass")
		return p.store.ListActiveForResourceAndDate(ctx, resourceID, date)
	}
	ver, err := p.cache.Version(ctx, resourceID, key)
	if err != nil {
		monitoring.ObserveProjectionLookup("error")
		p.log.WarnContext(ctx, "slot cache version read failed", "resource_id", resourceID, "error", err)
		return p.store.ListActiveForResourceAndDate(ctx, resourceID, date)
	}
	rows, hit, err := p.cache.Get(ctx, resourceID, key, ver)
	switch {
	case err != nil:
		monitoring.ObserveProjectionLookup("error")
		p.log.WarnContext(ctx, "slot cache read failed", "resource_id", resourceID, "error", err)
	case hit:
		monitoring.ObserveProjectionLookup("hit")
		return rows, nil
	default:
		monitoring.ObserveProjectionLookup("miss")
	}

	rows, err = p.store.ListActiveForResourceAndDate(ctx, resourceID, date)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Set(ctx, resourceID, key, ver, rows); err != nil {
		p.log.WarnContext(ctx, "slot cache write failed", "resource_id", resourceID, "error", err)
	}
	return rows, nil
}

// unitLabel renders a unit for humans: "10:00" for a court hour, "seat" for
// a coworking seat.
func unitLabel(kind model.ResourceKind, unit int) string {
	if kind == model.KindCoworking {
		return "seat"
	}
	return fmt.Sprintf("%02d:00", unit)
}
