// Package slot defines which units a resource offers and which dates a user
// may pick.  It is pure: no storage, no clock; callers pass "today".
package slot

import (
	"errors"
	"fmt"

	"github.com/rondo-space/venue-reservations/internal/model"
)

const (
	FirstCourtHour = 9  // first bookable starting hour
	LastCourtHour  = 20 // last bookable starting hour, inclusive
	SeatUnit       = 0  // the single occupancy unit of a coworking seat

	// DefaultHorizonDays is how far ahead of today courts can be booked.
	DefaultHorizonDays = 7
)

// ErrInvalidUnit is returned by Canonical for a unit the resource kind does
// not offer.
var ErrInvalidUnit = errors.New("unit not offered by resource")

// Units returns the units offered by a resource of the given kind, in order.
func Units(kind model.ResourceKind) []int {
	switch kind {
	case model.KindCourt:
		units := make([]int, 0, LastCourtHour-FirstCourtHour+1)
		for h := FirstCourtHour; h <= LastCourtHour; h++ {
			units = append(units, h)
		}
		return units
	case model.KindCoworking:
		return []int{SeatUnit}
	}
	return nil
}

// ValidUnit reports whether unit belongs to the kind's unit range.
func ValidUnit(kind model.ResourceKind, unit int) bool {
	switch kind {
	case model.KindCourt:
		return unit >= FirstCourtHour && unit <= LastCourtHour
	case model.KindCoworking:
		return unit == SeatUnit
	}
	return false
}

// Canonical builds the slot identity for (resource, date, unit).  Coworking
// slots collapse to the open-ended date so one seat session blocks the seat
// regardless of the calendar day it started on.
func Canonical(resourceID string, kind model.ResourceKind, date model.Date, unit int) (model.Slot, error) {
	if !ValidUnit(kind, unit) {
		return model.Slot{}, fmt.Errorf("%w: %s unit %d", ErrInvalidUnit, kind, unit)
	}
	if kind == model.KindCoworking {
		date = model.Date{}
	}
	return model.Slot{ResourceID: resourceID, Date: date, Unit: unit}, nil
}

// CanonicalDate returns the storage date for a day of the given kind.
func CanonicalDate(kind model.ResourceKind, date model.Date) model.Date {
	if kind == model.KindCoworking {
		return model.Date{}
	}
	return date
}

// Policy decides which dates a user may select.
type Policy struct {
	HorizonDays int
}

// DefaultPolicy returns the one-week booking horizon.
func DefaultPolicy() Policy { return Policy{HorizonDays: DefaultHorizonDays} }

// Selectable reports whether a user may hold a slot of the given kind on
// date.  Courts accept today through today+HorizonDays inclusive; a seat
// session always starts today.  Blackouts are not considered here.
func (p Policy) Selectable(kind model.ResourceKind, date, today model.Date) bool {
	switch kind {
	case model.KindCourt:
		if date.IsZero() || date.Before(today) {
			return false
		}
		return !date.After(today.AddDays(p.horizon()))
	case model.KindCoworking:
		return date == today
	}
	return false
}

// Days returns the days a user can currently choose from, starting today.
func (p Policy) Days(kind model.ResourceKind, today model.Date) []model.Date {
	if kind == model.KindCoworking {
		return []model.Date{today}
	}
	days := make([]model.Date, 0, p.horizon()+1)
	for i := 0; i <= p.horizon(); i++ {
		days = append(days, today.AddDays(i))
	}
	return days
}

func (p Policy) horizon() int {
	if p.HorizonDays <= 0 {
		return DefaultHorizonDays
	}
	return p.HorizonDays
}
