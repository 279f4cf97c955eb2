package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResourceKind distinguishes the two bookable resource families.  Courts are
// booked per hour of a calendar day; coworking seats are occupied for an
// open-ended session.
type ResourceKind string

const (
	KindCourt     ResourceKind = "court"
	KindCoworking ResourceKind = "coworking"
)

// Valid reports whether k is one of the known kinds.
func (k ResourceKind) Valid() bool {
	return k == KindCourt || k == KindCoworking
}

// Resource is a bookable venue asset.
//
// Fields:
//
//	ID            – UUID primary key.
//	Kind          – court or coworking.
//	Price         – price of one slot in the configured currency.
//	IsAvailable   – kill-switch; false blocks new holds but keeps existing ones.
//	BlackoutDates – calendar days on which no new hold may be placed.
type Resource struct {
	ID            string          `json:"id"`
	Kind          ResourceKind    `json:"kind"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	IsAvailable   bool            `json:"is_available"`
	BlackoutDates []Date          `json:"blackout_dates"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// BlackedOut reports whether d is one of the resource's blackout dates.
func (r Resource) BlackedOut(d Date) bool {
	for _, b := range r.BlackoutDates {
		if b == d {
			return true
		}
	}
	return false
}

// Free reports whether holds on this resource need no payment.
func (r Resource) Free() bool { return r.Price.IsZero() }
