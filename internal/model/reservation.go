package model

import "time"

// State is the lifecycle position of a reservation.  Exactly one state is
// held at a time; there are no auxiliary flags.
type State string

const (
	StateTemporary State = "temporary" // held, awaiting payment
	StateConfirmed State = "confirmed" // paid
	StateSocial    State = "social"    // blocked by staff for a public activity
	StateCancelled State = "cancelled" // terminal
)

// ActiveStates lists the states that occupy a slot.
var ActiveStates = []State{StateTemporary, StateConfirmed, StateSocial}

// Active reports whether s occupies its slot.
func (s State) Active() bool {
	return s == StateTemporary || s == StateConfirmed || s == StateSocial
}

// Slot identifies one indivisible bookable unit of a resource.  For courts
// Date is the calendar day and Unit the starting hour; coworking slots have
// the zero Date and a constant Unit.
type Slot struct {
	ResourceID string `json:"resource_id"`
	Date       Date   `json:"date"`
	Unit       int    `json:"unit"`
}

// DateKey is the storage form of the slot's date.
func (s Slot) DateKey() string { return s.Date.String() }

// Reservation is a user's (or staff's) claim on a slot.
//
// Fields:
//
//	PaymentRef   – provider reference recorded on confirmation.
//	ExpiresAt    – set only while the reservation is temporary.
//	CancelReason – audit trail for cancelled reservations.
type Reservation struct {
	ID           string     `json:"id"`
	ResourceID   string     `json:"resource_id"`
	Date         Date       `json:"date"`
	Unit         int        `json:"unit"`
	UserID       string     `json:"user_id"`
	State        State      `json:"state"`
	PaymentRef   string     `json:"payment_ref,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
}

// Slot returns the slot this reservation claims.
func (r Reservation) Slot() Slot {
	return Slot{ResourceID: r.ResourceID, Date: r.Date, Unit: r.Unit}
}

// Cancellation reasons recorded in the audit columns.
const (
	ReasonUserCancel    = "user_cancel"
	ReasonAdminCancel   = "admin_cancel"
	ReasonAdminClose    = "admin_close"
	ReasonExpired       = "hold_expired"
	ReasonPaymentFailed = "payment_failed"
)
