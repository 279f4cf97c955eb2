// Package queue carries reservation events out to RabbitMQ and payment
// events in from it.
package queue

import (
	"time"

	"github.com/rondo-space/venue-reservations/internal/model"
)

// Routing keys on the reservations exchange.
const (
	RKReservationConfirmed = "reservation.confirmed"
	RKReservationCancelled = "reservation.cancelled"

	// RKPaymentEvents binds the payment queue to every provider event
	// relayed onto the exchange ("payment.succeeded", "payment.canceled").
	RKPaymentEvents = "payment.*"
)

// ReservationEvent is published when a reservation is confirmed or
// cancelled.  It carries enough for downstream consumers to notify the user
// without querying the reservation store.
type ReservationEvent struct {
	ReservationID string      `json:"reservation_id"`
	ResourceID    string      `json:"resource_id"`
	Date          model.Date  `json:"date"`
	Unit          int         `json:"unit"`
	UserID        string      `json:"user_id"`
	State         model.State `json:"state"`
	PaymentRef    string      `json:"payment_ref,omitempty"`
	CancelReason  string      `json:"cancel_reason,omitempty"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

// NewReservationEvent snapshots r.
func NewReservationEvent(r model.Reservation, at time.Time) ReservationEvent {
	return ReservationEvent{
		ReservationID: r.ID,
		ResourceID:    r.ResourceID,
		Date:          r.Date,
		Unit:          r.Unit,
		UserID:        r.UserID,
		State:         r.State,
		PaymentRef:    r.PaymentRef,
		CancelReason:  r.CancelReason,
		OccurredAt:    at.UTC(),
	}
}
