package payment

import (
	"errors"
	"fmt"
)

// Provider notification events.
const (
	EventSucceeded = "payment.succeeded"
	EventCanceled  = "payment.canceled"
)

// Metadata keys attached to every payment.
const (
	metaReservationID = "reservation_id"
	metaSignature     = "signature"
)

// Notification is the provider's webhook body.  The same document is
// relayed onto the payment events queue.
type Notification struct {
	Event  string `json:"event"`
	Object struct {
		ID       string            `json:"id"`
		Status   string            `json:"status"`
		Metadata map[string]string `json:"metadata"`
	} `json:"object"`
}

// Outcome is a verified payment result for one reservation.
type Outcome struct {
	ReservationID    string
	PaymentReference string
	Succeeded        bool
}

// ErrUnknownEvent is returned for notifications this service does not act on.
var ErrUnknownEvent = errors.New("unsupported payment event")

// VerifyNotification checks the notification's reservation signature and returns the
// outcome it reports.
func (s *Signer) VerifyNotification(n Notification) (Outcome, error) {
	var succeeded bool
	switch n.Event {
	case EventSucceeded:
		succeeded = true
	case EventCanceled:
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownEvent, n.Event)
	}
	id := n.Object.Metadata[metaReservationID]
	if id == "" || n.Object.ID == "" {
		return Outcome{}, fmt.Errorf("%w: missing reservation or payment id", ErrBadSignature)
	}
	if !s.Verify(id, n.Object.Metadata[metaSignature]) {
		return Outcome{}, ErrBadSignature
	}
	return Outcome{ReservationID: id, PaymentReference: n.Object.ID, Succeeded: succeeded}, nil
}

// NewNotification builds the signed body the provider would post for a
// reservation.  Nothing in the server calls it; it exists so a local setup
// or another package's tests can stand in for the provider.
func (s *Signer) NewNotification(event, reservationID, paymentID string) Notification {
	var n Notification
	n.Event = event
	n.Object.ID = paymentID
	n.Object.Status = "succeeded"
	if event == EventCanceled {
		n.Object.Status = "canceled"
	}
	n.Object.Metadata = map[string]string{
		metaReservationID: reservationID,
		metaSignature:     s.Sign(reservationID),
	}
	return n
}
