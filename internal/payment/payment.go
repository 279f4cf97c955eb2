// Package payment talks to the external payment provider.  The provider owns
// checkout; this package only starts a payment for a held reservation, signs
// the reservation id it hands over, and checks that signature when the
// provider reports back.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/shopspring/decimal"
)

// Checkout describes one payment to start.
type Checkout struct {
	ReservationID string
	Amount        decimal.Decimal
	Description   string
}

// Handle is what the caller needs to send the user to checkout.
type Handle struct {
	RedirectURL       string `json:"redirect_url"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
}

// Gateway starts payments.
type Gateway interface {
	Initiate(ctx context.Context, c Checkout) (Handle, error)
}

// ErrBadSignature is returned for callbacks whose reservation signature does
// not verify.
var ErrBadSignature = errors.New("payment callback signature mismatch")

// Signer produces and checks HMAC-SHA256 signatures of reservation ids.  The
// signature travels in the payment metadata and comes back in the callback,
// so a forged callback cannot confirm an arbitrary reservation.
type Signer struct {
	key []byte
}

// NewSigner returns a Signer keyed with key.
func NewSigner(key string) *Signer {
	return &Signer{key: []byte(key)}
}

// Sign returns the hex signature of reservationID.
func (s *Signer) Sign(reservationID string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(reservationID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches reservationID, in constant time.
func (s *Signer) Verify(reservationID, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(reservationID))
	return hmac.Equal(got, mac.Sum(nil))
}
