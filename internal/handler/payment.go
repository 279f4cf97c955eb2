package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rondo-space/venue-reservations/internal/model"
	"github.com/rondo-space/venue-reservations/internal/payment"
	"github.com/rondo-space/venue-reservations/internal/service"
)

// PaymentApplier is implemented by *service.Engine.
type PaymentApplier interface {
	ApplyPayment(ctx context.Context, o payment.Outcome) (model.Reservation, error)
}

// PaymentHandler receives provider webhooks.  The route is public; trust
// comes from the reservation signature carried in the payment metadata.
type PaymentHandler struct {
	Signer  *payment.Signer
	Applier PaymentApplier
}

// NewPaymentHandler panics on nil dependencies.
func NewPaymentHandler(signer *payment.Signer, applier PaymentApplier) *PaymentHandler {
	if signer == nil || applier == nil {
		panic("nil dependency passed to NewPaymentHandler")
	}
	return &PaymentHandler{Signer: signer, Applier: applier}
}

// Callback handles POST /v1/payments/callback.  Unknown events are
// acknowledged and ignored so the provider stops retrying them; a reservation
// that was already resolved is acknowledged the same way.
func (h *PaymentHandler) Callback(c echo.Context) error {
	var n payment.Notification
	if err := c.Bind(&n); err != nil {
		return badRequest(c, "invalid notification body")
	}
	outcome, err := h.Signer.VerifyNotification(n)
	switch {
	case errors.Is(err, payment.ErrUnknownEvent):
		return c.JSON(http.StatusOK, echo.Map{"status": "ignored"})
	case err != nil:
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "bad_signature", "message": err.Error()})
	}

	res, err := h.Applier.ApplyPayment(c.Request().Context(), outcome)
	if errors.Is(err, service.ErrAlreadyResolved) {
		return c.JSON(http.StatusOK, echo.Map{"status": "already_resolved"})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": string(res.State), "reservation": res})
}
