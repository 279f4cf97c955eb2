package handler // handler adapts HTTP requests onto the booking services

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rondo-space/venue-reservations/internal/service"
)

// statusOf maps a service error onto its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrResourceUnavailable),
		errors.Is(err, service.ErrSlotTaken),
		errors.Is(err, service.ErrAlreadyResolved),
		errors.Is(err, service.ErrResourceInUse),
		errors.Is(err, service.ErrActiveHoldExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrOutOfWindow),
		errors.Is(err, service.ErrProfileIncomplete):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidSlot),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": code, "message": text}.  Internal
// details of storage failures never reach the client.
func writeError(c echo.Context, err error) error {
	status := statusOf(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		msg = service.ErrUnavailable.Error()
	case http.StatusInternalServerError:
		c.Logger().Error(err)
		msg = "internal error"
	}
	if errors.Is(err, service.ErrSlotTaken) {
		msg = service.ErrSlotTaken.Error()
	}
	return c.JSON(status, echo.Map{"error": service.Code(err), "message": msg})
}

// badRequest reports a malformed request before it reaches a service.
func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": service.Code(service.ErrInvalidInput), "message": msg})
}
