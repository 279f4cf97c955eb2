package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rondo-space/venue-reservations/internal/middleware"
	"github.com/rondo-space/venue-reservations/internal/service"
)

// ReservationHandler drives the booking engine for users and staff.  All
// routes sit behind JWTAuth; the engine enforces ownership and admin rights.
type ReservationHandler struct {
	Engine  *service.Engine
	Sweeper *service.Sweeper // optional; POST /v1/admin/sweep answers 503 without it
}

// NewReservationHandler panics on a nil engine.
func NewReservationHandler(engine *service.Engine, sweeper *service.Sweeper) *ReservationHandler {
	if engine == nil {
		panic("nil engine passed to NewReservationHandler")
	}
	return &ReservationHandler{Engine: engine, Sweeper: sweeper}
}

// Hold handles POST /v1/reservations/hold.  A paid resource answers 201 with
// the temporary reservation and the checkout redirect; a free one answers
// 201 with the confirmed reservation and no payment.
func (h *ReservationHandler) Hold(c echo.Context) error {
	req, err := bindSlot(c)
	if err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ResourceID == "" {
		return badRequest(c, "resource_id is required")
	}
	out, err := h.Engine.Hold(c.Request().Context(), middleware.ActorFrom(c), req.ResourceID, req.Date, req.Unit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

// Cancel handles DELETE /v1/reservations/:id and its admin twin.  Cancelling
// an already cancelled reservation succeeds.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	res, err := h.Engine.Cancel(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Mine handles GET /v1/my/reservations.  ?all=true includes history.
func (h *ReservationHandler) Mine(c echo.Context) error {
	rows, err := h.Engine.MyReservations(c.Request().Context(), middleware.ActorFrom(c), boolQuery(c, "all"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": rows})
}

// Close handles POST /v1/admin/slots/close.
func (h *ReservationHandler) Close(c echo.Context) error {
	req, err := bindSlot(c)
	if err != nil || req.ResourceID == "" {
		return badRequest(c, "resource_id, date and unit are required")
	}
	res, err := h.Engine.AdminClose(c.Request().Context(), middleware.ActorFrom(c), req.ResourceID, req.Date, req.Unit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Social handles POST /v1/admin/slots/social.
func (h *ReservationHandler) Social(c echo.Context) error {
	req, err := bindSlot(c)
	if err != nil || req.ResourceID == "" {
		return badRequest(c, "resource_id, date and unit are required")
	}
	res, err := h.Engine.MarkSocial(c.Request().Context(), middleware.ActorFrom(c), req.ResourceID, req.Date, req.Unit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Sweep handles POST /v1/admin/sweep: one expiry pass on demand.
func (h *ReservationHandler) Sweep(c echo.Context) error {
	if h.Sweeper == nil {
		return writeError(c, service.ErrUnavailable)
	}
	n, err := h.Sweeper.RunOnce(c.Request().Context())
	if err != nil {
		c.Logger().Warnf("manual sweep expired %d holds before failing: %v", n, err)
		return writeError(c, fmt.Errorf("sweep: %w: %w", service.ErrUnavailable, err))
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": n})
}
