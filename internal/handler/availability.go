package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rondo-space/venue-reservations/internal/middleware"
	"github.com/rondo-space/venue-reservations/internal/service"
)

// AvailabilityHandler serves slot grids.  Viewers may be anonymous; the
// projection hides reservation details from anyone but the owner and staff.
type AvailabilityHandler struct {
	Projection *service.Projection
}

// NewAvailabilityHandler panics on a nil projection.
func NewAvailabilityHandler(p *service.Projection) *AvailabilityHandler {
	if p == nil {
		panic("nil projection passed to NewAvailabilityHandler")
	}
	return &AvailabilityHandler{Projection: p}
}

// Slots handles GET /v1/resources/:id/slots?date=YYYY-MM-DD.
func (h *AvailabilityHandler) Slots(c echo.Context) error {
	date, err := dateQuery(c, "date")
	if err != nil {
		return badRequest(c, err.Error())
	}
	view, err := h.Projection.SlotsFor(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), date)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// Week handles GET /v1/resources/:id/week?from=YYYY-MM-DD.
func (h *AvailabilityHandler) Week(c echo.Context) error {
	from, err := dateQuery(c, "from")
	if err != nil {
		return badRequest(c, err.Error())
	}
	days, err := h.Projection.WeekFor(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), from)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"days": days})
}

// Reservations handles GET /v1/admin/resources/:id/reservations?date=.
func (h *AvailabilityHandler) Reservations(c echo.Context) error {
	date, err := dateQuery(c, "date")
	if err != nil {
		return badRequest(c, err.Error())
	}
	rows, err := h.Projection.ListActive(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), date)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": rows})
}
