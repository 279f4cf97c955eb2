package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/rondo-space/venue-reservations/internal/middleware"
	"github.com/rondo-space/venue-reservations/internal/model"
	"github.com/rondo-space/venue-reservations/internal/service"
)

// ResourceHandler exposes the resource catalog.  Reads are public; writes
// live under /v1/admin and the catalog re-checks the admin role.
type ResourceHandler struct {
	Catalog *service.Catalog
}

// NewResourceHandler panics on a nil catalog.
func NewResourceHandler(catalog *service.Catalog) *ResourceHandler {
	if catalog == nil {
		panic("nil catalog passed to NewResourceHandler")
	}
	return &ResourceHandler{Catalog: catalog}
}

// List handles GET /v1/resources[?kind=court|coworking].
func (h *ResourceHandler) List(c echo.Context) error {
	items, err := h.Catalog.List(c.Request().Context(), model.ResourceKind(c.QueryParam("kind")))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"resources": items})
}

// Get handles GET /v1/resources/:id.
func (h *ResourceHandler) Get(c echo.Context) error {
	res, err := h.Catalog.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type createResourceRequest struct {
	Kind        model.ResourceKind `json:"kind"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Price       decimal.Decimal    `json:"price"`
	IsAvailable *bool              `json:"is_available"`
}

// Create handles POST /v1/admin/resources.  is_available defaults to true.
func (h *ResourceHandler) Create(c echo.Context) error {
	var req createResourceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}
	res, err := h.Catalog.Create(c.Request().Context(), middleware.ActorFrom(c), model.Resource{
		Kind:        req.Kind,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		IsAvailable: available,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Update handles PUT /v1/admin/resources/:id.  Omitted fields are kept.
func (h *ResourceHandler) Update(c echo.Context) error {
	var patch service.ResourcePatch
	if err := c.Bind(&patch); err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.Catalog.Update(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Delete handles DELETE /v1/admin/resources/:id.
func (h *ResourceHandler) Delete(c echo.Context) error {
	if err := h.Catalog.Delete(c.Request().Context(), middleware.ActorFrom(c), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AddBlackoutDate handles POST /v1/admin/resources/:id/blackout-dates with
// body {"date": "YYYY-MM-DD"}.
func (h *ResourceHandler) AddBlackoutDate(c echo.Context) error {
	var body struct {
		Date model.Date `json:"date"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.Catalog.AddBlackoutDate(c.Request().Context(), middleware.ActorFrom(c), c.Param("id"), body.Date)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
