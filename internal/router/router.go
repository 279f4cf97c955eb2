package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rondo-space/venue-reservations/internal/handler"
	"github.com/rondo-space/venue-reservations/internal/middleware"
	"github.com/rondo-space/venue-reservations/internal/model"
)

// RegisterRoutes registers the unauthenticated operational endpoints:
// liveness on /healthz and Prometheus metrics on /metrics.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPublic registers catalog and availability reads.  A bearer token
// is optional here; when present it lets the slot grid mark the caller's own
// reservations.
func RegisterPublic(e *echo.Echo, r *handler.ResourceHandler, a *handler.AvailabilityHandler, jwtSecret string) {
	g := e.Group("/v1", middleware.OptionalJWT(jwtSecret))
	g.GET("/resources", r.List)
	g.GET("/resources/:id", r.Get)
	g.GET("/resources/:id/slots", a.Slots)
	g.GET("/resources/:id/week", a.Week)
}

// RegisterReservations registers the signed-in user's booking routes.  hold
// is the only route behind the rate limiter.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	if limiter != nil {
		g.POST("/reservations/hold", h.Hold, limiter)
	} else {
		g.POST("/reservations/hold", h.Hold)
	}
	g.DELETE("/reservations/:id", h.Cancel)
	g.GET("/my/reservations", h.Mine)
}

// RegisterPayments registers the provider webhook.  It carries no JWT; the
// handler verifies the reservation signature instead.
func RegisterPayments(e *echo.Echo, p *handler.PaymentHandler) {
	e.POST("/v1/payments/callback", p.Callback)
}

// RegisterAdmin registers staff routes under /v1/admin, all of which require
// an ADMIN token.
func RegisterAdmin(e *echo.Echo, r *handler.ResourceHandler, a *handler.AvailabilityHandler, h *handler.ReservationHandler, jwtSecret string) {
	g := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))

	g.POST("/resources", r.Create)
	g.PUT("/resources/:id", r.Update)
	g.DELETE("/resources/:id", r.Delete)
	g.POST("/resources/:id/blackout-dates", r.AddBlackoutDate)
	g.GET("/resources/:id/reservations", a.Reservations)

	g.POST("/slots/close", h.Close)
	g.POST("/slots/social", h.Social)
	g.DELETE("/reservations/:id", h.Cancel)
	g.POST("/sweep", h.Sweep)
}
