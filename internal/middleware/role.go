package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rondo-space/venue-reservations/internal/model"
)

// RequireRole rejects callers whose role is not among roles with 403.  It
// must run after JWTAuth.  The booking core re-checks admin rights itself;
// this only keeps obviously unauthorized calls away from it.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a := ActorFrom(c)
			if !a.Authenticated() {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated", "message": "authentication required"})
			}
			if !allowed[a.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "not allowed"})
			}
			return next(c)
		}
	}
}
