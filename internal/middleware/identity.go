package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/rondo-space/venue-reservations/internal/model"
)

const actorKey = "actor"

// ActorFrom returns the caller stored by JWTAuth or OptionalJWT, or the
// anonymous zero Actor.
func ActorFrom(c echo.Context) model.Actor {
	if a, ok := c.Get(actorKey).(model.Actor); ok {
		return a
	}
	return model.Actor{}
}

// currentUserID names the caller for rate-limit keys; anonymous callers
// share "anon".
func currentUserID(c echo.Context) string {
	if a := ActorFrom(c); a.Authenticated() {
		return a.UserID
	}
	return "anon"
}
