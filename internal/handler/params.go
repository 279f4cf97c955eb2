package handler

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rondo-space/venue-reservations/internal/model"
)

// dateQuery parses an optional YYYY-MM-DD (or "open") query parameter.  An
// absent parameter yields the zero Date, which the services read as today.
func dateQuery(c echo.Context, name string) (model.Date, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return model.Date{}, nil
	}
	return model.ParseDate(raw)
}

// boolQuery reads a boolean query flag; anything unparsable is false.
func boolQuery(c echo.Context, name string) bool {
	v, err := strconv.ParseBool(c.QueryParam(name))
	return err == nil && v
}

// slotRequest is the body shared by hold, close and social requests.  Date
// may be omitted for coworking seats.
type slotRequest struct {
	ResourceID string     `json:"resource_id"`
	Date       model.Date `json:"date"`
	Unit       int        `json:"unit"`
}

func bindSlot(c echo.Context) (slotRequest, error) {
	var req slotRequest
	if err := c.Bind(&req); err != nil {
		return slotRequest{}, err
	}
	req.ResourceID = strings.TrimSpace(req.ResourceID)
	return req, nil
}
