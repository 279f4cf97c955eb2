package service

import (
	"time"

	"github.com/rondo-space/venue-reservations/internal/model"
	"github.com/rondo-space/venue-reservations/internal/slot"
)

// Calendar answers "what day is it at the venue" and which days are open for
// booking.  The zero Calendar uses the wall clock, UTC and the default
// horizon.
type Calendar struct {
	Policy   slot.Policy
	Location *time.Location
	Now      func() time.Time
}

// Today returns the current calendar day in the venue's time zone.
func (c Calendar) Today() model.Date {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return model.DateOf(now().In(loc))
}
