package service

import (
	"errors"
	"fmt"

	"github.com/rondo-space/venue-reservations/internal/repository"
)

// Booking errors.  Every error returned by this package wraps exactly one of
// these, so callers dispatch with errors.Is.
var (
	ErrUnauthenticated     = errors.New("authentication required")
	ErrForbidden           = errors.New("not allowed")
	ErrNotFound            = errors.New("not found")
	ErrResourceUnavailable = errors.New("resource is not available for booking")
	ErrOutOfWindow         = errors.New("date is outside the booking window")
	ErrProfileIncomplete   = errors.New("first and last name are required to book a court")
	ErrSlotTaken           = errors.New("this slot was just taken, please pick another one")
	ErrAlreadyResolved     = errors.New("reservation is no longer awaiting payment")
	ErrResourceInUse       = errors.New("resource has active reservations")
	ErrActiveHoldExists    = errors.New("user already has an active hold")
	ErrInvalidSlot         = errors.New("slot does not exist for this resource")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnavailable         = errors.New("service temporarily unavailable")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrUnauthenticated, "unauthenticated"},
	{ErrForbidden, "forbidden"},
	{ErrNotFound, "not_found"},
	{ErrResourceUnavailable, "resource_unavailable"},
	{ErrOutOfWindow, "out_of_window"},
	{ErrProfileIncomplete, "profile_incomplete"},
	{ErrSlotTaken, "slot_taken"},
	{ErrAlreadyResolved, "already_resolved"},
	{ErrResourceInUse, "resource_in_use"},
	{ErrActiveHoldExists, "active_hold_exists"},
	{ErrInvalidSlot, "invalid_slot"},
	{ErrInvalidInput, "invalid_input"},
	{ErrUnavailable, "unavailable"},
}

// Code returns the stable machine-readable code of err: "ok" for nil,
// "internal" for errors outside the taxonomy.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// storeErr translates a repository error into the service taxonomy.  Missing
// rows become ErrNotFound; anything unexpected is a storage failure.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrSlotClaimed):
		return fmt.Errorf("%s: %w", op, ErrSlotTaken)
	case errors.Is(err, repository.ErrUserClaimed):
		return fmt.Errorf("%s: %w", op, ErrActiveHoldExists)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%s: %w", op, ErrResourceInUse)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
