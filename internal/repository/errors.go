// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// booking engine to distinguish between different failure scenarios without
// knowing which database driver produced them.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a delete cannot be performed because of
// dependent records, such as deleting a resource that still has active
// reservations. Services translate this into ResourceInUse.
var ErrConflict = errors.New("conflict")

// ErrSlotClaimed is returned when another active reservation already holds
// the requested slot.
var ErrSlotClaimed = errors.New("slot already claimed")

// ErrUserClaimed is returned when the user already has an active
// reservation in the same claim scope.
var ErrUserClaimed = errors.New("user claim already taken")

// ErrStateConflict is returned by conditional state transitions whose
// precondition no longer holds.  The current row is returned alongside it.
var ErrStateConflict = errors.New("reservation state changed")
