package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rondo-space/venue-reservations/internal/model"
)

// ResourceStore persists resources.  *repository.ResourceRepo implements it.
type ResourceStore interface {
	ResourceReader
	Create(ctx context.Context, res model.Resource) (model.Resource, error)
	List(ctx context.Context, kind model.ResourceKind) ([]model.Resource, error)
	Update(ctx context.Context, res model.Resource) (model.Resource, error)
	Delete(ctx context.Context, id string) error
	AddBlackoutDate(ctx context.Context, id string, date model.Date) error
}

// ResourcePatch carries the fields of an update; nil fields are left alone.
type ResourcePatch struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	IsAvailable *bool            `json:"is_available"`
}

// Catalog manages bookable resources.  Reads are public; every mutation
// requires an admin.
type Catalog struct {
	store ResourceStore
	log   *slog.Logger
}

// NewCatalog returns a Catalog over store.
func NewCatalog(store ResourceStore, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{store: store, log: logger.With("component", "catalog")}
}

// Create adds a resource.
func (c *Catalog) Create(ctx context.Context, actor model.Actor, res model.Resource) (model.Resource, error) {
	if err := requireAdmin(actor); err != nil {
		return model.Resource{}, err
	}
	res.Name = strings.TrimSpace(res.Name)
	if err := validateResource(res); err != nil {
		return model.Resource{}, err
	}
	out, err := c.store.Create(ctx, res)
	if err != nil {
		return model.Resource{}, storeErr("create resource", err)
	}
	c.log.InfoContext(ctx, "resource created", "resource_id", out.ID, "kind", string(out.Kind), "by", actor.UserID)
	return out, nil
}

// Update applies patch to a resource.  Making a resource unavailable stops
// new holds; existing reservations stay.
func (c *Catalog) Update(ctx context.Context, actor model.Actor, id string, patch ResourcePatch) (model.Resource, error) {
	if err := requireAdmin(actor); err != nil {
		return model.Resource{}, err
	}
	res, err := c.store.Get(ctx, id)
	if err != nil {
		return model.Resource{}, storeErr("update resource", err)
	}
	if patch.Name != nil {
		res.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		res.Description = *patch.Description
	}
	if patch.Price != nil {
		res.Price = *patch.Price
	}
	if patch.IsAvailable != nil {
		res.IsAvailable = *patch.IsAvailable
	}
	if err := validateResource(res); err != nil {
		return model.Resource{}, err
	}
	out, err := c.store.Update(ctx, res)
	if err != nil {
		return model.Resource{}, storeErr("update resource", err)
	}
	c.log.InfoContext(ctx, "resource updated", "resource_id", id, "is_available", out.IsAvailable, "by", actor.UserID)
	return out, nil
}

// Delete removes a resource.  It fails with ErrResourceInUse while any
// reservation on it is active.
func (c *Catalog) Delete(ctx context.Context, actor model.Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return storeErr("delete resource", err)
	}
	c.log.InfoContext(ctx, "resource deleted", "resource_id", id, "by", actor.UserID)
	return nil
}

// AddBlackoutDate closes a resource for new holds on date.
func (c *Catalog) AddBlackoutDate(ctx context.Context, actor model.Actor, id string, date model.Date) (model.Resource, error) {
	if err := requireAdmin(actor); err != nil {
		return model.Resource{}, err
	}
	if date.IsZero() {
		return model.Resource{}, fmt.Errorf("%w: blackout date is required", ErrInvalidInput)
	}
	if err := c.store.AddBlackoutDate(ctx, id, date); err != nil {
		return model.Resource{}, storeErr("add blackout date", err)
	}
	res, err := c.store.Get(ctx, id)
	if err != nil {
		return model.Resource{}, storeErr("add blackout date", err)
	}
	return res, nil
}

// Get returns one resource.
func (c *Catalog) Get(ctx context.Context, id string) (model.Resource, error) {
	res, err := c.store.Get(ctx, id)
	if err != nil {
		return model.Resource{}, storeErr("get resource", err)
	}
	return res, nil
}

// List returns resources of kind, or all resources for the empty kind.
func (c *Catalog) List(ctx context.Context, kind model.ResourceKind) ([]model.Resource, error) {
	if kind != "" && !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, kind)
	}
	out, err := c.store.List(ctx, kind)
	if err != nil {
		return nil, storeErr("list resources", err)
	}
	return out, nil
}

func requireAdmin(actor model.Actor) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

func validateResource(res model.Resource) error {
	switch {
	case !res.Kind.Valid():
		return fmt.Errorf("%w: kind must be court or coworking", ErrInvalidInput)
	case res.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	case res.Price.IsNegative():
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	return nil
}
