package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rondo-space/venue-reservations/internal/model"
	"github.com/rondo-space/venue-reservations/internal/monitoring"
)

// maxBatchesPerPass bounds one pass so a backlog cannot starve the ticker.
const maxBatchesPerPass = 10

// ExpiryStore is the part of the ledger the sweeper needs.
type ExpiryStore interface {
	ExpiredTemporary(ctx context.Context, limit int) ([]model.Reservation, error)
	ExpireTemporary(ctx context.Context, id string) (model.Reservation, bool, error)
}

// Sweeper cancels holds whose payment window has passed.
type Sweeper struct {
	store    ExpiryStore
	views    ViewInvalidator
	interval time.Duration
	batch    int
	log      *slog.Logger
}

// NewSweeper returns a Sweeper running every interval and expiring at most
// batch holds per query.  views may be nil.
func NewSweeper(store ExpiryStore, views ViewInvalidator, interval time.Duration, batch int, logger *slog.Logger) *Sweeper {
	if batch < 1 {
		batch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		views:    views,
		interval: interval,
		batch:    batch,
		log:      logger.With("component", "sweeper"),
	}
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("sweeper started", "interval", s.interval, "batch", s.batch)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			if n, err := s.RunOnce(ctx); err != nil {
				s.log.Error("sweep failed", "expired", n, "error", err)
			} else if n > 0 {
				s.log.Info("expired holds", "count", n)
			}
		}
	}
}

// RunOnce performs one pass and returns how many holds it expired.  Holds
// confirmed or cancelled concurrently are skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (expired int, err error) {
	ctx, span := monitoring.Tracer().Start(ctx, "sweeper.RunOnce")
	start := time.Now()
	defer func() {
		span.SetAttributes(attribute.Int("sweep.expired", expired))
		monitoring.ObserveSweep(expired, time.Since(start), err)
		monitoring.EndSpan(span, err)
	}()

	var errs []error
	for i := 0; i < maxBatchesPerPass; i++ {
		rows, err := s.store.ExpiredTemporary(ctx, s.batch)
		if err != nil {
			return expired, errors.Join(append(errs, err)...)
		}
		for _, r := range rows {
			out, changed, err := s.store.ExpireTemporary(ctx, r.ID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if !changed {
				continue
			}
			expired++
			if s.views != nil {
				s.views.Invalidate(ctx, out.ResourceID, out.Date)
			}
		}
		if len(rows) < s.batch || len(errs) > 0 {
			break
		}
	}
	return expired, errors.Join(errs...)
}
