package repository // repository for bookable resources and their blackout dates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rondo-space/venue-reservations/internal/model"
)

// ResourceRepo encapsulates database operations for resources.
type ResourceRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewResourceRepo constructs a ResourceRepo given a DB handle.
func NewResourceRepo(db *sql.DB, opts ...Option) *ResourceRepo {
	o := buildOptions(opts)
	return &ResourceRepo{db: db, now: o.now}
}

const resourceColumns = `id, kind, name, description, price, is_available, created_at, updated_at`

// Create inserts a resource.  A missing ID is generated; timestamps come from
// the repository clock.  Blackout dates on the input are ignored; use
// AddBlackoutDate.
func (r *ResourceRepo) Create(ctx context.Context, res model.Resource) (model.Resource, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	now := r.now().UTC().Truncate(time.Millisecond)
	res.CreatedAt, res.UpdatedAt = now, now
	res.BlackoutDates = nil
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO resources (`+resourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, string(res.Kind), res.Name, res.Description, res.Price,
		res.IsAvailable, toMillis(now), toMillis(now),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return model.Resource{}, fmt.Errorf("create resource %s: %w", res.ID, ErrConflict)
		}
		return model.Resource{}, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

// Get returns one resource with its blackout dates, or ErrNotFound.
func (r *ResourceRepo) Get(ctx context.Context, id string) (model.Resource, error) {
	var res model.Resource
	err := retryRead(ctx, func() error {
		row := r.db.QueryRowContext(ctx,
			`SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
		var err error
		res, err = scanResource(row)
		if err != nil {
			return err
		}
		res.BlackoutDates, err = r.blackoutDates(ctx, id)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return model.Resource{}, ErrNotFound
	}
	if err != nil {
		return model.Resource{}, fmt.Errorf("get resource %s: %w", id, err)
	}
	return res, nil
}

// List returns all resources ordered by name.  An empty kind lists every
// kind.
func (r *ResourceRepo) List(ctx context.Context, kind model.ResourceKind) ([]model.Resource, error) {
	var out []model.Resource
	err := retryRead(ctx, func() error {
		query := `SELECT ` + resourceColumns + ` FROM resources`
		args := []any{}
		if kind != "" {
			query += ` WHERE kind = ?`
			args = append(args, string(kind))
		}
		query += ` ORDER BY name, id`
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			res, err := scanResource(rows)
			if err != nil {
				return err
			}
			out = append(out, res)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		for i := range out {
			if out[i].BlackoutDates, err = r.blackoutDates(ctx, out[i].ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return out, nil
}

// Update overwrites the mutable columns (name, description, price,
// availability).  Kind and ID never change.
func (r *ResourceRepo) Update(ctx context.Context, res model.Resource) (model.Resource, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE resources
		    SET name = ?, description = ?, price = ?, is_available = ?, updated_at = ?
		  WHERE id = ?`,
		res.Name, res.Description, res.Price, res.IsAvailable, toMillis(r.now()), res.ID,
	)
	if err != nil {
		return model.Resource{}, fmt.Errorf("update resource %s: %w", res.ID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.Resource{}, ErrNotFound
	}
	return r.Get(ctx, res.ID)
}

// Delete removes a resource and its blackout dates.  It returns ErrConflict
// while any active reservation claims one of its slots; the foreign key from
// slot_claims closes the race with a concurrent hold.
func (r *ResourceRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete resource: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM resources WHERE id = ?`, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("delete resource %s: %w", id, err)
	}
	var claims int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM slot_claims WHERE resource_id = ?`, id).Scan(&claims); err != nil {
		return fmt.Errorf("delete resource %s: %w", id, err)
	}
	if claims > 0 {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM resource_blackout_dates WHERE resource_id = ?`, id); err != nil {
		return fmt.Errorf("delete resource %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id); err != nil {
		if isForeignKeyViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("delete resource %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		if isForeignKeyViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("commit delete resource %s: %w", id, err)
	}
	committed = true
	return nil
}

// AddBlackoutDate records a day on which the resource takes no new holds.
// Adding an existing date is a no-op.
func (r *ResourceRepo) AddBlackoutDate(ctx context.Context, id string, date model.Date) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO resource_blackout_dates (resource_id, blackout_date) VALUES (?, ?)`,
		id, date.String(),
	)
	switch {
	case err == nil:
	case isDuplicateKey(err):
		return nil
	case isForeignKeyViolation(err):
		return ErrNotFound
	default:
		return fmt.Errorf("add blackout date %s to %s: %w", date, id, err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE resources SET updated_at = ? WHERE id = ?`, toMillis(r.now()), id)
	if err != nil {
		return fmt.Errorf("touch resource %s: %w", id, err)
	}
	return nil
}

func (r *ResourceRepo) blackoutDates(ctx context.Context, id string) ([]model.Date, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT blackout_date FROM resource_blackout_dates WHERE resource_id = ? ORDER BY blackout_date`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	dates := []model.Date{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		d, err := model.ParseDate(raw)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(s rowScanner) (model.Resource, error) {
	var (
		res       model.Resource
		kind      string
		createdAt int64
		updatedAt int64
	)
	if err := s.Scan(&res.ID, &kind, &res.Name, &res.Description, &res.Price,
		&res.IsAvailable, &createdAt, &updatedAt); err != nil {
		return model.Resource{}, err
	}
	res.Kind = model.ResourceKind(kind)
	res.CreatedAt = fromMillis(createdAt)
	res.UpdatedAt = fromMillis(updatedAt)
	return res, nil
}
