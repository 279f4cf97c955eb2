package repository // repository for reservations and the claims that keep slots exclusive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rondo-space/venue-reservations/internal/model"
)

// Claim scopes for the per-user uniqueness rule.
const (
	ScopeCourtHold     = "court-hold"     // one unpaid court hold at a time
	ScopeCoworkingSeat = "coworking-seat" // one occupied seat at a time
)

// NewHold describes a temporary reservation to insert.
type NewHold struct {
	Slot   model.Slot
	UserID string
	TTL    time.Duration
	// UserScope, when set, makes the hold exclusive per user within the
	// scope.  ReleaseScopeOnConfirm frees that user claim once the hold is
	// paid; otherwise it lives until the reservation is cancelled.
	UserScope             string
	ReleaseScopeOnConfirm bool
}

// ReservationRepo is the durable reservation ledger.  Slot exclusivity is
// enforced by the slot_claims primary key: a claim row exists exactly while
// its reservation is temporary, confirmed or social.
type ReservationRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewReservationRepo constructs a ReservationRepo given a DB handle.
func NewReservationRepo(db *sql.DB, opts ...Option) *ReservationRepo {
	o := buildOptions(opts)
	return &ReservationRepo{db: db, now: o.now}
}

// Now returns the repository clock reading.
func (r *ReservationRepo) Now() time.Time { return r.now() }

const reservationColumns = `id, resource_id, slot_date, unit, user_id, state, payment_ref,
	created_at, confirmed_at, expires_at, cancelled_at, cancel_reason`

const activeStatesSQL = `('temporary', 'confirmed', 'social')`

// InsertTemporary atomically claims the slot (and the user scope, if any)
// and records a temporary reservation expiring TTL from now.  It returns
// ErrSlotClaimed or ErrUserClaimed when a claim already exists, and
// ErrNotFound when the resource has been deleted.
func (r *ReservationRepo) InsertTemporary(ctx context.Context, h NewHold) (model.Reservation, error) {
	now := r.now().UTC().Truncate(time.Millisecond)
	exp := now.Add(h.TTL)
	res := model.Reservation{
		ID:         uuid.NewString(),
		ResourceID: h.Slot.ResourceID,
		Date:       h.Slot.Date,
		Unit:       h.Slot.Unit,
		UserID:     h.UserID,
		State:      model.StateTemporary,
		CreatedAt:  now,
		ExpiresAt:  &exp,
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := claimSlot(ctx, tx, h.Slot, res.ID); err != nil {
			return err
		}
		if h.UserScope != "" {
			if err := claimUser(ctx, tx, h.UserID, h.UserScope, res.ID, h.ReleaseScopeOnConfirm); err != nil {
				return err
			}
		}
		return insertReservation(ctx, tx, res)
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return res, nil
}

// PromoteToSocial claims a free slot directly in the social state on behalf
// of a staff member.  It returns ErrSlotClaimed when the slot is occupied.
func (r *ReservationRepo) PromoteToSocial(ctx context.Context, slot model.Slot, userID string) (model.Reservation, error) {
	res := model.Reservation{
		ID:         uuid.NewString(),
		ResourceID: slot.ResourceID,
		Date:       slot.Date,
		Unit:       slot.Unit,
		UserID:     userID,
		State:      model.StateSocial,
		CreatedAt:  r.now().UTC().Truncate(time.Millisecond),
	}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := claimSlot(ctx, tx, slot, res.ID); err != nil {
			return err
		}
		return insertReservation(ctx, tx, res)
	})
	if err != nil {
		return model.Reservation{}, err
	}
	return res, nil
}

// PromoteToConfirmed flips a temporary reservation to confirmed and records
// the payment reference.  When the reservation is no longer temporary it
// returns the current row together with ErrStateConflict, so callers can
// recognise a repeated callback.
func (r *ReservationRepo) PromoteToConfirmed(ctx context.Context, id, paymentRef string) (model.Reservation, error) {
	var out model.Reservation
	var conflict bool
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE reservations
			    SET state = 'confirmed', payment_ref = ?, confirmed_at = ?, expires_at = NULL
			  WHERE id = ? AND state = 'temporary'`,
			paymentRef, toMillis(r.now()), id,
		)
		if err != nil {
			return fmt.Errorf("confirm reservation %s: %w", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM user_claims WHERE reservation_id = ? AND release_on_confirm = 1`, id); err != nil {
				return fmt.Errorf("release user claim %s: %w", id, err)
			}
		} else {
			conflict = true
		}
		out, err = getReservation(ctx, tx, id)
		return err
	})
	if err != nil {
		return model.Reservation{}, err
	}
	if conflict {
		return out, ErrStateConflict
	}
	return out, nil
}

// Cancel moves an active reservation to cancelled and releases its claims.
// changed is false when the reservation was already cancelled.
func (r *ReservationRepo) Cancel(ctx context.Context, id, reason string) (model.Reservation, bool, error) {
	return r.cancelWhere(ctx, id, reason, `state IN `+activeStatesSQL)
}

// CancelTemporary cancels the reservation only while it is still temporary.
// A reservation in any other state is returned with ErrStateConflict.
func (r *ReservationRepo) CancelTemporary(ctx context.Context, id, reason string) (model.Reservation, error) {
	res, changed, err := r.cancelWhere(ctx, id, reason, `state = 'temporary'`)
	if err != nil {
		return model.Reservation{}, err
	}
	if !changed {
		return res, ErrStateConflict
	}
	return res, nil
}

// ExpireTemporary cancels a temporary reservation whose expiry has passed.
// changed is false when a concurrent confirm or cancel got there first.
func (r *ReservationRepo) ExpireTemporary(ctx context.Context, id string) (model.Reservation, bool, error) {
	return r.cancelWhere(ctx, id, model.ReasonExpired,
		`state = 'temporary' AND expires_at <= ?`, toMillis(r.now()))
}

func (r *ReservationRepo) cancelWhere(ctx context.Context, id, reason, cond string, condArgs ...any) (model.Reservation, bool, error) {
	var (
		out     model.Reservation
		changed bool
	)
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		args := append([]any{toMillis(r.now()), reason, id}, condArgs...)
		result, err := tx.ExecContext(ctx,
			`UPDATE reservations
			    SET state = 'cancelled', cancelled_at = ?, cancel_reason = ?, expires_at = NULL
			  WHERE id = ? AND `+cond,
			args...,
		)
		if err != nil {
			return fmt.Errorf("cancel reservation %s: %w", id, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			changed = true
			if err := releaseClaims(ctx, tx, id); err != nil {
				return err
			}
		}
		out, err = getReservation(ctx, tx, id)
		return err
	})
	if err != nil {
		return model.Reservation{}, false, err
	}
	return out, changed, nil
}

// Get returns one reservation by id, or ErrNotFound.
func (r *ReservationRepo) Get(ctx context.Context, id string) (model.Reservation, error) {
	var out model.Reservation
	err := retryRead(ctx, func() error {
		var err error
		out, err = getReservation(ctx, r.db, id)
		return err
	})
	return out, err
}

// ActiveForSlot returns the reservation currently occupying slot, or
// ErrNotFound when the slot is free.
func (r *ReservationRepo) ActiveForSlot(ctx context.Context, slot model.Slot) (model.Reservation, error) {
	var out model.Reservation
	err := retryRead(ctx, func() error {
		row := r.db.QueryRowContext(ctx,
			`SELECT `+prefixed("r.")+`
			   FROM slot_claims c
			   JOIN reservations r ON r.id = c.reservation_id
			  WHERE c.resource_id = ? AND c.slot_date = ? AND c.unit = ?`,
			slot.ResourceID, slot.DateKey(), slot.Unit,
		)
		var err error
		out, err = scanReservation(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, ErrNotFound
	}
	if err != nil {
		return model.Reservation{}, fmt.Errorf("active reservation for slot: %w", err)
	}
	return out, nil
}

// ListActiveForResourceAndDate returns the active reservations of a
// resource on one (canonical) date, ordered by unit.
func (r *ReservationRepo) ListActiveForResourceAndDate(ctx context.Context, resourceID string, date model.Date) ([]model.Reservation, error) {
	return r.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		  WHERE resource_id = ? AND slot_date = ? AND state IN `+activeStatesSQL+`
		  ORDER BY unit`,
		resourceID, date.String(),
	)
}

// ListActiveForUser returns the user's active reservations, oldest first.
func (r *ReservationRepo) ListActiveForUser(ctx context.Context, userID string) ([]model.Reservation, error) {
	return r.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		  WHERE user_id = ? AND state IN `+activeStatesSQL+`
		  ORDER BY created_at, id`,
		userID,
	)
}

// ListForUser returns up to limit of the user's reservations in any state,
// newest first.
func (r *ReservationRepo) ListForUser(ctx context.Context, userID string, limit int) ([]model.Reservation, error) {
	return r.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		  WHERE user_id = ?
		  ORDER BY created_at DESC, id
		  LIMIT ?`,
		userID, limit,
	)
}

// ExpiredTemporary returns up to limit temporary reservations whose expiry
// has passed, oldest expiry first.
func (r *ReservationRepo) ExpiredTemporary(ctx context.Context, limit int) ([]model.Reservation, error) {
	return r.list(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		  WHERE state = 'temporary' AND expires_at <= ?
		  ORDER BY expires_at, id
		  LIMIT ?`,
		toMillis(r.now()), limit,
	)
}

func (r *ReservationRepo) list(ctx context.Context, query string, args ...any) ([]model.Reservation, error) {
	var out []model.Reservation
	err := retryRead(ctx, func() error {
		rows, err := r.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = []model.Reservation{}
		for rows.Next() {
			res, err := scanReservation(rows)
			if err != nil {
				return err
			}
			out = append(out, res)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

// inTx runs fn in a transaction, committing on success.
func (r *ReservationRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func claimSlot(ctx context.Context, tx *sql.Tx, slot model.Slot, reservationID string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO slot_claims (resource_id, slot_date, unit, reservation_id) VALUES (?, ?, ?, ?)`,
		slot.ResourceID, slot.DateKey(), slot.Unit, reservationID,
	)
	switch {
	case err == nil:
		return nil
	case isDuplicateKey(err):
		return ErrSlotClaimed
	case isForeignKeyViolation(err):
		return ErrNotFound
	}
	return fmt.Errorf("claim slot: %w", err)
}

func claimUser(ctx context.Context, tx *sql.Tx, userID, scope, reservationID string, releaseOnConfirm bool) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO user_claims (user_id, scope, reservation_id, release_on_confirm) VALUES (?, ?, ?, ?)`,
		userID, scope, reservationID, releaseOnConfirm,
	)
	if err == nil {
		return nil
	}
	if isDuplicateKey(err) {
		return ErrUserClaimed
	}
	return fmt.Errorf("claim user scope: %w", err)
}

func releaseClaims(ctx context.Context, tx *sql.Tx, reservationID string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM slot_claims WHERE reservation_id = ?`, reservationID); err != nil {
		return fmt.Errorf("release slot claim: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_claims WHERE reservation_id = ?`, reservationID); err != nil {
		return fmt.Errorf("release user claim: %w", err)
	}
	return nil
}

func insertReservation(ctx context.Context, tx *sql.Tx, res model.Reservation) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (`+reservationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.ResourceID, res.Date.String(), res.Unit, res.UserID, string(res.State),
		nullString(res.PaymentRef), toMillis(res.CreatedAt), nullMillis(res.ConfirmedAt),
		nullMillis(res.ExpiresAt), nullMillis(res.CancelledAt), nullString(res.CancelReason),
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getReservation(ctx context.Context, q queryRower, id string) (model.Reservation, error) {
	row := q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	res, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, ErrNotFound
	}
	if err != nil {
		return model.Reservation{}, fmt.Errorf("get reservation %s: %w", id, err)
	}
	return res, nil
}

func scanReservation(s rowScanner) (model.Reservation, error) {
	var (
		res          model.Reservation
		dateKey      string
		state        string
		paymentRef   sql.NullString
		createdAt    int64
		confirmedAt  sql.NullInt64
		expiresAt    sql.NullInt64
		cancelledAt  sql.NullInt64
		cancelReason sql.NullString
	)
	if err := s.Scan(&res.ID, &res.ResourceID, &dateKey, &res.Unit, &res.UserID, &state,
		&paymentRef, &createdAt, &confirmedAt, &expiresAt, &cancelledAt, &cancelReason); err != nil {
		return model.Reservation{}, err
	}
	date, err := model.ParseDate(dateKey)
	if err != nil {
		return model.Reservation{}, err
	}
	res.Date = date
	res.State = model.State(state)
	res.PaymentRef = paymentRef.String
	res.CreatedAt = fromMillis(createdAt)
	res.ConfirmedAt = millisPtr(confirmedAt)
	res.ExpiresAt = millisPtr(expiresAt)
	res.CancelledAt = millisPtr(cancelledAt)
	res.CancelReason = cancelReason.String
	return res, nil
}

// prefixed qualifies every reservation column with p.
func prefixed(p string) string {
	return p + `id, ` + p + `resource_id, ` + p + `slot_date, ` + p + `unit, ` + p + `user_id, ` +
		p + `state, ` + p + `payment_ref, ` + p + `created_at, ` + p + `confirmed_at, ` +
		p + `expires_at, ` + p + `cancelled_at, ` + p + `cancel_reason`
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
