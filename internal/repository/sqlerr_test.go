package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sqliteBusyError returns the error a second writer gets while another
// connection holds the database's write lock.
func sqliteBusyError(t *testing.T) error {
	t.Helper()
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "busy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.ExecContext(ctx, `CREATE TABLE t (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)

	holder, err := db.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = holder.Close() })
	waiter, err := db.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = waiter.Close() })

	_, err = waiter.ExecContext(ctx, `PRAGMA busy_timeout = 0`)
	require.NoError(t, err)
	_, err = holder.ExecContext(ctx, `BEGIN IMMEDIATE`)
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = holder.ExecContext(ctx, `ROLLBACK`) })

	_, err = waiter.ExecContext(ctx, `BEGIN IMMEDIATE`)
	require.Error(t, err)
	return err
}

func TestIsTransient(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad conn", driver.ErrBadConn, true},
		{"wrapped bad conn", fmt.Errorf("get reservation: %w", driver.ErrBadConn), true},
		{"mysql invalid conn", mysql.ErrInvalidConn, true},
		{"mysql lock wait timeout", &mysql.MySQLError{Number: mysqlLockWaitTimeout}, true},
		{"mysql deadlock", fmt.Errorf("list: %w", &mysql.MySQLError{Number: mysqlDeadlock}), true},
		{"mysql duplicate entry", &mysql.MySQLError{Number: mysqlDuplicateEntry}, false},
		{"sqlite busy", sqliteBusyError(t), true},
		{"no rows", sql.ErrNoRows, false},
		{"not found", ErrNotFound, false},
		{"plain", errors.New("syntax error"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isTransient(tc.err), tc.name)
	}
}

func TestRetryReadRetriesTransientOnce(t *testing.T) {
	t.Parallel()

	t.Run("recovers on the second attempt", func(t *testing.T) {
		calls := 0
		err := retryRead(context.Background(), func() error {
			calls++
			if calls == 1 {
				return driver.ErrBadConn
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("gives up after one retry", func(t *testing.T) {
		calls := 0
		deadlock := &mysql.MySQLError{Number: mysqlDeadlock}
		err := retryRead(context.Background(), func() error {
			calls++
			return deadlock
		})
		assert.ErrorIs(t, err, deadlock)
		assert.Equal(t, 2, calls)
	})

	t.Run("cancelled context skips the retry", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := retryRead(ctx, func() error {
			calls++
			return driver.ErrBadConn
		})
		assert.ErrorIs(t, err, driver.ErrBadConn)
		assert.Equal(t, 1, calls)
	})
}
