package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/activity"
)

// Every repository of this package works with any sqlx driver: queries are written with `?`
// placeholders and rebound for the driver (postgres: $1.., sqlite: ?).

func newID() string {
	return uuid.New().String()
}

// isValidID filters out ids postgres would refuse to compare to a UUID column.
func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if isValidID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

// trapNoRowsErr maps sql "no rows" err to `notFound`
func trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// isUniqueViolation tells whether err is a unique constraint violation (postgres or sqlite).
func isUniqueViolation(err error) bool {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		return e.Code == "23505"
	case *sqlite.Error:
		return e.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			e.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			strings.Contains(e.Error(), "UNIQUE constraint failed")
	}
	return false
}

// lockActivity serializes the transactions that read then write an activity's dependent rows
// (enrollment capacity, result publication) until the surrounding transaction ends.
func lockActivity(ctx context.Context, tx core.DBExecutor, activityID string) error {
	if sqlx.BindType(tx.DriverName()) == sqlx.DOLLAR {
		var id string
		q := tx.Rebind("SELECT id FROM activities WHERE id = ? FOR UPDATE")
		return trapNoRowsErr(sqlx.GetContext(ctx, tx, &id, q, activityID), activity.ErrNotFound, "locking activity")
	}

	// sqlite has no row locks: a write takes the database lock instead
	res, err := tx.ExecContext(ctx, tx.Rebind("UPDATE activities SET id = id WHERE id = ?"), activityID)
	if err != nil {
		return errors.Wrap(err, "locking activity")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return activity.ErrNotFound
	}
	return nil
}

func selectIn(ctx context.Context, exec core.DBExecutor, dest interface{}, q string, args ...interface{}) error {
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, exec, dest, exec.Rebind(q), args...)
}

func execIn(ctx context.Context, exec core.DBExecutor, q string, args ...interface{}) (sql.Result, error) {
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, err
	}
	return exec.ExecContext(ctx, exec.Rebind(q), args...)
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func nullTime(t time.Time) null.Time {
	return null.NewTime(t.UTC(), !t.IsZero())
}

func nullInt(i int) null.Int {
	return null.NewInt(i, i != 0)
}

// where accumulates AND-ed conditions and their args.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	s := " WHERE (" + w.conds[0] + ")"
	for _, c := range w.conds[1:] {
		s += " AND (" + c + ")"
	}
	return s
}
