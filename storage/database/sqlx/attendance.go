package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/attendance"
)

const attendanceColumns = "id, user_id, activity_id, scope, scanned_by, scanned_at"

type attendanceRow struct {
	ID         string      `db:"id"`
	UserID     string      `db:"user_id"`
	ActivityID null.String `db:"activity_id"`
	Scope      string      `db:"scope"`
	ScannedBy  null.String `db:"scanned_by"`
	ScannedAt  time.Time   `db:"scanned_at"`
}

func (row attendanceRow) record() attendance.Record {
	return attendance.Record{
		ID:         row.ID,
		UserID:     row.UserID,
		ActivityID: row.ActivityID.String,
		Scope:      row.Scope,
		ScannedBy:  row.ScannedBy.String,
		ScannedAt:  row.ScannedAt.UTC(),
	}
}

type attendanceRepository struct {
	db core.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db core.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo attendanceRepository) CreateRecord(ctx context.Context, rec attendance.Record) (attendance.Record, bool, error) {
	rec.ID = newID()
	var created bool

	err := core.WithinTx(ctx, repo.db, func(tx core.DBExecutor) error {
		q := "INSERT INTO attendance (" + attendanceColumns + ") VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (user_id, scope) DO NOTHING"
		res, err := tx.ExecContext(ctx, tx.Rebind(q),
			rec.ID, rec.UserID, nullString(rec.ActivityID), rec.Scope, nullString(rec.ScannedBy), rec.ScannedAt.UTC())
		if err != nil {
			return errors.Wrap(err, "inserting attendance record")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "inserting attendance record")
		}
		if created = n > 0; created {
			return nil
		}

		// already scanned: return the first record
		var row attendanceRow
		q = "SELECT " + attendanceColumns + " FROM attendance WHERE user_id = ? AND scope = ?"
		if err = sqlx.GetContext(ctx, tx, &row, tx.Rebind(q), rec.UserID, rec.Scope); err != nil {
			return errors.Wrap(err, "finding attendance record")
		}
		rec = row.record()
		return nil
	})
	if err != nil {
		return attendance.Record{}, false, err
	}
	return rec, created, nil
}

func (repo attendanceRepository) QueryRecords(ctx context.Context, filter attendance.QueryFilter) ([]attendance.Record, error) {
	var w where
	if filter.UserID != "" {
		if !isValidID(filter.UserID) {
			return []attendance.Record{}, nil
		}
		w.add("user_id = ?", filter.UserID)
	}
	if filter.ActivityID != "" {
		if !isValidID(filter.ActivityID) {
			return []attendance.Record{}, nil
		}
		w.add("activity_id = ?", filter.ActivityID)
	}
	if filter.Day != "" {
		w.add("scope = ?", attendance.EventDayScope(filter.Day))
	}

	var rows []attendanceRow
	q := "SELECT " + attendanceColumns + " FROM attendance" + w.String() + " ORDER BY scanned_at ASC"
	if err := sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	recs := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.record())
	}
	return recs, nil
}
