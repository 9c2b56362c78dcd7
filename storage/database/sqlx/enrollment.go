package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/enrollment"
)

const enrollmentColumns = "id, user_id, activity_id, status, paid, created_at, updated_at"

type enrollmentRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	ActivityID string    `db:"activity_id"`
	Status     string    `db:"status"`
	Paid       bool      `db:"paid"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (row enrollmentRow) enrollment() enrollment.Enrollment {
	return enrollment.Enrollment{
		ID:         row.ID,
		UserID:     row.UserID,
		ActivityID: row.ActivityID,
		Status:     row.Status,
		Paid:       row.Paid,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

type enrollmentRepository struct {
	db core.DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil)

func NewEnrollmentRepository(db core.DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

func getEnrollment(ctx context.Context, exec core.DBExecutor, userID, activityID string) (enrollmentRow, error) {
	var row enrollmentRow
	q := "SELECT " + enrollmentColumns + " FROM enrollments WHERE user_id = ? AND activity_id = ?"
	err := sqlx.GetContext(ctx, exec, &row, exec.Rebind(q), userID, activityID)
	return row, err
}

func (repo enrollmentRepository) EnrollUser(ctx context.Context, enr enrollment.Enrollment, capacity int) (enrollment.Enrollment, error) {
	if !isValidID(enr.UserID) || !isValidID(enr.ActivityID) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}

	err := core.WithinTx(ctx, repo.db, func(tx core.DBExecutor) error {
		// concurrent enrollments would all see room left otherwise
		if err := lockActivity(ctx, tx, enr.ActivityID); err != nil {
			return err
		}

		existing, err := getEnrollment(ctx, tx, enr.UserID, enr.ActivityID)
		found := err == nil
		if err != nil && errors.Cause(err) != sql.ErrNoRows {
			return errors.Wrap(err, "finding enrollment")
		}
		if found && existing.Status == enrollment.StatusActive {
			return enrollment.ErrAlreadyEnrolled
		}

		if capacity > 0 {
			var count int
			q := "SELECT COUNT(*) FROM enrollments WHERE activity_id = ? AND status = ?"
			if err = sqlx.GetContext(ctx, tx, &count, tx.Rebind(q), enr.ActivityID, enrollment.StatusActive); err != nil {
				return errors.Wrap(err, "counting enrollments")
			}
			if count >= capacity {
				return enrollment.ErrActivityFull
			}
		}

		if found {
			// reactivate; payments already made stay acquired
			enr.ID = existing.ID
			enr.Paid = enr.Paid || existing.Paid
			enr.CreatedAt = existing.CreatedAt.UTC()
			q := "UPDATE enrollments SET status = ?, paid = ?, updated_at = ? WHERE id = ?"
			_, err = tx.ExecContext(ctx, tx.Rebind(q), enr.Status, enr.Paid, enr.UpdatedAt.UTC(), enr.ID)
			return errors.Wrap(err, "reactivating enrollment")
		}

		enr.ID = newID()
		q := "INSERT INTO enrollments (" + enrollmentColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)"
		_, err = tx.ExecContext(ctx, tx.Rebind(q),
			enr.ID, enr.UserID, enr.ActivityID, enr.Status, enr.Paid, enr.CreatedAt.UTC(), enr.UpdatedAt.UTC())
		if isUniqueViolation(err) {
			// lost a race against a concurrent enrollment
			return enrollment.ErrAlreadyEnrolled
		}
		return errors.Wrap(err, "inserting enrollment")
	})
	if err != nil {
		return enrollment.Enrollment{}, err
	}
	return enr, nil
}

func (repo enrollmentRepository) QueryEnrollments(ctx context.Context, filter enrollment.QueryFilter) ([]enrollment.Enrollment, error) {
	var w where
	if filter.UserID != "" {
		if !isValidID(filter.UserID) {
			return []enrollment.Enrollment{}, nil
		}
		w.add("user_id = ?", filter.UserID)
	}
	if filter.ActivityID != "" {
		if !isValidID(filter.ActivityID) {
			return []enrollment.Enrollment{}, nil
		}
		w.add("activity_id = ?", filter.ActivityID)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}

	var rows []enrollmentRow
	q := "SELECT " + enrollmentColumns + " FROM enrollments" + w.String() + " ORDER BY created_at ASC"
	if err := sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrs := make([]enrollment.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrs = append(enrs, row.enrollment())
	}
	return enrs, nil
}

func (repo enrollmentRepository) GetEnrollment(ctx context.Context, userID, activityID string) (enrollment.Enrollment, error) {
	if !isValidID(userID) || !isValidID(activityID) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	row, err := getEnrollment(ctx, repo.db, userID, activityID)
	if err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "finding enrollment")
	}
	return row.enrollment(), nil
}

func (repo enrollmentRepository) GetEnrollmentByID(ctx context.Context, id string) (enrollment.Enrollment, error) {
	if !isValidID(id) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	var row enrollmentRow
	q := "SELECT " + enrollmentColumns + " FROM enrollments WHERE id = ?"
	if err := sqlx.GetContext(ctx, repo.db, &row, repo.db.Rebind(q), id); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "finding enrollment")
	}
	return row.enrollment(), nil
}

func (repo enrollmentRepository) UpdateEnrollment(ctx context.Context, enr enrollment.Enrollment) (enrollment.Enrollment, error) {
	if !isValidID(enr.ID) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	q := "UPDATE enrollments SET status = ?, paid = ?, updated_at = ? WHERE id = ?"
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), enr.Status, enr.Paid, enr.UpdatedAt.UTC(), enr.ID)
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	return enr, nil
}
