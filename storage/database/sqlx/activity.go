package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/activity"
)

const activityColumns = `id, kind, title, description, location, capacity, fee, currency, starts_at, ends_at,
	results_published, created_at, updated_at`

var activityOrderColumns = map[string]string{
	"title":      "title",
	"kind":       "kind",
	"starts_at":  "starts_at",
	"ends_at":    "ends_at",
	"created_at": "created_at",
}

type activityRow struct {
	ID               string    `db:"id"`
	Kind             string    `db:"kind"`
	Title            string    `db:"title"`
	Description      string    `db:"description"`
	Location         string    `db:"location"`
	Capacity         int       `db:"capacity"`
	Fee              int64     `db:"fee"`
	Currency         string    `db:"currency"`
	StartsAt         time.Time `db:"starts_at"`
	EndsAt           time.Time `db:"ends_at"`
	ResultsPublished bool      `db:"results_published"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (row activityRow) activity() activity.Activity {
	return activity.Activity{
		ID:               row.ID,
		Kind:             row.Kind,
		Title:            row.Title,
		Description:      row.Description,
		Location:         row.Location,
		Capacity:         row.Capacity,
		Fee:              row.Fee,
		Currency:         row.Currency,
		StartsAt:         row.StartsAt.UTC(),
		EndsAt:           row.EndsAt.UTC(),
		ResultsPublished: row.ResultsPublished,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}
}

type activityRepository struct {
	db core.DB
}

var _ activity.Repository = (*activityRepository)(nil)

func NewActivityRepository(db core.DB) *activityRepository {
	return &activityRepository{db: db}
}

func (repo activityRepository) CreateActivity(ctx context.Context, act activity.Activity) (activity.Activity, error) {
	act.ID = newID()
	q := `INSERT INTO activities (` + activityColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := repo.db.ExecContext(ctx, repo.db.Rebind(q),
		act.ID, act.Kind, act.Title, act.Description, act.Location, act.Capacity, act.Fee, act.Currency,
		act.StartsAt.UTC(), act.EndsAt.UTC(), act.ResultsPublished, act.CreatedAt.UTC(), act.UpdatedAt.UTC())
	if err != nil {
		return activity.Activity{}, errors.Wrap(err, "inserting activity")
	}
	return act, nil
}

func (repo activityRepository) QueryActivities(ctx context.Context, filter activity.QueryFilter, ordering []core.DBOrdering) ([]activity.Activity, error) {
	var w where
	if filter.Kind != "" {
		w.add("kind = ?", filter.Kind)
	}
	if filter.Search != "" {
		val := "%" + strings.ToLower(filter.Search) + "%"
		w.add("LOWER(title) LIKE ? OR LOWER(location) LIKE ?", val, val)
	}
	now := filter.Now.UTC()
	switch filter.Status {
	case activity.StatusUpcoming:
		w.add("starts_at > ?", now)
	case activity.StatusOngoing:
		w.add("starts_at <= ? AND ends_at >= ?", now, now)
	case activity.StatusFinished:
		w.add("ends_at < ?", now)
	}

	q := "SELECT " + activityColumns + " FROM activities" + w.String() +
		" ORDER BY " + core.OrderBy(ordering, activityOrderColumns, "starts_at ASC, title ASC")

	var rows []activityRow
	if err := sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying activities")
	}
	acts := make([]activity.Activity, 0, len(rows))
	for _, row := range rows {
		acts = append(acts, row.activity())
	}
	return acts, nil
}

func (repo activityRepository) GetActivity(ctx context.Context, id string) (activity.Activity, error) {
	if !isValidID(id) {
		return activity.Activity{}, activity.ErrNotFound
	}
	var row activityRow
	q := "SELECT " + activityColumns + " FROM activities WHERE id = ?"
	if err := sqlx.GetContext(ctx, repo.db, &row, repo.db.Rebind(q), id); err != nil {
		return activity.Activity{}, trapNoRowsErr(err, activity.ErrNotFound, "finding activity")
	}
	return row.activity(), nil
}

func (repo activityRepository) UpdateActivity(ctx context.Context, act activity.Activity) (activity.Activity, error) {
	if !isValidID(act.ID) {
		return activity.Activity{}, activity.ErrNotFound
	}
	q := `UPDATE activities SET title = ?, description = ?, location = ?, capacity = ?, fee = ?, currency = ?,
		starts_at = ?, ends_at = ?, results_published = ?, updated_at = ? WHERE id = ?`
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q),
		act.Title, act.Description, act.Location, act.Capacity, act.Fee, act.Currency,
		act.StartsAt.UTC(), act.EndsAt.UTC(), act.ResultsPublished, act.UpdatedAt.UTC(), act.ID)
	if err != nil {
		return activity.Activity{}, errors.Wrap(err, "updating activity")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return activity.Activity{}, activity.ErrNotFound
	}
	return act, nil
}

func (repo activityRepository) DeleteActivity(ctx context.Context, id string) error {
	if !isValidID(id) {
		return activity.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM activities WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting activity")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return activity.ErrNotFound
	}
	return nil
}
