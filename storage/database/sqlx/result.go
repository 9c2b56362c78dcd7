package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/diploma"
	"github.com/trezcool/congress/core/result"
)

const resultSelect = `SELECT r.id, r.user_id, u.name AS user_name, r.activity_id, r.score, r.place, r.note,
		r.created_at, r.updated_at
	FROM results r
	JOIN users u ON u.id = r.user_id`

type resultRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	UserName   string    `db:"user_name"`
	ActivityID string    `db:"activity_id"`
	Score      float64   `db:"score"`
	Place      null.Int  `db:"place"`
	Note       string    `db:"note"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (row resultRow) result() result.Result {
	return result.Result{
		ID:         row.ID,
		UserID:     row.UserID,
		UserName:   row.UserName,
		ActivityID: row.ActivityID,
		Score:      row.Score,
		Place:      row.Place.Int,
		Note:       row.Note,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

type resultRepository struct {
	db core.DB
}

var _ result.Repository = (*resultRepository)(nil)

func NewResultRepository(db core.DB) *resultRepository {
	return &resultRepository{db: db}
}

func (repo resultRepository) UpsertResult(ctx context.Context, res result.Result) (result.Result, error) {
	if !isValidID(res.UserID) || !isValidID(res.ActivityID) {
		return result.Result{}, result.ErrNotFound
	}

	var row resultRow
	err := core.WithinTx(ctx, repo.db, func(tx core.DBExecutor) error {
		q := `INSERT INTO results (id, user_id, activity_id, score, place, note, created_at, updated_at)
			VALUES (?, ?, ?, ?, NULL, ?, ?, ?)
			ON CONFLICT (user_id, activity_id)
			DO UPDATE SET score = excluded.score, note = excluded.note, updated_at = excluded.updated_at`
		_, err := tx.ExecContext(ctx, tx.Rebind(q),
			newID(), res.UserID, res.ActivityID, res.Score, res.Note, res.CreatedAt.UTC(), res.UpdatedAt.UTC())
		if err != nil {
			return errors.Wrap(err, "upserting result")
		}

		q = resultSelect + " WHERE r.user_id = ? AND r.activity_id = ?"
		return errors.Wrap(sqlx.GetContext(ctx, tx, &row, tx.Rebind(q), res.UserID, res.ActivityID), "finding result")
	})
	if err != nil {
		return result.Result{}, err
	}
	return row.result(), nil
}

func (repo resultRepository) QueryResults(ctx context.Context, activityID string) ([]result.Result, error) {
	if !isValidID(activityID) {
		return []result.Result{}, nil
	}
	var rows []resultRow
	q := resultSelect + " WHERE r.activity_id = ? ORDER BY r.score DESC, u.name ASC"
	if err := sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), activityID); err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	results := make([]result.Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, row.result())
	}
	return results, nil
}

func (repo resultRepository) PublishResults(ctx context.Context, activityID string, places map[string]int) error {
	if !isValidID(activityID) {
		return result.ErrNotFound
	}
	now := time.Now().UTC().Truncate(time.Second)

	return core.WithinTx(ctx, repo.db, func(tx core.DBExecutor) error {
		q := tx.Rebind("UPDATE results SET place = ?, updated_at = ? WHERE activity_id = ? AND user_id = ?")
		for userID, place := range places {
			if _, err := tx.ExecContext(ctx, q, nullInt(place), now, activityID, userID); err != nil {
				return errors.Wrap(err, "setting result place")
			}
		}
		return setResultsPublished(ctx, tx, activityID, true, now)
	})
}

func (repo resultRepository) UnpublishResults(ctx context.Context, activityID string) error {
	if !isValidID(activityID) {
		return result.ErrNotFound
	}
	now := time.Now().UTC().Truncate(time.Second)

	return core.WithinTx(ctx, repo.db, func(tx core.DBExecutor) error {
		if err := lockActivity(ctx, tx, activityID); err != nil {
			return err
		}

		var issued int
		q := "SELECT COUNT(*) FROM diplomas WHERE activity_id = ? AND kind = ?"
		if err := sqlx.GetContext(ctx, tx, &issued, tx.Rebind(q), activityID, diploma.KindPlace); err != nil {
			return errors.Wrap(err, "counting place diplomas")
		}
		if issued > 0 {
			return result.ErrDiplomasIssued
		}

		q = "UPDATE results SET place = NULL, updated_at = ? WHERE activity_id = ?"
		if _, err := tx.ExecContext(ctx, tx.Rebind(q), now, activityID); err != nil {
			return errors.Wrap(err, "clearing result places")
		}
		return setResultsPublished(ctx, tx, activityID, false, now)
	})
}

func setResultsPublished(ctx context.Context, tx core.DBExecutor, activityID string, published bool, now time.Time) error {
	q := "UPDATE activities SET results_published = ?, updated_at = ? WHERE id = ?"
	res, err := tx.ExecContext(ctx, tx.Rebind(q), published, now, activityID)
	if err != nil {
		return errors.Wrap(err, "flagging activity results")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return result.ErrNotFound
	}
	return nil
}
