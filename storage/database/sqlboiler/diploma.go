package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/strmangle"

	"github.com/trezcool/congress/core/activity"
	"github.com/trezcool/congress/core/diploma"
)

// Diplomas are read through hand written queries bound with sqlboiler; no models are generated.

const diplomaSelect = `SELECT d.id, d.user_id, d.activity_id, d.kind, d.place, d.verification_code, d.format,
		d.storage_backend, d.file_key, d.issued_at, d.emailed_at,
		u.name AS user_name, COALESCE(u.email, '') AS user_email, a.title AS activity_title
	FROM diplomas d
	JOIN users u ON u.id = d.user_id
	JOIN activities a ON a.id = d.activity_id`

var diplomaColumns = []string{
	"id", "user_id", "activity_id", "kind", "place", "verification_code", "format", "storage_backend",
	"file_key", "issued_at", "emailed_at",
}

type diplomaRow struct {
	ID               string    `boil:"id"`
	UserID           string    `boil:"user_id"`
	ActivityID       string    `boil:"activity_id"`
	Kind             string    `boil:"kind"`
	Place            null.Int  `boil:"place"`
	VerificationCode string    `boil:"verification_code"`
	Format           string    `boil:"format"`
	StorageBackend   string    `boil:"storage_backend"`
	FileKey          string    `boil:"file_key"`
	IssuedAt         time.Time `boil:"issued_at"`
	EmailedAt        null.Time `boil:"emailed_at"`
	UserName         string    `boil:"user_name"`
	UserEmail        string    `boil:"user_email"`
	ActivityTitle    string    `boil:"activity_title"`
}

func (row diplomaRow) unboil() diploma.Diploma {
	d := diploma.Diploma{
		ID:               row.ID,
		UserID:           row.UserID,
		ActivityID:       row.ActivityID,
		Kind:             row.Kind,
		Place:            row.Place.Int,
		VerificationCode: row.VerificationCode,
		Format:           row.Format,
		StorageBackend:   row.StorageBackend,
		FileKey:          row.FileKey,
		IssuedAt:         row.IssuedAt.UTC(),
		UserName:         row.UserName,
		UserEmail:        row.UserEmail,
		ActivityTitle:    row.ActivityTitle,
	}
	if row.EmailedAt.Valid {
		d.EmailedAt = row.EmailedAt.Time.UTC()
	}
	return d
}

type candidateRow struct {
	UserID        string    `boil:"user_id"`
	UserName      string    `boil:"user_name"`
	UserEmail     string    `boil:"user_email"`
	ActivityID    string    `boil:"activity_id"`
	ActivityTitle string    `boil:"activity_title"`
	ActivityKind  string    `boil:"activity_kind"`
	EndsAt        time.Time `boil:"ends_at"`
	Place         null.Int  `boil:"place"`
}

func (row candidateRow) candidate(kind string) diploma.Candidate {
	return diploma.Candidate{
		UserID:        row.UserID,
		UserName:      row.UserName,
		UserEmail:     row.UserEmail,
		ActivityID:    row.ActivityID,
		ActivityTitle: row.ActivityTitle,
		ActivityKind:  row.ActivityKind,
		EndsAt:        row.EndsAt.UTC(),
		Kind:          kind,
		Place:         row.Place.Int,
	}
}

type diplomaRepository struct {
	db *sqlx.DB
}

var _ diploma.Repository = (*diplomaRepository)(nil) // interface compliance check

func NewDiplomaRepository(db *sqlx.DB) *diplomaRepository {
	return &diplomaRepository{db: db}
}

// rebind adapts `?` placeholders to the driver
func (repo diplomaRepository) rebind(q string) string {
	return sqlx.Rebind(sqlx.BindType(repo.db.DriverName()), q)
}

func isValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (repo diplomaRepository) FindParticipationCandidates(ctx context.Context, now time.Time) ([]diploma.Candidate, error) {
	// attendees of finished activities; competitors with a result count as attendees
	q := `SELECT u.id AS user_id, u.name AS user_name, COALESCE(u.email, '') AS user_email,
			a.id AS activity_id, a.title AS activity_title, a.kind AS activity_kind, a.ends_at, NULL AS place
		FROM enrollments e
		JOIN users u ON u.id = e.user_id
		JOIN activities a ON a.id = e.activity_id
		WHERE a.ends_at < ? AND u.is_active = ?
			AND (
				EXISTS (SELECT 1 FROM attendance t WHERE t.user_id = e.user_id AND t.activity_id = a.id)
				OR (a.kind = ? AND EXISTS (SELECT 1 FROM results r WHERE r.user_id = e.user_id AND r.activity_id = a.id))
			)
			AND NOT EXISTS (
				SELECT 1 FROM diplomas d WHERE d.user_id = e.user_id AND d.activity_id = a.id AND d.kind = a.kind
			)
		ORDER BY a.ends_at ASC, a.id ASC, u.name ASC`

	var rows []candidateRow
	err := queries.Raw(repo.rebind(q), now.UTC(), true, activity.KindCompetition).Bind(ctx, repo.db, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "finding participation candidates")
	}
	candidates := make([]diploma.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, row.candidate(row.ActivityKind))
	}
	return candidates, nil
}

func (repo diplomaRepository) FindWinnerCandidates(ctx context.Context) ([]diploma.Candidate, error) {
	q := `SELECT u.id AS user_id, u.name AS user_name, COALESCE(u.email, '') AS user_email,
			a.id AS activity_id, a.title AS activity_title, a.kind AS activity_kind, a.ends_at, r.place
		FROM results r
		JOIN users u ON u.id = r.user_id
		JOIN activities a ON a.id = r.activity_id
		WHERE a.kind = ? AND a.results_published = ? AND u.is_active = ? AND r.place BETWEEN 1 AND ?
			AND NOT EXISTS (
				SELECT 1 FROM diplomas d WHERE d.user_id = r.user_id AND d.activity_id = a.id AND d.kind = ?
			)
		ORDER BY a.ends_at ASC, a.id ASC, r.place ASC, u.name ASC`

	var rows []candidateRow
	err := queries.Raw(repo.rebind(q), activity.KindCompetition, true, true, diploma.MaxPlace, diploma.KindPlace).Bind(ctx, repo.db, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "finding winner candidates")
	}
	candidates := make([]diploma.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, row.candidate(diploma.KindPlace))
	}
	return candidates, nil
}

func (repo diplomaRepository) ClaimDiploma(ctx context.Context, d diploma.Diploma) (diploma.Diploma, bool, error) {
	d.ID = uuid.New().String()
	d.FileKey = ""
	d.EmailedAt = time.Time{}

	// the unique code & (user, activity, kind) make concurrent runs skip each other's claims
	q := fmt.Sprintf("INSERT INTO diplomas (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		strings.Join(diplomaColumns, ", "),
		strmangle.Placeholders(sqlx.BindType(repo.db.DriverName()) == sqlx.DOLLAR, len(diplomaColumns), 1, 1),
	)
	res, err := queries.Raw(q,
		d.ID, d.UserID, d.ActivityID, d.Kind, null.NewInt(d.Place, d.Place > 0), d.VerificationCode, d.Format,
		d.StorageBackend, d.FileKey, d.IssuedAt.UTC(), null.Time{},
	).ExecContext(ctx, repo.db)
	if err != nil {
		return diploma.Diploma{}, false, errors.Wrap(err, "inserting diploma")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return diploma.Diploma{}, false, errors.Wrap(err, "inserting diploma")
	}
	if n == 0 {
		return diploma.Diploma{}, false, nil
	}
	return d, true, nil
}

func (repo diplomaRepository) exec(ctx context.Context, msg, q string, args ...interface{}) error {
	res, err := queries.Raw(repo.rebind(q), args...).ExecContext(ctx, repo.db)
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return diploma.ErrNotFound
	}
	return nil
}

func (repo diplomaRepository) SetDiplomaFile(ctx context.Context, id, fileKey string) error {
	if !isValidID(id) {
		return diploma.ErrNotFound
	}
	return repo.exec(ctx, "setting diploma file", "UPDATE diplomas SET file_key = ? WHERE id = ?", fileKey, id)
}

func (repo diplomaRepository) SetDiplomaEmailed(ctx context.Context, id string, at time.Time) error {
	if !isValidID(id) {
		return diploma.ErrNotFound
	}
	return repo.exec(ctx, "setting diploma emailed", "UPDATE diplomas SET emailed_at = ? WHERE id = ?", at.UTC(), id)
}

func (repo diplomaRepository) DeleteDiploma(ctx context.Context, id string) error {
	if !isValidID(id) {
		return diploma.ErrNotFound
	}
	return repo.exec(ctx, "deleting diploma", "DELETE FROM diplomas WHERE id = ?", id)
}

func (repo diplomaRepository) GetDiploma(ctx context.Context, filter diploma.GetFilter) (diploma.Diploma, error) {
	var (
		cond string
		arg  interface{}
	)
	switch {
	case filter.ID != "":
		if !isValidID(filter.ID) {
			return diploma.Diploma{}, diploma.ErrNotFound
		}
		cond, arg = "d.id = ?", filter.ID
	case filter.Code != "":
		cond, arg = "d.verification_code = ?", filter.Code
	default:
		return diploma.Diploma{}, diploma.ErrNotFound
	}

	var row diplomaRow
	if err := queries.Raw(repo.rebind(diplomaSelect+" WHERE "+cond), arg).Bind(ctx, repo.db, &row); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return diploma.Diploma{}, diploma.ErrNotFound
		}
		return diploma.Diploma{}, errors.Wrap(err, "finding diploma")
	}
	return row.unboil(), nil
}

func (repo diplomaRepository) QueryDiplomas(ctx context.Context, filter diploma.QueryFilter) ([]diploma.Diploma, error) {
	q := diplomaSelect + " WHERE d.file_key <> ''"
	var args []interface{}
	if filter.UserID != "" {
		if !isValidID(filter.UserID) {
			return []diploma.Diploma{}, nil
		}
		q += " AND d.user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.ActivityID != "" {
		if !isValidID(filter.ActivityID) {
			return []diploma.Diploma{}, nil
		}
		q += " AND d.activity_id = ?"
		args = append(args, filter.ActivityID)
	}
	if filter.Kind != "" {
		q += " AND d.kind = ?"
		args = append(args, filter.Kind)
	}
	q += " ORDER BY d.issued_at DESC, u.name ASC"

	var rows []diplomaRow
	if err := queries.Raw(repo.rebind(q), args...).Bind(ctx, repo.db, &rows); err != nil {
		return nil, errors.Wrap(err, "querying diplomas")
	}
	diplomas := make([]diploma.Diploma, 0, len(rows))
	for _, row := range rows {
		diplomas = append(diplomas, row.unboil())
	}
	return diplomas, nil
}
