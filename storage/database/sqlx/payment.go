package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/enrollment"
	"github.com/trezcool/congress/core/payment"
)

const paymentColumns = "id, user_id, activity_id, amount, currency, method, reference, note, recorded_by, paid_at, created_at"

type paymentRow struct {
	ID         string      `db:"id"`
	UserID     string      `db:"user_id"`
	ActivityID null.String `db:"activity_id"`
	Amount     int64       `db:"amount"`
	Currency   string      `db:"currency"`
	Method     string      `db:"method"`
	Reference  null.String `db:"reference"`
	Note       string      `db:"note"`
	RecordedBy null.String `db:"recorded_by"`
	PaidAt     time.Time   `db:"paid_at"`
	CreatedAt  time.Time   `db:"created_at"`
}

func (row paymentRow) payment() payment.Payment {
	return payment.Payment{
		ID:         row.ID,
		UserID:     row.UserID,
		ActivityID: row.ActivityID.String,
		Amount:     row.Amount,
		Currency:   row.Currency,
		Method:     row.Method,
		Reference:  row.Reference.String,
		Note:       row.Note,
		RecordedBy: row.RecordedBy.String,
		PaidAt:     row.PaidAt.UTC(),
		CreatedAt:  row.CreatedAt.UTC(),
	}
}

type paymentRepository struct {
	db core.DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db core.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

func (repo paymentRepository) CreatePayment(ctx context.Context, p payment.Payment, fee int64) (payment.Payment, error) {
	p.ID = newID()

	err := core.WithinTx(ctx, repo.db, func(tx core.DBExecutor) error {
		if p.Reference != "" {
			var taken bool
			err := sqlx.GetContext(ctx, tx, &taken, tx.Rebind("SELECT COUNT(*) > 0 FROM payments WHERE reference = ?"), p.Reference)
			if err != nil {
				return errors.Wrap(err, "checking payment reference")
			}
			if taken {
				return payment.ErrReferenceExists
			}
		}

		q := "INSERT INTO payments (" + paymentColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		_, err := tx.ExecContext(ctx, tx.Rebind(q),
			p.ID, p.UserID, nullString(p.ActivityID), p.Amount, p.Currency, p.Method, nullString(p.Reference), p.Note,
			nullString(p.RecordedBy), p.PaidAt.UTC(), p.CreatedAt.UTC())
		if err != nil {
			if isUniqueViolation(err) {
				return payment.ErrReferenceExists
			}
			return errors.Wrap(err, "inserting payment")
		}
		if p.ActivityID == "" {
			return nil
		}

		var paid int64
		q = "SELECT COALESCE(SUM(amount), 0) FROM payments WHERE user_id = ? AND activity_id = ?"
		if err = sqlx.GetContext(ctx, tx, &paid, tx.Rebind(q), p.UserID, p.ActivityID); err != nil {
			return errors.Wrap(err, "summing payments")
		}
		if paid >= fee {
			q = "UPDATE enrollments SET paid = ?, updated_at = ? WHERE user_id = ? AND activity_id = ? AND status = ? AND NOT paid"
			_, err = tx.ExecContext(ctx, tx.Rebind(q), true, p.CreatedAt.UTC(), p.UserID, p.ActivityID, enrollment.StatusActive)
			return errors.Wrap(err, "marking enrollment as paid")
		}
		return nil
	})
	if err != nil {
		return payment.Payment{}, err
	}
	return p, nil
}

func (repo paymentRepository) QueryPayments(ctx context.Context, filter payment.QueryFilter) ([]payment.Payment, error) {
	var w where
	if filter.UserID != "" {
		if !isValidID(filter.UserID) {
			return []payment.Payment{}, nil
		}
		w.add("user_id = ?", filter.UserID)
	}
	if filter.ActivityID != "" {
		if !isValidID(filter.ActivityID) {
			return []payment.Payment{}, nil
		}
		w.add("activity_id = ?", filter.ActivityID)
	}
	if filter.Method != "" {
		w.add("method = ?", filter.Method)
	}

	var rows []paymentRow
	q := "SELECT " + paymentColumns + " FROM payments" + w.String() + " ORDER BY paid_at DESC, created_at DESC"
	if err := sqlx.SelectContext(ctx, repo.db, &rows, repo.db.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}
	payments := make([]payment.Payment, 0, len(rows))
	for _, row := range rows {
		payments = append(payments, row.payment())
	}
	return payments, nil
}

func (repo paymentRepository) GetPayment(ctx context.Context, id string) (payment.Payment, error) {
	if !isValidID(id) {
		return payment.Payment{}, payment.ErrNotFound
	}
	var row paymentRow
	q := "SELECT " + paymentColumns + " FROM payments WHERE id = ?"
	if err := sqlx.GetContext(ctx, repo.db, &row, repo.db.Rebind(q), id); err != nil {
		return payment.Payment{}, trapNoRowsErr(err, payment.ErrNotFound, "finding payment")
	}
	return row.payment(), nil
}

func (repo paymentRepository) BalanceItems(ctx context.Context, userID string) ([]payment.BalanceItem, error) {
	if !isValidID(userID) {
		return []payment.BalanceItem{}, nil
	}
	q := `SELECT a.id AS activity_id, a.title, a.currency, a.fee,
			COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.user_id = e.user_id AND p.activity_id = a.id), 0) AS paid
		FROM enrollments e
		JOIN activities a ON a.id = e.activity_id
		WHERE e.user_id = ? AND e.status = ?
		ORDER BY a.starts_at ASC, a.title ASC`

	var items []payment.BalanceItem
	if err := sqlx.SelectContext(ctx, repo.db, &items, repo.db.Rebind(q), userID, enrollment.StatusActive); err != nil {
		return nil, errors.Wrap(err, "querying balance items")
	}
	return items, nil
}

func (repo paymentRepository) TotalPaid(ctx context.Context, userID string) (int64, error) {
	if !isValidID(userID) {
		return 0, nil
	}
	var total int64
	q := "SELECT COALESCE(SUM(amount), 0) FROM payments WHERE user_id = ?"
	if err := sqlx.GetContext(ctx, repo.db, &total, repo.db.Rebind(q), userID); err != nil {
		return 0, errors.Wrap(err, "summing payments")
	}
	return total, nil
}
