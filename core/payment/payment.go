package payment

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/activity"
	"github.com/trezcool/congress/core/enrollment"
	"github.com/trezcool/congress/core/user"
)

// Methods
const (
	MethodCash     = "cash"
	MethodCard     = "card"
	MethodTransfer = "transfer"
)

var (
	ErrNotFound         = core.NewNotFoundError("payment")
	ErrReferenceExists  = errors.New("a payment with this reference already exists")
	ErrCurrencyMismatch = errors.New("currency does not match the activity's")
)

type Payment struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ActivityID string    `json:"activity_id,omitempty"`
	Amount     int64     `json:"amount"` // minor units
	Currency   string    `json:"currency"`
	Method     string    `json:"method"`
	Reference  string    `json:"reference,omitempty"`
	Note       string    `json:"note"`
	RecordedBy string    `json:"recorded_by,omitempty"`
	PaidAt     time.Time `json:"paid_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type NewPayment struct {
	UserID     string    `json:"user_id" validate:"required,uuid"`
	ActivityID string    `json:"activity_id" validate:"omitempty,uuid"`
	Amount     int64     `json:"amount" validate:"gt=0"`
	Currency   string    `json:"currency" validate:"omitempty,currency"`
	Method     string    `json:"method" validate:"required,oneof=cash card transfer"`
	Reference  string    `json:"reference" validate:"omitempty,max=100"`
	Note       string    `json:"note"`
	PaidAt     time.Time `json:"paid_at"`
}

func (np *NewPayment) Validate() error {
	np.UserID = core.CleanString(np.UserID, true /* lower */)
	np.ActivityID = core.CleanString(np.ActivityID, true /* lower */)
	np.Currency = core.CleanString(np.Currency)
	np.Method = core.CleanString(np.Method, true /* lower */)
	np.Reference = core.CleanString(np.Reference)
	np.Note = core.CleanString(np.Note)
	return core.Validate.Struct(np)
}

type QueryFilter struct {
	UserID     string `query:"user_id"`
	ActivityID string `query:"activity_id"`
	Method     string `query:"method"`
}

// BalanceItem is what a user owes for one active enrollment.
type BalanceItem struct {
	ActivityID string `json:"activity_id" db:"activity_id"`
	Title      string `json:"title" db:"title"`
	Currency   string `json:"currency" db:"currency"`
	Fee        int64  `json:"fee" db:"fee"`
	Paid       int64  `json:"paid" db:"paid"`
}

// Balance sums a user's fees and payments. Payments not tied to an activity only count in TotalPaid.
type Balance struct {
	UserID    string        `json:"user_id"`
	Items     []BalanceItem `json:"items"`
	TotalFees int64         `json:"total_fees"`
	TotalPaid int64         `json:"total_paid"`
	Due       int64         `json:"due"`
}

type (
	Repository interface {
		// CreatePayment inserts `p` and, when p.ActivityID is set and the user's total payments for the
		// activity reach `fee`, marks their enrollment as paid, in the same transaction.
		// Returns ErrReferenceExists if p.Reference is already used.
		CreatePayment(ctx context.Context, p Payment, fee int64) (Payment, error)
		QueryPayments(ctx context.Context, filter QueryFilter) ([]Payment, error)
		GetPayment(ctx context.Context, id string) (Payment, error)
		// BalanceItems lists the user's active enrollments with the fee and the amount paid for each.
		BalanceItems(ctx context.Context, userID string) ([]BalanceItem, error)
		// TotalPaid sums every payment made by the user.
		TotalPaid(ctx context.Context, userID string) (int64, error)
	}

	Service struct {
		repo          Repository
		userSvc       *user.Service
		activitySvc   *activity.Service
		enrollmentSvc *enrollment.Service
	}
)

func NewService(repo Repository, userSvc *user.Service, activitySvc *activity.Service, enrollmentSvc *enrollment.Service) *Service {
	return &Service{
		repo:          repo,
		userSvc:       userSvc,
		activitySvc:   activitySvc,
		enrollmentSvc: enrollmentSvc,
	}
}

// Record records a payment received by `recorder`.
func (svc *Service) Record(ctx context.Context, recorder user.User, np NewPayment) (Payment, error) {
	if _, err := svc.userSvc.GetByID(ctx, np.UserID); err != nil {
		if core.IsNotFound(err) {
			return Payment{}, core.NewFieldValidationError("user_id", err)
		}
		return Payment{}, err
	}

	var fee int64
	currency := core.NormalizeCurrency(np.Currency)
	if np.ActivityID != "" {
		act, err := svc.activitySvc.GetByID(ctx, np.ActivityID)
		if err != nil {
			if core.IsNotFound(err) {
				return Payment{}, core.NewFieldValidationError("activity_id", err)
			}
			return Payment{}, err
		}
		enrolled, err := svc.enrollmentSvc.IsEnrolled(ctx, np.UserID, act.ID)
		if err != nil {
			return Payment{}, errors.Wrap(err, "checking enrollment")
		}
		if !enrolled {
			return Payment{}, core.NewFieldValidationError("activity_id", errors.New("user is not enrolled in this activity"))
		}
		if currency == "" {
			currency = act.Currency
		} else if currency != act.Currency {
			return Payment{}, core.NewFieldValidationError("currency", ErrCurrencyMismatch)
		}
		fee = act.Fee
	}
	if currency == "" {
		currency = activity.DefaultCurrency
	}

	now := time.Now().UTC().Truncate(time.Second)
	paidAt := np.PaidAt.UTC().Truncate(time.Second)
	if paidAt.IsZero() {
		paidAt = now
	}

	p, err := svc.repo.CreatePayment(ctx, Payment{
		UserID:     np.UserID,
		ActivityID: np.ActivityID,
		Amount:     np.Amount,
		Currency:   currency,
		Method:     np.Method,
		Reference:  np.Reference,
		Note:       np.Note,
		RecordedBy: recorder.ID,
		PaidAt:     paidAt,
		CreatedAt:  now,
	}, fee)
	if err != nil {
		if errors.Cause(err) == ErrReferenceExists {
			return Payment{}, core.NewFieldValidationError("reference", ErrReferenceExists)
		}
		return Payment{}, errors.Wrap(err, "recording payment")
	}
	return p, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, filter)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Payment, error) {
	return svc.repo.GetPayment(ctx, id)
}

func (svc *Service) Balance(ctx context.Context, userID string) (Balance, error) {
	items, err := svc.repo.BalanceItems(ctx, userID)
	if err != nil {
		return Balance{}, errors.Wrap(err, "listing balance items")
	}
	paid, err := svc.repo.TotalPaid(ctx, userID)
	if err != nil {
		return Balance{}, errors.Wrap(err, "summing payments")
	}

	bal := Balance{UserID: userID, Items: items, TotalPaid: paid}
	if bal.Items == nil {
		bal.Items = []BalanceItem{}
	}
	for _, item := range items {
		bal.TotalFees += item.Fee
	}
	if bal.TotalFees > bal.TotalPaid {
		bal.Due = bal.TotalFees - bal.TotalPaid
	}
	return bal, nil
}

