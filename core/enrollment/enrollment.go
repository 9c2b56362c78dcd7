package enrollment

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/activity"
	"github.com/trezcool/congress/core/user"
)

// Statuses
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
)

var (
	ErrNotFound        = core.NewNotFoundError("enrollment")
	ErrAlreadyEnrolled = errors.New("user is already enrolled in this activity")
	ErrActivityFull    = errors.New("activity is full")
	ErrActivityEnded   = errors.New("activity has already ended")
	ErrNotActive       = errors.New("enrollment is already cancelled")
)

type Enrollment struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ActivityID string    `json:"activity_id"`
	Status     string    `json:"status"`
	Paid       bool      `json:"paid"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (e Enrollment) IsActive() bool { return e.Status == StatusActive }

type QueryFilter struct {
	UserID     string `query:"user_id"`
	ActivityID string `query:"activity_id"`
	Status     string `query:"status"`
}

type (
	Repository interface {
		// EnrollUser inserts `enr` unless the user already holds an active enrollment for the activity
		// (ErrAlreadyEnrolled) or the activity holds `capacity` active enrollments (ErrActivityFull).
		// A cancelled enrollment is reactivated instead. Checks and write happen in one transaction.
		EnrollUser(ctx context.Context, enr Enrollment, capacity int) (Enrollment, error)
		QueryEnrollments(ctx context.Context, filter QueryFilter) ([]Enrollment, error)
		GetEnrollment(ctx context.Context, userID, activityID string) (Enrollment, error)
		GetEnrollmentByID(ctx context.Context, id string) (Enrollment, error)
		UpdateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
	}

	Service struct {
		repo    Repository
		nowFunc func() time.Time
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo, nowFunc: time.Now}
}

// Enroll registers `usr` to `act`. Free activities are enrolled as paid.
func (svc *Service) Enroll(ctx context.Context, usr user.User, act activity.Activity) (Enrollment, error) {
	now := svc.nowFunc().UTC()
	if !usr.IsActive {
		return Enrollment{}, core.NewValidationError(errors.New("user account is deactivated"))
	}
	if act.HasEnded(now) {
		return Enrollment{}, core.NewValidationError(ErrActivityEnded)
	}

	enr, err := svc.repo.EnrollUser(ctx, Enrollment{
		UserID:     usr.ID,
		ActivityID: act.ID,
		Status:     StatusActive,
		Paid:       act.IsFree(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, act.Capacity)
	if err != nil {
		switch errors.Cause(err) {
		case ErrAlreadyEnrolled, ErrActivityFull:
			return Enrollment{}, core.NewValidationError(errors.Cause(err))
		}
		return Enrollment{}, errors.Wrap(err, "enrolling user")
	}
	return enr, nil
}

func (svc *Service) Cancel(ctx context.Context, enr Enrollment) (Enrollment, error) {
	if !enr.IsActive() {
		return Enrollment{}, core.NewValidationError(ErrNotActive)
	}
	enr.Status = StatusCancelled
	enr.UpdatedAt = svc.nowFunc().UTC()
	return svc.repo.UpdateEnrollment(ctx, enr)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Enrollment, error) {
	filter.Status = core.CleanString(filter.Status, true /* lower */)
	return svc.repo.QueryEnrollments(ctx, filter)
}

func (svc *Service) Get(ctx context.Context, userID, activityID string) (Enrollment, error) {
	return svc.repo.GetEnrollment(ctx, userID, activityID)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Enrollment, error) {
	return svc.repo.GetEnrollmentByID(ctx, id)
}

// IsEnrolled tells whether the user holds an active enrollment for the activity.
func (svc *Service) IsEnrolled(ctx context.Context, userID, activityID string) (bool, error) {
	enr, err := svc.repo.GetEnrollment(ctx, userID, activityID)
	if err != nil {
		if core.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return enr.IsActive(), nil
}
