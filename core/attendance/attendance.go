package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/activity"
	"github.com/trezcool/congress/core/enrollment"
	"github.com/trezcool/congress/core/user"
)

const (
	eventScopePrefix = "event:"
	dayLayout        = "2006-01-02"
)

var (
	ErrNotEnrolled     = errors.New("participant is not enrolled in this activity")
	ErrUserDeactivated = errors.New("participant account is deactivated")
)

// Record is one attendance scan: a participant seen at an activity, or at the event on a given (UTC) day.
type Record struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ActivityID string    `json:"activity_id,omitempty"`
	Scope      string    `json:"scope"`
	ScannedBy  string    `json:"scanned_by,omitempty"`
	ScannedAt  time.Time `json:"scanned_at"`
}

// Scope returns the uniqueness scope of a scan: the activity, or the event day.
func Scope(activityID string, at time.Time) string {
	if activityID != "" {
		return activityID
	}
	return eventScopePrefix + at.UTC().Format(dayLayout)
}

type Scan struct {
	QRToken    string `json:"qr_token" validate:"required,notblank"`
	ActivityID string `json:"activity_id" validate:"omitempty,uuid"`
}

func (s *Scan) Validate() error {
	s.QRToken = core.CleanString(s.QRToken)
	s.ActivityID = core.CleanString(s.ActivityID, true /* lower */)
	return core.Validate.Struct(s)
}

type QueryFilter struct {
	UserID     string `query:"user_id"`
	ActivityID string `query:"activity_id"`
	Day        string `query:"day"` // YYYY-MM-DD, event scans only
}

type (
	Repository interface {
		// CreateRecord inserts `rec` unless one already exists for the same (user, scope),
		// in which case the existing record is returned with created == false.
		CreateRecord(ctx context.Context, rec Record) (Record, bool, error)
		QueryRecords(ctx context.Context, filter QueryFilter) ([]Record, error)
	}

	Service struct {
		repo          Repository
		userSvc       *user.Service
		activitySvc   *activity.Service
		enrollmentSvc *enrollment.Service
		nowFunc       func() time.Time
	}
)

func NewService(repo Repository, userSvc *user.Service, activitySvc *activity.Service, enrollmentSvc *enrollment.Service) *Service {
	return &Service{
		repo:          repo,
		userSvc:       userSvc,
		activitySvc:   activitySvc,
		enrollmentSvc: enrollmentSvc,
		nowFunc:       time.Now,
	}
}

// RecordScan records that the owner of the scanned QR token attended the activity (or the event).
// Scanning twice is harmless: the first record is returned with created == false.
func (svc *Service) RecordScan(ctx context.Context, scanner user.User, s Scan) (Record, bool, error) {
	participant, err := svc.userSvc.GetByQRToken(ctx, s.QRToken)
	if err != nil {
		return Record{}, false, err
	}
	if !participant.IsActive {
		return Record{}, false, core.NewValidationError(ErrUserDeactivated)
	}

	if s.ActivityID != "" {
		if _, err = svc.activitySvc.GetByID(ctx, s.ActivityID); err != nil {
			return Record{}, false, err
		}
		enrolled, err := svc.enrollmentSvc.IsEnrolled(ctx, participant.ID, s.ActivityID)
		if err != nil {
			return Record{}, false, errors.Wrap(err, "checking enrollment")
		}
		if !enrolled {
			return Record{}, false, core.NewValidationError(ErrNotEnrolled)
		}
	}

	now := svc.nowFunc().UTC().Truncate(time.Second)
	rec, created, err := svc.repo.CreateRecord(ctx, Record{
		UserID:     participant.ID,
		ActivityID: s.ActivityID,
		Scope:      Scope(s.ActivityID, now),
		ScannedBy:  scanner.ID,
		ScannedAt:  now,
	})
	if err != nil {
		return Record{}, false, errors.Wrap(err, "recording attendance")
	}
	return rec, created, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Record, error) {
	if filter.Day != "" {
		if _, err := time.Parse(dayLayout, filter.Day); err != nil {
			return nil, core.NewFieldValidationError("day", errors.New("expected format: YYYY-MM-DD"))
		}
	}
	return svc.repo.QueryRecords(ctx, filter)
}

// EventDayScope is the scope used by event-level scans on `day` (YYYY-MM-DD).
func EventDayScope(day string) string {
	return eventScopePrefix + day
}
