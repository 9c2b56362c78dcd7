package result

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/activity"
	"github.com/trezcool/congress/core/enrollment"
)

var (
	ErrNotFound       = core.NewNotFoundError("results")
	ErrNotCompetition = errors.New("results can only be recorded for competitions")
	ErrPublished      = errors.New("results are published: unpublish them first")
	ErrNoResults      = errors.New("there are no results to publish")
	ErrNotEnrolled    = errors.New("participant is not enrolled in this competition")
	ErrDiplomasIssued = errors.New("place diplomas were issued for these results: they cannot be unpublished")
)

type Result struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	ActivityID string    `json:"activity_id"`
	Score      float64   `json:"score"`
	Place      int       `json:"place,omitempty"` // 0: unranked
	Note       string    `json:"note"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type NewResult struct {
	UserID string  `json:"user_id" validate:"required,uuid"`
	Score  float64 `json:"score" validate:"gte=0"`
	Note   string  `json:"note"`
}

func (nr *NewResult) Validate() error {
	nr.UserID = core.CleanString(nr.UserID, true /* lower */)
	nr.Note = core.CleanString(nr.Note)
	return core.Validate.Struct(nr)
}

type (
	Repository interface {
		// UpsertResult creates or replaces the user's result for the activity.
		UpsertResult(ctx context.Context, res Result) (Result, error)
		// QueryResults lists an activity's results, best score first.
		QueryResults(ctx context.Context, activityID string) ([]Result, error)
		// PublishResults stores `places` ({user ID: place}) and flags the activity as published, atomically.
		PublishResults(ctx context.Context, activityID string, places map[string]int) error
		// UnpublishResults clears places and the activity's published flag, atomically.
		// It fails with ErrDiplomasIssued once place diplomas exist for the activity.
		UnpublishResults(ctx context.Context, activityID string) error
	}

	Service struct {
		repo          Repository
		enrollmentSvc *enrollment.Service
	}
)

func NewService(repo Repository, enrollmentSvc *enrollment.Service) *Service {
	return &Service{repo: repo, enrollmentSvc: enrollmentSvc}
}

// SetScore records a participant's score for a competition.
func (svc *Service) SetScore(ctx context.Context, act activity.Activity, nr NewResult) (Result, error) {
	if !act.IsCompetition() {
		return Result{}, core.NewValidationError(ErrNotCompetition)
	}
	if act.ResultsPublished {
		return Result{}, core.NewValidationError(ErrPublished)
	}
	enrolled, err := svc.enrollmentSvc.IsEnrolled(ctx, nr.UserID, act.ID)
	if err != nil {
		return Result{}, errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return Result{}, core.NewFieldValidationError("user_id", ErrNotEnrolled)
	}

	now := time.Now().UTC().Truncate(time.Second)
	return svc.repo.UpsertResult(ctx, Result{
		UserID:     nr.UserID,
		ActivityID: act.ID,
		Score:      nr.Score,
		Note:       nr.Note,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

// List returns the activity's results; only admins see unpublished ones.
func (svc *Service) List(ctx context.Context, act activity.Activity, isAdmin bool) ([]Result, error) {
	if !act.IsCompetition() || !(act.ResultsPublished || isAdmin) {
		return nil, ErrNotFound
	}
	return svc.repo.QueryResults(ctx, act.ID)
}

// Publish ranks the competition's results and makes them public.
func (svc *Service) Publish(ctx context.Context, act activity.Activity) ([]Result, error) {
	if !act.IsCompetition() {
		return nil, core.NewValidationError(ErrNotCompetition)
	}
	results, err := svc.repo.QueryResults(ctx, act.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	if len(results) == 0 {
		return nil, core.NewValidationError(ErrNoResults)
	}

	ranked := Rank(results)
	places := make(map[string]int, len(ranked))
	for _, res := range ranked {
		places[res.UserID] = res.Place
	}
	if err = svc.repo.PublishResults(ctx, act.ID, places); err != nil {
		return nil, errors.Wrap(err, "publishing results")
	}
	return ranked, nil
}

func (svc *Service) Unpublish(ctx context.Context, act activity.Activity) error {
	if !act.IsCompetition() {
		return core.NewValidationError(ErrNotCompetition)
	}
	err := svc.repo.UnpublishResults(ctx, act.ID)
	if errors.Cause(err) == ErrDiplomasIssued {
		// re-ranking would leave the issued diplomas naming the wrong winners
		return core.NewValidationError(ErrDiplomasIssued)
	}
	return errors.Wrap(err, "unpublishing results")
}
