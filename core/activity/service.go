package activity

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
)

var (
	ErrNotFound        = core.NewNotFoundError("activity")
	ErrInvalidSchedule = errors.New("an activity must end after it starts")
)

type (
	Repository interface {
		CreateActivity(ctx context.Context, act Activity) (Activity, error)
		QueryActivities(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Activity, error)
		GetActivity(ctx context.Context, id string) (Activity, error)
		UpdateActivity(ctx context.Context, act Activity) (Activity, error)
		DeleteActivity(ctx context.Context, id string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, na NewActivity) (Activity, error) {
	now := time.Now().UTC()
	act := Activity{
		Kind:        na.Kind,
		Title:       na.Title,
		Description: na.Description,
		Location:    na.Location,
		Capacity:    na.Capacity,
		Fee:         na.Fee,
		Currency:    na.Currency,
		StartsAt:    na.StartsAt.UTC(),
		EndsAt:      na.EndsAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if act.Currency == "" {
		act.Currency = DefaultCurrency
	}
	return svc.repo.CreateActivity(ctx, act)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]Activity, error) {
	filter.Clean()
	return svc.repo.QueryActivities(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Activity, error) {
	return svc.repo.GetActivity(ctx, id)
}

func (svc *Service) Update(ctx context.Context, act Activity, ua UpdateActivity) (Activity, error) {
	if ua.Title != nil {
		act.Title = core.CleanString(*ua.Title)
	}
	if ua.Description != nil {
		act.Description = core.CleanString(*ua.Description)
	}
	if ua.Location != nil {
		act.Location = core.CleanString(*ua.Location)
	}
	if ua.Capacity != nil {
		act.Capacity = *ua.Capacity
	}
	if ua.Fee != nil {
		act.Fee = *ua.Fee
	}
	if ua.Currency != nil && *ua.Currency != "" {
		act.Currency = *ua.Currency
	}
	if ua.StartsAt != nil {
		act.StartsAt = ua.StartsAt.UTC()
	}
	if ua.EndsAt != nil {
		act.EndsAt = ua.EndsAt.UTC()
	}
	act.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateActivity(ctx, act)
}

// SetResultsPublished flags the activity's results as (un)published.
func (svc *Service) SetResultsPublished(ctx context.Context, act Activity, published bool) (Activity, error) {
	act.ResultsPublished = published
	act.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateActivity(ctx, act)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteActivity(ctx, id)
}
