package activity

import (
	"time"

	"github.com/trezcool/congress/core"
)

// Kinds
const (
	KindWorkshop    = "workshop"
	KindCompetition = "competition"
)

// Statuses, relative to the current time
const (
	StatusUpcoming = "upcoming"
	StatusOngoing  = "ongoing"
	StatusFinished = "finished"
)

const DefaultCurrency = "EUR"

type Activity struct {
	ID               string    `json:"id"`
	Kind             string    `json:"kind"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Location         string    `json:"location"`
	Capacity         int       `json:"capacity"` // 0: unlimited
	Fee              int64     `json:"fee"`      // minor units, 0: free
	Currency         string    `json:"currency"`
	StartsAt         time.Time `json:"starts_at"` // UTC
	EndsAt           time.Time `json:"ends_at"`   // UTC
	ResultsPublished bool      `json:"results_published"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (a Activity) IsCompetition() bool { return a.Kind == KindCompetition }
func (a Activity) IsFree() bool        { return a.Fee == 0 }
func (a Activity) HasEnded(now time.Time) bool {
	return a.EndsAt.Before(now)
}

func (a Activity) Status(now time.Time) string {
	switch {
	case now.Before(a.StartsAt):
		return StatusUpcoming
	case a.HasEnded(now):
		return StatusFinished
	default:
		return StatusOngoing
	}
}

// NewActivity contains information needed to create a new Activity.
type NewActivity struct {
	Kind        string    `json:"kind" validate:"required,oneof=workshop competition"`
	Title       string    `json:"title" validate:"required,notblank"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Capacity    int       `json:"capacity" validate:"gte=0"`
	Fee         int64     `json:"fee" validate:"gte=0"`
	Currency    string    `json:"currency" validate:"omitempty,currency"`
	StartsAt    time.Time `json:"starts_at" validate:"required"`
	EndsAt      time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
}

func (na *NewActivity) Validate() error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.Location = core.CleanString(na.Location)
	na.Currency = core.NormalizeCurrency(na.Currency)
	return core.Validate.Struct(na)
}

// UpdateActivity defines what information may be provided to modify an existing Activity.
// Kind is immutable: results and diplomas depend on it.
type UpdateActivity struct {
	Title       *string    `json:"title" validate:"omitempty,notblank"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	Capacity    *int       `json:"capacity" validate:"omitempty,gte=0"`
	Fee         *int64     `json:"fee" validate:"omitempty,gte=0"`
	Currency    *string    `json:"currency" validate:"omitempty,currency"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
}

func (ua *UpdateActivity) Validate(orig Activity) error {
	if ua.Currency != nil {
		cur := core.NormalizeCurrency(*ua.Currency)
		ua.Currency = &cur
	}
	if err := core.Validate.Struct(ua); err != nil {
		return err
	}

	startsAt, endsAt := orig.StartsAt, orig.EndsAt
	if ua.StartsAt != nil {
		startsAt = *ua.StartsAt
	}
	if ua.EndsAt != nil {
		endsAt = *ua.EndsAt
	}
	if !endsAt.After(startsAt) {
		return core.NewFieldValidationError("ends_at", ErrInvalidSchedule)
	}
	return nil
}

type QueryFilter struct {
	Kind   string `query:"kind"`
	Search string `query:"search"`
	Status string `query:"status"` // upcoming | ongoing | finished
	Now    time.Time
}

func (qf *QueryFilter) Clean() {
	qf.Kind = core.CleanString(qf.Kind, true /* lower */)
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	if qf.Now.IsZero() {
		qf.Now = time.Now().UTC()
	}
}

