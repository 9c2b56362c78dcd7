package activity

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/congress/core"
)

func errFields(err error) []string {
	var fields []string
	switch vErr := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		for _, fe := range vErr {
			fields = append(fields, fe.Field())
		}
	case *core.ValidationError:
		for _, fe := range vErr.Fields {
			fields = append(fields, fe.Field)
		}
	}
	return fields
}

func TestActivity_Status(t *testing.T) {
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	act := Activity{StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)}

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{name: "before start", now: now.Add(-2 * time.Hour), want: StatusUpcoming},
		{name: "running", now: now, want: StatusOngoing},
		{name: "on end", now: now.Add(time.Hour), want: StatusOngoing},
		{name: "after end", now: now.Add(2 * time.Hour), want: StatusFinished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, act.Status(tt.now))
		})
	}
}

func TestNewActivity_Validate(t *testing.T) {
	start := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	valid := func() NewActivity {
		return NewActivity{
			Kind:     KindWorkshop,
			Title:    " Go for scientists ",
			Capacity: 20,
			Fee:      1500,
			Currency: "eur",
			StartsAt: start,
			EndsAt:   start.Add(2 * time.Hour),
		}
	}

	tests := []struct {
		name       string
		mutate     func(na *NewActivity)
		wantFields []string
	}{
		{name: "valid", mutate: func(na *NewActivity) {}},
		{name: "unknown kind", mutate: func(na *NewActivity) { na.Kind = "talk" }, wantFields: []string{"kind"}},
		{name: "blank title", mutate: func(na *NewActivity) { na.Title = "   " }, wantFields: []string{"title"}},
		{name: "negative capacity", mutate: func(na *NewActivity) { na.Capacity = -1 }, wantFields: []string{"capacity"}},
		{name: "negative fee", mutate: func(na *NewActivity) { na.Fee = -5 }, wantFields: []string{"fee"}},
		{name: "bad currency", mutate: func(na *NewActivity) { na.Currency = "EURO" }, wantFields: []string{"currency"}},
		{name: "non-letter currency", mutate: func(na *NewActivity) { na.Currency = "E2R" }, wantFields: []string{"currency"}},
		{name: "ends before start", mutate: func(na *NewActivity) { na.EndsAt = start.Add(-time.Hour) }, wantFields: []string{"ends_at"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			na := valid()
			tt.mutate(&na)
			err := na.Validate()
			if tt.wantFields == nil {
				assert.NoError(t, err)
				assert.Equal(t, "Go for scientists", na.Title)
				assert.Equal(t, "EUR", na.Currency)
				return
			}
			assert.ElementsMatch(t, tt.wantFields, errFields(err))
		})
	}
}

func TestUpdateActivity_Validate(t *testing.T) {
	start := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	orig := Activity{StartsAt: start, EndsAt: start.Add(time.Hour)}

	late := start.Add(2 * time.Hour)
	early := start.Add(-time.Hour)

	assert.NoError(t, (&UpdateActivity{StartsAt: &early}).Validate(orig))
	assert.NoError(t, (&UpdateActivity{EndsAt: &late}).Validate(orig))
	assert.Error(t, (&UpdateActivity{StartsAt: &late}).Validate(orig))
}
