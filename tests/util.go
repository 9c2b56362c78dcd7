package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/activity"
	"github.com/trezcool/congress/core/enrollment"
	"github.com/trezcool/congress/core/user"
	"github.com/trezcool/congress/storage/database"
)

// PrepareDB opens a migrated in-memory sqlite database, closed at the end of the test.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Open(core.NewTestConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, "up"); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC().Truncate(time.Second)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		QRToken:   user.NewQRToken(),
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateActivity creates an activity spanning [startsAt, startsAt+2h).
func CreateActivity(
	t *testing.T,
	repo activity.Repository,
	kind, title string,
	startsAt time.Time,
	capacity int,
	fee int64,
) activity.Activity {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	startsAt = startsAt.UTC().Truncate(time.Second)
	act, err := repo.CreateActivity(context.Background(), activity.Activity{
		Kind:      kind,
		Title:     title,
		Location:  "Room A",
		Capacity:  capacity,
		Fee:       fee,
		Currency:  activity.DefaultCurrency,
		StartsAt:  startsAt,
		EndsAt:    startsAt.Add(2 * time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateActivity() failed: %v", err)
	}
	return act
}

func Enroll(t *testing.T, repo enrollment.Repository, userID string, act activity.Activity) enrollment.Enrollment {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	enr, err := repo.EnrollUser(context.Background(), enrollment.Enrollment{
		UserID:     userID,
		ActivityID: act.ID,
		Status:     enrollment.StatusActive,
		Paid:       act.IsFree(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, act.Capacity)
	if err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
	return enr
}
