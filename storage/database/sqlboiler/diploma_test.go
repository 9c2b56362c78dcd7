package boiledrepos

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/congress/core/activity"
	"github.com/trezcool/congress/core/attendance"
	"github.com/trezcool/congress/core/diploma"
	"github.com/trezcool/congress/core/result"
	"github.com/trezcool/congress/core/user"
	sqlxrepos "github.com/trezcool/congress/storage/database/sqlx"
	testutil "github.com/trezcool/congress/tests"
)

func TestDiplomaRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	repo := NewDiplomaRepository(db)
	userRepo := sqlxrepos.NewUserRepository(db)
	actRepo := sqlxrepos.NewActivityRepository(db)
	enrRepo := sqlxrepos.NewEnrollmentRepository(db)
	attRepo := sqlxrepos.NewAttendanceRepository(db)
	resRepo := sqlxrepos.NewResultRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	ada := testutil.CreateUser(t, userRepo, "Ada", "", "ada@test.test", "", []string{user.RoleParticipant}, true)
	bob := testutil.CreateUser(t, userRepo, "Bob", "", "bob@test.test", "", []string{user.RoleParticipant}, true)
	carl := testutil.CreateUser(t, userRepo, "Carl", "", "carl@test.test", "", []string{user.RoleParticipant}, true)

	workshop := testutil.CreateActivity(t, actRepo, activity.KindWorkshop, "Go Workshop", now.Add(-5*time.Hour), 0, 0)
	upcoming := testutil.CreateActivity(t, actRepo, activity.KindWorkshop, "Later", now.Add(time.Hour), 0, 0)
	contest := testutil.CreateActivity(t, actRepo, activity.KindCompetition, "Contest", now.Add(-4*time.Hour), 0, 0)

	for _, usr := range []user.User{ada, bob, carl} {
		testutil.Enroll(t, enrRepo, usr.ID, workshop)
		testutil.Enroll(t, enrRepo, usr.ID, upcoming)
		testutil.Enroll(t, enrRepo, usr.ID, contest)
	}
	// ada attended the workshop, bob only the upcoming one
	for _, rec := range []attendance.Record{
		{UserID: ada.ID, ActivityID: workshop.ID, Scope: workshop.ID, ScannedAt: now.Add(-5 * time.Hour)},
		{UserID: bob.ID, ActivityID: upcoming.ID, Scope: upcoming.ID, ScannedAt: now},
	} {
		_, _, err := attRepo.CreateRecord(ctx, rec)
		require.NoError(t, err)
	}
	// every competitor got a result: that counts as participation
	for i, usr := range []user.User{ada, bob, carl} {
		_, err := resRepo.UpsertResult(ctx, result.Result{
			UserID: usr.ID, ActivityID: contest.ID, Score: float64(10 * (i + 1)), CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
	}

	candidates, err := repo.FindParticipationCandidates(ctx, now)
	require.NoError(t, err)
	require.Len(t, candidates, 4)
	assert.Equal(t, workshop.ID, candidates[0].ActivityID)
	assert.Equal(t, ada.ID, candidates[0].UserID)
	assert.Equal(t, diploma.KindWorkshop, candidates[0].Kind)
	for _, c := range candidates[1:] {
		assert.Equal(t, contest.ID, c.ActivityID)
		assert.Equal(t, diploma.KindCompetition, c.Kind)
	}

	winners, err := repo.FindWinnerCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, winners, "results are not published")

	require.NoError(t, resRepo.PublishResults(ctx, contest.ID, map[string]int{carl.ID: 1, bob.ID: 2, ada.ID: 3}))
	winners, err = repo.FindWinnerCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, winners, 3)
	assert.Equal(t, carl.ID, winners[0].UserID)
	assert.Equal(t, 1, winners[0].Place)
	assert.Equal(t, diploma.KindPlace, winners[0].Kind)

	t.Run("claim", func(t *testing.T) {
		c := candidates[0]
		d := diploma.Diploma{
			UserID: c.UserID, ActivityID: c.ActivityID, Kind: c.Kind, VerificationCode: "AAAA-BBBB-CCCC",
			Format: diploma.FormatPDF, StorageBackend: "local", IssuedAt: now,
		}
		claimed, ok, err := repo.ClaimDiploma(ctx, d)
		require.NoError(t, err)
		require.True(t, ok)

		_, ok, err = repo.ClaimDiploma(ctx, d)
		require.NoError(t, err)
		assert.False(t, ok, "already claimed")

		// claimed candidates are no longer listed
		left, err := repo.FindParticipationCandidates(ctx, now)
		require.NoError(t, err)
		assert.Len(t, left, 3)

		// not ready yet
		diplomas, err := repo.QueryDiplomas(ctx, diploma.QueryFilter{UserID: ada.ID})
		require.NoError(t, err)
		assert.Empty(t, diplomas)

		require.NoError(t, repo.SetDiplomaFile(ctx, claimed.ID, "diplomas/x/AAAA-BBBB-CCCC.pdf"))
		require.NoError(t, repo.SetDiplomaEmailed(ctx, claimed.ID, now))

		got, err := repo.GetDiploma(ctx, diploma.GetFilter{Code: "AAAA-BBBB-CCCC"})
		require.NoError(t, err)
		assert.Equal(t, claimed.ID, got.ID)
		assert.Equal(t, "Ada", got.UserName)
		assert.Equal(t, "ada@test.test", got.UserEmail)
		assert.Equal(t, "Go Workshop", got.ActivityTitle)
		assert.True(t, got.IsReady())
		assert.True(t, got.EmailedAt.Equal(now))

		diplomas, err = repo.QueryDiplomas(ctx, diploma.QueryFilter{UserID: ada.ID})
		require.NoError(t, err)
		assert.Len(t, diplomas, 1)
	})

	t.Run("release", func(t *testing.T) {
		c := winners[0]
		claimed, ok, err := repo.ClaimDiploma(ctx, diploma.Diploma{
			UserID: c.UserID, ActivityID: c.ActivityID, Kind: c.Kind, Place: c.Place, VerificationCode: "DDDD-EEEE-FFFF",
			Format: diploma.FormatPNG, StorageBackend: "local", IssuedAt: now,
		})
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, repo.DeleteDiploma(ctx, claimed.ID))

		_, err = repo.GetDiploma(ctx, diploma.GetFilter{ID: claimed.ID})
		assert.Equal(t, diploma.ErrNotFound, err)
		assert.Equal(t, diploma.ErrNotFound, repo.DeleteDiploma(ctx, claimed.ID))

		winners, err := repo.FindWinnerCandidates(ctx)
		require.NoError(t, err)
		assert.Len(t, winners, 3)
	})
}

func TestDiplomaRepository_FindWinnerCandidates_Podium(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	repo := NewDiplomaRepository(db)
	userRepo := sqlxrepos.NewUserRepository(db)
	resRepo := sqlxrepos.NewResultRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	contest := testutil.CreateActivity(t, sqlxrepos.NewActivityRepository(db), activity.KindCompetition, "Contest", now.Add(-4*time.Hour), 0, 0)

	// tie for 2nd: the next place is 4th, off the podium
	places := make(map[string]int)
	for i, name := range []string{"Ada", "Bob", "Carl", "Dan"} {
		usr := testutil.CreateUser(t, userRepo, name, "", strings.ToLower(name)+"@test.test", "", []string{user.RoleParticipant}, true)
		_, err := resRepo.UpsertResult(ctx, result.Result{UserID: usr.ID, ActivityID: contest.ID, Score: 1, CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)
		places[usr.ID] = []int{1, 2, 2, 4}[i]
	}
	require.NoError(t, resRepo.PublishResults(ctx, contest.ID, places))

	winners, err := repo.FindWinnerCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, winners, 3)
	for _, w := range winners {
		assert.LessOrEqual(t, w.Place, diploma.MaxPlace)
		assert.NotEqual(t, "Dan", w.UserName)
	}
}
