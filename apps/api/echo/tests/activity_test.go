package tests

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/congress/apps/api/echo"
	"github.com/trezcool/congress/core/activity"
	"github.com/trezcool/congress/core/diploma"
	"github.com/trezcool/congress/core/enrollment"
	"github.com/trezcool/congress/core/payment"
	"github.com/trezcool/congress/core/result"
	"github.com/trezcool/congress/core/user"
	"github.com/trezcool/congress/tests"
)

func Test_activityApi_activityCRUD(t *testing.T) {
	f := setup(t)

	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	ada := testutil.CreateUser(t, f.usrRepo, "Ada", "ada_l", "ada@test.cd", "", []string{user.RoleParticipant}, true)
	adminToken := getToken(t, f.conf, admin)

	startsAt := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	newAct := func(kind, title string, endsAt time.Time) []byte {
		return marchallObj(t, map[string]interface{}{
			"kind": kind, "title": title, "location": "Hall B", "capacity": 10, "fee": 500, "currency": "usd",
			"starts_at": startsAt, "ends_at": endsAt,
		})
	}

	var created activity.Activity
	tests := []httpTest{
		{name: "admin required", method: http.MethodPost, path: "/v1/activities", token: getToken(t, f.conf, ada), body: newAct("workshop", "Go", startsAt.Add(time.Hour)), wantCode: http.StatusForbidden},
		{
			name: "invalid kind & schedule", method: http.MethodPost, path: "/v1/activities", token: adminToken,
			body: newAct("party", "Go", startsAt.Add(-time.Hour)), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"kind": "kind must be one of [workshop competition]", "ends_at": "ends_at must be greater than StartsAt"}),
		},
		{name: "created", method: http.MethodPost, path: "/v1/activities", token: adminToken, body: newAct("workshop", "Go", startsAt.Add(time.Hour)), wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
			if tt.wantCode == http.StatusCreated {
				unmarshal(t, rec, &created)
			}
		})
	}
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "USD", created.Currency)

	// the programme is public
	rec := f.do(http.MethodGet, "/v1/activities?status=upcoming", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{created.ID}, ids(t, rec))

	rec = f.do(http.MethodGet, "/v1/activities?status=finished", "")
	assert.Equal(t, []string{}, ids(t, rec))

	rec = f.do(http.MethodGet, "/v1/activities/"+created.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPut, "/v1/activities/"+created.ID, adminToken, marchallObj(t, map[string]interface{}{"ends_at": startsAt.Add(-time.Minute)}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, "/v1/activities/"+created.ID, adminToken, marchallObj(t, map[string]interface{}{"title": "Go Concurrency"}))
	require.Equal(t, http.StatusOK, rec.Code)
	var updated activity.Activity
	unmarshal(t, rec, &updated)
	assert.Equal(t, "Go Concurrency", updated.Title)
	assert.Equal(t, created.StartsAt, updated.StartsAt)

	rec = f.do(http.MethodDelete, "/v1/activities/"+created.ID, adminToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(http.MethodGet, "/v1/activities/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(http.MethodDelete, "/v1/activities/"+created.ID, adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// Test_eventFlow walks a competition from enrollment to diplomas.
func Test_eventFlow(t *testing.T) {
	f := setup(t)

	admin := testutil.CreateUser(t, f.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	staff := testutil.CreateUser(t, f.usrRepo, "Scanner", "scanner", "scanner@test.cd", "", []string{user.RoleStaff}, true)
	ada := testutil.CreateUser(t, f.usrRepo, "Ada", "ada_l", "ada@test.cd", "", []string{user.RoleParticipant}, true)
	bob := testutil.CreateUser(t, f.usrRepo, "Bob", "bobby", "bob@test.cd", "", []string{user.RoleParticipant}, true)
	carol := testutil.CreateUser(t, f.usrRepo, "Carol", "carol", "carol@test.cd", "", []string{user.RoleParticipant}, true)
	adminToken, staffToken := getToken(t, f.conf, admin), getToken(t, f.conf, staff)
	adaToken, bobToken, carolToken := getToken(t, f.conf, ada), getToken(t, f.conf, bob), getToken(t, f.conf, carol)

	// ongoing competition, 2 seats
	act := testutil.CreateActivity(t, f.actRepo, activity.KindCompetition, "Code Golf", time.Now().Add(-time.Hour), 2, 1000)
	actPath := "/v1/activities/" + act.ID

	t.Run("enrollment", func(t *testing.T) {
		rec := f.do(http.MethodPost, actPath+"/enroll", adaToken)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var enr enrollment.Enrollment
		unmarshal(t, rec, &enr)
		assert.Equal(t, enrollment.StatusActive, enr.Status)
		assert.False(t, enr.Paid)

		rec = f.do(http.MethodPost, actPath+"/enroll", adaToken)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: enrollment.ErrAlreadyEnrolled.Error()})}, rec)

		rec = f.do(http.MethodPost, actPath+"/enroll", bobToken)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = f.do(http.MethodPost, actPath+"/enroll", carolToken)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: enrollment.ErrActivityFull.Error()})}, rec)

		// a participant only sees their own enrollments
		rec = f.do(http.MethodGet, "/v1/enrollments?user_id="+bob.ID, adaToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var enrs []enrollment.Enrollment
		unmarshal(t, rec, &enrs)
		require.Len(t, enrs, 1)
		assert.Equal(t, ada.ID, enrs[0].UserID)

		rec = f.do(http.MethodGet, "/v1/enrollments/"+enr.ID, bobToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = f.do(http.MethodGet, actPath+"/enrollments", adminToken)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, ids(t, rec), 2)
	})

	t.Run("attendance", func(t *testing.T) {
		scan := func(qrToken string) []byte {
			return marchallObj(t, map[string]string{"qr_token": qrToken, "activity_id": act.ID})
		}

		rec := f.do(http.MethodPost, "/v1/attendance/scan", adaToken, scan(ada.QRToken))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = f.do(http.MethodPost, "/v1/attendance/scan", staffToken, scan("CGR-unknown"))
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = f.do(http.MethodPost, "/v1/attendance/scan", staffToken, scan(carol.QRToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "participant is not enrolled in this activity"})}, rec)

		rec = f.do(http.MethodPost, "/v1/attendance/scan", staffToken, scan(ada.QRToken))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var first echoapi.ScanResponse
		unmarshal(t, rec, &first)
		assert.False(t, first.AlreadyScanned)
		assert.Equal(t, staff.ID, first.ScannedBy)

		rec = f.do(http.MethodPost, "/v1/attendance/scan", staffToken, scan(ada.QRToken))
		require.Equal(t, http.StatusOK, rec.Code)
		var second echoapi.ScanResponse
		unmarshal(t, rec, &second)
		assert.True(t, second.AlreadyScanned)
		assert.Equal(t, first.ID, second.ID)

		// event level scan
		rec = f.do(http.MethodPost, "/v1/attendance/scan", staffToken, marchallObj(t, map[string]string{"qr_token": bob.QRToken}))
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = f.do(http.MethodGet, "/v1/attendance", bobToken)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, ids(t, rec), 1)

		rec = f.do(http.MethodGet, "/v1/attendance?activity_id="+act.ID, staffToken)
		assert.Equal(t, []string{first.ID}, ids(t, rec))

		rec = f.do(http.MethodGet, "/v1/attendance?day=yesterday", staffToken)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("payments", func(t *testing.T) {
		pay := func(amount int64, ref string) []byte {
			return marchallObj(t, map[string]interface{}{
				"user_id": ada.ID, "activity_id": act.ID, "amount": amount, "method": payment.MethodCash, "reference": ref,
			})
		}

		rec := f.do(http.MethodPost, "/v1/payments", adaToken, pay(1000, "R1"))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = f.do(http.MethodPost, "/v1/payments", adminToken, pay(400, "R1"))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var p payment.Payment
		unmarshal(t, rec, &p)
		assert.Equal(t, activity.DefaultCurrency, p.Currency)
		assert.Equal(t, admin.ID, p.RecordedBy)

		rec = f.do(http.MethodPost, "/v1/payments", adminToken, pay(600, "R1"))
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"reference": payment.ErrReferenceExists.Error()})}, rec)

		rec = f.do(http.MethodGet, "/v1/users/"+ada.ID+"/balance", adaToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var bal payment.Balance
		unmarshal(t, rec, &bal)
		assert.Equal(t, int64(600), bal.Due)

		rec = f.do(http.MethodPost, "/v1/payments", adminToken, pay(600, "R2"))
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = f.do(http.MethodGet, "/v1/enrollments", adaToken)
		var enrs []enrollment.Enrollment
		unmarshal(t, rec, &enrs)
		require.Len(t, enrs, 1)
		assert.True(t, enrs[0].Paid)

		rec = f.do(http.MethodGet, "/v1/payments/"+p.ID, bobToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = f.do(http.MethodGet, "/v1/payments", bobToken)
		assert.Equal(t, []string{}, ids(t, rec))
		rec = f.do(http.MethodGet, "/v1/payments?user_id="+ada.ID, adminToken)
		assert.Len(t, ids(t, rec), 2)
	})

	t.Run("results", func(t *testing.T) {
		score := func(userID string, s float64) []byte {
			return marchallObj(t, result.NewResult{UserID: userID, Score: s})
		}

		rec := f.do(http.MethodPut, actPath+"/results", adminToken, score(carol.ID, 99))
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"user_id": result.ErrNotEnrolled.Error()})}, rec)

		rec = f.do(http.MethodPut, actPath+"/results", adminToken, score(ada.ID, 90))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rec = f.do(http.MethodPut, actPath+"/results", adminToken, score(bob.ID, 75))
		require.Equal(t, http.StatusOK, rec.Code)

		// unpublished results are hidden
		rec = f.do(http.MethodGet, actPath+"/results", adaToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = f.do(http.MethodGet, actPath+"/results", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = f.do(http.MethodGet, actPath+"/results", adminToken)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(http.MethodPost, actPath+"/results/publish", adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = f.do(http.MethodGet, actPath+"/results", adaToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var results []result.Result
		unmarshal(t, rec, &results)
		require.Len(t, results, 2)
		assert.Equal(t, ada.ID, results[0].UserID)
		assert.Equal(t, 1, results[0].Place)
		assert.Equal(t, 2, results[1].Place)

		// anyone may read published results
		rec = f.do(http.MethodGet, actPath+"/results", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		// scores are frozen once published
		rec = f.do(http.MethodPut, actPath+"/results", adminToken, score(bob.ID, 95))
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: result.ErrPublished.Error()})}, rec)
	})

	var adaPlace diploma.Diploma
	t.Run("winner diplomas", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/v1/diplomas/generate", adaToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = f.do(http.MethodPost, "/v1/diplomas/generate", adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var report diploma.Report
		unmarshal(t, rec, &report)
		require.Len(t, report.Issued, 2, "the competition is not over: winners only")
		for _, d := range report.Issued {
			assert.Equal(t, diploma.KindPlace, d.Kind)
		}

		rec = f.do(http.MethodGet, "/v1/diplomas", adaToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var mine []diploma.Diploma
		unmarshal(t, rec, &mine)
		require.Len(t, mine, 1)
		adaPlace = mine[0]
		assert.Equal(t, 1, adaPlace.Place)
		assert.Equal(t, "Code Golf", adaPlace.ActivityTitle)

		rec = f.do(http.MethodGet, "/v1/diplomas/"+adaPlace.ID, bobToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = f.do(http.MethodGet, "/v1/diplomas/"+adaPlace.ID+"/download", adaToken)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), diploma.Filename(adaPlace))
		assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))

		// the ranking is frozen once winners hold their diplomas
		rec = f.do(http.MethodDelete, actPath+"/results/publish", adminToken)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var herr httpErr
		unmarshal(t, rec, &herr)
		assert.Equal(t, result.ErrDiplomasIssued.Error(), herr.Error)
	})

	t.Run("verification", func(t *testing.T) {
		code := strings.ToLower(strings.ReplaceAll(adaPlace.VerificationCode, "-", ""))
		rec := f.do(http.MethodGet, "/v1/diplomas/verify/"+code, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.VerifyResponse
		unmarshal(t, rec, &resp)
		assert.True(t, resp.Valid)
		assert.Equal(t, adaPlace.VerificationCode, resp.Code)
		assert.Equal(t, "Ada", resp.UserName)
		assert.Equal(t, 1, resp.Place)

		rec = f.do(http.MethodGet, "/v1/diplomas/verify/NOPE-NOPE", "")
		require.Equal(t, http.StatusNotFound, rec.Code)
		unmarshal(t, rec, &resp)
		assert.False(t, resp.Valid)
	})

	t.Run("email", func(t *testing.T) {
		f.mail.Reset()
		rec := f.do(http.MethodPost, "/v1/diplomas/"+adaPlace.ID+"/email", adaToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var d diploma.Diploma
		unmarshal(t, rec, &d)
		assert.False(t, d.EmailedAt.IsZero())

		sent := f.mail.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, ada.Email, sent[0].To[0].Address)
		require.Len(t, sent[0].Attachments, 1)
		assert.Equal(t, diploma.Filename(adaPlace), sent[0].Attachments[0].Filename)
		assert.Contains(t, sent[0].TextContent, adaPlace.VerificationCode)
	})

	t.Run("participation diplomas", func(t *testing.T) {
		// the competition is over
		rec := f.do(http.MethodPut, actPath, adminToken, marchallObj(t, map[string]interface{}{
			"starts_at": time.Now().UTC().Add(-3 * time.Hour), "ends_at": time.Now().UTC().Add(-time.Hour),
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = f.do(http.MethodPost, "/v1/diplomas/generate", adminToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var report diploma.Report
		unmarshal(t, rec, &report)
		require.Len(t, report.Issued, 2)
		for _, d := range report.Issued {
			assert.Equal(t, diploma.KindCompetition, d.Kind)
		}

		// nothing left to issue
		rec = f.do(http.MethodPost, "/v1/diplomas/generate", adminToken)
		unmarshal(t, rec, &report)
		assert.Empty(t, report.Issued)
		assert.Zero(t, report.Failed)

		rec = f.do(http.MethodGet, "/v1/diplomas?activity_id="+act.ID, adminToken)
		assert.Len(t, ids(t, rec), 4)
	})
}
