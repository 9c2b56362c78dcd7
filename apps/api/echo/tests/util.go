package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	. "github.com/trezcool/congress/apps/api/echo"
	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/activity"
	"github.com/trezcool/congress/core/attendance"
	"github.com/trezcool/congress/core/diploma"
	"github.com/trezcool/congress/core/enrollment"
	"github.com/trezcool/congress/core/payment"
	"github.com/trezcool/congress/core/result"
	"github.com/trezcool/congress/core/user"
	appfs "github.com/trezcool/congress/fs"
	"github.com/trezcool/congress/services/email"
	"github.com/trezcool/congress/services/logger"
	"github.com/trezcool/congress/services/render"
	"github.com/trezcool/congress/services/storage"
	"github.com/trezcool/congress/storage/database/sqlboiler"
	"github.com/trezcool/congress/storage/database/sqlx"
	"github.com/trezcool/congress/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// fixture is a server wired to a fresh in-memory database, local storage & a mail mock.
type fixture struct {
	conf    *core.Config
	app     Server
	mail    *emailsvc.ConsoleServiceMock
	usrRepo user.Repository
	actRepo activity.Repository
	enrRepo enrollment.Repository
	atdRepo attendance.Repository
	resRepo result.Repository
}

func setup(t *testing.T) *fixture {
	t.Helper()

	conf := core.NewTestConfig(t.TempDir())
	logger := logsvc.NewRollbarLogger(zaptest.NewLogger(t), conf)
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true, logger)

	// set up DB & repos
	db := testutil.PrepareDB(t)
	f := &fixture{
		conf:    conf,
		mail:    emailsvc.NewConsoleServiceMock(conf, logger),
		usrRepo: sqlxrepos.NewUserRepository(db),
		actRepo: sqlxrepos.NewActivityRepository(db),
		enrRepo: sqlxrepos.NewEnrollmentRepository(db),
		atdRepo: sqlxrepos.NewAttendanceRepository(db),
		resRepo: sqlxrepos.NewResultRepository(db),
	}

	// set up services
	fileStorage, err := storagesvc.NewLocal(conf.Storage.LocalDir)
	require.NoError(t, err)

	usrSvc := user.NewService(f.usrRepo, f.mail, conf)
	actSvc := activity.NewService(f.actRepo)
	enrSvc := enrollment.NewService(f.enrRepo)
	diplomaSvc := diploma.NewService(
		boiledrepos.NewDiplomaRepository(db),
		map[string]diploma.Renderer{diploma.FormatPDF: rendersvc.NewPDF()},
		fileStorage,
		f.mail,
		logger,
		conf,
	)

	// set up server
	f.app = NewServer(&Deps{
		Conf:          conf,
		Logger:        logger,
		UserSvc:       usrSvc,
		ActivitySvc:   actSvc,
		EnrollmentSvc: enrSvc,
		AttendanceSvc: attendance.NewService(f.atdRepo, usrSvc, actSvc, enrSvc),
		PaymentSvc:    payment.NewService(sqlxrepos.NewPaymentRepository(db), usrSvc, actSvc, enrSvc),
		ResultSvc:     result.NewService(f.resRepo, enrSvc),
		DiplomaSvc:    diplomaSvc,
	})
	return f
}

func (f *fixture) do(method, path, token string, body ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, body...)
	f.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(conf, GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), rec.Body.String())
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if assert.NoError(t, err, "jsonBytesEqual() failed to compare") {
		assert.True(t, ok, "data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
