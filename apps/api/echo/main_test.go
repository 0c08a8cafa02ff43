package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/subject"
	"github.com/trezcool/kazi/core/task"
	"github.com/trezcool/kazi/core/team"
	"github.com/trezcool/kazi/core/user"
	appfs "github.com/trezcool/kazi/fs"
	emailsvc "github.com/trezcool/kazi/services/email"
	logsvc "github.com/trezcool/kazi/services/logger"
	storagesvc "github.com/trezcool/kazi/services/storage"
	inmemdb "github.com/trezcool/kazi/storage/database/inmem"
	testutil "github.com/trezcool/kazi/tests"
)

const testPassword = "Kz!9xQw#72mv"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	app        Server
	auth       *authenticator
	conf       *core.Config
	usrRepo    user.Repository
	mailSvc    *emailsvc.ConsoleServiceMock
	subjectSvc subject.Service
	teamSvc    team.Service
	taskSvc    task.Service
}

func setup(t *testing.T) *testEnv {
	conf := testutil.NewConfig(t)
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

	// set up DB & repos
	db := inmemdb.NewDB()
	tx := inmemdb.NewTxRunner(db)
	usrRepo := inmemdb.NewUserRepository(db)
	subjectRepo := inmemdb.NewSubjectRepository(db)
	teamRepo := inmemdb.NewTeamRepository(db)
	taskRepo := inmemdb.NewTaskRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	fileStorage, err := storagesvc.NewDiskStorage(conf.Uploads.Dir, conf.Uploads.URLPrefix)
	require.NoError(t, err)

	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	subjectSvc := subject.NewService(subjectRepo, usrRepo, tx)
	teamSvc := team.NewService(teamRepo, subjectSvc, usrRepo, tx)
	taskSvc := task.NewService(taskRepo, teamSvc, subjectSvc, fileStorage, tx, logger, conf)

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	require.NoError(t, core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true))
	require.NoError(t, user.LoadCommonPasswords(appfs.FS, appfs.CommonPasswordsFile))

	// set up server
	app := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    usrSvc,
		SubjectSvc: subjectSvc,
		TeamSvc:    teamSvc,
		TaskSvc:    taskSvc,
	})
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	return &testEnv{
		app:        app,
		auth:       newAuthenticator(conf),
		conf:       conf,
		usrRepo:    usrRepo,
		mailSvc:    mailSvc,
		subjectSvc: subjectSvc,
		teamSvc:    teamSvc,
		taskSvc:    taskSvc,
	}
}

func (env *testEnv) createUser(t *testing.T, name, email, role string) user.User {
	return testutil.CreateUser(t, env.usrRepo, name, email, "", role)
}

func (env *testEnv) createUserWithPassword(t *testing.T, name, email string) user.User {
	return testutil.CreateUser(t, env.usrRepo, name, email, testPassword, user.RoleStudent)
}

func (env *testEnv) token(t *testing.T, usr user.User) string {
	token, err := env.auth.tokenFor(usr)
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

func (env *testEnv) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	env.app.ServeHTTP(rec, req)
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

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func unmarshallRec(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshallRec() failed: %v; body %s", err, rec.Body.String())
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
	if tt.wantData != nil {
		assert.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}

func runHTTPTests(t *testing.T, env *testEnv, tests []httpTest) {
	for _, tt := range tests {
		tt := tt
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}
