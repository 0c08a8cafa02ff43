package echoapi

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/subject"
	"github.com/trezcool/kazi/core/task"
	"github.com/trezcool/kazi/core/team"
	"github.com/trezcool/kazi/core/user"
)

type taskFixture struct {
	*testEnv
	admin, member, outsider user.User
	subject                 subject.Subject
	team                    team.Team
}

func setupTasks(t *testing.T) *taskFixture {
	env := setup(t)
	ctx := context.Background()
	host := env.createUser(t, "Host", "host@test.cd", user.RoleHost)
	f := &taskFixture{
		testEnv:  env,
		admin:    env.createUser(t, "Alice", "alice@test.cd", user.RoleStudent),
		member:   env.createUser(t, "Bob", "bob@test.cd", user.RoleStudent),
		outsider: env.createUser(t, "Carol", "carol@test.cd", user.RoleStudent),
	}

	var err error
	deadline := dateString(time.Now().UTC().AddDate(0, 0, 10))
	f.subject, err = env.subjectSvc.Create(ctx, host.ID, subject.NewSubject{Title: "Algorithms", Deadline: &deadline})
	require.NoError(t, err)
	f.team, err = env.teamSvc.Create(ctx, f.admin.ID, team.NewTeam{SubjectID: f.subject.ID, Name: "Rocket"})
	require.NoError(t, err)
	_, err = env.teamSvc.Join(ctx, f.member.ID, f.team.JoinCode)
	require.NoError(t, err)
	return f
}

func (f *taskFixture) path(format string, args ...interface{}) string {
	return fmt.Sprintf("/teams/%d/tasks", f.team.ID) + fmt.Sprintf(format, args...)
}

// do sends a JSON request and decodes a task.Details response, requiring wantCode.
func (f *taskFixture) do(t *testing.T, method, path string, usr user.User, body interface{}, wantCode int) task.Details {
	var data []byte
	if body != nil {
		data = marshallObj(t, body)
	}
	req, rec := newAuthRequest(method, path, f.token(t, usr), data)
	f.serve(req, rec)
	require.Equal(t, wantCode, rec.Code, rec.Body.String())

	var d task.Details
	if wantCode < http.StatusBadRequest {
		unmarshallRec(t, rec, &d)
	}
	return d
}

func (f *taskFixture) status(isCompleted bool) map[string]bool {
	return map[string]bool{"isCompleted": isCompleted}
}

func Test_taskAPI_create(t *testing.T) {
	f := setupTasks(t)
	adminToken := f.token(t, f.admin)

	newTask := func(nt task.NewTask) []byte { return marshallObj(t, nt) }
	runHTTPTests(t, f.testEnv, []httpTest{
		{name: "Auth required", method: http.MethodPost, path: f.path(""), wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "Admin required", method: http.MethodPost, path: f.path(""), token: f.token(t, f.member),
			body:     newTask(task.NewTask{Title: "Read"}),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: task.ErrAdminOnly.Message}),
		},
		{
			name: "Members only", method: http.MethodPost, path: f.path(""), token: f.token(t, f.outsider),
			body:     newTask(task.NewTask{Title: "Read"}),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: team.ErrAccessDenied.Message}),
		},
		{
			name: "Title required", method: http.MethodPost, path: f.path(""), token: adminToken,
			body:     newTask(task.NewTask{Title: " "}),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"title": "this field is required"}),
		},
		{
			name: "Assignee outside the team", method: http.MethodPost, path: f.path(""), token: adminToken,
			body:     newTask(task.NewTask{Title: "Read", AssigneeIDs: []int64{f.member.ID, f.outsider.ID}}),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: task.ErrAssigneesNotFound.Message}),
		},
		{
			name: "Unknown dependency", method: http.MethodPost, path: f.path(""), token: adminToken,
			body:     newTask(task.NewTask{Title: "Read", DependencyIDs: []int64{9999}}),
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: task.ErrDependenciesNotFound.Message}),
		},
		{
			name: "Deadline after the subject's", method: http.MethodPost, path: f.path(""), token: adminToken,
			body:     newTask(task.NewTask{Title: "Read", Deadline: strPtr(dateString(time.Now().AddDate(0, 0, 20)))}),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: core.ErrDeadlineAfterSubject.Message}),
		},
	})

	t.Run("whole team assigned by default", func(t *testing.T) {
		d := f.do(t, http.MethodPost, f.path(""), f.admin, task.NewTask{Title: "Read CLRS", Description: strPtr("chapter 22")}, http.StatusCreated)
		assert.Equal(t, "Read CLRS", d.Title)
		assert.Equal(t, "chapter 22", *d.Description)
		assert.Equal(t, 1, d.Order)
		assert.True(t, d.IsAvailable)
		assert.False(t, d.IsCompleted)
		assert.Equal(t, f.admin.ID, *d.CreatedByID)
		assert.ElementsMatch(t, []user.Ref{{ID: f.admin.ID, Name: f.admin.Name}, {ID: f.member.ID, Name: f.member.Name}}, d.Assignees)
		assert.Empty(t, d.Dependencies)
	})

	t.Run("explicit assignees", func(t *testing.T) {
		d := f.do(t, http.MethodPost, f.path(""), f.admin, task.NewTask{
			Title:       "Write report",
			Deadline:    strPtr(dateString(time.Now())),
			AssigneeIDs: []int64{f.member.ID, f.member.ID},
		}, http.StatusCreated)
		assert.Equal(t, 2, d.Order)
		assert.Equal(t, []user.Ref{{ID: f.member.ID, Name: f.member.Name}}, d.Assignees)
		require.NotNil(t, d.Deadline)
	})
}

func Test_taskAPI_dependencyScenario(t *testing.T) {
	f := setupTasks(t)

	a := f.do(t, http.MethodPost, f.path(""), f.admin, task.NewTask{Title: "A"}, http.StatusCreated)
	b := f.do(t, http.MethodPost, f.path(""), f.admin, task.NewTask{Title: "B", DependencyIDs: []int64{a.ID}}, http.StatusCreated)
	assert.False(t, b.IsAvailable)
	assert.Equal(t, []task.DependencyRef{{ID: a.ID, Title: "A"}}, b.Dependencies)

	// B is blocked by A
	req, rec := newAuthRequest(http.MethodPatch, f.path("/%d", b.ID), f.token(t, f.member), marshallObj(t, f.status(true)))
	f.serve(req, rec)
	checkCodeAndData(t, httpTest{wantCode: http.StatusConflict, wantData: marshallObj(t, httpErr{Error: task.ErrBlocked.Message})}, rec)

	// complete A, then B
	a = f.do(t, http.MethodPatch, f.path("/%d", a.ID), f.admin, f.status(true), http.StatusOK)
	assert.True(t, a.IsCompleted)
	assert.Equal(t, &user.Ref{ID: f.admin.ID, Name: f.admin.Name}, a.CompletedBy)

	b = f.do(t, http.MethodPatch, f.path("/%d", b.ID), f.member, f.status(true), http.StatusOK)
	assert.True(t, b.IsCompleted)
	assert.True(t, b.IsAvailable)
	require.NotNil(t, b.CompletedByID)
	assert.Equal(t, f.member.ID, *b.CompletedByID)
	assert.NotNil(t, b.CompletedAt)

	// un-completing A does not touch B
	a = f.do(t, http.MethodPatch, f.path("/%d", a.ID), f.admin, f.status(false), http.StatusOK)
	assert.False(t, a.IsCompleted)
	assert.Nil(t, a.CompletedBy)
	assert.Nil(t, a.CompletedAt)

	req, rec = newAuthRequest(http.MethodGet, fmt.Sprintf("/teams/%d", f.team.ID), f.token(t, f.member))
	f.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var board TeamBoard
	unmarshallRec(t, rec, &board)
	require.Len(t, board.Tasks, 2)
	assert.Equal(t, a.ID, board.Tasks[0].ID)
	assert.True(t, board.Tasks[0].IsAvailable)
	assert.Equal(t, b.ID, board.Tasks[1].ID)
	assert.True(t, board.Tasks[1].IsCompleted)
	assert.False(t, board.Tasks[1].IsAvailable)
}

func Test_taskAPI_updateStatus(t *testing.T) {
	f := setupTasks(t)
	adminOnly := f.do(t, http.MethodPost, f.path(""), f.admin, task.NewTask{Title: "Admin only", AssigneeIDs: []int64{f.admin.ID}}, http.StatusCreated)

	runHTTPTests(t, f.testEnv, []httpTest{
		{
			name: "Status required", method: http.MethodPatch, path: f.path("/%d", adminOnly.ID), token: f.token(t, f.admin),
			body: []byte(`{}`), wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"isCompleted": "this field is required"}),
		},
		{
			name: "Assignee or admin required", method: http.MethodPatch, path: f.path("/%d", adminOnly.ID), token: f.token(t, f.member),
			body: marshallObj(t, f.status(true)), wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: task.ErrStatusForbidden.Message}),
		},
		{
			name: "Unknown task", method: http.MethodPatch, path: f.path("/9999"), token: f.token(t, f.admin),
			body: marshallObj(t, f.status(true)), wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: task.ErrNotFound.Message}),
		},
		{
			name: "Invalid task ID", method: http.MethodPatch, path: f.path("/abc"), token: f.token(t, f.admin),
			body: marshallObj(t, f.status(true)), wantCode: http.StatusNotFound,
		},
	})
}

func Test_taskAPI_update(t *testing.T) {
	f := setupTasks(t)
	a := f.do(t, http.MethodPost, f.path(""), f.admin, task.NewTask{
		Title:       "A",
		Description: strPtr("first"),
		Deadline:    strPtr(dateString(time.Now())),
	}, http.StatusCreated)
	b := f.do(t, http.MethodPost, f.path(""), f.admin, task.NewTask{Title: "B", DependencyIDs: []int64{a.ID}}, http.StatusCreated)
	c := f.do(t, http.MethodPost, f.path(""), f.admin, task.NewTask{Title: "C", DependencyIDs: []int64{b.ID}}, http.StatusCreated)

	edit := func(id int64) string { return f.path("/%d/edit", id) }
	adminToken := f.token(t, f.admin)
	runHTTPTests(t, f.testEnv, []httpTest{
		{
			name: "Admin required", method: http.MethodPatch, path: edit(a.ID), token: f.token(t, f.member),
			body: []byte(`{"title": "A+"}`), wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: task.ErrAdminOnly.Message}),
		},
		{
			name: "Blank title", method: http.MethodPatch, path: edit(a.ID), token: adminToken,
			body: []byte(`{"title": "  "}`), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"title": "this field is required"}),
		},
		{
			name: "Self dependency", method: http.MethodPatch, path: edit(a.ID), token: adminToken,
			body: []byte(fmt.Sprintf(`{"dependencyIds": [%d]}`, a.ID)), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: task.ErrSelfDependency.Message}),
		},
		{
			name: "Cycle", method: http.MethodPatch, path: edit(a.ID), token: adminToken,
			body: []byte(fmt.Sprintf(`{"dependencyIds": [%d]}`, c.ID)), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: task.ErrDependencyCycle.Message}),
		},
		{
			name: "Assignee outside the team", method: http.MethodPatch, path: edit(a.ID), token: adminToken,
			body: []byte(fmt.Sprintf(`{"assigneeIds": [%d]}`, f.outsider.ID)), wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: task.ErrAssigneesNotFound.Message}),
		},
	})

	t.Run("omitted fields untouched", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPatch, edit(a.ID), adminToken, []byte(`{"title": "A+"}`))
		f.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var d task.Details
		unmarshallRec(t, rec, &d)
		assert.Equal(t, "A+", d.Title)
		assert.Equal(t, "first", *d.Description)
		assert.NotNil(t, d.Deadline)
		assert.Len(t, d.Assignees, 2)
	})

	t.Run("explicit nulls clear", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPatch, edit(a.ID), adminToken, []byte(fmt.Sprintf(
			`{"description": null, "deadline": null, "assigneeIds": [%d]}`, f.member.ID,
		)))
		f.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var d task.Details
		unmarshallRec(t, rec, &d)
		assert.Equal(t, "A+", d.Title)
		assert.Nil(t, d.Description)
		assert.Nil(t, d.Deadline)
		assert.Equal(t, []user.Ref{{ID: f.member.ID, Name: f.member.Name}}, d.Assignees)
	})

	t.Run("dependencies replaced", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPatch, edit(c.ID), adminToken, []byte(fmt.Sprintf(`{"dependencyIds": [%d]}`, a.ID)))
		f.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var d task.Details
		unmarshallRec(t, rec, &d)
		assert.Equal(t, []task.DependencyRef{{ID: a.ID, Title: "A+"}}, d.Dependencies)
	})
}

func Test_taskAPI_delete(t *testing.T) {
	f := setupTasks(t)
	a := f.do(t, http.MethodPost, f.path(""), f.admin, task.NewTask{Title: "A"}, http.StatusCreated)
	b := f.do(t, http.MethodPost, f.path(""), f.admin, task.NewTask{Title: "B", DependencyIDs: []int64{a.ID}}, http.StatusCreated)
	adminToken := f.token(t, f.admin)

	runHTTPTests(t, f.testEnv, []httpTest{
		{
			name: "Admin required", method: http.MethodDelete, path: f.path("/%d", b.ID), token: f.token(t, f.member),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, httpErr{Error: task.ErrAdminOnly.Message}),
		},
		{
			name: "Depended upon", method: http.MethodDelete, path: f.path("/%d", a.ID), token: adminToken,
			wantCode: http.StatusConflict, wantData: marshallObj(t, httpErr{Error: task.ErrHasDependents.Message}),
		},
		{
			name: "Edge removed", method: http.MethodPatch, path: f.path("/%d/edit", b.ID), token: adminToken,
			body: []byte(`{"dependencyIds": []}`),
		},
		{
			name: "Deleted", method: http.MethodDelete, path: f.path("/%d", a.ID), token: adminToken,
			wantData: marshallObj(t, core.LeaveResult{Success: true}),
		},
		{
			name: "Already deleted", method: http.MethodDelete, path: f.path("/%d", a.ID), token: adminToken,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, httpErr{Error: task.ErrNotFound.Message}),
		},
	})
}

func Test_taskAPI_comments(t *testing.T) {
	f := setupTasks(t)
	a := f.do(t, http.MethodPost, f.path(""), f.admin, task.NewTask{Title: "A"}, http.StatusCreated)

	runHTTPTests(t, f.testEnv, []httpTest{
		{
			name: "Members only", method: http.MethodPost, path: f.path("/%d/comments", a.ID), token: f.token(t, f.outsider),
			body: marshallObj(t, task.NewComment{Text: "hi"}), wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: team.ErrAccessDenied.Message}),
		},
		{
			name: "Text required", method: http.MethodPost, path: f.path("/%d/comments", a.ID), token: f.token(t, f.member),
			body: marshallObj(t, task.NewComment{Text: "  "}), wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"text": "this field is required"}),
		},
	})

	d := f.do(t, http.MethodPost, f.path("/%d/comments", a.ID), f.member, task.NewComment{Text: " on it "}, http.StatusCreated)
	d = f.do(t, http.MethodPost, f.path("/%d/comments", a.ID), f.admin, task.NewComment{Text: "thanks"}, http.StatusCreated)
	require.Len(t, d.Comments, 2)
	assert.Equal(t, "on it", d.Comments[0].Text)
	assert.Equal(t, user.Ref{ID: f.member.ID, Name: f.member.Name}, d.Comments[0].Author)
	assert.Equal(t, "thanks", d.Comments[1].Text)
}

func newUploadRequest(t *testing.T, path, token, field, filename string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if field != "" {
		part, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func Test_taskAPI_uploadFile(t *testing.T) {
	f := setupTasks(t)
	a := f.do(t, http.MethodPost, f.path(""), f.admin, task.NewTask{Title: "A"}, http.StatusCreated)
	path := f.path("/%d/files", a.ID)
	memberToken := f.token(t, f.member)

	t.Run("no file", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, memberToken, "", "", nil)
		f.serve(req, rec)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marshallObj(t, httpErr{Error: "no file uploaded"})}, rec)
	})

	t.Run("extension not allowed", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, memberToken, "file", "run.exe", []byte("MZ"))
		f.serve(req, rec)
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), "file type not allowed")
	})

	t.Run("too large", func(t *testing.T) {
		content := bytes.Repeat([]byte("a"), int(f.conf.Uploads.MaxSize)+1)
		req, rec := newUploadRequest(t, path, memberToken, "file", "big.txt", content)
		f.serve(req, rec)
		assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), task.ErrFileTooLarge.Message)
	})

	t.Run("members only", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, f.token(t, f.outsider), "file", "notes.txt", []byte("hello"))
		f.serve(req, rec)
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
	})

	t.Run("uploaded and served", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, memberToken, "file", "Notes.TXT", []byte("hello"))
		f.serve(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var d task.Details
		unmarshallRec(t, rec, &d)
		require.Len(t, d.Files, 1)
		file := d.Files[0]
		assert.Equal(t, "Notes.TXT", file.FileName)
		assert.Equal(t, int64(5), *file.FileSize)
		assert.Equal(t, &user.Ref{ID: f.member.ID, Name: f.member.Name}, file.UploadedBy)
		require.True(t, strings.HasPrefix(file.FileURL, f.conf.Uploads.URLPrefix+"/"), file.FileURL)
		assert.True(t, strings.HasSuffix(file.FileURL, ".txt"), file.FileURL)

		req, rec = newRequest(http.MethodGet, file.FileURL)
		f.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello", rec.Body.String())

		// deleting the task removes the stored bytes
		name := strings.TrimPrefix(file.FileURL, f.conf.Uploads.URLPrefix+"/")
		f.do(t, http.MethodDelete, f.path("/%d", a.ID), f.admin, nil, http.StatusOK)
		_, err := os.Stat(filepath.Join(f.conf.Uploads.Dir, name))
		assert.True(t, os.IsNotExist(err), "stat err = %v", err)
	})
}
