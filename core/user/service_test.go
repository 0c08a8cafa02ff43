package user_test

import (
	"context"
	"io"
	"log"
	"net/url"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/user"
	appfs "github.com/trezcool/kazi/fs"
	emailsvc "github.com/trezcool/kazi/services/email"
	logsvc "github.com/trezcool/kazi/services/logger"
	inmemdb "github.com/trezcool/kazi/storage/database/inmem"
	testutil "github.com/trezcool/kazi/tests"
)

func setup(t *testing.T) (user.Service, user.Repository, *emailsvc.ConsoleServiceMock) {
	conf := testutil.NewConfig(t)
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	require.NoError(t, core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, true))

	repo := inmemdb.NewUserRepository(inmemdb.NewDB())
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	return user.NewService(repo, mailSvc, conf), repo, mailSvc
}

func TestService_RegisterAuthenticate(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	usr, err := svc.Register(ctx, user.NewUser{Email: " Ann@Test.CD ", FirstName: "Ann", LastName: "Lee", Password: "pwd"})
	require.NoError(t, err)
	assert.Equal(t, "ann@test.cd", usr.Email)
	assert.Equal(t, "Ann Lee", usr.Name)
	assert.Equal(t, user.RoleStudent, usr.Role)
	assert.Nil(t, usr.LastLogin)

	_, err = svc.Register(ctx, user.NewUser{Email: "ann@test.cd", FirstName: "Ann", Password: "pwd"})
	assert.Equal(t, user.ErrEmailExists, errors.Cause(err))

	_, err = svc.Authenticate(ctx, "ann@test.cd", "wrong")
	assert.Equal(t, user.ErrInvalidCredentials, errors.Cause(err))
	_, err = svc.Authenticate(ctx, "nobody@test.cd", "pwd")
	assert.Equal(t, user.ErrInvalidCredentials, errors.Cause(err))

	usr, err = svc.Authenticate(ctx, "ANN@test.cd", "pwd")
	require.NoError(t, err)
	assert.NotNil(t, usr.LastLogin)
}

func TestService_CreateHost(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	student := testutil.CreateUser(t, repo, "Student", "student@test.cd", "old", user.RoleStudent)

	host, err := svc.CreateHost(ctx, "Host@Test.cd", " Host ", "pwd")
	require.NoError(t, err)
	assert.Equal(t, "host@test.cd", host.Email)
	assert.Equal(t, "Host", host.Name)
	assert.True(t, host.IsHost())

	promoted, err := svc.CreateHost(ctx, student.Email, "", "new")
	require.NoError(t, err)
	assert.Equal(t, student.ID, promoted.ID)
	assert.Equal(t, "Student", promoted.Name)
	assert.True(t, promoted.IsHost())
	assert.NoError(t, promoted.CheckPassword("new"))
}

func TestService_PasswordReset(t *testing.T) {
	svc, repo, mailSvc := setup(t)
	ctx := context.Background()
	usr := testutil.CreateUser(t, repo, "Ann", "ann@test.cd", "old", user.RoleStudent)

	assert.Equal(t, user.ErrNotFound, errors.Cause(svc.RequestPasswordReset(ctx, "nobody@test.cd")))
	assert.Empty(t, mailSvc.SentMessages())

	require.NoError(t, svc.RequestPasswordReset(ctx, usr.Email))
	sent := mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, usr.Email, sent[0].To[0].Address)

	link, err := url.Parse(sent[0].TemplateData.(map[string]interface{})["URL"].(string))
	require.NoError(t, err)
	assert.Equal(t, "/password-reset/confirm", link.Path)
	uid, token := link.Query().Get("uid"), link.Query().Get("token")

	data := user.ResetUserPassword{UID: uid, Token: token, Password: "new", PasswordConfirm: "new"}
	bad := data
	bad.UID = user.EncodeUID(user.User{ID: 999})
	assert.Equal(t, user.ErrInvalidResetLink, errors.Cause(svc.ResetPassword(ctx, bad)))
	bad = data
	bad.Token = "lol"
	assert.Equal(t, user.ErrInvalidResetLink, errors.Cause(svc.ResetPassword(ctx, bad)))

	require.NoError(t, svc.ResetPassword(ctx, data))
	_, err = svc.Authenticate(ctx, usr.Email, "new")
	require.NoError(t, err)

	// the token is bound to the old password hash
	assert.Equal(t, user.ErrInvalidResetLink, errors.Cause(svc.ResetPassword(ctx, data)))
}
