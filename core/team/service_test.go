package team_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/subject"
	"github.com/trezcool/kazi/core/team"
	"github.com/trezcool/kazi/core/user"
	inmemdb "github.com/trezcool/kazi/storage/database/inmem"
	testutil "github.com/trezcool/kazi/tests"
)

type fixture struct {
	svc        team.Service
	subjectSvc subject.Service
	host       user.User
	alice      user.User
	bob        user.User
	carol      user.User
	sub        subject.Subject
}

func setup(t *testing.T) fixture {
	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	tx := inmemdb.NewTxRunner(db)
	subjectSvc := subject.NewService(inmemdb.NewSubjectRepository(db), usrRepo, tx)

	f := fixture{
		svc:        team.NewService(inmemdb.NewTeamRepository(db), subjectSvc, usrRepo, tx),
		subjectSvc: subjectSvc,
		host:       testutil.CreateUser(t, usrRepo, "Host", "host@test.cd", "", user.RoleHost),
		alice:      testutil.CreateUser(t, usrRepo, "Alice", "alice@test.cd", "", user.RoleStudent),
		bob:        testutil.CreateUser(t, usrRepo, "Bob", "bob@test.cd", "", user.RoleStudent),
		carol:      testutil.CreateUser(t, usrRepo, "Carol", "carol@test.cd", "", user.RoleStudent),
	}
	deadline := time.Now().UTC().AddDate(0, 0, 10).Format("2006-01-02")
	sub, err := subjectSvc.Create(context.Background(), f.host.ID, subject.NewSubject{Title: "Algorithms", Deadline: &deadline})
	require.NoError(t, err)
	f.sub = sub
	return f
}

func TestService_Create(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tooLate := time.Now().UTC().AddDate(0, 0, 11).Format("2006-01-02")
	inTime := time.Now().UTC().AddDate(0, 0, 10).Format("2006-01-02")

	_, err := f.svc.Create(ctx, f.alice.ID, team.NewTeam{SubjectID: 999, Name: "Ghosts"})
	assert.Equal(t, subject.ErrNotFound, errors.Cause(err))

	_, err = f.svc.Create(ctx, f.alice.ID, team.NewTeam{SubjectID: f.sub.ID, Name: "Late", Deadline: &tooLate})
	assert.Equal(t, core.ErrDeadlineAfterSubject, errors.Cause(err))

	tm, err := f.svc.Create(ctx, f.alice.ID, team.NewTeam{SubjectID: f.sub.ID, Name: "Sorters", Deadline: &inTime})
	require.NoError(t, err)
	assert.Len(t, tm.JoinCode, core.TeamJoinCodeLen)
	assert.Equal(t, &f.alice.ID, tm.AdminID)

	// the creator became a participant of the subject and the team admin
	subjects, err := f.subjectSvc.QueryForUser(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Len(t, subjects, 1)

	details, err := f.svc.Get(ctx, tm.ID, f.alice.ID)
	require.NoError(t, err)
	assert.True(t, details.IsAdmin)
	assert.Equal(t, []team.MemberRef{{ID: f.alice.ID, Name: "Alice", Role: team.RoleAdmin}}, details.Members)

	_, err = f.svc.Create(ctx, f.alice.ID, team.NewTeam{SubjectID: f.sub.ID, Name: "Second"})
	assert.Equal(t, team.ErrAlreadyInSubject, errors.Cause(err))
}

func TestService_Join(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tm, err := f.svc.Create(ctx, f.alice.ID, team.NewTeam{SubjectID: f.sub.ID, Name: "Sorters"})
	require.NoError(t, err)
	other, err := f.svc.Create(ctx, f.carol.ID, team.NewTeam{SubjectID: f.sub.ID, Name: "Searchers"})
	require.NoError(t, err)

	_, err = f.svc.Join(ctx, f.bob.ID, "")
	assert.Equal(t, team.ErrCodeNotFound, errors.Cause(err))
	_, err = f.svc.Join(ctx, f.bob.ID, "ZZZZZZZZ")
	assert.Equal(t, team.ErrCodeNotFound, errors.Cause(err))

	joined, err := f.svc.Join(ctx, f.bob.ID, tm.JoinCode)
	require.NoError(t, err)
	assert.Equal(t, tm.ID, joined.ID)

	_, err = f.svc.Join(ctx, f.bob.ID, tm.JoinCode)
	assert.Equal(t, team.ErrAlreadyMember, errors.Cause(err))
	_, err = f.svc.Join(ctx, f.bob.ID, other.JoinCode)
	assert.Equal(t, team.ErrAlreadyInSubject, errors.Cause(err))

	members, err := f.svc.Members(ctx, tm.ID)
	require.NoError(t, err)
	assert.Equal(t, []team.MemberRef{
		{ID: f.alice.ID, Name: "Alice", Role: team.RoleAdmin},
		{ID: f.bob.ID, Name: "Bob", Role: team.RoleMember},
	}, members)

	// joining a team enrolls in its subject
	subjects, err := f.subjectSvc.QueryForUser(ctx, f.bob.ID)
	require.NoError(t, err)
	if assert.Len(t, subjects, 1) {
		assert.Len(t, subjects[0].Participants, 4)
		assert.Len(t, subjects[0].Teams, 2)
	}

	memberships, err := f.svc.QueryForUser(ctx, f.bob.ID)
	require.NoError(t, err)
	if assert.Len(t, memberships, 1) {
		assert.Equal(t, team.RoleMember, memberships[0].Role)
		assert.Equal(t, tm.ID, memberships[0].Team.ID)
		assert.Equal(t, f.sub.ID, memberships[0].Team.Subject.ID)
	}
}

func TestService_Membership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tm, err := f.svc.Create(ctx, f.alice.ID, team.NewTeam{SubjectID: f.sub.ID, Name: "Sorters"})
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, f.bob.ID, tm.JoinCode)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, tm.ID, f.carol.ID)
	assert.Equal(t, team.ErrAccessDenied, errors.Cause(err))

	details, err := f.svc.Get(ctx, tm.ID, f.bob.ID)
	require.NoError(t, err)
	assert.False(t, details.IsAdmin)

	tests := []struct {
		name    string
		member  int64
		admin   int64
		wantErr error
	}{
		{name: "outsider", member: f.bob.ID, admin: f.carol.ID, wantErr: team.ErrAccessDenied},
		{name: "not admin", member: f.alice.ID, admin: f.bob.ID, wantErr: team.ErrAdminOnly},
		{name: "self", member: f.alice.ID, admin: f.alice.ID, wantErr: team.ErrRemoveSelf},
		{name: "not a member", member: f.carol.ID, admin: f.alice.ID, wantErr: team.ErrNotMember},
		{name: "removed", member: f.bob.ID, admin: f.alice.ID},
		{name: "already removed", member: f.bob.ID, admin: f.alice.ID, wantErr: team.ErrNotMember},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.RemoveMember(ctx, tm.ID, tt.member, tt.admin)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestService_Leave(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tm, err := f.svc.Create(ctx, f.alice.ID, team.NewTeam{SubjectID: f.sub.ID, Name: "Sorters"})
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, f.bob.ID, tm.JoinCode)
	require.NoError(t, err)

	_, err = f.svc.Leave(ctx, tm.ID, f.carol.ID)
	assert.Equal(t, team.ErrAccessDenied, errors.Cause(err))

	res, err := f.svc.Leave(ctx, tm.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Equal(t, core.LeaveResult{Success: true}, res)

	// bob may now create a team in the subject
	_, err = f.svc.Create(ctx, f.bob.ID, team.NewTeam{SubjectID: f.sub.ID, Name: "Bob's"})
	require.NoError(t, err)

	res, err = f.svc.Leave(ctx, tm.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, core.LeaveResult{Success: true, Deleted: true}, res)

	_, err = f.svc.Join(ctx, f.carol.ID, tm.JoinCode)
	assert.Equal(t, team.ErrCodeNotFound, errors.Cause(err))
	memberships, err := f.svc.QueryForUser(ctx, f.alice.ID)
	require.NoError(t, err)
	assert.Empty(t, memberships)
}
