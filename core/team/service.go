package team

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/subject"
	"github.com/trezcool/kazi/core/user"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("team not found")
	ErrCodeNotFound     = core.NewNotFoundError("no team matches this join code")
	ErrAccessDenied     = core.NewNotFoundError("team not found or access denied")
	ErrNotMember        = core.NewNotFoundError("member not found in this team")
	ErrAlreadyMember    = core.NewConflictError("you are already in this team")
	ErrAlreadyInSubject = core.NewConflictError("you already belong to a team in this subject")
	ErrAdminOnly        = core.NewForbiddenError("only the team admin can remove members")
	ErrRemoveSelf       = core.NewForbiddenError("the team admin cannot remove themselves")
)

type (
	// GetFilter looks a single Team up by ID or by join code; the first non-zero field wins.
	GetFilter struct {
		ID       int64
		JoinCode string
	}

	Repository interface {
		// CreateTeam returns core.ErrDuplicateJoinCode when the join code is taken.
		CreateTeam(ctx context.Context, t Team) (Team, error)
		GetTeam(ctx context.Context, filter GetFilter) (Team, error)
		DeleteTeam(ctx context.Context, id int64) error
		// AddMember returns ErrAlreadyInSubject when the user already has a team in the subject.
		AddMember(ctx context.Context, m Member) (Member, error)
		GetMember(ctx context.Context, teamID, userID int64) (Member, error)
		GetSubjectMember(ctx context.Context, subjectID, userID int64) (Member, error)
		RemoveMember(ctx context.Context, teamID, userID int64) error
		// QueryMembers lists the members of a team in joining order.
		QueryMembers(ctx context.Context, teamID int64) ([]MemberRef, error)
		QueryTeamsForUser(ctx context.Context, userID int64) ([]Membership, error)
		GetSummary(ctx context.Context, teamID int64) (Summary, error)
	}

	Service interface {
		Create(ctx context.Context, userID int64, nt NewTeam) (Team, error)
		Join(ctx context.Context, userID int64, joinCode string) (Team, error)
		Leave(ctx context.Context, teamID, userID int64) (core.LeaveResult, error)
		RemoveMember(ctx context.Context, teamID, memberUserID, adminUserID int64) error
		QueryForUser(ctx context.Context, userID int64) ([]Membership, error)
		Get(ctx context.Context, teamID, userID int64) (Details, error)
		// Membership returns ErrAccessDenied unless userID is a member of the team.
		Membership(ctx context.Context, teamID, userID int64) (Member, error)
		Members(ctx context.Context, teamID int64) ([]MemberRef, error)
	}

	service struct {
		repo       Repository
		subjectSvc subject.Service
		usrRepo    user.Repository
		tx         core.TxRunner
	}
)

func NewService(repo Repository, subjectSvc subject.Service, usrRepo user.Repository, tx core.TxRunner) Service {
	return &service{repo: repo, subjectSvc: subjectSvc, usrRepo: usrRepo, tx: tx}
}

func (svc *service) Create(ctx context.Context, userID int64, nt NewTeam) (Team, error) {
	sub, err := svc.subjectSvc.GetByID(ctx, nt.SubjectID)
	if err != nil {
		return Team{}, err
	}
	if _, err = svc.usrRepo.GetUser(ctx, user.GetFilter{ID: userID}); err != nil {
		return Team{}, err
	}

	switch _, err = svc.repo.GetSubjectMember(ctx, sub.ID, userID); {
	case err == nil:
		return Team{}, ErrAlreadyInSubject
	case errors.Cause(err) != ErrNotMember:
		return Team{}, err
	}

	deadline, err := core.ParseDeadline("deadline", nt.Deadline)
	if err != nil {
		return Team{}, err
	}
	if deadline != nil {
		if err = core.CheckDeadline(*deadline, sub.Deadline); err != nil {
			return Team{}, err
		}
	}

	tm := Team{
		Name:      nt.Name,
		SubjectID: sub.ID,
		AdminID:   &userID,
		Deadline:  deadline,
		CreatedAt: core.NowFunc().UTC(),
	}
	err = svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := svc.subjectSvc.EnsureParticipant(ctx, sub.ID, userID); err != nil {
			return errors.Wrap(err, "enrolling in subject")
		}

		err := core.IssueJoinCode(core.TeamJoinCodeLen, func(code string) error {
			tm.JoinCode = code
			created, err := svc.repo.CreateTeam(ctx, tm)
			if err == nil {
				tm = created
			}
			return err
		})
		if err != nil {
			return errors.Wrap(err, "creating team")
		}

		_, err = svc.repo.AddMember(ctx, Member{
			TeamID:    tm.ID,
			UserID:    userID,
			SubjectID: sub.ID,
			Role:      RoleAdmin,
			JoinedAt:  tm.CreatedAt,
		})
		return err
	})
	if err != nil {
		return Team{}, err
	}
	return tm, nil
}

func (svc *service) Join(ctx context.Context, userID int64, joinCode string) (Team, error) {
	joinCode = core.NormalizeJoinCode(joinCode)
	if joinCode == "" {
		return Team{}, ErrCodeNotFound
	}
	tm, err := svc.repo.GetTeam(ctx, GetFilter{JoinCode: joinCode})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Team{}, ErrCodeNotFound
		}
		return Team{}, err
	}
	if _, err = svc.usrRepo.GetUser(ctx, user.GetFilter{ID: userID}); err != nil {
		return Team{}, err
	}

	switch m, err := svc.repo.GetSubjectMember(ctx, tm.SubjectID, userID); {
	case err == nil && m.TeamID == tm.ID:
		return Team{}, ErrAlreadyMember
	case err == nil:
		return Team{}, ErrAlreadyInSubject
	case errors.Cause(err) != ErrNotMember:
		return Team{}, err
	}

	err = svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := svc.subjectSvc.EnsureParticipant(ctx, tm.SubjectID, userID); err != nil {
			return errors.Wrap(err, "enrolling in subject")
		}
		_, err := svc.repo.AddMember(ctx, Member{
			TeamID:    tm.ID,
			UserID:    userID,
			SubjectID: tm.SubjectID,
			Role:      RoleMember,
			JoinedAt:  core.NowFunc().UTC(),
		})
		return err
	})
	if err != nil {
		return Team{}, err
	}
	return tm, nil
}

func (svc *service) Leave(ctx context.Context, teamID, userID int64) (core.LeaveResult, error) {
	tm, err := svc.repo.GetTeam(ctx, GetFilter{ID: teamID})
	if err != nil {
		return core.LeaveResult{}, err
	}
	if _, err = svc.Membership(ctx, teamID, userID); err != nil {
		return core.LeaveResult{}, err
	}

	if tm.AdminID != nil && *tm.AdminID == userID {
		if err = svc.repo.DeleteTeam(ctx, teamID); err != nil {
			return core.LeaveResult{}, errors.Wrap(err, "deleting team")
		}
		return core.LeaveResult{Success: true, Deleted: true}, nil
	}

	if err = svc.repo.RemoveMember(ctx, teamID, userID); err != nil {
		return core.LeaveResult{}, errors.Wrap(err, "removing member")
	}
	return core.LeaveResult{Success: true}, nil
}

func (svc *service) RemoveMember(ctx context.Context, teamID, memberUserID, adminUserID int64) error {
	adm, err := svc.Membership(ctx, teamID, adminUserID)
	if err != nil {
		return err
	}
	if !adm.IsAdmin() {
		return ErrAdminOnly
	}
	if memberUserID == adminUserID {
		return ErrRemoveSelf
	}
	if _, err = svc.repo.GetMember(ctx, teamID, memberUserID); err != nil {
		return err
	}
	return errors.Wrap(svc.repo.RemoveMember(ctx, teamID, memberUserID), "removing member")
}

func (svc *service) QueryForUser(ctx context.Context, userID int64) ([]Membership, error) {
	return svc.repo.QueryTeamsForUser(ctx, userID)
}

func (svc *service) Get(ctx context.Context, teamID, userID int64) (Details, error) {
	m, err := svc.Membership(ctx, teamID, userID)
	if err != nil {
		return Details{}, err
	}
	summary, err := svc.repo.GetSummary(ctx, teamID)
	if err != nil {
		return Details{}, err
	}
	return Details{Summary: summary, IsAdmin: m.IsAdmin()}, nil
}

func (svc *service) Membership(ctx context.Context, teamID, userID int64) (Member, error) {
	m, err := svc.repo.GetMember(ctx, teamID, userID)
	if err != nil {
		if errors.Cause(err) == ErrNotMember {
			return Member{}, ErrAccessDenied
		}
		return Member{}, err
	}
	return m, nil
}

func (svc *service) Members(ctx context.Context, teamID int64) ([]MemberRef, error) {
	return svc.repo.QueryMembers(ctx, teamID)
}
