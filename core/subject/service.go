package subject

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("subject not found")
	ErrCodeNotFound       = core.NewNotFoundError("no subject matches this join code")
	ErrNotParticipant     = core.NewNotFoundError("you are not a participant of this subject")
	ErrAlreadyParticipant = core.NewConflictError("you already joined this subject")
	ErrHostOnly           = core.NewForbiddenError("only hosts can create subjects")
)

type (
	// GetFilter looks a single Subject up by ID or by join code; the first non-zero field wins.
	GetFilter struct {
		ID       int64
		JoinCode string
	}

	Repository interface {
		// CreateSubject returns core.ErrDuplicateJoinCode when the join code is taken.
		CreateSubject(ctx context.Context, sub Subject) (Subject, error)
		GetSubject(ctx context.Context, filter GetFilter) (Subject, error)
		DeleteSubject(ctx context.Context, id int64) error
		// AddParticipant returns ErrAlreadyParticipant when the user already joined the subject.
		AddParticipant(ctx context.Context, p Participant) (Participant, error)
		GetParticipant(ctx context.Context, subjectID, userID int64) (Participant, error)
		RemoveParticipant(ctx context.Context, subjectID, userID int64) error
		// QuerySubjectsForUser lists, by ID, the subjects userID created or participates in.
		QuerySubjectsForUser(ctx context.Context, userID int64) ([]Details, error)
	}

	Service interface {
		Create(ctx context.Context, userID int64, ns NewSubject) (Subject, error)
		Join(ctx context.Context, userID int64, joinCode string) (Subject, error)
		Leave(ctx context.Context, subjectID, userID int64) (core.LeaveResult, error)
		QueryForUser(ctx context.Context, userID int64) ([]Details, error)
		GetByID(ctx context.Context, id int64) (Subject, error)
		// EnsureParticipant enrolls userID in the subject unless already enrolled.
		EnsureParticipant(ctx context.Context, subjectID, userID int64) error
	}

	service struct {
		repo    Repository
		usrRepo user.Repository
		tx      core.TxRunner
	}
)

func NewService(repo Repository, usrRepo user.Repository, tx core.TxRunner) Service {
	return &service{repo: repo, usrRepo: usrRepo, tx: tx}
}

func (svc *service) Create(ctx context.Context, userID int64, ns NewSubject) (Subject, error) {
	usr, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: userID})
	if err != nil {
		return Subject{}, err
	}
	if !usr.IsHost() {
		return Subject{}, ErrHostOnly
	}

	deadline, err := core.ParseDeadline("deadline", ns.Deadline)
	if err != nil {
		return Subject{}, err
	}
	if deadline != nil {
		if err = core.CheckDeadline(*deadline, nil); err != nil {
			return Subject{}, err
		}
		eod := core.EndOfDay(*deadline)
		deadline = &eod
	}

	sub := Subject{
		Title:       ns.Title,
		Description: ns.Description,
		Deadline:    deadline,
		CreatedByID: &usr.ID,
		CreatedAt:   core.NowFunc().UTC(),
	}
	err = svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		err := core.IssueJoinCode(core.SubjectJoinCodeLen, func(code string) error {
			sub.JoinCode = code
			created, err := svc.repo.CreateSubject(ctx, sub)
			if err == nil {
				sub = created
			}
			return err
		})
		if err != nil {
			return errors.Wrap(err, "creating subject")
		}

		_, err = svc.repo.AddParticipant(ctx, Participant{SubjectID: sub.ID, UserID: usr.ID, JoinedAt: sub.CreatedAt})
		return errors.Wrap(err, "enrolling creator")
	})
	if err != nil {
		return Subject{}, err
	}
	return sub, nil
}

func (svc *service) Join(ctx context.Context, userID int64, joinCode string) (Subject, error) {
	joinCode = core.NormalizeJoinCode(joinCode)
	if joinCode == "" {
		return Subject{}, ErrCodeNotFound
	}
	sub, err := svc.repo.GetSubject(ctx, GetFilter{JoinCode: joinCode})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Subject{}, ErrCodeNotFound
		}
		return Subject{}, err
	}
	if _, err = svc.usrRepo.GetUser(ctx, user.GetFilter{ID: userID}); err != nil {
		return Subject{}, err
	}

	switch _, err = svc.repo.GetParticipant(ctx, sub.ID, userID); {
	case err == nil:
		return Subject{}, ErrAlreadyParticipant
	case errors.Cause(err) != ErrNotParticipant:
		return Subject{}, err
	}

	// concurrent joins are caught by the (user, subject) constraint
	if _, err = svc.repo.AddParticipant(ctx, Participant{SubjectID: sub.ID, UserID: userID, JoinedAt: core.NowFunc().UTC()}); err != nil {
		return Subject{}, err
	}
	return sub, nil
}

func (svc *service) Leave(ctx context.Context, subjectID, userID int64) (core.LeaveResult, error) {
	sub, err := svc.repo.GetSubject(ctx, GetFilter{ID: subjectID})
	if err != nil {
		return core.LeaveResult{}, err
	}
	if _, err = svc.repo.GetParticipant(ctx, subjectID, userID); err != nil {
		return core.LeaveResult{}, err
	}

	if sub.CreatedByID != nil && *sub.CreatedByID == userID {
		if err = svc.repo.DeleteSubject(ctx, subjectID); err != nil {
			return core.LeaveResult{}, errors.Wrap(err, "deleting subject")
		}
		return core.LeaveResult{Success: true, Deleted: true}, nil
	}

	if err = svc.repo.RemoveParticipant(ctx, subjectID, userID); err != nil {
		return core.LeaveResult{}, errors.Wrap(err, "removing participant")
	}
	return core.LeaveResult{Success: true}, nil
}

func (svc *service) QueryForUser(ctx context.Context, userID int64) ([]Details, error) {
	return svc.repo.QuerySubjectsForUser(ctx, userID)
}

func (svc *service) GetByID(ctx context.Context, id int64) (Subject, error) {
	return svc.repo.GetSubject(ctx, GetFilter{ID: id})
}

func (svc *service) EnsureParticipant(ctx context.Context, subjectID, userID int64) error {
	_, err := svc.repo.GetParticipant(ctx, subjectID, userID)
	if errors.Cause(err) != ErrNotParticipant {
		return err
	}
	_, err = svc.repo.AddParticipant(ctx, Participant{SubjectID: subjectID, UserID: userID, JoinedAt: core.NowFunc().UTC()})
	if errors.Cause(err) == ErrAlreadyParticipant {
		return nil
	}
	return err
}
