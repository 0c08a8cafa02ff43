package task

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/subject"
	"github.com/trezcool/kazi/core/team"
)

var (
	// errors
	ErrNotFound             = core.NewNotFoundError("task not found")
	ErrAssigneesNotFound    = core.NewNotFoundError("some assignees are not members of this team")
	ErrDependenciesNotFound = core.NewNotFoundError("some dependencies were not found in this team")
	ErrAdminOnly            = core.NewForbiddenError("only the team admin can manage tasks")
	ErrStatusForbidden      = core.NewForbiddenError("only the team admin or an assignee can change the task status")
	ErrBlocked              = core.NewConflictError("some tasks this task depends on are not completed")
	ErrHasDependents        = core.NewConflictError("other tasks depend on this task, remove those dependencies first")
	ErrFileTooLarge         = core.NewConflictError("file is too large")
	ErrSelfDependency       = core.NewBadRequestError("a task cannot depend on itself")
	ErrDependencyCycle      = core.NewBadRequestError("these dependencies would create a cycle")
)

type (
	Repository interface {
		// CreateTask places the task last in its team's order.
		CreateTask(ctx context.Context, t Task) (Task, error)
		GetTask(ctx context.Context, teamID, taskID int64) (Task, error)
		UpdateTask(ctx context.Context, t Task) (Task, error)
		DeleteTask(ctx context.Context, taskID int64) error
		// QueryTasksByID returns the tasks among ids that belong to teamID.
		QueryTasksByID(ctx context.Context, teamID int64, ids []int64) ([]Task, error)
		SetAssignees(ctx context.Context, taskID int64, userIDs []int64) error
		QueryAssigneeIDs(ctx context.Context, taskID int64) ([]int64, error)
		SetDependencies(ctx context.Context, taskID int64, dependsOnIDs []int64) error
		QueryDependencies(ctx context.Context, taskID int64) ([]DependencyRef, error)
		// QueryDependencyEdges maps every task of the team to the tasks it depends on.
		QueryDependencyEdges(ctx context.Context, teamID int64) (map[int64][]int64, error)
		CountDependents(ctx context.Context, taskID int64) (int, error)
		AddComment(ctx context.Context, c Comment) (Comment, error)
		AddFile(ctx context.Context, f File) (File, error)
		QueryFiles(ctx context.Context, taskID int64) ([]File, error)
		// QueryTaskDetails lists the tasks of a team by creation, with their relations resolved.
		QueryTaskDetails(ctx context.Context, teamID int64) ([]Details, error)
		GetTaskDetails(ctx context.Context, taskID int64) (Details, error)
	}

	Service interface {
		Create(ctx context.Context, teamID, userID int64, nt NewTask) (Details, error)
		UpdateStatus(ctx context.Context, teamID, taskID, userID int64, isCompleted bool) (Details, error)
		Update(ctx context.Context, teamID, taskID, userID int64, patch UpdateTask) (Details, error)
		Delete(ctx context.Context, teamID, taskID, userID int64) error
		AddComment(ctx context.Context, teamID, taskID, userID int64, nc NewComment) (Details, error)
		UploadFile(ctx context.Context, teamID, taskID, userID int64, nf NewFile) (Details, error)
		QueryForTeam(ctx context.Context, teamID, userID int64) ([]Details, error)
	}

	service struct {
		repo        Repository
		teamSvc     team.Service
		subjectSvc  subject.Service
		storage     core.FileStorage
		tx          core.TxRunner
		logger      core.Logger
		maxFileSize int64
		allowedExts []string
	}
)

func NewService(
	repo Repository,
	teamSvc team.Service,
	subjectSvc subject.Service,
	storage core.FileStorage,
	tx core.TxRunner,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &service{
		repo:        repo,
		teamSvc:     teamSvc,
		subjectSvc:  subjectSvc,
		storage:     storage,
		tx:          tx,
		logger:      logger,
		maxFileSize: conf.Uploads.MaxSize,
		allowedExts: conf.Uploads.AllowedExtensions,
	}
}

// adminMembership resolves the caller's membership and requires the admin role.
func (svc *service) adminMembership(ctx context.Context, teamID, userID int64) (team.Member, error) {
	m, err := svc.teamSvc.Membership(ctx, teamID, userID)
	if err != nil {
		return team.Member{}, err
	}
	if !m.IsAdmin() {
		return team.Member{}, ErrAdminOnly
	}
	return m, nil
}

// checkDeadline parses the deadline and bounds it by today and the subject's deadline.
func (svc *service) checkDeadline(ctx context.Context, subjectID int64, s *string) (*time.Time, error) {
	deadline, err := core.ParseDeadline("deadline", s)
	if err != nil || deadline == nil {
		return nil, err
	}
	sub, err := svc.subjectSvc.GetByID(ctx, subjectID)
	if err != nil {
		return nil, errors.Wrap(err, "getting subject")
	}
	if err = core.CheckDeadline(*deadline, sub.Deadline); err != nil {
		return nil, err
	}
	return deadline, nil
}

// checkAssignees requires every user in ids to be a member of the team.
func (svc *service) checkAssignees(ctx context.Context, teamID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	members, err := svc.teamSvc.Members(ctx, teamID)
	if err != nil {
		return errors.Wrap(err, "querying members")
	}
	memberIDs := make(map[int64]struct{}, len(members))
	for _, m := range members {
		memberIDs[m.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := memberIDs[id]; !ok {
			return ErrAssigneesNotFound
		}
	}
	return nil
}

// checkDependencies requires every task in ids to belong to the team.
func (svc *service) checkDependencies(ctx context.Context, teamID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tasks, err := svc.repo.QueryTasksByID(ctx, teamID, ids)
	if err != nil {
		return errors.Wrap(err, "querying dependencies")
	}
	if len(tasks) != len(ids) {
		return ErrDependenciesNotFound
	}
	return nil
}

func (svc *service) Create(ctx context.Context, teamID, userID int64, nt NewTask) (Details, error) {
	m, err := svc.adminMembership(ctx, teamID, userID)
	if err != nil {
		return Details{}, err
	}

	assigneeIDs := uniqueIDs(nt.AssigneeIDs)
	if len(assigneeIDs) == 0 {
		// nobody picked: the whole team is responsible
		members, err := svc.teamSvc.Members(ctx, teamID)
		if err != nil {
			return Details{}, errors.Wrap(err, "querying members")
		}
		for _, mbr := range members {
			assigneeIDs = append(assigneeIDs, mbr.ID)
		}
	} else if err = svc.checkAssignees(ctx, teamID, assigneeIDs); err != nil {
		return Details{}, err
	}

	dependencyIDs := uniqueIDs(nt.DependencyIDs)
	if err = svc.checkDependencies(ctx, teamID, dependencyIDs); err != nil {
		return Details{}, err
	}

	deadline, err := svc.checkDeadline(ctx, m.SubjectID, nt.Deadline)
	if err != nil {
		return Details{}, err
	}

	tsk := Task{
		TeamID:      teamID,
		Title:       nt.Title,
		Description: nt.Description,
		Deadline:    deadline,
		CreatedAt:   core.NowFunc().UTC(),
		CreatedByID: &userID,
	}
	err = svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if tsk, err = svc.repo.CreateTask(ctx, tsk); err != nil {
			return errors.Wrap(err, "creating task")
		}
		if err = svc.repo.SetAssignees(ctx, tsk.ID, assigneeIDs); err != nil {
			return errors.Wrap(err, "setting assignees")
		}
		return errors.Wrap(svc.repo.SetDependencies(ctx, tsk.ID, dependencyIDs), "setting dependencies")
	})
	if err != nil {
		return Details{}, err
	}
	return svc.details(ctx, tsk.ID)
}

func (svc *service) UpdateStatus(ctx context.Context, teamID, taskID, userID int64, isCompleted bool) (Details, error) {
	m, err := svc.teamSvc.Membership(ctx, teamID, userID)
	if err != nil {
		return Details{}, err
	}
	tsk, err := svc.repo.GetTask(ctx, teamID, taskID)
	if err != nil {
		return Details{}, err
	}

	if !m.IsAdmin() {
		assigneeIDs, err := svc.repo.QueryAssigneeIDs(ctx, taskID)
		if err != nil {
			return Details{}, errors.Wrap(err, "querying assignees")
		}
		if !containsID(assigneeIDs, userID) {
			return Details{}, ErrStatusForbidden
		}
	}

	if isCompleted {
		deps, err := svc.repo.QueryDependencies(ctx, taskID)
		if err != nil {
			return Details{}, errors.Wrap(err, "querying dependencies")
		}
		if !IsAvailable(deps) {
			return Details{}, ErrBlocked
		}
		now := core.NowFunc().UTC()
		tsk.IsCompleted = true
		tsk.CompletedByID = &userID
		tsk.CompletedAt = &now
	} else {
		tsk.IsCompleted = false
		tsk.CompletedByID = nil
		tsk.CompletedAt = nil
	}

	if _, err = svc.repo.UpdateTask(ctx, tsk); err != nil {
		return Details{}, errors.Wrap(err, "updating task")
	}
	return svc.details(ctx, taskID)
}

func (svc *service) Update(ctx context.Context, teamID, taskID, userID int64, patch UpdateTask) (Details, error) {
	m, err := svc.adminMembership(ctx, teamID, userID)
	if err != nil {
		return Details{}, err
	}
	tsk, err := svc.repo.GetTask(ctx, teamID, taskID)
	if err != nil {
		return Details{}, err
	}

	if patch.Title != nil {
		tsk.Title = *patch.Title
	}
	if patch.Description.Set {
		tsk.Description = patch.Description.Ptr()
	}
	if patch.Deadline.Set {
		if tsk.Deadline, err = svc.checkDeadline(ctx, m.SubjectID, patch.Deadline.Ptr()); err != nil {
			return Details{}, err
		}
	}

	var assigneeIDs, dependencyIDs []int64
	if patch.AssigneeIDs != nil {
		assigneeIDs = uniqueIDs(*patch.AssigneeIDs)
		if err = svc.checkAssignees(ctx, teamID, assigneeIDs); err != nil {
			return Details{}, err
		}
	}
	if patch.DependencyIDs != nil {
		dependencyIDs = uniqueIDs(*patch.DependencyIDs)
		if containsID(dependencyIDs, taskID) {
			return Details{}, ErrSelfDependency
		}
		if err = svc.checkDependencies(ctx, teamID, dependencyIDs); err != nil {
			return Details{}, err
		}
		edges, err := svc.repo.QueryDependencyEdges(ctx, teamID)
		if err != nil {
			return Details{}, errors.Wrap(err, "querying dependency edges")
		}
		if createsCycle(edges, taskID, dependencyIDs) {
			return Details{}, ErrDependencyCycle
		}
	}

	err = svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := svc.repo.UpdateTask(ctx, tsk); err != nil {
			return errors.Wrap(err, "updating task")
		}
		if patch.AssigneeIDs != nil {
			if err := svc.repo.SetAssignees(ctx, taskID, assigneeIDs); err != nil {
				return errors.Wrap(err, "setting assignees")
			}
		}
		if patch.DependencyIDs != nil {
			return errors.Wrap(svc.repo.SetDependencies(ctx, taskID, dependencyIDs), "setting dependencies")
		}
		return nil
	})
	if err != nil {
		return Details{}, err
	}
	return svc.details(ctx, taskID)
}

func (svc *service) Delete(ctx context.Context, teamID, taskID, userID int64) error {
	if _, err := svc.adminMembership(ctx, teamID, userID); err != nil {
		return err
	}
	if _, err := svc.repo.GetTask(ctx, teamID, taskID); err != nil {
		return err
	}

	dependents, err := svc.repo.CountDependents(ctx, taskID)
	if err != nil {
		return errors.Wrap(err, "counting dependents")
	}
	if dependents > 0 {
		return ErrHasDependents
	}

	files, err := svc.repo.QueryFiles(ctx, taskID)
	if err != nil {
		return errors.Wrap(err, "querying files")
	}
	if err = svc.repo.DeleteTask(ctx, taskID); err != nil {
		return errors.Wrap(err, "deleting task")
	}

	// the rows are gone; leftover bytes are only logged
	for _, f := range files {
		if err := svc.storage.Delete(ctx, f.FileURL); err != nil {
			svc.logger.Warn("deleting stored file", errors.Wrap(err, f.FileURL))
		}
	}
	return nil
}

func (svc *service) AddComment(ctx context.Context, teamID, taskID, userID int64, nc NewComment) (Details, error) {
	if _, err := svc.teamSvc.Membership(ctx, teamID, userID); err != nil {
		return Details{}, err
	}
	if _, err := svc.repo.GetTask(ctx, teamID, taskID); err != nil {
		return Details{}, err
	}

	_, err := svc.repo.AddComment(ctx, Comment{
		TaskID:    taskID,
		AuthorID:  userID,
		Text:      nc.Text,
		CreatedAt: core.NowFunc().UTC(),
	})
	if err != nil {
		return Details{}, errors.Wrap(err, "adding comment")
	}
	return svc.details(ctx, taskID)
}

// checkFile applies the upload size limit and extension allow-list.
func (svc *service) checkFile(nf NewFile) error {
	if nf.Size > svc.maxFileSize {
		return core.NewConflictError(fmt.Sprintf("%s (max %dMB)", ErrFileTooLarge.Message, svc.maxFileSize/(1024*1024)))
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(nf.Name)), ".")
	for _, allowed := range svc.allowedExts {
		if ext != "" && ext == allowed {
			return nil
		}
	}
	return core.NewConflictError("file type not allowed, allowed types: " + strings.Join(svc.allowedExts, ", "))
}

func (svc *service) UploadFile(ctx context.Context, teamID, taskID, userID int64, nf NewFile) (Details, error) {
	if err := svc.checkFile(nf); err != nil {
		return Details{}, err
	}
	if _, err := svc.teamSvc.Membership(ctx, teamID, userID); err != nil {
		return Details{}, err
	}
	if _, err := svc.repo.GetTask(ctx, teamID, taskID); err != nil {
		return Details{}, err
	}

	stored, err := svc.storage.Save(ctx, nf.Name, nf.Content)
	if err != nil {
		return Details{}, errors.Wrap(err, "storing file")
	}
	_, err = svc.repo.AddFile(ctx, File{
		TaskID:       taskID,
		UploadedByID: &userID,
		FileName:     nf.Name,
		FileURL:      stored.URL,
		FileSize:     &stored.Size,
		CreatedAt:    core.NowFunc().UTC(),
	})
	if err != nil {
		if dErr := svc.storage.Delete(ctx, stored.URL); dErr != nil {
			svc.logger.Warn("deleting orphan file", errors.Wrap(dErr, stored.URL))
		}
		return Details{}, errors.Wrap(err, "adding file")
	}
	return svc.details(ctx, taskID)
}

func (svc *service) QueryForTeam(ctx context.Context, teamID, userID int64) ([]Details, error) {
	if _, err := svc.teamSvc.Membership(ctx, teamID, userID); err != nil {
		return nil, err
	}
	tasks, err := svc.repo.QueryTaskDetails(ctx, teamID)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		tasks[i].IsAvailable = IsAvailable(tasks[i].Dependencies)
	}
	return tasks, nil
}

func (svc *service) details(ctx context.Context, taskID int64) (Details, error) {
	d, err := svc.repo.GetTaskDetails(ctx, taskID)
	if err != nil {
		return Details{}, err
	}
	d.IsAvailable = IsAvailable(d.Dependencies)
	return d, nil
}

func containsID(ids []int64, id int64) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}
