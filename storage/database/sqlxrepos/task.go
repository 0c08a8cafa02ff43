package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/kazi/core/task"
	"github.com/trezcool/kazi/core/user"
)

const taskColumns = `id, team_id, title, description, deadline, is_completed, "order", created_at, created_by,
	completed_by, completed_at`

type (
	taskRow struct {
		ID          int64       `db:"id" boil:"id"`
		TeamID      int64       `db:"team_id" boil:"team_id"`
		Title       string      `db:"title" boil:"title"`
		Description null.String `db:"description" boil:"description"`
		Deadline    null.Time   `db:"deadline" boil:"deadline"`
		IsCompleted bool        `db:"is_completed" boil:"is_completed"`
		Order       int         `db:"order" boil:"order"`
		CreatedAt   time.Time   `db:"created_at" boil:"created_at"`
		CreatedBy   null.Int64  `db:"created_by" boil:"created_by"`
		CompletedBy null.Int64  `db:"completed_by" boil:"completed_by"`
		CompletedAt null.Time   `db:"completed_at" boil:"completed_at"`
	}

	fileRow struct {
		ID         int64      `db:"id"`
		TaskID     int64      `db:"task_id"`
		UploadedBy null.Int64 `db:"uploaded_by"`
		FileName   string     `db:"file_name"`
		FileURL    string     `db:"file_url"`
		FileSize   null.Int64 `db:"file_size"`
		CreatedAt  time.Time  `db:"created_at"`
	}

	edgeRow struct {
		TaskID      int64 `db:"task_id"`
		DependsOnID int64 `db:"depends_on_id"`
	}
)

// Team board read model, bound with sqlboiler.
type (
	boardTaskRow struct {
		ID              int64       `boil:"id"`
		TeamID          int64       `boil:"team_id"`
		Title           string      `boil:"title"`
		Description     null.String `boil:"description"`
		Deadline        null.Time   `boil:"deadline"`
		IsCompleted     bool        `boil:"is_completed"`
		Order           int         `boil:"order"`
		CreatedAt       time.Time   `boil:"created_at"`
		CreatedBy       null.Int64  `boil:"created_by"`
		CompletedBy     null.Int64  `boil:"completed_by"`
		CompletedAt     null.Time   `boil:"completed_at"`
		CompletedByName null.String `boil:"completed_by_name"`
	}

	boardAssigneeRow struct {
		TaskID int64  `boil:"task_id"`
		UserID int64  `boil:"user_id"`
		Name   string `boil:"name"`
	}

	boardDependencyRow struct {
		TaskID      int64  `boil:"task_id"`
		ID          int64  `boil:"id"`
		Title       string `boil:"title"`
		IsCompleted bool   `boil:"is_completed"`
	}

	boardCommentRow struct {
		ID         int64     `boil:"id"`
		TaskID     int64     `boil:"task_id"`
		Text       string    `boil:"text"`
		AuthorID   int64     `boil:"author_id"`
		AuthorName string    `boil:"author_name"`
		CreatedAt  time.Time `boil:"created_at"`
	}

	boardFileRow struct {
		ID           int64       `boil:"id"`
		TaskID       int64       `boil:"task_id"`
		FileName     string      `boil:"file_name"`
		FileURL      string      `boil:"file_url"`
		FileSize     null.Int64  `boil:"file_size"`
		UploadedBy   null.Int64  `boil:"uploaded_by"`
		UploaderName null.String `boil:"uploader_name"`
		CreatedAt    time.Time   `boil:"created_at"`
	}
)

func (r taskRow) unpack() task.Task {
	return task.Task{
		ID:            r.ID,
		TeamID:        r.TeamID,
		Title:         r.Title,
		Description:   r.Description.Ptr(),
		Deadline:      utcPtr(r.Deadline),
		IsCompleted:   r.IsCompleted,
		Order:         r.Order,
		CreatedAt:     r.CreatedAt.UTC(),
		CreatedByID:   r.CreatedBy.Ptr(),
		CompletedByID: r.CompletedBy.Ptr(),
		CompletedAt:   utcPtr(r.CompletedAt),
	}
}

func (r fileRow) unpack() task.File {
	return task.File{
		ID:           r.ID,
		TaskID:       r.TaskID,
		UploadedByID: r.UploadedBy.Ptr(),
		FileName:     r.FileName,
		FileURL:      r.FileURL,
		FileSize:     r.FileSize.Ptr(),
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func (r boardTaskRow) unpack() task.Details {
	return task.Details{
		Task: taskRow{
			ID:          r.ID,
			TeamID:      r.TeamID,
			Title:       r.Title,
			Description: r.Description,
			Deadline:    r.Deadline,
			IsCompleted: r.IsCompleted,
			Order:       r.Order,
			CreatedAt:   r.CreatedAt,
			CreatedBy:   r.CreatedBy,
			CompletedBy: r.CompletedBy,
			CompletedAt: r.CompletedAt,
		}.unpack(),
		CompletedBy:  userRef(r.CompletedBy, r.CompletedByName),
		Assignees:    []user.Ref{},
		Dependencies: []task.DependencyRef{},
		Comments:     []task.CommentDetails{},
		Files:        []task.FileDetails{},
	}
}

type taskRepository struct {
	base
}

var _ task.Repository = (*taskRepository)(nil) // interface compliance check

func NewTaskRepository(db *sqlx.DB) task.Repository {
	return &taskRepository{base{db: db}}
}

func (repo *taskRepository) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	var row taskRow
	err := repo.exec(ctx).QueryRowxContext(ctx, `
		INSERT INTO tasks (team_id, title, description, deadline, is_completed, "order", created_at, created_by)
		VALUES ($1, $2, $3, $4, FALSE, (SELECT COALESCE(MAX("order"), 0) + 1 FROM tasks WHERE team_id = $1), $5, $6)
		RETURNING `+taskColumns,
		t.TeamID, t.Title, null.StringFromPtr(t.Description), null.TimeFromPtr(t.Deadline), t.CreatedAt,
		null.Int64FromPtr(t.CreatedByID),
	).StructScan(&row)
	if err != nil {
		return task.Task{}, errors.Wrap(err, "inserting task")
	}
	return row.unpack(), nil
}

func (repo *taskRepository) GetTask(ctx context.Context, teamID, taskID int64) (task.Task, error) {
	var row taskRow
	err := repo.exec(ctx).GetContext(ctx, &row,
		"SELECT "+taskColumns+" FROM tasks WHERE id = $1 AND team_id = $2", taskID, teamID)
	if err != nil {
		return task.Task{}, trapNoRowsErr(err, task.ErrNotFound, "getting task")
	}
	return row.unpack(), nil
}

func (repo *taskRepository) UpdateTask(ctx context.Context, t task.Task) (task.Task, error) {
	var row taskRow
	err := repo.exec(ctx).QueryRowxContext(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, deadline = $4, is_completed = $5, completed_by = $6, completed_at = $7
		WHERE id = $1
		RETURNING `+taskColumns,
		t.ID, t.Title, null.StringFromPtr(t.Description), null.TimeFromPtr(t.Deadline), t.IsCompleted,
		null.Int64FromPtr(t.CompletedByID), null.TimeFromPtr(t.CompletedAt),
	).StructScan(&row)
	if err != nil {
		return task.Task{}, trapNoRowsErr(err, task.ErrNotFound, "updating task")
	}
	return row.unpack(), nil
}

func (repo *taskRepository) DeleteTask(ctx context.Context, taskID int64) error {
	res, err := repo.exec(ctx).ExecContext(ctx, "DELETE FROM tasks WHERE id = $1", taskID)
	return checkDeleted(res, err, task.ErrNotFound, "deleting task")
}

func (repo *taskRepository) QueryTasksByID(ctx context.Context, teamID int64, ids []int64) ([]task.Task, error) {
	var rows []taskRow
	err := repo.exec(ctx).SelectContext(ctx, &rows,
		"SELECT "+taskColumns+" FROM tasks WHERE team_id = $1 AND id = ANY($2) ORDER BY id", teamID, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	tasks := make([]task.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.unpack())
	}
	return tasks, nil
}

func (repo *taskRepository) SetAssignees(ctx context.Context, taskID int64, userIDs []int64) error {
	exe := repo.exec(ctx)
	if _, err := exe.ExecContext(ctx, "DELETE FROM task_assignees WHERE task_id = $1", taskID); err != nil {
		return errors.Wrap(err, "deleting assignees")
	}
	if len(userIDs) == 0 {
		return nil
	}
	_, err := exe.ExecContext(ctx, `
		INSERT INTO task_assignees (task_id, user_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`,
		taskID, pq.Array(userIDs),
	)
	return errors.Wrap(err, "inserting assignees")
}

func (repo *taskRepository) QueryAssigneeIDs(ctx context.Context, taskID int64) ([]int64, error) {
	var ids []int64
	err := repo.exec(ctx).SelectContext(ctx, &ids,
		"SELECT user_id FROM task_assignees WHERE task_id = $1 ORDER BY id", taskID)
	if err != nil {
		return nil, errors.Wrap(err, "querying assignees")
	}
	return ids, nil
}

func (repo *taskRepository) SetDependencies(ctx context.Context, taskID int64, dependsOnIDs []int64) error {
	exe := repo.exec(ctx)
	if _, err := exe.ExecContext(ctx, "DELETE FROM task_dependencies WHERE task_id = $1", taskID); err != nil {
		return errors.Wrap(err, "deleting dependencies")
	}
	if len(dependsOnIDs) == 0 {
		return nil
	}
	_, err := exe.ExecContext(ctx, `
		INSERT INTO task_dependencies (task_id, depends_on_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`,
		taskID, pq.Array(dependsOnIDs),
	)
	return errors.Wrap(err, "inserting dependencies")
}

func (repo *taskRepository) QueryDependencies(ctx context.Context, taskID int64) ([]task.DependencyRef, error) {
	deps, err := repo.queryBoardDependencies(ctx, []int64{taskID})
	if err != nil {
		return nil, err
	}
	refs := make([]task.DependencyRef, 0, len(deps))
	for _, d := range deps {
		refs = append(refs, task.DependencyRef{ID: d.ID, Title: d.Title, IsCompleted: d.IsCompleted})
	}
	return refs, nil
}

func (repo *taskRepository) QueryDependencyEdges(ctx context.Context, teamID int64) (map[int64][]int64, error) {
	var rows []edgeRow
	err := repo.exec(ctx).SelectContext(ctx, &rows, `
		SELECT d.task_id, d.depends_on_id
		FROM task_dependencies d
		JOIN tasks t ON t.id = d.task_id
		WHERE t.team_id = $1`,
		teamID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying dependency edges")
	}
	edges := make(map[int64][]int64)
	for _, e := range rows {
		edges[e.TaskID] = append(edges[e.TaskID], e.DependsOnID)
	}
	return edges, nil
}

func (repo *taskRepository) CountDependents(ctx context.Context, taskID int64) (int, error) {
	var count int
	err := repo.exec(ctx).GetContext(ctx, &count,
		"SELECT COUNT(*) FROM task_dependencies WHERE depends_on_id = $1", taskID)
	if err != nil {
		return 0, errors.Wrap(err, "counting dependents")
	}
	return count, nil
}

func (repo *taskRepository) AddComment(ctx context.Context, c task.Comment) (task.Comment, error) {
	err := repo.exec(ctx).QueryRowxContext(ctx, `
		INSERT INTO task_comments (task_id, author_id, text, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		c.TaskID, c.AuthorID, c.Text, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return task.Comment{}, errors.Wrap(err, "inserting comment")
	}
	return c, nil
}

func (repo *taskRepository) AddFile(ctx context.Context, f task.File) (task.File, error) {
	err := repo.exec(ctx).QueryRowxContext(ctx, `
		INSERT INTO task_files (task_id, uploaded_by, file_name, file_url, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		f.TaskID, null.Int64FromPtr(f.UploadedByID), f.FileName, f.FileURL, null.Int64FromPtr(f.FileSize), f.CreatedAt,
	).Scan(&f.ID)
	if err != nil {
		return task.File{}, errors.Wrap(err, "inserting file")
	}
	return f, nil
}

func (repo *taskRepository) QueryFiles(ctx context.Context, taskID int64) ([]task.File, error) {
	var rows []fileRow
	err := repo.exec(ctx).SelectContext(ctx, &rows, `
		SELECT id, task_id, uploaded_by, file_name, file_url, file_size, created_at
		FROM task_files WHERE task_id = $1 ORDER BY created_at, id`,
		taskID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying files")
	}
	files := make([]task.File, 0, len(rows))
	for _, r := range rows {
		files = append(files, r.unpack())
	}
	return files, nil
}

func (repo *taskRepository) QueryTaskDetails(ctx context.Context, teamID int64) ([]task.Details, error) {
	return repo.queryBoard(ctx, "t.team_id = $1", teamID)
}

func (repo *taskRepository) GetTaskDetails(ctx context.Context, taskID int64) (task.Details, error) {
	tasks, err := repo.queryBoard(ctx, "t.id = $1", taskID)
	if err != nil {
		return task.Details{}, err
	}
	if len(tasks) == 0 {
		return task.Details{}, task.ErrNotFound
	}
	return tasks[0], nil
}

// queryBoard loads the tasks matched by where, then their relations one table at a time.
func (repo *taskRepository) queryBoard(ctx context.Context, where string, args ...interface{}) ([]task.Details, error) {
	exe := repo.exec(ctx)

	var rows []*boardTaskRow
	err := queries.Raw(`
		SELECT t.id, t.team_id, t.title, t.description, t.deadline, t.is_completed, t."order", t.created_at,
		       t.created_by, t.completed_by, t.completed_at, cb.name AS completed_by_name
		FROM tasks t
		LEFT JOIN users cb ON cb.id = t.completed_by
		WHERE `+where+`
		ORDER BY t.created_at, t.id`,
		args...,
	).Bind(ctx, exe, &rows)
	if err != nil {
		return nil, errors.Wrap(err, "querying task board")
	}
	if len(rows) == 0 {
		return []task.Details{}, nil
	}

	tasks := make([]task.Details, 0, len(rows))
	ids := make([]int64, 0, len(rows))
	index := make(map[int64]int, len(rows))
	for i, r := range rows {
		tasks = append(tasks, r.unpack())
		ids = append(ids, r.ID)
		index[r.ID] = i
	}

	var assignees []*boardAssigneeRow
	err = queries.Raw(`
		SELECT a.task_id, u.id AS user_id, u.name
		FROM task_assignees a
		JOIN users u ON u.id = a.user_id
		WHERE a.task_id = ANY($1)
		ORDER BY a.id`,
		pq.Array(ids),
	).Bind(ctx, exe, &assignees)
	if err != nil {
		return nil, errors.Wrap(err, "querying assignees")
	}
	for _, a := range assignees {
		t := &tasks[index[a.TaskID]]
		t.Assignees = append(t.Assignees, user.Ref{ID: a.UserID, Name: a.Name})
	}

	deps, err := repo.queryBoardDependencies(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, d := range deps {
		t := &tasks[index[d.TaskID]]
		t.Dependencies = append(t.Dependencies, task.DependencyRef{ID: d.ID, Title: d.Title, IsCompleted: d.IsCompleted})
	}

	var comments []*boardCommentRow
	err = queries.Raw(`
		SELECT c.id, c.task_id, c.text, c.author_id, u.name AS author_name, c.created_at
		FROM task_comments c
		JOIN users u ON u.id = c.author_id
		WHERE c.task_id = ANY($1)
		ORDER BY c.created_at, c.id`,
		pq.Array(ids),
	).Bind(ctx, exe, &comments)
	if err != nil {
		return nil, errors.Wrap(err, "querying comments")
	}
	for _, c := range comments {
		t := &tasks[index[c.TaskID]]
		t.Comments = append(t.Comments, task.CommentDetails{
			ID:        c.ID,
			Text:      c.Text,
			Author:    user.Ref{ID: c.AuthorID, Name: c.AuthorName},
			CreatedAt: c.CreatedAt.UTC(),
		})
	}

	var files []*boardFileRow
	err = queries.Raw(`
		SELECT f.id, f.task_id, f.file_name, f.file_url, f.file_size, f.uploaded_by,
		       u.name AS uploader_name, f.created_at
		FROM task_files f
		LEFT JOIN users u ON u.id = f.uploaded_by
		WHERE f.task_id = ANY($1)
		ORDER BY f.created_at, f.id`,
		pq.Array(ids),
	).Bind(ctx, exe, &files)
	if err != nil {
		return nil, errors.Wrap(err, "querying files")
	}
	for _, f := range files {
		t := &tasks[index[f.TaskID]]
		t.Files = append(t.Files, task.FileDetails{
			ID:         f.ID,
			FileName:   f.FileName,
			FileURL:    f.FileURL,
			FileSize:   f.FileSize.Ptr(),
			UploadedBy: userRef(f.UploadedBy, f.UploaderName),
			CreatedAt:  f.CreatedAt.UTC(),
		})
	}
	return tasks, nil
}

func (repo *taskRepository) queryBoardDependencies(ctx context.Context, taskIDs []int64) ([]*boardDependencyRow, error) {
	var deps []*boardDependencyRow
	err := queries.Raw(`
		SELECT d.task_id, dt.id, dt.title, dt.is_completed
		FROM task_dependencies d
		JOIN tasks dt ON dt.id = d.depends_on_id
		WHERE d.task_id = ANY($1)
		ORDER BY d.id`,
		pq.Array(taskIDs),
	).Bind(ctx, repo.exec(ctx), &deps)
	if err != nil {
		return nil, errors.Wrap(err, "querying dependencies")
	}
	return deps, nil
}
