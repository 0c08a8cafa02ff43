package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/kazi/core/task"
	"github.com/trezcool/kazi/core/user"
)

type taskRepository struct {
	db *DB
}

var _ task.Repository = (*taskRepository)(nil) // interface compliance check

func NewTaskRepository(db *DB) task.Repository {
	return &taskRepository{db: db}
}

func (repo *taskRepository) CreateTask(_ context.Context, t task.Task) (task.Task, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	order := 0
	for _, other := range repo.db.data.tasks {
		if other.TeamID == t.TeamID && other.Order > order {
			order = other.Order
		}
	}
	t.ID = repo.db.nextID()
	t.Order = order + 1
	t.IsCompleted = false
	repo.db.data.tasks[t.ID] = t
	return t, nil
}

func (repo *taskRepository) GetTask(_ context.Context, teamID, taskID int64) (task.Task, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if t, ok := repo.db.data.tasks[taskID]; ok && t.TeamID == teamID {
		return t, nil
	}
	return task.Task{}, task.ErrNotFound
}

func (repo *taskRepository) UpdateTask(_ context.Context, t task.Task) (task.Task, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.data.tasks[t.ID]
	if !ok {
		return task.Task{}, task.ErrNotFound
	}
	// immutable columns
	t.TeamID = orig.TeamID
	t.Order = orig.Order
	t.CreatedAt = orig.CreatedAt
	t.CreatedByID = orig.CreatedByID
	repo.db.data.tasks[t.ID] = t
	return t, nil
}

func (repo *taskRepository) DeleteTask(_ context.Context, taskID int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.data.tasks[taskID]; !ok {
		return task.ErrNotFound
	}
	repo.db.deleteTask(taskID)
	return nil
}

// deleteTask cascades to every row pointing at the task. The write lock must be held.
func (db *DB) deleteTask(id int64) {
	for pk, a := range db.data.assignees {
		if a.TaskID == id {
			delete(db.data.assignees, pk)
		}
	}
	for pk, d := range db.data.dependencies {
		if d.TaskID == id || d.DependsOnID == id {
			delete(db.data.dependencies, pk)
		}
	}
	for pk, c := range db.data.comments {
		if c.TaskID == id {
			delete(db.data.comments, pk)
		}
	}
	for pk, f := range db.data.files {
		if f.TaskID == id {
			delete(db.data.files, pk)
		}
	}
	delete(db.data.tasks, id)
}

func (repo *taskRepository) QueryTasksByID(_ context.Context, teamID int64, ids []int64) ([]task.Task, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tasks := make([]task.Task, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if t, ok := repo.db.data.tasks[id]; ok && t.TeamID == teamID {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

func (repo *taskRepository) SetAssignees(_ context.Context, taskID int64, userIDs []int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for pk, a := range repo.db.data.assignees {
		if a.TaskID == taskID {
			delete(repo.db.data.assignees, pk)
		}
	}
	seen := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		pk := repo.db.nextID()
		repo.db.data.assignees[pk] = assigneeRow{ID: pk, TaskID: taskID, UserID: id}
	}
	return nil
}

func (repo *taskRepository) QueryAssigneeIDs(_ context.Context, taskID int64) ([]int64, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rows := repo.db.assigneesOf(taskID)
	ids := make([]int64, 0, len(rows))
	for _, a := range rows {
		ids = append(ids, a.UserID)
	}
	return ids, nil
}

func (repo *taskRepository) SetDependencies(_ context.Context, taskID int64, dependsOnIDs []int64) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for pk, d := range repo.db.data.dependencies {
		if d.TaskID == taskID {
			delete(repo.db.data.dependencies, pk)
		}
	}
	seen := make(map[int64]struct{}, len(dependsOnIDs))
	for _, id := range dependsOnIDs {
		if _, dup := seen[id]; dup || id == taskID {
			continue
		}
		seen[id] = struct{}{}
		pk := repo.db.nextID()
		repo.db.data.dependencies[pk] = dependencyRow{ID: pk, TaskID: taskID, DependsOnID: id}
	}
	return nil
}

func (repo *taskRepository) QueryDependencies(_ context.Context, taskID int64) ([]task.DependencyRef, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.dependencyRefs(taskID), nil
}

func (repo *taskRepository) QueryDependencyEdges(_ context.Context, teamID int64) (map[int64][]int64, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	edges := make(map[int64][]int64)
	for _, d := range repo.db.data.dependencies {
		if repo.db.data.tasks[d.TaskID].TeamID == teamID {
			edges[d.TaskID] = append(edges[d.TaskID], d.DependsOnID)
		}
	}
	return edges, nil
}

func (repo *taskRepository) CountDependents(_ context.Context, taskID int64) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	count := 0
	for _, d := range repo.db.data.dependencies {
		if d.DependsOnID == taskID {
			count++
		}
	}
	return count, nil
}

func (repo *taskRepository) AddComment(_ context.Context, c task.Comment) (task.Comment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.data.tasks[c.TaskID]; !ok {
		return task.Comment{}, task.ErrNotFound
	}
	c.ID = repo.db.nextID()
	repo.db.data.comments[c.ID] = c
	return c, nil
}

func (repo *taskRepository) AddFile(_ context.Context, f task.File) (task.File, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.data.tasks[f.TaskID]; !ok {
		return task.File{}, task.ErrNotFound
	}
	f.ID = repo.db.nextID()
	repo.db.data.files[f.ID] = f
	return f, nil
}

func (repo *taskRepository) QueryFiles(_ context.Context, taskID int64) ([]task.File, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.filesOf(taskID), nil
}

func (repo *taskRepository) QueryTaskDetails(_ context.Context, teamID int64) ([]task.Details, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	tasks := make([]task.Task, 0)
	for _, t := range repo.db.data.tasks {
		if t.TeamID == teamID {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	details := make([]task.Details, 0, len(tasks))
	for _, t := range tasks {
		details = append(details, repo.db.details(t))
	}
	return details, nil
}

func (repo *taskRepository) GetTaskDetails(_ context.Context, taskID int64) (task.Details, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	t, ok := repo.db.data.tasks[taskID]
	if !ok {
		return task.Details{}, task.ErrNotFound
	}
	return repo.db.details(t), nil
}

// The helpers below expect the caller to hold the lock.

func (db *DB) details(t task.Task) task.Details {
	users := db.data.users
	d := task.Details{
		Task:         t,
		CompletedBy:  userRef(users, t.CompletedByID),
		Assignees:    []user.Ref{},
		Dependencies: db.dependencyRefs(t.ID),
		Comments:     []task.CommentDetails{},
		Files:        []task.FileDetails{},
	}
	for _, a := range db.assigneesOf(t.ID) {
		d.Assignees = append(d.Assignees, user.Ref{ID: a.UserID, Name: users[a.UserID].Name})
	}

	comments := make([]task.Comment, 0)
	for _, c := range db.data.comments {
		if c.TaskID == t.ID {
			comments = append(comments, c)
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		if comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].ID < comments[j].ID
		}
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	for _, c := range comments {
		d.Comments = append(d.Comments, task.CommentDetails{
			ID:        c.ID,
			Text:      c.Text,
			Author:    user.Ref{ID: c.AuthorID, Name: users[c.AuthorID].Name},
			CreatedAt: c.CreatedAt,
		})
	}

	for _, f := range db.filesOf(t.ID) {
		d.Files = append(d.Files, task.FileDetails{
			ID:         f.ID,
			FileName:   f.FileName,
			FileURL:    f.FileURL,
			FileSize:   f.FileSize,
			UploadedBy: userRef(users, f.UploadedByID),
			CreatedAt:  f.CreatedAt,
		})
	}
	return d
}

func (db *DB) assigneesOf(taskID int64) []assigneeRow {
	rows := make([]assigneeRow, 0)
	for _, a := range db.data.assignees {
		if a.TaskID == taskID {
			rows = append(rows, a)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

func (db *DB) dependencyRefs(taskID int64) []task.DependencyRef {
	rows := make([]dependencyRow, 0)
	for _, d := range db.data.dependencies {
		if d.TaskID == taskID {
			rows = append(rows, d)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	refs := make([]task.DependencyRef, 0, len(rows))
	for _, d := range rows {
		dep := db.data.tasks[d.DependsOnID]
		refs = append(refs, task.DependencyRef{ID: dep.ID, Title: dep.Title, IsCompleted: dep.IsCompleted})
	}
	return refs
}

func (db *DB) filesOf(taskID int64) []task.File {
	files := make([]task.File, 0)
	for _, f := range db.data.files {
		if f.TaskID == taskID {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].ID < files[j].ID
		}
		return files[i].CreatedAt.Before(files[j].CreatedAt)
	})
	return files
}
