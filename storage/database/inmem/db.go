// Package inmemdb implements the core repositories in memory, for tests and local demos.
package inmemdb

import (
	"context"
	"sync"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/subject"
	"github.com/trezcool/kazi/core/task"
	"github.com/trezcool/kazi/core/team"
	"github.com/trezcool/kazi/core/user"
)

type (
	assigneeRow struct {
		ID     int64
		TaskID int64
		UserID int64
	}

	dependencyRow struct {
		ID          int64
		TaskID      int64
		DependsOnID int64
	}

	tables struct {
		users        map[int64]user.User
		subjects     map[int64]subject.Subject
		participants map[int64]subject.Participant
		teams        map[int64]team.Team
		members      map[int64]team.Member
		tasks        map[int64]task.Task
		assignees    map[int64]assigneeRow
		dependencies map[int64]dependencyRow
		comments     map[int64]task.Comment
		files        map[int64]task.File
	}
)

func newTables() tables {
	return tables{
		users:        make(map[int64]user.User),
		subjects:     make(map[int64]subject.Subject),
		participants: make(map[int64]subject.Participant),
		teams:        make(map[int64]team.Team),
		members:      make(map[int64]team.Member),
		tasks:        make(map[int64]task.Task),
		assignees:    make(map[int64]assigneeRow),
		dependencies: make(map[int64]dependencyRow),
		comments:     make(map[int64]task.Comment),
		files:        make(map[int64]task.File),
	}
}

func (t tables) clone() tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.subjects {
		c.subjects[k] = v
	}
	for k, v := range t.participants {
		c.participants[k] = v
	}
	for k, v := range t.teams {
		c.teams[k] = v
	}
	for k, v := range t.members {
		c.members[k] = v
	}
	for k, v := range t.tasks {
		c.tasks[k] = v
	}
	for k, v := range t.assignees {
		c.assignees[k] = v
	}
	for k, v := range t.dependencies {
		c.dependencies[k] = v
	}
	for k, v := range t.comments {
		c.comments[k] = v
	}
	for k, v := range t.files {
		c.files[k] = v
	}
	return c
}

// DB holds every table behind a single lock.
// IDs come from one sequence shared by all tables, so they only grow.
type DB struct {
	mutex sync.RWMutex
	seq   int64
	data  tables
}

func NewDB() *DB {
	return &DB{data: newTables()}
}

// nextID must be called with the write lock held.
func (db *DB) nextID() int64 {
	db.seq++
	return db.seq
}

type txKey struct{}

type txRunner struct {
	db *DB
}

var _ core.TxRunner = (*txRunner)(nil) // interface compliance check

func NewTxRunner(db *DB) core.TxRunner {
	return &txRunner{db: db}
}

// RunInTx snapshots the tables and restores them if fn fails.
// Writes made concurrently by other goroutines are not isolated from the rollback.
func (r *txRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(bool); ok {
		return fn(ctx)
	}

	r.db.mutex.RLock()
	snapshot := r.db.data.clone()
	r.db.mutex.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		r.db.mutex.Lock()
		r.db.data = snapshot
		r.db.mutex.Unlock()
		return err
	}
	return nil
}

func userRef(users map[int64]user.User, id *int64) *user.Ref {
	if id == nil {
		return nil
	}
	usr, ok := users[*id]
	if !ok {
		return nil
	}
	return &user.Ref{ID: usr.ID, Name: usr.Name}
}
