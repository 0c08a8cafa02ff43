// Package testutil holds the fixtures shared by the package tests.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/user"
	"github.com/trezcool/kazi/storage/database"
)

const testDatabaseURLEnv = "TEST_DATABASE_URL"

// NewConfig returns a configuration suitable for tests, without touching the environment.
func NewConfig(t *testing.T) *core.Config {
	return &core.Config{
		AppName:                   "Kazi",
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		SecretKey:                 "test-secret-key",
		FrontendBaseURL:           "http://localhost:5173",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 30 * 24 * time.Hour,
			BodyLimit:                 "2M",
			CORSOrigins:               []string{"*"},
		},
		Uploads: core.UploadsConfig{
			Dir:               t.TempDir(),
			URLPrefix:         "/uploads",
			MaxSize:           1024 * 1024,
			AllowedExtensions: []string{"txt", "pdf", "png"},
		},
	}
}

// PrepareDB connects to the database named by TEST_DATABASE_URL, migrates it and empties every table.
// The test is skipped when the variable is not set.
func PrepareDB(t *testing.T) *sqlx.DB {
	dsn := os.Getenv(testDatabaseURLEnv)
	if dsn == "" {
		t.Skipf("%s not set", testDatabaseURLEnv)
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	q := `TRUNCATE users, subjects, subject_participants, teams, team_members,
		tasks, task_assignees, task_dependencies, task_comments, task_files RESTART IDENTITY CASCADE`
	if _, err = db.Exec(q); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func CreateUser(t *testing.T, repo user.Repository, name, email, pwd, role string, createdAt ...time.Time) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}
