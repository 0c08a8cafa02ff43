package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/kazi/core/user"
)

const userColumns = "id, email, name, password_hash, role, created_at, updated_at, last_login"

type userRow struct {
	ID           int64     `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash []byte    `db:"password_hash"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	LastLogin    null.Time `db:"last_login"`
}

func (r userRow) unpack() user.User {
	return user.User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    utcPtr(r.LastLogin),
	}
}

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{base{db: db}}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	var row userRow
	err := repo.exec(ctx).QueryRowxContext(ctx, `
		INSERT INTO users (email, name, password_hash, role, created_at, updated_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+userColumns,
		usr.Email, usr.Name, usr.PasswordHash, usr.Role, usr.CreatedAt, usr.UpdatedAt, null.TimeFromPtr(usr.LastLogin),
	).StructScan(&row)
	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok && constraint == "users_email_key" {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return row.unpack(), nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var row userRow
	var err error
	switch {
	case filter.ID != 0:
		err = repo.exec(ctx).GetContext(ctx, &row, "SELECT "+userColumns+" FROM users WHERE id = $1", filter.ID)
	case filter.Email != "":
		err = repo.exec(ctx).GetContext(ctx, &row, "SELECT "+userColumns+" FROM users WHERE email = $1", filter.Email)
	default:
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return row.unpack(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	var row userRow
	err := repo.exec(ctx).QueryRowxContext(ctx, `
		UPDATE users
		SET email = $2, name = $3, password_hash = $4, role = $5, updated_at = $6, last_login = $7
		WHERE id = $1
		RETURNING `+userColumns,
		usr.ID, usr.Email, usr.Name, usr.PasswordHash, usr.Role, usr.UpdatedAt, null.TimeFromPtr(usr.LastLogin),
	).StructScan(&row)
	if err != nil {
		if constraint, ok := uniqueConstraint(err); ok && constraint == "users_email_key" {
			return user.User{}, user.ErrEmailExists
		}
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "updating user")
	}
	return row.unpack(), nil
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}
