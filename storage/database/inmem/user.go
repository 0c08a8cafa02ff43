package inmemdb

import (
	"context"

	"github.com/trezcool/kazi/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) emailTaken(email string, excludedID int64) bool {
	for _, usr := range repo.db.data.users {
		if usr.Email == email && usr.ID != excludedID {
			return true
		}
	}
	return false
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.emailTaken(usr.Email, 0) {
		return user.User{}, user.ErrEmailExists
	}
	usr.ID = repo.db.nextID()
	repo.db.data.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	switch {
	case filter.ID != 0:
		if usr, ok := repo.db.data.users[filter.ID]; ok {
			return usr, nil
		}
	case filter.Email != "":
		for _, usr := range repo.db.data.users {
			if usr.Email == filter.Email {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.data.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	if repo.emailTaken(usr.Email, usr.ID) {
		return user.User{}, user.ErrEmailExists
	}
	repo.db.data.users[usr.ID] = usr
	return usr, nil
}
