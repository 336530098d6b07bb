package inmemdb

import (
	"context"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type userRepository struct {
	db *DB
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...string) error {
	excluded := idSet(excludedIDs)
	var err error
	repo.db.read(func(t *tables) {
		for _, usr := range t.users {
			if usr.Email == email && !excluded[usr.ID] {
				err = user.ErrEmailExists
				return
			}
		}
	})
	return err
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = core.NewID()
	}
	usr.Roles = cloneStrings(usr.Roles)
	err := repo.db.write(func(t *tables) error {
		for _, u := range t.users {
			if u.Email == usr.Email {
				return user.ErrEmailExists
			}
		}
		t.users[usr.ID] = usr
		return nil
	})
	return usr, err
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	var (
		usr user.User
		ok  bool
	)
	repo.db.read(func(t *tables) { usr, ok = t.users[id] })
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var (
		found user.User
		ok    bool
	)
	repo.db.read(func(t *tables) {
		for _, usr := range t.users {
			if usr.Email == email {
				found, ok = usr, true
				return
			}
		}
	})
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return found, nil
}

func (repo *userRepository) GetUsersByID(ctx context.Context, ids ...string) ([]user.User, error) {
	users := make([]user.User, 0, len(ids))
	repo.db.read(func(t *tables) {
		for _, id := range ids {
			if usr, ok := t.users[id]; ok {
				users = append(users, usr)
			}
		}
	})
	return users, nil
}

func hasAnyRole(usr user.User, roles []string) bool {
	for _, want := range roles {
		for _, role := range usr.Roles {
			if role == want {
				return true
			}
		}
	}
	return false
}

func userField(usr user.User, col string) interface{} {
	switch col {
	case "name":
		return usr.Name
	case "email":
		return usr.Email
	case "is_active":
		return usr.IsActive
	case "created_at":
		return usr.CreatedAt
	}
	return nil
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	users := make([]user.User, 0)
	repo.db.read(func(t *tables) {
		for _, usr := range t.users {
			if !matchesAny(filter.Search, usr.Name, usr.Email) {
				continue
			}
			if len(filter.Roles) > 0 && !hasAnyRole(usr, filter.Roles) {
				continue
			}
			if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
				continue
			}
			users = append(users, usr)
		}
	})
	sortRows(users, ordering, userField)
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.Roles = cloneStrings(usr.Roles)
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.users[usr.ID]; !ok {
			return user.ErrNotFound
		}
		for _, u := range t.users {
			if u.ID != usr.ID && u.Email == usr.Email {
				return user.ErrEmailExists
			}
		}
		t.users[usr.ID] = usr
		return nil
	})
	return usr, err
}
