package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

var userColumns = []string{"id", "name", "email", "is_active", "roles", "password_hash", "created_at", "updated_at", "last_login"}

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Email        string         `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func (r userRow) toUser() user.User {
	roles := []string(r.Roles)
	if roles == nil {
		roles = []string{}
	}
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		IsActive:     r.IsActive,
		Roles:        roles,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Ptr(),
	}
}

// prefixed returns the user columns of the alias, named for nesting under field.
func prefixed(alias, field string) []string {
	cols := make([]string, len(userColumns))
	for i, col := range userColumns {
		cols[i] = alias + "." + col + ` AS "` + field + "." + col + `"`
	}
	return cols
}

type userRepository struct {
	base
}

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{base{db: db}}
}

func (repo *userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...string) error {
	stmt := psql.Select("1").From(`"user"`).Where("LOWER(email) = LOWER(?)", email)
	if len(excludedIDs) > 0 {
		stmt = stmt.Where(sq.NotEq{"id": excludedIDs})
	}
	exists, err := repo.exists(ctx, stmt)
	if err != nil {
		return err
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = core.NewID()
	}
	_, err := repo.exec(ctx, psql.Insert(`"user"`).SetMap(map[string]interface{}{
		"id":            usr.ID,
		"name":          usr.Name,
		"email":         usr.Email,
		"is_active":     usr.IsActive,
		"roles":         pq.StringArray(usr.Roles),
		"password_hash": usr.PasswordHash,
		"created_at":    usr.CreatedAt,
		"updated_at":    usr.UpdatedAt,
		"last_login":    null.TimeFromPtr(usr.LastLogin),
	}))
	if isUniqueViolation(err) {
		return user.User{}, user.ErrEmailExists
	}
	return usr, err
}

func (repo *userRepository) getUser(ctx context.Context, where sq.Sqlizer) (user.User, error) {
	var row userRow
	if err := repo.get(ctx, &row, psql.Select(userColumns...).From(`"user"`).Where(where)); err != nil {
		if isNoRows(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return row.toUser(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.getUser(ctx, sq.Eq{"id": id})
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, sq.Expr("LOWER(email) = LOWER(?)", email))
}

func (repo *userRepository) GetUsersByID(ctx context.Context, ids ...string) ([]user.User, error) {
	if len(ids) == 0 {
		return []user.User{}, nil
	}
	var rows []userRow
	if err := repo.selectRows(ctx, &rows, psql.Select(userColumns...).From(`"user"`).Where(sq.Eq{"id": ids})); err != nil {
		return nil, err
	}
	users := make([]user.User, len(rows))
	for i, row := range rows {
		users[i] = row.toUser()
	}
	return users, nil
}

var userSortable = map[string]string{"name": "name", "email": "email", "is_active": "is_active", "created_at": "created_at"}

func (repo *userRepository) QueryUsers(ctx context.Context, filter user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	stmt := psql.Select(userColumns...).From(`"user"`).OrderBy(orderBy(ordering, userSortable)...)
	if search := searchAny(filter.Search, "name", "email"); search != nil {
		stmt = stmt.Where(search)
	}
	if len(filter.Roles) > 0 {
		stmt = stmt.Where("roles && ?", pq.StringArray(filter.Roles))
	}
	if filter.IsActive != nil {
		stmt = stmt.Where(sq.Eq{"is_active": *filter.IsActive})
	}

	var rows []userRow
	if err := repo.selectRows(ctx, &rows, stmt); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, len(rows))
	for i, row := range rows {
		users[i] = row.toUser()
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	err := repo.execOne(ctx, psql.Update(`"user"`).SetMap(map[string]interface{}{
		"name":          usr.Name,
		"email":         usr.Email,
		"is_active":     usr.IsActive,
		"roles":         pq.StringArray(usr.Roles),
		"password_hash": usr.PasswordHash,
		"updated_at":    usr.UpdatedAt,
		"last_login":    null.TimeFromPtr(usr.LastLogin),
	}).Where(sq.Eq{"id": usr.ID}), user.ErrNotFound)
	if isUniqueViolation(err) {
		return user.User{}, user.ErrEmailExists
	}
	return usr, err
}
