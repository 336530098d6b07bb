// Package sqlxrepos implements the repositories on PostgreSQL with sqlx and squirrel.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Transactor binds a *sqlx.Tx to the context passed to fn. Nested calls join the outer transaction.
type Transactor struct {
	db *sqlx.DB
}

func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

func (tr *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := core.TxFromContext(ctx); ok {
		return fn(ctx)
	}
	tx, err := tr.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(core.ContextWithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back: %v", rbErr)
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

var _ core.Transactor = (*Transactor)(nil)

type executor interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// base runs squirrel statements on the transaction of the context, or on the pool.
type base struct {
	db *sqlx.DB
}

func (b base) executor(ctx context.Context) executor {
	if tx, ok := core.TxFromContext(ctx); ok {
		if sqlxTx, ok := tx.(*sqlx.Tx); ok {
			return sqlxTx
		}
	}
	return b.db
}

func (b base) get(ctx context.Context, dest interface{}, stmt sq.Sqlizer) error {
	query, args, err := stmt.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return b.executor(ctx).GetContext(ctx, dest, query, args...)
}

func (b base) selectRows(ctx context.Context, dest interface{}, stmt sq.Sqlizer) error {
	query, args, err := stmt.ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	return b.executor(ctx).SelectContext(ctx, dest, query, args...)
}

func (b base) exec(ctx context.Context, stmt sq.Sqlizer) (sql.Result, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	return b.executor(ctx).ExecContext(ctx, query, args...)
}

// execOne runs stmt and returns notFound when no row was affected.
func (b base) execOne(ctx context.Context, stmt sq.Sqlizer, notFound error) error {
	res, err := b.exec(ctx, stmt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (b base) count(ctx context.Context, stmt sq.SelectBuilder) (int, error) {
	var n int
	err := b.get(ctx, &n, stmt)
	return n, err
}

func (b base) exists(ctx context.Context, stmt sq.SelectBuilder) (bool, error) {
	var ok bool
	query, args, err := stmt.Prefix("SELECT EXISTS (").Suffix(")").ToSql()
	if err != nil {
		return false, errors.Wrap(err, "building query")
	}
	err = b.executor(ctx).GetContext(ctx, &ok, query, args...)
	return ok, err
}

// listing is the FROM and WHERE part of a paged query; columns are added by paginate.
type listing struct {
	from    func(columns ...string) sq.SelectBuilder
	search  sq.Sqlizer
	columns []string
	// sortable maps ordering fields to SQL expressions.
	sortable map[string]string
}

func (b base) paginate(ctx context.Context, l listing, pq core.PageQuery, dest interface{}) (total, filtered int, err error) {
	if total, err = b.count(ctx, l.from("COUNT(*)")); err != nil {
		return 0, 0, errors.Wrap(err, "counting rows")
	}
	filtered = total
	if l.search != nil {
		if filtered, err = b.count(ctx, l.from("COUNT(*)").Where(l.search)); err != nil {
			return 0, 0, errors.Wrap(err, "counting searched rows")
		}
	}

	stmt := l.from(l.columns...).OrderBy(orderBy(pq.Orderings, l.sortable)...)
	if l.search != nil {
		stmt = stmt.Where(l.search)
	}
	if pq.Offset > 0 {
		stmt = stmt.Offset(uint64(pq.Offset))
	}
	if pq.Limit > 0 {
		stmt = stmt.Limit(uint64(pq.Limit))
	}
	return total, filtered, b.selectRows(ctx, dest, stmt)
}

func orderBy(ords []core.DBOrdering, sortable map[string]string) []string {
	clauses := make([]string, 0, len(ords)+1)
	for _, ord := range ords {
		if expr, ok := sortable[ord.Field]; ok {
			clauses = append(clauses, core.DBOrdering{Field: expr, Ascending: ord.Ascending}.String())
		}
	}
	if len(clauses) == 0 {
		if expr, ok := sortable["created_at"]; ok {
			clauses = append(clauses, expr+" DESC")
		}
	}
	return clauses
}

// searchAny matches term case-insensitively on any of the columns; nil when term is empty.
func searchAny(term string, columns ...string) sq.Sqlizer {
	if term == "" {
		return nil
	}
	pattern := "%" + escapeLike(term) + "%"
	or := make(sq.Or, 0, len(columns))
	for _, col := range columns {
		or = append(or, sq.ILike{col: pattern})
	}
	return or
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }

func isNoRows(err error) bool {
	return errors.Cause(err) == sql.ErrNoRows
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// nullableID turns an optional id into a SQL value.
func nullableID(id *string) interface{} {
	if id == nil || *id == "" {
		return nil
	}
	return *id
}

func joinColumns(columns []string) string { return strings.Join(columns, ", ") }
