package core

import (
	"context"
	"database/sql"
	"strings"
)

type (
	DBExecutor interface {
		Exec(query string, args ...interface{}) (sql.Result, error)
		ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
		Query(query string, args ...interface{}) (*sql.Rows, error)
		QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
		QueryRow(query string, args ...interface{}) *sql.Row
		QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	}

	DB interface {
		DBExecutor

		Begin() (*sql.Tx, error)
		BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error)
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}

	// Transactor runs fn atomically: every repository call made with the ctx passed to fn joins the
	// same transaction. Any error returned by fn rolls the whole unit back.
	Transactor interface {
		RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	}
)

type txKey struct{}

// ContextWithTx binds tx to ctx. It is used by Transactor implementations.
func ContextWithTx(ctx context.Context, tx interface{}) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction bound to ctx, if any.
func TxFromContext(ctx context.Context) (interface{}, bool) {
	tx := ctx.Value(txKey{})
	return tx, tx != nil
}

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// PageQuery holds the server-side search, ordering and paging of a listing.
type PageQuery struct {
	Search    string
	Offset    int
	Limit     int // <= 0: no limit
	Orderings []DBOrdering
}

// Clean keeps only the orderings on allowed fields, mapped to their column names.
func (pq *PageQuery) Clean(allowed map[string]string) {
	pq.Search = CleanString(pq.Search)
	if pq.Offset < 0 {
		pq.Offset = 0
	}
	ords := make([]DBOrdering, 0, len(pq.Orderings))
	for _, ord := range pq.Orderings {
		if col, ok := allowed[strings.ToLower(ord.Field)]; ok {
			ords = append(ords, DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	pq.Orderings = ords
}

// Page is one page of a listing along with the DataTables counters.
type Page[T any] struct {
	Items    []T
	Total    int // before search
	Filtered int // after search
}

// Paginate applies the offset and limit of pq to items.
func Paginate[T any](items []T, pq PageQuery) []T {
	if pq.Offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if pq.Limit > 0 && pq.Offset+pq.Limit < end {
		end = pq.Offset + pq.Limit
	}
	return items[pq.Offset:end]
}
