package echoapi

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

// DataTablesRequest is the server-side processing request of jQuery DataTables:
//
//	draw=1&start=0&length=10&search[value]=jo&order[0][column]=1&order[0][dir]=desc&columns[1][data]=name
//
// Plain clients may send `search`, `offset`, `limit` and `ordering` instead.
type DataTablesRequest struct {
	Draw  int
	Query core.PageQuery
}

func (dt *DataTablesRequest) Bind(ctx echo.Context) {
	params := ctx.QueryParams()

	dt.Draw = queryInt(params, "draw", 0)
	dt.Query.Offset = queryInt(params, "start", queryInt(params, "offset", 0))
	dt.Query.Limit = queryInt(params, "length", queryInt(params, "limit", 0))
	if dt.Query.Search = params.Get("search[value]"); dt.Query.Search == "" {
		dt.Query.Search = params.Get("search")
	}

	for i := 0; ; i++ {
		col := params.Get(fmt.Sprintf("order[%d][column]", i))
		if col == "" {
			break
		}
		field := params.Get(fmt.Sprintf("columns[%s][data]", col))
		if field == "" {
			continue
		}
		dir := params.Get(fmt.Sprintf("order[%d][dir]", i))
		dt.Query.Orderings = append(dt.Query.Orderings, core.DBOrdering{Field: field, Ascending: !strings.EqualFold(dir, "desc")})
	}
	if len(dt.Query.Orderings) == 0 {
		ord := new(Ordering)
		ord.Bind(ctx)
		dt.Query.Orderings = ord.Orderings
	}
}

func queryInt(params url.Values, key string, fallback int) int {
	if v := params.Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// queryBool parses an optional boolean query param; nil when absent or invalid.
func queryBool(ctx echo.Context, key string) *bool {
	if v := ctx.QueryParam(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return &b
		}
	}
	return nil
}

// DataTablesResponse is the server-side processing response of jQuery DataTables.
type DataTablesResponse[T any] struct {
	Draw            int `json:"draw"`
	Data            []T `json:"data"`
	RecordsTotal    int `json:"recordsTotal"`
	RecordsFiltered int `json:"recordsFiltered"`
}

func newDataTablesResponse[T any](draw int, page core.Page[T]) DataTablesResponse[T] {
	data := page.Items
	if data == nil {
		data = []T{}
	}
	return DataTablesResponse[T]{
		Draw:            draw,
		Data:            data,
		RecordsTotal:    page.Total,
		RecordsFiltered: page.Filtered,
	}
}

var errFileRequired = errors.New("a file is required")

// formFile opens the uploaded file of the multipart field.
func formFile(ctx echo.Context, field string) (string, io.ReadCloser, error) {
	fh, err := ctx.FormFile(field)
	if err != nil {
		return "", nil, core.NewValidationError(errFileRequired, core.FieldError{Field: field, Error: errFileRequired.Error()})
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, errors.Wrap(err, "opening uploaded file")
	}
	return fh.Filename, f, nil
}
