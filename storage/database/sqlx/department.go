package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/department"
)

type departmentRow struct {
	ID          string      `db:"id"`
	Code        string      `db:"code"`
	Name        string      `db:"name"`
	Description string      `db:"description"`
	IsActive    bool        `db:"is_active"`
	CreatedBy   null.String `db:"created_by"`
	UpdatedBy   null.String `db:"updated_by"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
	DeletedAt   null.Time   `db:"deleted_at"`
}

func (r departmentRow) toDepartment() department.Department {
	return department.Department{
		ID:          r.ID,
		Code:        r.Code,
		Name:        r.Name,
		Description: r.Description,
		IsActive:    r.IsActive,
		CreatedBy:   r.CreatedBy.Ptr(),
		UpdatedBy:   r.UpdatedBy.Ptr(),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
		DeletedAt:   r.DeletedAt.Ptr(),
	}
}

type programRow struct {
	ID           string      `db:"id"`
	DepartmentID string      `db:"department_id"`
	Code         string      `db:"code"`
	Name         string      `db:"name"`
	Description  string      `db:"description"`
	LMSProgramID string      `db:"lms_program_id"`
	IsActive     bool        `db:"is_active"`
	CreatedBy    null.String `db:"created_by"`
	UpdatedBy    null.String `db:"updated_by"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	DeletedAt    null.Time   `db:"deleted_at"`
}

func (r programRow) toProgram() department.Program {
	return department.Program{
		ID:           r.ID,
		DepartmentID: r.DepartmentID,
		Code:         r.Code,
		Name:         r.Name,
		Description:  r.Description,
		LMSProgramID: r.LMSProgramID,
		IsActive:     r.IsActive,
		CreatedBy:    r.CreatedBy.Ptr(),
		UpdatedBy:    r.UpdatedBy.Ptr(),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		DeletedAt:    r.DeletedAt.Ptr(),
	}
}

var (
	departmentColumns = []string{"id", "code", "name", "description", "is_active", "created_by", "updated_by", "created_at", "updated_at", "deleted_at"}
	programColumns    = []string{"id", "department_id", "code", "name", "description", "lms_program_id", "is_active", "created_by", "updated_by", "created_at", "updated_at", "deleted_at"}
	codeNameSortable  = map[string]string{"code": "code", "name": "name", "created_at": "created_at"}
)

type departmentRepository struct {
	base
}

func NewDepartmentRepository(db *sqlx.DB) department.Repository {
	return &departmentRepository{base{db: db}}
}

func (repo *departmentRepository) codeExists(ctx context.Context, table, code string, excludedIDs []string) (bool, error) {
	stmt := psql.Select("1").From(table).Where("UPPER(code) = UPPER(?)", code)
	if len(excludedIDs) > 0 {
		stmt = stmt.Where(sq.NotEq{"id": excludedIDs})
	}
	return repo.exists(ctx, stmt)
}

func (repo *departmentRepository) DepartmentCodeExists(ctx context.Context, code string, excludedIDs ...string) (bool, error) {
	return repo.codeExists(ctx, "department", code, excludedIDs)
}

func departmentValues(d department.Department) map[string]interface{} {
	return map[string]interface{}{
		"code":        d.Code,
		"name":        d.Name,
		"description": d.Description,
		"is_active":   d.IsActive,
		"updated_by":  nullableID(d.UpdatedBy),
		"updated_at":  d.UpdatedAt,
		"deleted_at":  null.TimeFromPtr(d.DeletedAt),
	}
}

func (repo *departmentRepository) CreateDepartment(ctx context.Context, dept department.Department) (department.Department, error) {
	values := departmentValues(dept)
	values["id"] = dept.ID
	values["created_by"] = nullableID(dept.CreatedBy)
	values["created_at"] = dept.CreatedAt
	_, err := repo.exec(ctx, psql.Insert("department").SetMap(values))
	return dept, err
}

func (repo *departmentRepository) UpdateDepartment(ctx context.Context, dept department.Department) (department.Department, error) {
	err := repo.execOne(ctx, psql.Update("department").SetMap(departmentValues(dept)).Where(sq.Eq{"id": dept.ID}), department.ErrNotFound)
	return dept, err
}

func (repo *departmentRepository) GetDepartment(ctx context.Context, id string) (department.Department, error) {
	var row departmentRow
	stmt := psql.Select(departmentColumns...).From("department").Where(sq.Eq{"id": id, "deleted_at": nil})
	if err := repo.get(ctx, &row, stmt); err != nil {
		if isNoRows(err) {
			return department.Department{}, department.ErrNotFound
		}
		return department.Department{}, err
	}
	return row.toDepartment(), nil
}

func (repo *departmentRepository) QueryDepartments(ctx context.Context, pq core.PageQuery) (core.Page[department.Department], error) {
	var rows []departmentRow
	total, filtered, err := repo.paginate(ctx, listing{
		from: func(columns ...string) sq.SelectBuilder {
			return psql.Select(columns...).From("department").Where(sq.Eq{"deleted_at": nil})
		},
		search:   searchAny(pq.Search, "code", "name"),
		columns:  departmentColumns,
		sortable: codeNameSortable,
	}, pq, &rows)
	if err != nil {
		return core.Page[department.Department]{}, err
	}
	items := make([]department.Department, len(rows))
	for i, row := range rows {
		items[i] = row.toDepartment()
	}
	return core.Page[department.Department]{Items: items, Total: total, Filtered: filtered}, nil
}

func (repo *departmentRepository) ProgramCodeExists(ctx context.Context, code string, excludedIDs ...string) (bool, error) {
	return repo.codeExists(ctx, "program", code, excludedIDs)
}

func programValues(p department.Program) map[string]interface{} {
	return map[string]interface{}{
		"department_id":  p.DepartmentID,
		"code":           p.Code,
		"name":           p.Name,
		"description":    p.Description,
		"lms_program_id": p.LMSProgramID,
		"is_active":      p.IsActive,
		"updated_by":     nullableID(p.UpdatedBy),
		"updated_at":     p.UpdatedAt,
		"deleted_at":     null.TimeFromPtr(p.DeletedAt),
	}
}

func (repo *departmentRepository) CreateProgram(ctx context.Context, prog department.Program) (department.Program, error) {
	values := programValues(prog)
	values["id"] = prog.ID
	values["created_by"] = nullableID(prog.CreatedBy)
	values["created_at"] = prog.CreatedAt
	_, err := repo.exec(ctx, psql.Insert("program").SetMap(values))
	return prog, err
}

func (repo *departmentRepository) UpdateProgram(ctx context.Context, prog department.Program) (department.Program, error) {
	err := repo.execOne(ctx, psql.Update("program").SetMap(programValues(prog)).Where(sq.Eq{"id": prog.ID}), department.ErrProgramNotFound)
	return prog, err
}

func (repo *departmentRepository) GetProgram(ctx context.Context, id string) (department.Program, error) {
	var row programRow
	stmt := psql.Select(programColumns...).From("program").Where(sq.Eq{"id": id, "deleted_at": nil})
	if err := repo.get(ctx, &row, stmt); err != nil {
		if isNoRows(err) {
			return department.Program{}, department.ErrProgramNotFound
		}
		return department.Program{}, err
	}
	return row.toProgram(), nil
}

func (repo *departmentRepository) GetProgramsByID(ctx context.Context, ids ...string) ([]department.Program, error) {
	if len(ids) == 0 {
		return []department.Program{}, nil
	}
	var rows []programRow
	stmt := psql.Select(programColumns...).From("program").Where(sq.Eq{"id": ids, "deleted_at": nil})
	if err := repo.selectRows(ctx, &rows, stmt); err != nil {
		return nil, err
	}
	progs := make([]department.Program, len(rows))
	for i, row := range rows {
		progs[i] = row.toProgram()
	}
	return progs, nil
}

func (repo *departmentRepository) QueryPrograms(ctx context.Context, filter department.QueryFilter, pq core.PageQuery) (core.Page[department.Program], error) {
	where := sq.And{sq.Eq{"deleted_at": nil}}
	if filter.DepartmentID != "" {
		where = append(where, sq.Eq{"department_id": filter.DepartmentID})
	}
	if filter.IsActive != nil {
		where = append(where, sq.Eq{"is_active": *filter.IsActive})
	}

	var rows []programRow
	total, filtered, err := repo.paginate(ctx, listing{
		from: func(columns ...string) sq.SelectBuilder {
			return psql.Select(columns...).From("program").Where(where)
		},
		search:   searchAny(pq.Search, "code", "name"),
		columns:  programColumns,
		sortable: codeNameSortable,
	}, pq, &rows)
	if err != nil {
		return core.Page[department.Program]{}, err
	}
	items := make([]department.Program, len(rows))
	for i, row := range rows {
		items[i] = row.toProgram()
	}
	return core.Page[department.Program]{Items: items, Total: total, Filtered: filtered}, nil
}
