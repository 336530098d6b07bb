package inmemdb

import (
	"context"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/department"
)

type departmentRepository struct {
	db *DB
}

func NewDepartmentRepository(db *DB) department.Repository {
	return &departmentRepository{db: db}
}

func (repo *departmentRepository) DepartmentCodeExists(ctx context.Context, code string, excludedIDs ...string) (bool, error) {
	excluded := idSet(excludedIDs)
	var exists bool
	repo.db.read(func(t *tables) {
		for _, d := range t.departments {
			if d.Code == code && !excluded[d.ID] {
				exists = true
				return
			}
		}
	})
	return exists, nil
}

func (repo *departmentRepository) CreateDepartment(ctx context.Context, dept department.Department) (department.Department, error) {
	err := repo.db.write(func(t *tables) error {
		t.departments[dept.ID] = dept
		return nil
	})
	return dept, err
}

func (repo *departmentRepository) UpdateDepartment(ctx context.Context, dept department.Department) (department.Department, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.departments[dept.ID]; !ok {
			return department.ErrNotFound
		}
		t.departments[dept.ID] = dept
		return nil
	})
	return dept, err
}

func (repo *departmentRepository) GetDepartment(ctx context.Context, id string) (department.Department, error) {
	var (
		dept department.Department
		ok   bool
	)
	repo.db.read(func(t *tables) { dept, ok = t.departments[id] })
	if !ok || dept.DeletedAt != nil {
		return department.Department{}, department.ErrNotFound
	}
	return dept, nil
}

func departmentField(d department.Department, col string) interface{} {
	switch col {
	case "code":
		return d.Code
	case "name":
		return d.Name
	case "created_at":
		return d.CreatedAt
	}
	return nil
}

func (repo *departmentRepository) QueryDepartments(ctx context.Context, pq core.PageQuery) (core.Page[department.Department], error) {
	var total int
	rows := make([]department.Department, 0)
	repo.db.read(func(t *tables) {
		for _, d := range t.departments {
			if d.DeletedAt != nil {
				continue
			}
			total++
			if matchesAny(pq.Search, d.Code, d.Name) {
				rows = append(rows, d)
			}
		}
	})
	sortRows(rows, pq.Orderings, departmentField)
	return page(total, rows, pq), nil
}

func (repo *departmentRepository) ProgramCodeExists(ctx context.Context, code string, excludedIDs ...string) (bool, error) {
	excluded := idSet(excludedIDs)
	var exists bool
	repo.db.read(func(t *tables) {
		for _, p := range t.programs {
			if p.Code == code && !excluded[p.ID] {
				exists = true
				return
			}
		}
	})
	return exists, nil
}

func (repo *departmentRepository) CreateProgram(ctx context.Context, prog department.Program) (department.Program, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.departments[prog.DepartmentID]; !ok {
			return department.ErrNotFound
		}
		t.programs[prog.ID] = prog
		return nil
	})
	return prog, err
}

func (repo *departmentRepository) UpdateProgram(ctx context.Context, prog department.Program) (department.Program, error) {
	err := repo.db.write(func(t *tables) error {
		if _, ok := t.programs[prog.ID]; !ok {
			return department.ErrProgramNotFound
		}
		t.programs[prog.ID] = prog
		return nil
	})
	return prog, err
}

func (repo *departmentRepository) GetProgram(ctx context.Context, id string) (department.Program, error) {
	var (
		prog department.Program
		ok   bool
	)
	repo.db.read(func(t *tables) { prog, ok = t.programs[id] })
	if !ok || prog.DeletedAt != nil {
		return department.Program{}, department.ErrProgramNotFound
	}
	return prog, nil
}

func (repo *departmentRepository) GetProgramsByID(ctx context.Context, ids ...string) ([]department.Program, error) {
	progs := make([]department.Program, 0, len(ids))
	repo.db.read(func(t *tables) {
		for _, id := range ids {
			if p, ok := t.programs[id]; ok && p.DeletedAt == nil {
				progs = append(progs, p)
			}
		}
	})
	return progs, nil
}

func programField(p department.Program, col string) interface{} {
	switch col {
	case "code":
		return p.Code
	case "name":
		return p.Name
	case "created_at":
		return p.CreatedAt
	}
	return nil
}

func (repo *departmentRepository) QueryPrograms(ctx context.Context, filter department.QueryFilter, pq core.PageQuery) (core.Page[department.Program], error) {
	var total int
	rows := make([]department.Program, 0)
	repo.db.read(func(t *tables) {
		for _, p := range t.programs {
			if p.DeletedAt != nil {
				continue
			}
			if filter.DepartmentID != "" && p.DepartmentID != filter.DepartmentID {
				continue
			}
			if filter.IsActive != nil && p.IsActive != *filter.IsActive {
				continue
			}
			total++
			if matchesAny(pq.Search, p.Code, p.Name) {
				rows = append(rows, p)
			}
		}
	})
	sortRows(rows, pq.Orderings, programField)
	return page(total, rows, pq), nil
}
