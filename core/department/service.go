package department

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var (
	ErrNotFound        = core.NewNotFoundError("department not found")
	ErrProgramNotFound = core.NewNotFoundError("program not found")

	errDepartmentCodeExists = errors.New("a department with this code already exists")
	errProgramCodeExists    = errors.New("a program with this code already exists")
	errActivePrograms       = core.NewRuleError("Cannot delete a department that still has active programs")
)

type (
	Repository interface {
		DepartmentCodeExists(ctx context.Context, code string, excludedIDs ...string) (bool, error)
		CreateDepartment(ctx context.Context, dept Department) (Department, error)
		UpdateDepartment(ctx context.Context, dept Department) (Department, error)
		// GetDepartment ignores soft deleted departments.
		GetDepartment(ctx context.Context, id string) (Department, error)
		QueryDepartments(ctx context.Context, pq core.PageQuery) (core.Page[Department], error)

		ProgramCodeExists(ctx context.Context, code string, excludedIDs ...string) (bool, error)
		CreateProgram(ctx context.Context, prog Program) (Program, error)
		UpdateProgram(ctx context.Context, prog Program) (Program, error)
		// GetProgram ignores soft deleted programs.
		GetProgram(ctx context.Context, id string) (Program, error)
		GetProgramsByID(ctx context.Context, ids ...string) ([]Program, error)
		QueryPrograms(ctx context.Context, filter QueryFilter, pq core.PageQuery) (core.Page[Program], error)
	}

	Service struct {
		repo Repository
	}
)

// Sortable columns
var (
	DepartmentOrderings = map[string]string{"code": "code", "name": "name", "created_at": "created_at"}
	ProgramOrderings    = map[string]string{"code": "code", "name": "name", "created_at": "created_at"}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) checkDepartmentCode(ctx context.Context, code string, excludedIDs ...string) error {
	exists, err := svc.repo.DepartmentCodeExists(ctx, code, excludedIDs...)
	if err != nil {
		return errors.Wrap(err, "checking department code")
	}
	if exists {
		return core.NewValidationError(errDepartmentCodeExists, core.FieldError{Field: "code", Error: errDepartmentCodeExists.Error()})
	}
	return nil
}

func (svc *Service) checkProgramCode(ctx context.Context, code string, excludedIDs ...string) error {
	exists, err := svc.repo.ProgramCodeExists(ctx, code, excludedIDs...)
	if err != nil {
		return errors.Wrap(err, "checking program code")
	}
	if exists {
		return core.NewValidationError(errProgramCodeExists, core.FieldError{Field: "code", Error: errProgramCodeExists.Error()})
	}
	return nil
}

func (svc *Service) CreateDepartment(ctx context.Context, actor core.Actor, data DepartmentData) (Department, error) {
	now := core.Now()
	dept := Department{
		ID:          core.NewID(),
		Code:        data.Code,
		Name:        data.Name,
		Description: data.Description,
		IsActive:    data.IsActive == nil || *data.IsActive,
		CreatedBy:   actor.AuditID(),
		UpdatedBy:   actor.AuditID(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateDepartment(ctx, dept)
}

func (svc *Service) UpdateDepartment(ctx context.Context, actor core.Actor, id string, data DepartmentData) (Department, error) {
	dept, err := svc.repo.GetDepartment(ctx, id)
	if err != nil {
		return Department{}, err
	}
	dept.Code = data.Code
	dept.Name = data.Name
	dept.Description = data.Description
	if data.IsActive != nil {
		dept.IsActive = *data.IsActive
	}
	dept.UpdatedBy = actor.AuditID()
	dept.UpdatedAt = core.Now()
	return svc.repo.UpdateDepartment(ctx, dept)
}

// DeleteDepartment soft deletes a department without active programs.
func (svc *Service) DeleteDepartment(ctx context.Context, actor core.Actor, id string) error {
	dept, err := svc.repo.GetDepartment(ctx, id)
	if err != nil {
		return err
	}
	active := true
	progs, err := svc.repo.QueryPrograms(ctx, QueryFilter{DepartmentID: id, IsActive: &active}, core.PageQuery{Limit: 1})
	if err != nil {
		return errors.Wrap(err, "querying active programs")
	}
	if progs.Total > 0 {
		return errActivePrograms
	}

	now := core.Now()
	dept.IsActive = false
	dept.DeletedAt = &now
	dept.UpdatedBy = actor.AuditID()
	dept.UpdatedAt = now
	_, err = svc.repo.UpdateDepartment(ctx, dept)
	return err
}

func (svc *Service) GetDepartment(ctx context.Context, id string) (Department, error) {
	return svc.repo.GetDepartment(ctx, id)
}

func (svc *Service) QueryDepartments(ctx context.Context, pq core.PageQuery) (core.Page[Department], error) {
	pq.Clean(DepartmentOrderings)
	return svc.repo.QueryDepartments(ctx, pq)
}

func (svc *Service) CreateProgram(ctx context.Context, actor core.Actor, data ProgramData) (Program, error) {
	now := core.Now()
	prog := Program{
		ID:           core.NewID(),
		DepartmentID: data.DepartmentID,
		Code:         data.Code,
		Name:         data.Name,
		Description:  data.Description,
		LMSProgramID: data.LMSProgramID,
		IsActive:     data.IsActive == nil || *data.IsActive,
		CreatedBy:    actor.AuditID(),
		UpdatedBy:    actor.AuditID(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateProgram(ctx, prog)
}

func (svc *Service) UpdateProgram(ctx context.Context, actor core.Actor, id string, data ProgramData) (Program, error) {
	prog, err := svc.repo.GetProgram(ctx, id)
	if err != nil {
		return Program{}, err
	}
	prog.DepartmentID = data.DepartmentID
	prog.Code = data.Code
	prog.Name = data.Name
	prog.Description = data.Description
	prog.LMSProgramID = data.LMSProgramID
	if data.IsActive != nil {
		prog.IsActive = *data.IsActive
	}
	prog.UpdatedBy = actor.AuditID()
	prog.UpdatedAt = core.Now()
	return svc.repo.UpdateProgram(ctx, prog)
}

func (svc *Service) DeleteProgram(ctx context.Context, actor core.Actor, id string) error {
	prog, err := svc.repo.GetProgram(ctx, id)
	if err != nil {
		return err
	}
	now := core.Now()
	prog.IsActive = false
	prog.DeletedAt = &now
	prog.UpdatedBy = actor.AuditID()
	prog.UpdatedAt = now
	_, err = svc.repo.UpdateProgram(ctx, prog)
	return err
}

func (svc *Service) GetProgram(ctx context.Context, id string) (Program, error) {
	return svc.repo.GetProgram(ctx, id)
}

// GetPrograms returns the programs with the given ids, keyed by ID.
func (svc *Service) GetPrograms(ctx context.Context, ids ...string) (map[string]Program, error) {
	progs, err := svc.repo.GetProgramsByID(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Program, len(progs))
	for _, p := range progs {
		byID[p.ID] = p
	}
	return byID, nil
}

func (svc *Service) QueryPrograms(ctx context.Context, filter QueryFilter, pq core.PageQuery) (core.Page[Program], error) {
	pq.Clean(ProgramOrderings)
	return svc.repo.QueryPrograms(ctx, filter, pq)
}
