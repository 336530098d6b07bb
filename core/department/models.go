package department

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
)

type Department struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	IsActive    bool       `json:"is_active"`
	CreatedBy   *string    `json:"created_by"`
	UpdatedBy   *string    `json:"updated_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"-"`
}

type Program struct {
	ID           string     `json:"id"`
	DepartmentID string     `json:"department_id"`
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	LMSProgramID string     `json:"lms_program_id"`
	IsActive     bool       `json:"is_active"`
	CreatedBy    *string    `json:"created_by"`
	UpdatedBy    *string    `json:"updated_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"-"`
}

// DepartmentData is used to create or update a Department.
type DepartmentData struct {
	Code        string `json:"code" validate:"required,max=20,code"`
	Name        string `json:"name" validate:"required,notblank,max=255"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

func (d *DepartmentData) Validate(ctx context.Context, validate *validator.Validate, svc *Service, excludedID ...string) error {
	d.Code = strings.ToUpper(core.CleanString(d.Code))
	d.Name = core.CleanString(d.Name)
	d.Description = core.CleanString(d.Description)
	if err := validate.Struct(d); err != nil {
		return err
	}
	return svc.checkDepartmentCode(ctx, d.Code, excludedID...)
}

// ProgramData is used to create or update a Program.
type ProgramData struct {
	DepartmentID string `json:"department_id" validate:"required,uuid"`
	Code         string `json:"code" validate:"required,max=20,code"`
	Name         string `json:"name" validate:"required,notblank,max=255"`
	Description  string `json:"description"`
	LMSProgramID string `json:"lms_program_id" validate:"max=64"`
	IsActive     *bool  `json:"is_active"`
}

func (p *ProgramData) Validate(ctx context.Context, validate *validator.Validate, svc *Service, excludedID ...string) error {
	p.Code = strings.ToUpper(core.CleanString(p.Code))
	p.Name = core.CleanString(p.Name)
	p.Description = core.CleanString(p.Description)
	p.LMSProgramID = core.CleanString(p.LMSProgramID)
	if err := validate.Struct(p); err != nil {
		return err
	}
	if _, err := svc.GetDepartment(ctx, p.DepartmentID); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: "department_id", Error: err.Error()})
		}
		return err
	}
	return svc.checkProgramCode(ctx, p.Code, excludedID...)
}

type QueryFilter struct {
	DepartmentID string `query:"department_id"`
	IsActive     *bool  `query:"is_active"`
}
