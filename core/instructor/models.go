package instructor

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

// Statuses
const (
	StatusActive   = "active"
	StatusOnLeave  = "on_leave"
	StatusInactive = "inactive"
)

type Instructor struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	EmployeeNumber string     `json:"employee_number"`
	DepartmentID   *string    `json:"department_id"`
	Title          string     `json:"title"`
	Phone          string     `json:"phone"`
	AvatarPath     string     `json:"avatar_path"`
	Status         string     `json:"status"`
	CreatedBy      *string    `json:"created_by"`
	UpdatedBy      *string    `json:"updated_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"-"`

	User user.User `json:"user"`
}

type NewInstructor struct {
	user.NewUser
	DepartmentID string `json:"department_id" validate:"omitempty,uuid"`
	Title        string `json:"title" validate:"max=100"`
	Phone        string `json:"phone" validate:"max=32"`
}

func (ni *NewInstructor) Validate(ctx context.Context, validate *validator.Validate, usrSvc *user.Service) error {
	ni.DepartmentID = core.CleanString(ni.DepartmentID)
	ni.Title = core.CleanString(ni.Title)
	ni.Phone = core.CleanString(ni.Phone)
	ni.NewUser.Clean()
	if err := validate.Struct(ni); err != nil {
		return err
	}
	return usrSvc.CheckUniqueness(ctx, ni.Email)
}

type UpdateInstructor struct {
	Name         string  `json:"name" validate:"omitempty,max=255"`
	Email        string  `json:"email" validate:"omitempty,email"`
	DepartmentID *string `json:"department_id" validate:"omitempty,uuid"`
	Title        *string `json:"title" validate:"omitempty,max=100"`
	Phone        *string `json:"phone" validate:"omitempty,max=32"`
	Status       string  `json:"status" validate:"omitempty,oneof=active on_leave inactive"`
}

func (ui *UpdateInstructor) Validate(ctx context.Context, orig Instructor, validate *validator.Validate, usrSvc *user.Service) error {
	ui.Name = core.CleanString(ui.Name)
	ui.Email = core.CleanString(ui.Email, true /* lower */)
	if err := validate.Struct(ui); err != nil {
		return err
	}
	if ui.Email != "" && ui.Email != orig.User.Email {
		return usrSvc.CheckUniqueness(ctx, ui.Email, orig.UserID)
	}
	return nil
}

type QueryFilter struct {
	DepartmentID string `query:"department_id"`
	Status       string `query:"status"`
}

type CountFilter struct {
	Status       string
	CreatedAfter time.Time
}
