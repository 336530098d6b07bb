package student

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

// Statuses
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusGraduated = "graduated"
	StatusWithdrawn = "withdrawn"
)

var Statuses = []string{StatusActive, StatusSuspended, StatusGraduated, StatusWithdrawn}

type Student struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	StudentNumber  string     `json:"student_number"`
	ProgramID      *string    `json:"program_id"`
	Phone          string     `json:"phone"`
	AvatarPath     string     `json:"avatar_path"`
	EnrollmentDate time.Time  `json:"enrollment_date"`
	Status         string     `json:"status"`
	CreatedBy      *string    `json:"created_by"`
	UpdatedBy      *string    `json:"updated_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"-"`

	// read only; loaded with the student
	User user.User `json:"user"`
}

func (s Student) IsActive() bool {
	return s.Status == StatusActive && s.DeletedAt == nil
}

// NewStudent contains the information needed to create a Student and their User account.
type NewStudent struct {
	user.NewUser
	ProgramID      string    `json:"program_id" validate:"omitempty,uuid"`
	Phone          string    `json:"phone" validate:"max=32"`
	EnrollmentDate time.Time `json:"enrollment_date"`
}

func (ns *NewStudent) Validate(ctx context.Context, validate *validator.Validate, usrSvc *user.Service) error {
	ns.Phone = core.CleanString(ns.Phone)
	ns.ProgramID = core.CleanString(ns.ProgramID)
	ns.NewUser.Clean()
	if err := validate.Struct(ns); err != nil {
		return err
	}
	return usrSvc.CheckUniqueness(ctx, ns.Email)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
type UpdateStudent struct {
	Name      string  `json:"name" validate:"omitempty,max=255"`
	Email     string  `json:"email" validate:"omitempty,email"`
	ProgramID *string `json:"program_id" validate:"omitempty,uuid"`
	Phone     *string `json:"phone" validate:"omitempty,max=32"`
	Status    string  `json:"status" validate:"omitempty,oneof=active suspended graduated withdrawn"`
}

func (us *UpdateStudent) Validate(ctx context.Context, orig Student, validate *validator.Validate, usrSvc *user.Service) error {
	us.Name = core.CleanString(us.Name)
	us.Email = core.CleanString(us.Email, true /* lower */)
	if err := validate.Struct(us); err != nil {
		return err
	}
	if us.Email != "" && us.Email != orig.User.Email {
		return usrSvc.CheckUniqueness(ctx, us.Email, orig.UserID)
	}
	return nil
}

type QueryFilter struct {
	ProgramID string `query:"program_id"`
	Status    string `query:"status"`
}

// CountFilter narrows down student counts. Soft deleted students are never counted.
type CountFilter struct {
	Status       string
	CreatedAfter time.Time
}
