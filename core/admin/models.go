package admin

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

type Admin struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Phone      string     `json:"phone"`
	AvatarPath string     `json:"avatar_path"`
	IsSuper    bool       `json:"is_super"`
	CreatedBy  *string    `json:"created_by"`
	UpdatedBy  *string    `json:"updated_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"-"`

	User user.User `json:"user"`
}

type NewAdmin struct {
	user.NewUser
	Phone   string `json:"phone" validate:"max=32"`
	IsSuper bool   `json:"is_super"`
}

func (na *NewAdmin) Validate(ctx context.Context, validate *validator.Validate, usrSvc *user.Service) error {
	na.Phone = core.CleanString(na.Phone)
	na.NewUser.Clean()
	if err := validate.Struct(na); err != nil {
		return err
	}
	return usrSvc.CheckUniqueness(ctx, na.Email)
}

type UpdateAdmin struct {
	Name    string  `json:"name" validate:"omitempty,max=255"`
	Email   string  `json:"email" validate:"omitempty,email"`
	Phone   *string `json:"phone" validate:"omitempty,max=32"`
	IsSuper *bool   `json:"is_super"`
}

func (ua *UpdateAdmin) Validate(ctx context.Context, orig Admin, validate *validator.Validate, usrSvc *user.Service) error {
	ua.Name = core.CleanString(ua.Name)
	ua.Email = core.CleanString(ua.Email, true /* lower */)
	if err := validate.Struct(ua); err != nil {
		return err
	}
	if ua.Email != "" && ua.Email != orig.User.Email {
		return usrSvc.CheckUniqueness(ctx, ua.Email, orig.UserID)
	}
	return nil
}

type CountFilter struct {
	ActiveOnly   bool
	CreatedAfter time.Time
}
