package admin

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

var (
	ErrNotFound = core.NewNotFoundError("admin not found")

	errDeleteSelf   = core.NewRuleError("You cannot delete your own admin account")
	errLastSuperAdm = core.NewRuleError("At least one super admin must remain")

	Orderings = map[string]string{"name": "name", "email": "email", "created_at": "created_at"}
)

type (
	Repository interface {
		CreateAdmin(ctx context.Context, adm Admin) (Admin, error)
		UpdateAdmin(ctx context.Context, adm Admin) (Admin, error)
		GetAdmin(ctx context.Context, id string) (Admin, error)
		GetAdminByUserID(ctx context.Context, userID string) (Admin, error)
		QueryAdmins(ctx context.Context, pq core.PageQuery) (core.Page[Admin], error)
		CountAdmins(ctx context.Context, filter CountFilter) (int, error)
		CountSuperAdmins(ctx context.Context) (int, error)
	}

	Deps struct {
		Repo     Repository
		UserSvc  *user.Service
		Tx       core.Transactor
		Cache    core.Cache
		Inv      *core.Invalidator
		MailSvc  core.EmailService
		Logger   core.Logger
		StatsTTL time.Duration
	}

	Service struct {
		Deps
	}
)

func NewService(deps Deps) *Service {
	return &Service{Deps: deps}
}

func roles(isSuper bool) []string {
	if isSuper {
		return []string{user.RoleAdmin, user.RoleAdminSuper}
	}
	return []string{user.RoleAdmin}
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, na NewAdmin) (Admin, error) {
	var created Admin
	err := svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		nu := na.NewUser
		nu.Roles = roles(na.IsSuper)
		usr, err := svc.UserSvc.Create(ctx, nu)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}
		now := core.Now()
		adm := Admin{
			ID:        core.NewID(),
			UserID:    usr.ID,
			Phone:     na.Phone,
			IsSuper:   na.IsSuper,
			CreatedBy: actor.AuditID(),
			UpdatedBy: actor.AuditID(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if created, err = svc.Repo.CreateAdmin(ctx, adm); err != nil {
			return errors.Wrap(err, "creating admin")
		}
		created.User = usr
		return nil
	})
	if err != nil {
		return Admin{}, err
	}

	svc.Inv.Emit(ctx, core.AdminsChanged{})
	svc.MailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: created.User.Name, Address: created.User.Email}},
		Subject:      "Your admin account",
		TemplateName: "account_created",
		TemplateData: struct{ Name, Email, Role string }{created.User.Name, created.User.Email, "admin"},
	})
	return created, nil
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, ua UpdateAdmin) (Admin, error) {
	adm, err := svc.Repo.GetAdmin(ctx, id)
	if err != nil {
		return Admin{}, err
	}
	if ua.IsSuper != nil && !*ua.IsSuper && adm.IsSuper {
		if err = svc.checkLastSuperAdmin(ctx); err != nil {
			return Admin{}, err
		}
	}

	var updated Admin
	err = svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		usr := adm.User
		uu := user.UpdateUser{Name: usr.Name, Email: usr.Email}
		if ua.Name != "" {
			uu.Name = ua.Name
		}
		if ua.Email != "" {
			uu.Email = ua.Email
		}
		if ua.IsSuper != nil {
			adm.IsSuper = *ua.IsSuper
			uu.Roles = roles(adm.IsSuper)
		}
		if usr, err = svc.UserSvc.Update(ctx, adm.UserID, uu); err != nil {
			return errors.Wrap(err, "updating user")
		}
		if ua.Phone != nil {
			adm.Phone = core.CleanString(*ua.Phone)
		}
		adm.UpdatedBy = actor.AuditID()
		adm.UpdatedAt = core.Now()
		if updated, err = svc.Repo.UpdateAdmin(ctx, adm); err != nil {
			return errors.Wrap(err, "updating admin")
		}
		updated.User = usr
		return nil
	})
	if err != nil {
		return Admin{}, err
	}
	svc.Inv.Emit(ctx, core.AdminsChanged{})
	return updated, nil
}

func (svc *Service) checkLastSuperAdmin(ctx context.Context) error {
	count, err := svc.Repo.CountSuperAdmins(ctx)
	if err != nil {
		return errors.Wrap(err, "counting super admins")
	}
	if count <= 1 {
		return errLastSuperAdm
	}
	return nil
}

// Delete soft deletes the admin and deactivates their account. Admins cannot delete themselves.
func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	adm, err := svc.Repo.GetAdmin(ctx, id)
	if err != nil {
		return err
	}
	if adm.UserID == actor.UserID {
		return errDeleteSelf
	}
	if adm.IsSuper {
		if err = svc.checkLastSuperAdmin(ctx); err != nil {
			return err
		}
	}
	err = svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		now := core.Now()
		adm.DeletedAt = &now
		adm.UpdatedBy = actor.AuditID()
		adm.UpdatedAt = now
		if _, err := svc.Repo.UpdateAdmin(ctx, adm); err != nil {
			return errors.Wrap(err, "deleting admin")
		}
		_, err := svc.UserSvc.SetActive(ctx, adm.UserID, false)
		return errors.Wrap(err, "deactivating user")
	})
	if err != nil {
		return err
	}
	svc.Inv.Emit(ctx, core.AdminsChanged{})
	return nil
}

func (svc *Service) Get(ctx context.Context, id string) (Admin, error) {
	return svc.Repo.GetAdmin(ctx, id)
}

func (svc *Service) Query(ctx context.Context, pq core.PageQuery) (core.Page[Admin], error) {
	pq.Clean(Orderings)
	return svc.Repo.QueryAdmins(ctx, pq)
}

func (svc *Service) Stats(ctx context.Context) (core.CountStats, error) {
	return core.Remember(ctx, svc.Cache, svc.Logger, core.AdminStatsKey, svc.StatsTTL,
		func(ctx context.Context) (core.CountStats, error) {
			var stats core.CountStats
			var err error
			if stats.Total, err = svc.Repo.CountAdmins(ctx, CountFilter{}); err != nil {
				return stats, errors.Wrap(err, "counting admins")
			}
			if stats.Active, err = svc.Repo.CountAdmins(ctx, CountFilter{ActiveOnly: true}); err != nil {
				return stats, errors.Wrap(err, "counting active admins")
			}
			stats.NewThisMonth, err = svc.Repo.CountAdmins(ctx, CountFilter{CreatedAfter: core.StartOfMonth(core.Now())})
			return stats, errors.Wrap(err, "counting new admins")
		},
	)
}
