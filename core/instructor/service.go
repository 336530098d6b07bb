package instructor

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/department"
	"github.com/trezcool/academia/core/user"
)

var (
	ErrNotFound = core.NewNotFoundError("instructor not found")

	errUnknownDepartment = errors.New("department not found")
	errAvatarType        = core.NewRuleError("Avatar must be a .jpg, .jpeg, .png or .webp image")

	Orderings = map[string]string{
		"employee_number": "employee_number",
		"name":            "name",
		"email":           "email",
		"status":          "status",
		"created_at":      "created_at",
	}
)

type (
	Repository interface {
		CreateInstructor(ctx context.Context, ins Instructor) (Instructor, error)
		UpdateInstructor(ctx context.Context, ins Instructor) (Instructor, error)
		GetInstructor(ctx context.Context, id string) (Instructor, error)
		GetInstructorByUserID(ctx context.Context, userID string) (Instructor, error)
		GetInstructorsByID(ctx context.Context, ids ...string) ([]Instructor, error)
		QueryInstructors(ctx context.Context, filter QueryFilter, pq core.PageQuery) (core.Page[Instructor], error)
		CountEmployeeNumbers(ctx context.Context, prefix string) (int, error)
		CountInstructors(ctx context.Context, filter CountFilter) (int, error)
	}

	DepartmentReader interface {
		GetDepartment(ctx context.Context, id string) (department.Department, error)
	}

	Deps struct {
		Repo        Repository
		UserSvc     *user.Service
		Departments DepartmentReader
		Tx          core.Transactor
		Storage     core.FileStorage
		Cache       core.Cache
		Inv         *core.Invalidator
		MailSvc     core.EmailService
		Logger      core.Logger
		StatsTTL    time.Duration
	}

	Service struct {
		Deps
	}
)

func NewService(deps Deps) *Service {
	return &Service{Deps: deps}
}

func (svc *Service) checkDepartment(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := svc.Departments.GetDepartment(ctx, id); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(errUnknownDepartment, core.FieldError{Field: "department_id", Error: errUnknownDepartment.Error()})
		}
		return errors.Wrap(err, "getting department")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, actor core.Actor, ni NewInstructor) (Instructor, error) {
	if err := svc.checkDepartment(ctx, ni.DepartmentID); err != nil {
		return Instructor{}, err
	}

	var created Instructor
	err := svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		nu := ni.NewUser
		nu.Roles = []string{user.RoleInstructor}
		usr, err := svc.UserSvc.Create(ctx, nu)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}

		now := core.Now()
		prefix := fmt.Sprintf("EMP-%d-", now.Year())
		count, err := svc.Repo.CountEmployeeNumbers(ctx, prefix)
		if err != nil {
			return errors.Wrap(err, "counting employee numbers")
		}

		ins := Instructor{
			ID:             core.NewID(),
			UserID:         usr.ID,
			EmployeeNumber: fmt.Sprintf("%s%04d", prefix, count+1),
			Title:          ni.Title,
			Phone:          ni.Phone,
			Status:         StatusActive,
			CreatedBy:      actor.AuditID(),
			UpdatedBy:      actor.AuditID(),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if ni.DepartmentID != "" {
			did := ni.DepartmentID
			ins.DepartmentID = &did
		}
		if created, err = svc.Repo.CreateInstructor(ctx, ins); err != nil {
			return errors.Wrap(err, "creating instructor")
		}
		created.User = usr
		return nil
	})
	if err != nil {
		return Instructor{}, err
	}

	svc.Inv.Emit(ctx, core.InstructorsChanged{})
	svc.MailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: created.User.Name, Address: created.User.Email}},
		Subject:      "Your instructor account",
		TemplateName: "account_created",
		TemplateData: accountCreatedData{Name: created.User.Name, Email: created.User.Email, Role: "instructor"},
	})
	return created, nil
}

type accountCreatedData struct {
	Name  string
	Email string
	Role  string
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, ui UpdateInstructor) (Instructor, error) {
	ins, err := svc.Repo.GetInstructor(ctx, id)
	if err != nil {
		return Instructor{}, err
	}
	if ui.DepartmentID != nil && *ui.DepartmentID != "" {
		if err = svc.checkDepartment(ctx, *ui.DepartmentID); err != nil {
			return Instructor{}, err
		}
	}

	var updated Instructor
	err = svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		usr := ins.User
		if ui.Name != "" || ui.Email != "" {
			uu := user.UpdateUser{Name: usr.Name, Email: usr.Email}
			if ui.Name != "" {
				uu.Name = ui.Name
			}
			if ui.Email != "" {
				uu.Email = ui.Email
			}
			if usr, err = svc.UserSvc.Update(ctx, ins.UserID, uu); err != nil {
				return errors.Wrap(err, "updating user")
			}
		}
		if ui.DepartmentID != nil {
			if *ui.DepartmentID == "" {
				ins.DepartmentID = nil
			} else {
				did := *ui.DepartmentID
				ins.DepartmentID = &did
			}
		}
		if ui.Title != nil {
			ins.Title = core.CleanString(*ui.Title)
		}
		if ui.Phone != nil {
			ins.Phone = core.CleanString(*ui.Phone)
		}
		if ui.Status != "" {
			ins.Status = ui.Status
		}
		ins.UpdatedBy = actor.AuditID()
		ins.UpdatedAt = core.Now()
		if updated, err = svc.Repo.UpdateInstructor(ctx, ins); err != nil {
			return errors.Wrap(err, "updating instructor")
		}
		updated.User = usr
		return nil
	})
	if err != nil {
		return Instructor{}, err
	}
	svc.Inv.Emit(ctx, core.InstructorsChanged{})
	return updated, nil
}

// Delete soft deletes the instructor and deactivates their account.
func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	ins, err := svc.Repo.GetInstructor(ctx, id)
	if err != nil {
		return err
	}
	err = svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		now := core.Now()
		ins.DeletedAt = &now
		ins.Status = StatusInactive
		ins.UpdatedBy = actor.AuditID()
		ins.UpdatedAt = now
		if _, err := svc.Repo.UpdateInstructor(ctx, ins); err != nil {
			return errors.Wrap(err, "deleting instructor")
		}
		if _, err := svc.UserSvc.SetActive(ctx, ins.UserID, false); err != nil {
			return errors.Wrap(err, "deactivating user")
		}
		return nil
	})
	if err != nil {
		return err
	}
	svc.Inv.Emit(ctx, core.InstructorsChanged{})
	return nil
}

func (svc *Service) Get(ctx context.Context, id string) (Instructor, error) {
	return svc.Repo.GetInstructor(ctx, id)
}

func (svc *Service) GetByUserID(ctx context.Context, userID string) (Instructor, error) {
	return svc.Repo.GetInstructorByUserID(ctx, userID)
}

// GetMany returns the instructors with the given ids, keyed by ID.
func (svc *Service) GetMany(ctx context.Context, ids ...string) (map[string]Instructor, error) {
	list, err := svc.Repo.GetInstructorsByID(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Instructor, len(list))
	for _, ins := range list {
		byID[ins.ID] = ins
	}
	return byID, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, pq core.PageQuery) (core.Page[Instructor], error) {
	pq.Clean(Orderings)
	return svc.Repo.QueryInstructors(ctx, filter, pq)
}

func (svc *Service) UploadAvatar(ctx context.Context, actor core.Actor, id, filename string, r io.Reader) (Instructor, error) {
	ins, err := svc.Repo.GetInstructor(ctx, id)
	if err != nil {
		return Instructor{}, err
	}
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		return Instructor{}, errAvatarType
	}

	stored, err := svc.Storage.Save(ctx, path.Join(core.AvatarsDir, ins.UserID+ext), r)
	if err != nil {
		return Instructor{}, errors.Wrap(err, "saving avatar")
	}
	ins.AvatarPath = stored.Path
	ins.UpdatedBy = actor.AuditID()
	ins.UpdatedAt = core.Now()
	usr := ins.User
	if ins, err = svc.Repo.UpdateInstructor(ctx, ins); err != nil {
		return Instructor{}, errors.Wrap(err, "updating instructor")
	}
	ins.User = usr
	return ins, nil
}

func (svc *Service) Stats(ctx context.Context) (core.CountStats, error) {
	return core.Remember(ctx, svc.Cache, svc.Logger, core.InstructorStatsKey, svc.StatsTTL,
		func(ctx context.Context) (core.CountStats, error) {
			var stats core.CountStats
			var err error
			if stats.Total, err = svc.Repo.CountInstructors(ctx, CountFilter{}); err != nil {
				return stats, errors.Wrap(err, "counting instructors")
			}
			if stats.Active, err = svc.Repo.CountInstructors(ctx, CountFilter{Status: StatusActive}); err != nil {
				return stats, errors.Wrap(err, "counting active instructors")
			}
			stats.NewThisMonth, err = svc.Repo.CountInstructors(ctx, CountFilter{CreatedAfter: core.StartOfMonth(core.Now())})
			return stats, errors.Wrap(err, "counting new instructors")
		},
	)
}
