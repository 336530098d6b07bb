package student

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
	ErrNotFound = core.NewNotFoundError("student not found")

	errUnknownProgram = errors.New("program not found")
	errAvatarType     = core.NewRuleError("Avatar must be a .jpg, .jpeg, .png or .webp image")

	// Orderings are the sortable columns of student listings.
	Orderings = map[string]string{
		"student_number":  "student_number",
		"name":            "name",
		"email":           "email",
		"status":          "status",
		"enrollment_date": "enrollment_date",
		"created_at":      "created_at",
	}

	avatarExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, st Student) (Student, error)
		UpdateStudent(ctx context.Context, st Student) (Student, error)
		// GetStudent and GetStudentByUserID ignore soft deleted students.
		GetStudent(ctx context.Context, id string) (Student, error)
		GetStudentByUserID(ctx context.Context, userID string) (Student, error)
		// QueryStudents searches student number, user name and user email.
		QueryStudents(ctx context.Context, filter QueryFilter, pq core.PageQuery) (core.Page[Student], error)
		CountStudentNumbers(ctx context.Context, prefix string) (int, error)
		CountStudents(ctx context.Context, filter CountFilter) (int, error)
		CountStudentsByProgram(ctx context.Context, programIDs ...string) (map[string]int, error)
	}

	ProgramReader interface {
		GetProgram(ctx context.Context, id string) (department.Program, error)
	}

	Deps struct {
		Repo     Repository
		UserSvc  *user.Service
		Programs ProgramReader
		Tx       core.Transactor
		Storage  core.FileStorage
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

func (svc *Service) checkProgram(ctx context.Context, programID string) error {
	if programID == "" {
		return nil
	}
	if _, err := svc.Programs.GetProgram(ctx, programID); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(errUnknownProgram, core.FieldError{Field: "program_id", Error: errUnknownProgram.Error()})
		}
		return errors.Wrap(err, "getting program")
	}
	return nil
}

func (svc *Service) nextStudentNumber(ctx context.Context, year int) (string, error) {
	prefix := fmt.Sprintf("STU-%d-", year)
	count, err := svc.Repo.CountStudentNumbers(ctx, prefix)
	if err != nil {
		return "", errors.Wrap(err, "counting student numbers")
	}
	return fmt.Sprintf("%s%05d", prefix, count+1), nil
}

// Create creates the student's User and Student records atomically.
func (svc *Service) Create(ctx context.Context, actor core.Actor, ns NewStudent) (Student, error) {
	if err := svc.checkProgram(ctx, ns.ProgramID); err != nil {
		return Student{}, err
	}

	var created Student
	err := svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		nu := ns.NewUser
		nu.Roles = []string{user.RoleStudent}
		usr, err := svc.UserSvc.Create(ctx, nu)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}

		now := core.Now()
		enrolled := ns.EnrollmentDate
		if enrolled.IsZero() {
			enrolled = now
		}
		number, err := svc.nextStudentNumber(ctx, enrolled.Year())
		if err != nil {
			return err
		}

		st := Student{
			ID:             core.NewID(),
			UserID:         usr.ID,
			StudentNumber:  number,
			Phone:          ns.Phone,
			EnrollmentDate: enrolled.Truncate(24 * time.Hour),
			Status:         StatusActive,
			CreatedBy:      actor.AuditID(),
			UpdatedBy:      actor.AuditID(),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if ns.ProgramID != "" {
			pid := ns.ProgramID
			st.ProgramID = &pid
		}
		if created, err = svc.Repo.CreateStudent(ctx, st); err != nil {
			return errors.Wrap(err, "creating student")
		}
		created.User = usr
		return nil
	})
	if err != nil {
		return Student{}, err
	}

	svc.Inv.Emit(ctx, core.StudentsChanged{})
	svc.MailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: created.User.Name, Address: created.User.Email}},
		Subject:      "Your student account",
		TemplateName: "account_created",
		TemplateData: accountCreatedData{Name: created.User.Name, Email: created.User.Email, Role: "student"},
	})
	return created, nil
}

type accountCreatedData struct {
	Name  string
	Email string
	Role  string
}

func (svc *Service) Update(ctx context.Context, actor core.Actor, id string, us UpdateStudent) (Student, error) {
	st, err := svc.Repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if us.ProgramID != nil && *us.ProgramID != "" {
		if err = svc.checkProgram(ctx, *us.ProgramID); err != nil {
			return Student{}, err
		}
	}

	var updated Student
	err = svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		usr := st.User
		if us.Name != "" || us.Email != "" {
			uu := user.UpdateUser{Name: usr.Name, Email: usr.Email}
			if us.Name != "" {
				uu.Name = us.Name
			}
			if us.Email != "" {
				uu.Email = us.Email
			}
			if usr, err = svc.UserSvc.Update(ctx, st.UserID, uu); err != nil {
				return errors.Wrap(err, "updating user")
			}
		}

		if us.ProgramID != nil {
			if *us.ProgramID == "" {
				st.ProgramID = nil
			} else {
				pid := *us.ProgramID
				st.ProgramID = &pid
			}
		}
		if us.Phone != nil {
			st.Phone = core.CleanString(*us.Phone)
		}
		if us.Status != "" {
			st.Status = us.Status
		}
		st.UpdatedBy = actor.AuditID()
		st.UpdatedAt = core.Now()
		if updated, err = svc.Repo.UpdateStudent(ctx, st); err != nil {
			return errors.Wrap(err, "updating student")
		}
		updated.User = usr
		return nil
	})
	if err != nil {
		return Student{}, err
	}
	svc.Inv.Emit(ctx, core.StudentsChanged{})
	return updated, nil
}

// Delete soft deletes the student and deactivates their account.
func (svc *Service) Delete(ctx context.Context, actor core.Actor, id string) error {
	st, err := svc.Repo.GetStudent(ctx, id)
	if err != nil {
		return err
	}
	err = svc.Tx.RunInTx(ctx, func(ctx context.Context) error {
		now := core.Now()
		st.DeletedAt = &now
		st.UpdatedBy = actor.AuditID()
		st.UpdatedAt = now
		if _, err := svc.Repo.UpdateStudent(ctx, st); err != nil {
			return errors.Wrap(err, "deleting student")
		}
		if _, err := svc.UserSvc.SetActive(ctx, st.UserID, false); err != nil {
			return errors.Wrap(err, "deactivating user")
		}
		return nil
	})
	if err != nil {
		return err
	}
	svc.Inv.Emit(ctx, core.StudentsChanged{})
	return nil
}

func (svc *Service) Get(ctx context.Context, id string) (Student, error) {
	return svc.Repo.GetStudent(ctx, id)
}

func (svc *Service) GetByUserID(ctx context.Context, userID string) (Student, error) {
	return svc.Repo.GetStudentByUserID(ctx, userID)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, pq core.PageQuery) (core.Page[Student], error) {
	pq.Clean(Orderings)
	return svc.Repo.QueryStudents(ctx, filter, pq)
}

// UploadAvatar stores the avatar under avatars/ and records its path.
func (svc *Service) UploadAvatar(ctx context.Context, actor core.Actor, id, filename string, r io.Reader) (Student, error) {
	st, err := svc.Repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	ext := strings.ToLower(path.Ext(filename))
	if !avatarExts[ext] {
		return Student{}, errAvatarType
	}

	stored, err := svc.Storage.Save(ctx, path.Join(core.AvatarsDir, st.UserID+ext), r)
	if err != nil {
		return Student{}, errors.Wrap(err, "saving avatar")
	}
	old := st.AvatarPath
	st.AvatarPath = stored.Path
	st.UpdatedBy = actor.AuditID()
	st.UpdatedAt = core.Now()
	usr := st.User
	if st, err = svc.Repo.UpdateStudent(ctx, st); err != nil {
		return Student{}, errors.Wrap(err, "updating student")
	}
	st.User = usr
	if old != "" && old != stored.Path {
		if err := svc.Storage.Delete(ctx, old); err != nil {
			svc.Logger.Warn(fmt.Sprintf("deleting old avatar %q: %v", old, err), err)
		}
	}
	return st, nil
}

// Stats returns the cached student counters.
func (svc *Service) Stats(ctx context.Context) (core.CountStats, error) {
	return core.Remember(ctx, svc.Cache, svc.Logger, core.StudentStatsKey, svc.StatsTTL, svc.countStats)
}

func (svc *Service) countStats(ctx context.Context) (core.CountStats, error) {
	var stats core.CountStats
	var err error
	if stats.Total, err = svc.Repo.CountStudents(ctx, CountFilter{}); err != nil {
		return stats, errors.Wrap(err, "counting students")
	}
	if stats.Active, err = svc.Repo.CountStudents(ctx, CountFilter{Status: StatusActive}); err != nil {
		return stats, errors.Wrap(err, "counting active students")
	}
	if stats.NewThisMonth, err = svc.Repo.CountStudents(ctx, CountFilter{CreatedAfter: core.StartOfMonth(core.Now())}); err != nil {
		return stats, errors.Wrap(err, "counting new students")
	}
	return stats, nil
}

// CountByProgram returns the number of active students of each program.
func (svc *Service) CountByProgram(ctx context.Context, programIDs ...string) (map[string]int, error) {
	return svc.Repo.CountStudentsByProgram(ctx, programIDs...)
}
