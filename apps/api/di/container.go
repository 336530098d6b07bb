// Package di wires the services of the application by hand.
package di

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/admin"
	"github.com/trezcool/academia/core/application"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/dashboard"
	"github.com/trezcool/academia/core/department"
	"github.com/trezcool/academia/core/grading"
	"github.com/trezcool/academia/core/instructor"
	"github.com/trezcool/academia/core/progress"
	"github.com/trezcool/academia/core/quiz"
	"github.com/trezcool/academia/core/student"
	"github.com/trezcool/academia/core/user"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
)

type (
	Repositories struct {
		Users        user.Repository
		Departments  department.Repository
		Students     student.Repository
		Instructors  instructor.Repository
		Admins       admin.Repository
		Courses      course.Repository
		Progress     progress.Repository
		Grading      grading.Repository
		Applications application.Repository
	}

	// Infra holds the storage and the outer services the domain services run on.
	Infra struct {
		Conf    *core.Config
		Logger  core.Logger
		Repos   Repositories
		Tx      core.Transactor
		Cache   core.Cache
		Storage core.FileStorage
		LMS     core.LMSClient
		Jobs    core.JobDispatcher
		MailSvc core.EmailService
	}

	Container struct {
		Infra
		Inv   *core.Invalidator
		Scale *grading.Scale

		UserSvc        *user.Service
		PasswordReset  *user.PasswordReset
		DepartmentSvc  *department.Service
		StudentSvc     *student.Service
		InstructorSvc  *instructor.Service
		AdminSvc       *admin.Service
		CourseSvc      *course.Service
		Gating         *progress.Gating
		ItemSvc        *progress.ItemService
		ModuleSvc      *progress.ModuleService
		QuizSvc        *quiz.Service
		GradingSvc     *grading.Service
		ApplicationSvc *application.Service
		DashboardSvc   *dashboard.Service
	}
)

// InmemRepositories returns the repositories of the in-memory store. db also serves as the Transactor.
func InmemRepositories(db *inmemdb.DB) Repositories {
	return Repositories{
		Users:        inmemdb.NewUserRepository(db),
		Departments:  inmemdb.NewDepartmentRepository(db),
		Students:     inmemdb.NewStudentRepository(db),
		Instructors:  inmemdb.NewInstructorRepository(db),
		Admins:       inmemdb.NewAdminRepository(db),
		Courses:      inmemdb.NewCourseRepository(db),
		Progress:     inmemdb.NewProgressRepository(db),
		Grading:      inmemdb.NewGradingRepository(db),
		Applications: inmemdb.NewApplicationRepository(db),
	}
}

// SQLRepositories returns the Postgres repositories. Use sqlxrepos.NewTransactor(db) as the Transactor.
func SQLRepositories(db *sqlx.DB) Repositories {
	return Repositories{
		Users:        sqlxrepos.NewUserRepository(db),
		Departments:  sqlxrepos.NewDepartmentRepository(db),
		Students:     sqlxrepos.NewStudentRepository(db),
		Instructors:  sqlxrepos.NewInstructorRepository(db),
		Admins:       sqlxrepos.NewAdminRepository(db),
		Courses:      sqlxrepos.NewCourseRepository(db),
		Progress:     sqlxrepos.NewProgressRepository(db),
		Grading:      sqlxrepos.NewGradingRepository(db),
		Applications: sqlxrepos.NewApplicationRepository(db),
	}
}

// NewContainer builds every domain service on top of infra.
func NewContainer(infra Infra) (*Container, error) {
	conf := infra.Conf
	scale, err := grading.NewScale(conf.GradingScale)
	if err != nil {
		return nil, errors.Wrap(err, "parsing grading scale")
	}

	c := &Container{
		Infra: infra,
		Inv:   core.NewInvalidator(infra.Cache, infra.Logger),
		Scale: scale,
	}

	c.UserSvc = user.NewService(infra.Repos.Users)
	c.PasswordReset = user.NewPasswordReset(c.UserSvc, infra.Conf, infra.MailSvc)
	c.DepartmentSvc = department.NewService(infra.Repos.Departments)
	c.StudentSvc = student.NewService(student.Deps{
		Repo:     infra.Repos.Students,
		UserSvc:  c.UserSvc,
		Programs: c.DepartmentSvc,
		Tx:       infra.Tx,
		Storage:  infra.Storage,
		Cache:    infra.Cache,
		Inv:      c.Inv,
		MailSvc:  infra.MailSvc,
		Logger:   infra.Logger,
		StatsTTL: conf.Cache.StatsTTL,
	})
	c.InstructorSvc = instructor.NewService(instructor.Deps{
		Repo:        infra.Repos.Instructors,
		UserSvc:     c.UserSvc,
		Departments: c.DepartmentSvc,
		Tx:          infra.Tx,
		Storage:     infra.Storage,
		Cache:       infra.Cache,
		Inv:         c.Inv,
		MailSvc:     infra.MailSvc,
		Logger:      infra.Logger,
		StatsTTL:    conf.Cache.StatsTTL,
	})
	c.AdminSvc = admin.NewService(admin.Deps{
		Repo:     infra.Repos.Admins,
		UserSvc:  c.UserSvc,
		Tx:       infra.Tx,
		Cache:    infra.Cache,
		Inv:      c.Inv,
		MailSvc:  infra.MailSvc,
		Logger:   infra.Logger,
		StatsTTL: conf.Cache.StatsTTL,
	})
	c.CourseSvc = course.NewService(course.Deps{
		Repo:        infra.Repos.Courses,
		Programs:    c.DepartmentSvc,
		Instructors: c.InstructorSvc,
		Students:    c.StudentSvc,
		Tx:          infra.Tx,
		Storage:     infra.Storage,
		Cache:       infra.Cache,
		Inv:         c.Inv,
		Logger:      infra.Logger,
		StatsTTL:    conf.Cache.StatsTTL,
	})

	progressDeps := progress.Deps{
		Repo:        infra.Repos.Progress,
		Courses:     c.CourseSvc,
		Cache:       infra.Cache,
		Inv:         c.Inv,
		Logger:      infra.Logger,
		ProgressTTL: conf.Cache.ProgressTTL,
	}
	c.Gating = progress.NewGating(progressDeps)
	c.ItemSvc = progress.NewItemService(progressDeps)
	c.ModuleSvc = progress.NewModuleService(progressDeps, c.Gating)

	c.QuizSvc = quiz.NewService(quiz.Deps{
		Attempts: infra.Repos.Courses,
		Quizzes:  c.CourseSvc,
		Gating:   c.Gating,
		Progress: c.ItemSvc,
		Tx:       infra.Tx,
		Logger:   infra.Logger,
	})
	c.GradingSvc = grading.NewService(grading.Deps{
		Repo:        infra.Repos.Grading,
		Courses:     c.CourseSvc,
		Instructors: c.InstructorSvc,
		Users:       c.UserSvc,
		Progress:    c.ItemSvc,
		Scale:       scale,
		Tx:          infra.Tx,
		Storage:     infra.Storage,
		Inv:         c.Inv,
		MailSvc:     infra.MailSvc,
		Logger:      infra.Logger,
	})
	c.ApplicationSvc = application.NewService(application.Deps{
		Repo:     infra.Repos.Applications,
		Programs: c.DepartmentSvc,
		LMS:      infra.LMS,
		Jobs:     infra.Jobs,
		Tx:       infra.Tx,
		Storage:  infra.Storage,
		Cache:    infra.Cache,
		Inv:      c.Inv,
		MailSvc:  infra.MailSvc,
		Logger:   infra.Logger,
		StatsTTL: conf.Cache.StatsTTL,
	})
	c.DashboardSvc = dashboard.NewService(dashboard.Deps{
		Students:     c.StudentSvc,
		Instructors:  c.InstructorSvc,
		Admins:       c.AdminSvc,
		Courses:      c.CourseSvc,
		Applications: c.ApplicationSvc,
		Grading:      c.GradingSvc,
		Progress:     c.ItemSvc,
		Modules:      c.ModuleSvc,
		Cache:        infra.Cache,
		Logger:       infra.Logger,
		TTL:          conf.Cache.DashboardTTL,
	})
	return c, nil
}
