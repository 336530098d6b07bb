// Package dashboard aggregates the landing data of admins, instructors and students.
// Aggregation failures are logged and degrade to empty sections.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/application"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/instructor"
	"github.com/trezcool/academia/core/progress"
	"github.com/trezcool/academia/core/student"
)

const recentApplications = 5

type (
	StatsSource interface {
		Stats(ctx context.Context) (core.CountStats, error)
	}

	ApplicationSource interface {
		Stats(ctx context.Context) (application.Stats, error)
		Recent(ctx context.Context, status string, limit int) ([]application.Application, error)
	}

	CourseSource interface {
		Stats(ctx context.Context) (core.CountStats, error)
		CoursesForInstructor(ctx context.Context, instructorID string) ([]course.Course, error)
		PublishedCoursesForProgram(ctx context.Context, programID string) ([]course.Course, error)
		ListAssignments(ctx context.Context, courseIDs ...string) ([]course.Assignment, error)
	}

	InstructorSource interface {
		StatsSource
		GetByUserID(ctx context.Context, userID string) (instructor.Instructor, error)
	}

	StudentSource interface {
		StatsSource
		GetByUserID(ctx context.Context, userID string) (student.Student, error)
	}

	GradingSource interface {
		CountUngraded(ctx context.Context, assignmentIDs ...string) (int, error)
	}

	ProgressSource interface {
		GetCourseProgress(ctx context.Context, userID, courseID string) (progress.Summary, error)
	}

	OverviewSource interface {
		CourseOverview(ctx context.Context, userID, courseID string) ([]progress.ModuleOverview, error)
	}

	Deps struct {
		Students     StudentSource
		Instructors  InstructorSource
		Admins       StatsSource
		Courses      CourseSource
		Applications ApplicationSource
		Grading      GradingSource
		Progress     ProgressSource
		Modules      OverviewSource
		Cache        core.Cache
		Logger       core.Logger
		TTL          time.Duration
	}

	Service struct {
		Deps
	}
)

func NewService(deps Deps) *Service {
	return &Service{Deps: deps}
}

type AdminDashboard struct {
	Students           core.CountStats           `json:"students"`
	Instructors        core.CountStats           `json:"instructors"`
	Admins             core.CountStats           `json:"admins"`
	Courses            core.CountStats           `json:"courses"`
	Applications       application.Stats         `json:"applications"`
	PendingReview      []application.Application `json:"pending_review"`
	RecentApplications []application.Application `json:"recent_applications"`
}

type InstructorCourse struct {
	Course         course.Course `json:"course"`
	Assignments    int           `json:"assignments"`
	PendingGrading int           `json:"pending_grading"`
}

type InstructorDashboard struct {
	Courses        []InstructorCourse `json:"courses"`
	PendingGrading int                `json:"pending_grading"`
}

type StudentCourse struct {
	Course   course.Course             `json:"course"`
	Progress progress.Summary          `json:"progress"`
	Modules  []progress.ModuleOverview `json:"modules"`
}

type StudentDashboard struct {
	Courses         []StudentCourse `json:"courses"`
	OverallProgress int             `json:"overall_progress"`
}

func (svc *Service) logErr(section string, err error) {
	svc.Logger.Error(fmt.Sprintf("dashboard.%s: %v", section, err), err)
}

// Admin never fails: sections that cannot be loaded stay empty.
func (svc *Service) Admin(ctx context.Context) AdminDashboard {
	dash, err := core.Remember(ctx, svc.Cache, svc.Logger, core.AdminDashboardKey, svc.TTL,
		func(ctx context.Context) (AdminDashboard, error) {
			return svc.buildAdmin(ctx), nil
		},
	)
	if err != nil {
		svc.logErr("Admin", err)
	}
	return dash
}

func (svc *Service) buildAdmin(ctx context.Context) AdminDashboard {
	dash := AdminDashboard{
		PendingReview:      []application.Application{},
		RecentApplications: []application.Application{},
	}
	var err error
	if dash.Students, err = svc.Students.Stats(ctx); err != nil {
		svc.logErr("Admin.students", err)
	}
	if dash.Instructors, err = svc.Instructors.Stats(ctx); err != nil {
		svc.logErr("Admin.instructors", err)
	}
	if dash.Admins, err = svc.Admins.Stats(ctx); err != nil {
		svc.logErr("Admin.admins", err)
	}
	if dash.Courses, err = svc.Courses.Stats(ctx); err != nil {
		svc.logErr("Admin.courses", err)
	}
	if dash.Applications, err = svc.Applications.Stats(ctx); err != nil {
		svc.logErr("Admin.applications", err)
	}
	if pending, err := svc.Applications.Recent(ctx, application.StatusPending, recentApplications); err != nil {
		svc.logErr("Admin.pending", err)
	} else {
		dash.PendingReview = pending
	}
	if recent, err := svc.Applications.Recent(ctx, "", recentApplications); err != nil {
		svc.logErr("Admin.recent", err)
	} else {
		dash.RecentApplications = recent
	}
	return dash
}

// Instructor returns the courses taught by the user with their grading backlog.
func (svc *Service) Instructor(ctx context.Context, userID string) InstructorDashboard {
	dash, err := core.Remember(ctx, svc.Cache, svc.Logger, core.InstructorDashboardKey(userID), svc.TTL,
		func(ctx context.Context) (InstructorDashboard, error) {
			return svc.buildInstructor(ctx, userID)
		},
	)
	if err != nil {
		svc.logErr("Instructor", err)
		return InstructorDashboard{Courses: []InstructorCourse{}}
	}
	return dash
}

func (svc *Service) buildInstructor(ctx context.Context, userID string) (InstructorDashboard, error) {
	dash := InstructorDashboard{Courses: []InstructorCourse{}}
	ins, err := svc.Instructors.GetByUserID(ctx, userID)
	if err != nil {
		return dash, err
	}
	courses, err := svc.Courses.CoursesForInstructor(ctx, ins.ID)
	if err != nil {
		return dash, err
	}
	for _, c := range courses {
		ic := InstructorCourse{Course: c}
		assignments, err := svc.Courses.ListAssignments(ctx, c.ID)
		if err != nil {
			svc.logErr("Instructor.assignments", err)
		} else {
			ids := make([]string, len(assignments))
			for i, a := range assignments {
				ids[i] = a.ID
			}
			ic.Assignments = len(assignments)
			if ic.PendingGrading, err = svc.Grading.CountUngraded(ctx, ids...); err != nil {
				svc.logErr("Instructor.pending", err)
			}
		}
		dash.PendingGrading += ic.PendingGrading
		dash.Courses = append(dash.Courses, ic)
	}
	return dash, nil
}

// Student returns the published courses of the student's program with their progress.
func (svc *Service) Student(ctx context.Context, userID string) StudentDashboard {
	dash, err := core.Remember(ctx, svc.Cache, svc.Logger, core.StudentDashboardKey(userID), svc.TTL,
		func(ctx context.Context) (StudentDashboard, error) {
			return svc.buildStudent(ctx, userID)
		},
	)
	if err != nil {
		svc.logErr("Student", err)
		return StudentDashboard{Courses: []StudentCourse{}}
	}
	return dash
}

func (svc *Service) buildStudent(ctx context.Context, userID string) (StudentDashboard, error) {
	dash := StudentDashboard{Courses: []StudentCourse{}}
	st, err := svc.Students.GetByUserID(ctx, userID)
	if err != nil {
		return dash, err
	}
	if st.ProgramID == nil {
		return dash, nil
	}
	courses, err := svc.Courses.PublishedCoursesForProgram(ctx, *st.ProgramID)
	if err != nil {
		return dash, err
	}

	var total int
	for _, c := range courses {
		sc := StudentCourse{Course: c, Modules: []progress.ModuleOverview{}}
		if sc.Progress, err = svc.Progress.GetCourseProgress(ctx, userID, c.ID); err != nil {
			svc.logErr("Student.progress", err)
		}
		if modules, err := svc.Modules.CourseOverview(ctx, userID, c.ID); err != nil {
			svc.logErr("Student.modules", err)
		} else {
			sc.Modules = modules
		}
		total += sc.Progress.Percentage
		dash.Courses = append(dash.Courses, sc)
	}
	if len(courses) > 0 {
		dash.OverallProgress = total / len(courses)
	}
	return dash, nil
}

// Warm loads the admin dashboard into the cache.
func (svc *Service) Warm(ctx context.Context) {
	svc.Admin(ctx)
}
