package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/grading"
	"github.com/trezcool/academia/core/progress"
	"github.com/trezcool/academia/core/quiz"
	"github.com/trezcool/academia/core/student"
)

var errNotEnrolled = echo.NewHTTPError(http.StatusForbidden, "you are not enrolled in this course")

type learnApi struct {
	students *student.Service
	courses  *course.Service
	gating   *progress.Gating
	items    *progress.ItemService
	modules  *progress.ModuleService
	quizzes  *quiz.Service
	grading  *grading.Service
}

func registerLearnAPI(g *echo.Group, jwt echo.MiddlewareFunc, api learnApi) {
	lg := g.Group("/learn")
	lg.GET("/courses", api.listCourses, jwt, studentMiddleware())
	lg.GET("/courses/:id", api.courseOverview, jwt, studentMiddleware())
	lg.GET("/modules/:id", api.moduleDetail, jwt, studentMiddleware())
	lg.POST("/items/:id/access", api.trackAccess, jwt, studentMiddleware())
	lg.POST("/items/:id/complete", api.markComplete, jwt, studentMiddleware())
	lg.POST("/items/:id/incomplete", api.markIncomplete, jwt, studentMiddleware())
	lg.GET("/quizzes/:id", api.quizView, jwt, studentMiddleware())
	lg.POST("/quizzes/:id/attempts", api.startAttempt, jwt, studentMiddleware())
	lg.POST("/attempts/:id/submit", api.submitAttempt, jwt, studentMiddleware())
	lg.POST("/assignments/:id/submit", api.submitAssignment, jwt, studentMiddleware())
	lg.GET("/grades", api.grades, jwt, studentMiddleware())
}

// contextStudent returns the active student profile of the authenticated user.
func (api *learnApi) contextStudent(ctx echo.Context) (student.Student, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return student.Student{}, err
	}
	std, err := api.students.GetByUserID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if core.IsNotFound(err) {
			return student.Student{}, errHttpForbidden
		}
		return student.Student{}, errors.Wrap(err, "getting student")
	}
	if !std.IsActive() {
		return student.Student{}, errHttpForbidden
	}
	return std, nil
}

// checkEnrollment requires the course to be published and part of the student's program.
func (api *learnApi) checkEnrollment(ctx echo.Context, courseID string) (student.Student, course.Course, error) {
	std, err := api.contextStudent(ctx)
	if err != nil {
		return student.Student{}, course.Course{}, err
	}
	crs, err := api.courses.GetCourse(ctx.Request().Context(), courseID)
	if err != nil {
		return student.Student{}, course.Course{}, err
	}
	if !crs.IsPublished() {
		return student.Student{}, course.Course{}, course.ErrNotFound
	}
	if std.ProgramID == nil || *std.ProgramID != crs.ProgramID {
		return student.Student{}, course.Course{}, errNotEnrolled
	}
	return std, crs, nil
}

// checkModule requires the module to be published and its course to be one the student is enrolled in.
func (api *learnApi) checkModule(ctx echo.Context, moduleID string) (course.Module, error) {
	m, err := api.courses.GetModule(ctx.Request().Context(), moduleID)
	if err != nil {
		return course.Module{}, err
	}
	if !m.IsPublished() {
		return course.Module{}, course.ErrModuleNotFound
	}
	if _, _, err = api.checkEnrollment(ctx, m.CourseID); err != nil {
		return course.Module{}, err
	}
	return m, nil
}

// checkItem requires the item to be published inside a module the student can access.
func (api *learnApi) checkItem(ctx echo.Context, itemID string) (course.ModuleItem, error) {
	reqCtx := ctx.Request().Context()
	it, err := api.courses.GetModuleItem(reqCtx, itemID)
	if err != nil {
		return course.ModuleItem{}, err
	}
	if !it.IsPublished() {
		return course.ModuleItem{}, course.ErrItemNotFound
	}
	if _, err = api.checkModule(ctx, it.ModuleID); err != nil {
		return course.ModuleItem{}, err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return course.ModuleItem{}, err
	}
	access, err := api.gating.IsModuleAccessible(reqCtx, claims.Subject, it.ModuleID)
	if err != nil {
		return course.ModuleItem{}, errors.Wrap(err, "checking module access")
	}
	if !access.Accessible {
		return course.ModuleItem{}, core.NewRuleError(access.Reason)
	}
	return it, nil
}

func (api *learnApi) listCourses(ctx echo.Context) error {
	std, err := api.contextStudent(ctx)
	if err != nil {
		return err
	}
	courses := []course.Course{}
	if std.ProgramID != nil {
		if courses, err = api.courses.PublishedCoursesForProgram(ctx.Request().Context(), *std.ProgramID); err != nil {
			return errors.Wrap(err, "listing program courses")
		}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *learnApi) courseOverview(ctx echo.Context) error {
	std, crs, err := api.checkEnrollment(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()

	summary, err := api.items.GetCourseProgress(reqCtx, std.UserID, crs.ID)
	if err != nil {
		return errors.Wrap(err, "getting course progress")
	}
	modules, err := api.modules.CourseOverview(reqCtx, std.UserID, crs.ID)
	if err != nil {
		return errors.Wrap(err, "getting course overview")
	}
	if modules == nil {
		modules = []progress.ModuleOverview{}
	}
	return ctx.JSON(http.StatusOK, CourseOverviewResponse{Course: crs, Progress: summary, Modules: modules})
}

func (api *learnApi) moduleDetail(ctx echo.Context) error {
	m, err := api.checkModule(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	detail, err := api.modules.ModuleDetail(ctx.Request().Context(), claims.Subject, m.ID)
	if err != nil {
		return errors.Wrap(err, "getting module detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *learnApi) updateItem(ctx echo.Context, update func(ctx echo.Context, userID, itemID string) (progress.ItemProgress, error)) error {
	it, err := api.checkItem(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	p, err := update(ctx, claims.Subject, it.ID)
	if err != nil {
		return errors.Wrap(err, "updating item progress")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *learnApi) trackAccess(ctx echo.Context) error {
	return api.updateItem(ctx, func(ctx echo.Context, userID, itemID string) (progress.ItemProgress, error) {
		return api.items.TrackAccess(ctx.Request().Context(), userID, itemID)
	})
}

func (api *learnApi) markComplete(ctx echo.Context) error {
	return api.updateItem(ctx, func(ctx echo.Context, userID, itemID string) (progress.ItemProgress, error) {
		return api.items.MarkComplete(ctx.Request().Context(), userID, itemID)
	})
}

func (api *learnApi) markIncomplete(ctx echo.Context) error {
	return api.updateItem(ctx, func(ctx echo.Context, userID, itemID string) (progress.ItemProgress, error) {
		return api.items.MarkIncomplete(ctx.Request().Context(), userID, itemID)
	})
}

func (api *learnApi) quizView(ctx echo.Context) error {
	std, err := api.checkQuiz(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	sq, err := api.quizzes.StudentView(ctx.Request().Context(), std.UserID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting quiz")
	}
	return ctx.JSON(http.StatusOK, sq)
}

func (api *learnApi) startAttempt(ctx echo.Context) error {
	std, err := api.checkQuiz(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	view, err := api.quizzes.StartAttempt(ctx.Request().Context(), std.UserID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	return ctx.JSON(http.StatusCreated, view)
}

func (api *learnApi) checkQuiz(ctx echo.Context, quizID string) (student.Student, error) {
	qz, err := api.courses.GetQuiz(ctx.Request().Context(), quizID)
	if err != nil {
		return student.Student{}, err
	}
	std, _, err := api.checkEnrollment(ctx, qz.CourseID)
	return std, err
}

func (api *learnApi) submitAttempt(ctx echo.Context) error {
	std, err := api.contextStudent(ctx)
	if err != nil {
		return err
	}
	var data SubmitAttemptRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitAttemptRequest")
	}

	att, err := api.quizzes.SubmitAttempt(ctx.Request().Context(), std.UserID, ctx.Param("id"), data.Answers)
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *learnApi) submitAssignment(ctx echo.Context) error {
	asg, err := api.courses.GetAssignment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	std, _, err := api.checkEnrollment(ctx, asg.CourseID)
	if err != nil {
		return err
	}

	var data grading.SubmissionData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmissionData")
	}
	var upload *grading.Upload
	if fh, err := ctx.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening uploaded file")
		}
		//goland:noinspection GoUnhandledErrorResult
		defer f.Close()
		upload = &grading.Upload{Filename: fh.Filename, Content: f}
	}

	sub, err := api.grading.Submit(ctx.Request().Context(), std.UserID, asg.ID, data, upload)
	if err != nil {
		return errors.Wrap(err, "submitting assignment")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *learnApi) grades(ctx echo.Context) error {
	std, err := api.contextStudent(ctx)
	if err != nil {
		return err
	}
	report, err := api.grading.Report(ctx.Request().Context(), std.UserID)
	if err != nil {
		return errors.Wrap(err, "building grade report")
	}
	return ctx.JSON(http.StatusOK, report)
}

type (
	CourseOverviewResponse struct {
		Course   course.Course             `json:"course"`
		Progress progress.Summary          `json:"progress"`
		Modules  []progress.ModuleOverview `json:"modules"`
	}

	SubmitAttemptRequest struct {
		Answers map[string]int `json:"answers"`
	}
)
