package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/instructor"
)

type courseApi struct {
	svc         *course.Service
	instructors *instructor.Service
	validate    *validator.Validate
}

func registerCourseAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *course.Service,
	instructors *instructor.Service,
	validate *validator.Validate,
) {
	api := courseApi{svc: svc, instructors: instructors, validate: validate}

	cg := g.Group("/courses")
	cg.GET("", api.queryCourses, jwt, adminMiddleware())
	cg.POST("", api.createCourse, jwt, adminMiddleware())
	cg.GET("/stats", api.stats, jwt, adminMiddleware())
	cg.GET("/export", api.exportCSV, jwt, adminMiddleware())
	cg.POST("/export", api.exportToStorage, jwt, adminMiddleware())
	cg.GET("/:id", api.retrieveCourse, jwt, instructorMiddleware())
	cg.PUT("/:id", api.updateCourse, jwt, adminMiddleware())
	cg.DELETE("/:id", api.destroyCourse, jwt, adminMiddleware())
	cg.POST("/:id/publish", api.publishCourse, jwt, adminMiddleware())
	cg.POST("/:id/archive", api.archiveCourse, jwt, adminMiddleware())
	cg.PUT("/:id/instructors", api.assignInstructors, jwt, adminMiddleware())

	// course contents: admins and the course instructors
	cg.GET("/:id/modules", api.outline, jwt, instructorMiddleware())
	cg.POST("/:id/modules", api.createModule, jwt, instructorMiddleware())
	cg.PUT("/:id/modules/order", api.reorderModules, jwt, instructorMiddleware())

	mg := g.Group("/modules")
	mg.GET("/:id", api.moduleOutline, jwt, instructorMiddleware())
	mg.PUT("/:id", api.updateModule, jwt, instructorMiddleware())
	mg.DELETE("/:id", api.destroyModule, jwt, instructorMiddleware())
	mg.POST("/:id/publish", api.publishModule, jwt, instructorMiddleware())
	mg.POST("/:id/archive", api.archiveModule, jwt, instructorMiddleware())
	mg.GET("/:id/items", api.moduleOutline, jwt, instructorMiddleware())
	mg.POST("/:id/items/lessons", api.addLesson, jwt, instructorMiddleware())
	mg.POST("/:id/items/quizzes", api.addQuiz, jwt, instructorMiddleware())
	mg.POST("/:id/items/assignments", api.addAssignment, jwt, instructorMiddleware())
	mg.PUT("/:id/items/order", api.reorderItems, jwt, instructorMiddleware())

	ig := g.Group("/items")
	ig.POST("/:id/publish", api.publishItem, jwt, instructorMiddleware())
	ig.POST("/:id/unpublish", api.unpublishItem, jwt, instructorMiddleware())
	ig.DELETE("/:id", api.removeItem, jwt, instructorMiddleware())

	g.PUT("/lessons/:id", api.updateLesson, jwt, instructorMiddleware())
	g.POST("/lessons/:id/media", api.uploadLessonMedia, jwt, instructorMiddleware())
	g.GET("/quizzes/:id", api.retrieveQuiz, jwt, instructorMiddleware())
	g.PUT("/quizzes/:id", api.updateQuiz, jwt, instructorMiddleware())
	g.PUT("/assignments/:id", api.updateAssignment, jwt, instructorMiddleware())
}

// checkCourseAccess lets admins through and requires instructors to teach the course.
func (api *courseApi) checkCourseAccess(ctx echo.Context, courseID string) (course.Course, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return course.Course{}, err
	}
	reqCtx := ctx.Request().Context()
	crs, err := api.svc.GetCourse(reqCtx, courseID)
	if err != nil {
		return course.Course{}, err
	}
	if claims.IsAdmin {
		return crs, nil
	}
	ins, err := api.instructors.GetByUserID(reqCtx, claims.Subject)
	if err != nil {
		if core.IsNotFound(err) {
			return course.Course{}, errHttpForbidden
		}
		return course.Course{}, errors.Wrap(err, "getting instructor")
	}
	if !crs.HasInstructor(ins.ID) {
		return course.Course{}, errHttpForbidden
	}
	return crs, nil
}

func (api *courseApi) checkModuleAccess(ctx echo.Context, moduleID string) (course.Module, error) {
	m, err := api.svc.GetModule(ctx.Request().Context(), moduleID)
	if err != nil {
		return course.Module{}, err
	}
	_, err = api.checkCourseAccess(ctx, m.CourseID)
	return m, err
}

func (api *courseApi) checkItemAccess(ctx echo.Context, itemID string) (course.ModuleItem, error) {
	it, err := api.svc.GetModuleItem(ctx.Request().Context(), itemID)
	if err != nil {
		return course.ModuleItem{}, err
	}
	_, err = api.checkModuleAccess(ctx, it.ModuleID)
	return it, err
}

func bindCourseFilter(ctx echo.Context) (course.QueryFilter, error) {
	var filter course.QueryFilter
	err := echo.QueryParamsBinder(ctx).
		String("program_id", &filter.ProgramID).
		String("instructor_id", &filter.InstructorID).
		String("status", &filter.Status).
		BindError()
	return filter, errors.Wrap(err, "binding to course.QueryFilter")
}

// Courses

func (api *courseApi) queryCourses(ctx echo.Context) error {
	filter, err := bindCourseFilter(ctx)
	if err != nil {
		return err
	}
	dt := new(DataTablesRequest)
	dt.Bind(ctx)

	page, err := api.svc.QueryCourses(ctx.Request().Context(), filter, dt.Query)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	return ctx.JSON(http.StatusOK, newDataTablesResponse(dt.Draw, page))
}

func (api *courseApi) createCourse(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data course.CourseData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CourseData")
	}
	if err = data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	crs, err := api.svc.CreateCourse(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing course stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *courseApi) exportCSV(ctx echo.Context) error {
	filter, err := bindCourseFilter(ctx)
	if err != nil {
		return err
	}
	filename := fmt.Sprintf("courses-%s.csv", core.Now().Format("20060102-150405"))

	resp := ctx.Response()
	resp.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	resp.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	resp.WriteHeader(http.StatusOK)
	return errors.Wrap(api.svc.ExportCSV(ctx.Request().Context(), resp, filter), "exporting courses")
}

func (api *courseApi) exportToStorage(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	filter, err := bindCourseFilter(ctx)
	if err != nil {
		return err
	}

	stored, err := api.svc.ExportToStorage(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "exporting courses")
	}
	return ctx.JSON(http.StatusCreated, ExportResponse{
		Path: stored.Path,
		URL:  api.svc.Storage.URL(stored.Path),
		Size: stored.Size,
	})
}

func (api *courseApi) retrieveCourse(ctx echo.Context) error {
	crs, err := api.checkCourseAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) updateCourse(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	crs, err := api.svc.GetCourse(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data course.CourseData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CourseData")
	}
	if err = data.Validate(reqCtx, api.validate, api.svc, crs.ID); err != nil {
		return err
	}

	if crs, err = api.svc.UpdateCourse(reqCtx, actor, crs.ID, data); err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) destroyCourse(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteCourse(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) publishCourse(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	crs, err := api.svc.PublishCourse(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "publishing course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) archiveCourse(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	crs, err := api.svc.ArchiveCourse(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "archiving course")
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) assignInstructors(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data AssignInstructorsRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignInstructorsRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	crs, err := api.svc.AssignInstructors(ctx.Request().Context(), actor, ctx.Param("id"), data.InstructorIDs)
	if err != nil {
		return errors.Wrap(err, "assigning instructors")
	}
	return ctx.JSON(http.StatusOK, crs)
}

// Modules

func (api *courseApi) outline(ctx echo.Context) error {
	crs, err := api.checkCourseAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	outline, err := api.svc.Outline(ctx.Request().Context(), crs.ID)
	if err != nil {
		return errors.Wrap(err, "loading course outline")
	}
	if outline == nil {
		outline = []course.ModuleOutline{}
	}
	return ctx.JSON(http.StatusOK, outline)
}

func (api *courseApi) createModule(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	crs, err := api.checkCourseAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data course.ModuleData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ModuleData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	m, err := api.svc.CreateModule(ctx.Request().Context(), actor, crs.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating module")
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *courseApi) reorderModules(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	crs, err := api.checkCourseAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data ReorderRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReorderRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	modules, err := api.svc.ReorderModules(ctx.Request().Context(), actor, crs.ID, data.IDs)
	if err != nil {
		return errors.Wrap(err, "reordering modules")
	}
	return ctx.JSON(http.StatusOK, modules)
}

func (api *courseApi) moduleOutline(ctx echo.Context) error {
	m, err := api.checkModuleAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	outline, err := api.svc.ModuleOutline(ctx.Request().Context(), m.ID)
	if err != nil {
		return errors.Wrap(err, "loading module outline")
	}
	return ctx.JSON(http.StatusOK, outline)
}

func (api *courseApi) updateModule(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	m, err := api.checkModuleAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data course.ModuleData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ModuleData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if m, err = api.svc.UpdateModule(ctx.Request().Context(), actor, m.ID, data); err != nil {
		return errors.Wrap(err, "updating module")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *courseApi) destroyModule(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	m, err := api.checkModuleAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if err = api.svc.DeleteModule(ctx.Request().Context(), actor, m.ID); err != nil {
		return errors.Wrap(err, "deleting module")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) publishModule(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	m, err := api.checkModuleAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if m, err = api.svc.PublishModule(ctx.Request().Context(), actor, m.ID); err != nil {
		return errors.Wrap(err, "publishing module")
	}
	return ctx.JSON(http.StatusOK, m)
}

func (api *courseApi) archiveModule(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	m, err := api.checkModuleAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if m, err = api.svc.ArchiveModule(ctx.Request().Context(), actor, m.ID); err != nil {
		return errors.Wrap(err, "archiving module")
	}
	return ctx.JSON(http.StatusOK, m)
}

// Items

func (api *courseApi) addLesson(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	m, err := api.checkModuleAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data course.LessonData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LessonData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	it, err := api.svc.AddLesson(ctx.Request().Context(), actor, m.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding lesson")
	}
	return ctx.JSON(http.StatusCreated, it)
}

func (api *courseApi) addQuiz(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	m, err := api.checkModuleAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data course.QuizData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	it, err := api.svc.AddQuiz(ctx.Request().Context(), actor, m.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding quiz")
	}
	return ctx.JSON(http.StatusCreated, it)
}

func (api *courseApi) addAssignment(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	m, err := api.checkModuleAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data course.AssignmentData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignmentData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	it, err := api.svc.AddAssignment(ctx.Request().Context(), actor, m.ID, data)
	if err != nil {
		return errors.Wrap(err, "adding assignment")
	}
	return ctx.JSON(http.StatusCreated, it)
}

func (api *courseApi) reorderItems(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	m, err := api.checkModuleAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data ReorderRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReorderRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	outline, err := api.svc.ReorderItems(ctx.Request().Context(), actor, m.ID, data.IDs)
	if err != nil {
		return errors.Wrap(err, "reordering items")
	}
	return ctx.JSON(http.StatusOK, outline)
}

func (api *courseApi) setItemPublished(ctx echo.Context, published bool) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	it, err := api.checkItemAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if it, err = api.svc.SetItemPublished(ctx.Request().Context(), actor, it.ID, published); err != nil {
		return errors.Wrap(err, "publishing item")
	}
	return ctx.JSON(http.StatusOK, it)
}

func (api *courseApi) publishItem(ctx echo.Context) error {
	return api.setItemPublished(ctx, true)
}

func (api *courseApi) unpublishItem(ctx echo.Context) error {
	return api.setItemPublished(ctx, false)
}

func (api *courseApi) removeItem(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	it, err := api.checkItemAccess(ctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if err = api.svc.RemoveItem(ctx.Request().Context(), actor, it.ID); err != nil {
		return errors.Wrap(err, "removing item")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Contents

func (api *courseApi) updateLesson(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	lsn, err := api.svc.GetLesson(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if _, err = api.checkModuleAccess(ctx, lsn.ModuleID); err != nil {
		return err
	}

	var data course.LessonData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LessonData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if lsn, err = api.svc.UpdateLesson(reqCtx, actor, lsn.ID, data); err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, lsn)
}

func (api *courseApi) uploadLessonMedia(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	lsn, err := api.svc.GetLesson(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if _, err = api.checkModuleAccess(ctx, lsn.ModuleID); err != nil {
		return err
	}

	filename, file, err := formFile(ctx, "media")
	if err != nil {
		return err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	if lsn, err = api.svc.UploadLessonMedia(reqCtx, actor, lsn.ID, filename, file); err != nil {
		return errors.Wrap(err, "uploading lesson media")
	}
	return ctx.JSON(http.StatusOK, lsn)
}

func (api *courseApi) retrieveQuiz(ctx echo.Context) error {
	qz, err := api.svc.GetQuiz(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	if _, err = api.checkCourseAccess(ctx, qz.CourseID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, qz)
}

func (api *courseApi) updateQuiz(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	qz, err := api.svc.GetQuiz(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if _, err = api.checkCourseAccess(ctx, qz.CourseID); err != nil {
		return err
	}

	var data course.QuizData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QuizData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if qz, err = api.svc.UpdateQuiz(reqCtx, actor, qz.ID, data); err != nil {
		return errors.Wrap(err, "updating quiz")
	}
	return ctx.JSON(http.StatusOK, qz)
}

func (api *courseApi) updateAssignment(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	asg, err := api.svc.GetAssignment(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if _, err = api.checkCourseAccess(ctx, asg.CourseID); err != nil {
		return err
	}

	var data course.AssignmentData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignmentData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if asg, err = api.svc.UpdateAssignment(reqCtx, actor, asg.ID, data); err != nil {
		return errors.Wrap(err, "updating assignment")
	}
	return ctx.JSON(http.StatusOK, asg)
}

type (
	AssignInstructorsRequest struct {
		InstructorIDs []string `json:"instructor_ids" validate:"dive,uuid"`
	}

	ReorderRequest struct {
		IDs []string `json:"ids" validate:"required,min=1"`
	}

	ExportResponse struct {
		Path string `json:"path"`
		URL  string `json:"url"`
		Size int64  `json:"size"`
	}
)
