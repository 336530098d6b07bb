package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/admin"
	"github.com/trezcool/academia/core/course"
	"github.com/trezcool/academia/core/instructor"
	"github.com/trezcool/academia/core/student"
	"github.com/trezcool/academia/core/user"
)

type studentApi struct {
	svc      *student.Service
	users    *user.Service
	validate *validator.Validate
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *student.Service, users *user.Service, validate *validator.Validate) {
	api := studentApi{svc: svc, users: users, validate: validate}

	sg := g.Group("/students")
	sg.GET("", api.query, jwt, adminMiddleware())
	sg.POST("", api.create, jwt, adminMiddleware())
	sg.GET("/stats", api.stats, jwt, adminMiddleware())
	sg.GET("/:id", api.retrieve, jwt, adminMiddleware())
	sg.PUT("/:id", api.update, jwt, adminMiddleware())
	sg.DELETE("/:id", api.destroy, jwt, adminMiddleware())
	sg.POST("/:id/avatar", api.uploadAvatar, jwt, adminMiddleware())
}

func (api *studentApi) query(ctx echo.Context) error {
	var filter student.QueryFilter
	if err := echo.QueryParamsBinder(ctx).
		String("program_id", &filter.ProgramID).
		String("status", &filter.Status).
		BindError(); err != nil {
		return errors.Wrap(err, "binding to student.QueryFilter")
	}
	dt := new(DataTablesRequest)
	dt.Bind(ctx)

	page, err := api.svc.Query(ctx.Request().Context(), filter, dt.Query)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	return ctx.JSON(http.StatusOK, newDataTablesResponse(dt.Draw, page))
}

func (api *studentApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data student.NewStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err = data.Validate(ctx.Request().Context(), api.validate, api.users); err != nil {
		return err
	}

	std, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *studentApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing student stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	std, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	std, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data student.UpdateStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err = data.Validate(reqCtx, std, api.validate, api.users); err != nil {
		return err
	}

	if std, err = api.svc.Update(reqCtx, actor, std.ID, data); err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) uploadAvatar(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	filename, file, err := formFile(ctx, "avatar")
	if err != nil {
		return err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	std, err := api.svc.UploadAvatar(ctx.Request().Context(), actor, ctx.Param("id"), filename, file)
	if err != nil {
		return errors.Wrap(err, "uploading avatar")
	}
	return ctx.JSON(http.StatusOK, std)
}

type instructorApi struct {
	svc      *instructor.Service
	users    *user.Service
	courses  *course.Service
	validate *validator.Validate
}

func registerInstructorAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *instructor.Service,
	users *user.Service,
	courses *course.Service,
	validate *validator.Validate,
) {
	api := instructorApi{svc: svc, users: users, courses: courses, validate: validate}

	ig := g.Group("/instructors")
	ig.GET("", api.query, jwt, adminMiddleware())
	ig.POST("", api.create, jwt, adminMiddleware())
	ig.GET("/stats", api.stats, jwt, adminMiddleware())
	ig.GET("/:id", api.retrieve, jwt, adminMiddleware())
	ig.PUT("/:id", api.update, jwt, adminMiddleware())
	ig.DELETE("/:id", api.destroy, jwt, adminMiddleware())
	ig.POST("/:id/avatar", api.uploadAvatar, jwt, adminMiddleware())
	ig.GET("/:id/courses", api.listCourses, jwt, adminMiddleware())
	ig.POST("/:id/courses", api.assignCourses, jwt, adminMiddleware())
}

func (api *instructorApi) query(ctx echo.Context) error {
	var filter instructor.QueryFilter
	if err := echo.QueryParamsBinder(ctx).
		String("department_id", &filter.DepartmentID).
		String("status", &filter.Status).
		BindError(); err != nil {
		return errors.Wrap(err, "binding to instructor.QueryFilter")
	}
	dt := new(DataTablesRequest)
	dt.Bind(ctx)

	page, err := api.svc.Query(ctx.Request().Context(), filter, dt.Query)
	if err != nil {
		return errors.Wrap(err, "querying instructors")
	}
	return ctx.JSON(http.StatusOK, newDataTablesResponse(dt.Draw, page))
}

func (api *instructorApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data instructor.NewInstructor
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInstructor")
	}
	if err = data.Validate(ctx.Request().Context(), api.validate, api.users); err != nil {
		return err
	}

	ins, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating instructor")
	}
	return ctx.JSON(http.StatusCreated, ins)
}

func (api *instructorApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing instructor stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *instructorApi) retrieve(ctx echo.Context) error {
	ins, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ins)
}

func (api *instructorApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	ins, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data instructor.UpdateInstructor
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateInstructor")
	}
	if err = data.Validate(reqCtx, ins, api.validate, api.users); err != nil {
		return err
	}

	if ins, err = api.svc.Update(reqCtx, actor, ins.ID, data); err != nil {
		return errors.Wrap(err, "updating instructor")
	}
	return ctx.JSON(http.StatusOK, ins)
}

func (api *instructorApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting instructor")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *instructorApi) uploadAvatar(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	filename, file, err := formFile(ctx, "avatar")
	if err != nil {
		return err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	ins, err := api.svc.UploadAvatar(ctx.Request().Context(), actor, ctx.Param("id"), filename, file)
	if err != nil {
		return errors.Wrap(err, "uploading avatar")
	}
	return ctx.JSON(http.StatusOK, ins)
}

func (api *instructorApi) listCourses(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	ins, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}
	courses, err := api.courses.CoursesForInstructor(reqCtx, ins.ID)
	if err != nil {
		return errors.Wrap(err, "listing instructor courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

// assignCourses adds the instructor to each of the given courses.
func (api *instructorApi) assignCourses(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	ins, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data AssignCoursesRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignCoursesRequest")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	assigned := make([]course.Course, 0, len(data.CourseIDs))
	for _, cid := range data.CourseIDs {
		crs, err := api.courses.GetCourse(reqCtx, cid)
		if err != nil {
			return err
		}
		if !crs.HasInstructor(ins.ID) {
			ids := append(append([]string(nil), crs.InstructorIDs...), ins.ID)
			if crs, err = api.courses.AssignInstructors(reqCtx, actor, crs.ID, ids); err != nil {
				return errors.Wrap(err, "assigning instructor")
			}
		}
		assigned = append(assigned, crs)
	}
	return ctx.JSON(http.StatusOK, assigned)
}

type adminApi struct {
	svc      *admin.Service
	users    *user.Service
	validate *validator.Validate
}

func registerAdminAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *admin.Service, users *user.Service, validate *validator.Validate) {
	api := adminApi{svc: svc, users: users, validate: validate}

	ag := g.Group("/admins")
	ag.GET("", api.query, jwt, adminMiddleware())
	ag.GET("/stats", api.stats, jwt, adminMiddleware())
	ag.GET("/:id", api.retrieve, jwt, adminMiddleware())

	// only super admins manage admins
	ag.POST("", api.create, jwt, adminMiddleware(user.RoleAdminSuper))
	ag.PUT("/:id", api.update, jwt, adminMiddleware(user.RoleAdminSuper))
	ag.DELETE("/:id", api.destroy, jwt, adminMiddleware(user.RoleAdminSuper))
}

func (api *adminApi) query(ctx echo.Context) error {
	dt := new(DataTablesRequest)
	dt.Bind(ctx)

	page, err := api.svc.Query(ctx.Request().Context(), dt.Query)
	if err != nil {
		return errors.Wrap(err, "querying admins")
	}
	return ctx.JSON(http.StatusOK, newDataTablesResponse(dt.Draw, page))
}

func (api *adminApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing admin stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *adminApi) retrieve(ctx echo.Context) error {
	adm, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, adm)
}

func (api *adminApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data admin.NewAdmin
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAdmin")
	}
	if err = data.Validate(ctx.Request().Context(), api.validate, api.users); err != nil {
		return err
	}

	adm, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating admin")
	}
	return ctx.JSON(http.StatusCreated, adm)
}

func (api *adminApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	adm, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data admin.UpdateAdmin
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAdmin")
	}
	if err = data.Validate(reqCtx, adm, api.validate, api.users); err != nil {
		return err
	}

	if adm, err = api.svc.Update(reqCtx, actor, adm.ID, data); err != nil {
		return errors.Wrap(err, "updating admin")
	}
	return ctx.JSON(http.StatusOK, adm)
}

func (api *adminApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	adm, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}
	// Say No to Suicide! ctxUser cannot delete themselves
	if adm.UserID == actor.UserID {
		return errHttpForbidden
	}
	if err = api.svc.Delete(reqCtx, actor, adm.ID); err != nil {
		return errors.Wrap(err, "deleting admin")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type AssignCoursesRequest struct {
	CourseIDs []string `json:"course_ids" validate:"required,min=1,dive,uuid"`
}
