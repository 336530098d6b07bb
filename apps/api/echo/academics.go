package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/department"
)

type academicsApi struct {
	svc      *department.Service
	validate *validator.Validate
}

func registerAcademicsAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *department.Service, validate *validator.Validate) {
	api := academicsApi{svc: svc, validate: validate}

	dg := g.Group("/departments")
	dg.GET("", api.queryDepartments, jwt, adminMiddleware())
	dg.POST("", api.createDepartment, jwt, adminMiddleware())
	dg.GET("/:id", api.retrieveDepartment, jwt, adminMiddleware())
	dg.PUT("/:id", api.updateDepartment, jwt, adminMiddleware())
	dg.DELETE("/:id", api.destroyDepartment, jwt, adminMiddleware())

	// the program catalog is public: applicants pick their program from it
	pg := g.Group("/programs")
	pg.GET("", api.queryPrograms)
	pg.GET("/:id", api.retrieveProgram)
	pg.POST("", api.createProgram, jwt, adminMiddleware())
	pg.PUT("/:id", api.updateProgram, jwt, adminMiddleware())
	pg.DELETE("/:id", api.destroyProgram, jwt, adminMiddleware())
}

func (api *academicsApi) queryDepartments(ctx echo.Context) error {
	dt := new(DataTablesRequest)
	dt.Bind(ctx)

	page, err := api.svc.QueryDepartments(ctx.Request().Context(), dt.Query)
	if err != nil {
		return errors.Wrap(err, "querying departments")
	}
	return ctx.JSON(http.StatusOK, newDataTablesResponse(dt.Draw, page))
}

func (api *academicsApi) createDepartment(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data department.DepartmentData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DepartmentData")
	}
	if err = data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	dept, err := api.svc.CreateDepartment(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating department")
	}
	return ctx.JSON(http.StatusCreated, dept)
}

func (api *academicsApi) retrieveDepartment(ctx echo.Context) error {
	dept, err := api.svc.GetDepartment(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, dept)
}

func (api *academicsApi) updateDepartment(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	dept, err := api.svc.GetDepartment(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data department.DepartmentData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DepartmentData")
	}
	if err = data.Validate(reqCtx, api.validate, api.svc, dept.ID); err != nil {
		return err
	}

	if dept, err = api.svc.UpdateDepartment(reqCtx, actor, dept.ID, data); err != nil {
		return errors.Wrap(err, "updating department")
	}
	return ctx.JSON(http.StatusOK, dept)
}

func (api *academicsApi) destroyDepartment(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteDepartment(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting department")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *academicsApi) queryPrograms(ctx echo.Context) error {
	filter := department.QueryFilter{
		DepartmentID: ctx.QueryParam("department_id"),
		IsActive:     queryBool(ctx, "is_active"),
	}
	dt := new(DataTablesRequest)
	dt.Bind(ctx)

	page, err := api.svc.QueryPrograms(ctx.Request().Context(), filter, dt.Query)
	if err != nil {
		return errors.Wrap(err, "querying programs")
	}
	return ctx.JSON(http.StatusOK, newDataTablesResponse(dt.Draw, page))
}

func (api *academicsApi) retrieveProgram(ctx echo.Context) error {
	prog, err := api.svc.GetProgram(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *academicsApi) createProgram(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data department.ProgramData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProgramData")
	}
	if err = data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	prog, err := api.svc.CreateProgram(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating program")
	}
	return ctx.JSON(http.StatusCreated, prog)
}

func (api *academicsApi) updateProgram(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	prog, err := api.svc.GetProgram(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data department.ProgramData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProgramData")
	}
	if err = data.Validate(reqCtx, api.validate, api.svc, prog.ID); err != nil {
		return err
	}

	if prog, err = api.svc.UpdateProgram(reqCtx, actor, prog.ID, data); err != nil {
		return errors.Wrap(err, "updating program")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *academicsApi) destroyProgram(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteProgram(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting program")
	}
	return ctx.NoContent(http.StatusNoContent)
}
