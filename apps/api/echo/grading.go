package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/grading"
)

type gradingApi struct {
	svc      *grading.Service
	validate *validator.Validate
}

func registerGradingAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *grading.Service, validate *validator.Validate) {
	api := gradingApi{svc: svc, validate: validate}

	g.GET("/assignments/:id/submissions", api.listSubmissions, jwt, instructorMiddleware())
	g.POST("/submissions/:id/grade", api.gradeSubmission, jwt, instructorMiddleware())

	gg := g.Group("/grades")
	gg.GET("/:id", api.retrieveGrade, jwt, instructorMiddleware())
	gg.GET("/:id/history", api.history, jwt, instructorMiddleware())
	gg.POST("/:id/publish", api.publishGrade, jwt, instructorMiddleware())
}

func (api *gradingApi) listSubmissions(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	subs, err := api.svc.ListSubmissions(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	if subs == nil {
		subs = []grading.Submission{}
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *gradingApi) gradeSubmission(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data grading.GradeData
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeData")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	grade, err := api.svc.GradeSubmission(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "grading submission")
	}
	return ctx.JSON(http.StatusOK, grade)
}

func (api *gradingApi) retrieveGrade(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	// History authorizes the actor against the grade's course
	if _, err = api.svc.History(reqCtx, actor, ctx.Param("id")); err != nil {
		return err
	}
	grade, err := api.svc.GetGrade(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, grade)
}

func (api *gradingApi) history(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	entries, err := api.svc.History(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting grade history")
	}
	if entries == nil {
		entries = []grading.HistoryEntry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *gradingApi) publishGrade(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	grade, err := api.svc.PublishGrade(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "publishing grade")
	}
	return ctx.JSON(http.StatusOK, grade)
}
