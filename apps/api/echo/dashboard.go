package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/academia/core/dashboard"
)

type dashboardApi struct {
	svc *dashboard.Service
}

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *dashboard.Service) {
	api := dashboardApi{svc: svc}

	dg := g.Group("/dashboard")
	dg.GET("/admin", api.admin, jwt, adminMiddleware())
	dg.GET("/instructor", api.instructor, jwt, instructorMiddleware())
	dg.GET("/student", api.student, jwt, studentMiddleware())
}

// dashboards never fail: broken sections come back empty

func (api *dashboardApi) admin(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Admin(ctx.Request().Context()))
}

func (api *dashboardApi) instructor(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.svc.Instructor(ctx.Request().Context(), claims.Subject))
}

func (api *dashboardApi) student(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, api.svc.Student(ctx.Request().Context(), claims.Subject))
}
