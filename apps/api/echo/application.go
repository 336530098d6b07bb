package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/application"
)

type applicationApi struct {
	svc      *application.Service
	lms      core.LMSClient
	validate *validator.Validate
}

func registerApplicationAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc *application.Service,
	lms core.LMSClient,
	validate *validator.Validate,
) {
	api := applicationApi{svc: svc, lms: lms, validate: validate}

	ag := g.Group("/applications")

	// un-authed endpoints
	ag.POST("", api.submit)
	ag.GET("/:id/status", api.status) // :id is the reference number

	// admin endpoints
	ag.GET("", api.query, jwt, adminMiddleware())
	ag.GET("/stats", api.stats, jwt, adminMiddleware())
	ag.GET("/:id", api.retrieve, jwt, adminMiddleware())
	ag.POST("/:id/initial-approve", api.initialApprove, jwt, adminMiddleware())
	ag.POST("/:id/approve", api.approve, jwt, adminMiddleware())
	ag.POST("/:id/reject", api.reject, jwt, adminMiddleware())
	ag.POST("/:id/lms-account", api.createLMSAccount, jwt, adminMiddleware())

	lg := g.Group("/lms")
	lg.GET("/programs", api.lmsPrograms)
	lg.GET("/intakes", api.lmsIntakes)
	lg.POST("/sso", api.sso, jwt)
}

func (api *applicationApi) submit(ctx echo.Context) error {
	var data application.NewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}
	reqCtx := ctx.Request().Context()
	if err := data.Validate(reqCtx, api.validate, api.svc); err != nil {
		return err
	}

	var docs []application.DocumentUpload
	for _, docType := range application.DocumentTypes {
		fh, err := ctx.FormFile(docType)
		if err != nil {
			continue // optional document
		}
		f, err := fh.Open()
		if err != nil {
			return errors.Wrap(err, "opening uploaded document")
		}
		//goland:noinspection GoUnhandledErrorResult
		defer f.Close()
		docs = append(docs, application.DocumentUpload{Type: docType, Filename: fh.Filename, Content: f})
	}

	app, err := api.svc.Submit(reqCtx, data, docs)
	if err != nil {
		return errors.Wrap(err, "submitting application")
	}
	return ctx.JSON(http.StatusCreated, SubmitApplicationResponse{
		ReferenceNumber: app.ReferenceNumber,
		Status:          app.Status,
	})
}

func (api *applicationApi) status(ctx echo.Context) error {
	view, err := api.svc.Status(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, view)
}

func (api *applicationApi) query(ctx echo.Context) error {
	var filter application.QueryFilter
	if err := echo.QueryParamsBinder(ctx).
		String("status", &filter.Status).
		String("program_id", &filter.ProgramID).
		BindError(); err != nil {
		return errors.Wrap(err, "binding to application.QueryFilter")
	}
	dt := new(DataTablesRequest)
	dt.Bind(ctx)

	page, err := api.svc.Query(ctx.Request().Context(), filter, dt.Query)
	if err != nil {
		return errors.Wrap(err, "querying applications")
	}
	return ctx.JSON(http.StatusOK, newDataTablesResponse(dt.Draw, page))
}

func (api *applicationApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing application stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *applicationApi) retrieve(ctx echo.Context) error {
	app, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) initialApprove(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	app, err := api.svc.InitialApprove(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) approve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	app, err := api.svc.FinalApprove(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "approving application")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) reject(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data RejectApplicationRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RejectApplicationRequest")
	}
	data.Reason = core.CleanString(data.Reason)
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	app, err := api.svc.Reject(ctx.Request().Context(), actor, ctx.Param("id"), data.Reason)
	if err != nil {
		return errors.Wrap(err, "rejecting application")
	}
	return ctx.JSON(http.StatusOK, app)
}

// createLMSAccount retries the LMS account creation of an approved application.
func (api *applicationApi) createLMSAccount(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	if err := api.svc.CreateLMSAccount(reqCtx, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "creating LMS account")
	}
	app, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *applicationApi) lmsPrograms(ctx echo.Context) error {
	programs := api.lms.Programs(ctx.Request().Context())
	if programs == nil {
		programs = []core.LMSProgram{}
	}
	return ctx.JSON(http.StatusOK, programs)
}

func (api *applicationApi) lmsIntakes(ctx echo.Context) error {
	intakes := api.lms.Intakes(ctx.Request().Context())
	open := make([]core.LMSIntake, 0, len(intakes))
	for _, in := range intakes {
		if in.IsOpen {
			open = append(open, in)
		}
	}
	return ctx.JSON(http.StatusOK, open)
}

func (api *applicationApi) sso(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data SSORequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SSORequest")
	}

	res, err := api.svc.SSO(ctx.Request().Context(), claims.Email, data.RedirectTo)
	if err != nil {
		return errors.Wrap(err, "issuing sso token")
	}
	return ctx.JSON(http.StatusOK, res)
}

type (
	SubmitApplicationResponse struct {
		ReferenceNumber string `json:"reference_number"`
		Status          string `json:"status"`
	}

	RejectApplicationRequest struct {
		Reason string `json:"reason" validate:"required,notblank"`
	}

	SSORequest struct {
		RedirectTo string `json:"redirect_to"`
	}
)
