package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/activity"
	"github.com/trezcool/congress/core/enrollment"
	"github.com/trezcool/congress/core/user"
)

type enrollmentApi struct {
	svc         *enrollment.Service
	userSvc     *user.Service
	activitySvc *activity.Service
}

func registerEnrollmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := enrollmentApi{
		svc:         deps.EnrollmentSvc,
		userSvc:     deps.UserSvc,
		activitySvc: deps.ActivitySvc,
	}

	eg := g.Group("/enrollments", jwt)
	eg.GET("", api.query)
	eg.POST("", api.create, adminMiddleware())
	eg.GET("/:id", api.retrieve)
	eg.DELETE("/:id", api.cancel)
}

type EnrollRequest struct {
	UserID     string `json:"user_id" validate:"required,uuid"`
	ActivityID string `json:"activity_id" validate:"required,uuid"`
}

func (er *EnrollRequest) Validate() error {
	er.UserID = core.CleanString(er.UserID, true /* lower */)
	er.ActivityID = core.CleanString(er.ActivityID, true /* lower */)
	return core.Validate.Struct(er)
}

// Handlers

func (api *enrollmentApi) query(ctx echo.Context) error {
	var filter enrollment.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []enrollment.Enrollment{})
	}
	if err := restrictToContextUser(ctx, api.userSvc, &filter.UserID); err != nil {
		return err
	}

	enrs, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	return ctx.JSON(http.StatusOK, enrs)
}

// create enrolls any user, on their behalf.
func (api *enrollmentApi) create(ctx echo.Context) error {
	var data EnrollRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EnrollRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	c := ctx.Request().Context()
	usr, err := api.userSvc.GetByID(c, data.UserID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldValidationError("user_id", err)
		}
		return errors.Wrap(err, "finding user by ID")
	}
	act, err := api.activitySvc.GetByID(c, data.ActivityID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldValidationError("activity_id", err)
		}
		return errors.Wrap(err, "finding activity by ID")
	}

	enr, err := api.svc.Enroll(c, usr, act)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	enr, err := api.get(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) cancel(ctx echo.Context) error {
	enr, err := api.get(ctx)
	if err != nil {
		return err
	}
	if enr, err = api.svc.Cancel(ctx.Request().Context(), enr); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *enrollmentApi) get(ctx echo.Context) (enrollment.Enrollment, error) {
	enr, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if core.IsNotFound(err) {
			return enr, errHttpNotFound
		}
		return enr, errors.Wrap(err, "finding enrollment by ID")
	}
	if err = ownerOrAdmin(ctx, api.userSvc, enr.UserID); err != nil {
		return enr, err
	}
	return enr, nil
}
