package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/activity"
	"github.com/trezcool/congress/core/enrollment"
	"github.com/trezcool/congress/core/result"
	"github.com/trezcool/congress/core/user"
)

var errActNotFoundInCtx = errors.New("activity object not found in echo.Context")

type activityApi struct {
	svc           *activity.Service
	userSvc       *user.Service
	enrollmentSvc *enrollment.Service
	resultSvc     *result.Service
}

func registerActivityAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := activityApi{
		svc:           deps.ActivitySvc,
		userSvc:       deps.UserSvc,
		enrollmentSvc: deps.EnrollmentSvc,
		resultSvc:     deps.ResultSvc,
	}
	objMw := activityObjectMiddleware(api.svc)

	ag := g.Group("/activities")

	// the programme is public
	ag.GET("", api.query)
	ag.GET("/:id", api.retrieve, objMw)

	ag.POST("", api.create, jwt, adminMiddleware())
	ag.PUT("/:id", api.update, jwt, adminMiddleware(), objMw)
	ag.DELETE("/:id", api.destroy, jwt, adminMiddleware())

	// enrollment of the context user
	ag.POST("/:id/enroll", api.enroll, jwt, activeUserMiddleware(api.userSvc), objMw)
	ag.DELETE("/:id/enroll", api.unenroll, jwt, objMw)
	ag.GET("/:id/enrollments", api.queryEnrollments, jwt, adminMiddleware(), objMw)

	// competition results
	// published results are public; a token still identifies admins
	ag.GET("/:id/results", api.queryResults, middleware.JWTWithConfig(optionalJWTConfig(deps.Conf)), objMw)
	ag.PUT("/:id/results", api.setScore, jwt, adminMiddleware(), objMw)
	ag.POST("/:id/results/publish", api.publishResults, jwt, adminMiddleware(), objMw)
	ag.DELETE("/:id/results/publish", api.unpublishResults, jwt, adminMiddleware(), objMw)
}

// Handlers

func (api *activityApi) create(ctx echo.Context) error {
	var data activity.NewActivity
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewActivity")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	act, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating activity")
	}
	return ctx.JSON(http.StatusCreated, act)
}

func (api *activityApi) query(ctx echo.Context) error {
	var filter activity.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []activity.Activity{})
	}

	acts, err := api.svc.Query(ctx.Request().Context(), filter, queryOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying activities")
	}
	return ctx.JSON(http.StatusOK, acts)
}

func (api *activityApi) retrieve(ctx echo.Context) error {
	act, err := contextActivity(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, act)
}

func (api *activityApi) update(ctx echo.Context) error {
	act, err := contextActivity(ctx)
	if err != nil {
		return err
	}

	var data activity.UpdateActivity
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateActivity")
	}
	if err = data.Validate(act); err != nil {
		return err
	}

	act, err = api.svc.Update(ctx.Request().Context(), act, data)
	if err != nil {
		return trapNotFound(err, "updating activity")
	}
	return ctx.JSON(http.StatusOK, act)
}

func (api *activityApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return trapNotFound(err, "deleting activity")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *activityApi) enroll(ctx echo.Context) error {
	act, err := contextActivity(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	enr, err := api.enrollmentSvc.Enroll(ctx.Request().Context(), usr, act)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *activityApi) unenroll(ctx echo.Context) error {
	act, err := contextActivity(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	enr, err := api.enrollmentSvc.Get(ctx.Request().Context(), usr.ID, act.ID)
	if err != nil {
		return trapNotFound(err, "getting enrollment")
	}
	if enr, err = api.enrollmentSvc.Cancel(ctx.Request().Context(), enr); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, enr)
}

func (api *activityApi) queryEnrollments(ctx echo.Context) error {
	act, err := contextActivity(ctx)
	if err != nil {
		return err
	}
	filter := enrollment.QueryFilter{ActivityID: act.ID, Status: ctx.QueryParam("status")}

	enrs, err := api.enrollmentSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (api *activityApi) queryResults(ctx echo.Context) error {
	act, err := contextActivity(ctx)
	if err != nil {
		return err
	}
	claims, _ := getContextClaims(ctx) // anonymous: zero claims

	results, err := api.resultSvc.List(ctx.Request().Context(), act, claims.IsAdmin)
	if err != nil {
		return trapNotFound(err, "listing results")
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *activityApi) setScore(ctx echo.Context) error {
	act, err := contextActivity(ctx)
	if err != nil {
		return err
	}

	var data result.NewResult
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewResult")
	}
	if err = data.Validate(); err != nil {
		return err
	}

	res, err := api.resultSvc.SetScore(ctx.Request().Context(), act, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *activityApi) publishResults(ctx echo.Context) error {
	act, err := contextActivity(ctx)
	if err != nil {
		return err
	}

	results, err := api.resultSvc.Publish(ctx.Request().Context(), act)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *activityApi) unpublishResults(ctx echo.Context) error {
	act, err := contextActivity(ctx)
	if err != nil {
		return err
	}
	if err = api.resultSvc.Unpublish(ctx.Request().Context(), act); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func activityObjectMiddleware(svc *activity.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			act, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if core.IsNotFound(err) {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding activity by ID")
			}
			ctx.Set("object", act)
			return next(ctx)
		}
	}
}

func contextActivity(ctx echo.Context) (activity.Activity, error) {
	act, ok := ctx.Get("object").(activity.Activity)
	if !ok {
		return activity.Activity{}, errors.Wrap(errActNotFoundInCtx, "retrieving object from context")
	}
	return act, nil
}
