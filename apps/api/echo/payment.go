package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/payment"
	"github.com/trezcool/congress/core/user"
)

type paymentApi struct {
	svc     *payment.Service
	userSvc *user.Service
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := paymentApi{svc: deps.PaymentSvc, userSvc: deps.UserSvc}

	pg := g.Group("/payments", jwt)
	pg.POST("", api.create, adminMiddleware())
	pg.GET("", api.query)
	pg.GET("/:id", api.retrieve)
}

// Handlers

func (api *paymentApi) create(ctx echo.Context) error {
	var data payment.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	recorder, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	p, err := api.svc.Record(ctx.Request().Context(), recorder, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *paymentApi) query(ctx echo.Context) error {
	var filter payment.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []payment.Payment{})
	}
	if err := restrictToContextUser(ctx, api.userSvc, &filter.UserID); err != nil {
		return err
	}

	payments, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	return ctx.JSON(http.StatusOK, payments)
}

func (api *paymentApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding payment by ID")
	}
	if err = ownerOrAdmin(ctx, api.userSvc, p.UserID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}
