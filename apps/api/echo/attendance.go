package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/congress/core/attendance"
	"github.com/trezcool/congress/core/user"
)

type attendanceApi struct {
	svc     *attendance.Service
	userSvc *user.Service
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := attendanceApi{svc: deps.AttendanceSvc, userSvc: deps.UserSvc}

	ag := g.Group("/attendance", jwt)
	ag.POST("/scan", api.scan, scannerMiddleware, activeUserMiddleware(api.userSvc))
	ag.GET("", api.query)
}

// ScanResponse tells the scanner whether the scan was new or a repeat.
type ScanResponse struct {
	attendance.Record
	AlreadyScanned bool `json:"already_scanned"`
}

// Handlers

func (api *attendanceApi) scan(ctx echo.Context) error {
	var data attendance.Scan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Scan")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	scanner, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	rec, created, err := api.svc.RecordScan(ctx.Request().Context(), scanner, data)
	if err != nil {
		return err
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	return ctx.JSON(code, ScanResponse{Record: rec, AlreadyScanned: !created})
}

func (api *attendanceApi) query(ctx echo.Context) error {
	var filter attendance.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []attendance.Record{})
	}

	// staff see every scan, participants their own
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !claims.CanScan {
		filter.UserID = claims.Subject
	}

	recs, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, recs)
}
