package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/user"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && (len(roles) == 0 || claims.hasAnyRole(roles)) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// scannerMiddleware lets staff & admins through.
func scannerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if claims.CanScan {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

// activeUserMiddleware loads the context user and rejects deactivated accounts.
func activeUserMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			return next(ctx)
		}
	}
}

// ownerOrAdmin is the permission check of user owned objects (enrollments, payments, diplomas..).
func ownerOrAdmin(ctx echo.Context, svc *user.Service, ownerID string) error {
	ctxUsr, err := getContextUser(ctx, svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if ctxUsr.ID == ownerID || ctxUsr.IsAdmin() {
		return nil
	}
	// do not disclose the object's existence
	return errHttpNotFound
}

// restrictToContextUser forces non-admin listings onto the context user's own objects.
func restrictToContextUser(ctx echo.Context, svc *user.Service, userID *string) error {
	ctxUsr, err := getContextUser(ctx, svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsAdmin() {
		*userID = ctxUsr.ID
	}
	return nil
}

func trapNotFound(err error, msg string) error {
	if core.IsNotFound(err) {
		return err
	}
	return errors.Wrap(err, msg)
}
