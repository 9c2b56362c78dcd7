package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// httpError is what the error handler sends back.
type httpError struct {
	code     int
	body     interface{} // string | map[string]string
	internal bool
}

// toHTTPError maps domain, validation & echo errors to a response; anything else is internal.
func toHTTPError(err error) httpError {
	switch cause := errors.Cause(err).(type) {
	case *echo.HTTPError:
		if cause == middleware.ErrJWTMissing {
			return httpError{code: http.StatusUnauthorized, body: cause.Message}
		}
		if herr, ok := cause.Internal.(*echo.HTTPError); ok {
			cause = herr
		}
		return httpError{code: cause.Code, body: cause.Message}

	case validator.ValidationErrors:
		fields := make(map[string]string, len(cause))
		for _, fe := range cause {
			fields[fe.Field()] = fe.Translate(core.Translator)
		}
		return httpError{code: http.StatusBadRequest, body: fields}

	case *core.ValidationError:
		if cause.Fields == nil {
			return httpError{code: http.StatusBadRequest, body: cause.Error()}
		}
		fields := make(map[string]string, len(cause.Fields))
		for _, fe := range cause.Fields {
			fields[fe.Field] = fe.Error
		}
		return httpError{code: http.StatusBadRequest, body: fields}

	case *core.NotFoundError:
		return httpError{code: http.StatusNotFound, body: cause.Error()}
	}

	return httpError{
		code:     http.StatusInternalServerError,
		body:     http.StatusText(http.StatusInternalServerError),
		internal: true,
	}
}

// newAppHTTPErrorHandler returns the echo.HTTPErrorHandler of the API.
// Internal errors are reported with the context user; a core shutdown error calls signalShutdown.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		herr := toHTTPError(err)

		// the client went away (ie: during a long diploma generation): nothing to report
		aborted := errors.Cause(err) == context.Canceled && ctx.Request().Context().Err() != nil

		if herr.internal && !aborted {
			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Username = claims.Username
				usr.Email = claims.Email
			}
			msg := http.StatusText(herr.code)
			logger.Error(msg, errors.Wrap(err, ctx.Request().Method+" "+ctx.Path()), usr)

			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		body := herr.body
		if ctx.Echo().Debug {
			body = err.Error()
		}
		if m, ok := body.(string); ok {
			body = echo.Map{"error": m}
		}

		if ctx.Response().Committed {
			return
		}
		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(herr.code)
		} else {
			err = ctx.JSON(herr.code, body)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}
