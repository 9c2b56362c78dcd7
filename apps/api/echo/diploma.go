package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/congress/core"
	"github.com/trezcool/congress/core/diploma"
	"github.com/trezcool/congress/core/user"
)

type diplomaApi struct {
	svc     *diploma.Service
	userSvc *user.Service
}

func registerDiplomaAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := diplomaApi{svc: deps.DiplomaSvc, userSvc: deps.UserSvc}

	dg := g.Group("/diplomas")

	// anyone holding a code may check it
	dg.GET("/verify/:code", api.verify)

	ag := dg.Group("", jwt)
	ag.GET("", api.query)
	ag.POST("/generate", api.generate, adminMiddleware())
	ag.GET("/:id", api.retrieve)
	ag.GET("/:id/download", api.download)
	ag.POST("/:id/email", api.email)
}

// VerifyResponse discloses only what is printed on the diploma.
type VerifyResponse struct {
	Valid         bool   `json:"valid"`
	Code          string `json:"code"`
	Kind          string `json:"kind"`
	Place         int    `json:"place,omitempty"`
	UserName      string `json:"user_name"`
	ActivityTitle string `json:"activity_title"`
	IssuedAt      string `json:"issued_at"`
}

// Handlers

func (api *diplomaApi) query(ctx echo.Context) error {
	var filter diploma.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []diploma.Diploma{})
	}
	if err := restrictToContextUser(ctx, api.userSvc, &filter.UserID); err != nil {
		return err
	}

	diplomas, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying diplomas")
	}
	return ctx.JSON(http.StatusOK, diplomas)
}

func (api *diplomaApi) generate(ctx echo.Context) error {
	report, err := api.svc.Generate(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "generating diplomas")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *diplomaApi) retrieve(ctx echo.Context) error {
	d, err := api.get(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *diplomaApi) download(ctx echo.Context) error {
	d, err := api.get(ctx)
	if err != nil {
		return err
	}

	rc, contentType, err := api.svc.Open(ctx.Request().Context(), d)
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "opening diploma")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer rc.Close()

	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+diploma.Filename(d)+`"`)
	return ctx.Stream(http.StatusOK, contentType, rc)
}

func (api *diplomaApi) email(ctx echo.Context) error {
	d, err := api.get(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Email(ctx.Request().Context(), &d); err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return err
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *diplomaApi) verify(ctx echo.Context) error {
	d, err := api.svc.Verify(ctx.Request().Context(), ctx.Param("code"))
	if err != nil {
		if core.IsNotFound(err) {
			return ctx.JSON(http.StatusNotFound, VerifyResponse{Valid: false, Code: ctx.Param("code")})
		}
		return errors.Wrap(err, "verifying diploma")
	}
	return ctx.JSON(http.StatusOK, VerifyResponse{
		Valid:         true,
		Code:          d.VerificationCode,
		Kind:          d.Kind,
		Place:         d.Place,
		UserName:      d.UserName,
		ActivityTitle: d.ActivityTitle,
		IssuedAt:      d.IssuedAt.Format("2006-01-02"),
	})
}

// get loads the diploma of the URL, hiding others' diplomas (and unfinished ones) from non-admins.
func (api *diplomaApi) get(ctx echo.Context) (diploma.Diploma, error) {
	d, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		if core.IsNotFound(err) {
			return d, errHttpNotFound
		}
		return d, errors.Wrap(err, "finding diploma by ID")
	}
	if !d.IsReady() {
		return d, errHttpNotFound
	}
	if err = ownerOrAdmin(ctx, api.userSvc, d.UserID); err != nil {
		return d, err
	}
	return d, nil
}
