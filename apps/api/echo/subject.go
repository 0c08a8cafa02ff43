package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/subject"
)

type subjectAPI struct {
	svc      subject.Service
	validate *validator.Validate
}

func registerSubjectAPI(g *echo.Group, svc subject.Service, validate *validator.Validate) {
	api := subjectAPI{svc: svc, validate: validate}

	g.GET("", api.query)
	g.POST("", api.create)
	g.POST("/join", api.join)
	g.POST("/:subjectId/leave", api.leave)
}

func (api *subjectAPI) query(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	subjects, err := api.svc.QueryForUser(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *subjectAPI) create(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var data subject.NewSubject
	if err = bind(ctx, api.validate, &data, "NewSubject"); err != nil {
		return err
	}

	sub, err := api.svc.Create(ctx.Request().Context(), userID, data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *subjectAPI) join(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var data core.JoinRequest
	if err = bind(ctx, api.validate, &data, "JoinRequest"); err != nil {
		return err
	}

	sub, err := api.svc.Join(ctx.Request().Context(), userID, data.JoinCode)
	if err != nil {
		return errors.Wrap(err, "joining subject")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *subjectAPI) leave(ctx echo.Context) error {
	subjectID, err := idParam(ctx, "subjectId")
	if err != nil {
		return err
	}
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.Leave(ctx.Request().Context(), subjectID, userID)
	if err != nil {
		return errors.Wrap(err, "leaving subject")
	}
	return ctx.JSON(http.StatusOK, res)
}
