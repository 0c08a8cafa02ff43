package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/task"
	"github.com/trezcool/kazi/core/team"
)

type teamAPI struct {
	svc      team.Service
	taskSvc  task.Service
	validate *validator.Validate
}

func registerTeamAPI(g *echo.Group, svc team.Service, taskSvc task.Service, validate *validator.Validate) {
	api := teamAPI{svc: svc, taskSvc: taskSvc, validate: validate}

	g.GET("/mine", api.queryMine)
	g.POST("", api.create)
	g.POST("/join", api.join)
	g.GET("/:teamId", api.retrieve)
	g.POST("/:teamId/leave", api.leave)
	g.POST("/:teamId/members/:userId/remove", api.removeMember)

	registerTaskAPI(g.Group("/:teamId/tasks"), taskSvc, validate)
}

// TeamBoard is the full team page: header, members and tasks.
type TeamBoard struct {
	team.Details
	Tasks []task.Details `json:"tasks"`
}

func (api *teamAPI) queryMine(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	memberships, err := api.svc.QueryForUser(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "querying teams")
	}
	return ctx.JSON(http.StatusOK, memberships)
}

func (api *teamAPI) create(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var data team.NewTeam
	if err = bind(ctx, api.validate, &data, "NewTeam"); err != nil {
		return err
	}

	tm, err := api.svc.Create(ctx.Request().Context(), userID, data)
	if err != nil {
		return errors.Wrap(err, "creating team")
	}
	return ctx.JSON(http.StatusCreated, tm)
}

func (api *teamAPI) join(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var data core.JoinRequest
	if err = bind(ctx, api.validate, &data, "JoinRequest"); err != nil {
		return err
	}

	tm, err := api.svc.Join(ctx.Request().Context(), userID, data.JoinCode)
	if err != nil {
		return errors.Wrap(err, "joining team")
	}
	return ctx.JSON(http.StatusOK, tm)
}

func (api *teamAPI) retrieve(ctx echo.Context) error {
	teamID, err := idParam(ctx, "teamId")
	if err != nil {
		return err
	}
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	details, err := api.svc.Get(rctx, teamID, userID)
	if err != nil {
		return errors.Wrap(err, "getting team")
	}
	tasks, err := api.taskSvc.QueryForTeam(rctx, teamID, userID)
	if err != nil {
		return errors.Wrap(err, "querying tasks")
	}
	return ctx.JSON(http.StatusOK, TeamBoard{Details: details, Tasks: tasks})
}

func (api *teamAPI) leave(ctx echo.Context) error {
	teamID, err := idParam(ctx, "teamId")
	if err != nil {
		return err
	}
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.Leave(ctx.Request().Context(), teamID, userID)
	if err != nil {
		return errors.Wrap(err, "leaving team")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *teamAPI) removeMember(ctx echo.Context) error {
	teamID, err := idParam(ctx, "teamId")
	if err != nil {
		return err
	}
	memberID, err := idParam(ctx, "userId")
	if err != nil {
		return err
	}
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}

	if err = api.svc.RemoveMember(ctx.Request().Context(), teamID, memberID, userID); err != nil {
		return errors.Wrap(err, "removing member")
	}
	return ctx.JSON(http.StatusOK, core.LeaveResult{Success: true})
}
