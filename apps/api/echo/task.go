package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/task"
)

type taskAPI struct {
	svc      task.Service
	validate *validator.Validate
}

func registerTaskAPI(g *echo.Group, svc task.Service, validate *validator.Validate) {
	api := taskAPI{svc: svc, validate: validate}

	g.POST("", api.create)
	g.PATCH("/:taskId", api.updateStatus)
	g.PATCH("/:taskId/edit", api.update)
	g.DELETE("/:taskId", api.destroy)
	g.POST("/:taskId/comments", api.addComment)
	g.POST("/:taskId/files", api.uploadFile)
}

// taskParams resolves the team and task path IDs along with the caller's ID.
func taskParams(ctx echo.Context, withTask bool) (teamID, taskID, userID int64, err error) {
	if teamID, err = idParam(ctx, "teamId"); err != nil {
		return
	}
	if withTask {
		if taskID, err = idParam(ctx, "taskId"); err != nil {
			return
		}
	}
	userID, err = contextUserID(ctx)
	return
}

func (api *taskAPI) create(ctx echo.Context) error {
	teamID, _, userID, err := taskParams(ctx, false)
	if err != nil {
		return err
	}
	var data task.NewTask
	if err = bind(ctx, api.validate, &data, "NewTask"); err != nil {
		return err
	}

	details, err := api.svc.Create(ctx.Request().Context(), teamID, userID, data)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, details)
}

func (api *taskAPI) updateStatus(ctx echo.Context) error {
	teamID, taskID, userID, err := taskParams(ctx, true)
	if err != nil {
		return err
	}
	var data task.UpdateStatus
	if err = bind(ctx, api.validate, &data, "UpdateStatus"); err != nil {
		return err
	}

	details, err := api.svc.UpdateStatus(ctx.Request().Context(), teamID, taskID, userID, *data.IsCompleted)
	if err != nil {
		return errors.Wrap(err, "updating task status")
	}
	return ctx.JSON(http.StatusOK, details)
}

func (api *taskAPI) update(ctx echo.Context) error {
	teamID, taskID, userID, err := taskParams(ctx, true)
	if err != nil {
		return err
	}
	var data task.UpdateTask
	if err = bind(ctx, api.validate, &data, "UpdateTask"); err != nil {
		return err
	}

	details, err := api.svc.Update(ctx.Request().Context(), teamID, taskID, userID, data)
	if err != nil {
		return errors.Wrap(err, "updating task")
	}
	return ctx.JSON(http.StatusOK, details)
}

func (api *taskAPI) destroy(ctx echo.Context) error {
	teamID, taskID, userID, err := taskParams(ctx, true)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), teamID, taskID, userID); err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return ctx.JSON(http.StatusOK, core.LeaveResult{Success: true})
}

func (api *taskAPI) addComment(ctx echo.Context) error {
	teamID, taskID, userID, err := taskParams(ctx, true)
	if err != nil {
		return err
	}
	var data task.NewComment
	if err = bind(ctx, api.validate, &data, "NewComment"); err != nil {
		return err
	}

	details, err := api.svc.AddComment(ctx.Request().Context(), teamID, taskID, userID, data)
	if err != nil {
		return errors.Wrap(err, "adding comment")
	}
	return ctx.JSON(http.StatusCreated, details)
}

func (api *taskAPI) uploadFile(ctx echo.Context) error {
	teamID, taskID, userID, err := taskParams(ctx, true)
	if err != nil {
		return err
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		return errNoFile
	}
	src, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer src.Close()

	details, err := api.svc.UploadFile(ctx.Request().Context(), teamID, taskID, userID, task.NewFile{
		Name:    fh.Filename,
		Size:    fh.Size,
		Content: src,
	})
	if err != nil {
		return errors.Wrap(err, "uploading file")
	}
	return ctx.JSON(http.StatusCreated, details)
}
