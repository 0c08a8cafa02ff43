package echoapi

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type validatable interface {
	Validate(validate *validator.Validate) error
}

// bind decodes the request into data, then cleans and validates it.
func bind(ctx echo.Context, validate *validator.Validate, data validatable, name string) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrap(err, "binding to "+name)
	}
	return data.Validate(validate)
}

// idParam parses a positive integer path parameter; anything else is answered with a 404.
func idParam(ctx echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errHTTPNotFound
	}
	return id, nil
}
