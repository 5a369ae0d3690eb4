package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"kanban-api/domain"
)

// writeError maps a repository error kind onto an HTTP status. Only the
// kind's message is exposed, never store or cache detail.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.String(http.StatusNotFound, domain.ErrNotFound.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return c.String(http.StatusUnauthorized, domain.ErrUnauthorized.Error())
	case errors.Is(err, domain.ErrConflict):
		return c.String(http.StatusConflict, domain.ErrConflict.Error())
	case errors.Is(err, domain.ErrValidation):
		return c.String(http.StatusBadRequest, domain.ErrValidation.Error())
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, "internal error")
	}
}
