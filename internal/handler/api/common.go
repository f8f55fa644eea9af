package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"tunnelbot/internal/backend"
	"tunnelbot/internal/models"
	"tunnelbot/internal/provision"
	"tunnelbot/internal/repository"
)

func successResponse(c echo.Context, msg string, obj interface{}) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: true,
		Msg:    msg,
		Obj:    obj,
	})
}

func errorResponse(c echo.Context, code int, msg string) error {
	return c.JSON(code, models.APIResponse{
		Status: false,
		Msg:    msg,
		Obj:    nil,
	})
}

// failureResponse maps service errors onto status codes: invalid input 400,
// policy denial 403, missing rows 404, panel failures 502, store failures 500.
func failureResponse(c echo.Context, err error) error {
	var policyErr *provision.PolicyDeniedError
	var backendErr *backend.Error

	switch {
	case errors.Is(err, provision.ErrInvalidUsername),
		errors.Is(err, provision.ErrInvalidProtocol):
		return errorResponse(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, provision.ErrTrialUsed),
		errors.Is(err, provision.ErrTrialDisabled):
		return errorResponse(c, http.StatusForbidden, err.Error())
	case errors.As(err, &policyErr):
		return errorResponse(c, http.StatusForbidden, policyErr.Error())
	case errors.Is(err, repository.ErrNotFound):
		return errorResponse(c, http.StatusNotFound, "not found")
	case errors.As(err, &backendErr):
		return errorResponse(c, http.StatusBadGateway, backendErr.Error())
	default:
		return errorResponse(c, http.StatusInternalServerError, "internal error")
	}
}
