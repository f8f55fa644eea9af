package api

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tunnelbot/internal/provision"
)

// AccountHandler exposes the provisioning service over HTTP.
type AccountHandler struct {
	svc    *provision.Service
	logger *zap.Logger
}

func NewAccountHandler(svc *provision.Service, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{svc: svc, logger: logger}
}

// Provision handles POST /api/v1/provision.
func (h *AccountHandler) Provision(c echo.Context) error {
	var req provision.Request
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, 400, "malformed request body")
	}

	acc, err := h.svc.Provision(c.Request().Context(), req)
	if err != nil {
		h.logger.Warn("provision failed",
			zap.String("user_id", req.UserID),
			zap.String("username", req.Username),
			zap.Error(err))
		return failureResponse(c, err)
	}
	return successResponse(c, "provisioned", acc)
}

// Renew handles POST /api/v1/renew.
func (h *AccountHandler) Renew(c echo.Context) error {
	var req provision.Request
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, 400, "malformed request body")
	}

	acc, err := h.svc.Renew(c.Request().Context(), req)
	if err != nil {
		h.logger.Warn("renew failed",
			zap.String("user_id", req.UserID),
			zap.String("username", req.Username),
			zap.Error(err))
		return failureResponse(c, err)
	}
	return successResponse(c, "renewed", acc)
}

// Delete handles POST /api/v1/delete.
func (h *AccountHandler) Delete(c echo.Context) error {
	var req provision.Request
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, 400, "malformed request body")
	}

	if err := h.svc.Delete(c.Request().Context(), req); err != nil {
		h.logger.Warn("delete failed",
			zap.String("user_id", req.UserID),
			zap.String("username", req.Username),
			zap.Error(err))
		return failureResponse(c, err)
	}
	return successResponse(c, "deleted", nil)
}

// List handles GET /api/v1/accounts/:userID.
func (h *AccountHandler) List(c echo.Context) error {
	userID := c.Param("userID")
	if userID == "" {
		return errorResponse(c, 400, "userID is required")
	}
	accounts, err := h.svc.Accounts(userID)
	if err != nil {
		return failureResponse(c, err)
	}
	return successResponse(c, "ok", accounts)
}
