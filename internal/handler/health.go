package handler // declare the package name; contains HTTP handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/amplmaint/mo-approval-api/internal/auth"
	"github.com/amplmaint/mo-approval-api/internal/config"
	"github.com/amplmaint/mo-approval-api/internal/sap"
)

// HealthHandler reports service status and upstream-token diagnostics
// for monitoring and for the frontend's connection test screen.
type HealthHandler struct {
	Cfg  config.Config
	SAP  *sap.Client
	Auth *auth.Service
}

func NewHealthHandler(cfg config.Config, client *sap.Client, a *auth.Service) *HealthHandler {
	return &HealthHandler{Cfg: cfg, SAP: client, Auth: a}
}

// Health returns readiness plus a configuration summary.  Secrets are
// reported as present/absent only.
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":      "OK",
		"service":     "MO Approval Backend API",
		"timestamp":   time.Now().UTC(),
		"environment": h.Cfg.Env,
		"configuration": echo.Map{
			"sapBaseUrl":     h.Cfg.SAPBaseURL,
			"sapServicePath": h.Cfg.SAPServicePath,
			"sapUsername":    h.Cfg.SAPUsername != "",
			"sapPassword":    h.Cfg.SAPPassword != "",
			"sapClient":      h.Cfg.SAPClient,
		},
		"csrf":           h.SAP.TokenInfo(),
		"activeSessions": h.Auth.ActiveSessions(),
	})
}

// CSRFInfo returns the token manager's diagnostic snapshot.
func (h *HealthHandler) CSRFInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"csrfToken": h.SAP.TokenInfo(),
		"timestamp": time.Now().UTC(),
	})
}

// CSRFRefresh forces a token refresh against the upstream.
func (h *HealthHandler) CSRFRefresh(c echo.Context) error {
	if _, err := h.SAP.RefreshToken(c.Request().Context()); err != nil {
		return c.JSON(http.StatusBadGateway, echo.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"message":   "CSRF token refreshed successfully",
		"csrfToken": h.SAP.TokenInfo(),
	})
}
