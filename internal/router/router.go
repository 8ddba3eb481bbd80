package router // package router defines how HTTP routes are registered for the API

import (
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/amplmaint/mo-approval-api/internal/auth"
	"github.com/amplmaint/mo-approval-api/internal/config"
	"github.com/amplmaint/mo-approval-api/internal/handler"
	"github.com/amplmaint/mo-approval-api/internal/middleware"
	"github.com/amplmaint/mo-approval-api/internal/model"
)

// Deps carries everything the routes need.  All services are built in
// main and injected here; no package-level state.
type Deps struct {
	Cfg     config.Config
	Auth    *handler.AuthHandler
	Orders  *handler.OrdersHandler
	Health  *handler.HealthHandler
	AuthSvc *auth.Service
	Redis   *redis.Client
	Log     *logrus.Logger
}

// Register wires up CORS, request logging and every route group on the
// provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     d.Cfg.AllowedOrigins,
		AllowMethods:     []string{echo.GET, echo.POST, echo.PUT, echo.PATCH, echo.DELETE, echo.OPTIONS},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	e.Use(requestLogger(d.Log))

	// Health stays public so load balancers can probe without a token.
	e.GET("/api/health", d.Health.Health)

	// Authentication surface.  Login is rate limited per client IP when
	// Redis is available; register is deliberately public.
	a := e.Group("/api/auth")
	a.POST("/login", d.Auth.Login,
		middleware.LoginRateLimit(d.Redis, d.Cfg.LoginRateLimit, d.Cfg.LoginRateWindow, d.Log))
	a.POST("/logout", d.Auth.Logout)
	a.GET("/verify", d.Auth.Verify)
	a.POST("/register", d.Auth.Register)

	bearer := middleware.BearerAuth(d.AuthSvc)
	a.GET("/me", d.Auth.Me, bearer)
	a.POST("/change-password", d.Auth.ChangePassword, bearer)

	adminOnly := middleware.RequireRole(model.RoleAdmin)
	a.GET("/users", d.Auth.ListUsers, bearer, adminOnly)
	a.POST("/users", d.Auth.AddUser, bearer, adminOnly)

	// Order proxy.  Every route requires a valid session; the decision
	// endpoints additionally go through the gateway's CSRF machinery.
	o := e.Group("/api/maintenance-orders", bearer)
	o.GET("", d.Orders.List)
	o.GET("/:orderNumber/:objectNumber", d.Orders.Get)
	o.GET("/:orderNumber/:objectNumber/status", d.Orders.Status)
	o.POST("/approve", d.Orders.Approve)
	o.POST("/reject", d.Orders.Reject)

	// Token diagnostics, for operators.
	e.GET("/api/csrf-info", d.Health.CSRFInfo, bearer)
	e.POST("/api/csrf-refresh", d.Health.CSRFRefresh, bearer, adminOnly)
}

// requestLogger emits one structured line per request.
func requestLogger(log *logrus.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			log.WithFields(logrus.Fields{
				"method":  c.Request().Method,
				"path":    c.Request().URL.Path,
				"status":  c.Response().Status,
				"latency": time.Since(start).String(),
			}).Info("request")
			return err
		}
	}
}
