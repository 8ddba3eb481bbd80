package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/amplmaint/mo-approval-api/internal/auth"
	"github.com/amplmaint/mo-approval-api/internal/model"
)

// sessionKey is the context key the resolved session is stored under.
const sessionKey = "session"

// BearerToken extracts the opaque token from the Authorization header.
// Returns "" when the header is absent or not a bearer scheme.
func BearerToken(c echo.Context) string {
	h := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// BearerAuth returns middleware that resolves the bearer token back to
// a session snapshot and stores it in the request context.  A missing
// or unknown token yields 401 with the error body the frontend expects.
func BearerAuth(svc *auth.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, ok := svc.VerifyToken(BearerToken(c))
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
			}
			c.Set(sessionKey, sess)
			return next(c)
		}
	}
}

// CurrentSession returns the session stored by BearerAuth.  The second
// return is false when the middleware did not run on this route.
func CurrentSession(c echo.Context) (model.Session, bool) {
	sess, ok := c.Get(sessionKey).(model.Session)
	return sess, ok
}

// RequireRole returns middleware that enforces that the authenticated
// user holds one of the given roles.  It assumes BearerAuth ran first;
// anything else is rejected with 403.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess, ok := CurrentSession(c)
			if !ok || !allowed[sess.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "Forbidden"})
			}
			return next(c)
		}
	}
}
