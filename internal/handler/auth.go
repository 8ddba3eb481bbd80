package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/amplmaint/mo-approval-api/internal/auth"
	"github.com/amplmaint/mo-approval-api/internal/middleware"
	"github.com/amplmaint/mo-approval-api/internal/repository"
)

// AuthHandler bundles dependencies for the /api/auth endpoints.
type AuthHandler struct {
	Auth *auth.Service
}

func NewAuthHandler(a *auth.Service) *AuthHandler {
	return &AuthHandler{Auth: a}
}

// ----- DTOs -----

type loginReq struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

type changePasswordReq struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type newUserReq struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Plant    string `json:"plant"`
}

// Login validates credentials and returns a bearer token plus the
// session snapshot.  Unknown user and wrong password produce the same
// generic message on purpose.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "Invalid request body"})
	}
	if req.UserID == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "Username and password are required"})
	}

	sess, err := h.Auth.Authenticate(req.UserID, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrAccountDisabled) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "Login failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "token": sess.Token, "user": sess})
}

// Logout removes the presented session.  The response mirrors the
// session table state rather than failing the request: logging out an
// already-dead token is a 200 with success=false.
func (h *AuthHandler) Logout(c echo.Context) error {
	if h.Auth.Logout(middleware.BearerToken(c)) {
		return c.JSON(http.StatusOK, echo.Map{"success": true})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": false, "error": "Session not found"})
}

// Verify resolves the bearer token without going through the
// BearerAuth middleware so that the structured {valid:false} shape
// reaches the frontend.
func (h *AuthHandler) Verify(c echo.Context) error {
	token := middleware.BearerToken(c)
	if token == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"valid": false, "error": "No token provided"})
	}
	sess, ok := h.Auth.VerifyToken(token)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"valid": false, "error": "Invalid or expired session"})
	}
	return c.JSON(http.StatusOK, echo.Map{"valid": true, "user": sess})
}

// Me returns the authenticated user's session snapshot (protected).
func (h *AuthHandler) Me(c echo.Context) error {
	sess, _ := middleware.CurrentSession(c)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": sess})
}

// ChangePassword re-verifies the current password before storing the
// new one (protected).
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "Invalid request body"})
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "Old and new passwords are required"})
	}

	sess, _ := middleware.CurrentSession(c)
	if err := h.Auth.ChangePassword(sess.UserID, req.OldPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, auth.ErrWrongPassword):
			return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": err.Error()})
		case errors.Is(err, repository.ErrUserNotFound):
			return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "User not found"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "Failed to change password"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// ListUsers returns every account with hashes stripped (admin only;
// role enforcement happens in the route middleware).
func (h *AuthHandler) ListUsers(c echo.Context) error {
	users, err := h.Auth.AllUsers()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "Failed to get users"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "users": users})
}

// AddUser creates an account on behalf of an admin.  An unspecified
// plant falls back to "ALL".
func (h *AuthHandler) AddUser(c echo.Context) error {
	var req newUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "Invalid request body"})
	}
	if msg := validateNewUser(req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": msg})
	}

	nu := repository.NewUser{
		UserID:   req.UserID,
		Password: req.Password,
		Name:     req.Name,
		Email:    req.Email,
		Role:     req.Role,
	}
	if req.Plant != "" {
		nu.Plant = &req.Plant
	}
	user, err := h.Auth.AddUser(nu)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "User ID already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "Failed to add user"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": user})
}

// Register is the public self-service variant of AddUser.  The plant is
// passed through verbatim, so an account registered without one ends up
// with an empty plant instead of "ALL".
func (h *AuthHandler) Register(c echo.Context) error {
	var req newUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "Invalid request body"})
	}
	if msg := validateNewUser(req); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": msg})
	}

	user, err := h.Auth.AddUser(repository.NewUser{
		UserID:   req.UserID,
		Password: req.Password,
		Name:     req.Name,
		Email:    req.Email,
		Role:     req.Role,
		Plant:    &req.Plant,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "User ID already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "Registration failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": user})
}

func validateNewUser(req newUserReq) string {
	if req.UserID == "" || req.Password == "" || req.Name == "" || req.Email == "" {
		return "User ID, password, name, and email are required"
	}
	if !strings.Contains(req.Email, "@") {
		return "Invalid email address"
	}
	return ""
}
