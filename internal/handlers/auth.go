package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/task-tracker-api/internal/constants"
	"github.com/yukikurage/task-tracker-api/internal/dto"
	apierrors "github.com/yukikurage/task-tracker-api/internal/errors"
	"github.com/yukikurage/task-tracker-api/internal/middleware"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"github.com/yukikurage/task-tracker-api/internal/services"
)

// AuthHandler coordinates authentication-related HTTP handlers.
type AuthHandler struct {
	authService *services.AuthService
	cookies     CookieConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *services.AuthService, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		cookies:     cookies,
	}
}

// Register creates a new account.
func (h *AuthHandler) Register(c *gin.Context) {
	type RegisterRequest struct {
		Email    string      `json:"email" binding:"required,email,max=255"`
		Username string      `json:"username" binding:"required,max=100"`
		Password string      `json:"password" binding:"required,password"`
		Role     models.Role `json:"role" binding:"omitempty,userrole"`
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	user, err := h.authService.Register(services.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToUserDTO(*user))
}

// Login checks credentials and sets the access token cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	type LoginRequest struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}

	res, err := h.authService.Login(req.Email, req.Password)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	h.cookies.set(c, res.Token)
	c.JSON(http.StatusOK, dto.TokenResponse{AccessToken: res.Token})
}

// Refresh renews the session from the cookie, even when it has expired.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, err := c.Cookie(constants.AccessTokenCookieName)
	if err != nil || token == "" {
		apierrors.Unauthorized(c, "")
		return
	}

	fresh, _, err := h.authService.Refresh(c.Request.Context(), token)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	h.cookies.set(c, fresh)
	c.JSON(http.StatusOK, dto.TokenResponse{AccessToken: fresh})
}

// Logout clears the cookie and revokes the token when revocation is enabled.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := c.Cookie(constants.AccessTokenCookieName)
	if err := h.authService.Logout(c.Request.Context(), token); err != nil {
		internalError(c, err)
		return
	}

	h.cookies.clear(c)
	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}

// GetCurrentUser returns the authenticated user.
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	c.JSON(http.StatusOK, dto.ToUserDTO(*user))
}
