package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/yukikurage/task-tracker-api/internal/dto"
	apierrors "github.com/yukikurage/task-tracker-api/internal/errors"
	"github.com/yukikurage/task-tracker-api/internal/middleware"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"github.com/yukikurage/task-tracker-api/internal/services"
	"github.com/yukikurage/task-tracker-api/internal/utils"
)

type UserHandler struct {
	userService *services.UserService
	cookies     CookieConfig
}

func NewUserHandler(userService *services.UserService, cookies CookieConfig) *UserHandler {
	return &UserHandler{
		userService: userService,
		cookies:     cookies,
	}
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,password"`
}

// UpdateMe edits the caller's own email and username, then logs them out.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req struct {
		Email    utils.Optional[string] `json:"email" binding:"-"`
		Username utils.Optional[string] `json:"username" binding:"-"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	if !validIdentity(c, req.Email, req.Username) {
		return
	}

	user, _ := middleware.CurrentUser(c)
	claims, _ := middleware.CurrentClaims(c)

	updated, err := h.userService.UpdateSelf(c.Request.Context(), user, claims, services.UpdateSelfInput{
		Email:    req.Email,
		Username: req.Username,
	})
	if err != nil {
		respondAuthError(c, err)
		return
	}

	h.cookies.clear(c)
	c.JSON(http.StatusOK, dto.ToUserDTO(*updated))
}

// UpdateUser lets a superadmin edit any account.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	targetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		apierrors.BadRequest(c, "Invalid user ID")
		return
	}

	var req struct {
		Email    utils.Optional[string]                `json:"email" binding:"-"`
		Username utils.Optional[string]                `json:"username" binding:"-"`
		Role     utils.Optional[models.Role]           `json:"role" binding:"-"`
		Password utils.Optional[passwordChangeRequest] `json:"password" binding:"-"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	if !validIdentity(c, req.Email, req.Username) {
		return
	}
	if req.Role.Set && !req.Role.Value.Valid() {
		apierrors.BadRequestWithDetails(c, "Invalid request body", map[string]string{"role": "userrole"})
		return
	}

	input := services.UpdateUserInput{
		Email:    req.Email,
		Username: req.Username,
		Role:     req.Role,
	}
	if req.Password.Set {
		if err := binding.Validator.ValidateStruct(req.Password.Value); err != nil {
			invalidBody(c, err)
			return
		}
		input.Password = utils.Some(services.PasswordChange{
			CurrentPassword: req.Password.Value.CurrentPassword,
			NewPassword:     req.Password.Value.NewPassword,
		})
	}

	actor, _ := middleware.CurrentUser(c)
	updated, err := h.userService.UpdateUser(actor, targetID, input)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToUserDTO(*updated))
}

// validIdentity validates email and username only when they were sent.
func validIdentity(c *gin.Context, email, username utils.Optional[string]) bool {
	if email.Set {
		if err := validateVar(email.Value, "required,email,max=255"); err != nil {
			apierrors.BadRequestWithDetails(c, "Invalid request body", map[string]string{"email": "email"})
			return false
		}
	}
	if username.Set {
		if err := validateVar(username.Value, "required,max=100"); err != nil {
			apierrors.BadRequestWithDetails(c, "Invalid request body", map[string]string{"username": "required"})
			return false
		}
	}
	return true
}
