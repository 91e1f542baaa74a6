package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/task-tracker-api/internal/auth"
	apierrors "github.com/yukikurage/task-tracker-api/internal/errors"
	"github.com/yukikurage/task-tracker-api/internal/logger"
	"github.com/yukikurage/task-tracker-api/internal/policy"
	"github.com/yukikurage/task-tracker-api/internal/services"
)

var denialMessages = map[policy.Reason]string{
	policy.ReasonAdminRoleRequired:        "Admin role required",
	policy.ReasonSuperadminRoleRequired:   "Superadmin role required",
	policy.ReasonNotTaskAuthor:            "Access denied",
	policy.ReasonNotOwner:                 "Access denied",
	policy.ReasonEmailTaken:               "Email already registered",
	policy.ReasonUsernameTaken:            "Username already taken",
	policy.ReasonOwnRoleChange:            "Superadmin cannot change own role",
	policy.ReasonForeignPasswordChange:    "Superadmin cannot change other users' passwords",
	policy.ReasonCurrentPasswordIncorrect: "Current password is incorrect",
	policy.ReasonRoleNotSelectable:        "Role cannot be chosen at registration",
}

// respondDenied writes a policy denial and reports whether err was one.
// Uniqueness conflicts answer 400 to keep the documented status codes.
func respondDenied(c *gin.Context, err error) bool {
	var denied *policy.DeniedError
	if !errors.As(err, &denied) {
		return false
	}

	message, ok := denialMessages[denied.Decision.Reason]
	if !ok {
		message = "Access denied"
	}

	status := http.StatusForbidden
	switch denied.Decision.Kind {
	case policy.KindConflict, policy.KindInvalid:
		status = http.StatusBadRequest
	}

	apierrors.Respond(c, status, string(denied.Decision.Reason), message)
	return true
}

func respondAuthError(c *gin.Context, err error) {
	if respondDenied(c, err) {
		return
	}
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		apierrors.InvalidCredentials(c)
	case errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, services.ErrTokenRevoked):
		apierrors.Unauthorized(c, "Invalid token")
	case errors.Is(err, services.ErrUserNotFound):
		apierrors.NotFound(c, "User doesn't exist")
	case errors.Is(err, services.ErrDenylistUnavailable):
		apierrors.ServiceUnavailable(c, "Session store unavailable")
	default:
		internalError(c, err)
	}
}

func respondTaskError(c *gin.Context, err error) {
	if respondDenied(c, err) {
		return
	}
	switch {
	case errors.Is(err, services.ErrTaskNotFound):
		apierrors.NotFound(c, "Task doesn't exist")
	case errors.Is(err, services.ErrNoTasksFound):
		apierrors.NotFound(c, "No tasks found")
	case errors.Is(err, services.ErrAssigneeNotFound):
		apierrors.Unprocessable(c, "Assignee user doesn't exist")
	case errors.Is(err, services.ErrTaskTitleTaken):
		apierrors.Conflict(c, "Task title already exists")
	case errors.Is(err, services.ErrTitleRequired):
		apierrors.BadRequest(c, "Title is required")
	default:
		internalError(c, err)
	}
}

func internalError(c *gin.Context, err error) {
	logger.Get().Error().
		Err(err).
		Str("path", c.Request.URL.Path).
		Msg("unhandled error")
	apierrors.InternalError(c, "")
}

func invalidBody(c *gin.Context, err error) {
	if details := validationDetails(err); details != nil {
		apierrors.BadRequestWithDetails(c, "Invalid request body", details)
		return
	}
	apierrors.BadRequest(c, "Invalid request body")
}
