package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/task-tracker-api/internal/auth"
	"github.com/yukikurage/task-tracker-api/internal/constants"
	apierrors "github.com/yukikurage/task-tracker-api/internal/errors"
	"github.com/yukikurage/task-tracker-api/internal/logger"
	"github.com/yukikurage/task-tracker-api/internal/metrics"
	"github.com/yukikurage/task-tracker-api/internal/models"
	"github.com/yukikurage/task-tracker-api/internal/repository"
	"gorm.io/gorm"
)

// Rejection reasons, used for logs and metrics only. Callers always see the
// same 401.
const (
	reasonMissingToken  = "missing_token"
	reasonTokenInvalid  = "token_invalid"
	reasonTokenExpired  = "token_expired"
	reasonTokenRevoked  = "token_revoked"
	reasonActorNotFound = "actor_not_found"
)

// RequireAuth authenticates the request from the access token cookie and
// stores the resolved user in the context. denylist may be nil.
func RequireAuth(tokens *auth.TokenService, users repository.UserRepository, denylist auth.Denylist) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(constants.AccessTokenCookieName)
		if err != nil || token == "" {
			reject(c, reasonMissingToken, nil)
			return
		}

		claims, err := tokens.Verify(token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				reject(c, reasonTokenExpired, err)
			} else {
				reject(c, reasonTokenInvalid, err)
			}
			return
		}

		if denylist != nil {
			revoked, err := denylist.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				logger.Get().Error().Err(err).Str("path", c.Request.URL.Path).Msg("denylist lookup failed")
				apierrors.ServiceUnavailable(c, "")
				return
			}
			if revoked {
				reject(c, reasonTokenRevoked, nil)
				return
			}
		}

		userID, _ := claims.SubjectID()
		user, err := users.FindByID(userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				reject(c, reasonActorNotFound, nil)
				return
			}
			logger.Get().Error().Err(err).Str("path", c.Request.URL.Path).Msg("failed to load user")
			apierrors.InternalError(c, "")
			return
		}

		c.Set(constants.ContextKeyUserID, user.ID)
		c.Set(constants.ContextKeyUser, user)
		c.Set(constants.ContextKeyTokenClaims, claims)
		c.Next()
	}
}

func reject(c *gin.Context, reason string, err error) {
	metrics.AuthRejectionsTotal.WithLabelValues(reason).Inc()

	event := logger.Get().Debug()
	if reason == reasonTokenInvalid || reason == reasonTokenRevoked {
		event = logger.Get().Warn()
	}
	event.Err(err).
		Str("reason", reason).
		Str("path", c.Request.URL.Path).
		Str("request_id", c.GetString(constants.ContextKeyRequestID)).
		Msg("request not authenticated")

	apierrors.Unauthorized(c, "")
}

// GetUserID retrieves the current user ID from context
func GetUserID(c *gin.Context) (uint64, bool) {
	userID, exists := c.Get(constants.ContextKeyUserID)
	if !exists {
		return 0, false
	}
	id, ok := userID.(uint64)
	return id, ok
}

// CurrentUser returns the authenticated user.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(constants.ContextKeyUser)
	if !exists {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

// CurrentClaims returns the verified claims of the request's token.
func CurrentClaims(c *gin.Context) (*auth.Claims, bool) {
	v, exists := c.Get(constants.ContextKeyTokenClaims)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
