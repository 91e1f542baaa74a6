package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/task-tracker-api/internal/constants"
)

// CookieConfig controls the attributes of the access token cookie.
type CookieConfig struct {
	Secure bool
	Domain string
}

// set writes a session cookie without Max-Age, so an expired token stays
// available to /auth/refresh.
func (cc CookieConfig) set(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(constants.AccessTokenCookieName, token, 0, "/", cc.Domain, cc.Secure, true)
}

func (cc CookieConfig) clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(constants.AccessTokenCookieName, "", -1, "/", cc.Domain, cc.Secure, true)
}
