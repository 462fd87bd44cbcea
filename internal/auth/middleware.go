package auth

import (
	"strings"

	"github.com/demystify-app/demystify-api/internal/apierror"
	"github.com/demystify-app/demystify-api/internal/models"
	"github.com/gin-gonic/gin"
)

// Context keys set by RequireUser.
const (
	ContextUserKey   = "authUser"
	ContextUserIDKey = "userID"
)

// RequireUser resolves the bearer token to an active user and stores it in
// the gin context.
func RequireUser(svc *Service, debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			apierror.Respond(c, apierror.Unauthorized("Could not validate credentials"), debug)
			return
		}
		user, errAuth := svc.Authenticate(c.Request.Context(), token)
		if errAuth != nil {
			apierror.Respond(c, errAuth, debug)
			return
		}
		c.Set(ContextUserKey, user)
		c.Set(ContextUserIDKey, user.ID)
		c.Next()
	}
}

// RequireAdmin rejects users without the admin flag. It must run after RequireUser.
func RequireAdmin(debug bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			apierror.Respond(c, apierror.Unauthorized("Could not validate credentials"), debug)
			return
		}
		if !user.IsAdmin {
			apierror.Respond(c, apierror.Forbidden("Administrator permissions required"), debug)
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user stored by RequireUser, or nil.
func CurrentUser(c *gin.Context) *models.User {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
