package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/reddit-clone/bff/internal/session"
)

const userKey = "session_user"

// AuthMiddleware attaches the viewer's session when the request carries a
// valid bearer token. Requests without one continue as anonymous; the vote
// handlers decide what an anonymous viewer may do.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := session.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}

		user, err := session.FromToken(token, secret)
		if err != nil {
			c.Header("X-Session-Error", "invalid token")
			c.Next()
			return
		}

		c.Set(userKey, user)
		c.Set("user_id", user.Claims.UserID)
		c.Next()
	}
}

// CurrentUser returns the session attached by AuthMiddleware, if any.
func CurrentUser(c *gin.Context) (*session.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*session.User)
	return u, ok && u.LoggedIn()
}
