package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/reddit-clone/bff/internal/middleware"
	"github.com/emilythestrangee/reddit-clone/bff/internal/models"
)

// AuthHandler exposes the session decoded from the caller's token.
// Login and registration happen against the remote API directly.
type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// GetMe returns the current authenticated user
func (h *AuthHandler) GetMe(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	c.JSON(http.StatusOK, models.Me{
		ID:       user.ID(),
		Username: user.Claims.Username,
		Email:    user.Claims.Email,
	})
}
