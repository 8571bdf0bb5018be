package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/reddit-clone/bff/internal/querycache"
	"github.com/emilythestrangee/reddit-clone/bff/internal/viewer"
)

type UserHandler struct {
	viewers   *viewer.Registry
	feedPages int
}

func NewUserHandler(viewers *viewer.Registry, feedPages int) *UserHandler {
	return &UserHandler{viewers: viewers, feedPages: feedPages}
}

// GetUserPosts returns all posts by a specific user
func (h *UserHandler) GetUserPosts(c *gin.Context) {
	userID := c.Param("id")
	v, _ := viewerFor(c, h.viewers)
	query(c, v, querycache.UserPostsKey(userID), v.API().UserPostsQuery(userID, h.feedPages), "User not found")
}
