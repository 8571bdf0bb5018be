package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/reddit-clone/bff/internal/viewer"
)

type VoteHandler struct {
	viewers *viewer.Registry
}

func NewVoteHandler(viewers *viewer.Registry) *VoteHandler {
	return &VoteHandler{viewers: viewers}
}

// GetPending tells a vote button whether to show itself as busy
func (h *VoteHandler) GetPending(c *gin.Context) {
	v, _ := viewerFor(c, h.viewers)
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "pending": v.Tracker.Pending(c.Param("id"))})
}
