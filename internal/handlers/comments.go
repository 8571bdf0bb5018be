package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/reddit-clone/bff/internal/mutation"
	"github.com/emilythestrangee/reddit-clone/bff/internal/querycache"
	"github.com/emilythestrangee/reddit-clone/bff/internal/viewer"
)

type CommentHandler struct {
	viewers   *viewer.Registry
	feedPages int
}

func NewCommentHandler(viewers *viewer.Registry, feedPages int) *CommentHandler {
	return &CommentHandler{viewers: viewers, feedPages: feedPages}
}

// GetComments returns the comment thread of a post
func (h *CommentHandler) GetComments(c *gin.Context) {
	postID := c.Param("id")
	v, _ := viewerFor(c, h.viewers)
	query(c, v, querycache.CommentsKey(postID), v.API().CommentsQuery(postID, h.feedPages), "Post not found")
}

// VoteComment toggles off if same, switches if opposite
func (h *CommentHandler) VoteComment(c *gin.Context) {
	castVote(c, h.viewers, mutation.Comment, c.Param("commentId"), querycache.CommentsKey(c.Param("id")))
}
