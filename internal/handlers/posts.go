package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/reddit-clone/bff/internal/mutation"
	"github.com/emilythestrangee/reddit-clone/bff/internal/querycache"
	"github.com/emilythestrangee/reddit-clone/bff/internal/viewer"
)

type PostHandler struct {
	viewers   *viewer.Registry
	feedPages int
}

func NewPostHandler(viewers *viewer.Registry, feedPages int) *PostHandler {
	return &PostHandler{viewers: viewers, feedPages: feedPages}
}

// GetPosts returns the main feed from the viewer's cache
func (h *PostHandler) GetPosts(c *gin.Context) {
	v, _ := viewerFor(c, h.viewers)
	query(c, v, querycache.PostsKey(), v.API().PostsQuery(h.feedPages), "Posts not found")
}

// GetPost returns a single post by ID
func (h *PostHandler) GetPost(c *gin.Context) {
	postID := c.Param("id")
	v, _ := viewerFor(c, h.viewers)
	query(c, v, querycache.PostKey(postID), v.API().PostQuery(postID), "Post not found")
}

// VotePost handles upvoting/downvoting a post.
// The post is patched in the feed, in its detail view and, with ?user=,
// in that author's feed.
func (h *PostHandler) VotePost(c *gin.Context) {
	postID := c.Param("id")
	keys := []querycache.Key{querycache.PostsKey(), querycache.PostKey(postID)}
	if author := c.Query("user"); author != "" {
		keys = append(keys, querycache.UserPostsKey(author))
	}
	castVote(c, h.viewers, mutation.Post, postID, keys...)
}
