package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/reddit-clone/bff/internal/middleware"
	"github.com/emilythestrangee/reddit-clone/bff/internal/mutation"
	"github.com/emilythestrangee/reddit-clone/bff/internal/notify"
	"github.com/emilythestrangee/reddit-clone/bff/internal/querycache"
	"github.com/emilythestrangee/reddit-clone/bff/internal/session"
	"github.com/emilythestrangee/reddit-clone/bff/internal/viewer"
	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
	"github.com/emilythestrangee/reddit-clone/bff/internal/voter"
)

// Handler combines all handler types
type Handler struct {
	Auth    *AuthHandler
	Post    *PostHandler
	Comment *CommentHandler
	User    *UserHandler
	Vote    *VoteHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(viewers *viewer.Registry, feedPages int) *Handler {
	return &Handler{
		Auth:    NewAuthHandler(),
		Post:    NewPostHandler(viewers, feedPages),
		Comment: NewCommentHandler(viewers, feedPages),
		User:    NewUserHandler(viewers, feedPages),
		Vote:    NewVoteHandler(viewers),
	}
}

// viewerFor picks the cache of the caller, or the shared anonymous one.
func viewerFor(c *gin.Context, viewers *viewer.Registry) (*viewer.Viewer, *session.User) {
	user, _ := middleware.CurrentUser(c)
	return viewers.For(user), user
}

// castVote runs a vote for the caller and writes the response.
func castVote(c *gin.Context, viewers *viewer.Registry, r mutation.Resource, entityID string, keys ...querycache.Key) {
	v, user := viewerFor(c, viewers)

	var s session.Session = session.Anonymous
	if user != nil {
		s = user
	}
	notes := &notify.Collector{}
	vt := voter.New(s, notes, v.Pipeline, r, v.Tracker)

	// the vote settles even if the caller goes away
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := vt.Vote(ctx, entityID, c.Param("kind"), keys...)

	switch {
	case errors.Is(err, voter.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated", "notice": notes.Last()})
		return
	case errors.Is(err, vote.ErrInvalidKind), errors.Is(err, vote.ErrEmptyID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to vote"})
		return
	}

	body := gin.H{
		"mutation_id": res.ID.String(),
		"outcome":     res.Outcome,
	}
	if res.Err != nil {
		body["error"] = res.Err.Error()
	}
	for _, key := range keys {
		if val, ok := v.Store.Get(key); ok {
			if e, ok := querycache.Find(val, entityID); ok {
				body["vote"] = e.VoteState()
				break
			}
		}
	}
	c.JSON(http.StatusOK, body)
}

// query serves a cached query, fetching it from the API when needed.
func query(c *gin.Context, v *viewer.Viewer, key querycache.Key, fetch querycache.FetchFunc, notFound string) {
	val, err := v.Store.Query(c.Request.Context(), key, fetch)
	if err != nil {
		status, msg := upstreamError(err, notFound)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, render(val))
}
