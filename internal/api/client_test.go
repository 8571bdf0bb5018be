package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/reddit-clone/bff/internal/models"
	"github.com/emilythestrangee/reddit-clone/bff/internal/mutation"
	"github.com/emilythestrangee/reddit-clone/bff/internal/querycache"
	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
)

type recorded struct {
	mu    sync.Mutex
	votes []string
}

func (r *recorded) add(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votes = append(r.votes, v)
}

func (r *recorded) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.votes...)
}

func fakeAPI(t *testing.T) (*httptest.Server, *recorded) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	votes := &recorded{}

	r.POST("/:resource/:kind/:id", func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer tok" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if c.Param("id") == "gone" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
			return
		}
		votes.add(c.Param("resource") + "/" + c.Param("kind") + "/" + c.Param("id"))
		c.Status(http.StatusNoContent)
	})
	r.GET("/posts", func(c *gin.Context) {
		switch c.Query("cursor") {
		case "":
			c.JSON(http.StatusOK, models.PostsPage{Data: []*models.Post{{ID: "p1", LikesCount: 1}}, NextCursor: "2"})
		case "2":
			c.JSON(http.StatusOK, models.PostsPage{Data: []*models.Post{{ID: "p2", LikesCount: 2}}})
		}
	})
	r.GET("/post/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.Post{ID: c.Param("id"), Title: "hi", LikesCount: 5, HasUpvoted: true})
	})
	r.GET("/comments/:postId", func(c *gin.Context) {
		if c.Query("cursor") == "" {
			c.JSON(http.StatusOK, models.CommentPage{Data: &models.Comment{ID: "c1", PostID: c.Param("postId")}, NextCursor: "n"})
			return
		}
		c.JSON(http.StatusOK, models.CommentPage{Data: &models.Comment{ID: "c2", PostID: c.Param("postId")}})
	})
	r.GET("/user/:id/posts", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.PostsPage{Data: []*models.Post{{ID: "p9", AuthorID: c.Param("id")}}})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, votes
}

func TestSendVote(t *testing.T) {
	srv, votes := fakeAPI(t)
	c := NewClient(srv.URL+"/", time.Second).WithToken("tok")

	require.NoError(t, c.SendVote(context.Background(), mutation.Post, vote.Intent{EntityID: "p1", Kind: vote.Upvote}))
	require.NoError(t, c.SendVote(context.Background(), mutation.Comment, vote.Intent{EntityID: "c1", Kind: vote.Downvote}))
	assert.Equal(t, []string{"post/upvote/p1", "comment/downvote/c1"}, votes.all())
}

func TestSendVoteNon2xx(t *testing.T) {
	srv, _ := fakeAPI(t)

	err := NewClient(srv.URL, time.Second).SendVote(context.Background(), mutation.Post, vote.Intent{EntityID: "p1", Kind: vote.Upvote})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)

	err = NewClient(srv.URL, time.Second).WithToken("tok").SendVote(context.Background(), mutation.Post, vote.Intent{EntityID: "gone", Kind: vote.Upvote})
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Contains(t, se.Error(), "Post not found")
}

func TestSendVoteNetworkFailure(t *testing.T) {
	srv, _ := fakeAPI(t)
	addr := srv.URL
	srv.Close()

	err := NewClient(addr, time.Second).WithToken("tok").SendVote(context.Background(), mutation.Post, vote.Intent{EntityID: "p1", Kind: vote.Upvote})
	assert.Error(t, err)
}

func TestPostsQueryFollowsCursor(t *testing.T) {
	srv, _ := fakeAPI(t)
	c := NewClient(srv.URL, time.Second)

	v, err := c.PostsQuery(3)(context.Background())
	require.NoError(t, err)

	list := v.(querycache.PagedList)
	require.Len(t, list.Pages, 2)
	assert.Equal(t, "p1", list.Pages[0].Data[0].VotableID())
	assert.Equal(t, "2", list.Pages[0].NextCursor)
	assert.Equal(t, "p2", list.Pages[1].Data[0].VotableID())

	v, err = c.PostsQuery(1)(context.Background())
	require.NoError(t, err)
	assert.Len(t, v.(querycache.PagedList).Pages, 1)
}

func TestOtherQueries(t *testing.T) {
	srv, _ := fakeAPI(t)
	c := NewClient(srv.URL, time.Second)

	v, err := c.PostQuery("p7")(context.Background())
	require.NoError(t, err)
	assert.Equal(t, vote.State{LikesCount: 5, HasUpvoted: true}, v.(querycache.Single).Entity.VoteState())

	v, err = c.CommentsQuery("p7", 5)(context.Background())
	require.NoError(t, err)
	thread := v.(querycache.PagedSingle)
	require.Len(t, thread.Pages, 2)
	assert.Equal(t, "c2", thread.Pages[1].Data.VotableID())

	v, err = c.UserPostsQuery("u1", 1)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "p9", v.(querycache.PagedList).Pages[0].Data[0].VotableID())
}
