package models

import (
	"time"

	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
)

type Comment struct {
	ID              string    `json:"id"`
	Body            string    `json:"body"`
	AuthorID        string    `json:"authorId"`
	Author          User      `json:"author"`
	PostID          string    `json:"postId"`
	ParentCommentID *string   `json:"parentCommentId,omitempty"`
	LikesCount      int       `json:"likesCount"`
	HasUpvoted      bool      `json:"hasUpvoted"`
	HasDownvoted    bool      `json:"hasDownvoted"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (c *Comment) VotableID() string { return c.ID }

func (c *Comment) VoteState() vote.State {
	return vote.State{LikesCount: c.LikesCount, HasUpvoted: c.HasUpvoted, HasDownvoted: c.HasDownvoted}
}

func (c *Comment) WithVoteState(s vote.State) vote.Votable {
	cp := *c
	cp.LikesCount = s.LikesCount
	cp.HasUpvoted = s.HasUpvoted
	cp.HasDownvoted = s.HasDownvoted
	return &cp
}

// CommentPage is one page of a comment thread: a single top-level comment.
type CommentPage struct {
	Data       *Comment `json:"data"`
	NextCursor string   `json:"nextCursor,omitempty"`
}
