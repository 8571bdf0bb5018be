package models

import (
	"time"

	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
)

// Post as served by the remote API, with the viewer's vote state.
type Post struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Image         string    `json:"image,omitempty"`
	AuthorID      string    `json:"authorId"`
	Author        User      `json:"author"`
	Community     string    `json:"community,omitempty"`
	CommentsCount int       `json:"commentsCount"`
	LikesCount    int       `json:"likesCount"`
	HasUpvoted    bool      `json:"hasUpvoted"`
	HasDownvoted  bool      `json:"hasDownvoted"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (p *Post) VotableID() string { return p.ID }

func (p *Post) VoteState() vote.State {
	return vote.State{LikesCount: p.LikesCount, HasUpvoted: p.HasUpvoted, HasDownvoted: p.HasDownvoted}
}

func (p *Post) WithVoteState(s vote.State) vote.Votable {
	cp := *p
	cp.LikesCount = s.LikesCount
	cp.HasUpvoted = s.HasUpvoted
	cp.HasDownvoted = s.HasDownvoted
	return &cp
}

// PostsPage is one page of a posts feed.
type PostsPage struct {
	Data       []*Post `json:"data"`
	NextCursor string  `json:"nextCursor,omitempty"`
}
