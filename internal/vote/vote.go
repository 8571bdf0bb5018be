package vote

import (
	"errors"
	"fmt"
)

// Kind is the vote a viewer casts on a post or comment.
type Kind string

const (
	Upvote   Kind = "upvote"
	Downvote Kind = "downvote"
)

var (
	ErrInvalidKind = errors.New("vote kind must be upvote or downvote")
	ErrEmptyID     = errors.New("entity id is required")
)

// ParseKind accepts the path segment used by the remote API.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Upvote, Downvote:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

func (k Kind) Valid() bool {
	return k == Upvote || k == Downvote
}

// State is the per-viewer vote state carried by every votable entity.
type State struct {
	LikesCount   int  `json:"likesCount"`
	HasUpvoted   bool `json:"hasUpvoted"`
	HasDownvoted bool `json:"hasDownvoted"`
}

// Toggle returns the state after the viewer casts k.
//
// Casting the active vote again retracts it; casting the opposite vote
// retracts the old one and applies the new one in a single step. A state
// with both flags set is treated as upvoted.
func (s State) Toggle(k Kind) State {
	switch k {
	case Upvote:
		switch {
		case s.HasUpvoted:
			return State{LikesCount: s.LikesCount - 1}
		case s.HasDownvoted:
			return State{LikesCount: s.LikesCount + 2, HasUpvoted: true}
		default:
			return State{LikesCount: s.LikesCount + 1, HasUpvoted: true}
		}
	case Downvote:
		switch {
		case s.HasUpvoted:
			return State{LikesCount: s.LikesCount - 2, HasDownvoted: true}
		case s.HasDownvoted:
			return State{LikesCount: s.LikesCount + 1}
		default:
			return State{LikesCount: s.LikesCount - 1, HasDownvoted: true}
		}
	}
	return s
}

// Votable is anything the viewer can vote on.
//
// WithVoteState must not modify the receiver; it returns a fresh value so
// cache consumers can detect the change by reference.
type Votable interface {
	VotableID() string
	VoteState() State
	WithVoteState(State) Votable
}

// Apply toggles k on v and returns the replacement entity.
func Apply(v Votable, k Kind) Votable {
	return v.WithVoteState(v.VoteState().Toggle(k))
}

// Intent is a single vote request. It only lives for one mutation.
type Intent struct {
	EntityID string
	Kind     Kind
}

func (i Intent) Validate() error {
	if i.EntityID == "" {
		return ErrEmptyID
	}
	if !i.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, string(i.Kind))
	}
	return nil
}

// Entity is a bare votable, used where no richer model is at hand.
type Entity struct {
	ID string `json:"id"`
	State
}

func (e *Entity) VotableID() string { return e.ID }

func (e *Entity) VoteState() State { return e.State }

func (e *Entity) WithVoteState(s State) Votable {
	cp := *e
	cp.State = s
	return &cp
}
