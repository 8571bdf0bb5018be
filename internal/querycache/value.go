package querycache

import (
	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
)

// Key identifies one cached query.
type Key string

func PostsKey() Key { return "posts" }

func PostKey(id string) Key { return Key("post:" + id) }

func CommentsKey(postID string) Key { return Key("comments:" + postID) }

func UserPostsKey(userID string) Key { return Key("user-posts:" + userID) }

// Shape is the discriminant of a cached Value.
type Shape string

const (
	ShapeSingle      Shape = "single"
	ShapePagedSingle Shape = "paged-single"
	ShapePagedList   Shape = "paged-list"
)

// Value is what a query key holds. The set of variants is closed:
// Single, PagedSingle and PagedList.
type Value interface {
	Shape() Shape
	sealed()
}

// Single holds one entity directly under the key.
type Single struct {
	Entity vote.Votable
}

// SinglePage is one page of a paginated query whose data is a single entity.
type SinglePage struct {
	Data       vote.Votable
	NextCursor string
}

// PagedSingle is a paginated query with one entity per page (comment threads).
type PagedSingle struct {
	Pages []SinglePage
}

// ListPage is one page of a paginated list.
type ListPage struct {
	Data       []vote.Votable
	NextCursor string
}

// PagedList is a paginated query with a list of entities per page (feeds).
type PagedList struct {
	Pages []ListPage
}

func (Single) Shape() Shape      { return ShapeSingle }
func (PagedSingle) Shape() Shape { return ShapePagedSingle }
func (PagedList) Shape() Shape   { return ShapePagedList }

func (Single) sealed()      {}
func (PagedSingle) sealed() {}
func (PagedList) sealed()   {}

// Find returns the entity with the given id, if the value holds one.
func Find(v Value, id string) (vote.Votable, bool) {
	switch v := v.(type) {
	case Single:
		if v.Entity != nil && v.Entity.VotableID() == id {
			return v.Entity, true
		}
	case PagedSingle:
		for _, p := range v.Pages {
			if p.Data != nil && p.Data.VotableID() == id {
				return p.Data, true
			}
		}
	case PagedList:
		for _, p := range v.Pages {
			for _, e := range p.Data {
				if e != nil && e.VotableID() == id {
					return e, true
				}
			}
		}
	}
	return nil, false
}
