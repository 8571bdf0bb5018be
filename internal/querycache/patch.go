package querycache

import (
	"errors"
	"fmt"

	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
)

var ErrUnknownShape = errors.New("unknown cache value shape")

// PatchFunc produces the replacement for a matched entity.
type PatchFunc func(vote.Votable) vote.Votable

// Patch replaces every entity whose id matches with fn(entity). Cursor
// pages can overlap, so an id may appear more than once.
//
// Everything that does not contain the match is returned by reference,
// so callers can rely on identity for unchanged pages and entities. A nil
// value, or a value without the id, comes back unchanged with found=false.
func Patch(v Value, id string, fn PatchFunc) (out Value, found bool, err error) {
	switch v := v.(type) {
	case nil:
		return nil, false, nil
	case Single:
		return patchSingle(v, id, fn)
	case PagedSingle:
		return patchPagedSingle(v, id, fn)
	case PagedList:
		return patchPagedList(v, id, fn)
	default:
		return v, false, fmt.Errorf("%w: %T", ErrUnknownShape, v)
	}
}

// ApplyVote is Patch with the vote toggle as the patch function.
func ApplyVote(v Value, intent vote.Intent) (Value, bool, error) {
	return Patch(v, intent.EntityID, func(e vote.Votable) vote.Votable {
		return vote.Apply(e, intent.Kind)
	})
}

func patchSingle(v Single, id string, fn PatchFunc) (Value, bool, error) {
	if v.Entity == nil || v.Entity.VotableID() != id {
		return v, false, nil
	}
	return Single{Entity: fn(v.Entity)}, true, nil
}

func patchPagedSingle(v PagedSingle, id string, fn PatchFunc) (Value, bool, error) {
	var pages []SinglePage
	for i, p := range v.Pages {
		if p.Data == nil || p.Data.VotableID() != id {
			continue
		}
		if pages == nil {
			pages = make([]SinglePage, len(v.Pages))
			copy(pages, v.Pages)
		}
		pages[i] = SinglePage{Data: fn(p.Data), NextCursor: p.NextCursor}
	}
	if pages == nil {
		return v, false, nil
	}
	return PagedSingle{Pages: pages}, true, nil
}

func patchPagedList(v PagedList, id string, fn PatchFunc) (Value, bool, error) {
	var pages []ListPage
	var copied []bool
	for i, p := range v.Pages {
		for j, e := range p.Data {
			if e == nil || e.VotableID() != id {
				continue
			}
			if pages == nil {
				pages = make([]ListPage, len(v.Pages))
				copy(pages, v.Pages)
				copied = make([]bool, len(v.Pages))
			}
			if !copied[i] {
				items := make([]vote.Votable, len(p.Data))
				copy(items, p.Data)
				pages[i] = ListPage{Data: items, NextCursor: p.NextCursor}
				copied[i] = true
			}
			pages[i].Data[j] = fn(e)
		}
	}
	if pages == nil {
		return v, false, nil
	}
	return PagedList{Pages: pages}, true, nil
}
