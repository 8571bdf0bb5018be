package querycache

import (
	"encoding/json"
	"fmt"

	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
)

// EntityCodec serialises the concrete entity types held in a cache.
type EntityCodec interface {
	EncodeEntity(vote.Votable) (json.RawMessage, error)
	DecodeEntity(json.RawMessage) (vote.Votable, error)
}

type envelope struct {
	Shape  Shape           `json:"shape"`
	Entity json.RawMessage `json:"entity,omitempty"`
	Pages  []pageEnvelope  `json:"pages,omitempty"`
}

type pageEnvelope struct {
	Data       json.RawMessage   `json:"data,omitempty"`
	Items      []json.RawMessage `json:"items,omitempty"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// Marshal encodes a Value with its shape tag.
func Marshal(v Value, c EntityCodec) ([]byte, error) {
	env := envelope{}
	switch v := v.(type) {
	case Single:
		env.Shape = ShapeSingle
		raw, err := c.EncodeEntity(v.Entity)
		if err != nil {
			return nil, err
		}
		env.Entity = raw
	case PagedSingle:
		env.Shape = ShapePagedSingle
		env.Pages = make([]pageEnvelope, 0, len(v.Pages))
		for _, p := range v.Pages {
			raw, err := c.EncodeEntity(p.Data)
			if err != nil {
				return nil, err
			}
			env.Pages = append(env.Pages, pageEnvelope{Data: raw, NextCursor: p.NextCursor})
		}
	case PagedList:
		env.Shape = ShapePagedList
		env.Pages = make([]pageEnvelope, 0, len(v.Pages))
		for _, p := range v.Pages {
			items := make([]json.RawMessage, 0, len(p.Data))
			for _, e := range p.Data {
				raw, err := c.EncodeEntity(e)
				if err != nil {
					return nil, err
				}
				items = append(items, raw)
			}
			env.Pages = append(env.Pages, pageEnvelope{Items: items, NextCursor: p.NextCursor})
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownShape, v)
	}
	return json.Marshal(env)
}

// Unmarshal decodes what Marshal produced.
func Unmarshal(b []byte, c EntityCodec) (Value, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode cache value: %w", err)
	}

	switch env.Shape {
	case ShapeSingle:
		e, err := c.DecodeEntity(env.Entity)
		if err != nil {
			return nil, err
		}
		return Single{Entity: e}, nil
	case ShapePagedSingle:
		pages := make([]SinglePage, 0, len(env.Pages))
		for _, p := range env.Pages {
			e, err := c.DecodeEntity(p.Data)
			if err != nil {
				return nil, err
			}
			pages = append(pages, SinglePage{Data: e, NextCursor: p.NextCursor})
		}
		return PagedSingle{Pages: pages}, nil
	case ShapePagedList:
		pages := make([]ListPage, 0, len(env.Pages))
		for _, p := range env.Pages {
			items := make([]vote.Votable, 0, len(p.Items))
			for _, raw := range p.Items {
				e, err := c.DecodeEntity(raw)
				if err != nil {
					return nil, err
				}
				items = append(items, e)
			}
			pages = append(pages, ListPage{Data: items, NextCursor: p.NextCursor})
		}
		return PagedList{Pages: pages}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownShape, env.Shape)
	}
}
