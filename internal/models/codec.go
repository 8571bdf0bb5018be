package models

import (
	"encoding/json"
	"fmt"

	"github.com/emilythestrangee/reddit-clone/bff/internal/querycache"
	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
)

const (
	typePost    = "post"
	typeComment = "comment"
)

type tagged struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Codec encodes posts and comments for the Redis-backed query cache.
type Codec struct{}

var _ querycache.EntityCodec = Codec{}

func (Codec) EncodeEntity(v vote.Votable) (json.RawMessage, error) {
	var t string
	switch v.(type) {
	case *Post:
		t = typePost
	case *Comment:
		t = typeComment
	default:
		return nil, fmt.Errorf("cannot encode entity of type %T", v)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tagged{Type: t, Data: data})
}

func (Codec) DecodeEntity(raw json.RawMessage) (vote.Votable, error) {
	var t tagged
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	switch t.Type {
	case typePost:
		var p Post
		if err := json.Unmarshal(t.Data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case typeComment:
		var c Comment
		if err := json.Unmarshal(t.Data, &c); err != nil {
			return nil, err
		}
		return &c, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", t.Type)
	}
}
