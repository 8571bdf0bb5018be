package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/reddit-clone/bff/internal/api"
	"github.com/emilythestrangee/reddit-clone/bff/internal/querycache"
	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
)

type listPage struct {
	Data       []vote.Votable `json:"data"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

type singlePage struct {
	Data       vote.Votable `json:"data"`
	NextCursor string       `json:"nextCursor,omitempty"`
}

// render turns a cached value into the JSON the UI expects.
func render(v querycache.Value) interface{} {
	switch v := v.(type) {
	case querycache.Single:
		return v.Entity
	case querycache.PagedSingle:
		pages := make([]singlePage, 0, len(v.Pages))
		for _, p := range v.Pages {
			pages = append(pages, singlePage{Data: p.Data, NextCursor: p.NextCursor})
		}
		return gin.H{"pages": pages}
	case querycache.PagedList:
		pages := make([]listPage, 0, len(v.Pages))
		for _, p := range v.Pages {
			data := p.Data
			if data == nil {
				data = []vote.Votable{}
			}
			pages = append(pages, listPage{Data: data, NextCursor: p.NextCursor})
		}
		return gin.H{"pages": pages}
	default:
		return gin.H{"pages": []listPage{}}
	}
}

func upstreamError(err error, notFound string) (int, string) {
	var se *api.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusNotFound:
			return http.StatusNotFound, notFound
		case http.StatusUnauthorized:
			return http.StatusUnauthorized, "Unauthorized"
		}
	}
	return http.StatusBadGateway, "Upstream API unavailable"
}
