package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emilythestrangee/reddit-clone/bff/internal/models"
	"github.com/emilythestrangee/reddit-clone/bff/internal/mutation"
	"github.com/emilythestrangee/reddit-clone/bff/internal/querycache"
	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Code)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// Client talks to the remote Reddit-clone API on behalf of one viewer.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// WithToken returns a client that authenticates as the token's owner.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

var _ mutation.Sender = (*Client)(nil)

// SendVote posts the vote to /<resource>/<kind>/<id>.
func (c *Client) SendVote(ctx context.Context, r mutation.Resource, intent vote.Intent) error {
	path := fmt.Sprintf("/%s/%s/%s", r, intent.Kind, url.PathEscape(intent.EntityID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// FetchPosts loads one page of the main feed.
func (c *Client) FetchPosts(ctx context.Context, cursor string) (*models.PostsPage, error) {
	var page models.PostsPage
	if err := c.do(ctx, http.MethodGet, "/posts", cursorQuery(cursor), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// FetchUserPosts loads one page of a user's posts.
func (c *Client) FetchUserPosts(ctx context.Context, userID, cursor string) (*models.PostsPage, error) {
	var page models.PostsPage
	path := "/user/" + url.PathEscape(userID) + "/posts"
	if err := c.do(ctx, http.MethodGet, path, cursorQuery(cursor), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) FetchPost(ctx context.Context, id string) (*models.Post, error) {
	var p models.Post
	if err := c.do(ctx, http.MethodGet, "/post/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FetchComments loads one page of a post's comment thread.
func (c *Client) FetchComments(ctx context.Context, postID, cursor string) (*models.CommentPage, error) {
	var page models.CommentPage
	path := "/comments/" + url.PathEscape(postID)
	if err := c.do(ctx, http.MethodGet, path, cursorQuery(cursor), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Fetchers adapted to the query cache shapes.

func (c *Client) PostsQuery(pages int) querycache.FetchFunc {
	return func(ctx context.Context) (querycache.Value, error) {
		return c.listPages(ctx, pages, func(ctx context.Context, cursor string) (*models.PostsPage, error) {
			return c.FetchPosts(ctx, cursor)
		})
	}
}

func (c *Client) UserPostsQuery(userID string, pages int) querycache.FetchFunc {
	return func(ctx context.Context) (querycache.Value, error) {
		return c.listPages(ctx, pages, func(ctx context.Context, cursor string) (*models.PostsPage, error) {
			return c.FetchUserPosts(ctx, userID, cursor)
		})
	}
}

func (c *Client) PostQuery(id string) querycache.FetchFunc {
	return func(ctx context.Context) (querycache.Value, error) {
		p, err := c.FetchPost(ctx, id)
		if err != nil {
			return nil, err
		}
		return querycache.Single{Entity: p}, nil
	}
}

func (c *Client) CommentsQuery(postID string, pages int) querycache.FetchFunc {
	return func(ctx context.Context) (querycache.Value, error) {
		var out querycache.PagedSingle
		cursor := ""
		for i := 0; i < max(pages, 1); i++ {
			page, err := c.FetchComments(ctx, postID, cursor)
			if err != nil {
				return nil, err
			}
			if page.Data != nil {
				out.Pages = append(out.Pages, querycache.SinglePage{Data: page.Data, NextCursor: page.NextCursor})
			}
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
		return out, nil
	}
}

func (c *Client) listPages(ctx context.Context, pages int, fetch func(context.Context, string) (*models.PostsPage, error)) (querycache.Value, error) {
	var out querycache.PagedList
	cursor := ""
	for i := 0; i < max(pages, 1); i++ {
		page, err := fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}
		items := make([]vote.Votable, 0, len(page.Data))
		for _, p := range page.Data {
			if p != nil {
				items = append(items, p)
			}
		}
		out.Pages = append(out.Pages, querycache.ListPage{Data: items, NextCursor: page.NextCursor})
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	return out, nil
}

func cursorQuery(cursor string) url.Values {
	if cursor == "" {
		return nil
	}
	return url.Values{"cursor": {cursor}}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, URL: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
