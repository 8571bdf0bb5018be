package viewer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emilythestrangee/reddit-clone/bff/internal/api"
	"github.com/emilythestrangee/reddit-clone/bff/internal/mutation"
	"github.com/emilythestrangee/reddit-clone/bff/internal/querycache"
	"github.com/emilythestrangee/reddit-clone/bff/internal/session"
	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
	"github.com/emilythestrangee/reddit-clone/bff/internal/voter"
)

var _ mutation.Sender = (*Viewer)(nil)

// Viewer is the client-side state of one logged-in user (or of all
// anonymous visitors): its query cache and its vote pipeline.
type Viewer struct {
	ID       string
	Store    querycache.Querier
	Pipeline *mutation.Pipeline
	Tracker  *voter.Tracker

	mu       sync.Mutex
	token    string
	client   *api.Client
	lastSeen time.Time
}

// API returns the client authenticated as this viewer.
func (v *Viewer) API() *api.Client {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.client
}

// SendVote forwards to the current client, so a refreshed token is used
// by votes issued after the refresh.
func (v *Viewer) SendVote(ctx context.Context, r mutation.Resource, intent vote.Intent) error {
	return v.API().SendVote(ctx, r, intent)
}

func (v *Viewer) refresh(u *session.User, client *api.Client) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.token = u.Token
	v.client = client
}

func (v *Viewer) currentToken() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.token
}

func (v *Viewer) touch(now time.Time) {
	v.mu.Lock()
	v.lastSeen = now
	v.mu.Unlock()
}

func (v *Viewer) idleSince(now time.Time) time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return now.Sub(v.lastSeen)
}

// StoreFactory builds the query cache for a viewer id.
type StoreFactory func(viewerID string) querycache.Querier

// Registry hands out one Viewer per user id.
type Registry struct {
	api      *api.Client
	newStore StoreFactory
	ttl      time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	viewers   map[string]*Viewer
	anonymous *Viewer
}

func NewRegistry(client *api.Client, newStore StoreFactory, ttl time.Duration, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		api:      client,
		newStore: newStore,
		ttl:      ttl,
		log:      log,
		now:      time.Now,
		viewers:  make(map[string]*Viewer),
	}
	r.anonymous = r.build("anonymous", "", client)
	return r
}

func (r *Registry) build(id, token string, client *api.Client) *Viewer {
	v := &Viewer{
		ID:       id,
		Store:    r.newStore(id),
		Tracker:  voter.NewTracker(),
		token:    token,
		client:   client,
		lastSeen: r.now(),
	}
	v.Pipeline = mutation.NewPipeline(v.Store, v, r.log.With("viewer", id))
	return v
}

// Anonymous is the shared read-only viewer.
func (r *Registry) Anonymous() *Viewer {
	return r.anonymous
}

// For returns the viewer of u, creating it on first use. A refreshed token
// for an existing viewer replaces the one used towards the API.
func (r *Registry) For(u *session.User) *Viewer {
	if !u.LoggedIn() {
		return r.anonymous
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := u.ID()
	v, ok := r.viewers[id]
	switch {
	case !ok:
		v = r.build(id, u.Token, r.api.WithToken(u.Token))
		r.viewers[id] = v
		r.log.Debug("viewer created", "viewer", id)
	case v.currentToken() != u.Token:
		v.refresh(u, r.api.WithToken(u.Token))
	}
	v.touch(r.now())
	return v
}

// Len is the number of logged-in viewers held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.viewers)
}

// Sweep drops viewers idle for longer than the ttl.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, v := range r.viewers {
		if v.idleSince(now) > r.ttl && !v.Tracker.Busy() {
			delete(r.viewers, id)
			n++
		}
	}
	if n > 0 {
		r.log.Debug("viewers evicted", "count", n)
	}
	return n
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.ttl / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
