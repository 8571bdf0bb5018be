package voter

import (
	"context"
	"errors"
	"sync"

	"github.com/emilythestrangee/reddit-clone/bff/internal/mutation"
	"github.com/emilythestrangee/reddit-clone/bff/internal/notify"
	"github.com/emilythestrangee/reddit-clone/bff/internal/querycache"
	"github.com/emilythestrangee/reddit-clone/bff/internal/session"
	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
)

var ErrUnauthenticated = errors.New("must be logged in to vote")

// LoginNotice is shown when an anonymous viewer tries to vote.
const LoginNotice = "You must be logged in to vote"

// Voter is the entry point for vote clicks on one kind of entity.
type Voter struct {
	session  session.Session
	notifier notify.Notifier
	pipeline *mutation.Pipeline
	resource mutation.Resource
	tracker  *Tracker
}

func New(s session.Session, n notify.Notifier, p *mutation.Pipeline, r mutation.Resource, t *Tracker) *Voter {
	if s == nil {
		s = session.Anonymous
	}
	if n == nil {
		n = notify.Log{}
	}
	if t == nil {
		t = NewTracker()
	}
	return &Voter{session: s, notifier: n, pipeline: p, resource: r, tracker: t}
}

// Vote casts kind on entityID and patches the given query keys.
//
// Without a session the viewer is notified and nothing else happens. An
// unknown kind or empty id is rejected before the cache is touched.
func (v *Voter) Vote(ctx context.Context, entityID, kind string, keys ...querycache.Key) (mutation.Result, error) {
	if !v.session.LoggedIn() {
		v.notifier.Notify(LoginNotice)
		return mutation.Result{}, ErrUnauthenticated
	}

	k, err := vote.ParseKind(kind)
	if err != nil {
		return mutation.Result{}, err
	}
	intent := vote.Intent{EntityID: entityID, Kind: k}
	if err := intent.Validate(); err != nil {
		return mutation.Result{}, err
	}

	v.tracker.begin(entityID)
	defer v.tracker.end(entityID)

	return v.pipeline.Run(ctx, v.resource, intent, keys), nil
}

// Pending reports whether a vote on entityID is in flight.
func (v *Voter) Pending(entityID string) bool {
	return v.tracker.Pending(entityID)
}

// Tracker counts in-flight votes per entity. Voters of one viewer share it.
type Tracker struct {
	mu       sync.Mutex
	inflight map[string]int
}

func NewTracker() *Tracker {
	return &Tracker{inflight: make(map[string]int)}
}

func (t *Tracker) begin(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id]++
}

func (t *Tracker) end(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inflight[id] <= 1 {
		delete(t.inflight, id)
		return
	}
	t.inflight[id]--
}

func (t *Tracker) Pending(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflight[id] > 0
}

// Busy reports whether any vote is in flight.
func (t *Tracker) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) > 0
}
