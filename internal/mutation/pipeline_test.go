package mutation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/reddit-clone/bff/internal/querycache"
	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
)

// fakeSender records calls and lets a test look at the cache while the
// request is "on the wire".
type fakeSender struct {
	mu     sync.Mutex
	err    error
	errFor map[string]error
	calls  []vote.Intent
	onSend func(vote.Intent)
}

func (f *fakeSender) SendVote(ctx context.Context, r Resource, intent vote.Intent) error {
	if f.onSend != nil {
		f.onSend(intent)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, intent)
	if err, ok := f.errFor[intent.EntityID]; ok {
		return err
	}
	return f.err
}

func (f *fakeSender) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func post(id string, likes int, up, down bool) *vote.Entity {
	return &vote.Entity{ID: id, State: vote.State{LikesCount: likes, HasUpvoted: up, HasDownvoted: down}}
}

func feed() querycache.PagedList {
	return querycache.PagedList{Pages: []querycache.ListPage{
		{Data: []vote.Votable{post("p1", 10, false, false), post("p2", 3, false, false)}, NextCursor: "c1"},
		{Data: []vote.Votable{post("p3", 1, true, false)}},
	}}
}

func likes(t *testing.T, s querycache.Store, key querycache.Key, id string) vote.State {
	t.Helper()
	v, ok := s.Get(key)
	require.True(t, ok)
	e, ok := querycache.Find(v, id)
	require.True(t, ok)
	return e.VoteState()
}

func TestRunReconciles(t *testing.T) {
	store := querycache.NewMemoryStore(time.Second, nil)
	store.Set(querycache.PostsKey(), feed())
	store.Set(querycache.PostKey("p1"), querycache.Single{Entity: post("p1", 10, false, false)})

	sender := &fakeSender{}
	var seen vote.State
	sender.onSend = func(vote.Intent) {
		seen = likes(t, store, querycache.PostsKey(), "p1")
	}

	p := NewPipeline(store, sender, nil)
	res := p.Run(context.Background(), Post, vote.Intent{EntityID: "p1", Kind: vote.Upvote},
		[]querycache.Key{querycache.PostsKey(), querycache.PostKey("p1")})

	assert.Equal(t, Reconciled, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, vote.State{LikesCount: 11, HasUpvoted: true}, seen, "optimistic value is installed before the request")

	assert.Equal(t, vote.State{LikesCount: 11, HasUpvoted: true}, likes(t, store, querycache.PostsKey(), "p1"))
	assert.Equal(t, vote.State{LikesCount: 11, HasUpvoted: true}, likes(t, store, querycache.PostKey("p1"), "p1"))
	assert.True(t, store.Stale(querycache.PostsKey()))
	assert.True(t, store.Stale(querycache.PostKey("p1")))
}

func TestRunRollsBackExactly(t *testing.T) {
	store := querycache.NewMemoryStore(time.Second, nil)
	before := feed()
	store.Set(querycache.PostsKey(), before)

	sender := &fakeSender{err: errors.New("502 bad gateway")}
	var during vote.State
	sender.onSend = func(vote.Intent) {
		during = likes(t, store, querycache.PostsKey(), "p1")
	}

	p := NewPipeline(store, sender, nil)
	res := p.Run(context.Background(), Post, vote.Intent{EntityID: "p1", Kind: vote.Upvote},
		[]querycache.Key{querycache.PostsKey()})

	assert.Equal(t, RolledBack, res.Outcome)
	assert.EqualError(t, res.Err, "502 bad gateway")
	assert.Equal(t, 11, during.LikesCount)

	after, ok := store.Get(querycache.PostsKey())
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, feed(), after)
	assert.Equal(t, vote.State{LikesCount: 10}, likes(t, store, querycache.PostsKey(), "p1"))
	assert.False(t, store.Stale(querycache.PostsKey()))
}

func TestRunAbsentKeyStaysAbsent(t *testing.T) {
	store := querycache.NewMemoryStore(time.Second, nil)
	sender := &fakeSender{}

	res := NewPipeline(store, sender, nil).Run(context.Background(), Comment,
		vote.Intent{EntityID: "c1", Kind: vote.Downvote}, []querycache.Key{querycache.CommentsKey("p1")})

	assert.Equal(t, Reconciled, res.Outcome)
	_, ok := store.Get(querycache.CommentsKey("p1"))
	assert.False(t, ok)
	assert.Equal(t, 1, sender.Calls())
}

func TestRunRejectsInvalidIntent(t *testing.T) {
	store := querycache.NewMemoryStore(time.Second, nil)
	store.Set(querycache.PostsKey(), feed())
	sender := &fakeSender{}

	res := NewPipeline(store, sender, nil).Run(context.Background(), Post,
		vote.Intent{EntityID: "p1", Kind: "sideways"}, []querycache.Key{querycache.PostsKey()})

	assert.Equal(t, Rejected, res.Outcome)
	assert.ErrorIs(t, res.Err, vote.ErrInvalidKind)
	assert.Zero(t, sender.Calls())
	assert.Equal(t, vote.State{LikesCount: 10}, likes(t, store, querycache.PostsKey(), "p1"))
}

type oddValue struct{ querycache.Single }

func TestRunUnknownShapeRestoresEarlierKeys(t *testing.T) {
	store := querycache.NewMemoryStore(time.Second, nil)
	store.Set(querycache.PostsKey(), feed())
	store.Set(querycache.PostKey("p1"), oddValue{})
	sender := &fakeSender{}

	res := NewPipeline(store, sender, nil).Run(context.Background(), Post,
		vote.Intent{EntityID: "p1", Kind: vote.Upvote},
		[]querycache.Key{querycache.PostsKey(), querycache.PostKey("p1")})

	assert.Equal(t, Rejected, res.Outcome)
	assert.ErrorIs(t, res.Err, querycache.ErrUnknownShape)
	assert.Zero(t, sender.Calls())
	assert.Equal(t, vote.State{LikesCount: 10}, likes(t, store, querycache.PostsKey(), "p1"))
}

func TestConcurrentVotesOnDifferentEntities(t *testing.T) {
	store := querycache.NewMemoryStore(time.Second, nil)
	store.Set(querycache.PostsKey(), feed())

	release := make(chan struct{})
	sender := &fakeSender{onSend: func(vote.Intent) { <-release }}
	p := NewPipeline(store, sender, nil)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i, id := range []string{"p1", "p2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i] = p.Run(context.Background(), Post, vote.Intent{EntityID: id, Kind: vote.Upvote},
				[]querycache.Key{querycache.PostsKey()})
		}(i, id)
	}

	require.Eventually(t, func() bool {
		return likes(t, store, querycache.PostsKey(), "p1").HasUpvoted &&
			likes(t, store, querycache.PostsKey(), "p2").HasUpvoted
	}, time.Second, 5*time.Millisecond)

	close(release)
	wg.Wait()

	assert.Equal(t, Reconciled, results[0].Outcome)
	assert.Equal(t, Reconciled, results[1].Outcome)
	assert.NotEqual(t, results[0].ID, results[1].ID)
	assert.Equal(t, 11, likes(t, store, querycache.PostsKey(), "p1").LikesCount)
	assert.Equal(t, 4, likes(t, store, querycache.PostsKey(), "p2").LikesCount)
}

func TestFailedVoteKeepsConcurrentSuccess(t *testing.T) {
	store := querycache.NewMemoryStore(time.Second, nil)
	store.Set(querycache.PostsKey(), feed())

	release := make(chan struct{})
	sender := &fakeSender{
		errFor: map[string]error{"p1": errors.New("503 service unavailable")},
		onSend: func(i vote.Intent) {
			if i.EntityID == "p1" {
				<-release
			}
		},
	}
	p := NewPipeline(store, sender, nil)

	failed := make(chan Result)
	go func() {
		failed <- p.Run(context.Background(), Post, vote.Intent{EntityID: "p1", Kind: vote.Upvote},
			[]querycache.Key{querycache.PostsKey()})
	}()
	require.Eventually(t, func() bool {
		return likes(t, store, querycache.PostsKey(), "p1").HasUpvoted
	}, time.Second, 5*time.Millisecond)

	ok := p.Run(context.Background(), Post, vote.Intent{EntityID: "p2", Kind: vote.Upvote},
		[]querycache.Key{querycache.PostsKey()})
	require.Equal(t, Reconciled, ok.Outcome)

	close(release)
	res := <-failed
	assert.Equal(t, RolledBack, res.Outcome)

	assert.Equal(t, vote.State{LikesCount: 10}, likes(t, store, querycache.PostsKey(), "p1"))
	assert.Equal(t, vote.State{LikesCount: 4, HasUpvoted: true}, likes(t, store, querycache.PostsKey(), "p2"))
	assert.True(t, store.Stale(querycache.PostsKey()), "the accepted vote still gets refetched")
}

func TestRollbackAfterOverlappingVoteOnSameEntity(t *testing.T) {
	store := querycache.NewMemoryStore(time.Second, nil)
	store.Set(querycache.PostsKey(), feed())
	p := NewPipeline(store, &fakeSender{}, nil)

	snap, err := p.Prepare(vote.Intent{EntityID: "p1", Kind: vote.Upvote}, []querycache.Key{querycache.PostsKey()})
	require.NoError(t, err)

	// a second click switches to a downvote and is accepted before the first fails
	res := p.Run(context.Background(), Post, vote.Intent{EntityID: "p1", Kind: vote.Downvote},
		[]querycache.Key{querycache.PostsKey()})
	require.Equal(t, Reconciled, res.Outcome)
	require.Equal(t, vote.State{LikesCount: 9, HasDownvoted: true}, likes(t, store, querycache.PostsKey(), "p1"))

	p.Rollback(snap)

	assert.Equal(t, vote.State{LikesCount: 9, HasDownvoted: true}, likes(t, store, querycache.PostsKey(), "p1"),
		"a rollback does not undo a later vote")
	assert.Equal(t, vote.State{LikesCount: 3}, likes(t, store, querycache.PostsKey(), "p2"))
	assert.True(t, store.Stale(querycache.PostsKey()))
}
