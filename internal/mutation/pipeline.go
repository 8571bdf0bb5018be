package mutation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/emilythestrangee/reddit-clone/bff/internal/querycache"
	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
)

// Resource is the remote API collection a vote goes to.
type Resource string

const (
	Post    Resource = "post"
	Comment Resource = "comment"
)

// Sender delivers a vote to the remote API. Any error is a failed vote.
type Sender interface {
	SendVote(ctx context.Context, r Resource, intent vote.Intent) error
}

type Outcome string

const (
	// Reconciled: the API accepted the vote; affected keys are stale.
	Reconciled Outcome = "reconciled"
	// RolledBack: the API call failed; the cache was restored.
	RolledBack Outcome = "rolled_back"
	// Rejected: nothing was sent and the cache is as before.
	Rejected Outcome = "rejected"
)

type Result struct {
	ID       uuid.UUID
	Resource Resource
	Intent   vote.Intent
	Outcome  Outcome
	Err      error
}

type captured struct {
	key querycache.Key
	// entity as it was before the patch, and the state the patch gave it
	entity     vote.Votable
	optimistic vote.State
}

// Snapshot is the pre-patch state of one mutation: the voted entity as it
// sat in every key the patch changed.
type Snapshot struct {
	ID       uuid.UUID
	entityID string
	entries  []captured
}

// Patched lists the keys the optimistic patch changed.
func (s Snapshot) Patched() []querycache.Key {
	var keys []querycache.Key
	for _, c := range s.entries {
		keys = append(keys, c.key)
	}
	return keys
}

// Pipeline applies a vote optimistically, sends it, and then either
// reconciles with the server or rolls the cache back.
//
// Cache phases of different mutations in this process never interleave;
// across processes each key is changed through Store.Update. The network
// phase runs outside the lock, so votes on different entities proceed
// independently and repeated votes on one entity are not serialised.
type Pipeline struct {
	store  querycache.Store
	sender Sender
	log    *slog.Logger
	mu     sync.Mutex
}

func NewPipeline(store querycache.Store, sender Sender, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{store: store, sender: sender, log: log}
}

// Prepare cancels in-flight reads of each key and installs the optimistic
// value, remembering the entity it replaced. Keys without a cached value
// or without the entity are left alone.
func (p *Pipeline) Prepare(intent vote.Intent, keys []querycache.Key) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{ID: uuid.New(), entityID: intent.EntityID}
	if err := intent.Validate(); err != nil {
		return snap, err
	}

	for _, key := range keys {
		p.store.Cancel(key)

		var c *captured
		err := p.store.Update(key, func(cur querycache.Value, ok bool) (querycache.Value, bool, error) {
			c = nil
			if !ok {
				return nil, false, nil
			}
			next, found, err := querycache.ApplyVote(cur, intent)
			if err != nil || !found {
				return nil, false, err
			}
			before, _ := querycache.Find(cur, intent.EntityID)
			after, _ := querycache.Find(next, intent.EntityID)
			c = &captured{key: key, entity: before, optimistic: after.VoteState()}
			return next, true, nil
		})
		if err != nil {
			p.restoreLocked(snap)
			return Snapshot{ID: snap.ID, entityID: snap.entityID}, err
		}
		if c != nil {
			snap.entries = append(snap.entries, *c)
		}
	}
	return snap, nil
}

// Reconcile marks every patched key stale so the next read refetches.
// The optimistic value stays visible until then.
func (p *Pipeline) Reconcile(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range snap.entries {
		p.store.Invalidate(c.key)
	}
}

// Rollback puts the voted entity back as it was in every patched key.
// Other entities in those keys keep whatever they hold now.
func (p *Pipeline) Rollback(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.restoreLocked(snap)
}

// restoreLocked swaps the captured entity back in where the entity still
// carries this mutation's optimistic state. If something else changed it
// since, the key is invalidated and the next read settles it.
func (p *Pipeline) restoreLocked(snap Snapshot) {
	for _, c := range snap.entries {
		diverged := false
		err := p.store.Update(c.key, func(cur querycache.Value, ok bool) (querycache.Value, bool, error) {
			diverged = false
			if !ok {
				return nil, false, nil
			}
			next, found, err := querycache.Patch(cur, snap.entityID, func(e vote.Votable) vote.Votable {
				if e.VoteState() != c.optimistic {
					diverged = true
					return e
				}
				return c.entity
			})
			if err != nil || !found || diverged {
				return nil, false, err
			}
			return next, true, nil
		})
		if err != nil || diverged {
			p.log.Warn("rollback could not restore, invalidating", "mutation", snap.ID, "key", c.key,
				"entity", snap.entityID, "error", err)
			p.store.Invalidate(c.key)
		}
	}
}

// Run executes one mutation end to end. Failures are reported in the
// Result and never returned as errors.
func (p *Pipeline) Run(ctx context.Context, r Resource, intent vote.Intent, keys []querycache.Key) Result {
	res := Result{Resource: r, Intent: intent}

	snap, err := p.Prepare(intent, keys)
	res.ID = snap.ID
	if err != nil {
		res.Outcome = Rejected
		res.Err = err
		p.log.Warn("vote rejected", "mutation", res.ID, "resource", r, "entity", intent.EntityID, "error", err)
		return res
	}
	p.log.Debug("vote optimistic", "mutation", res.ID, "resource", r, "entity", intent.EntityID,
		"kind", intent.Kind, "patched", len(snap.Patched()))

	if err := p.sender.SendVote(ctx, r, intent); err != nil {
		p.Rollback(snap)
		res.Outcome = RolledBack
		res.Err = err
		p.log.Warn("vote rolled back", "mutation", res.ID, "resource", r, "entity", intent.EntityID, "error", err)
		return res
	}

	p.Reconcile(snap)
	res.Outcome = Reconciled
	p.log.Debug("vote reconciled", "mutation", res.ID, "resource", r, "entity", intent.EntityID)
	return res
}
