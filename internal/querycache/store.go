package querycache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Store is the query cache shared by readers and the vote pipeline.
type Store interface {
	Get(key Key) (Value, bool)
	Set(key Key, v Value)
	// Invalidate marks the key stale; the next Query serves the cached
	// value and refetches in the background.
	Invalidate(key Key)
	// Cancel drops any fetch for key that is still in flight. A fetch that
	// resolves after Cancel is discarded.
	Cancel(key Key)
	// Update replaces the value of key atomically with respect to other
	// Updates and fetch installs. The stale flag is left as it is.
	Update(key Key, fn UpdateFunc) error
}

// ErrConflict is returned by Update when the key kept changing underneath it.
var ErrConflict = errors.New("cache key changed concurrently")

// UpdateFunc maps the current value of a key (ok=false when absent) to its
// replacement. write=false leaves the key untouched. It may run more than
// once.
type UpdateFunc func(cur Value, ok bool) (next Value, write bool, err error)

// FetchFunc loads the authoritative value for a key from the remote API.
type FetchFunc func(ctx context.Context) (Value, error)

// Querier is a Store with a read-through path.
type Querier interface {
	Store
	Query(ctx context.Context, key Key, fetch FetchFunc) (Value, error)
}

type entry struct {
	value      Value
	stale      bool
	gen        uint64
	cancel     context.CancelFunc
	refetching bool
	updatedAt  time.Time
}

// MemoryStore keeps values in process. It never copies values, so
// identity of untouched entities survives patches and rollbacks.
type MemoryStore struct {
	mu             sync.Mutex
	entries        map[Key]*entry
	sf             singleflight.Group
	bg             sync.WaitGroup
	refetchTimeout time.Duration
	log            *slog.Logger
}

var _ Querier = (*MemoryStore)(nil)

func NewMemoryStore(refetchTimeout time.Duration, log *slog.Logger) *MemoryStore {
	if log == nil {
		log = slog.Default()
	}
	if refetchTimeout <= 0 {
		refetchTimeout = 10 * time.Second
	}
	return &MemoryStore{
		entries:        make(map[Key]*entry),
		refetchTimeout: refetchTimeout,
		log:            log,
	}
}

func (s *MemoryStore) entryLocked(key Key) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

func (s *MemoryStore) Get(key Key) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.value == nil {
		return nil, false
	}
	return e.value, true
}

func (s *MemoryStore) Set(key Key, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	e.value = v
	e.stale = false
	e.updatedAt = time.Now()
}

func (s *MemoryStore) Invalidate(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.stale = true
	}
}

func (s *MemoryStore) Cancel(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return
	}
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Update runs fn under the store lock. A write bumps the generation, so a
// fetch that started before it cannot overwrite it.
func (s *MemoryStore) Update(key Key, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur Value
	if e, ok := s.entries[key]; ok {
		cur = e.value
	}
	next, write, err := fn(cur, cur != nil)
	if err != nil || !write {
		return err
	}

	e := s.entryLocked(key)
	e.value = next
	e.gen++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.updatedAt = time.Now()
	return nil
}

// Stale reports whether key has been invalidated and not refetched yet.
func (s *MemoryStore) Stale(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	return ok && e.stale
}

func (s *MemoryStore) Query(ctx context.Context, key Key, fetch FetchFunc) (Value, error) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok && e.value != nil {
		v := e.value
		if e.stale && !e.refetching {
			e.refetching = true
			s.refetchLocked(key, fetch)
		}
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err := s.fetch(ctx, key, fetch)
	if !cancelledByWriter(ctx, err) {
		return v, err
	}
	if cur, ok := s.Get(key); ok {
		return cur, nil
	}
	return s.fetch(ctx, key, fetch)
}

// cancelledByWriter reports whether a read failed only because Cancel
// dropped its fetch while the reader itself was still waiting.
func cancelledByWriter(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) && ctx.Err() == nil
}

// Wait blocks until background refetches have finished.
func (s *MemoryStore) Wait() {
	s.bg.Wait()
}

func (s *MemoryStore) refetchLocked(key Key, fetch FetchFunc) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer func() {
			s.mu.Lock()
			if e, ok := s.entries[key]; ok {
				e.refetching = false
			}
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.refetchTimeout)
		defer cancel()

		if _, err := s.fetch(ctx, key, fetch); err != nil {
			s.log.Warn("background refetch failed", "key", key, "error", err)
		}
	}()
}

func (s *MemoryStore) fetch(ctx context.Context, key Key, fetch FetchFunc) (Value, error) {
	v, err, _ := s.sf.Do(string(key), func() (interface{}, error) {
		s.mu.Lock()
		e := s.entryLocked(key)
		gen := e.gen
		fctx, cancel := context.WithCancel(ctx)
		e.cancel = cancel
		s.mu.Unlock()
		defer cancel()

		v, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		return s.install(key, gen, v), nil
	})
	if err != nil {
		return nil, err
	}
	val, _ := v.(Value)
	return val, nil
}

// install stores a fetched value unless the key was cancelled meanwhile,
// and returns whatever the key holds afterwards.
func (s *MemoryStore) install(key Key, gen uint64, v Value) Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	if e.gen != gen {
		s.log.Debug("dropping cancelled fetch result", "key", key)
		if e.value != nil {
			return e.value
		}
		return v
	}
	e.value = v
	e.stale = false
	e.cancel = nil
	e.updatedAt = time.Now()
	return v
}
