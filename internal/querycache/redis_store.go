package querycache

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

type RedisOptions struct {
	// Prefix namespaces every key, normally one prefix per viewer.
	Prefix         string
	TTL            time.Duration
	OpTimeout      time.Duration
	RefetchTimeout time.Duration
}

// RedisStore keeps the query cache in Redis so several processes can
// serve the same viewer. Redis errors degrade to cache misses and are
// logged; the cache is never the source of truth.
type RedisStore struct {
	rdb   redis.UniversalClient
	codec EntityCodec
	opts  RedisOptions
	log   *slog.Logger

	sf         singleflight.Group
	bg         sync.WaitGroup
	mu         sync.Mutex
	cancels    map[Key]context.CancelFunc
	refetching map[Key]bool
}

var _ Querier = (*RedisStore)(nil)

func NewRedisStore(rdb redis.UniversalClient, codec EntityCodec, opts RedisOptions, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}
	if opts.Prefix == "" {
		opts.Prefix = "qc"
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Minute
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = time.Second
	}
	if opts.RefetchTimeout <= 0 {
		opts.RefetchTimeout = 10 * time.Second
	}
	return &RedisStore{
		rdb:        rdb,
		codec:      codec,
		opts:       opts,
		log:        log,
		cancels:    make(map[Key]context.CancelFunc),
		refetching: make(map[Key]bool),
	}
}

func (s *RedisStore) dataKey(k Key) string  { return s.opts.Prefix + ":data:" + string(k) }
func (s *RedisStore) staleKey(k Key) string { return s.opts.Prefix + ":stale:" + string(k) }
func (s *RedisStore) genKey(k Key) string   { return s.opts.Prefix + ":gen:" + string(k) }

func (s *RedisStore) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opts.OpTimeout)
}

func (s *RedisStore) Get(key Key) (Value, bool) {
	ctx, cancel := s.opContext()
	defer cancel()

	b, err := s.rdb.Get(ctx, s.dataKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	v, err := Unmarshal(b, s.codec)
	if err != nil {
		s.log.Warn("cache value unreadable", "key", key, "error", err)
		return nil, false
	}
	return v, true
}

func (s *RedisStore) Set(key Key, v Value) {
	b, err := Marshal(v, s.codec)
	if err != nil {
		s.log.Error("cache value not encodable", "key", key, "error", err)
		return
	}

	ctx, cancel := s.opContext()
	defer cancel()

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.dataKey(key), b, s.opts.TTL)
		pipe.Del(ctx, s.staleKey(key))
		return nil
	})
	if err != nil {
		s.log.Warn("cache set failed", "key", key, "error", err)
	}
}

func (s *RedisStore) Invalidate(key Key) {
	ctx, cancel := s.opContext()
	defer cancel()

	if err := s.rdb.Set(ctx, s.staleKey(key), 1, s.opts.TTL).Err(); err != nil {
		s.log.Warn("cache invalidate failed", "key", key, "error", err)
	}
}

func (s *RedisStore) Cancel(key Key) {
	s.mu.Lock()
	if c, ok := s.cancels[key]; ok {
		c()
		delete(s.cancels, key)
	}
	s.mu.Unlock()

	ctx, cancel := s.opContext()
	defer cancel()

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, s.genKey(key))
		pipe.Expire(ctx, s.genKey(key), s.opts.TTL)
		return nil
	})
	if err != nil {
		s.log.Warn("cache cancel failed", "key", key, "error", err)
	}
}

// Stale reports whether key has been invalidated and not refetched yet.
func (s *RedisStore) Stale(key Key) bool {
	ctx, cancel := s.opContext()
	defer cancel()

	n, err := s.rdb.Exists(ctx, s.staleKey(key)).Result()
	return err == nil && n > 0
}

func (s *RedisStore) Query(ctx context.Context, key Key, fetch FetchFunc) (Value, error) {
	if v, ok := s.Get(key); ok {
		if s.Stale(key) {
			s.refetch(key, fetch)
		}
		return v, nil
	}

	v, err := s.fetch(ctx, key, fetch)
	if !cancelledByWriter(ctx, err) {
		return v, err
	}
	if cur, ok := s.Get(key); ok {
		return cur, nil
	}
	return s.fetch(ctx, key, fetch)
}

const updateAttempts = 5

// Update watches the data key so that writers in other processes cannot
// interleave with fn. A write also bumps the generation, which makes any
// fetch started before it drop its result. Redis errors are logged and
// treated like a missing key.
func (s *RedisStore) Update(key Key, fn UpdateFunc) error {
	ctx, cancel := s.opContext()
	defer cancel()

	for i := 0; i < updateAttempts; i++ {
		var fnErr error
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			var cur Value
			b, err := tx.Get(ctx, s.dataKey(key)).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				if cur, err = Unmarshal(b, s.codec); err != nil {
					s.log.Warn("cache value unreadable", "key", key, "error", err)
					cur = nil
				}
			}

			next, write, err := fn(cur, cur != nil)
			if err != nil {
				fnErr = err
				return err
			}
			if !write {
				return nil
			}
			nb, err := Marshal(next, s.codec)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.dataKey(key), nb, s.opts.TTL)
				pipe.Incr(ctx, s.genKey(key))
				pipe.Expire(ctx, s.genKey(key), s.opts.TTL)
				return nil
			})
			return err
		}, s.dataKey(key))

		switch {
		case fnErr != nil:
			return fnErr
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			s.log.Warn("cache update failed", "key", key, "error", err)
			return nil
		}
	}
	return ErrConflict
}

// Wait blocks until background refetches have finished.
func (s *RedisStore) Wait() {
	s.bg.Wait()
}

func (s *RedisStore) refetch(key Key, fetch FetchFunc) {
	s.mu.Lock()
	if s.refetching[key] {
		s.mu.Unlock()
		return
	}
	s.refetching[key] = true
	s.mu.Unlock()

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.refetching, key)
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.RefetchTimeout)
		defer cancel()

		if _, err := s.fetch(ctx, key, fetch); err != nil {
			s.log.Warn("background refetch failed", "key", key, "error", err)
		}
	}()
}

func (s *RedisStore) generation(ctx context.Context, key Key) (uint64, error) {
	raw, err := s.rdb.Get(ctx, s.genKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (s *RedisStore) fetch(ctx context.Context, key Key, fetch FetchFunc) (Value, error) {
	v, err, _ := s.sf.Do(string(key), func() (interface{}, error) {
		gen, err := s.generation(ctx, key)
		if err != nil {
			s.log.Warn("cache generation unreadable", "key", key, "error", err)
		}

		fctx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancels[key] = cancel
		s.mu.Unlock()
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.cancels, key)
			s.mu.Unlock()
		}()

		v, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		return s.install(ctx, key, gen, v), nil
	})
	if err != nil {
		return nil, err
	}
	val, _ := v.(Value)
	return val, nil
}

func (s *RedisStore) install(ctx context.Context, key Key, gen uint64, v Value) Value {
	b, err := Marshal(v, s.codec)
	if err != nil {
		s.log.Error("cache value not encodable", "key", key, "error", err)
		return v
	}

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, s.genKey(key)).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return redis.TxFailedErr
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.dataKey(key), b, s.opts.TTL)
			pipe.Del(ctx, s.staleKey(key))
			return nil
		})
		return err
	}, s.genKey(key))

	switch {
	case err == nil:
		return v
	case errors.Is(err, redis.TxFailedErr):
		s.log.Debug("dropping cancelled fetch result", "key", key)
		if cur, ok := s.Get(key); ok {
			return cur
		}
		return v
	default:
		s.log.Warn("cache install failed", "key", key, "error", err)
		return v
	}
}
