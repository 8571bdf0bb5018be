package querycache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/emilythestrangee/reddit-clone/bff/internal/vote"
)

type entityCodec struct{}

func (entityCodec) EncodeEntity(v vote.Votable) (json.RawMessage, error) {
	return json.Marshal(v)
}

func (entityCodec) DecodeEntity(raw json.RawMessage) (vote.Votable, error) {
	var e vote.Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skip: redis container in short mode")
	}

	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("skip: docker not available: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("terminate redis: %v", err)
		}
	})

	addr, err := c.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestCodecKeepsShape(t *testing.T) {
	for _, v := range []Value{
		Single{Entity: entity("p1", 3, true, false)},
		PagedSingle{Pages: []SinglePage{{Data: entity("c1", 1, false, false), NextCursor: "x"}}},
		feed(),
	} {
		b, err := Marshal(v, entityCodec{})
		require.NoError(t, err)
		got, err := Unmarshal(b, entityCodec{})
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestRedisStore(t *testing.T) {
	rdb := startRedis(t)
	s := NewRedisStore(rdb, entityCodec{}, RedisOptions{Prefix: "viewer:7", TTL: time.Minute}, nil)

	t.Run("get set", func(t *testing.T) {
		_, ok := s.Get(PostsKey())
		assert.False(t, ok)

		s.Set(PostsKey(), feed())
		got, ok := s.Get(PostsKey())
		require.True(t, ok)
		assert.Equal(t, feed(), got)
	})

	t.Run("stale value served then refetched", func(t *testing.T) {
		key := PostKey("p1")
		s.Set(key, Single{Entity: entity("p1", 11, true, false)})
		s.Invalidate(key)
		require.True(t, s.Stale(key))

		var calls int32
		server := Single{Entity: entity("p1", 20, true, false)}
		v, err := s.Query(context.Background(), key, fixed(server, &calls))
		require.NoError(t, err)
		assert.Equal(t, 11, v.(Single).Entity.VoteState().LikesCount)

		s.Wait()
		assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
		got, _ := s.Get(key)
		assert.Equal(t, server, got)
		assert.False(t, s.Stale(key))
	})

	t.Run("cancel drops late result", func(t *testing.T) {
		key := CommentsKey("p1")
		release := make(chan struct{})
		started := make(chan struct{})

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = s.Query(context.Background(), key, func(ctx context.Context) (Value, error) {
				close(started)
				<-release
				return PagedSingle{Pages: []SinglePage{{Data: entity("c1", 50, false, false)}}}, nil
			})
		}()

		<-started
		s.Cancel(key)
		optimistic := PagedSingle{Pages: []SinglePage{{Data: entity("c1", 1, true, false)}}}
		s.Set(key, optimistic)
		close(release)
		<-done

		got, ok := s.Get(key)
		require.True(t, ok)
		assert.Equal(t, optimistic, got)
	})

	t.Run("cancel does not fail a cold reader", func(t *testing.T) {
		key := UserPostsKey("u1")
		started := make(chan struct{})
		var calls int32

		done := make(chan error)
		go func() {
			_, err := s.Query(context.Background(), key, blockedOnce(feed(), started, &calls))
			done <- err
		}()

		<-started
		s.Cancel(key)
		require.NoError(t, <-done)
		assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	})

	t.Run("updates from two processes do not lose patches", func(t *testing.T) {
		other := NewRedisStore(rdb, entityCodec{}, RedisOptions{Prefix: "viewer:7", TTL: time.Minute}, nil)
		key := PostsKey()
		s.Set(key, feed())
		s.Invalidate(key)

		var wg sync.WaitGroup
		for i, id := range []string{"p1", "p2", "p3", "p4"} {
			store := s
			if i%2 == 1 {
				store = other
			}
			wg.Add(1)
			go func(store *RedisStore, id string) {
				defer wg.Done()
				err := store.Update(key, func(cur Value, ok bool) (Value, bool, error) {
					next, _, err := ApplyVote(cur, vote.Intent{EntityID: id, Kind: vote.Upvote})
					return next, ok, err
				})
				assert.NoError(t, err)
			}(store, id)
		}
		wg.Wait()

		got, ok := s.Get(key)
		require.True(t, ok)
		for _, id := range []string{"p1", "p2", "p3", "p4"} {
			before, _ := Find(feed(), id)
			after, _ := Find(got, id)
			assert.Equal(t, vote.Apply(before, vote.Upvote).VoteState(), after.VoteState(), id)
		}
		assert.True(t, s.Stale(key))
	})
}
