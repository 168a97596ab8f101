package statestore_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/RubachokBoss/video-submission-checker/internal/statestore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store   statestore.Store
	advance func(time.Duration)
}

func backends(t *testing.T) map[string]func(t *testing.T) harness {
	return map[string]func(t *testing.T) harness{
		"memory": func(t *testing.T) harness {
			clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
			return harness{
				store:   statestore.NewMemoryStore(statestore.WithClock(clock.Now)),
				advance: clock.Advance,
			}
		},
		"redis": func(t *testing.T) harness {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return harness{
				store:   statestore.NewRedisStoreFromClient(client, zerolog.Nop()),
				advance: mr.FastForward,
			}
		},
	}
}

func TestStore_SetExistsGetExpire(t *testing.T) {
	for name, build := range backends(t) {
		t.Run(name, func(t *testing.T) {
			h := build(t)
			ctx := context.Background()

			require.NoError(t, h.store.Set(ctx, "user:1:file:abc", "1", time.Hour))

			ok, err := h.store.Exists(ctx, "user:1:file:abc")
			require.NoError(t, err)
			require.True(t, ok)

			value, found, err := h.store.Get(ctx, "user:1:file:abc")
			require.NoError(t, err)
			require.True(t, found)
			require.Equal(t, "1", value)

			_, found, err = h.store.Get(ctx, "user:1:file:missing")
			require.NoError(t, err)
			require.False(t, found)

			h.advance(time.Hour + time.Second)

			ok, err = h.store.Exists(ctx, "user:1:file:abc")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestStore_ListPushTrimExpire(t *testing.T) {
	for name, build := range backends(t) {
		t.Run(name, func(t *testing.T) {
			h := build(t)
			ctx := context.Background()
			key := "user:1:recent"

			for _, v := range []string{"1", "2", "3", "4"} {
				require.NoError(t, h.store.PushFront(ctx, key, v))
			}
			require.NoError(t, h.store.Trim(ctx, key, 3))
			require.NoError(t, h.store.Expire(ctx, key, time.Hour))

			items, err := h.store.ListRange(ctx, key)
			require.NoError(t, err)
			require.Equal(t, []string{"4", "3", "2"}, items)

			n, err := h.store.ListLen(ctx, key)
			require.NoError(t, err)
			require.Equal(t, 3, n)

			h.advance(59 * time.Minute)
			n, err = h.store.ListLen(ctx, key)
			require.NoError(t, err)
			require.Equal(t, 3, n)

			h.advance(2 * time.Minute)
			n, err = h.store.ListLen(ctx, key)
			require.NoError(t, err)
			require.Zero(t, n)
		})
	}
}

func TestStore_CommitAppliesAllOps(t *testing.T) {
	for name, build := range backends(t) {
		t.Run(name, func(t *testing.T) {
			h := build(t)
			ctx := context.Background()

			err := h.store.Commit(ctx,
				statestore.Set("a", "1", 24*time.Hour),
				statestore.Set("b", "1", 24*time.Hour),
				statestore.PushFront("l", "100"),
				statestore.Trim("l", 3),
				statestore.Expire("l", time.Hour),
			)
			require.NoError(t, err)

			for _, key := range []string{"a", "b", "l"} {
				ok, err := h.store.Exists(ctx, key)
				require.NoError(t, err)
				require.True(t, ok, key)
			}

			require.NoError(t, h.store.Commit(ctx,
				statestore.Delete("a"),
				statestore.ListRemove("l", "100"),
			))

			ok, err := h.store.Exists(ctx, "a")
			require.NoError(t, err)
			require.False(t, ok)

			n, err := h.store.ListLen(ctx, "l")
			require.NoError(t, err)
			require.Zero(t, n)
		})
	}
}

func TestStore_CommitRejectsInvalidOps(t *testing.T) {
	for name, build := range backends(t) {
		t.Run(name, func(t *testing.T) {
			h := build(t)
			ctx := context.Background()

			err := h.store.Commit(ctx,
				statestore.Set("a", "1", time.Hour),
				statestore.Trim("l", 0),
			)
			require.ErrorIs(t, err, statestore.ErrInvalidOp)

			ok, err := h.store.Exists(ctx, "a")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestMemoryStore_CommitIsAllOrNothing(t *testing.T) {
	injected := errors.New("connection reset")
	calls := 0
	store := statestore.NewMemoryStore(statestore.WithCommitHook(func(op statestore.Op) error {
		calls++
		if op.Kind == statestore.OpPushFront {
			return injected
		}
		return nil
	}))
	ctx := context.Background()

	err := store.Commit(ctx,
		statestore.Set("user:1:file:abc", "1", 24*time.Hour),
		statestore.Set("user:1:duration:10", "1", 24*time.Hour),
		statestore.PushFront("user:1:recent", "1714554000000"),
		statestore.Trim("user:1:recent", 3),
		statestore.Expire("user:1:recent", time.Hour),
	)
	require.ErrorIs(t, err, injected)
	require.Equal(t, 3, calls)

	for _, key := range []string{"user:1:file:abc", "user:1:duration:10", "user:1:recent"} {
		ok, err := store.Exists(ctx, key)
		require.NoError(t, err)
		require.False(t, ok, key)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store := statestore.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Exists(ctx, "k")
	require.ErrorIs(t, err, context.Canceled)

	err = store.Commit(ctx, statestore.Set("k", "1", time.Minute))
	require.ErrorIs(t, err, context.Canceled)

	ok, err := store.Exists(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStore_WrongType(t *testing.T) {
	store := statestore.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", "1", time.Minute))
	err := store.PushFront(ctx, "k", "x")
	require.ErrorIs(t, err, statestore.ErrWrongType)

	value, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1", value)
}
