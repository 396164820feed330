package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), "redis://"+mr.Addr(), "sitefeed:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedisGetSet(t *testing.T) {
	t.Run("round trips a value under the prefix", func(t *testing.T) {
		r, mr := setupTestRedis(t)
		ctx := context.Background()

		require.NoError(t, r.Set(ctx, "https://c.biancheng.net/view/1.html", []byte(`{"title":"a"}`), time.Hour))

		got, ok, err := r.Get(ctx, "https://c.biancheng.net/view/1.html")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `{"title":"a"}`, string(got))
		assert.True(t, mr.Exists("sitefeed:https://c.biancheng.net/view/1.html"))
		assert.Equal(t, time.Hour, mr.TTL("sitefeed:https://c.biancheng.net/view/1.html"))
	})

	t.Run("missing key is a miss", func(t *testing.T) {
		r, _ := setupTestRedis(t)

		_, ok, err := r.Get(context.Background(), "absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("entries expire", func(t *testing.T) {
		r, mr := setupTestRedis(t)
		ctx := context.Background()

		require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))
		mr.FastForward(2 * time.Minute)

		_, ok, err := r.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("zero ttl persists", func(t *testing.T) {
		r, mr := setupTestRedis(t)
		ctx := context.Background()

		require.NoError(t, r.Set(ctx, "k", []byte("v"), 0))
		mr.FastForward(24 * time.Hour)

		_, ok, err := r.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestNewRedisErrors(t *testing.T) {
	t.Run("rejects malformed url", func(t *testing.T) {
		_, err := NewRedis(context.Background(), "://nope", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse redis url")
	})

	t.Run("fails when server is down", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := NewRedis(ctx, "redis://"+addr, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ping redis")
	})
}
