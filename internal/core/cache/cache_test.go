package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb), mr
}

func TestGetOrLoadJSON(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	var calls int32
	load := func(context.Context) (*item, error) {
		atomic.AddInt32(&calls, 1)
		return &item{ID: 1, Name: "alice"}, nil
	}

	got, err := GetOrLoadJSON(c, ctx, "user:1", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Name)

	got, err = GetOrLoadJSON(c, ctx, "user:1", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, uint(1), got.ID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second read is served from redis")
	assert.True(t, mr.Exists("user:1"))

	c.Invalidate(ctx, "user:1")
	assert.False(t, mr.Exists("user:1"))
	_, err = GetOrLoadJSON(c, ctx, "user:1", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrLoadErrorNotCached(t *testing.T) {
	c, mr := newTestCache(t)
	boom := errors.New("boom")
	_, err := GetOrLoadJSON(c, context.Background(), "k", time.Minute, func(context.Context) (*item, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("k"))
}

func TestGetOrLoadRedisDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()
	b, err := c.GetOrLoad(context.Background(), "k", time.Minute, func(context.Context) ([]byte, error) {
		return []byte("v"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "v", string(b))
}

func TestNewClientPing(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	rdb, err := NewClient(context.Background(), addr, "", 0)
	require.NoError(t, err)
	_ = rdb.Close()

	mr.Close()
	_, err = NewClient(context.Background(), addr, "", 0)
	assert.Error(t, err)
}

func TestGetOrLoadJSONStaleShape(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("user:9", `{"id":"not-a-number"}`))

	got, err := GetOrLoadJSON(c, context.Background(), "user:9", time.Minute, func(context.Context) (*item, error) {
		return &item{ID: 9, Name: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Name)

	cached, err := mr.Get("user:9")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":9,"name":"fresh"}`, cached)
}

func TestVersionedBump(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	k1, ok := c.Versioned(ctx, "user:1")
	require.True(t, ok)
	again, ok := c.Versioned(ctx, "user:1")
	require.True(t, ok)
	assert.Equal(t, k1, again)

	c.Bump(ctx, "user:1")
	k2, ok := c.Versioned(ctx, "user:1")
	require.True(t, ok)
	assert.NotEqual(t, k1, k2)

	// 代号被驱逐后重新播种，不会回到旧值
	mr.Del("gen:user:1")
	c.Bump(ctx, "user:1")
	k3, ok := c.Versioned(ctx, "user:1")
	require.True(t, ok)
	assert.NotContains(t, []string{k1, k2}, k3)

	mr.Close()
	_, ok = c.Versioned(ctx, "user:1")
	assert.False(t, ok)
}
