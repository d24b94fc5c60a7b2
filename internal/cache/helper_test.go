package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	ID      uint   `json:"id"`
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewClient(mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewStore(rdb)
}

func TestStore_SetGetDelete(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetJSON(ctx, RequestKey(1), snapshot{ID: 1, Status: "open"}, time.Minute))
	assert.True(t, mr.Exists("request:1"))

	var got snapshot
	found, err := store.GetJSON(ctx, RequestKey(1), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "open", got.Status)

	require.NoError(t, store.Delete(ctx, RequestKey(1)))
	found, err = store.GetJSON(ctx, RequestKey(1), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_CacheAside(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *snapshot) func() error {
		return func() error {
			calls++
			*dest = snapshot{ID: 9, Status: "claimed", Version: 1}
			return nil
		}
	}

	var first snapshot
	require.NoError(t, store.CacheAside(ctx, RequestKey(9), &first, time.Minute, fetch(&first)))
	var second snapshot
	require.NoError(t, store.CacheAside(ctx, RequestKey(9), &second, time.Minute, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestStore_InvalidateDuringFetchSkipsFill(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	var stale snapshot
	err := store.CacheAside(ctx, RequestKey(4), &stale, time.Minute, func() error {
		stale = snapshot{ID: 4, Status: "open", Version: 0}
		// a writer commits and invalidates after the row was read
		return store.Invalidate(ctx, RequestKey(4))
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), stale.Version)
	assert.False(t, mr.Exists("request:4"))

	var fresh snapshot
	require.NoError(t, store.CacheAside(ctx, RequestKey(4), &fresh, time.Minute, func() error {
		fresh = snapshot{ID: 4, Status: "claimed", Version: 1}
		return nil
	}))
	assert.True(t, mr.Exists("request:4"))

	var cached snapshot
	found, err := store.GetJSON(ctx, RequestKey(4), &cached)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, fresh, cached)
}

func TestStore_InvalidateDropsValue(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetJSON(ctx, UserKey(2), snapshot{ID: 2}, time.Minute))
	require.NoError(t, store.Invalidate(ctx, UserKey(2)))
	assert.False(t, mr.Exists("user:2"))

	gen, err := mr.Get("user:2:gen")
	require.NoError(t, err)
	assert.Equal(t, "1", gen)
	assert.True(t, mr.TTL("user:2:gen") > 0)
}

func TestStore_CacheAsidePropagatesFetchError(t *testing.T) {
	_, store := newTestStore(t)
	boom := errors.New("boom")

	var dest snapshot
	err := store.CacheAside(context.Background(), RequestKey(3), &dest, time.Minute, func() error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestStore_NilClientIsNoop(t *testing.T) {
	store := NewStore(nil)
	ctx := context.Background()

	assert.NoError(t, store.SetJSON(ctx, "k", 1, time.Minute))
	var v int
	found, err := store.GetJSON(ctx, "k", &v)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, store.Delete(ctx, "k"))
	assert.NoError(t, store.Invalidate(ctx, "k"))

	calls := 0
	require.NoError(t, store.CacheAside(ctx, "k", &v, time.Minute, func() error { calls++; return nil }))
	assert.Equal(t, 1, calls)
}

func TestNewClient_ParsesURL(t *testing.T) {
	rdb, err := NewClient("redis://localhost:6390/2")
	require.NoError(t, err)
	defer rdb.Close()
	assert.Equal(t, "localhost:6390", rdb.Options().Addr)
	assert.Equal(t, 2, rdb.Options().DB)

	_, err = NewClient("redis://%zz")
	assert.Error(t, err)

}
