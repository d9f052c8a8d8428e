package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	taoerrors "github.com/taodb/tao/errors"
	"github.com/taodb/tao/kvstore"
	"github.com/taodb/tao/util"
)

func newTestEngine(t *testing.T) Engine {
	t.Helper()
	path, err := util.GenTmpPath()
	require.NoError(t, err)
	t.Cleanup(func() { _ = path })

	e, err := NewKVEngine(context.Background(), path, kvstore.Option{})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestEngine_ObjectLifecycle(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	require.NoError(t, e.PutObject(ctx, 1, "user", []byte("alice"), 100))

	obj, err := e.GetObject(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, obj)
	assert.Equal(t, "user", obj.Type)
	assert.Equal(t, []byte("alice"), obj.Data)
	assert.Equal(t, int64(100), obj.Created)

	err = e.PutObject(ctx, 1, "user", []byte("dup"), 200)
	assert.ErrorIs(t, err, taoerrors.ErrConflict)

	require.NoError(t, e.UpdateObject(ctx, 1, []byte("alice2"), 300))
	obj, err = e.GetObject(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("alice2"), obj.Data)
	assert.Equal(t, int64(100), obj.Created)
	assert.Equal(t, int64(300), obj.Updated)

	ok, err := e.DeleteObject(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	obj, err = e.GetObject(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, obj)
}

func TestEngine_AssocRangeOrdering(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	for i, tm := range []int64{100, 200, 300} {
		require.NoError(t, e.PutAssoc(ctx, Assoc{ID1: 1, Type: "like", ID2: uint64(10 + i), Time: tm, Updated: tm}))
	}

	all, err := e.RangeAssoc(ctx, 1, "like", 0, MaxTime, 0, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{300, 200, 100}, []int64{all[0].Time, all[1].Time, all[2].Time})

	windowed, err := e.RangeAssoc(ctx, 1, "like", 100, 300, 0, 10)
	require.NoError(t, err)
	require.Len(t, windowed, 2)
	assert.Equal(t, int64(300), windowed[0].Time)
	assert.Equal(t, int64(200), windowed[1].Time)

	count, err := e.CountAssoc(ctx, 1, "like")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestEngine_AssocUpsertRefreshesTime(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	require.NoError(t, e.PutAssoc(ctx, Assoc{ID1: 1, Type: "friend", ID2: 2, Time: 100, Updated: 100}))
	require.NoError(t, e.PutAssoc(ctx, Assoc{ID1: 1, Type: "friend", ID2: 2, Time: 500, Data: []byte("x"), Updated: 500}))

	got, err := e.GetAssoc(ctx, 1, "friend", 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(500), got.Time)
	assert.Equal(t, []byte("x"), got.Data)
	assert.Equal(t, int64(100), got.Created)

	count, err := e.CountAssoc(ctx, 1, "friend")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestEngine_DeleteAssoc(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	require.NoError(t, e.PutAssoc(ctx, Assoc{ID1: 1, Type: "friend", ID2: 2, Time: 100, Updated: 100}))
	ok, err := e.DeleteAssoc(ctx, 1, "friend", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := e.GetAssoc(ctx, 1, "friend", 2)
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err = e.DeleteAssoc(ctx, 1, "friend", 2)
	require.NoError(t, err)
	assert.False(t, ok)
}
