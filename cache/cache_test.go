package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taodb/tao/storage"
)

func TestCache_ObjectCacheAside(t *testing.T) {
	c, err := New(Config{ObjectsCapacity: 10})
	require.NoError(t, err)

	_, ok := c.GetObject(1)
	assert.False(t, ok)

	c.FillObject(&storage.Object{ID: 1, Type: "user"})
	obj, ok := c.GetObject(1)
	require.True(t, ok)
	assert.Equal(t, "user", obj.Type)

	c.InvalidateObject(1)
	_, ok = c.GetObject(1)
	assert.False(t, ok)
}

func TestCache_ObjectTTLExpires(t *testing.T) {
	c, err := New(Config{ObjectsCapacity: 10, ObjectsTTL: time.Millisecond})
	require.NoError(t, err)

	fake := time.Now()
	c.now = func() time.Time { return fake }
	c.FillObject(&storage.Object{ID: 1})

	c.now = func() time.Time { return fake.Add(time.Hour) }
	_, ok := c.GetObject(1)
	assert.False(t, ok)
}

func TestCache_AssocGroupInvalidation(t *testing.T) {
	c, err := New(Config{AssocsCapacity: 10, CountsCapacity: 10})
	require.NoError(t, err)

	key := AssocListKey{ID1: 1, Type: "friend", TimeHi: storage.MaxTime, Limit: 10}
	c.FillAssocList(key, []*storage.Assoc{{ID1: 1, Type: "friend", ID2: 2}})
	c.FillCount(1, "friend", 1)

	_, ok := c.GetAssocList(key)
	require.True(t, ok)
	_, ok = c.GetCount(1, "friend")
	require.True(t, ok)

	c.InvalidateAssocGroup(1, "friend")

	_, ok = c.GetAssocList(key)
	assert.False(t, ok)
	_, ok = c.GetCount(1, "friend")
	assert.False(t, ok)
}

func TestCache_EvictionUntracksGroup(t *testing.T) {
	c, err := New(Config{AssocsCapacity: 1})
	require.NoError(t, err)

	k1 := AssocListKey{ID1: 1, Type: "friend", Limit: 1}
	k2 := AssocListKey{ID1: 2, Type: "friend", Limit: 1}
	c.FillAssocList(k1, nil)
	c.FillAssocList(k2, nil) // evicts k1 from a capacity-1 LRU

	assert.Empty(t, c.groups[k1.group()])
}
