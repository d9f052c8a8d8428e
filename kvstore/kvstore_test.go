// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package kvstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCF = CF("graph")

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir(), &Option{
		ColumnFamily:    []CF{testCF},
		CreateIfMissing: true,
	})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetRaw(ctx, testCF, []byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetRaw(ctx, testCF, []byte("k"), []byte("v"), nil))
	got, err := s.GetRaw(ctx, testCF, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, s.Delete(ctx, testCF, []byte("k")))
	_, err = s.GetRaw(ctx, testCF, []byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ColumnFamiliesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetRaw(ctx, testCF, []byte("k"), []byte("v"), nil))
	_, err := s.GetRaw(ctx, "", []byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListByPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		key := []byte(fmt.Sprintf("a/%d", i))
		require.NoError(t, s.SetRaw(ctx, testCF, key, []byte{byte(i)}, nil))
	}
	require.NoError(t, s.SetRaw(ctx, testCF, []byte("b/0"), []byte("x"), nil))

	reader := s.List(ctx, testCF, []byte("a/"))
	defer reader.Close()

	var keys []string
	for {
		key, _, err := reader.ReadNextCopy()
		require.NoError(t, err)
		if key == nil {
			break
		}
		keys = append(keys, string(key))
	}
	assert.Equal(t, []string{"a/0", "a/1", "a/2", "a/3", "a/4"}, keys)
}

func TestStore_ListWholeFamily(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SetRaw(ctx, testCF, []byte("x"), []byte("1"), nil))
	require.NoError(t, s.SetRaw(ctx, testCF, []byte("y"), []byte("2"), nil))

	reader := s.List(ctx, testCF, nil)
	defer reader.Close()

	n := 0
	for {
		key, _, err := reader.ReadNextCopy()
		require.NoError(t, err)
		if key == nil {
			break
		}
		n++
	}
	assert.Equal(t, 2, n)
}

func TestStore_BatchWriteAndDeleteRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	batch := s.NewWriteBatch()
	batch.Put(testCF, []byte("r/1"), []byte("a"))
	batch.Put(testCF, []byte("r/2"), []byte("b"))
	batch.Put(testCF, []byte("r/3"), []byte("c"))
	require.NoError(t, s.Write(ctx, batch, nil))
	batch.Close()

	del := s.NewWriteBatch()
	del.DeleteRange(testCF, []byte("r/1"), []byte("r/3"))
	require.NoError(t, s.Write(ctx, del, nil))
	del.Close()

	_, err := s.GetRaw(ctx, testCF, []byte("r/1"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetRaw(ctx, testCF, []byte("r/2"))
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := s.GetRaw(ctx, testCF, []byte("r/3"))
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), got)
}

func TestStore_SyncWriteOption(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	wo := s.NewWriteOption()
	defer wo.Close()
	wo.SetSync(true)

	require.NoError(t, s.SetRaw(ctx, testCF, []byte("durable"), []byte("yes"), wo))
	got, err := s.GetRaw(ctx, testCF, []byte("durable"))
	require.NoError(t, err)
	assert.Equal(t, []byte("yes"), got)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir()

	s, err := Open(ctx, path, &Option{ColumnFamily: []CF{testCF}, CreateIfMissing: true})
	require.NoError(t, err)
	require.NoError(t, s.SetRaw(ctx, testCF, []byte("k"), []byte("v"), nil))
	require.NoError(t, s.FlushCF(ctx, testCF))
	s.Close()

	s2, err := Open(ctx, path, &Option{ColumnFamily: []CF{testCF}, CreateIfMissing: true})
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetRaw(ctx, testCF, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestOpen_EmptyPathRejected(t *testing.T) {
	_, err := Open(context.Background(), "", nil)
	assert.Error(t, err)
}
