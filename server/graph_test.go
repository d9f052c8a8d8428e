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

package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taodb/tao/cache"
	"github.com/taodb/tao/inverse"
	"github.com/taodb/tao/kvstore"
	"github.com/taodb/tao/storage"
	"github.com/taodb/tao/tao"
	"github.com/taodb/tao/topology"
	"github.com/taodb/tao/util"
	"github.com/taodb/tao/viewer"
	"github.com/taodb/tao/wal"
)

func newTestServer(t *testing.T) (*Server, *viewer.Context) {
	t.Helper()
	ctx := context.Background()

	topoCfg := topology.Config{
		ShardCount: 2,
		Endpoints:  []topology.Endpoint{{ShardID: 0}, {ShardID: 1}},
	}
	topo, err := topology.New(topoCfg, func(shardID uint64, addr string) (storage.Engine, error) {
		path, err := util.GenTmpPath()
		require.NoError(t, err)
		return storage.NewKVEngine(ctx, path, kvstore.Option{})
	})
	require.NoError(t, err)
	t.Cleanup(func() { topo.Close(ctx) })

	walLog, err := wal.OpenTemp(ctx)
	require.NoError(t, err)
	t.Cleanup(walLog.Close)

	c, err := cache.New(cache.Config{})
	require.NoError(t, err)

	inv, err := inverse.New([]inverse.Entry{{Type: "friend", Policy: inverse.Self}})
	require.NoError(t, err)

	core, err := tao.New(topo, walLog, c, inv, tao.Config{})
	require.NoError(t, err)

	vc := viewer.New(1, false, nil, []viewer.Capability{viewer.CapMutateOwn, viewer.CapReadPublic}, core)
	return &Server{cfg: Config{MaxGraphUsers: 50}, core: core}, vc
}

func TestWalkGraph_BoundedBFS(t *testing.T) {
	ctx := context.Background()
	srv, vc := newTestServer(t)

	a, err := srv.core.ObjAdd(ctx, vc, "user", []byte("alice"))
	require.NoError(t, err)
	b, err := srv.core.ObjAdd(ctx, vc, "user", []byte("bob"))
	require.NoError(t, err)
	c, err := srv.core.ObjAdd(ctx, vc, "user", []byte("carol"))
	require.NoError(t, err)

	require.NoError(t, srv.core.AssocAdd(ctx, vc, a, "friend", b, 0, nil))
	require.NoError(t, srv.core.AssocAdd(ctx, vc, b, "friend", c, 0, nil))

	httpSrv := &HttpServer{Server: srv}
	nodes, edges, err := httpSrv.walkGraph(ctx, vc, []uint64{a}, 50)
	require.NoError(t, err)

	gotIDs := make(map[uint64]bool)
	for _, n := range nodes {
		gotIDs[n.ID] = true
	}
	assert.True(t, gotIDs[a])
	assert.True(t, gotIDs[b])
	assert.True(t, gotIDs[c])
	assert.NotEmpty(t, edges)
}

func TestWalkGraph_RespectsMaxUsers(t *testing.T) {
	ctx := context.Background()
	srv, vc := newTestServer(t)

	a, err := srv.core.ObjAdd(ctx, vc, "user", []byte("alice"))
	require.NoError(t, err)
	b, err := srv.core.ObjAdd(ctx, vc, "user", []byte("bob"))
	require.NoError(t, err)
	require.NoError(t, srv.core.AssocAdd(ctx, vc, a, "friend", b, 0, nil))

	httpSrv := &HttpServer{Server: srv}
	nodes, _, err := httpSrv.walkGraph(ctx, vc, []uint64{a}, 1)
	require.NoError(t, err)
	assert.Len(t, nodes, 1)
}
