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

package topology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	taoerrors "github.com/taodb/tao/errors"
	"github.com/taodb/tao/id"
	"github.com/taodb/tao/storage"
	"github.com/taodb/tao/util/limiter"
)

func newTestTopology(t *testing.T, cfg Config) *Topology {
	t.Helper()
	topo, err := New(cfg, func(shardID uint64, addr string) (storage.Engine, error) {
		return nil, nil
	})
	require.NoError(t, err)
	return topo
}

func TestTopology_RouteByShardBits(t *testing.T) {
	topo := newTestTopology(t, Config{
		ShardCount: 4,
		Endpoints:  []Endpoint{{ShardID: 0}, {ShardID: 1}, {ShardID: 2}, {ShardID: 3}},
	})

	gen, err := id.New(id.Config{ShardID: 2})
	require.NoError(t, err)
	v := gen.MustNextID()

	s, err := topo.Route(v)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.ID)
}

func TestTopology_UnknownShardIsUnavailable(t *testing.T) {
	topo := newTestTopology(t, Config{
		ShardCount: 2,
		Endpoints:  []Endpoint{{ShardID: 0}},
	})

	_, err := topo.ShardFor(1)
	assert.ErrorIs(t, err, taoerrors.ErrShardUnavailable)
}

func TestTopology_InvalidConfig(t *testing.T) {
	_, err := New(Config{ShardCount: 0}, nil)
	assert.Error(t, err)

	_, err = New(Config{ShardCount: int(id.MaxShard) + 2}, nil)
	assert.Error(t, err)
}

func TestShard_AdmissionSplitsReadsFromWrites(t *testing.T) {
	ctx := context.Background()
	topo := newTestTopology(t, Config{
		ShardCount: 1,
		Endpoints:  []Endpoint{{ShardID: 0}},
		Limit:      limiter.LimitConfig{ReadConcurrency: 1, WriteConcurrency: 1},
	})

	s, err := topo.ShardFor(0)
	require.NoError(t, err)

	require.NoError(t, s.AcquireRead(ctx))
	assert.ErrorIs(t, s.AcquireRead(ctx), taoerrors.ErrShardUnavailable)

	// a saturated read pool must not block writes
	require.NoError(t, s.AcquireWrite(ctx))
	s.ReleaseWrite()

	s.ReleaseRead()
	require.NoError(t, s.AcquireRead(ctx))
	s.ReleaseRead()

	st := s.LimitStatus()
	assert.Equal(t, 0, st.ReadRunning)
	assert.Equal(t, 0, st.WriteRunning)
}
