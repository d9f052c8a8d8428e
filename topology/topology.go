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

// Package topology implements the static shard table and routing
// function: a deterministic, lookup-free mapping from an id's embedded
// shard bits to the back end that owns that shard, plus a bounded
// per-shard admission pool.
package topology

import (
	"context"

	taoerrors "github.com/taodb/tao/errors"
	"github.com/taodb/tao/id"
	"github.com/taodb/tao/storage"
	"github.com/taodb/tao/util/limiter"
)

// Endpoint describes one shard's physical back end.
type Endpoint struct {
	ShardID uint64 `json:"shard_id"`
	Addr    string `json:"addr"`
}

// Config holds the shard count and the address table.
type Config struct {
	ShardCount int        `json:"shard_count"`
	Endpoints  []Endpoint `json:"shard_endpoints"`

	// Limit bounds concurrent in-flight storage operations and the
	// operation rate against a single shard's connection pool, split by
	// read and write. Zero fields leave that dimension unlimited.
	Limit limiter.LimitConfig `json:"limit_per_shard"`
}

// Shard bundles a shard's storage engine with its admission-controlled
// connection pool.
type Shard struct {
	ID     uint64
	Addr   string
	Engine storage.Engine

	pool limiter.Limiter
}

// AcquireRead admits one more in-flight read against this shard,
// blocking on the op-rate throttle first and returning
// ShardUnavailable if the pool is saturated or ctx expires.
func (s *Shard) AcquireRead(ctx context.Context) error {
	if err := s.pool.WaitRead(ctx); err != nil {
		return taoerrors.ErrShardUnavailable
	}
	if err := s.pool.AcquireRead(); err != nil {
		return taoerrors.ErrShardUnavailable
	}
	return nil
}

// ReleaseRead returns an admitted read slot to the pool.
func (s *Shard) ReleaseRead() {
	s.pool.ReleaseRead()
}

// AcquireWrite admits one more in-flight write against this shard,
// blocking on the op-rate throttle first and returning
// ShardUnavailable if the pool is saturated or ctx expires.
func (s *Shard) AcquireWrite(ctx context.Context) error {
	if err := s.pool.WaitWrite(ctx); err != nil {
		return taoerrors.ErrShardUnavailable
	}
	if err := s.pool.AcquireWrite(); err != nil {
		return taoerrors.ErrShardUnavailable
	}
	return nil
}

// ReleaseWrite returns an admitted write slot to the pool.
func (s *Shard) ReleaseWrite() {
	s.pool.ReleaseWrite()
}

// LimitStatus reports the pool's current admission state, for the
// stats endpoint.
func (s *Shard) LimitStatus() limiter.Status {
	return s.pool.Status()
}

// Topology is the static shard table, keyed by shard id. It is built once at
// startup from Config and never mutates membership afterward; objects
// never move between shards.
type Topology struct {
	shards map[uint64]*Shard
}

// EngineFactory constructs the storage engine backing a single shard.
// Supplying this as a function keeps Topology ignorant of how a
// shard's engine is opened.
type EngineFactory func(shardID uint64, addr string) (storage.Engine, error)

// New builds a Topology from cfg, opening one storage engine per
// configured endpoint via factory.
func New(cfg Config, factory EngineFactory) (*Topology, error) {
	if cfg.ShardCount <= 0 || cfg.ShardCount > int(id.MaxShard)+1 {
		return nil, taoerrors.ErrInvalidArgument
	}

	t := &Topology{shards: make(map[uint64]*Shard, len(cfg.Endpoints))}
	for _, ep := range cfg.Endpoints {
		if ep.ShardID > id.MaxShard {
			return nil, taoerrors.ErrInvalidShardId
		}
		engine, err := factory(ep.ShardID, ep.Addr)
		if err != nil {
			return nil, err
		}

		t.shards[ep.ShardID] = &Shard{
			ID:     ep.ShardID,
			Addr:   ep.Addr,
			Engine: engine,
			pool:   limiter.NewLimiter(cfg.Limit),
		}
	}
	return t, nil
}

// Route resolves the shard that owns objID from the shard bits encoded
// into the id itself.
func (t *Topology) Route(objID uint64) (*Shard, error) {
	return t.ShardFor(id.ShardOf(objID))
}

// ShardFor looks a shard up by its numeric id directly, used when the
// caller already knows the shard (e.g. routing an inverse write by
// id2's shard).
func (t *Topology) ShardFor(shardID uint64) (*Shard, error) {
	s, ok := t.shards[shardID]
	if !ok {
		return nil, taoerrors.ErrShardUnavailable
	}
	return s, nil
}

// All returns every shard, in no particular order, for fan-out
// operations and administrative walks.
func (t *Topology) All() []*Shard {
	out := make([]*Shard, 0, len(t.shards))
	for _, s := range t.shards {
		out = append(out, s)
	}
	return out
}

// Close shuts down every shard's storage engine.
func (t *Topology) Close(ctx context.Context) {
	for _, s := range t.shards {
		s.Engine.Close()
	}
}
