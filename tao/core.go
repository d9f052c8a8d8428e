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

// Package tao is the query router and orchestrator: the single public
// surface over the object/association graph, coordinating topology
// routing, the write-ahead log, the three-tier cache, and the inverse
// registry. Mutations run authorize -> WAL pending -> primary shard ->
// inverse shard -> WAL committed -> cache invalidation; reads run
// cache-aside.
package tao

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/taodb/tao/cache"
	taoerrors "github.com/taodb/tao/errors"
	"github.com/taodb/tao/id"
	"github.com/taodb/tao/inverse"
	"github.com/taodb/tao/metrics"
	"github.com/taodb/tao/topology"
	"github.com/taodb/tao/wal"
)

// Config configures the core's backoff/retry policy for
// ShardUnavailable and the per-shard id generator epoch.
type Config struct {
	MaxRetries      int           `json:"max_retries"`
	InitialBackoff  time.Duration `json:"initial_backoff"`
	MaxBackoff      time.Duration `json:"max_backoff"`
	IDEpochMS       int64         `json:"id_epoch_ms"`
	MaxRegressionMS int64         `json:"max_regression_ms"`
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 10 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	return c
}

// Core routes every request to its shard and drives the write path
// through the WAL. It holds no public fields; every entry point is a
// method taking the caller's viewer context first.
type Core struct {
	cfg Config

	topo  *topology.Topology
	log   *wal.Log
	cache *cache.Cache
	inv   *inverse.Registry

	genMu sync.Mutex
	gens  map[uint64]*id.Generator

	pickMu sync.Mutex
	pick   int
}

// New builds a Core over an already-opened topology, WAL, cache, and
// inverse registry. Each shard in topo gets its own id.Generator so
// ids minted for a shard always carry that shard's bits.
func New(topo *topology.Topology, log *wal.Log, c *cache.Cache, inv *inverse.Registry, cfg Config) (*Core, error) {
	cfg = cfg.withDefaults()
	core := &Core{cfg: cfg, topo: topo, log: log, cache: c, inv: inv, gens: make(map[uint64]*id.Generator)}

	for _, s := range topo.All() {
		gen, err := id.New(id.Config{ShardID: s.ID, EpochMS: cfg.IDEpochMS, MaxRegressionMS: cfg.MaxRegressionMS})
		if err != nil {
			return nil, err
		}
		core.gens[s.ID] = gen
	}
	return core, nil
}

// pickShard chooses which shard a brand-new object is assigned to,
// round-robining across the configured shards. Placement only matters
// at creation; afterwards the id itself carries the routing.
func (c *Core) pickShard() (*topology.Shard, error) {
	shards := c.topo.All()
	if len(shards) == 0 {
		return nil, taoerrors.ErrShardUnavailable
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].ID < shards[j].ID })
	c.pickMu.Lock()
	s := shards[c.pick%len(shards)]
	c.pick++
	c.pickMu.Unlock()
	return s, nil
}

func (c *Core) generatorFor(shardID uint64) (*id.Generator, error) {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	gen, ok := c.gens[shardID]
	if !ok {
		return nil, taoerrors.ErrShardUnavailable
	}
	return gen, nil
}

// withRetry retries op against shardID on ErrShardUnavailable with
// jittered exponential backoff up to cfg.MaxRetries retries
// (cfg.MaxRetries+1 attempts in all), surfacing the error once the
// ceiling is reached. Other error kinds
// pass straight through.
func (c *Core) withRetry(ctx context.Context, shardID uint64, op func() error) error {
	span := trace.SpanFromContext(ctx)
	backoff := c.cfg.InitialBackoff

	var err error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		err = op()
		if err == nil || !taoerrors.Is(err, taoerrors.ErrShardUnavailable) {
			return err
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		metrics.ShardRetries.WithLabelValues(strconv.FormatUint(shardID, 10)).Inc()
		span.Infof("shard unavailable, retrying (attempt %d/%d)", attempt+1, c.cfg.MaxRetries)

		jitter := time.Duration(rand.Int63n(int64(backoff) + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + jitter):
		}
		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}
	return err
}

func now() int64 { return time.Now().UnixMilli() }

// outcome classifies err into one of the label values CoreOps tracks.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case taoerrors.Is(err, taoerrors.ErrUnauthorized):
		return "unauthorized"
	case taoerrors.Is(err, taoerrors.ErrNotFound):
		return "not_found"
	case taoerrors.Is(err, taoerrors.ErrConflict):
		return "conflict"
	case taoerrors.Is(err, taoerrors.ErrShardUnavailable):
		return "shard_unavailable"
	case taoerrors.Is(err, taoerrors.ErrClockRegressionExceeded):
		return "clock_regression"
	case taoerrors.Is(err, taoerrors.ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "error"
	}
}

// track starts a CoreOpDuration observation for op and returns a
// finisher to call with the call's final error, incrementing CoreOps
// by outcome. Every public Core method calls this at its entry and
// calls the finisher with the error it is about to return.
func track(op string) func(err error) {
	start := time.Now()
	return func(err error) {
		metrics.CoreOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		metrics.CoreOps.WithLabelValues(op, outcome(err)).Inc()
	}
}
