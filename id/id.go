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

// Package id implements the snowflake-style 64-bit identifier scheme:
// [timestamp:42 | shard:10 | sequence:12].
package id

import (
	"sync"
	"time"

	taoerrors "github.com/taodb/tao/errors"
)

const (
	shardBits    = 10
	sequenceBits = 12

	MaxShard    = uint64(1)<<shardBits - 1
	maxSequence = uint64(1)<<sequenceBits - 1

	shardShift = sequenceBits
	timeShift  = sequenceBits + shardBits
)

// Config configures a single Generator instance.
type Config struct {
	ShardID uint64 `json:"shard_id"`
	EpochMS int64  `json:"epoch_ms"`

	// MaxRegressionMS bounds how far the wall clock is allowed to move
	// backwards before NextID gives up and returns ClockRegressionExceeded.
	// Zero means wait indefinitely.
	MaxRegressionMS int64 `json:"max_regression_ms"`
}

// Generator produces fresh, shard-aware, monotonic ids for a single
// shard. One Generator is owned by whichever process currently hosts
// writes for ShardID; it holds no shared state with other shards.
type Generator struct {
	cfg Config

	mu     sync.Mutex
	lastMS int64
	seq    uint64

	now func() int64
}

// New validates cfg and returns a ready-to-use Generator.
func New(cfg Config) (*Generator, error) {
	if cfg.ShardID > MaxShard {
		return nil, taoerrors.ErrInvalidShardId
	}
	return &Generator{
		cfg: cfg,
		now: func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// ShardOf extracts the shard id encoded into an identifier without any
// external lookup.
func ShardOf(v uint64) uint64 {
	return (v >> shardShift) & MaxShard
}

// TimestampOf extracts the millisecond timestamp (relative to epochMS)
// encoded into an identifier.
func TimestampOf(v uint64) uint64 {
	return v >> timeShift
}

// NextID mints a fresh id: the sequence bumps within a millisecond,
// resets on a new millisecond, and blocks across a clock regression
// rather than ever emitting an id from the past.
func (g *Generator) NextID() (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	if now < g.lastMS {
		regressed := g.lastMS - now
		if g.cfg.MaxRegressionMS > 0 && regressed > g.cfg.MaxRegressionMS {
			return 0, taoerrors.ErrClockRegressionExceeded
		}
		for now < g.lastMS {
			time.Sleep(time.Millisecond)
			now = g.now()
		}
	}

	if now == g.lastMS {
		g.seq = (g.seq + 1) & maxSequence
		if g.seq == 0 {
			// sequence exhausted within this millisecond: busy-wait for the
			// clock to advance rather than reuse a sequence number.
			for now <= g.lastMS {
				now = g.now()
			}
		}
	} else {
		g.seq = 0
	}
	g.lastMS = now

	ts := uint64(now - g.cfg.EpochMS)
	return (ts << timeShift) | (g.cfg.ShardID << shardShift) | g.seq, nil
}

// MustNextID is NextID for call sites that have already proven the
// generator cannot fail (tests, fixtures).
func (g *Generator) MustNextID() uint64 {
	v, err := g.NextID()
	if err != nil {
		panic(err)
	}
	return v
}
