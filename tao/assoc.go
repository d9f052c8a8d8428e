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

package tao

import (
	"context"
	"encoding/json"

	"github.com/taodb/tao/cache"
	taoerrors "github.com/taodb/tao/errors"
	"github.com/taodb/tao/metrics"
	"github.com/taodb/tao/storage"
	"github.com/taodb/tao/topology"
	"github.com/taodb/tao/viewer"
)

func cacheKey(id1 uint64, typ string, timeLo, timeHi int64, offset, limit int) cache.AssocListKey {
	return cache.AssocListKey{ID1: id1, Type: typ, TimeLo: timeLo, TimeHi: timeHi, Offset: offset, Limit: limit}
}

// assocArgs is the WAL payload for assoc_add/assoc_delete, carrying
// enough to re-derive both the primary and (if any) inverse write
// during recovery replay.
type assocArgs struct {
	ID1  uint64 `json:"id1"`
	Type string `json:"type"`
	ID2  uint64 `json:"id2"`
	Time int64  `json:"time"`
	Data []byte `json:"data,omitempty"`
}

// AssocAdd upserts an edge, with time defaulting to now and the
// inverse maintained per the registry, all under one WAL record.
// timeOverride <= 0 means "use now".
func (c *Core) AssocAdd(ctx context.Context, vc *viewer.Context, id1 uint64, typ string, id2 uint64, timeOverride int64, data []byte) error {
	finish := track("assoc_add")
	err := c.assocAdd(ctx, vc, id1, typ, id2, timeOverride, data)
	finish(err)
	return err
}

func (c *Core) assocAdd(ctx context.Context, vc *viewer.Context, id1 uint64, typ string, id2 uint64, timeOverride int64, data []byte) error {
	if err := vc.Require(viewer.CapMutateOwn); err != nil {
		return err
	}
	if typ == "" {
		return taoerrors.ErrInvalidArgument
	}

	t := timeOverride
	n := now()
	if t <= 0 {
		t = n
	}

	args, err := json.Marshal(assocArgs{ID1: id1, Type: typ, ID2: id2, Time: t, Data: data})
	if err != nil {
		return err
	}
	rec, err := c.log.Append(ctx, "assoc_add", args)
	if err != nil {
		return err
	}

	if err := c.writeAssocPrimaryAndInverse(ctx, id1, typ, id2, t, data, n); err != nil {
		return err
	}

	if err := c.log.MarkStatus(ctx, rec, "committed"); err != nil {
		return err
	}

	c.invalidateAssocAndInverse(id1, typ, id2)
	return nil
}

// writeAssocPrimaryAndInverse executes the primary write on
// shard(id1), then the compensating inverse write on shard(id2) if the
// registry calls for one. It is shared by the live path and by crash
// recovery's replay, both of which must produce the same effect.
func (c *Core) writeAssocPrimaryAndInverse(ctx context.Context, id1 uint64, typ string, id2 uint64, t int64, data []byte, updated int64) error {
	primary, err := c.topo.Route(id1)
	if err != nil {
		return err
	}
	if err := c.withRetry(ctx, primary.ID, func() error {
		return putOnShard(ctx, primary, storage.Assoc{ID1: id1, Type: typ, ID2: id2, Time: t, Data: data, Updated: updated})
	}); err != nil {
		return err
	}

	invType, ok := c.inv.InverseOf(typ)
	if !ok {
		return nil
	}
	invShard, err := c.topo.Route(id2)
	if err != nil {
		return err
	}
	return c.withRetry(ctx, invShard.ID, func() error {
		return putOnShard(ctx, invShard, storage.Assoc{ID1: id2, Type: invType, ID2: id1, Time: t, Data: data, Updated: updated})
	})
}

func putOnShard(ctx context.Context, s *topology.Shard, a storage.Assoc) error {
	if err := s.AcquireWrite(ctx); err != nil {
		return err
	}
	defer s.ReleaseWrite()
	return s.Engine.PutAssoc(ctx, a)
}

func (c *Core) invalidateAssocAndInverse(id1 uint64, typ string, id2 uint64) {
	c.cache.InvalidateAssocGroup(id1, typ)
	if invType, ok := c.inv.InverseOf(typ); ok {
		c.cache.InvalidateAssocGroup(id2, invType)
	}
}

// AssocDelete removes the primary edge and, if registered, its
// inverse.
func (c *Core) AssocDelete(ctx context.Context, vc *viewer.Context, id1 uint64, typ string, id2 uint64) (bool, error) {
	finish := track("assoc_delete")
	ok, err := c.assocDelete(ctx, vc, id1, typ, id2)
	finish(err)
	return ok, err
}

func (c *Core) assocDelete(ctx context.Context, vc *viewer.Context, id1 uint64, typ string, id2 uint64) (bool, error) {
	if err := vc.Require(viewer.CapMutateOwn); err != nil {
		return false, err
	}

	args, err := json.Marshal(assocArgs{ID1: id1, Type: typ, ID2: id2})
	if err != nil {
		return false, err
	}
	rec, err := c.log.Append(ctx, "assoc_delete", args)
	if err != nil {
		return false, err
	}

	primary, err := c.topo.Route(id1)
	if err != nil {
		return false, err
	}

	var deleted bool
	delErr := c.withRetry(ctx, primary.ID, func() error {
		if aerr := primary.AcquireWrite(ctx); aerr != nil {
			return aerr
		}
		defer primary.ReleaseWrite()
		var ierr error
		deleted, ierr = primary.Engine.DeleteAssoc(ctx, id1, typ, id2)
		return ierr
	})
	if delErr != nil {
		return false, delErr
	}

	if invType, ok := c.inv.InverseOf(typ); ok {
		invShard, err := c.topo.Route(id2)
		if err != nil {
			return false, err
		}
		if err := c.withRetry(ctx, invShard.ID, func() error {
			if aerr := invShard.AcquireWrite(ctx); aerr != nil {
				return aerr
			}
			defer invShard.ReleaseWrite()
			_, ierr := invShard.Engine.DeleteAssoc(ctx, id2, invType, id1)
			return ierr
		}); err != nil {
			return false, err
		}
	}

	if err := c.log.MarkStatus(ctx, rec, "committed"); err != nil {
		return false, err
	}
	c.invalidateAssocAndInverse(id1, typ, id2)

	if !deleted {
		return false, nil
	}
	return true, nil
}

// AssocGet is a point lookup over a set of id2s against a single
// (id1,type); absent edges are simply omitted from the result.
func (c *Core) AssocGet(ctx context.Context, vc *viewer.Context, id1 uint64, typ string, id2s []uint64) ([]*storage.Assoc, error) {
	finish := track("assoc_get")
	out, err := c.assocGet(ctx, vc, id1, typ, id2s)
	finish(err)
	return out, err
}

func (c *Core) assocGet(ctx context.Context, vc *viewer.Context, id1 uint64, typ string, id2s []uint64) ([]*storage.Assoc, error) {
	if err := vc.Require(viewer.CapReadPublic); err != nil {
		return nil, err
	}

	shard, err := c.topo.Route(id1)
	if err != nil {
		return nil, err
	}

	out := make([]*storage.Assoc, 0, len(id2s))
	for _, id2 := range id2s {
		var a *storage.Assoc
		getErr := c.withRetry(ctx, shard.ID, func() error {
			if aerr := shard.AcquireRead(ctx); aerr != nil {
				return aerr
			}
			defer shard.ReleaseRead()
			var ierr error
			a, ierr = shard.Engine.GetAssoc(ctx, id1, typ, id2)
			return ierr
		})
		if getErr != nil {
			return nil, getErr
		}
		if a != nil {
			out = append(out, a)
		}
	}
	return out, nil
}

// AssocRange lists edges newest-first with offset/limit over the full
// history, cache-aside over the assoc-list tier.
func (c *Core) AssocRange(ctx context.Context, vc *viewer.Context, id1 uint64, typ string, offset, limit int) ([]*storage.Assoc, error) {
	finish := track("assoc_range")
	rows, err := c.assocRange(ctx, vc, id1, typ, 0, storage.MaxTime, offset, limit)
	finish(err)
	return rows, err
}

// AssocTimeRange lists edges in the half-open (timeLo,timeHi] window,
// newest-first, up to limit.
func (c *Core) AssocTimeRange(ctx context.Context, vc *viewer.Context, id1 uint64, typ string, timeHi, timeLo int64, limit int) ([]*storage.Assoc, error) {
	finish := track("assoc_time_range")
	rows, err := c.assocRange(ctx, vc, id1, typ, timeLo, timeHi, 0, limit)
	finish(err)
	return rows, err
}

func (c *Core) assocRange(ctx context.Context, vc *viewer.Context, id1 uint64, typ string, timeLo, timeHi int64, offset, limit int) ([]*storage.Assoc, error) {
	if err := vc.Require(viewer.CapReadPublic); err != nil {
		return nil, err
	}

	key := cacheKey(id1, typ, timeLo, timeHi, offset, limit)
	if rows, ok := c.cache.GetAssocList(key); ok {
		metrics.CacheResults.WithLabelValues("assoc_list", "hit").Inc()
		return rows, nil
	}
	metrics.CacheResults.WithLabelValues("assoc_list", "miss").Inc()

	shard, err := c.topo.Route(id1)
	if err != nil {
		return nil, err
	}

	var rows []*storage.Assoc
	rangeErr := c.withRetry(ctx, shard.ID, func() error {
		if aerr := shard.AcquireRead(ctx); aerr != nil {
			return aerr
		}
		defer shard.ReleaseRead()
		var ierr error
		rows, ierr = shard.Engine.RangeAssoc(ctx, id1, typ, timeLo, timeHi, offset, limit)
		return ierr
	})
	if rangeErr != nil {
		return nil, rangeErr
	}

	c.cache.FillAssocList(key, rows)
	return rows, nil
}

// AssocCount returns the number of edges under (id1,type), cache-aside
// over the count tier.
func (c *Core) AssocCount(ctx context.Context, vc *viewer.Context, id1 uint64, typ string) (int64, error) {
	finish := track("assoc_count")
	n, err := c.assocCount(ctx, vc, id1, typ)
	finish(err)
	return n, err
}

func (c *Core) assocCount(ctx context.Context, vc *viewer.Context, id1 uint64, typ string) (int64, error) {
	if err := vc.Require(viewer.CapReadPublic); err != nil {
		return 0, err
	}

	if n, ok := c.cache.GetCount(id1, typ); ok {
		metrics.CacheResults.WithLabelValues("count", "hit").Inc()
		return n, nil
	}
	metrics.CacheResults.WithLabelValues("count", "miss").Inc()

	shard, err := c.topo.Route(id1)
	if err != nil {
		return 0, err
	}

	var n int64
	countErr := c.withRetry(ctx, shard.ID, func() error {
		if aerr := shard.AcquireRead(ctx); aerr != nil {
			return aerr
		}
		defer shard.ReleaseRead()
		var ierr error
		n, ierr = shard.Engine.CountAssoc(ctx, id1, typ)
		return ierr
	})
	if countErr != nil {
		return 0, countErr
	}

	c.cache.FillCount(id1, typ, n)
	return n, nil
}
