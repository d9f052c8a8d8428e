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

	taoerrors "github.com/taodb/tao/errors"
	"github.com/taodb/tao/metrics"
	"github.com/taodb/tao/storage"
	"github.com/taodb/tao/viewer"
	"golang.org/x/sync/errgroup"
)

// objArgs is the WAL payload for obj_add/obj_update/obj_delete.
type objArgs struct {
	ShardID uint64 `json:"shard_id"`
	ID      uint64 `json:"id"`
	Type    string `json:"type,omitempty"`
	Data    []byte `json:"data,omitempty"`
}

func toViewerObject(o *storage.Object) viewer.Object {
	return viewer.Object{ID: o.ID, Type: o.Type, Data: o.Data, Created: o.Created, Updated: o.Updated}
}

// ObjAdd creates a new object: a shard is chosen, an id is minted on
// that shard's generator so the id's shard bits match where the row
// lives, and the row is persisted through the pending/committed WAL
// sequence.
func (c *Core) ObjAdd(ctx context.Context, vc *viewer.Context, typ string, data []byte) (uint64, error) {
	finish := track("obj_add")
	newID, err := c.objAdd(ctx, vc, typ, data)
	finish(err)
	return newID, err
}

func (c *Core) objAdd(ctx context.Context, vc *viewer.Context, typ string, data []byte) (uint64, error) {
	if err := vc.Require(viewer.CapMutateOwn); err != nil {
		return 0, err
	}
	if typ == "" {
		return 0, taoerrors.ErrInvalidArgument
	}

	shard, err := c.pickShard()
	if err != nil {
		return 0, err
	}
	gen, err := c.generatorFor(shard.ID)
	if err != nil {
		return 0, err
	}
	newID, err := gen.NextID()
	if err != nil {
		return 0, err
	}

	args, err := json.Marshal(objArgs{ShardID: shard.ID, ID: newID, Type: typ, Data: data})
	if err != nil {
		return 0, err
	}
	rec, err := c.log.Append(ctx, "obj_add", args)
	if err != nil {
		return 0, err
	}

	putErr := c.withRetry(ctx, shard.ID, func() error {
		if aerr := shard.AcquireWrite(ctx); aerr != nil {
			return aerr
		}
		defer shard.ReleaseWrite()
		return shard.Engine.PutObject(ctx, newID, typ, data, now())
	})
	if putErr != nil {
		return 0, putErr
	}

	if err := c.log.MarkStatus(ctx, rec, "committed"); err != nil {
		return 0, err
	}
	return newID, nil
}

// ObjGet reads one object: cache first, storage on miss, filling the
// cache on the way back.
func (c *Core) ObjGet(ctx context.Context, vc *viewer.Context, id uint64) (viewer.Object, bool, error) {
	finish := track("obj_get")
	obj, ok, err := c.objGet(ctx, vc, id)
	finish(err)
	return obj, ok, err
}

func (c *Core) objGet(ctx context.Context, vc *viewer.Context, id uint64) (viewer.Object, bool, error) {
	if err := vc.Require(viewer.CapReadPublic); err != nil {
		return viewer.Object{}, false, err
	}

	if obj, ok := c.cache.GetObject(id); ok {
		metrics.CacheResults.WithLabelValues("object", "hit").Inc()
		return toViewerObject(obj), true, nil
	}
	metrics.CacheResults.WithLabelValues("object", "miss").Inc()

	shard, err := c.topo.Route(id)
	if err != nil {
		return viewer.Object{}, false, err
	}

	var obj *storage.Object
	getErr := c.withRetry(ctx, shard.ID, func() error {
		if aerr := shard.AcquireRead(ctx); aerr != nil {
			return aerr
		}
		defer shard.ReleaseRead()
		var ierr error
		obj, ierr = shard.Engine.GetObject(ctx, id)
		return ierr
	})
	if getErr != nil {
		return viewer.Object{}, false, getErr
	}
	if obj == nil {
		return viewer.Object{}, false, nil
	}

	c.cache.FillObject(obj)
	return toViewerObject(obj), true, nil
}

// ObjUpdate replaces an object's payload. A missing id is NotFound,
// not an empty success.
func (c *Core) ObjUpdate(ctx context.Context, vc *viewer.Context, id uint64, data []byte) (bool, error) {
	finish := track("obj_update")
	ok, err := c.objUpdate(ctx, vc, id, data)
	finish(err)
	return ok, err
}

func (c *Core) objUpdate(ctx context.Context, vc *viewer.Context, id uint64, data []byte) (bool, error) {
	if err := vc.Require(viewer.CapMutateOwn); err != nil {
		return false, err
	}

	shard, err := c.topo.Route(id)
	if err != nil {
		return false, err
	}

	args, err := json.Marshal(objArgs{ShardID: shard.ID, ID: id, Data: data})
	if err != nil {
		return false, err
	}
	rec, err := c.log.Append(ctx, "obj_update", args)
	if err != nil {
		return false, err
	}

	updateErr := c.withRetry(ctx, shard.ID, func() error {
		if aerr := shard.AcquireWrite(ctx); aerr != nil {
			return aerr
		}
		defer shard.ReleaseWrite()
		return shard.Engine.UpdateObject(ctx, id, data, now())
	})
	if updateErr != nil {
		return false, updateErr
	}

	if err := c.log.MarkStatus(ctx, rec, "committed"); err != nil {
		return false, err
	}
	c.cache.InvalidateObject(id)
	return true, nil
}

// ObjDelete removes an object row. Associations hanging off the id are
// left in place; callers that want a cascade walk them explicitly.
func (c *Core) ObjDelete(ctx context.Context, vc *viewer.Context, id uint64) (bool, error) {
	finish := track("obj_delete")
	ok, err := c.objDelete(ctx, vc, id)
	finish(err)
	return ok, err
}

func (c *Core) objDelete(ctx context.Context, vc *viewer.Context, id uint64) (bool, error) {
	if err := vc.Require(viewer.CapMutateOwn); err != nil {
		return false, err
	}

	shard, err := c.topo.Route(id)
	if err != nil {
		return false, err
	}

	args, err := json.Marshal(objArgs{ShardID: shard.ID, ID: id})
	if err != nil {
		return false, err
	}
	rec, err := c.log.Append(ctx, "obj_delete", args)
	if err != nil {
		return false, err
	}

	var deleted bool
	delErr := c.withRetry(ctx, shard.ID, func() error {
		if aerr := shard.AcquireWrite(ctx); aerr != nil {
			return aerr
		}
		defer shard.ReleaseWrite()
		var ierr error
		deleted, ierr = shard.Engine.DeleteObject(ctx, id)
		return ierr
	})
	if delErr != nil {
		return false, delErr
	}
	if !deleted {
		return false, taoerrors.ErrNotFound
	}

	if err := c.log.MarkStatus(ctx, rec, "committed"); err != nil {
		return false, err
	}
	c.cache.InvalidateObject(id)
	return true, nil
}

// ObjGetMany fans reads out across shards in parallel, preserving
// input order in the returned slice; missing ids come back nil.
func (c *Core) ObjGetMany(ctx context.Context, vc *viewer.Context, ids []uint64) ([]*viewer.Object, error) {
	finish := track("obj_get_many")
	out, err := c.objGetMany(ctx, vc, ids)
	finish(err)
	return out, err
}

func (c *Core) objGetMany(ctx context.Context, vc *viewer.Context, ids []uint64) ([]*viewer.Object, error) {
	if err := vc.Require(viewer.CapReadPublic); err != nil {
		return nil, err
	}

	out := make([]*viewer.Object, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, objID := range ids {
		i, objID := i, objID
		g.Go(func() error {
			obj, ok, err := c.ObjGet(gctx, vc, objID)
			if err != nil {
				return err
			}
			if ok {
				out[i] = &obj
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
