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
	"github.com/taodb/tao/wal"
)

// Recover replays every WAL record still marked pending at startup, in
// lsn order, then truncates the now-clean prefix. Runs before the
// server accepts requests, so no new appends race the truncation.
func (c *Core) Recover(ctx context.Context) error {
	pending, err := c.log.Pending(ctx)
	if err != nil {
		return err
	}
	metrics.WalPending.Set(float64(len(pending)))

	if err := c.log.Recover(ctx, c.replay); err != nil {
		return err
	}
	metrics.WalPending.Set(0)

	return c.log.Truncate(ctx, c.log.LastLSN())
}

func (c *Core) replay(ctx context.Context, rec wal.Record) error {
	switch rec.Op {
	case "obj_add":
		var a objArgs
		if err := json.Unmarshal(rec.Args, &a); err != nil {
			return taoerrors.ErrCorruptedWal
		}
		shard, err := c.topo.ShardFor(a.ShardID)
		if err != nil {
			return err
		}
		err = shard.Engine.PutObject(ctx, a.ID, a.Type, a.Data, rec.StartedAt)
		return ignoreConflict(err)

	case "obj_update":
		var a objArgs
		if err := json.Unmarshal(rec.Args, &a); err != nil {
			return taoerrors.ErrCorruptedWal
		}
		shard, err := c.topo.ShardFor(a.ShardID)
		if err != nil {
			return err
		}
		err = shard.Engine.UpdateObject(ctx, a.ID, a.Data, rec.StartedAt)
		if taoerrors.Is(err, taoerrors.ErrNotFound) {
			return nil
		}
		return err

	case "obj_delete":
		var a objArgs
		if err := json.Unmarshal(rec.Args, &a); err != nil {
			return taoerrors.ErrCorruptedWal
		}
		shard, err := c.topo.ShardFor(a.ShardID)
		if err != nil {
			return err
		}
		_, err = shard.Engine.DeleteObject(ctx, a.ID)
		return err

	case "assoc_add":
		var a assocArgs
		if err := json.Unmarshal(rec.Args, &a); err != nil {
			return taoerrors.ErrCorruptedWal
		}
		err := c.writeAssocPrimaryAndInverse(ctx, a.ID1, a.Type, a.ID2, a.Time, a.Data, rec.StartedAt)
		if err != nil {
			return err
		}
		c.invalidateAssocAndInverse(a.ID1, a.Type, a.ID2)
		return nil

	case "assoc_delete":
		var a assocArgs
		if err := json.Unmarshal(rec.Args, &a); err != nil {
			return taoerrors.ErrCorruptedWal
		}
		primary, err := c.topo.Route(a.ID1)
		if err != nil {
			return err
		}
		if _, err := primary.Engine.DeleteAssoc(ctx, a.ID1, a.Type, a.ID2); err != nil {
			return err
		}
		if invType, ok := c.inv.InverseOf(a.Type); ok {
			invShard, err := c.topo.Route(a.ID2)
			if err != nil {
				return err
			}
			if _, err := invShard.Engine.DeleteAssoc(ctx, a.ID2, invType, a.ID1); err != nil {
				return err
			}
		}
		c.invalidateAssocAndInverse(a.ID1, a.Type, a.ID2)
		return nil

	default:
		return taoerrors.ErrCorruptedWal
	}
}

// ignoreConflict treats a replayed put that finds its row already
// present as success: the crash happened after the primary write
// landed, so the record's effect is already in place.
func ignoreConflict(err error) error {
	if taoerrors.Is(err, taoerrors.ErrConflict) {
		return nil
	}
	return err
}
