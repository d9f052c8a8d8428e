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

package storage

import (
	"context"
	"encoding/json"
	"math"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	taoerrors "github.com/taodb/tao/errors"
	"github.com/taodb/tao/kvstore"
)

const (
	objectCF  = kvstore.CF("object")
	assocCF   = kvstore.CF("assoc")
	assocPKCF = kvstore.CF("assoc_pk")
)

// MaxTime is the "to infinity" sentinel accepted by RangeAssoc's
// timeHi and AssocRange's implicit upper bound.
const MaxTime = int64(math.MaxInt64)

// Engine is the per-shard storage engine. Every method is a single-row
// or single-range operation executed in one local transaction; there
// are no cross-shard transactions at this layer.
type Engine interface {
	PutObject(ctx context.Context, id uint64, typ string, data []byte, now int64) error
	GetObject(ctx context.Context, id uint64) (*Object, error)
	UpdateObject(ctx context.Context, id uint64, data []byte, now int64) error
	DeleteObject(ctx context.Context, id uint64) (bool, error)

	PutAssoc(ctx context.Context, a Assoc) error
	GetAssoc(ctx context.Context, id1 uint64, typ string, id2 uint64) (*Assoc, error)
	RangeAssoc(ctx context.Context, id1 uint64, typ string, timeLo, timeHi int64, offset, limit int) ([]*Assoc, error)
	CountAssoc(ctx context.Context, id1 uint64, typ string) (int64, error)
	DeleteAssoc(ctx context.Context, id1 uint64, typ string, id2 uint64) (bool, error)

	Close()
}

// kvEngine implements Engine on top of the generic column-family
// kvstore; one shard owns one rocksdb instance.
type kvEngine struct {
	kv kvstore.Store
}

// NewKVEngine opens (or creates) the object/assoc column families at
// path and returns an Engine backed by them.
func NewKVEngine(ctx context.Context, path string, opt kvstore.Option) (Engine, error) {
	opt.ColumnFamily = append(opt.ColumnFamily, objectCF, assocCF, assocPKCF)
	opt.CreateIfMissing = true

	kv, err := kvstore.Open(ctx, path, &opt)
	if err != nil {
		return nil, err
	}
	return &kvEngine{kv: kv}, nil
}

func (e *kvEngine) Close() { e.kv.Close() }

func (e *kvEngine) PutObject(ctx context.Context, id uint64, typ string, data []byte, now int64) error {
	span := trace.SpanFromContext(ctx)

	existing, err := e.GetObject(ctx, id)
	if err != nil {
		return err
	}
	if existing != nil {
		return taoerrors.ErrConflict
	}

	obj := Object{ID: id, Type: typ, Data: data, Created: now, Updated: now}
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	if err := e.kv.SetRaw(ctx, objectCF, objectKey(id), raw, nil); err != nil {
		span.Errorf("put_object %d failed: %s", id, err)
		return taoerrors.ErrShardUnavailable
	}
	return nil
}

func (e *kvEngine) GetObject(ctx context.Context, id uint64) (*Object, error) {
	raw, err := e.kv.GetRaw(ctx, objectCF, objectKey(id))
	if err == kvstore.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, taoerrors.ErrShardUnavailable
	}
	obj := &Object{}
	if err := json.Unmarshal(raw, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func (e *kvEngine) UpdateObject(ctx context.Context, id uint64, data []byte, now int64) error {
	obj, err := e.GetObject(ctx, id)
	if err != nil {
		return err
	}
	if obj == nil {
		return taoerrors.ErrNotFound
	}
	obj.Data = data
	obj.Updated = now

	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	if err := e.kv.SetRaw(ctx, objectCF, objectKey(id), raw, nil); err != nil {
		return taoerrors.ErrShardUnavailable
	}
	return nil
}

func (e *kvEngine) DeleteObject(ctx context.Context, id uint64) (bool, error) {
	obj, err := e.GetObject(ctx, id)
	if err != nil {
		return false, err
	}
	if obj == nil {
		return false, nil
	}
	if err := e.kv.Delete(ctx, objectCF, objectKey(id)); err != nil {
		return false, taoerrors.ErrShardUnavailable
	}
	return true, nil
}

// PutAssoc upserts (id1,type,id2), refreshing time, data, and updated
// on an existing triple while preserving created. The stale index row
// is dropped in the same batch when time moved.
func (e *kvEngine) PutAssoc(ctx context.Context, a Assoc) error {
	span := trace.SpanFromContext(ctx)

	pkKey := assocPKKey(a.ID1, a.Type, a.ID2)
	prevRaw, err := e.kv.GetRaw(ctx, assocPKCF, pkKey)
	hasPrev := err == nil
	if err != nil && err != kvstore.ErrNotFound {
		return taoerrors.ErrShardUnavailable
	}

	batch := e.kv.NewWriteBatch()
	defer batch.Close()

	a.Created = a.Updated
	if hasPrev {
		prevTime := decodeInt64(prevRaw)
		if raw, gerr := e.kv.GetRaw(ctx, assocCF, assocIndexKey(a.ID1, a.Type, prevTime, a.ID2)); gerr == nil {
			var prev Assoc
			if json.Unmarshal(raw, &prev) == nil {
				a.Created = prev.Created
			}
		}
		if prevTime != a.Time {
			batch.Delete(assocCF, assocIndexKey(a.ID1, a.Type, prevTime, a.ID2))
		}
	}

	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	batch.Put(assocCF, assocIndexKey(a.ID1, a.Type, a.Time, a.ID2), raw)
	batch.Put(assocPKCF, pkKey, encodeInt64(a.Time))

	if err := e.kv.Write(ctx, batch, nil); err != nil {
		span.Errorf("put_assoc (%d,%s,%d) failed: %s", a.ID1, a.Type, a.ID2, err)
		return taoerrors.ErrShardUnavailable
	}
	return nil
}

func (e *kvEngine) GetAssoc(ctx context.Context, id1 uint64, typ string, id2 uint64) (*Assoc, error) {
	pkKey := assocPKKey(id1, typ, id2)
	prevRaw, err := e.kv.GetRaw(ctx, assocPKCF, pkKey)
	if err == kvstore.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, taoerrors.ErrShardUnavailable
	}

	t := decodeInt64(prevRaw)
	raw, err := e.kv.GetRaw(ctx, assocCF, assocIndexKey(id1, typ, t, id2))
	if err == kvstore.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, taoerrors.ErrShardUnavailable
	}
	a := &Assoc{}
	if err := json.Unmarshal(raw, a); err != nil {
		return nil, err
	}
	return a, nil
}

// RangeAssoc scans the half-open (timeLo, timeHi] window newest-first,
// applying offset/limit to the ordered suffix after the window is
// carved out. A full-history scan passes timeLo=0 and timeHi=MaxTime.
func (e *kvEngine) RangeAssoc(ctx context.Context, id1 uint64, typ string, timeLo, timeHi int64, offset, limit int) ([]*Assoc, error) {
	prefix := assocPrefix(id1, typ)
	reader := e.kv.List(ctx, assocCF, prefix)
	defer reader.Close()

	out := make([]*Assoc, 0, limit)
	skipped := 0
	for {
		key, raw, err := reader.ReadNextCopy()
		if err != nil {
			return nil, taoerrors.ErrShardUnavailable
		}
		if key == nil {
			break
		}

		t, _ := decodeAssocIndexKey(key)
		if t > timeHi {
			// newer than the window: iteration is ascending-by-complement,
			// i.e. descending by time, so these appear first and are skipped.
			continue
		}
		if t <= timeLo {
			// we've walked past the window's lower (exclusive) bound; since
			// keys are strictly descending in time, nothing further qualifies.
			break
		}

		if skipped < offset {
			skipped++
			continue
		}
		if limit >= 0 && len(out) >= limit {
			break
		}

		a := &Assoc{}
		if err := json.Unmarshal(raw, a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (e *kvEngine) CountAssoc(ctx context.Context, id1 uint64, typ string) (int64, error) {
	prefix := assocPrefix(id1, typ)
	reader := e.kv.List(ctx, assocCF, prefix)
	defer reader.Close()

	var n int64
	for {
		key, _, err := reader.ReadNextCopy()
		if err != nil {
			return 0, taoerrors.ErrShardUnavailable
		}
		if key == nil {
			break
		}
		n++
	}
	return n, nil
}

func (e *kvEngine) DeleteAssoc(ctx context.Context, id1 uint64, typ string, id2 uint64) (bool, error) {
	pkKey := assocPKKey(id1, typ, id2)
	prevRaw, err := e.kv.GetRaw(ctx, assocPKCF, pkKey)
	if err == kvstore.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, taoerrors.ErrShardUnavailable
	}
	t := decodeInt64(prevRaw)

	batch := e.kv.NewWriteBatch()
	defer batch.Close()
	batch.Delete(assocCF, assocIndexKey(id1, typ, t, id2))
	batch.Delete(assocPKCF, pkKey)

	if err := e.kv.Write(ctx, batch, nil); err != nil {
		return false, taoerrors.ErrShardUnavailable
	}
	return true, nil
}
