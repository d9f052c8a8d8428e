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

// Package cache implements the three cache-aside tiers in front of the
// storage engines: bounded-capacity, per-entry-TTL LRUs for objects,
// association lists, and association counts. The LRU itself comes from
// hashicorp/golang-lru; this package adds the TTL and the by-(id1,type)
// invalidation index, neither of which the library provides on its own.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/taodb/tao/storage"
)

// Config holds per-tier capacity and TTL. A zero capacity falls back
// to a default rather than disabling the tier.
type Config struct {
	ObjectsCapacity int           `json:"objects_capacity"`
	ObjectsTTL      time.Duration `json:"objects_ttl"`

	AssocsCapacity int           `json:"assocs_capacity"`
	AssocsTTL      time.Duration `json:"assocs_ttl"`

	CountsCapacity int           `json:"counts_capacity"`
	CountsTTL      time.Duration `json:"counts_ttl"`
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// AssocListKey identifies one cached assoc_range/assoc_time_range
// result: the full query shape, not just the (id1,type) pair, since
// different windows over the same edge list cache different slices.
type AssocListKey struct {
	ID1    uint64
	Type   string
	TimeLo int64
	TimeHi int64
	Offset int
	Limit  int
}

// assocGroupKey is the (id1,type) every AssocListKey and count entry
// is grouped under for invalidation.
type assocGroupKey struct {
	ID1  uint64
	Type string
}

func (k AssocListKey) group() assocGroupKey { return assocGroupKey{k.ID1, k.Type} }

// Cache is the whole three-tier layer the TAO core consults on every
// read and invalidates on every write.
type Cache struct {
	now func() time.Time

	objects *lru.Cache[uint64, entry[*storage.Object]]
	objTTL  time.Duration

	assocs   *lru.Cache[AssocListKey, entry[[]*storage.Assoc]]
	assocTTL time.Duration

	counts    *lru.Cache[assocGroupKey, entry[int64]]
	countsTTL time.Duration

	// groups indexes every live assoc-list key by its (id1,type) group
	// so a write can invalidate every key whose result could be
	// affected without scanning the whole LRU. The LRUs are safe for
	// concurrent use on their own; groupMu covers this index, and is
	// never held across an LRU call (the eviction callback re-enters
	// untrack).
	groupMu sync.Mutex
	groups  map[assocGroupKey]map[AssocListKey]struct{}
}

// New builds the three tiers per cfg.
func New(cfg Config) (*Cache, error) {
	c := &Cache{now: time.Now, groups: make(map[assocGroupKey]map[AssocListKey]struct{})}

	objects, err := lru.New[uint64, entry[*storage.Object]](nonZero(cfg.ObjectsCapacity))
	if err != nil {
		return nil, err
	}
	c.objects = objects
	c.objTTL = cfg.ObjectsTTL

	assocs, err := lru.NewWithEvict[AssocListKey, entry[[]*storage.Assoc]](nonZero(cfg.AssocsCapacity), c.onAssocEvict)
	if err != nil {
		return nil, err
	}
	c.assocs = assocs
	c.assocTTL = cfg.AssocsTTL

	counts, err := lru.New[assocGroupKey, entry[int64]](nonZero(cfg.CountsCapacity))
	if err != nil {
		return nil, err
	}
	c.counts = counts
	c.countsTTL = cfg.CountsTTL

	return c, nil
}

func nonZero(v int) int {
	if v <= 0 {
		return 1024
	}
	return v
}

func (c *Cache) onAssocEvict(key AssocListKey, _ entry[[]*storage.Assoc]) {
	c.untrack(key)
}

func (c *Cache) track(key AssocListKey) {
	c.groupMu.Lock()
	defer c.groupMu.Unlock()
	g := key.group()
	set, ok := c.groups[g]
	if !ok {
		set = make(map[AssocListKey]struct{})
		c.groups[g] = set
	}
	set[key] = struct{}{}
}

func (c *Cache) untrack(key AssocListKey) {
	c.groupMu.Lock()
	defer c.groupMu.Unlock()
	g := key.group()
	set, ok := c.groups[g]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(c.groups, g)
	}
}

// GetObject is the object-cache read side of cache-aside: callers
// treat a false ok the same whether it was a miss or an expired entry.
func (c *Cache) GetObject(id uint64) (*storage.Object, bool) {
	e, ok := c.objects.Get(id)
	if !ok || e.expired(c.now()) {
		return nil, false
	}
	return e.value, true
}

// FillObject populates the object cache on a read miss. There is no
// write-through: this must only ever be called from a read path, never
// from obj_add/obj_update.
func (c *Cache) FillObject(obj *storage.Object) {
	c.objects.Add(obj.ID, wrap(obj, c.objTTL, c.now()))
}

// InvalidateObject drops the object-cache entry for id, the
// invalidation trigger of an obj_update or obj_delete.
func (c *Cache) InvalidateObject(id uint64) {
	c.objects.Remove(id)
}

// GetAssocList is the assoc-list-cache read side.
func (c *Cache) GetAssocList(key AssocListKey) ([]*storage.Assoc, bool) {
	e, ok := c.assocs.Get(key)
	if !ok || e.expired(c.now()) {
		return nil, false
	}
	return e.value, true
}

// FillAssocList populates the assoc-list cache on a read miss.
func (c *Cache) FillAssocList(key AssocListKey, rows []*storage.Assoc) {
	c.assocs.Add(key, wrap(rows, c.assocTTL, c.now()))
	c.track(key)
}

// GetCount is the count-cache read side.
func (c *Cache) GetCount(id1 uint64, typ string) (int64, bool) {
	e, ok := c.counts.Get(assocGroupKey{id1, typ})
	if !ok || e.expired(c.now()) {
		return 0, false
	}
	return e.value, true
}

// FillCount populates the count cache on a read miss.
func (c *Cache) FillCount(id1 uint64, typ string, n int64) {
	c.counts.Add(assocGroupKey{id1, typ}, wrap(n, c.countsTTL, c.now()))
}

// InvalidateAssocGroup drops every assoc-list and count entry for
// (id1,type), the invalidation trigger of any write to (id1,type,*).
// Invalidating the inverse side's group, (id2,inverse_type,*), is the
// caller's second call.
func (c *Cache) InvalidateAssocGroup(id1 uint64, typ string) {
	g := assocGroupKey{id1, typ}
	c.counts.Remove(g)

	c.groupMu.Lock()
	set := c.groups[g]
	delete(c.groups, g)
	keys := make([]AssocListKey, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	c.groupMu.Unlock()

	for _, k := range keys {
		c.assocs.Remove(k)
	}
}

func wrap[V any](v V, ttl time.Duration, now time.Time) entry[V] {
	e := entry[V]{value: v}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	return e
}
