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

// Package storage is the per-shard storage engine: the object and
// association relations over the column-family kvstore, with the
// association relation kept in time-descending order.
package storage

// Object is a persisted, typed entity. Data is opaque to this package;
// only external typed wrappers interpret it.
type Object struct {
	ID      uint64 `json:"id"`
	Type    string `json:"type"`
	Data    []byte `json:"data"`
	Created int64  `json:"created"`
	Updated int64  `json:"updated"`
}

// Assoc is a directed, typed edge. Time is the primary sort key for
// range queries over a fixed (ID1, Type).
type Assoc struct {
	ID1     uint64 `json:"id1"`
	Type    string `json:"type"`
	ID2     uint64 `json:"id2"`
	Time    int64  `json:"time"`
	Data    []byte `json:"data"`
	Created int64  `json:"created"`
	Updated int64  `json:"updated"`
}
