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
	"encoding/binary"
)

// Key encoding for the object and assoc relations: fixed-width
// big-endian numeric fields so lexicographic byte order matches
// numeric order, with fields complemented where iteration must run
// descending.

var sep = byte('/')

func objectKey(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// assocPrefix returns the common prefix for every association whose
// source is id1 and whose type is typ: id1 | '/' | type | '/'.
func assocPrefix(id1 uint64, typ string) []byte {
	b := make([]byte, 8+1+len(typ)+1)
	binary.BigEndian.PutUint64(b, id1)
	b[8] = sep
	copy(b[9:], typ)
	b[9+len(typ)] = sep
	return b
}

// assocIndexKey returns the (id1,type,time desc,id2 desc) key used by
// the main assoc column family: the prefix above followed by the
// bitwise complement of time and id2 so ascending iteration yields
// time DESC, id2 DESC.
func assocIndexKey(id1 uint64, typ string, timeMS int64, id2 uint64) []byte {
	prefix := assocPrefix(id1, typ)
	b := make([]byte, len(prefix)+8+8)
	copy(b, prefix)
	binary.BigEndian.PutUint64(b[len(prefix):], ^uint64(timeMS))
	binary.BigEndian.PutUint64(b[len(prefix)+8:], ^id2)
	return b
}

// decodeAssocIndexKey recovers (time, id2) from an assocIndexKey,
// undoing the complement applied for descending order.
func decodeAssocIndexKey(key []byte) (timeMS int64, id2 uint64) {
	n := len(key)
	timeMS = int64(^binary.BigEndian.Uint64(key[n-16 : n-8]))
	id2 = ^binary.BigEndian.Uint64(key[n-8:])
	return
}

// assocPKKey returns the primary-key lookup key (id1,type,id2) -> time
// used to find an existing edge's current time (needed to locate and
// remove its stale row in the main assoc CF on upsert) without a range
// scan.
func assocPKKey(id1 uint64, typ string, id2 uint64) []byte {
	prefix := assocPrefix(id1, typ)
	b := make([]byte, len(prefix)+8)
	copy(b, prefix)
	binary.BigEndian.PutUint64(b[len(prefix):], id2)
	return b
}

func encodeInt64(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func decodeInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
