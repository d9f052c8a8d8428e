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

// Package kvstore is the column-family key/value layer under the graph
// store: the object, assoc, and assoc_pk relations of each shard live
// in their own column families of one rocksdb instance, and the
// write-ahead log keeps its records (and truncation marker) the same
// way. Keys are opaque byte strings; ordering guarantees come from the
// callers' key encoding, this package only promises lexicographic
// iteration.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GetRaw when no value exists under a key.
var ErrNotFound = errors.New("key not found")

// CF names one column family. The empty CF resolves to rocksdb's
// default column family.
type CF string

func (cf CF) String() string { return string(cf) }

const defaultCF = CF("default")

// Option tunes one store instance at open time. Zero fields keep the
// engine's defaults.
type Option struct {
	// ColumnFamily lists the families to open besides the default one;
	// families that do not exist yet are created.
	ColumnFamily    []CF `json:"column_family"`
	CreateIfMissing bool `json:"create_if_missing"`

	// Sync makes every write durable before it returns, unless a
	// per-call WriteOption overrides it.
	Sync bool `json:"sync"`

	BlockSize            int    `json:"block_size"`
	BlockCacheSize       uint64 `json:"block_cache_size"`
	WriteBufferSize      int    `json:"write_buffer_size"`
	MaxWriteBufferNumber int    `json:"max_write_buffer_number"`
	MaxOpenFiles         int    `json:"max_open_files"`

	// MaxWalLogSize bounds the total size of the engine's own live
	// write-ahead files (rocksdb's max_total_wal_size): past it, the
	// engine flushes the column families backed by the oldest file so
	// that file can be dropped. It does not cap any single file's size.
	MaxWalLogSize uint64 `json:"max_wal_log_size"`
}

type (
	// Store is one open instance. Implementations are safe for
	// concurrent use; Close releases every native handle.
	Store interface {
		GetRaw(ctx context.Context, col CF, key []byte) ([]byte, error)
		SetRaw(ctx context.Context, col CF, key, value []byte, wo WriteOption) error
		Delete(ctx context.Context, col CF, key []byte) error

		// List positions an iterator at the first key with the given
		// prefix; a nil prefix iterates the whole family. The caller
		// must Close the reader.
		List(ctx context.Context, col CF, prefix []byte) ListReader

		NewWriteBatch() WriteBatch
		NewWriteOption() WriteOption
		Write(ctx context.Context, batch WriteBatch, wo WriteOption) error

		FlushCF(ctx context.Context, col CF) error
		Close()
	}

	// ListReader walks keys in lexicographic order within one prefix.
	// ReadNextCopy returns (nil, nil, nil) once the prefix is
	// exhausted; returned slices are copies the caller owns.
	ListReader interface {
		ReadNextCopy() (key []byte, value []byte, err error)
		Close()
	}

	// WriteBatch accumulates mutations applied atomically by
	// Store.Write.
	WriteBatch interface {
		Put(col CF, key, value []byte)
		Delete(col CF, key []byte)
		DeleteRange(col CF, startKey, endKey []byte)
		Close()
	}

	// WriteOption overrides per-call write behavior; nil means the
	// store's defaults.
	WriteOption interface {
		SetSync(value bool)
		Close()
	}
)

// Open opens (or creates) the store at path.
func Open(ctx context.Context, path string, opt *Option) (Store, error) {
	if opt == nil {
		opt = &Option{}
	}
	return openRocksdb(ctx, path, opt)
}
