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

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	rdb "github.com/tecbot/gorocksdb"
)

// rocksStore implements Store over one rocksdb instance. The column
// family set is fixed at open time; handles are read without a lock
// because the map never changes afterwards.
type rocksStore struct {
	path     string
	db       *rdb.DB
	opt      *rdb.Options
	readOpt  *rdb.ReadOptions
	writeOpt *rdb.WriteOptions
	flushOpt *rdb.FlushOptions
	handles  map[CF]*rdb.ColumnFamilyHandle
}

func openRocksdb(ctx context.Context, path string, opt *Option) (Store, error) {
	if path == "" {
		return nil, errors.New("path is empty")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}

	dbOpt := rocksOptions(opt)

	cols := append([]CF{defaultCF}, opt.ColumnFamily...)
	names := make([]string, 0, len(cols))
	cfOpts := make([]*rdb.Options, 0, len(cols))
	for _, col := range cols {
		names = append(names, col.String())
		cfOpts = append(cfOpts, dbOpt)
	}

	db, cfhs, err := rdb.OpenDbColumnFamilies(dbOpt, path, names, cfOpts)
	if err != nil {
		return nil, err
	}

	handles := make(map[CF]*rdb.ColumnFamilyHandle, len(cols))
	for i, h := range cfhs {
		handles[cols[i]] = h
	}

	wo := rdb.NewDefaultWriteOptions()
	if opt.Sync {
		wo.SetSync(true)
	}

	return &rocksStore{
		path:     path,
		db:       db,
		opt:      dbOpt,
		readOpt:  rdb.NewDefaultReadOptions(),
		writeOpt: wo,
		flushOpt: rdb.NewDefaultFlushOptions(),
		handles:  handles,
	}, nil
}

// rocksOptions translates Option into engine options. Column families
// missing from an existing store are created rather than failing the
// open, since the WAL gained its meta family after the first release.
func rocksOptions(opt *Option) *rdb.Options {
	opts := rdb.NewDefaultOptions()
	opts.SetCreateIfMissing(opt.CreateIfMissing)
	opts.SetCreateIfMissingColumnFamilies(true)

	blockOpt := rdb.NewDefaultBlockBasedTableOptions()
	if opt.BlockSize > 0 {
		blockOpt.SetBlockSize(opt.BlockSize)
	}
	if opt.BlockCacheSize > 0 {
		blockOpt.SetBlockCache(rdb.NewLRUCache(opt.BlockCacheSize))
	}
	opts.SetBlockBasedTableFactory(blockOpt)

	if opt.WriteBufferSize > 0 {
		opts.SetWriteBufferSize(opt.WriteBufferSize)
	}
	if opt.MaxWriteBufferNumber > 0 {
		opts.SetMaxWriteBufferNumber(opt.MaxWriteBufferNumber)
	}
	if opt.MaxOpenFiles > 0 {
		opts.SetMaxOpenFiles(opt.MaxOpenFiles)
	}
	if opt.MaxWalLogSize > 0 {
		opts.SetMaxTotalWalSize(opt.MaxWalLogSize)
	}
	return opts
}

func (s *rocksStore) handle(col CF) *rdb.ColumnFamilyHandle {
	if col == "" {
		col = defaultCF
	}
	h, ok := s.handles[col]
	if !ok {
		panic(fmt.Sprintf("column family %q not opened", col.String()))
	}
	return h
}

func (s *rocksStore) GetRaw(ctx context.Context, col CF, key []byte) ([]byte, error) {
	v, err := s.db.GetCF(s.readOpt, s.handle(col), key)
	if err != nil {
		return nil, err
	}
	if !v.Exists() {
		return nil, ErrNotFound
	}
	value := make([]byte, v.Size())
	copy(value, v.Data())
	v.Free()
	return value, nil
}

func (s *rocksStore) SetRaw(ctx context.Context, col CF, key, value []byte, wo WriteOption) error {
	return s.db.PutCF(s.writeOptions(wo), s.handle(col), key, value)
}

func (s *rocksStore) Delete(ctx context.Context, col CF, key []byte) error {
	return s.db.DeleteCF(s.writeOpt, s.handle(col), key)
}

func (s *rocksStore) List(ctx context.Context, col CF, prefix []byte) ListReader {
	it := s.db.NewIteratorCF(s.readOpt, s.handle(col))
	if prefix != nil {
		it.Seek(prefix)
	} else {
		it.SeekToFirst()
	}
	return &prefixReader{it: it, prefix: prefix, first: true}
}

func (s *rocksStore) NewWriteBatch() WriteBatch {
	return &rocksBatch{s: s, batch: rdb.NewWriteBatch()}
}

func (s *rocksStore) NewWriteOption() WriteOption {
	return &rocksWriteOption{opt: rdb.NewDefaultWriteOptions()}
}

func (s *rocksStore) Write(ctx context.Context, batch WriteBatch, wo WriteOption) error {
	return s.db.Write(s.writeOptions(wo), batch.(*rocksBatch).batch)
}

func (s *rocksStore) FlushCF(ctx context.Context, col CF) error {
	return s.db.FlushCF(s.flushOpt, s.handle(col))
}

func (s *rocksStore) writeOptions(wo WriteOption) *rdb.WriteOptions {
	if wo != nil {
		return wo.(*rocksWriteOption).opt
	}
	return s.writeOpt
}

func (s *rocksStore) Close() {
	s.writeOpt.Destroy()
	s.readOpt.Destroy()
	s.flushOpt.Destroy()
	s.opt.Destroy()
	for _, h := range s.handles {
		h.Destroy()
	}
	s.db.Close()
}

// prefixReader walks one column family from the seek position until
// the prefix no longer matches.
type prefixReader struct {
	it     *rdb.Iterator
	prefix []byte
	first  bool
}

func (r *prefixReader) ReadNextCopy() ([]byte, []byte, error) {
	if r.first {
		r.first = false
	} else {
		r.it.Next()
	}
	if err := r.it.Err(); err != nil {
		return nil, nil, err
	}
	if !r.it.Valid() {
		return nil, nil, nil
	}
	if r.prefix != nil && !r.it.ValidForPrefix(r.prefix) {
		return nil, nil, nil
	}

	k := r.it.Key()
	v := r.it.Value()
	key := make([]byte, len(k.Data()))
	copy(key, k.Data())
	value := make([]byte, v.Size())
	copy(value, v.Data())
	k.Free()
	v.Free()
	return key, value, nil
}

func (r *prefixReader) Close() {
	r.it.Close()
}

type rocksBatch struct {
	s     *rocksStore
	batch *rdb.WriteBatch
}

func (b *rocksBatch) Put(col CF, key, value []byte) {
	b.batch.PutCF(b.s.handle(col), key, value)
}

func (b *rocksBatch) Delete(col CF, key []byte) {
	b.batch.DeleteCF(b.s.handle(col), key)
}

func (b *rocksBatch) DeleteRange(col CF, startKey, endKey []byte) {
	b.batch.DeleteRangeCF(b.s.handle(col), startKey, endKey)
}

func (b *rocksBatch) Close() {
	b.batch.Destroy()
}

type rocksWriteOption struct {
	opt *rdb.WriteOptions
}

func (wo *rocksWriteOption) SetSync(value bool) {
	wo.opt.SetSync(value)
}

func (wo *rocksWriteOption) Close() {
	wo.opt.Destroy()
}
