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

// Package wal implements the write-ahead log: an append-only, fsynced,
// strictly ordered record of every mutation, used to replay partial
// multi-shard (inverse) writes to completion after a crash. Records
// live under big-endian lsn keys in a dedicated column family so the
// store's natural key order is replay order.
package wal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	taoerrors "github.com/taodb/tao/errors"
	"github.com/taodb/tao/kvstore"
	"github.com/taodb/tao/util"
)

// Status is the lifecycle of one WAL record.
type Status string

const (
	StatusPending     Status = "pending"
	StatusCommitted   Status = "committed"
	StatusCompensated Status = "compensated"
)

// Op names the kind of mutation a Record carries. The tao package is
// the only producer; wal treats Args as opaque so it never needs to
// know about objects or associations.
type Op string

// Record is the unit appended to the log.
type Record struct {
	LSN       uint64 `json:"lsn"`
	Op        Op     `json:"op"`
	Args      []byte `json:"args"`
	StartedAt int64  `json:"started_at"`
	Status    Status `json:"status"`
}

const (
	walCF     = kvstore.CF("wal")
	walMetaCF = kvstore.CF("wal_meta")
)

// truncateMarkerKey records the highest lsn ever dropped by Truncate,
// so the counter never restarts below it after a reopen.
var truncateMarkerKey = []byte("truncated_lsn")

var lsnKeyLen = 8

func lsnKey(lsn uint64) []byte {
	b := make([]byte, lsnKeyLen)
	binary.BigEndian.PutUint64(b, lsn)
	return b
}

// Config configures segment rotation and fsync behavior.
type Config struct {
	Path string `json:"path"`

	// SegmentBytes is passed to the store as MaxWalLogSize, a bound on
	// the total size of the engine's live write-ahead files; it does not
	// cap the size of any single file. Zero keeps the store's default.
	SegmentBytes uint64 `json:"segment_bytes"`

	// GroupCommit, when zero, fsyncs every record individually. When
	// non-zero, records are written without a per-record fsync; no timer
	// fsyncs them at this interval.
	GroupCommit time.Duration `json:"group_commit_ms"`
}

// Log is a single-writer, many-reader ordered record store.
type Log struct {
	cfg Config
	kv  kvstore.Store

	mu  sync.Mutex
	lsn uint64
}

// Open opens or creates the log at cfg.Path and positions the lsn
// counter past the highest record already on disk.
func Open(ctx context.Context, cfg Config) (*Log, error) {
	opt := kvstore.Option{
		ColumnFamily:    []kvstore.CF{walCF, walMetaCF},
		CreateIfMissing: true,
		MaxWalLogSize:   cfg.SegmentBytes,
	}
	kv, err := kvstore.Open(ctx, cfg.Path, &opt)
	if err != nil {
		return nil, err
	}

	l := &Log{cfg: cfg, kv: kv}
	last, err := l.highestLSN(ctx)
	if err != nil {
		kv.Close()
		return nil, err
	}
	truncated, err := l.truncatedLSN(ctx)
	if err != nil {
		kv.Close()
		return nil, err
	}
	if truncated > last {
		last = truncated
	}
	l.lsn = last
	return l, nil
}

// OpenTemp is a test/fixture convenience that opens a Log under a
// freshly created temporary directory.
func OpenTemp(ctx context.Context) (*Log, error) {
	path, err := util.GenTmpPath()
	if err != nil {
		return nil, err
	}
	return Open(ctx, Config{Path: path})
}

func (l *Log) highestLSN(ctx context.Context) (uint64, error) {
	reader := l.kv.List(ctx, walCF, nil)
	defer reader.Close()

	var max uint64
	for {
		key, _, err := reader.ReadNextCopy()
		if err != nil {
			return 0, taoerrors.ErrCorruptedWal
		}
		if key == nil {
			break
		}
		if len(key) != lsnKeyLen {
			return 0, taoerrors.ErrCorruptedWal
		}
		v := binary.BigEndian.Uint64(key)
		if v > max {
			max = v
		}
	}
	return max, nil
}

// Append assigns the next lsn under the single writer lock and durably
// persists a pending record before returning it. The caller executes
// the shard ops only after Append succeeds.
func (l *Log) Append(ctx context.Context, op Op, args []byte) (Record, error) {
	span := trace.SpanFromContext(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.lsn++
	rec := Record{LSN: l.lsn, Op: op, Args: args, StartedAt: time.Now().UnixMilli(), Status: StatusPending}

	if err := l.writeRecord(ctx, rec); err != nil {
		span.Errorf("wal append lsn=%d failed: %s", rec.LSN, err)
		l.lsn--
		return Record{}, taoerrors.ErrShardUnavailable
	}
	return rec, nil
}

// MarkStatus updates a record in place with a new status and fsyncs,
// closing the pending window once every shard op has applied, or
// recording the compensated outcome a failed multi-shard write is left
// in.
func (l *Log) MarkStatus(ctx context.Context, rec Record, status Status) error {
	rec.Status = status
	if err := l.writeRecord(ctx, rec); err != nil {
		return taoerrors.ErrShardUnavailable
	}
	return nil
}

func (l *Log) writeRecord(ctx context.Context, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	wo := l.kv.NewWriteOption()
	defer wo.Close()
	wo.SetSync(l.cfg.GroupCommit == 0)

	return l.kv.SetRaw(ctx, walCF, lsnKey(rec.LSN), raw, wo)
}

// Pending returns every record still marked pending, in lsn order,
// for use by Recover.
func (l *Log) Pending(ctx context.Context) ([]Record, error) {
	reader := l.kv.List(ctx, walCF, nil)
	defer reader.Close()

	var out []Record
	for {
		_, raw, err := reader.ReadNextCopy()
		if err != nil {
			return nil, taoerrors.ErrCorruptedWal
		}
		if raw == nil {
			break
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, taoerrors.ErrCorruptedWal
		}
		if rec.Status == StatusPending {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Recover scans the log and, for every record still pending, re-issues
// replay in lsn order, marking each committed as it completes. replay
// must be idempotent; Conflict from a replayed put_* is treated as
// success by the caller (tao package), not by wal itself.
func (l *Log) Recover(ctx context.Context, replay func(ctx context.Context, rec Record) error) error {
	pending, err := l.Pending(ctx)
	if err != nil {
		return err
	}
	for _, rec := range pending {
		if err := replay(ctx, rec); err != nil {
			return err
		}
		if err := l.MarkStatus(ctx, rec, StatusCommitted); err != nil {
			return err
		}
	}
	return nil
}

// Truncate drops every record with lsn <= safeLSN and advances the
// truncation marker in the same batch, so a reopen after a full
// truncation resumes the counter instead of reissuing old lsns.
// Callers only pass a safeLSN at or below the highest fully committed
// record.
func (l *Log) Truncate(ctx context.Context, safeLSN uint64) error {
	batch := l.kv.NewWriteBatch()
	defer batch.Close()
	batch.DeleteRange(walCF, lsnKey(0), lsnKey(safeLSN+1))
	batch.Put(walMetaCF, truncateMarkerKey, lsnKey(safeLSN))
	if err := l.kv.Write(ctx, batch, nil); err != nil {
		return taoerrors.ErrShardUnavailable
	}
	return nil
}

func (l *Log) truncatedLSN(ctx context.Context) (uint64, error) {
	raw, err := l.kv.GetRaw(ctx, walMetaCF, truncateMarkerKey)
	if err == kvstore.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != lsnKeyLen {
		return 0, taoerrors.ErrCorruptedWal
	}
	return binary.BigEndian.Uint64(raw), nil
}

// LastLSN returns the highest lsn assigned so far.
func (l *Log) LastLSN() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lsn
}

func (l *Log) Close() { l.kv.Close() }
