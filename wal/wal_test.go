package wal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendAndCommit(t *testing.T) {
	ctx := context.Background()
	l, err := OpenTemp(ctx)
	require.NoError(t, err)
	defer l.Close()

	rec, err := l.Append(ctx, "put_object", []byte(`{"id":1}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.LSN)
	assert.Equal(t, StatusPending, rec.Status)

	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, l.MarkStatus(ctx, rec, StatusCommitted))

	pending, err = l.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 0)
}

func TestLog_RecoverReplaysPendingOnly(t *testing.T) {
	ctx := context.Background()
	l, err := OpenTemp(ctx)
	require.NoError(t, err)
	defer l.Close()

	committed, err := l.Append(ctx, "put_object", []byte("a"))
	require.NoError(t, err)
	require.NoError(t, l.MarkStatus(ctx, committed, StatusCommitted))

	stuck, err := l.Append(ctx, "put_assoc", []byte("b"))
	require.NoError(t, err)

	var replayed []uint64
	require.NoError(t, l.Recover(ctx, func(ctx context.Context, rec Record) error {
		replayed = append(replayed, rec.LSN)
		return nil
	}))

	assert.Equal(t, []uint64{stuck.LSN}, replayed)

	// idempotent: a second recovery over an already-clean log is a no-op.
	replayed = nil
	require.NoError(t, l.Recover(ctx, func(ctx context.Context, rec Record) error {
		replayed = append(replayed, rec.LSN)
		return nil
	}))
	assert.Empty(t, replayed)
}

func TestLog_LSNOrderingSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir()

	l, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := l.Append(ctx, "put_object", nil)
		require.NoError(t, err)
	}
	l.Close()

	l2, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	defer l2.Close()

	rec, err := l2.Append(ctx, "put_object", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), rec.LSN)
}

func TestLog_Truncate(t *testing.T) {
	ctx := context.Background()
	l, err := OpenTemp(ctx)
	require.NoError(t, err)
	defer l.Close()

	var last Record
	for i := 0; i < 3; i++ {
		rec, err := l.Append(ctx, "put_object", nil)
		require.NoError(t, err)
		require.NoError(t, l.MarkStatus(ctx, rec, StatusCommitted))
		last = rec
	}

	require.NoError(t, l.Truncate(ctx, last.LSN))
	pending, err := l.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestLog_TruncateMarkerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir()

	l, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	var last Record
	for i := 0; i < 4; i++ {
		rec, err := l.Append(ctx, "put_object", nil)
		require.NoError(t, err)
		require.NoError(t, l.MarkStatus(ctx, rec, StatusCommitted))
		last = rec
	}
	require.NoError(t, l.Truncate(ctx, last.LSN))
	l.Close()

	// With every record gone, the reopened log must pick the counter up
	// from the truncation marker instead of restarting at 1.
	l2, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	defer l2.Close()

	rec, err := l2.Append(ctx, "put_object", nil)
	require.NoError(t, err)
	assert.Equal(t, last.LSN+1, rec.LSN)
}
