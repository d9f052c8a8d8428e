package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	taoerrors "github.com/taodb/tao/errors"
)

func TestGenerator_NextID_Monotonic(t *testing.T) {
	g, err := New(Config{ShardID: 7, EpochMS: 0})
	require.NoError(t, err)

	var last uint64
	for i := 0; i < 10000; i++ {
		v, err := g.NextID()
		require.NoError(t, err)
		assert.Greater(t, v, last)
		assert.Equal(t, uint64(7), ShardOf(v))
		last = v
	}
}

func TestGenerator_InvalidShard(t *testing.T) {
	_, err := New(Config{ShardID: MaxShard + 1})
	assert.Error(t, err)
}

func TestGenerator_SequenceBump_SameMillisecond(t *testing.T) {
	g, err := New(Config{ShardID: 1, EpochMS: 0})
	require.NoError(t, err)

	frozen := int64(1000)
	g.now = func() int64 { return frozen }

	first, err := g.NextID()
	require.NoError(t, err)
	second, err := g.NextID()
	require.NoError(t, err)

	assert.Equal(t, first+1, second)
	assert.Equal(t, ShardOf(first), ShardOf(second))
}

func TestGenerator_ClockRegressionExceeded(t *testing.T) {
	g, err := New(Config{ShardID: 1, EpochMS: 0, MaxRegressionMS: 5})
	require.NoError(t, err)

	ticks := []int64{1000, 990}
	i := 0
	g.now = func() int64 {
		v := ticks[i]
		if i < len(ticks)-1 {
			i++
		}
		return v
	}

	_, err = g.NextID()
	require.NoError(t, err)
	_, err = g.NextID()
	assert.ErrorIs(t, err, taoerrors.ErrClockRegressionExceeded)
}
